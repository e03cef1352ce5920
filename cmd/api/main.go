package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	mhttp "github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/scoopstack/backend-scoopstack/internal/auth"
	"github.com/scoopstack/backend-scoopstack/internal/bank"
	"github.com/scoopstack/backend-scoopstack/internal/billing"
	"github.com/scoopstack/backend-scoopstack/internal/catalog"
	"github.com/scoopstack/backend-scoopstack/internal/config"
	"github.com/scoopstack/backend-scoopstack/internal/customer"
	"github.com/scoopstack/backend-scoopstack/internal/db"
	"github.com/scoopstack/backend-scoopstack/internal/health"
	"github.com/scoopstack/backend-scoopstack/internal/mail"
	"github.com/scoopstack/backend-scoopstack/internal/obs"
	"github.com/scoopstack/backend-scoopstack/internal/pdf"
	"github.com/scoopstack/backend-scoopstack/internal/ratelimit"
	"github.com/scoopstack/backend-scoopstack/internal/seller"
	"github.com/scoopstack/backend-scoopstack/internal/uploads"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "scoopstack")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", false)
	if tracingEnabled {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName: "scoopstack-api",
			Endpoint:    envOrDefault("OBS_OTLP_ENDPOINT", ""),
			Environment: cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		logger.Fatal().Err(err).Msg("run migrations")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "scoopstack-api"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if tracingEnabled {
		if err := redisotel.InstrumentTracing(redisClient); err != nil {
			logger.Error().Err(err).Msg("instrument redis tracing")
		}
	}
	if metricsEnabled {
		if err := redisotel.InstrumentMetrics(redisClient); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}

	taskClient := asynq.NewClient(asynq.RedisClientOpt{Addr: redisOpts.Addr, Password: redisOpts.Password, DB: redisOpts.DB})
	defer func() {
		if err := taskClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close task client")
		}
	}()

	authService := auth.NewService(auth.ServiceOptions{
		Store:         auth.NewPGStore(pool),
		Mailer:        mail.Enqueuer{Client: taskClient},
		Secret:        []byte(cfg.JWTSecret),
		AccessTTL:     cfg.AccessTokenTTL,
		RememberTTL:   cfg.RememberMeTTL,
		OTPTTL:        cfg.OTPTTL,
		ResendLimiter: &ratelimit.Limiter{Client: redisClient, Prefix: "rl:otp"},
		ResendWindow:  cfg.OTPResendWindow,
		ResendMax:     cfg.OTPResendMax,
	})
	authHandler := &auth.Handler{Service: authService}
	authMiddleware := auth.Middleware{Service: authService}

	sellerService := seller.NewService(pool)
	sellerHandler := &seller.Handler{Service: sellerService}

	bankService := bank.NewService(pool)
	bankHandler := &bank.Handler{Service: bankService}

	customerService := customer.NewService(pool)
	customerHandler := &customer.Handler{Service: customerService}

	catalogService := catalog.NewService(pool, catalog.NewCache(redisClient, cfg.CatalogCacheTTL), logger)
	catalogHandler := &catalog.Handler{
		Service:  catalogService,
		Renderer: pdf.StockRenderer{Logger: logger},
		ShopName: func(r *http.Request, userID string) string {
			user, err := authService.Me(r.Context(), userID)
			if err != nil {
				return ""
			}
			return user.ShopName
		},
	}

	billingHandler := &billing.Handler{
		Sellers:   sellerService,
		Banks:     bankService,
		Customers: customerService,
		Catalog:   catalogService,
		Sequence:  billing.Sequence{Client: redisClient},
		Renderer:  pdf.BillRenderer{Logger: logger},
	}

	var uploadStore uploads.Store
	switch cfg.UploadDriver {
	case "s3":
		s3Store, err := uploads.NewS3Store(cfg.S3Bucket, cfg.S3Region)
		if err != nil {
			logger.Fatal().Err(err).Msg("initialise s3 upload store")
		}
		uploadStore = s3Store
	default:
		uploadStore = uploads.LocalStore{Dir: cfg.UploadLocalDir, BaseURL: cfg.UploadBaseURL}
	}
	uploadHandler := &uploads.Handler{Store: uploadStore}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, buckets, nil)
	}

	rate, err := limiter.NewRateFromFormatted(cfg.GlobalRateLimit)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse global rate limit")
	}
	limiterStore, err := sredis.NewStoreWithOptions(redisClient, limiter.StoreOptions{Prefix: "rl:global"})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise rate limit store")
	}
	globalLimiter := mhttp.NewMiddleware(limiter.New(limiterStore, rate))

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if metricsEnabled && httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(globalLimiter.Handler)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	if envBool("OBS_ENABLE_PPROF", false) {
		user := envOrDefault("SECURE_PPROF_BASIC_AUTH_USER", "")
		pass := envOrDefault("SECURE_PPROF_BASIC_AUTH_PASS", "")
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), user, pass))
	}

	healthHandler := health.Handler{
		Checker:      readinessChecker{db: pool, redis: redisClient},
		DBTimeout:    500 * time.Millisecond,
		RedisTimeout: 300 * time.Millisecond,
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Route("/auth", func(a chi.Router) {
			a.Post("/register", authHandler.Register)
			a.Post("/verify-otp", authHandler.VerifyOTP)
			a.Post("/resend-otp", authHandler.ResendOTP)
			a.Post("/login", authHandler.Login)

			a.Group(func(protected chi.Router) {
				protected.Use(authMiddleware.RequireAuth)
				protected.Get("/me", authHandler.Me)
				protected.Patch("/me", authHandler.UpdateProfile)
				protected.Post("/password/change", authHandler.ChangePassword)
			})
		})

		v.Group(func(protected chi.Router) {
			protected.Use(authMiddleware.RequireAuth)

			protected.Get("/seller", sellerHandler.Get)
			protected.Put("/seller", sellerHandler.Upsert)

			protected.Get("/bank", bankHandler.Get)
			protected.Post("/bank", bankHandler.Upsert)
			protected.Put("/bank", bankHandler.Upsert)

			protected.Get("/customers", customerHandler.List)
			protected.Post("/customers", customerHandler.Create)
			protected.Delete("/customers/{customerID}", customerHandler.Delete)

			protected.Route("/products", func(p chi.Router) {
				p.Get("/", catalogHandler.List)
				p.Post("/", catalogHandler.Create)
				p.Post("/restock", catalogHandler.Restock)
				p.Get("/restock/history", catalogHandler.History)
				p.Get("/report", catalogHandler.StockReport)
				p.Put("/{productID}", catalogHandler.Update)
				p.Delete("/{productID}", catalogHandler.Delete)
			})

			protected.Route("/billing", func(b chi.Router) {
				b.Get("/draft", billingHandler.NewDraft)
				b.Post("/lines", billingHandler.EditLines)
				b.Post("/preview", billingHandler.Preview)
				b.Post("/export", billingHandler.Export)
				b.Post("/serial", billingHandler.Serial)
			})

			protected.Post("/uploads/image", uploadHandler.Upload)
		})
	})

	srv := &http.Server{
		Addr:    cfg.HTTPAddr(),
		Handler: r,
	}

	logger.Info().Str("addr", srv.Addr).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

type readinessChecker struct {
	db    *pgxpool.Pool
	redis *redis.Client
}

func (c readinessChecker) PingDB(ctx context.Context, timeout time.Duration) error {
	if c.db == nil {
		return errors.New("db not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.db.Ping(ctx)
}

func (c readinessChecker) PingRedis(ctx context.Context, timeout time.Duration) error {
	if c.redis == nil {
		return errors.New("redis not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.redis.Ping(ctx).Err()
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	mux.Handle("/allocs", pprof.Handler("allocs"))
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/heap", pprof.Handler("heap"))
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}

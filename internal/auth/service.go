package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/scoopstack/backend-scoopstack/internal/common"
	"github.com/scoopstack/backend-scoopstack/internal/obs"
	"github.com/scoopstack/backend-scoopstack/internal/ratelimit"
)

// OTPMailer delivers one-time passcodes, typically via the task queue.
type OTPMailer interface {
	EnqueueOTP(ctx context.Context, email, name, otp string, expiresIn time.Duration) error
}

// User is the account shape returned to API clients.
type User struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	Contact     string    `json:"contact,omitempty"`
	ShopName    string    `json:"shopName"`
	ShopAddress string    `json:"shopAddress"`
	Verified    bool      `json:"verified"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// RegisterInput captures a registration request.
type RegisterInput struct {
	Name        string
	Email       string
	Contact     string
	ShopName    string
	ShopAddress string
	Password    string
}

// LoginResult bundles the signed token with the account it belongs to.
type LoginResult struct {
	User        User      `json:"user"`
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// Service implements registration, OTP verification, and login.
type Service struct {
	store  Store
	mailer OTPMailer

	secret   []byte
	issuer   string
	audience string
	signer   jwa.SignatureAlgorithm

	accessTTL   time.Duration
	rememberTTL time.Duration
	otpTTL      time.Duration
	clockSkew   time.Duration

	resendLimiter *ratelimit.Limiter
	resendWindow  time.Duration
	resendMax     int

	validator TokenValidator

	now    func() time.Time
	newOTP func() (string, error)
}

// ServiceOptions configures a Service.
type ServiceOptions struct {
	Store         Store
	Mailer        OTPMailer
	Secret        []byte
	Issuer        string
	Audience      string
	AccessTTL     time.Duration
	RememberTTL   time.Duration
	OTPTTL        time.Duration
	ClockSkew     time.Duration
	ResendLimiter *ratelimit.Limiter
	ResendWindow  time.Duration
	ResendMax     int
}

// NewService constructs the auth service with sane defaults.
func NewService(opts ServiceOptions) *Service {
	if opts.AccessTTL <= 0 {
		opts.AccessTTL = 12 * time.Hour
	}
	if opts.RememberTTL <= 0 {
		opts.RememberTTL = 30 * 24 * time.Hour
	}
	if opts.OTPTTL <= 0 {
		opts.OTPTTL = 10 * time.Minute
	}
	if opts.ClockSkew <= 0 {
		opts.ClockSkew = time.Minute
	}
	if opts.Issuer == "" {
		opts.Issuer = "scoopstack"
	}
	if opts.Audience == "" {
		opts.Audience = "scoopstack-api"
	}
	if opts.ResendWindow <= 0 {
		opts.ResendWindow = time.Hour
	}
	if opts.ResendMax <= 0 {
		opts.ResendMax = 5
	}
	if opts.Mailer == nil {
		opts.Mailer = nopMailer{}
	}
	return &Service{
		store:         opts.Store,
		mailer:        opts.Mailer,
		secret:        opts.Secret,
		issuer:        opts.Issuer,
		audience:      opts.Audience,
		signer:        jwa.HS256,
		accessTTL:     opts.AccessTTL,
		rememberTTL:   opts.RememberTTL,
		otpTTL:        opts.OTPTTL,
		clockSkew:     opts.ClockSkew,
		resendLimiter: opts.ResendLimiter,
		resendWindow:  opts.ResendWindow,
		resendMax:     opts.ResendMax,
		validator: TokenValidator{
			Issuer:    opts.Issuer,
			Audience:  opts.Audience,
			ClockSkew: opts.ClockSkew,
			Algorithm: jwa.HS256,
		},
		now:    time.Now,
		newOTP: generateOTP,
	}
}

// WithNow overrides the service clock for tests.
func (s *Service) WithNow(now func() time.Time) *Service {
	s.now = now
	return s
}

// WithOTPSource overrides OTP generation for tests.
func (s *Service) WithOTPSource(fn func() (string, error)) *Service {
	s.newOTP = fn
	return s
}

type nopMailer struct{}

func (nopMailer) EnqueueOTP(context.Context, string, string, string, time.Duration) error {
	return nil
}

// Register creates an unverified account and dispatches its first OTP.
func (s *Service) Register(ctx context.Context, input RegisterInput) (User, error) {
	name := strings.TrimSpace(input.Name)
	email := normalizeEmail(input.Email)
	shopName := strings.TrimSpace(input.ShopName)
	shopAddress := strings.TrimSpace(input.ShopAddress)

	if name == "" || email == "" || shopName == "" || shopAddress == "" {
		return User{}, common.NewAppError("VALIDATION_ERROR", "name, email, shop name, and shop address are required", http.StatusBadRequest, nil)
	}
	if !strings.Contains(email, "@") {
		return User{}, common.NewAppError("VALIDATION_ERROR", "invalid email address", http.StatusBadRequest, nil)
	}
	if len(input.Password) < 6 {
		return User{}, common.NewAppError("WEAK_PASSWORD", "password must be at least 6 characters", http.StatusBadRequest, nil)
	}

	hash, err := argon2id.CreateHash(input.Password, argon2id.DefaultParams)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}

	otp, err := s.newOTP()
	if err != nil {
		return User{}, fmt.Errorf("generate otp: %w", err)
	}

	rec, err := s.store.Create(ctx, CreateParams{
		Name:         name,
		Email:        email,
		Contact:      strings.TrimSpace(input.Contact),
		ShopName:     shopName,
		ShopAddress:  shopAddress,
		PasswordHash: hash,
		OTP:          otp,
		OTPExpiresAt: s.now().Add(s.otpTTL),
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			return User{}, common.NewAppError("EMAIL_ALREADY_USED", "email is already registered", http.StatusConflict, err)
		}
		return User{}, fmt.Errorf("create user: %w", err)
	}

	obs.IncOTPIssued("register")
	if err := s.mailer.EnqueueOTP(ctx, rec.Email, rec.Name, otp, s.otpTTL); err != nil {
		return User{}, fmt.Errorf("enqueue otp mail: %w", err)
	}
	return toUser(rec), nil
}

// VerifyOTP confirms the passcode sent at registration and activates the account.
func (s *Service) VerifyOTP(ctx context.Context, email, otp string) (User, error) {
	email = normalizeEmail(email)
	otp = strings.TrimSpace(otp)
	if email == "" || otp == "" {
		return User{}, common.NewAppError("VALIDATION_ERROR", "email and otp are required", http.StatusBadRequest, nil)
	}

	rec, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return User{}, common.NewAppError("OTP_INVALID", "invalid otp", http.StatusBadRequest, nil)
		}
		return User{}, fmt.Errorf("lookup user: %w", err)
	}
	if rec.Verified {
		return toUser(rec), nil
	}
	if rec.OTP == "" || subtle.ConstantTimeCompare([]byte(rec.OTP), []byte(otp)) != 1 {
		return User{}, common.NewAppError("OTP_INVALID", "invalid otp", http.StatusBadRequest, nil)
	}
	if s.now().After(rec.OTPExpiresAt) {
		return User{}, common.NewAppError("OTP_EXPIRED", "otp has expired, request a new one", http.StatusBadRequest, nil)
	}

	if err := s.store.MarkVerified(ctx, rec.ID); err != nil {
		return User{}, fmt.Errorf("mark verified: %w", err)
	}
	rec.Verified = true
	return toUser(rec), nil
}

// ResendOTP issues a fresh passcode, subject to a per-email rate limit.
func (s *Service) ResendOTP(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return common.NewAppError("VALIDATION_ERROR", "email is required", http.StatusBadRequest, nil)
	}

	if s.resendLimiter != nil {
		allowed, _, reset, err := s.resendLimiter.Allow(ctx, "otp:"+email, s.resendWindow, s.resendMax)
		if err == nil && !allowed {
			return common.NewAppError("RATE_LIMITED", "too many otp requests, try again later", http.StatusTooManyRequests,
				nil).WithDetails(map[string]any{"retryAt": reset})
		}
	}

	rec, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Do not reveal whether the address exists.
			return nil
		}
		return fmt.Errorf("lookup user: %w", err)
	}
	if rec.Verified {
		return common.NewAppError("ALREADY_VERIFIED", "account is already verified", http.StatusConflict, nil)
	}

	otp, err := s.newOTP()
	if err != nil {
		return fmt.Errorf("generate otp: %w", err)
	}
	if err := s.store.SetOTP(ctx, rec.ID, otp, s.now().Add(s.otpTTL)); err != nil {
		return fmt.Errorf("store otp: %w", err)
	}
	obs.IncOTPIssued("resend")
	if err := s.mailer.EnqueueOTP(ctx, rec.Email, rec.Name, otp, s.otpTTL); err != nil {
		return fmt.Errorf("enqueue otp mail: %w", err)
	}
	return nil
}

// Login checks credentials and signs an access token. Remember-me extends the
// token lifetime, nothing else.
func (s *Service) Login(ctx context.Context, email, password string, rememberMe bool) (LoginResult, error) {
	email = normalizeEmail(email)
	rec, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return LoginResult{}, common.NewAppError("INVALID_CREDENTIALS", "invalid email or password", http.StatusUnauthorized, nil)
		}
		return LoginResult{}, fmt.Errorf("lookup user: %w", err)
	}

	match, err := argon2id.ComparePasswordAndHash(password, rec.PasswordHash)
	if err != nil || !match {
		return LoginResult{}, common.NewAppError("INVALID_CREDENTIALS", "invalid email or password", http.StatusUnauthorized, nil)
	}
	if !rec.Verified {
		return LoginResult{}, common.NewAppError("NOT_VERIFIED", "account is not verified, complete otp verification first", http.StatusForbidden, nil)
	}

	ttl := s.accessTTL
	if rememberMe {
		ttl = s.rememberTTL
	}
	token, expiresAt, err := s.signAccessToken(rec.ID, ttl)
	if err != nil {
		return LoginResult{}, fmt.Errorf("sign token: %w", err)
	}
	return LoginResult{User: toUser(rec), AccessToken: token, ExpiresAt: expiresAt}, nil
}

// Me returns the account for the given user identifier.
func (s *Service) Me(ctx context.Context, userID string) (User, error) {
	rec, err := s.store.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return User{}, common.NewAppError("NOT_FOUND", "user not found", http.StatusNotFound, nil)
		}
		return User{}, fmt.Errorf("lookup user: %w", err)
	}
	return toUser(rec), nil
}

// UpdateProfile overwrites the mutable profile fields.
func (s *Service) UpdateProfile(ctx context.Context, userID string, params ProfileParams) (User, error) {
	params.Name = strings.TrimSpace(params.Name)
	params.ShopName = strings.TrimSpace(params.ShopName)
	if params.Name == "" || params.ShopName == "" {
		return User{}, common.NewAppError("VALIDATION_ERROR", "name and shop name are required", http.StatusBadRequest, nil)
	}
	rec, err := s.store.UpdateProfile(ctx, userID, params)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return User{}, common.NewAppError("NOT_FOUND", "user not found", http.StatusNotFound, nil)
		}
		return User{}, fmt.Errorf("update profile: %w", err)
	}
	return toUser(rec), nil
}

// ChangePassword verifies the current password before storing a new hash.
func (s *Service) ChangePassword(ctx context.Context, userID, current, next string) error {
	if len(next) < 6 {
		return common.NewAppError("WEAK_PASSWORD", "password must be at least 6 characters", http.StatusBadRequest, nil)
	}
	rec, err := s.store.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return common.NewAppError("NOT_FOUND", "user not found", http.StatusNotFound, nil)
		}
		return fmt.Errorf("lookup user: %w", err)
	}
	match, err := argon2id.ComparePasswordAndHash(current, rec.PasswordHash)
	if err != nil || !match {
		return common.NewAppError("INVALID_CREDENTIALS", "current password is incorrect", http.StatusUnauthorized, nil)
	}
	hash, err := argon2id.CreateHash(next, argon2id.DefaultParams)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.store.UpdatePassword(ctx, userID, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// ParseAccessToken validates an access token and returns the subject (user ID).
func (s *Service) ParseAccessToken(token string) (string, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return "", common.NewAppError("UNAUTHORIZED", "missing token", http.StatusUnauthorized, nil)
	}
	algorithm, err := extractTokenAlgorithm(trimmed)
	if err != nil {
		return "", common.NewAppError("UNAUTHORIZED", "invalid token", http.StatusUnauthorized, err)
	}
	if s.validator.Algorithm != "" && algorithm != s.validator.Algorithm {
		return "", common.NewAppError("UNAUTHORIZED", "invalid token", http.StatusUnauthorized, fmt.Errorf("unexpected token algorithm %s", algorithm))
	}
	parsed, err := jwt.ParseString(trimmed, jwt.WithKey(algorithm, s.secret))
	if err != nil {
		return "", common.NewAppError("UNAUTHORIZED", "invalid token", http.StatusUnauthorized, err)
	}
	if err := s.validator.Validate(parsed, algorithm, s.now()); err != nil {
		return "", common.NewAppError("UNAUTHORIZED", "invalid token", http.StatusUnauthorized, err)
	}
	return parsed.Subject(), nil
}

func (s *Service) signAccessToken(userID string, ttl time.Duration) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(ttl)
	builder := jwt.NewBuilder().
		Subject(userID).
		Issuer(s.issuer).
		Audience([]string{s.audience}).
		IssuedAt(now).
		NotBefore(now.Add(-s.clockSkew)).
		Expiration(expiresAt)
	token, err := builder.Build()
	if err != nil {
		return "", time.Time{}, err
	}
	signed, err := jwt.Sign(token, jwt.WithKey(s.signer, s.secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return string(signed), expiresAt, nil
}

func extractTokenAlgorithm(token string) (jwa.SignatureAlgorithm, error) {
	message, err := jws.ParseString(token)
	if err != nil {
		return "", err
	}
	signatures := message.Signatures()
	if len(signatures) == 0 {
		return "", errors.New("auth: token contains no signatures")
	}
	var algorithm jwa.SignatureAlgorithm
	for _, sig := range signatures {
		headers := sig.ProtectedHeaders()
		if headers == nil {
			return "", errors.New("auth: token missing protected headers")
		}
		alg := headers.Algorithm()
		if alg == "" {
			return "", errors.New("auth: token missing algorithm")
		}
		if alg == jwa.NoSignature {
			return "", errors.New("auth: token uses none algorithm")
		}
		if algorithm == "" {
			algorithm = alg
		} else if algorithm != alg {
			return "", errors.New("auth: mixed token algorithms detected")
		}
	}
	return algorithm, nil
}

// generateOTP draws a uniform six-digit code from crypto/rand.
func generateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func toUser(rec Record) User {
	return User{
		ID:          rec.ID,
		Name:        rec.Name,
		Email:       rec.Email,
		Contact:     rec.Contact,
		ShopName:    rec.ShopName,
		ShopAddress: rec.ShopAddress,
		Verified:    rec.Verified,
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
	}
}

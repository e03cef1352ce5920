package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scoopstack/backend-scoopstack/internal/common"
)

func newTestRouter(t *testing.T) (*chi.Mux, *recordingMailer) {
	t.Helper()
	svc, _, mailer := newTestService(t)
	handler := &Handler{Service: svc}
	middleware := Middleware{Service: svc}

	r := chi.NewRouter()
	r.Post("/auth/register", handler.Register)
	r.Post("/auth/verify-otp", handler.VerifyOTP)
	r.Post("/auth/resend-otp", handler.ResendOTP)
	r.Post("/auth/login", handler.Login)
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		r.Get("/auth/me", handler.Me)
		r.Patch("/auth/me", handler.UpdateProfile)
		r.Post("/auth/password/change", handler.ChangePassword)
	})
	return r, mailer
}

func postJSON(t *testing.T, router http.Handler, path string, payload any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRegisterEndpointReturnsAccepted(t *testing.T) {
	router, mailer := newTestRouter(t)

	rec := postJSON(t, router, "/auth/register", map[string]any{
		"name":        "Ravi Kumar",
		"email":       "ravi@example.com",
		"shopName":    "Kumar Ice Creams",
		"shopAddress": "12 MG Road, Pune",
		"password":    "s3cret-pass",
	}, nil)

	require.Equal(t, http.StatusAccepted, rec.Code)
	var body struct {
		Data User `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Data.Verified)
	assert.NotEmpty(t, mailer.last().OTP)
}

func TestRegisterEndpointRejectsInvalidPayload(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/auth/register", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoginFlowThroughEndpoints(t *testing.T) {
	router, mailer := newTestRouter(t)

	rec := postJSON(t, router, "/auth/register", map[string]any{
		"name":        "Ravi Kumar",
		"email":       "ravi@example.com",
		"shopName":    "Kumar Ice Creams",
		"shopAddress": "12 MG Road, Pune",
		"password":    "s3cret-pass",
	}, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = postJSON(t, router, "/auth/verify-otp", map[string]string{
		"email": "ravi@example.com",
		"otp":   mailer.last().OTP,
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = postJSON(t, router, "/auth/login", map[string]any{
		"email":    "ravi@example.com",
		"password": "s3cret-pass",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data LoginResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(t, body.Data.AccessToken)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+body.Data.AccessToken)
	meRec := httptest.NewRecorder()
	router.ServeHTTP(meRec, req)
	require.Equal(t, http.StatusOK, meRec.Code)

	var me struct {
		Data User `json:"data"`
	}
	require.NoError(t, json.Unmarshal(meRec.Body.Bytes(), &me))
	assert.Equal(t, "ravi@example.com", me.Data.Email)
	assert.True(t, me.Data.Verified)
}

func TestRequireAuthRejectsMissingToken(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAuthRejectsGarbageToken(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthenticateMiddlewarePassesThroughWithoutToken(t *testing.T) {
	svc, _, _ := newTestService(t)
	middleware := Middleware{Service: svc}

	var hadSession bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hadSession = common.UserID(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	middleware.Authenticate(next).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, hadSession)
}

func TestSessionContextRoundTrip(t *testing.T) {
	ctx := common.WithSession(context.Background(), common.Session{UserID: "abc"})
	id, ok := common.UserID(ctx)
	require.True(t, ok)
	assert.Equal(t, "abc", id)
}

package auth

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scoopstack/backend-scoopstack/internal/common"
	"github.com/scoopstack/backend-scoopstack/internal/ratelimit"
)

type memStore struct {
	mu    sync.Mutex
	users map[string]Record
}

func newMemStore() *memStore {
	return &memStore{users: make(map[string]Record)}
}

func (m *memStore) Create(_ context.Context, params CreateParams) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == params.Email {
			return Record{}, ErrDuplicateEmail
		}
	}
	now := time.Now()
	rec := Record{
		ID:           uuid.NewString(),
		Name:         params.Name,
		Email:        params.Email,
		Contact:      params.Contact,
		ShopName:     params.ShopName,
		ShopAddress:  params.ShopAddress,
		PasswordHash: params.PasswordHash,
		OTP:          params.OTP,
		OTPExpiresAt: params.OTPExpiresAt,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	m.users[rec.ID] = rec
	return rec, nil
}

func (m *memStore) GetByEmail(_ context.Context, email string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return Record{}, ErrNotFound
}

func (m *memStore) GetByID(_ context.Context, id string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return u, nil
}

func (m *memStore) SetOTP(_ context.Context, id, otp string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.OTP = otp
	u.OTPExpiresAt = expiresAt
	m.users[id] = u
	return nil
}

func (m *memStore) MarkVerified(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.Verified = true
	u.OTP = ""
	u.OTPExpiresAt = time.Time{}
	m.users[id] = u
	return nil
}

func (m *memStore) UpdateProfile(_ context.Context, id string, params ProfileParams) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	u.Name = params.Name
	u.Contact = params.Contact
	u.ShopName = params.ShopName
	u.ShopAddress = params.ShopAddress
	m.users[id] = u
	return u, nil
}

func (m *memStore) UpdatePassword(_ context.Context, id, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = hash
	m.users[id] = u
	return nil
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []sentOTP
}

type sentOTP struct {
	Email string
	Name  string
	OTP   string
}

func (r *recordingMailer) EnqueueOTP(_ context.Context, email, name, otp string, _ time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentOTP{Email: email, Name: name, OTP: otp})
	return nil
}

func (r *recordingMailer) last() sentOTP {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sent) == 0 {
		return sentOTP{}
	}
	return r.sent[len(r.sent)-1]
}

func newTestService(t *testing.T) (*Service, *memStore, *recordingMailer) {
	t.Helper()
	store := newMemStore()
	mailer := &recordingMailer{}
	svc := NewService(ServiceOptions{
		Store:     store,
		Mailer:    mailer,
		Secret:    []byte("test-secret-test-secret-test-secret"),
		AccessTTL: 12 * time.Hour,
		OTPTTL:    10 * time.Minute,
	})
	return svc, store, mailer
}

func registerInput() RegisterInput {
	return RegisterInput{
		Name:        "Ravi Kumar",
		Email:       "ravi@example.com",
		Contact:     "9876543210",
		ShopName:    "Kumar Ice Creams",
		ShopAddress: "12 MG Road, Pune",
		Password:    "s3cret-pass",
	}
}

func TestRegisterIssuesSixDigitOTP(t *testing.T) {
	svc, _, mailer := newTestService(t)

	user, err := svc.Register(context.Background(), registerInput())
	require.NoError(t, err)
	assert.False(t, user.Verified)
	assert.Equal(t, "ravi@example.com", user.Email)

	sent := mailer.last()
	assert.Equal(t, "ravi@example.com", sent.Email)
	assert.Regexp(t, regexp.MustCompile(`^\d{6}$`), sent.OTP)
	code := sent.OTP
	assert.GreaterOrEqual(t, code, "100000")
	assert.LessOrEqual(t, code, "999999")
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Register(context.Background(), registerInput())
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), registerInput())
	appErr, ok := common.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, "EMAIL_ALREADY_USED", appErr.Code)
	assert.Equal(t, 409, appErr.HTTPStatus)
}

func TestRegisterRejectsWeakPassword(t *testing.T) {
	svc, _, _ := newTestService(t)

	input := registerInput()
	input.Password = "chill"
	_, err := svc.Register(context.Background(), input)
	appErr, ok := common.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, "WEAK_PASSWORD", appErr.Code)

	// Six characters is the minimum and passes.
	input.Password = "frozen"
	_, err = svc.Register(context.Background(), input)
	require.NoError(t, err)
}

func TestVerifyOTPActivatesAccount(t *testing.T) {
	svc, _, mailer := newTestService(t)

	_, err := svc.Register(context.Background(), registerInput())
	require.NoError(t, err)

	user, err := svc.VerifyOTP(context.Background(), "ravi@example.com", mailer.last().OTP)
	require.NoError(t, err)
	assert.True(t, user.Verified)

	// Verifying again after activation is a no-op success.
	user, err = svc.VerifyOTP(context.Background(), "ravi@example.com", "000000")
	require.NoError(t, err)
	assert.True(t, user.Verified)
}

func TestVerifyOTPRejectsWrongCode(t *testing.T) {
	svc, _, mailer := newTestService(t)

	_, err := svc.Register(context.Background(), registerInput())
	require.NoError(t, err)

	wrong := "000000"
	if mailer.last().OTP == wrong {
		wrong = "000001"
	}
	_, err = svc.VerifyOTP(context.Background(), "ravi@example.com", wrong)
	appErr, ok := common.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, "OTP_INVALID", appErr.Code)
}

func TestVerifyOTPRejectsExpiredCode(t *testing.T) {
	svc, _, mailer := newTestService(t)

	_, err := svc.Register(context.Background(), registerInput())
	require.NoError(t, err)

	svc.WithNow(func() time.Time { return time.Now().Add(11 * time.Minute) })

	_, err = svc.VerifyOTP(context.Background(), "ravi@example.com", mailer.last().OTP)
	appErr, ok := common.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, "OTP_EXPIRED", appErr.Code)
}

func TestResendOTPReplacesCode(t *testing.T) {
	svc, store, mailer := newTestService(t)
	svc.WithOTPSource(sequenceOTP("111111", "222222"))

	_, err := svc.Register(context.Background(), registerInput())
	require.NoError(t, err)
	require.Equal(t, "111111", mailer.last().OTP)

	require.NoError(t, svc.ResendOTP(context.Background(), "ravi@example.com"))
	assert.Equal(t, "222222", mailer.last().OTP)

	rec, err := store.GetByEmail(context.Background(), "ravi@example.com")
	require.NoError(t, err)
	assert.Equal(t, "222222", rec.OTP)
}

func TestResendOTPSilentForUnknownEmail(t *testing.T) {
	svc, _, mailer := newTestService(t)

	require.NoError(t, svc.ResendOTP(context.Background(), "ghost@example.com"))
	assert.Empty(t, mailer.sent)
}

func TestResendOTPRejectsVerifiedAccount(t *testing.T) {
	svc, _, mailer := newTestService(t)

	_, err := svc.Register(context.Background(), registerInput())
	require.NoError(t, err)
	_, err = svc.VerifyOTP(context.Background(), "ravi@example.com", mailer.last().OTP)
	require.NoError(t, err)

	err = svc.ResendOTP(context.Background(), "ravi@example.com")
	appErr, ok := common.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, "ALREADY_VERIFIED", appErr.Code)
}

func TestResendOTPRateLimited(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := newMemStore()
	mailer := &recordingMailer{}
	svc := NewService(ServiceOptions{
		Store:         store,
		Mailer:        mailer,
		Secret:        []byte("test-secret-test-secret-test-secret"),
		ResendLimiter: &ratelimit.Limiter{Client: client, Prefix: "rl:test"},
		ResendWindow:  time.Hour,
		ResendMax:     2,
	})

	_, err := svc.Register(context.Background(), registerInput())
	require.NoError(t, err)

	require.NoError(t, svc.ResendOTP(context.Background(), "ravi@example.com"))
	require.NoError(t, svc.ResendOTP(context.Background(), "ravi@example.com"))

	err = svc.ResendOTP(context.Background(), "ravi@example.com")
	appErr, ok := common.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, "RATE_LIMITED", appErr.Code)
	assert.Equal(t, 429, appErr.HTTPStatus)
}

func TestLoginRequiresVerification(t *testing.T) {
	svc, _, mailer := newTestService(t)

	_, err := svc.Register(context.Background(), registerInput())
	require.NoError(t, err)

	_, err = svc.Login(context.Background(), "ravi@example.com", "s3cret-pass", false)
	appErr, ok := common.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, "NOT_VERIFIED", appErr.Code)

	_, err = svc.VerifyOTP(context.Background(), "ravi@example.com", mailer.last().OTP)
	require.NoError(t, err)

	result, err := svc.Login(context.Background(), "ravi@example.com", "s3cret-pass", false)
	require.NoError(t, err)
	assert.NotEmpty(t, result.AccessToken)
	assert.Equal(t, "ravi@example.com", result.User.Email)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc, _, mailer := newTestService(t)

	_, err := svc.Register(context.Background(), registerInput())
	require.NoError(t, err)
	_, err = svc.VerifyOTP(context.Background(), "ravi@example.com", mailer.last().OTP)
	require.NoError(t, err)

	_, err = svc.Login(context.Background(), "ravi@example.com", "wrong-pass", false)
	appErr, ok := common.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, "INVALID_CREDENTIALS", appErr.Code)

	_, err = svc.Login(context.Background(), "nobody@example.com", "whatever", false)
	appErr, ok = common.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, "INVALID_CREDENTIALS", appErr.Code)
}

func TestLoginRememberMeExtendsExpiry(t *testing.T) {
	svc, _, mailer := newTestService(t)

	_, err := svc.Register(context.Background(), registerInput())
	require.NoError(t, err)
	_, err = svc.VerifyOTP(context.Background(), "ravi@example.com", mailer.last().OTP)
	require.NoError(t, err)

	short, err := svc.Login(context.Background(), "ravi@example.com", "s3cret-pass", false)
	require.NoError(t, err)
	long, err := svc.Login(context.Background(), "ravi@example.com", "s3cret-pass", true)
	require.NoError(t, err)
	assert.True(t, long.ExpiresAt.After(short.ExpiresAt.Add(24*time.Hour)))
}

func TestParseAccessTokenRoundTrip(t *testing.T) {
	svc, _, mailer := newTestService(t)

	_, err := svc.Register(context.Background(), registerInput())
	require.NoError(t, err)
	user, err := svc.VerifyOTP(context.Background(), "ravi@example.com", mailer.last().OTP)
	require.NoError(t, err)

	result, err := svc.Login(context.Background(), "ravi@example.com", "s3cret-pass", false)
	require.NoError(t, err)

	subject, err := svc.ParseAccessToken(result.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, subject)

	_, err = svc.ParseAccessToken(result.AccessToken + "x")
	require.Error(t, err)

	_, err = svc.ParseAccessToken("")
	appErr, ok := common.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, "UNAUTHORIZED", appErr.Code)
}

func TestChangePasswordRequiresCurrent(t *testing.T) {
	svc, _, mailer := newTestService(t)

	user, err := svc.Register(context.Background(), registerInput())
	require.NoError(t, err)
	_, err = svc.VerifyOTP(context.Background(), "ravi@example.com", mailer.last().OTP)
	require.NoError(t, err)

	err = svc.ChangePassword(context.Background(), user.ID, "wrong-pass", "new-password")
	appErr, ok := common.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, "INVALID_CREDENTIALS", appErr.Code)

	require.NoError(t, svc.ChangePassword(context.Background(), user.ID, "s3cret-pass", "new-password"))

	_, err = svc.Login(context.Background(), "ravi@example.com", "new-password", false)
	require.NoError(t, err)
}

func TestUpdateProfile(t *testing.T) {
	svc, _, _ := newTestService(t)

	user, err := svc.Register(context.Background(), registerInput())
	require.NoError(t, err)

	updated, err := svc.UpdateProfile(context.Background(), user.ID, ProfileParams{
		Name:        "Ravi K",
		Contact:     "9000000000",
		ShopName:    "Kumar Frozen Treats",
		ShopAddress: "14 MG Road, Pune",
	})
	require.NoError(t, err)
	assert.Equal(t, "Kumar Frozen Treats", updated.ShopName)

	_, err = svc.UpdateProfile(context.Background(), user.ID, ProfileParams{Name: "  ", ShopName: "X"})
	appErr, ok := common.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, "VALIDATION_ERROR", appErr.Code)
}

func sequenceOTP(codes ...string) func() (string, error) {
	i := 0
	return func() (string, error) {
		code := codes[len(codes)-1]
		if i < len(codes) {
			code = codes[i]
			i++
		}
		return code, nil
	}
}

func TestRegisterEmailNormalized(t *testing.T) {
	svc, store, _ := newTestService(t)

	input := registerInput()
	input.Email = "  Ravi@Example.COM "
	user, err := svc.Register(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, "ravi@example.com", user.Email)

	rec, err := store.GetByEmail(context.Background(), "ravi@example.com")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(rec.PasswordHash, "$argon2id$"))
}

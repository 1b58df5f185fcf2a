package service

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"authd/internal/app/model/db"
	"authd/internal/app/model/domain"
	"authd/internal/app/repo"
	"authd/internal/metrics"
	"authd/internal/utils"
)

// In-memory fakes for the three repositories and the email sender. They
// implement the same contracts as the bun-backed implementations,
// including nil-on-missing lookups and the unique-violation sentinels.

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]*domain.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[uuid.UUID]*domain.User)}
}

func (r *fakeUserRepo) Create(ctx context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if u.Email == user.Email {
			return repo.ErrEmailExists
		}
		if u.Phone == user.Phone {
			return repo.ErrPhoneExists
		}
	}

	clone := *user
	r.users[user.ID] = &clone
	return nil
}

func (r *fakeUserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if u.Email == email {
			clone := *u
			return &clone, nil
		}
	}
	return nil, nil
}

func (r *fakeUserRepo) GetByPhone(ctx context.Context, phone string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if u.Phone == phone {
			clone := *u
			return &clone, nil
		}
	}
	return nil, nil
}

func (r *fakeUserRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if u, ok := r.users[id]; ok {
		clone := *u
		return &clone, nil
	}
	return nil, nil
}

func (r *fakeUserRepo) GetByEmailAndResetCode(ctx context.Context, email, code string, now time.Time) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if u.Email != email || u.ResetCode == nil || u.ResetCodeExpiresAt == nil {
			continue
		}
		if *u.ResetCode == code && u.ResetCodeExpiresAt.After(now) {
			clone := *u
			return &clone, nil
		}
	}
	return nil, nil
}

func (r *fakeUserRepo) EmailExists(ctx context.Context, email string) (bool, error) {
	u, _ := r.GetByEmail(ctx, email)
	return u != nil, nil
}

func (r *fakeUserRepo) PhoneExists(ctx context.Context, phone string) (bool, error) {
	u, _ := r.GetByPhone(ctx, phone)
	return u != nil, nil
}

func (r *fakeUserRepo) UpdatePassword(ctx context.Context, userID uuid.UUID, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if u, ok := r.users[userID]; ok {
		u.PasswordHash = passwordHash
		u.UpdatedAt = time.Now()
	}
	return nil
}

func (r *fakeUserRepo) SetResetCode(ctx context.Context, userID uuid.UUID, code string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if u, ok := r.users[userID]; ok {
		u.ResetCode = &code
		u.ResetCodeExpiresAt = &expiresAt
	}
	return nil
}

func (r *fakeUserRepo) ClearResetCode(ctx context.Context, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if u, ok := r.users[userID]; ok {
		u.ResetCode = nil
		u.ResetCodeExpiresAt = nil
	}
	return nil
}

type fakeVerificationRepo struct {
	mu      sync.Mutex
	records map[string]*db.EmailVerification
}

func newFakeVerificationRepo() *fakeVerificationRepo {
	return &fakeVerificationRepo{records: make(map[string]*db.EmailVerification)}
}

func (r *fakeVerificationRepo) Upsert(ctx context.Context, record *db.EmailVerification) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	clone := *record
	clone.Attempts = 0
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now()
	}
	r.records[record.Email] = &clone
	return nil
}

func (r *fakeVerificationRepo) GetByEmail(ctx context.Context, email string) (*db.EmailVerification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec, ok := r.records[email]; ok {
		clone := *rec
		return &clone, nil
	}
	return nil, nil
}

func (r *fakeVerificationRepo) Delete(ctx context.Context, email string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.records, email)
	return nil
}

func (r *fakeVerificationRepo) IncrementAttempts(ctx context.Context, email string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec, ok := r.records[email]; ok {
		rec.Attempts++
	}
	return nil
}

func (r *fakeVerificationRepo) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var deleted int64
	for email, rec := range r.records {
		if rec.ExpiresAt.Before(before) {
			delete(r.records, email)
			deleted++
		}
	}
	return deleted, nil
}

// setExpiry rewrites the stored expiry, letting tests move a code back in
// time without sleeping.
func (r *fakeVerificationRepo) setExpiry(email string, expiresAt time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec, ok := r.records[email]; ok {
		rec.ExpiresAt = expiresAt
	}
}

type refreshTokenRow struct {
	userID    uuid.UUID
	expiresAt time.Time
}

type fakeRefreshTokenRepo struct {
	mu     sync.Mutex
	tokens map[string]refreshTokenRow
}

func newFakeRefreshTokenRepo() *fakeRefreshTokenRepo {
	return &fakeRefreshTokenRepo{tokens: make(map[string]refreshTokenRow)}
}

func (r *fakeRefreshTokenRepo) Create(ctx context.Context, token string, userID uuid.UUID, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tokens[token] = refreshTokenRow{userID: userID, expiresAt: expiresAt}
	return nil
}

func (r *fakeRefreshTokenRepo) Exists(ctx context.Context, token string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.tokens[token]
	return ok && row.expiresAt.After(now), nil
}

func (r *fakeRefreshTokenRepo) DeleteAllForUser(ctx context.Context, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for token, row := range r.tokens {
		if row.userID == userID {
			delete(r.tokens, token)
		}
	}
	return nil
}

func (r *fakeRefreshTokenRepo) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var deleted int64
	for token, row := range r.tokens {
		if row.expiresAt.Before(before) {
			delete(r.tokens, token)
			deleted++
		}
	}
	return deleted, nil
}

func (r *fakeRefreshTokenRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.tokens)
}

type sentEmail struct {
	To       string
	Code     string
	Template string
}

type fakeEmailSender struct {
	mu   sync.Mutex
	sent []sentEmail
	fail bool
}

func (f *fakeEmailSender) SendVerificationCode(ctx context.Context, to, code string, ttl time.Duration) error {
	return f.record(to, code, "registration_code")
}

func (f *fakeEmailSender) SendResetCode(ctx context.Context, to, code string, ttl time.Duration) error {
	return f.record(to, code, "password_reset_code")
}

func (f *fakeEmailSender) record(to, code, template string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.fail {
		return errEmailServiceDown
	}
	f.sent = append(f.sent, sentEmail{To: to, Code: code, Template: template})
	return nil
}

func (f *fakeEmailSender) lastCode() string {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.sent) == 0 {
		return ""
	}
	return f.sent[len(f.sent)-1].Code
}

func (f *fakeEmailSender) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.sent)
}

var errEmailServiceDown = errors.New("email service down")

type testEnv struct {
	svc    AuthService
	users  *fakeUserRepo
	codes  *fakeVerificationRepo
	tokens *fakeRefreshTokenRepo
	email  *fakeEmailSender
	jwt    *utils.JWTManager
	cfg    *Config
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	env := &testEnv{
		users:  newFakeUserRepo(),
		codes:  newFakeVerificationRepo(),
		tokens: newFakeRefreshTokenRepo(),
		email:  &fakeEmailSender{},
		jwt:    utils.NewJWTManager("access-secret", "refresh-secret", 15*time.Minute, 7*24*time.Hour),
		cfg: &Config{
			OTPLength:      6,
			OTPTTL:         10 * time.Minute,
			ResendCooldown: time.Minute,
		},
	}

	env.svc = NewAuthService(
		env.users,
		env.codes,
		env.tokens,
		env.email,
		env.jwt,
		nil, // throttle disabled; the limiter fails open when absent
		metrics.New(prometheus.NewRegistry()),
		logger,
		env.cfg,
	)

	return env
}

func registerRequest(email, phone string) *RegisterRequest {
	return &RegisterRequest{
		FirstName:   "Alice",
		LastName:    "Smith",
		Phone:       phone,
		Email:       email,
		DateOfBirth: "1990-04-12",
		Password:    "Sup3r!secret",
	}
}

// registerAndVerify drives the full registration state machine and returns
// the created user and initial session.
func registerAndVerify(t *testing.T, env *testEnv, email, phone string) (*domain.User, *domain.TokenPair) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, env.svc.Register(ctx, registerRequest(email, phone)))

	code := env.email.lastCode()
	require.Len(t, code, 6)

	req := registerRequest(email, phone)
	user, tokens, err := env.svc.VerifyRegistration(ctx, &VerifyRegistrationRequest{
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Phone:       req.Phone,
		Email:       req.Email,
		DateOfBirth: req.DateOfBirth,
		Password:    req.Password,
		OTP:         code,
	})
	require.NoError(t, err)
	require.NotNil(t, user)
	require.NotNil(t, tokens)

	return user, tokens
}

package tsauth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type mockUserStore struct {
	mu         sync.Mutex
	byEmail    map[string]User
	byUsername map[string]string

	findErr     error
	createErr   error
	beforeStore func()

	findCalls   int
	createCalls int
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{
		byEmail:    map[string]User{},
		byUsername: map[string]string{},
	}
}

func (m *mockUserStore) FindByEmail(ctx context.Context, email string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.findCalls++
	if m.findErr != nil {
		return User{}, m.findErr
	}
	user, ok := m.byEmail[email]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return user, nil
}

func (m *mockUserStore) FindByUsername(ctx context.Context, username string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.findErr != nil {
		return User{}, m.findErr
	}
	email, ok := m.byUsername[username]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return m.byEmail[email], nil
}

func (m *mockUserStore) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.findErr != nil {
		return false, m.findErr
	}
	_, ok := m.byEmail[email]
	return ok, nil
}

func (m *mockUserStore) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.findErr != nil {
		return false, m.findErr
	}
	_, ok := m.byUsername[username]
	return ok, nil
}

func (m *mockUserStore) Create(ctx context.Context, user User) (User, error) {
	if m.beforeStore != nil {
		m.beforeStore()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.createCalls++
	if m.createErr != nil {
		return User{}, m.createErr
	}
	if _, ok := m.byEmail[user.Email]; ok {
		return User{}, ErrDuplicateUser
	}
	if user.Username != "" {
		if _, ok := m.byUsername[user.Username]; ok {
			return User{}, fmt.Errorf("%w: username", ErrDuplicateUser)
		}
		m.byUsername[user.Username] = user.Email
	}
	m.byEmail[user.Email] = user
	return user, nil
}

func (m *mockUserStore) put(user User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byEmail[user.Email] = user
	if user.Username != "" {
		m.byUsername[user.Username] = user.Email
	}
}

func (m *mockUserStore) remove(email string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byEmail, email)
}

func (m *mockUserStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byEmail)
}

type sentOTP struct {
	email    string
	code     string
	validity time.Duration
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentOTP
	err  error
}

func (f *fakeMailer) SendOTP(ctx context.Context, email, code string, validity time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentOTP{email: email, code: code, validity: validity})
	return nil
}

func (f *fakeMailer) lastCode(t *testing.T, email string) string {
	t.Helper()

	code, ok := f.codeFor(email)
	if !ok {
		t.Fatalf("no code mailed to %s", email)
	}
	return code
}

// codeFor returns the newest code mailed to email. Safe to call from
// goroutines other than the test's.
func (f *fakeMailer) codeFor(email string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.sent) - 1; i >= 0; i-- {
		if f.sent[i].email == email {
			return f.sent[i].code, true
		}
	}
	return "", false
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func testConfig() Config {
	cfg := defaultConfig()
	cfg.JWT.Secret = append([]byte(nil), testSecret...)
	cfg.JWT.TTL = time.Hour
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Metrics.Enabled = true
	return cfg
}

type testEngine struct {
	engine *Engine
	users  *mockUserStore
	mailer *fakeMailer
	clock  *fakeClock
	mr     *miniredis.Miniredis
	rdb    *redis.Client
}

func newTestEngine(t *testing.T, mutate func(*Config)) *testEngine {
	t.Helper()

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	mr, rdb := newTestRedis(t)
	users := newMockUserStore()
	mailer := &fakeMailer{}
	clock := newFakeClock()

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserStore(users).
		WithMailer(mailer).
		WithClock(clock.Now).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testEngine{
		engine: engine,
		users:  users,
		mailer: mailer,
		clock:  clock,
		mr:     mr,
		rdb:    rdb,
	}
}

// verifiedEmail runs request and verify so the email is ready for Signup.
func (te *testEngine) verifiedEmail(t *testing.T, email string) {
	t.Helper()

	ctx := context.Background()
	if err := te.engine.RequestCode(ctx, email); err != nil {
		t.Fatalf("RequestCode failed: %v", err)
	}
	ok, err := te.engine.VerifyCode(ctx, email, te.mailer.lastCode(t, email))
	if err != nil || !ok {
		t.Fatalf("VerifyCode failed: ok=%v err=%v", ok, err)
	}
}

func (te *testEngine) seedLocalUser(t *testing.T, email, username, secret string) User {
	t.Helper()

	hash, err := te.engine.hasher.Hash(secret)
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	user := User{
		ID:            "u-" + strings.SplitN(email, "@", 2)[0],
		Name:          "Seeded",
		Username:      username,
		Email:         email,
		PasswordHash:  hash,
		Roles:         []string{"ROLE_USER"},
		AuthProvider:  ProviderLocal,
		EmailVerified: true,
	}
	te.users.put(user)
	return user
}

func wrongCode(code string) string {
	if code == "000000" {
		return "000001"
	}
	return "000000"
}

var errBackendDown = errors.New("connection refused")

package gate

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/BradenHooton/libgate/internal/apiclient"
	"github.com/BradenHooton/libgate/internal/clock"
	"github.com/BradenHooton/libgate/internal/kv"
	"github.com/BradenHooton/libgate/pkg/logger"
)

var (
	testStart    = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	errTransport = errors.New("dial tcp: connection refused")
	errRejected  = &apiclient.APIError{StatusCode: http.StatusUnauthorized, Code: "unauthorized", Message: "Invalid credentials"}
)

// MockAPI implements Authenticator and SessionAPI. Its call counters are safe
// for concurrent use.
type MockAPI struct {
	LoginFunc           func(ctx context.Context, email, password string) (*apiclient.LoginResult, error)
	VerifyTwoFactorFunc func(ctx context.Context, userID, code string) (*apiclient.TokenResult, error)
	MeFunc              func(ctx context.Context, token string) (*apiclient.Profile, error)
	LogoutFunc          func(ctx context.Context, token string) error
	SetTwoFactorFunc    func(ctx context.Context, token string, enable bool) (*apiclient.MessageResult, error)

	mu          sync.Mutex
	LoginCalls  int
	VerifyCalls int
	MeCalls     int
	LogoutCalls int
}

func (m *MockAPI) count(n *int) {
	m.mu.Lock()
	*n++
	m.mu.Unlock()
}

func (m *MockAPI) Calls() (login, verify, me, logout int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.LoginCalls, m.VerifyCalls, m.MeCalls, m.LogoutCalls
}

func (m *MockAPI) Login(ctx context.Context, email, password string) (*apiclient.LoginResult, error) {
	m.count(&m.LoginCalls)
	if m.LoginFunc == nil {
		return nil, errRejected
	}
	return m.LoginFunc(ctx, email, password)
}

func (m *MockAPI) VerifyTwoFactor(ctx context.Context, userID, code string) (*apiclient.TokenResult, error) {
	m.count(&m.VerifyCalls)
	if m.VerifyTwoFactorFunc == nil {
		return nil, &apiclient.APIError{StatusCode: http.StatusUnauthorized}
	}
	return m.VerifyTwoFactorFunc(ctx, userID, code)
}

func (m *MockAPI) Me(ctx context.Context, token string) (*apiclient.Profile, error) {
	m.count(&m.MeCalls)
	if m.MeFunc == nil {
		return &apiclient.Profile{ID: "u-1", Name: "Ada", Email: "ada@library.org", Role: "member"}, nil
	}
	return m.MeFunc(ctx, token)
}

func (m *MockAPI) Logout(ctx context.Context, token string) error {
	m.count(&m.LogoutCalls)
	if m.LogoutFunc == nil {
		return nil
	}
	return m.LogoutFunc(ctx, token)
}

func (m *MockAPI) SetTwoFactor(ctx context.Context, token string, enable bool) (*apiclient.MessageResult, error) {
	if m.SetTwoFactorFunc == nil {
		return &apiclient.MessageResult{Message: "ok"}, nil
	}
	return m.SetTwoFactorFunc(ctx, token, enable)
}

// acceptPassword makes Login succeed for one password and reject the rest.
func acceptPassword(good string, result *apiclient.LoginResult) func(context.Context, string, string) (*apiclient.LoginResult, error) {
	return func(_ context.Context, _, password string) (*apiclient.LoginResult, error) {
		if password != good {
			return nil, errRejected
		}
		return result, nil
	}
}

type fixture struct {
	api      *MockAPI
	backend  *kv.Memory
	clock    *clock.Fake
	throttle *ThrottleStore
	session  *SessionManager
	gate     *Gate
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithBackend(t, kv.NewMemory(), clock.NewFake(testStart))
}

func newFixtureWithBackend(t *testing.T, backend *kv.Memory, clk *clock.Fake) *fixture {
	t.Helper()
	log := logger.Discard()
	api := &MockAPI{}
	throttle := NewThrottleStore(backend, clk, log)
	session := NewSessionManager(api, backend, log)
	return &fixture{
		api:      api,
		backend:  backend,
		clock:    clk,
		throttle: throttle,
		session:  session,
		gate:     New(api, throttle, session, clk, log),
	}
}

func (f *fixture) failTimes(t *testing.T, identifier string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if _, err := f.gate.Submit(context.Background(), identifier, "wrong"); err != nil {
			t.Fatalf("submit %d: %v", i+1, err)
		}
	}
}

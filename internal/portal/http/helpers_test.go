package http_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/estatevault/portal/internal/portal/domain"
	portalhttp "github.com/estatevault/portal/internal/portal/http"
	"github.com/estatevault/portal/internal/portal/realtime"
	"github.com/estatevault/portal/internal/portal/service"
	"github.com/estatevault/portal/internal/portal/store/drivers/sqlite"
	"github.com/estatevault/portal/pkg/cryptox"
	"github.com/estatevault/portal/pkg/idx"
	"github.com/estatevault/portal/pkg/jwtx"
	"github.com/estatevault/portal/pkg/metricsx"
	"github.com/estatevault/portal/pkg/portalsdk"
	"github.com/estatevault/portal/pkg/slogx"
	"github.com/estatevault/portal/pkg/totpx"
)

const testPassword = "correct horse battery staple"

var totpNow = time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)

type env struct {
	srv      *httptest.Server
	client   *portalsdk.Client
	store    *sqlite.Store
	totp     *totpx.Engine
	metrics  *metricsx.Metrics
	registry *realtime.Registry
	router   *portalhttp.Router
}

type envOption func(*portalhttp.Router)

func newEnv(t *testing.T, opts ...envOption) *env {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	codec, err := jwtx.NewCodec(jwtx.Config{
		AccessSecret:  []byte("access-secret-for-tests"),
		RefreshSecret: []byte("refresh-secret-for-tests"),
		Issuer:        "estate-portal",
	})
	require.NoError(t, err)

	engine := totpx.New("estate-portal", totpx.DefaultWindow)
	engine.Now = func() time.Time { return totpNow }

	logger := slogx.Discard()
	reg := realtime.NewRegistry(logger)
	twoFactor := &service.TwoFactorService{Store: st, TOTP: engine}
	relay := &service.RelayService{
		Store:     st,
		Directory: service.NewAdminDirectory(st.Users(), time.Minute),
		Notifier:  reg,
	}

	e := &env{store: st, totp: engine, metrics: metricsx.New(), registry: reg}

	r := portalhttp.NewRouter(codec, "test", st, logger)
	r.SessionService = &service.SessionService{Store: st, Codec: codec, TwoFactor: twoFactor, ChallengeMaxAttempts: 3}
	r.TwoFactorService = twoFactor
	r.RelayService = relay
	r.Registry = reg
	r.Realtime = realtime.NewHandler(reg, relay, codec, nil)
	r.Metrics = e.metrics
	r.CookieSecure = false
	for _, opt := range opts {
		opt(r)
	}
	r.ApplyRoutes()
	e.router = r

	e.srv = httptest.NewServer(r)
	t.Cleanup(e.srv.Close)
	e.client = portalsdk.NewClient(e.srv.URL)
	return e
}

var (
	hashOnce   sync.Once
	cachedHash string
)

func (e *env) createUser(t *testing.T, username string, role domain.Role) domain.User {
	t.Helper()
	hashOnce.Do(func() {
		h, err := cryptox.HashPassword(testPassword)
		require.NoError(t, err)
		cachedHash = h
	})
	hash := cachedHash
	u := domain.User{
		ID:           idx.New().String(),
		Email:        username + "@example.com",
		Username:     username,
		PasswordHash: &hash,
		Role:         role,
		IsActive:     true,
	}
	require.NoError(t, e.store.Users().CreateUser(context.Background(), u))
	return u
}

// login returns a session for a user without 2FA.
func (e *env) login(t *testing.T, username string) *portalsdk.Session {
	t.Helper()
	res, err := e.client.Login(context.Background(), username, testPassword)
	require.NoError(t, err)
	require.False(t, res.Requires2FA)
	return e.client.NewSession(res.Tokens())
}

func (e *env) code(t *testing.T, secret string) string {
	t.Helper()
	c, err := e.totp.Code(secret, totpNow)
	require.NoError(t, err)
	return c
}

func (e *env) wrongCode(t *testing.T, secret string) string {
	t.Helper()
	for _, candidate := range []string{"000000", "111111", "222222", "333333", "444444"} {
		if !e.totp.Verify(secret, candidate) {
			return candidate
		}
	}
	t.Fatal("no invalid code found")
	return ""
}

func (e *env) get(t *testing.T, path string) (int, string) {
	t.Helper()
	resp, err := http.Get(e.srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func requireAPIError(t *testing.T, err error, status int, code string) *portalsdk.APIError {
	t.Helper()
	var apiErr *portalsdk.APIError
	require.True(t, errors.As(err, &apiErr), "expected *APIError, got %v", err)
	require.Equal(t, status, apiErr.StatusCode)
	require.Equal(t, code, apiErr.Code)
	return apiErr
}

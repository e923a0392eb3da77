package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/estatevault/portal/internal/portal/domain"
	portalhttp "github.com/estatevault/portal/internal/portal/http"
	"github.com/estatevault/portal/pkg/portalsdk"
)

func TestLoginWithoutTwoFactor(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.createUser(t, "alice", domain.RoleClient)

	res, err := e.client.Login(context.Background(), "ALICE@example.com", testPassword)
	require.NoError(t, err)
	require.False(t, res.Requires2FA)
	require.NotEmpty(t, res.AccessToken)
	require.NotEmpty(t, res.RefreshToken)
	require.Equal(t, "Bearer", res.TokenType)
	require.Positive(t, res.ExpiresIn)

	status, err := e.client.NewSession(res.Tokens()).TwoFactorStatus(context.Background())
	require.NoError(t, err)
	require.Equal(t, "disabled", status.State)

	_, body := e.get(t, "/metrics")
	require.Contains(t, body, `portal_logins_total{outcome="success"} 1`)
}

func TestLoginFailuresLookTheSame(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	u := e.createUser(t, "bob", domain.RoleClient)
	inactive := e.createUser(t, "carol", domain.RoleClient)
	off := false
	require.NoError(t, e.store.Users().UpdateUser(context.Background(), inactive.ID, domain.UserPatch{IsActive: &off}))

	ctx := context.Background()
	_, wrongPassword := e.client.Login(ctx, u.Username, "not the password")
	_, unknownUser := e.client.Login(ctx, "nobody", testPassword)
	_, inactiveUser := e.client.Login(ctx, inactive.Username, testPassword)

	a := requireAPIError(t, wrongPassword, http.StatusUnauthorized, portalsdk.ErrorCodeInvalidCredentials)
	b := requireAPIError(t, unknownUser, http.StatusUnauthorized, portalsdk.ErrorCodeInvalidCredentials)
	c := requireAPIError(t, inactiveUser, http.StatusUnauthorized, portalsdk.ErrorCodeInvalidCredentials)
	require.Equal(t, a.Description, b.Description)
	require.Equal(t, a.Description, c.Description)
}

func TestLoginRejectsMalformedRequests(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	resp, err := http.Post(e.srv.URL+"/v1/auth/login", "application/json", bytes.NewBufferString(`{"identifier":`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	_, err = e.client.Login(context.Background(), "alice", "")
	requireAPIError(t, err, http.StatusBadRequest, portalsdk.ErrorCodeInvalidRequest)
}

func TestLoginIsRateLimitedPerIdentifier(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	ctx := context.Background()
	for range 5 {
		_, err := e.client.Login(ctx, "mallory", "guess")
		requireAPIError(t, err, http.StatusUnauthorized, portalsdk.ErrorCodeInvalidCredentials)
	}
	_, err := e.client.Login(ctx, "mallory", "guess")
	requireAPIError(t, err, http.StatusTooManyRequests, portalsdk.ErrorCodeRateLimited)

	// Another identifier from the same address has its own bucket.
	_, err = e.client.Login(ctx, "trent", "guess")
	requireAPIError(t, err, http.StatusUnauthorized, portalsdk.ErrorCodeInvalidCredentials)
}

func postJSON(t *testing.T, url string, body any, cookies ...*http.Cookie) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(data))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func refreshCookie(resp *http.Response) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == portalhttp.RefreshCookieName {
			return c
		}
	}
	return nil
}

func TestRefreshCookieRotation(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.createUser(t, "dave", domain.RoleClient)

	resp := postJSON(t, e.srv.URL+"/v1/auth/login", portalsdk.LoginRequest{Identifier: "dave", Password: testPassword})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	first := refreshCookie(resp)
	require.NotNil(t, first)
	require.True(t, first.HttpOnly)
	require.Equal(t, "/v1/auth", first.Path)
	require.NotEmpty(t, first.Value)

	// Cookie only, empty JSON body.
	resp = postJSON(t, e.srv.URL+"/v1/auth/refresh", struct{}{}, &http.Cookie{Name: first.Name, Value: first.Value})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var tokens portalsdk.TokenResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&tokens))
	second := refreshCookie(resp)
	require.NotNil(t, second)
	require.Equal(t, tokens.RefreshToken, second.Value)
	require.NotEqual(t, first.Value, second.Value)

	// Replaying the rotated token fails and clears the cookie.
	resp = postJSON(t, e.srv.URL+"/v1/auth/refresh", struct{}{}, &http.Cookie{Name: first.Name, Value: first.Value})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	cleared := refreshCookie(resp)
	require.NotNil(t, cleared)
	require.Empty(t, cleared.Value)
	require.Negative(t, cleared.MaxAge)

	_, body := e.get(t, "/metrics")
	require.Contains(t, body, `portal_token_refreshes_total{result="ok"} 1`)
	require.Contains(t, body, `portal_token_refreshes_total{result="invalid_token"} 1`)
}

func TestRefreshRequiresToken(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	resp := postJSON(t, e.srv.URL+"/v1/auth/refresh", struct{}{})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLogout(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.createUser(t, "erin", domain.RoleClient)
	ctx := context.Background()

	sess := e.login(t, "erin")
	refresh := sess.RefreshToken()

	require.NoError(t, e.client.Logout(ctx, refresh))
	require.NoError(t, e.client.Logout(ctx, refresh), "logout is idempotent")

	_, err := e.client.Refresh(ctx, refresh)
	requireAPIError(t, err, http.StatusUnauthorized, portalsdk.ErrorCodeInvalidToken)

	err = e.client.Logout(ctx, "not-a-jwt")
	requireAPIError(t, err, http.StatusUnauthorized, portalsdk.ErrorCodeInvalidToken)
}

func TestAccessTokenIsNotARefreshToken(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.createUser(t, "frank", domain.RoleClient)

	sess := e.login(t, "frank")
	_, err := e.client.Refresh(context.Background(), sess.AccessToken())
	requireAPIError(t, err, http.StatusUnauthorized, portalsdk.ErrorCodeInvalidToken)
}

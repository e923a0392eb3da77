package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/estatevault/portal/internal/portal/domain"
	portalhttp "github.com/estatevault/portal/internal/portal/http"
	"github.com/estatevault/portal/pkg/portalsdk"
)

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("connection refused") }

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()

	live, err := e.client.Livez(ctx)
	require.NoError(t, err)
	require.Equal(t, "ok", live.Status)
	require.Equal(t, "test", live.Version)

	ready, err := e.client.Readyz(ctx)
	require.NoError(t, err)
	require.Equal(t, "ok", ready.Status)
	require.Equal(t, "ok", ready.Checks.Database)
	require.Empty(t, ready.Checks.Challenges)
	require.NotNil(t, ready.Connections)
	require.Zero(t, *ready.Connections)
}

func TestReadyzReportsChallengeStoreOutage(t *testing.T) {
	t.Parallel()
	e := newEnv(t, func(r *portalhttp.Router) { r.ChallengePinger = failingPinger{} })

	code, body := e.get(t, "/readyz")
	require.Equal(t, http.StatusServiceUnavailable, code)

	var resp portalsdk.HealthResponse
	require.NoError(t, json.Unmarshal([]byte(body), &resp))
	require.Equal(t, "degraded", resp.Status)
	require.Equal(t, "ok", resp.Checks.Database)
	require.Equal(t, "error: connection refused", resp.Checks.Challenges)
}

func TestSwaggerDocIsServed(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	code, body := e.get(t, "/swagger/doc.json")
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, body, "Estate Portal API")
	require.Contains(t, body, "/v1/auth/login/2fa")
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	_, _ = e.client.Livez(context.Background())
	code, body := e.get(t, "/metrics")
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, body, "portal_realtime_connections 0")
	require.Contains(t, body, "go_goroutines")
}

func TestRealtimeRoute(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.createUser(t, "olivia", domain.RoleClient)
	admin := e.createUser(t, "peggy", domain.RoleAdmin)
	ctx := context.Background()

	clientURL, err := e.login(t, "olivia").RealtimeURL(ctx)
	require.NoError(t, err)
	adminURL, err := e.login(t, "peggy").RealtimeURL(ctx)
	require.NoError(t, err)

	read := func(ws *websocket.Conn) map[string]any {
		t.Helper()
		require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
		var ev map[string]any
		require.NoError(t, ws.ReadJSON(&ev))
		return ev
	}

	adminWS, _, err := websocket.DefaultDialer.Dial(adminURL, nil)
	require.NoError(t, err)
	defer adminWS.Close()
	require.Equal(t, "connected", read(adminWS)["type"])

	clientWS, _, err := websocket.DefaultDialer.Dial(clientURL, nil)
	require.NoError(t, err)
	defer clientWS.Close()
	require.Equal(t, "connected", read(clientWS)["type"])
	require.Eventually(t, func() bool { return e.registry.Len() == 2 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, clientWS.WriteJSON(map[string]any{
		"type": "message",
		"data": map[string]any{"content": "hello", "recipient_id": admin.ID},
	}))
	require.Equal(t, "message_sent", read(clientWS)["type"])

	ev := read(adminWS)
	require.Equal(t, "message", ev["type"])
	require.Equal(t, "hello", ev["data"].(map[string]any)["content"])

	_, _, err = websocket.DefaultDialer.Dial(e.client.RealtimeURL("bogus"), nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
}

package http_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/estatevault/portal/internal/portal/domain"
	"github.com/estatevault/portal/pkg/portalsdk"
)

func TestTwoFactorLifecycle(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.createUser(t, "grace", domain.RoleClient)
	ctx := context.Background()

	sess := e.login(t, "grace")

	_, err := sess.ConfirmTwoFactorSetup(ctx, "123456", nil)
	requireAPIError(t, err, http.StatusConflict, "2fa_setup_not_initialized")

	setup, err := sess.BeginTwoFactorSetup(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, setup.Secret)
	require.Contains(t, setup.ProvisioningURI, "otpauth://totp/")
	require.Len(t, setup.BackupCodes, 8)

	status, err := sess.TwoFactorStatus(ctx)
	require.NoError(t, err)
	require.Equal(t, "pending", status.State)
	require.False(t, status.Enabled)

	_, err = sess.ConfirmTwoFactorSetup(ctx, e.wrongCode(t, setup.Secret), nil)
	requireAPIError(t, err, http.StatusBadRequest, portalsdk.ErrorCodeInvalidCode)

	confirmed, err := sess.ConfirmTwoFactorSetup(ctx, e.code(t, setup.Secret), setup.BackupCodes)
	require.NoError(t, err)
	require.True(t, confirmed.Enabled)
	require.Equal(t, 8, confirmed.BackupCodesStored)

	_, err = sess.BeginTwoFactorSetup(ctx)
	requireAPIError(t, err, http.StatusConflict, "2fa_already_enabled")

	// A password alone now yields a pending login.
	res, err := e.client.Login(ctx, "grace", testPassword)
	require.NoError(t, err)
	require.True(t, res.Requires2FA)
	require.NotEmpty(t, res.PendingLoginID)
	require.NotNil(t, res.PendingExpiresAt)
	require.Empty(t, res.AccessToken)

	_, err = e.client.CompleteLogin(ctx, res.PendingLoginID, e.wrongCode(t, setup.Secret), false)
	requireAPIError(t, err, http.StatusUnauthorized, portalsdk.ErrorCodeInvalidCredentials)

	done, err := e.client.CompleteLogin(ctx, res.PendingLoginID, setup.BackupCodes[0], true)
	require.NoError(t, err)
	require.NotEmpty(t, done.AccessToken)
	second := e.client.NewSession(done.Tokens())

	status, err = second.TwoFactorStatus(ctx)
	require.NoError(t, err)
	require.Equal(t, "enabled", status.State)
	require.Equal(t, 7, status.BackupCodesRemaining)

	codes, err := second.RegenerateBackupCodes(ctx, e.code(t, setup.Secret))
	require.NoError(t, err)
	require.Len(t, codes, 8)

	err = second.DisableTwoFactor(ctx, "wrong password", e.code(t, setup.Secret))
	requireAPIError(t, err, http.StatusUnauthorized, portalsdk.ErrorCodeInvalidCredentials)

	require.NoError(t, second.DisableTwoFactor(ctx, testPassword, e.code(t, setup.Secret)))

	// Disabling revoked every session, including the first one.
	_, err = e.client.Refresh(ctx, sess.RefreshToken())
	requireAPIError(t, err, http.StatusUnauthorized, portalsdk.ErrorCodeInvalidToken)
	_, err = e.client.Refresh(ctx, second.RefreshToken())
	requireAPIError(t, err, http.StatusUnauthorized, portalsdk.ErrorCodeInvalidToken)

	_, body := e.get(t, "/metrics")
	require.Contains(t, body, `portal_logins_total{outcome="2fa_required"} 1`)
	require.Contains(t, body, `portal_two_factor_events_total{operation="confirm",result="ok"} 1`)
	require.Contains(t, body, `portal_two_factor_events_total{operation="login",result="failed"} 1`)
}

func TestPendingLoginLocksOut(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.createUser(t, "heidi", domain.RoleClient)
	ctx := context.Background()

	sess := e.login(t, "heidi")
	setup, err := sess.BeginTwoFactorSetup(ctx)
	require.NoError(t, err)
	_, err = sess.ConfirmTwoFactorSetup(ctx, e.code(t, setup.Secret), nil)
	require.NoError(t, err)

	res, err := e.client.Login(ctx, "heidi", testPassword)
	require.NoError(t, err)
	require.True(t, res.Requires2FA)

	// The environment allows three attempts per pending login.
	wrong := e.wrongCode(t, setup.Secret)
	for range 3 {
		_, err = e.client.CompleteLogin(ctx, res.PendingLoginID, wrong, false)
		requireAPIError(t, err, http.StatusUnauthorized, portalsdk.ErrorCodeInvalidCredentials)
	}

	// Even the right code is refused once the challenge is gone.
	_, err = e.client.CompleteLogin(ctx, res.PendingLoginID, e.code(t, setup.Secret), false)
	requireAPIError(t, err, http.StatusUnauthorized, portalsdk.ErrorCodeInvalidCredentials)
}

func TestTwoFactorRoutesRequireToken(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	resp, err := http.Get(e.srv.URL + "/v1/2fa/status")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Contains(t, resp.Header.Get("WWW-Authenticate"), "Bearer")

	resp = postJSON(t, e.srv.URL+"/v1/2fa/setup", struct{}{})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

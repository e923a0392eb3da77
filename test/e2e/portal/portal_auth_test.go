package portal_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/estatevault/portal/pkg/portalsdk"
)

func TestHealth(t *testing.T) {
	c := setupPortalContainer(t)
	ctx := context.Background()

	live, err := c.Livez(ctx)
	require.NoError(t, err)
	require.Equal(t, "ok", live.Status)

	ready, err := c.Readyz(ctx)
	require.NoError(t, err)
	require.Equal(t, "ok", ready.Checks.Database)
}

func TestLoginRefreshLogout(t *testing.T) {
	c := setupPortalContainer(t)
	ctx := context.Background()

	_, err := c.Login(ctx, adminEmail, "wrong")
	var apiErr *portalsdk.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	require.Equal(t, portalsdk.ErrorCodeInvalidCredentials, apiErr.Code)

	sess := loginAdmin(t, c)
	old := sess.RefreshToken()
	require.NoError(t, sess.Refresh(ctx))
	require.NotEqual(t, old, sess.RefreshToken())

	// The rotated token is spent.
	_, err = c.Refresh(ctx, old)
	require.True(t, portalsdk.IsCode(err, portalsdk.ErrorCodeInvalidToken))

	require.NoError(t, sess.Logout(ctx))
}

func TestTwoFactorEnrollmentAndLogin(t *testing.T) {
	c := setupPortalContainer(t)
	ctx := context.Background()
	sess := loginAdmin(t, c)

	setup, err := sess.BeginTwoFactorSetup(ctx)
	require.NoError(t, err)
	confirmed, err := sess.ConfirmTwoFactorSetup(ctx, totpCode(t, setup.Secret), setup.BackupCodes)
	require.NoError(t, err)
	require.True(t, confirmed.Enabled)

	pending, err := c.Login(ctx, adminEmail, adminPassword)
	require.NoError(t, err)
	require.True(t, pending.Requires2FA)

	done, err := c.CompleteLogin(ctx, pending.PendingLoginID, totpCode(t, setup.Secret), false)
	require.NoError(t, err)
	require.NotEmpty(t, done.AccessToken)

	// A backup code works once.
	pending, err = c.Login(ctx, adminEmail, adminPassword)
	require.NoError(t, err)
	_, err = c.CompleteLogin(ctx, pending.PendingLoginID, setup.BackupCodes[0], true)
	require.NoError(t, err)

	pending, err = c.Login(ctx, adminEmail, adminPassword)
	require.NoError(t, err)
	_, err = c.CompleteLogin(ctx, pending.PendingLoginID, setup.BackupCodes[0], true)
	require.True(t, portalsdk.IsCode(err, portalsdk.ErrorCodeInvalidCredentials))

	second := c.NewSession(done.Tokens())
	require.NoError(t, second.DisableTwoFactor(ctx, adminPassword, totpCode(t, setup.Secret)))

	status, err := loginAdmin(t, c).TwoFactorStatus(ctx)
	require.NoError(t, err)
	require.Equal(t, "disabled", status.State)
}

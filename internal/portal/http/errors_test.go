package http

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/estatevault/portal/internal/portal/service"
	"github.com/estatevault/portal/internal/portal/store"
	"github.com/estatevault/portal/pkg/httpx"
)

func TestToAPIError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"wrong password", service.ErrInvalidCredentials, http.StatusUnauthorized, httpx.ErrorCodeInvalidCredentials},
		{"inactive account", service.ErrAccountInactive, http.StatusUnauthorized, httpx.ErrorCodeInvalidCredentials},
		{"bad second factor", service.ErrInvalid2FACode, http.StatusUnauthorized, httpx.ErrorCodeInvalidCredentials},
		{"locked out", service.ErrTooManyAttempts, http.StatusUnauthorized, httpx.ErrorCodeInvalidCredentials},
		{"refresh wrapped", fmt.Errorf("%w: %w", service.ErrSessionInvalid, errors.New("signature")), http.StatusUnauthorized, httpx.ErrorCodeInvalidToken},
		{"setup code", service.ErrInvalidCode, http.StatusBadRequest, httpx.ErrorCodeInvalidCode},
		{"already enabled", service.ErrAlreadyEnabled, http.StatusConflict, "2fa_already_enabled"},
		{"not recipient", service.ErrNotRecipient, http.StatusForbidden, "not_recipient"},
		{"store outage", fmt.Errorf("get user: %w: %w", service.ErrStoreUnavailable, store.ErrUnavailable), http.StatusServiceUnavailable, httpx.ErrorCodeUnavailable},
		{"bare driver outage", fmt.Errorf("ping: %w", store.ErrUnavailable), http.StatusServiceUnavailable, httpx.ErrorCodeUnavailable},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, httpx.ErrorCodeServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := toAPIError(tt.err)
			require.Equal(t, tt.status, got.StatusCode)
			require.Equal(t, tt.code, got.Code)
		})
	}
}

func TestLoginFailuresShareDescription(t *testing.T) {
	t.Parallel()

	want := toAPIError(service.ErrInvalidCredentials).Description
	require.Equal(t, want, toAPIError(service.ErrAccountInactive).Description)
	require.Equal(t, want, toAPIError(service.ErrInvalid2FACode).Description)
}

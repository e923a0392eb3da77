package http

import (
	"errors"
	"net/http"

	"github.com/estatevault/portal/internal/portal/service"
	"github.com/estatevault/portal/internal/portal/store"
	"github.com/estatevault/portal/pkg/httpx"
	"github.com/estatevault/portal/pkg/slogx"
)

func apiErrorFor(status int, err error, desc string) *httpx.APIError {
	return &httpx.APIError{StatusCode: status, Code: err.Error(), Description: desc}
}

// Every login and second-factor failure maps to the same response so the
// API never tells which factor failed or whether the account exists.
var serviceErrors = []struct {
	err error
	api *httpx.APIError
}{
	{service.ErrInvalidCredentials, httpx.ErrInvalidCredentials},
	{service.ErrAccountInactive, httpx.ErrInvalidCredentials},
	{service.ErrInvalid2FACode, httpx.ErrInvalidCredentials},
	{service.ErrTooManyAttempts, httpx.ErrInvalidCredentials.WithDescription("too many attempts, sign in again")},
	{service.ErrSessionInvalid, httpx.ErrInvalidToken.WithDescription("refresh token is no longer valid")},
	{service.ErrInvalidCode, httpx.ErrInvalidCode},

	{service.ErrAlreadyEnabled, apiErrorFor(http.StatusConflict, service.ErrAlreadyEnabled, "two-factor authentication is already enabled")},
	{service.ErrNotEnabled, apiErrorFor(http.StatusConflict, service.ErrNotEnabled, "two-factor authentication is not enabled")},
	{service.ErrSetupNotInitialized, apiErrorFor(http.StatusConflict, service.ErrSetupNotInitialized, "start two-factor setup first")},

	{service.ErrEmptyContent, apiErrorFor(http.StatusBadRequest, service.ErrEmptyContent, "message content is empty")},
	{service.ErrContentTooLong, apiErrorFor(http.StatusBadRequest, service.ErrContentTooLong, "message content is too long")},
	{service.ErrUnknownRecipient, apiErrorFor(http.StatusBadRequest, service.ErrUnknownRecipient, "recipient does not exist")},
	{service.ErrNotRecipient, apiErrorFor(http.StatusForbidden, service.ErrNotRecipient, "message is addressed to someone else")},
	{service.ErrMessageNotFound, httpx.ErrNotFound.WithDescription("message not found")},

	{service.ErrStoreUnavailable, httpx.ErrUnavailable},
	{store.ErrUnavailable, httpx.ErrUnavailable},
	// An authenticated user that vanished from the store.
	{store.ErrNotFound, httpx.ErrInvalidToken.WithDescription("user no longer exists")},
}

// toAPIError maps a service error to its response. Unknown errors are
// server_error.
func toAPIError(err error) *httpx.APIError {
	for _, m := range serviceErrors {
		if errors.Is(err, m.err) {
			return m.api
		}
	}
	return httpx.ErrServerError
}

// writeError logs err and writes the mapped error response.
func writeError(w http.ResponseWriter, r *http.Request, err error) *httpx.APIError {
	apiErr := toAPIError(err)
	log := slogx.FromContext(r.Context())
	if apiErr.StatusCode >= http.StatusInternalServerError {
		log.Error("request failed", "err", err)
	} else {
		log.Info("request rejected", "code", apiErr.Code, "err", err)
	}
	apiErr.WriteError(w)
	return apiErr
}

func writeBadRequest(w http.ResponseWriter, r *http.Request, err error) {
	slogx.FromContext(r.Context()).Warn("failed to parse request", "err", err)
	httpx.ErrInvalidRequest.WithDescription("invalid JSON body").WriteError(w)
}

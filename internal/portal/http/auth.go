package http

import (
	"net/http"

	"github.com/estatevault/portal/internal/portal/domain"
	"github.com/estatevault/portal/internal/portal/service"
	"github.com/estatevault/portal/pkg/httpx"
	"github.com/estatevault/portal/pkg/metricsx"
	"github.com/estatevault/portal/pkg/portalsdk"
	"github.com/estatevault/portal/pkg/slogx"
)

// AuthHandler serves login, second-factor completion, refresh and logout.
type AuthHandler struct {
	Sessions     *service.SessionService
	Metrics      *metricsx.Metrics
	CookieSecure bool
}

func tokenResponse(p domain.TokenPair) portalsdk.TokenResponse {
	return portalsdk.TokenResponse{
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		TokenType:    p.TokenType,
		ExpiresIn:    p.ExpiresIn,
	}
}

func (h *AuthHandler) writeTokens(w http.ResponseWriter, p domain.TokenPair) {
	setRefreshCookie(w, p.RefreshToken, p.RefreshExpiresAt, h.CookieSecure)
	httpx.WriteJSON(w, http.StatusOK, portalsdk.LoginResponse{
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		TokenType:    p.TokenType,
		ExpiresIn:    p.ExpiresIn,
	})
}

// HandleLogin handles POST /v1/auth/login
//
//	@Summary		Log in with password
//	@Description	Verifies a username or email and password. Accounts with two-factor authentication get a pending login id instead of tokens.
//	@Description	Every failure returns the same invalid_credentials error.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		portalsdk.LoginRequest	true	"Credentials"
//	@Success		200		{object}	portalsdk.LoginResponse	"Tokens, or a pending second factor"
//	@Failure		400		{object}	portalsdk.ErrorResponse	"Malformed request"
//	@Failure		401		{object}	portalsdk.ErrorResponse	"Invalid credentials"
//	@Failure		429		{object}	portalsdk.ErrorResponse	"Rate limited"
//	@Failure		503		{object}	portalsdk.ErrorResponse	"Store unavailable"
//	@Router			/v1/auth/login [post].
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req portalsdk.LoginRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, r, err)
		return
	}
	if req.Identifier == "" || req.Password == "" {
		httpx.ErrInvalidRequest.WithDescription("identifier and password are required").WriteError(w)
		return
	}

	res, err := h.Sessions.Login(r.Context(), req.Identifier, req.Password)
	if err != nil {
		h.Metrics.ObserveLogin("failed")
		writeError(w, r, err)
		return
	}

	if res.Requires2FA {
		h.Metrics.ObserveLogin("2fa_required")
		expires := res.PendingExpires
		httpx.WriteJSON(w, http.StatusOK, portalsdk.LoginResponse{
			Requires2FA:      true,
			PendingLoginID:   res.PendingLoginID,
			PendingExpiresAt: &expires,
		})
		return
	}

	h.Metrics.ObserveLogin("success")
	h.writeTokens(w, *res.Tokens)
}

// HandleCompleteLogin handles POST /v1/auth/login/2fa
//
//	@Summary		Complete a pending login
//	@Description	Answers a pending login with a TOTP code or a single-use backup code. A pending login allows a limited number of attempts.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		portalsdk.CompleteLoginRequest	true	"Pending login id and code"
//	@Success		200		{object}	portalsdk.LoginResponse			"Tokens"
//	@Failure		400		{object}	portalsdk.ErrorResponse			"Malformed request"
//	@Failure		401		{object}	portalsdk.ErrorResponse			"Invalid credentials"
//	@Failure		429		{object}	portalsdk.ErrorResponse			"Rate limited"
//	@Router			/v1/auth/login/2fa [post].
func (h *AuthHandler) HandleCompleteLogin(w http.ResponseWriter, r *http.Request) {
	var req portalsdk.CompleteLoginRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, r, err)
		return
	}
	if req.PendingLoginID == "" || req.Code == "" {
		httpx.ErrInvalidRequest.WithDescription("pending_login_id and code are required").WriteError(w)
		return
	}

	pair, err := h.Sessions.CompleteLogin(r.Context(), req.PendingLoginID, req.Code, req.IsBackupCode)
	if err != nil {
		h.Metrics.ObserveTwoFactor("login", "failed")
		writeError(w, r, err)
		return
	}

	h.Metrics.ObserveTwoFactor("login", "ok")
	h.Metrics.ObserveLogin("success")
	h.writeTokens(w, pair)
}

// HandleRefresh handles POST /v1/auth/refresh
//
//	@Summary		Rotate the refresh token
//	@Description	Exchanges a refresh token from the JSON body or the portal_refresh cookie for a new pair. The presented token is revoked.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		portalsdk.RefreshRequest	false	"Refresh token, unless sent as a cookie"
//	@Success		200		{object}	portalsdk.TokenResponse		"New token pair"
//	@Failure		400		{object}	portalsdk.ErrorResponse		"No refresh token"
//	@Failure		401		{object}	portalsdk.ErrorResponse		"Refresh token no longer valid"
//	@Router			/v1/auth/refresh [post].
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req portalsdk.RefreshRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, r, err)
		return
	}
	token := refreshTokenFrom(r, req.RefreshToken)
	if token == "" {
		httpx.ErrInvalidRequest.WithDescription("refresh token is required").WriteError(w)
		return
	}

	pair, err := h.Sessions.Refresh(r.Context(), token)
	if err != nil {
		apiErr := toAPIError(err)
		h.Metrics.ObserveRefresh(apiErr.Code)
		if apiErr.StatusCode == http.StatusUnauthorized {
			clearRefreshCookie(w, h.CookieSecure)
		}
		writeError(w, r, err)
		return
	}

	h.Metrics.ObserveRefresh("ok")
	setRefreshCookie(w, pair.RefreshToken, pair.RefreshExpiresAt, h.CookieSecure)
	httpx.WriteJSON(w, http.StatusOK, tokenResponse(pair))
}

// HandleLogout handles POST /v1/auth/logout
//
//	@Summary		Log out
//	@Description	Revokes the refresh token and clears the portal_refresh cookie. Logging out twice is not an error.
//	@Tags			Auth
//	@Accept			json
//	@Param			request	body	portalsdk.RefreshRequest	false	"Refresh token, unless sent as a cookie"
//	@Success		204		"Logged out"
//	@Failure		400		{object}	portalsdk.ErrorResponse	"No refresh token"
//	@Failure		401		{object}	portalsdk.ErrorResponse	"Malformed refresh token"
//	@Router			/v1/auth/logout [post].
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	var req portalsdk.RefreshRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, r, err)
		return
	}
	token := refreshTokenFrom(r, req.RefreshToken)
	if token == "" {
		httpx.ErrInvalidRequest.WithDescription("refresh token is required").WriteError(w)
		return
	}

	clearRefreshCookie(w, h.CookieSecure)
	if err := h.Sessions.Revoke(r.Context(), token); err != nil {
		writeError(w, r, err)
		return
	}
	slogx.FromContext(r.Context()).Debug("logout complete")
	w.WriteHeader(http.StatusNoContent)
}

package http

import (
	"net/http"

	"github.com/estatevault/portal/internal/portal/service"
	"github.com/estatevault/portal/pkg/httpx"
	"github.com/estatevault/portal/pkg/metricsx"
	"github.com/estatevault/portal/pkg/portalsdk"
)

// TwoFactorHandler serves the 2FA settings endpoints. All of them run behind
// AuthnMiddleware.
type TwoFactorHandler struct {
	TwoFactor *service.TwoFactorService
	Metrics   *metricsx.Metrics
}

func (h *TwoFactorHandler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	apiErr := writeError(w, r, err)
	h.Metrics.ObserveTwoFactor(op, apiErr.Code)
}

// HandleStatus handles GET /v1/2fa/status
//
//	@Summary		Two-factor status
//	@Tags			Two-factor
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	portalsdk.TwoFactorStatusResponse	"State and remaining backup codes"
//	@Failure		401	{object}	portalsdk.ErrorResponse				"Invalid or missing access token"
//	@Router			/v1/2fa/status [get].
func (h *TwoFactorHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.TwoFactor.Status(r.Context(), httpx.UserIDFromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, portalsdk.TwoFactorStatusResponse{
		State:                string(st.State),
		Enabled:              st.Enabled,
		BackupCodesRemaining: st.BackupCodesRemaining,
	})
}

// HandleSetup handles POST /v1/2fa/setup
//
//	@Summary		Begin two-factor setup
//	@Description	Generates a TOTP secret and a fresh set of backup codes. Calling it again restarts setup and invalidates the previous secret.
//	@Description	The backup codes are shown once.
//	@Tags			Two-factor
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	portalsdk.TwoFactorSetupResponse	"Secret, provisioning URI and backup codes"
//	@Failure		401	{object}	portalsdk.ErrorResponse				"Invalid or missing access token"
//	@Failure		409	{object}	portalsdk.ErrorResponse				"Already enabled"
//	@Router			/v1/2fa/setup [post].
func (h *TwoFactorHandler) HandleSetup(w http.ResponseWriter, r *http.Request) {
	setup, err := h.TwoFactor.BeginSetup(r.Context(), httpx.UserIDFromContext(r.Context()))
	if err != nil {
		h.fail(w, r, "setup", err)
		return
	}
	h.Metrics.ObserveTwoFactor("setup", "ok")
	httpx.WriteJSON(w, http.StatusOK, portalsdk.TwoFactorSetupResponse{
		Secret:          setup.Secret,
		ProvisioningURI: setup.ProvisioningURI,
		BackupCodes:     setup.BackupCodes,
	})
}

// HandleVerify handles POST /v1/2fa/verify
//
//	@Summary		Confirm two-factor setup
//	@Description	Enables two-factor authentication once a TOTP code from the new secret verifies. Backup codes, when echoed, must match the ones from setup.
//	@Tags			Two-factor
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		portalsdk.ConfirmSetupRequest	true	"TOTP code"
//	@Success		200		{object}	portalsdk.ConfirmSetupResponse	"Enabled"
//	@Failure		400		{object}	portalsdk.ErrorResponse			"Invalid code"
//	@Failure		409		{object}	portalsdk.ErrorResponse			"Setup not started or already enabled"
//	@Router			/v1/2fa/verify [post].
func (h *TwoFactorHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	var req portalsdk.ConfirmSetupRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, r, err)
		return
	}
	if req.Code == "" {
		httpx.ErrInvalidRequest.WithDescription("code is required").WriteError(w)
		return
	}

	n, err := h.TwoFactor.ConfirmSetup(r.Context(), httpx.UserIDFromContext(r.Context()), req.Code, req.BackupCodes)
	if err != nil {
		h.fail(w, r, "confirm", err)
		return
	}
	h.Metrics.ObserveTwoFactor("confirm", "ok")
	httpx.WriteJSON(w, http.StatusOK, portalsdk.ConfirmSetupResponse{Enabled: true, BackupCodesStored: n})
}

// HandleDisable handles POST /v1/2fa/disable
//
//	@Summary		Disable two-factor authentication
//	@Description	Requires the current password and a TOTP code. Every refresh session of the user is revoked.
//	@Tags			Two-factor
//	@Security		BearerAuth
//	@Accept			json
//	@Param			request	body	portalsdk.DisableTwoFactorRequest	true	"Password and TOTP code"
//	@Success		204		"Disabled"
//	@Failure		400		{object}	portalsdk.ErrorResponse	"Invalid code"
//	@Failure		401		{object}	portalsdk.ErrorResponse	"Invalid credentials"
//	@Failure		409		{object}	portalsdk.ErrorResponse	"Not enabled"
//	@Router			/v1/2fa/disable [post].
func (h *TwoFactorHandler) HandleDisable(w http.ResponseWriter, r *http.Request) {
	var req portalsdk.DisableTwoFactorRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, r, err)
		return
	}
	if req.Password == "" || req.Code == "" {
		httpx.ErrInvalidRequest.WithDescription("password and code are required").WriteError(w)
		return
	}

	if err := h.TwoFactor.Disable(r.Context(), httpx.UserIDFromContext(r.Context()), req.Password, req.Code); err != nil {
		h.fail(w, r, "disable", err)
		return
	}
	h.Metrics.ObserveTwoFactor("disable", "ok")
	w.WriteHeader(http.StatusNoContent)
}

// HandleRegenerateBackupCodes handles POST /v1/2fa/backup-codes
//
//	@Summary		Regenerate backup codes
//	@Description	Replaces every backup code. Only a TOTP code is accepted.
//	@Tags			Two-factor
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		portalsdk.RegenerateBackupCodesRequest	true	"TOTP code"
//	@Success		200		{object}	portalsdk.BackupCodesResponse			"New backup codes (shown once)"
//	@Failure		400		{object}	portalsdk.ErrorResponse					"Invalid code"
//	@Failure		409		{object}	portalsdk.ErrorResponse					"Not enabled"
//	@Router			/v1/2fa/backup-codes [post].
func (h *TwoFactorHandler) HandleRegenerateBackupCodes(w http.ResponseWriter, r *http.Request) {
	var req portalsdk.RegenerateBackupCodesRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, r, err)
		return
	}
	if req.Code == "" {
		httpx.ErrInvalidRequest.WithDescription("code is required").WriteError(w)
		return
	}

	codes, err := h.TwoFactor.RegenerateBackupCodes(r.Context(), httpx.UserIDFromContext(r.Context()), req.Code)
	if err != nil {
		h.fail(w, r, "regenerate", err)
		return
	}
	h.Metrics.ObserveTwoFactor("regenerate", "ok")
	httpx.WriteJSON(w, http.StatusOK, portalsdk.BackupCodesResponse{BackupCodes: codes})
}

package http

import (
	"net/http"

	"github.com/eliodoroBezlu/inspection-auth-service/internal/application"
)

type twoFactorCodeBody struct {
	Code string `json:"code"`
}

func (h *Handler) twoFactorSetup(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeMissingTokenError(r.Context(), w, "setup_2fa")
		return
	}

	res, err := h.service.SetupTwoFactor(r.Context(), claims.Subject)
	if err != nil {
		writeMappedError(r.Context(), w, "setup_2fa", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) twoFactorEnable(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeMissingTokenError(r.Context(), w, "enable_2fa")
		return
	}
	var body twoFactorCodeBody
	if err := decodeBody(r, &body); err != nil {
		writeValidationError(r.Context(), w, "enable_2fa", err)
		return
	}

	res, err := h.service.EnableTwoFactor(r.Context(), claims.Subject, body.Code)
	if err != nil {
		writeMappedError(r.Context(), w, "enable_2fa", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) twoFactorDisable(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeMissingTokenError(r.Context(), w, "disable_2fa")
		return
	}
	var body twoFactorCodeBody
	if err := decodeBody(r, &body); err != nil {
		writeValidationError(r.Context(), w, "disable_2fa", err)
		return
	}

	if err := h.service.DisableTwoFactor(r.Context(), claims.Subject, body.Code); err != nil {
		writeMappedError(r.Context(), w, "disable_2fa", err)
		return
	}
	writeMessage(w, http.StatusOK, application.TwoFactorDisabledMessage)
}

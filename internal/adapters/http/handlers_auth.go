package http

import (
	"net/http"

	"github.com/eliodoroBezlu/inspection-auth-service/internal/application"
)

type loginBody struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type verifyTwoFactorBody struct {
	TempToken string `json:"tempToken"`
	Code      string `json:"code"`
}

type refreshBody struct {
	RefreshToken string `json:"refreshToken"`
}

type inspectorBody struct {
	AccessKey string `json:"accessKey"`
	DeviceID  string `json:"deviceId,omitempty"`
}

type sessionPayload struct {
	User application.AccountView `json:"user"`
}

type twoFactorChallengePayload struct {
	Requires2FA bool   `json:"requires2FA"`
	TempToken   string `json:"tempToken"`
	Message     string `json:"message"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req application.RegisterRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "register", err)
		return
	}

	res, err := h.service.Register(r.Context(), req)
	if err != nil {
		writeMappedError(r.Context(), w, "register", err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var body loginBody
	if err := decodeBody(r, &body); err != nil {
		writeValidationError(r.Context(), w, "login", err)
		return
	}

	res, err := h.service.Login(r.Context(), application.LoginRequest{
		Username: body.Username,
		Password: body.Password,
		Client:   clientSignature(r),
	})
	if err != nil {
		writeMappedError(r.Context(), w, "login", err)
		return
	}
	if res.Requires2FA {
		writeJSON(w, http.StatusOK, twoFactorChallengePayload{
			Requires2FA: true,
			TempToken:   res.TempToken,
			Message:     res.Message,
		})
		return
	}
	h.writeSession(w, *res.Session)
}

func (h *Handler) verifyTwoFactor(w http.ResponseWriter, r *http.Request) {
	var body verifyTwoFactorBody
	if err := decodeBody(r, &body); err != nil {
		writeValidationError(r.Context(), w, "verify_2fa", err)
		return
	}
	if body.TempToken == "" {
		if token, err := bearerTokenFromHeader(r.Header.Get("Authorization")); err == nil {
			body.TempToken = token
		}
	}

	grant, err := h.service.VerifyTwoFactor(r.Context(), application.VerifyTwoFactorRequest{
		TempToken: body.TempToken,
		Code:      body.Code,
		Client:    clientSignature(r),
	})
	if err != nil {
		writeMappedError(r.Context(), w, "verify_2fa", err)
		return
	}
	h.writeSession(w, grant)
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	token := cookieValue(r, refreshCookieName)
	if token == "" {
		var body refreshBody
		if err := decodeOptionalBody(r, &body); err != nil {
			writeValidationError(r.Context(), w, "refresh", err)
			return
		}
		token = body.RefreshToken
	}

	grant, err := h.service.RefreshTokens(r.Context(), token, clientSignature(r))
	if err != nil {
		writeMappedError(r.Context(), w, "refresh", err)
		return
	}
	h.writeSession(w, grant)
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeMissingTokenError(r.Context(), w, "logout")
		return
	}

	if err := h.service.Logout(r.Context(), claims.Subject, cookieValue(r, refreshCookieName)); err != nil {
		writeMappedError(r.Context(), w, "logout", err)
		return
	}
	h.clearSessionCookies(w)
	writeMessage(w, http.StatusOK, "Logged out successfully")
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeMissingTokenError(r.Context(), w, "me")
		return
	}

	view, err := h.service.Me(r.Context(), claims.Subject)
	if err != nil {
		writeMappedError(r.Context(), w, "me", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) inspectorLogin(w http.ResponseWriter, r *http.Request) {
	var body inspectorBody
	if err := decodeBody(r, &body); err != nil {
		writeValidationError(r.Context(), w, "inspector_login", err)
		return
	}

	grant, err := h.service.LoginInspector(r.Context(), application.InspectorLoginRequest{
		AccessKey: body.AccessKey,
		DeviceID:  body.DeviceID,
		Client:    clientSignature(r),
	})
	if err != nil {
		writeMappedError(r.Context(), w, "inspector_login", err)
		return
	}
	h.writeSession(w, grant)
}

// writeSession delivers tokens only as cookies; the body carries the account.
func (h *Handler) writeSession(w http.ResponseWriter, grant application.SessionGrant) {
	h.setSessionCookies(w, grant)
	writeJSON(w, http.StatusOK, sessionPayload{User: grant.Account})
}

package http

import (
	"net/http"
	"time"

	"github.com/eliodoroBezlu/inspection-auth-service/internal/application"
)

const (
	accessCookieName  = "access_token"
	refreshCookieName = "refresh_token"
)

func (h *Handler) sessionCookie(name, value string, maxAge time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   h.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	}
}

// setSessionCookies makes each cookie live exactly as long as the credential
// it carries: the access token, and the session behind the refresh token.
func (h *Handler) setSessionCookies(w http.ResponseWriter, grant application.SessionGrant) {
	http.SetCookie(w, h.sessionCookie(accessCookieName, grant.AccessToken, grant.AccessExpiresAt.Sub(grant.IssuedAt)))
	http.SetCookie(w, h.sessionCookie(refreshCookieName, grant.RefreshToken, grant.RefreshExpiresAt.Sub(grant.IssuedAt)))
}

func (h *Handler) clearSessionCookies(w http.ResponseWriter) {
	for _, name := range []string{accessCookieName, refreshCookieName} {
		c := h.sessionCookie(name, "", 0)
		c.MaxAge = -1
		c.Expires = time.Unix(0, 0)
		http.SetCookie(w, c)
	}
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

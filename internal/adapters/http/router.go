package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/eliodoroBezlu/inspection-auth-service/internal/application"
)

// Options tunes transport concerns that do not belong to the service.
type Options struct {
	// SecureCookies sets the Secure attribute on session cookies.
	SecureCookies bool
	// Ready reports dependency health for /readyz. Nil means always ready.
	Ready func(ctx context.Context) error
}

// Handler is the HTTP adapter entrypoint for auth use-cases.
type Handler struct {
	service *application.Service
	opts    Options
}

func NewHandler(service *application.Service, opts Options) *Handler {
	return &Handler{service: service, opts: opts}
}

// NewRouter registers the auth routes and the middleware stack.
func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(recoverMiddleware)
	r.Use(loggingMiddleware)

	r.Get("/healthz", handler.healthz)
	r.Get("/readyz", handler.readyz)
	r.Get("/swagger", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/swagger/", http.StatusMovedPermanently)
	})
	r.Get("/swagger/", handler.swaggerUI)
	r.Get("/swagger/openapi.yaml", handler.swaggerSpec)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", handler.register)
		r.Post("/login", handler.login)
		r.Post("/verify-2fa", handler.verifyTwoFactor)
		r.Post("/refresh", handler.refresh)
		r.Post("/inspector", handler.inspectorLogin)

		r.Group(func(r chi.Router) {
			r.Use(handler.authMiddleware)
			r.Post("/logout", handler.logout)
			r.Get("/me", handler.me)
			r.Post("/2fa/setup", handler.twoFactorSetup)
			r.Post("/2fa/enable", handler.twoFactorEnable)
			r.Post("/2fa/disable", handler.twoFactorDisable)
		})
	})

	return r
}

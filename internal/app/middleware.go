package app

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"
	"golang.org/x/crypto/bcrypt"

	"github.com/labdesk/labdesk/internal/observability"
	"github.com/labdesk/labdesk/internal/platform/httpx"
	"github.com/labdesk/labdesk/internal/shared"
)

// AdminActor is recorded for requests authenticated with the admin token.
const AdminActor = "admin"

// MiddlewareConfig aggregates dependencies shared by the middleware stack.
type MiddlewareConfig struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics
}

// MiddlewareStack installs the API middleware chain.
func MiddlewareStack(cfg MiddlewareConfig) []func(http.Handler) http.Handler {
	secureMiddleware := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		ContentSecurityPolicy: "default-src 'none'",
		SSLRedirect:           cfg.Config.IsProduction(),
		SSLProxyHeaders:       map[string]string{"X-Forwarded-Proto": "https"},
	})

	timeout := 30 * time.Second
	limit := 120
	if cfg.Config != nil {
		if cfg.Config.AppRequestTimeout > 0 {
			timeout = cfg.Config.AppRequestTimeout
		}
		if cfg.Config.RateLimit > 0 {
			limit = cfg.Config.RateLimit
		}
	}

	middlewares := []func(http.Handler) http.Handler{
		middleware.RealIP,
		middleware.RequestID,
		middleware.Recoverer,
		middleware.Timeout(timeout),
		func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if err := secureMiddleware.Process(w, r); err != nil {
					cfg.Logger.Warn("secure headers blocked request", slog.Any("error", err))
					httpx.Problem(w, http.StatusBadRequest, "Bad Request", "")
					return
				}
				next.ServeHTTP(w, r)
			})
		},
		middleware.Compress(5),
		httprate.Limit(limit, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)),
	}
	if cfg.Metrics != nil {
		middlewares = append(middlewares, cfg.Metrics.Middleware)
	}
	return middlewares
}

// TokenVerifier reports whether a presented bearer token is the admin token.
type TokenVerifier func(presented string) bool

// NewTokenVerifier prefers a bcrypt hash of the token when one is configured.
// It returns nil when neither is set.
func NewTokenVerifier(token, hash string) TokenVerifier {
	switch {
	case hash != "":
		hashed := []byte(hash)
		return func(presented string) bool {
			return presented != "" && bcrypt.CompareHashAndPassword(hashed, []byte(presented)) == nil
		}
	case token != "":
		return func(presented string) bool {
			return subtle.ConstantTimeCompare([]byte(presented), []byte(token)) == 1
		}
	default:
		return nil
	}
}

// RequireAdmin checks the bearer token on mutating routes. A nil verifier
// disables the check, which LoadConfig refuses in production.
func RequireAdmin(verify TokenVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if verify == nil {
				next.ServeHTTP(w, r.WithContext(shared.ContextWithActor(r.Context(), AdminActor)))
				return
			}
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || !verify(got) {
				logger.Warn("admin token rejected", slog.String("path", r.URL.Path))
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", shared.ErrUnauthorized.Error())
				return
			}
			next.ServeHTTP(w, r.WithContext(shared.ContextWithActor(r.Context(), AdminActor)))
		})
	}
}

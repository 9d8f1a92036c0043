package server

import (
	"context"
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/danielolaszy/poker/internal/logging"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/csrf"
)

type userKey struct{}

// WithLogging wraps a handler with request logging.
func WithLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		logging.Debug("request started",
			"method", r.Method,
			"path", r.URL.Path,
			"remote", r.RemoteAddr,
			"request_id", chiMiddleware.GetReqID(r.Context()),
		)

		next.ServeHTTP(ww, r)

		logging.Info("request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// markPlaintext tells the CSRF layer the request came over plain HTTP so it
// skips the TLS-only Referer check.
func markPlaintext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.TLS == nil {
			r = csrf.PlaintextHTTPRequest(r)
		}
		next.ServeHTTP(w, r)
	})
}

// Identity resolves the caller from basic auth credentials. Requests without
// credentials are anonymous. When users is empty any login is accepted,
// otherwise the password must match the configured token.
func Identity(users map[string]string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			login, password, ok := r.BasicAuth()
			if !ok || login == "" {
				next.ServeHTTP(w, r)
				return
			}
			if len(users) > 0 {
				token, known := users[login]
				if !known || subtle.ConstantTimeCompare([]byte(token), []byte(password)) != 1 {
					logging.Warn("rejected credentials", "login", login)
					w.Header().Set("WWW-Authenticate", `Basic realm="poker"`)
					writeText(w, http.StatusUnauthorized, "Invalid username or password.")
					return
				}
			}
			ctx := context.WithValue(r.Context(), userKey{}, login)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserFromContext returns the authenticated login, or "" for anonymous callers.
func UserFromContext(ctx context.Context) string {
	user, _ := ctx.Value(userKey{}).(string)
	return user
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(body))
}

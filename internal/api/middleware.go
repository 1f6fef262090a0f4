package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/vaidashi/gallery-api/internal/auth"
)

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Middleware for logging requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		s.logger.Info("Request processed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration", time.Since(start),
			"remoteAddr", r.RemoteAddr,
		)
	})
}

// identityMiddleware attaches the caller identity from a bearer token.
// Requests without a token continue anonymously; a bad token is rejected.
func (s *Server) identityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" || s.deps.Tokens == nil {
			next.ServeHTTP(w, r)
			return
		}

		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			s.respondWithError(w, http.StatusUnauthorized, "Authorization header must be a bearer token")
			return
		}

		identity, err := s.deps.Tokens.Parse(strings.TrimSpace(raw))
		if err != nil {
			s.logger.Debug("Rejected bearer token", "error", err, "path", r.URL.Path)
			s.respondWithError(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), identity)))
	})
}

func (s *Server) requireIdentity(h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth.FromContext(r.Context()) == nil {
			s.respondWithError(w, http.StatusUnauthorized, "Authentication required")
			return
		}
		h(w, r)
	})
}

func (s *Server) requireAdmin(h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity := auth.FromContext(r.Context())
		if identity == nil {
			s.respondWithError(w, http.StatusUnauthorized, "Authentication required")
			return
		}
		if !identity.IsAdmin() {
			s.respondWithError(w, http.StatusForbidden, "Admin access required")
			return
		}
		h(w, r)
	})
}

// limited applies the per-IP rate limit to public write endpoints
func (s *Server) limited(h http.HandlerFunc) http.Handler {
	if s.deps.RateLimiter == nil {
		return h
	}
	return s.deps.RateLimiter.Middleware(h)
}

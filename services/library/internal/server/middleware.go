package server

import (
	"errors"
	"net/http"

	"libraryhub/internal/stafftoken"
	"libraryhub/internal/util"
)

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}

// withWriteRateLimit applies the per-IP quota to mutating requests only.
func (s *Server) withWriteRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter == nil || !isMutating(r.Method) {
			next.ServeHTTP(w, r)
			return
		}
		key := util.ClientIP(r, s.trustedProxies)
		if !s.limiter.Allow(r.Context(), key) {
			w.Header().Set("Retry-After", "60")
			writeError(w, r, http.StatusTooManyRequests, codeRateLimited, "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withStaffToken requires a verified staff bearer token on mutating requests
// when a verifier is configured. The staff subject is added to the request logger.
func (s *Server) withStaffToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.staffTokens == nil || !isMutating(r.Method) {
			next.ServeHTTP(w, r)
			return
		}
		token, ok := stafftoken.BearerToken(r)
		if !ok {
			writeError(w, r, http.StatusUnauthorized, codeUnauthorized, "staff token required")
			return
		}
		claims, err := s.staffTokens.Verify(r.Context(), token)
		if err != nil {
			util.LoggerFromContext(r.Context()).Warn("staff token rejected", "err", err)
			msg := "invalid staff token"
			if errors.Is(err, stafftoken.ErrRevoked) {
				msg = "staff token revoked"
			}
			writeError(w, r, http.StatusUnauthorized, codeUnauthorized, msg)
			return
		}
		logger := util.LoggerFromContext(r.Context()).With("staff", claims.Subject)
		next.ServeHTTP(w, r.WithContext(util.ContextWithLogger(r.Context(), logger)))
	})
}

package server

import (
	"crypto/subtle"
	"net/http"
)

const tokenHeader = "X-API-Token"

func (s *Server) requireToken(next http.Handler) http.Handler {
	expected := []byte(s.cfg.APIToken)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		given := []byte(r.Header.Get(tokenHeader))
		if len(expected) == 0 || subtle.ConstantTimeCompare(given, expected) != 1 {
			respondError(s.logger, w, http.StatusForbidden, "FORBIDDEN", "invalid or missing API token")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleRateLimited(w http.ResponseWriter, _ *http.Request) {
	respondError(s.logger, w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests")
}

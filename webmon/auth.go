package webmon

import (
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"github.com/hazyhaar/changeview/kit"
	"github.com/hazyhaar/changeview/shield"
)

// requireUser enforces HTTP Basic auth against the configured users. With
// no users configured every request passes.
func (s *Service) requireUser(next http.Handler) http.Handler {
	users := s.cfg.Auth.Users
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(users) == 0 {
			next.ServeHTTP(w, r)
			return
		}
		name, password, ok := r.BasicAuth()
		if ok {
			if hash, known := users[name]; known && bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil {
				next.ServeHTTP(w, r.WithContext(kit.WithUser(r.Context(), name)))
				return
			}
		}
		shield.Logger(r.Context()).Warn("webmon: rejected credentials", "user", name)
		w.Header().Set("WWW-Authenticate", `Basic realm="changeview"`)
		writeError(w, 401, ErrUnauthorized)
	})
}

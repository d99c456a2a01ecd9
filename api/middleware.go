package api

import (
	"net/http"

	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// TokenMiddleware checks the tokens for non-public URLs
func TokenMiddleware(psk []byte, public map[string]string, h http.Handler) http.Handler {
	// the configured token is hashed once at startup so requests do a
	// constant time comparison against the hash
	hashedToken, err := bcrypt.GenerateFromPassword(psk, bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("unable to hash configured token: %s", err)
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := public[r.URL.Path]; ok {
			log.Debugf("not authenticating public url %s", r.URL)
			h.ServeHTTP(w, r)
			return
		}

		htoken := r.Header.Get("X-Auth-Token")
		if err := bcrypt.CompareHashAndPassword(hashedToken, []byte(htoken)); err != nil {
			log.Warnf("missing or bad token for request from %s to %s", r.RemoteAddr, r.URL)
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte("Forbidden"))
			return
		}

		h.ServeHTTP(w, r)
	})
}

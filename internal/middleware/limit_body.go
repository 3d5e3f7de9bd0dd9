package middleware

import (
	"net/http"
)

// MaxBodySize caps signing request bodies. They carry a session token or an
// email, nothing larger.
const MaxBodySize = 64 << 10

// LimitBody limits the size of request bodies
func LimitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, MaxBodySize)
		next.ServeHTTP(w, r)
	})
}

package middleware

import (
	"mime"
	"net/http"
	"strconv"
)

// DefaultMaxRequestSize bounds request bodies. Counter requests are tiny.
const DefaultMaxRequestSize int64 = 64 << 10

// JSONBody requires application/json on requests with a body and caps the body at maxBytes.
func JSONBody(maxBytes int64) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxRequestSize
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
				mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
				if err != nil || mediaType != "application/json" {
					respondErrorJSON(w, r, http.StatusUnsupportedMediaType, "Unsupported Media Type", "Content-Type must be application/json", nil)
					return
				}
				if r.ContentLength > maxBytes {
					respondErrorJSON(w, r, http.StatusRequestEntityTooLarge, "Request Entity Too Large",
						"Request body exceeds "+strconv.FormatInt(maxBytes, 10)+" bytes", nil)
					return
				}
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}

			next.ServeHTTP(w, r)
		})
	}
}

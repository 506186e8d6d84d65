package middleware

import (
	"net/http"

	apperrors "diffatours/pkg/errors"
	httputil "diffatours/pkg/http"
)

const CodePayloadTooLarge = "PAYLOAD_TOO_LARGE"

// MaxRequestSize caps the request body. Reads past the limit fail, which the
// JSON decoder reports as a bad request.
func MaxRequestSize(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > limit {
				w.Header().Set("Connection", "close")
				_ = httputil.WriteError(w, apperrors.New(CodePayloadTooLarge,
					"Request body is too large", http.StatusRequestEntityTooLarge))
				return
			}
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, limit)
			}
			next.ServeHTTP(w, r)
		})
	}
}

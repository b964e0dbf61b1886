// Package requestctx stamps each HTTP request with the request-scoped values
// the services read from pkg/requestcontext: one "now" for the whole request
// and a correlation ID.
package requestctx

import (
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"zakat/pkg/requestcontext"
)

// HeaderRequestID is read from the request and echoed on the response.
const HeaderRequestID = "X-Request-ID"

// Middleware captures the current time and the request ID at the start of
// the request. A missing, oversized or non-UTF-8 request ID is replaced with a
// new UUID.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(HeaderRequestID)
		if reqID == "" || len(reqID) > 128 || !utf8.ValidString(reqID) {
			reqID = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, reqID)

		ctx := requestcontext.WithTime(r.Context(), time.Now())
		ctx = requestcontext.WithRequestID(ctx, reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

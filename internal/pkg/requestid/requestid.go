package requestid

import (
	"context"
	"net/http"

	"github.com/lelandsequel/metalledger/internal/pkg/id"
)

// Header carries the correlation id across callers.
const Header = "X-Request-ID"

type ctxKey struct{}

func With(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, requestID)
}

// From returns the request id stored in ctx, or "".
func From(ctx context.Context) string {
	v, _ := ctx.Value(ctxKey{}).(string)
	return v
}

// Ensure returns ctx's request id, minting one if absent.
func Ensure(ctx context.Context) (context.Context, string) {
	if rid := From(ctx); rid != "" {
		return ctx, rid
	}
	rid := id.NewRequestID()
	return With(ctx, rid), rid
}

// Middleware reuses an inbound X-Request-ID or mints one, and echoes it on
// the response.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := r.Header.Get(Header)
		if rid == "" {
			rid = id.NewRequestID()
		}
		w.Header().Set(Header, rid)
		next.ServeHTTP(w, r.WithContext(With(r.Context(), rid)))
	})
}

package admin

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"

	dErrors "rekamed/pkg/domain-errors"
	"rekamed/pkg/platform/httputil"
	"rekamed/pkg/requestcontext"
)

type actorKey struct{}

// ActorID returns the operator named in X-Admin-Actor-ID, if any.
func ActorID(ctx context.Context) string {
	v, _ := ctx.Value(actorKey{}).(string)
	return v
}

// RequireAdminToken guards operator routes with a shared secret. An empty
// expected token disables the routes entirely.
func RequireAdminToken(expectedToken string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if expectedToken == "" {
				httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "not found"))
				return
			}
			token := r.Header.Get("X-Admin-Token")
			if subtle.ConstantTimeCompare([]byte(token), []byte(expectedToken)) != 1 {
				logger.WarnContext(ctx, "admin token mismatch",
					"request_id", requestcontext.RequestID(ctx),
					"path", r.URL.Path,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "admin token required"))
				return
			}
			if actor := r.Header.Get("X-Admin-Actor-ID"); actor != "" {
				ctx = context.WithValue(ctx, actorKey{}, actor)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

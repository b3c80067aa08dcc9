package controller

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sharetube/watchparty/internal/domain"
	"github.com/sharetube/watchparty/pkg/ctxlogger"
)

func (c controller) requestIdMw(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		ctx = ctxlogger.AppendCtx(ctx, slog.String("request_id", uuid.NewString()))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (c controller) requestLoggingMw(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.logger.InfoContext(r.Context(), "request",
			"method", r.Method,
			"url", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)
		next.ServeHTTP(w, r)
	})
}

// authMw requires a bearer token bound to the channel in the path.
func (c controller) authMw(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			c.writeUnauthorized(w, r, "missing bearer token")
			return
		}

		claims, err := c.channelService.ParseToken(token)
		if err != nil {
			c.logger.DebugContext(r.Context(), "failed to parse token", "error", err)
			c.writeUnauthorized(w, r, "invalid token")
			return
		}

		if claims.ChannelID != chi.URLParam(r, "channel-id") {
			c.writeError(w, r, domain.ErrPermissionDenied)
			return
		}

		next.ServeHTTP(w, r.WithContext(withMember(r.Context(), claims.ChannelID, claims.Identity)))
	})
}

package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"finsight/internal/core"
	"finsight/internal/log"
)

type ctxKey string

const userIDKey ctxKey = "user_id"

// QueryTokenParam carries the token on WebSocket upgrades, where browsers
// cannot set an Authorization header.
const QueryTokenParam = "access_token"

// Middleware rejects requests without a valid bearer token and stores the
// token's user id in the request context.
func Middleware(issuer *Issuer, logger *log.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentAuth)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				unauthorized(w, "missing auth token")
				return
			}
			uid, err := issuer.Verify(token)
			if err != nil {
				logger.DebugContext(r.Context(), "Token rejected", log.FieldError, err.Error(), log.FieldPath, r.URL.Path)
				unauthorized(w, "invalid or expired token")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), uid)))
		})
	}
}

// BearerToken extracts the token from the Authorization header, or from the
// access_token query parameter on WebSocket upgrades.
func BearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
			return strings.TrimSpace(h[7:])
		}
		return ""
	}
	if websocket.IsWebSocketUpgrade(r) {
		return r.URL.Query().Get(QueryTokenParam)
	}
	return ""
}

func WithUserID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

func UserIDFromContext(ctx context.Context) (uuid.UUID, error) {
	uid, ok := ctx.Value(userIDKey).(uuid.UUID)
	if !ok || uid == uuid.Nil {
		return uuid.Nil, core.ErrNotAuthenticated
	}
	return uid, nil
}

func unauthorized(w http.ResponseWriter, details string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="finsight"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(core.APIError{Message: "unauthorized", Details: details})
}

package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/backoffice/pkg/composables"
	"github.com/iota-uz/backoffice/pkg/types"
)

const (
	DefaultActorIDHeader   = "X-Actor-ID"
	DefaultActorRoleHeader = "X-Actor-Role"
)

// WithActor resolves the caller from the headers set by the upstream gateway.
// Requests without a valid actor id proceed anonymously; services reject them.
func WithActor(idHeader, roleHeader string) mux.MiddlewareFunc {
	if idHeader == "" {
		idHeader = DefaultActorIDHeader
	}
	if roleHeader == "" {
		roleHeader = DefaultActorRoleHeader
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get(idHeader))
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}
			id, err := uuid.Parse(raw)
			if err != nil || id == uuid.Nil {
				composables.UseLogger(r.Context()).WithField("actor-id", raw).Warn("ignoring malformed actor id header")
				next.ServeHTTP(w, r)
				return
			}
			actor := types.Actor{ID: id, Role: types.ParseRole(r.Header.Get(roleHeader))}
			logger := composables.UseLogger(r.Context()).WithFields(logrus.Fields{
				"actor-id":   actor.ID.String(),
				"actor-role": string(actor.Role),
			})
			ctx := composables.WithActor(r.Context(), actor)
			ctx = composables.WithLogger(ctx, logger)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

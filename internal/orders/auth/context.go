package auth

import (
	"context"

	"github.com/gartstein/orderdesk/internal/orders/models"
)

type contextKey string

const (
	actorContextKey contextKey = "actor"
)

// WithActor returns a copy of ctx carrying actor.
func WithActor(ctx context.Context, actor models.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey, actor)
}

// ActorFromContext returns the actor stored by WithActor. The second
// result is false when ctx carries no authenticated actor.
func ActorFromContext(ctx context.Context) (models.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey).(models.Actor)
	if !ok || !actor.Authenticated() {
		return models.Actor{}, false
	}
	return actor, true
}

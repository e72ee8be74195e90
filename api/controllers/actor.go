package controllers

import (
	"net/http"

	"github.com/mmararief/dante-propolis/api/middleware"
	"github.com/mmararief/dante-propolis/internal/orders"
	pkgerrors "github.com/mmararief/dante-propolis/pkg/errors"
	"github.com/mmararief/dante-propolis/pkg/outbox"
)

func actorFromRequest(r *http.Request) (orders.Actor, error) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		return orders.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if !id.Role.IsValid() {
		return orders.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid role").WithDetails(map[string]any{"role": string(id.Role)})
	}
	return orders.Actor{UserID: id.UserID, Role: id.Role}, nil
}

func eventActor(actor orders.Actor) *outbox.ActorRef {
	return &outbox.ActorRef{UserID: actor.UserID, Role: string(actor.Role)}
}

package controllers

import (
	"context"
	"net/http"

	"github.com/mmararief/dante-propolis/api/responses"
	pkgerrors "github.com/mmararief/dante-propolis/pkg/errors"
	"github.com/mmararief/dante-propolis/pkg/logger"
)

// ExpiryReleaser cancels orders whose reservation window has lapsed.
type ExpiryReleaser interface {
	RunExpiryRelease(ctx context.Context) (int, error)
}

// ReleaseExpiredReservations runs one reclaim sweep on demand.
func ReleaseExpiredReservations(releaser ExpiryReleaser, enabled bool, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !enabled {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "manual release is disabled"))
			return
		}
		if releaser == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reclaimer unavailable"))
			return
		}

		released, err := releaser.RunExpiryRelease(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]int{"released": released})
	}
}

package cron

import (
	"context"
	"fmt"

	"github.com/mmararief/dante-propolis/pkg/logger"
)

// ReservationExpiryJobName is the registry name of the expiry sweep.
const ReservationExpiryJobName = "reservation-expiry"

type expiryReleaser interface {
	RunExpiryRelease(ctx context.Context) (int, error)
}

type ReservationExpiryJobParams struct {
	Logger    *logger.Logger
	Reclaimer expiryReleaser
}

// NewReservationExpiryJob runs the reclaimer on every worker tick.
func NewReservationExpiryJob(params ReservationExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Reclaimer == nil {
		return nil, fmt.Errorf("reclaimer required")
	}
	return &reservationExpiryJob{logg: params.Logger, reclaimer: params.Reclaimer}, nil
}

type reservationExpiryJob struct {
	logg      *logger.Logger
	reclaimer expiryReleaser
}

func (j *reservationExpiryJob) Name() string { return ReservationExpiryJobName }

func (j *reservationExpiryJob) Run(ctx context.Context) error {
	released, err := j.reclaimer.RunExpiryRelease(ctx)
	if released > 0 || err != nil {
		j.logg.Info(j.logg.WithField(ctx, "orders_released", released), "reservation expiry sweep finished")
	}
	if err != nil {
		return fmt.Errorf("reservation expiry: %w", err)
	}
	return nil
}

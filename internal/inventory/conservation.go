package inventory

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mmararief/dante-propolis/pkg/db/models"
	pkgerrors "github.com/mmararief/dante-propolis/pkg/errors"
)

// ConservationReport compares stored batch counters with the totals rebuilt
// from its movements.
type ConservationReport struct {
	BatchID           uuid.UUID `json:"batch_id"`
	InitialQty        int       `json:"initial_qty"`
	RemainingQty      int       `json:"remaining_qty"`
	ReservedQty       int       `json:"reserved_qty"`
	ExpectedInitial   int       `json:"expected_initial"`
	ExpectedRemaining int       `json:"expected_remaining"`
	ExpectedReserved  int       `json:"expected_reserved"`
	Movements         int       `json:"movements"`
	Balanced          bool      `json:"balanced"`
}

// Replay folds movements into the counters they imply.
func Replay(movements []models.StockMovement) (initial, remaining, reserved int) {
	for _, m := range movements {
		if m.Reason.AffectsInitial() {
			initial += m.Delta
		}
		if m.Reason.AffectsRemaining() {
			remaining += m.Delta
		}
		if m.Reason.AffectsReserved() {
			reserved += m.Delta
		}
	}
	return initial, remaining, reserved
}

// VerifyConservation rebuilds the batch counters from its movement history.
func (l *Ledger) VerifyConservation(ctx context.Context, db *gorm.DB, batchID uuid.UUID) (*ConservationReport, error) {
	repo := NewRepository(db)
	batch, err := repo.FindBatch(ctx, batchID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "batch not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load batch")
	}
	movements, err := repo.Movements(ctx, batchID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load movements")
	}

	initial, remaining, reserved := Replay(movements)
	report := &ConservationReport{
		BatchID:           batch.ID,
		InitialQty:        batch.InitialQty,
		RemainingQty:      batch.RemainingQty,
		ReservedQty:       batch.ReservedQty,
		ExpectedInitial:   initial,
		ExpectedRemaining: remaining,
		ExpectedReserved:  reserved,
		Movements:         len(movements),
	}
	report.Balanced = initial == batch.InitialQty &&
		remaining == batch.RemainingQty &&
		reserved == batch.ReservedQty
	return report, nil
}

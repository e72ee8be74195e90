package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mmararief/dante-propolis/pkg/db/models"
	"github.com/mmararief/dante-propolis/pkg/enums"
	pkgerrors "github.com/mmararief/dante-propolis/pkg/errors"
	"github.com/mmararief/dante-propolis/pkg/outbox"
	"github.com/mmararief/dante-propolis/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service exposes the admin-facing inventory operations.
type Service interface {
	CreateBatch(ctx context.Context, input NewBatch) (*models.Batch, error)
	AdjustBatch(ctx context.Context, batchID uuid.UUID, delta int, note string) (*models.Batch, error)
	BatchQuantities(ctx context.Context, productID uuid.UUID) ([]BatchQuantity, error)
	ProductTotals(ctx context.Context) ([]ProductTotal, error)
	Audit(ctx context.Context, batchID uuid.UUID) (*ConservationReport, error)
}

type service struct {
	tx     txRunner
	db     *gorm.DB
	repo   *Repository
	ledger *Ledger
	outbox outbox.Emitter
}

// NewService wires the inventory service.
func NewService(tx txRunner, db *gorm.DB, ledger *Ledger, emitter outbox.Emitter) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if db == nil {
		return nil, fmt.Errorf("db required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("ledger required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	return &service{tx: tx, db: db, repo: NewRepository(db), ledger: ledger, outbox: emitter}, nil
}

func (s *service) CreateBatch(ctx context.Context, input NewBatch) (*models.Batch, error) {
	var batch *models.Batch
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		created, err := s.ledger.CreateBatch(ctx, tx, input)
		if err != nil {
			return err
		}
		batch = created
		return s.emitStockChange(ctx, tx, enums.EventBatchRestocked, created, created.InitialQty)
	})
	if err != nil {
		return nil, err
	}
	return batch, nil
}

func (s *service) AdjustBatch(ctx context.Context, batchID uuid.UUID, delta int, note string) (*models.Batch, error) {
	var batch *models.Batch
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		adjusted, err := s.ledger.Adjust(ctx, tx, batchID, delta, BatchRef(batchID), note)
		if err != nil {
			return err
		}
		batch = adjusted
		return s.emitStockChange(ctx, tx, enums.EventBatchAdjusted, adjusted, delta)
	})
	if err != nil {
		return nil, err
	}
	return batch, nil
}

func (s *service) BatchQuantities(ctx context.Context, productID uuid.UUID) ([]BatchQuantity, error) {
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if err := s.db.WithContext(ctx).Select("id").First(&models.Product{}, "id = ?", productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	rows, err := s.repo.BatchQuantities(ctx, productID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list batch quantities")
	}
	return rows, nil
}

func (s *service) ProductTotals(ctx context.Context) ([]ProductTotal, error) {
	rows, err := s.repo.ProductTotals(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "aggregate product totals")
	}
	return rows, nil
}

func (s *service) Audit(ctx context.Context, batchID uuid.UUID) (*ConservationReport, error) {
	return s.ledger.VerifyConservation(ctx, s.db, batchID)
}

func (s *service) emitStockChange(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, batch *models.Batch, delta int) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:   eventType,
		AggregateID: batch.ID,
		Data: payloads.BatchStockChangedEvent{
			BatchID:      batch.ID,
			ProductID:    batch.ProductID,
			BatchNumber:  batch.BatchNumber,
			Delta:        delta,
			RemainingQty: batch.RemainingQty,
			ReservedQty:  batch.ReservedQty,
		},
	})
}

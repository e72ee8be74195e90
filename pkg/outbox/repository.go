package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mmararief/dante-propolis/pkg/db/models"
)

const maxLastErrorLen = 1024

var errNoTx = errors.New("transaction required")

// Repository owns outbox_events. Every write runs in a caller transaction so
// rows commit or roll back with the state change that produced them.
type Repository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

func (r *Repository) Insert(tx *gorm.DB, event models.OutboxEvent) error {
	if tx == nil {
		return errNoTx
	}
	return tx.Create(&event).Error
}

// ClaimPending locks up to limit unpublished rows, oldest first. Rows held by
// another relay are skipped rather than waited on.
func (r *Repository) ClaimPending(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	if tx == nil {
		return nil, errNoTx
	}
	q := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("published_at IS NULL")
	if maxAttempts > 0 {
		q = q.Where("attempt_count < ?", maxAttempts)
	}
	var rows []models.OutboxEvent
	err := q.Order("created_at ASC").Order("id ASC").Limit(limit).Find(&rows).Error
	return rows, err
}

func (r *Repository) MarkPublished(tx *gorm.DB, id uuid.UUID) error {
	return r.update(tx, id, map[string]any{"published_at": r.now().UTC()})
}

func (r *Repository) MarkFailed(tx *gorm.DB, id uuid.UUID, cause error) error {
	return r.update(tx, id, map[string]any{
		"last_error":    truncateError(cause),
		"attempt_count": gorm.Expr("attempt_count + 1"),
	})
}

// MarkTerminal parks a row at maxAttempts so ClaimPending never returns it.
func (r *Repository) MarkTerminal(tx *gorm.DB, id uuid.UUID, cause error, maxAttempts int) error {
	return r.update(tx, id, map[string]any{
		"last_error":    truncateError(cause),
		"attempt_count": maxAttempts,
	})
}

func (r *Repository) update(tx *gorm.DB, id uuid.UUID, fields map[string]any) error {
	if tx == nil {
		return errNoTx
	}
	return tx.Model(&models.OutboxEvent{}).Where("id = ?", id).Updates(fields).Error
}

// Prune removes rows published before cutoff, plus rows parked after
// minAttempts failures that were created before cutoff.
func (r *Repository) Prune(ctx context.Context, tx *gorm.DB, cutoff time.Time, minAttempts int) (int64, error) {
	if tx == nil {
		return 0, errNoTx
	}
	res := tx.WithContext(ctx).
		Where("published_at IS NOT NULL AND published_at < ?", cutoff).
		Or("published_at IS NULL AND attempt_count >= ? AND created_at < ?", minAttempts, cutoff).
		Delete(&models.OutboxEvent{})
	return res.RowsAffected, res.Error
}

// Backlog counts rows still waiting to be published and the creation time of
// the oldest one.
type Backlog struct {
	Pending int64
	Oldest  *time.Time
}

func (r *Repository) Backlog(ctx context.Context, maxAttempts int) (Backlog, error) {
	q := r.db.WithContext(ctx).Model(&models.OutboxEvent{}).Where("published_at IS NULL")
	if maxAttempts > 0 {
		q = q.Where("attempt_count < ?", maxAttempts)
	}
	var out Backlog
	if err := q.Session(&gorm.Session{}).Count(&out.Pending).Error; err != nil {
		return Backlog{}, err
	}
	if out.Pending == 0 {
		return out, nil
	}
	var oldest models.OutboxEvent
	if err := q.Session(&gorm.Session{}).Select("created_at").Order("created_at ASC").Limit(1).Take(&oldest).Error; err != nil {
		return Backlog{}, err
	}
	out.Oldest = &oldest.CreatedAt
	return out, nil
}

func truncateError(err error) string {
	if err == nil {
		return ""
	}
	return truncate(err.Error())
}

func truncate(msg string) string {
	if len(msg) > maxLastErrorLen {
		return msg[:maxLastErrorLen]
	}
	return msg
}

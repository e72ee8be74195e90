package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/mmararief/dante-propolis/pkg/logger"
)

const (
	OutboxRetentionJobName = "outbox-retention"

	outboxRetentionDays  = 30
	dlqRetentionDays     = 90
	outboxMinAttempts    = 10
	outboxRetentionEvery = 24 * time.Hour
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPruner interface {
	Prune(ctx context.Context, tx *gorm.DB, cutoff time.Time, minAttempts int) (int64, error)
}

type dlqPruner interface {
	Prune(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

// OutboxRetentionJobParams configure NewOutboxRetentionJob. Zero retention
// values fall back to 30 days for outbox rows and 90 for dead letters.
type OutboxRetentionJobParams struct {
	Logger       *logger.Logger
	DB           txRunner
	Outbox       outboxPruner
	DLQ          dlqPruner
	Retention    int
	DLQRetention int
	MinAttempts  int
}

// NewOutboxRetentionJob prunes delivered and parked outbox rows, and old dead
// letters, once a day. Dead letters outlive outbox rows so they can still be
// inspected after the source row is gone.
func NewOutboxRetentionJob(p OutboxRetentionJobParams) (Job, error) {
	switch {
	case p.Logger == nil:
		return nil, errors.New("logger required")
	case p.DB == nil:
		return nil, errors.New("db runner required")
	case p.Outbox == nil:
		return nil, errors.New("outbox repository required")
	case p.DLQ == nil:
		return nil, errors.New("dlq repository required")
	}
	return &outboxRetentionJob{
		logg:        p.Logger,
		db:          p.DB,
		outbox:      p.Outbox,
		dlq:         p.DLQ,
		retention:   orDefault(p.Retention, outboxRetentionDays),
		dlqDays:     orDefault(p.DLQRetention, dlqRetentionDays),
		minAttempts: orDefault(p.MinAttempts, outboxMinAttempts),
		now:         time.Now,
	}, nil
}

func orDefault(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}

type outboxRetentionJob struct {
	logg        *logger.Logger
	db          txRunner
	outbox      outboxPruner
	dlq         dlqPruner
	retention   int
	dlqDays     int
	minAttempts int
	now         func() time.Time
}

func (j *outboxRetentionJob) Name() string { return OutboxRetentionJobName }

func (j *outboxRetentionJob) Every() time.Duration { return outboxRetentionEvery }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	outboxCutoff := now.AddDate(0, 0, -j.retention)
	dlqCutoff := now.AddDate(0, 0, -j.dlqDays)

	var rows, letters int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		if rows, err = j.outbox.Prune(ctx, tx, outboxCutoff, j.minAttempts); err != nil {
			return fmt.Errorf("prune outbox: %w", err)
		}
		if letters, err = j.dlq.Prune(ctx, tx, dlqCutoff); err != nil {
			return fmt.Errorf("prune dlq: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("outbox retention: %w", err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"outbox_cutoff": outboxCutoff,
		"dlq_cutoff":    dlqCutoff,
		"rows_deleted":  rows,
		"dlq_deleted":   letters,
	}), "outbox retention cleanup complete")
	return nil
}

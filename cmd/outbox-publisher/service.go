package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mmararief/dante-propolis/pkg/config"
	"github.com/mmararief/dante-propolis/pkg/db/models"
	"github.com/mmararief/dante-propolis/pkg/enums"
	"github.com/mmararief/dante-propolis/pkg/logger"
	"github.com/mmararief/dante-propolis/pkg/metrics"
	"github.com/mmararief/dante-propolis/pkg/outbox"
	"github.com/mmararief/dante-propolis/pkg/outbox/registry"
)

const (
	producerName   = "dante-propolis"
	publishTimeout = 15 * time.Second
	maxBackoff     = 10 * time.Second
	jitterWindow   = 250 * time.Millisecond

	fallbackBatchSize   = 50
	fallbackPoll        = 500 * time.Millisecond
	fallbackMaxAttempts = 10
)

type txRunner interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

// sinkClient is the broker connection behind the publishers.
type sinkClient interface {
	Ping(context.Context) error
}

type outboxRepository interface {
	ClaimPending(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublished(tx *gorm.DB, id uuid.UUID) error
	MarkFailed(tx *gorm.DB, id uuid.UUID, cause error) error
	MarkTerminal(tx *gorm.DB, id uuid.UUID, cause error, maxAttempts int) error
	Backlog(ctx context.Context, maxAttempts int) (outbox.Backlog, error)
}

type dlqRepository interface {
	Park(tx *gorm.DB, entry models.OutboxDLQ) error
}

type eventResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type publisherFactory func(topic string) publisher

// message is the broker-neutral form of an outbox row.
type message struct {
	Key        []byte
	Data       []byte
	Attributes map[string]string
}

type publisher interface {
	Publish(context.Context, message) error
}

// RelayParams wires a Relay. Metrics may be nil.
type RelayParams struct {
	Outbox     config.OutboxConfig
	Logger     *logger.Logger
	DB         txRunner
	Sink       sinkClient
	SinkName   string
	Repository outboxRepository
	DLQ        dlqRepository
	Resolver   eventResolver
	Publishers publisherFactory
	Metrics    *metrics.OutboxMetrics
}

// Relay drains outbox_events to the configured broker. Each batch is claimed
// and settled inside one transaction, so a row is marked only after its
// broker call returned.
type Relay struct {
	logg        *logger.Logger
	db          txRunner
	sink        sinkClient
	sinkName    string
	repo        outboxRepository
	dlq         dlqRepository
	resolver    eventResolver
	publishers  publisherFactory
	metrics     *metrics.OutboxMetrics
	batchSize   int
	maxAttempts int
	poll        time.Duration
	now         func() time.Time
}

func NewRelay(p RelayParams) (*Relay, error) {
	required := []struct {
		name    string
		missing bool
	}{
		{"logger", p.Logger == nil},
		{"database client", p.DB == nil},
		{"sink client", p.Sink == nil},
		{"outbox repository", p.Repository == nil},
		{"dlq repository", p.DLQ == nil},
		{"event resolver", p.Resolver == nil},
		{"publisher factory", p.Publishers == nil},
	}
	for _, dep := range required {
		if dep.missing {
			return nil, fmt.Errorf("%s is required", dep.name)
		}
	}

	r := &Relay{
		logg:        p.Logger,
		db:          p.DB,
		sink:        p.Sink,
		sinkName:    p.SinkName,
		repo:        p.Repository,
		dlq:         p.DLQ,
		resolver:    p.Resolver,
		publishers:  p.Publishers,
		metrics:     p.Metrics,
		batchSize:   p.Outbox.BatchSize,
		maxAttempts: p.Outbox.MaxAttempts,
		poll:        time.Duration(p.Outbox.PollIntervalMS) * time.Millisecond,
		now:         time.Now,
	}
	if r.sinkName == "" {
		r.sinkName = config.OutboxSinkPubSub
	}
	if r.batchSize <= 0 {
		r.batchSize = fallbackBatchSize
	}
	if r.maxAttempts <= 0 {
		r.maxAttempts = fallbackMaxAttempts
	}
	if r.poll <= 0 {
		r.poll = fallbackPoll
	}
	return r, nil
}

// Run relays until ctx is cancelled. A full batch is followed immediately by
// the next one; an empty batch waits one poll interval; failures back off
// exponentially up to maxBackoff.
func (r *Relay) Run(ctx context.Context) error {
	if err := r.db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	if err := r.sink.Ping(ctx); err != nil {
		return fmt.Errorf("%s ping failed: %w", r.sinkName, err)
	}

	failures := 0
	for {
		if err := ctx.Err(); err != nil {
			r.logg.Info(ctx, "outbox relay stopping")
			return err
		}

		claimed, err := r.relayBatch(ctx)
		var wait time.Duration
		switch {
		case err != nil:
			failures++
			wait = backoff(r.poll, failures)
			r.logg.Error(r.logg.WithFields(ctx, map[string]any{"failures": failures, "retry_in_ms": wait.Milliseconds()}), "outbox relay batch failed", err)
		case claimed >= r.batchSize:
			failures = 0
			continue
		default:
			failures = 0
			wait = r.poll
			r.observeBacklog(ctx)
		}
		if err := sleepCtx(ctx, wait+jitter()); err != nil {
			return err
		}
	}
}

// relayBatch claims up to batchSize rows and settles each of them.
func (r *Relay) relayBatch(ctx context.Context) (int, error) {
	start := r.now()
	claimed := 0
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := r.repo.ClaimPending(tx, r.batchSize, r.maxAttempts)
		if err != nil {
			return fmt.Errorf("claim outbox rows: %w", err)
		}
		claimed = len(events)
		for _, event := range events {
			if err := r.settle(ctx, tx, event, r.deliver(ctx, event)); err != nil {
				return err
			}
		}
		return nil
	})
	if claimed > 0 {
		r.metrics.ObserveBatch(claimed, r.now().Sub(start))
	}
	return claimed, err
}

// observeBacklog publishes the pending row count and oldest row age. Errors
// only cost a stale gauge.
func (r *Relay) observeBacklog(ctx context.Context) {
	if r.metrics == nil {
		return
	}
	backlog, err := r.repo.Backlog(ctx, r.maxAttempts)
	if err != nil {
		r.logg.Warn(r.logg.WithField(ctx, "error", err.Error()), "outbox backlog query failed")
		return
	}
	var age time.Duration
	if backlog.Oldest != nil {
		age = max(r.now().Sub(*backlog.Oldest), 0)
	}
	r.metrics.SetBacklog(backlog.Pending, age)
}

type deliveryOutcome string

const (
	outcomePublished  deliveryOutcome = metrics.DeliveryPublished
	outcomeRetry      deliveryOutcome = metrics.DeliveryRetry
	outcomeDeadLetter deliveryOutcome = metrics.DeliveryDeadLetter
)

type deliveryResult struct {
	outcome deliveryOutcome
	topic   string
	reason  enums.OutboxDLQErrorReason
	err     error
}

// deliver hands one row to the broker and classifies what happened.
func (r *Relay) deliver(ctx context.Context, event models.OutboxEvent) deliveryResult {
	resolved, err := r.resolver.Resolve(event)
	if err != nil {
		return deliveryResult{outcome: outcomeDeadLetter, reason: enums.OutboxDLQReasonUndecodable, err: err}
	}
	topic := resolved.Descriptor.Topic
	pub := r.publishers(topic)
	if pub == nil {
		return deliveryResult{
			outcome: outcomeDeadLetter,
			topic:   topic,
			reason:  enums.OutboxDLQReasonUnroutable,
			err:     fmt.Errorf("no publisher for topic %s", topic),
		}
	}

	publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	err = pub.Publish(publishCtx, buildMessage(event, resolved.Envelope))

	var nonRetryable registry.NonRetryableError
	switch {
	case err == nil:
		return deliveryResult{outcome: outcomePublished, topic: topic}
	case errors.As(err, &nonRetryable):
		return deliveryResult{outcome: outcomeDeadLetter, topic: topic, reason: enums.OutboxDLQReasonNonRetryable, err: err}
	case event.AttemptCount+1 >= r.maxAttempts:
		return deliveryResult{
			outcome: outcomeDeadLetter,
			topic:   topic,
			reason:  enums.OutboxDLQReasonMaxAttempts,
			err:     fmt.Errorf("gave up after %d attempts: %w", event.AttemptCount+1, err),
		}
	}
	return deliveryResult{outcome: outcomeRetry, topic: topic, err: err}
}

// settle records the delivery result on the row, parking dead letters in
// outbox_dlq before marking the row terminal.
func (r *Relay) settle(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, res deliveryResult) error {
	r.metrics.ObserveDelivery(string(event.EventType), string(res.outcome))
	logCtx := r.logg.WithFields(ctx, r.logFields(event, res))

	switch res.outcome {
	case outcomePublished:
		if err := r.repo.MarkPublished(tx, event.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		r.logg.Info(logCtx, "outbox event published")
	case outcomeRetry:
		if err := r.repo.MarkFailed(tx, event.ID, res.err); err != nil {
			return fmt.Errorf("mark failed %s: %w", event.ID, err)
		}
		r.logg.Warn(logCtx, "outbox publish failed, will retry")
	case outcomeDeadLetter:
		errMsg := res.err.Error()
		entry := models.OutboxDLQ{
			EventID:       event.ID,
			EventType:     event.EventType,
			AggregateType: event.AggregateType,
			AggregateID:   event.AggregateID,
			Payload:       event.Payload,
			ErrorReason:   res.reason,
			ErrorMessage:  &errMsg,
			AttemptCount:  event.AttemptCount,
			FailedAt:      r.now().UTC(),
		}
		if err := r.dlq.Park(tx, entry); err != nil {
			return fmt.Errorf("insert dlq %s: %w", event.ID, err)
		}
		if err := r.repo.MarkTerminal(tx, event.ID, res.err, r.maxAttempts); err != nil {
			return fmt.Errorf("mark terminal %s: %w", event.ID, err)
		}
		r.logg.Warn(logCtx, "outbox event dead-lettered")
	}
	return nil
}

func (r *Relay) logFields(event models.OutboxEvent, res deliveryResult) map[string]any {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"attempt":        event.AttemptCount + 1,
		"sink":           r.sinkName,
		"outcome":        res.outcome,
	}
	if res.topic != "" {
		fields["topic"] = res.topic
	}
	if res.err != nil {
		fields["error"] = res.err.Error()
	}
	if res.reason != "" {
		fields["dlq_reason"] = res.reason
	}
	return fields
}

// buildMessage keys every message by aggregate so consumers see the events
// of one order or batch in order.
func buildMessage(event models.OutboxEvent, env outbox.PayloadEnvelope) message {
	occurredAt := env.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = event.CreatedAt
	}
	eventID := env.EventID
	if eventID == "" {
		eventID = event.ID.String()
	}
	return message{
		Key:  []byte(event.AggregateID.String()),
		Data: event.Payload,
		Attributes: map[string]string{
			"producer":       producerName,
			"event_id":       eventID,
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID.String(),
			"schema_version": strconv.Itoa(env.Version),
			"occurred_at":    occurredAt.UTC().Format(time.RFC3339Nano),
		},
	}
}

func backoff(base time.Duration, failures int) time.Duration {
	d := base
	for i := 0; i < failures && d < maxBackoff; i++ {
		d *= 2
	}
	return min(d, maxBackoff)
}

func jitter() time.Duration {
	return rand.N(jitterWindow)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

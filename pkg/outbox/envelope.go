package outbox

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// currentVersion is stamped on every envelope written by Emit. Consumers
// reject envelopes newer than the version they were built against.
const currentVersion = 1

const systemRole = "system"

var errEmptyData = errors.New("envelope carries no data")

// ActorRef names the user, or the system, whose action raised an event.
type ActorRef struct {
	UserID uuid.UUID `json:"userId"`
	Role   string    `json:"role,omitempty"`
}

// SystemActor is the actor for events raised by the reclaimer and other jobs.
func SystemActor() *ActorRef {
	return &ActorRef{Role: systemRole}
}

// IsSystem reports whether the event was raised without a user.
func (a *ActorRef) IsSystem() bool {
	return a == nil || a.Role == systemRole
}

// PayloadEnvelope is the JSON document stored in outbox_events.payload.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

func newEnvelope(event DomainEvent, data json.RawMessage, now time.Time) PayloadEnvelope {
	env := PayloadEnvelope{
		Version:    event.Version,
		EventID:    uuid.NewString(),
		OccurredAt: event.OccurredAt,
		Actor:      event.Actor,
		Data:       data,
	}
	if env.Version == 0 {
		env.Version = currentVersion
	}
	if env.OccurredAt.IsZero() {
		env.OccurredAt = now.UTC()
	}
	return env
}

// DecodeEnvelope parses a stored payload. It fails on unknown versions and on
// envelopes whose data is missing or null.
func DecodeEnvelope(raw []byte) (PayloadEnvelope, error) {
	var env PayloadEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return PayloadEnvelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Version < 1 || env.Version > currentVersion {
		return PayloadEnvelope{}, fmt.Errorf("unsupported envelope version %d", env.Version)
	}
	data := bytes.TrimSpace(env.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return PayloadEnvelope{}, errEmptyData
	}
	env.Data = data
	return env, nil
}

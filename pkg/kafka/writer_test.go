package kafka

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/segmentio/kafka-go"

	"github.com/mmararief/dante-propolis/pkg/config"
)

type recordingWriter struct {
	messages []kafka.Message
	err      error
}

func (r *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if r.err != nil {
		return r.err
	}
	r.messages = append(r.messages, msgs...)
	return nil
}

func (r *recordingWriter) Close() error { return nil }

func TestPublishSetsTopicKeyAndHeaders(t *testing.T) {
	rec := &recordingWriter{}
	w := &Writer{writer: rec}

	err := w.Publish(context.Background(), "orders", []byte("order-1"), []byte(`{"v":1}`), map[string]string{"event_type": "order.placed"})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(rec.messages) != 1 {
		t.Fatalf("expected one message, got %d", len(rec.messages))
	}
	msg := rec.messages[0]
	if msg.Topic != "orders" || string(msg.Key) != "order-1" {
		t.Fatalf("unexpected message %+v", msg)
	}
	if got := HeaderValue(msg, "event_type"); got != "order.placed" {
		t.Fatalf("unexpected header %q", got)
	}
}

func TestPublishRequiresTopic(t *testing.T) {
	w := &Writer{writer: &recordingWriter{}}
	if err := w.Publish(context.Background(), " ", nil, nil, nil); err == nil {
		t.Fatalf("expected error for blank topic")
	}
}

func TestPublishWrapsWriterError(t *testing.T) {
	cause := errors.New("leader not available")
	w := &Writer{writer: &recordingWriter{err: cause}}
	if err := w.Publish(context.Background(), "inventory", nil, nil, nil); !errors.Is(err, cause) {
		t.Fatalf("expected wrapped cause, got %v", err)
	}
}

func TestPingTriesEveryBroker(t *testing.T) {
	var dialed []string
	w := &Writer{
		brokers: []string{"a:9092", "b:9092"},
		dial: func(_ context.Context, _, address string) (net.Conn, error) {
			dialed = append(dialed, address)
			if address == "b:9092" {
				client, server := net.Pipe()
				_ = server.Close()
				return client, nil
			}
			return nil, errors.New("refused")
		},
	}
	if err := w.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if len(dialed) != 2 {
		t.Fatalf("expected both brokers dialed, got %v", dialed)
	}
}

func TestNewWriterRequiresBrokers(t *testing.T) {
	if _, err := NewWriter(config.KafkaConfig{Brokers: " , "}, nil); !errors.Is(err, errNoBrokers) {
		t.Fatalf("expected missing brokers error, got %v", err)
	}
}

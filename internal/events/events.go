// Package events carries record-change notifications between processes.
//
// An Event is deliberately thin: it names the user whose ledger changed and
// the record involved. Receivers re-read the full state from the store, so
// lost or duplicated events never leave a reader with a wrong ledger, only a
// late one.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Kind names the change an event describes.
type Kind string

const (
	RecordCreated Kind = "record.created"
	RecordDeleted Kind = "record.deleted"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == RecordCreated || k == RecordDeleted
}

// Event is the wire message published after every successful write.
type Event struct {
	Kind      Kind      `json:"kind"`
	UserID    string    `json:"user_id"`
	RecordID  string    `json:"record_id"`
	Origin    string    `json:"origin"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrInvalidEvent is returned by FromJSON for structurally valid JSON that
// is not a usable event.
var ErrInvalidEvent = errors.New("invalid event")

// New builds an event stamped with the current time.
func New(kind Kind, userID, recordID, origin string) Event {
	return Event{
		Kind:      kind,
		UserID:    userID,
		RecordID:  recordID,
		Origin:    origin,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON converts the event to JSON bytes
func (e Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// FromJSON decodes and validates an event.
func FromJSON(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, err
	}
	if !e.Kind.Valid() {
		return Event{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidEvent, e.Kind)
	}
	if e.UserID == "" {
		return Event{}, fmt.Errorf("%w: missing user_id", ErrInvalidEvent)
	}
	return e, nil
}

// Handler processes one event. Returning an error asks the transport to
// redeliver where it supports that.
type Handler func(ctx context.Context, e Event) error

type (
	Publisher interface {
		Publish(ctx context.Context, e Event) error
	}

	// Consumer delivers events to h until ctx is done or the transport fails.
	Consumer interface {
		Consume(ctx context.Context, h Handler) error
	}

	Bus interface {
		Publisher
		Consumer
		Close() error
	}
)

// Noop is the bus used when a single process owns all state.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }

// Consume blocks until ctx is done.
func (Noop) Consume(ctx context.Context, _ Handler) error {
	<-ctx.Done()
	return nil
}

func (Noop) Close() error { return nil }

// SkipOrigin wraps h so events published by origin itself are dropped.
func SkipOrigin(origin string, h Handler) Handler {
	return func(ctx context.Context, e Event) error {
		if e.Origin == origin {
			return nil
		}
		return h(ctx, e)
	}
}

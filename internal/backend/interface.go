package backend

import (
	"context"

	"accounting/internal/events"
	"accounting/internal/store"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// Factory creates the store and the event bus a binary runs on.
type Factory interface {
	CreateStore(ctx context.Context, config Config) (store.Store, error)
	CreateBus(ctx context.Context, config Config) (events.Bus, error)
}

// StoreType selects where records and users live.
type StoreType string

const (
	MemoryStore   StoreType = "memory"
	SQLiteStore   StoreType = "sqlite"
	PostgresStore StoreType = "postgres"
)

// String implements fmt.Stringer
func (t StoreType) String() string {
	return string(t)
}

// IsValid returns true if the store type is valid
func (t StoreType) IsValid() bool {
	switch t {
	case MemoryStore, SQLiteStore, PostgresStore:
		return true
	default:
		return false
	}
}

// BusType selects the event transport.
type BusType string

const (
	NoBus    BusType = "none"
	AMQPBus  BusType = "amqp"
	NATSBus  BusType = "nats"
	KafkaBus BusType = "kafka"
)

func (t BusType) String() string {
	return string(t)
}

func (t BusType) IsValid() bool {
	switch t {
	case NoBus, AMQPBus, NATSBus, KafkaBus:
		return true
	default:
		return false
	}
}

// Role decides how a process subscribes. Every server instance needs every
// event; mirror workers share one subscription so each event is mirrored once.
type Role int

const (
	RoleServer Role = iota
	RoleMirror
)

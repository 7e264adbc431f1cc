// Package store declares the persistence ports the rest of the application
// depends on. Implementations live in internal/storage.
package store

import (
	"context"
	"errors"

	"accounting/internal/core"
)

var (
	// ErrNotFound is returned when a user or record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrEmailTaken is returned by CreateUser for a duplicate email.
	ErrEmailTaken = errors.New("email already registered")
)

// Ports for outbound adapters.
type (
	// RecordWriter persists a new record, assigning its ID and CreatedAt.
	RecordWriter interface {
		Insert(ctx context.Context, r core.NewRecord) (core.Record, error)
	}

	// RecordDeleter removes one record owned by userID. Deleting a record
	// that does not exist (or belongs to someone else) returns ErrNotFound.
	RecordDeleter interface {
		Delete(ctx context.Context, userID, id string) error
	}

	// RecordQuerier runs the standing ledger query: every record of a user,
	// newest first.
	RecordQuerier interface {
		ListByUser(ctx context.Context, userID string) ([]core.Record, error)
	}

	RecordStore interface {
		RecordWriter
		RecordDeleter
		RecordQuerier
	}

	// UserStore holds accounts and their password hashes.
	UserStore interface {
		CreateUser(ctx context.Context, email string, passwordHash []byte) (core.User, error)
		UserByEmail(ctx context.Context, email string) (core.User, []byte, error)
		UserByID(ctx context.Context, id string) (core.User, error)
	}

	// Pinger reports whether the backing store is reachable.
	Pinger interface {
		Ping(ctx context.Context) error
	}

	// Store is everything a data backend provides.
	Store interface {
		RecordStore
		UserStore
		Pinger
		Close() error
	}
)

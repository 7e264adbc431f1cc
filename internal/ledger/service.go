package ledger

import (
	"context"
	"fmt"
	"time"

	"accounting/internal/core"
	"accounting/internal/events"
	"accounting/internal/log"
	"accounting/internal/store"
)

const notifyTimeout = 5 * time.Second

// Notifier is told whenever a user's records change in this process.
type Notifier interface {
	Notify(ctx context.Context, userID string) error
}

// Service orchestrates record writes across the store, the local live
// query hub and the event bus.
type Service struct {
	store     store.RecordStore
	notifier  Notifier
	publisher events.Publisher
	origin    string
	logger    *log.Logger
	access    *log.StructuredLogger
}

// NewService wires a Service. publisher may be nil when no bus is configured.
func NewService(st store.RecordStore, notifier Notifier, publisher events.Publisher, origin string, logger *log.Logger) *Service {
	if publisher == nil {
		publisher = events.Noop{}
	}
	logger = log.OrDefault(logger).WithComponent(log.ComponentLedger)
	return &Service{
		store:     st,
		notifier:  notifier,
		publisher: publisher,
		origin:    origin,
		logger:    logger,
		access:    log.NewStructuredLogger(logger),
	}
}

// Origin identifies this process on the event bus.
func (s *Service) Origin() string { return s.origin }

// Insert saves the record, then fans the change out. Fan-out failures are
// logged only; the write has already succeeded.
func (s *Service) Insert(ctx context.Context, nr core.NewRecord) (core.Record, error) {
	if err := nr.Validate(); err != nil {
		return core.Record{}, err
	}

	rec, err := s.store.Insert(ctx, nr)
	if err != nil {
		return core.Record{}, fmt.Errorf("save record: %w", err)
	}

	s.access.LogRecordCreated(ctx, rec.UserID, rec.ID, string(rec.Type), rec.Amount.String())
	s.changed(ctx, events.RecordCreated, rec.UserID, rec.ID)
	return rec, nil
}

// Delete removes one of userID's records.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	if userID == "" {
		return core.ErrNotAuthenticated
	}
	if err := s.store.Delete(ctx, userID, id); err != nil {
		return fmt.Errorf("delete record: %w", err)
	}

	s.logger.InfoContext(ctx, "Record deleted",
		log.FieldUserID, userID,
		log.FieldRecordID, id,
		log.FieldOperation, log.OpDelete)
	s.changed(ctx, events.RecordDeleted, userID, id)
	return nil
}

// List returns userID's records, newest first.
func (s *Service) List(ctx context.Context, userID string) ([]core.Record, error) {
	if userID == "" {
		return nil, core.ErrNotAuthenticated
	}
	records, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return records, nil
}

// changed runs detached from the request so a client disconnecting mid-write
// still leaves every live view up to date.
func (s *Service) changed(ctx context.Context, kind events.Kind, userID, recordID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	if s.notifier != nil {
		if err := s.notifier.Notify(ctx, userID); err != nil {
			s.logger.WarnContext(ctx, "Failed to notify live views",
				log.FieldUserID, userID, log.FieldError, err)
		}
	}

	if err := s.publisher.Publish(ctx, events.New(kind, userID, recordID, s.origin)); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish record event",
			log.FieldEventKind, string(kind),
			log.FieldUserID, userID,
			log.FieldRecordID, recordID,
			log.FieldError, err)
	}
}

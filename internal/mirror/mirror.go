// Package mirror copies each user's ledger into a spreadsheet tab whenever
// a record-change event arrives.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"accounting/internal/core"
	"accounting/internal/events"
	"accounting/internal/log"
	"accounting/internal/report"
	"accounting/internal/store"
)

// Sheets limits tab titles to 100 characters and rejects a few symbols.
const maxTabLen = 100

var tabReplacer = strings.NewReplacer(
	"[", "_", "]", "_", "*", "_", "?", "_", ":", "_", "/", "_", `\`, "_",
)

// SheetWriter replaces the whole content of one tab, creating it when
// missing.
type SheetWriter interface {
	ReplaceRows(ctx context.Context, tab string, rows [][]any) error
}

// UserLookup resolves the owner of an event.
type UserLookup interface {
	UserByID(ctx context.Context, id string) (core.User, error)
}

// Mirror turns record events into full-tab rewrites. There is no diffing:
// every event re-reads the user's records and rewrites the tab.
type Mirror struct {
	users    UserLookup
	records  store.RecordQuerier
	writer   SheetWriter
	location *time.Location
	logger   *log.Logger
}

// New builds a mirror. loc controls how timestamps are printed; nil means UTC.
func New(users UserLookup, records store.RecordQuerier, writer SheetWriter, loc *time.Location, logger *log.Logger) *Mirror {
	return &Mirror{
		users:    users,
		records:  records,
		writer:   writer,
		location: loc,
		logger:   log.OrDefault(logger).WithComponent(log.ComponentMirror),
	}
}

// HandleEvent is an events.Handler.
func (m *Mirror) HandleEvent(ctx context.Context, e events.Event) error {
	user, err := m.users.UserByID(ctx, e.UserID)
	if errors.Is(err, store.ErrNotFound) {
		m.logger.WarnContext(ctx, "Skipping event for unknown user",
			log.FieldUserID, e.UserID,
			log.FieldEventKind, string(e.Kind))
		return nil
	}
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	return m.Sync(ctx, user)
}

// Sync rewrites user's tab from the current records.
func (m *Mirror) Sync(ctx context.Context, user core.User) error {
	start := time.Now()

	records, err := m.records.ListByUser(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("list records: %w", err)
	}

	tab := TabName(user.Email)
	if err := m.writer.ReplaceRows(ctx, tab, report.Build(records, m.location).Grid()); err != nil {
		return fmt.Errorf("write tab %q: %w", tab, err)
	}

	m.logger.InfoContext(ctx, "Ledger mirrored",
		log.FieldOperation, log.OpMirror,
		log.FieldUserID, user.ID,
		log.FieldRecordCount, len(records),
		log.FieldDuration, time.Since(start).Milliseconds())
	return nil
}

// TabName derives a valid sheet title from an email address.
func TabName(email string) string {
	name := tabReplacer.Replace(strings.ToLower(strings.TrimSpace(email)))
	if name == "" {
		name = "unknown"
	}
	if utf8.RuneCountInString(name) > maxTabLen {
		runes := []rune(name)
		name = string(runes[:maxTabLen])
	}
	return name
}

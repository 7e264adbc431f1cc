package http

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"accounting/internal/core"
	"accounting/internal/export"
	"accounting/internal/identity"
	"accounting/internal/ledger"
	"accounting/internal/log"
)

type recordRow struct {
	ID     string
	Type   string
	Label  string
	Amount string
	Note   string
}

// ledgerFragment is the data of the "ledger" template: the list plus the
// totals folded from that same list.
type ledgerFragment struct {
	Records []recordRow
	Income  string
	Expense string
	Balance string
}

func newLedgerFragment(records []core.Record, totals core.Totals) ledgerFragment {
	rows := make([]recordRow, 0, len(records))
	for _, rec := range records {
		rows = append(rows, recordRow{
			ID:     rec.ID,
			Type:   rec.Type.String(),
			Label:  rec.Type.Label(),
			Amount: core.FormatAmount(rec.Amount),
			Note:   rec.Note,
		})
	}
	return ledgerFragment{
		Records: rows,
		Income:  core.FormatAmount(totals.Income),
		Expense: core.FormatAmount(totals.Expense),
		Balance: core.FormatAmount(totals.Balance()),
	}
}

type accountingPage struct {
	Email  string
	Status string
	Ledger ledgerFragment
}

// handleAccounting renders the gated ledger page. Signed-out visitors go
// back to the landing page.
func (s *Server) handleAccounting(w http.ResponseWriter, r *http.Request) {
	user := identity.UserFrom(r.Context())
	if user == nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	s.renderAccounting(w, r, http.StatusOK, user, "")
}

func (s *Server) renderAccounting(w http.ResponseWriter, r *http.Request, status int, user *core.User, message string) {
	records, err := s.ledger.List(r.Context(), user.ID)
	if err != nil {
		// Same as a failed live query: show an empty ledger, the stream
		// fills it in.
		s.logError(r.Context(), "Initial ledger load failed", err, log.OpList,
			log.NewFields().WithUser(user.ID))
		records = []core.Record{}
	}

	s.render(w, r, status, "accounting.html", accountingPage{
		Email:  user.Email,
		Status: message,
		Ledger: newLedgerFragment(records, core.Aggregate(records)),
	})
}

// handleStream pushes one "snapshot" event per applied snapshot until the
// client goes away. The view is unsubscribed on return.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := identity.UserFrom(ctx)

	logger := s.reqLogger(ctx)
	rc := http.NewResponseController(w)

	view := ledger.NewView(s.hub, s.ledger, user, logger)
	if err := view.Subscribe(ctx); err != nil {
		s.logError(ctx, "Stream subscribe failed", err, log.OpSubscribe,
			log.NewFields().WithUser(user.ID))
		InternalServerError(msgUnknownError).Write(w)
		return
	}
	defer view.Unsubscribe()

	atomic.AddInt64(&s.metrics.activeStreams, 1)
	defer atomic.AddInt64(&s.metrics.activeStreams, -1)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		logger.ErrorContext(ctx, "Streaming unsupported", log.FieldError, err)
		return
	}

	ping := time.NewTicker(s.keepAlive)
	defer ping.Stop()

	var buf bytes.Buffer
	for {
		select {
		case <-ctx.Done():
			return

		case sum := <-view.Updates():
			buf.Reset()
			if err := s.templates.ExecuteTemplate(&buf, "ledger", newLedgerFragment(sum.Records, sum.Totals)); err != nil {
				s.logError(ctx, "Ledger fragment render failed", err, log.OpRender, nil)
				return
			}
			if err := writeEvent(w, "snapshot", buf.Bytes()); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}

		case <-ping.C:
			if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

// writeEvent writes one Server-Sent Event; multi-line payloads become one
// data field per line.
func writeEvent(w io.Writer, event string, data []byte) error {
	var b strings.Builder
	fmt.Fprintf(&b, "event: %s\n", event)
	for _, line := range strings.Split(strings.TrimRight(string(data), "\n"), "\n") {
		b.WriteString("data: ")
		b.WriteString(strings.TrimRight(line, "\r"))
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	_, err := io.WriteString(w, b.String())
	return err
}

// handleCreateRecord runs the entry form. The page script gets a status
// fragment; a plain form post gets the whole page back.
func (s *Server) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	user := identity.UserFrom(r.Context())

	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		BadRequestError(msgBadRequest).Write(w)
		return
	}

	view := ledger.NewView(s.hub, s.ledger, user, s.reqLogger(r.Context()))
	rec, err := view.Insert(r.Context(), p.Get("amount"), p.Get("type"), p.Get("note"))
	if err != nil {
		status := insertStatus(err)
		if status == http.StatusInternalServerError {
			s.logError(r.Context(), "Record insert failed", err, log.OpCreate, nil)
		}
		msg := ledger.StatusMessage(err)
		if isFragmentRequest(r) || user == nil {
			StatusFragment(status, msg).Write(w)
			return
		}
		s.renderAccounting(w, r, status, user, msg)
		return
	}

	s.recordCreated()
	if !isFragmentRequest(r) {
		http.Redirect(w, r, "/accounting", http.StatusSeeOther)
		return
	}
	NewFragmentResponse().
		TriggerRecordCreated(rec.ID).
		TriggerFormReset().
		BodyHTML("").
		Write(w)
}

func insertStatus(err error) int {
	switch {
	case errors.Is(err, core.ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, core.ErrInvalidType):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// handleDeleteRecord always succeeds from the client's point of view;
// failures are only logged.
func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	view := ledger.NewView(s.hub, s.ledger, identity.UserFrom(r.Context()), s.reqLogger(r.Context()))
	view.Delete(r.Context(), id)
	s.recordDeleted()

	if !isFragmentRequest(r) {
		http.Redirect(w, r, "/accounting", http.StatusSeeOther)
		return
	}
	NewFragmentResponse().
		Status(http.StatusNoContent).
		TriggerRecordDeleted(id).
		Write(w)
}

// handleExport streams the user's ledger as an xlsx download.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	user := identity.UserFrom(r.Context())

	records, err := s.ledger.List(r.Context(), user.ID)
	if err != nil {
		s.logError(r.Context(), "Export list failed", err, log.OpExport,
			log.NewFields().WithUser(user.ID))
		InternalServerError(msgUnknownError).Write(w)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteXLSX(&buf, records, s.location); err != nil {
		s.logError(r.Context(), "Export render failed", err, log.OpExport,
			log.NewFields().WithUser(user.ID))
		InternalServerError(msgUnknownError).Write(w)
		return
	}

	s.reqLogger(r.Context()).InfoContext(r.Context(), "Ledger exported",
		log.FieldUserID, user.ID,
		log.FieldRecordCount, len(records),
		log.FieldOperation, log.OpExport)

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, export.FileName(time.Now().In(s.location))))
	w.Header().Set("Cache-Control", "no-store")
	_, _ = buf.WriteTo(w)
}

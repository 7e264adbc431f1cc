// Package livequery turns the per-user record query into a push stream of
// complete snapshots.
package livequery

import (
	"context"
	"sync"
	"sync/atomic"

	"accounting/internal/core"
	"accounting/internal/log"
	"accounting/internal/store"
)

const updateBuffer = 8

// Snapshot is the full result of the standing query at one point in time.
type Snapshot struct {
	UserID  string
	Records []core.Record
	// Seq increases with every snapshot the hub produces.
	Seq uint64
}

// Hub owns every live subscription in the process.
type Hub struct {
	query  store.RecordQuerier
	logger *log.Logger

	mu   sync.Mutex
	subs map[string]map[*Subscription]struct{}

	// notifyMu orders snapshot production and delivery so a later snapshot
	// can never overtake an earlier one.
	notifyMu sync.Mutex
	seq      uint64

	delivered atomic.Int64
	failed    atomic.Int64
}

func NewHub(query store.RecordQuerier, logger *log.Logger) *Hub {
	return &Hub{
		query:  query,
		logger: log.OrDefault(logger).WithComponent(log.ComponentLiveQuery),
		subs:   map[string]map[*Subscription]struct{}{},
	}
}

// Subscription is one registered standing query.
type Subscription struct {
	hub    *Hub
	userID string
	ch     chan Snapshot
	done   chan struct{}
	once   sync.Once
}

// Updates delivers snapshots in order. It is never closed; select on Done.
func (s *Subscription) Updates() <-chan Snapshot { return s.ch }

// Done is closed once the subscription is released.
func (s *Subscription) Done() <-chan struct{} { return s.done }

func (s *Subscription) UserID() string { return s.userID }

// Close releases the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		close(s.done)
		s.hub.remove(s)
	})
}

// Subscribe registers a standing query for userID and queues the current
// snapshot as its first update. A failing query yields an empty snapshot.
func (h *Hub) Subscribe(ctx context.Context, userID string) (*Subscription, error) {
	if userID == "" {
		return nil, core.ErrNotAuthenticated
	}

	sub := &Subscription{
		hub:    h,
		userID: userID,
		ch:     make(chan Snapshot, updateBuffer),
		done:   make(chan struct{}),
	}

	h.notifyMu.Lock()
	defer h.notifyMu.Unlock()

	records, err := h.query.ListByUser(ctx, userID)
	if err != nil {
		h.failed.Add(1)
		h.logger.ErrorContext(ctx, "Initial query failed, delivering empty snapshot",
			log.FieldUserID, userID, log.FieldError, err)
		records = []core.Record{}
	}

	h.mu.Lock()
	if h.subs[userID] == nil {
		h.subs[userID] = map[*Subscription]struct{}{}
	}
	h.subs[userID][sub] = struct{}{}
	h.mu.Unlock()

	h.seq++
	sub.ch <- Snapshot{UserID: userID, Records: records, Seq: h.seq}
	h.delivered.Add(1)

	h.logger.DebugContext(ctx, "Subscribed", log.FieldUserID, userID, log.FieldRecordCount, len(records))
	return sub, nil
}

// Notify re-runs userID's query and pushes the result to each of the user's
// subscriptions. It blocks on a slow subscriber until the subscription is
// closed or ctx is done.
func (h *Hub) Notify(ctx context.Context, userID string) error {
	h.notifyMu.Lock()
	defer h.notifyMu.Unlock()

	targets := h.subscribers(userID)
	if len(targets) == 0 {
		return nil
	}

	records, err := h.query.ListByUser(ctx, userID)
	if err != nil {
		h.failed.Add(1)
		h.logger.ErrorContext(ctx, "Snapshot query failed", log.FieldUserID, userID, log.FieldError, err)
		return err
	}

	h.seq++
	snap := Snapshot{UserID: userID, Records: records, Seq: h.seq}
	for _, sub := range targets {
		select {
		case sub.ch <- snap:
			h.delivered.Add(1)
		case <-sub.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	h.logger.DebugContext(ctx, "Snapshot pushed",
		log.FieldUserID, userID,
		log.FieldRecordCount, len(records),
		"subscribers", len(targets))
	return nil
}

func (h *Hub) subscribers(userID string) []*Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]*Subscription, 0, len(h.subs[userID]))
	for s := range h.subs[userID] {
		out = append(out, s)
	}
	return out
}

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set := h.subs[s.userID]
	delete(set, s)
	if len(set) == 0 {
		delete(h.subs, s.userID)
	}
}

// Count returns the number of active subscriptions.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := 0
	for _, set := range h.subs {
		n += len(set)
	}
	return n
}

// Metrics is a point-in-time view of hub activity.
type Metrics struct {
	Subscriptions int
	SnapshotsSent int64
	QueryFailures int64
}

func (h *Hub) GetMetrics() Metrics {
	return Metrics{
		Subscriptions: h.Count(),
		SnapshotsSent: h.delivered.Load(),
		QueryFailures: h.failed.Load(),
	}
}

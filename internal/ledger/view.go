// Package ledger implements the per-user record view: a live, always
// complete projection of the user's records plus the totals folded from it.
package ledger

import (
	"context"
	"fmt"
	"sync"

	"accounting/internal/core"
	"accounting/internal/livequery"
	"accounting/internal/log"
)

// Subscriber opens standing queries. *livequery.Hub implements it.
type Subscriber interface {
	Subscribe(ctx context.Context, userID string) (*livequery.Subscription, error)
}

// Summary is the state of a view after one snapshot was applied.
type Summary struct {
	User    *core.User
	Records []core.Record
	Totals  core.Totals
}

// State is the subscription state of a View.
type State int

const (
	Unsubscribed State = iota
	Subscribed
)

func (s State) String() string {
	if s == Subscribed {
		return "subscribed"
	}
	return "unsubscribed"
}

// View holds one viewer's projection. It is Subscribed exactly when it is
// mounted and has a user; every snapshot replaces the cached list wholesale
// and refolds the totals.
type View struct {
	hub    Subscriber
	svc    *Service
	logger *log.Logger

	mu      sync.Mutex
	user    *core.User
	mounted bool
	sub     *livequery.Subscription
	gen     uint64
	records []core.Record
	totals  core.Totals

	pubMu   sync.Mutex
	updates chan Summary
}

// NewView creates an unmounted view for user (nil means signed out).
func NewView(hub Subscriber, svc *Service, user *core.User, logger *log.Logger) *View {
	return &View{
		hub:     hub,
		svc:     svc,
		user:    user,
		logger:  log.OrDefault(logger).WithComponent(log.ComponentLedger),
		records: []core.Record{},
		updates: make(chan Summary, 1),
	}
}

// Updates yields the view's latest Summary after each applied snapshot. A
// reader that falls behind skips intermediate summaries but always ends on
// the newest one.
func (v *View) Updates() <-chan Summary { return v.updates }

// Subscribe mounts the view.
func (v *View) Subscribe(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.mounted = true
	return v.reconcile(ctx)
}

// Unsubscribe unmounts the view and releases its standing query. Idempotent.
func (v *View) Unsubscribe() {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.mounted = false
	_ = v.reconcile(context.Background())
}

// SetUser applies an identity change. A different user starts from an empty
// cache on a fresh subscription.
func (v *View) SetUser(ctx context.Context, user *core.User) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if sameUser(v.user, user) {
		v.user = user
		return nil
	}

	v.release()
	v.user = user
	return v.reconcile(ctx)
}

// State reports whether the view currently holds a standing query.
func (v *View) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.sub != nil {
		return Subscribed
	}
	return Unsubscribed
}

// User returns the view's current identity.
func (v *View) User() *core.User {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.user
}

// reconcile moves the view into the state its inputs call for. Caller holds v.mu.
func (v *View) reconcile(ctx context.Context) error {
	want := v.mounted && v.user != nil

	switch {
	case want && v.sub == nil:
		sub, err := v.hub.Subscribe(ctx, v.user.ID)
		if err != nil {
			return fmt.Errorf("subscribe: %w", err)
		}
		v.gen++
		v.sub = sub
		go v.pump(sub, v.gen)
		v.logger.DebugContext(ctx, "View subscribed", log.FieldUserID, v.user.ID)
	case !want && v.sub != nil:
		v.release()
	}
	return nil
}

// release drops the subscription and the cache. Caller holds v.mu.
func (v *View) release() {
	if v.sub != nil {
		v.sub.Close()
		v.sub = nil
	}
	v.gen++
	v.records = []core.Record{}
	v.totals = core.Totals{}
}

func (v *View) pump(sub *livequery.Subscription, gen uint64) {
	for {
		select {
		case snap := <-sub.Updates():
			v.apply(gen, snap)
		case <-sub.Done():
			return
		}
	}
}

func (v *View) apply(gen uint64, snap livequery.Snapshot) {
	v.mu.Lock()
	if gen != v.gen {
		v.mu.Unlock()
		return
	}
	v.records = snap.Records
	v.totals = core.Aggregate(snap.Records)
	sum := Summary{User: v.user, Records: cloneRecords(v.records), Totals: v.totals}
	v.mu.Unlock()

	v.publish(sum)
}

func (v *View) publish(sum Summary) {
	v.pubMu.Lock()
	defer v.pubMu.Unlock()

	select {
	case <-v.updates:
	default:
	}
	v.updates <- sum
}

// Aggregate returns the totals of the last applied snapshot.
func (v *View) Aggregate() core.Totals {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.totals
}

// Records returns a copy of the cached list, newest first.
func (v *View) Records() []core.Record {
	v.mu.Lock()
	defer v.mu.Unlock()
	return cloneRecords(v.records)
}

// Insert appends a record for the current user. The amount text is coerced
// (unparseable input becomes 0); the type must be income or expense.
func (v *View) Insert(ctx context.Context, amountText, typeText, note string) (core.Record, error) {
	user := v.User()
	if user == nil {
		return core.Record{}, core.ErrNotAuthenticated
	}

	recType, err := core.ParseRecordType(typeText)
	if err != nil {
		return core.Record{}, err
	}

	return v.svc.Insert(ctx, core.NewRecord{
		UserID: user.ID,
		Amount: core.ParseAmount(amountText),
		Type:   recType,
		Note:   note,
	})
}

// Delete removes a record of the current user. Failures are logged, never
// reported to the caller.
func (v *View) Delete(ctx context.Context, id string) {
	user := v.User()
	if user == nil {
		v.logger.WarnContext(ctx, "Delete without user ignored", log.FieldRecordID, id)
		return
	}
	if err := v.svc.Delete(ctx, user.ID, id); err != nil {
		v.logger.ErrorContext(ctx, "Delete failed",
			log.FieldUserID, user.ID,
			log.FieldRecordID, id,
			log.FieldError, err)
	}
}

func sameUser(a, b *core.User) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.ID == b.ID
}

func cloneRecords(in []core.Record) []core.Record {
	out := make([]core.Record, len(in))
	copy(out, in)
	return out
}

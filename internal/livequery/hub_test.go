package livequery

import (
	"context"
	"errors"
	"testing"
	"time"

	"accounting/internal/core"
	"accounting/internal/log"
	"accounting/internal/storage/memory"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingQuerier struct{}

func (failingQuerier) ListByUser(context.Context, string) ([]core.Record, error) {
	return nil, errors.New("backend unavailable")
}

func next(t *testing.T, sub *Subscription) Snapshot {
	t.Helper()
	select {
	case s := <-sub.Updates():
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
		return Snapshot{}
	}
}

func insert(t *testing.T, s *memory.Store, userID, amount string, typ core.RecordType) core.Record {
	t.Helper()
	rec, err := s.Insert(context.Background(), core.NewRecord{UserID: userID, Amount: decimal.RequireFromString(amount), Type: typ})
	require.NoError(t, err)
	return rec
}

func TestHub_SubscribeDeliversCurrentState(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	insert(t, st, "u1", "10", core.Income)

	hub := NewHub(st, log.Discard())
	sub, err := hub.Subscribe(ctx, "u1")
	require.NoError(t, err)
	defer sub.Close()

	snap := next(t, sub)
	assert.Equal(t, "u1", snap.UserID)
	assert.Len(t, snap.Records, 1)
	assert.Equal(t, 1, hub.Count())
}

func TestHub_NotifyPushesFullSnapshots(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	hub := NewHub(st, log.Discard())

	a, err := hub.Subscribe(ctx, "u1")
	require.NoError(t, err)
	defer a.Close()
	b, err := hub.Subscribe(ctx, "u1")
	require.NoError(t, err)
	defer b.Close()
	other, err := hub.Subscribe(ctx, "u2")
	require.NoError(t, err)
	defer other.Close()

	first := next(t, a)
	next(t, b)
	next(t, other)
	assert.Empty(t, first.Records)

	insert(t, st, "u1", "100", core.Income)
	require.NoError(t, hub.Notify(ctx, "u1"))
	insert(t, st, "u1", "40", core.Expense)
	require.NoError(t, hub.Notify(ctx, "u1"))

	for _, sub := range []*Subscription{a, b} {
		s1 := next(t, sub)
		s2 := next(t, sub)
		assert.Len(t, s1.Records, 1)
		assert.Len(t, s2.Records, 2)
		assert.Greater(t, s2.Seq, s1.Seq)
		assert.Equal(t, core.Expense, s2.Records[0].Type, "newest first")
	}

	select {
	case s := <-other.Updates():
		t.Fatalf("u2 received a snapshot for another user: %+v", s)
	default:
	}
}

func TestHub_CloseUnregisters(t *testing.T) {
	ctx := context.Background()
	hub := NewHub(memory.New(), log.Discard())

	sub, err := hub.Subscribe(ctx, "u1")
	require.NoError(t, err)
	sub.Close()
	sub.Close()

	assert.Equal(t, 0, hub.Count())
	select {
	case <-sub.Done():
	default:
		t.Fatal("Done not closed")
	}
	assert.NoError(t, hub.Notify(ctx, "u1"))
}

func TestHub_SubscribeRequiresUser(t *testing.T) {
	hub := NewHub(memory.New(), log.Discard())
	_, err := hub.Subscribe(context.Background(), "")
	assert.ErrorIs(t, err, core.ErrNotAuthenticated)
}

func TestHub_FailedInitialQueryIsEmptySnapshot(t *testing.T) {
	hub := NewHub(failingQuerier{}, log.Discard())

	sub, err := hub.Subscribe(context.Background(), "u1")
	require.NoError(t, err)
	defer sub.Close()

	snap := next(t, sub)
	assert.NotNil(t, snap.Records)
	assert.Empty(t, snap.Records)
	assert.Error(t, hub.Notify(context.Background(), "u1"))
	assert.Equal(t, int64(2), hub.GetMetrics().QueryFailures)
}

func TestHub_NotifyUnblocksWhenSubscriberCloses(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	hub := NewHub(st, log.Discard())

	sub, err := hub.Subscribe(ctx, "u1")
	require.NoError(t, err)

	// Fill the buffer without reading so the next Notify has to wait.
	for i := 0; i < updateBuffer-1; i++ {
		require.NoError(t, hub.Notify(ctx, "u1"))
	}

	done := make(chan error, 1)
	go func() { done <- hub.Notify(ctx, "u1") }()

	select {
	case <-done:
		t.Fatal("Notify returned while the subscriber buffer was full")
	case <-time.After(50 * time.Millisecond):
	}

	sub.Close()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Notify still blocked after Close")
	}
}

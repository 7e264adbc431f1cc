package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"accounting/internal/core"
	"accounting/internal/store"

	"github.com/shopspring/decimal"
)

func TestStore_RecordsNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := New()
	frozen := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return frozen }

	var ids []string
	for _, note := range []string{"a", "b", "c"} {
		rec, err := s.Insert(ctx, core.NewRecord{UserID: "u1", Amount: decimal.NewFromInt(1), Type: core.Income, Note: note})
		if err != nil {
			t.Fatalf("Insert(%s): %v", note, err)
		}
		ids = append(ids, rec.ID)
	}
	if _, err := s.Insert(ctx, core.NewRecord{UserID: "u2", Amount: decimal.NewFromInt(1), Type: core.Income}); err != nil {
		t.Fatalf("Insert(u2): %v", err)
	}

	got, err := s.ListByUser(ctx, "u1")
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d records, want 3", len(got))
	}
	for i, want := range []string{ids[2], ids[1], ids[0]} {
		if got[i].ID != want {
			t.Fatalf("record %d = %s, want %s", i, got[i].ID, want)
		}
	}
}

func TestStore_InsertRejectsInvalid(t *testing.T) {
	s := New()
	_, err := s.Insert(context.Background(), core.NewRecord{Amount: decimal.NewFromInt(1), Type: core.Income})
	if !errors.Is(err, core.ErrNotAuthenticated) {
		t.Fatalf("err = %v, want ErrNotAuthenticated", err)
	}
}

func TestStore_DeleteScopedToOwner(t *testing.T) {
	ctx := context.Background()
	s := New()

	rec, _ := s.Insert(ctx, core.NewRecord{UserID: "u1", Amount: decimal.NewFromInt(5), Type: core.Expense})

	if err := s.Delete(ctx, "u2", rec.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("foreign delete err = %v, want ErrNotFound", err)
	}
	if err := s.Delete(ctx, "u1", rec.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got, _ := s.ListByUser(ctx, "u1"); len(got) != 0 {
		t.Fatalf("record still listed: %v", got)
	}
}

func TestStore_Users(t *testing.T) {
	ctx := context.Background()
	s := New()

	u, err := s.CreateUser(ctx, "Dana@Example.com", []byte("h"))
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if _, err := s.CreateUser(ctx, "dana@example.com", []byte("h")); !errors.Is(err, store.ErrEmailTaken) {
		t.Fatalf("duplicate err = %v", err)
	}

	got, hash, err := s.UserByEmail(ctx, "DANA@example.com")
	if err != nil || got.ID != u.ID || string(hash) != "h" {
		t.Fatalf("UserByEmail = %v %q %v", got, hash, err)
	}
	if _, err := s.UserByID(ctx, "nope"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("UserByID err = %v", err)
	}
}

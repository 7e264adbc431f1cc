// Package memory is a process-local store.Store used for development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"accounting/internal/core"
	"accounting/internal/store"

	"github.com/google/uuid"
)

type user struct {
	core.User
	hash []byte
}

type Store struct {
	mu      sync.Mutex
	users   map[string]user // by id
	byEmail map[string]string
	records map[string]core.Record
	last    time.Time
	now     func() time.Time
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		users:   map[string]user{},
		byEmail: map[string]string{},
		records: map[string]core.Record{},
		now:     time.Now,
	}
}

// tick returns a strictly increasing timestamp. Callers hold s.mu.
func (s *Store) tick() time.Time {
	t := s.now().UTC()
	if !t.After(s.last) {
		t = s.last.Add(time.Nanosecond)
	}
	s.last = t
	return t
}

// Insert stores the record with a fresh id and creation time.
func (s *Store) Insert(_ context.Context, nr core.NewRecord) (core.Record, error) {
	if err := nr.Validate(); err != nil {
		return core.Record{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := core.Record{
		ID:        uuid.NewString(),
		UserID:    nr.UserID,
		Amount:    nr.Amount,
		Type:      nr.Type,
		Note:      nr.Note,
		CreatedAt: s.tick(),
	}
	s.records[rec.ID] = rec
	return rec, nil
}

func (s *Store) Delete(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok || rec.UserID != userID {
		return fmt.Errorf("delete record %s: %w", id, store.ErrNotFound)
	}
	delete(s.records, id)
	return nil
}

// ListByUser returns the user's records, newest first.
func (s *Store) ListByUser(_ context.Context, userID string) ([]core.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []core.Record{}
	for _, r := range s.records {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *Store) CreateUser(_ context.Context, email string, passwordHash []byte) (core.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byEmail[email]; taken {
		return core.User{}, store.ErrEmailTaken
	}
	u := core.User{ID: uuid.NewString(), Email: email, CreatedAt: s.tick()}
	s.users[u.ID] = user{User: u, hash: append([]byte(nil), passwordHash...)}
	s.byEmail[email] = u.ID
	return u, nil
}

func (s *Store) UserByEmail(_ context.Context, email string) (core.User, []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return core.User{}, nil, store.ErrNotFound
	}
	u := s.users[id]
	return u.User, append([]byte(nil), u.hash...), nil
}

func (s *Store) UserByID(_ context.Context, id string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return core.User{}, store.ErrNotFound
	}
	return u.User, nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

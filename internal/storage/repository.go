package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"accounting/internal/core"
	"accounting/internal/log"
	"accounting/internal/store"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

// Repository is a store.Store over database/sql.
type Repository struct {
	db      *sql.DB
	dialect Dialect
	logger  *log.Logger

	clockMu sync.Mutex
	last    int64
	now     func() time.Time
}

var _ store.Store = (*Repository)(nil)

// sqliteDSN enables WAL, a busy timeout and foreign keys on every connection.
func sqliteDSN(dbPath string) string {
	return "file:" + dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
}

// NewSQLiteRepository opens (creating if needed) the database file at dbPath
// and migrates it.
func NewSQLiteRepository(dbPath string, logger *log.Logger) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	return open(SQLite, sqliteDSN(dbPath), logger)
}

// NewPostgresRepository connects to dsn and migrates the schema.
func NewPostgresRepository(dsn string, logger *log.Logger) (*Repository, error) {
	return open(Postgres, dsn, logger)
}

func open(d Dialect, dsn string, logger *log.Logger) (*Repository, error) {
	db, err := sql.Open(d.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", d, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(d, dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Repository{
		db:      db,
		dialect: d,
		logger:  log.OrDefault(logger).WithComponent(log.ComponentStorage),
		now:     time.Now,
	}, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping implements store.Pinger
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// timestamp returns a strictly increasing unix-nano time so records created
// in the same instant still have a total order.
func (r *Repository) timestamp() int64 {
	r.clockMu.Lock()
	defer r.clockMu.Unlock()
	ts := r.now().UnixNano()
	if ts <= r.last {
		ts = r.last + 1
	}
	r.last = ts
	return ts
}

func (r *Repository) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return r.db.ExecContext(ctx, r.dialect.Rebind(query), args...)
}

func (r *Repository) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return r.db.QueryContext(ctx, r.dialect.Rebind(query), args...)
}

func (r *Repository) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return r.db.QueryRowContext(ctx, r.dialect.Rebind(query), args...)
}

// Insert implements store.RecordWriter
func (r *Repository) Insert(ctx context.Context, nr core.NewRecord) (core.Record, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return core.Record{}, fmt.Errorf("generate record id: %w", err)
	}

	ts := r.timestamp()
	rec := core.Record{
		ID:        id.String(),
		UserID:    nr.UserID,
		Amount:    nr.Amount,
		Type:      nr.Type,
		Note:      nr.Note,
		CreatedAt: time.Unix(0, ts).UTC(),
	}

	_, err = r.exec(ctx,
		`INSERT INTO records (id, user_id, amount, type, note, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.UserID, rec.Amount, string(rec.Type), rec.Note, ts)
	if err != nil {
		return core.Record{}, fmt.Errorf("insert record: %w", err)
	}

	r.logger.DebugContext(ctx, "Record saved",
		log.FieldRecordID, rec.ID,
		log.FieldUserID, rec.UserID,
		log.FieldRecordType, string(rec.Type),
		log.FieldAmount, rec.Amount.String())

	return rec, nil
}

// Delete implements store.RecordDeleter
func (r *Repository) Delete(ctx context.Context, userID, id string) error {
	res, err := r.exec(ctx, `DELETE FROM records WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete record %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete record %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("delete record %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// ListByUser implements store.RecordQuerier
func (r *Repository) ListByUser(ctx context.Context, userID string) ([]core.Record, error) {
	rows, err := r.query(ctx,
		`SELECT id, user_id, amount, type, note, created_at FROM records
		 WHERE user_id = ? ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	records := []core.Record{}
	for rows.Next() {
		var (
			rec     core.Record
			amount  decimal.Decimal
			recType string
			created int64
		)
		if err := rows.Scan(&rec.ID, &rec.UserID, &amount, &recType, &rec.Note, &created); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec.Amount = amount
		rec.Type = core.RecordType(recType)
		rec.CreatedAt = time.Unix(0, created).UTC()
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

// CreateUser implements store.UserStore
func (r *Repository) CreateUser(ctx context.Context, email string, passwordHash []byte) (core.User, error) {
	u := core.User{
		ID:        uuid.NewString(),
		Email:     strings.ToLower(strings.TrimSpace(email)),
		CreatedAt: time.Unix(0, r.timestamp()).UTC(),
	}

	_, err := r.exec(ctx,
		`INSERT INTO users (id, email, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		u.ID, u.Email, passwordHash, u.CreatedAt.UnixNano())
	if err != nil {
		if r.dialect.isUniqueViolation(err) {
			return core.User{}, store.ErrEmailTaken
		}
		return core.User{}, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

// UserByEmail implements store.UserStore
func (r *Repository) UserByEmail(ctx context.Context, email string) (core.User, []byte, error) {
	var (
		u       core.User
		hash    []byte
		created int64
	)
	err := r.queryRow(ctx,
		`SELECT id, email, password_hash, created_at FROM users WHERE email = ?`,
		strings.ToLower(strings.TrimSpace(email))).Scan(&u.ID, &u.Email, &hash, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, nil, store.ErrNotFound
	}
	if err != nil {
		return core.User{}, nil, fmt.Errorf("get user by email: %w", err)
	}
	u.CreatedAt = time.Unix(0, created).UTC()
	return u, hash, nil
}

// UserByID implements store.UserStore
func (r *Repository) UserByID(ctx context.Context, id string) (core.User, error) {
	var (
		u       core.User
		created int64
	)
	err := r.queryRow(ctx,
		`SELECT id, email, created_at FROM users WHERE id = ?`, id).Scan(&u.ID, &u.Email, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, store.ErrNotFound
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user by id: %w", err)
	}
	u.CreatedAt = time.Unix(0, created).UTC()
	return u, nil
}

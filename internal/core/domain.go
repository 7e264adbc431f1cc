package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Income  RecordType = "income"
	Expense RecordType = "expense"
)

type (
	RecordType string

	// Record is one ledger entry owned by a single user. ID and CreatedAt are
	// assigned by the store.
	Record struct {
		ID        string
		UserID    string
		Amount    decimal.Decimal
		Type      RecordType
		Note      string
		CreatedAt time.Time
	}

	// NewRecord carries the caller-supplied fields of a Record.
	NewRecord struct {
		UserID string
		Amount decimal.Decimal
		Type   RecordType
		Note   string
	}

	User struct {
		ID        string
		Email     string
		CreatedAt time.Time
	}
)

var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrInvalidType      = errors.New("record type must be income or expense")
)

// ParseRecordType accepts exactly "income" or "expense".
func ParseRecordType(s string) (RecordType, error) {
	switch t := RecordType(strings.TrimSpace(s)); t {
	case Income, Expense:
		return t, nil
	default:
		return "", ErrInvalidType
	}
}

func (t RecordType) Valid() bool {
	return t == Income || t == Expense
}

func (t RecordType) String() string {
	return string(t)
}

// Label is the display name shown in the ledger and exported sheets.
func (t RecordType) Label() string {
	switch t {
	case Income:
		return "收入"
	case Expense:
		return "支出"
	default:
		return string(t)
	}
}

// Validate checks ownership and type. Amount and note are accepted as is.
func (r NewRecord) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return ErrNotAuthenticated
	}
	if !r.Type.Valid() {
		return ErrInvalidType
	}
	return nil
}

package ledger

import (
	"errors"

	"accounting/internal/core"
)

const (
	MsgNotAuthenticated = "請先登入"
	msgWriteFailed      = "寫入失敗："
	msgUnknownError     = "未知錯誤"
)

// StatusMessage renders an Insert error for the entry form. A nil error
// yields the empty string.
func StatusMessage(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, core.ErrNotAuthenticated) {
		return MsgNotAuthenticated
	}
	msg := err.Error()
	if msg == "" {
		msg = msgUnknownError
	}
	return msgWriteFailed + msg
}

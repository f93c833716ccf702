package store

import (
	"context"
	"time"
)

// CursorStore stores and retrieves byte offsets for monitored log files.
// The tailer advances a cursor only after a full read-to-EOF pass.
type CursorStore interface {
	// GetCursor retrieves the cursor for a file. found is false when no
	// cursor has ever been stored (first activation).
	GetCursor(ctx context.Context, filePath string) (offset int64, found bool, err error)

	// SetCursor stores the cursor for a file
	SetCursor(ctx context.Context, filePath string, offset int64) error
}

// Message is one queued !tell message
type Message struct {
	From    string    `json:"from"`
	Forward string    `json:"forward,omitempty"` // forwarding target, if relayed
	At      time.Time `json:"at"`
	Text    string    `json:"text"`
}

// MailStore persists the !tell mailbox, keyed by lowercased recipient
type MailStore interface {
	AppendMessage(ctx context.Context, recipient string, msg Message) error
	GetMessages(ctx context.Context, recipient string) ([]Message, error)
	DeleteMessages(ctx context.Context, recipient string) error
	// ForEachRecipient iterates over every recipient with queued messages
	ForEachRecipient(ctx context.Context, fn func(recipient string, msgs []Message) error) error
}

// TurncountStore persists per-player minimum-turncount thresholds
type TurncountStore interface {
	GetTurncount(ctx context.Context, player string) (int64, bool, error)
	SetTurncount(ctx context.Context, player string, threshold int64) error
	DeleteTurncount(ctx context.Context, player string) error
}

package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.etcd.io/bbolt"

	"github.com/beholderbot/beholder/internal/retry"
)

const (
	cursorBucket    = "cursors"
	mailBucket      = "mailbox"
	turncountBucket = "turncounts"
)

// BoltStore implements CursorStore, MailStore and TurncountStore on a
// single BoltDB file. All writes are durable before the call returns.
type BoltStore struct {
	db *bbolt.DB
}

// NewBoltStore opens (or creates) the bot database. A held file lock usually
// means the previous process is still flushing its shutdown, so the open is
// retried with backoff before giving up.
func NewBoltStore(dbPath string) (*BoltStore, error) {
	db, err := retry.DoWithResult(context.Background(), retry.DefaultConfig(), func() (*bbolt.DB, error) {
		return bbolt.Open(dbPath, 0600, &bbolt.Options{
			Timeout: 1 * time.Second,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open boltdb (file may be locked by another process): %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{cursorBucket, mailBucket, turncountBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	log.Info().
		Str("db_path", dbPath).
		Msg("BoltDB store initialized")

	return &BoltStore{db: db}, nil
}

// GetCursor retrieves the stored byte offset for a file
func (s *BoltStore) GetCursor(ctx context.Context, filePath string) (int64, bool, error) {
	var offset int64
	var found bool

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(cursorBucket))
		if b == nil {
			return fmt.Errorf("bucket not found")
		}

		val := b.Get([]byte(filePath))
		if val == nil {
			return nil
		}
		if len(val) < 8 {
			return fmt.Errorf("invalid cursor value")
		}

		offset = int64(binary.BigEndian.Uint64(val))
		found = true
		return nil
	})

	if err != nil {
		return 0, false, fmt.Errorf("failed to get cursor: %w", err)
	}

	return offset, found, nil
}

// SetCursor stores the byte offset for a file
func (s *BoltStore) SetCursor(ctx context.Context, filePath string, offset int64) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(cursorBucket))
		if b == nil {
			return fmt.Errorf("bucket not found")
		}

		val := make([]byte, 8)
		binary.BigEndian.PutUint64(val, uint64(offset))
		return b.Put([]byte(filePath), val)
	})

	if err != nil {
		return fmt.Errorf("failed to set cursor: %w", err)
	}

	log.Debug().
		Str("file_path", filePath).
		Int64("offset", offset).
		Msg("Cursor updated")

	return nil
}

// AppendMessage appends a mailbox message for a recipient
func (s *BoltStore) AppendMessage(ctx context.Context, recipient string, msg Message) error {
	key := []byte(strings.ToLower(recipient))

	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(mailBucket))
		if b == nil {
			return fmt.Errorf("bucket not found")
		}

		var msgs []Message
		if val := b.Get(key); val != nil {
			if err := json.Unmarshal(val, &msgs); err != nil {
				return fmt.Errorf("corrupt mailbox entry: %w", err)
			}
		}
		msgs = append(msgs, msg)

		val, err := json.Marshal(msgs)
		if err != nil {
			return err
		}
		return b.Put(key, val)
	})

	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

// GetMessages returns all queued messages for a recipient
func (s *BoltStore) GetMessages(ctx context.Context, recipient string) ([]Message, error) {
	key := []byte(strings.ToLower(recipient))
	var msgs []Message

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(mailBucket))
		if b == nil {
			return fmt.Errorf("bucket not found")
		}

		val := b.Get(key)
		if val == nil {
			return nil
		}
		return json.Unmarshal(val, &msgs)
	})

	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	return msgs, nil
}

// DeleteMessages removes all queued messages for a recipient
func (s *BoltStore) DeleteMessages(ctx context.Context, recipient string) error {
	key := []byte(strings.ToLower(recipient))

	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(mailBucket))
		if b == nil {
			return fmt.Errorf("bucket not found")
		}
		return b.Delete(key)
	})

	if err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	return nil
}

// ForEachRecipient iterates over every recipient with queued messages
func (s *BoltStore) ForEachRecipient(ctx context.Context, fn func(recipient string, msgs []Message) error) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(mailBucket))
		if b == nil {
			return fmt.Errorf("bucket not found")
		}

		return b.ForEach(func(k, v []byte) error {
			var msgs []Message
			if err := json.Unmarshal(v, &msgs); err != nil {
				log.Warn().
					Str("recipient", string(k)).
					Err(err).
					Msg("Skipping corrupt mailbox entry")
				return nil
			}
			return fn(string(k), msgs)
		})
	})
}

// GetTurncount retrieves a player's minimum-turncount threshold
func (s *BoltStore) GetTurncount(ctx context.Context, player string) (int64, bool, error) {
	key := []byte(strings.ToLower(player))
	var threshold int64
	var found bool

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(turncountBucket))
		if b == nil {
			return fmt.Errorf("bucket not found")
		}

		val := b.Get(key)
		if val == nil {
			return nil
		}
		if len(val) < 8 {
			return fmt.Errorf("invalid turncount value")
		}

		threshold = int64(binary.BigEndian.Uint64(val))
		found = true
		return nil
	})

	if err != nil {
		return 0, false, fmt.Errorf("failed to get turncount: %w", err)
	}
	return threshold, found, nil
}

// SetTurncount stores a player's minimum-turncount threshold
func (s *BoltStore) SetTurncount(ctx context.Context, player string, threshold int64) error {
	key := []byte(strings.ToLower(player))

	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(turncountBucket))
		if b == nil {
			return fmt.Errorf("bucket not found")
		}

		val := make([]byte, 8)
		binary.BigEndian.PutUint64(val, uint64(threshold))
		return b.Put(key, val)
	})

	if err != nil {
		return fmt.Errorf("failed to set turncount: %w", err)
	}
	return nil
}

// DeleteTurncount removes a player's threshold
func (s *BoltStore) DeleteTurncount(ctx context.Context, player string) error {
	key := []byte(strings.ToLower(player))

	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(turncountBucket))
		if b == nil {
			return fmt.Errorf("bucket not found")
		}
		return b.Delete(key)
	})

	if err != nil {
		return fmt.Errorf("failed to delete turncount: %w", err)
	}
	return nil
}

// Close closes the underlying database
func (s *BoltStore) Close() error {
	log.Info().Msg("Closing BoltDB store")
	return s.db.Close()
}

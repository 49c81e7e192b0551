package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"papermind/internal/conversation"
)

// Messages stores each thread's transcript, one row per message.
type Messages struct {
	db  *sql.DB
	now func() time.Time
}

// Append adds msgs to the end of the thread's transcript in one transaction.
func (m *Messages) Append(ctx context.Context, threadID string, msgs ...conversation.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin append")
	}
	defer func() { _ = tx.Rollback() }()

	var next int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq) + 1, 0) FROM messages WHERE thread_id = ?`, threadID,
	).Scan(&next); err != nil {
		return errors.Wrap(err, "next sequence")
	}

	created := formatTime(m.now())
	for i, msg := range msgs {
		kind, payload, err := conversation.Encode(msg)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO messages (thread_id, seq, kind, payload, created_at) VALUES (?, ?, ?, ?, ?)`,
			threadID, next+int64(i), string(kind), string(payload), created,
		); err != nil {
			return errors.Wrapf(err, "insert message %d", next+int64(i))
		}
	}
	return errors.Wrap(tx.Commit(), "commit append")
}

// List returns the thread's transcript in order. An unknown thread yields an
// empty transcript.
func (m *Messages) List(ctx context.Context, threadID string) ([]conversation.Message, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT kind, payload FROM messages WHERE thread_id = ? ORDER BY seq`, threadID)
	if err != nil {
		return nil, errors.Wrap(err, "list messages")
	}
	defer rows.Close()

	var out []conversation.Message
	for rows.Next() {
		var kind, payload string
		if err := rows.Scan(&kind, &payload); err != nil {
			return nil, errors.Wrap(err, "scan message")
		}
		msg, err := conversation.Decode(conversation.Kind(kind), []byte(payload))
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, errors.Wrap(rows.Err(), "iterate messages")
}

// HasMessages reports whether the thread has any stored message.
func (m *Messages) HasMessages(ctx context.Context, threadID string) (bool, error) {
	var n int
	err := m.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM (SELECT 1 FROM messages WHERE thread_id = ? LIMIT 1)`, threadID,
	).Scan(&n)
	if err != nil {
		return false, errors.Wrap(err, "count messages")
	}
	return n > 0, nil
}

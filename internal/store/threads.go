package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Thread is one conversation's metadata.
type Thread struct {
	ID           string
	Name         string
	DocumentName *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ThreadUpdate carries the fields accepted by Threads.Update. Nil fields are
// left untouched.
type ThreadUpdate struct {
	Name     *string
	Document *string
}

// Threads stores thread metadata.
type Threads struct {
	db  *sql.DB
	now func() time.Time
}

// Create inserts a thread row. Creating an existing id is a no-op.
func (t *Threads) Create(ctx context.Context, id, name string, document *string) error {
	ts := formatTime(t.now())
	_, err := t.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO thread_metadata (thread_id, thread_name, document_name, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		id, name, nullable(document), ts, ts)
	return errors.Wrapf(err, "create thread %s", id)
}

// Update applies the non-nil fields of u and always advances updated_at.
func (t *Threads) Update(ctx context.Context, id string, u ThreadUpdate) error {
	set, args := []string{}, []any{}
	if u.Name != nil {
		set, args = append(set, "thread_name = ?"), append(args, *u.Name)
	}
	if u.Document != nil {
		set, args = append(set, "document_name = ?"), append(args, *u.Document)
	}
	set, args = append(set, "updated_at = ?"), append(args, formatTime(t.now()))
	args = append(args, id)

	stmt := fmt.Sprintf(`UPDATE thread_metadata SET %s WHERE thread_id = ?`, strings.Join(set, ", "))
	res, err := t.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return errors.Wrapf(err, "update thread %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if n == 0 {
		return errors.Wrap(ErrThreadNotFound, id)
	}
	return nil
}

// Touch advances updated_at only.
func (t *Threads) Touch(ctx context.Context, id string) error {
	return t.Update(ctx, id, ThreadUpdate{})
}

// Get returns one thread or ErrThreadNotFound.
func (t *Threads) Get(ctx context.Context, id string) (*Thread, error) {
	row := t.db.QueryRowContext(ctx,
		`SELECT thread_id, thread_name, document_name, created_at, updated_at
		 FROM thread_metadata WHERE thread_id = ?`, id)
	th, err := scanThread(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrap(ErrThreadNotFound, id)
	}
	return th, err
}

// List returns every thread, most recently updated first.
func (t *Threads) List(ctx context.Context) ([]*Thread, error) {
	rows, err := t.db.QueryContext(ctx,
		`SELECT thread_id, thread_name, document_name, created_at, updated_at
		 FROM thread_metadata ORDER BY updated_at DESC, thread_id`)
	if err != nil {
		return nil, errors.Wrap(err, "list threads")
	}
	defer rows.Close()

	var list []*Thread
	for rows.Next() {
		th, err := scanThread(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, th)
	}
	return list, errors.Wrap(rows.Err(), "iterate threads")
}

// Delete removes a thread and its transcript.
func (t *Threads) Delete(ctx context.Context, id string) error {
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin delete")
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE thread_id = ?`, id); err != nil {
		return errors.Wrapf(err, "delete messages of %s", id)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM thread_metadata WHERE thread_id = ?`, id); err != nil {
		return errors.Wrapf(err, "delete thread %s", id)
	}
	return errors.Wrap(tx.Commit(), "commit delete")
}

type scanner interface {
	Scan(dest ...any) error
}

func scanThread(s scanner) (*Thread, error) {
	var (
		th               Thread
		doc              sql.NullString
		created, updated string
	)
	if err := s.Scan(&th.ID, &th.Name, &doc, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, errors.Wrap(err, "scan thread")
	}
	if doc.Valid {
		th.DocumentName = &doc.String
	}
	var err error
	if th.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if th.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	return &th, nil
}

func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

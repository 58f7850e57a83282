package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

type NotFoundError struct {
	Kind string
	ID   string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// ConflictError is returned by PutDocument when the caller's base version is
// no longer current.
type ConflictError struct {
	ID      string
	Base    int64
	Current int64
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("document %s changed (base version %d, current %d)", e.ID, e.Base, e.Current)
}

// Document is a stored DocumentText.
type Document struct {
	ID        string    `json:"id"`
	Dialect   string    `json:"dialect"`
	Text      string    `json:"text"`
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (s *Store) GetDocument(ctx context.Context, id string) (Document, error) {
	id = strings.TrimSpace(id)
	var (
		d  Document
		ms int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, dialect, body, version, updated_at_unixms FROM documents WHERE id = ?`, id,
	).Scan(&d.ID, &d.Dialect, &d.Text, &d.Version, &ms)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, NotFoundError{Kind: "document", ID: id}
	}
	if err != nil {
		return Document{}, err
	}
	d.UpdatedAt = time.UnixMilli(ms).UTC()
	return d, nil
}

// PutDocument stores text as the next version of document id. When base is
// non-negative the write only succeeds if the stored version still equals
// base (zero meaning "does not exist yet"); otherwise it returns
// ConflictError. A base of -1 writes unconditionally.
func (s *Store) PutDocument(ctx context.Context, id, dialect, text string, base int64) (Document, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Document{}, errors.New("store: empty document id")
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return Document{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var current int64
	err = tx.QueryRowContext(ctx, `SELECT version FROM documents WHERE id = ?`, id).Scan(&current)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return Document{}, err
	}
	if base >= 0 && base != current {
		return Document{}, ConflictError{ID: id, Base: base, Current: current}
	}

	now := s.now()
	d := Document{ID: id, Dialect: dialect, Text: text, Version: current + 1, UpdatedAt: now.Truncate(time.Millisecond)}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO documents(id, dialect, body, version, updated_at_unixms) VALUES(?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET dialect = excluded.dialect, body = excluded.body,
			version = excluded.version, updated_at_unixms = excluded.updated_at_unixms`,
		d.ID, d.Dialect, d.Text, d.Version, now.UnixMilli(),
	); err != nil {
		return Document{}, err
	}
	if err := tx.Commit(); err != nil {
		return Document{}, err
	}
	return d, nil
}

// ListDocuments returns every document ordered by id.
func (s *Store) ListDocuments(ctx context.Context) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, dialect, body, version, updated_at_unixms FROM documents ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		var (
			d  Document
			ms int64
		)
		if err := rows.Scan(&d.ID, &d.Dialect, &d.Text, &d.Version, &ms); err != nil {
			return nil, err
		}
		d.UpdatedAt = time.UnixMilli(ms).UTC()
		out = append(out, d)
	}
	return out, rows.Err()
}

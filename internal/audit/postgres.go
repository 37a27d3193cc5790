package audit

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type auditDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresSink writes events to an append-only audit_events table.
type PostgresSink struct {
	db    auditDB
	close func()
}

// NewPostgresSink connects to dsn and ensures the audit table exists.
func NewPostgresSink(ctx context.Context, dsn string) (*PostgresSink, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	s := &PostgresSink{db: pool, close: pool.Close}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresSinkWithDB wraps an existing connection-like value. Test hook.
func NewPostgresSinkWithDB(db auditDB) *PostgresSink {
	return &PostgresSink{db: db, close: func() {}}
}

func (s *PostgresSink) ensureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS audit_events (
			id           text PRIMARY KEY,
			kind         text NOT NULL,
			principal    text,
			role         text,
			capability   text,
			allowed      boolean NOT NULL DEFAULT false,
			reason       text,
			account      text,
			identity     text,
			score        integer NOT NULL DEFAULT 0,
			level        text,
			partial_data boolean NOT NULL DEFAULT false,
			created_at   timestamptz NOT NULL
		)
	`)
	return err
}

func (s *PostgresSink) Record(ctx context.Context, e Event) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO audit_events
		(id, kind, principal, role, capability, allowed, reason, account, identity, score, level, partial_data, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, e.ID, string(e.Kind), e.Principal, e.Role, e.Capability, e.Allowed, e.Reason,
		e.Account, e.Identity, e.Score, e.Level, e.PartialData, e.CreatedAt)
	return err
}

func (s *PostgresSink) Query(ctx context.Context, f Filter) ([]Event, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}

	var rows pgx.Rows
	var err error
	if f.Principal != "" {
		rows, err = s.db.Query(ctx, `
			SELECT id, kind, principal, role, capability, allowed, reason, account, identity, score, level, partial_data, created_at
			FROM audit_events WHERE principal = $1 ORDER BY created_at DESC LIMIT $2
		`, f.Principal, limit)
	} else {
		rows, err = s.db.Query(ctx, `
			SELECT id, kind, principal, role, capability, allowed, reason, account, identity, score, level, partial_data, created_at
			FROM audit_events ORDER BY created_at DESC LIMIT $1
		`, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Event, 0, limit)
	for rows.Next() {
		var e Event
		var kind string
		if err := rows.Scan(&e.ID, &kind, &e.Principal, &e.Role, &e.Capability, &e.Allowed,
			&e.Reason, &e.Account, &e.Identity, &e.Score, &e.Level, &e.PartialData, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Kind = EventKind(kind)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PostgresSink) Close() error {
	s.close()
	return nil
}

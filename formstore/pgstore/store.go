// Package pgstore backs form sessions with Postgres so in-flight flows
// survive restarts. Idle eviction uses an expires_at column refreshed on
// every write.
package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/finwire/payflow/form"
)

const defaultTTL = 30 * time.Minute

// Store implements form.Store over a sqlx Postgres handle.
type Store struct {
	db  *sqlx.DB
	ttl time.Duration
}

var _ form.Store = (*Store)(nil)

// New creates a Postgres-backed store. A non-positive idleTTL falls back to
// the default of 30 minutes.
func New(db *sqlx.DB, idleTTL time.Duration) *Store {
	if idleTTL <= 0 {
		idleTTL = defaultTTL
	}
	return &Store{db: db, ttl: idleTTL}
}

type sessionRow struct {
	OwnerID   int64     `db:"owner_id"`
	FlowID    string    `db:"flow_id"`
	Values    []byte    `db:"field_values"`
	Status    string    `db:"status"`
	StartedAt time.Time `db:"started_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Get returns the stored session or form.ErrSessionNotFound. Expired rows
// are treated as absent; a janitor query cleans them up opportunistically.
func (s *Store) Get(ctx context.Context, owner int64, flowID string) (*form.Session, error) {
	const q = `
		SELECT owner_id, flow_id, field_values, status, started_at, updated_at
		FROM form_sessions
		WHERE owner_id = $1 AND flow_id = $2 AND expires_at > now()`

	var row sessionRow
	if err := s.db.GetContext(ctx, &row, q, owner, flowID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, form.ErrSessionNotFound
		}
		return nil, fmt.Errorf("pgstore: get session: %w", err)
	}

	values := make(form.Values)
	if len(row.Values) > 0 {
		if err := json.Unmarshal(row.Values, &values); err != nil {
			return nil, fmt.Errorf("pgstore: decode values: %w", err)
		}
	}
	return &form.Session{
		Owner:     row.OwnerID,
		FlowID:    row.FlowID,
		Values:    values,
		Status:    form.Status(row.Status),
		StartedAt: row.StartedAt,
		UpdatedAt: row.UpdatedAt,
	}, nil
}

// Put upserts the session and pushes expires_at forward by the idle TTL.
func (s *Store) Put(ctx context.Context, owner int64, flowID string, sess *form.Session) error {
	values, err := json.Marshal(sess.Values)
	if err != nil {
		return fmt.Errorf("pgstore: encode values: %w", err)
	}

	const q = `
		INSERT INTO form_sessions (owner_id, flow_id, field_values, status, started_at, updated_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, now() + $7 * interval '1 second')
		ON CONFLICT (owner_id, flow_id) DO UPDATE SET
			field_values = EXCLUDED.field_values,
			status       = EXCLUDED.status,
			started_at   = EXCLUDED.started_at,
			updated_at   = EXCLUDED.updated_at,
			expires_at   = EXCLUDED.expires_at`

	_, err = s.db.ExecContext(ctx, q, owner, flowID, values, string(sess.Status),
		sess.StartedAt, sess.UpdatedAt, int64(s.ttl.Seconds()))
	if err != nil {
		return fmt.Errorf("pgstore: put session: %w", err)
	}
	return nil
}

// Remove deletes the session row; removing a missing row is a no-op.
func (s *Store) Remove(ctx context.Context, owner int64, flowID string) error {
	const q = `DELETE FROM form_sessions WHERE owner_id = $1 AND flow_id = $2`
	if _, err := s.db.ExecContext(ctx, q, owner, flowID); err != nil {
		return fmt.Errorf("pgstore: remove session: %w", err)
	}
	return nil
}

// ActiveFlow returns the owner's unexpired non-terminal flow, if any.
func (s *Store) ActiveFlow(ctx context.Context, owner int64) (string, error) {
	const q = `
		SELECT flow_id
		FROM form_sessions
		WHERE owner_id = $1
		  AND status IN ('collecting', 'ready', 'submitting')
		  AND expires_at > now()
		ORDER BY updated_at DESC
		LIMIT 1`

	var flowID string
	if err := s.db.GetContext(ctx, &flowID, q, owner); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", form.ErrSessionNotFound
		}
		return "", fmt.Errorf("pgstore: active flow: %w", err)
	}
	return flowID, nil
}

// EvictExpired removes rows past their expiry. Intended for a periodic
// janitor; returns the number of rows deleted.
func (s *Store) EvictExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM form_sessions WHERE expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("pgstore: evict expired: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("pgstore: evict expired: %w", err)
	}
	return n, nil
}

package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/and161185/nftmarket/internal/model"
	"github.com/and161185/nftmarket/internal/session"
)

// SessionRepo implements session.Persister on a sessions table. Scope isolates
// the records of one shell instance from another sharing the database.
type SessionRepo struct {
	db    *DB
	scope string
}

var _ session.Persister = (*SessionRepo)(nil)

// NewSessionRepo constructs a session repository for scope.
func NewSessionRepo(db *DB, scope string) *SessionRepo {
	return &SessionRepo{db: db, scope: scope}
}

// Load selects the record by name.
func (r *SessionRepo) Load(ctx context.Context, name string) (model.Session, error) {
	const q = `SELECT payload FROM sessions WHERE scope=$1 AND name=$2`
	var payload []byte
	if err := r.db.Pool.QueryRow(ctx, q, r.scope, name).Scan(&payload); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Session{}, session.ErrNoRecord
		}
		return model.Session{}, err
	}
	var s model.Session
	if err := json.Unmarshal(payload, &s); err != nil {
		return model.Session{}, fmt.Errorf("decode session %s: %w", name, err)
	}
	return s, nil
}

// Save upserts the record.
func (r *SessionRepo) Save(ctx context.Context, name string, s model.Session) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return err
	}
	const q = `INSERT INTO sessions (scope, name, payload, updated_at) VALUES ($1, $2, $3, now()) ON CONFLICT (scope, name) DO UPDATE SET payload = EXCLUDED.payload, updated_at = now()`
	_, err = r.db.Pool.Exec(ctx, q, r.scope, name, payload)
	return err
}

// Clear deletes the record; a missing record is not an error.
func (r *SessionRepo) Clear(ctx context.Context, name string) error {
	const q = `DELETE FROM sessions WHERE scope=$1 AND name=$2`
	_, err := r.db.Pool.Exec(ctx, q, r.scope, name)
	return err
}

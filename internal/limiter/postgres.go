package limiter

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PG shares lockouts between shells using the same store scope.
type PG struct {
	pool     pgxQuerier
	scope    string
	window   time.Duration
	maxFails int
	blockFor time.Duration
}

// NewPG constructs a PostgreSQL-backed limiter for scope.
func NewPG(q pgxQuerier, scope string, window time.Duration, maxFails int, blockFor time.Duration) *PG {
	return &PG{pool: q, scope: scope, window: window, maxFails: maxFails, blockFor: blockFor}
}

func (l *PG) Allow(ctx context.Context, email string) (bool, time.Duration, error) {
	const q = `SELECT blocked_until FROM login_attempts WHERE scope=$1 AND email_hash=$2`
	var blockedUntil time.Time
	err := l.pool.QueryRow(ctx, q, l.scope, HashEmail(email)).Scan(&blockedUntil)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return true, 0, nil
	case err != nil:
		return false, 0, err
	}
	if d := time.Until(blockedUntil); d > 0 {
		return false, d, nil
	}
	return true, 0, nil
}

func (l *PG) Success(ctx context.Context, email string) error {
	const q = `DELETE FROM login_attempts WHERE scope=$1 AND email_hash=$2`
	_, err := l.pool.Exec(ctx, q, l.scope, HashEmail(email))
	return err
}

func (l *PG) Failure(ctx context.Context, email string) (bool, time.Duration, error) {
	const q = `
INSERT INTO login_attempts (scope, email_hash, fail_count, blocked_until, updated_at)
VALUES ($1, $2, 1, 'epoch', now())
ON CONFLICT (scope, email_hash) DO UPDATE
SET
  fail_count = CASE WHEN now() - login_attempts.updated_at > $3::interval THEN 1 ELSE login_attempts.fail_count + 1 END,
  updated_at = now()
RETURNING fail_count`
	h := HashEmail(email)
	var fails int
	if err := l.pool.QueryRow(ctx, q, l.scope, h, l.window).Scan(&fails); err != nil {
		return false, 0, err
	}
	if fails < l.maxFails {
		return false, 0, nil
	}
	const upd = `UPDATE login_attempts SET blocked_until=$3 WHERE scope=$1 AND email_hash=$2`
	if _, err := l.pool.Exec(ctx, upd, l.scope, h, time.Now().Add(l.blockFor)); err != nil {
		return false, 0, err
	}
	return true, l.blockFor, nil
}

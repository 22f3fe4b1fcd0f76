package limiter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"
)

func TestHashEmail_Normalizes(t *testing.T) {
	require.Equal(t, HashEmail("a@b.c"), HashEmail("  A@B.C "))
	require.NotEqual(t, HashEmail("a@b.c"), HashEmail("x@b.c"))
}

func TestMemory_BlocksAfterMaxFails(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	l := NewMemory(time.Minute, 3, 10*time.Minute)
	l.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		blocked, _, err := l.Failure(ctx, "a@b.c")
		require.NoError(t, err)
		require.False(t, blocked)
	}
	blocked, d, err := l.Failure(ctx, "a@b.c")
	require.NoError(t, err)
	require.True(t, blocked)
	require.Equal(t, 10*time.Minute, d)

	ok, retry, _ := l.Allow(ctx, "A@b.c")
	require.False(t, ok)
	require.Equal(t, 10*time.Minute, retry)

	ok, _, _ = l.Allow(ctx, "other@b.c")
	require.True(t, ok)

	now = now.Add(11 * time.Minute)
	ok, _, _ = l.Allow(ctx, "a@b.c")
	require.True(t, ok, "block expires")
}

func TestMemory_WindowResetsAndSuccessClears(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	l := NewMemory(time.Minute, 2, time.Minute)
	l.now = func() time.Time { return now }

	_, _, _ = l.Failure(ctx, "a@b.c")
	now = now.Add(2 * time.Minute)
	blocked, _, _ := l.Failure(ctx, "a@b.c")
	require.False(t, blocked, "first failure fell out of the window")

	require.NoError(t, l.Success(ctx, "a@b.c"))
	blocked, _, _ = l.Failure(ctx, "a@b.c")
	require.False(t, blocked)
}

func TestPG_Allow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	l := NewPG(mock, "s1", time.Minute, 3, time.Minute)
	ctx := context.Background()
	const q = `SELECT blocked_until FROM login_attempts WHERE scope=\$1 AND email_hash=\$2`

	mock.ExpectQuery(q).WithArgs("s1", HashEmail("a@b.c")).WillReturnError(pgx.ErrNoRows)
	ok, _, err := l.Allow(ctx, "a@b.c")
	require.NoError(t, err)
	require.True(t, ok)

	mock.ExpectQuery(q).WithArgs("s1", HashEmail("a@b.c")).
		WillReturnRows(pgxmock.NewRows([]string{"blocked_until"}).AddRow(time.Now().Add(time.Hour)))
	ok, d, err := l.Allow(ctx, "a@b.c")
	require.NoError(t, err)
	require.False(t, ok)
	require.Greater(t, d, 50*time.Minute)

	boom := errors.New("conn reset")
	mock.ExpectQuery(q).WithArgs("s1", HashEmail("a@b.c")).WillReturnError(boom)
	_, _, err = l.Allow(ctx, "a@b.c")
	require.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPG_FailureBlocksAtThreshold(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	l := NewPG(mock, "s1", time.Minute, 3, 5*time.Minute)
	ctx := context.Background()
	h := HashEmail("a@b.c")

	mock.ExpectQuery(`INSERT INTO login_attempts`).WithArgs("s1", h, time.Minute).
		WillReturnRows(pgxmock.NewRows([]string{"fail_count"}).AddRow(2))
	blocked, _, err := l.Failure(ctx, "a@b.c")
	require.NoError(t, err)
	require.False(t, blocked)

	mock.ExpectQuery(`INSERT INTO login_attempts`).WithArgs("s1", h, time.Minute).
		WillReturnRows(pgxmock.NewRows([]string{"fail_count"}).AddRow(3))
	mock.ExpectExec(`UPDATE login_attempts SET blocked_until=\$3`).WithArgs("s1", h, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	blocked, d, err := l.Failure(ctx, "a@b.c")
	require.NoError(t, err)
	require.True(t, blocked)
	require.Equal(t, 5*time.Minute, d)

	mock.ExpectExec(`DELETE FROM login_attempts`).WithArgs("s1", h).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	require.NoError(t, l.Success(ctx, "a@b.c"))
	require.NoError(t, mock.ExpectationsWereMet())
}

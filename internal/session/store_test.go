package session

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/and161185/nftmarket/internal/errs"
	"github.com/and161185/nftmarket/internal/limiter"
	"github.com/and161185/nftmarket/internal/model"
)

type fakeAuth struct {
	env      *model.AuthEnvelope
	loginErr error
	regMsg   string
	regErr   error

	loginCalls int
	regCalls   int
}

var _ Authenticator = (*fakeAuth)(nil)

func (f *fakeAuth) Login(context.Context, string, string) (*model.AuthEnvelope, error) {
	f.loginCalls++
	return f.env, f.loginErr
}

func (f *fakeAuth) Register(context.Context, string, string) (string, error) {
	f.regCalls++
	return f.regMsg, f.regErr
}

type failingPersister struct{ *MemoryPersister }

func (f *failingPersister) Save(context.Context, string, model.Session) error {
	return errors.New("disk full")
}

func signed(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "u1",
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	s, err := tok.SignedString([]byte("k"))
	require.NoError(t, err)
	return s
}

func TestStore_LoginPersistsMatchingRecord(t *testing.T) {
	t.Parallel()
	pers := NewMemoryPersister()
	auth := &fakeAuth{env: &model.AuthEnvelope{AccessToken: "tok", User: &model.User{ID: "u1"}}}
	s := NewStore(auth, pers, nil)
	ctx := context.Background()

	require.NoError(t, s.Login(ctx, "a@b.com", "pw"))
	require.True(t, s.IsAuthenticated())
	require.Equal(t, model.ID("u1"), s.UserID())
	require.Equal(t, "tok", s.Token())

	rec, err := pers.Load(ctx, StorageName)
	require.NoError(t, err)
	require.Equal(t, s.Snapshot(), rec)
}

func TestStore_LogoutClearsRecord(t *testing.T) {
	t.Parallel()
	pers := NewMemoryPersister()
	s := NewStore(&fakeAuth{}, pers, nil)
	ctx := context.Background()

	require.NoError(t, s.SetAuthData(ctx, &model.User{ID: "u1"}, "tok"))
	require.NoError(t, s.Logout(ctx))

	_, err := pers.Load(ctx, StorageName)
	require.ErrorIs(t, err, ErrNoRecord)
	require.Equal(t, model.Session{}, s.Snapshot())
	require.False(t, s.IsAuthenticated())
	require.Empty(t, s.UserID())

	require.NoError(t, s.Logout(ctx), "logout while anonymous is fine")
}

func TestStore_LoginFailuresStayAnonymous(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tests := []struct {
		name string
		auth *fakeAuth
		want error
	}{
		{"transport", &fakeAuth{loginErr: errs.ErrUnauthorized}, errs.ErrUnauthorized},
		{"no token", &fakeAuth{env: &model.AuthEnvelope{User: &model.User{ID: "u"}}}, errs.ErrMalformedResponse},
		{"no user", &fakeAuth{env: &model.AuthEnvelope{AccessToken: "t"}}, errs.ErrMalformedResponse},
		{"nil envelope", &fakeAuth{}, errs.ErrMalformedResponse},
	}
	for _, tt := range tests {
		pers := NewMemoryPersister()
		s := NewStore(tt.auth, pers, nil)
		err := s.Login(ctx, "a@b.com", "pw")
		if !errors.Is(err, tt.want) {
			t.Fatalf("%s: err=%v, want %v", tt.name, err, tt.want)
		}
		if s.IsAuthenticated() {
			t.Fatalf("%s: must stay anonymous", tt.name)
		}
		if _, err := pers.Load(ctx, StorageName); !errors.Is(err, ErrNoRecord) {
			t.Fatalf("%s: nothing must be persisted", tt.name)
		}
	}
}

func TestStore_LoginValidatesInput(t *testing.T) {
	t.Parallel()
	auth := &fakeAuth{}
	s := NewStore(auth, nil, nil)
	require.Error(t, s.Login(context.Background(), " ", "pw"))
	require.Error(t, s.Login(context.Background(), "a@b.com", ""))
	require.Zero(t, auth.loginCalls)
}

func TestStore_RegisterDoesNotAuthenticate(t *testing.T) {
	t.Parallel()
	auth := &fakeAuth{regMsg: "check your email"}
	pers := NewMemoryPersister()
	s := NewStore(auth, pers, nil)

	msg, err := s.Register(context.Background(), "a@b.com", "pw")
	require.NoError(t, err)
	require.Equal(t, "check your email", msg)
	require.False(t, s.IsAuthenticated())
	_, err = pers.Load(context.Background(), StorageName)
	require.ErrorIs(t, err, ErrNoRecord)

	auth.regErr = errors.New("exists")
	_, err = s.Register(context.Background(), "a@b.com", "pw")
	require.Error(t, err)
}

func TestStore_RestoreRehydrates(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	pers := NewMemoryPersister()
	tok := signed(t, time.Now().Add(time.Hour))
	require.NoError(t, pers.Save(ctx, StorageName, model.Session{User: &model.User{ID: "u1"}, Token: tok, IsAuthenticated: true}))

	s := NewStore(&fakeAuth{}, pers, nil)
	require.NoError(t, s.Restore(ctx))
	require.True(t, s.IsAuthenticated())
	require.Equal(t, tok, s.Token())
}

func TestStore_RestoreDropsExpired(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	pers := NewMemoryPersister()
	tok := signed(t, time.Now().Add(-time.Minute))
	require.NoError(t, pers.Save(ctx, StorageName, model.Session{User: &model.User{ID: "u1"}, Token: tok, IsAuthenticated: true}))

	s := NewStore(&fakeAuth{}, pers, nil)
	require.NoError(t, s.Restore(ctx))
	require.False(t, s.IsAuthenticated())
	_, err := pers.Load(ctx, StorageName)
	require.ErrorIs(t, err, ErrNoRecord)
}

func TestStore_RestoreOpaqueTokenKept(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	pers := NewMemoryPersister()
	require.NoError(t, pers.Save(ctx, StorageName, model.Session{User: &model.User{ID: "u1"}, Token: "opaque", IsAuthenticated: true}))

	s := NewStore(&fakeAuth{}, pers, nil)
	require.NoError(t, s.Restore(ctx))
	require.True(t, s.IsAuthenticated())

	empty := NewStore(&fakeAuth{}, NewMemoryPersister(), nil)
	require.NoError(t, empty.Restore(ctx))
	require.False(t, empty.IsAuthenticated())
}

func TestStore_SetAuthDataPersistError(t *testing.T) {
	t.Parallel()
	s := NewStore(&fakeAuth{}, &failingPersister{MemoryPersister: NewMemoryPersister()}, nil)
	err := s.SetAuthData(context.Background(), &model.User{ID: "u1"}, "tok")
	require.Error(t, err)
	require.True(t, s.IsAuthenticated(), "adopted in memory even when not persisted")
	require.ErrorIs(t, s.SetAuthData(context.Background(), nil, "tok"), errs.ErrMalformedResponse)
	require.ErrorIs(t, s.SetAuthData(context.Background(), &model.User{}, "tok"), errs.ErrMalformedResponse)
}

func TestStore_LoginPersistFailureRollsBack(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	pers := &failingPersister{MemoryPersister: NewMemoryPersister()}
	auth := &fakeAuth{env: &model.AuthEnvelope{AccessToken: "tok", User: &model.User{ID: "u1"}}}
	s := NewStore(auth, pers, nil)

	err := s.Login(ctx, "a@b.com", "pw")
	require.ErrorContains(t, err, "disk full")
	require.False(t, s.IsAuthenticated())
	require.Empty(t, s.Token())
	_, err = pers.Load(ctx, StorageName)
	require.ErrorIs(t, err, ErrNoRecord)
}

func TestStore_RestoreDropsRecordWithoutUser(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for _, rec := range []model.Session{
		{Token: "opaque", IsAuthenticated: true},
		{User: &model.User{Email: "a@b.com"}, Token: "opaque", IsAuthenticated: true},
	} {
		pers := NewMemoryPersister()
		require.NoError(t, pers.Save(ctx, StorageName, rec))

		s := NewStore(&fakeAuth{}, pers, nil)
		require.NoError(t, s.Restore(ctx))
		require.False(t, s.IsAuthenticated())
		require.Empty(t, s.UserID())
		_, err := pers.Load(ctx, StorageName)
		require.ErrorIs(t, err, ErrNoRecord)
	}
}

func TestStore_SnapshotIsCopy(t *testing.T) {
	t.Parallel()
	s := NewStore(&fakeAuth{}, nil, nil)
	u := &model.User{ID: "u1"}
	require.NoError(t, s.SetAuthData(context.Background(), u, "tok"))
	u.ID = "mutated"
	snap := s.Snapshot()
	snap.User.ID = "also-mutated"
	require.Equal(t, model.ID("u1"), s.UserID())
}

func TestStore_Subscribe(t *testing.T) {
	t.Parallel()
	s := NewStore(&fakeAuth{}, nil, nil)
	ch, cancel := s.Subscribe()
	defer cancel()

	require.NoError(t, s.SetAuthData(context.Background(), &model.User{ID: "u1"}, "tok"))
	got := <-ch
	require.True(t, got.IsAuthenticated)

	require.NoError(t, s.Logout(context.Background()))
	got = <-ch
	require.False(t, got.IsAuthenticated)
}

func TestStore_LoginLockout(t *testing.T) {
	t.Parallel()
	auth := &fakeAuth{loginErr: fmt.Errorf("401: %w", errs.ErrUnauthorized)}
	s := NewStore(auth, nil, nil, WithLimiter(limiter.NewMemory(time.Minute, 2, time.Minute)))
	ctx := context.Background()

	require.ErrorIs(t, s.Login(ctx, "a@b.com", "bad"), errs.ErrUnauthorized)
	require.ErrorIs(t, s.Login(ctx, "a@b.com", "bad"), errs.ErrUnauthorized)

	err := s.Login(ctx, "a@b.com", "good")
	require.ErrorIs(t, err, errs.ErrRateLimited)
	require.Equal(t, 2, auth.loginCalls, "locked out logins never reach the backend")

	auth.loginErr = nil
	auth.env = &model.AuthEnvelope{AccessToken: "tok", User: &model.User{ID: "u2"}}
	require.NoError(t, s.Login(ctx, "other@b.com", "pw"))
	require.True(t, s.IsAuthenticated())
}

func TestStore_TransportErrorsDoNotCountTowardLockout(t *testing.T) {
	t.Parallel()
	auth := &fakeAuth{loginErr: errors.New("connection refused")}
	s := NewStore(auth, nil, nil, WithLimiter(limiter.NewMemory(time.Minute, 1, time.Minute)))
	ctx := context.Background()

	require.Error(t, s.Login(ctx, "a@b.com", "pw"))
	require.Error(t, s.Login(ctx, "a@b.com", "pw"))
	require.Equal(t, 2, auth.loginCalls)
}

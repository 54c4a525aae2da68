package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fitsbook-server/internal/auth"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestAuthStore_CreateUserAndAuthenticate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	user, err := s.Auth.CreateUser(ctx, "Ada", "ada", "s3cret")
	require.NoError(t, err)
	assert.NotZero(t, user.ID)
	assert.NotEqual(t, "s3cret", user.PasswordHash)

	id, err := s.Auth.Authenticate(ctx, "ada", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, user.ID, id)
}

func TestAuthStore_AuthenticateFailures(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Auth.CreateUser(ctx, "Ada", "ada", "s3cret")
	require.NoError(t, err)

	_, err = s.Auth.Authenticate(ctx, "ada", "wrong")
	assert.ErrorIs(t, err, ErrAuthFailed)

	_, err = s.Auth.Authenticate(ctx, "nobody", "s3cret")
	assert.ErrorIs(t, err, ErrAuthFailed)
}

func TestAuthStore_CorruptHashFailsClosed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Auth.CreateUser(ctx, "Ada", "ada", "s3cret")
	require.NoError(t, err)
	_, err = s.DB().ExecContext(ctx,
		`UPDATE users SET password_hash = '$argon2id$v=19$m=65536,t=3,p=0$c2FsdHNhbHQ$aGFzaGhhc2g' WHERE username = 'ada'`)
	require.NoError(t, err)

	require.NotPanics(t, func() {
		_, err = s.Auth.Authenticate(ctx, "ada", "s3cret")
	})
	assert.ErrorIs(t, err, ErrAuthFailed)
}

func TestAuthStore_DuplicateUsername(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Auth.CreateUser(ctx, "Ada", "ada", "one")
	require.NoError(t, err)
	_, err = s.Auth.CreateUser(ctx, "Other Ada", "ada", "two")
	assert.ErrorIs(t, err, ErrDuplicateUser)
}

func TestAuthStore_CreateUserRequiresCredentials(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Auth.CreateUser(context.Background(), "Ada", "", "pw")
	assert.Error(t, err)
	_, err = s.Auth.CreateUser(context.Background(), "Ada", "ada", "")
	assert.Error(t, err)
}

func TestAuthStore_IssueToken(t *testing.T) {
	clock := &fakeClock{now: time.UnixMilli(1700000000000)}
	s := newTestStoreWithNow(t, clock.Now)
	ctx := context.Background()

	user, err := s.Auth.CreateUser(ctx, "Ada", "ada", "pw")
	require.NoError(t, err)

	tok, err := s.Auth.IssueToken(ctx, user.ID)
	require.NoError(t, err)
	assert.Len(t, tok.Token, auth.TokenLength)
	assert.Equal(t, user.ID, tok.UserID)
	assert.Equal(t, int64(1700000000000), tok.CreatedAt)
	assert.Equal(t, tok.CreatedAt+DefaultTokenTTL.Milliseconds(), tok.ValidUntil)

	other, err := s.Auth.IssueToken(ctx, user.ID)
	require.NoError(t, err)
	assert.NotEqual(t, tok.Token, other.Token)
}

func TestAuthStore_ValidateToken(t *testing.T) {
	clock := &fakeClock{now: time.UnixMilli(1700000000000)}
	s := newTestStoreWithNow(t, clock.Now)
	ctx := context.Background()

	ada, err := s.Auth.CreateUser(ctx, "Ada", "ada", "pw")
	require.NoError(t, err)
	bob, err := s.Auth.CreateUser(ctx, "Bob", "bob", "pw")
	require.NoError(t, err)

	tok, err := s.Auth.IssueToken(ctx, ada.ID)
	require.NoError(t, err)

	ok, err := s.Auth.ValidateToken(ctx, ada.ID, tok.Token)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Auth.ValidateToken(ctx, bob.ID, tok.Token)
	require.NoError(t, err)
	assert.False(t, ok, "token must be bound to its user")

	ok, err = s.Auth.ValidateToken(ctx, ada.ID, "")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.Auth.ValidateToken(ctx, ada.ID, "not-a-token")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAuthStore_TokenExpiry(t *testing.T) {
	clock := &fakeClock{now: time.UnixMilli(1700000000000)}
	s := newTestStoreWithNow(t, clock.Now)
	ctx := context.Background()

	user, err := s.Auth.CreateUser(ctx, "Ada", "ada", "pw")
	require.NoError(t, err)
	tok, err := s.Auth.IssueToken(ctx, user.ID)
	require.NoError(t, err)

	clock.Advance(DefaultTokenTTL)
	ok, err := s.Auth.ValidateToken(ctx, user.ID, tok.Token)
	require.NoError(t, err)
	assert.True(t, ok, "token is valid up to and including valid_until")

	clock.Advance(time.Millisecond)
	ok, err = s.Auth.ValidateToken(ctx, user.ID, tok.Token)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAuthStore_PruneExpiredTokens(t *testing.T) {
	clock := &fakeClock{now: time.UnixMilli(1700000000000)}
	s := newTestStoreWithNow(t, clock.Now)
	ctx := context.Background()

	user, err := s.Auth.CreateUser(ctx, "Ada", "ada", "pw")
	require.NoError(t, err)
	_, err = s.Auth.IssueToken(ctx, user.ID)
	require.NoError(t, err)

	clock.Advance(5 * 24 * time.Hour)
	fresh, err := s.Auth.IssueToken(ctx, user.ID)
	require.NoError(t, err)

	n, err := s.Auth.PruneExpiredTokens(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	clock.Advance(6 * 24 * time.Hour)
	n, err = s.Auth.PruneExpiredTokens(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	ok, err := s.Auth.ValidateToken(ctx, user.ID, fresh.Token)
	require.NoError(t, err)
	assert.True(t, ok)
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"fitsbook-server/internal/auth"
	"fitsbook-server/internal/model"
	"fitsbook-server/internal/passhash"
)

// AuthStore keeps users and their bearer tokens.
type AuthStore struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

func NewAuthStore(db *sql.DB, ttl time.Duration) *AuthStore {
	return NewAuthStoreWithNow(db, ttl, time.Now)
}

func NewAuthStoreWithNow(db *sql.DB, ttl time.Duration, now func() time.Time) *AuthStore {
	return &AuthStore{db: db, ttl: ttl, now: now}
}

// CreateUser stores a new user with an Argon2id hash of password.
func (s *AuthStore) CreateUser(ctx context.Context, name, username, password string) (model.User, error) {
	if username == "" || password == "" {
		return model.User{}, errors.New("username and password required")
	}
	hash, err := passhash.HashPassword(password)
	if err != nil {
		return model.User{}, err
	}

	now := s.now().UnixMilli()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users(name, username, password_hash, created_at) VALUES(?,?,?,?)`,
		name, username, hash, now)
	if err != nil {
		if isConstraintViolation(err) {
			return model.User{}, ErrDuplicateUser
		}
		return model.User{}, storageErr("create user", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.User{}, storageErr("create user", err)
	}
	return model.User{ID: id, Name: name, Username: username, PasswordHash: hash, CreatedAt: now}, nil
}

// Authenticate returns the user id for a matching username and password.
// Unknown usernames and wrong passwords are indistinguishable: both return
// ErrAuthFailed after one hash verification.
func (s *AuthStore) Authenticate(ctx context.Context, username, password string) (int64, error) {
	var (
		id   int64
		hash string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, password_hash FROM users WHERE username = ?`, username).Scan(&id, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		_, _ = passhash.VerifyPassword(s.placeholderHash(), password)
		return 0, ErrAuthFailed
	}
	if err != nil {
		return 0, storageErr("authenticate", err)
	}

	ok, err := passhash.VerifyPassword(hash, password)
	if err != nil || !ok {
		return 0, ErrAuthFailed
	}
	return id, nil
}

// IssueToken creates and stores a fresh token for userID.
func (s *AuthStore) IssueToken(ctx context.Context, userID int64) (model.AuthToken, error) {
	token, err := auth.NewToken()
	if err != nil {
		return model.AuthToken{}, err
	}
	created := s.now()
	tok := model.AuthToken{
		UserID:     userID,
		Token:      token,
		CreatedAt:  created.UnixMilli(),
		ValidUntil: created.Add(s.ttl).UnixMilli(),
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO auth_tokens(userid, token, created_at, valid_until) VALUES(?,?,?,?)`,
		tok.UserID, tok.Token, tok.CreatedAt, tok.ValidUntil); err != nil {
		return model.AuthToken{}, storageErr("issue token", err)
	}
	return tok, nil
}

// ValidateToken reports whether token belongs to userID and has not expired.
func (s *AuthStore) ValidateToken(ctx context.Context, userID int64, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM auth_tokens WHERE userid = ? AND token = ? AND valid_until >= ?`,
		userID, token, s.now().UnixMilli()).Scan(&n)
	if err != nil {
		return false, storageErr("validate token", err)
	}
	return n > 0, nil
}

// PruneExpiredTokens deletes tokens whose validity has already lapsed.
func (s *AuthStore) PruneExpiredTokens(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM auth_tokens WHERE valid_until < ?`, s.now().UnixMilli())
	if err != nil {
		return 0, storageErr("prune tokens", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storageErr("prune tokens", err)
	}
	return n, nil
}

func (s *AuthStore) placeholderHash() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = passhash.HashPassword("placeholder")
	})
	return s.dummyHash
}

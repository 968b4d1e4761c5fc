package auth

import (
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/opcron/opcron/internal/apperr"
	"github.com/opcron/opcron/internal/model"
	"github.com/opcron/opcron/internal/store"
)

func newTestService(t *testing.T, cfg Config) (*Service, *store.Store) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	if cfg.TokenExpiry == 0 {
		cfg.TokenExpiry = time.Hour
	}
	if cfg.KeepLoggedIn == 0 {
		cfg.KeepLoggedIn = 365 * 24 * time.Hour
	}
	svc, err := NewService(db, cfg, zap.NewNop())
	require.NoError(t, err)
	return svc, db
}

func createUser(t *testing.T, db *store.Store, username string, active bool) *model.User {
	t.Helper()
	hash, salt, err := HashPassword("secret")
	require.NoError(t, err)
	user := &model.User{
		Username: username,
		Password: hash,
		Salt:     salt,
		IsActive: active,
	}
	require.NoError(t, db.CreateUser(user))
	return user
}

func TestIssueAndValidate(t *testing.T) {
	svc, db := newTestService(t, Config{})
	user := createUser(t, db, "alice", true)

	token, expiration, err := svc.Issue(user, false)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.WithinDuration(t, time.Now().UTC().Add(time.Hour), expiration, time.Minute)

	resolved, err := svc.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, resolved.ID)
	assert.Equal(t, "alice", resolved.Username)

	// Issue records the login time.
	stored, err := db.GetUserByID(user.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.LastLoginAt)
}

func TestIssueKeepLoggedIn(t *testing.T) {
	svc, db := newTestService(t, Config{})
	user := createUser(t, db, "alice", true)

	_, expiration, err := svc.Issue(user, true)
	require.NoError(t, err)
	assert.WithinDuration(t,
		time.Now().UTC().Add(365*24*time.Hour), expiration, time.Minute)
}

func TestValidateFailures(t *testing.T) {
	svc, db := newTestService(t, Config{})
	active := createUser(t, db, "alice", true)
	inactive := createUser(t, db, "bob", false)

	t.Run("missing token", func(t *testing.T) {
		_, err := svc.Validate("")
		require.Error(t, err)
		assert.True(t, apperr.Is(err, apperr.Unauthenticated))
		assert.EqualError(t, err, "Missing auth token")
	})

	t.Run("garbage token", func(t *testing.T) {
		_, err := svc.Validate("not-a-token")
		assert.EqualError(t, err, "Invalid token")
	})

	t.Run("revoked token", func(t *testing.T) {
		revokee := createUser(t, db, "carol", true)
		token, _, err := svc.Issue(revokee, false)
		require.NoError(t, err)
		svc.Revoke(token)
		svc.Revoke(token) // idempotent

		_, err = svc.Validate(token)
		assert.EqualError(t, err, "Blacklisted token")
	})

	t.Run("deleted user", func(t *testing.T) {
		token, _, err := svc.Issue(active, false)
		require.NoError(t, err)
		require.NoError(t, db.DeleteUser(active.ID))

		_, err = svc.Validate(token)
		assert.EqualError(t, err, "Please log in")
	})

	t.Run("inactive user", func(t *testing.T) {
		token, _, err := svc.Issue(inactive, false)
		require.NoError(t, err)

		_, err = svc.Validate(token)
		assert.EqualError(t, err, "User is not active")
	})
}

func TestValidateExpiredToken(t *testing.T) {
	svc, db := newTestService(t, Config{TokenExpiry: -time.Minute})
	user := createUser(t, db, "alice", true)

	token, _, err := svc.Issue(user, false)
	require.NoError(t, err)

	_, err = svc.Validate(token)
	require.Error(t, err)
	assert.EqualError(t, err, "Invalid token")
}

func TestTokenFromRequest(t *testing.T) {
	svc, _ := newTestService(t, Config{CookieName: "opcron_token"})

	r, _ := http.NewRequest(http.MethodGet, "/jobs", nil)
	assert.Empty(t, svc.TokenFromRequest(r))

	r.Header.Set("Authorization", "Bearer abc123")
	assert.Equal(t, "abc123", svc.TokenFromRequest(r))

	r.Header.Del("Authorization")
	r.AddCookie(&http.Cookie{Name: "opcron_token", Value: "cookie-token"})
	assert.Equal(t, "cookie-token", svc.TokenFromRequest(r))
}

func TestPasswordHashing(t *testing.T) {
	hash, salt, err := HashPassword("hunter2")
	require.NoError(t, err)
	require.NotEmpty(t, hash)
	require.NotEmpty(t, salt)

	user := &model.User{Password: hash, Salt: salt}
	assert.True(t, VerifyPassword(user, "hunter2"))
	assert.False(t, VerifyPassword(user, "hunter3"))

	// Same password, fresh salt, different hash.
	hash2, salt2, err := HashPassword("hunter2")
	require.NoError(t, err)
	assert.NotEqual(t, hash, hash2)
	assert.NotEqual(t, salt, salt2)
}

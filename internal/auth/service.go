// Package auth issues and validates signed access tokens and manages
// password hashes.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"
	"golang.org/x/crypto/scrypt"

	"github.com/opcron/opcron/internal/apperr"
	"github.com/opcron/opcron/internal/model"
	"github.com/opcron/opcron/internal/store"
)

// scrypt parameters for password hashing.
const (
	scryptN      = 1024
	scryptR      = 8
	scryptP      = 16
	scryptKeyLen = 64
	saltLen      = 128
)

// Config holds the token issuance settings.
type Config struct {
	TokenExpiry  time.Duration // default token lifetime
	KeepLoggedIn time.Duration // lifetime when the caller asks to stay logged in
	CookieName   string        // cookie checked when no Authorization header is present
}

// Service mints, validates and revokes access tokens. The signing key is
// generated at startup and the revocation set lives in process memory, so
// both reset on restart; default tokens are short-lived enough that this is
// an accepted trade-off for a single-instance deployment.
type Service struct {
	store   *store.Store
	config  Config
	signKey []byte
	logger  *zap.Logger

	mu      sync.RWMutex
	revoked map[string]struct{}
}

// NewService creates the token service with a fresh random signing key.
func NewService(st *store.Store, config Config, logger *zap.Logger) (*Service, error) {
	signKey := make([]byte, 32)
	if _, err := rand.Read(signKey); err != nil {
		return nil, fmt.Errorf("failed to generate signing key: %w", err)
	}
	return &Service{
		store:   st,
		config:  config,
		signKey: signKey,
		logger:  logger,
		revoked: make(map[string]struct{}),
	}, nil
}

// Issue mints a signed token for the user and records the login time.
func (s *Service) Issue(user *model.User, keepLoggedIn bool) (string, time.Time, error) {
	expiry := s.config.TokenExpiry
	if keepLoggedIn {
		expiry = s.config.KeepLoggedIn
	}
	expiration := time.Now().UTC().Add(expiry)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": user.ID,
		"exp":     expiration.Unix(),
	})
	signed, err := token.SignedString(s.signKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}

	now := time.Now()
	user.LastLoginAt = &now
	if err := s.store.TouchLastLogin(user.ID, now); err != nil {
		return "", time.Time{}, err
	}

	s.logger.Info("token issued",
		zap.Int64("user_id", user.ID),
		zap.Time("expiration", expiration),
	)
	return signed, expiration, nil
}

// Validate resolves the caller from a raw token. Each failure mode carries
// its own message so operators can tell a revoked token from an expired one.
func (s *Service) Validate(raw string) (*model.User, error) {
	if raw == "" {
		return nil, apperr.New(apperr.Unauthenticated, "Missing auth token")
	}

	s.mu.RLock()
	_, blacklisted := s.revoked[raw]
	s.mu.RUnlock()
	if blacklisted {
		return nil, apperr.New(apperr.Unauthenticated, "Blacklisted token")
	}

	token, err := jwt.Parse(raw, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return s.signKey, nil
	})
	if err != nil || !token.Valid {
		return nil, apperr.New(apperr.Unauthenticated, "Invalid token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, apperr.New(apperr.Unauthenticated, "Invalid token")
	}
	userID, ok := claims["user_id"].(float64)
	if !ok {
		return nil, apperr.New(apperr.Unauthenticated, "Invalid token")
	}

	user, err := s.store.GetUserByID(int64(userID))
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, apperr.New(apperr.Unauthenticated, "Please log in")
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, apperr.New(apperr.Unauthenticated, "User is not active")
	}
	return user, nil
}

// Revoke idempotently adds the token to the revocation set.
func (s *Service) Revoke(raw string) {
	if raw == "" {
		return
	}
	s.mu.Lock()
	s.revoked[raw] = struct{}{}
	s.mu.Unlock()
}

// TokenFromRequest extracts the raw token from the Authorization header or,
// failing that, the session cookie.
func (s *Service) TokenFromRequest(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header != "" {
		parts := strings.Split(header, " ")
		return parts[len(parts)-1]
	}
	if cookie, err := r.Cookie(s.config.CookieName); err == nil {
		return cookie.Value
	}
	return ""
}

// HashPassword derives an scrypt hash with a fresh random salt. Both values
// are base64-encoded for storage.
func HashPassword(password string) (hash, salt string, err error) {
	rawSalt := make([]byte, saltLen)
	if _, err := rand.Read(rawSalt); err != nil {
		return "", "", err
	}
	key, err := scrypt.Key([]byte(password), rawSalt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return "", "", err
	}
	return base64.StdEncoding.EncodeToString(key),
		base64.StdEncoding.EncodeToString(rawSalt), nil
}

// VerifyPassword checks a candidate password against the stored hash.
func VerifyPassword(user *model.User, password string) bool {
	salt, err := base64.StdEncoding.DecodeString(user.Salt)
	if err != nil {
		return false
	}
	stored, err := base64.StdEncoding.DecodeString(user.Password)
	if err != nil {
		return false
	}
	key, err := scrypt.Key([]byte(password), salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(stored, key) == 1
}

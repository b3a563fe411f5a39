package store

import (
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"time"

	"github.com/pavelanni/examstats/internal/model"
)

// TokenTTL is how long an issued API token stays valid.
const TokenTTL = 24 * time.Hour

// CreateAPIToken issues a bearer token for a user. Only its SHA-256 hash is stored.
func (s *Store) CreateAPIToken(userID int64) (string, error) {
	token, err := generateToken()
	if err != nil {
		return "", err
	}
	now := time.Now()
	_, err = s.db.Exec(
		`INSERT INTO api_tokens (hash, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
		hashToken(token), userID, now, now.Add(TokenTTL),
	)
	if err != nil {
		return "", err
	}
	return token, nil
}

// GetAPIToken returns the token record, or nil if it is unknown or expired.
func (s *Store) GetAPIToken(token string) (*model.APIToken, error) {
	var t model.APIToken
	err := s.db.QueryRow(
		`SELECT hash, user_id, created_at, expires_at FROM api_tokens WHERE hash = ?`, hashToken(token),
	).Scan(&t.Hash, &t.UserID, &t.CreatedAt, &t.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if time.Now().After(t.ExpiresAt) {
		_ = s.DeleteAPIToken(token)
		return nil, nil
	}
	return &t, nil
}

// DeleteAPIToken revokes a token.
func (s *Store) DeleteAPIToken(token string) error {
	_, err := s.db.Exec(`DELETE FROM api_tokens WHERE hash = ?`, hashToken(token))
	return err
}

// CleanupExpiredTokens removes all expired tokens.
func (s *Store) CleanupExpiredTokens() error {
	_, err := s.db.Exec(`DELETE FROM api_tokens WHERE expires_at < ?`, time.Now())
	return err
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

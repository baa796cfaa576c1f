// Package apikey stores and validates API keys in PostgreSQL. Raw keys
// are random 256-bit values handed out exactly once; only their SHA-256
// digest is persisted, so a leaked table never reveals a usable key.
package apikey

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/briarshard/shardsearch/pkg/postgres"
)

var (
	ErrUnknownKey = errors.New("apikey: unknown or revoked key")
	ErrExpiredKey = errors.New("apikey: key expired")
)

// Key is the metadata attached to an issued API key.
type Key struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	RateLimit int        `json:"rate_limit"`
	IsActive  bool       `json:"is_active"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Store issues, validates, and revokes keys against the api_keys table.
type Store struct {
	db     *postgres.Client
	logger *slog.Logger
}

// NewStore returns a Store over db.
func NewStore(db *postgres.Client) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "apikey"),
	}
}

// Validate resolves a presented raw key to its metadata, or
// ErrUnknownKey / ErrExpiredKey.
func (s *Store) Validate(ctx context.Context, rawKey string) (*Key, error) {
	var (
		k         Key
		expiresAt sql.NullTime
	)
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT id, name, rate_limit, is_active, created_at, expires_at
		 FROM api_keys
		 WHERE key_hash = $1 AND is_active = true`,
		Digest(rawKey),
	).Scan(&k.ID, &k.Name, &k.RateLimit, &k.IsActive, &k.CreatedAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUnknownKey
	}
	if err != nil {
		return nil, fmt.Errorf("apikey: lookup: %w", err)
	}
	if expiresAt.Valid {
		if time.Now().After(expiresAt.Time) {
			return nil, ErrExpiredKey
		}
		k.ExpiresAt = &expiresAt.Time
	}
	return &k, nil
}

// Issue mints a new key with the given name, rate limit, and optional
// expiry, returning the raw key — the only time it is ever visible.
func (s *Store) Issue(ctx context.Context, name string, rateLimit int, expiresAt *time.Time) (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("apikey: generating key: %w", err)
	}
	rawKey := hex.EncodeToString(raw)

	var expiry sql.NullTime
	if expiresAt != nil {
		expiry = sql.NullTime{Time: *expiresAt, Valid: true}
	}
	_, err := s.db.DB.ExecContext(ctx,
		`INSERT INTO api_keys (key_hash, name, rate_limit, expires_at) VALUES ($1, $2, $3, $4)`,
		Digest(rawKey), name, rateLimit, expiry,
	)
	if err != nil {
		return "", fmt.Errorf("apikey: issuing: %w", err)
	}
	s.logger.Info("key issued", "name", name, "rate_limit", rateLimit)
	return rawKey, nil
}

// Revoke deactivates the key matching rawKey.
func (s *Store) Revoke(ctx context.Context, rawKey string) error {
	res, err := s.db.DB.ExecContext(ctx,
		`UPDATE api_keys SET is_active = false WHERE key_hash = $1`,
		Digest(rawKey),
	)
	if err != nil {
		return fmt.Errorf("apikey: revoking: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUnknownKey
	}
	s.logger.Info("key revoked")
	return nil
}

// List returns every active key's metadata, newest first.
func (s *Store) List(ctx context.Context) ([]Key, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT id, name, rate_limit, is_active, created_at, expires_at
		 FROM api_keys WHERE is_active = true ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("apikey: listing: %w", err)
	}
	defer rows.Close()

	var keys []Key
	for rows.Next() {
		var (
			k         Key
			expiresAt sql.NullTime
		)
		if err := rows.Scan(&k.ID, &k.Name, &k.RateLimit, &k.IsActive, &k.CreatedAt, &expiresAt); err != nil {
			return nil, fmt.Errorf("apikey: scanning: %w", err)
		}
		if expiresAt.Valid {
			k.ExpiresAt = &expiresAt.Time
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Digest is the SHA-256 hex form under which keys are stored.
func Digest(rawKey string) string {
	sum := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(sum[:])
}

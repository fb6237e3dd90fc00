package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// UserSettings returns the raw settings document and the use_admin_keys flag
// for userID. A user without a row gets (nil, false, nil); the config
// resolver treats the nil document as "no overrides".
//
// The document is returned raw rather than decoded so this package does not
// depend on the config schema.
func (s *Store) UserSettings(ctx context.Context, userID uuid.UUID) ([]byte, bool, error) {
	const q = `
		SELECT settings, use_admin_keys
		FROM   user_settings
		WHERE  user_id = $1`

	var (
		raw          []byte
		useAdminKeys bool
	)
	if err := s.pool.QueryRow(ctx, q, userID).Scan(&raw, &useAdminKeys); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("store: user settings: %w", err)
	}
	return raw, useAdminKeys, nil
}

// SaveUserSettings upserts the settings document for userID. An empty raw
// document is stored as the empty JSON object.
func (s *Store) SaveUserSettings(ctx context.Context, userID uuid.UUID, raw []byte, useAdminKeys bool) error {
	if len(raw) == 0 {
		raw = []byte("{}")
	}

	const q = `
		INSERT INTO user_settings (user_id, settings, use_admin_keys)
		VALUES ($1, $2::jsonb, $3)
		ON CONFLICT (user_id) DO UPDATE
		SET settings = EXCLUDED.settings, use_admin_keys = EXCLUDED.use_admin_keys, updated_at = now()`

	if _, err := s.pool.Exec(ctx, q, userID, raw, useAdminKeys); err != nil {
		return fmt.Errorf("store: save user settings: %w", err)
	}
	return nil
}

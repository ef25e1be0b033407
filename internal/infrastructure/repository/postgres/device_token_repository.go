package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// DeviceTokenRepository keeps the single registered push token in a one-row
// table.
type DeviceTokenRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewDeviceTokenRepository(db *sql.DB) *DeviceTokenRepository {
	return &DeviceTokenRepository{db: db, now: time.Now}
}

func (r *DeviceTokenRepository) SaveToken(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO device_tokens (id, token, updated_at)
VALUES (1, $1, $2)
ON CONFLICT (id) DO UPDATE SET token = EXCLUDED.token, updated_at = EXCLUDED.updated_at
`, token, r.now().UTC())
	if err != nil {
		return fmt.Errorf("save device token: %w", err)
	}
	return nil
}

// Token returns the registered token, or "" when none is registered.
func (r *DeviceTokenRepository) Token(ctx context.Context) (string, error) {
	var token string
	err := r.db.QueryRowContext(ctx, `SELECT token FROM device_tokens WHERE id = 1`).Scan(&token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("load device token: %w", err)
	}
	return token, nil
}

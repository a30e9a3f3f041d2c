// Package token stores the push credentials participants register from their
// devices.
package token

import (
	"context"
	"fmt"

	"github.com/wb-go/wbf/dbpg"

	"github.com/hzi-braunschweig/pia-notification-service/internal/model"
)

// Repository provides access to the device token table.
type Repository struct {
	db *dbpg.DB
}

// NewRepository creates a new token repository.
func NewRepository(db *dbpg.DB) *Repository {
	return &Repository{db: db}
}

// TokensForRecipient returns every device token registered by a participant.
func (r *Repository) TokensForRecipient(ctx context.Context, pseudonym string) ([]model.DeviceToken, error) {
	query := `
		SELECT token, pseudonym, study
		FROM fcm_tokens
		WHERE pseudonym = $1;
    `

	rows, err := r.db.QueryContext(ctx, query, pseudonym)
	if err != nil {
		return nil, fmt.Errorf("failed to query device tokens: %w", err)
	}
	defer rows.Close()

	var tokens []model.DeviceToken
	for rows.Next() {
		var t model.DeviceToken
		if err := rows.Scan(&t.Token, &t.Pseudonym, &t.Study); err != nil {
			return nil, fmt.Errorf("failed to scan device token: %w", err)
		}
		tokens = append(tokens, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate device tokens: %w", err)
	}

	return tokens, nil
}

// Upsert registers a device token. Re-registering the same token moves it to
// the current participant, which happens when a shared device switches
// accounts.
func (r *Repository) Upsert(ctx context.Context, t model.DeviceToken) error {
	query := `
		INSERT INTO fcm_tokens (token, pseudonym, study)
		VALUES ($1, $2, $3)
		ON CONFLICT (token) DO UPDATE
		SET pseudonym = EXCLUDED.pseudonym, study = EXCLUDED.study;
    `

	_, err := r.db.ExecContext(ctx, query, t.Token, t.Pseudonym, t.Study)
	if err != nil {
		return fmt.Errorf("failed to upsert device token: %w", err)
	}

	return nil
}

// Remove deletes a device token, e.g. after the push provider permanently
// rejected it or the participant logged out.
func (r *Repository) Remove(ctx context.Context, token string) error {
	query := `
		DELETE FROM fcm_tokens
		WHERE token = $1;
    `

	_, err := r.db.ExecContext(ctx, query, token)
	if err != nil {
		return fmt.Errorf("failed to remove device token: %w", err)
	}

	return nil
}

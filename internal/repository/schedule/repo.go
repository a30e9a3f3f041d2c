// Package schedule stores pending notification entries and the postponement
// operations the delivery strategies apply to them.
package schedule

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/wb-go/wbf/dbpg"

	"github.com/hzi-braunschweig/pia-notification-service/internal/model"
)

// ErrScheduleNotFound is returned when a schedule entry does not exist.
var ErrScheduleNotFound = errors.New("schedule entry not found")

// Repository provides access to the notification schedule table.
type Repository struct {
	db *dbpg.DB
}

// NewRepository creates a new schedule repository.
func NewRepository(db *dbpg.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a reminder or sample entry unless an entry of the same type
// for the same recipient and reference already exists on the same calendar
// day. The day bucket keeps repeated scheduling runs from piling up
// duplicates.
func (r *Repository) Create(ctx context.Context, e model.ScheduleEntry) error {
	query := `
		INSERT INTO notification_schedules (recipient, send_on, type, reference_id)
		SELECT $1, $2, $3, $4
		WHERE NOT EXISTS (
		    SELECT 1 FROM notification_schedules
		    WHERE recipient = $1 AND type = $3 AND reference_id = $4
		      AND send_on::date = $2::date
		);
    `

	_, err := r.db.ExecContext(ctx, query, e.Recipient, e.SendOn, e.Type, e.ReferenceID)
	if err != nil {
		return fmt.Errorf("failed to create schedule entry: %w", err)
	}

	return nil
}

// CreateCustom inserts a custom or aggregator entry carrying its own title and
// body and returns the new entry id.
func (r *Repository) CreateCustom(ctx context.Context, e model.ScheduleEntry) (int64, error) {
	query := `
		INSERT INTO notification_schedules (recipient, send_on, type, reference_id, title, body)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id;
    `

	var id int64
	err := r.db.QueryRowContext(ctx, query,
		e.Recipient, e.SendOn, e.Type, e.ReferenceID, e.Title, e.Body,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create custom schedule entry: %w", err)
	}

	return id, nil
}

// DueSchedules returns all entries whose send time has passed. Entries with a
// cleared send time have already been delivered and are skipped.
func (r *Repository) DueSchedules(ctx context.Context, now time.Time) ([]model.ScheduleEntry, error) {
	query := `
		SELECT id, recipient, send_on, type, reference_id, title, body
		FROM notification_schedules
		WHERE send_on IS NOT NULL AND send_on < $1
		ORDER BY send_on;
    `

	rows, err := r.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query due schedules: %w", err)
	}
	defer rows.Close()

	var entries []model.ScheduleEntry
	for rows.Next() {
		var e model.ScheduleEntry
		if err := rows.Scan(&e.ID, &e.Recipient, &e.SendOn, &e.Type, &e.ReferenceID, &e.Title, &e.Body); err != nil {
			return nil, fmt.Errorf("failed to scan schedule entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate due schedules: %w", err)
	}

	return entries, nil
}

// ByID returns a single schedule entry.
func (r *Repository) ByID(ctx context.Context, id int64) (model.ScheduleEntry, error) {
	query := `
		SELECT id, recipient, send_on, type, reference_id, title, body
		FROM notification_schedules
		WHERE id = $1;
    `

	var e model.ScheduleEntry
	err := r.db.QueryRowContext(ctx, query, id).
		Scan(&e.ID, &e.Recipient, &e.SendOn, &e.Type, &e.ReferenceID, &e.Title, &e.Body)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ScheduleEntry{}, ErrScheduleNotFound
	}
	if err != nil {
		return model.ScheduleEntry{}, fmt.Errorf("failed to get schedule entry: %w", err)
	}

	return e, nil
}

// ClearSendOn marks an entry as delivered by push. The row stays so the app
// can fetch the content once when the participant opens the notification.
func (r *Repository) ClearSendOn(ctx context.Context, id int64) error {
	query := `
		UPDATE notification_schedules
		SET send_on = NULL
		WHERE id = $1;
    `

	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to clear send time: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrScheduleNotFound
	}

	return nil
}

// Postpone shifts the send time of one entry by delta, reading the current
// value and writing the shifted one in a single transaction.
func (r *Repository) Postpone(ctx context.Context, id int64, delta time.Duration) error {
	tx, err := r.db.Master.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var sendOn time.Time
	err = tx.QueryRowContext(ctx, `
		SELECT send_on FROM notification_schedules
		WHERE id = $1 AND send_on IS NOT NULL
		FOR UPDATE;
    `, id).Scan(&sendOn)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrScheduleNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read send time: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE notification_schedules
		SET send_on = $1
		WHERE id = $2;
    `, sendOn.Add(delta), id)
	if err != nil {
		return fmt.Errorf("failed to postpone schedule entry: %w", err)
	}

	return tx.Commit()
}

// PostponeByReference shifts every pending entry of one type that points at
// the given reference. Used when the referenced object itself reports a
// transient condition, e.g. a questionnaire whose conditions are all unmet.
func (r *Repository) PostponeByReference(ctx context.Context, referenceID string, typ model.ScheduleType, delta time.Duration) error {
	tx, err := r.db.Master.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		UPDATE notification_schedules
		SET send_on = send_on + $1
		WHERE reference_id = $2 AND type = $3 AND send_on IS NOT NULL;
    `, delta, referenceID, typ)
	if err != nil {
		return fmt.Errorf("failed to postpone schedule entries: %w", err)
	}

	return tx.Commit()
}

// Delete removes one schedule entry.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	query := `
		DELETE FROM notification_schedules
		WHERE id = $1;
    `

	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete schedule entry: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrScheduleNotFound
	}

	return nil
}

// DeleteByReference removes every entry of one type pointing at the given
// reference. Used when the referenced object is gone or can no longer be
// acted on.
func (r *Repository) DeleteByReference(ctx context.Context, referenceID string, typ model.ScheduleType) error {
	query := `
		DELETE FROM notification_schedules
		WHERE reference_id = $1 AND type = $2;
    `

	_, err := r.db.ExecContext(ctx, query, referenceID, typ)
	if err != nil {
		return fmt.Errorf("failed to delete schedule entries: %w", err)
	}

	return nil
}

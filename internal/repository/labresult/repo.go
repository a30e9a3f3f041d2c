// Package labresult reads lab result rows and the per-participant
// notification preferences attached to them.
package labresult

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/wb-go/wbf/dbpg"

	"github.com/hzi-braunschweig/pia-notification-service/internal/model"
)

// ErrLabResultNotFound is returned when a lab result does not exist.
var ErrLabResultNotFound = errors.New("lab result not found")

// ErrParticipantNotFound is returned when a participant does not exist.
var ErrParticipantNotFound = errors.New("participant not found")

// Repository provides read access to lab results and participant settings.
type Repository struct {
	db *dbpg.DB
}

// NewRepository creates a new lab result repository.
func NewRepository(db *dbpg.DB) *Repository {
	return &Repository{db: db}
}

// ByID returns a single lab result.
func (r *Repository) ByID(ctx context.Context, id string) (model.LabResult, error) {
	query := `
		SELECT id, pseudonym, status, COALESCE(dummy_sample_id, '')
		FROM lab_results
		WHERE id = $1;
    `

	var lr model.LabResult
	err := r.db.QueryRowContext(ctx, query, id).
		Scan(&lr.ID, &lr.Pseudonym, &lr.Status, &lr.DummySampleID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.LabResult{}, ErrLabResultNotFound
	}
	if err != nil {
		return model.LabResult{}, fmt.Errorf("failed to get lab result: %w", err)
	}

	return lr, nil
}

// ParticipantSettings returns the notification preferences of a participant.
func (r *Repository) ParticipantSettings(ctx context.Context, pseudonym string) (model.ParticipantSettings, error) {
	query := `
		SELECT pseudonym, notification_lab_results, COALESCE(notification_time, '')
		FROM probands
		WHERE pseudonym = $1;
    `

	var s model.ParticipantSettings
	err := r.db.QueryRowContext(ctx, query, pseudonym).
		Scan(&s.Pseudonym, &s.LabResultsEnabled, &s.DailyNotificationTime)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ParticipantSettings{}, ErrParticipantNotFound
	}
	if err != nil {
		return model.ParticipantSettings{}, fmt.Errorf("failed to get participant settings: %w", err)
	}

	return s, nil
}

// SampledYesterday counts the samples of a study taken during the previous
// calendar day. Feeds the daily sample report mail.
func (r *Repository) SampledYesterday(ctx context.Context, study string) (int, error) {
	return r.countYesterday(ctx, study, "date_of_sampling")
}

// AnalyzedYesterday counts the lab results of a study analyzed during the
// previous calendar day.
func (r *Repository) AnalyzedYesterday(ctx context.Context, study string) (int, error) {
	return r.countYesterday(ctx, study, "date_of_analysis")
}

// AnalyzedYesterdaySamples lists the lab results of a study analyzed during
// the previous calendar day, with their dummy sample ids. Feeds the lab hub
// report mail.
func (r *Repository) AnalyzedYesterdaySamples(ctx context.Context, study string) ([]model.LabResult, error) {
	query := `
		SELECT lr.id, lr.pseudonym, lr.status, COALESCE(lr.dummy_sample_id, '')
		FROM lab_results lr
		JOIN probands p ON p.pseudonym = lr.pseudonym
		WHERE p.study = $1
		  AND lr.date_of_analysis >= CURRENT_DATE - INTERVAL '1 day'
		  AND lr.date_of_analysis < CURRENT_DATE
		ORDER BY lr.id;
    `

	rows, err := r.db.QueryContext(ctx, query, study)
	if err != nil {
		return nil, fmt.Errorf("failed to query analyzed samples: %w", err)
	}
	defer rows.Close()

	var samples []model.LabResult
	for rows.Next() {
		var lr model.LabResult
		if err := rows.Scan(&lr.ID, &lr.Pseudonym, &lr.Status, &lr.DummySampleID); err != nil {
			return nil, fmt.Errorf("failed to scan analyzed sample: %w", err)
		}
		samples = append(samples, lr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate analyzed samples: %w", err)
	}

	return samples, nil
}

func (r *Repository) countYesterday(ctx context.Context, study, column string) (int, error) {
	// column is one of two fixed names picked by the callers above.
	query := fmt.Sprintf(`
		SELECT COUNT(*)
		FROM lab_results lr
		JOIN probands p ON p.pseudonym = lr.pseudonym
		WHERE p.study = $1
		  AND lr.%s >= CURRENT_DATE - INTERVAL '1 day'
		  AND lr.%s < CURRENT_DATE;
    `, column, column)

	var count int
	err := r.db.QueryRowContext(ctx, query, study).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count lab results: %w", err)
	}

	return count, nil
}

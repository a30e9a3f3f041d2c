// Package contact maintains the day-bucketed users_to_contact aggregation and
// the study report targets derived from it.
package contact

import (
	"context"
	"fmt"

	"github.com/wb-go/wbf/dbpg"

	"github.com/hzi-braunschweig/pia-notification-service/internal/model"
)

// Repository provides access to the users_to_contact table and the study
// report mail targets.
type Repository struct {
	db *dbpg.DB
}

// NewRepository creates a new contact repository.
func NewRepository(db *dbpg.DB) *Repository {
	return &Repository{db: db}
}

// UpsertNotableAnswer records that an instance released today contained a
// notable answer. One row per participant per day, the instance id is
// appended to the existing row if there is one.
func (r *Repository) UpsertNotableAnswer(ctx context.Context, pseudonym string, instanceID int) error {
	query := `
		INSERT INTO users_to_contact (pseudonym, notable_answer_instances, not_filled_out_instances, created_at)
		VALUES ($1, ARRAY[$2::integer], '{}', NOW())
		ON CONFLICT (pseudonym, (created_at::date)) DO UPDATE
		SET notable_answer_instances = array_append(
		    array_remove(users_to_contact.notable_answer_instances, $2::integer), $2::integer
		);
    `

	_, err := r.db.ExecContext(ctx, query, pseudonym, instanceID)
	if err != nil {
		return fmt.Errorf("failed to upsert notable answer record: %w", err)
	}

	return nil
}

// UpsertNotFilledOut records that an instance of the participant went past
// its deadline unanswered today.
func (r *Repository) UpsertNotFilledOut(ctx context.Context, pseudonym string, instanceID int) error {
	query := `
		INSERT INTO users_to_contact (pseudonym, notable_answer_instances, not_filled_out_instances, created_at)
		VALUES ($1, '{}', ARRAY[$2::integer], NOW())
		ON CONFLICT (pseudonym, (created_at::date)) DO UPDATE
		SET not_filled_out_instances = array_append(
		    array_remove(users_to_contact.not_filled_out_instances, $2::integer), $2::integer
		);
    `

	_, err := r.db.ExecContext(ctx, query, pseudonym, instanceID)
	if err != nil {
		return fmt.Errorf("failed to upsert not filled out record: %w", err)
	}

	return nil
}

// DailyStats aggregates yesterday's contact rows per study: how many
// participants gave a notable answer and how many left questionnaires
// unanswered.
func (r *Repository) DailyStats(ctx context.Context) ([]model.StudyStats, error) {
	query := `
		SELECT p.study,
		       COUNT(*) FILTER (WHERE cardinality(utc.notable_answer_instances) > 0),
		       COUNT(*) FILTER (WHERE cardinality(utc.not_filled_out_instances) > 0)
		FROM users_to_contact utc
		JOIN probands p ON p.pseudonym = utc.pseudonym
		WHERE utc.created_at >= CURRENT_DATE - INTERVAL '1 day'
		  AND utc.created_at < CURRENT_DATE
		GROUP BY p.study;
    `

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily contact stats: %w", err)
	}
	defer rows.Close()

	var stats []model.StudyStats
	for rows.Next() {
		var s model.StudyStats
		if err := rows.Scan(&s.Study, &s.NotableAnswers, &s.NotFinished); err != nil {
			return nil, fmt.Errorf("failed to scan contact stats: %w", err)
		}
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate contact stats: %w", err)
	}

	return stats, nil
}

// StudiesWithPMEmail returns every study that configured a project management
// report address.
func (r *Repository) StudiesWithPMEmail(ctx context.Context) ([]model.Study, error) {
	return r.studiesWithEmail(ctx, "pm_email")
}

// StudiesWithHubEmail returns every study that configured a lab hub report
// address.
func (r *Repository) StudiesWithHubEmail(ctx context.Context) ([]model.Study, error) {
	return r.studiesWithEmail(ctx, "hub_email")
}

func (r *Repository) studiesWithEmail(ctx context.Context, column string) ([]model.Study, error) {
	// column is one of two fixed names picked by the callers above.
	query := fmt.Sprintf(`
		SELECT name, COALESCE(pm_email, ''), COALESCE(hub_email, '')
		FROM studies
		WHERE %s IS NOT NULL AND %s <> '';
    `, column, column)

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query studies: %w", err)
	}
	defer rows.Close()

	var studies []model.Study
	for rows.Next() {
		var s model.Study
		if err := rows.Scan(&s.Name, &s.PMEmail, &s.HubEmail); err != nil {
			return nil, fmt.Errorf("failed to scan study: %w", err)
		}
		studies = append(studies, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate studies: %w", err)
	}

	return studies, nil
}

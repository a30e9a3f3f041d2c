// Package questionnaire reads the questionnaire tables the scheduling jobs
// work from: unscheduled instances, reminder settings and stored answers.
package questionnaire

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/wb-go/wbf/dbpg"

	"github.com/hzi-braunschweig/pia-notification-service/internal/model"
)

// ErrSettingsNotFound is returned when a questionnaire has no notification
// settings in any version.
var ErrSettingsNotFound = errors.New("notification settings not found")

// ErrInstanceNotFound is returned when a questionnaire instance does not exist.
var ErrInstanceNotFound = errors.New("questionnaire instance not found")

// Repository provides read access to questionnaire data and the scheduling
// flag on instances.
type Repository struct {
	db *dbpg.DB
}

// NewRepository creates a new questionnaire repository.
func NewRepository(db *dbpg.DB) *Repository {
	return &Repository{db: db}
}

// UnscheduledInstances returns active instances that want reminders but have
// none scheduled yet. Spontaneous questionnaires never want reminders and are
// excluded in the query.
func (r *Repository) UnscheduledInstances(ctx context.Context) ([]model.UnscheduledInstance, error) {
	query := `
		SELECT qi.id, qi.questionnaire_id, qi.questionnaire_version, qi.pseudonym, qi.date_of_issue
		FROM questionnaire_instances qi
		JOIN questionnaires q
		  ON q.id = qi.questionnaire_id AND q.version = qi.questionnaire_version
		WHERE qi.status IN ('active', 'in_progress')
		  AND qi.notifications_scheduled = false
		  AND q.cycle_unit <> 'spontaneous'
		  AND q.notification_tries > 0;
    `

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query unscheduled instances: %w", err)
	}
	defer rows.Close()

	var instances []model.UnscheduledInstance
	for rows.Next() {
		var in model.UnscheduledInstance
		if err := rows.Scan(&in.ID, &in.QuestionnaireID, &in.QuestionnaireVersion, &in.Pseudonym, &in.DateOfIssue); err != nil {
			return nil, fmt.Errorf("failed to scan unscheduled instance: %w", err)
		}
		instances = append(instances, in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate unscheduled instances: %w", err)
	}

	return instances, nil
}

// NotificationSettings returns the reminder cadence of one questionnaire
// version. When the exact version is gone it falls back to the latest one, so
// reminders of instances issued before a questionnaire update still go out.
func (r *Repository) NotificationSettings(ctx context.Context, questionnaireID, version int) (model.NotificationSettings, error) {
	query := `
		SELECT notification_tries, notification_interval, notification_interval_unit,
		       notification_title, notification_body_new, notification_body_in_progress,
		       cycle_unit
		FROM questionnaires
		WHERE id = $1 AND version = $2;
    `

	var s model.NotificationSettings
	err := r.db.QueryRowContext(ctx, query, questionnaireID, version).Scan(
		&s.Tries, &s.Interval, &s.IntervalUnit,
		&s.Title, &s.BodyNew, &s.BodyInProgress,
		&s.CycleUnit,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return r.latestNotificationSettings(ctx, questionnaireID)
	}
	if err != nil {
		return model.NotificationSettings{}, fmt.Errorf("failed to get notification settings: %w", err)
	}

	return s, nil
}

func (r *Repository) latestNotificationSettings(ctx context.Context, questionnaireID int) (model.NotificationSettings, error) {
	query := `
		SELECT notification_tries, notification_interval, notification_interval_unit,
		       notification_title, notification_body_new, notification_body_in_progress,
		       cycle_unit
		FROM questionnaires
		WHERE id = $1
		ORDER BY version DESC
		LIMIT 1;
    `

	var s model.NotificationSettings
	err := r.db.QueryRowContext(ctx, query, questionnaireID).Scan(
		&s.Tries, &s.Interval, &s.IntervalUnit,
		&s.Title, &s.BodyNew, &s.BodyInProgress,
		&s.CycleUnit,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return model.NotificationSettings{}, ErrSettingsNotFound
	}
	if err != nil {
		return model.NotificationSettings{}, fmt.Errorf("failed to get latest notification settings: %w", err)
	}

	return s, nil
}

// MarkScheduled flags an instance so the creation job does not schedule it
// again on the next run.
func (r *Repository) MarkScheduled(ctx context.Context, instanceID int) error {
	query := `
		UPDATE questionnaire_instances
		SET notifications_scheduled = true
		WHERE id = $1;
    `

	_, err := r.db.ExecContext(ctx, query, instanceID)
	if err != nil {
		return fmt.Errorf("failed to mark instance scheduled: %w", err)
	}

	return nil
}

// CountOpenInstances returns how many questionnaires a participant still has
// to fill out. Delivered as the app icon badge with reminder pushes.
func (r *Repository) CountOpenInstances(ctx context.Context, pseudonym string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM questionnaire_instances
		WHERE pseudonym = $1 AND status IN ('active', 'in_progress');
    `

	var count int
	err := r.db.QueryRowContext(ctx, query, pseudonym).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count open instances: %w", err)
	}

	return count, nil
}

// InstanceAnswers returns the answers stored for one released instance.
func (r *Repository) InstanceAnswers(ctx context.Context, instanceID int) ([]model.Answer, error) {
	query := `
		SELECT answer_option_id, value
		FROM answers
		WHERE questionnaire_instance_id = $1;
    `

	rows, err := r.db.QueryContext(ctx, query, instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query instance answers: %w", err)
	}
	defer rows.Close()

	var answers []model.Answer
	for rows.Next() {
		var a model.Answer
		if err := rows.Scan(&a.AnswerOptionID, &a.Value); err != nil {
			return nil, fmt.Errorf("failed to scan answer: %w", err)
		}
		answers = append(answers, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate instance answers: %w", err)
	}

	return answers, nil
}

// IsNotableAnswer reports whether the given value is flagged as notable on
// its answer option. Options mark notable values positionally against their
// value list.
func (r *Repository) IsNotableAnswer(ctx context.Context, answerOptionID int, value string) (bool, error) {
	query := `
		SELECT values, values_notable
		FROM answer_options
		WHERE id = $1;
    `

	var values pq.StringArray
	var notable pq.BoolArray
	err := r.db.QueryRowContext(ctx, query, answerOptionID).Scan(&values, &notable)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get answer option: %w", err)
	}

	for i, v := range values {
		if v == value && i < len(notable) {
			return notable[i], nil
		}
	}

	return false, nil
}

// HasAnswersNotifyFeature reports whether the study of an instance wants the
// project team contacted about notable or missing answers.
func (r *Repository) HasAnswersNotifyFeature(ctx context.Context, instanceID int) (bool, error) {
	query := `
		SELECT s.has_answers_notify_feature
		FROM questionnaire_instances qi
		JOIN probands p ON p.pseudonym = qi.pseudonym
		JOIN studies s ON s.name = p.study
		WHERE qi.id = $1;
    `

	var enabled bool
	err := r.db.QueryRowContext(ctx, query, instanceID).Scan(&enabled)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrInstanceNotFound
	}
	if err != nil {
		return false, fmt.Errorf("failed to get notify feature flag: %w", err)
	}

	return enabled, nil
}

// OverdueUnansweredInstances returns instances whose answering window closed
// within the last day without a release. Feeds the daily contact aggregation.
func (r *Repository) OverdueUnansweredInstances(ctx context.Context) ([]model.UnscheduledInstance, error) {
	query := `
		SELECT qi.id, qi.questionnaire_id, qi.questionnaire_version, qi.pseudonym, qi.date_of_issue
		FROM questionnaire_instances qi
		JOIN questionnaires q
		  ON q.id = qi.questionnaire_id AND q.version = qi.questionnaire_version
		JOIN probands p ON p.pseudonym = qi.pseudonym
		JOIN studies s ON s.name = p.study
		WHERE qi.status IN ('active', 'in_progress')
		  AND s.has_answers_notify_feature = true
		  AND qi.date_of_issue + q.expires_after_days * INTERVAL '1 day' < NOW()
		  AND qi.date_of_issue + q.expires_after_days * INTERVAL '1 day' >= NOW() - INTERVAL '1 day';
    `

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query overdue instances: %w", err)
	}
	defer rows.Close()

	var instances []model.UnscheduledInstance
	for rows.Next() {
		var in model.UnscheduledInstance
		if err := rows.Scan(&in.ID, &in.QuestionnaireID, &in.QuestionnaireVersion, &in.Pseudonym, &in.DateOfIssue); err != nil {
			return nil, fmt.Errorf("failed to scan overdue instance: %w", err)
		}
		instances = append(instances, in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate overdue instances: %w", err)
	}

	return instances, nil
}

// InstancePseudonym returns the participant a local instance belongs to.
func (r *Repository) InstancePseudonym(ctx context.Context, instanceID int) (string, error) {
	query := `
		SELECT pseudonym
		FROM questionnaire_instances
		WHERE id = $1;
    `

	var pseudonym string
	err := r.db.QueryRowContext(ctx, query, instanceID).Scan(&pseudonym)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrInstanceNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get instance pseudonym: %w", err)
	}

	return pseudonym, nil
}

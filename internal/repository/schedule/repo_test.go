package schedule

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/wb-go/wbf/dbpg"

	"github.com/hzi-braunschweig/pia-notification-service/internal/model"
)

func setupMockDB(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open mock db: %v", err)
	}

	wrappedDB := &dbpg.DB{Master: db}
	repo := NewRepository(wrappedDB)

	return repo, mock
}

func TestCreate(t *testing.T) {
	repo, mock := setupMockDB(t)

	sendOn := time.Now().Add(time.Hour)
	e := model.ScheduleEntry{
		Recipient:   "st---001",
		SendOn:      &sendOn,
		Type:        model.TypeReminder,
		ReferenceID: "42",
	}

	mock.ExpectExec(regexp.QuoteMeta(`
		INSERT INTO notification_schedules (recipient, send_on, type, reference_id)
		SELECT $1, $2, $3, $4
		WHERE NOT EXISTS (
		    SELECT 1 FROM notification_schedules
		    WHERE recipient = $1 AND type = $3 AND reference_id = $4
		      AND send_on::date = $2::date
		);
    `)).
		WithArgs(e.Recipient, e.SendOn, e.Type, e.ReferenceID).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.Create(context.Background(), e)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateCustom(t *testing.T) {
	repo, mock := setupMockDB(t)

	sendOn := time.Now().Add(time.Hour)
	title := "Questionnaire released"
	body := "A new questionnaire is waiting for you."
	e := model.ScheduleEntry{
		Recipient:   "st---001",
		SendOn:      &sendOn,
		Type:        model.TypeCustom,
		ReferenceID: "",
		Title:       &title,
		Body:        &body,
	}

	mock.ExpectQuery(regexp.QuoteMeta(`
		INSERT INTO notification_schedules (recipient, send_on, type, reference_id, title, body)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id;
    `)).
		WithArgs(e.Recipient, e.SendOn, e.Type, e.ReferenceID, e.Title, e.Body).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))

	id, err := repo.CreateCustom(context.Background(), e)
	assert.NoError(t, err)
	assert.Equal(t, int64(7), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDueSchedules(t *testing.T) {
	repo, mock := setupMockDB(t)

	now := time.Now()
	sendOn := now.Add(-time.Minute)

	rows := sqlmock.NewRows([]string{"id", "recipient", "send_on", "type", "reference_id", "title", "body"}).
		AddRow(int64(1), "st---001", sendOn, "reminder", "42", nil, nil).
		AddRow(int64(2), "st---002", sendOn, "sample", "9", nil, nil)

	mock.ExpectQuery(regexp.QuoteMeta(`
		SELECT id, recipient, send_on, type, reference_id, title, body
		FROM notification_schedules
		WHERE send_on IS NOT NULL AND send_on < $1
		ORDER BY send_on;
    `)).
		WithArgs(now).
		WillReturnRows(rows)

	entries, err := repo.DueSchedules(context.Background(), now)
	assert.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.Equal(t, model.TypeReminder, entries[0].Type)
	assert.Equal(t, model.TypeSample, entries[1].Type)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestByID(t *testing.T) {
	repo, mock := setupMockDB(t)

	sendOn := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(`
		SELECT id, recipient, send_on, type, reference_id, title, body
		FROM notification_schedules
		WHERE id = $1;
    `)).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "recipient", "send_on", "type", "reference_id", "title", "body"}).
			AddRow(int64(1), "st---001", sendOn, "reminder", "42", nil, nil))

	e, err := repo.ByID(context.Background(), 1)
	assert.NoError(t, err)
	assert.Equal(t, "st---001", e.Recipient)
	assert.NoError(t, mock.ExpectationsWereMet())

	mock.ExpectQuery(regexp.QuoteMeta(`
		SELECT id, recipient, send_on, type, reference_id, title, body
		FROM notification_schedules
		WHERE id = $1;
    `)).
		WithArgs(int64(2)).
		WillReturnError(sql.ErrNoRows)

	_, err = repo.ByID(context.Background(), 2)
	assert.ErrorIs(t, err, ErrScheduleNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClearSendOn(t *testing.T) {
	repo, mock := setupMockDB(t)

	mock.ExpectExec(regexp.QuoteMeta(`
		UPDATE notification_schedules
		SET send_on = NULL
		WHERE id = $1;
    `)).
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.ClearSendOn(context.Background(), 1)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())

	mock.ExpectExec(regexp.QuoteMeta(`
		UPDATE notification_schedules
		SET send_on = NULL
		WHERE id = $1;
    `)).
		WithArgs(int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = repo.ClearSendOn(context.Background(), 2)
	assert.ErrorIs(t, err, ErrScheduleNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostpone(t *testing.T) {
	repo, mock := setupMockDB(t)

	sendOn := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`
		SELECT send_on FROM notification_schedules
		WHERE id = $1 AND send_on IS NOT NULL
		FOR UPDATE;
    `)).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"send_on"}).AddRow(sendOn))
	mock.ExpectExec(regexp.QuoteMeta(`
		UPDATE notification_schedules
		SET send_on = $1
		WHERE id = $2;
    `)).
		WithArgs(sendOn.Add(24*time.Hour), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.Postpone(context.Background(), 1, 24*time.Hour)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`
		SELECT send_on FROM notification_schedules
		WHERE id = $1 AND send_on IS NOT NULL
		FOR UPDATE;
    `)).
		WithArgs(int64(2)).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	err = repo.Postpone(context.Background(), 2, 24*time.Hour)
	assert.ErrorIs(t, err, ErrScheduleNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostponeByReference(t *testing.T) {
	repo, mock := setupMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`
		UPDATE notification_schedules
		SET send_on = send_on + $1
		WHERE reference_id = $2 AND type = $3 AND send_on IS NOT NULL;
    `)).
		WithArgs(24*time.Hour, "42", model.TypeReminder).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	err := repo.PostponeByReference(context.Background(), "42", model.TypeReminder, 24*time.Hour)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDelete(t *testing.T) {
	repo, mock := setupMockDB(t)

	mock.ExpectExec(regexp.QuoteMeta(`
		DELETE FROM notification_schedules
		WHERE id = $1;
    `)).
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Delete(context.Background(), 1)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())

	mock.ExpectExec(regexp.QuoteMeta(`
		DELETE FROM notification_schedules
		WHERE id = $1;
    `)).
		WithArgs(int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = repo.Delete(context.Background(), 2)
	assert.ErrorIs(t, err, ErrScheduleNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteByReference(t *testing.T) {
	repo, mock := setupMockDB(t)

	mock.ExpectExec(regexp.QuoteMeta(`
		DELETE FROM notification_schedules
		WHERE reference_id = $1 AND type = $2;
    `)).
		WithArgs("42", model.TypeReminder).
		WillReturnResult(sqlmock.NewResult(0, 2))

	err := repo.DeleteByReference(context.Background(), "42", model.TypeReminder)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

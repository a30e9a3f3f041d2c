package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hzi-braunschweig/pia-notification-service/internal/model"
	"github.com/hzi-braunschweig/pia-notification-service/internal/repository/labresult"
)

type fakeLabResultSource struct {
	result   model.LabResult
	err      error
	settings model.ParticipantSettings
}

func (f *fakeLabResultSource) ByID(_ context.Context, _ string) (model.LabResult, error) {
	return f.result, f.err
}

func (f *fakeLabResultSource) ParticipantSettings(_ context.Context, _ string) (model.ParticipantSettings, error) {
	return f.settings, nil
}

type fakeScheduleCreator struct {
	created []model.ScheduleEntry
}

func (f *fakeScheduleCreator) Create(_ context.Context, e model.ScheduleEntry) error {
	f.created = append(f.created, e)
	return nil
}

type fakeAnswerSource struct {
	enabled   bool
	answers   []model.Answer
	notable   map[int]bool
	pseudonym string
}

func (f *fakeAnswerSource) InstanceAnswers(_ context.Context, _ int) ([]model.Answer, error) {
	return f.answers, nil
}

func (f *fakeAnswerSource) IsNotableAnswer(_ context.Context, answerOptionID int, _ string) (bool, error) {
	return f.notable[answerOptionID], nil
}

func (f *fakeAnswerSource) HasAnswersNotifyFeature(_ context.Context, _ int) (bool, error) {
	return f.enabled, nil
}

func (f *fakeAnswerSource) InstancePseudonym(_ context.Context, _ int) (string, error) {
	return f.pseudonym, nil
}

type fakeNotableRecorder struct {
	recorded map[string][]int
}

func newFakeNotableRecorder() *fakeNotableRecorder {
	return &fakeNotableRecorder{recorded: make(map[string][]int)}
}

func (f *fakeNotableRecorder) UpsertNotableAnswer(_ context.Context, pseudonym string, instanceID int) error {
	f.recorded[pseudonym] = append(f.recorded[pseudonym], instanceID)
	return nil
}

func newTestHandler(results *fakeLabResultSource, schedules *fakeScheduleCreator, answers *fakeAnswerSource, contacts *fakeNotableRecorder) *Handler {
	return NewHandler(results, schedules, answers, contacts, time.UTC, "08:00")
}

func TestLabResultUpdatedSchedulesNotification(t *testing.T) {
	results := &fakeLabResultSource{
		result:   model.LabResult{ID: "S-1", Pseudonym: "st---001", Status: model.LabResultAnalyzed},
		settings: model.ParticipantSettings{Pseudonym: "st---001", LabResultsEnabled: true},
	}
	schedules := &fakeScheduleCreator{}

	h := newTestHandler(results, schedules, &fakeAnswerSource{}, newFakeNotableRecorder())

	err := h.HandleLabResultUpdated(context.Background(), LabResultUpdated{ID: "S-1"})
	require.NoError(t, err)

	require.Len(t, schedules.created, 1)
	e := schedules.created[0]
	assert.Equal(t, model.TypeSample, e.Type)
	assert.Equal(t, "S-1", e.ReferenceID)
	assert.Equal(t, "st---001", e.Recipient)
	assert.True(t, e.SendOn.After(time.Now().Add(-time.Minute)))
}

func TestLabResultUpdatedStaysOnTodayAfterDailyTime(t *testing.T) {
	dailyTime := time.Now().UTC().Add(-2 * time.Hour).Format("15:04")
	results := &fakeLabResultSource{
		result: model.LabResult{ID: "S-1", Pseudonym: "st---001", Status: model.LabResultAnalyzed},
		settings: model.ParticipantSettings{
			Pseudonym:             "st---001",
			LabResultsEnabled:     true,
			DailyNotificationTime: dailyTime,
		},
	}
	schedules := &fakeScheduleCreator{}

	h := newTestHandler(results, schedules, &fakeAnswerSource{}, newFakeNotableRecorder())

	err := h.HandleLabResultUpdated(context.Background(), LabResultUpdated{ID: "S-1"})
	require.NoError(t, err)

	require.Len(t, schedules.created, 1)
	sendOn := *schedules.created[0].SendOn
	now := time.Now().UTC()
	assert.Equal(t, now.Year(), sendOn.Year())
	assert.Equal(t, now.YearDay(), sendOn.YearDay())
	assert.Equal(t, dailyTime, sendOn.Format("15:04"))
}

func TestLabResultUpdatedIgnoresUnanalyzedResult(t *testing.T) {
	results := &fakeLabResultSource{
		result:   model.LabResult{ID: "S-1", Pseudonym: "st---001", Status: model.LabResultSampled},
		settings: model.ParticipantSettings{LabResultsEnabled: true},
	}
	schedules := &fakeScheduleCreator{}

	h := newTestHandler(results, schedules, &fakeAnswerSource{}, newFakeNotableRecorder())

	err := h.HandleLabResultUpdated(context.Background(), LabResultUpdated{ID: "S-1"})
	require.NoError(t, err)
	assert.Empty(t, schedules.created)
}

func TestLabResultUpdatedRespectsOptOut(t *testing.T) {
	results := &fakeLabResultSource{
		result:   model.LabResult{ID: "S-1", Pseudonym: "st---001", Status: model.LabResultAnalyzed},
		settings: model.ParticipantSettings{LabResultsEnabled: false},
	}
	schedules := &fakeScheduleCreator{}

	h := newTestHandler(results, schedules, &fakeAnswerSource{}, newFakeNotableRecorder())

	err := h.HandleLabResultUpdated(context.Background(), LabResultUpdated{ID: "S-1"})
	require.NoError(t, err)
	assert.Empty(t, schedules.created)
}

func TestLabResultUpdatedToleratesUnknownResult(t *testing.T) {
	results := &fakeLabResultSource{err: labresult.ErrLabResultNotFound}
	schedules := &fakeScheduleCreator{}

	h := newTestHandler(results, schedules, &fakeAnswerSource{}, newFakeNotableRecorder())

	err := h.HandleLabResultUpdated(context.Background(), LabResultUpdated{ID: "S-404"})
	require.NoError(t, err)
	assert.Empty(t, schedules.created)
}

func TestInstanceReleasedRecordsNotableAnswer(t *testing.T) {
	answers := &fakeAnswerSource{
		enabled: true,
		answers: []model.Answer{
			{AnswerOptionID: 1, Value: "No"},
			{AnswerOptionID: 2, Value: "Yes"},
		},
		notable:   map[int]bool{2: true},
		pseudonym: "st---001",
	}
	contacts := newFakeNotableRecorder()

	h := newTestHandler(&fakeLabResultSource{}, &fakeScheduleCreator{}, answers, contacts)

	err := h.HandleInstanceReleased(context.Background(), InstanceReleased{InstanceID: 7})
	require.NoError(t, err)
	assert.Equal(t, []int{7}, contacts.recorded["st---001"])
}

func TestInstanceReleasedSkipsDisabledStudies(t *testing.T) {
	answers := &fakeAnswerSource{
		enabled: false,
		answers: []model.Answer{{AnswerOptionID: 2, Value: "Yes"}},
		notable: map[int]bool{2: true},
	}
	contacts := newFakeNotableRecorder()

	h := newTestHandler(&fakeLabResultSource{}, &fakeScheduleCreator{}, answers, contacts)

	err := h.HandleInstanceReleased(context.Background(), InstanceReleased{InstanceID: 7})
	require.NoError(t, err)
	assert.Empty(t, contacts.recorded)
}

func TestInstanceReleasedIgnoresUnremarkableAnswers(t *testing.T) {
	answers := &fakeAnswerSource{
		enabled:   true,
		answers:   []model.Answer{{AnswerOptionID: 1, Value: "No"}},
		notable:   map[int]bool{},
		pseudonym: "st---001",
	}
	contacts := newFakeNotableRecorder()

	h := newTestHandler(&fakeLabResultSource{}, &fakeScheduleCreator{}, answers, contacts)

	err := h.HandleInstanceReleased(context.Background(), InstanceReleased{InstanceID: 7})
	require.NoError(t, err)
	assert.Empty(t, contacts.recorded)
}

package delivery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hzi-braunschweig/pia-notification-service/internal/clients/personaldataservice"
	"github.com/hzi-braunschweig/pia-notification-service/internal/clients/questionnaireservice"
	"github.com/hzi-braunschweig/pia-notification-service/internal/content"
	"github.com/hzi-braunschweig/pia-notification-service/internal/model"
	"github.com/hzi-braunschweig/pia-notification-service/internal/repository/labresult"
	"github.com/hzi-braunschweig/pia-notification-service/pkg/email"
	"github.com/hzi-braunschweig/pia-notification-service/pkg/fcm"
)

type fakeScheduleRepo struct {
	cleared        []int64
	deleted        []int64
	deletedRefs    []string
	postponed      map[int64]time.Duration
	postponedByRef map[string]time.Duration
}

func newFakeScheduleRepo() *fakeScheduleRepo {
	return &fakeScheduleRepo{
		postponed:      make(map[int64]time.Duration),
		postponedByRef: make(map[string]time.Duration),
	}
}

func (f *fakeScheduleRepo) ClearSendOn(_ context.Context, id int64) error {
	f.cleared = append(f.cleared, id)
	return nil
}

func (f *fakeScheduleRepo) Postpone(_ context.Context, id int64, delta time.Duration) error {
	f.postponed[id] = delta
	return nil
}

func (f *fakeScheduleRepo) PostponeByReference(_ context.Context, referenceID string, _ model.ScheduleType, delta time.Duration) error {
	f.postponedByRef[referenceID] = delta
	return nil
}

func (f *fakeScheduleRepo) Delete(_ context.Context, id int64) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeScheduleRepo) DeleteByReference(_ context.Context, referenceID string, _ model.ScheduleType) error {
	f.deletedRefs = append(f.deletedRefs, referenceID)
	return nil
}

type fakeTokenRepo struct {
	tokens  []model.DeviceToken
	removed []string
}

func (f *fakeTokenRepo) TokensForRecipient(_ context.Context, _ string) ([]model.DeviceToken, error) {
	return f.tokens, nil
}

func (f *fakeTokenRepo) Remove(_ context.Context, token string) error {
	f.removed = append(f.removed, token)
	return nil
}

type fakePushSender struct {
	errs map[string]error // per-token error, missing means success
	sent []string
}

func (f *fakePushSender) Send(_ context.Context, token string, _ fcm.Notification) (string, error) {
	if err, ok := f.errs[token]; ok {
		return "", err
	}
	f.sent = append(f.sent, token)
	return "msg-" + token, nil
}

type fakeEmailResolver struct {
	address string
	err     error
}

func (f *fakeEmailResolver) Email(_ context.Context, _ string) (string, error) {
	return f.address, f.err
}

type fakeMailer struct {
	sent []string
	err  error
}

func (f *fakeMailer) Send(to string, _ email.Message) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, to)
	return nil
}

type fakeInstanceSource struct {
	instance model.QuestionnaireInstance
	err      error
}

func (f *fakeInstanceSource) Instance(_ context.Context, _ int) (model.QuestionnaireInstance, error) {
	return f.instance, f.err
}

type fakeBadgeCounter struct{ count int }

func (f *fakeBadgeCounter) CountOpenInstances(_ context.Context, _ string) (int, error) {
	return f.count, nil
}

type fakeLabResultSource struct {
	result model.LabResult
	err    error
}

func (f *fakeLabResultSource) ByID(_ context.Context, _ string) (model.LabResult, error) {
	return f.result, f.err
}

func reminderEntry() model.ScheduleEntry {
	sendOn := time.Now().Add(-time.Minute)
	return model.ScheduleEntry{
		ID:          1,
		Recipient:   "st---001",
		SendOn:      &sendOn,
		Type:        model.TypeReminder,
		ReferenceID: "7",
	}
}

func answerableInstance() model.QuestionnaireInstance {
	in := model.QuestionnaireInstance{ID: 7, Pseudonym: "st---001", Status: model.StatusActive}
	in.Questionnaire.ID = 42
	in.Questionnaire.Notification.Title = "Weekly check-in"
	in.Questionnaire.Notification.BodyNew = "A new questionnaire is waiting for you."
	in.Questionnaire.Questions = []model.Question{{ID: 1}}
	return in
}

func newReminder(
	schedules *fakeScheduleRepo,
	tokens *fakeTokenRepo,
	push *fakePushSender,
	instances *fakeInstanceSource,
	resolver *fakeEmailResolver,
	mailer *fakeMailer,
) *ReminderStrategy {
	return NewReminderStrategy(
		schedules, tokens, push, instances,
		&fakeBadgeCounter{count: 2},
		content.NewReminderStrategy("https://pia.example"),
		resolver, mailer,
	)
}

func TestReminderPushSuccessClearsSendTime(t *testing.T) {
	schedules := newFakeScheduleRepo()
	tokens := &fakeTokenRepo{tokens: []model.DeviceToken{{Token: "tok-1"}, {Token: "tok-2"}}}
	push := &fakePushSender{}
	instances := &fakeInstanceSource{instance: answerableInstance()}

	s := newReminder(schedules, tokens, push, instances, &fakeEmailResolver{}, &fakeMailer{})

	err := s.Deliver(context.Background(), reminderEntry())
	require.NoError(t, err)

	assert.Len(t, push.sent, 2)
	assert.Equal(t, []int64{1}, schedules.cleared)
	assert.Empty(t, schedules.deleted)
}

func TestReminderRemovesRejectedToken(t *testing.T) {
	schedules := newFakeScheduleRepo()
	tokens := &fakeTokenRepo{tokens: []model.DeviceToken{{Token: "tok-bad"}, {Token: "tok-good"}}}
	push := &fakePushSender{errs: map[string]error{"tok-bad": fcm.ErrTokenNotRegistered}}
	instances := &fakeInstanceSource{instance: answerableInstance()}

	s := newReminder(schedules, tokens, push, instances, &fakeEmailResolver{}, &fakeMailer{})

	err := s.Deliver(context.Background(), reminderEntry())
	require.NoError(t, err)

	assert.Equal(t, []string{"tok-bad"}, tokens.removed)
	assert.Equal(t, []int64{1}, schedules.cleared)
}

func TestReminderFallsBackToMail(t *testing.T) {
	schedules := newFakeScheduleRepo()
	tokens := &fakeTokenRepo{} // no devices
	push := &fakePushSender{}
	instances := &fakeInstanceSource{instance: answerableInstance()}
	resolver := &fakeEmailResolver{address: "participant@example.com"}
	mailer := &fakeMailer{}

	s := newReminder(schedules, tokens, push, instances, resolver, mailer)

	err := s.Deliver(context.Background(), reminderEntry())
	require.NoError(t, err)

	assert.Equal(t, []string{"participant@example.com"}, mailer.sent)
	assert.Equal(t, []int64{1}, schedules.deleted)
	assert.Empty(t, schedules.cleared)
}

func TestReminderPostponesWhenUnreachable(t *testing.T) {
	schedules := newFakeScheduleRepo()
	tokens := &fakeTokenRepo{}
	push := &fakePushSender{}
	instances := &fakeInstanceSource{instance: answerableInstance()}
	resolver := &fakeEmailResolver{err: personaldataservice.ErrNoEmail}

	s := newReminder(schedules, tokens, push, instances, resolver, &fakeMailer{})

	err := s.Deliver(context.Background(), reminderEntry())
	require.NoError(t, err)

	assert.Equal(t, 24*time.Hour, schedules.postponedByRef["7"])
	assert.Empty(t, schedules.cleared)
	assert.Empty(t, schedules.deleted)
}

func TestReminderDropsClosedInstance(t *testing.T) {
	schedules := newFakeScheduleRepo()
	in := answerableInstance()
	in.Status = model.StatusReleasedOnce
	instances := &fakeInstanceSource{instance: in}

	s := newReminder(schedules, &fakeTokenRepo{}, &fakePushSender{}, instances, &fakeEmailResolver{}, &fakeMailer{})

	err := s.Deliver(context.Background(), reminderEntry())
	require.NoError(t, err)

	assert.Equal(t, []string{"7"}, schedules.deletedRefs)
}

func TestReminderDropsGoneInstance(t *testing.T) {
	schedules := newFakeScheduleRepo()
	instances := &fakeInstanceSource{err: questionnaireservice.ErrInstanceNotFound}

	s := newReminder(schedules, &fakeTokenRepo{}, &fakePushSender{}, instances, &fakeEmailResolver{}, &fakeMailer{})

	err := s.Deliver(context.Background(), reminderEntry())
	require.NoError(t, err)

	assert.Equal(t, []string{"7"}, schedules.deletedRefs)
}

func TestReminderWaitsForUnmetConditions(t *testing.T) {
	schedules := newFakeScheduleRepo()
	in := answerableInstance()
	in.Questionnaire.Questions = nil
	instances := &fakeInstanceSource{instance: in}

	s := newReminder(schedules, &fakeTokenRepo{}, &fakePushSender{}, instances, &fakeEmailResolver{}, &fakeMailer{})

	err := s.Deliver(context.Background(), reminderEntry())
	require.NoError(t, err)

	assert.Equal(t, 24*time.Hour, schedules.postponedByRef["7"])
	assert.Empty(t, schedules.deletedRefs)
}

func TestSampleDropsUnanalyzedResult(t *testing.T) {
	schedules := newFakeScheduleRepo()
	results := &fakeLabResultSource{result: model.LabResult{ID: "S-1", Status: model.LabResultSampled}}

	s := NewSampleStrategy(
		schedules, &fakeTokenRepo{}, &fakePushSender{}, results,
		content.NewSampleStrategy("https://pia.example"),
		&fakeEmailResolver{}, &fakeMailer{},
	)

	sendOn := time.Now()
	err := s.Deliver(context.Background(), model.ScheduleEntry{
		ID: 3, Recipient: "st---001", SendOn: &sendOn,
		Type: model.TypeSample, ReferenceID: "S-1",
	})
	require.NoError(t, err)

	assert.Equal(t, []int64{3}, schedules.deleted)
}

func TestSampleDropsGoneResult(t *testing.T) {
	schedules := newFakeScheduleRepo()
	results := &fakeLabResultSource{err: labresult.ErrLabResultNotFound}

	s := NewSampleStrategy(
		schedules, &fakeTokenRepo{}, &fakePushSender{}, results,
		content.NewSampleStrategy("https://pia.example"),
		&fakeEmailResolver{}, &fakeMailer{},
	)

	sendOn := time.Now()
	err := s.Deliver(context.Background(), model.ScheduleEntry{
		ID: 3, Recipient: "st---001", SendOn: &sendOn,
		Type: model.TypeSample, ReferenceID: "S-1",
	})
	require.NoError(t, err)

	assert.Equal(t, []int64{3}, schedules.deleted)
}

func TestSamplePushSuccessClearsSendTime(t *testing.T) {
	schedules := newFakeScheduleRepo()
	tokens := &fakeTokenRepo{tokens: []model.DeviceToken{{Token: "tok-1"}}}
	results := &fakeLabResultSource{result: model.LabResult{ID: "S-1", Status: model.LabResultAnalyzed}}

	s := NewSampleStrategy(
		schedules, tokens, &fakePushSender{}, results,
		content.NewSampleStrategy("https://pia.example"),
		&fakeEmailResolver{}, &fakeMailer{},
	)

	sendOn := time.Now()
	err := s.Deliver(context.Background(), model.ScheduleEntry{
		ID: 3, Recipient: "st---001", SendOn: &sendOn,
		Type: model.TypeSample, ReferenceID: "S-1",
	})
	require.NoError(t, err)

	assert.Equal(t, []int64{3}, schedules.cleared)
}

func TestCustomRetriesInAnHourWithoutDevices(t *testing.T) {
	schedules := newFakeScheduleRepo()

	s := NewCustomStrategy(schedules, &fakeTokenRepo{}, &fakePushSender{}, content.NewCustomStrategy())

	sendOn := time.Now()
	title, body := "Study news", "Please update the app."
	err := s.Deliver(context.Background(), model.ScheduleEntry{
		ID: 5, Recipient: "st---001", SendOn: &sendOn,
		Type: model.TypeCustom, Title: &title, Body: &body,
	})
	require.NoError(t, err)

	assert.Equal(t, time.Hour, schedules.postponed[5])
	assert.Empty(t, schedules.cleared)
}

func TestCustomPushSuccessClearsSendTime(t *testing.T) {
	schedules := newFakeScheduleRepo()
	tokens := &fakeTokenRepo{tokens: []model.DeviceToken{{Token: "tok-1"}}}

	s := NewCustomStrategy(schedules, tokens, &fakePushSender{}, content.NewCustomStrategy())

	sendOn := time.Now()
	title, body := "Study news", "Please update the app."
	err := s.Deliver(context.Background(), model.ScheduleEntry{
		ID: 5, Recipient: "st---001", SendOn: &sendOn,
		Type: model.TypeCustom, Title: &title, Body: &body,
	})
	require.NoError(t, err)

	assert.Equal(t, []int64{5}, schedules.cleared)
}

func TestAggregatorMailsRecipientAddress(t *testing.T) {
	schedules := newFakeScheduleRepo()
	mailer := &fakeMailer{}

	s := NewAggregatorStrategy(schedules, content.NewAggregatorStrategy(), mailer)

	sendOn := time.Now()
	title, body := "Daily report", "Sampled: 3"
	err := s.Deliver(context.Background(), model.ScheduleEntry{
		ID: 9, Recipient: "pm@example.com", SendOn: &sendOn,
		Type: model.TypeAggregatorEmail, Title: &title, Body: &body,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"pm@example.com"}, mailer.sent)
	assert.Equal(t, []int64{9}, schedules.deleted)
}

func TestAggregatorKeepsEntryOnMailFailure(t *testing.T) {
	schedules := newFakeScheduleRepo()
	mailer := &fakeMailer{err: errors.New("smtp down")}

	s := NewAggregatorStrategy(schedules, content.NewAggregatorStrategy(), mailer)

	sendOn := time.Now()
	title, body := "Daily report", "Sampled: 3"
	err := s.Deliver(context.Background(), model.ScheduleEntry{
		ID: 9, Recipient: "pm@example.com", SendOn: &sendOn,
		Type: model.TypeAggregatorEmail, Title: &title, Body: &body,
	})
	require.Error(t, err)

	assert.Empty(t, schedules.deleted)
}

func TestRegistryRejectsUnknownType(t *testing.T) {
	reg := Registry{}

	_, err := reg.For(model.ScheduleType("bogus"))
	assert.ErrorIs(t, err, ErrUnknownType)
}

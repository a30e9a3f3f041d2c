// Package scheduler contains the periodic jobs of the notification pipeline:
// creating reminder schedules, dispatching due entries and building the daily
// report mails.
package scheduler

import (
	"context"
	"strconv"
	"time"

	"github.com/wb-go/wbf/zlog"

	"github.com/hzi-braunschweig/pia-notification-service/internal/model"
)

// QuestionnaireRepo is the slice of the questionnaire repository the creation
// job needs.
type QuestionnaireRepo interface {
	UnscheduledInstances(ctx context.Context) ([]model.UnscheduledInstance, error)
	NotificationSettings(ctx context.Context, questionnaireID, version int) (model.NotificationSettings, error)
	MarkScheduled(ctx context.Context, instanceID int) error
}

// ScheduleCreator inserts schedule entries.
type ScheduleCreator interface {
	Create(ctx context.Context, e model.ScheduleEntry) error
}

// ParticipantSettingsSource reads per-participant notification preferences.
type ParticipantSettingsSource interface {
	ParticipantSettings(ctx context.Context, pseudonym string) (model.ParticipantSettings, error)
}

// Creator scans for questionnaire instances without reminder schedules and
// creates the full reminder series for each. Runs hourly; the day-bucketed
// insert and the scheduled flag keep repeated runs from duplicating entries.
type Creator struct {
	questionnaires QuestionnaireRepo
	schedules      ScheduleCreator
	participants   ParticipantSettingsSource
	loc            *time.Location
	defaultTime    string
	now            func() time.Time
}

// NewCreator creates a schedule creation job.
func NewCreator(
	questionnaires QuestionnaireRepo,
	schedules ScheduleCreator,
	participants ParticipantSettingsSource,
	loc *time.Location,
	defaultTime string,
) *Creator {
	return &Creator{
		questionnaires: questionnaires,
		schedules:      schedules,
		participants:   participants,
		loc:            loc,
		defaultTime:    defaultTime,
		now:            time.Now,
	}
}

// Run schedules reminders for every instance that has none yet. One broken
// instance does not stop the rest.
func (c *Creator) Run(ctx context.Context) {
	instances, err := c.questionnaires.UnscheduledInstances(ctx)
	if err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to load unscheduled instances")
		return
	}

	for _, in := range instances {
		if err := c.scheduleInstance(ctx, in); err != nil {
			zlog.Logger.Error().Err(err).
				Int("instance_id", in.ID).
				Msg("failed to schedule reminders for instance")
		}
	}
}

func (c *Creator) scheduleInstance(ctx context.Context, in model.UnscheduledInstance) error {
	settings, err := c.questionnaires.NotificationSettings(ctx, in.QuestionnaireID, in.QuestionnaireVersion)
	if err != nil {
		return err
	}

	if settings.CycleUnit == model.CycleSpontaneous || settings.Tries <= 0 {
		return c.questionnaires.MarkScheduled(ctx, in.ID)
	}

	dailyTime := c.defaultTime
	if s, err := c.participants.ParticipantSettings(ctx, in.Pseudonym); err == nil && s.DailyNotificationTime != "" {
		dailyTime = s.DailyNotificationTime
	}

	for _, sendOn := range c.sendDates(settings, in.DateOfIssue, dailyTime) {
		sendOn := sendOn
		entry := model.ScheduleEntry{
			Recipient:   in.Pseudonym,
			SendOn:      &sendOn,
			Type:        model.TypeReminder,
			ReferenceID: strconv.Itoa(in.ID),
		}
		if err := c.schedules.Create(ctx, entry); err != nil {
			return err
		}
	}

	return c.questionnaires.MarkScheduled(ctx, in.ID)
}

// sendDates computes the full reminder series of one instance. Hour-cycled
// questionnaires anchor to the issue timestamp, everything else to the
// participant's daily notification time on the day the job runs, so a
// backlogged instance does not get its whole series due at once.
func (c *Creator) sendDates(settings model.NotificationSettings, dateOfIssue time.Time, dailyTime string) []time.Time {
	interval := settings.Interval
	if interval <= 0 {
		interval = 1
	}

	step := time.Duration(interval) * 24 * time.Hour
	if settings.IntervalUnit == "hours" {
		step = time.Duration(interval) * time.Hour
	}

	first := dateOfIssue.In(c.loc)
	if settings.CycleUnit != model.CycleHour {
		today := c.now().In(c.loc)
		hour, minute := parseDailyTime(dailyTime)
		first = time.Date(today.Year(), today.Month(), today.Day(), hour, minute, 0, 0, c.loc)
	}

	dates := make([]time.Time, 0, settings.Tries)
	for i := 0; i < settings.Tries; i++ {
		dates = append(dates, first.Add(time.Duration(i)*step))
	}

	return dates
}

func parseDailyTime(s string) (hour, minute int) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 8, 0
	}
	return t.Hour(), t.Minute()
}

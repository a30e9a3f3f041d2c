package delivery

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/wb-go/wbf/zlog"

	"github.com/hzi-braunschweig/pia-notification-service/internal/clients/personaldataservice"
	"github.com/hzi-braunschweig/pia-notification-service/internal/clients/questionnaireservice"
	"github.com/hzi-braunschweig/pia-notification-service/internal/content"
	"github.com/hzi-braunschweig/pia-notification-service/internal/model"
	"github.com/hzi-braunschweig/pia-notification-service/pkg/email"
)

// InstanceSource fetches a questionnaire instance with its detail.
type InstanceSource interface {
	Instance(ctx context.Context, instanceID int) (model.QuestionnaireInstance, error)
}

// BadgeCounter counts the open questionnaires of a participant for the app
// icon badge.
type BadgeCounter interface {
	CountOpenInstances(ctx context.Context, pseudonym string) (int, error)
}

// ReminderStrategy delivers questionnaire reminders. Push is tried first, a
// mail with a link is the fallback. Reminders for instances that can no
// longer be answered are abandoned.
type ReminderStrategy struct {
	schedules ScheduleRepo
	instances InstanceSource
	badges    BadgeCounter
	content   content.Strategy[model.QuestionnaireInstance]
	push      *pusher
	emails    EmailResolver
	mailer    EmailSender
}

// NewReminderStrategy creates a reminder delivery strategy.
func NewReminderStrategy(
	schedules ScheduleRepo,
	tokens TokenRepo,
	pushSender PushSender,
	instances InstanceSource,
	badges BadgeCounter,
	contentStrategy content.Strategy[model.QuestionnaireInstance],
	emails EmailResolver,
	mailer EmailSender,
) *ReminderStrategy {
	return &ReminderStrategy{
		schedules: schedules,
		instances: instances,
		badges:    badges,
		content:   contentStrategy,
		push:      &pusher{tokens: tokens, sender: pushSender},
		emails:    emails,
		mailer:    mailer,
	}
}

// Deliver sends one due reminder.
func (s *ReminderStrategy) Deliver(ctx context.Context, e model.ScheduleEntry) error {
	instanceID, err := strconv.Atoi(e.ReferenceID)
	if err != nil {
		return fmt.Errorf("invalid instance reference %q: %w", e.ReferenceID, err)
	}

	instance, err := s.instances.Instance(ctx, instanceID)
	if errors.Is(err, questionnaireservice.ErrInstanceNotFound) {
		zlog.Logger.Info().
			Int("instance_id", instanceID).
			Msg("instance gone, dropping its reminders")
		return s.schedules.DeleteByReference(ctx, e.ReferenceID, model.TypeReminder)
	}
	if err != nil {
		return fmt.Errorf("fetch instance: %w", err)
	}

	if instance.Status.Terminal() {
		zlog.Logger.Info().
			Int("instance_id", instanceID).
			Str("status", string(instance.Status)).
			Msg("instance closed, dropping its reminders")
		return s.schedules.DeleteByReference(ctx, e.ReferenceID, model.TypeReminder)
	}

	// An empty question set means every condition is currently unmet. The
	// instance may become answerable later, so the reminder waits a day
	// instead of being dropped.
	if len(instance.Questionnaire.Questions) == 0 {
		return s.schedules.PostponeByReference(ctx, e.ReferenceID, model.TypeReminder, 24*time.Hour)
	}

	var badge *int
	if count, err := s.badges.CountOpenInstances(ctx, e.Recipient); err == nil {
		badge = &count
	} else {
		zlog.Logger.Warn().Err(err).Str("recipient", e.Recipient).Msg("failed to count open instances")
	}

	if successes := s.push.sendToAll(ctx, e, s.content.Push(instance), badge); successes > 0 {
		return s.schedules.ClearSendOn(ctx, e.ID)
	}

	return s.deliverByMail(ctx, e, instance)
}

func (s *ReminderStrategy) deliverByMail(ctx context.Context, e model.ScheduleEntry, instance model.QuestionnaireInstance) error {
	address, err := s.emails.Email(ctx, e.Recipient)
	if errors.Is(err, personaldataservice.ErrNoEmail) {
		zlog.Logger.Info().
			Str("recipient", e.Recipient).
			Msg("no device and no mail address, postponing reminder")
		return s.schedules.PostponeByReference(ctx, e.ReferenceID, model.TypeReminder, 24*time.Hour)
	}
	if err != nil {
		return fmt.Errorf("resolve mail address: %w", err)
	}

	payload := s.content.Email(instance)
	if err := s.mailer.Send(address, email.Message{Subject: payload.Subject, Text: payload.Text, HTML: payload.HTML}); err != nil {
		zlog.Logger.Error().Err(err).Str("recipient", e.Recipient).Msg("failed to send reminder mail")
		return s.schedules.PostponeByReference(ctx, e.ReferenceID, model.TypeReminder, 24*time.Hour)
	}

	// A mail cannot be consumed in the app afterwards, the entry has no
	// further use.
	return s.schedules.Delete(ctx, e.ID)
}

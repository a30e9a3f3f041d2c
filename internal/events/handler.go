package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/wb-go/wbf/zlog"

	"github.com/hzi-braunschweig/pia-notification-service/internal/model"
	"github.com/hzi-braunschweig/pia-notification-service/internal/repository/labresult"
)

// LabResultSource reads lab results and participant preferences.
type LabResultSource interface {
	ByID(ctx context.Context, id string) (model.LabResult, error)
	ParticipantSettings(ctx context.Context, pseudonym string) (model.ParticipantSettings, error)
}

// ScheduleCreator inserts schedule entries.
type ScheduleCreator interface {
	Create(ctx context.Context, e model.ScheduleEntry) error
}

// AnswerSource reads released answers and their notable flags.
type AnswerSource interface {
	InstanceAnswers(ctx context.Context, instanceID int) ([]model.Answer, error)
	IsNotableAnswer(ctx context.Context, answerOptionID int, value string) (bool, error)
	HasAnswersNotifyFeature(ctx context.Context, instanceID int) (bool, error)
	InstancePseudonym(ctx context.Context, instanceID int) (string, error)
}

// NotableRecorder records participants the study team should contact.
type NotableRecorder interface {
	UpsertNotableAnswer(ctx context.Context, pseudonym string, instanceID int) error
}

// Handler reacts to platform events.
type Handler struct {
	results     LabResultSource
	schedules   ScheduleCreator
	answers     AnswerSource
	contacts    NotableRecorder
	loc         *time.Location
	defaultTime string
}

// NewHandler creates an event handler.
func NewHandler(
	results LabResultSource,
	schedules ScheduleCreator,
	answers AnswerSource,
	contacts NotableRecorder,
	loc *time.Location,
	defaultTime string,
) *Handler {
	return &Handler{
		results:     results,
		schedules:   schedules,
		answers:     answers,
		contacts:    contacts,
		loc:         loc,
		defaultTime: defaultTime,
	}
}

// Run dispatches envelopes from the queue until the channel closes.
func (h *Handler) Run(ctx context.Context, envelopes <-chan Envelope) {
	for env := range envelopes {
		if err := h.handle(ctx, env); err != nil {
			zlog.Logger.Error().Err(err).
				Str("event_id", env.ID.String()).
				Str("type", env.Type).
				Msg("failed to handle event")
		}
	}
}

func (h *Handler) handle(ctx context.Context, env Envelope) error {
	switch env.Type {
	case EventLabResultUpdated:
		var evt LabResultUpdated
		if err := json.Unmarshal(env.Payload, &evt); err != nil {
			return err
		}
		return h.HandleLabResultUpdated(ctx, evt)
	case EventInstanceReleased:
		var evt InstanceReleased
		if err := json.Unmarshal(env.Payload, &evt); err != nil {
			return err
		}
		return h.HandleInstanceReleased(ctx, evt)
	default:
		zlog.Logger.Warn().Str("type", env.Type).Msg("ignoring unknown event type")
		return nil
	}
}

// HandleLabResultUpdated schedules a lab result notification once a result
// reaches the analyzed state, for participants who opted in. The notification
// goes out at the participant's daily notification time.
func (h *Handler) HandleLabResultUpdated(ctx context.Context, evt LabResultUpdated) error {
	result, err := h.results.ByID(ctx, evt.ID)
	if errors.Is(err, labresult.ErrLabResultNotFound) {
		zlog.Logger.Warn().Str("lab_result_id", evt.ID).Msg("event for unknown lab result")
		return nil
	}
	if err != nil {
		return err
	}

	if result.Status != model.LabResultAnalyzed {
		return nil
	}

	settings, err := h.results.ParticipantSettings(ctx, result.Pseudonym)
	if err != nil {
		return err
	}
	if !settings.LabResultsEnabled {
		return nil
	}

	sendOn := h.dailySendTime(settings.DailyNotificationTime)
	entry := model.ScheduleEntry{
		Recipient:   result.Pseudonym,
		SendOn:      &sendOn,
		Type:        model.TypeSample,
		ReferenceID: result.ID,
	}

	return h.schedules.Create(ctx, entry)
}

// HandleInstanceReleased checks a released instance for notable answers and
// records the participant for the study team when one is found. Only studies
// with the contact feature enabled are checked.
func (h *Handler) HandleInstanceReleased(ctx context.Context, evt InstanceReleased) error {
	enabled, err := h.answers.HasAnswersNotifyFeature(ctx, evt.InstanceID)
	if err != nil {
		return err
	}
	if !enabled {
		return nil
	}

	answers, err := h.answers.InstanceAnswers(ctx, evt.InstanceID)
	if err != nil {
		return err
	}

	for _, a := range answers {
		notable, err := h.answers.IsNotableAnswer(ctx, a.AnswerOptionID, a.Value)
		if err != nil {
			return err
		}
		if !notable {
			continue
		}

		pseudonym, err := h.answers.InstancePseudonym(ctx, evt.InstanceID)
		if err != nil {
			return err
		}

		zlog.Logger.Info().
			Int("instance_id", evt.InstanceID).
			Msg("notable answer found, recording participant for contact")

		return h.contacts.UpsertNotableAnswer(ctx, pseudonym, evt.InstanceID)
	}

	return nil
}

// dailySendTime returns today's occurrence of the given daily time in the
// service timezone. A time already in the past stays on today, the entry is
// then due on the next dispatch pass.
func (h *Handler) dailySendTime(dailyTime string) time.Time {
	if dailyTime == "" {
		dailyTime = h.defaultTime
	}

	parsed, err := time.Parse("15:04", dailyTime)
	if err != nil {
		parsed, _ = time.Parse("15:04", "08:00")
	}

	now := time.Now().In(h.loc)
	return time.Date(now.Year(), now.Month(), now.Day(), parsed.Hour(), parsed.Minute(), 0, 0, h.loc)
}

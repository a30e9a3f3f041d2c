package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wb-go/wbf/zlog"

	"github.com/hzi-braunschweig/pia-notification-service/internal/clients/personaldataservice"
	"github.com/hzi-braunschweig/pia-notification-service/internal/content"
	"github.com/hzi-braunschweig/pia-notification-service/internal/model"
	"github.com/hzi-braunschweig/pia-notification-service/internal/repository/labresult"
	"github.com/hzi-braunschweig/pia-notification-service/pkg/email"
)

// LabResultSource reads lab results.
type LabResultSource interface {
	ByID(ctx context.Context, id string) (model.LabResult, error)
}

// SampleStrategy delivers lab result notifications. Push is tried first, a
// mail with a link is the fallback.
type SampleStrategy struct {
	schedules ScheduleRepo
	results   LabResultSource
	content   content.Strategy[model.LabResult]
	push      *pusher
	emails    EmailResolver
	mailer    EmailSender
}

// NewSampleStrategy creates a lab result delivery strategy.
func NewSampleStrategy(
	schedules ScheduleRepo,
	tokens TokenRepo,
	pushSender PushSender,
	results LabResultSource,
	contentStrategy content.Strategy[model.LabResult],
	emails EmailResolver,
	mailer EmailSender,
) *SampleStrategy {
	return &SampleStrategy{
		schedules: schedules,
		results:   results,
		content:   contentStrategy,
		push:      &pusher{tokens: tokens, sender: pushSender},
		emails:    emails,
		mailer:    mailer,
	}
}

// Deliver sends one due lab result notification.
func (s *SampleStrategy) Deliver(ctx context.Context, e model.ScheduleEntry) error {
	result, err := s.results.ByID(ctx, e.ReferenceID)
	if errors.Is(err, labresult.ErrLabResultNotFound) {
		zlog.Logger.Info().
			Str("lab_result_id", e.ReferenceID).
			Msg("lab result gone, dropping its notification")
		return s.schedules.Delete(ctx, e.ID)
	}
	if err != nil {
		return fmt.Errorf("fetch lab result: %w", err)
	}

	if result.Status != model.LabResultAnalyzed {
		zlog.Logger.Info().
			Str("lab_result_id", e.ReferenceID).
			Str("status", string(result.Status)).
			Msg("lab result not analyzed, dropping its notification")
		return s.schedules.Delete(ctx, e.ID)
	}

	if successes := s.push.sendToAll(ctx, e, s.content.Push(result), nil); successes > 0 {
		return s.schedules.ClearSendOn(ctx, e.ID)
	}

	return s.deliverByMail(ctx, e, result)
}

func (s *SampleStrategy) deliverByMail(ctx context.Context, e model.ScheduleEntry, result model.LabResult) error {
	address, err := s.emails.Email(ctx, e.Recipient)
	if errors.Is(err, personaldataservice.ErrNoEmail) {
		zlog.Logger.Info().
			Str("recipient", e.Recipient).
			Msg("no device and no mail address, postponing lab result notification")
		return s.schedules.Postpone(ctx, e.ID, 24*time.Hour)
	}
	if err != nil {
		return fmt.Errorf("resolve mail address: %w", err)
	}

	payload := s.content.Email(result)
	if err := s.mailer.Send(address, email.Message{Subject: payload.Subject, Text: payload.Text, HTML: payload.HTML}); err != nil {
		zlog.Logger.Error().Err(err).Str("recipient", e.Recipient).Msg("failed to send lab result mail")
		return s.schedules.Postpone(ctx, e.ID, 24*time.Hour)
	}

	return s.schedules.Delete(ctx, e.ID)
}

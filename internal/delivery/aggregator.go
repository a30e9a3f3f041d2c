package delivery

import (
	"context"

	"github.com/wb-go/wbf/zlog"

	"github.com/hzi-braunschweig/pia-notification-service/internal/content"
	"github.com/hzi-braunschweig/pia-notification-service/internal/model"
	"github.com/hzi-braunschweig/pia-notification-service/pkg/email"
)

// AggregatorStrategy delivers the daily statistics mails. The recipient of
// these entries is a mail address, not a pseudonym, so no lookup is needed.
// A failed entry keeps its send time and is retried on the next pass.
type AggregatorStrategy struct {
	schedules ScheduleRepo
	content   content.Strategy[model.ScheduleEntry]
	mailer    EmailSender
}

// NewAggregatorStrategy creates an aggregator delivery strategy.
func NewAggregatorStrategy(
	schedules ScheduleRepo,
	contentStrategy content.Strategy[model.ScheduleEntry],
	mailer EmailSender,
) *AggregatorStrategy {
	return &AggregatorStrategy{
		schedules: schedules,
		content:   contentStrategy,
		mailer:    mailer,
	}
}

// Deliver sends one due statistics mail.
func (s *AggregatorStrategy) Deliver(ctx context.Context, e model.ScheduleEntry) error {
	payload := s.content.Email(e)

	if err := s.mailer.Send(e.Recipient, email.Message{Subject: payload.Subject, Text: payload.Text, HTML: payload.HTML}); err != nil {
		zlog.Logger.Error().Err(err).Str("recipient", e.Recipient).Msg("failed to send statistics mail")
		return err
	}

	return s.schedules.Delete(ctx, e.ID)
}

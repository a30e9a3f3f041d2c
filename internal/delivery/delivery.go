// Package delivery sends due schedule entries to participants. Each schedule
// type has its own strategy deciding between push and mail, and what happens
// to the entry after a success or failure.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wb-go/wbf/zlog"

	"github.com/hzi-braunschweig/pia-notification-service/internal/content"
	"github.com/hzi-braunschweig/pia-notification-service/internal/model"
	"github.com/hzi-braunschweig/pia-notification-service/pkg/email"
	"github.com/hzi-braunschweig/pia-notification-service/pkg/fcm"
)

// ErrUnknownType is returned when no strategy is registered for a schedule
// type.
var ErrUnknownType = errors.New("unknown schedule type")

// Strategy delivers one due schedule entry and applies the follow-up the
// outcome requires: clearing the send time, postponing or deleting the entry.
type Strategy interface {
	Deliver(ctx context.Context, e model.ScheduleEntry) error
}

// ScheduleRepo is the slice of the schedule repository the strategies need.
type ScheduleRepo interface {
	ClearSendOn(ctx context.Context, id int64) error
	Postpone(ctx context.Context, id int64, delta time.Duration) error
	PostponeByReference(ctx context.Context, referenceID string, typ model.ScheduleType, delta time.Duration) error
	Delete(ctx context.Context, id int64) error
	DeleteByReference(ctx context.Context, referenceID string, typ model.ScheduleType) error
}

// TokenRepo reads and prunes the device tokens of a participant.
type TokenRepo interface {
	TokensForRecipient(ctx context.Context, pseudonym string) ([]model.DeviceToken, error)
	Remove(ctx context.Context, token string) error
}

// PushSender sends one push message to one device token.
type PushSender interface {
	Send(ctx context.Context, token string, n fcm.Notification) (string, error)
}

// EmailSender sends one mail to one address.
type EmailSender interface {
	Send(to string, msg email.Message) error
}

// EmailResolver resolves the mail address of a participant.
type EmailResolver interface {
	Email(ctx context.Context, pseudonym string) (string, error)
}

// Registry maps schedule types to their delivery strategies.
type Registry map[model.ScheduleType]Strategy

// For returns the strategy registered for a schedule type.
func (r Registry) For(typ model.ScheduleType) (Strategy, error) {
	s, ok := r[typ]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, typ)
	}
	return s, nil
}

// pusher sends one push payload to every device of a participant. Tokens the
// provider permanently rejects are removed on the spot. Returns how many
// devices accepted the message.
type pusher struct {
	tokens TokenRepo
	sender PushSender
}

func (p *pusher) sendToAll(ctx context.Context, e model.ScheduleEntry, payload content.Push, badge *int) int {
	tokens, err := p.tokens.TokensForRecipient(ctx, e.Recipient)
	if err != nil {
		zlog.Logger.Error().Err(err).Str("recipient", e.Recipient).Msg("failed to load device tokens")
		return 0
	}

	successes := 0
	for _, t := range tokens {
		n := fcm.Notification{
			Title: payload.Title,
			Body:  payload.Body,
			Badge: badge,
			Data:  map[string]string{"notification_id": fmt.Sprintf("%d", e.ID)},
		}

		_, err := p.sender.Send(ctx, t.Token, n)
		if errors.Is(err, fcm.ErrTokenNotRegistered) {
			if err := p.tokens.Remove(ctx, t.Token); err != nil {
				zlog.Logger.Error().Err(err).Str("recipient", e.Recipient).Msg("failed to remove rejected token")
			}
			continue
		}
		if err != nil {
			zlog.Logger.Error().Err(err).
				Int64("schedule_id", e.ID).
				Str("recipient", e.Recipient).
				Msg("failed to send push")
			continue
		}

		successes++
	}

	return successes
}

package delivery

import (
	"context"
	"time"

	"github.com/hzi-braunschweig/pia-notification-service/internal/content"
	"github.com/hzi-braunschweig/pia-notification-service/internal/model"
)

// CustomStrategy delivers custom notifications. These are push-only: the
// entry is retried an hour later when no device accepted it, there is no mail
// fallback.
type CustomStrategy struct {
	schedules ScheduleRepo
	content   content.Strategy[model.ScheduleEntry]
	push      *pusher
}

// NewCustomStrategy creates a custom delivery strategy.
func NewCustomStrategy(
	schedules ScheduleRepo,
	tokens TokenRepo,
	pushSender PushSender,
	contentStrategy content.Strategy[model.ScheduleEntry],
) *CustomStrategy {
	return &CustomStrategy{
		schedules: schedules,
		content:   contentStrategy,
		push:      &pusher{tokens: tokens, sender: pushSender},
	}
}

// Deliver sends one due custom notification.
func (s *CustomStrategy) Deliver(ctx context.Context, e model.ScheduleEntry) error {
	if successes := s.push.sendToAll(ctx, e, s.content.Push(e), nil); successes > 0 {
		return s.schedules.ClearSendOn(ctx, e.ID)
	}

	// The participant may register a device later, try again in an hour.
	return s.schedules.Postpone(ctx, e.ID, time.Hour)
}

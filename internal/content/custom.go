package content

import (
	"strings"

	"github.com/hzi-braunschweig/pia-notification-service/internal/model"
)

// CustomStrategy renders custom notifications. Title and body were stored on
// the schedule entry when a researcher posted the notification.
type CustomStrategy struct{}

// NewCustomStrategy creates a custom content strategy.
func NewCustomStrategy() *CustomStrategy {
	return &CustomStrategy{}
}

// Push renders the push payload from the entry's stored texts.
func (s *CustomStrategy) Push(e model.ScheduleEntry) Push {
	return Push{
		Title: deref(e.Title),
		Body:  deref(e.Body),
	}
}

// Email renders a mail from the entry's stored texts. Custom notifications
// have no mail fallback in delivery, this is used by the direct mail blast.
func (s *CustomStrategy) Email(e model.ScheduleEntry) Email {
	body := deref(e.Body)

	return Email{
		Subject: deref(e.Title),
		Text:    body,
		HTML:    strings.ReplaceAll(body, "\n", "<br>"),
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

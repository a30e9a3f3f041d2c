package content

import (
	"fmt"

	"github.com/hzi-braunschweig/pia-notification-service/internal/model"
)

// ReminderStrategy renders questionnaire reminders. The questionnaire defines
// its own reminder texts, with separate bodies for untouched and partially
// answered instances.
type ReminderStrategy struct {
	webappURL string
}

// NewReminderStrategy creates a reminder content strategy linking into the
// given webapp.
func NewReminderStrategy(webappURL string) *ReminderStrategy {
	return &ReminderStrategy{webappURL: webappURL}
}

// Push renders the push payload for a questionnaire instance.
func (s *ReminderStrategy) Push(in model.QuestionnaireInstance) Push {
	return Push{
		Title: in.Questionnaire.Notification.Title,
		Body:  s.body(in),
	}
}

// Email renders the mail fallback for a questionnaire instance. The mail
// carries a link because it cannot open the app directly the way a push does.
func (s *ReminderStrategy) Email(in model.QuestionnaireInstance) Email {
	body := s.body(in)
	link := s.link(in)

	return Email{
		Subject: in.Questionnaire.Notification.Title,
		Text:    fmt.Sprintf("%s\n\nOpen your questionnaire here: %s", body, link),
		HTML:    fmt.Sprintf("%s<br><br><a href=%q>Open your questionnaire</a>", body, link),
	}
}

func (s *ReminderStrategy) body(in model.QuestionnaireInstance) string {
	if in.Status == model.StatusInProgress {
		return in.Questionnaire.Notification.BodyInProgress
	}
	return in.Questionnaire.Notification.BodyNew
}

func (s *ReminderStrategy) link(in model.QuestionnaireInstance) string {
	if in.Questionnaire.LinkToOverview {
		return s.webappURL + "/questionnaires"
	}
	return fmt.Sprintf("%s/questionnaire/%d/%d", s.webappURL, in.Questionnaire.ID, in.ID)
}

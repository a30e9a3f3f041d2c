package content

import (
	"fmt"

	"github.com/hzi-braunschweig/pia-notification-service/internal/model"
)

// SampleStrategy renders lab result notifications. The texts are fixed, the
// result itself stays out of the notification and is only shown in the app.
type SampleStrategy struct {
	webappURL string
}

// NewSampleStrategy creates a lab result content strategy linking into the
// given webapp.
func NewSampleStrategy(webappURL string) *SampleStrategy {
	return &SampleStrategy{webappURL: webappURL}
}

// Push renders the push payload for an analyzed lab result.
func (s *SampleStrategy) Push(model.LabResult) Push {
	return Push{
		Title: "New lab results",
		Body:  "One of your samples has been analyzed. Open the app to view the result.",
	}
}

// Email renders the mail fallback for an analyzed lab result.
func (s *SampleStrategy) Email(lr model.LabResult) Email {
	link := fmt.Sprintf("%s/laboratory-results/%s", s.webappURL, lr.ID)

	return Email{
		Subject: "New lab results",
		Text:    "One of your samples has been analyzed.\n\nView your result here: " + link,
		HTML:    fmt.Sprintf("One of your samples has been analyzed.<br><br><a href=%q>View your result</a>", link),
	}
}

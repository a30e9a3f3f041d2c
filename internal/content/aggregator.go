package content

import (
	"strings"

	"github.com/hzi-braunschweig/pia-notification-service/internal/model"
)

// AggregatorStrategy renders the daily statistics mails sent to study teams.
// These entries are mail-only, their recipient is an address instead of a
// pseudonym.
type AggregatorStrategy struct{}

// NewAggregatorStrategy creates an aggregator content strategy.
func NewAggregatorStrategy() *AggregatorStrategy {
	return &AggregatorStrategy{}
}

// Push is never delivered for aggregator entries and renders empty.
func (s *AggregatorStrategy) Push(model.ScheduleEntry) Push {
	return Push{}
}

// Email renders the statistics mail from the entry's stored texts.
func (s *AggregatorStrategy) Email(e model.ScheduleEntry) Email {
	body := deref(e.Body)

	return Email{
		Subject: deref(e.Title),
		Text:    body,
		HTML:    strings.ReplaceAll(body, "\n", "<br>"),
	}
}

package model

import "time"

// ScheduleType identifies which delivery strategy handles a schedule entry.
type ScheduleType string

const (
	TypeReminder        ScheduleType = "reminder"
	TypeSample          ScheduleType = "sample"
	TypeCustom          ScheduleType = "custom"
	TypeAggregatorEmail ScheduleType = "aggregator_email"
)

// ScheduleEntry is one pending notification in the schedule table.
//
// SendOn is nil once the entry has been delivered by push; the row then only
// serves the single-use in-app fetch and is no longer picked up by the
// dispatcher. Title and Body are set for custom and aggregator entries only,
// every other type renders its content from the referenced domain object.
type ScheduleEntry struct {
	ID          int64        `json:"id"`
	Recipient   string       `json:"recipient"`
	SendOn      *time.Time   `json:"send_on"`
	Type        ScheduleType `json:"type"`
	ReferenceID string       `json:"reference_id"`
	Title       *string      `json:"title"`
	Body        *string      `json:"body"`
}

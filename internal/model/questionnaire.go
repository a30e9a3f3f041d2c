package model

import "time"

// InstanceStatus is the lifecycle state of a questionnaire instance.
type InstanceStatus string

const (
	StatusActive        InstanceStatus = "active"
	StatusInProgress    InstanceStatus = "in_progress"
	StatusReleasedOnce  InstanceStatus = "released_once"
	StatusReleasedTwice InstanceStatus = "released_twice"
	StatusExpired       InstanceStatus = "expired"
)

// Terminal reports whether the instance can no longer be answered. Reminders
// for terminal instances are abandoned.
func (s InstanceStatus) Terminal() bool {
	return s == StatusReleasedOnce || s == StatusReleasedTwice || s == StatusExpired
}

// CycleUnit is the cadence of a recurring questionnaire.
type CycleUnit string

const (
	CycleHour        CycleUnit = "hour"
	CycleDay         CycleUnit = "day"
	CycleWeek        CycleUnit = "week"
	CycleMonth       CycleUnit = "month"
	CycleSpontaneous CycleUnit = "spontaneous"
)

// NotificationSettings holds the reminder cadence of one questionnaire version.
type NotificationSettings struct {
	Tries          int       `json:"notification_tries"`
	Interval       int       `json:"notification_interval"`
	IntervalUnit   string    `json:"notification_interval_unit"` // "days" or "hours"
	Title          string    `json:"notification_title"`
	BodyNew        string    `json:"notification_body_new"`
	BodyInProgress string    `json:"notification_body_in_progress"`
	CycleUnit      CycleUnit `json:"cycle_unit"`
}

// Questionnaire is the subset of questionnaire detail the notification
// pipeline needs: reminder texts and the question set after condition
// evaluation.
type Questionnaire struct {
	ID             int    `json:"id"`
	Version        int    `json:"version"`
	Name           string `json:"name"`
	LinkToOverview bool   `json:"link_to_overview"` // link the overview page instead of the instance
	Notification   struct {
		Title          string `json:"title"`
		BodyNew        string `json:"body_new"`
		BodyInProgress string `json:"body_in_progress"`
	} `json:"notification"`
	Questions []Question `json:"questions"`
}

// Question is an opaque member of the computed question set. Only its
// presence matters here: an empty set means all conditions are unmet.
type Question struct {
	ID int `json:"id"`
}

// QuestionnaireInstance is one issued occurrence of a questionnaire for one
// participant, as served by the questionnaire service.
type QuestionnaireInstance struct {
	ID            int            `json:"id"`
	Pseudonym     string         `json:"pseudonym"`
	Status        InstanceStatus `json:"status"`
	DateOfIssue   time.Time      `json:"date_of_issue"`
	Questionnaire Questionnaire  `json:"questionnaire"`
}

// UnscheduledInstance is a row of the local instance table that has no
// reminder schedule yet.
type UnscheduledInstance struct {
	ID                   int
	QuestionnaireID      int
	QuestionnaireVersion int
	Pseudonym            string
	DateOfIssue          time.Time
}

// Answer is a single stored answer of a questionnaire instance.
type Answer struct {
	AnswerOptionID int
	Value          string
}

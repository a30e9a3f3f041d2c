package model

// LabResultStatus is the analysis state of a sample.
type LabResultStatus string

const (
	LabResultNew      LabResultStatus = "new"
	LabResultSampled  LabResultStatus = "sampled"
	LabResultAnalyzed LabResultStatus = "analyzed"
	LabResultInactive LabResultStatus = "inactive"
)

// LabResult is a sample tracked for one participant.
type LabResult struct {
	ID            string          `json:"id"`
	Pseudonym     string          `json:"pseudonym"`
	Status        LabResultStatus `json:"status"`
	DummySampleID string          `json:"dummy_sample_id"`
}

// ParticipantSettings are the per-participant notification preferences.
type ParticipantSettings struct {
	Pseudonym             string
	LabResultsEnabled     bool   // participant consented to lab result notifications
	DailyNotificationTime string // "HH:MM" in the service timezone, empty means service default
}

// Study groups participants and carries the report mail targets.
type Study struct {
	Name     string
	PMEmail  string
	HubEmail string
}

// StudyStats is the daily aggregation for one study: how many participants
// gave notable answers and how many left questionnaires unfinished within
// the last day.
type StudyStats struct {
	Study          string
	NotableAnswers int
	NotFinished    int
}

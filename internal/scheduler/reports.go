package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wb-go/wbf/zlog"

	"github.com/hzi-braunschweig/pia-notification-service/internal/model"
)

// ContactRepo is the slice of the contact repository the report jobs need.
type ContactRepo interface {
	DailyStats(ctx context.Context) ([]model.StudyStats, error)
	StudiesWithPMEmail(ctx context.Context) ([]model.Study, error)
	StudiesWithHubEmail(ctx context.Context) ([]model.Study, error)
	UpsertNotFilledOut(ctx context.Context, pseudonym string, instanceID int) error
}

// LabStatsSource reads yesterday's sample activity per study.
type LabStatsSource interface {
	SampledYesterday(ctx context.Context, study string) (int, error)
	AnalyzedYesterday(ctx context.Context, study string) (int, error)
	AnalyzedYesterdaySamples(ctx context.Context, study string) ([]model.LabResult, error)
}

// OverdueSource reads instances that went past their deadline unanswered.
type OverdueSource interface {
	OverdueUnansweredInstances(ctx context.Context) ([]model.UnscheduledInstance, error)
}

// CustomScheduleCreator inserts entries that carry their own content.
type CustomScheduleCreator interface {
	CreateCustom(ctx context.Context, e model.ScheduleEntry) (int64, error)
}

// Reporter builds the daily report mails for study teams. The mails are not
// sent directly: each becomes a schedule entry due immediately, so the
// dispatcher handles retry like for any other notification.
type Reporter struct {
	contacts  ContactRepo
	labStats  LabStatsSource
	overdue   OverdueSource
	schedules CustomScheduleCreator
}

// NewReporter creates a report job.
func NewReporter(contacts ContactRepo, labStats LabStatsSource, overdue OverdueSource, schedules CustomScheduleCreator) *Reporter {
	return &Reporter{
		contacts:  contacts,
		labStats:  labStats,
		overdue:   overdue,
		schedules: schedules,
	}
}

// RunSampleReport mails yesterday's sample counts to every study team and lab
// hub that configured a report address. Studies without activity get no mail.
func (r *Reporter) RunSampleReport(ctx context.Context) {
	pmStudies, err := r.contacts.StudiesWithPMEmail(ctx)
	if err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to load studies for sample report")
		return
	}
	for _, study := range pmStudies {
		r.enqueueSampleReport(ctx, study.Name, study.PMEmail)
	}

	hubStudies, err := r.contacts.StudiesWithHubEmail(ctx)
	if err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to load hub studies for sample report")
		return
	}
	for _, study := range hubStudies {
		r.enqueueHubReport(ctx, study.Name, study.HubEmail)
	}
}

func (r *Reporter) enqueueSampleReport(ctx context.Context, study, address string) {
	sampled, err := r.labStats.SampledYesterday(ctx, study)
	if err != nil {
		zlog.Logger.Error().Err(err).Str("study", study).Msg("failed to count sampled results")
		return
	}
	analyzed, err := r.labStats.AnalyzedYesterday(ctx, study)
	if err != nil {
		zlog.Logger.Error().Err(err).Str("study", study).Msg("failed to count analyzed results")
		return
	}
	if sampled == 0 && analyzed == 0 {
		return
	}

	title := fmt.Sprintf("Daily sample report for %s", study)
	body := fmt.Sprintf("Samples taken yesterday: %d\nSamples analyzed yesterday: %d", sampled, analyzed)

	r.enqueueMail(ctx, address, title, body)
}

// enqueueHubReport builds the lab hub variant of the sample report: besides
// the counts it lists every analyzed sample with its dummy id.
func (r *Reporter) enqueueHubReport(ctx context.Context, study, address string) {
	samples, err := r.labStats.AnalyzedYesterdaySamples(ctx, study)
	if err != nil {
		zlog.Logger.Error().Err(err).Str("study", study).Msg("failed to list analyzed samples")
		return
	}
	if len(samples) == 0 {
		return
	}

	participants := make(map[string]bool, len(samples))
	var list strings.Builder
	for _, s := range samples {
		participants[s.Pseudonym] = true
		fmt.Fprintf(&list, "%s (dummy id: %s)\n", s.ID, s.DummySampleID)
	}

	title := fmt.Sprintf("Daily analyzed sample report for %s", study)
	body := fmt.Sprintf(
		"Samples analyzed yesterday: %d\nParticipants concerned: %d\n\n%s",
		len(samples), len(participants), list.String(),
	)

	r.enqueueMail(ctx, address, title, body)
}

// RunQuestionnaireStats mails yesterday's contact aggregation to the project
// teams: how many participants gave notable answers and how many left
// questionnaires unanswered.
func (r *Reporter) RunQuestionnaireStats(ctx context.Context) {
	stats, err := r.contacts.DailyStats(ctx)
	if err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to load daily contact stats")
		return
	}
	if len(stats) == 0 {
		return
	}

	studies, err := r.contacts.StudiesWithPMEmail(ctx)
	if err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to load studies for contact report")
		return
	}

	addresses := make(map[string]string, len(studies))
	for _, s := range studies {
		addresses[s.Name] = s.PMEmail
	}

	for _, s := range stats {
		address, ok := addresses[s.Study]
		if !ok {
			continue
		}

		title := fmt.Sprintf("Daily questionnaire report for %s", s.Study)
		body := fmt.Sprintf(
			"Participants with notable answers yesterday: %d\nParticipants with unanswered questionnaires: %d",
			s.NotableAnswers, s.NotFinished,
		)

		r.enqueueMail(ctx, address, title, body)
	}
}

// RunNotFilledOutCheck records every instance that went past its answering
// deadline during the last day. The records feed the next questionnaire
// report.
func (r *Reporter) RunNotFilledOutCheck(ctx context.Context) {
	instances, err := r.overdue.OverdueUnansweredInstances(ctx)
	if err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to load overdue instances")
		return
	}

	for _, in := range instances {
		if err := r.contacts.UpsertNotFilledOut(ctx, in.Pseudonym, in.ID); err != nil {
			zlog.Logger.Error().Err(err).
				Int("instance_id", in.ID).
				Msg("failed to record unanswered instance")
		}
	}
}

func (r *Reporter) enqueueMail(ctx context.Context, address, title, body string) {
	now := time.Now()
	entry := model.ScheduleEntry{
		Recipient: address,
		SendOn:    &now,
		Type:      model.TypeAggregatorEmail,
		Title:     &title,
		Body:      &body,
	}

	if _, err := r.schedules.CreateCustom(ctx, entry); err != nil {
		zlog.Logger.Error().Err(err).Str("recipient", address).Msg("failed to enqueue report mail")
	}
}

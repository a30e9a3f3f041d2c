package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/wb-go/wbf/zlog"
)

// Jobs wires the periodic jobs into one cron scheduler. The schedule matches
// the rhythm of a study day: reminders are created hourly, dispatch runs
// every ten minutes and the report mails go out early in the morning.
type Jobs struct {
	cron       *cron.Cron
	creator    *Creator
	dispatcher *Dispatcher
	reporter   *Reporter
}

// NewJobs creates the cron wiring. All cron expressions are evaluated in the
// given location.
func NewJobs(loc *time.Location, creator *Creator, dispatcher *Dispatcher, reporter *Reporter) *Jobs {
	return &Jobs{
		cron:       cron.New(cron.WithLocation(loc)),
		creator:    creator,
		dispatcher: dispatcher,
		reporter:   reporter,
	}
}

// Start registers and starts all jobs. The context bounds every job run.
func (j *Jobs) Start(ctx context.Context) error {
	specs := map[string]func(){
		"10 * * * *": func() { j.creator.Run(ctx) },
		"*/10 * * * *": func() {
			j.dispatcher.Run(ctx, time.Now())
		},
		"0 4 * * *": func() {
			j.reporter.RunNotFilledOutCheck(ctx)
			j.reporter.RunSampleReport(ctx)
			j.reporter.RunQuestionnaireStats(ctx)
		},
	}

	for spec, job := range specs {
		if _, err := j.cron.AddFunc(spec, job); err != nil {
			return err
		}
	}

	j.cron.Start()
	zlog.Logger.Info().Msg("scheduler jobs started")

	return nil
}

// Stop stops the cron scheduler and waits for running jobs to finish.
func (j *Jobs) Stop() {
	<-j.cron.Stop().Done()
	zlog.Logger.Info().Msg("scheduler jobs stopped")
}

package scheduler

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/wb-go/wbf/zlog"

	"github.com/hzi-braunschweig/pia-notification-service/internal/delivery"
	"github.com/hzi-braunschweig/pia-notification-service/internal/model"
)

// DueScheduleSource reads the entries whose send time has passed.
type DueScheduleSource interface {
	DueSchedules(ctx context.Context, now time.Time) ([]model.ScheduleEntry, error)
}

// Dispatcher delivers due schedule entries through the registered strategies.
// Deliveries run on a bounded worker pool behind a provider rate limit, and a
// failed entry never stops the others.
type Dispatcher struct {
	schedules   DueScheduleSource
	registry    delivery.Registry
	limiter     *rate.Limiter
	maxInFlight int
}

// NewDispatcher creates a dispatcher. ratePerSecond caps how many provider
// sends are started per second, maxInFlight how many run concurrently.
func NewDispatcher(schedules DueScheduleSource, registry delivery.Registry, ratePerSecond, maxInFlight int) *Dispatcher {
	if maxInFlight <= 0 {
		maxInFlight = 1
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if ratePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(ratePerSecond), ratePerSecond)
	}

	return &Dispatcher{
		schedules:   schedules,
		registry:    registry,
		limiter:     limiter,
		maxInFlight: maxInFlight,
	}
}

// Run delivers everything due at the given time and returns when the pass is
// complete.
func (d *Dispatcher) Run(ctx context.Context, now time.Time) {
	entries, err := d.schedules.DueSchedules(ctx, now)
	if err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to load due schedules")
		return
	}
	if len(entries) == 0 {
		return
	}

	zlog.Logger.Info().Int("count", len(entries)).Msg("dispatching due notifications")

	jobs := make(chan model.ScheduleEntry)
	var wg sync.WaitGroup

	for i := 0; i < d.maxInFlight; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for e := range jobs {
				d.deliver(ctx, e)
			}
		}()
	}

	for _, e := range entries {
		select {
		case jobs <- e:
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return
		}
	}
	close(jobs)
	wg.Wait()
}

func (d *Dispatcher) deliver(ctx context.Context, e model.ScheduleEntry) {
	strategy, err := d.registry.For(e.Type)
	if err != nil {
		zlog.Logger.Error().Err(err).Int64("schedule_id", e.ID).Msg("no strategy for schedule entry")
		return
	}

	if err := d.limiter.Wait(ctx); err != nil {
		return
	}

	if err := strategy.Deliver(ctx, e); err != nil {
		zlog.Logger.Error().Err(err).
			Int64("schedule_id", e.ID).
			Str("type", string(e.Type)).
			Msg("failed to deliver notification")
	}
}

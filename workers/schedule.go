package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

func newScheduler(clock clockwork.Clock) (gocron.Scheduler, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	sched, err := gocron.NewScheduler(gocron.WithClock(clock))
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	return sched, nil
}

// runEvery registers task as a singleton interval job that also fires at start,
// starts sched and shuts it down once ctx ends.
func runEvery(ctx context.Context, sched gocron.Scheduler, name string, interval time.Duration, task func(), log logrus.FieldLogger) error {
	_, err := sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(task),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	sched.Start()

	go func() {
		<-ctx.Done()
		if err := sched.Shutdown(); err != nil {
			log.WithError(err).WithField("job", name).Warn("scheduler shutdown")
		}
	}()
	return nil
}

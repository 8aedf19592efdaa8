package workers

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"buildinpublic-hub/services"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSweeper struct {
	runs atomic.Int32
	err  error
}

func (c *countingSweeper) Sweep(context.Context) (services.SweepReport, error) {
	c.runs.Add(1)
	return services.SweepReport{Synced: 1}, c.err
}

func TestSparSweeper_RunsOnInterval(t *testing.T) {
	log, _ := test.NewNullLogger()
	clock := clockwork.NewFakeClock()
	sweeper := &countingSweeper{}

	s, err := NewSparSweeper(sweeper, time.Minute, clock, log)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Start(ctx))

	require.Eventually(t, func() bool { return sweeper.runs.Load() >= 1 }, 2*time.Second, 10*time.Millisecond,
		"first sweep runs immediately")

	require.Eventually(t, func() bool {
		clock.Advance(time.Minute)
		return sweeper.runs.Load() >= 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSparSweeper_RunOnceLogsFailure(t *testing.T) {
	log, hook := test.NewNullLogger()
	sweeper := &countingSweeper{err: errors.New("db down")}

	s, err := NewSparSweeper(sweeper, time.Minute, clockwork.NewFakeClock(), log)
	require.NoError(t, err)

	s.RunOnce(context.Background())
	assert.EqualValues(t, 1, sweeper.runs.Load())
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.RunOnce(ctx)
	assert.EqualValues(t, 1, sweeper.runs.Load(), "cancelled context skips the sweep")
}

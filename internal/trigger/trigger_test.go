package trigger

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/vacancy-crawler/internal/vacancy"
)

type fakeStarter struct {
	calls atomic.Int64
	err   error
}

func (s *fakeStarter) Start() (string, error) {
	n := s.calls.Add(1)
	if s.err != nil {
		return "", s.err
	}
	return fmt.Sprintf("run-%d", n), nil
}

func TestNewRejectsBadSchedule(t *testing.T) {
	t.Parallel()

	_, err := New(Config{Schedule: "every tuesday", Starter: &fakeStarter{}})
	require.Error(t, err)

	_, err = New(Config{Schedule: "0 6 * * *"})
	require.Error(t, err, "starter is required")
}

func TestStartRunsOnStartup(t *testing.T) {
	t.Parallel()

	starter := &fakeStarter{}
	trig, err := New(Config{RunOnStartup: true, Starter: starter})
	require.NoError(t, err)

	trig.Start()
	require.NoError(t, trig.Stop(context.Background()))
	require.Equal(t, int64(1), starter.calls.Load())
}

func TestStartWithoutStartupRun(t *testing.T) {
	t.Parallel()

	starter := &fakeStarter{}
	trig, err := New(Config{Schedule: "0 6 * * 1", Starter: starter})
	require.NoError(t, err)

	trig.Start()
	require.NoError(t, trig.Stop(context.Background()))
	require.Zero(t, starter.calls.Load())
}

func TestCronFiresRepeatedly(t *testing.T) {
	t.Parallel()

	starter := &fakeStarter{}
	trig, err := New(Config{Schedule: "@every 1s", Starter: starter})
	require.NoError(t, err)

	trig.Start()
	defer trig.Stop(context.Background()) //nolint:errcheck // test cleanup
	require.Eventually(t, func() bool { return starter.calls.Load() >= 2 }, 5*time.Second, 50*time.Millisecond)
}

func TestFireSkipsActiveRun(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	starter := &fakeStarter{err: vacancy.ErrRunInProgress}
	trig, err := New(Config{Starter: starter, Logger: zap.New(core)})
	require.NoError(t, err)

	require.False(t, trig.fire("cron"))
	require.Equal(t, 1, logs.FilterMessage("run already in progress, skipping").Len())
}

func TestFireLogsStartErrors(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	starter := &fakeStarter{err: errors.New("id generator exhausted")}
	trig, err := New(Config{Starter: starter, Logger: zap.New(core)})
	require.NoError(t, err)

	require.False(t, trig.fire("startup"))
	require.Equal(t, 1, logs.FilterMessage("start run").Len())

	starter.err = nil
	require.True(t, trig.fire("startup"))
}

package scheduler_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeisme/cloudvault/pkg/scheduler"
)

func newScheduler(t *testing.T) *scheduler.Scheduler {
	t.Helper()

	s, err := scheduler.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Stop() })

	return s
}

func TestAddCronRejectsDuplicatesAndBadExpr(t *testing.T) {
	s := newScheduler(t)
	noop := func(context.Context) error { return nil }

	require.NoError(t, s.AddCron("a", "0 30 3 * * *", noop))
	require.NoError(t, s.AddCron("b", "*/5 * * * *", noop))
	assert.Error(t, s.AddCron("a", "0 * * * * *", noop))
	assert.Error(t, s.AddCron("bad", "not a cron", noop))

	infos := s.Infos()
	require.Len(t, infos, 2)
	assert.Equal(t, "a", infos[0].Name)
	assert.Equal(t, scheduler.StatusScheduled, infos[0].Status)
}

func TestRunNowRecordsSuccessAndFailure(t *testing.T) {
	s := newScheduler(t)

	var calls atomic.Int32

	require.NoError(t, s.AddCron("ok", "0 0 0 1 1 *", func(context.Context) error {
		calls.Add(1)

		return nil
	}))
	require.NoError(t, s.AddCron("boom", "0 0 0 1 1 *", func(context.Context) error {
		return errors.New("db down")
	}))
	require.NoError(t, s.AddCron("panic", "0 0 0 1 1 *", func(context.Context) error {
		panic("oops")
	}))

	s.Start()

	for _, name := range []string{"ok", "boom", "panic"} {
		require.NoError(t, s.RunNow(name))
	}

	assert.Eventually(t, func() bool {
		for _, name := range []string{"ok", "boom", "panic"} {
			info, err := s.Info(name)
			if err != nil || info.Runs != 1 {
				return false
			}
		}

		return true
	}, 3*time.Second, 20*time.Millisecond)

	ok, _ := s.Info("ok")
	assert.Equal(t, scheduler.StatusScheduled, ok.Status)
	assert.False(t, ok.LastSuccess.IsZero())
	assert.Equal(t, int32(1), calls.Load())

	boom, _ := s.Info("boom")
	assert.Equal(t, scheduler.StatusError, boom.Status)
	assert.Equal(t, "db down", boom.Error)
	assert.Equal(t, int64(1), boom.Failures)

	p, _ := s.Info("panic")
	assert.Contains(t, p.Error, "panic: oops")
}

func TestUnknownJob(t *testing.T) {
	s := newScheduler(t)

	assert.ErrorIs(t, s.RunNow("missing"), scheduler.ErrJobNotFound)
	assert.ErrorIs(t, s.Remove("missing"), scheduler.ErrJobNotFound)

	_, err := s.Info("missing")
	assert.ErrorIs(t, err, scheduler.ErrJobNotFound)
}

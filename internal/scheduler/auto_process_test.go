package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/muzz-introductions/internal/logger"
	"github.com/oggyb/muzz-introductions/internal/service/matching"
)

type fakeProcessor struct {
	calls atomic.Int32
	block chan struct{}
	err   error
}

func (f *fakeProcessor) AutoProcess(_ context.Context, _ time.Time) (matching.AutoReport, error) {
	f.calls.Add(1)
	if f.block != nil {
		<-f.block
	}
	return matching.AutoReport{Failed: 1}, f.err
}

func TestRunOnce(t *testing.T) {
	p := &fakeProcessor{}
	s := NewAutoProcessScheduler(p, "@every 1h", logger.Discard())

	rep, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Failed)
	assert.EqualValues(t, 1, p.calls.Load())
}

func TestRunOnce_SkipsOverlap(t *testing.T) {
	p := &fakeProcessor{block: make(chan struct{})}
	s := NewAutoProcessScheduler(p, "@every 1h", logger.Discard())

	done := make(chan struct{})
	go func() {
		_, _ = s.RunOnce(context.Background())
		close(done)
	}()
	require.Eventually(t, func() bool { return p.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	rep, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, rep.Failed)
	assert.EqualValues(t, 1, p.calls.Load())

	close(p.block)
	<-done
}

func TestStart_RunsOnSchedule(t *testing.T) {
	p := &fakeProcessor{err: errors.New("boom")}
	s := NewAutoProcessScheduler(p, "* * * * * *", logger.Discard())
	require.NoError(t, s.Start())
	defer s.Stop()

	assert.Eventually(t, func() bool { return p.calls.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)
}

func TestStart_InvalidExpression(t *testing.T) {
	s := NewAutoProcessScheduler(&fakeProcessor{}, "not a cron", logger.Discard())
	assert.Error(t, s.Start())
}

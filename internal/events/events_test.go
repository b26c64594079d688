package events_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/muzz-introductions/internal/config"
	"github.com/oggyb/muzz-introductions/internal/events"
	"github.com/oggyb/muzz-introductions/internal/logger"
)

func setupRedisSink(t *testing.T, capacity int64) (*events.RedisSink, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(func() { mr.Close() })

	cfg := config.New()
	cfg.Redis.Addr = mr.Addr()
	cfg.Redis.EventsKey = "test:events"
	cfg.Redis.EventsCap = capacity

	client := events.NewRedisClient(cfg)
	t.Cleanup(func() { client.Close() })
	return events.NewRedisSink(client, cfg), mr
}

func TestRedisSink_WriteAndRecent(t *testing.T) {
	sink, _ := setupRedisSink(t, 100)
	ctx := context.Background()
	require.NoError(t, sink.Ping(ctx))

	require.NoError(t, sink.Write(ctx, events.Event{Type: events.TypeRequested, UserID: "u1", MatchID: "r1"}))
	require.NoError(t, sink.Write(ctx, events.Event{Type: events.TypeConfirmed, MatchID: "p1"}))

	got, err := sink.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, events.TypeConfirmed, got[0].Type, "newest first")
	assert.Equal(t, "u1", got[1].UserID)
}

func TestRedisSink_TrimsToCap(t *testing.T) {
	sink, mr := setupRedisSink(t, 3)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, sink.Write(ctx, events.Event{Type: events.TypeChoices}))
	}
	list, err := mr.List("test:events")
	require.NoError(t, err)
	assert.Len(t, list, 3)
}

func TestEmitter_DeliversAndFlushesOnClose(t *testing.T) {
	rec := &events.Recorder{}
	em := events.NewEmitter(rec, 16, logger.Discard())

	em.Emit(events.Event{Type: events.TypeRequested})
	em.Emit(events.Event{Type: events.TypeFailed})
	em.Close()

	assert.Equal(t, []string{events.TypeRequested, events.TypeFailed}, rec.Types())
	assert.False(t, rec.Events()[0].At.IsZero(), "timestamp filled in")

	// emitting after close is a counted drop, never a panic
	em.Emit(events.Event{Type: events.TypeFinished})
	assert.EqualValues(t, 1, em.Dropped())
}

type blockingSink struct {
	release chan struct{}
	once    sync.Once
	entered chan struct{}
}

func (b *blockingSink) Write(ctx context.Context, _ events.Event) error {
	b.once.Do(func() { close(b.entered) })
	<-b.release
	return nil
}

func TestEmitter_NeverBlocksCaller(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{}), entered: make(chan struct{})}
	var drops int
	em := events.NewEmitter(sink, 1, logger.Discard(), events.WithDropHook(func() { drops++ }))

	em.Emit(events.Event{Type: "first"})
	<-sink.entered // worker is now stuck inside the sink

	done := make(chan struct{})
	go func() {
		em.Emit(events.Event{Type: "queued"})
		em.Emit(events.Event{Type: "overflow"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked on a slow sink")
	}
	assert.EqualValues(t, 1, em.Dropped())
	assert.Equal(t, 1, drops)

	close(sink.release)
	em.Close()
}

type failingSink struct{}

func (failingSink) Write(context.Context, events.Event) error { return errors.New("redis down") }

func TestEmitter_SinkFailureIsSwallowed(t *testing.T) {
	em := events.NewEmitter(failingSink{}, 4, logger.Discard())
	em.Emit(events.Event{Type: events.TypeRequested})
	em.Close()
	assert.Zero(t, em.Dropped())
}

func TestEmitter_NilIsNoop(t *testing.T) {
	var em *events.Emitter
	em.Emit(events.Event{Type: "x"})
	em.Close()
}

package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockReaper struct {
	ReapStaleFunc func(ctx context.Context, staleAfter time.Duration) (int, error)
	calls         int32
}

func (m *mockReaper) ReapStale(ctx context.Context, staleAfter time.Duration) (int, error) {
	atomic.AddInt32(&m.calls, 1)
	if m.ReapStaleFunc != nil {
		return m.ReapStaleFunc(ctx, staleAfter)
	}
	return 0, nil
}

func TestStaleReaper_SweepsOnStartAndInterval(t *testing.T) {
	var seen time.Duration
	var mu sync.Mutex
	reaper := &mockReaper{ReapStaleFunc: func(ctx context.Context, staleAfter time.Duration) (int, error) {
		mu.Lock()
		seen = staleAfter
		mu.Unlock()
		return 2, nil
	}}
	w := NewStaleReaper(StaleReaperConfig{Interval: 20 * time.Millisecond, StaleAfter: time.Hour}, reaper, zap.NewNop())

	require.NoError(t, w.Start(context.Background()))
	require.Eventually(t, func() bool { return atomic.LoadInt32(&reaper.calls) >= 3 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, w.Stop())

	mu.Lock()
	assert.Equal(t, time.Hour, seen)
	mu.Unlock()
	assert.Equal(t, 2*int(atomic.LoadInt32(&reaper.calls)), w.Released())

	calls := atomic.LoadInt32(&reaper.calls)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, calls, atomic.LoadInt32(&reaper.calls), "no sweeps after Stop")
}

func TestStaleReaper_ErrorsDoNotStopTheLoop(t *testing.T) {
	reaper := &mockReaper{ReapStaleFunc: func(ctx context.Context, staleAfter time.Duration) (int, error) {
		return 0, errors.New("database is locked")
	}}
	w := NewStaleReaper(StaleReaperConfig{Interval: 10 * time.Millisecond, StaleAfter: time.Minute}, reaper, zap.NewNop())

	require.NoError(t, w.Start(context.Background()))
	require.Eventually(t, func() bool { return atomic.LoadInt32(&reaper.calls) >= 3 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, w.Stop())
	assert.Zero(t, w.Released())
}

func TestStaleReaper_Lifecycle(t *testing.T) {
	w := NewStaleReaper(StaleReaperConfig{Interval: time.Hour, StaleAfter: time.Minute}, &mockReaper{}, zap.NewNop())

	assert.NoError(t, w.Stop(), "stop before start is a no-op")
	require.NoError(t, w.Start(context.Background()))
	assert.Error(t, w.Start(context.Background()))
	require.NoError(t, w.Stop())
	require.NoError(t, w.Start(context.Background()), "restart after stop")
	require.NoError(t, w.Stop())

	bad := NewStaleReaper(StaleReaperConfig{}, &mockReaper{}, zap.NewNop())
	assert.Error(t, bad.Start(context.Background()))
}

type recordingWorker struct {
	name     string
	startErr error
	started  bool
	stopped  bool
	ctx      context.Context
}

func (w *recordingWorker) Start(ctx context.Context) error {
	if w.startErr != nil {
		return w.startErr
	}
	w.started = true
	w.ctx = ctx
	return nil
}

func (w *recordingWorker) Stop() error {
	w.stopped = true
	return nil
}

func (w *recordingWorker) Name() string { return w.name }

func TestManager_StartStop(t *testing.T) {
	m := NewManager(zap.NewNop())
	ok := &recordingWorker{name: "ok"}
	broken := &recordingWorker{name: "broken", startErr: errors.New("nope")}
	m.Register(ok)
	m.Register(broken)
	assert.Equal(t, 2, m.WorkerCount())

	require.NoError(t, m.StartAll(context.Background()))
	assert.True(t, m.IsRunning())
	assert.True(t, ok.started)
	assert.False(t, broken.started)
	assert.Error(t, m.StartAll(context.Background()))

	require.NoError(t, m.StopAll())
	assert.False(t, m.IsRunning())
	assert.True(t, ok.stopped)
	assert.ErrorIs(t, ok.ctx.Err(), context.Canceled)
	assert.NoError(t, m.StopAll())
}

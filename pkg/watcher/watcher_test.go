package watcher

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"evmarket/pkg/market"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockRefresher struct {
	mock.Mock
}

func (m *MockRefresher) Reload(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

type MockProber struct {
	mock.Mock
}

func (m *MockProber) Latency(ctx context.Context) (time.Duration, error) {
	args := m.Called(ctx)
	return args.Get(0).(time.Duration), args.Error(1)
}

func TestSubscribeUnsubscribe(t *testing.T) {
	w := NewWatcher(new(MockRefresher), nil, time.Second)
	sub := w.Subscribe()
	assert.NotNil(t, sub)

	w.mu.RLock()
	assert.Equal(t, 1, len(w.subscribers))
	w.mu.RUnlock()

	w.Unsubscribe(sub)
	w.mu.RLock()
	assert.Equal(t, 0, len(w.subscribers))
	w.mu.RUnlock()
}

func TestRefresh(t *testing.T) {
	refresher := new(MockRefresher)
	prober := new(MockProber)
	refresher.On("Reload", mock.Anything).Return(nil).Once()
	prober.On("Latency", mock.Anything).Return(12*time.Millisecond, nil).Once()

	w := NewWatcher(refresher, prober, time.Second)
	sub := w.Subscribe()
	w.refresh(context.Background())

	refresher.AssertExpectations(t)
	prober.AssertExpectations(t)
	assert.Equal(t, []time.Duration{12 * time.Millisecond}, w.Latencies())

	at, err := w.LastRun()
	assert.NoError(t, err)
	assert.False(t, at.IsZero())

	seen := map[EventType]bool{}
	timeout := time.After(time.Second)
	for len(seen) < 2 {
		select {
		case ev := <-sub:
			seen[ev.Type] = true
		case <-timeout:
			t.Fatalf("Timed out waiting for events, got %v", seen)
		}
	}
	assert.True(t, seen[EventRefreshed])
	assert.True(t, seen[EventLatencyUpdated])
}

func TestRefreshFailureIsReported(t *testing.T) {
	refresher := new(MockRefresher)
	refresher.On("Reload", mock.Anything).Return(errors.New("load: rpc down")).Once()

	w := NewWatcher(refresher, nil, time.Second)
	sub := w.Subscribe()
	w.refresh(context.Background())

	_, err := w.LastRun()
	assert.EqualError(t, err, "load: rpc down")

	select {
	case ev := <-sub:
		require.Equal(t, EventRefreshed, ev.Type)
		assert.Equal(t, "load: rpc down", ev.Data.(RefreshResult).Err)
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for refresh event")
	}
}

func TestRefreshSkipsWhenNotConnected(t *testing.T) {
	refresher := new(MockRefresher)
	notConnected := fmt.Errorf("load: %w", market.ErrNotConnected)
	refresher.On("Reload", mock.Anything).Return(notConnected).Once()

	w := NewWatcher(refresher, nil, time.Second)
	sub := w.Subscribe()
	w.refresh(context.Background())

	at, err := w.LastRun()
	assert.True(t, at.IsZero())
	assert.NoError(t, err)
	assert.Len(t, sub, 0)
}

func TestLatencyHistoryIsBounded(t *testing.T) {
	prober := new(MockProber)
	prober.On("Latency", mock.Anything).Return(time.Millisecond, nil)
	w := NewWatcher(new(MockRefresher), prober, time.Second)

	for i := 0; i < maxSamples+10; i++ {
		w.probe(context.Background())
	}
	assert.Len(t, w.Latencies(), maxSamples)
}

func TestProbeFailureRecordsNothing(t *testing.T) {
	prober := new(MockProber)
	prober.On("Latency", mock.Anything).Return(time.Duration(0), errors.New("timeout"))
	w := NewWatcher(new(MockRefresher), prober, time.Second)

	w.probe(context.Background())
	assert.Empty(t, w.Latencies())
}

func TestPollingLoop(t *testing.T) {
	refresher := new(MockRefresher)
	reloaded := make(chan struct{}, 10)
	refresher.On("Reload", mock.Anything).Return(nil).Run(func(mock.Arguments) {
		reloaded <- struct{}{}
	})

	w := NewWatcher(refresher, nil, 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	select {
	case <-reloaded:
	case <-time.After(time.Second):
		t.Fatal("Expected a background reload")
	}
	w.Stop()
	w.Stop()
}

func TestZeroIntervalDisablesLoop(t *testing.T) {
	refresher := new(MockRefresher)
	w := NewWatcher(refresher, nil, 0)
	w.Start(context.Background())
	time.Sleep(20 * time.Millisecond)
	refresher.AssertNotCalled(t, "Reload", mock.Anything)
}

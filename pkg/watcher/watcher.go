// Package watcher keeps the marketplace state fresh in the background.
package watcher

import (
	"context"
	"errors"
	"sync"
	"time"

	"evmarket/pkg/market"

	"github.com/ethereum/go-ethereum/log"
)

// maxSamples bounds the latency history.
const maxSamples = 60

// Refresher reloads on-chain state.
type Refresher interface {
	Reload(ctx context.Context) error
}

// Prober measures the round trip to the RPC endpoint.
type Prober interface {
	Latency(ctx context.Context) (time.Duration, error)
}

// Watcher periodically reloads the catalog and owned items and samples RPC
// latency.
type Watcher struct {
	target   Refresher
	prober   Prober
	interval time.Duration

	latencies []time.Duration
	lastRun   time.Time
	lastErr   error

	subscribers []Subscriber
	mu          sync.RWMutex
	stopChan    chan struct{}
	stopOnce    sync.Once
}

// NewWatcher creates a Watcher. A zero interval disables periodic reloads;
// prober may be nil.
func NewWatcher(target Refresher, prober Prober, interval time.Duration) *Watcher {
	return &Watcher{
		target:   target,
		prober:   prober,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Subscribe adds a new subscriber and returns a channel to receive events.
func (w *Watcher) Subscribe() Subscriber {
	w.mu.Lock()
	defer w.mu.Unlock()
	ch := make(Subscriber, 100)
	w.subscribers = append(w.subscribers, ch)
	return ch
}

// Unsubscribe removes a subscriber.
func (w *Watcher) Unsubscribe(ch Subscriber) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, sub := range w.subscribers {
		if sub == ch {
			w.subscribers = append(w.subscribers[:i], w.subscribers[i+1:]...)
			close(ch)
			break
		}
	}
}

func (w *Watcher) notify(event Event) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, sub := range w.subscribers {
		select {
		case sub <- event:
		default:
			// slow subscriber
		}
	}
}

// Start begins the monitoring loop.
func (w *Watcher) Start(ctx context.Context) {
	if w.interval <= 0 {
		log.Info("Background refresh disabled")
		return
	}
	go w.pollingLoop(ctx)
}

// Stop stops the monitoring loop. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stopChan) })
}

func (w *Watcher) pollingLoop(ctx context.Context) {
	// The session loads on connect; only sample latency up front.
	w.probe(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.refresh(ctx)
		case <-w.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// refresh reloads state and samples latency concurrently.
func (w *Watcher) refresh(ctx context.Context) {
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		w.probe(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		err := w.target.Reload(ctx)
		if errors.Is(err, market.ErrNotConnected) {
			log.Debug("Skipping refresh, contract not connected")
			return
		}

		now := time.Now()
		w.mu.Lock()
		w.lastRun = now
		w.lastErr = err
		w.mu.Unlock()

		res := RefreshResult{At: now}
		if err != nil {
			log.Warn("Background refresh failed", "err", err)
			res.Err = err.Error()
		}
		w.notify(Event{Type: EventRefreshed, Data: res})
	}()

	wg.Wait()
}

func (w *Watcher) probe(ctx context.Context) {
	if w.prober == nil {
		return
	}
	d, err := w.prober.Latency(ctx)
	if err != nil {
		log.Debug("Latency probe failed", "err", err)
		return
	}
	w.mu.Lock()
	w.latencies = append(w.latencies, d)
	if len(w.latencies) > maxSamples {
		w.latencies = w.latencies[len(w.latencies)-maxSamples:]
	}
	w.mu.Unlock()
	w.notify(Event{Type: EventLatencyUpdated, Data: d})
}

// Latencies returns a copy of the recent latency samples, oldest first.
func (w *Watcher) Latencies() []time.Duration {
	w.mu.RLock()
	defer w.mu.RUnlock()
	cp := make([]time.Duration, len(w.latencies))
	copy(cp, w.latencies)
	return cp
}

// LastRun returns when the last background reload finished and its error.
func (w *Watcher) LastRun() (time.Time, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.lastRun, w.lastErr
}

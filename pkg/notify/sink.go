// Package notify holds the single transient user-facing message.
package notify

import (
	"sync"
	"time"

	"evmarket/pkg/models"
)

// DefaultTimeout is how long a notification stays visible.
const DefaultTimeout = 5 * time.Second

// Sink shows at most one notification at a time. Every Show supersedes the
// visible message and restarts the clear timer.
type Sink struct {
	timeout  time.Duration
	onChange func(models.Notification)

	mu      sync.Mutex
	current models.Notification
	gen     uint64
	timer   *time.Timer
}

// NewSink creates a sink. onChange, if set, is called after every show and
// clear with the notification now visible.
func NewSink(timeout time.Duration, onChange func(models.Notification)) *Sink {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Sink{timeout: timeout, onChange: onChange}
}

// Show replaces the visible notification.
func (s *Sink) Show(message string, kind models.NotificationKind) {
	n := models.Notification{Message: message, Kind: kind}

	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.gen++
	gen := s.gen
	s.current = n
	s.timer = time.AfterFunc(s.timeout, func() { s.expire(gen) })
	s.mu.Unlock()

	s.changed(n)
}

func (s *Sink) Success(message string) { s.Show(message, models.KindSuccess) }
func (s *Sink) Error(message string)   { s.Show(message, models.KindError) }
func (s *Sink) Info(message string)    { s.Show(message, models.KindInfo) }

// expire clears the notification unless a newer one replaced it.
func (s *Sink) expire(gen uint64) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.current = models.Notification{}
	s.timer = nil
	s.mu.Unlock()

	s.changed(models.Notification{})
}

// Current returns the visible notification.
func (s *Sink) Current() models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Close stops the pending timer.
func (s *Sink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.gen++
}

func (s *Sink) changed(n models.Notification) {
	if s.onChange != nil {
		s.onChange(n)
	}
}

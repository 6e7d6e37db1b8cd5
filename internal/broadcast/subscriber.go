package broadcast

import (
	"sync"
	"time"
)

// BatchFunc receives one flushed batch in ingestion order. It runs on the
// subscriber's flush path and must not call back into the subscriber.
type BatchFunc func(events []VoteEvent)

// SubscriberConfig tunes per-subscriber batching. Zero values fall back
// to the service defaults.
type SubscriberConfig struct {
	// Window is how long events buffer before a flush.
	Window time.Duration
	// FastWindow replaces the pending window once the buffer exceeds
	// AdaptiveThreshold, so bursts drain sooner.
	FastWindow time.Duration
	// AdaptiveThreshold is the buffer size that triggers FastWindow.
	AdaptiveThreshold int
	// MaxBatch flushes immediately once the buffer reaches this size.
	MaxBatch int
}

// Subscriber buffers events server-side and delivers them in batches.
// The mutex serializes enqueue, timer replacement, and flush, so exactly
// one flush is in flight at a time and batches never reorder across
// flush boundaries.
type Subscriber struct {
	id  string
	cfg SubscriberConfig
	fn  BatchFunc

	mu        sync.Mutex
	buf       []VoteEvent
	timer     *time.Timer
	shortened bool
	closed    bool
}

func newSubscriber(id string, cfg SubscriberConfig, fn BatchFunc) *Subscriber {
	return &Subscriber{id: id, cfg: cfg, fn: fn}
}

func (s *Subscriber) ID() string { return s.id }

func (s *Subscriber) enqueue(ev VoteEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	s.buf = append(s.buf, ev)

	if len(s.buf) >= s.cfg.MaxBatch {
		s.flushLocked()
		return
	}

	if s.timer == nil {
		s.timer = time.AfterFunc(s.cfg.Window, s.Flush)
		return
	}
	if !s.shortened && len(s.buf) > s.cfg.AdaptiveThreshold {
		// Replace the pending timer with the fast window.
		s.timer.Stop()
		s.timer = time.AfterFunc(s.cfg.FastWindow, s.Flush)
		s.shortened = true
	}
}

// Flush forces immediate delivery of the buffered events. Used at
// match-transition boundaries so votes never bleed across matches.
func (s *Subscriber) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushLocked()
}

func (s *Subscriber) flushLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.shortened = false
	if len(s.buf) == 0 || s.closed {
		return
	}
	batch := s.buf
	s.buf = nil
	s.fn(batch)
}

// close discards anything still buffered and stops the pending timer.
func (s *Subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.buf = nil
	s.closed = true
}

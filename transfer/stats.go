package transfer

import (
	"sync"
	"time"
)

// stats tracks fragment upload durations for hung detection.
type stats struct {
	mu       sync.Mutex
	sum      time.Duration
	finished int64
}

func (s *stats) update(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sum += d
	s.finished++
}

func (s *stats) average() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished == 0 {
		return 0
	}
	return s.sum / time.Duration(s.finished)
}

func (s *stats) finishedCount() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished
}

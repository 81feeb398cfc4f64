package service

import (
	"sync"
	"time"
)

// stampResolution matches the precision of a Postgres timestamptz.
const stampResolution = time.Microsecond

// stampSource hands out recompute timestamps that strictly increase even when
// the wall clock stalls or steps backwards.
type stampSource struct {
	mu   sync.Mutex
	now  func() time.Time
	last time.Time
}

func newStampSource(now func() time.Time) *stampSource {
	if now == nil {
		now = time.Now
	}
	return &stampSource{now: now}
}

func (s *stampSource) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.now().UTC().Truncate(stampResolution)
	if !t.After(s.last) {
		t = s.last.Add(stampResolution)
	}
	s.last = t
	return t
}

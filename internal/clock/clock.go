package clock

import (
	"sync"
	"time"
)

// Clock supplies the current time to components that stamp or compare
// timestamps. Injected so tests can control time.
type Clock interface {
	Now() time.Time
	// NowMillis returns the current time as epoch milliseconds, the unit
	// used for persisted timestamps.
	NowMillis() int64
}

// System is the wall-clock implementation.
type System struct{}

func NewSystem() *System {
	return &System{}
}

func (s *System) Now() time.Time {
	return time.Now().UTC()
}

func (s *System) NowMillis() int64 {
	return time.Now().UnixMilli()
}

// Manual is a test clock that only moves when told to.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

func NewManual(start time.Time) *Manual {
	return &Manual{now: start.UTC()}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) NowMillis() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now.UnixMilli()
}

// Advance moves the clock forward by d.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// Set pins the clock to t.
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t.UTC()
}

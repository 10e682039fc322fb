package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSystemClock(t *testing.T) {
	c := NewSystem()
	before := time.Now().UnixMilli()
	millis := c.NowMillis()
	after := time.Now().UnixMilli()

	assert.GreaterOrEqual(t, millis, before)
	assert.LessOrEqual(t, millis, after)
	assert.Equal(t, time.UTC, c.Now().Location())
}

func TestManualClock(t *testing.T) {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewManual(start)

	assert.Equal(t, start, c.Now())
	assert.Equal(t, start.UnixMilli(), c.NowMillis())

	c.Advance(90 * time.Second)
	assert.Equal(t, start.Add(90*time.Second), c.Now())

	pinned := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c.Set(pinned)
	assert.Equal(t, pinned.UnixMilli(), c.NowMillis())
}

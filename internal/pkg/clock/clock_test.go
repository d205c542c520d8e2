package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFake_AdvanceRunsDueTimers(t *testing.T) {
	c := NewFake(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))

	fired := 0
	c.AfterFunc(4*time.Second, func() { fired++ })
	c.AfterFunc(10*time.Second, func() { fired += 10 })

	c.Advance(3 * time.Second)
	assert.Equal(t, 0, fired)
	assert.Equal(t, 2, c.Pending())

	c.Advance(time.Second)
	assert.Equal(t, 1, fired)
	assert.Equal(t, 1, c.Pending())

	c.Advance(time.Minute)
	assert.Equal(t, 11, fired)
	assert.Equal(t, 0, c.Pending())
}

func TestFake_StoppedTimerNeverFires(t *testing.T) {
	c := NewFake(time.Now())

	fired := false
	s := c.AfterFunc(time.Second, func() { fired = true })
	assert.True(t, s.Stop())
	assert.False(t, s.Stop())

	c.Advance(time.Hour)
	assert.False(t, fired)
}

func TestToday(t *testing.T) {
	c := NewFake(time.Date(2024, 1, 2, 23, 59, 0, 0, time.UTC))
	assert.Equal(t, "2024-01-02", Today(c))
}

func TestToday_UsesUTC(t *testing.T) {
	east := time.FixedZone("UTC+8", 8*3600)
	c := NewFake(time.Date(2024, 1, 2, 3, 0, 0, 0, east))
	assert.Equal(t, "2024-01-01", Today(c))

	west := time.FixedZone("UTC-5", -5*3600)
	c.Set(time.Date(2024, 1, 2, 21, 0, 0, 0, west))
	assert.Equal(t, "2024-01-03", Today(c))
}

func TestNextMidnight(t *testing.T) {
	next := NextMidnight(time.Date(2024, 1, 2, 23, 30, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), next)

	east := time.FixedZone("UTC+8", 8*3600)
	next = NextMidnight(time.Date(2024, 1, 2, 3, 0, 0, 0, east))
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), next)
	assert.Equal(t, time.UTC, next.Location())
}

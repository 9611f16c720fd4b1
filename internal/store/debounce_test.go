package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jlpt4you/exam-engine/internal/clock"
)

func TestDebouncerCoalescesBurst(t *testing.T) {
	clk := clock.NewManual(time.Unix(1700000000, 0))
	d := NewDebouncer(clk, time.Second)

	writes := 0
	last := ""
	for _, v := range []string{"a", "b", "c"} {
		v := v
		d.Schedule(func() { writes++; last = v })
		clk.Advance(200 * time.Millisecond)
	}

	assert.Equal(t, 0, writes)
	clk.Advance(time.Second)
	assert.Equal(t, 1, writes)
	assert.Equal(t, "c", last)
	assert.False(t, d.Pending())
}

func TestDebouncerQuietPeriodRestartsOnSchedule(t *testing.T) {
	clk := clock.NewManual(time.Unix(1700000000, 0))
	d := NewDebouncer(clk, time.Second)

	writes := 0
	d.Schedule(func() { writes++ })
	clk.Advance(900 * time.Millisecond)
	d.Schedule(func() { writes++ })
	clk.Advance(900 * time.Millisecond)

	assert.Equal(t, 0, writes)
	clk.Advance(100 * time.Millisecond)
	assert.Equal(t, 1, writes)
}

func TestDebouncerCancelDropsPendingWrite(t *testing.T) {
	clk := clock.NewManual(time.Unix(1700000000, 0))
	d := NewDebouncer(clk, time.Second)

	writes := 0
	d.Schedule(func() { writes++ })
	d.Cancel()
	clk.Advance(time.Minute)

	assert.Equal(t, 0, writes)
	assert.False(t, d.Pending())
}

func TestDebouncerFlushRunsImmediately(t *testing.T) {
	clk := clock.NewManual(time.Unix(1700000000, 0))
	d := NewDebouncer(clk, time.Second)

	writes := 0
	d.Schedule(func() { writes++ })
	d.Flush()

	assert.Equal(t, 1, writes)

	// The stopped timer must not fire the write a second time.
	clk.Advance(time.Minute)
	assert.Equal(t, 1, writes)
}

func TestMemoryStore(t *testing.T) {
	m := NewMemory()

	_, ok := m.Get("k")
	assert.False(t, ok)

	m.Set("k", "v")
	v, ok := m.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	m.Remove("k")
	_, ok = m.Get("k")
	assert.False(t, ok)
}

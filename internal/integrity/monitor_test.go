package integrity

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jlpt4you/exam-engine/internal/clock"
	"github.com/jlpt4you/exam-engine/internal/model"
)

type recorder struct {
	mu         sync.Mutex
	violations []model.ViolationRecord
	counts     []int
	restored   []bool
	terminated int
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		OnViolation: func(rec model.ViolationRecord, count, max int) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.violations = append(r.violations, rec)
			r.counts = append(r.counts, count)
		},
		OnRestored: func(visible bool) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.restored = append(r.restored, visible)
		},
		OnTerminate: func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.terminated++
		},
	}
}

func newTestMonitor(t *testing.T) (*Monitor, *clock.Manual, *recorder) {
	t.Helper()
	clk := clock.NewManual(time.Unix(1700000000, 0))
	rec := &recorder{}
	mon := New(clk, Config{}, rec.callbacks(), zerolog.Nop())
	return mon, clk, rec
}

func TestBlurRecordsImmediately(t *testing.T) {
	mon, _, rec := newTestMonitor(t)

	mon.WindowBlurred()

	assert.Equal(t, 1, mon.Count())
	require.Len(t, rec.violations, 1)
	assert.Equal(t, model.ViolationWindowBlur, rec.violations[0].Kind)
}

func TestVisibilityOnlyHiddenCounts(t *testing.T) {
	mon, _, _ := newTestMonitor(t)

	mon.VisibilityChanged(false)
	assert.Equal(t, 0, mon.Count())

	mon.VisibilityChanged(true)
	assert.Equal(t, 1, mon.Count())
}

func TestFullscreenGraceRegainCancelsViolation(t *testing.T) {
	mon, clk, rec := newTestMonitor(t)

	mon.FullscreenChanged(false)
	clk.Advance(2 * time.Second)
	mon.FullscreenChanged(true)
	clk.Advance(10 * time.Second)

	assert.Equal(t, 0, mon.Count())
	// Restored notice shown, then auto-cleared after 2s.
	assert.Equal(t, []bool{true, false}, rec.restored)
}

func TestFullscreenGraceExpiryRecordsViolation(t *testing.T) {
	mon, clk, rec := newTestMonitor(t)

	mon.FullscreenChanged(false)
	clk.Advance(3 * time.Second)

	assert.Equal(t, 1, mon.Count())
	require.Len(t, rec.violations, 1)
	assert.Equal(t, model.ViolationFullscreenExit, rec.violations[0].Kind)
	assert.Empty(t, rec.restored)
}

func TestRepeatedExitEventsShareOneGraceTimer(t *testing.T) {
	mon, clk, _ := newTestMonitor(t)

	mon.FullscreenChanged(false)
	clk.Advance(time.Second)
	mon.FullscreenChanged(false) // duplicate exit event, timer not restarted
	clk.Advance(2 * time.Second)

	assert.Equal(t, 1, mon.Count())
}

func TestEscalationToTermination(t *testing.T) {
	mon, clk, rec := newTestMonitor(t)

	mon.WindowBlurred()
	mon.VisibilityChanged(true)
	assert.Equal(t, []int{1, 2}, rec.counts)
	assert.Equal(t, 0, rec.terminated)

	// Third strike reaches the cap; termination waits out the final
	// warning delay.
	mon.WindowBlurred()
	assert.Equal(t, 3, mon.Count())
	assert.Equal(t, 0, rec.terminated)

	clk.Advance(3 * time.Second)
	assert.Equal(t, 1, rec.terminated)
}

func TestSignalsIgnoredAfterCap(t *testing.T) {
	mon, clk, rec := newTestMonitor(t)

	mon.WindowBlurred()
	mon.WindowBlurred()
	mon.WindowBlurred()
	clk.Advance(3 * time.Second)

	mon.WindowBlurred()
	mon.VisibilityChanged(true)
	mon.FullscreenChanged(false)
	clk.Advance(10 * time.Second)

	assert.Equal(t, 3, mon.Count())
	assert.Equal(t, 1, rec.terminated)
}

func TestStopCancelsPendingTimers(t *testing.T) {
	mon, clk, rec := newTestMonitor(t)

	mon.WindowBlurred()
	mon.WindowBlurred()
	mon.WindowBlurred() // final warning timer now pending
	mon.Stop()

	clk.Advance(time.Minute)
	assert.Equal(t, 0, rec.terminated)

	// A stopped monitor ignores everything.
	mon.WindowBlurred()
	assert.Equal(t, 3, mon.Count())
}

func TestViolationsReturnsCopy(t *testing.T) {
	mon, _, _ := newTestMonitor(t)
	mon.WindowBlurred()

	log := mon.Violations()
	require.Len(t, log, 1)
	log[0].Kind = "tampered"
	assert.Equal(t, model.ViolationWindowBlur, mon.Violations()[0].Kind)
}

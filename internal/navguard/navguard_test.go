package navguard

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeHistory struct {
	sentinels int
	forwards  int
}

func (h *fakeHistory) PushSentinel() { h.sentinels++ }
func (h *fakeHistory) Forward()      { h.forwards++ }

func TestNewPlantsSentinel(t *testing.T) {
	h := &fakeHistory{}
	New(h)
	assert.Equal(t, 1, h.sentinels)
}

func TestBackConfirmRunsParkedNavigation(t *testing.T) {
	h := &fakeHistory{}
	i := New(h)

	navigated := false
	assert.True(t, i.BackAttempted(func() { navigated = true }))
	assert.True(t, i.AwaitingConfirmation())
	assert.False(t, navigated)

	i.Confirm()
	assert.True(t, navigated)
	assert.False(t, i.AwaitingConfirmation())
	assert.Equal(t, 0, h.forwards)
}

func TestBackCancelPushesForward(t *testing.T) {
	h := &fakeHistory{}
	i := New(h)

	navigated := false
	i.BackAttempted(func() { navigated = true })
	i.Cancel()

	assert.False(t, navigated)
	assert.False(t, i.AwaitingConfirmation())
	assert.Equal(t, 1, h.forwards)
}

func TestSecondBackWhilePendingIsAbsorbed(t *testing.T) {
	h := &fakeHistory{}
	i := New(h)

	first := false
	second := false
	assert.True(t, i.BackAttempted(func() { first = true }))
	assert.False(t, i.BackAttempted(func() { second = true }))

	// The first parked navigation survives the absorbed second attempt.
	i.Confirm()
	assert.True(t, first)
	assert.False(t, second)
}

func TestCancelWithoutPendingDoesNotForward(t *testing.T) {
	h := &fakeHistory{}
	i := New(h)

	i.Cancel()
	assert.Equal(t, 0, h.forwards)
}

func TestConfirmWithoutPendingIsNoop(t *testing.T) {
	h := &fakeHistory{}
	i := New(h)
	i.Confirm()
	assert.False(t, i.AwaitingConfirmation())
}

func TestDisarmedInterceptorPassesBackThrough(t *testing.T) {
	h := &fakeHistory{}
	i := New(h)
	i.Disarm()

	assert.False(t, i.BackAttempted(func() {}))
	assert.False(t, i.AwaitingConfirmation())
}

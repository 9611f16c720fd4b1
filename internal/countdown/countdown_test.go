package countdown

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTickCountsDown(t *testing.T) {
	c := New(3, nil)

	c.Tick()
	assert.Equal(t, 2, c.Remaining())
	assert.Equal(t, Running, c.State())

	c.Tick()
	c.Tick()
	assert.Equal(t, 0, c.Remaining())
	assert.Equal(t, Expired, c.State())
}

func TestExpireFiresExactlyOnce(t *testing.T) {
	fired := 0
	c := New(1, func() { fired++ })

	c.Tick()
	assert.Equal(t, 1, fired)
	assert.Equal(t, Expired, c.State())

	// Late ticks after expiry change nothing.
	c.Tick()
	c.Tick()
	assert.Equal(t, 1, fired)
	assert.Equal(t, 0, c.Remaining())
}

func TestPauseFreezesRemaining(t *testing.T) {
	c := New(10, nil)
	c.Tick()
	c.Pause()

	for i := 0; i < 5; i++ {
		c.Tick()
	}
	assert.Equal(t, 9, c.Remaining())
	assert.Equal(t, Paused, c.State())

	c.Resume()
	c.Tick()
	assert.Equal(t, 8, c.Remaining())
}

func TestPauseAfterExpiryIsNoop(t *testing.T) {
	c := New(1, nil)
	c.Tick()

	c.Pause()
	assert.Equal(t, Expired, c.State())
	c.Resume()
	assert.Equal(t, Expired, c.State())
}

func TestNonPositiveSeedExpiresOnFirstTick(t *testing.T) {
	fired := false
	c := New(0, func() { fired = true })

	c.Tick()
	assert.True(t, fired)
	assert.Equal(t, Expired, c.State())
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "1:01:01", Format(3661))
	assert.Equal(t, "1:01", Format(61))
	assert.Equal(t, "0:05", Format(5))
	assert.Equal(t, "0:00", Format(0))
	assert.Equal(t, "0:00", Format(-7))
	assert.Equal(t, "59:59", Format(3599))
	assert.Equal(t, "1:00:00", Format(3600))
}

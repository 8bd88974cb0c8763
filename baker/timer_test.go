package baker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimerFiresOnce(t *testing.T) {
	ticks := make(chan time.Time, 8)
	timer := NewTimer(func() { ticks <- time.Now() })
	defer timer.Stop()

	timer.Schedule(time.Now().Add(20 * time.Millisecond))

	select {
	case <-ticks:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
	select {
	case <-ticks:
		t.Fatal("timer fired twice")
	case <-time.After(100 * time.Millisecond):
	}
}

// Rescheduling implicitly cancels the pending deadline: between two
// consecutive schedules at most one tick is delivered, the one of the later
// deadline.
func TestTimerReplacement(t *testing.T) {
	ticks := make(chan time.Time, 8)
	timer := NewTimer(func() { ticks <- time.Now() })
	defer timer.Stop()

	later := time.Now().Add(150 * time.Millisecond)
	timer.Schedule(time.Now().Add(30 * time.Millisecond))
	timer.Schedule(later)

	select {
	case fired := <-ticks:
		// must be the later deadline, not the cancelled earlier one
		assert.False(t, fired.Before(later))
	case <-time.After(time.Second):
		t.Fatal("replacement deadline did not fire")
	}

	select {
	case <-ticks:
		t.Fatal("cancelled deadline fired as well")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestTimerReplacementMovesEarlier(t *testing.T) {
	ticks := make(chan time.Time, 8)
	timer := NewTimer(func() { ticks <- time.Now() })
	defer timer.Stop()

	start := time.Now()
	timer.Schedule(start.Add(5 * time.Second))
	timer.Schedule(start.Add(30 * time.Millisecond))

	select {
	case <-ticks:
		require.True(t, time.Since(start) < time.Second)
	case <-time.After(time.Second):
		t.Fatal("earlier deadline did not fire")
	}
}

func TestTimerStop(t *testing.T) {
	ticks := make(chan time.Time, 8)
	timer := NewTimer(func() { ticks <- time.Now() })

	timer.Schedule(time.Now().Add(50 * time.Millisecond))
	timer.Stop()

	select {
	case <-ticks:
		t.Fatal("stopped timer fired")
	case <-time.After(150 * time.Millisecond):
	}
}

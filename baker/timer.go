package baker

import "time"

// Timer delivers a single tick to the driver when a scheduled deadline is
// reached. Scheduling a new deadline implicitly cancels the pending one;
// closing the timer drops whatever is pending.
//
// The schedule channel carries at most one deadline: a producer replacing a
// deadline that was not yet picked up drains it first, so the timer
// goroutine only ever sees the latest request.
type Timer struct {
	schedule chan time.Time
	done     chan struct{}
}

// NewTimer starts the timer goroutine. tick is invoked from that goroutine
// once per reached deadline.
func NewTimer(tick func()) *Timer {
	t := &Timer{
		schedule: make(chan time.Time, 1),
		done:     make(chan struct{}),
	}
	go t.run(tick)
	return t
}

func (t *Timer) run(tick func()) {
	var pending *time.Timer
	var fire <-chan time.Time
	defer func() {
		if pending != nil {
			pending.Stop()
		}
	}()
	for {
		select {
		case deadline, ok := <-t.schedule:
			if !ok {
				return
			}
			if pending != nil {
				pending.Stop()
			}
			pending = time.NewTimer(time.Until(deadline))
			fire = pending.C
		case <-fire:
			pending = nil
			fire = nil
			tick()
		case <-t.done:
			return
		}
	}
}

// Schedule replaces any pending deadline with the given one.
func (t *Timer) Schedule(deadline time.Time) {
	for {
		select {
		case t.schedule <- deadline:
			return
		default:
			// stale deadline still queued: drop it and retry
			select {
			case <-t.schedule:
			default:
			}
		}
	}
}

// Stop terminates the timer goroutine. Pending deadlines are discarded.
func (t *Timer) Stop() {
	close(t.done)
}

package otp

import "time"

// countdown is a per-second timer owned by a Machine and only touched under
// the machine's lock. Each start bumps the generation, so a tick from a
// cancelled schedule that races the cancel is recognised and ignored.
type countdown struct {
	sched     Scheduler
	remaining int
	gen       uint64
	cancel    Cancel
}

// start cancels any running schedule, then counts down from d.
func (c *countdown) start(d time.Duration, tick func(gen uint64)) {
	c.stop()
	c.gen++
	gen := c.gen
	c.remaining = seconds(d)
	c.cancel = c.sched.Every(time.Second, func() { tick(gen) })
}

func (c *countdown) stop() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

func (c *countdown) running() bool {
	return c.cancel != nil
}

// step consumes one tick of generation gen. ok is false for stale ticks; done
// is true when the countdown reached zero and stopped.
func (c *countdown) step(gen uint64) (done, ok bool) {
	if gen != c.gen || c.cancel == nil {
		return false, false
	}
	c.remaining--
	if c.remaining <= 0 {
		c.remaining = 0
		c.stop()
		return true, true
	}
	return false, true
}

func seconds(d time.Duration) int {
	s := int((d + time.Second - 1) / time.Second)
	if s < 1 {
		return 1
	}
	return s
}

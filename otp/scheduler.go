package otp

import (
	"sync"
	"time"
)

// Cancel stops a scheduled task. Calling it more than once is harmless.
type Cancel func()

// Scheduler runs the machine's timers. Every task is owned by one machine and
// cancelled when the machine is closed.
type Scheduler interface {
	// Every runs fn once per interval until cancelled.
	Every(interval time.Duration, fn func()) Cancel
	// After runs fn once after delay unless cancelled first.
	After(delay time.Duration, fn func()) Cancel
}

// TimeScheduler schedules on the wall clock.
type TimeScheduler struct{}

var _ Scheduler = TimeScheduler{}

func NewTimeScheduler() TimeScheduler {
	return TimeScheduler{}
}

func (TimeScheduler) Every(interval time.Duration, fn func()) Cancel {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				fn()
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			ticker.Stop()
			close(done)
		})
	}
}

func (TimeScheduler) After(delay time.Duration, fn func()) Cancel {
	t := time.AfterFunc(delay, fn)
	return func() { t.Stop() }
}

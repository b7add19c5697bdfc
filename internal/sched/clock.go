// Package sched provides cancellable timers behind a clock that tests can
// drive by hand.
package sched

import (
	"sync"
	"time"
)

// Timer is a cancellable scheduled callback.
type Timer interface {
	// Stop prevents further runs. It reports whether the timer was still
	// pending.
	Stop() bool
}

// Clock schedules callbacks. Callbacks run on a goroutine owned by the clock
// and must do their own locking.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
	// Every runs f each interval until the returned timer is stopped.
	Every(interval time.Duration, f func()) Timer
}

// Real is the wall clock.
type Real struct{}

func (Real) Now() time.Time { return time.Now() }

func (Real) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

func (Real) Every(interval time.Duration, f func()) Timer {
	t := &ticker{stop: make(chan struct{})}
	tk := time.NewTicker(interval)
	go func() {
		defer tk.Stop()
		for {
			select {
			case <-t.stop:
				return
			case <-tk.C:
				f()
			}
		}
	}()
	return t
}

type ticker struct {
	once sync.Once
	stop chan struct{}
}

func (t *ticker) Stop() bool {
	stopped := false
	t.once.Do(func() {
		close(t.stop)
		stopped = true
	})
	return stopped
}

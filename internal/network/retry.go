package network

import (
	"time"
)

// RetryPolicy bounds reconnect attempts. With Multiplier <= 1 every attempt
// waits BaseDelay.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
}

// DefaultRetryPolicy waits a fixed 5s between reconnect attempts.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 10,
		BaseDelay:   5 * time.Second,
		MaxDelay:    5 * time.Second,
		Multiplier:  1,
	}
}

// Delay returns the wait before attempt (1-based) and false once attempts are
// exhausted.
func (p RetryPolicy) Delay(attempt int) (time.Duration, bool) {
	if attempt < 1 || (p.MaxAttempts > 0 && attempt > p.MaxAttempts) {
		return 0, false
	}
	d := p.BaseDelay
	if p.Multiplier > 1 {
		f := float64(p.BaseDelay)
		for i := 1; i < attempt; i++ {
			f *= p.Multiplier
			if p.MaxDelay > 0 && f >= float64(p.MaxDelay) {
				break
			}
		}
		d = time.Duration(f)
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d, true
}

// Timer is a pending scheduled call.
type Timer interface {
	Stop() bool
}

// Scheduler runs f after d. Tests substitute a manual implementation.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// SystemScheduler schedules on the wall clock.
func SystemScheduler() Scheduler {
	return realScheduler{}
}

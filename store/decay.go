package store

import (
	"math"
	"time"
)

// Decay returns what remains of amount after elapsed time, decaying linearly
// to zero over one period. Non-positive elapsed times (clock skew) leave the
// amount unchanged.
func Decay(amount float64, elapsed, period time.Duration) float64 {
	if elapsed <= 0 {
		return amount
	}
	if elapsed >= period {
		return 0
	}
	return amount * (1 - float64(elapsed)/float64(period))
}

// Counter is the persisted state of one key.
type Counter struct {
	Amount    float64
	Timestamp time.Time
}

// at returns the decayed amount at now.
func (c Counter) at(now time.Time, period time.Duration) float64 {
	return Decay(c.Amount, now.Sub(c.Timestamp), period)
}

// anchor is the timestamp written with a new amount. It never moves the
// stored timestamp backward.
func (c Counter) anchor(now time.Time) time.Time {
	if c.Timestamp.After(now) {
		return c.Timestamp
	}
	return now
}

// op is a single counter mutation shared by the in-process stores. It gets
// the current state (zero Counter when absent) and returns the state to write,
// if any.
type op func(c Counter, now time.Time) (next *Counter, res Result)

func incrementOp(n int64, l Limit) op {
	return func(c Counter, now time.Time) (*Counter, Result) {
		used := c.at(now, l.Period)
		if used+float64(n) > float64(l.Max) {
			return nil, Result{Allowed: false, Used: used}
		}
		used += float64(n)
		return &Counter{Amount: used, Timestamp: c.anchor(now)}, Result{Allowed: true, Used: used}
	}
}

func decrementOp(n int64, l Limit) op {
	return func(c Counter, now time.Time) (*Counter, Result) {
		used := math.Max(0, c.at(now, l.Period)-float64(n))
		return &Counter{Amount: used, Timestamp: c.anchor(now)}, Result{Allowed: true, Used: used}
	}
}

func peekOp(n int64, l Limit) op {
	return func(c Counter, now time.Time) (*Counter, Result) {
		used := c.at(now, l.Period)
		return nil, Result{Allowed: used+float64(n) <= float64(l.Max), Used: used}
	}
}

func resetOp() op {
	return func(c Counter, now time.Time) (*Counter, Result) {
		return &Counter{Timestamp: c.anchor(now)}, Result{Allowed: true}
	}
}

package client

import "time"

// Backoff yields the delay before poll attempt n (1-based).
type Backoff interface {
	Next(attempt int) time.Duration
}

// Constant waits the same interval between every poll.
type Constant time.Duration

func (c Constant) Next(int) time.Duration { return time.Duration(c) }

// Exponential doubles the delay each attempt up to Max.
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
}

func (e Exponential) Next(attempt int) time.Duration {
	d := e.Initial
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= e.Max {
			return e.Max
		}
	}
	if d > e.Max {
		return e.Max
	}
	return d
}

package vuser

import (
	"math/rand/v2"
	"time"
)

// DefaultThinkTime is the pause between iterations when none is configured
const DefaultThinkTime = time.Second

// ThinkTime draws the pause between two task iterations
type ThinkTime interface {
	Next() time.Duration
}

type constantThinkTime time.Duration

func (c constantThinkTime) Next() time.Duration {
	return time.Duration(c)
}

// Constant pauses for d after every iteration
func Constant(d time.Duration) ThinkTime {
	if d < 0 {
		d = 0
	}
	return constantThinkTime(d)
}

// None does not pause between iterations
func None() ThinkTime {
	return constantThinkTime(0)
}

type betweenThinkTime struct {
	min time.Duration
	max time.Duration
}

func (b betweenThinkTime) Next() time.Duration {
	if b.max <= b.min {
		return b.min
	}
	return b.min + rand.N(b.max-b.min+1)
}

// Between pauses for a uniformly random duration in [min, max]
func Between(min, max time.Duration) ThinkTime {
	if min < 0 {
		min = 0
	}
	if max < min {
		max = min
	}
	return betweenThinkTime{min: min, max: max}
}

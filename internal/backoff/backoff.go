// Package backoff implements the jittered exponential backoff policy shared
// by the queue's fail path and its lease-expiry scanner.
package backoff

import (
	"math"
	"math/rand"
	"time"
)

type Policy struct {
	MaxAttempts  uint16
	BaseMs       int64
	BackoffMaxMs int64
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  5,
		BaseMs:       500,
		BackoffMaxMs: 5 * 60 * 1000,
	}
}

// Base computes base(attempt) = min(backoff_max_ms, backoff_base_ms *
// 2^(attempt-1)) for attempt >= 1, and 0 for attempt 0.
func (p Policy) Base(attempt uint16) int64 {
	if attempt == 0 {
		return 0
	}
	exp := int(attempt - 1)
	scaled := float64(p.BaseMs) * math.Pow(2, float64(exp))
	capped := math.Min(scaled, float64(p.BackoffMaxMs))
	if capped < 0 {
		capped = 0
	}
	return int64(capped)
}

// Jittered draws the actual delay uniformly from [max(1, base -
// base*0.25), min(cap, base + base*0.25)].
func (p Policy) Jittered(attempt uint16) time.Duration {
	base := p.Base(attempt)
	if base == 0 {
		return 0
	}

	upperCap := p.BackoffMaxMs
	if upperCap < 1 {
		upperCap = 1
	}
	capped := base
	if capped > upperCap {
		capped = upperCap
	}

	spread := float64(capped) * 0.25
	if spread < 1 {
		spread = 1
	}
	lower := float64(capped) - spread
	if lower < 1 {
		lower = 1
	}
	upper := float64(capped) + spread
	if upper > float64(upperCap) {
		upper = float64(upperCap)
	}
	if upper < lower {
		upper = lower
	}

	delayMs := lower + rand.Float64()*(upper-lower)
	return time.Duration(math.Round(delayMs)) * time.Millisecond
}

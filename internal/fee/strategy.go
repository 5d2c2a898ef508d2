package fee

import (
	"time"

	"github.com/yourusername/solbundler/internal/bundlerrors"
)

// Tier is the caller's priority tier, multiplying the computed target
// price per §4.2 step 5.
type Tier string

const (
	TierLow    Tier = "low"
	TierNormal Tier = "normal"
	TierHigh   Tier = "high"
	TierUrgent Tier = "urgent"
)

var tierMultiplier = map[Tier]float64{
	TierLow:    0.8,
	TierNormal: 1.0,
	TierHigh:   1.3,
	TierUrgent: 1.8,
}

func (t Tier) multiplier() float64 {
	if m, ok := tierMultiplier[t]; ok {
		return m
	}
	return 1.0
}

// Strategy is the tagged variant of §9 Design Notes: {P75PlusBuffer, Fixed},
// modeled as a Go interface with two concrete implementations rather than
// a discriminated struct plus a type switch.
type Strategy interface {
	// TargetPrice computes the base target price (before tier multiplier
	// and clamping) from a window snapshot and lookahead.
	TargetPrice(snap *windowSnapshot, lookahead time.Duration, bufferRatio float64) uint64
}

// P75PlusBuffer implements §4.2 steps 2-4: target = p75 + max(0, slope*h) + buffer.
type P75PlusBuffer struct{}

func (P75PlusBuffer) TargetPrice(snap *windowSnapshot, lookahead time.Duration, bufferRatio float64) uint64 {
	p75 := snap.percentile(0.75)
	trend := snap.slope * lookahead.Seconds()
	if trend < 0 {
		trend = 0
	}
	buffer := bufferRatio * float64(p75)
	return p75 + uint64(trend) + uint64(buffer)
}

// Fixed ignores the window entirely and returns a constant price, useful
// for testing and for callers who disable adaptive pricing.
type Fixed struct {
	Price uint64
}

func (f Fixed) TargetPrice(*windowSnapshot, time.Duration, float64) uint64 {
	return f.Price
}

// ParseStrategy maps the config string ("p75_plus_buffer" | "fixed") to a
// Strategy, matching §6's `fees.strategy` enum.
func ParseStrategy(name string, fixedPrice uint64) (Strategy, error) {
	switch name {
	case "", "p75_plus_buffer":
		return P75PlusBuffer{}, nil
	case "fixed":
		return Fixed{Price: fixedPrice}, nil
	default:
		return nil, bundlerrors.New(bundlerrors.Config, "unknown fee strategy: "+name, nil)
	}
}

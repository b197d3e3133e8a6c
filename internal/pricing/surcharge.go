package pricing

import (
	"context"
	"strings"

	"tow-dispatch/internal/domain/geo"
)

// SurchargeProvider resolves a pricing multiplier for a pickup point.
// Implementations must not block: the engine calls this inline.
type SurchargeProvider interface {
	MultiplierAt(ctx context.Context, at geo.Point) float64
}

// None never applies a surcharge.
type None struct{}

func (None) MultiplierAt(context.Context, geo.Point) float64 { return 1.0 }

// ConditionMultipliers maps road/weather conditions to price multipliers.
// Unknown conditions fall back to 1.00.
var ConditionMultipliers = map[string]float64{
	"clear":         1.00,
	"partly-cloudy": 1.00,
	"cloudy":        1.05,
	"overcast":      1.07,
	"drizzle":       1.10,
	"light-rain":    1.12,
	"rain":          1.15,
	"showers":       1.18,
	"light-snow":    1.15,
	"snow":          1.20,
	"wet-snow":      1.25,
	"storm":         1.30,
	"thunderstorm":  1.35,
}

// ConditionFunc reports the current condition code at a point. Fed by a
// collaborating weather service; the engine itself does no network I/O.
type ConditionFunc func(ctx context.Context, at geo.Point) string

// ConditionSurcharge maps a reported condition onto ConditionMultipliers.
type ConditionSurcharge struct {
	Conditions ConditionFunc
}

func (s ConditionSurcharge) MultiplierAt(ctx context.Context, at geo.Point) float64 {
	if s.Conditions == nil {
		return 1.0
	}
	condition := strings.ToLower(strings.TrimSpace(s.Conditions(ctx, at)))
	if m, ok := ConditionMultipliers[condition]; ok {
		return m
	}
	return 1.0
}

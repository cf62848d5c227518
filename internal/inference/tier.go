package inference

import (
	"fmt"
	"strings"
)

// Tier is a coarse risk bucket derived from the fraud probability.
type Tier int

const (
	TierLow Tier = iota
	TierMedium
	TierHigh
)

// Default tier thresholds. A probability strictly above a threshold falls in
// the tier above it.
const (
	DefaultHighThreshold   = 0.70
	DefaultMediumThreshold = 0.40
)

// Label locales.
const (
	LocaleTR = "tr"
	LocaleEN = "en"
)

var labels = map[string][3]string{
	LocaleTR: {"DÜŞÜK", "ORTA", "YÜKSEK"},
	LocaleEN: {"LOW", "MEDIUM", "HIGH"},
}

// Thresholds splits probabilities into tiers.
type Thresholds struct {
	High   float64 `json:"high"`
	Medium float64 `json:"medium"`
}

// DefaultThresholds returns the 0.70/0.40 split.
func DefaultThresholds() Thresholds {
	return Thresholds{High: DefaultHighThreshold, Medium: DefaultMediumThreshold}
}

// Validate requires 0 <= medium <= high <= 1. NaN fails every comparison
// and is rejected.
func (t Thresholds) Validate() error {
	if !(0 <= t.Medium && t.Medium <= t.High && t.High <= 1) {
		return fmt.Errorf("invalid thresholds: need 0 <= medium (%v) <= high (%v) <= 1", t.Medium, t.High)
	}
	return nil
}

// Tier returns the tier for p.
func (t Thresholds) Tier(p float64) Tier {
	switch {
	case p > t.High:
		return TierHigh
	case p > t.Medium:
		return TierMedium
	default:
		return TierLow
	}
}

// Label returns the tier's label in locale, defaulting to Turkish.
func (t Tier) Label(locale string) string {
	l, ok := labels[strings.ToLower(locale)]
	if !ok {
		l = labels[LocaleTR]
	}
	if t < TierLow || t > TierHigh {
		return ""
	}
	return l[t]
}

func (t Tier) String() string {
	return t.Label(LocaleEN)
}

// ValidLocale reports whether labels exist for locale.
func ValidLocale(locale string) bool {
	_, ok := labels[strings.ToLower(locale)]
	return ok
}

// Labels returns the tier labels of a locale, low to high.
func Labels(locale string) []string {
	l, ok := labels[strings.ToLower(locale)]
	if !ok {
		return nil
	}
	return []string{l[0], l[1], l[2]}
}

// Package history supplies per-customer behaviour (transaction frequency and
// average amount) to the feature deriver, and records each scored
// transaction so later requests see it.
package history

import (
	"context"

	"github.com/mbd888/fraudscore/internal/features"
)

// Provider looks up a customer's history.
type Provider = features.HistoryProvider

// Recorder folds a scored transaction into a customer's history.
type Recorder interface {
	Record(ctx context.Context, customerID string, amount float64) error
}

// Backend is a provider that can also record.
type Backend interface {
	Provider
	Recorder
}

// Pinger is implemented by backends with a remote dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Lookup results, used as metric labels.
const (
	resultHit     = "hit"
	resultMiss    = "miss"
	resultError   = "error"
	resultSkipped = "skipped"
)

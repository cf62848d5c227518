package history

import (
	"context"
	"sync"

	"github.com/mbd888/fraudscore/internal/features"
)

// MemoryProvider keeps running totals per customer for demo/test use.
type MemoryProvider struct {
	mu    sync.RWMutex
	stats map[string]*totals
}

type totals struct {
	count int
	sum   float64
}

// NewMemoryProvider creates an in-memory history backend.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{stats: make(map[string]*totals)}
}

func (p *MemoryProvider) Lookup(ctx context.Context, customerID string) (features.History, bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	t, ok := p.stats[customerID]
	if !ok || t.count == 0 {
		return features.History{}, false, nil
	}
	return features.History{
		Frequency:     t.count,
		AverageAmount: t.sum / float64(t.count),
	}, true, nil
}

func (p *MemoryProvider) Record(ctx context.Context, customerID string, amount float64) error {
	if customerID == "" {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	t, ok := p.stats[customerID]
	if !ok {
		t = &totals{}
		p.stats[customerID] = t
	}
	t.count++
	t.sum += amount
	return nil
}

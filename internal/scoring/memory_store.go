package scoring

import (
	"context"
	"sync"
)

// Memory store bounds. Each customer keeps at most as many records as the
// list endpoint can return.
const (
	DefaultMaxCustomers      = 10000
	memoryRecordsPerCustomer = maxListLimit
)

// MemoryStore is an in-memory implementation of Store for demo/test use.
// Records without a customer ID are not kept since nothing can list them.
// When more than maxCustomers customers are tracked, the customer written
// least recently is evicted.
type MemoryStore struct {
	mu           sync.Mutex
	byID         map[string]*customerLog
	maxCustomers int
	seq          uint64
}

// customerLog is a ring of the most recent records, oldest at head.
type customerLog struct {
	records []*ScoredTransaction
	head    int
	lastSeq uint64
}

func (l *customerLog) add(tx *ScoredTransaction) {
	if len(l.records) < memoryRecordsPerCustomer {
		l.records = append(l.records, tx)
		return
	}
	l.records[l.head] = tx
	l.head = (l.head + 1) % len(l.records)
}

// newest returns the i-th most recent record.
func (l *customerLog) newest(i int) *ScoredTransaction {
	n := len(l.records)
	return l.records[(l.head+n-1-i)%n]
}

// MemoryStoreOption configures a MemoryStore.
type MemoryStoreOption func(*MemoryStore)

// WithMaxCustomers caps how many customers the store tracks.
func WithMaxCustomers(n int) MemoryStoreOption {
	return func(s *MemoryStore) {
		if n > 0 {
			s.maxCustomers = n
		}
	}
}

// NewMemoryStore creates an in-memory audit store.
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{
		byID:         make(map[string]*customerLog),
		maxCustomers: DefaultMaxCustomers,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) Record(ctx context.Context, tx *ScoredTransaction) error {
	if tx.CustomerID == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	log, ok := s.byID[tx.CustomerID]
	if !ok {
		if len(s.byID) >= s.maxCustomers {
			s.evictOldest()
		}
		log = &customerLog{}
		s.byID[tx.CustomerID] = log
	}
	log.lastSeq = s.seq
	log.add(copyTx(tx))
	return nil
}

// evictOldest drops the customer with the oldest write. Linear in the
// number of customers and only runs when the cap is reached.
func (s *MemoryStore) evictOldest() {
	var (
		oldestID  string
		oldestSeq uint64
		found     bool
	)
	for id, log := range s.byID {
		if !found || log.lastSeq < oldestSeq {
			oldestID, oldestSeq, found = id, log.lastSeq, true
		}
	}
	if found {
		delete(s.byID, oldestID)
	}
}

func (s *MemoryStore) ListByCustomer(ctx context.Context, customerID string, limit int) ([]*ScoredTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log, ok := s.byID[customerID]
	if !ok || len(log.records) == 0 {
		return nil, nil
	}

	n := len(log.records)
	if limit < n {
		n = limit
	}
	result := make([]*ScoredTransaction, 0, n)
	for i := 0; i < n; i++ {
		result = append(result, copyTx(log.newest(i)))
	}
	return result, nil
}

// Len returns the number of records held.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := 0
	for _, log := range s.byID {
		total += len(log.records)
	}
	return total
}

func copyTx(tx *ScoredTransaction) *ScoredTransaction {
	c := *tx
	if tx.Features != nil {
		c.Features = make(map[string]any, len(tx.Features))
		for k, v := range tx.Features {
			c.Features[k] = v
		}
	}
	return &c
}

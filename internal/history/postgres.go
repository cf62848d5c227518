package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mbd888/fraudscore/internal/features"
)

// PostgresProvider derives history from the scored_transactions audit table.
// It has no Record: the audit store's inserts are the history.
type PostgresProvider struct {
	db     *sql.DB
	window time.Duration
	now    func() time.Time
}

// NewPostgresProvider creates a provider aggregating rows scored within window.
// A zero window aggregates all rows.
func NewPostgresProvider(db *sql.DB, window time.Duration) *PostgresProvider {
	return &PostgresProvider{db: db, window: window, now: time.Now}
}

func (p *PostgresProvider) Lookup(ctx context.Context, customerID string) (features.History, bool, error) {
	since := time.Time{}
	if p.window > 0 {
		since = p.now().Add(-p.window)
	}

	var count int
	var avg sql.NullFloat64
	err := p.db.QueryRowContext(ctx, `
		SELECT COUNT(*), AVG(amount)
		FROM scored_transactions
		WHERE customer_id = $1 AND scored_at >= $2
	`, customerID, since).Scan(&count, &avg)
	if err != nil {
		return features.History{}, false, fmt.Errorf("postgres history lookup: %w", err)
	}
	if count == 0 || !avg.Valid {
		return features.History{}, false, nil
	}
	return features.History{Frequency: count, AverageAmount: avg.Float64}, true, nil
}

// Ping checks the database connection.
func (p *PostgresProvider) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

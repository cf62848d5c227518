package scoring

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// PostgresStore persists scored transactions in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed audit store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the scored_transactions table if it doesn't exist. The
// schema matches migrations/00001_scored_transactions.sql.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS scored_transactions (
			id                VARCHAR(36) PRIMARY KEY,
			transaction_id    VARCHAR(128) NOT NULL DEFAULT '',
			customer_id       VARCHAR(128) NOT NULL DEFAULT '',
			amount            DOUBLE PRECISION NOT NULL,
			is_fraud          SMALLINT NOT NULL CHECK (is_fraud IN (0, 1)),
			fraud_probability DOUBLE PRECISION NOT NULL CHECK (fraud_probability >= 0 AND fraud_probability <= 1),
			risk_level        VARCHAR(16) NOT NULL,
			model_version     VARCHAR(64) NOT NULL DEFAULT '',
			features          JSONB NOT NULL DEFAULT '{}',
			scored_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_scored_transactions_customer
			ON scored_transactions (customer_id, scored_at DESC);
	`)
	return err
}

func (s *PostgresStore) Record(ctx context.Context, tx *ScoredTransaction) error {
	featuresJSON, err := json.Marshal(tx.Features)
	if err != nil {
		return fmt.Errorf("failed to marshal features: %w", err)
	}
	if tx.Features == nil {
		featuresJSON = []byte("{}")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO scored_transactions (
			id, transaction_id, customer_id, amount, is_fraud,
			fraud_probability, risk_level, model_version, features, scored_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		tx.ID,
		tx.TransactionID,
		tx.CustomerID,
		tx.Amount,
		tx.IsFraud,
		tx.FraudProbability,
		tx.RiskLevel,
		tx.ModelVersion,
		featuresJSON,
		tx.ScoredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record scored transaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByCustomer(ctx context.Context, customerID string, limit int) ([]*ScoredTransaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, transaction_id, customer_id, amount, is_fraud,
		       fraud_probability, risk_level, model_version, features, scored_at
		FROM scored_transactions
		WHERE customer_id = $1
		ORDER BY scored_at DESC
		LIMIT $2
	`, customerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list scored transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*ScoredTransaction
	for rows.Next() {
		var tx ScoredTransaction
		var featuresJSON []byte
		if err := rows.Scan(
			&tx.ID, &tx.TransactionID, &tx.CustomerID, &tx.Amount, &tx.IsFraud,
			&tx.FraudProbability, &tx.RiskLevel, &tx.ModelVersion, &featuresJSON, &tx.ScoredAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan scored transaction: %w", err)
		}
		_ = json.Unmarshal(featuresJSON, &tx.Features)
		result = append(result, &tx)
	}
	return result, rows.Err()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

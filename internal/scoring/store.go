package scoring

import (
	"context"
	"time"
)

// ScoredTransaction is the audit record of one successful classification.
type ScoredTransaction struct {
	ID               string         `json:"id"`
	TransactionID    string         `json:"transactionId,omitempty"`
	CustomerID       string         `json:"customerId,omitempty"`
	Amount           float64        `json:"amount"`
	IsFraud          int            `json:"isFraud"`
	FraudProbability float64        `json:"fraudProbability"`
	RiskLevel        string         `json:"riskLevel"`
	ModelVersion     string         `json:"modelVersion"`
	Features         map[string]any `json:"features,omitempty"`
	ScoredAt         time.Time      `json:"scoredAt"`
}

// Store persists scored transactions for the audit trail.
type Store interface {
	Record(ctx context.Context, tx *ScoredTransaction) error
	ListByCustomer(ctx context.Context, customerID string, limit int) ([]*ScoredTransaction, error)
}

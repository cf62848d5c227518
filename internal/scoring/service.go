// Package scoring is the request boundary: it turns one transaction record
// into a classification result, recovering model failures into typed errors
// and fanning successful results out to the audit trail, live feed and
// customer history.
package scoring

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/mbd888/fraudscore/internal/features"
	"github.com/mbd888/fraudscore/internal/feed"
	"github.com/mbd888/fraudscore/internal/history"
	"github.com/mbd888/fraudscore/internal/inference"
	"github.com/mbd888/fraudscore/internal/logging"
	"github.com/mbd888/fraudscore/internal/metrics"
	"github.com/mbd888/fraudscore/internal/traces"
)

// TimestampLayout formats Result.Timestamp.
const TimestampLayout = "2006-01-02 15:04:05"

const sideEffectTimeout = 5 * time.Second

// Result is the response body of a successful classification.
type Result struct {
	IsFraud          int     `json:"is_fraud"`
	FraudProbability float64 `json:"fraud_probability"`
	RiskLevel        string  `json:"risk_level"`
	Timestamp        string  `json:"timestamp"`
}

// Deriver computes features from a record.
type Deriver interface {
	Derive(ctx context.Context, rec *features.Record) (*features.Vector, error)
}

// Classifier runs the model over a feature vector.
type Classifier interface {
	Classify(ctx context.Context, vec *features.Vector) (inference.Classification, error)
}

// Publisher receives every successful prediction.
type Publisher interface {
	PublishPrediction(p feed.Prediction)
}

// Service scores transactions.
type Service struct {
	deriver      Deriver
	classifier   Classifier
	store        Store
	publisher    Publisher
	recorder     history.Recorder
	clock        func() time.Time
	modelVersion string
}

// Option configures a Service.
type Option func(*Service)

// WithStore records every result to the audit store.
func WithStore(s Store) Option {
	return func(svc *Service) { svc.store = s }
}

// WithPublisher sends every result to the live feed.
func WithPublisher(p Publisher) Option {
	return func(svc *Service) { svc.publisher = p }
}

// WithRecorder folds every scored amount into customer history.
func WithRecorder(r history.Recorder) Option {
	return func(svc *Service) { svc.recorder = r }
}

// WithClock overrides the time source stamped on results.
func WithClock(now func() time.Time) Option {
	return func(svc *Service) { svc.clock = now }
}

// WithModelVersion tags audit records with the model version.
func WithModelVersion(v string) Option {
	return func(svc *Service) { svc.modelVersion = v }
}

// NewService creates a scoring service.
func NewService(d Deriver, c Classifier, opts ...Option) *Service {
	s := &Service{
		deriver:    d,
		classifier: c,
		clock:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score derives features and classifies one record. Errors are *Error.
// Side effects run after the result is computed and never change it.
func (s *Service) Score(ctx context.Context, rec *features.Record) (res *Result, err error) {
	ctx = logging.WithTransactionID(ctx, rec.TransactionID())
	ctx, span := traces.StartSpan(ctx, "scoring.Score",
		traces.TransactionID(rec.TransactionID()),
		traces.CustomerID(rec.CustomerID()),
	)
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			logging.L(ctx).Error("panic during scoring", "panic", r)
			res, err = nil, panicError(r)
		}
		if err != nil {
			span.RecordError(err)
			metrics.PredictionErrorsTotal.WithLabelValues(string(KindOf(err))).Inc()
		}
	}()

	vec, err := s.deriver.Derive(ctx, rec)
	if err != nil {
		return nil, classify(err)
	}

	cls, err := s.classifier.Classify(ctx, vec)
	if err != nil {
		return nil, classify(err)
	}

	scoredAt := s.clock()
	metrics.PredictionsTotal.WithLabelValues(cls.RiskLevel).Inc()
	metrics.FraudProbability.Observe(cls.Probability)

	s.afterScore(ctx, rec, vec, cls, scoredAt)

	return &Result{
		IsFraud:          cls.IsFraud,
		FraudProbability: cls.Probability,
		RiskLevel:        cls.RiskLevel,
		Timestamp:        scoredAt.Local().Format(TimestampLayout),
	}, nil
}

func (s *Service) afterScore(ctx context.Context, rec *features.Record, vec *features.Vector, cls inference.Classification, scoredAt time.Time) {
	amount, _ := rec.Amount()
	tx := &ScoredTransaction{
		ID:               uuid.NewString(),
		TransactionID:    rec.TransactionID(),
		CustomerID:       rec.CustomerID(),
		Amount:           amount,
		IsFraud:          cls.IsFraud,
		FraudProbability: cls.Probability,
		RiskLevel:        cls.RiskLevel,
		ModelVersion:     s.modelVersion,
		Features:         vec.Map(),
		ScoredAt:         scoredAt,
	}

	if s.publisher != nil {
		s.publisher.PublishPrediction(feed.Prediction{
			TransactionID:    tx.TransactionID,
			CustomerID:       tx.CustomerID,
			Amount:           tx.Amount,
			IsFraud:          tx.IsFraud,
			FraudProbability: tx.FraudProbability,
			RiskLevel:        tx.RiskLevel,
			ScoredAt:         tx.ScoredAt,
		})
	}

	if s.store == nil && s.recorder == nil {
		return
	}

	// Persist asynchronously (best-effort audit trail). The request context
	// may be cancelled as soon as the response is written.
	logger := logging.L(ctx)
	go func() {
		bg, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
		defer cancel()

		if s.store != nil {
			if err := s.store.Record(bg, tx); err != nil {
				metrics.AuditWritesTotal.WithLabelValues("error").Inc()
				logger.Warn("failed to record scored transaction", "error", err)
			} else {
				metrics.AuditWritesTotal.WithLabelValues("ok").Inc()
			}
		}
		if s.recorder != nil && tx.CustomerID != "" {
			if err := s.recorder.Record(bg, tx.CustomerID, tx.Amount); err != nil {
				logger.Warn("failed to update customer history", "customer_id", tx.CustomerID, "error", err)
			}
		}
	}()
}

// History returns the most recent scored transactions of a customer.
func (s *Service) History(ctx context.Context, customerID string, limit int) ([]*ScoredTransaction, error) {
	if s.store == nil {
		return nil, nil
	}
	return s.store.ListByCustomer(ctx, customerID, limit)
}

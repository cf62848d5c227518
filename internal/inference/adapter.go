// Package inference encodes a feature vector, aligns it to the model's fitted
// schema, invokes the classifier and maps the probability to a risk tier.
package inference

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/mbd888/fraudscore/internal/features"
	"github.com/mbd888/fraudscore/internal/metrics"
	"github.com/mbd888/fraudscore/internal/model"
	"github.com/mbd888/fraudscore/internal/traces"
)

var (
	// ErrSchemaMismatch is returned when the vector cannot be aligned to the
	// model's columns.
	ErrSchemaMismatch = errors.New("schema mismatch")

	// ErrModelInvocation is returned when the classifier fails.
	ErrModelInvocation = errors.New("model invocation failed")
)

// DefaultFallbackCode is the code assigned to labels unseen during fitting.
const DefaultFallbackCode = 0

// Classification is the outcome of one model invocation.
type Classification struct {
	IsFraud     int
	Probability float64
	Tier        Tier
	RiskLevel   string
}

// Adapter runs the fitted model over derived feature vectors. It is safe for
// concurrent use; the artifacts it holds are never mutated.
type Adapter struct {
	clf        model.Classifier
	encoders   *model.EncoderSet
	thresholds Thresholds
	fallback   float64
	locale     string
	positive   int // PredictProba column of the fraud class
	fraudLabel int // class label Predict returns for fraud
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithThresholds overrides the default tier thresholds.
func WithThresholds(t Thresholds) Option {
	return func(a *Adapter) {
		a.thresholds = t
	}
}

// WithFallbackCode overrides the code used for unseen labels.
func WithFallbackCode(code float64) Option {
	return func(a *Adapter) {
		a.fallback = code
	}
}

// WithLocale selects the risk label language.
func WithLocale(locale string) Option {
	return func(a *Adapter) {
		a.locale = locale
	}
}

// NewAdapter creates an adapter over loaded artifacts.
func NewAdapter(artifacts *model.Artifacts, opts ...Option) (*Adapter, error) {
	if artifacts == nil || artifacts.Classifier == nil {
		return nil, errors.New("inference: classifier is required")
	}
	a := &Adapter{
		clf:        artifacts.Classifier,
		encoders:   artifacts.Encoders,
		thresholds: DefaultThresholds(),
		fallback:   DefaultFallbackCode,
		locale:     LocaleTR,
		fraudLabel: 1,
	}
	info := artifacts.Classifier.Info()
	a.positive = info.PositiveClassIndex()
	if a.positive >= 0 && a.positive < len(info.Classes) {
		a.fraudLabel = info.Classes[a.positive]
	}
	for _, opt := range opts {
		opt(a)
	}
	if err := a.thresholds.Validate(); err != nil {
		return nil, err
	}
	if math.IsNaN(a.fallback) || math.IsInf(a.fallback, 0) {
		return nil, fmt.Errorf("inference: fallback code must be finite (got %v)", a.fallback)
	}
	if !ValidLocale(a.locale) {
		return nil, fmt.Errorf("inference: unsupported locale %q", a.locale)
	}
	return a, nil
}

// Thresholds returns the configured tier thresholds.
func (a *Adapter) Thresholds() Thresholds { return a.thresholds }

// FallbackCode returns the code assigned to unseen labels.
func (a *Adapter) FallbackCode() float64 { return a.fallback }

// Locale returns the risk label locale.
func (a *Adapter) Locale() string { return a.locale }

// Classify encodes and aligns vec, then runs the model on the single row.
func (a *Adapter) Classify(ctx context.Context, vec *features.Vector) (Classification, error) {
	_, span := traces.StartSpan(ctx, "inference.Classify", traces.ModelVersion(a.clf.Info().Version))
	defer span.End()

	start := time.Now()
	defer func() {
		metrics.InferenceDuration.Observe(time.Since(start).Seconds())
	}()

	row, _, err := a.Align(a.Encode(vec))
	if err != nil {
		return Classification{}, err
	}

	cls, err := a.clf.Predict(row)
	if err != nil {
		return Classification{}, fmt.Errorf("%w: predict: %v", ErrModelInvocation, err)
	}
	proba, err := a.clf.PredictProba(row)
	if err != nil {
		return Classification{}, fmt.Errorf("%w: predict_proba: %v", ErrModelInvocation, err)
	}
	if a.positive < 0 || a.positive >= len(proba) {
		return Classification{}, fmt.Errorf("%w: predict_proba returned %d columns", ErrModelInvocation, len(proba))
	}

	p := proba[a.positive]
	isFraud := 0
	if cls == a.fraudLabel {
		isFraud = 1
	}
	tier := a.thresholds.Tier(p)
	span.SetAttributes(traces.FraudProbability(p), traces.RiskLevel(tier.Label(a.locale)))
	return Classification{
		IsFraud:     isFraud,
		Probability: p,
		Tier:        tier,
		RiskLevel:   tier.Label(a.locale),
	}, nil
}

// Encode replaces each encoded column's label with its fitted code. Unseen
// labels get the fallback code. vec is not modified.
func (a *Adapter) Encode(vec *features.Vector) *features.Vector {
	out := vec.Clone()
	for _, col := range vec.Columns() {
		table, ok := a.encoders.Table(col)
		if !ok {
			continue
		}
		v, _ := vec.Get(col)
		code, ok := table.Code(v.Label())
		if !ok {
			metrics.UnknownCategoriesTotal.WithLabelValues(col).Inc()
			out.Set(col, features.Number(a.fallback))
			continue
		}
		out.Set(col, features.Number(float64(code)))
	}
	return out
}

// Align orders the encoded vector into the model's row. With fitted feature
// names the row follows them exactly and extra columns are ignored; without
// names the vector's own order is used.
func (a *Adapter) Align(vec *features.Vector) ([]float64, []string, error) {
	cols := a.clf.FeatureNames()
	if cols == nil {
		cols = vec.Columns()
	}
	row := make([]float64, len(cols))
	for i, col := range cols {
		v, ok := vec.Get(col)
		if !ok {
			return nil, nil, fmt.Errorf("%w: missing column %q", ErrSchemaMismatch, col)
		}
		f, ok := v.Float()
		if !ok {
			return nil, nil, fmt.Errorf("%w: column %q is not numeric (%q) and has no encoder", ErrSchemaMismatch, col, v.Label())
		}
		row[i] = f
	}
	return row, cols, nil
}

package features

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mbd888/fraudscore/internal/logging"
	"github.com/mbd888/fraudscore/internal/traces"
)

// Defaults applied when neither the payload nor a history provider supplies
// a customer's behaviour. A first-time customer whose average equals the
// current amount carries no deviation signal.
const DefaultCustomerFreq = 1

// dropped columns are identifiers and the raw timestamp; none are model inputs.
var dropped = []string{ColTransactionID, ColCustomerID, ColTimestamp}

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05-0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05-0700",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// History is a customer's behavioural summary.
type History struct {
	Frequency     int
	AverageAmount float64
}

// HistoryProvider looks up a customer's history. found=false means no
// history is known and defaults apply.
type HistoryProvider interface {
	Lookup(ctx context.Context, customerID string) (h History, found bool, err error)
}

// Deriver computes model features from a transaction record.
type Deriver struct {
	history HistoryProvider
}

// Option configures a Deriver.
type Option func(*Deriver)

// WithHistory injects a customer history provider.
func WithHistory(p HistoryProvider) Option {
	return func(d *Deriver) {
		d.history = p
	}
}

// NewDeriver creates a feature deriver. Without a history provider Derive is
// a pure function of the record.
func NewDeriver(opts ...Option) *Deriver {
	d := &Deriver{}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Derive maps a record to its feature vector. Payload columns keep their
// order, followed by Hour, DayOfWeek, any defaulted history columns and
// Amount_Diff. Identifier and timestamp columns are removed.
func (d *Deriver) Derive(ctx context.Context, rec *Record) (*Vector, error) {
	ctx, span := traces.StartSpan(ctx, "features.Derive")
	defer span.End()

	vec := rec.fields.Clone()

	tsVal, ok := vec.Get(ColTimestamp)
	if !ok {
		return nil, fmt.Errorf("%w: missing %q", ErrMalformedInput, ColTimestamp)
	}
	ts, err := ParseTimestamp(tsVal)
	if err != nil {
		return nil, err
	}

	amtVal, ok := vec.Get(ColAmount)
	if !ok {
		return nil, fmt.Errorf("%w: missing %q", ErrMalformedInput, ColAmount)
	}
	amount, ok := numeric(amtVal)
	if !ok {
		return nil, fmt.Errorf("%w: %q must be numeric, got %q", ErrMalformedInput, ColAmount, amtVal.Label())
	}
	vec.Set(ColAmount, Number(amount))

	vec.Set(ColHour, Number(float64(ts.Hour())))
	vec.Set(ColDayOfWeek, Number(float64(DayOfWeek(ts))))

	var hist History
	var haveHist bool
	if !vec.Has(ColCustomerFreq) || !vec.Has(ColCustomerAvgAmount) {
		hist, haveHist = d.lookup(ctx, rec.CustomerID())
	}

	if v, ok := vec.Get(ColCustomerFreq); ok {
		if f, isNum := numeric(v); isNum {
			vec.Set(ColCustomerFreq, Number(f))
		}
	} else if haveHist {
		vec.Set(ColCustomerFreq, Number(float64(hist.Frequency)))
	} else {
		vec.Set(ColCustomerFreq, Number(DefaultCustomerFreq))
	}

	var avg float64
	if v, ok := vec.Get(ColCustomerAvgAmount); ok {
		avg, ok = numeric(v)
		if !ok {
			return nil, fmt.Errorf("%w: %q must be numeric, got %q", ErrMalformedInput, ColCustomerAvgAmount, v.Label())
		}
		vec.Set(ColCustomerAvgAmount, Number(avg))
	} else {
		avg = amount
		if haveHist {
			avg = hist.AverageAmount
		}
		vec.Set(ColCustomerAvgAmount, Number(avg))
	}

	vec.Set(ColAmountDiff, Number(amount-avg))

	for _, name := range dropped {
		vec.Delete(name)
	}
	return vec, nil
}

func (d *Deriver) lookup(ctx context.Context, customerID string) (History, bool) {
	if d.history == nil || customerID == "" {
		return History{}, false
	}
	h, found, err := d.history.Lookup(ctx, customerID)
	if err != nil {
		logging.L(ctx).Warn("customer history lookup failed, using defaults",
			"customer_id", customerID,
			"error", err,
		)
		return History{}, false
	}
	if found && h.Frequency <= 0 {
		return History{}, false
	}
	return h, found
}

// ParseTimestamp parses a timestamp column. Offsets are preserved so hour and
// weekday reflect the sender's wall clock.
func ParseTimestamp(v Value) (time.Time, error) {
	if v.Kind() != KindString {
		return time.Time{}, fmt.Errorf("%w: %q must be a date-time string", ErrMalformedInput, ColTimestamp)
	}
	s := strings.TrimSpace(v.Label())
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: cannot parse %q %q", ErrMalformedInput, ColTimestamp, s)
}

// DayOfWeek returns the weekday with Monday=0 through Sunday=6.
func DayOfWeek(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

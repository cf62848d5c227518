package features

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHistory struct {
	h     History
	found bool
	err   error
	calls int
}

func (f *fakeHistory) Lookup(ctx context.Context, customerID string) (History, bool, error) {
	f.calls++
	return f.h, f.found, f.err
}

func decode(t *testing.T, body string) *Record {
	t.Helper()
	rec, err := DecodeRecord(strings.NewReader(body))
	require.NoError(t, err)
	return rec
}

func number(t *testing.T, vec *Vector, col string) float64 {
	t.Helper()
	v, ok := vec.Get(col)
	require.True(t, ok, "column %q missing", col)
	f, ok := v.Float()
	require.True(t, ok, "column %q is not numeric", col)
	return f
}

func TestDerive_NoHistoryMeansZeroDiff(t *testing.T) {
	rec := decode(t, `{"Transaction ID":"TX1","Customer ID":"C1","Timestamp":"2024-03-15T14:30:00","Amount (TRY)":1234.56}`)

	vec, err := NewDeriver().Derive(context.Background(), rec)
	require.NoError(t, err)

	assert.Equal(t, 0.0, number(t, vec, ColAmountDiff))
	assert.Equal(t, 1.0, number(t, vec, ColCustomerFreq))
	assert.Equal(t, 1234.56, number(t, vec, ColCustomerAvgAmount))
}

func TestDerive_SuppliedAverage(t *testing.T) {
	rec := decode(t, `{"Timestamp":"2024-03-15T14:30:00","Amount (TRY)":1000.5,"Customer_Avg_Amount":250.25,"Customer_Freq":7}`)

	vec, err := NewDeriver().Derive(context.Background(), rec)
	require.NoError(t, err)

	assert.Equal(t, 1000.5-250.25, number(t, vec, ColAmountDiff))
	assert.Equal(t, 7.0, number(t, vec, ColCustomerFreq))
}

func TestDerive_HourAndDayOfWeek(t *testing.T) {
	// 2024-03-15 is a Friday
	rec := decode(t, `{"Timestamp":"2024-03-15T14:30:00","Amount (TRY)":10}`)

	vec, err := NewDeriver().Derive(context.Background(), rec)
	require.NoError(t, err)

	assert.Equal(t, 14.0, number(t, vec, ColHour))
	assert.Equal(t, 4.0, number(t, vec, ColDayOfWeek))
}

func TestDerive_TimestampLayouts(t *testing.T) {
	tests := []struct {
		ts   string
		hour float64
		dow  float64
	}{
		{"2024-03-15T14:30:00Z", 14, 4},
		{"2024-03-15T14:30:00.123+03:00", 14, 4},
		{"2024-03-15 23:59:59", 23, 4},
		{"2024-03-15T14:30:00+0300", 14, 4},
		{"2024-03-15 02:15:00.5-0500", 2, 4},
		{"2024-03-17T08:00", 8, 6},
		{"2024-03-18", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.ts, func(t *testing.T) {
			rec := decode(t, `{"Timestamp":"`+tt.ts+`","Amount (TRY)":10}`)
			vec, err := NewDeriver().Derive(context.Background(), rec)
			require.NoError(t, err)
			assert.Equal(t, tt.hour, number(t, vec, ColHour))
			assert.Equal(t, tt.dow, number(t, vec, ColDayOfWeek))
		})
	}
}

func TestDerive_DropsIdentifiersAndTimestamp(t *testing.T) {
	rec := decode(t, `{"Transaction ID":"TX1","Customer ID":"C1","Timestamp":"2024-03-15T14:30:00","Amount (TRY)":5,"Channel":"Mobile"}`)

	vec, err := NewDeriver().Derive(context.Background(), rec)
	require.NoError(t, err)

	assert.False(t, vec.Has(ColTransactionID))
	assert.False(t, vec.Has(ColCustomerID))
	assert.False(t, vec.Has(ColTimestamp))
	assert.True(t, vec.Has("Channel"))
}

func TestDerive_ColumnOrder(t *testing.T) {
	rec := decode(t, `{"Transaction ID":"TX1","Merchant Category":"Electronics","Timestamp":"2024-03-15T14:30:00","Amount (TRY)":5,"Channel":"Mobile"}`)

	vec, err := NewDeriver().Derive(context.Background(), rec)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"Merchant Category", ColAmount, "Channel",
		ColHour, ColDayOfWeek, ColCustomerFreq, ColCustomerAvgAmount, ColAmountDiff,
	}, vec.Columns())
}

func TestDerive_SuppliedHistoryKeepsPayloadPosition(t *testing.T) {
	rec := decode(t, `{"Customer_Freq":3,"Timestamp":"2024-03-15T14:30:00","Amount (TRY)":5,"Customer_Avg_Amount":2}`)

	vec, err := NewDeriver().Derive(context.Background(), rec)
	require.NoError(t, err)

	assert.Equal(t, []string{
		ColCustomerFreq, ColAmount, ColCustomerAvgAmount, ColHour, ColDayOfWeek, ColAmountDiff,
	}, vec.Columns())
}

func TestDerive_AliasesAreCanonicalized(t *testing.T) {
	rec := decode(t, `{"transaction_id":"TX1","customer_id":"C1","timestamp":"2024-03-15T14:30:00","amount":"12.5","customer_avg_amount":2.5}`)

	vec, err := NewDeriver().Derive(context.Background(), rec)
	require.NoError(t, err)

	assert.Equal(t, 12.5, number(t, vec, ColAmount))
	assert.Equal(t, 10.0, number(t, vec, ColAmountDiff))
	assert.Equal(t, "TX1", rec.TransactionID())
	assert.Equal(t, "C1", rec.CustomerID())
}

func TestDerive_NullOptionalFieldsAreAbsent(t *testing.T) {
	rec := decode(t, `{"Timestamp":"2024-03-15T14:30:00","Amount (TRY)":40,"Customer_Freq":null,"Customer_Avg_Amount":null}`)

	vec, err := NewDeriver().Derive(context.Background(), rec)
	require.NoError(t, err)

	assert.Equal(t, 1.0, number(t, vec, ColCustomerFreq))
	assert.Equal(t, 0.0, number(t, vec, ColAmountDiff))
}

func TestDerive_MalformedInput(t *testing.T) {
	tests := map[string]string{
		"missing timestamp":   `{"Amount (TRY)":10}`,
		"bad timestamp":       `{"Timestamp":"yesterday","Amount (TRY)":10}`,
		"numeric timestamp":   `{"Timestamp":1710513000,"Amount (TRY)":10}`,
		"missing amount":      `{"Timestamp":"2024-03-15T14:30:00"}`,
		"non-numeric amount":  `{"Timestamp":"2024-03-15T14:30:00","Amount (TRY)":"lots"}`,
		"null amount":         `{"Timestamp":"2024-03-15T14:30:00","Amount (TRY)":null}`,
		"non-numeric average": `{"Timestamp":"2024-03-15T14:30:00","Amount (TRY)":10,"Customer_Avg_Amount":"n/a"}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			rec := decode(t, body)
			_, err := NewDeriver().Derive(context.Background(), rec)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformedInput)
		})
	}
}

func TestDerive_DoesNotMutateRecord(t *testing.T) {
	rec := decode(t, `{"Transaction ID":"TX1","Timestamp":"2024-03-15T14:30:00","Amount (TRY)":10}`)
	before := rec.Columns()

	_, err := NewDeriver().Derive(context.Background(), rec)
	require.NoError(t, err)

	assert.Equal(t, before, rec.Columns())
}

func TestDerive_HistoryProviderFillsMissingFields(t *testing.T) {
	hp := &fakeHistory{h: History{Frequency: 12, AverageAmount: 400}, found: true}
	rec := decode(t, `{"Customer ID":"C1","Timestamp":"2024-03-15T14:30:00","Amount (TRY)":1000}`)

	vec, err := NewDeriver(WithHistory(hp)).Derive(context.Background(), rec)
	require.NoError(t, err)

	assert.Equal(t, 1, hp.calls)
	assert.Equal(t, 12.0, number(t, vec, ColCustomerFreq))
	assert.Equal(t, 400.0, number(t, vec, ColCustomerAvgAmount))
	assert.Equal(t, 600.0, number(t, vec, ColAmountDiff))
}

func TestDerive_PayloadOverridesHistory(t *testing.T) {
	hp := &fakeHistory{h: History{Frequency: 12, AverageAmount: 400}, found: true}
	rec := decode(t, `{"Customer ID":"C1","Timestamp":"2024-03-15T14:30:00","Amount (TRY)":1000,"Customer_Freq":2,"Customer_Avg_Amount":900}`)

	vec, err := NewDeriver(WithHistory(hp)).Derive(context.Background(), rec)
	require.NoError(t, err)

	assert.Equal(t, 0, hp.calls, "no lookup needed when both fields are supplied")
	assert.Equal(t, 2.0, number(t, vec, ColCustomerFreq))
	assert.Equal(t, 100.0, number(t, vec, ColAmountDiff))
}

func TestDerive_HistoryErrorFallsBackToDefaults(t *testing.T) {
	hp := &fakeHistory{err: errors.New("redis down")}
	rec := decode(t, `{"Customer ID":"C1","Timestamp":"2024-03-15T14:30:00","Amount (TRY)":1000}`)

	vec, err := NewDeriver(WithHistory(hp)).Derive(context.Background(), rec)
	require.NoError(t, err)

	assert.Equal(t, 1.0, number(t, vec, ColCustomerFreq))
	assert.Equal(t, 0.0, number(t, vec, ColAmountDiff))
}

func TestDerive_HistorySkippedWithoutCustomerID(t *testing.T) {
	hp := &fakeHistory{h: History{Frequency: 5, AverageAmount: 1}, found: true}
	rec := decode(t, `{"Timestamp":"2024-03-15T14:30:00","Amount (TRY)":1000}`)

	_, err := NewDeriver(WithHistory(hp)).Derive(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, 0, hp.calls)
}

func TestDayOfWeek(t *testing.T) {
	monday := time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 7; i++ {
		assert.Equal(t, i, DayOfWeek(monday.AddDate(0, 0, i)))
	}
}

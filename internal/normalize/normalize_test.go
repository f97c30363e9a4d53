package normalize

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/stock-data/internal/model"
)

func payload(t *testing.T, body string) map[string]json.RawMessage {
	t.Helper()
	var p map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(body), &p))
	return p
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestNormalizeBar_FlatRow(t *testing.T) {
	fields := map[string]string{
		"date":   "2024-01-02",
		"open":   "100.00",
		"high":   "101.50",
		"low":    "99.00",
		"close":  "100.75",
		"volume": "1000000",
	}

	bar, err := NormalizeBar("AAPL", model.Daily, fields)
	require.NoError(t, err)

	assert.Equal(t, "AAPL", bar.Symbol)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), bar.Timestamp)
	assert.True(t, bar.Open.Equal(dec("100.00")), "open = %s", bar.Open)
	assert.True(t, bar.High.Equal(dec("101.50")), "high = %s", bar.High)
	assert.True(t, bar.Low.Equal(dec("99.00")), "low = %s", bar.Low)
	assert.True(t, bar.Close.Equal(dec("100.75")), "close = %s", bar.Close)
	assert.Equal(t, int64(1000000), bar.Volume)
}

func TestNormalize_DailyPreservesOrder(t *testing.T) {
	p := payload(t, `{
		"Meta Data": {"1. Information": "Daily Prices", "2. Symbol": "IBM"},
		"Time Series (Daily)": {
			"2024-01-04": {"1. open": "160.5", "2. high": "161.0", "3. low": "159.9", "4. close": "160.1", "5. volume": "100"},
			"2024-01-02": {"1. open": "162.8", "2. high": "163.3", "3. low": "160.5", "4. close": "161.5", "5. volume": "300"},
			"2024-01-03": {"1. open": "161.0", "2. high": "161.7", "3. low": "160.3", "4. close": "160.9", "5. volume": "200"}
		}
	}`)

	rows, err := Normalize(model.Daily, p)
	require.NoError(t, err)
	require.Equal(t, model.Daily, rows.Kind)
	require.Len(t, rows.Bars, 3)
	assert.Empty(t, rows.Points)

	days := []int{4, 2, 3}
	for i, b := range rows.Bars {
		assert.Equal(t, "IBM", b.Symbol)
		assert.Equal(t, time.Date(2024, 1, days[i], 0, 0, 0, 0, time.UTC), b.Timestamp)
	}
	assert.Equal(t, int64(300), rows.Bars[1].Volume)
}

func TestNormalize_EmptySeries(t *testing.T) {
	tests := []struct {
		kind model.EndpointKind
		body string
	}{
		{model.Daily, `{"Meta Data": {"2. Symbol": "IBM"}, "Time Series (Daily)": {}}`},
		{model.Intraday, `{"Meta Data": {"2. Symbol": "IBM"}, "Time Series (5min)": {}}`},
		{model.SMA, `{"Meta Data": {"1: Symbol": "IBM"}, "Technical Analysis: SMA": {}}`},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			rows, err := Normalize(tt.kind, payload(t, tt.body))
			require.NoError(t, err)
			assert.Equal(t, 0, rows.Len())
			assert.Equal(t, tt.kind, rows.Kind)
		})
	}
}

func TestNormalizeFor_Intraday(t *testing.T) {
	p := payload(t, `{
		"Meta Data": {"2. Symbol": "ibm"},
		"Time Series (15min)": {
			"2024-01-02 19:45:00": {"1. open": "161.5000", "2. high": "161.5500", "3. low": "161.4000", "4. close": "161.4500", "5. volume": "1200"}
		}
	}`)

	n := New("15min")
	assert.Equal(t, "Time Series (15min)", n.SeriesKey(model.Intraday))

	rows, err := n.NormalizeFor("IBM", model.Intraday, p)
	require.NoError(t, err)
	require.Len(t, rows.Bars, 1)

	b := rows.Bars[0]
	assert.Equal(t, "IBM", b.Symbol, "caller's symbol wins over meta data")
	assert.Equal(t, time.Date(2024, 1, 2, 19, 45, 0, 0, time.UTC), b.Timestamp)

	// Default interval looks for the 5min key and fails.
	_, err = New("").NormalizeFor("IBM", model.Intraday, p)
	var ne *NormalizationError
	require.ErrorAs(t, err, &ne)
	assert.Equal(t, "Time Series (5min)", ne.Field)
}

func TestNormalize_SMA(t *testing.T) {
	p := payload(t, `{
		"Meta Data": {"1: Symbol": "MSFT", "2: Indicator": "Simple Moving Average (SMA)"},
		"Technical Analysis: SMA": {
			"2024-01-02 16:00": {"SMA": "370.123456"},
			"2024-01-02 15:00:00": {"SMA": "369.5"},
			"2024-01-01": {"SMA": "368"}
		}
	}`)

	rows, err := Normalize(model.SMA, p)
	require.NoError(t, err)
	require.Len(t, rows.Points, 3)
	assert.Empty(t, rows.Bars)

	want := []struct {
		ts    time.Time
		value string
	}{
		{time.Date(2024, 1, 2, 16, 0, 0, 0, time.UTC), "370.1235"},
		{time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC), "369.5"},
		{time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), "368"},
	}
	for i, w := range want {
		assert.Equal(t, "MSFT", rows.Points[i].Symbol)
		assert.Equal(t, w.ts, rows.Points[i].Timestamp)
		assert.True(t, rows.Points[i].Value.Equal(dec(w.value)), "value[%d] = %s, want %s", i, rows.Points[i].Value, w.value)
	}
}

func TestNormalize_RoundsToPriceScale(t *testing.T) {
	p := payload(t, `{
		"Time Series (Daily)": {
			"2024-01-02": {"1. open": "10.123449", "2. high": "10.99995", "3. low": "10.0", "4. close": "10.5", "5. volume": "1.0"}
		}
	}`)

	rows, err := New("").NormalizeFor("X", model.Daily, p)
	require.NoError(t, err)
	require.Len(t, rows.Bars, 1)

	b := rows.Bars[0]
	assert.Equal(t, "10.1234", b.Open.StringFixed(4))
	assert.Equal(t, "11.0000", b.High.StringFixed(4))
	assert.Equal(t, int64(1), b.Volume)
}

func TestNormalize_Errors(t *testing.T) {
	tests := []struct {
		name  string
		kind  model.EndpointKind
		body  string
		key   string
		field string
	}{
		{
			name:  "series missing",
			kind:  model.Daily,
			body:  `{"Meta Data": {"2. Symbol": "IBM"}}`,
			field: "Time Series (Daily)",
		},
		{
			name: "no symbol anywhere",
			kind: model.Daily,
			body: `{"Time Series (Daily)": {}}`,
		},
		{
			name:  "series not an object",
			kind:  model.SMA,
			body:  `{"Meta Data": {"1: Symbol": "IBM"}, "Technical Analysis: SMA": [1, 2]}`,
			field: "Technical Analysis: SMA",
		},
		{
			name:  "missing close",
			kind:  model.Daily,
			body:  `{"Meta Data": {"2. Symbol": "IBM"}, "Time Series (Daily)": {"2024-01-02": {"1. open": "1", "2. high": "2", "3. low": "1", "5. volume": "3"}}}`,
			key:   "2024-01-02",
			field: "4. close",
		},
		{
			name:  "unparsable high",
			kind:  model.Daily,
			body:  `{"Meta Data": {"2. Symbol": "IBM"}, "Time Series (Daily)": {"2024-01-02": {"1. open": "1", "2. high": "n/a", "3. low": "1", "4. close": "1", "5. volume": "3"}}}`,
			key:   "2024-01-02",
			field: "2. high",
		},
		{
			name:  "negative volume",
			kind:  model.Daily,
			body:  `{"Meta Data": {"2. Symbol": "IBM"}, "Time Series (Daily)": {"2024-01-02": {"1. open": "1", "2. high": "2", "3. low": "1", "4. close": "1", "5. volume": "-3"}}}`,
			key:   "2024-01-02",
			field: "5. volume",
		},
		{
			name: "low above high",
			kind: model.Daily,
			body: `{"Meta Data": {"2. Symbol": "IBM"}, "Time Series (Daily)": {"2024-01-02": {"1. open": "1", "2. high": "1", "3. low": "2", "4. close": "1", "5. volume": "3"}}}`,
			key:  "2024-01-02",
		},
		{
			name: "bad intraday timestamp",
			kind: model.Intraday,
			body: `{"Meta Data": {"2. Symbol": "IBM"}, "Time Series (5min)": {"2024-01-02": {"1. open": "1", "2. high": "1", "3. low": "1", "4. close": "1", "5. volume": "3"}}}`,
			key:  "2024-01-02",
		},
		{
			name:  "sma value missing",
			kind:  model.SMA,
			body:  `{"Meta Data": {"1: Symbol": "IBM"}, "Technical Analysis: SMA": {"2024-01-02 10:00": {"EMA": "1"}}}`,
			key:   "2024-01-02 10:00",
			field: "SMA",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := Normalize(tt.kind, payload(t, tt.body))
			require.Error(t, err)
			assert.Equal(t, 0, rows.Len(), "a rejected payload yields no rows")
			assert.True(t, IsNormalizationError(err))

			var ne *NormalizationError
			require.True(t, errors.As(err, &ne))
			assert.Equal(t, tt.kind, ne.Endpoint)
			assert.Equal(t, tt.key, ne.Key)
			assert.Equal(t, tt.field, ne.Field)
		})
	}
}

func TestNormalizationError_Message(t *testing.T) {
	err := &NormalizationError{
		Endpoint: model.Daily,
		Key:      "2024-01-02",
		Field:    "2. high",
		Reason:   "not a number",
		Err:      errors.New("boom"),
	}
	assert.Equal(t, `normalize daily [2024-01-02] field "2. high": not a number: boom`, err.Error())
}

// Package normalize turns raw upstream payloads into typed rows.
//
// Normalization is pure: no I/O, no clock. The upstream's document order is
// preserved in the returned rows.
package normalize

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/rickgao/stock-data/internal/model"
)

// Series keys in the upstream body.
const (
	DailySeriesKey = "Time Series (Daily)"
	SMASeriesKey   = "Technical Analysis: SMA"
	metaDataKey    = "Meta Data"
)

// DefaultIntradayInterval matches the client's default interval parameter.
const DefaultIntradayInterval = "5min"

// Timestamp layouts. All values are wall-clock and stored as UTC.
const (
	dateLayout     = "2006-01-02"
	dateTimeLayout = "2006-01-02 15:04:05"
	dateHourLayout = "2006-01-02 15:04"
)

// NormalizationError reports a payload that cannot be turned into rows.
type NormalizationError struct {
	Endpoint model.EndpointKind
	Key      string // series timestamp key, empty for payload-level problems
	Field    string
	Reason   string
	Err      error
}

func (e *NormalizationError) Error() string {
	var b strings.Builder
	b.WriteString("normalize ")
	b.WriteString(e.Endpoint.String())
	if e.Key != "" {
		b.WriteString(" [" + e.Key + "]")
	}
	if e.Field != "" {
		b.WriteString(" field " + strconv.Quote(e.Field))
	}
	b.WriteString(": " + e.Reason)
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

func (e *NormalizationError) Unwrap() error { return e.Err }

// IsNormalizationError reports whether err carries a *NormalizationError.
func IsNormalizationError(err error) bool {
	var ne *NormalizationError
	return errors.As(err, &ne)
}

// Normalizer converts payloads for a fixed intraday interval.
type Normalizer struct {
	intradayInterval string
}

// New creates a Normalizer. An empty interval selects DefaultIntradayInterval.
func New(intradayInterval string) *Normalizer {
	if intradayInterval == "" {
		intradayInterval = DefaultIntradayInterval
	}
	return &Normalizer{intradayInterval: intradayInterval}
}

// Normalize converts payload using the default intraday interval. The symbol
// is read from the payload's meta data.
func Normalize(kind model.EndpointKind, payload map[string]json.RawMessage) (model.Rows, error) {
	return New("").NormalizeFor("", kind, payload)
}

// SeriesKey returns the top-level key holding the series for kind.
func (n *Normalizer) SeriesKey(kind model.EndpointKind) string {
	switch kind {
	case model.Intraday:
		return "Time Series (" + n.intradayInterval + ")"
	case model.SMA:
		return SMASeriesKey
	default:
		return DailySeriesKey
	}
}

// NormalizeFor converts payload into rows keyed to symbol. When symbol is
// empty the payload's meta data supplies it.
func (n *Normalizer) NormalizeFor(symbol string, kind model.EndpointKind, payload map[string]json.RawMessage) (model.Rows, error) {
	rows := model.Rows{Kind: kind}

	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		symbol = metaSymbol(payload)
	}
	if symbol == "" {
		return rows, &NormalizationError{Endpoint: kind, Reason: "no symbol in request or meta data"}
	}

	key := n.SeriesKey(kind)
	raw, ok := payload[key]
	if !ok {
		return rows, &NormalizationError{Endpoint: kind, Field: key, Reason: "series missing"}
	}

	series := orderedmap.New[string, map[string]string]()
	if err := json.Unmarshal(raw, series); err != nil {
		return rows, &NormalizationError{Endpoint: kind, Field: key, Reason: "series is not an object of string fields", Err: err}
	}

	switch kind {
	case model.SMA:
		rows.Points = make([]model.SmaPoint, 0, series.Len())
	default:
		rows.Bars = make([]model.PriceBar, 0, series.Len())
	}

	for pair := series.Oldest(); pair != nil; pair = pair.Next() {
		switch kind {
		case model.SMA:
			p, err := smaPoint(symbol, pair.Key, pair.Value)
			if err != nil {
				return model.Rows{Kind: kind}, err
			}
			rows.Points = append(rows.Points, p)
		default:
			b, err := priceBar(symbol, kind, pair.Key, pair.Value)
			if err != nil {
				return model.Rows{Kind: kind}, err
			}
			rows.Bars = append(rows.Bars, b)
		}
	}

	return rows, nil
}

// metaSymbol reads the symbol from "Meta Data". Price series use "2. Symbol",
// indicators use "1: Symbol".
func metaSymbol(payload map[string]json.RawMessage) string {
	raw, ok := payload[metaDataKey]
	if !ok {
		return ""
	}
	var meta map[string]any
	if err := json.Unmarshal(raw, &meta); err != nil {
		return ""
	}
	for _, k := range []string{"2. Symbol", "1: Symbol", "1. Symbol"} {
		if s, ok := meta[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// -----------------------------------------------------------------------------
// Row conversion
// -----------------------------------------------------------------------------

// Field names; the numbered form is what the series uses, the bare form is
// accepted for flat single-row objects.
var (
	openFields   = []string{"1. open", "open"}
	highFields   = []string{"2. high", "high"}
	lowFields    = []string{"3. low", "low"}
	closeFields  = []string{"4. close", "close"}
	volumeFields = []string{"5. volume", "volume"}
	smaFields    = []string{"SMA", "sma", "sma_value"}
	dateFields   = []string{"date", "timestamp", "datetime"}
)

// NormalizeBar converts one flat row such as
// {"date":"2024-01-02","open":"100.00",...,"volume":"1000000"} into a PriceBar.
func NormalizeBar(symbol string, kind model.EndpointKind, fields map[string]string) (model.PriceBar, error) {
	_, ts, ok := lookup(fields, dateFields)
	if !ok {
		return model.PriceBar{}, &NormalizationError{Endpoint: kind, Field: "date", Reason: "missing"}
	}
	return priceBar(symbol, kind, ts, fields)
}

func priceBar(symbol string, kind model.EndpointKind, key string, fields map[string]string) (model.PriceBar, error) {
	ts, err := parseTimestamp(kind, key)
	if err != nil {
		return model.PriceBar{}, &NormalizationError{Endpoint: kind, Key: key, Reason: "bad timestamp", Err: err}
	}

	bar := model.PriceBar{Symbol: symbol, Timestamp: ts}
	for _, f := range []struct {
		names []string
		dst   *decimal.Decimal
	}{
		{openFields, &bar.Open},
		{highFields, &bar.High},
		{lowFields, &bar.Low},
		{closeFields, &bar.Close},
	} {
		d, err := decimalField(kind, key, fields, f.names)
		if err != nil {
			return model.PriceBar{}, err
		}
		*f.dst = d
	}

	name, raw, ok := lookup(fields, volumeFields)
	if !ok {
		return model.PriceBar{}, &NormalizationError{Endpoint: kind, Key: key, Field: volumeFields[0], Reason: "missing"}
	}
	vol, err := parseVolume(raw)
	if err != nil {
		return model.PriceBar{}, &NormalizationError{Endpoint: kind, Key: key, Field: name, Reason: "bad volume", Err: err}
	}
	bar.Volume = vol

	if err := bar.Validate(); err != nil {
		return model.PriceBar{}, &NormalizationError{Endpoint: kind, Key: key, Reason: "invalid bar", Err: err}
	}
	return bar, nil
}

func smaPoint(symbol, key string, fields map[string]string) (model.SmaPoint, error) {
	ts, err := parseTimestamp(model.SMA, key)
	if err != nil {
		return model.SmaPoint{}, &NormalizationError{Endpoint: model.SMA, Key: key, Reason: "bad timestamp", Err: err}
	}
	v, err := decimalField(model.SMA, key, fields, smaFields)
	if err != nil {
		return model.SmaPoint{}, err
	}
	return model.SmaPoint{Symbol: symbol, Timestamp: ts, Value: v}, nil
}

func lookup(fields map[string]string, names []string) (string, string, bool) {
	for _, n := range names {
		if v, ok := fields[n]; ok {
			return n, v, true
		}
	}
	return "", "", false
}

func decimalField(kind model.EndpointKind, key string, fields map[string]string, names []string) (decimal.Decimal, error) {
	name, raw, ok := lookup(fields, names)
	if !ok {
		return decimal.Zero, &NormalizationError{Endpoint: kind, Key: key, Field: names[0], Reason: "missing"}
	}
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, &NormalizationError{Endpoint: kind, Key: key, Field: name, Reason: "not a number", Err: err}
	}
	return d.Round(model.PriceScale), nil
}

func parseVolume(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		// Some responses render volume as "1234.0".
		d, derr := decimal.NewFromString(raw)
		if derr != nil || !d.IsInteger() {
			return 0, fmt.Errorf("%q is not an integer", raw)
		}
		v = d.IntPart()
	}
	if v < 0 {
		return 0, fmt.Errorf("negative volume %d", v)
	}
	return v, nil
}

// parseTimestamp parses key at the granularity of kind: daily keys are
// calendar dates, intraday and SMA keys are full timestamps.
func parseTimestamp(kind model.EndpointKind, key string) (time.Time, error) {
	key = strings.TrimSpace(key)
	switch kind {
	case model.Daily:
		// Accept a timestamp and truncate; the upstream only sends dates here.
		for _, layout := range []string{dateLayout, dateTimeLayout} {
			if t, err := time.ParseInLocation(layout, key, time.UTC); err == nil {
				y, m, d := t.Date()
				return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
			}
		}
		return time.Time{}, fmt.Errorf("%q is not a date", key)
	case model.Intraday:
		return time.ParseInLocation(dateTimeLayout, key, time.UTC)
	default:
		for _, layout := range []string{dateTimeLayout, dateHourLayout, dateLayout} {
			if t, err := time.ParseInLocation(layout, key, time.UTC); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("%q is not a timestamp", key)
	}
}

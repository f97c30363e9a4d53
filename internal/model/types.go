package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PriceScale is the number of fractional digits kept for prices and indicator values.
// Matches DECIMAL(15, 4) in storage.
const PriceScale int32 = 4

// -----------------------------------------------------------------------------
// Relational Types
// -----------------------------------------------------------------------------

// Company is the parent row every price and indicator row references.
type Company struct {
	Symbol string // Primary key (e.g., "AAPL")
}

// Table identifies a storage table.
type Table int

const (
	TableCompanies Table = iota
	TableDailyPrices
	TableIntradayPrices
	TableSMAIndicators
)

// Name returns the SQL table name.
func (t Table) Name() string {
	switch t {
	case TableCompanies:
		return "companies"
	case TableDailyPrices:
		return "daily_stock_prices"
	case TableIntradayPrices:
		return "intraday_stock_prices"
	case TableSMAIndicators:
		return "sma_indicators"
	default:
		return fmt.Sprintf("table(%d)", int(t))
	}
}

func (t Table) String() string { return t.Name() }

// EndpointKind selects the upstream function, the normalization schema and the target table.
type EndpointKind int

const (
	Daily EndpointKind = iota
	Intraday
	SMA
)

// AllEndpoints lists every supported endpoint in a stable order.
var AllEndpoints = []EndpointKind{Daily, Intraday, SMA}

func (k EndpointKind) String() string {
	switch k {
	case Daily:
		return "daily"
	case Intraday:
		return "intraday"
	case SMA:
		return "sma"
	default:
		return fmt.Sprintf("endpoint(%d)", int(k))
	}
}

// Function returns the upstream API function name.
func (k EndpointKind) Function() string {
	switch k {
	case Daily:
		return "TIME_SERIES_DAILY"
	case Intraday:
		return "TIME_SERIES_INTRADAY"
	case SMA:
		return "SMA"
	default:
		return ""
	}
}

// Table returns the table rows of this kind are written to.
func (k EndpointKind) Table() Table {
	switch k {
	case Intraday:
		return TableIntradayPrices
	case SMA:
		return TableSMAIndicators
	default:
		return TableDailyPrices
	}
}

// ParseEndpointKind accepts the short names (daily, intraday, sma) and the
// upstream function names (TIME_SERIES_DAILY, ...), case-insensitively.
func ParseEndpointKind(s string) (EndpointKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "daily", "time_series_daily":
		return Daily, nil
	case "intraday", "time_series_intraday":
		return Intraday, nil
	case "sma":
		return SMA, nil
	default:
		return 0, fmt.Errorf("unknown endpoint %q", s)
	}
}

// -----------------------------------------------------------------------------
// Row Types
// -----------------------------------------------------------------------------

// PriceBar is one OHLCV row for the daily or intraday table.
// Primary key is (Symbol, Timestamp).
type PriceBar struct {
	Symbol    string
	Timestamp time.Time // date (UTC midnight) for daily, full timestamp for intraday
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    int64
}

// Validate checks low <= open,close <= high and volume >= 0.
func (b PriceBar) Validate() error {
	if b.Low.GreaterThan(b.High) {
		return fmt.Errorf("low %s above high %s", b.Low, b.High)
	}
	if b.Open.LessThan(b.Low) || b.Open.GreaterThan(b.High) {
		return fmt.Errorf("open %s outside [%s, %s]", b.Open, b.Low, b.High)
	}
	if b.Close.LessThan(b.Low) || b.Close.GreaterThan(b.High) {
		return fmt.Errorf("close %s outside [%s, %s]", b.Close, b.Low, b.High)
	}
	if b.Volume < 0 {
		return fmt.Errorf("negative volume %d", b.Volume)
	}
	return nil
}

// SmaPoint is one simple-moving-average value. Primary key is (Symbol, Timestamp).
type SmaPoint struct {
	Symbol    string
	Timestamp time.Time
	Value     decimal.Decimal
}

// Rows is an ordered batch of typed rows for a single endpoint kind.
// Bars is used for Daily and Intraday, Points for SMA.
type Rows struct {
	Kind   EndpointKind
	Bars   []PriceBar
	Points []SmaPoint
}

// Len returns the number of rows in the batch.
func (r Rows) Len() int {
	if r.Kind == SMA {
		return len(r.Points)
	}
	return len(r.Bars)
}

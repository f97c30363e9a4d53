package store

import (
	"fmt"

	"github.com/rickgao/stock-data/internal/model"
)

const symbolColumn = "company_symbol"

// tableSpec describes the columns of a row table. The first two columns are
// the primary key.
type tableSpec struct {
	table   model.Table
	columns []string
}

func (s tableSpec) keyColumns() []string   { return s.columns[:2] }
func (s tableSpec) valueColumns() []string { return s.columns[2:] }

var (
	dailySpec = tableSpec{
		table:   model.TableDailyPrices,
		columns: []string{symbolColumn, "date", "open_price", "high_price", "low_price", "close_price", "volume"},
	}
	intradaySpec = tableSpec{
		table:   model.TableIntradayPrices,
		columns: []string{symbolColumn, "date_time", "open_price", "high_price", "low_price", "close_price", "volume"},
	}
	smaSpec = tableSpec{
		table:   model.TableSMAIndicators,
		columns: []string{symbolColumn, "date_time", "sma_value"},
	}
)

func specFor(kind model.EndpointKind) (tableSpec, error) {
	switch kind {
	case model.Daily:
		return dailySpec, nil
	case model.Intraday:
		return intradaySpec, nil
	case model.SMA:
		return smaSpec, nil
	default:
		return tableSpec{}, fmt.Errorf("no table for endpoint %s", kind)
	}
}

type rowKey struct {
	symbol string
	ts     int64
}

// flatten converts rows into per-row column values. Rows sharing a
// primary key collapse into one, taking the values of the last occurrence.
func flatten(rows model.Rows) (tableSpec, [][]any, error) {
	tbl, err := specFor(rows.Kind)
	if err != nil {
		return tbl, nil, err
	}

	n := rows.Len()
	out := make([][]any, 0, n)
	index := make(map[rowKey]int, n)

	put := func(k rowKey, vals []any) {
		if i, ok := index[k]; ok {
			out[i] = vals
			return
		}
		index[k] = len(out)
		out = append(out, vals)
	}

	if rows.Kind == model.SMA {
		for _, p := range rows.Points {
			ts := p.Timestamp.UTC()
			put(rowKey{p.Symbol, ts.UnixNano()}, []any{p.Symbol, ts, p.Value})
		}
		return tbl, out, nil
	}

	for _, b := range rows.Bars {
		ts := b.Timestamp.UTC()
		put(rowKey{b.Symbol, ts.UnixNano()}, []any{b.Symbol, ts, b.Open, b.High, b.Low, b.Close, b.Volume})
	}
	return tbl, out, nil
}

// chunk splits values into groups of at most size rows.
func chunk(values [][]any, size int) [][][]any {
	if size <= 0 {
		size = DefaultBatchSize
	}
	chunks := make([][][]any, 0, (len(values)+size-1)/size)
	for start := 0; start < len(values); start += size {
		end := min(start+size, len(values))
		chunks = append(chunks, values[start:end])
	}
	return chunks
}

// Package model defines shared data types used across the stock data pipeline.
//
// All row types mirror the relational schema (companies, daily_stock_prices,
// intraday_stock_prices, sma_indicators).
//
// Conventions:
//   - Prices: decimal.Decimal rounded to PriceScale fractional digits
//   - Timestamps: time.Time in UTC; daily bars are truncated to the calendar date
//   - Symbols: upper-case ticker strings, the primary key of companies
package model

// Package api provides the market-data REST client.
//
// The upstream is Alpha Vantage shaped: a single query endpoint selected by the
// "function" parameter.
//   - Production: https://www.alphavantage.co/query
//
// Functions used: TIME_SERIES_DAILY, TIME_SERIES_INTRADAY, SMA.
//
// Fetch makes exactly one attempt per call. Retries and throttling are the
// caller's job; every failure is returned as a *FetchError whose Kind tells the
// caller what to do with it.
package api

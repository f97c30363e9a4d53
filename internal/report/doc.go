// Package report records the outcome of every work unit in a run and renders
// the end-of-run summary.
package report

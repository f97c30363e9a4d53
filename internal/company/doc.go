// Package company registers ticker symbols in the companies table.
//
// Every price and indicator row carries a foreign key to companies, so the
// scheduler runs EnsureAll before dispatching any work unit and skips the
// units of symbols whose registration failed.
package company

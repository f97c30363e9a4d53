// Package database opens storage handles.
//
// Three engines are supported:
//   - PostgreSQL: pgxpool, sized from config (min_conns, max_conns)
//   - DuckDB: embedded analytical file database via database/sql
//   - SQLite: embedded file database via database/sql (WAL, foreign keys on)
//
// Callers check out a connection per operation; no handle is shared raw
// between workers.
package database

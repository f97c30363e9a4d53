package store

import (
	"embed"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/rickgao/stock-data/internal/model"
)

// Dialect selects placeholder style and schema.
type Dialect string

const (
	Postgres Dialect = "postgres"
	DuckDB   Dialect = "duckdb"
	SQLite   Dialect = "sqlite"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// schemaStatements returns the DDL for d split into single statements.
func schemaStatements(d Dialect) ([]string, error) {
	data, err := schemaFS.ReadFile("schema/" + string(d) + ".sql")
	if err != nil {
		return nil, fmt.Errorf("read schema for %s: %w", d, err)
	}

	var stmts []string
	for _, s := range strings.Split(string(data), ";") {
		if s = strings.TrimSpace(s); s != "" {
			stmts = append(stmts, s)
		}
	}
	return stmts, nil
}

type queryBuilder struct {
	sb sq.StatementBuilderType
}

func newQueryBuilder(d Dialect) queryBuilder {
	var ph sq.PlaceholderFormat = sq.Question
	if d == Postgres {
		ph = sq.Dollar
	}
	return queryBuilder{sb: sq.StatementBuilder.PlaceholderFormat(ph)}
}

// insertCompany builds an insert-if-absent for one symbol.
func (q queryBuilder) insertCompany(symbol string) (string, []any, error) {
	return q.sb.
		Insert(model.TableCompanies.Name()).
		Columns(symbolColumn).
		Values(symbol).
		Suffix("ON CONFLICT (" + symbolColumn + ") DO NOTHING").
		ToSql()
}

// upsert builds a multi-row insert that overwrites non-key columns on conflict.
func (q queryBuilder) upsert(tbl tableSpec, rows [][]any) (string, []any, error) {
	if len(rows) == 0 {
		return "", nil, fmt.Errorf("upsert %s: no rows", tbl.table.Name())
	}

	ins := q.sb.Insert(tbl.table.Name()).Columns(tbl.columns...)
	for _, r := range rows {
		ins = ins.Values(r...)
	}
	return ins.Suffix(conflictClause(tbl)).ToSql()
}

func conflictClause(tbl tableSpec) string {
	sets := make([]string, 0, len(tbl.valueColumns()))
	for _, c := range tbl.valueColumns() {
		sets = append(sets, c+" = excluded."+c)
	}
	return "ON CONFLICT (" + strings.Join(tbl.keyColumns(), ", ") + ") DO UPDATE SET " + strings.Join(sets, ", ")
}

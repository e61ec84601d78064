package duckmcp

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const listTablesSQL = `
SELECT
    t.table_schema AS schema,
    t.table_name AS name,
    t.table_type AS type,
    d.column_count,
    d.estimated_size
FROM information_schema.tables t
LEFT JOIN duckdb_tables() d
    ON d.schema_name = t.table_schema AND d.table_name = t.table_name
WHERE t.table_schema NOT IN ('information_schema', 'pg_catalog')
ORDER BY t.table_schema, t.table_name;
`

// ListTables returns all tables and views in the database with the
// engine's estimated row counts. Does NOT go through the
// hook/protection/sanitization pipeline.
func (d *DuckDBMcp) ListTables(ctx context.Context, input ListTablesInput) *ListTablesOutput {
	startTime := time.Now()

	// 1. Acquire the execution slot
	select {
	case d.semaphore <- struct{}{}:
	case <-ctx.Done():
		return d.listTablesError(fmt.Errorf("failed to acquire execution slot: another statement is still running, context cancelled while waiting: %w", ctx.Err()))
	}
	defer func() { <-d.semaphore }()

	// 2. Apply configurable timeout
	queryCtx, cancel := context.WithTimeout(ctx, time.Duration(d.config.Query.InspectTimeoutSeconds)*time.Second)
	defer cancel()

	// 3. Execute
	rows, err := d.database().QueryContext(queryCtx, listTablesSQL)
	if err != nil {
		return d.listTablesError(fmt.Errorf("ListTables query failed: %w", err))
	}
	defer rows.Close()

	var tables []TableEntry
	for rows.Next() {
		var (
			entry         TableEntry
			tableType     string
			columnCount   sql.NullInt64
			estimatedSize sql.NullInt64
		)
		if err := rows.Scan(&entry.Schema, &entry.Name, &tableType, &columnCount, &estimatedSize); err != nil {
			return d.listTablesError(fmt.Errorf("ListTables scan failed: %w", err))
		}
		entry.Type = mapTableType(tableType)
		entry.ColumnCount = columnCount.Int64
		entry.EstimatedSize = estimatedSize.Int64
		tables = append(tables, entry)
	}
	if err := rows.Err(); err != nil {
		return d.listTablesError(fmt.Errorf("ListTables rows error: %w", err))
	}

	if tables == nil {
		tables = []TableEntry{}
	}

	d.logger.Info().
		Dur("duration", time.Since(startTime)).
		Int("table_count", len(tables)).
		Msg("ListTables executed")

	return &ListTablesOutput{Tables: tables}
}

// mapTableType converts information_schema table_type to the short form.
func mapTableType(t string) string {
	switch t {
	case "BASE TABLE":
		return "table"
	case "VIEW":
		return "view"
	default:
		return strings.ToLower(t)
	}
}

func (d *DuckDBMcp) listTablesError(err error) *ListTablesOutput {
	kind := classifyErrorKind(err)
	d.logger.Error().Err(err).Str("error_kind", kind).Msg("ListTables error")
	return &ListTablesOutput{Error: err.Error(), ErrorKind: kind}
}

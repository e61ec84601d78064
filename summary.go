package duckmcp

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// DatabaseSummary returns schema and row counts for every table in one
// call, so a fresh agent session can orient itself without issuing a
// query per table. A failure on one table is recorded inline on its
// entry and does not abort the rest. Row counts are exact and only
// computed for base tables; views list their columns with a zero count.
func (d *DuckDBMcp) DatabaseSummary(ctx context.Context, input DatabaseSummaryInput) *DatabaseSummaryOutput {
	startTime := time.Now()

	select {
	case d.semaphore <- struct{}{}:
	case <-ctx.Done():
		return d.summaryError(fmt.Errorf("failed to acquire execution slot: another statement is still running, context cancelled while waiting: %w", ctx.Err()))
	}
	defer func() { <-d.semaphore }()

	queryCtx, cancel := context.WithTimeout(ctx, time.Duration(d.config.Query.InspectTimeoutSeconds)*time.Second)
	defer cancel()

	// Listing runs inline rather than through ListTables — the slot is
	// not reentrant, and the whole summary should run under one hold.
	rows, err := d.database().QueryContext(queryCtx, listTablesSQL)
	if err != nil {
		return d.summaryError(fmt.Errorf("DatabaseSummary listing failed: %w", err))
	}

	type listedTable struct {
		schema    string
		name      string
		tableType string
	}
	var listed []listedTable
	for rows.Next() {
		var (
			lt            listedTable
			columnCount   sql.NullInt64
			estimatedSize sql.NullInt64
		)
		if err := rows.Scan(&lt.schema, &lt.name, &lt.tableType, &columnCount, &estimatedSize); err != nil {
			rows.Close()
			return d.summaryError(fmt.Errorf("DatabaseSummary scan failed: %w", err))
		}
		listed = append(listed, lt)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return d.summaryError(fmt.Errorf("DatabaseSummary rows error: %w", err))
	}
	rows.Close()

	tables := make([]TableSummary, 0, len(listed))
	for _, lt := range listed {
		summary := TableSummary{
			Schema: lt.schema,
			Name:   lt.name,
			Type:   mapTableType(lt.tableType),
		}
		qualified := lt.schema + "." + lt.name

		columns, err := d.tableColumns(queryCtx, qualified)
		if err != nil {
			summary.Error = err.Error()
			tables = append(tables, summary)
			continue
		}
		summary.Columns = columns

		if summary.Type == "table" {
			countSQL := "SELECT count(*) FROM " + quoteQualified(qualified)
			if err := d.database().QueryRowContext(queryCtx, countSQL).Scan(&summary.RowCount); err != nil {
				summary.Error = err.Error()
			}
		}
		tables = append(tables, summary)
	}

	d.logger.Info().
		Dur("duration", time.Since(startTime)).
		Int("table_count", len(tables)).
		Msg("DatabaseSummary executed")

	return &DatabaseSummaryOutput{Tables: tables}
}

func (d *DuckDBMcp) summaryError(err error) *DatabaseSummaryOutput {
	kind := classifyErrorKind(err)
	d.logger.Error().Err(err).Str("error_kind", kind).Msg("DatabaseSummary error")
	return &DatabaseSummaryOutput{Error: err.Error(), ErrorKind: kind}
}

package duckmcp

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// TableSchemaStats returns a table's column definitions, row count, and
// per-column statistics. Statistics come from the engine's SUMMARIZE and
// are best-effort: a SUMMARIZE failure is logged and leaves Stats empty
// instead of failing the whole call.
func (d *DuckDBMcp) TableSchemaStats(ctx context.Context, input TableSchemaStatsInput) *TableSchemaStatsOutput {
	startTime := time.Now()

	if input.Table == "" {
		return d.schemaStatsError(input.Table, &invalidArgumentError{msg: "table is required"})
	}

	select {
	case d.semaphore <- struct{}{}:
	case <-ctx.Done():
		return d.schemaStatsError(input.Table, fmt.Errorf("failed to acquire execution slot: another statement is still running, context cancelled while waiting: %w", ctx.Err()))
	}
	defer func() { <-d.semaphore }()

	queryCtx, cancel := context.WithTimeout(ctx, time.Duration(d.config.Query.InspectTimeoutSeconds)*time.Second)
	defer cancel()

	columns, err := d.tableColumns(queryCtx, input.Table)
	if err != nil {
		return d.schemaStatsError(input.Table, err)
	}

	var rowCount int64
	countSQL := "SELECT count(*) FROM " + quoteQualified(input.Table)
	if err := d.database().QueryRowContext(queryCtx, countSQL).Scan(&rowCount); err != nil {
		return d.schemaStatsError(input.Table, err)
	}

	stats, err := d.summarizeTable(queryCtx, input.Table)
	if err != nil {
		// Some relations cannot be summarized; the schema and row count
		// are still useful on their own.
		d.logger.Warn().Err(err).Str("table", input.Table).Msg("SUMMARIZE failed, returning schema without stats")
		stats = nil
	}

	d.logger.Info().
		Str("table", input.Table).
		Int64("row_count", rowCount).
		Int("column_count", len(columns)).
		Dur("duration", time.Since(startTime)).
		Msg("TableSchemaStats executed")

	return &TableSchemaStatsOutput{
		Table:    input.Table,
		RowCount: rowCount,
		Columns:  columns,
		Stats:    stats,
	}
}

// tableColumns reads column definitions via PRAGMA table_info. Callers
// must already hold the execution slot.
func (d *DuckDBMcp) tableColumns(ctx context.Context, table string) ([]ColumnDescriptor, error) {
	pragmaSQL := fmt.Sprintf("PRAGMA table_info(%s)", quoteLiteral(table))
	rows, err := d.database().QueryContext(ctx, pragmaSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []ColumnDescriptor
	for rows.Next() {
		var (
			cid     int
			name    string
			typ     string
			notNull bool
			dflt    sql.NullString
			pk      bool
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return nil, err
		}
		columns = append(columns, ColumnDescriptor{
			Name:       name,
			Type:       typ,
			Nullable:   !notNull,
			Default:    dflt.String,
			PrimaryKey: pk,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return columns, nil
}

// summarizeTable runs SUMMARIZE and maps its generically-typed output
// into ColumnStats. Callers must already hold the execution slot.
func (d *DuckDBMcp) summarizeTable(ctx context.Context, table string) ([]ColumnStats, error) {
	rows, err := d.database().QueryContext(ctx, "SUMMARIZE "+quoteQualified(table))
	if err != nil {
		return nil, err
	}

	result, err := d.collectRows(rows)
	if err != nil {
		return nil, err
	}

	stats := make([]ColumnStats, 0, len(result.Rows))
	for _, row := range result.Rows {
		stats = append(stats, ColumnStats{
			Column:         statText(row["column_name"]),
			Type:           statText(row["column_type"]),
			Min:            row["min"],
			Max:            row["max"],
			ApproxUnique:   row["approx_unique"],
			Avg:            row["avg"],
			Std:            row["std"],
			Q25:            row["q25"],
			Q50:            row["q50"],
			Q75:            row["q75"],
			Count:          statInt64(row["count"]),
			NullPercentage: row["null_percentage"],
		})
	}
	return stats, nil
}

func statText(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func statInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int32:
		return int64(n)
	case int:
		return int64(n)
	case uint64:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}

func (d *DuckDBMcp) schemaStatsError(table string, err error) *TableSchemaStatsOutput {
	kind := classifyErrorKind(err)
	errMsg := err.Error()
	if prompt := d.errPrompts.Match(kind, errMsg); prompt != "" {
		errMsg = errMsg + "\n\n" + prompt
	}
	d.logger.Error().Err(err).Str("table", table).Str("error_kind", kind).Msg("TableSchemaStats error")
	return &TableSchemaStatsOutput{Table: table, Error: errMsg, ErrorKind: kind}
}

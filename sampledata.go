package duckmcp

import (
	"context"
	"fmt"
	"time"
)

// SampleData returns up to Limit rows from a table so the agent can see
// real values before writing queries. The SQL is generated internally
// from the quoted table name, so it skips the hook/protection pipeline;
// sanitization still applies because sample rows are raw table data.
func (d *DuckDBMcp) SampleData(ctx context.Context, input SampleDataInput) *SampleDataOutput {
	startTime := time.Now()

	if input.Table == "" {
		return d.sampleDataError(input.Table, &invalidArgumentError{msg: "table is required"})
	}
	if input.Limit < 0 {
		return d.sampleDataError(input.Table, &invalidArgumentError{msg: fmt.Sprintf("limit must be >= 0, got %d", input.Limit)})
	}

	limit := input.Limit
	if limit == 0 {
		limit = d.config.Query.SampleDefaultLimit
	}
	if limit > d.config.Query.SampleMaxLimit {
		limit = d.config.Query.SampleMaxLimit
	}

	select {
	case d.semaphore <- struct{}{}:
	case <-ctx.Done():
		return d.sampleDataError(input.Table, fmt.Errorf("failed to acquire execution slot: another statement is still running, context cancelled while waiting: %w", ctx.Err()))
	}
	defer func() { <-d.semaphore }()

	queryCtx, cancel := context.WithTimeout(ctx, time.Duration(d.config.Query.InspectTimeoutSeconds)*time.Second)
	defer cancel()

	sampleSQL := fmt.Sprintf("SELECT * FROM %s LIMIT %d", quoteQualified(input.Table), limit)
	rows, err := d.database().QueryContext(queryCtx, sampleSQL)
	if err != nil {
		return d.sampleDataError(input.Table, err)
	}

	result, err := d.collectRows(rows)
	if err != nil {
		return d.sampleDataError(input.Table, err)
	}

	sanitizedRows := d.sanitizer.SanitizeRows(result.Rows)

	d.logger.Info().
		Str("table", input.Table).
		Int("limit", limit).
		Int("row_count", len(sanitizedRows)).
		Dur("duration", time.Since(startTime)).
		Msg("SampleData executed")

	return &SampleDataOutput{
		Table:   input.Table,
		Columns: result.Columns,
		Rows:    sanitizedRows,
	}
}

func (d *DuckDBMcp) sampleDataError(table string, err error) *SampleDataOutput {
	kind := classifyErrorKind(err)
	errMsg := err.Error()
	if prompt := d.errPrompts.Match(kind, errMsg); prompt != "" {
		errMsg = errMsg + "\n\n" + prompt
	}
	d.logger.Error().Err(err).Str("table", table).Str("error_kind", kind).Msg("SampleData error")
	return &SampleDataOutput{Table: table, Error: errMsg, ErrorKind: kind}
}

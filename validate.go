package duckmcp

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// dryRunOperations are the verdict operations eligible for an EXPLAIN
// dry run. Statements that are already EXPLAIN, metadata commands, or
// policy-gated writes are validated by the classifier alone.
var dryRunOperations = map[string]bool{
	"SELECT": true,
	"VALUES": true,
	"TABLE":  true,
	"FROM":   true,
}

// Validate checks a query without executing it. The classifier verdict
// always runs; for plain read statements the engine additionally plans
// the query with EXPLAIN, catching syntax errors, missing tables, and
// type mismatches. Validation never mutates state, so calling it any
// number of times yields the same result.
func (d *DuckDBMcp) Validate(ctx context.Context, input ValidateInput) *ValidateOutput {
	startTime := time.Now()
	sql := input.SQL

	if len(sql) > d.config.Query.MaxSQLLength {
		return &ValidateOutput{
			Valid:     false,
			Reason:    fmt.Sprintf("SQL query too long: %d bytes exceeds maximum of %d bytes", len(sql), d.config.Query.MaxSQLLength),
			ErrorKind: ErrKindInvalidArgument,
		}
	}

	verdict := d.protection.Classify(sql)
	if !verdict.Allowed {
		d.logger.Info().
			Str("sql", truncateForLog(sql, 200)).
			Str("operation", verdict.Operation).
			Str("reason", verdict.Reason).
			Msg("validation rejected query")
		return &ValidateOutput{
			Valid:     false,
			Operation: verdict.Operation,
			Reason:    verdict.Reason,
			ErrorKind: ErrKindBlocked,
		}
	}

	if !dryRunOperations[verdict.Operation] {
		return &ValidateOutput{Valid: true, Operation: verdict.Operation}
	}

	plan, err := d.explainDryRun(ctx, sql)
	if err != nil {
		kind := classifyErrorKind(err)
		d.logger.Info().
			Str("sql", truncateForLog(sql, 200)).
			Str("error_kind", kind).
			Err(err).
			Msg("validation dry run failed")
		return &ValidateOutput{
			Valid:     false,
			Operation: verdict.Operation,
			Reason:    err.Error(),
			ErrorKind: kind,
		}
	}

	d.logger.Debug().
		Str("sql", truncateForLog(sql, 200)).
		Dur("duration", time.Since(startTime)).
		Msg("validation dry run succeeded")

	return &ValidateOutput{Valid: true, Operation: verdict.Operation, Plan: plan}
}

// explainDryRun plans the query under the inspect timeout and returns
// the engine's plan text. EXPLAIN only plans — it never executes.
func (d *DuckDBMcp) explainDryRun(ctx context.Context, sql string) (string, error) {
	select {
	case d.semaphore <- struct{}{}:
	case <-ctx.Done():
		return "", fmt.Errorf("failed to acquire execution slot: another statement is still running, context cancelled while waiting: %w", ctx.Err())
	}
	defer func() { <-d.semaphore }()

	queryCtx, cancel := context.WithTimeout(ctx, time.Duration(d.config.Query.InspectTimeoutSeconds)*time.Second)
	defer cancel()

	rows, err := d.database().QueryContext(queryCtx, "EXPLAIN "+sql)
	if err != nil {
		return "", err
	}
	defer rows.Close()

	// EXPLAIN returns (explain_key, explain_value) pairs; the values
	// hold the rendered plan.
	var sb strings.Builder
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return "", err
		}
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(value)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	return sb.String(), nil
}

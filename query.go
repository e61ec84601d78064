package duckmcp

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strings"
	"time"
	"unicode/utf8"

	duckdb "github.com/marcboeker/go-duckdb/v2"

	"github.com/tabwise/duckdb-mcp/internal/metrics"
	"github.com/tabwise/duckdb-mcp/internal/protection"
)

// timeoutError marks a query cancelled by the execution time limit.
type timeoutError struct {
	limit time.Duration
}

func (e *timeoutError) Error() string {
	return fmt.Sprintf("query cancelled after exceeding the %s execution limit", e.limit)
}

// invalidArgumentError marks caller mistakes that never reached the engine.
type invalidArgumentError struct {
	msg string
}

func (e *invalidArgumentError) Error() string { return e.msg }

// ioFailureError marks failures reading import sources.
type ioFailureError struct {
	msg string
}

func (e *ioFailureError) Error() string { return e.msg }

// hookError marks failures raised by the query hook chain.
type hookError struct {
	err error
}

func (e *hookError) Error() string { return e.err.Error() }
func (e *hookError) Unwrap() error { return e.err }

// classifyErrorKind maps an error to one of the ErrKind* values.
func classifyErrorKind(err error) string {
	var blocked *protection.BlockedError
	var hook *hookError
	var tmo *timeoutError
	var invalid *invalidArgumentError
	var iofail *ioFailureError
	switch {
	case errors.As(err, &blocked):
		return ErrKindBlocked
	case errors.As(err, &hook):
		// Hook rejections and hook failures both stop the query at the
		// guard layer, so they share the blocked kind.
		return ErrKindBlocked
	case errors.As(err, &tmo) || errors.Is(err, context.DeadlineExceeded):
		return ErrKindTimeout
	case errors.As(err, &invalid):
		return ErrKindInvalidArgument
	case errors.As(err, &iofail):
		return ErrKindIOFailure
	default:
		return ErrKindEngine
	}
}

// Query executes the full query pipeline and returns only QueryOutput.
// All errors (engine errors, protection rejections, hook rejections, Go
// errors) are converted to output.Error with output.ErrorKind set. The
// error message is then evaluated against error_prompts patterns — any
// matching prompt messages are appended. This means callers only need to
// check output.Error, never a Go error.
func (d *DuckDBMcp) Query(ctx context.Context, input QueryInput) *QueryOutput {
	startTime := time.Now()
	output := d.runQuery(ctx, input, startTime)
	metrics.ObserveQuery(queryOutcome(output), time.Since(startTime))
	return output
}

func queryOutcome(output *QueryOutput) string {
	switch output.ErrorKind {
	case ErrKindBlocked:
		return "blocked"
	case ErrKindTimeout:
		return "timeout"
	case "":
		return "ok"
	default:
		return "error"
	}
}

func (d *DuckDBMcp) runQuery(ctx context.Context, input QueryInput, startTime time.Time) *QueryOutput {
	sql := input.SQL

	// 1. Validate the timeout override before doing anything else
	if input.TimeoutSeconds < 0 {
		return d.handleError(&invalidArgumentError{msg: fmt.Sprintf("timeout_seconds must be >= 0, got %d", input.TimeoutSeconds)})
	}

	// 2. Acquire the execution slot (respects context cancellation to prevent deadlock)
	select {
	case d.semaphore <- struct{}{}:
	case <-ctx.Done():
		return d.handleError(fmt.Errorf("failed to acquire execution slot: another statement is still running, context cancelled while waiting: %w", ctx.Err()))
	}
	defer func() { <-d.semaphore }()

	// 3. Check SQL length (before any processing — hooks, protection, execution)
	if len(sql) > d.config.Query.MaxSQLLength {
		return d.handleError(&invalidArgumentError{msg: fmt.Sprintf("SQL query too long: %d bytes exceeds maximum of %d bytes", len(sql), d.config.Query.MaxSQLLength)})
	}

	// --- Pipeline tracking ---
	var beforeHooks, afterHooks []string
	timeoutRule := ""
	sanitized := false

	// 4. Run BeforeQuery hooks (middleware chain)
	var err error
	if len(d.goBeforeHooks) > 0 {
		sql, err = d.runGoBeforeHooks(ctx, sql)
		for _, entry := range d.goBeforeHooks {
			beforeHooks = append(beforeHooks, entry.Name)
		}
	} else if d.cmdHooks != nil {
		sql, beforeHooks, err = d.cmdHooks.RunBeforeQuery(ctx, sql)
	}
	if err != nil {
		return d.handleError(&hookError{err: err})
	}

	// 5. Protection check (on potentially modified query)
	if err := d.protection.Check(sql); err != nil {
		return d.handleError(err)
	}

	// 6. Determine timeout: per-call override wins, then pattern rules, then default
	var limit time.Duration
	limit, timeoutRule = d.timeoutMgr.Resolve(sql, time.Duration(input.TimeoutSeconds)*time.Second)
	queryCtx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	// 7. Execute. The driver forwards context cancellation to the engine
	// as an interrupt, which aborts the running statement.
	rows, err := d.database().QueryContext(queryCtx, sql)
	if err != nil {
		return d.handleExecError(queryCtx, limit, err)
	}

	// 8. Collect results (capped at max_result_rows)
	result, err := d.collectRows(rows)
	if err != nil {
		return d.handleExecError(queryCtx, limit, err)
	}

	// 9. AfterQuery hooks (middleware chain over the result)
	var finalResult *QueryOutput
	if len(d.goAfterHooks) > 0 {
		finalResult, err = d.runGoAfterHooks(ctx, result)
		if err != nil {
			return d.handleError(&hookError{err: err})
		}
		for _, entry := range d.goAfterHooks {
			afterHooks = append(afterHooks, entry.Name)
		}
	} else if d.cmdHooks != nil && d.cmdHooks.HasAfterQueryHooks() {
		resultJSON, err := json.Marshal(result)
		if err != nil {
			return d.handleError(err)
		}

		modifiedJSON, executed, err := d.cmdHooks.RunAfterQuery(ctx, string(resultJSON))
		if err != nil {
			return d.handleError(&hookError{err: err})
		}
		afterHooks = executed

		finalResult = &QueryOutput{}
		dec := json.NewDecoder(strings.NewReader(modifiedJSON))
		dec.UseNumber()
		if err := dec.Decode(finalResult); err != nil {
			return d.handleError(err)
		}
	} else {
		finalResult = result
	}

	// 10. Apply sanitization (per-field, recursive into STRUCT/LIST values)
	sanitized = d.sanitizer.HasRules()
	finalResult.Rows = d.sanitizer.SanitizeRows(finalResult.Rows)

	// 11. Apply max result length truncation
	d.truncateIfNeeded(finalResult)

	// 12. Log successful query execution with pipeline details
	logEvent := d.logger.Info().
		Str("sql", truncateForLog(sql, 200)).
		Dur("duration", time.Since(startTime)).
		Int("row_count", len(finalResult.Rows))
	if len(beforeHooks) > 0 {
		logEvent = logEvent.Strs("before_hooks", beforeHooks)
	}
	if len(afterHooks) > 0 {
		logEvent = logEvent.Strs("after_hooks", afterHooks)
	}
	if timeoutRule != "" {
		logEvent = logEvent.Str("timeout_rule", timeoutRule)
	}
	if sanitized {
		logEvent = logEvent.Bool("sanitized", true)
	}
	if finalResult.Truncated {
		logEvent = logEvent.Bool("truncated", true)
	}
	logEvent.Msg("query executed")

	return finalResult
}

// handleExecError converts an execution failure into a QueryOutput. When
// the failure was the query deadline, the engine connection may be left
// mid-interrupt, so the handle is verified (and reopened if needed)
// before the next statement runs.
func (d *DuckDBMcp) handleExecError(queryCtx context.Context, limit time.Duration, err error) *QueryOutput {
	if queryCtx.Err() == context.DeadlineExceeded {
		d.recoverAfterCancel()
		return d.handleError(&timeoutError{limit: limit})
	}
	return d.handleError(err)
}

// recoverAfterCancel checks that the database handle is still usable after
// an interrupted statement and reopens it when it is not. Runs while the
// execution slot is still held, so no other statement can observe the swap.
func (d *DuckDBMcp) recoverAfterCancel() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.database().PingContext(ctx); err == nil {
		return
	}
	d.logger.Warn().Msg("database handle unusable after cancelled query, reopening")
	d.dbMu.Lock()
	defer d.dbMu.Unlock()
	d.db.Close()
	db, err := openDatabase(d.dsn)
	if err != nil {
		d.logger.Error().Err(err).Msg("failed to reopen database")
		return
	}
	d.db = db
}

// runGoBeforeHooks runs Go-interface BeforeQuery hooks in middleware chain.
func (d *DuckDBMcp) runGoBeforeHooks(ctx context.Context, sql string) (string, error) {
	for _, entry := range d.goBeforeHooks {
		timeout := entry.Timeout
		if timeout == 0 {
			timeout = time.Duration(d.config.DefaultHookTimeoutSeconds) * time.Second
		}
		hookCtx, cancel := context.WithTimeout(ctx, timeout)

		modified, err := entry.Hook.Run(hookCtx, sql)
		cancel()
		if err != nil {
			if hookCtx.Err() == context.DeadlineExceeded {
				return "", fmt.Errorf("before_query hook error: hook timed out (name: %s, timeout: %s)", entry.Name, timeout)
			}
			return "", fmt.Errorf("before_query hook error: hook rejected query (name: %s): %w", entry.Name, err)
		}
		sql = modified
	}
	return sql, nil
}

// runGoAfterHooks runs Go-interface AfterQuery hooks in middleware chain.
func (d *DuckDBMcp) runGoAfterHooks(ctx context.Context, result *QueryOutput) (*QueryOutput, error) {
	for _, entry := range d.goAfterHooks {
		timeout := entry.Timeout
		if timeout == 0 {
			timeout = time.Duration(d.config.DefaultHookTimeoutSeconds) * time.Second
		}
		hookCtx, cancel := context.WithTimeout(ctx, timeout)

		modified, err := entry.Hook.Run(hookCtx, result)
		cancel()
		if err != nil {
			if hookCtx.Err() == context.DeadlineExceeded {
				return nil, fmt.Errorf("after_query hook error: hook timed out (name: %s, timeout: %s)", entry.Name, timeout)
			}
			return nil, fmt.Errorf("after_query hook error: hook rejected result (name: %s): %w", entry.Name, err)
		}
		result = modified
	}
	return result, nil
}

// collectRows reads rows up to max_result_rows and returns a QueryOutput.
// When the cap cuts the result short, Truncated is set.
func (d *DuckDBMcp) collectRows(rows *sql.Rows) (*QueryOutput, error) {
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	values := make([]interface{}, len(columns))
	ptrs := make([]interface{}, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}

	resultRows := make([]map[string]interface{}, 0)
	truncated := false
	for rows.Next() {
		if len(resultRows) >= d.config.Query.MaxResultRows {
			truncated = true
			break
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			row[col] = convertValue(values[i])
		}
		resultRows = append(resultRows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &QueryOutput{Columns: columns, Rows: resultRows, Truncated: truncated}, nil
}

// convertValue converts a driver-returned value to a JSON-friendly Go type.
func convertValue(v interface{}) interface{} {
	switch val := v.(type) {
	case nil:
		return nil
	case time.Time:
		return val.Format(time.RFC3339Nano)
	case float32:
		if math.IsNaN(float64(val)) {
			return "NaN"
		}
		if math.IsInf(float64(val), 1) {
			return "Infinity"
		}
		if math.IsInf(float64(val), -1) {
			return "-Infinity"
		}
		return val
	case float64:
		if math.IsNaN(val) {
			return "NaN"
		}
		if math.IsInf(val, 1) {
			return "Infinity"
		}
		if math.IsInf(val, -1) {
			return "-Infinity"
		}
		return val
	case *big.Int:
		// HUGEINT — too wide for JSON numbers
		if val == nil {
			return nil
		}
		return val.String()
	case duckdb.Decimal:
		return val.Float64()
	case duckdb.Interval:
		parts := []string{}
		if val.Months != 0 {
			years := val.Months / 12
			months := val.Months % 12
			if years != 0 {
				parts = append(parts, fmt.Sprintf("%d year(s)", years))
			}
			if months != 0 {
				parts = append(parts, fmt.Sprintf("%d mon(s)", months))
			}
		}
		if val.Days != 0 {
			parts = append(parts, fmt.Sprintf("%d day(s)", val.Days))
		}
		if val.Micros != 0 {
			dur := time.Duration(val.Micros) * time.Microsecond
			parts = append(parts, dur.String())
		}
		if len(parts) == 0 {
			return "0"
		}
		return strings.Join(parts, " ")
	case duckdb.Map:
		result := make(map[string]interface{}, len(val))
		for k, v := range val {
			result[fmt.Sprintf("%v", k)] = convertValue(v)
		}
		return result
	case duckdb.UUID:
		return fmt.Sprintf("%x-%x-%x-%x-%x", val[0:4], val[4:6], val[6:8], val[8:10], val[10:16])
	case [16]byte:
		// UUID
		return fmt.Sprintf("%x-%x-%x-%x-%x", val[0:4], val[4:6], val[6:8], val[8:10], val[10:16])
	case []byte:
		// BLOB — base64 encode
		return base64.StdEncoding.EncodeToString(val)
	case string:
		return val
	case map[string]interface{}:
		// STRUCT
		result := make(map[string]interface{}, len(val))
		for k, v := range val {
			result[k] = convertValue(v)
		}
		return result
	case []interface{}:
		// LIST
		result := make([]interface{}, len(val))
		for i, v := range val {
			result[i] = convertValue(v)
		}
		return result
	default:
		return val
	}
}

// handleError converts any error into a QueryOutput with error message and
// kind. The error message is evaluated against error_prompts — matching
// prompt messages are appended.
func (d *DuckDBMcp) handleError(err error) *QueryOutput {
	kind := classifyErrorKind(err)
	errMsg := err.Error()
	prompt := d.errPrompts.Match(kind, errMsg)
	patterns := d.errPrompts.MatchedPatterns(kind, errMsg)

	logEvent := d.logger.Error().Err(err).Str("error_kind", kind)
	if len(patterns) > 0 {
		logEvent = logEvent.Strs("error_prompts", patterns)
	}
	logEvent.Msg("query error")

	if prompt != "" {
		errMsg = errMsg + "\n\n" + prompt
	}
	return &QueryOutput{Error: errMsg, ErrorKind: kind}
}

// truncateIfNeeded truncates query output rows if they exceed MaxResultLength (in characters).
func (d *DuckDBMcp) truncateIfNeeded(output *QueryOutput) {
	jsonBytes, _ := json.Marshal(output.Rows)
	jsonStr := string(jsonBytes)
	if utf8.RuneCountInString(jsonStr) <= d.config.Query.MaxResultLength {
		return
	}
	// Truncate to MaxResultLength characters (runes)
	runes := []rune(jsonStr)
	truncated := string(runes[:d.config.Query.MaxResultLength])
	output.Rows = nil
	output.Truncated = true
	output.Error = truncated + "...[truncated] Result is too long! Add limits in your query!"
}

// truncateForLog truncates a string for log output to avoid oversized log entries.
func truncateForLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	truncateAt := maxLen
	for truncateAt > 0 && !utf8.RuneStart(s[truncateAt]) {
		truncateAt--
	}
	return s[:truncateAt] + "...[truncated]"
}

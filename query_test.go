package duckmcp_test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	duckmcp "github.com/tabwise/duckdb-mcp"
)

// heavyQuerySQL runs long enough to trip any timeout under test; the
// recursive CTE counts far beyond what a test window can finish.
const heavyQuerySQL = "WITH RECURSIVE t(n) AS (SELECT 1 UNION ALL SELECT n+1 FROM t WHERE n < 1000000000) SELECT max(n) FROM t"

// --- Basic Execution ---

func TestQuery_SelectBasic(t *testing.T) {
	t.Parallel()
	d := newTestInstance(t, writableConfig())

	setupTable(t, d, "CREATE TABLE users (id INTEGER, name VARCHAR, email VARCHAR)")
	setupTable(t, d, "INSERT INTO users VALUES (1, 'Alice', 'alice@example.com'), (2, 'Bob', 'bob@example.com')")

	output := d.Query(context.Background(), duckmcp.QueryInput{SQL: "SELECT id, name, email FROM users ORDER BY id"})
	if output.Error != "" {
		t.Fatalf("unexpected error: %s", output.Error)
	}
	if len(output.Columns) != 3 {
		t.Fatalf("expected 3 columns, got %d", len(output.Columns))
	}
	if len(output.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(output.Rows))
	}
	if output.Rows[0]["name"] != "Alice" {
		t.Fatalf("expected Alice, got %v", output.Rows[0]["name"])
	}
	if output.Rows[1]["name"] != "Bob" {
		t.Fatalf("expected Bob, got %v", output.Rows[1]["name"])
	}
}

func TestQuery_SelectLiteral(t *testing.T) {
	t.Parallel()
	d := newTestInstance(t, defaultConfig())

	output := d.Query(context.Background(), duckmcp.QueryInput{SQL: "SELECT 1 AS val"})
	if output.Error != "" {
		t.Fatalf("unexpected error: %s", output.Error)
	}
	if output.ErrorKind != "" {
		t.Fatalf("expected empty error kind, got %q", output.ErrorKind)
	}
	if len(output.Rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(output.Rows))
	}
	if len(output.Columns) != 1 || output.Columns[0] != "val" {
		t.Fatalf("expected column val, got %v", output.Columns)
	}
}

func TestQuery_EmptyResult(t *testing.T) {
	t.Parallel()
	d := newTestInstance(t, writableConfig())

	setupTable(t, d, "CREATE TABLE empty_table (id INTEGER, name VARCHAR)")

	output := d.Query(context.Background(), duckmcp.QueryInput{SQL: "SELECT * FROM empty_table"})
	if output.Error != "" {
		t.Fatalf("unexpected error: %s", output.Error)
	}
	if len(output.Rows) != 0 {
		t.Fatalf("expected 0 rows, got %d", len(output.Rows))
	}
	if len(output.Columns) != 2 {
		t.Fatalf("expected 2 columns, got %d", len(output.Columns))
	}
	// Verify JSON serializes as [] not null
	b, _ := json.Marshal(output.Rows)
	if string(b) != "[]" {
		t.Fatalf("expected [], got %s", string(b))
	}
}

func TestQuery_NullValues(t *testing.T) {
	t.Parallel()
	d := newTestInstance(t, writableConfig())

	setupTable(t, d, "CREATE TABLE nullable_table (name VARCHAR, email VARCHAR)")
	setupTable(t, d, "INSERT INTO nullable_table VALUES (NULL, NULL)")

	output := d.Query(context.Background(), duckmcp.QueryInput{SQL: "SELECT name, email FROM nullable_table"})
	if output.Error != "" {
		t.Fatalf("unexpected error: %s", output.Error)
	}
	if output.Rows[0]["name"] != nil {
		t.Fatalf("expected nil for name, got %v", output.Rows[0]["name"])
	}
}

func TestQuery_FromFirstSyntax(t *testing.T) {
	t.Parallel()
	d := newTestInstance(t, writableConfig())

	setupTable(t, d, "CREATE TABLE users (id INTEGER, name VARCHAR)")
	setupTable(t, d, "INSERT INTO users VALUES (1, 'Alice')")

	output := d.Query(context.Background(), duckmcp.QueryInput{SQL: "FROM users"})
	if output.Error != "" {
		t.Fatalf("unexpected error: %s", output.Error)
	}
	if len(output.Rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(output.Rows))
	}
}

func TestQuery_SelectCTE(t *testing.T) {
	t.Parallel()
	d := newTestInstance(t, writableConfig())

	setupTable(t, d, "CREATE TABLE users (id INTEGER, name VARCHAR)")
	setupTable(t, d, "INSERT INTO users VALUES (1, 'Alice'), (2, 'Bob')")

	output := d.Query(context.Background(), duckmcp.QueryInput{SQL: "WITH cte AS (SELECT * FROM users) SELECT name FROM cte ORDER BY name"})
	if output.Error != "" {
		t.Fatalf("unexpected error: %s", output.Error)
	}
	if len(output.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(output.Rows))
	}
}

func TestQuery_SummarizeStatement(t *testing.T) {
	t.Parallel()
	d := newTestInstance(t, writableConfig())

	setupTable(t, d, "CREATE TABLE nums (n INTEGER)")
	setupTable(t, d, "INSERT INTO nums VALUES (1), (2), (3)")

	output := d.Query(context.Background(), duckmcp.QueryInput{SQL: "SUMMARIZE nums"})
	if output.Error != "" {
		t.Fatalf("unexpected error: %s", output.Error)
	}
	if len(output.Rows) != 1 {
		t.Fatalf("expected 1 summary row, got %d", len(output.Rows))
	}
}

// --- Driver Type Conversion ---

func TestQuery_TimestampColumn(t *testing.T) {
	t.Parallel()
	d := newTestInstance(t, defaultConfig())

	output := d.Query(context.Background(), duckmcp.QueryInput{SQL: "SELECT TIMESTAMP '2024-01-15 10:30:00' AS created_at"})
	if output.Error != "" {
		t.Fatalf("unexpected error: %s", output.Error)
	}
	tsStr, ok := output.Rows[0]["created_at"].(string)
	if !ok {
		t.Fatalf("expected string timestamp, got %T", output.Rows[0]["created_at"])
	}
	if _, err := time.Parse(time.RFC3339Nano, tsStr); err != nil {
		t.Fatalf("failed to parse timestamp %q: %v", tsStr, err)
	}
}

func TestQuery_BigIntColumn(t *testing.T) {
	t.Parallel()
	d := newTestInstance(t, defaultConfig())

	// 2^53+1 — exceeds float64 precision, must be preserved exactly
	output := d.Query(context.Background(), duckmcp.QueryInput{SQL: "SELECT 9007199254740993::BIGINT AS big_id"})
	if output.Error != "" {
		t.Fatalf("unexpected error: %s", output.Error)
	}
	val := output.Rows[0]["big_id"]
	if val != int64(9007199254740993) {
		t.Fatalf("expected int64(9007199254740993), got %T: %v", val, val)
	}
}

func TestQuery_HugeIntColumn(t *testing.T) {
	t.Parallel()
	d := newTestInstance(t, defaultConfig())

	output := d.Query(context.Background(), duckmcp.QueryInput{SQL: "SELECT 170141183460469231731687303715884105727::HUGEINT AS h"})
	if output.Error != "" {
		t.Fatalf("unexpected error: %s", output.Error)
	}
	s, ok := output.Rows[0]["h"].(string)
	if !ok {
		t.Fatalf("expected string for HUGEINT, got %T: %v", output.Rows[0]["h"], output.Rows[0]["h"])
	}
	if s != "170141183460469231731687303715884105727" {
		t.Fatalf("unexpected HUGEINT rendering: %s", s)
	}
}

func TestQuery_BlobColumn(t *testing.T) {
	t.Parallel()
	d := newTestInstance(t, defaultConfig())

	output := d.Query(context.Background(), duckmcp.QueryInput{SQL: "SELECT from_hex('deadbeef') AS data"})
	if output.Error != "" {
		t.Fatalf("unexpected error: %s", output.Error)
	}
	b64, ok := output.Rows[0]["data"].(string)
	if !ok {
		t.Fatalf("expected string for BLOB, got %T", output.Rows[0]["data"])
	}
	if b64 != "3q2+7w==" { // base64 of 0xdeadbeef
		t.Fatalf("expected base64 'deadbeef', got %s", b64)
	}
}

func TestQuery_StructColumn(t *testing.T) {
	t.Parallel()
	d := newTestInstance(t, defaultConfig())

	output := d.Query(context.Background(), duckmcp.QueryInput{SQL: "SELECT {'name': 'test', 'count': 42} AS data"})
	if output.Error != "" {
		t.Fatalf("unexpected error: %s", output.Error)
	}
	dataMap, ok := output.Rows[0]["data"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected map for STRUCT, got %T: %v", output.Rows[0]["data"], output.Rows[0]["data"])
	}
	if dataMap["name"] != "test" {
		t.Fatalf("expected name=test, got %v", dataMap["name"])
	}
}

func TestQuery_ListColumn(t *testing.T) {
	t.Parallel()
	d := newTestInstance(t, defaultConfig())

	output := d.Query(context.Background(), duckmcp.QueryInput{SQL: "SELECT ['go', 'duck', 'mcp'] AS tags"})
	if output.Error != "" {
		t.Fatalf("unexpected error: %s", output.Error)
	}
	arr, ok := output.Rows[0]["tags"].([]interface{})
	if !ok {
		t.Fatalf("expected list, got %T", output.Rows[0]["tags"])
	}
	if len(arr) != 3 {
		t.Fatalf("expected 3 elements, got %d", len(arr))
	}
}

func TestQuery_NaNAndInfinity(t *testing.T) {
	t.Parallel()
	d := newTestInstance(t, defaultConfig())

	output := d.Query(context.Background(), duckmcp.QueryInput{SQL: "SELECT 'nan'::DOUBLE AS n, 'inf'::DOUBLE AS p, '-inf'::DOUBLE AS m"})
	if output.Error != "" {
		t.Fatalf("unexpected error: %s", output.Error)
	}
	if output.Rows[0]["n"] != "NaN" {
		t.Fatalf("expected NaN string, got %v", output.Rows[0]["n"])
	}
	if output.Rows[0]["p"] != "Infinity" {
		t.Fatalf("expected Infinity string, got %v", output.Rows[0]["p"])
	}
	if output.Rows[0]["m"] != "-Infinity" {
		t.Fatalf("expected -Infinity string, got %v", output.Rows[0]["m"])
	}
}

// --- Protection End to End ---

func TestQuery_DeleteBlocked(t *testing.T) {
	t.Parallel()
	d := newTestInstance(t, writableConfig())

	setupTable(t, d, "CREATE TABLE users (id INTEGER, name VARCHAR)")
	setupTable(t, d, "INSERT INTO users VALUES (1, 'Alice'), (2, 'Bob')")

	output := d.Query(context.Background(), duckmcp.QueryInput{SQL: "DELETE FROM users"})
	if output.Error == "" {
		t.Fatal("expected protection error")
	}
	if !strings.Contains(output.Error, "DELETE statements are not allowed") {
		t.Fatalf("expected DELETE blocked message, got %q", output.Error)
	}
	if output.ErrorKind != duckmcp.ErrKindBlocked {
		t.Fatalf("expected blocked_statement kind, got %q", output.ErrorKind)
	}

	// The table must be untouched
	check := d.Query(context.Background(), duckmcp.QueryInput{SQL: "SELECT count(*) AS c FROM users"})
	if check.Error != "" {
		t.Fatalf("unexpected error: %s", check.Error)
	}
	if check.Rows[0]["c"] != int64(2) {
		t.Fatalf("expected 2 rows remaining, got %v", check.Rows[0]["c"])
	}
}

func TestQuery_UpdateBlocked(t *testing.T) {
	t.Parallel()
	d := newTestInstance(t, writableConfig())

	setupTable(t, d, "CREATE TABLE users (id INTEGER, name VARCHAR)")
	setupTable(t, d, "INSERT INTO users VALUES (1, 'Alice')")

	output := d.Query(context.Background(), duckmcp.QueryInput{SQL: "UPDATE users SET name = 'Mallory'"})
	if output.Error == "" {
		t.Fatal("expected protection error")
	}
	if output.ErrorKind != duckmcp.ErrKindBlocked {
		t.Fatalf("expected blocked_statement kind, got %q", output.ErrorKind)
	}

	check := d.Query(context.Background(), duckmcp.QueryInput{SQL: "SELECT name FROM users"})
	if check.Rows[0]["name"] != "Alice" {
		t.Fatalf("expected Alice untouched, got %v", check.Rows[0]["name"])
	}
}

func TestQuery_DropBlocked(t *testing.T) {
	t.Parallel()
	d := newTestInstance(t, defaultConfig())

	output := d.Query(context.Background(), duckmcp.QueryInput{SQL: "DROP TABLE users"})
	if output.Error == "" {
		t.Fatal("expected protection error")
	}
	if !strings.Contains(output.Error, "DROP statements are not allowed") {
		t.Fatalf("expected DROP blocked message, got %q", output.Error)
	}
	if output.ErrorKind != duckmcp.ErrKindBlocked {
		t.Fatalf("expected blocked_statement kind, got %q", output.ErrorKind)
	}
}

func TestQuery_MultiStatementBlocked(t *testing.T) {
	t.Parallel()
	d := newTestInstance(t, writableConfig())

	setupTable(t, d, "CREATE TABLE users (id INTEGER, name VARCHAR)")
	setupTable(t, d, "INSERT INTO users VALUES (1, 'Alice')")

	output := d.Query(context.Background(), duckmcp.QueryInput{SQL: "SELECT 1; DROP TABLE users"})
	if output.Error == "" {
		t.Fatal("expected protection error")
	}
	if !strings.Contains(output.Error, "multi-statement queries are not allowed") {
		t.Fatalf("expected multi-statement message, got %q", output.Error)
	}
	if output.ErrorKind != duckmcp.ErrKindBlocked {
		t.Fatalf("expected blocked_statement kind, got %q", output.ErrorKind)
	}

	// The second statement must not have run
	check := d.Query(context.Background(), duckmcp.QueryInput{SQL: "SELECT count(*) AS c FROM users"})
	if check.Error != "" {
		t.Fatalf("table should still exist: %s", check.Error)
	}
	if check.Rows[0]["c"] != int64(1) {
		t.Fatalf("expected 1 row, got %v", check.Rows[0]["c"])
	}
}

func TestQuery_InsertBlockedByDefault(t *testing.T) {
	t.Parallel()
	d := newTestInstance(t, defaultConfig())

	output := d.Query(context.Background(), duckmcp.QueryInput{SQL: "INSERT INTO users VALUES (1)"})
	if output.Error == "" {
		t.Fatal("expected protection error")
	}
	if !strings.Contains(output.Error, "INSERT statements are not allowed") {
		t.Fatalf("expected INSERT blocked message, got %q", output.Error)
	}
}

func TestQuery_InsertAllowedByPolicy(t *testing.T) {
	t.Parallel()
	d := newTestInstance(t, writableConfig())

	setupTable(t, d, "CREATE TABLE users (id INTEGER, name VARCHAR)")

	output := d.Query(context.Background(), duckmcp.QueryInput{SQL: "INSERT INTO users VALUES (1, 'Charlie')"})
	if output.Error != "" {
		t.Fatalf("unexpected error: %s", output.Error)
	}

	check := d.Query(context.Background(), duckmcp.QueryInput{SQL: "SELECT name FROM users"})
	if check.Rows[0]["name"] != "Charlie" {
		t.Fatalf("expected Charlie, got %v", check.Rows[0]["name"])
	}
}

func TestQuery_DropInStringLiteralAllowed(t *testing.T) {
	t.Parallel()
	d := newTestInstance(t, defaultConfig())

	output := d.Query(context.Background(), duckmcp.QueryInput{SQL: "SELECT 'DROP TABLE users' AS s"})
	if output.Error != "" {
		t.Fatalf("unexpected error: %s", output.Error)
	}
	if output.Rows[0]["s"] != "DROP TABLE users" {
		t.Fatalf("expected literal preserved, got %v", output.Rows[0]["s"])
	}
}

// --- Timeouts and Recovery ---

func TestQuery_Timeout(t *testing.T) {
	t.Parallel()
	config := defaultConfig()
	config.Query.DefaultTimeoutSeconds = 1
	d := newTestInstance(t, config)

	output := d.Query(context.Background(), duckmcp.QueryInput{SQL: heavyQuerySQL})
	if output.Error == "" {
		t.Fatal("expected timeout error")
	}
	if !strings.Contains(output.Error, "execution limit") {
		t.Fatalf("expected execution limit message, got %q", output.Error)
	}
	if output.ErrorKind != duckmcp.ErrKindTimeout {
		t.Fatalf("expected timeout kind, got %q", output.ErrorKind)
	}

	// The engine must be immediately usable after the cancellation
	recovered := d.Query(context.Background(), duckmcp.QueryInput{SQL: "SELECT 1 AS ok"})
	if recovered.Error != "" {
		t.Fatalf("engine not queryable after timeout: %s", recovered.Error)
	}
	if len(recovered.Rows) != 1 {
		t.Fatalf("expected 1 row after recovery, got %d", len(recovered.Rows))
	}
}

func TestQuery_TimeoutOverride(t *testing.T) {
	t.Parallel()
	d := newTestInstance(t, defaultConfig()) // default is 30s

	start := time.Now()
	output := d.Query(context.Background(), duckmcp.QueryInput{SQL: heavyQuerySQL, TimeoutSeconds: 1})
	elapsed := time.Since(start)

	if output.ErrorKind != duckmcp.ErrKindTimeout {
		t.Fatalf("expected timeout kind, got %q (%s)", output.ErrorKind, output.Error)
	}
	if elapsed >= 10*time.Second {
		t.Fatalf("override did not shorten the timeout, took %v", elapsed)
	}
}

func TestQuery_TimeoutOverrideClampedToMax(t *testing.T) {
	t.Parallel()
	config := defaultConfig()
	config.Query.DefaultTimeoutSeconds = 1
	config.Query.MaxTimeoutSeconds = 1
	d := newTestInstance(t, config)

	start := time.Now()
	output := d.Query(context.Background(), duckmcp.QueryInput{SQL: heavyQuerySQL, TimeoutSeconds: 600})
	elapsed := time.Since(start)

	if output.ErrorKind != duckmcp.ErrKindTimeout {
		t.Fatalf("expected timeout kind, got %q (%s)", output.ErrorKind, output.Error)
	}
	if elapsed >= 30*time.Second {
		t.Fatalf("override was not clamped to the maximum, took %v", elapsed)
	}
}

func TestQuery_NegativeTimeoutRejected(t *testing.T) {
	t.Parallel()
	d := newTestInstance(t, defaultConfig())

	output := d.Query(context.Background(), duckmcp.QueryInput{SQL: "SELECT 1", TimeoutSeconds: -5})
	if output.Error == "" {
		t.Fatal("expected invalid argument error")
	}
	if output.ErrorKind != duckmcp.ErrKindInvalidArgument {
		t.Fatalf("expected invalid_argument kind, got %q", output.ErrorKind)
	}
}

// --- Limits ---

func TestQuery_MaxSQLLength(t *testing.T) {
	t.Parallel()
	config := defaultConfig()
	config.Query.MaxSQLLength = 100
	d := newTestInstance(t, config)

	longSQL := "SELECT '" + strings.Repeat("x", 200) + "'"
	output := d.Query(context.Background(), duckmcp.QueryInput{SQL: longSQL})
	if output.Error == "" {
		t.Fatal("expected length error")
	}
	if !strings.Contains(output.Error, "SQL query too long") {
		t.Fatalf("expected length message, got %q", output.Error)
	}
	if output.ErrorKind != duckmcp.ErrKindInvalidArgument {
		t.Fatalf("expected invalid_argument kind, got %q", output.ErrorKind)
	}
}

func TestQuery_MaxResultRows(t *testing.T) {
	t.Parallel()
	config := defaultConfig()
	config.Query.MaxResultRows = 5
	d := newTestInstance(t, config)

	output := d.Query(context.Background(), duckmcp.QueryInput{SQL: "SELECT * FROM range(100)"})
	if output.Error != "" {
		t.Fatalf("unexpected error: %s", output.Error)
	}
	if len(output.Rows) != 5 {
		t.Fatalf("expected 5 rows (capped), got %d", len(output.Rows))
	}
	if !output.Truncated {
		t.Fatal("expected Truncated to be set")
	}
}

func TestQuery_MaxResultRowsNotTruncatedUnderCap(t *testing.T) {
	t.Parallel()
	config := defaultConfig()
	config.Query.MaxResultRows = 5
	d := newTestInstance(t, config)

	output := d.Query(context.Background(), duckmcp.QueryInput{SQL: "SELECT * FROM range(5)"})
	if output.Error != "" {
		t.Fatalf("unexpected error: %s", output.Error)
	}
	if len(output.Rows) != 5 {
		t.Fatalf("expected 5 rows, got %d", len(output.Rows))
	}
	if output.Truncated {
		t.Fatal("expected Truncated to be false at exactly the cap")
	}
}

func TestQuery_MaxResultLength(t *testing.T) {
	t.Parallel()
	config := defaultConfig()
	config.Query.MaxResultLength = 100 // very small limit
	d := newTestInstance(t, config)

	output := d.Query(context.Background(), duckmcp.QueryInput{SQL: "SELECT repeat('padding text ', 50) AS data FROM range(20)"})
	if output.Error == "" {
		t.Fatal("expected truncation error")
	}
	if !strings.Contains(output.Error, "[truncated]") {
		t.Fatalf("expected truncation marker, got %q", output.Error)
	}
	if output.Rows != nil {
		t.Fatalf("expected Rows to be nil after truncation, got %v", output.Rows)
	}
	if !strings.HasPrefix(output.Error, "[") {
		t.Fatalf("expected Error to start with '[' (partial JSON array), got %q", output.Error)
	}
}

// --- Pipeline Features ---

func TestQuery_SanitizationEndToEnd(t *testing.T) {
	t.Parallel()
	config := writableConfig()
	config.Sanitization = []duckmcp.SanitizationRule{
		{Pattern: `\d{3}-\d{3}-\d{4}`, Replacement: "***-***-****"},
	}
	d := newTestInstance(t, config)

	setupTable(t, d, "CREATE TABLE contacts (phone VARCHAR)")
	setupTable(t, d, "INSERT INTO contacts VALUES ('555-123-4567')")

	output := d.Query(context.Background(), duckmcp.QueryInput{SQL: "SELECT phone FROM contacts"})
	if output.Error != "" {
		t.Fatalf("unexpected error: %s", output.Error)
	}
	phone := output.Rows[0]["phone"].(string)
	if phone != "***-***-****" {
		t.Fatalf("expected sanitized phone, got %q", phone)
	}
}

func TestQuery_ErrorPromptEndToEnd(t *testing.T) {
	t.Parallel()
	config := defaultConfig()
	config.ErrorPrompts = []duckmcp.ErrorPromptRule{
		{Pattern: "does not exist", Message: "The table you referenced does not exist. Try list_tables to see available tables."},
	}
	d := newTestInstance(t, config)

	output := d.Query(context.Background(), duckmcp.QueryInput{SQL: "SELECT * FROM nonexistent_table"})
	if output.Error == "" {
		t.Fatal("expected error")
	}
	if !strings.Contains(output.Error, "does not exist") {
		t.Fatalf("expected 'does not exist' error, got %q", output.Error)
	}
	if !strings.Contains(output.Error, "Try list_tables") {
		t.Fatalf("expected error prompt appended, got %q", output.Error)
	}
	if output.ErrorKind != duckmcp.ErrKindEngine {
		t.Fatalf("expected engine_error kind, got %q", output.ErrorKind)
	}
}

func TestQuery_MultipleErrorPromptsConcat(t *testing.T) {
	t.Parallel()
	config := defaultConfig()
	config.ErrorPrompts = []duckmcp.ErrorPromptRule{
		{Pattern: "does not exist", Message: "Hint 1: Try list_tables."},
		{Pattern: "Catalog Error", Message: "Hint 2: Check the table name spelling."},
	}
	d := newTestInstance(t, config)

	// The engine's missing-table message contains both patterns
	output := d.Query(context.Background(), duckmcp.QueryInput{SQL: "SELECT * FROM nonexistent_table"})
	if output.Error == "" {
		t.Fatal("expected error")
	}
	if !strings.Contains(output.Error, "Hint 1: Try list_tables.") {
		t.Fatalf("expected first error prompt, got %q", output.Error)
	}
	if !strings.Contains(output.Error, "Hint 2: Check the table name spelling.") {
		t.Fatalf("expected second error prompt, got %q", output.Error)
	}
}

func TestQuery_ErrorPromptKindFilter(t *testing.T) {
	t.Parallel()
	config := defaultConfig()
	config.ErrorPrompts = []duckmcp.ErrorPromptRule{
		{Pattern: ".*", Kind: "timeout", Message: "Consider a smaller date range."},
	}
	d := newTestInstance(t, config)

	// An engine error must not pick up the timeout-only prompt
	output := d.Query(context.Background(), duckmcp.QueryInput{SQL: "SELECT * FROM nonexistent_table"})
	if output.Error == "" {
		t.Fatal("expected error")
	}
	if strings.Contains(output.Error, "Consider a smaller date range.") {
		t.Fatalf("timeout-only prompt leaked into engine error: %q", output.Error)
	}
}

func TestQuery_ReadOnlyMode(t *testing.T) {
	t.Parallel()
	d := newReadOnlyTestInstance(t, writableConfig(), func(t *testing.T, setup *duckmcp.DuckDBMcp) {
		setupTable(t, setup, "CREATE TABLE users (id INTEGER, name VARCHAR)")
		setupTable(t, setup, "INSERT INTO users VALUES (1, 'Alice')")
	})

	// SELECT should work
	output := d.Query(context.Background(), duckmcp.QueryInput{SQL: "SELECT name FROM users"})
	if output.Error != "" {
		t.Fatalf("SELECT should work in read-only mode: %s", output.Error)
	}
	if output.Rows[0]["name"] != "Alice" {
		t.Fatalf("expected Alice, got %v", output.Rows[0]["name"])
	}

	// CREATE passes the policy (AllowCreate) but the engine rejects it
	output = d.Query(context.Background(), duckmcp.QueryInput{SQL: "CREATE TABLE test (id INTEGER)"})
	if output.Error == "" {
		t.Fatal("expected error for CREATE in read-only mode")
	}
	if output.ErrorKind != duckmcp.ErrKindEngine {
		t.Fatalf("expected engine_error kind, got %q", output.ErrorKind)
	}
}

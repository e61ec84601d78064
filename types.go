package duckmcp

// Error kinds used in tool outputs. Every failed operation carries one
// so the calling agent can react without parsing error messages.
const (
	ErrKindBlocked         = "blocked_statement"
	ErrKindTimeout         = "timeout"
	ErrKindEngine          = "engine_error"
	ErrKindInvalidArgument = "invalid_argument"
	ErrKindIOFailure       = "io_failure"
)

// QueryInput is the input for the Query tool.
type QueryInput struct {
	SQL string `json:"sql"`
	// TimeoutSeconds optionally overrides the default execution timeout.
	// Clamped to query.max_timeout_seconds. 0 means use the default.
	TimeoutSeconds int `json:"timeout_seconds,omitempty"`
}

// QueryOutput is the output of the Query tool. All errors (engine errors,
// protection rejections, hook rejections, Go errors) are placed in Error
// with ErrorKind set. The error message is evaluated against error_prompts
// and matching prompt messages are appended.
type QueryOutput struct {
	Columns   []string                 `json:"columns"`
	Rows      []map[string]interface{} `json:"rows"`
	Truncated bool                     `json:"truncated,omitempty"`
	Error     string                   `json:"error,omitempty"`
	ErrorKind string                   `json:"error_kind,omitempty"`
}

// ValidateInput is the input for the Validate tool.
type ValidateInput struct {
	SQL string `json:"sql"`
}

// ValidateOutput is the output of the Validate tool. Valid=false is a
// normal result, not a tool failure — the query was checked and found
// unrunnable, with Reason and ErrorKind explaining why.
type ValidateOutput struct {
	Valid     bool   `json:"valid"`
	Operation string `json:"operation,omitempty"`
	Reason    string `json:"reason,omitempty"`
	// Plan holds the engine's EXPLAIN output when a dry run was performed.
	Plan      string `json:"plan,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"`
}

// SampleDataInput is the input for the SampleData tool.
type SampleDataInput struct {
	Table string `json:"table"`
	// Limit caps the number of returned rows. 0 means the configured
	// default; values above sample_max_limit are clamped.
	Limit int `json:"limit,omitempty"`
}

// SampleDataOutput is the output of the SampleData tool.
type SampleDataOutput struct {
	Table     string                   `json:"table"`
	Columns   []string                 `json:"columns"`
	Rows      []map[string]interface{} `json:"rows"`
	Error     string                   `json:"error,omitempty"`
	ErrorKind string                   `json:"error_kind,omitempty"`
}

// TableSchemaStatsInput is the input for the TableSchemaStats tool.
type TableSchemaStatsInput struct {
	Table string `json:"table"`
}

// ColumnDescriptor describes a single column.
type ColumnDescriptor struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Nullable   bool   `json:"nullable"`
	Default    string `json:"default,omitempty"`
	PrimaryKey bool   `json:"primary_key"`
}

// ColumnStats holds per-column statistics from the engine's SUMMARIZE.
// Min/Max/Avg and quantiles are engine-typed, so they stay interface{}.
type ColumnStats struct {
	Column         string      `json:"column"`
	Type           string      `json:"type"`
	Min            interface{} `json:"min"`
	Max            interface{} `json:"max"`
	ApproxUnique   interface{} `json:"approx_unique,omitempty"`
	Avg            interface{} `json:"avg,omitempty"`
	Std            interface{} `json:"std,omitempty"`
	Q25            interface{} `json:"q25,omitempty"`
	Q50            interface{} `json:"q50,omitempty"`
	Q75            interface{} `json:"q75,omitempty"`
	Count          int64       `json:"count"`
	NullPercentage interface{} `json:"null_percentage,omitempty"`
}

// TableSchemaStatsOutput is the output of the TableSchemaStats tool.
type TableSchemaStatsOutput struct {
	Table     string             `json:"table"`
	RowCount  int64              `json:"row_count"`
	Columns   []ColumnDescriptor `json:"columns"`
	Stats     []ColumnStats      `json:"stats,omitempty"`
	Error     string             `json:"error,omitempty"`
	ErrorKind string             `json:"error_kind,omitempty"`
}

// ListTablesInput is the input for the ListTables tool.
type ListTablesInput struct{}

// TableEntry represents a single table or view in the ListTables output.
type TableEntry struct {
	Schema        string `json:"schema"`
	Name          string `json:"name"`
	Type          string `json:"type"` // "table", "view"
	ColumnCount   int64  `json:"column_count,omitempty"`
	EstimatedSize int64  `json:"estimated_size,omitempty"`
}

// ListTablesOutput is the output of the ListTables tool.
type ListTablesOutput struct {
	Tables    []TableEntry `json:"tables"`
	Error     string       `json:"error,omitempty"`
	ErrorKind string       `json:"error_kind,omitempty"`
}

// DatabaseSummaryInput is the input for the DatabaseSummary tool.
type DatabaseSummaryInput struct{}

// TableSummary holds schema and row count for one table. A per-table
// failure is recorded in Error without failing the whole summary.
type TableSummary struct {
	Schema   string             `json:"schema"`
	Name     string             `json:"name"`
	Type     string             `json:"type"`
	RowCount int64              `json:"row_count"`
	Columns  []ColumnDescriptor `json:"columns,omitempty"`
	Error    string             `json:"error,omitempty"`
}

// DatabaseSummaryOutput is the output of the DatabaseSummary tool.
type DatabaseSummaryOutput struct {
	Tables    []TableSummary `json:"tables"`
	Error     string         `json:"error,omitempty"`
	ErrorKind string         `json:"error_kind,omitempty"`
}

// ImportInput is the input for the Import tool.
type ImportInput struct {
	// Path is a local file path or an s3:// URL. The format is detected
	// from the extension: .csv/.tsv, .json/.ndjson/.jsonl, or .parquet.
	Path  string `json:"path"`
	Table string `json:"table"`
	// Mode is "create" (default, fails if the table exists), "replace",
	// or "append" (fails if the table does not exist).
	Mode string `json:"mode,omitempty"`
}

// ImportOutput is the output of the Import tool.
type ImportOutput struct {
	Table        string `json:"table"`
	Mode         string `json:"mode"`
	Format       string `json:"format"`
	RowsImported int64  `json:"rows_imported"`
	TotalRows    int64  `json:"total_rows"`
	Error        string `json:"error,omitempty"`
	ErrorKind    string `json:"error_kind,omitempty"`
}

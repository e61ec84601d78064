package duckmcp

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/tabwise/duckdb-mcp/internal/metrics"
)

// RegisterMCPTools registers the query, validation, inspection, and
// import tools on the given MCP server.
func RegisterMCPTools(mcpServer *server.MCPServer, duckMcp *DuckDBMcp) {
	// ExecuteQuery tool
	executeQueryTool := mcp.NewTool("execute_query",
		mcp.WithDescription("Execute a SQL query against the DuckDB database. Destructive statements and multi-statement batches are rejected. Returns results as JSON."),
		mcp.WithString("sql",
			mcp.Required(),
			mcp.Description("The SQL query to execute"),
		),
		mcp.WithNumber("timeout_seconds",
			mcp.Description("Optional execution time limit in seconds. Values above the server's configured maximum are clamped."),
		),
	)

	mcpServer.AddTool(executeQueryTool, duckMcp.loggedToolHandler("execute_query", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sql, err := req.RequireString("sql")
		if err != nil {
			return mcp.NewToolResultError("sql parameter is required"), nil
		}
		timeoutSeconds := req.GetInt("timeout_seconds", 0)
		output := duckMcp.Query(ctx, QueryInput{SQL: sql, TimeoutSeconds: timeoutSeconds})
		return marshalToolResult(output, output.Error)
	}))

	// ValidateQuery tool
	validateQueryTool := mcp.NewTool("validate_query",
		mcp.WithDescription("Check a SQL query without executing it: classifier verdict plus an engine dry run for read statements. Safe to call repeatedly."),
		mcp.WithString("sql",
			mcp.Required(),
			mcp.Description("The SQL query to validate"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	mcpServer.AddTool(validateQueryTool, duckMcp.loggedToolHandler("validate_query", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sql, err := req.RequireString("sql")
		if err != nil {
			return mcp.NewToolResultError("sql parameter is required"), nil
		}
		// An invalid query is a normal verdict, not a tool error.
		output := duckMcp.Validate(ctx, ValidateInput{SQL: sql})
		return marshalToolResult(output, "")
	}))

	// SampleData tool
	sampleDataTool := mcp.NewTool("get_sample_data",
		mcp.WithDescription("Fetch a few rows from a table to see real values before writing queries."),
		mcp.WithString("table",
			mcp.Required(),
			mcp.Description("The table name, optionally schema-qualified"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum rows to return. Defaults to the server's sample limit."),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	mcpServer.AddTool(sampleDataTool, duckMcp.loggedToolHandler("get_sample_data", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		table, err := req.RequireString("table")
		if err != nil {
			return mcp.NewToolResultError("table parameter is required"), nil
		}
		limit := req.GetInt("limit", 0)
		output := duckMcp.SampleData(ctx, SampleDataInput{Table: table, Limit: limit})
		return marshalToolResult(output, output.Error)
	}))

	// TableSchemaStats tool
	schemaStatsTool := mcp.NewTool("get_table_schema_and_stats",
		mcp.WithDescription("Describe a table: columns with types, row count, and per-column statistics (min, max, distinct counts, quantiles)."),
		mcp.WithString("table",
			mcp.Required(),
			mcp.Description("The table name, optionally schema-qualified"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	mcpServer.AddTool(schemaStatsTool, duckMcp.loggedToolHandler("get_table_schema_and_stats", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		table, err := req.RequireString("table")
		if err != nil {
			return mcp.NewToolResultError("table parameter is required"), nil
		}
		output := duckMcp.TableSchemaStats(ctx, TableSchemaStatsInput{Table: table})
		return marshalToolResult(output, output.Error)
	}))

	// Import tool
	importTool := mcp.NewTool("import_file",
		mcp.WithDescription("Import a CSV, JSON, or Parquet file into a table. Accepts local paths and s3:// URLs."),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Local file path or s3:// URL; format is detected from the extension"),
		),
		mcp.WithString("table",
			mcp.Required(),
			mcp.Description("The target table name"),
		),
		mcp.WithString("mode",
			mcp.Description("What to do with the target table"),
			mcp.Enum("create", "replace", "append"),
			mcp.DefaultString("create"),
		),
	)

	mcpServer.AddTool(importTool, duckMcp.loggedToolHandler("import_file", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		path, err := req.RequireString("path")
		if err != nil {
			return mcp.NewToolResultError("path parameter is required"), nil
		}
		table, err := req.RequireString("table")
		if err != nil {
			return mcp.NewToolResultError("table parameter is required"), nil
		}
		mode := req.GetString("mode", "create")
		output := duckMcp.Import(ctx, ImportInput{Path: path, Table: table, Mode: mode})
		return marshalToolResult(output, output.Error)
	}))

	// ListTables tool
	listTablesTool := mcp.NewTool("list_tables",
		mcp.WithDescription("List all tables and views in the database with estimated row counts."),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	mcpServer.AddTool(listTablesTool, duckMcp.loggedToolHandler("list_tables", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		output := duckMcp.ListTables(ctx, ListTablesInput{})
		return marshalToolResult(output, output.Error)
	}))

	// DatabaseSummary tool
	databaseSummaryTool := mcp.NewTool("get_database_summary",
		mcp.WithDescription("Describe every table in the database in one call: schemas and row counts."),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	mcpServer.AddTool(databaseSummaryTool, duckMcp.loggedToolHandler("get_database_summary", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		output := duckMcp.DatabaseSummary(ctx, DatabaseSummaryInput{})
		return marshalToolResult(output, output.Error)
	}))
}

// marshalToolResult renders a tool output as JSON. When errText is
// non-empty the result is flagged as an error but still carries the full
// structured output, so the agent sees error_kind alongside the message.
func marshalToolResult(output interface{}, errText string) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.Marshal(output)
	if err != nil {
		return mcp.NewToolResultError("failed to marshal tool result"), nil
	}
	if errText != "" {
		return mcp.NewToolResultError(string(jsonBytes)), nil
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

// loggedToolHandler wraps a tool handler to log request and response
// lengths and count the call.
func (d *DuckDBMcp) loggedToolHandler(tool string, handler server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		metrics.ObserveToolCall(tool)
		reqLen := requestLength(req)
		result, err := handler(ctx, req)
		respLen := resultLength(result)
		d.logger.Info().
			Str("tool", tool).
			Int("request_bytes", reqLen).
			Int("response_bytes", respLen).
			Msg("tool call")
		return result, err
	}
}

// requestLength returns the JSON-encoded byte length of the request arguments.
func requestLength(req mcp.CallToolRequest) int {
	args := req.GetArguments()
	if len(args) == 0 {
		return 0
	}
	b, err := json.Marshal(args)
	if err != nil {
		return 0
	}
	return len(b)
}

// resultLength returns the total byte length of text content in a CallToolResult.
func resultLength(result *mcp.CallToolResult) int {
	if result == nil {
		return 0
	}
	total := 0
	for _, c := range result.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			total += len(tc.Text)
		}
	}
	return total
}

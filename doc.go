// Package duckmcp provides safe, controlled DuckDB access for AI agents
// through the Model Context Protocol (MCP).
//
// It exposes seven tools — Query, Validate, SampleData, TableSchemaStats,
// ListTables, DatabaseSummary, and Import — with a full execution
// pipeline: SQL protection, query hooks, data sanitization, result
// truncation, and dynamic agent steering via error prompts.
//
// Every caller-supplied statement is classified by a SQL tokenizer before
// execution: destructive statements (DELETE, UPDATE, DROP, TRUNCATE,
// ALTER) are always blocked, writes like INSERT and CREATE are blocked
// unless explicitly allowed, and multi-statement batches are rejected
// outright. Execution is bounded by a per-query timeout; cancellation is
// forwarded to the embedded engine as an interrupt and the connection is
// recovered afterwards, so a runaway query never wedges the server.
//
// # Library Usage
//
//	d, err := duckmcp.New(ctx, duckmcp.Config{
//		Database: duckmcp.DatabaseConfig{
//			Path:            "analytics.duckdb",
//			CreateIfMissing: true,
//		},
//		Query: duckmcp.QueryConfig{
//			DefaultTimeoutSeconds: 60,
//			MaxTimeoutSeconds:     300,
//		},
//	}, logger)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer d.Close(ctx)
//
//	// Use directly
//	output := d.Query(ctx, duckmcp.QueryInput{SQL: "SELECT * FROM events LIMIT 10"})
//
//	// Or register as MCP tools
//	duckmcp.RegisterMCPTools(mcpServer, d)
//
// # Hooks
//
// BeforeQuery and AfterQuery hooks run as a middleware chain around query
// execution. Implement [BeforeQueryHook] and [AfterQueryHook] for native Go
// hooks with full type safety:
//
//	type AuditHook struct{}
//
//	func (h *AuditHook) Run(ctx context.Context, query string) (string, error) {
//		log.Printf("query: %s", query)
//		return query, nil // return modified query or original
//	}
//
// Unlike command-based hooks (server mode), Go hooks have no regex pattern
// matching — the hook function itself decides whether to act.
//
// # Imports
//
// Import loads CSV, JSON, and Parquet files into tables through the
// engine's native readers. Import statements are generated internally
// from the file path and table name, never from caller SQL, so they skip
// the statement classifier — the protection layer guards what the agent
// writes, not what the operator configures. They still run under the
// bounded executor.
package duckmcp

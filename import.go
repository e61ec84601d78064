package duckmcp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tabwise/duckdb-mcp/internal/metrics"
	"github.com/tabwise/duckdb-mcp/internal/objstore"
)

const tableExistsSQL = `SELECT count(*) FROM information_schema.tables WHERE table_schema = COALESCE(NULLIF(?, ''), current_schema()) AND table_name = ?`

// Import loads a CSV, JSON, or Parquet file into a table. The generated
// statements are internal — the caller never supplies SQL — so they skip
// the statement classifier on purpose; they still run under the bounded
// executor with the import timeout. s3:// paths are staged through the
// configured object store before the engine reads them.
func (d *DuckDBMcp) Import(ctx context.Context, input ImportInput) *ImportOutput {
	startTime := time.Now()

	mode := input.Mode
	if mode == "" {
		mode = "create"
	}

	if input.Table == "" {
		return d.importError(input, mode, "", &invalidArgumentError{msg: "table is required"})
	}
	if input.Path == "" {
		return d.importError(input, mode, "", &invalidArgumentError{msg: "path is required"})
	}
	if mode != "create" && mode != "replace" && mode != "append" {
		return d.importError(input, mode, "", &invalidArgumentError{msg: fmt.Sprintf("invalid mode %q: expected create, replace, or append", input.Mode)})
	}

	format, err := sniffFormat(input.Path)
	if err != nil {
		return d.importError(input, mode, "", err)
	}

	if d.config.Database.ReadOnly {
		return d.importError(input, mode, format, &invalidArgumentError{msg: "cannot import into a read-only database"})
	}

	// Stage the source before taking the execution slot — a slow fetch
	// should not block queries.
	localPath := input.Path
	if strings.HasPrefix(input.Path, "s3://") {
		if d.objStore == nil {
			return d.importError(input, mode, format, &invalidArgumentError{msg: "object store is not configured: set object_store.endpoint to import s3:// paths"})
		}
		bucket, key, err := objstore.ParseURL(input.Path)
		if err != nil {
			return d.importError(input, mode, format, &invalidArgumentError{msg: err.Error()})
		}
		staged, err := d.objStore.FetchToTemp(ctx, bucket, key)
		if err != nil {
			if errors.Is(err, objstore.ErrObjectNotFound) {
				return d.importError(input, mode, format, &ioFailureError{msg: fmt.Sprintf("object not found: %s", input.Path)})
			}
			return d.importError(input, mode, format, &ioFailureError{msg: fmt.Sprintf("failed to fetch %s: %v", input.Path, err)})
		}
		localPath = staged
		defer os.Remove(staged)
	} else {
		info, err := os.Stat(localPath)
		if err != nil {
			return d.importError(input, mode, format, &ioFailureError{msg: fmt.Sprintf("cannot read file %s: %v", localPath, err)})
		}
		if info.IsDir() {
			return d.importError(input, mode, format, &ioFailureError{msg: fmt.Sprintf("cannot read file %s: is a directory", localPath)})
		}
	}

	select {
	case d.semaphore <- struct{}{}:
	case <-ctx.Done():
		return d.importError(input, mode, format, fmt.Errorf("failed to acquire execution slot: another statement is still running, context cancelled while waiting: %w", ctx.Err()))
	}
	defer func() { <-d.semaphore }()

	limit := time.Duration(d.config.Query.ImportTimeoutSeconds) * time.Second
	queryCtx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	// Check the target up front so mode mistakes surface as argument
	// errors instead of engine errors mid-import.
	exists, err := d.tableExists(queryCtx, input.Table)
	if err != nil {
		return d.importError(input, mode, format, err)
	}
	switch mode {
	case "create":
		if exists {
			return d.importError(input, mode, format, &invalidArgumentError{msg: fmt.Sprintf("table %s already exists: use mode \"replace\" to overwrite it or \"append\" to add rows", input.Table)})
		}
	case "append":
		if !exists {
			return d.importError(input, mode, format, &invalidArgumentError{msg: fmt.Sprintf("table %s does not exist: use mode \"create\" to create it", input.Table)})
		}
	}

	quoted := quoteQualified(input.Table)
	var totalBefore int64
	if mode == "append" {
		if err := d.database().QueryRowContext(queryCtx, "SELECT count(*) FROM "+quoted).Scan(&totalBefore); err != nil {
			return d.importError(input, mode, format, err)
		}
	}

	reader := readerExpr(format, localPath)
	var stmt string
	switch mode {
	case "replace":
		stmt = fmt.Sprintf("CREATE OR REPLACE TABLE %s AS SELECT * FROM %s", quoted, reader)
	case "append":
		stmt = fmt.Sprintf("INSERT INTO %s SELECT * FROM %s", quoted, reader)
	default:
		stmt = fmt.Sprintf("CREATE TABLE %s AS SELECT * FROM %s", quoted, reader)
	}

	if _, err := d.database().ExecContext(queryCtx, stmt); err != nil {
		if queryCtx.Err() == context.DeadlineExceeded {
			d.recoverAfterCancel()
			return d.importError(input, mode, format, &timeoutError{limit: limit})
		}
		return d.importError(input, mode, format, &ioFailureError{msg: fmt.Sprintf("import failed: %v", err)})
	}

	var totalAfter int64
	if err := d.database().QueryRowContext(queryCtx, "SELECT count(*) FROM "+quoted).Scan(&totalAfter); err != nil {
		return d.importError(input, mode, format, err)
	}
	rowsImported := totalAfter - totalBefore

	metrics.ObserveImportRows(rowsImported)
	d.logger.Info().
		Str("table", input.Table).
		Str("path", input.Path).
		Str("mode", mode).
		Str("format", format).
		Int64("rows_imported", rowsImported).
		Dur("duration", time.Since(startTime)).
		Msg("Import executed")

	return &ImportOutput{
		Table:        input.Table,
		Mode:         mode,
		Format:       format,
		RowsImported: rowsImported,
		TotalRows:    totalAfter,
	}
}

// tableExists checks information_schema for the target table. Unqualified
// names resolve against the current schema.
func (d *DuckDBMcp) tableExists(ctx context.Context, table string) (bool, error) {
	schema := ""
	name := table
	if i := strings.LastIndex(table, "."); i >= 0 {
		schema = table[:i]
		name = table[i+1:]
	}
	var n int64
	if err := d.database().QueryRowContext(ctx, tableExistsSQL, schema, name).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// sniffFormat detects the import format from the path extension.
func sniffFormat(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".csv", ".tsv":
		return "csv", nil
	case ".json", ".ndjson", ".jsonl":
		return "json", nil
	case ".parquet":
		return "parquet", nil
	default:
		return "", &invalidArgumentError{msg: fmt.Sprintf("unsupported file format %q: expected .csv, .tsv, .json, .ndjson, .jsonl, or .parquet", ext)}
	}
}

// readerExpr builds the engine reader call for the detected format.
// read_csv and read_json auto-detect delimiters, headers, and types.
func readerExpr(format, localPath string) string {
	lit := quoteLiteral(localPath)
	switch format {
	case "csv":
		return "read_csv(" + lit + ")"
	case "json":
		return "read_json(" + lit + ")"
	default:
		return "read_parquet(" + lit + ")"
	}
}

func (d *DuckDBMcp) importError(input ImportInput, mode, format string, err error) *ImportOutput {
	kind := classifyErrorKind(err)
	errMsg := err.Error()
	if prompt := d.errPrompts.Match(kind, errMsg); prompt != "" {
		errMsg = errMsg + "\n\n" + prompt
	}
	d.logger.Error().
		Err(err).
		Str("table", input.Table).
		Str("path", input.Path).
		Str("error_kind", kind).
		Msg("Import error")
	return &ImportOutput{Table: input.Table, Mode: mode, Format: format, Error: errMsg, ErrorKind: kind}
}

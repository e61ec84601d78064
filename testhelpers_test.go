package duckmcp_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	duckmcp "github.com/tabwise/duckdb-mcp"
)

func testLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).Level(zerolog.Disabled)
}

func defaultConfig() duckmcp.Config {
	return duckmcp.Config{
		Query: duckmcp.QueryConfig{
			DefaultTimeoutSeconds: 30,
			MaxTimeoutSeconds:     300,
			InspectTimeoutSeconds: 10,
			ImportTimeoutSeconds:  30,
			MaxSQLLength:          100000,
			MaxResultLength:       100000,
			MaxResultRows:         10000,
			SampleDefaultLimit:    20,
			SampleMaxLimit:        100,
		},
	}
}

// writableConfig allows the writes tests need to seed tables. DELETE,
// UPDATE, DROP and friends stay blocked — they cannot be enabled at all.
func writableConfig() duckmcp.Config {
	config := defaultConfig()
	config.Protection.AllowCreate = true
	config.Protection.AllowInsert = true
	return config
}

func newTestInstance(t *testing.T, config duckmcp.Config) *duckmcp.DuckDBMcp {
	t.Helper()
	if config.Database.Path == "" {
		config.Database.Path = filepath.Join(t.TempDir(), "test.duckdb")
		config.Database.CreateIfMissing = true
	}
	ctx := context.Background()
	d, err := duckmcp.New(ctx, config, testLogger())
	if err != nil {
		t.Fatalf("Failed to create DuckDBMcp: %v", err)
	}
	t.Cleanup(func() { d.Close(ctx) })
	return d
}

func newTestInstanceWithHooks(t *testing.T, config duckmcp.Config, hooks duckmcp.ServerHooksConfig) *duckmcp.DuckDBMcp {
	t.Helper()
	if config.Database.Path == "" {
		config.Database.Path = filepath.Join(t.TempDir(), "test.duckdb")
		config.Database.CreateIfMissing = true
	}
	ctx := context.Background()
	d, err := duckmcp.New(ctx, config, testLogger(), duckmcp.WithServerHooks(hooks))
	if err != nil {
		t.Fatalf("Failed to create DuckDBMcp: %v", err)
	}
	t.Cleanup(func() { d.Close(ctx) })
	return d
}

func hookScript(name string) string {
	return filepath.Join("testdata", "hooks", name)
}

func setupTable(t *testing.T, d *duckmcp.DuckDBMcp, sql string) {
	t.Helper()
	output := d.Query(context.Background(), duckmcp.QueryInput{SQL: sql})
	if output.Error != "" {
		t.Fatalf("setup failed: %s", output.Error)
	}
}

// newSeededInstance creates an instance whose database was populated by
// setupFn through a separate writable instance. The embedded engine
// holds an exclusive lock on the file, so the setup instance is closed
// before the instance under test opens the same path.
func newSeededInstance(t *testing.T, config duckmcp.Config, setupFn func(t *testing.T, d *duckmcp.DuckDBMcp)) *duckmcp.DuckDBMcp {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.duckdb")
	ctx := context.Background()

	setupConfig := writableConfig()
	setupConfig.Database.Path = path
	setupConfig.Database.CreateIfMissing = true
	setupD, err := duckmcp.New(ctx, setupConfig, testLogger())
	if err != nil {
		t.Fatalf("failed to create setup instance: %v", err)
	}
	setupFn(t, setupD)
	setupD.Close(ctx)

	config.Database.Path = path
	d, err := duckmcp.New(ctx, config, testLogger())
	if err != nil {
		t.Fatalf("failed to create instance: %v", err)
	}
	t.Cleanup(func() { d.Close(ctx) })
	return d
}

// newReadOnlyTestInstance seeds a database with setupFn, then reopens it
// in read-only mode with the given config.
func newReadOnlyTestInstance(t *testing.T, config duckmcp.Config, setupFn func(t *testing.T, d *duckmcp.DuckDBMcp)) *duckmcp.DuckDBMcp {
	t.Helper()
	config.Database.ReadOnly = true
	return newSeededInstance(t, config, setupFn)
}

package duckmcp

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"
	"github.com/rs/zerolog"

	"github.com/tabwise/duckdb-mcp/internal/errprompt"
	"github.com/tabwise/duckdb-mcp/internal/hooks"
	"github.com/tabwise/duckdb-mcp/internal/objstore"
	"github.com/tabwise/duckdb-mcp/internal/protection"
	"github.com/tabwise/duckdb-mcp/internal/sanitize"
	"github.com/tabwise/duckdb-mcp/internal/timeout"
)

// DuckDBMcp is the core engine that provides Query, Validate, SampleData,
// TableSchemaStats, ListTables, DatabaseSummary, and Import tools.
// All exported methods are safe for concurrent use from multiple goroutines;
// statements are serialized through a single execution slot because the
// embedded engine runs in-process.
type DuckDBMcp struct {
	config        Config
	dsn           string
	db            *sql.DB    // guarded by dbMu: replaced when a cancelled query wedges the handle
	dbMu          sync.Mutex
	semaphore     chan struct{}
	protection    *protection.Checker
	cmdHooks      *hooks.Runner          // command-based hooks (CLI mode)
	goBeforeHooks []BeforeQueryHookEntry // Go function hooks (library mode)
	goAfterHooks  []AfterQueryHookEntry  // Go function hooks (library mode)
	sanitizer     *sanitize.Sanitizer
	errPrompts    *errprompt.Matcher
	timeoutMgr    *timeout.Manager
	objStore      *objstore.Client
	logger        zerolog.Logger
}

// Option is a functional option for New().
type Option func(*options)

type options struct {
	serverHooks *ServerHooksConfig
}

// WithServerHooks passes command-based hook configuration to DuckDBMcp.
// Mutually exclusive with Config.BeforeQueryHooks/AfterQueryHooks (Go hooks).
func WithServerHooks(h ServerHooksConfig) Option {
	return func(o *options) {
		o.serverHooks = &h
	}
}

// New creates a new DuckDBMcp instance and opens the database file.
// Panics on invalid config. Returns error only for runtime failures
// (e.g., the database file cannot be opened).
func New(ctx context.Context, config Config, logger zerolog.Logger, opts ...Option) (*DuckDBMcp, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	// --- Config validation (panics on invalid config) ---

	if config.Database.Path == "" {
		panic("duckmcp: database.path must be non-empty")
	}

	// Apply defaults for zero values
	if config.Query.DefaultTimeoutSeconds == 0 {
		config.Query.DefaultTimeoutSeconds = 60
	}
	if config.Query.MaxTimeoutSeconds == 0 {
		config.Query.MaxTimeoutSeconds = 300
	}
	if config.Query.InspectTimeoutSeconds == 0 {
		config.Query.InspectTimeoutSeconds = 30
	}
	if config.Query.ImportTimeoutSeconds == 0 {
		config.Query.ImportTimeoutSeconds = 300
	}
	if config.Query.MaxSQLLength == 0 {
		config.Query.MaxSQLLength = 100000
	}
	if config.Query.MaxResultLength == 0 {
		config.Query.MaxResultLength = 100000
	}
	if config.Query.MaxResultRows == 0 {
		config.Query.MaxResultRows = 10000
	}
	if config.Query.SampleDefaultLimit == 0 {
		config.Query.SampleDefaultLimit = 20
	}
	if config.Query.SampleMaxLimit == 0 {
		config.Query.SampleMaxLimit = 100
	}

	if config.Query.DefaultTimeoutSeconds < 0 {
		panic("duckmcp: query.default_timeout_seconds must be > 0")
	}
	if config.Query.MaxTimeoutSeconds < 0 {
		panic("duckmcp: query.max_timeout_seconds must be >= 0")
	}
	if config.Query.MaxTimeoutSeconds > 0 && config.Query.MaxTimeoutSeconds < config.Query.DefaultTimeoutSeconds {
		panic("duckmcp: query.max_timeout_seconds must be >= query.default_timeout_seconds")
	}
	if config.Query.InspectTimeoutSeconds < 0 {
		panic("duckmcp: query.inspect_timeout_seconds must be > 0")
	}
	if config.Query.ImportTimeoutSeconds < 0 {
		panic("duckmcp: query.import_timeout_seconds must be > 0")
	}
	if config.Query.MaxSQLLength < 0 {
		panic("duckmcp: query.max_sql_length must be > 0")
	}
	if config.Query.MaxResultLength < 0 {
		panic("duckmcp: query.max_result_length must be > 0")
	}
	if config.Query.MaxResultRows < 0 {
		panic("duckmcp: query.max_result_rows must be > 0")
	}
	if config.Query.SampleDefaultLimit < 0 || config.Query.SampleMaxLimit < 0 {
		panic("duckmcp: query.sample_default_limit and query.sample_max_limit must be > 0")
	}
	if config.Query.SampleMaxLimit < config.Query.SampleDefaultLimit {
		panic("duckmcp: query.sample_max_limit must be >= query.sample_default_limit")
	}

	// Validate hook configuration: Go hooks and command hooks are mutually exclusive
	hasGoHooks := len(config.BeforeQueryHooks) > 0 || len(config.AfterQueryHooks) > 0
	hasCmdHooks := o.serverHooks != nil && (len(o.serverHooks.BeforeQuery) > 0 || len(o.serverHooks.AfterQuery) > 0)
	if hasGoHooks && hasCmdHooks {
		panic("duckmcp: Go hooks (Config.BeforeQueryHooks/AfterQueryHooks) and command hooks (WithServerHooks) are mutually exclusive")
	}

	// Validate DefaultHookTimeoutSeconds if any hooks are configured
	if hasGoHooks && config.DefaultHookTimeoutSeconds <= 0 {
		panic("duckmcp: default_hook_timeout_seconds must be > 0 when Go hooks are configured")
	}

	// Validate per-hook timeouts for Go hooks
	for _, entry := range config.BeforeQueryHooks {
		if entry.Timeout < 0 {
			panic(fmt.Sprintf("duckmcp: before_query hook %q has negative timeout", entry.Name))
		}
	}
	for _, entry := range config.AfterQueryHooks {
		if entry.Timeout < 0 {
			panic(fmt.Sprintf("duckmcp: after_query hook %q has negative timeout", entry.Name))
		}
	}

	// Validate timeout rules
	for _, rule := range config.Query.TimeoutRules {
		if rule.TimeoutSeconds <= 0 {
			panic(fmt.Sprintf("duckmcp: timeout_rule with pattern %q has timeout_seconds <= 0", rule.Pattern))
		}
	}

	// --- Open database ---

	if !config.Database.CreateIfMissing && config.Database.Path != ":memory:" {
		if _, err := os.Stat(config.Database.Path); err != nil {
			return nil, fmt.Errorf("database file does not exist: %s (set database.create_if_missing to create it)", config.Database.Path)
		}
	}

	dsn := buildDSN(config.Database)
	db, err := openDatabase(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// --- Initialize internal components ---

	protectionChecker := protection.NewChecker(protection.Config{
		AllowInsert:      config.Protection.AllowInsert,
		AllowCreate:      config.Protection.AllowCreate,
		AllowCopy:        config.Protection.AllowCopy,
		AllowSet:         config.Protection.AllowSet,
		AllowCall:        config.Protection.AllowCall,
		AllowAttach:      config.Protection.AllowAttach,
		AllowTransaction: config.Protection.AllowTransaction,
		AllowMaintenance: config.Protection.AllowMaintenance,
		AllowExtensions:  config.Protection.AllowExtensions,
	})

	san := sanitize.NewSanitizer(mapSanitizationRules(config.Sanitization))
	matcher := errprompt.NewMatcher(mapErrorPromptRules(config.ErrorPrompts))
	timeoutRules := make([]timeout.Rule, len(config.Query.TimeoutRules))
	for i, r := range config.Query.TimeoutRules {
		timeoutRules[i] = timeout.Rule{
			Pattern: r.Pattern,
			Timeout: time.Duration(r.TimeoutSeconds) * time.Second,
		}
	}
	tmgr := timeout.NewManager(timeout.Config{
		DefaultTimeout: time.Duration(config.Query.DefaultTimeoutSeconds) * time.Second,
		MaxTimeout:     time.Duration(config.Query.MaxTimeoutSeconds) * time.Second,
		Rules:          timeoutRules,
	})

	// Initialize command hooks if configured
	var cmdHooks *hooks.Runner
	if hasCmdHooks {
		hookEntries := func(entries []HookEntry) []hooks.HookEntry {
			result := make([]hooks.HookEntry, len(entries))
			for i, e := range entries {
				result[i] = hooks.HookEntry{
					Pattern: e.Pattern,
					Command: e.Command,
					Args:    e.Args,
					Timeout: time.Duration(e.TimeoutSeconds) * time.Second,
				}
			}
			return result
		}
		cmdHooks = hooks.NewRunner(hooks.Config{
			DefaultTimeout: time.Duration(config.DefaultHookTimeoutSeconds) * time.Second,
			BeforeQuery:    hookEntries(o.serverHooks.BeforeQuery),
			AfterQuery:     hookEntries(o.serverHooks.AfterQuery),
		}, logger)
	}

	// Initialize the staging client only when an endpoint is configured
	var store *objstore.Client
	if config.ObjectStore.Endpoint != "" {
		store, err = objstore.New(objstore.Config{
			Endpoint:        config.ObjectStore.Endpoint,
			Region:          config.ObjectStore.Region,
			AccessKeyID:     config.ObjectStore.AccessKeyID,
			SecretAccessKey: config.ObjectStore.SecretAccessKey,
			UseSSL:          config.ObjectStore.UseSSL,
		})
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create object store client: %w", err)
		}
	}

	return &DuckDBMcp{
		config:        config,
		dsn:           dsn,
		db:            db,
		semaphore:     make(chan struct{}, 1),
		protection:    protectionChecker,
		cmdHooks:      cmdHooks,
		goBeforeHooks: config.BeforeQueryHooks,
		goAfterHooks:  config.AfterQueryHooks,
		sanitizer:     san,
		errPrompts:    matcher,
		timeoutMgr:    tmgr,
		objStore:      store,
		logger:        logger,
	}, nil
}

// Close closes the database. Accepts context for API forward-compatibility,
// but does not currently use it — database/sql Close does not support
// context-based shutdown.
func (d *DuckDBMcp) Close(ctx context.Context) {
	d.dbMu.Lock()
	defer d.dbMu.Unlock()
	if err := d.db.Close(); err != nil {
		d.logger.Warn().Err(err).Msg("error closing database")
	}
}

// database returns the current handle. The handle is swapped when a
// cancelled query leaves the embedded engine connection unusable, so
// reads go through here instead of touching the field directly.
func (d *DuckDBMcp) database() *sql.DB {
	d.dbMu.Lock()
	defer d.dbMu.Unlock()
	return d.db
}

// buildDSN assembles the driver connection string from database settings.
func buildDSN(cfg DatabaseConfig) string {
	if cfg.ReadOnly && cfg.Path != ":memory:" {
		return cfg.Path + "?access_mode=read_only"
	}
	return cfg.Path
}

// openDatabase opens the embedded database with a single connection.
// The engine runs in-process and every statement goes through the one
// execution slot, so one connection is all the pool will ever use.
func openDatabase(dsn string) (*sql.DB, error) {
	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return db, nil
}

// quoteIdent quotes a single identifier for safe interpolation.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// quoteQualified quotes a possibly schema-qualified table name
// ("tbl", "schema.tbl", or "db.schema.tbl").
func quoteQualified(name string) string {
	parts := strings.Split(name, ".")
	quoted := make([]string, len(parts))
	for i, p := range parts {
		quoted[i] = quoteIdent(p)
	}
	return strings.Join(quoted, ".")
}

// quoteLiteral quotes a string literal for safe interpolation.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// mapSanitizationRules converts duckmcp SanitizationRules to internal sanitize.Rules.
func mapSanitizationRules(rules []SanitizationRule) []sanitize.Rule {
	result := make([]sanitize.Rule, len(rules))
	for i, r := range rules {
		result[i] = sanitize.Rule{
			Pattern:     r.Pattern,
			Replacement: r.Replacement,
		}
	}
	return result
}

// mapErrorPromptRules converts duckmcp ErrorPromptRules to internal errprompt.Rules.
func mapErrorPromptRules(rules []ErrorPromptRule) []errprompt.Rule {
	result := make([]errprompt.Rule, len(rules))
	for i, r := range rules {
		result[i] = errprompt.Rule{
			Pattern: r.Pattern,
			Kind:    r.Kind,
			Message: r.Message,
		}
	}
	return result
}

package duckmcp

import (
	"context"
	"time"
)

// Config is the base configuration used by library mode via New().
type Config struct {
	Database                  DatabaseConfig     `json:"database"`
	Protection                ProtectionConfig   `json:"protection"`
	Query                     QueryConfig        `json:"query"`
	ObjectStore               ObjectStoreConfig  `json:"object_store"`
	ErrorPrompts              []ErrorPromptRule  `json:"error_prompts"`
	Sanitization              []SanitizationRule `json:"sanitization"`
	DefaultHookTimeoutSeconds int                `json:"default_hook_timeout_seconds"`

	// Library mode: Go function hooks (not serializable).
	// Mutually exclusive with ServerConfig.ServerHooks.
	BeforeQueryHooks []BeforeQueryHookEntry `json:"-"`
	AfterQueryHooks  []AfterQueryHookEntry  `json:"-"`
}

// ServerConfig embeds Config and adds server-only fields for CLI mode.
type ServerConfig struct {
	Config
	Server      ServerSettings    `json:"server"`
	Logging     LoggingConfig     `json:"logging"`
	ServerHooks ServerHooksConfig `json:"server_hooks"`
}

// DatabaseConfig holds the database file settings.
type DatabaseConfig struct {
	// Path is the database file path, or ":memory:" for an in-memory database.
	Path string `json:"path"`
	// ReadOnly opens the database in read-only mode. Imports are rejected.
	ReadOnly bool `json:"read_only"`
	// CreateIfMissing creates the database file if it does not exist.
	// When false, New() returns an error for a missing file.
	CreateIfMissing bool `json:"create_if_missing"`
}

// ServerSettings holds HTTP server settings for CLI mode.
type ServerSettings struct {
	Port               int    `json:"port"`
	HealthCheckEnabled bool   `json:"health_check_enabled"`
	HealthCheckPath    string `json:"health_check_path"`
	MetricsEnabled     bool   `json:"metrics_enabled"`
	MetricsPath        string `json:"metrics_path"`
}

// LoggingConfig holds logging settings for CLI mode.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
	Output string `json:"output"` // stdout, or file path
}

// ProtectionConfig controls which SQL operations are allowed.
// All fields default to false (blocked). Set to true to allow.
// Destructive statements (DELETE, UPDATE, DROP, TRUNCATE, ALTER) are
// always blocked and cannot be enabled.
type ProtectionConfig struct {
	AllowInsert      bool `json:"allow_insert"`
	AllowCreate      bool `json:"allow_create"`
	AllowCopy        bool `json:"allow_copy"`
	AllowSet         bool `json:"allow_set"`
	AllowCall        bool `json:"allow_call"`
	AllowAttach      bool `json:"allow_attach"`
	AllowTransaction bool `json:"allow_transaction"`
	AllowMaintenance bool `json:"allow_maintenance"`
	AllowExtensions  bool `json:"allow_extensions"`
}

// QueryConfig holds query execution settings.
type QueryConfig struct {
	DefaultTimeoutSeconds int `json:"default_timeout_seconds"`
	// MaxTimeoutSeconds is the ceiling for per-call timeout overrides.
	// Overrides above it are clamped. 0 means no ceiling.
	MaxTimeoutSeconds     int           `json:"max_timeout_seconds"`
	InspectTimeoutSeconds int           `json:"inspect_timeout_seconds"`
	ImportTimeoutSeconds  int           `json:"import_timeout_seconds"`
	MaxSQLLength          int           `json:"max_sql_length"`
	MaxResultLength       int           `json:"max_result_length"`
	MaxResultRows         int           `json:"max_result_rows"`
	SampleDefaultLimit    int           `json:"sample_default_limit"`
	SampleMaxLimit        int           `json:"sample_max_limit"`
	TimeoutRules          []TimeoutRule `json:"timeout_rules"`
}

// ObjectStoreConfig holds S3-compatible storage settings used to stage
// s3:// import sources. Leave Endpoint empty to disable.
type ObjectStoreConfig struct {
	Endpoint        string `json:"endpoint"`
	Region          string `json:"region"`
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
	UseSSL          bool   `json:"use_ssl"`
}

// TimeoutRule maps a SQL pattern to a specific timeout duration.
type TimeoutRule struct {
	Pattern        string `json:"pattern"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// ErrorPromptRule maps an error message pattern to a guidance message.
// Kind optionally restricts the rule to one error kind (e.g. "timeout",
// "engine_error"). An empty Kind matches every kind.
type ErrorPromptRule struct {
	Pattern string `json:"pattern"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// SanitizationRule defines a regex-based field sanitization rule.
type SanitizationRule struct {
	Pattern     string `json:"pattern"`
	Replacement string `json:"replacement"`
	Description string `json:"description"`
}

// ServerHooksConfig holds command-based hook configuration for CLI mode.
type ServerHooksConfig struct {
	BeforeQuery []HookEntry `json:"before_query"`
	AfterQuery  []HookEntry `json:"after_query"`
}

// HookEntry defines a single command-based hook.
type HookEntry struct {
	Pattern        string   `json:"pattern"`
	Command        string   `json:"command"`
	Args           []string `json:"args"`
	TimeoutSeconds int      `json:"timeout_seconds"`
}

// BeforeQueryHook can inspect and modify queries before execution.
type BeforeQueryHook interface {
	Run(ctx context.Context, query string) (string, error)
}

// AfterQueryHook can inspect and modify results after execution.
type AfterQueryHook interface {
	Run(ctx context.Context, result *QueryOutput) (*QueryOutput, error)
}

// BeforeQueryHookEntry wraps a BeforeQueryHook with metadata.
type BeforeQueryHookEntry struct {
	Name    string
	Timeout time.Duration
	Hook    BeforeQueryHook
}

// AfterQueryHookEntry wraps an AfterQueryHook with metadata.
type AfterQueryHookEntry struct {
	Name    string
	Timeout time.Duration
	Hook    AfterQueryHook
}

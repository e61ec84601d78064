package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	duckmcp "github.com/tabwise/duckdb-mcp"
	"github.com/tabwise/duckdb-mcp/internal/meta"
	"github.com/tabwise/duckdb-mcp/internal/metrics"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
)

func runServe() error {
	ctx := context.Background()

	// 1. Load ServerConfig
	serverConfig, err := loadServerConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if serverConfig.Server.Port <= 0 {
		panic("goduckmcp: server.port must be > 0")
	}

	// 2. Resolve database path (env override wins)
	if path := os.Getenv("GODUCKMCP_DB_PATH"); path != "" {
		serverConfig.Database.Path = path
	}

	// 3. Setup logger
	logger := setupLogger(serverConfig.Logging)

	// 4. Create DuckDBMcp instance. New() already opens and pings the
	// database file, so a bad path fails here rather than on first query.
	var opts []duckmcp.Option
	if len(serverConfig.ServerHooks.BeforeQuery) > 0 || len(serverConfig.ServerHooks.AfterQuery) > 0 {
		opts = append(opts, duckmcp.WithServerHooks(serverConfig.ServerHooks))
	}
	duckMcp, err := duckmcp.New(ctx, serverConfig.Config, logger, opts...)
	if err != nil {
		return fmt.Errorf("failed to create DuckDBMcp: %w", err)
	}
	defer duckMcp.Close(ctx)

	logger.Info().
		Str("path", serverConfig.Database.Path).
		Bool("read_only", serverConfig.Database.ReadOnly).
		Msg("database opened")

	// 5. Create MCP server with initialize lifecycle logging
	hooks := &server.Hooks{}
	hooks.AddAfterInitialize(func(ctx context.Context, id any, req *mcp.InitializeRequest, result *mcp.InitializeResult) {
		clientName := req.Params.ClientInfo.Name
		clientVersion := req.Params.ClientInfo.Version
		logger.Info().
			Str("client_name", clientName).
			Str("client_version", clientVersion).
			Msg("AI agent connected (MCP initialize)")
	})

	mcpServer := server.NewMCPServer("goduckmcp", meta.Version,
		server.WithToolCapabilities(true),
		server.WithHooks(hooks),
	)

	duckmcp.RegisterMCPTools(mcpServer, duckMcp)

	// 6. Start HTTP server with optional health check and metrics
	addr := fmt.Sprintf(":%d", serverConfig.Server.Port)
	mux := http.NewServeMux()

	// Health check endpoint (process liveness only, not engine state)
	if serverConfig.Server.HealthCheckEnabled {
		if serverConfig.Server.HealthCheckPath == "" {
			panic("goduckmcp: health_check_path must be set when health_check_enabled is true")
		}
		mux.HandleFunc(serverConfig.Server.HealthCheckPath, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		})
	}

	if serverConfig.Server.MetricsEnabled {
		if serverConfig.Server.MetricsPath == "" {
			panic("goduckmcp: metrics_path must be set when metrics_enabled is true")
		}
		mux.Handle(serverConfig.Server.MetricsPath, metrics.Handler())
	}

	httpSrv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	// Create StreamableHTTPServer with custom http.Server
	streamableServer := server.NewStreamableHTTPServer(mcpServer,
		server.WithEndpointPath("/mcp"),
		server.WithStateLess(true),
		server.WithStreamableHTTPServer(httpSrv),
	)

	// Manually register the MCP handler — Start() does NOT register
	// when a custom *http.Server is provided via WithStreamableHTTPServer.
	mux.Handle("/mcp", streamableServer)

	logger.Info().Int("port", serverConfig.Server.Port).Msg("starting goduckmcp server")
	return streamableServer.Start(addr)
}

func loadServerConfig() (*duckmcp.ServerConfig, error) {
	configPath := os.Getenv("GODUCKMCP_CONFIG_PATH")
	if configPath == "" {
		configPath = ".goduckmcp/config.json"
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	var config duckmcp.ServerConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

func setupLogger(config duckmcp.LoggingConfig) zerolog.Logger {
	level := zerolog.InfoLevel
	switch strings.ToLower(config.Level) {
	case "debug":
		level = zerolog.DebugLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	var output io.Writer = os.Stderr
	if config.Output == "stdout" {
		output = os.Stdout
	} else if config.Output != "" && config.Output != "stderr" {
		f, err := os.OpenFile(config.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err == nil {
			output = f
		}
	}

	if config.Format == "text" {
		output = zerolog.ConsoleWriter{Out: output}
	}

	return zerolog.New(output).Level(level).With().Timestamp().Logger()
}

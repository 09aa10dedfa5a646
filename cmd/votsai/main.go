// VOTSai is a query-routing engine with dual-tier conversation memory.
//
// It classifies each query's intent, routes it to a local Ollama model
// or a remote API backend, assembles memory and web context, and
// remembers every exchange across a bounded in-process buffer backed
// by a SQLite archive. Configuration is loaded from a single YAML file
// discovered automatically (see [config.DefaultSearchPaths]).
//
// Usage:
//
//	votsai serve             Start the API server
//	votsai ask <question>    Ask a single question (for testing)
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/kabrony/VOTSai/internal/api"
	"github.com/kabrony/VOTSai/internal/backend"
	"github.com/kabrony/VOTSai/internal/config"
	"github.com/kabrony/VOTSai/internal/fetch"
	"github.com/kabrony/VOTSai/internal/intent"
	"github.com/kabrony/VOTSai/internal/memory"
	"github.com/kabrony/VOTSai/internal/orchestrator"
	"github.com/kabrony/VOTSai/internal/ratelimit"
	"github.com/kabrony/VOTSai/internal/router"
	"github.com/kabrony/VOTSai/internal/tokens"
)

// main constructs the OS-level environment and delegates to run so the
// full lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run parses arguments by hand. The flag package relies on
// package-level globals, which makes it impossible to call run()
// concurrently from tests; our argument surface is small enough that
// manual parsing is clearer.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath, logLevel, command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case args[i] == "-log-level" && i+1 < len(args):
			logLevel = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-log-level="):
			logLevel = strings.TrimPrefix(args[i], "-log-level=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	// API keys commonly live in a local .env during development.
	// Absence is fine; the environment may carry them already.
	_ = godotenv.Load()

	switch command {
	case "serve", "":
		return runServe(ctx, stdout, configPath, logLevel)
	case "ask":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: votsai ask <question>")
		}
		return runAsk(ctx, stdout, configPath, logLevel, strings.Join(cmdArgs, " "))
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "VOTSai - query routing with dual-tier memory")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: votsai [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve    Start the API server (default)")
	fmt.Fprintln(w, "  ask      Ask a single question (for testing)")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>      Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -log-level <level>  debug, info, warn, or error")
	return nil
}

// engine bundles the constructed collaborators.
type engine struct {
	orch     *orchestrator.Orchestrator
	rtr      *router.Router
	limiter  *ratelimit.Limiter
	archive  *memory.LongTermStore
	registry *backend.Registry
}

func (e *engine) Close() error {
	return e.archive.Close()
}

// loadConfig resolves and parses the config file. A missing config is
// not an error: defaults cover local development.
func loadConfig(explicit string, logger *slog.Logger) (*config.Config, error) {
	path, err := config.FindConfig(explicit)
	if err != nil {
		if explicit != "" {
			return nil, err
		}
		logger.Warn("no config file found, using defaults")
		return config.Default(), nil
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	logger.Info("config loaded", "path", path)
	return cfg, nil
}

// buildEngine constructs the collaborators in control-flow order.
func buildEngine(cfg *config.Config, logger *slog.Logger) (*engine, error) {
	governor := tokens.NewGovernor(0)

	limiter := ratelimit.New(ratelimit.Limits{
		RequestsPerMinute:  cfg.RateLimit.RequestsPerMinute,
		RequestsPerHour:    cfg.RateLimit.RequestsPerHour,
		RequestsPerDay:     cfg.RateLimit.RequestsPerDay,
		InputTokensPerDay:  cfg.RateLimit.InputTokensPerDay,
		OutputTokensPerDay: cfg.RateLimit.OutputTokensPerDay,
	})

	classifier := intent.New(intent.SeedCorpus(), logger)

	registry := backend.NewRegistry(logger)
	localCfg := cfg.Backends.Local
	if err := registry.Register(backend.NameLocal, func() (backend.Backend, error) {
		return backend.NewLocal(localCfg.BaseURL, localCfg.Model, logger), nil
	}); err != nil {
		return nil, err
	}
	pplxCfg := cfg.Backends.Perplexity
	if err := registry.Register(backend.NamePerplexity, func() (backend.Backend, error) {
		return backend.NewPerplexity(os.Getenv(pplxCfg.APIKeyEnv), pplxCfg.BaseURL, pplxCfg.Model, governor, logger)
	}); err != nil {
		return nil, err
	}
	dsCfg := cfg.Backends.DeepSeek
	if err := registry.Register(backend.NameDeepSeek, func() (backend.Backend, error) {
		return backend.NewDeepSeek(os.Getenv(dsCfg.APIKeyEnv), dsCfg.BaseURL, dsCfg.Model, governor, logger)
	}); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data directory %s: %w", cfg.DataDir, err)
	}
	dbPath := filepath.Join(cfg.DataDir, "votsai.db")
	archive, err := memory.NewLongTermStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open memory database %s: %w", dbPath, err)
	}
	logger.Info("memory database opened", "path", dbPath)

	store := memory.NewStore(memory.NewBuffer(cfg.Memory.ShortTermMax), archive, cfg.Memory.PersistRetries, logger)

	fetcher := fetch.New(logger)
	rtr := router.New(logger, 0)
	assembler := orchestrator.NewContextAssembler(store, governor,
		cfg.Orchestra.ContextBudgetTokens, cfg.Orchestra.WebFetchTimeout(), logger)

	orch := orchestrator.New(classifier, rtr, registry, store, limiter, governor, fetcher, assembler,
		orchestrator.Config{
			DefaultTimeout: cfg.Orchestra.DefaultTimeout(),
			MaxConcurrent:  int64(cfg.Orchestra.MaxConcurrent),
		}, logger)

	return &engine{orch: orch, rtr: rtr, limiter: limiter, archive: archive, registry: registry}, nil
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func resolveLevel(flagLevel, cfgLevel string) (slog.Level, error) {
	chosen := flagLevel
	if chosen == "" {
		chosen = cfgLevel
	}
	if chosen == "" {
		return slog.LevelInfo, nil
	}
	return config.ParseLogLevel(chosen)
}

func runServe(ctx context.Context, stdout io.Writer, configPath, logLevel string) error {
	logger := newLogger(stdout, slog.LevelInfo)

	cfg, err := loadConfig(configPath, logger)
	if err != nil {
		return err
	}
	level, err := resolveLevel(logLevel, cfg.LogLevel)
	if err != nil {
		return err
	}
	logger = newLogger(stdout, level)

	eng, err := buildEngine(cfg, logger)
	if err != nil {
		return err
	}
	defer eng.Close()

	listen := fmt.Sprintf("%s:%d", cfg.Listen.Address, cfg.Listen.Port)
	server := api.NewServer(listen, eng.orch, eng.rtr, eng.limiter, logger)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Remote backends hold HTTP clients; drop ones nothing has routed
	// to in a while.
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if evicted := eng.registry.EvictIdle(30 * time.Minute); len(evicted) > 0 {
					logger.Debug("evicted idle backends", "names", evicted)
				}
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func runAsk(ctx context.Context, stdout io.Writer, configPath, logLevel, question string) error {
	// Logs go to stderr for ask so the answer stays clean on stdout.
	logger := newLogger(os.Stderr, slog.LevelWarn)

	cfg, err := loadConfig(configPath, logger)
	if err != nil {
		return err
	}
	// Default stays at warn so the answer is all that reaches the
	// terminal; an explicit level overrides, and a bad one is an error.
	if logLevel != "" || cfg.LogLevel != "" {
		level, lerr := resolveLevel(logLevel, cfg.LogLevel)
		if lerr != nil {
			return lerr
		}
		logger = newLogger(os.Stderr, level)
	}

	eng, err := buildEngine(cfg, logger)
	if err != nil {
		return err
	}
	defer eng.Close()

	result := eng.orch.Process(ctx, orchestrator.Request{Query: question})
	if result.Failed() {
		return fmt.Errorf("%s: %s", result.ErrKind, result.Err)
	}

	fmt.Fprintln(stdout, result.RenderText())
	return nil
}

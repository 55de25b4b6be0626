package main

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/Pasttor/finanzas/internal/extraction"
	"github.com/Pasttor/finanzas/internal/ledger"
	"github.com/Pasttor/finanzas/internal/media"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	// A missing .env is fine; real deployments set the environment directly
	_ = godotenv.Load()

	fs := ff.NewFlagSet("finanzas")
	var (
		port          = fs.IntLong("port", 8080, "HTTP server port")
		storeType     = fs.StringLong("store", "bolt", "Ledger store: 'bolt' or 'postgres'")
		dbPath        = fs.StringLong("db", "finanzas.db", "BoltDB file path")
		postgresDSN   = fs.StringLong("postgres-dsn", "", "Postgres connection string (or set DATABASE_URL env var)")
		mediaDir      = fs.StringLong("media-dir", "./media", "Directory for archived message media")
		extractorType = fs.StringLong("extractor", "gemini", "Extractor type: 'gemini' or 'ollama'")
		geminiKey     = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel   = fs.StringLong("gemini-model", extraction.DefaultGeminiModel, "Google Gemini model name")
		ollamaURL     = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel   = fs.StringLong("ollama-model", "llava", "Ollama model name (e.g., llava, qwen2-vl, bakllava)")
		twilioSID     = fs.StringLong("twilio-account-sid", "", "Twilio account SID for media downloads (or set TWILIO_ACCOUNT_SID env var)")
		twilioToken   = fs.StringLong("twilio-auth-token", "", "Twilio auth token (or set TWILIO_AUTH_TOKEN env var)")
		webhookURL    = fs.StringLong("webhook-url", "", "Public webhook URL; enables request signature checks")
		mediaTimeout  = fs.DurationLong("media-timeout", 30*time.Second, "Media download timeout")
		mediaMaxBytes = fs.IntLong("media-max-bytes", media.DefaultMaxBytes, "Largest media download accepted")
		authUser      = fs.StringLong("auth-user", "", "Basic auth username for the dashboard API (optional)")
		authPass      = fs.StringLong("auth-pass", "", "Basic auth password for the dashboard API (optional)")
		logLevel      = fs.StringLong("log-level", "info", "Log level: debug, info, warn or error")
		logFormat     = fs.StringLong("log-format", "text", "Log format: 'text' or 'json'")
		showVersion   = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("FINANZAS"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	logger, err := newLogger(*logLevel, *logFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	ctx := context.Background()

	// Initialize database
	slog.Info("Initializing database...", "store", *storeType)
	db, err := openStore(ctx, *storeType, *dbPath, firstNonEmpty(*postgresDSN, os.Getenv("DATABASE_URL")))
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Initialize extractor based on type
	var extractor extraction.Extractor
	switch *extractorType {
	case "gemini":
		apiKey := firstNonEmpty(*geminiKey, os.Getenv("GEMINI_API_KEY"))
		if apiKey == "" {
			slog.Error("Gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
			os.Exit(1)
		}
		slog.Info("Initializing Gemini extractor...", "model", *geminiModel)
		extractor, err = extraction.NewGemini(ctx, apiKey, *geminiModel)
		if err != nil {
			slog.Error("Failed to initialize Gemini", "error", err)
			os.Exit(1)
		}
	case "ollama":
		slog.Info("Initializing Ollama extractor...", "url", *ollamaURL, "model", *ollamaModel)
		extractor, err = extraction.NewOllama(*ollamaURL, *ollamaModel)
		if err != nil {
			slog.Error("Failed to initialize Ollama", "error", err)
			os.Exit(1)
		}
	default:
		slog.Error("Invalid extractor type", "type", *extractorType, "valid", "gemini or ollama")
		os.Exit(1)
	}
	defer extractor.Close()

	accountSID := firstNonEmpty(*twilioSID, os.Getenv("TWILIO_ACCOUNT_SID"))
	authToken := firstNonEmpty(*twilioToken, os.Getenv("TWILIO_AUTH_TOKEN"))
	if accountSID == "" || authToken == "" {
		slog.Warn("Twilio credentials not set; media downloads will be rejected by the provider")
	}
	fetcher := media.NewHTTPFetcher(media.Credentials{
		AccountID: accountSID,
		AuthToken: authToken,
	}, *mediaTimeout, int64(*mediaMaxBytes))

	// Initialize storage
	slog.Info("Initializing media storage...", "dir", *mediaDir)
	store, err := ledger.NewLocalStorage(*mediaDir)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	// Initialize service
	ledgerService := ledger.NewService(db, fetcher, extractor, store)

	// Initialize server
	basicAuth := ledger.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	webhookAuth := ledger.WebhookAuth{
		AuthToken: authToken,
		URL:       *webhookURL,
	}
	server := ledger.NewServer(ledgerService, basicAuth, webhookAuth)

	// Start server in goroutine
	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "version", version)
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}
	if *webhookURL != "" && authToken != "" {
		slog.Info("Webhook signature checks enabled", "url", *webhookURL)
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
}

// openStore opens the configured ledger store
func openStore(ctx context.Context, storeType, dbPath, dsn string) (ledger.DB, error) {
	switch storeType {
	case "bolt":
		return ledger.NewBoltDB(dbPath)
	case "postgres":
		if dsn == "" {
			return nil, fmt.Errorf("postgres store needs --postgres-dsn or DATABASE_URL")
		}
		pg, err := ledger.NewPostgres(ctx, dsn)
		if err != nil {
			return nil, err
		}
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, err
		}
		return pg, nil
	default:
		return nil, fmt.Errorf("invalid store type %q, want bolt or postgres", storeType)
	}
}

func newLogger(level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("parsing log level: %w", err)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch format {
	case "text":
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q, want text or json", format)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/langrelay/langrelay/internal/api"
	"github.com/langrelay/langrelay/internal/cloudapi"
	"github.com/langrelay/langrelay/internal/dedup"
	"github.com/langrelay/langrelay/internal/langs"
	"github.com/langrelay/langrelay/internal/lockfile"
	"github.com/langrelay/langrelay/internal/messaging"
	"github.com/langrelay/langrelay/internal/models"
	"github.com/langrelay/langrelay/internal/router"
	"github.com/langrelay/langrelay/internal/scheduler"
	"github.com/langrelay/langrelay/internal/store"
	"github.com/langrelay/langrelay/internal/translate"
	"github.com/langrelay/langrelay/internal/twiliowhatsapp"
	"github.com/langrelay/langrelay/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for LangRelay state data
	DefaultStateDir = "/var/lib/langrelay"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "langrelay.db"
	// DefaultShutdownTimeout bounds graceful HTTP shutdown
	DefaultShutdownTimeout = 15 * time.Second
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if err := run(flags); err != nil {
		slog.Error("LangRelay failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("LangRelay exited successfully")
}

// Config holds environment configuration
type Config struct {
	StateDir      string
	DatabaseURL   string
	VerifyToken   string
	AccessToken   string
	PhoneNumberID string
	BotNumber     string
	OpenAIKey     string
	APIAddr       string
	LanguagesFile string
	DedupCapacity int
	CallTimeout   time.Duration
	Staleness     time.Duration
	JournalKeep   time.Duration
	SweepSchedule string
	UseTwilio     bool
}

// Flags holds command line flag values
type Flags struct {
	stateDir      *string
	dbDSN         *string
	verifyToken   *string
	accessToken   *string
	phoneNumberID *string
	botNumber     *string
	openaiKey     *string
	apiAddr       *string
	languagesFile *string
	dedupCapacity *int
	useTwilio     *bool

	callTimeout   time.Duration
	staleness     time.Duration
	journalKeep   time.Duration
	sweepSchedule string
}

// initializeLogger sets up structured logging with debug level
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		StateDir:      os.Getenv("LANGRELAY_STATE_DIR"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		VerifyToken:   os.Getenv("WHATSAPP_VERIFY_TOKEN"),
		AccessToken:   os.Getenv("WHATSAPP_ACCESS_TOKEN"),
		PhoneNumberID: os.Getenv("WHATSAPP_PHONE_NUMBER_ID"),
		BotNumber:     os.Getenv("WHATSAPP_BOT_NUMBER"),
		OpenAIKey:     os.Getenv("OPENAI_API_KEY"),
		APIAddr:       os.Getenv("API_ADDR"),
		LanguagesFile: os.Getenv("LANGRELAY_LANGUAGES_FILE"),
		DedupCapacity: util.ParseIntEnv("LANGRELAY_DEDUP_CAPACITY", dedup.DefaultCapacity),
		CallTimeout:   util.ParseDurationEnv("LANGRELAY_CALL_TIMEOUT", router.DefaultCallTimeout),
		Staleness:     util.ParseDurationEnv("LANGRELAY_STALENESS", router.DefaultStalenessThreshold),
		JournalKeep:   util.ParseDurationEnv("LANGRELAY_JOURNAL_RETENTION", scheduler.DefaultJournalRetention),
		SweepSchedule: util.GetEnvOrDefault("LANGRELAY_SWEEP_SCHEDULE", scheduler.DefaultSweepSchedule),
		UseTwilio:     util.ParseBoolEnv("LANGRELAY_USE_TWILIO", false),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No LANGRELAY_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	slog.Debug("environment variables loaded",
		"LANGRELAY_STATE_DIR", config.StateDir,
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"WHATSAPP_VERIFY_TOKEN_SET", config.VerifyToken != "",
		"WHATSAPP_ACCESS_TOKEN_SET", config.AccessToken != "",
		"WHATSAPP_PHONE_NUMBER_ID", config.PhoneNumberID,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"API_ADDR", config.APIAddr,
		"LANGRELAY_USE_TWILIO", config.UseTwilio)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:      flag.String("state-dir", config.StateDir, "Directory for LangRelay state data"),
		dbDSN:         flag.String("db-dsn", config.DatabaseURL, "Database DSN (SQLite path or postgres:// URL)"),
		verifyToken:   flag.String("verify-token", config.VerifyToken, "Webhook verification token"),
		accessToken:   flag.String("access-token", config.AccessToken, "WhatsApp Cloud API access token"),
		phoneNumberID: flag.String("phone-number-id", config.PhoneNumberID, "WhatsApp Cloud API phone number ID"),
		botNumber:     flag.String("bot-number", config.BotNumber, "Bot's own WhatsApp number (self-message loop guard)"),
		openaiKey:     flag.String("openai-key", config.OpenAIKey, "OpenAI API key for translation and speech"),
		apiAddr:       flag.String("addr", config.APIAddr, "API server listen address"),
		languagesFile: flag.String("languages-file", config.LanguagesFile, "Optional YAML file overriding the language registry"),
		dedupCapacity: flag.Int("dedup-capacity", config.DedupCapacity, "Retained message id count for de-duplication"),
		useTwilio:     flag.Bool("use-twilio", config.UseTwilio, "Send replies through Twilio instead of the Cloud API"),

		callTimeout:   config.CallTimeout,
		staleness:     config.Staleness,
		journalKeep:   config.JournalKeep,
		sweepSchedule: config.SweepSchedule,
	}
	flag.Parse()
	return flags
}

func run(flags Flags) error {
	// Hold an exclusive lock on the state directory for the process lifetime
	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		return err
	}
	defer func() {
		if relErr := lock.Release(); relErr != nil {
			slog.Warn("Failed to release state directory lock", "error", relErr)
		}
	}()

	registry, err := buildRegistry(flags)
	if err != nil {
		return err
	}

	st, err := buildStore(flags)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Warn("Failed to close store", "error", closeErr)
		}
	}()

	translator := buildTranslator(flags)
	msgr := buildMessenger(flags)

	r, err := buildRouter(flags, st, registry, translator, msgr)
	if err != nil {
		return err
	}

	classifier := router.NewClassifier(
		router.WithBotNumber(*flags.botNumber),
		router.WithStaleness(flags.staleness),
	)
	pipeline := router.NewPipeline(dedup.New(*flags.dedupCapacity), classifier, r, st)

	sched := scheduler.NewScheduler()
	defer sched.Stop()
	if err := sched.AddJournalSweep(st, flags.journalKeep, flags.sweepSchedule); err != nil {
		return err
	}

	srv, err := buildServer(flags, pipeline, st, translator, msgr)
	if err != nil {
		return err
	}

	reportStartupAvailability(translator, msgr, st)

	// Serve until interrupted
	errCh := make(chan error, 1)
	go func() {
		slog.Info("LangRelay API server starting", "addr", *flags.apiAddr)
		errCh <- srv.Run()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		slog.Info("Shutting down on signal", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}

func buildRegistry(flags Flags) (*langs.Registry, error) {
	if *flags.languagesFile != "" {
		registry, err := langs.LoadFile(*flags.languagesFile)
		if err != nil {
			return nil, err
		}
		slog.Info("Loaded language registry from file", "path", *flags.languagesFile, "languages", len(registry.Codes()))
		return registry, nil
	}
	registry := langs.Default()
	slog.Debug("Using embedded language registry", "languages", len(registry.Codes()))
	return registry, nil
}

func buildStore(flags Flags) (store.Store, error) {
	dsn := *flags.dbDSN
	switch store.DetectDSNType(dsn) {
	case "postgres":
		slog.Info("Using Postgres store")
		return store.NewPostgresStore(store.WithPostgresDSN(dsn))
	default:
		slog.Info("Using SQLite store", "path", dsn)
		return store.NewSQLiteStore(store.WithSQLiteDSN(dsn))
	}
}

// buildTranslator returns nil when no OpenAI key is configured; the router
// then reports translation as unavailable instead of failing at startup.
func buildTranslator(flags Flags) *translate.Client {
	if *flags.openaiKey == "" {
		slog.Warn("No OpenAI API key configured; translation and speech are disabled")
		return nil
	}
	client, err := translate.NewClient(translate.WithAPIKey(*flags.openaiKey))
	if err != nil {
		slog.Warn("Failed to initialize translation client; continuing without it", "error", err)
		return nil
	}
	return client
}

func buildMessenger(flags Flags) messaging.Service {
	if *flags.useTwilio {
		slog.Info("Using Twilio WhatsApp transport")
		// credentials come from TWILIO_* environment variables
		client, err := twiliowhatsapp.NewClient()
		if err != nil {
			slog.Error("Failed to initialize Twilio client", "error", err)
			os.Exit(1)
		}
		return messaging.NewTwilioService(client)
	}

	client, err := cloudapi.NewClient(
		cloudapi.WithAccessToken(*flags.accessToken),
		cloudapi.WithPhoneNumberID(*flags.phoneNumberID),
	)
	if err != nil {
		slog.Error("Failed to initialize Cloud API client", "error", err)
		os.Exit(1)
	}
	return messaging.NewCloudAPIService(client)
}

func buildRouter(flags Flags, st store.Store, registry *langs.Registry, translator *translate.Client, msgr messaging.Service) (*router.Router, error) {
	opts := []router.RouterOption{
		router.WithStore(st),
		router.WithRegistry(registry),
		router.WithMessenger(msgr),
		router.WithCallTimeout(flags.callTimeout),
	}
	if translator != nil {
		opts = append(opts,
			router.WithTranslator(translator),
			router.WithRomanizer(translator),
			router.WithSynthesizer(translator),
		)
	}
	return router.NewRouter(opts...)
}

func buildServer(flags Flags, pipeline *router.Pipeline, st store.Store, translator *translate.Client, msgr messaging.Service) (*api.Server, error) {
	apiOpts := []api.Option{api.WithVerifyToken(*flags.verifyToken)}
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	srv, err := api.NewServer(pipeline, apiOpts...)
	if err != nil {
		return nil, err
	}

	srv.RegisterHealthCheck("store", func() error {
		_, err := st.GetLanguages("healthcheck")
		return err
	})
	srv.RegisterHealthCheck("messenger", msgr.VerifyCredentials)
	srv.RegisterHealthCheck("translator", func() error {
		if translator == nil {
			return models.ErrProviderUnavailable
		}
		return nil
	})
	return srv, nil
}

// reportStartupAvailability logs one line per collaborator so a degraded
// start is visible immediately instead of at first use.
func reportStartupAvailability(translator *translate.Client, msgr messaging.Service, st store.Store) {
	if translator == nil {
		slog.Warn("Startup availability: translator unavailable")
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := translator.VerifyConnection(ctx); err != nil {
			slog.Warn("Startup availability: translator check failed", "error", err)
		} else {
			slog.Info("Startup availability: translator ok")
		}
	}

	if err := msgr.VerifyCredentials(); err != nil {
		slog.Warn("Startup availability: messenger check failed", "error", err)
	} else {
		slog.Info("Startup availability: messenger ok")
	}

	if _, err := st.GetLanguages("healthcheck"); err != nil {
		slog.Warn("Startup availability: store check failed", "error", err)
	} else {
		slog.Info("Startup availability: store ok")
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yourusername/linkedin-mcp/internal/activity"
	"github.com/yourusername/linkedin-mcp/internal/auth"
	"github.com/yourusername/linkedin-mcp/internal/browser"
	"github.com/yourusername/linkedin-mcp/internal/config"
	"github.com/yourusername/linkedin-mcp/internal/connection"
	"github.com/yourusername/linkedin-mcp/internal/logger"
	"github.com/yourusername/linkedin-mcp/internal/selector"
	"github.com/yourusername/linkedin-mcp/internal/server"
	"github.com/yourusername/linkedin-mcp/internal/session"
	"github.com/yourusername/linkedin-mcp/internal/stealth"
	"github.com/yourusername/linkedin-mcp/internal/storage"
)

const (
	AppVersion = "1.0.0"
)

var (
	cfgFile  string
	logLevel string
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		// stdout is reserved for protocol frames
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "linkedin-mcp",
		Short:         "LinkedIn browser automation exposed as JSON-RPC tools over stdio",
		Version:       AppVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
	}
	rootCmd.SetVersionTemplate("linkedin-mcp {{.Version}}\n")

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: $CONFIG_PATH or ./config/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level (debug, info, warn, error)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "linkedin-mcp %s\n", AppVersion)
		},
	})
	return rootCmd
}

func run(ctx context.Context) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	if err := logger.Init(logger.Options{
		Level:      cfg.Logging.Level,
		ToFile:     cfg.Logging.ToFile,
		FilePath:   cfg.Logging.FilePath,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	logger.Info("LinkedIn MCP server starting", "version", AppVersion)
	logger.Warn("Automating LinkedIn violates its Terms of Service; use for educational purposes only")

	store, err := openStore(cfg.Database.Path)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	resolver := selector.NewResolver(selector.Default(), cfg.PollInterval())
	pacer := stealth.NewPacer(cfg.MinActionSpacing(), cfg.Stealth.JitterPercent)

	width, height := cfg.Browser.Viewport.Width, cfg.Browser.Viewport.Height
	if width == 0 || height == 0 {
		width, height = stealth.RandomViewport()
	}
	controller := session.NewController(browser.NewRodEngine(), browser.LaunchOptions{
		Headless:   cfg.Browser.Headless,
		Bin:        cfg.Browser.Bin,
		UserAgent:  cfg.Browser.UserAgent,
		SlowMotion: cfg.SlowMotion(),
		Width:      width,
		Height:     height,
		Stealth:    cfg.Stealth.Enabled,
	})

	jar := auth.CookieJar{Path: cfg.Session.CookiesPath}
	controller.OnOpen(func(s *session.Session) error {
		if err := jar.Restore(s.Page); err != nil && !errors.Is(err, auth.ErrNoSavedSession) {
			return err
		}
		return nil
	})

	authManager := auth.NewManager(auth.Options{
		BaseURL:           cfg.LinkedIn.BaseURL,
		NavigationTimeout: cfg.NavigationTimeout(),
		LoginTimeout:      cfg.LoginTimeout(),
		PollInterval:      cfg.PollInterval(),
		TypingSpeed:       cfg.GetTypingSpeed(),
		StrictProbe:       cfg.Auth.StrictProbe,
	}, resolver, pacer)

	scraper := activity.NewScraper(activity.Options{
		BaseURL:           cfg.LinkedIn.BaseURL,
		NavigationTimeout: cfg.NavigationTimeout(),
		WaitTimeout:       cfg.PostWaitTimeout(),
		Scrolls:           cfg.Scrape.Scrolls,
		Settle:            cfg.SettleInterval(),
		ProfileDelay:      cfg.ProfileDelay(),
		Dedupe:            cfg.Scrape.Dedupe,
	}, resolver, pacer)

	connector := connection.NewEngine(connection.Options{
		BaseURL:           cfg.LinkedIn.BaseURL,
		NavigationTimeout: cfg.NavigationTimeout(),
		StepTimeout:       cfg.StepTimeout(),
		AttemptPause:      cfg.AttemptPause(),
		PagePause:         cfg.PagePause(),
		MaxPages:          cfg.Connection.MaxPages,
		DailyLimit:        cfg.Connection.DailyLimit,
		HourlyLimit:       cfg.Connection.HourlyLimit,
		MaxNoteLength:     cfg.Connection.MaxNoteLength,
		TypingSpeed:       cfg.GetTypingSpeed(),
	}, resolver, pacer)

	if store != nil {
		authManager.WithLedger(store)
		scraper.WithLedger(store)
		connector.WithLedger(store)
	}

	srv := server.New(server.Options{
		Sessions:  controller,
		Auth:      authManager,
		Scraper:   scraper,
		Connector: connector,
		Cookies:   jar,
		Credentials: auth.Credentials{
			Email:    cfg.LinkedIn.Email,
			Password: cfg.LinkedIn.Password,
		},
		KeepAlive: cfg.Session.KeepAlive,
		Version:   AppVersion,
	})

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Serve(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("server stopped: %w", err)
	}
	logger.Info("LinkedIn MCP server stopped")
	return nil
}

// openStore opens the action ledger, or returns nil when path is empty.
func openStore(path string) (*storage.Store, error) {
	if path == "" {
		logger.Info("Action ledger disabled")
		return nil, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	store, err := storage.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if removed, err := store.CleanupOldActions(); err != nil {
		logger.Warn("Failed to clean up old actions", "error", err)
	} else if removed > 0 {
		logger.Info("Removed old actions", "count", removed)
	}

	if stats, err := store.Stats(); err == nil {
		logger.Info("Database statistics", "stats", stats)
	}
	if recent, err := store.RecentActions(1); err != nil {
		logger.Warn("Failed to read recent actions", "error", err)
	} else if len(recent) > 0 {
		logger.Info("Last recorded action", "type", recent[0].ActionType, "at", recent[0].Timestamp)
	}
	return store, nil
}

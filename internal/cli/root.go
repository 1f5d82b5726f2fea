package cli

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/vietddude/stylelog"

	"github.com/vietddude/relaychat/internal/control"
	"github.com/vietddude/relaychat/internal/core/config"
	"github.com/vietddude/relaychat/internal/health"
	redisclient "github.com/vietddude/relaychat/internal/infra/redis"
	"github.com/vietddude/relaychat/internal/infra/session"
)

var (
	_ session.KV       = (*redisclient.Client)(nil)
	_ session.AtomicKV = (*redisclient.Client)(nil)
	_ health.Source    = (*control.Widget)(nil)
)

var (
	cfgPath string
	isDebug bool

	cfg *config.AppConfig
)

var rootCmd = &cobra.Command{
	Use:   "relaychat",
	Short: "Relay chat client",
	Long:  `Relaychat talks to a chat relay the way the embedded widget does: retried sends, streamed replies and per-widget sessions.`,

	PersistentPreRun: loadConfig,
	SilenceUsage:     true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "config file (default is config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
}

func loadConfig(cmd *cobra.Command, args []string) {
	_ = godotenv.Load()

	var err error
	cfg, err = config.Load(cfgPath)
	if err != nil {
		stylelog.InitDefault()
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup logging
	slogLevel := slog.LevelInfo
	switch {
	case isDebug || cfg.Logging.Level == "debug":
		slogLevel = slog.LevelDebug
	case cfg.Logging.Level == "warn":
		slogLevel = slog.LevelWarn
	case cfg.Logging.Level == "error":
		slogLevel = slog.LevelError
	}

	stylelog.InitDefault(&tint.Options{
		Level:      slogLevel,
		TimeFormat: time.RFC3339,
	})
}

// newWidget builds a widget on the configured session backend. The returned
// cleanup closes the widget and its storage.
func newWidget() (*control.Widget, func(), error) {
	var (
		kv      session.KV
		closeKV = func() {}
	)

	if cfg.Session.Backend == config.BackendRedis {
		client, err := redisclient.NewClient(cfg.Session.Redis)
		if err != nil {
			return nil, nil, fmt.Errorf("session storage: %w", err)
		}
		kv = client
		closeKV = func() { _ = client.Close() }
	}

	w, err := control.NewWidget(control.Config{
		Dispatcher: cfg.DispatcherConfig(),
		Retry:      cfg.Retry,
		Stream:     cfg.Stream,
	}, kv, nil, slog.Default())
	if err != nil {
		closeKV()
		return nil, nil, err
	}

	return w, func() {
		w.Close()
		closeKV()
	}, nil
}

func mustWidget() (*control.Widget, func()) {
	w, cleanup, err := newWidget()
	if err != nil {
		slog.Error("Failed to initialize widget", "error", err)
		os.Exit(1)
	}
	return w, cleanup
}

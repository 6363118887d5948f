package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/msgport/msgport/internal/config"
	"github.com/msgport/msgport/internal/history"
	"github.com/msgport/msgport/internal/logging"
	"github.com/msgport/msgport/internal/metrics"
	"github.com/msgport/msgport/internal/notify"
	"github.com/msgport/msgport/internal/relay"
)

func main() {
	// 1. Define ALL flags at the top
	cfgFile := flag.String("config", "", "Path to config file")
	serve := flag.Bool("serve", false, "run the HTTP relay server instead of sending once")

	// One-shot send flags
	message := flag.String("message", "", "message body to send")
	title := flag.String("title", "", "optional message title / subject")
	providers := flag.String("providers", "", "comma-separated provider filter (e.g. email,sms,pushover); empty means all configured")
	urgent := flag.Bool("urgent", false, "bypass quiet hours")

	// 2. Parse ONCE
	flag.Parse()

	cfg := config.DefaultConfig()
	// load from file if provided (overrides defaults)
	if *cfgFile != "" {
		c, err := config.LoadConfigFromFile(*cfgFile)
		if err != nil {
			log.Fatalf("failed loading config: %v", err)
		}
		cfg = c
	}

	// apply env var overrides (overrides file/defaults)
	if err := config.ApplyEnvOverrides(cfg); err != nil {
		log.Fatalf("invalid environment configuration: %v", err)
	}

	// initialize logging
	cleanup := initLogging()
	defer cleanup()

	// Log config validation warnings
	for _, w := range cfg.Validate() {
		logging.Get().Warn().Str("warning", w).Msg("config validation")
	}

	dispatcher, err := notify.FromConfig(cfg)
	if err != nil {
		logging.Get().Fatal().Err(err).Msg("failed to build providers")
	}
	if dispatcher.Len() == 0 {
		logging.Get().Fatal().Msg("no providers configured; set provider credentials in the config file or environment")
	}

	journal := openJournal(cfg)
	if journal != nil {
		defer journal.Close()
		dispatcher.SetRecorder(journal)
	}

	// start metrics & influx if configured
	initMetricsAndInflux(cfg)

	if *serve {
		runRelay(cfg, dispatcher, journal)
		return
	}
	runOnce(cfg, dispatcher, *title, *message, *providers, *urgent)
}

// initLogging initializes the log subsystem from env and returns a cleanup func
func initLogging() func() {
	logLevel := os.Getenv("MSGPORT_LOG_LEVEL")
	logFile := os.Getenv("MSGPORT_LOG_FILE")
	cleanup, err := logging.Init(logFile, logLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	return cleanup
}

// openJournal opens the send journal, or returns nil when disabled or unusable
func openJournal(cfg *config.Config) *history.Journal {
	if cfg.HistoryPath == "" {
		return nil
	}
	j, err := history.Open(cfg.HistoryPath)
	if err != nil {
		logging.Get().Warn().Err(err).Str("path", cfg.HistoryPath).Msg("send journal unavailable; continuing without history")
		return nil
	}
	return j
}

// initMetricsAndInflux starts the optional metrics server and Influx pusher
func initMetricsAndInflux(cfg *config.Config) {
	if cfg.MetricsEnabled {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.PromHandler())
			mux.Handle("/status", metrics.JSONHandler())
			addr := fmt.Sprintf(":%d", cfg.MetricsPort)
			logging.Get().Info().Str("addr", addr).Msg("starting metrics server")
			_ = http.ListenAndServe(addr, mux)
		}()
	}
	if cfg.InfluxURL != "" {
		go metrics.StartInfluxPusher(context.Background(), cfg.InfluxURL, cfg.InfluxToken, cfg.InfluxOrg, cfg.InfluxBucket, cfg.InfluxInterval)
	}
}

// runOnce sends a single message to the configured (or filtered) providers and exits
func runOnce(cfg *config.Config, dispatcher *notify.Dispatcher, title, message, providers string, urgent bool) {
	if message == "" {
		logging.Get().Fatal().Msg("nothing to send: provide -message (or use -serve)")
	}
	if !urgent && cfg.IsQuiet(time.Now()) {
		metrics.IncQuietSuppressed()
		logging.Get().Info().Msg("inside quiet hours; message suppressed (use -urgent to bypass)")
		return
	}

	only, err := parseProviderFilter(providers, dispatcher)
	if err != nil {
		logging.Get().Fatal().Err(err).Strs("configured", dispatcher.Providers()).Msg("invalid -providers filter")
	}

	ctx := context.Background()
	id := dispatcher.DispatchTo(ctx, title, message, only)
	logging.Get().Info().Str("message_id", id).Msg("dispatching message")

	waitCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()
	if err := dispatcher.Wait(waitCtx); err != nil {
		logging.Get().Fatal().Err(err).Msg("timed out waiting for sends to complete")
	}
}

// parseProviderFilter splits the -providers flag value and checks every name
// against the registered providers. A typo must be an error, not a silently
// dropped message.
func parseProviderFilter(providers string, dispatcher *notify.Dispatcher) ([]string, error) {
	if providers == "" {
		return nil, nil
	}
	only := strings.Split(providers, ",")
	for i := range only {
		only[i] = strings.TrimSpace(only[i])
	}
	if unknown := dispatcher.UnknownProviders(only); len(unknown) > 0 {
		return nil, fmt.Errorf("unknown providers: %s", strings.Join(unknown, ", "))
	}
	return only, nil
}

// runRelay starts the relay server and blocks until a shutdown signal
func runRelay(cfg *config.Config, dispatcher *notify.Dispatcher, journal *history.Journal) {
	srv := relay.New(cfg, dispatcher, journal)
	go func() {
		if err := srv.Start(); err != nil {
			logging.Get().Fatal().Err(err).Msg("relay server failed")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	// Graceful shutdown: give up to 5 seconds for in-flight sends to complete
	logging.Get().Info().Msg("shutdown signal received, waiting for in-flight sends to complete")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		logging.Get().Warn().Err(err).Msg("relay shutdown incomplete")
	}
}

// Command hearsay is the realtime transcription and translation server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hearsay-live/hearsay/internal/archive"
	"github.com/hearsay-live/hearsay/internal/config"
	"github.com/hearsay-live/hearsay/internal/health"
	"github.com/hearsay-live/hearsay/internal/observe"
	"github.com/hearsay-live/hearsay/internal/server"
	"github.com/hearsay-live/hearsay/internal/session"
	"github.com/hearsay-live/hearsay/internal/store"
	"github.com/hearsay-live/hearsay/pkg/provider/llm"
	"github.com/hearsay-live/hearsay/pkg/provider/llm/anyllm"
	oaillm "github.com/hearsay-live/hearsay/pkg/provider/llm/openai"
	"github.com/hearsay-live/hearsay/pkg/provider/stt"
	"github.com/hearsay-live/hearsay/pkg/provider/stt/deepgram"
	oaistt "github.com/hearsay-live/hearsay/pkg/provider/stt/openai"
	"github.com/hearsay-live/hearsay/pkg/provider/stt/whisper"
	"github.com/hearsay-live/hearsay/pkg/provider/vad/silero"
)

// shutdownGrace bounds the whole teardown: session drain, HTTP close, and
// exporter flush share it.
const shutdownGrace = 15 * time.Second

var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "hearsay: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "hearsay: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger, logLevel := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("hearsay starting",
		"version", version,
		"config", *configPath,
		"addr", cfg.Server.Addr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(context.Background(), observe.ProviderConfig{
		ServiceName:    "hearsay",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Storage ───────────────────────────────────────────────────────────────
	st, err := store.New(ctx, cfg.Storage)
	if err != nil {
		slog.Error("failed to open store", "err", err)
		return 1
	}
	defer st.Close()
	slog.Info("store ready", "audio_backend", string(cfg.Storage.Backend()))

	var mirror archive.Mirror
	if cfg.Storage.S3 != nil {
		m, err := newS3Mirror(ctx, cfg.Storage.S3)
		if err != nil {
			slog.Error("failed to configure s3 mirror", "err", err)
			return 1
		}
		mirror = m
		slog.Info("s3 mirror enabled", "bucket", cfg.Storage.S3.Bucket, "prefix", cfg.Storage.S3.Prefix)
	}

	// ── VAD engine ────────────────────────────────────────────────────────────
	var sileroOpts []silero.Option
	if cfg.VAD.LibraryPath != "" {
		sileroOpts = append(sileroOpts, silero.WithLibraryPath(cfg.VAD.LibraryPath))
	}
	vadEngine, err := silero.New(cfg.VAD.ModelPath, sileroOpts...)
	if err != nil {
		slog.Error("failed to load vad model", "model", cfg.VAD.ModelPath, "err", err)
		return 1
	}
	defer vadEngine.Close()
	slog.Info("vad engine ready", "model", cfg.VAD.ModelPath)

	// ── Sessions ──────────────────────────────────────────────────────────────
	sessions, err := session.NewManager(session.Deps{
		Config:   cfg,
		Registry: reg,
		Store:    st,
		Archive:  archive.NewSaver(st, mirror, logger),
		VAD:      vadEngine,
		Logger:   logger,
	})
	if err != nil {
		slog.Error("failed to build session manager", "err", err)
		return 1
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		d := config.Diff(old, new)
		if d.LogLevelChanged {
			logLevel.Set(slogLevel(d.NewLogLevel))
			slog.Info("log level changed", "level", d.NewLogLevel)
		}
		if d.SessionDefaultsChanged {
			sessions.SetConfig(new)
			slog.Info("session defaults reloaded; running recordings keep theirs")
		}
		if len(d.RestartRequired) > 0 {
			slog.Warn("config changes need a restart to apply", "sections", d.RestartRequired)
		}
	})
	if err != nil {
		slog.Warn("config hot reload disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	// ── HTTP surface ──────────────────────────────────────────────────────────
	gate := &health.Gate{}
	checker := health.New(
		gate.Checker(),
		health.Checker{Name: "postgres", Check: st.Ping},
	)

	srv, err := server.New(server.Config{
		Sessions:  sessions,
		JWTSecret: cfg.Auth.JWTSecret,
		Health:    checker,
		Metrics:   promhttp.Handler(),
		Logger:    logger,
	})
	if err != nil {
		slog.Error("failed to build server", "err", err)
		return 1
	}

	httpSrv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		if tls := cfg.Server.TLS; tls != nil {
			serveErr <- httpSrv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			serveErr <- httpSrv.ListenAndServe()
		}
	}()
	gate.MarkReady()

	printStartupSummary(cfg)
	slog.Info("server ready — press Ctrl+C to shut down")

	select {
	case err := <-serveErr:
		slog.Error("listener failed", "err", err)
		return 1
	case <-ctx.Done():
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping…")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown", "err", err)
	}
	sessions.Shutdown(shutdownCtx)
	if err := otelShutdown(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown", "err", err)
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// anyllmBackends are the hosted translation backends served through the
// any-llm multiplexer. "openai" is absent here: it routes to the native
// client instead.
var anyllmBackends = []string{
	"anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
}

// registerBuiltinProviders wires the shipped ASR and translation factories
// into reg. Each factory receives a resolved config.ProviderEntry and builds
// a per-session client.
func registerBuiltinProviders(reg *config.Registry) {
	// ── Streaming ASR ─────────────────────────────────────────────────────────

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithBaseURL(entry.BaseURL))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	// ── Buffered ASR ──────────────────────────────────────────────────────────

	reg.RegisterBatchSTT("whisper", func(entry config.ProviderEntry) (stt.BatchTranscriber, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterBatchSTT("openai", func(entry config.ProviderEntry) (stt.BatchTranscriber, error) {
		var opts []oaistt.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaistt.WithBaseURL(entry.BaseURL))
		}
		return oaistt.New(entry.APIKey, entry.Model, opts...)
	})

	// ── Translation ───────────────────────────────────────────────────────────

	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oaillm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaillm.WithBaseURL(entry.BaseURL))
		}
		return oaillm.New(entry.APIKey, entry.Model, opts...)
	})

	for _, name := range anyllmBackends {
		reg.RegisterLLM(name, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(name, entry.Model, opts...)
		})
	}

	// ollama is a local server; it wants a BaseURL, never an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.NewOllama(entry.Model, opts...)
	})
}

// newS3Mirror builds the artifact mirror from storage.s3. Static credentials
// win when configured; otherwise the default AWS chain applies. A custom
// endpoint switches to path-style addressing for MinIO-style stores.
func newS3Mirror(ctx context.Context, s3cfg *config.S3Config) (*store.S3Mirror, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if s3cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(s3cfg.Region))
	}
	if s3cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(s3cfg.AccessKeyID, s3cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if s3cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(s3cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return store.NewS3Mirror(client, s3cfg.Bucket, s3cfg.Prefix), nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║         Hearsay — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printEntry("Listen addr", cfg.Server.Addr)
	printEntry("ASR default", providerLabel(cfg.STT.Provider, cfg.STT.Model))
	printEntry("LLM default", providerLabel(cfg.LLM.Provider, cfg.LLM.Model))
	printEntry("Audio store", string(cfg.Storage.Backend()))
	if cfg.Storage.S3 != nil {
		printEntry("S3 mirror", cfg.Storage.S3.Bucket)
	} else {
		printEntry("S3 mirror", "(disabled)")
	}
	printEntry("VAD model", cfg.VAD.ModelPath)
	if cfg.Server.TLS != nil {
		printEntry("TLS", "enabled")
	} else {
		printEntry("TLS", "disabled")
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func providerLabel(name, model string) string {
	if name == "" {
		return "(not configured)"
	}
	if model != "" {
		return name + " / " + model
	}
	return name
}

func printEntry(label, value string) {
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-15s : %-19s ║\n", label, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

// newLogger builds the process logger around a LevelVar so config reloads can
// adjust verbosity without tearing the handler down.
func newLogger(level config.LogLevel) (*slog.Logger, *slog.LevelVar) {
	lvl := new(slog.LevelVar)
	lvl.Set(slogLevel(level))
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})), lvl
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

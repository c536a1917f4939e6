// Command omni runs one live voice conversation against the remote model
// service: raw microphone PCM in on stdin, mixed playback PCM out on
// stdout, text turns on the terminal via stderr prompts.
//
// Typical invocation with sox handling the device boundary:
//
//	rec -t raw -r 16000 -e signed -b 16 -c 1 - 2>/dev/null \
//	  | omni -config config.yaml \
//	  | play -t raw -r 24000 -e signed -b 16 -c 1 - 2>/dev/null
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kryptik-dev/omni/internal/capability"
	"github.com/kryptik-dev/omni/internal/capability/imagery"
	"github.com/kryptik-dev/omni/internal/capability/mcphub"
	"github.com/kryptik-dev/omni/internal/capability/reason"
	"github.com/kryptik-dev/omni/internal/capability/search"
	"github.com/kryptik-dev/omni/internal/capability/vision"
	"github.com/kryptik-dev/omni/internal/config"
	"github.com/kryptik-dev/omni/internal/health"
	"github.com/kryptik-dev/omni/internal/live"
	"github.com/kryptik-dev/omni/internal/msgstore"
	"github.com/kryptik-dev/omni/internal/observe"
	"github.com/kryptik-dev/omni/internal/resilience"
	"github.com/kryptik-dev/omni/internal/session"
	"github.com/kryptik-dev/omni/pkg/audio"
	"github.com/kryptik-dev/omni/pkg/audio/effects"
	"github.com/kryptik-dev/omni/pkg/audio/pcmio"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	noMic := flag.Bool("no-mic", false, "run without microphone capture (text turns only)")
	flag.Parse()

	// ── Load configuration (watched for changes) ──────────────────────────────
	// The phone-filter toggle applies to the next played buffer of the live
	// conversation; everything else needs a new session.
	var sessRef atomic.Pointer[session.Session]
	watcher, err := config.NewWatcher(*configPath, func(_, cur *config.Config) {
		if s := sessRef.Load(); s != nil {
			s.SetPhoneFilter(cur.Audio.PhoneFilter)
		}
		slog.Info("configuration reloaded", "phone_filter", cur.Audio.PhoneFilter)
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "omni: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "omni: %v\n", err)
		}
		return 1
	}
	defer watcher.Stop()
	cfg := watcher.Current()

	// ── Logger ────────────────────────────────────────────────────────────────
	// stdout carries playback PCM, so logs go to stderr.
	slog.SetDefault(newLogger(cfg.Server.LogLevel))
	slog.Info("omni starting", "config", *configPath, "log_level", cfg.Server.LogLevel)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "omni"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = otelShutdown(shutdownCtx)
	}()
	metrics := observe.DefaultMetrics()

	// ── Capability collaborators ──────────────────────────────────────────────
	collab, cleanup, err := buildCollaborators(ctx, cfg)
	if err != nil {
		slog.Error("failed to build collaborators", "err", err)
		return 1
	}
	defer cleanup()

	// Every built-in capability talks to a remote backend, so each gets its
	// own circuit breaker.
	builtins := capability.GuardAll(capability.Builtins(collab), resilience.CircuitBreakerConfig{})

	dispatcher := capability.NewDispatcher(capability.WithMetrics(metrics))
	if err := dispatcher.RegisterAll(builtins); err != nil {
		slog.Error("failed to register capabilities", "err", err)
		return 1
	}

	// ── External MCP tool servers ─────────────────────────────────────────────
	hub := mcphub.New()
	defer hub.Close()
	for _, srv := range cfg.MCP.Servers {
		if err := hub.RegisterServer(ctx, mcphub.ServerConfig{
			Name:      srv.Name,
			Transport: srv.Transport,
			Command:   srv.Command,
			URL:       srv.URL,
			Env:       srv.Env,
		}); err != nil {
			slog.Warn("mcp server unavailable", "server", srv.Name, "err", err)
			continue
		}
		slog.Info("mcp server connected", "server", srv.Name)
	}
	if err := dispatcher.RegisterAll(capability.GuardAll(hub.Capabilities(), resilience.CircuitBreakerConfig{})); err != nil {
		slog.Error("failed to register mcp capabilities", "err", err)
		return 1
	}

	// ── Transport and session ─────────────────────────────────────────────────
	var transportOpts []live.Option
	if cfg.Live.Model != "" {
		transportOpts = append(transportOpts, live.WithModel(cfg.Live.Model))
	}
	transport := live.NewTransport(cfg.Live.APIKey, transportOpts...)

	out := pcmio.NewWriter(os.Stdout, audio.PlaybackRate)

	sessionOpts := []session.Option{
		session.WithMetrics(metrics),
		session.WithPhoneFilter(cfg.Audio.PhoneFilter),
	}
	if !*noMic {
		sessionOpts = append(sessionOpts, session.WithInput(pcmio.NewReader(os.Stdin, audio.CaptureRate)))
	}
	if cfg.Audio.NoiseGain > 0 {
		bed := effects.NewNoiseBed(audio.PlaybackRate,
			effects.WithNoiseGain(cfg.Audio.NoiseGain),
			effects.WithNoiseRand(rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))),
		)
		sessionOpts = append(sessionOpts, session.WithNoiseBed(bed))
	}

	sess := session.New(transport, out, dispatcher, sessionOpts...)
	sessRef.Store(sess)

	// ── Metrics / health endpoint ─────────────────────────────────────────────
	if cfg.Server.MetricsAddr != "" {
		go serveMetrics(cfg.Server.MetricsAddr, metrics, sess)
	}

	if err := sess.Connect(ctx, live.SessionConfig{
		Voice:             cfg.Live.Voice,
		SystemInstruction: cfg.Live.SystemInstruction,
		Location:          cfg.Live.Location,
		Persona:           cfg.Live.Persona,
	}); err != nil {
		slog.Error("failed to connect session", "err", err)
		return 1
	}

	slog.Info("session live — type a message and press enter to send a text turn, Ctrl+C to hang up")

	// ── Text turns from the terminal ──────────────────────────────────────────
	// Read /dev/tty when available so text entry coexists with PCM on stdin.
	go textTurnLoop(sess)

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received, hanging up…")
	case <-sess.Done():
	}

	if err := sess.Close(); err != nil {
		slog.Warn("session close error", "err", err)
	}
	slog.Info("goodbye")
	return 0
}

// buildCollaborators constructs every configured capability collaborator.
// Missing configuration leaves the corresponding field nil — the built-in
// capabilities then fail soft with an explanation.
func buildCollaborators(ctx context.Context, cfg *config.Config) (capability.Collaborators, func(), error) {
	var c capability.Collaborators
	cleanup := func() {}

	if key := cfg.Capabilities.OpenAIAPIKey; key != "" {
		var opts []imagery.Option
		if cfg.Capabilities.ImageModel != "" {
			opts = append(opts, imagery.WithModel(cfg.Capabilities.ImageModel))
		}
		studio, err := imagery.New(key, opts...)
		if err != nil {
			return c, cleanup, fmt.Errorf("imagery: %w", err)
		}
		c.Images = studio
	}

	if key := cfg.Capabilities.TavilyAPIKey; key != "" {
		c.Search = search.New(key)
	}

	if key := cfg.Capabilities.GeminiAPIKey; key != "" {
		var opts []vision.Option
		if cfg.Capabilities.VisionModel != "" {
			opts = append(opts, vision.WithModel(cfg.Capabilities.VisionModel))
		}
		analyzer, err := vision.New(ctx, key, opts...)
		if err != nil {
			return c, cleanup, fmt.Errorf("vision: %w", err)
		}
		c.Vision = analyzer
	}

	if r := cfg.Capabilities.Reasoner; r.Provider != "" {
		var opts []anyllmlib.Option
		if r.APIKey != "" {
			opts = append(opts, anyllmlib.WithAPIKey(r.APIKey))
		}
		llm, err := reason.New(r.Provider, r.Model, opts...)
		if err != nil {
			return c, cleanup, fmt.Errorf("reasoner: %w", err)
		}
		c.Reasoner = llm
	}

	if dsn := cfg.Capabilities.PostgresDSN; dsn != "" {
		store, pool, err := msgstore.Connect(ctx, dsn)
		if err != nil {
			return c, cleanup, fmt.Errorf("message store: %w", err)
		}
		c.Messages = store
		cleanup = pool.Close
	}

	return c, cleanup, nil
}

// serveMetrics exposes /metrics, /healthz, and /readyz.
func serveMetrics(addr string, metrics *observe.Metrics, sess *session.Session) {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	health.New(health.Probe{
		Name: "session",
		Check: func(context.Context) error {
			if sess.State() == session.Idle {
				return errors.New("no live session")
			}
			return nil
		},
	}).Register(mux)

	handler := observe.Middleware(metrics)(mux)
	slog.Info("metrics endpoint listening", "addr", addr)
	if err := http.ListenAndServe(addr, handler); err != nil {
		slog.Warn("metrics endpoint failed", "err", err)
	}
}

// textTurnLoop forwards lines typed on the controlling terminal as text
// turns. Stdin carries PCM, so the terminal is read via /dev/tty; when no
// tty is available (e.g. fully piped deployments) text turns are disabled.
func textTurnLoop(sess *session.Session) {
	tty, err := os.Open("/dev/tty")
	if err != nil {
		slog.Debug("no controlling terminal; text turns disabled", "err", err)
		return
	}
	defer tty.Close()

	scanner := bufio.NewScanner(tty)
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if err := sess.SendText(text); err != nil {
			slog.Warn("text turn failed", "err", err)
			return
		}
	}
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

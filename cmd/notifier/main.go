// Classy-slack-notifier watches a Slack workspace and raises desktop
// notifications only for messages worth interrupting a human for.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/linnemanlabs/go-core/cfg"
	"github.com/linnemanlabs/go-core/health"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/metrics"
	"github.com/linnemanlabs/go-core/opshttp"
	"github.com/linnemanlabs/go-core/otelx"
	"github.com/linnemanlabs/go-core/prof"
	v "github.com/linnemanlabs/go-core/version"

	nc "github.com/bmhenry/classy-slack-notifier/internal/cfg"
	"github.com/bmhenry/classy-slack-notifier/internal/classify"
	"github.com/bmhenry/classy-slack-notifier/internal/llm"
	"github.com/bmhenry/classy-slack-notifier/internal/llm/claude"
	"github.com/bmhenry/classy-slack-notifier/internal/llm/ollama"
	"github.com/bmhenry/classy-slack-notifier/internal/notify/desktop"
	"github.com/bmhenry/classy-slack-notifier/internal/rules"
	slackin "github.com/bmhenry/classy-slack-notifier/internal/slack"
	"github.com/bmhenry/classy-slack-notifier/internal/triage"
)

const appName = "classy-slack-notifier"
const component = "notifier"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal error:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Local development convenience; real deployments set env directly
	_ = godotenv.Load()

	// Set app name and component
	v.AppName = appName
	v.Component = component

	// Get build/version info
	vi := v.Get()

	// each package registers its own flags and options struct
	var (
		appCfg   nc.Config
		logCfg   log.Config
		opsCfg   opshttp.Config
		profCfg  prof.Config
		traceCfg otelx.Config
	)

	// register flags for each package, which will be parsed into the shared config struct
	appCfg.RegisterFlags(flag.CommandLine)
	logCfg.RegisterFlags(flag.CommandLine)
	opsCfg.RegisterFlags(flag.CommandLine)
	profCfg.RegisterFlags(flag.CommandLine)
	traceCfg.RegisterFlags(flag.CommandLine)
	var showVersion bool
	flag.BoolVar(&showVersion, "V", false, "Print version+build information and exit")

	// parse flags to get config values from cmdline, we check env vars next which do not override cmdline flags
	flag.Parse()
	if showVersion {
		fmt.Printf(
			"%s (%s) %s (commit=%s, commit_date=%s, build_id=%s, build_date=%s, go=%s, dirty=%v)\n",
			vi.AppName, vi.Component, vi.Version, vi.Commit, vi.CommitDate, vi.BuildId, vi.BuildDate, vi.GoVersion,
			vi.VCSDirty != nil && *vi.VCSDirty,
		)
		return nil
	}

	// Fill in config values from environment variables with prefix CLASSY_,
	// these do not override cmdline flags
	cfg.FillFromEnv(flag.CommandLine, "CLASSY_", func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})

	if err := errors.Join(
		appCfg.Validate(),
		logCfg.Validate(),
		opsCfg.Validate(),
		profCfg.Validate(),
		traceCfg.Validate(),
	); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	// initialize logger early
	lg, err := log.New(logCfg.ToOptions(v.AppName))
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	// no-op for slog/stderr, but here if we swap backends in the future to ensure any buffered logs are flushed on shutdown
	defer func() { _ = lg.Sync() }()

	// create a logger with component field pre-filled for structured logging in this package
	L := lg.With("component", vi.Component)

	// add logger to context
	ctx = log.WithContext(ctx, L)

	L.Info(ctx, "initializing application",
		"version", vi.Version,
		"commit", vi.Commit,
		"build_id", vi.BuildId,
		"go_version", vi.GoVersion,
		"admin_port", opsCfg.Port,
		"enable_pprof", opsCfg.EnablePprof,
		"enable_pyroscope", profCfg.EnablePyroscope,
		"enable_tracing", traceCfg.EnableTracing,
	)

	// Setup pyroscope profiling early so we get profiles from the entire app lifetime
	profOpts := profCfg.ToOptions()
	profOpts.AppName = v.AppName
	profOpts.Tags = map[string]string{
		"app":       v.AppName,
		"component": v.Component,
		"version":   vi.Version,
		"commit":    vi.Commit,
		"build_id":  vi.BuildId,
	}
	// Start profiling, returns a stop function to call for clean shutdown (flush buffers, etc)
	stopProf, profErr := prof.Start(ctx, profOpts)
	if profErr != nil {
		L.Error(ctx, profErr, "pyroscope start failed", "pyro_server", profCfg.PyroServer)
	}
	if stopProf != nil {
		defer stopProf()
	}

	// Setup otel for tracing
	traceOpts := traceCfg.ToOptions()
	traceOpts.Service = v.AppName
	traceOpts.Component = v.Component
	traceOpts.Version = v.Version

	// Start otel, returns a shutdown function to call for clean shutdown (flush buffers, etc)
	shutdownOtelx, err := otelx.Init(ctx, traceOpts)
	if err != nil {
		L.Error(ctx, err, "otel init failed")
	}
	if shutdownOtelx != nil {
		defer func() { _ = shutdownOtelx(context.Background()) }()
	}

	// Setup metrics, we use our own metrics package for internal instrumentation
	var m = metrics.New()
	m.SetBuildInfoFromVersion(v.AppName, component, &vi)
	m.SetProfilingActive(profErr == nil && profCfg.EnablePyroscope)

	// Load the triage rules. Any invalid field is fatal here: the pipeline
	// never runs against a policy it cannot fully trust.
	rulesPath := appCfg.RulesPath
	if rulesPath == "" {
		rulesPath = rules.DefaultPath()
	}
	rs, err := rules.Load(rulesPath, func(format string, args ...any) {
		L.Warn(ctx, fmt.Sprintf(format, args...), "rules_path", rulesPath)
	})
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}
	source := rules.NewSource(rs)
	L.Info(ctx, "rules loaded",
		"path", rulesPath,
		"provider", rs.Provider,
		"model", rs.Model,
		"threshold", rs.UrgencyThreshold,
		"keywords", len(rs.Keywords),
		"channels", len(rs.Channels),
	)

	// Pick the classifier provider named by the rules file.
	var provider llm.Provider
	switch rs.Provider {
	case "claude":
		if appCfg.ClaudeAPIKey == "" {
			return errors.New("CLAUDE_API_KEY is required when the rules file selects the claude provider")
		}
		provider = claude.New(appCfg.ClaudeAPIKey)
	default:
		provider = ollama.New(rs.OllamaURL)
	}
	L.Info(ctx, "initialized LLM provider", "provider", provider.Name(), "model", rs.Model)

	// Initialize pipeline metrics on the shared Prometheus registry.
	tm := triage.NewMetrics(m.Registry())

	// Classifier gateway, desktop notifier, and the Slack listener.
	gateway := classify.New(provider, L, tm)
	notifier := desktop.New(L)

	listener, err := slackin.New(appCfg.SlackBotToken, appCfg.SlackAppToken, L)
	if err != nil {
		return fmt.Errorf("slack listener: %w", err)
	}
	L.Info(ctx, "slack identity resolved", "self_id", listener.SelfID())

	svc := triage.NewService(source, gateway, notifier, listener.SelfID(), L, tm)

	// Reload rules on SIGHUP: validate the replacement off to the side and
	// swap atomically, or keep the old policy on failure.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for range hup {
			next, err := rules.Load(rulesPath, func(format string, args ...any) {
				L.Warn(ctx, fmt.Sprintf(format, args...), "rules_path", rulesPath)
			})
			if err != nil {
				L.Error(ctx, err, "rules reload failed, keeping previous rules", "path", rulesPath)
				continue
			}
			source.Swap(next)
			L.Info(ctx, "rules reloaded",
				"path", rulesPath,
				"threshold", next.UrgencyThreshold,
				"keywords", len(next.Keywords),
				"channels", len(next.Channels),
			)
		}
	}()

	// setup toggle for shutdown. this fails readiness checks during shutdown
	// so monitoring sees the process draining before it exits.
	var shutdownGate health.ShutdownGate

	readiness := health.All(
		shutdownGate.Probe(),
	)
	// liveness is always true if the app is able to respond
	liveness := health.Fixed(true, "")

	// Configure ops http server for metrics, health checks, pprof, etc
	opsOpts := opsCfg.ToOptions()
	opsOpts.Metrics = m.Handler()
	opsOpts.Health = liveness
	opsOpts.Readiness = readiness
	opsOpts.UseRecoverMW = true
	opsOpts.OnPanic = m.IncHttpPanic

	opsHTTPStop, err := opshttp.Start(ctx, L, opsOpts)
	if err != nil {
		L.Error(ctx, err, "failed to start ops http listener")
		return err
	}
	defer func() {
		err := opsHTTPStop(context.Background())
		if err != nil {
			L.Error(ctx, err, "failed to stop ops http listener")
		}
	}()

	// Run the Socket Mode listener; it manages reconnects itself and returns
	// once ctx is canceled or the connection is irrecoverable.
	listenErr := make(chan error, 1)
	go func() {
		listenErr <- listener.Run(ctx, svc)
	}()

	// Notify systemd that we started successfully if started under systemd
	if err := notifySystemd(); err != nil {
		// log and dont exit, worst case systemd will kill the process after timeout
		L.Warn(ctx, "failed to notify systemd of readiness", "error", err)
	}

	L.Info(ctx, "triage pipeline running")

	// Wait for ctrl+c / sigterm, or the listener dying on its own
	select {
	case <-ctx.Done():
		L.Info(context.Background(), "shutdown signal received")
	case err := <-listenErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			L.Error(context.Background(), err, "slack listener exited")
			return fmt.Errorf("slack listener: %w", err)
		}
		L.Info(context.Background(), "slack listener exited")
	}

	// fail readiness while the in-flight triage finishes
	shutdownGate.Set("draining")
	L.Info(context.Background(), "shutdown gate closed")

	drainDuration := time.Duration(appCfg.DrainSeconds) * time.Second
	L.Info(context.Background(), "sleeping for drain period", "drain_seconds", appCfg.DrainSeconds)
	forceCh := make(chan os.Signal, 1)
	signal.Notify(forceCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-time.After(drainDuration):
		L.Info(context.Background(), "drain period complete")
	case <-forceCh:
		L.Warn(context.Background(), "second signal received, skipping drain")
	}
	signal.Stop(forceCh)

	// Shutdown components with per-component budget sliced from total.
	// stopProf is synchronous and needs no context, so it's excluded.
	type stopFn struct {
		name string
		fn   func(context.Context) error
	}
	stopFns := []stopFn{
		{"ops http server", opsHTTPStop},
	}
	if shutdownOtelx != nil {
		stopFns = append(stopFns, stopFn{"otel", shutdownOtelx})
	}

	budget := time.Duration(appCfg.ShutdownBudgetSeconds) * time.Second
	perComponent := budget / time.Duration(len(stopFns))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), budget)
	defer cancel()

	for _, s := range stopFns {
		cctx, ccancel := context.WithTimeout(shutdownCtx, perComponent)
		if err := s.fn(cctx); err != nil {
			L.Error(context.Background(), err, s.name+" shutdown")
		}
		ccancel()
	}

	L.Info(context.Background(), "shutdown complete")
	return nil
}

func notifySystemd() error {
	// systemd will set NOTIFY_SOCKET to a unix socket path if we were started under systemd with type=notify
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return fmt.Errorf("NOTIFY_SOCKET not set, skipping systemd notify")
	}
	conn, err := net.Dial("unixgram", addr) //nolint:gosec,noctx // G704: addr is from NOTIFY_SOCKET set by systemd not user input, no context support in net package for unixgram sockets
	if err != nil {
		return fmt.Errorf("systemd notify failed: dial failed: %w", err)
	}
	defer func() { _ = conn.Close() }()
	if _, err := conn.Write([]byte("READY=1")); err != nil {
		return fmt.Errorf("systemd notify failed: write failed: %w", err)
	}
	return nil
}

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/dnscache"
	"go.opentelemetry.io/otel/trace"

	"github.com/zhengwenj/cursor-api-sub001/internal/admission"
	"github.com/zhengwenj/cursor-api-sub001/internal/assembler"
	"github.com/zhengwenj/cursor-api-sub001/internal/checksum"
	"github.com/zhengwenj/cursor-api-sub001/internal/circuitbreaker"
	"github.com/zhengwenj/cursor-api-sub001/internal/config"
	"github.com/zhengwenj/cursor-api-sub001/internal/cursortoken"
	"github.com/zhengwenj/cursor-api-sub001/internal/modelregistry"
	"github.com/zhengwenj/cursor-api-sub001/internal/proxypool"
	"github.com/zhengwenj/cursor-api-sub001/internal/server"
	"github.com/zhengwenj/cursor-api-sub001/internal/storage/sqlite"
	"github.com/zhengwenj/cursor-api-sub001/internal/telemetry"
	"github.com/zhengwenj/cursor-api-sub001/internal/tokenstate"
	"github.com/zhengwenj/cursor-api-sub001/internal/upstream"
	"github.com/zhengwenj/cursor-api-sub001/internal/worker"
)

func run(configPath string) error {
	startTime := time.Now()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	slog.Info("starting gandalf", "version", version, "addr", cfg.Server.Addr)

	checksum.SetSafeHash(cfg.Auth.SafeHash)
	if cfg.Auth.TokenDelimiter != "" {
		cursortoken.Delimiter = cfg.Auth.TokenDelimiter[0]
	}

	store, err := sqlite.New(cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer store.Close()

	dsnLog := cfg.Database.DSN
	if i := strings.IndexByte(dsnLog, '?'); i >= 0 {
		dsnLog = dsnLog[:i]
	}
	slog.Info("database opened", "dsn", dsnLog)

	ctx := context.Background()

	tokenPool := cursortoken.NewPool()
	tokens := tokenstate.New()
	if recs, loadErr := store.LoadTokens(ctx); loadErr == nil {
		if restoreErr := tokens.Restore(recs, func(raw string) (cursortoken.RawToken, error) {
			return cursortoken.ParseRawToken(raw, time.Now())
		}); restoreErr != nil {
			slog.Warn("token restore failed", "error", restoreErr)
		}
	} else {
		slog.Warn("token load failed", "error", loadErr)
	}
	slog.Info("tokens loaded", "count", len(tokens.List()))

	mode, limit := tokenstate.ModeFromLimit(cfg.Auth.RequestLogsLimit)
	logs := tokenstate.NewLogManager(mode, limit)
	if persisted, loadErr := store.LoadLogs(ctx); loadErr == nil {
		logs.RebuildFromPersisted(persisted, tokenPool)
	} else {
		slog.Warn("log load failed", "error", loadErr)
	}

	dnsResolver := &dnscache.Resolver{}
	go func() {
		t := time.NewTicker(5 * time.Minute)
		defer t.Stop()
		for range t.C {
			dnsResolver.Refresh(true)
		}
	}()

	baseDial := proxypool.DefaultTransport(cfg.Upstream.ServiceTimeout, cfg.Upstream.TCPKeepalive, dnsResolver)
	proxies := proxypool.New(baseDial)
	if declared, general, loadErr := store.LoadProxies(ctx); loadErr == nil {
		for _, rec := range declared {
			if addErr := proxies.Add(rec.Name, proxypool.SingleProxy{Kind: rec.Kind, URL: rec.URL}); addErr != nil {
				slog.Warn("proxy restore failed", "name", rec.Name, "error", addErr)
			}
		}
		if general != "" {
			if setErr := proxies.SetGeneral(general); setErr != nil {
				slog.Warn("proxy general restore failed", "error", setErr)
			}
		}
	} else {
		slog.Warn("proxy load failed", "error", loadErr)
	}
	slog.Info("proxy pool loaded", "declared", len(proxies.Declared()), "general", proxies.General())

	breakers := circuitbreaker.NewRegistry(circuitbreaker.DefaultConfig())

	models := modelregistry.New(modelregistry.DefaultDescriptors(), cfg.Auth.BypassModelValidation)

	visionPolicy := assembler.VisionBase64
	switch cfg.Upstream.VisionPolicy {
	case "none":
		visionPolicy = assembler.VisionNone
	case "all":
		visionPolicy = assembler.VisionAll
	}
	asm := assembler.New(assembler.Options{
		Registry:     models,
		VisionPolicy: visionPolicy,
		LongContext:  cfg.Upstream.LongContext,
	})

	caller := upstream.New(upstream.Config{
		ClientVersion:    cfg.Upstream.ClientVersion,
		ReverseProxyHost: cfg.Upstream.ReverseProxyHost,
		Timeout:          cfg.Upstream.ServiceTimeout,
		KeepAlive:        cfg.Upstream.TCPKeepalive,
		DefaultTimezone:  cfg.Auth.GeneralTimezone,
		Platform:         cfg.Upstream.Platform,
	}, proxies, breakers)

	admitter := admission.New(admission.Config{
		AdminToken:     cfg.Auth.AdminToken,
		ShareToken:     cfg.Auth.ShareToken,
		KeyPrefix:      cfg.Auth.KeyPrefix,
		DynamicEnabled: cfg.Auth.DynamicKeyEnabled,
	}, tokens, logs, tokenPool)

	runner := worker.NewRunner(worker.NewTimestampRotator(30 * time.Second))

	var metrics *telemetry.Metrics
	var metricsHandler http.Handler
	if cfg.Telemetry.MetricsEnabled {
		promRegistry := prometheus.NewRegistry()
		promRegistry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		promRegistry.MustRegister(collectors.NewGoCollector())
		metrics = telemetry.NewMetrics(promRegistry, func() float64 { return float64(tokenPool.Len()) })
		metricsHandler = promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{})
		slog.Info("prometheus metrics enabled")
	}

	var tracer trace.Tracer
	var tracingShutdown func(context.Context) error
	if cfg.Telemetry.TracingEnabled {
		endpoint := cfg.Telemetry.TracingEndpoint
		if endpoint == "" {
			endpoint = "localhost:4317"
		}
		sampleRate := cfg.Telemetry.SampleRate
		if sampleRate == 0 {
			sampleRate = 0.1
		}
		shutdown, tracingErr := telemetry.SetupTracing(ctx, endpoint, sampleRate)
		if tracingErr != nil {
			slog.Warn("tracing setup failed, continuing without tracing", "error", tracingErr)
		} else {
			tracingShutdown = shutdown
			tracer = telemetry.Tracer("gandalf/server")
			slog.Info("opentelemetry tracing enabled", "endpoint", endpoint, "sample_rate", sampleRate)
		}
	}

	handler := server.New(server.Deps{
		Admitter:       admitter,
		Assembler:      asm,
		Caller:         caller,
		Models:         models,
		Tokens:         tokens,
		Logs:           logs,
		Proxies:        proxies,
		Breakers:       breakers,
		TokenPool:      tokenPool,
		Store:          store,
		Metrics:        metrics,
		MetricsHandler: metricsHandler,
		Tracer:         tracer,
		ReadyCheck:     store.Ping,
		AdminToken:     cfg.Auth.AdminToken,
		RoutePrefix:    cfg.Server.RoutePrefix,
		RequestLogsOn:  cfg.Auth.RequestLogsLimit != 0,
		DefaultTZ:      cfg.Auth.GeneralTimezone,
		StartTime:      startTime,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	workerDone := make(chan error, 1)
	go func() {
		workerDone <- runner.Run(workerCtx)
	}()

	go func() {
		t := time.NewTicker(10 * time.Minute)
		defer t.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-t.C:
				if n := breakers.EvictStale(time.Now().Add(-1 * time.Hour)); n > 0 {
					slog.Info("circuit breaker eviction", "evicted", n)
				}
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	slog.Info("gateway endpoints enabled",
		"endpoints", []string{
			"POST /v1/chat/completions",
			"POST /v1/messages",
			"GET  /v1/models",
			"GET  /build-key",
			"POST /build-key",
		},
	)
	slog.Info("gandalf ready", "addr", cfg.Server.Addr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("shutting down", "signal", sig)
	case err := <-errCh:
		workerCancel()
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		workerCancel()
		return err
	}

	if saveErr := store.SaveTokens(shutdownCtx, tokens.Snapshot()); saveErr != nil {
		slog.Error("token save error", "error", saveErr)
	}
	if saveErr := store.SaveLogs(shutdownCtx, logs.Snapshot()); saveErr != nil {
		slog.Error("log save error", "error", saveErr)
	}

	workerCancel()
	if err := <-workerDone; err != nil {
		slog.Error("worker shutdown error", "error", err)
	}

	if tracingShutdown != nil {
		if err := tracingShutdown(shutdownCtx); err != nil {
			slog.Error("tracing shutdown error", "error", err)
		}
	}

	slog.Info("gandalf stopped")
	return nil
}

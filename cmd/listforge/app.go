package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/yaml.v3"

	"github.com/listforge/listforge/config"
	"github.com/listforge/listforge/fetch"
	"github.com/listforge/listforge/health"
	"github.com/listforge/listforge/metric"
	"github.com/listforge/listforge/queue"
	"github.com/listforge/listforge/schedule"
	"github.com/listforge/listforge/storage"
	"github.com/listforge/listforge/workflow"
)

// loadConfig loads either the explicit config file or the layered defaults.
func loadConfig(configPath string, logger *slog.Logger) (*config.Config, error) {
	if configPath != "" {
		cfg := config.DefaultConfig()
		fileCfg, err := config.LoadFromFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("load config %s: %w", configPath, err)
		}
		cfg.Merge(fileCfg)
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
		return cfg, nil
	}
	return config.NewLoader(logger).Load()
}

// connectNATS dials the NATS server with exponential backoff so a worker
// started before its broker still comes up.
func connectNATS(url string, logger *slog.Logger) (*nats.Conn, error) {
	var conn *nats.Conn

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = 2 * time.Minute

	err := backoff.RetryNotify(
		func() error {
			var dialErr error
			conn, dialErr = nats.Connect(url)
			return dialErr
		},
		policy,
		func(err error, next time.Duration) {
			logger.Warn("NATS connection failed, retrying",
				slog.String("url", url),
				slog.Duration("next_attempt", next),
				slog.String("error", err.Error()))
		},
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", url, err)
	}
	return conn, nil
}

func runServe(configPath string, logger *slog.Logger) error {
	cfg, err := loadConfig(configPath, logger)
	if err != nil {
		return err
	}

	conn, err := connectNATS(cfg.NATS.URL, logger)
	if err != nil {
		return err
	}
	defer conn.Close()

	js, err := jetstream.New(conn)
	if err != nil {
		return fmt.Errorf("create jetstream context: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.NewKVStore(ctx, js, cfg.Cache.Bucket)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	metrics := metric.New(registry)

	cache := storage.NewCache(store, logger)
	monitor := health.NewMonitor(store, cfg.Health.MaxHistory, logger)
	fetcher := fetch.New(logger)

	engine := workflow.NewEngine(fetcher, monitor, cache, logger,
		workflow.WithFetchConcurrency(cfg.Fetch.Concurrency),
		workflow.WithMetrics(metrics),
		workflow.WithEventSink(workflow.EventSinkFunc(func(event workflow.Event) {
			logger.Debug("Workflow event",
				slog.String("type", string(event.Type)),
				slog.String("workflow_id", event.WorkflowID),
				slog.String("step", event.Step),
				slog.Int("progress", event.Progress))
		})),
	)

	provider := queue.NewProvider(logger,
		queue.WithSubjectPrefix(cfg.Queue.SubjectPrefix),
		queue.WithMaxRetries(cfg.Queue.RetryLimit()),
		queue.WithProviderMetrics(metrics),
	)
	if err := provider.Bind(queue.NewJetStreamTransport(js)); err != nil {
		return err
	}

	stream, err := queue.EnsureStream(ctx, js, cfg.Queue.Stream, cfg.Queue.SubjectPrefix)
	if err != nil {
		return err
	}

	dispatcher := queue.NewDispatcher(engine, logger)
	listener, err := queue.NewListener(ctx, stream, provider, dispatcher.Handle,
		cfg.Queue.Consumer, cfg.Queue.RetryLimit(), cfg.Queue.BatchSize, logger)
	if err != nil {
		return err
	}

	scheduler := schedule.New(provider, engine, logger)
	for _, sched := range cfg.Schedules {
		switch sched.Job {
		case config.JobCacheWarm:
			err = scheduler.AddCacheWarm(sched.Cron, sched.Configs)
		case config.JobHealthCheck:
			err = scheduler.AddHealthCheck(sched.Cron, sched.Sources)
		}
		if err != nil {
			return fmt.Errorf("schedule %s job: %w", sched.Job, err)
		}
	}
	scheduler.Start()
	defer scheduler.Stop()

	admin := &http.Server{
		Addr:    cfg.Admin.Addr,
		Handler: adminMux(registry, provider),
	}
	go func() {
		logger.Info("Admin endpoint listening", slog.String("addr", cfg.Admin.Addr))
		if err := admin.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Admin endpoint failed", slog.String("error", err.Error()))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = admin.Shutdown(shutdownCtx)
	}()

	logger.Info("Listforge worker ready",
		slog.String("version", Version),
		slog.String("stream", cfg.Queue.Stream),
		slog.String("consumer", cfg.Queue.Consumer),
		slog.Int("schedules", scheduler.Entries()))

	if err := listener.Run(ctx); err != nil && err != context.Canceled {
		return err
	}
	logger.Info("Shutting down")
	return nil
}

func adminMux(registry *prometheus.Registry, provider *queue.Provider) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if !provider.HealthCheck() {
			http.Error(w, "queue transport not bound", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// runCompile performs a one-shot compilation against an in-memory store,
// without NATS.
func runCompile(configFile, output string, logger *slog.Logger) error {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return fmt.Errorf("read compile config: %w", err)
	}
	var compileCfg workflow.CompileConfig
	if err := yaml.Unmarshal(data, &compileCfg); err != nil {
		return fmt.Errorf("parse compile config: %w", err)
	}

	store := storage.NewMemoryStore()
	cache := storage.NewCache(store, logger)
	monitor := health.NewMonitor(store, 0, logger)
	engine := workflow.NewEngine(fetch.New(logger), monitor, cache, logger)

	result := engine.Compile(context.Background(), "cli", compileCfg)
	if !result.Success {
		return fmt.Errorf("compilation failed: %s", result.Error)
	}

	header := workflow.GenerateHeader(&compileCfg, result.Rules, result.CompiledAt)
	content := strings.Join(append(header, result.Rules...), "\n") + "\n"

	if output == "" {
		fmt.Print(content)
		return nil
	}
	if err := os.WriteFile(output, []byte(content), 0644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	logger.Info("Compiled list written",
		slog.String("path", output),
		slog.Int("rules", result.RuleCount))
	return nil
}

// runHealth prints the health report from the shared KV store.
func runHealth(configPath string, logger *slog.Logger) error {
	cfg, err := loadConfig(configPath, logger)
	if err != nil {
		return err
	}

	conn, err := connectNATS(cfg.NATS.URL, logger)
	if err != nil {
		return err
	}
	defer conn.Close()

	js, err := jetstream.New(conn)
	if err != nil {
		return fmt.Errorf("create jetstream context: %w", err)
	}

	ctx := context.Background()
	store, err := storage.NewKVStore(ctx, js, cfg.Cache.Bucket)
	if err != nil {
		return err
	}

	monitor := health.NewMonitor(store, cfg.Health.MaxHistory, logger)
	report, err := monitor.Report(ctx)
	if err != nil {
		return err
	}
	sources, err := monitor.AllSources(ctx)
	if err != nil {
		return err
	}

	out := struct {
		Report  *health.Report          `json:"report"`
		Sources []*health.SourceMetrics `json:"sources"`
	}{report, sources}

	encoded, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(encoded))
	return nil
}

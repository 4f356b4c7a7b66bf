package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/c360studio/launchmate/advisor"
	"github.com/c360studio/launchmate/api"
	"github.com/c360studio/launchmate/cache"
	"github.com/c360studio/launchmate/config"
	"github.com/c360studio/launchmate/insight"
	"github.com/c360studio/launchmate/lifecycle"
	"github.com/c360studio/launchmate/llm"
	"github.com/c360studio/launchmate/model"
	"github.com/c360studio/launchmate/phase"
	"github.com/c360studio/launchmate/storage"
	"github.com/c360studio/launchmate/storage/mongostore"
	"github.com/c360studio/launchmate/storage/sqlitestore"
	"github.com/c360studio/semstreams/component"
	"github.com/c360studio/semstreams/natsclient"

	// Register LLM providers via init()
	_ "github.com/c360studio/launchmate/llm/providers"
)

// App wires the configured components together.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	// NATS, only for the kv backend
	embeddedServer *server.Server
	natsClient     *natsclient.Client

	gw      storage.Gateway
	closers []func(context.Context) error

	metrics  *prometheus.Registry
	cache    *cache.Cache
	service  *lifecycle.Service
	models   *model.Registry
	llm      llm.Completer
	// insightLLM serves the backfill; it makes max_attempts calls per
	// endpoint instead of the client default.
	insightLLM llm.Completer
	backfill *insight.Backfiller
	trigger  *insight.Trigger
	advisor  *advisor.Advisor
}

// NewApp builds every component except the remote store, which Start
// connects.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{cfg: cfg, logger: logger, metrics: prometheus.NewRegistry()}
	a.metrics.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	models := model.NewDefaultRegistry()
	if cfg.Models.Path != "" {
		loaded, err := model.LoadFromFile(cfg.Models.Path)
		if err != nil {
			return nil, fmt.Errorf("load model registry: %w", err)
		}
		models = loaded
	}
	a.models = models
	a.llm = llm.NewClient(models, llm.WithLogger(logger))
	a.insightLLM = newInsightClient(models, cfg.Backfill, logger)
	return a, nil
}

func newInsightClient(models *model.Registry, cfg config.BackfillConfig, logger *slog.Logger) *llm.Client {
	retry := llm.SingleAttempt()
	if cfg.MaxAttempts > 1 {
		retry.MaxAttempts = cfg.MaxAttempts
	}
	return llm.NewClient(models, llm.WithLogger(logger), llm.WithRetryConfig(retry))
}

// Start connects the remote store and builds the services on top of it.
func (a *App) Start(ctx context.Context) error {
	gw, err := a.openGateway(ctx)
	if err != nil {
		return err
	}
	a.gw = gw
	return a.wire(gw)
}

// wire builds the cache, services and trigger around gw.
func (a *App) wire(gw storage.Gateway) error {
	phases := phase.Default()
	if a.cfg.Phases.File != "" {
		loaded, err := phase.LoadFile(a.cfg.Phases.File)
		if err != nil {
			return fmt.Errorf("load phases: %w", err)
		}
		phases = loaded
	}

	a.cache = cache.New(gw, cache.WithLogger(a.logger))
	a.service = lifecycle.NewService(a.cache, gw, phases,
		lifecycle.WithLogger(a.logger),
		lifecycle.WithMetrics(lifecycle.NewMetrics(a.metrics)),
		lifecycle.WithPushTimeout(a.cfg.Lifecycle.PushTimeout),
	)

	capability := model.ParseCapability(a.cfg.Backfill.Capability)
	a.backfill = insight.NewBackfiller(insight.NewLLMGenerator(a.insightLLM, capability), gw, a.cache,
		insight.WithLogger(a.logger),
		insight.WithMetrics(insight.NewMetrics(a.metrics)),
		insight.WithMinInsights(a.cfg.Backfill.MinInsights),
		insight.WithTimeout(a.cfg.Backfill.Timeout),
	)
	a.trigger = insight.NewTrigger(a.backfill)

	var opts []advisor.Option
	opts = append(opts, advisor.WithLogger(a.logger))
	if a.cfg.Models.Location != "" {
		opts = append(opts, advisor.WithLocation(a.cfg.Models.Location))
	}
	a.advisor = advisor.New(a.llm, opts...)
	return nil
}

func (a *App) openGateway(ctx context.Context) (storage.Gateway, error) {
	switch a.cfg.Store.Backend {
	case config.BackendMemory:
		a.logger.Warn("Using the in-memory store; projects are lost on exit")
		return storage.NewMemory(), nil

	case config.BackendKV:
		if err := a.startNATS(ctx); err != nil {
			return nil, fmt.Errorf("start NATS: %w", err)
		}
		js, err := a.natsClient.JetStream()
		if err != nil {
			return nil, fmt.Errorf("create JetStream context: %w", err)
		}
		return storage.NewKVStore(ctx, js,
			storage.WithBucket(a.cfg.Store.Bucket),
			storage.WithHistory(uint8(min(max(a.cfg.Store.History, 1), 64))),
		)

	case config.BackendMongo:
		s, err := mongostore.Connect(ctx, mongostore.Config{
			URI:        a.cfg.Mongo.URI,
			Database:   a.cfg.Mongo.Database,
			Collection: a.cfg.Mongo.Collection,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, s.Close)
		return s, nil

	case config.BackendSQLite:
		s, err := sqlitestore.Open(a.cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) error { return s.Close() })
		return s, nil
	}
	return nil, fmt.Errorf("unknown store backend %q", a.cfg.Store.Backend)
}

func (a *App) startNATS(ctx context.Context) error {
	url := a.cfg.NATS.URL
	if url == "" {
		ns, err := startEmbedded(a.cfg.NATS.StoreDir)
		if err != nil {
			return err
		}
		a.embeddedServer = ns
		url = ns.ClientURL()
		a.logger.Info("Started embedded NATS server", "url", url)
	}

	client, err := natsclient.NewClient(url,
		natsclient.WithName("launchmate"),
		natsclient.WithMaxReconnects(-1),
		natsclient.WithReconnectWait(time.Second),
	)
	if err != nil {
		return fmt.Errorf("create NATS client: %w", err)
	}
	if err := client.Connect(ctx); err != nil {
		return wrapNATSError(err, url)
	}

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.WaitForConnection(connCtx); err != nil {
		return wrapNATSError(err, url)
	}
	a.natsClient = client
	a.logger.Info("Connected to NATS", "url", url)
	return nil
}

func startEmbedded(storeDir string) (*server.Server, error) {
	if storeDir == "" {
		dir, err := os.MkdirTemp("", "launchmate-nats-*")
		if err != nil {
			return nil, fmt.Errorf("create JetStream dir: %w", err)
		}
		storeDir = dir
	}
	ns, err := server.NewServer(&server.Options{
		Port:      -1,
		JetStream: true,
		StoreDir:  storeDir,
		NoLog:     true,
		NoSigs:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedded NATS server: %w", err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		return nil, errors.New("embedded NATS server failed to start")
	}
	return ns, nil
}

// wrapNATSError adds guidance when the server cannot be reached.
func wrapNATSError(err error, url string) error {
	errStr := err.Error()
	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "no servers available") ||
		strings.Contains(errStr, "timeout") {
		return fmt.Errorf(`NATS connection failed: %w

NATS is not running at %s.

Set nats.url (or NATS_URL) to a running server, or enable nats.embedded.`, err, url)
	}
	return fmt.Errorf("NATS connection failed: %w", err)
}

// Load reads the projects visible to the configured identity.
func (a *App) Load(ctx context.Context) error {
	if a.cfg.Identity == "" {
		return errors.New("identity is not set (use --identity, identity: in the config, or LAUNCHMATE_IDENTITY)")
	}
	_, err := a.service.LoadProjects(ctx, a.cfg.Identity)
	return err
}

// Serve runs the HTTP API component until ctx ends.
func (a *App) Serve(ctx context.Context) error {
	srv := api.NewServer(a.service, a.trigger,
		api.WithLogger(a.logger),
		api.WithAdvisor(a.advisor),
		api.WithGatherer(a.metrics),
	)

	registry := component.NewRegistry()
	if err := api.Register(registry, srv); err != nil {
		return fmt.Errorf("register %s: %w", api.ComponentName, err)
	}
	a.logger.Debug("Component factories registered", "count", len(registry.ListFactories()))

	raw, err := json.Marshal(api.ComponentConfig{Addr: a.cfg.HTTP.Addr})
	if err != nil {
		return fmt.Errorf("marshal %s config: %w", api.ComponentName, err)
	}
	comp, err := api.NewComponent(raw, component.Dependencies{Logger: a.logger}, srv)
	if err != nil {
		return fmt.Errorf("create %s: %w", api.ComponentName, err)
	}
	if err := comp.Initialize(); err != nil {
		return fmt.Errorf("initialize %s: %w", api.ComponentName, err)
	}
	if err := comp.Start(ctx); err != nil {
		return fmt.Errorf("start %s: %w", api.ComponentName, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		select {
		case err, failed := <-comp.Err():
			if failed {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		case <-gctx.Done():
			return nil
		}
	})
	g.Go(func() error {
		<-gctx.Done()
		return comp.Stop(10 * time.Second)
	})
	return g.Wait()
}

// Shutdown waits for pending remote writes and closes connections.
func (a *App) Shutdown(timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if a.service != nil {
		if err := a.service.Flush(ctx); err != nil {
			a.logger.Warn("Pending remote writes not finished", "error", err)
		}
	}
	if a.cache != nil {
		a.cache.Close()
	}
	for _, c := range a.closers {
		if err := c(ctx); err != nil {
			a.logger.Warn("Close store", "error", err)
		}
	}
	if a.natsClient != nil {
		if err := a.natsClient.Close(ctx); err != nil {
			a.logger.Warn("Close NATS client", "error", err)
		}
	}
	if a.embeddedServer != nil {
		a.embeddedServer.Shutdown()
		a.embeddedServer.WaitForShutdown()
	}
}

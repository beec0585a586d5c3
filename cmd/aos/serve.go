package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/lebron1212/aos-dev-team-sub000/internal/api"
	"github.com/lebron1212/aos-dev-team-sub000/internal/bus"
	"github.com/lebron1212/aos-dev-team-sub000/internal/clarify"
	"github.com/lebron1212/aos-dev-team-sub000/internal/command"
	"github.com/lebron1212/aos-dev-team-sub000/internal/config"
	"github.com/lebron1212/aos-dev-team-sub000/internal/conversation"
	"github.com/lebron1212/aos-dev-team-sub000/internal/delegation"
	"github.com/lebron1212/aos-dev-team-sub000/internal/feedback"
	"github.com/lebron1212/aos-dev-team-sub000/internal/gateway"
	"github.com/lebron1212/aos-dev-team-sub000/internal/intent"
	"github.com/lebron1212/aos-dev-team-sub000/internal/lineage"
	"github.com/lebron1212/aos-dev-team-sub000/internal/oracle"
	"github.com/lebron1212/aos-dev-team-sub000/internal/orchestrator"
	"github.com/lebron1212/aos-dev-team-sub000/internal/provider"
	"github.com/lebron1212/aos-dev-team-sub000/internal/store"
	"github.com/lebron1212/aos-dev-team-sub000/internal/workitem"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the orchestration service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, path, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := newLogger(cfg.Server.LogLevel)
			defer logger.Sync()
			logger.Info("config loaded", zap.String("path", path))

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}
}

// backends are the optional infrastructure connections. Each one is nil when
// unconfigured or unreachable.
type backends struct {
	pg    *store.Store
	bus   *bus.Bus
	graph *lineage.Graph
}

func connectBackends(ctx context.Context, cfg *config.Config, logger *zap.Logger) *backends {
	b := &backends{}

	if dsn := cfg.Database.Postgres.DSN; dsn != "" {
		pg, err := store.New(ctx, dsn, logger)
		if err != nil {
			logger.Warn("postgres unavailable, using file stores", zap.Error(err))
		} else if err := pg.Migrate(ctx, cfg.Database.Postgres.Migrations); err != nil {
			logger.Warn("postgres migration failed, using file stores", zap.Error(err))
			pg.Close()
		} else {
			b.pg = pg
		}
	}

	if url := cfg.Database.Redis.URL; url != "" {
		eb, err := bus.New(ctx, url, "aos", logger)
		if err != nil {
			logger.Warn("redis unavailable, events stay local", zap.Error(err))
		} else {
			b.bus = eb
		}
	}

	if uri := cfg.Database.Neo4j.URI; uri != "" {
		g, err := lineage.New(uri, cfg.Database.Neo4j.User, cfg.Database.Neo4j.Password, logger)
		if err == nil {
			err = g.Ping(ctx)
		}
		if err != nil {
			logger.Warn("neo4j unavailable, lineage disabled", zap.Error(err))
		} else {
			b.graph = g
		}
	}
	return b
}

func (b *backends) close(ctx context.Context) {
	if b.graph != nil {
		_ = b.graph.Close(ctx)
	}
	if b.bus != nil {
		_ = b.bus.Close()
	}
	if b.pg != nil {
		b.pg.Close()
	}
}

func buildRouter(ctx context.Context, cfg *config.Config, logger *zap.Logger) *provider.Router {
	router := provider.NewRouter(logger)
	for _, pc := range cfg.Providers {
		if pc.APIKey == "" {
			logger.Info("provider has no api key, skipping", zap.String("id", pc.ID))
			continue
		}
		provCfg := provider.ProviderConfig{
			ID: pc.ID, Type: pc.Type, Name: pc.Name,
			Endpoint: pc.Endpoint, APIKey: pc.APIKey,
			Models: pc.Models, Extra: pc.Extra,
		}
		switch pc.Type {
		case "openai":
			router.Register(provider.NewOpenAIProvider(provCfg, logger))
		case "anthropic":
			router.Register(provider.NewAnthropicProvider(provCfg, logger))
		case "gemini":
			p, err := provider.NewGeminiProvider(ctx, provCfg, logger)
			if err != nil {
				logger.Warn("skipping gemini provider", zap.String("id", pc.ID), zap.Error(err))
				continue
			}
			router.Register(p)
		default:
			logger.Warn("unknown provider type", zap.String("id", pc.ID), zap.String("type", pc.Type))
		}
	}
	for purpose, id := range cfg.Oracle.Bindings {
		router.Bind(purpose, id)
	}
	for purpose, ids := range cfg.Oracle.Fallbacks {
		router.SetFallbacks(purpose, ids)
	}
	return router
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	logger.Info("starting aos")

	b := connectBackends(ctx, cfg, logger)
	defer b.close(context.Background())

	var orc oracle.Oracle = oracle.Unavailable
	if router := buildRouter(ctx, cfg, logger); router.Len() > 0 {
		go func() {
			hctx, cancel := context.WithTimeout(ctx, 15*time.Second)
			defer cancel()
			for id, err := range router.Health(hctx) {
				logger.Warn("provider health check failed", zap.String("provider", id), zap.Error(err))
			}
		}()
		orc = oracle.NewClient(router, oracle.Options{
			Model:         cfg.Oracle.Model,
			Timeout:       cfg.OracleTimeout(),
			MaxConcurrent: int64(cfg.Oracle.MaxConcurrent),
		}, logger)
	} else {
		logger.Warn("no providers configured, running on keyword fallbacks only")
	}

	gw := gateway.NewGateway(logger)
	restGW := gateway.NewRESTAdapter(logger)
	gw.Register(restGW)
	if sc := cfg.Gateway.Slack; sc.Enabled && sc.BotToken != "" {
		gw.Register(gateway.NewSlackAdapter(sc.BotToken, sc.AppToken, logger))
	}
	if dc := cfg.Gateway.Discord; dc.Enabled && dc.BotToken != "" {
		gw.Register(gateway.NewDiscordAdapter(dc.BotToken, logger))
	}

	// Work items: thread mirror first, then durable sinks.
	mirror := workitem.NewThreadMirror(gw, logger)
	observers := []workitem.Observer{mirror}
	if b.pg != nil {
		observers = append(observers, b.pg.AuditObserver())
	}
	if b.bus != nil {
		observers = append(observers, bus.NewWorkItemEvents(b.bus))
	}
	if b.graph != nil {
		observers = append(observers, b.graph)
	}
	events := workitem.NewDispatcher(cfg.Orchestration.MirrorWorkers, logger, observers...)
	items := workitem.NewRegistry(events, logger)
	mirror.SetRegistry(items)
	if b.pg != nil {
		restored, err := b.pg.LoadWorkItems(ctx)
		if err != nil {
			logger.Warn("could not restore work items", zap.Error(err))
		}
		for _, w := range restored {
			items.Restore(w)
		}
		logger.Info("work items restored", zap.Int("count", len(restored)))
	}

	// Specialists and delegation.
	var specStore delegation.Store = delegation.NewFileStore(cfg.Specialists.File)
	if b.pg != nil {
		specStore = b.pg.Specialists()
	}
	specialists := delegation.NewRegistry(specStore, logger)
	specialists.SetDefaultPlatform(cfg.Specialists.DefaultPlatform)
	if err := specialists.Load(ctx); err != nil {
		logger.Warn("could not load specialists", zap.Error(err))
	}
	forwarders := []delegation.Forwarder{delegation.NewChannelForwarder(gw)}
	if b.bus != nil {
		forwarders = append(forwarders, bus.NewForwarder(b.bus))
	}
	resolver := delegation.NewResolver(specialists, orc, logger, forwarders...)

	// Feedback.
	sinks := feedback.MultiStore{feedback.NewLogStore(logger)}
	if b.pg != nil {
		sinks = append(sinks, b.pg)
	}
	if b.bus != nil {
		sinks = append(sinks, bus.NewFeedbackStream(b.bus))
	}
	correlator := feedback.NewCorrelator(
		feedback.NewCache(cfg.Orchestration.CorrelationCapacity), sinks, orc, logger)

	contexts := conversation.NewStore(conversation.Options{
		TTL:          cfg.ContextTTL(),
		HistoryTurns: cfg.Orchestration.HistoryTurns,
		RecentItems:  cfg.Orchestration.RecentWorkItems,
	}, logger)

	commands := command.NewRegistry()
	command.RegisterBuiltins(commands, items, gw)
	command.RegisterSpecialistCommands(commands, specialists, resolver)

	o := orchestrator.New(orchestrator.Deps{
		Classifier: intent.NewChain(cfg.Orchestration.ClassifierFloor, logger,
			intent.NewOracleClassifier(orc), intent.KeywordClassifier{}),
		Clarifier:  clarify.New(orc, cfg.Orchestration.ClarifyMaxRounds, logger),
		Contexts:   contexts,
		WorkItems:  items,
		Delegation: resolver,
		Feedback:   correlator,
		Oracle:     orc,
		Transport:  gw,
		Commands:   commands,
		Admins:     cfg.Admins,
		Logger:     logger,
	})

	gw.SetHandler(func(msg *gateway.InboundMessage) { o.Handle(ctx, msg) })
	gw.SetReactionHandler(func(evt *gateway.ReactionEvent) { o.HandleReaction(ctx, evt) })

	var lin api.LineageReader
	if b.graph != nil {
		lin = b.graph
	}
	handler := api.NewHandler(items, resolver, gw, restGW, lin, logger)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	events.Start(gctx)

	g.Go(func() error {
		if err := gw.ConnectAll(gctx); err != nil {
			logger.Warn("some gateway adapters failed to connect", zap.Error(err))
		}
		return nil
	})
	g.Go(func() error {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if n := contexts.Sweep(); n > 0 {
					logger.Debug("expired conversation contexts", zap.Int("count", n))
				}
			}
		}
	})
	g.Go(func() error {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = gw.Close()
		return nil
	})

	err := g.Wait()
	o.Wait()
	events.Close()
	logger.Info("aos stopped")
	return err
}

// Command paper-tiger runs the stateful payments-API mock of spec.md §1:
// a single process exposing the generic resource dispatcher over HTTP,
// a virtual clock, a chaos coordinator, and a billing poll loop.
// Bootstrap is grounded on the teacher's pkg/cedros/app.go (NewApp's
// collaborator wiring order) and internal/lifecycle.Manager (LIFO
// graceful shutdown of every background goroutine this process owns).
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/EnaiaInc/paper-tiger/internal/billing"
	"github.com/EnaiaInc/paper-tiger/internal/chaos"
	"github.com/EnaiaInc/paper-tiger/internal/clock"
	"github.com/EnaiaInc/paper-tiger/internal/config"
	"github.com/EnaiaInc/paper-tiger/internal/events"
	"github.com/EnaiaInc/paper-tiger/internal/httpserver"
	"github.com/EnaiaInc/paper-tiger/internal/hydrate"
	"github.com/EnaiaInc/paper-tiger/internal/idempotency"
	"github.com/EnaiaInc/paper-tiger/internal/lifecycle"
	applogger "github.com/EnaiaInc/paper-tiger/internal/logger"
	"github.com/EnaiaInc/paper-tiger/internal/metrics"
	"github.com/EnaiaInc/paper-tiger/internal/resource"
	"github.com/EnaiaInc/paper-tiger/internal/telemetry"
	"github.com/EnaiaInc/paper-tiger/internal/webhooks"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (optional)")
	flag.Parse()

	// Best-effort local .env load, same as the teacher's cmd bootstrap;
	// a missing file is expected in production and not an error.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("config.load")
	}

	port, err := config.ResolvePort(cfg, os.LookupEnv)
	if err != nil {
		log.Fatal().Err(err).Msg("config.resolve_port")
	}
	cfg.Server.Port = port

	logger := applogger.New(applogger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Service:     cfg.Logging.Service,
		Version:     cfg.Logging.Version,
		Environment: cfg.Logging.Environment,
	})

	lm := lifecycle.NewManager()

	clk := clock.New()
	clk.SetMode(clock.Mode(cfg.Clock.Mode), cfg.Clock.Multiplier)

	catalog := resource.BuildCatalog(clk)
	hydrator := hydrate.New(catalog.Lookup)
	bus := telemetry.New(logger)
	lm.RegisterFunc("telemetry_bus", func() error { bus.Close(); return nil })

	dispatcher := resource.NewDispatcher(catalog, hydrator, bus, clk)

	metricsCollector := metrics.New(prometheus.DefaultRegisterer)

	chaosCoord := chaos.New()
	chaosCoord.SetMetrics(metricsCollector)
	eventChaos := chaos.NewEventChaos(chaosCoord)
	eventChaos.SetMetrics(metricsCollector)

	registry := webhooks.NewRegistry(clk)
	pipeline := webhooks.NewPipeline(registry, clk, eventChaos, logger, metricsCollector, cfg.Webhook.WorkerCount)
	lm.RegisterFunc("webhook_pipeline", func() error { pipeline.Close(); return nil })

	materializer := events.New(clk, pipeline.HandleEvent)
	bus.Subscribe(materializer.Subscriber())

	billingEngine := billing.NewEngine(catalog, clk, chaosCoord, bus, logger, metricsCollector, cfg.Billing.PollDisabled)
	bus.Subscribe(billingEngine.Subscriber())
	billingEngine.StartPolling()
	lm.RegisterFunc("billing_engine", func() error { billingEngine.Stop(); return nil })

	idempStore := idempotency.New(clk)
	idempStore.StartSweeping()
	lm.RegisterFunc("idempotency_sweeper", func() error { idempStore.Stop(); return nil })

	server := httpserver.New(httpserver.Deps{
		Config:       cfg,
		Catalog:      catalog,
		Dispatcher:   dispatcher,
		Bus:          bus,
		Idempotency:  idempStore,
		Webhooks:     registry,
		Pipeline:     pipeline,
		Materializer: materializer,
		Chaos:        chaosCoord,
		EventChaos:   eventChaos,
		Clock:        clk,
		Billing:      billingEngine,
		Metrics:      metricsCollector,
		Logger:       logger,
	})
	lm.RegisterFunc("http_server", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(ctx)
	})

	if cfg.Server.Start || cfg.Server.AutoStart {
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatal().Err(err).Msg("httpserver.listen_and_serve")
			}
		}()
	} else {
		log.Info().Msg("httpserver.start_disabled")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("shutdown.signal_received")
	if err := lm.Close(); err != nil {
		log.Error().Err(err).Msg("shutdown.errors")
	}
}

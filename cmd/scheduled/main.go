// Command scheduled runs the relay in front of the upstream schedule API.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kntu-schedule/pkg/api"
	"kntu-schedule/pkg/logging"
	"kntu-schedule/pkg/metrics"
	memorycollector "kntu-schedule/pkg/metrics/memory"
	promcollector "kntu-schedule/pkg/metrics/prometheus"
	"kntu-schedule/pkg/relay"
	"kntu-schedule/pkg/resilience"

	"github.com/caarlos0/env/v11"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

type settings struct {
	Addr             string        `env:"ADDR" envDefault:":8080"`
	Upstream         string        `env:"UPSTREAM_BASE_URL" envDefault:"https://sheduleapi.kntu.pp.ua/api"`
	UpstreamTimeout  time.Duration `env:"UPSTREAM_TIMEOUT" envDefault:"10s"`
	BreakerTripAfter uint32        `env:"BREAKER_TRIP_AFTER" envDefault:"5"`
	BreakerCooldown  time.Duration `env:"BREAKER_COOLDOWN" envDefault:"30s"`
	MetricsNamespace string        `env:"METRICS_NAMESPACE" envDefault:"kntu_schedule"`
	ShutdownTimeout  time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

func main() {
	logger, err := logging.NewLoggerFromEnv()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	var cfg settings
	if err := env.Parse(&cfg); err != nil {
		logger.Fatal("invalid environment", zap.Error(err))
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	prom := promcollector.NewCollector(cfg.MetricsNamespace)
	if err := prom.Register(registry); err != nil {
		logger.Fatal("failed to register metrics", zap.Error(err))
	}
	mem := memorycollector.NewCollector()
	collector := metrics.NewMulti(prom, mem)

	relayConfig := relay.DefaultConfig()
	relayConfig.Upstream = cfg.Upstream
	relayConfig.Timeout = cfg.UpstreamTimeout
	relayConfig.Breaker = resilience.DefaultConfig("relay-upstream").
		WithTripAfter(cfg.BreakerTripAfter).
		WithCircuitBreakerTimeout(cfg.BreakerCooldown)

	handler := relay.NewHandler(relayConfig, &http.Client{Timeout: cfg.UpstreamTimeout}, logger, collector)

	serverConfig := api.DefaultServerConfig()
	serverConfig.Address = cfg.Addr
	if serverConfig.WriteTimeout <= cfg.UpstreamTimeout {
		serverConfig.WriteTimeout = cfg.UpstreamTimeout + 5*time.Second
	}

	server, err := api.NewServer(handler, serverConfig,
		api.WithLogger(logger),
		api.WithRegistry(registry),
		api.WithSnapshot(mem.Snapshot),
	)
	if err != nil {
		logger.Fatal("failed to create server", zap.Error(err))
	}

	if err := server.Start(); err != nil {
		logger.Fatal("failed to start server", zap.Error(err))
	}
	logger.Info("relay started",
		zap.String("addr", cfg.Addr),
		zap.String("upstream", cfg.Upstream),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Stop(ctx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Armour007/fast-tasks/internal/api"
	"github.com/Armour007/fast-tasks/internal/config"
	"github.com/Armour007/fast-tasks/internal/ipc"
	"github.com/Armour007/fast-tasks/internal/mesh"
	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// The api process serves HTTP and forwards work to the service over the bus.
func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	cfg.SetupLogging()
	log := logrus.WithField("process", "api")
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	serviceName := ""
	if shutdown, ok := api.SetupOTel(cfg.OTelEnabled, os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"), "fast-tasks-api"); ok {
		defer shutdown(context.Background())
		serviceName = "fast-tasks-api"
	}

	if err := cfg.CheckSharedBus(); err != nil {
		log.WithError(err).Fatal("invalid bus backend")
	}
	bus, err := mesh.Open(cfg.Bus)
	if err != nil {
		log.WithError(err).Fatal("open bus")
	}
	defer bus.Close()

	client, err := ipc.NewClient(bus,
		ipc.WithCallTimeout(cfg.CallTimeout),
		ipc.WithSweepInterval(cfg.SweepInterval),
	)
	if err != nil {
		log.WithError(err).Fatal("start ipc client")
	}
	defer client.Close()

	stats, err := ipc.NewStatsReporter(client, cfg.StatsSchedule, nil)
	if err != nil {
		log.WithError(err).Fatal("stats reporter")
	}
	stats.Start()
	defer stats.Stop()

	var rl *redis.Client
	if cfg.Bus.RedisAddr != "" {
		rl = redis.NewClient(&redis.Options{Addr: cfg.Bus.RedisAddr, Password: cfg.Bus.RedisPassword, DB: cfg.Bus.RedisDB})
		defer rl.Close()
	}

	handlers := api.NewHandlers(api.NewIPCBackend(client, bus, cfg.CallTimeout,
		api.WithBreaker(cfg.BreakerThreshold, cfg.BreakerOpenFor),
	))
	router := api.NewRouter(handlers, api.RouterConfig{
		JwtSecret:      cfg.JwtSecret,
		AuthDisabled:   cfg.AuthDisabled,
		CORSOrigins:    cfg.CORSOrigins,
		LoginRPM:       cfg.LoginRPM,
		RateLimitRedis: rl,
		ServiceName:    serviceName,
	})
	if cfg.AuthDisabled {
		log.Warn("AUTH_DISABLED is set, task routes accept unauthenticated requests")
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.WithField("port", cfg.Port).Info("starting api server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server failed")
		}
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	log.Info("signal received, shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("graceful shutdown failed")
	}
}

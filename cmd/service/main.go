package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	database "github.com/Armour007/fast-tasks/internal"
	"github.com/Armour007/fast-tasks/internal/api"
	"github.com/Armour007/fast-tasks/internal/auth"
	"github.com/Armour007/fast-tasks/internal/config"
	"github.com/Armour007/fast-tasks/internal/ipc"
	"github.com/Armour007/fast-tasks/internal/mesh"
	"github.com/Armour007/fast-tasks/internal/migrate"
	"github.com/Armour007/fast-tasks/internal/tasks"
	"github.com/sirupsen/logrus"
)

// The service process owns the database and answers bus requests.
func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	cfg.SetupLogging()
	log := logrus.WithField("process", "service")

	if shutdown, ok := api.SetupOTel(cfg.OTelEnabled, os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"), "fast-tasks-service"); ok {
		defer shutdown(context.Background())
	}

	if err := cfg.CheckSharedBus(); err != nil {
		log.WithError(err).Fatal("invalid bus backend")
	}

	db, err := database.Connect(cfg.DB)
	if err != nil {
		log.WithError(err).Fatal("connect database")
	}
	defer db.Close()
	log.Info("connected to the database")

	if cfg.MigrateOnStart {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		applied, err := migrate.New(db, cfg.MigrationsDir).Up(ctx)
		cancel()
		if err != nil {
			log.WithError(err).Fatal("apply migrations")
		}
		log.WithField("applied", applied).Info("migrations up to date")
	}

	bus, err := mesh.Open(cfg.Bus)
	if err != nil {
		log.WithError(err).Fatal("open bus")
	}
	defer bus.Close()

	d := ipc.NewDispatcher(ipc.WithMaxInFlight(cfg.MaxInFlight))
	tasks.RegisterHandlers(d, tasks.NewSQLStore(db))
	auth.RegisterHandlers(d, auth.NewSQLProvider(db, cfg.JwtSecret, cfg.JwtTTL))
	if err := d.Start(bus); err != nil {
		log.WithError(err).Fatal("start dispatcher")
	}
	log.WithFields(logrus.Fields{
		"backend": cfg.Bus.Backend,
		"codec":   cfg.Bus.Codec,
		"topics":  d.Topics(),
	}).Info("service listening on bus")

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	log.Info("signal received, draining handlers...")
	d.Stop()
	log.Info("service stopped")
}

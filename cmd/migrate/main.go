package main

import (
	"context"
	"flag"
	"path/filepath"

	database "github.com/Armour007/fast-tasks/internal"
	"github.com/Armour007/fast-tasks/internal/config"
	"github.com/Armour007/fast-tasks/internal/migrate"
	"github.com/sirupsen/logrus"
)

func main() {
	dir := flag.String("dir", filepath.Join("db", "migrations"), "directory holding versioned .sql files")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	cfg.SetupLogging()

	db, err := database.Connect(cfg.DB)
	if err != nil {
		logrus.WithError(err).Fatal("connect database")
	}
	defer db.Close()

	ran, err := migrate.New(db, *dir).Up(context.Background())
	if err != nil {
		logrus.WithError(err).Fatal("migrations failed")
	}
	logrus.WithField("applied", len(ran)).Info("migrations applied successfully")
}

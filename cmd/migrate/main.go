package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/richxcame/ridecore/pkg/config"
	"github.com/richxcame/ridecore/pkg/database"
	"github.com/richxcame/ridecore/pkg/logger"
	"go.uber.org/zap"
)

const serviceName = "ridecore-migrate"

func main() {
	steps := flag.Int("steps", 1, "number of migrations to roll back with down")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: migrate [-steps n] up|down|version\n")
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(serviceName)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	if err := logger.Init(cfg.Server.Environment, serviceName); err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	m, err := database.NewMigrator(&cfg.Database)
	if err != nil {
		logger.Fatal("Failed to open migrator", zap.Error(err))
	}
	defer m.Close()

	switch cmd := flag.Arg(0); cmd {
	case "up":
		err = m.Up()
	case "down":
		err = m.Down(*steps)
	case "version":
		var (
			v     uint
			dirty bool
		)
		v, dirty, err = m.Version()
		if err == nil {
			logger.Info("Schema version", zap.Uint("version", v), zap.Bool("dirty", dirty))
		}
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		logger.Fatal("Migration failed", zap.Error(err))
	}
}

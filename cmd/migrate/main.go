// Package main applies or rolls back the embedded schema migrations.
//
// Usage: migrate [up|down|version]
package main

import (
	"flag"
	"fmt"
	"os"

	"stockledger/internal/infrastructure/config"
	"stockledger/internal/infrastructure/storage/postgres/migrations"
	"stockledger/pkg/logger"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: migrate [up|down|version]")
	}
	flag.Parse()

	command := "up"
	if flag.NArg() > 0 {
		command = flag.Arg(0)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{Level: cfg.Log.Level, Development: true})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	if cfg.UseMemory() {
		log.Fatal("database.url is required")
	}

	m, err := migrations.New(cfg.Database.URL, log)
	if err != nil {
		log.Fatalw("failed to open migrations", "error", err)
	}
	defer func() { _ = m.Close() }()

	switch command {
	case "up":
		err = m.Up()
	case "down":
		err = m.Down()
	case "version":
		var (
			version uint
			dirty   bool
		)
		version, dirty, err = m.Version()
		if err == nil {
			log.Infow("schema version", "version", version, "dirty", dirty)
		}
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalw("migration failed", "command", command, "error", err)
	}
}

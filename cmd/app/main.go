package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"RoundPull/internal/di"
	"RoundPull/pkg/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	check := flag.Bool("check", false, "validate the config and exit")
	flag.Parse()

	if err := run(*configPath, *check); err != nil {
		log.Printf("roundpull: %v", err)
		os.Exit(1)
	}
}

func run(configPath string, check bool) error {
	cfg, err := config.LoadWithEnv(configPath)
	if err != nil {
		return fmt.Errorf("config load failed: %w", err)
	}
	if check {
		fmt.Printf("config ok: env=%s backend=%s ledger=%s feed=%s\n",
			cfg.Environment, cfg.Backend.Type, cfg.Ledger.Store, cfg.Feed.URL)
		return nil
	}

	app, err := di.InitializeApp(cfg)
	if err != nil {
		return fmt.Errorf("app initialization failed: %w", err)
	}
	return app.Run()
}

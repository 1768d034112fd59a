package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"DualSignal/internal/di"
	"DualSignal/pkg/config"
	"DualSignal/pkg/server"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	mode := flag.String("mode", server.ModeAll, "aggregator | compute | learning | api | scheduler | all")
	once := flag.Bool("once", false, "run a single compute or learning invocation and exit")
	flag.Parse()

	if err := run(*configPath, *mode, *once); err != nil {
		log.Printf("app error: %v", err)
		os.Exit(1)
	}
}

func run(configPath, mode string, once bool) error {
	cfg, err := config.LoadWithEnv(configPath)
	if err != nil {
		return fmt.Errorf("config load: %w", err)
	}

	app, cleanup, err := di.InitializeApp(cfg)
	if err != nil {
		return fmt.Errorf("app initialization: %w", err)
	}
	defer cleanup()

	return app.Run(mode, once)
}

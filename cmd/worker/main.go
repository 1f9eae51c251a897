package main

import (
	"log"

	"github.com/aussiebroadwan/starter/internal/worker/app"
)

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	application, err := app.New(cfg)
	if err != nil {
		log.Fatalf("failed to initialize worker: %v", err)
	}

	if err := application.Run(); err != nil {
		log.Fatalf("worker error: %v", err)
	}
}

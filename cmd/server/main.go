package main

import (
	"log"
	"time"

	"github.com/AoWangg/mrra/internal/agent"
	"github.com/AoWangg/mrra/internal/api"
	"github.com/AoWangg/mrra/internal/cache"
	"github.com/AoWangg/mrra/internal/config"
	"github.com/AoWangg/mrra/internal/llm"
	"github.com/AoWangg/mrra/internal/service"
)

func main() {
	cfg := config.Load()

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		log.Fatalf("Invalid timezone %q: %v", cfg.Timezone, err)
	}

	store, err := cache.Open(cfg.CachePath)
	if err != nil {
		log.Fatal("Failed to open artifact cache:", err)
	}
	defer store.Close()

	var client llm.Client
	if cfg.APIKey != "" {
		client, err = llm.NewOpenAIClient(llm.OpenAIConfig{
			APIKey:      cfg.APIKey,
			Model:       cfg.APIModel,
			BaseURL:     cfg.APIBaseURL,
			Temperature: float32(cfg.Temperature),
		})
		if err != nil {
			log.Fatal("Failed to create model client:", err)
		}
	} else {
		log.Printf("No MRRA_API_KEY set; purposes are heuristic-only and /predict is disabled")
	}

	opts := service.DefaultOptions()
	opts.Location = loc
	opts.AssignConcurrency = cfg.AssignConcurrency
	opts.AggregatorConfig = agent.Config{
		MaxRound:    cfg.MaxRound,
		SubAgents:   agent.DefaultSubAgents(),
		CallTimeout: 30 * time.Second,
	}

	svc := service.NewPredictionService(store, client, opts)
	router := api.SetupRouter(cfg, svc, loc)

	log.Printf("Server starting on port %s", cfg.Port)
	if err := router.Run(cfg.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}

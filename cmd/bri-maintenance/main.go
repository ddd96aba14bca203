// Command bri-maintenance runs the periodic memory maintenance sweeps:
// confidence decay, relationship graph building, and stale-memory cleanup.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/scrypster/bri/internal/config"
	"github.com/scrypster/bri/internal/embedding"
	"github.com/scrypster/bri/internal/engine"
	"github.com/scrypster/bri/internal/llm"
	"github.com/scrypster/bri/internal/maintenance"
	"github.com/scrypster/bri/internal/storage"
	"github.com/scrypster/bri/internal/storage/postgres"
	"github.com/scrypster/bri/internal/storage/sqlite"
)

func main() {
	runOnce := flag.Bool("once", false, "run one sweep immediately and exit")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("main: skipping .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("main: load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("main: %v", err)
	}

	store, err := openStore(cfg)
	if err != nil {
		log.Fatalf("main: open storage: %v", err)
	}

	embedder, err := embedding.NewCachedGenerator(
		embedding.NewOpenAIClient(embedding.OpenAIConfig{
			APIKey:  cfg.OpenAI.APIKey,
			BaseURL: cfg.OpenAI.BaseURL,
			Model:   cfg.OpenAI.EmbeddingModel,
			Timeout: cfg.OpenAI.Timeout,
		}),
		cfg.Engine.EmbeddingCacheSize,
	)
	if err != nil {
		log.Fatalf("main: embedding cache: %v", err)
	}

	generator := llm.NewOpenAIClient(llm.OpenAIConfig{
		APIKey:  cfg.OpenAI.APIKey,
		BaseURL: cfg.OpenAI.BaseURL,
		Model:   cfg.OpenAI.ChatModel,
		Timeout: cfg.OpenAI.Timeout,
	})

	eng, err := engine.New(store, embedder, generator, engine.Config{
		BotName:       cfg.Engine.BotName,
		TaskQueueSize: cfg.Engine.TaskQueueSize,
		TaskWorkers:   cfg.Engine.TaskWorkers,
		RetrieveLimit: cfg.Engine.RetrieveLimit,
	})
	if err != nil {
		log.Fatalf("main: build engine: %v", err)
	}
	if err := eng.Start(); err != nil {
		log.Fatalf("main: start engine: %v", err)
	}

	sweeper := maintenance.NewSweeper(store, eng, maintenance.Config{
		ActivityWindow:  cfg.Maintenance.ActivityWindow,
		ScopesPerSecond: cfg.Maintenance.ScopesPerSecond,
	})

	if *runOnce {
		ctx := context.Background()
		if err := sweeper.SweepDecay(ctx); err != nil {
			log.Printf("main: decay sweep failed: %v", err)
		}
		if err := sweeper.SweepTemporal(ctx); err != nil {
			log.Printf("main: temporal sweep failed: %v", err)
		}
		shutdown(eng)
		return
	}

	scheduler, err := maintenance.NewScheduler(sweeper, cfg.Maintenance.DecayInterval, cfg.Maintenance.TemporalInterval)
	if err != nil {
		log.Fatalf("main: build scheduler: %v", err)
	}
	scheduler.Start()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	scheduler.Stop()
	shutdown(eng)
}

func openStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.Engine {
	case "sqlite":
		return sqlite.New(cfg.Storage.SQLitePath)
	default:
		return postgres.New(cfg.Storage.PostgresDSN)
	}
}

func shutdown(eng *engine.Engine) {
	if err := eng.Shutdown(); err != nil {
		log.Printf("main: shutdown: %v", err)
	}
}

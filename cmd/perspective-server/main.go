package main

import (
	"context"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/scrypster/perspective/internal/api"
	"github.com/scrypster/perspective/internal/config"
	"github.com/scrypster/perspective/internal/engine"
	"github.com/scrypster/perspective/internal/llm"
	"github.com/scrypster/perspective/internal/router"
	"github.com/scrypster/perspective/internal/server"
	"github.com/scrypster/perspective/internal/storage"
	"github.com/scrypster/perspective/internal/storage/postgres"
	"github.com/scrypster/perspective/internal/storage/sqlite"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	kv, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer kv.Close()

	generator, err := llm.NewBatchGenerator(cfg.LLM)
	if err != nil {
		log.Fatalf("Failed to initialize generation provider: %v", err)
	}

	weights := router.DefaultWeights()
	if cfg.Router.WeightsPath != "" {
		if err := weights.LoadFile(cfg.Router.WeightsPath); err != nil {
			log.Printf("WARNING: failed to load weight overrides from %s: %v", cfg.Router.WeightsPath, err)
		}
	}

	eng := engine.New(cfg, kv, generator, weights, globalRand{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Hot-reload weight overrides when the file changes.
	if cfg.Router.WeightsPath != "" {
		watcher := config.NewFileWatcher(cfg.Router.WeightsPath, func(path string) {
			if err := weights.LoadFile(path); err != nil {
				log.Printf("WARNING: failed to reload weight overrides from %s: %v", path, err)
				return
			}
			log.Printf("Reloaded weight overrides from %s", path)
		})
		if err := watcher.Start(); err != nil {
			log.Printf("WARNING: weight file watcher failed to start: %v", err)
		} else {
			defer watcher.Stop()
		}
	}

	hub := api.NewHub()
	eng.SetNotify(hub.BroadcastSnippet)
	eng.Start()

	addr, err := server.Start(ctx, cfg, eng, hub, generator.GetModel())
	if err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
	log.Printf("Perspective engine running at http://%s", addr)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down gracefully...")
	eng.Shutdown()
	cancel()
	time.Sleep(1 * time.Second) // Give time for connections to close
}

// globalRand adapts the lock-protected global rand source; a bare *rand.Rand
// is not safe across concurrent requests.
type globalRand struct{}

func (globalRand) Float64() float64 { return rand.Float64() }
func (globalRand) Intn(n int) int   { return rand.Intn(n) }

// openStore builds the configured key-value backend.
func openStore(cfg *config.Config) (storage.KVStore, error) {
	switch cfg.Storage.StorageEngine {
	case "postgres":
		return postgres.NewKVStore(cfg.Storage.PostgresDSN)
	case "memory":
		return storage.NewMemoryStore(), nil
	default:
		if err := os.MkdirAll(cfg.Storage.DataPath, 0o755); err != nil {
			return nil, err
		}
		return sqlite.NewKVStore(cfg.Storage.DataPath + "/perspective.db")
	}
}

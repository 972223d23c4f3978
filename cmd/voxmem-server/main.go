package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/voxmem/voxmem/internal/config"
	"github.com/voxmem/voxmem/internal/embedding"
	"github.com/voxmem/voxmem/internal/engine"
	"github.com/voxmem/voxmem/internal/index"
	"github.com/voxmem/voxmem/internal/server"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	provider, err := embedding.NewProvider(cfg.Embedding, cfg.Index.Dimension)
	if err != nil {
		log.Fatalf("Failed to initialize embedding provider: %v", err)
	}
	log.Printf("Embedding provider ready (model: %s, dimension: %d)", provider.Model(), provider.Dimension())

	idx, err := openIndex(cfg)
	if err != nil {
		log.Fatalf("Failed to open vector index: %v", err)
	}
	defer idx.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ensureCtx, ensureCancel := context.WithTimeout(ctx, 30*time.Second)
	if err := idx.Ensure(ensureCtx); err != nil {
		ensureCancel()
		log.Fatalf("Failed to provision vector index %q: %v", cfg.Index.Name, err)
	}
	ensureCancel()
	log.Printf("Vector index %q ready (%s backend)", cfg.Index.Name, cfg.Index.Backend)

	ring := engine.NewRingSink(engine.DefaultRingCapacity)
	feed := server.NewTraceFeed(cfg.Server.Port)
	go feed.Run()

	engineCfg := engine.DefaultConfig(cfg.Index.Dimension)
	engineCfg.TopK = cfg.Search.TopK
	engineCfg.Threshold = cfg.Search.Threshold

	eng, err := engine.New(provider, idx, engineCfg, engine.MultiSink{ring, feed})
	if err != nil {
		log.Fatalf("Failed to initialize memory engine: %v", err)
	}

	addr, err := server.Start(ctx, cfg, eng, ring, feed)
	if err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
	log.Printf("voxmem memory store running at http://%s", addr)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down gracefully...")
	cancel()
	time.Sleep(1 * time.Second) // Give time for connections to close
}

// openIndex selects the vector index backend from configuration.
func openIndex(cfg *config.Config) (index.Index, error) {
	idxCfg := index.Config{
		Name:      cfg.Index.Name,
		Dimension: cfg.Index.Dimension,
		Metric:    cfg.Index.Metric,
	}
	switch cfg.Index.Backend {
	case "postgres":
		return index.NewPostgresIndex(cfg.Index.PostgresDSN, idxCfg)
	default:
		return index.NewSQLiteIndex(cfg.Index.SQLitePath, idxCfg)
	}
}

// Package main runs the archive worker: it drains the Redis log stream into
// the SQL archive and prunes old rows.
package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/oremus-labs/ol-bot-console/config"
	"github.com/oremus-labs/ol-bot-console/internal/logutil"
	"github.com/oremus-labs/ol-bot-console/internal/queue"
	"github.com/oremus-labs/ol-bot-console/internal/redisx"
	"github.com/oremus-labs/ol-bot-console/internal/store"
	"github.com/oremus-labs/ol-bot-console/internal/worker"
)

const workerVersion = "0.1.0"

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Printf("Starting bot console worker v%s", workerVersion)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg := config.Load()
	logutil.Info("worker_bootstrap", logutil.Fields{
		"version":     workerVersion,
		"redisAddr":   cfg.RedisAddr,
		"logStream":   cfg.RedisLogStream,
		"logGroup":    cfg.RedisLogGroup,
		"archiveKeep": cfg.ArchiveKeep,
		"workerName":  cfg.WorkerName,
	})

	archive, err := store.Open(cfg.DataStoreDSN, cfg.DataStoreDriver)
	if err != nil {
		log.Fatalf("worker: failed to open datastore: %v", err)
	}
	defer archive.Close()

	redisClient, err := redisx.NewClient(ctx, redisx.Config{
		Addr:        cfg.RedisAddr,
		Username:    cfg.RedisUsername,
		Password:    cfg.RedisPassword,
		DB:          cfg.RedisDB,
		TLSEnabled:  cfg.RedisTLSEnabled,
		TLSInsecure: cfg.RedisTLSInsecure,
	})
	if err != nil {
		log.Fatalf("worker: failed to connect to redis: %v", err)
	}
	if redisClient == nil {
		log.Fatalf("worker: REDIS_ADDR is required")
	}
	defer redisClient.Close()

	// A stable name lets a restarted worker replay its own pending entries.
	consumer := queue.NewConsumer(redisClient, cfg.RedisLogStream, cfg.RedisLogGroup, cfg.WorkerName).
		WithClaimIdle(cfg.RedisClaimIdle)
	if err := consumer.EnsureGroup(ctx); err != nil {
		log.Fatalf("worker: failed to create consumer group: %v", err)
	}

	runner := worker.New(worker.Options{
		Source:        consumer,
		Archive:       archive,
		Logger:        log.Default(),
		PruneInterval: cfg.PruneInterval,
		Keep:          cfg.ArchiveKeep,
	})

	if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("worker stopped: %v", err)
		os.Exit(1)
	}
	log.Println("worker exited cleanly")
}

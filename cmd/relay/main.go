// Package main is the entry point for the bot console relay service.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oremus-labs/ol-bot-console/config"
	"github.com/oremus-labs/ol-bot-console/internal/api"
	"github.com/oremus-labs/ol-bot-console/internal/archiver"
	"github.com/oremus-labs/ol-bot-console/internal/credentials"
	"github.com/oremus-labs/ol-bot-console/internal/events"
	"github.com/oremus-labs/ol-bot-console/internal/graphqlapi"
	"github.com/oremus-labs/ol-bot-console/internal/handlers"
	"github.com/oremus-labs/ol-bot-console/internal/kube"
	"github.com/oremus-labs/ol-bot-console/internal/logstream"
	"github.com/oremus-labs/ol-bot-console/internal/logutil"
	"github.com/oremus-labs/ol-bot-console/internal/queue"
	"github.com/oremus-labs/ol-bot-console/internal/redisx"
	"github.com/oremus-labs/ol-bot-console/internal/store"
)

const (
	version         = "0.1.0"
	shutdownTimeout = 5 * time.Second
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Printf("Starting bot console relay v%s", version)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg := config.Load()
	logutil.Info("relay_bootstrap", logutil.Fields{
		"version":   version,
		"upstream":  cfg.LiveLogURL(),
		"cacheSize": cfg.LogCacheSize,
		"redisAddr": cfg.RedisAddr,
		"datastore": cfg.DataStoreDriver,
	})

	creds := buildCredentials(cfg)

	redisClient, err := redisx.NewClient(ctx, redisx.Config{
		Addr:        cfg.RedisAddr,
		Username:    cfg.RedisUsername,
		Password:    cfg.RedisPassword,
		DB:          cfg.RedisDB,
		TLSEnabled:  cfg.RedisTLSEnabled,
		TLSInsecure: cfg.RedisTLSInsecure,
	})
	if err != nil {
		log.Fatalf("Failed to connect to redis: %v", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	var archive *store.Store
	if cfg.DataStoreDSN != "" {
		archive, err = store.Open(cfg.DataStoreDSN, cfg.DataStoreDriver)
		if err != nil {
			log.Fatalf("Failed to open log archive: %v", err)
		}
		defer archive.Close()
	} else {
		log.Println("Log archive disabled (DATASTORE_DSN not set)")
	}

	bus := events.NewBus(events.Options{
		Client:  redisClient,
		Logger:  log.Default(),
		Channel: cfg.EventsChannel,
	})
	defer bus.Close()

	streamOpts := logstream.Options{
		Endpoint:          cfg.LiveLogURL(),
		Credentials:       creds,
		CacheSize:         cfg.LogCacheSize,
		ClosedDelay:       cfg.ClosedDelay,
		ErrorDelay:        cfg.ErrorDelay,
		Publisher:         bus,
		Logger:            log.Default(),
		LegacyContentType: cfg.LegacyContentType,
	}
	if archive != nil {
		streamOpts.OnEvent = archiver.HistoryRecorder{Store: archive, Logger: log.Default()}.Record
	}
	stream := logstream.New(streamOpts)

	if sink := archiveSink(cfg, redisClient, archive); sink != nil {
		arch := archiver.New(archiver.Options{Source: bus, Sink: sink, Logger: log.Default()})
		go func() {
			if err := arch.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("archiver stopped: %v", err)
			}
		}()
	}

	if cfg.Autostart {
		stream.Start()
	}
	defer stream.Stop()

	handler := handlers.New(stream, bus, archive, handlers.Options{Logger: log.Default()})
	gqlCfg := graphqlapi.Config{Live: stream}
	if archive != nil {
		gqlCfg.Archive = archive
	}
	gqlHandler, err := graphqlapi.NewHandler(gqlCfg)
	if err != nil {
		log.Fatalf("Failed to build GraphQL schema: %v", err)
	}
	server := api.NewServer(handler, api.Options{APIToken: cfg.APIToken, GraphQLHandler: gqlHandler})
	srv := server.Start(":" + cfg.ServerPort)
	log.Printf("Relay listening on :%s", cfg.ServerPort)

	<-ctx.Done()
	log.Println("Shutting down relay")

	shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
	defer done()
	bus.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Printf("Server forced to shutdown: %v", err)
	}
}

func buildCredentials(cfg *config.Config) credentials.Reader {
	chain := credentials.Chain{credentials.Env{logstream.TokenKey: "BOT_CONSOLE_TOKEN"}}
	if cfg.CredentialsFile != "" {
		chain = append(chain, credentials.NewFileStore(cfg.CredentialsFile))
	}
	if cfg.CredentialsSecret != "" {
		client, err := kube.NewClientset()
		if err != nil {
			log.Fatalf("Failed to initialize Kubernetes client for credentials: %v", err)
		}
		chain = append(chain, credentials.NewSecretStore(client, cfg.CredentialsNamespace, cfg.CredentialsSecret))
	}
	return chain
}

// archiveSink prefers the Redis queue so a separate worker owns writes.
func archiveSink(cfg *config.Config, client redis.UniversalClient, archive *store.Store) archiver.Sink {
	if client != nil {
		return archiver.QueueSink{Producer: queue.NewProducer(client, cfg.RedisLogStream, int64(cfg.RedisStreamMax))}
	}
	if archive != nil {
		return archiver.StoreSink{Store: archive}
	}
	return nil
}

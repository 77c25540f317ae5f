package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/workouts/internal/api"
	"example.com/workouts/internal/audio"
	"example.com/workouts/internal/auth"
	"example.com/workouts/internal/config"
	"example.com/workouts/internal/domain"
	"example.com/workouts/internal/objectstore"
	"example.com/workouts/internal/outbox"
	persistence "example.com/workouts/internal/persistence/postgres"
	"example.com/workouts/internal/speech"
	httptransport "example.com/workouts/internal/transport/http"
)

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	repo := persistence.NewRepository(pool)

	gateway, err := speech.New(speech.Config{
		Provider:      cfg.SpeechProvider,
		APIKey:        cfg.ElevenLabsAPIKey,
		BaseURL:       cfg.ElevenLabsBaseURL,
		DefaultVoice:  cfg.DefaultVoiceID,
		Timeout:       cfg.SynthesisTimeout,
		MaxInputChars: cfg.MaxSynthesisChars,
	})
	if err != nil {
		log.Fatalf("failed to build speech gateway: %v", err)
	}

	store, err := objectstore.NewSupabase(objectstore.Config{
		URL:        cfg.StorageURL,
		ServiceKey: cfg.StorageServiceKey,
		Bucket:     cfg.StorageBucket,
		Timeout:    cfg.StorageTimeout,
	})
	if err != nil {
		log.Fatalf("failed to build object store: %v", err)
	}

	producer := outbox.NewKafkaProducer(cfg.KafkaBrokers)
	defer producer.Close()

	dispatcher := outbox.NewDispatcher(pool, producer, cfg.OutboxPollInterval, cfg.OutboxBatchSize)
	go dispatcher.Start(ctx)

	catalog := domain.NewCatalog(repo)
	linker := domain.NewLinker(repo, gateway, store, audio.MP3DurationSeconds)

	handler := api.NewHandler(catalog, linker)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	authMiddleware := auth.NewMiddleware(
		auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer},
		func(r *http.Request) bool {
			return r.URL.Path == "/healthz" || r.URL.Path == "/metrics"
		},
		func(r *http.Request) bool {
			// Catalog browsing is public. Everything else authenticates.
			return r.Method == http.MethodGet
		},
	)

	// CORS stays outermost so auth rejections still carry the headers the
	// browser needs to surface them.
	cors := httptransport.CORS("http://localhost:5173")
	server := httptransport.NewServer(
		httptransport.DefaultConfig(cfg.HTTPAddress),
		cors(httptransport.RequestLogger(authMiddleware.Wrap(mux))),
	)

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("workout-content-service listening on %s", cfg.HTTPAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-shutdownCh
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	dispatcher.Wait()
}

package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"

	"example.com/activitymonitor/internal/api"
	"example.com/activitymonitor/internal/auth"
	"example.com/activitymonitor/internal/config"
	"example.com/activitymonitor/internal/detection"
	"example.com/activitymonitor/internal/episodelog"
	"example.com/activitymonitor/internal/monitor"
	"example.com/activitymonitor/internal/observability"
	"example.com/activitymonitor/internal/overrides"
	"example.com/activitymonitor/internal/persistence/postgres"
	"example.com/activitymonitor/internal/samplefeed"
	"example.com/activitymonitor/internal/settings"
	httptransport "example.com/activitymonitor/internal/transport/http"
)

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		store   episodelog.Store   = episodelog.NewMemoryStore()
		history samplefeed.History = samplefeed.NewMemoryHistory(cfg.SampleHistorySize)
		pruner  *postgres.SampleHistory
	)
	if cfg.PostgresURL != "" {
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			log.Fatalf("failed to connect to postgres: %v", err)
		}
		defer pool.Close()

		store = postgres.NewEpisodeStore(pool)
		pruner = postgres.NewSampleHistory(pool)
		history = pruner
	} else {
		log.Printf("POSTGRES_URL not set, episode log and sample history are in-memory")
	}

	episodes, err := episodelog.NewLog(ctx, store)
	if err != nil {
		log.Fatalf("failed to load episode log: %v", err)
	}

	liveSettings := settings.NewStore(cfg.Enablement)
	kafkaEnabled := len(cfg.KafkaBrokers) > 0

	feed := samplefeed.NewFeed(history,
		samplefeed.WithAvailability(kafkaEnabled),
		samplefeed.WithAuthorizationPolicy(cfg.SampleFeedAuthorized),
	)

	var (
		listener  detection.Listener
		publisher *overrides.Publisher
	)
	if kafkaEnabled {
		producer := overrides.NewKafkaProducer(cfg.KafkaBrokers)
		defer producer.Close()

		opts := []overrides.Option{overrides.WithBuffer(cfg.OverridePublishBuffer)}
		if cfg.SchemaRegistryURL != "" {
			opts = append(opts, overrides.WithRegistry(overrides.NewSchemaRegistryClient(cfg.SchemaRegistryURL)))
		}
		publisher = overrides.NewPublisher(producer, liveSettings, cfg.OverrideTopic, opts...)
		listener = publisher
	} else {
		listener = overrides.NewLogListener(liveSettings, nil)
	}

	engine := detection.NewEngine(feed, liveSettings, episodes,
		detection.WithConfig(cfg.Detection),
		detection.WithListener(listener),
	)
	mon := monitor.New(feed, engine, liveSettings)

	var wg sync.WaitGroup
	if publisher != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			publisher.Start(ctx)
		}()
	}

	if kafkaEnabled {
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:         cfg.KafkaBrokers,
			GroupID:         cfg.SampleGroupID,
			Topic:           cfg.SampleTopic,
			MinBytes:        1,
			MaxBytes:        10e6,
			MaxWait:         500 * time.Millisecond,
			CommitInterval:  time.Second,
			ReadLagInterval: -1,
		})
		proc := samplefeed.NewProcessor(reader, feed)

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer reader.Close()

			log.Printf("sample consumer started (topic=%s, group=%s)", cfg.SampleTopic, cfg.SampleGroupID)
			if err := proc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("sample consumer stopped with error: %v", err)
			}
		}()
	}

	if pruner != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runRetention(ctx, pruner, cfg.SampleRetention)
		}()
	}

	mon.Start(ctx)

	handler := api.NewHandler(episodes, mon, liveSettings)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	verifier := auth.NewVerifier(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer})
	apiSrv := httptransport.NewServer(httptransport.DefaultServerConfig(cfg.HTTPAddress),
		observability.InstrumentHandler(verifier.Require(httptransport.RequestLogger(mux), "/healthz")))
	metricsSrv := httptransport.NewServer(httptransport.DefaultServerConfig(cfg.MetricsAddress), promhttp.Handler())

	apiErr := httptransport.Serve("activity-monitor api", apiSrv)
	metricsErr := httptransport.Serve("activity-monitor metrics", metricsSrv)

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-shutdownCh:
		log.Println("shutdown requested")
	case err := <-apiErr:
		log.Printf("api server error: %v", err)
	case err := <-metricsErr:
		log.Printf("metrics server error: %v", err)
	}

	// Stop finalizes any open episode so its end notice is queued before the publisher drains.
	mon.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := httptransport.Shutdown(shutdownCtx, apiSrv, metricsSrv); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	wg.Wait()
	episodes.Wait()
}

func runRetention(ctx context.Context, history *postgres.SampleHistory, keep time.Duration) {
	ticker := time.NewTicker(max(keep/4, time.Minute))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now().UTC()
			removed, err := history.Prune(ctx, now.Add(-keep))
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					log.Printf("sample retention failed: %v", err)
				}
				continue
			}
			observability.RecordSamplesPruned(removed, now)
		}
	}
}

package command

import (
	"context"
	"net/http"
	"time"

	"qfree/queue-service/internal/config"
	"qfree/queue-service/internal/estimator"
	"qfree/queue-service/internal/httpapi"
	"qfree/queue-service/internal/hub"
	"qfree/queue-service/internal/metrics"
	"qfree/queue-service/internal/relay"
	"qfree/queue-service/internal/seed"
	"qfree/queue-service/internal/service"
	"qfree/queue-service/internal/store"
	"qfree/queue-service/internal/store/memory"
	"qfree/queue-service/internal/store/postgres"
	"qfree/queue-service/internal/telemetry"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const serviceName = "queue-service"

type Server struct {
	Logger *logrus.Logger
}

func (cmd Server) Command(ctx context.Context, cfg config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "run the queue HTTP API",
		RunE: func(_ *cobra.Command, _ []string) error {
			return cmd.main(ctx, cfg)
		},
	}
}

func (cmd Server) main(ctx context.Context, cfg config.Config) error {
	shutdownTracing := telemetry.Setup(ctx, telemetry.Config{
		ServiceName: serviceName,
		Endpoint:    cfg.TracingEndpoint,
		Insecure:    cfg.TracingInsecure,
		SampleRatio: cfg.TraceSampleRatio,
	}, cmd.Logger)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			cmd.Logger.WithError(err).Warn("tracing shutdown")
		}
	}()

	backend, closeBackend, err := cmd.openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeBackend()

	if cfg.SeedDemoData {
		if err := seed.Load(ctx, backend, cmd.Logger); err != nil {
			return errors.Wrap(err, "server: load demo data")
		}
	}

	var cache redis.Cmdable
	if cfg.RedisURL != "" {
		client, err := newRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			// Estimates still work without the cache.
			cmd.Logger.WithError(err).Warn("redis unavailable, estimate cache disabled")
		} else {
			defer client.Close()
			cache = client
		}
	}
	est := buildEstimator(cfg, cache, cmd.Logger)

	svc := service.NewQueueService(backend, est, cmd.Logger)
	if err := metrics.RegisterPeopleWaiting(svc.WaitingCounts); err != nil {
		return errors.Wrap(err, "server: register waiting gauge")
	}
	options := httpapi.Options{
		AdminAPIKey: cfg.AdminAPIKey,
		Logger:      cmd.Logger,
	}

	// Kafka goes first so a failed write does not repeat pushes to displays.
	var publishers []relay.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPublisher := relay.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer kafkaPublisher.Close()
		publishers = append(publishers, kafkaPublisher)
		cmd.Logger.WithFields(logrus.Fields{"brokers": cfg.KafkaBrokers, "topic": cfg.KafkaTopic}).Info("kafka relay enabled")
	}
	if cfg.RealtimeEnabled {
		displays := hub.New(cmd.Logger)
		options.Realtime = displays.Handler()
		publishers = append(publishers, displays)
	}
	if len(publishers) > 0 {
		worker := relay.New(backend, relay.Fanout(publishers...), relay.Config{BatchSize: cfg.RelayBatchSize}, cmd.Logger)
		go relay.Start(ctx, cfg.RelayInterval, worker)
	}

	handler := httpapi.NewHandler(svc, options)
	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		IPPerMinute:   cfg.RateLimitPerMinute,
		IPBurst:       cfg.RateLimitBurst,
		UserPerMinute: cfg.UserRateLimitPerMinute,
		UserBurst:     cfg.UserRateLimitBurst,
	})

	server := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     otelhttp.NewHandler(httpapi.LoggingMiddleware(cmd.Logger, limiter.Middleware(handler.Routes())), serviceName),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}
	// SockJS streaming responses outlive any fixed write deadline.
	if !cfg.RealtimeEnabled {
		server.WriteTimeout = 10 * time.Second
	}

	serveErr := make(chan error, 1)
	go func() {
		cmd.Logger.WithFields(logrus.Fields{"addr": server.Addr, "backend": cfg.StoreBackend}).Info("queue-service listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return errors.Wrap(err, "server: listen")
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		cmd.Logger.WithError(err).Warn("shutdown error")
	}
	cmd.Logger.Info("queue-service stopped")
	return nil
}

func (cmd Server) openBackend(ctx context.Context, cfg config.Config) (store.Backend, func(), error) {
	switch cfg.StoreBackend {
	case config.BackendMemory:
		return memory.NewStore(), func() {}, nil
	case config.BackendPostgres:
		if cfg.DatabaseURL == "" {
			return nil, nil, errors.New("server: DB_DSN is required for the postgres backend")
		}
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, errors.Wrap(err, "server: failed to connect to postgresql")
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, errors.Wrap(err, "server: failed to ping postgresql")
		}
		return postgres.NewStore(pool, postgres.Options{}), pool.Close, nil
	default:
		return nil, nil, errors.Errorf("server: unknown store backend %q", cfg.StoreBackend)
	}
}

func newRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	options, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parse REDIS_URL")
	}
	client := redis.NewClient(options)
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "ping redis")
	}
	return client, nil
}

// buildEstimator layers the remote predictor and the redis cache over the
// linear formula, depending on what is configured.
func buildEstimator(cfg config.Config, cache redis.Cmdable, logger *logrus.Logger) estimator.Estimator {
	var est estimator.Estimator = estimator.Linear{}
	if cfg.PredictorURL != "" {
		est = estimator.NewRemote(cfg.PredictorURL, cfg.PredictorTimeout, logger)
	}
	if cache != nil && cfg.EstimateCacheTTL > 0 {
		est = estimator.NewCached(est, cache, cfg.EstimateCacheTTL, logger)
	}
	return est
}

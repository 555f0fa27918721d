package di

import (
	"fmt"

	"github.com/redis/go-redis/v9"

	drepo "PumpWatch/internal/domain/repository"
	"PumpWatch/internal/handler/ops"
	internalrepo "PumpWatch/internal/repository"
	"PumpWatch/internal/usecase"
	pkgch "PumpWatch/pkg/clickhouse"
	"PumpWatch/pkg/config"
	pkgkafka "PumpWatch/pkg/kafka"
	"PumpWatch/pkg/logger"
	"PumpWatch/pkg/metrics"
	"PumpWatch/pkg/server"
)

// ProvideLogger creates the application logger from config.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		TimeFormat: cfg.Logging.TimeFormat,
	})
}

// ProvideClickHouseClient creates a ClickHouse client. The schema belongs to
// the acquisition side, so no DDL runs here.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideKafkaProducer creates a Kafka producer.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideRedisClient creates the client backing the tracker state store.
func ProvideRedisClient(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() drepo.Metrics {
	return metrics.New()
}

// ProvideMarketStore creates the ClickHouse-backed market reader.
func ProvideMarketStore(chClient *pkgch.Client) drepo.MarketStore {
	return internalrepo.NewClickHouseStore(chClient.DB())
}

// ProvideResultStore routes result rows to the configured backend.
func ProvideResultStore(chClient *pkgch.Client, producer *pkgkafka.Producer, cfg *config.Config) drepo.ResultStore {
	if cfg.Backend.Type == "kafka" {
		return internalrepo.NewKafkaResultStore(producer, cfg.Kafka.ResultTopic)
	}
	return internalrepo.NewClickHouseStore(chClient.DB())
}

// ProvideAlertPublisher creates the Kafka alert publisher.
func ProvideAlertPublisher(producer *pkgkafka.Producer, cfg *config.Config, log *logger.Logger) drepo.AlertPublisher {
	return internalrepo.NewKafkaAlertPublisher(producer, cfg.Kafka.AlertTopic, log)
}

// ProvideStateStore creates the Redis tracker state store.
func ProvideStateStore(client *redis.Client) drepo.TrackerStateStore {
	return internalrepo.NewRedisStateStore(client)
}

// ProvidePipeline creates the daily evaluation pipeline.
func ProvidePipeline(
	market drepo.MarketStore,
	results drepo.ResultStore,
	alerts drepo.AlertPublisher,
	state drepo.TrackerStateStore,
	m drepo.Metrics,
	log *logger.Logger,
	cfg *config.Config,
) *usecase.SignalPipeline {
	return usecase.NewSignalPipeline(market, results, alerts, state, m, log, cfg.Pipeline.HistoryDays)
}

// ProvideRunner creates the per-fuel fan-out runner.
func ProvideRunner(pipeline *usecase.SignalPipeline, cfg *config.Config, log *logger.Logger) *usecase.Runner {
	return usecase.NewRunner(pipeline, cfg.Pipeline.Fuels, log)
}

// ProvideApp creates the application server with the ops HTTP surface.
func ProvideApp(
	cfg *config.Config,
	runner *usecase.Runner,
	chClient *pkgch.Client,
	market drepo.MarketStore,
	results drepo.ResultStore,
	state drepo.TrackerStateStore,
	alerts drepo.AlertPublisher,
	log *logger.Logger,
) *server.App {
	app := server.New(cfg, runner, chClient, log)
	app.SetHTTPHandler(ops.NewHandler(runner, market, results, state, log))
	app.AddCloser(alerts.Close)
	app.AddCloser(state.Close)
	return app
}

package server

import (
	"context"
	"fmt"
	"github.com/minio/minio-go/v7"
	"github.com/rs/zerolog"
	"sync"
	"time"
	"video-sentinel/config"
	"video-sentinel/constant"
	"video-sentinel/dto"
	jobHandler "video-sentinel/handler"
	"video-sentinel/pkg/broker"
	"video-sentinel/pkg/rabbitmq"
	"video-sentinel/pkg/redis"
	"video-sentinel/pkg/relay"
	"video-sentinel/repository"
	"video-sentinel/service"
)

// monitoringJobTTL bounds how long a crashed replica can hold a video's job slot.
const monitoringJobTTL = 6 * time.Hour

const localSegmentationQueueSize = 16

// segmentationRunner blocks running segmentation jobs until ctx is done.
type segmentationRunner func(ctx context.Context, deps jobHandler.ServiceDependencies)

func newRepository(ctx context.Context, cfg *config.Config) (repository.Repository, error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		zerolog.Ctx(ctx).Warn().Msg("using in-memory store, data is lost on restart")
		return repository.NewMemoryRepo(), nil
	}
	if cfg.DB == nil {
		return nil, fmt.Errorf("store driver %q requires postgresql_host", cfg.StoreDriver)
	}

	repo, err := repository.NewRepo(cfg.DB, cfg.App.Environment == constant.EnvironmentDevelop.String())
	if err != nil {
		return nil, err
	}
	if err := repo.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return repo, nil
}

func newRegistry(ctx context.Context, cfg *config.Config) service.JobRegistry {
	if cfg.Redis.Address == "" {
		return service.NewMemoryRegistry()
	}

	registry := redis.NewRegistry(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB, monitoringJobTTL)
	if err := registry.Ping(ctx); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("address", cfg.Redis.Address).Msg("redis unavailable, tracking jobs in memory")
		_ = registry.Close()
		return service.NewMemoryRegistry()
	}
	go func() {
		<-ctx.Done()
		_ = registry.Close()
	}()

	zerolog.Ctx(ctx).Info().Str("address", cfg.Redis.Address).Msg("tracking monitoring jobs in redis")
	return registry
}

// newStorage returns nil when MinIO is not configured so uploads stay on local disk.
func newStorage(ctx context.Context, cfg *config.Config) (service.ObjectStorage, error) {
	if cfg.Storage == nil {
		return nil, nil
	}

	exists, err := cfg.Storage.BucketExists(ctx, cfg.MinIOBucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.MinIOBucket, err)
	}
	if !exists {
		if err := cfg.Storage.MakeBucket(ctx, cfg.MinIOBucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.MinIOBucket, err)
		}
		zerolog.Ctx(ctx).Info().Str("bucket", cfg.MinIOBucket).Msg("bucket created")
	}
	return cfg.Storage, nil
}

// newDispatcher routes segmentation jobs through RabbitMQ when it is configured and
// through an in-process worker pool otherwise.
func newDispatcher(ctx context.Context, cfg *config.Config) (service.Dispatcher, segmentationRunner, error) {
	workers := cfg.Server.Workers

	if !cfg.Queue.Enabled() {
		local := service.NewLocalDispatcher(localSegmentationQueueSize)
		run := func(ctx context.Context, deps jobHandler.ServiceDependencies) {
			local.Run(ctx, workers, deps.MonitoringService.Segment)
		}
		return local, run, nil
	}

	conn, err := config.NewRabbitMQConn(ctx, cfg.Queue)
	if err != nil {
		return nil, nil, err
	}

	publisher := rabbitmq.NewPublisher[dto.SegmentationMessage](conn, cfg.Queue, rabbitmq.SegmentationTopology)
	consumer := rabbitmq.NewConsumer(conn, cfg.Queue, rabbitmq.SegmentationTopology, workers, jobHandler.SegmentationHandler, service.ErrNonRetryable)
	run := func(ctx context.Context, deps jobHandler.ServiceDependencies) {
		defer publisher.Close()
		if err := consumer.Consume(ctx, deps); err != nil && ctx.Err() == nil {
			zerolog.Ctx(ctx).Error().Err(err).Msg("segmentation consumer error")
		}
	}
	return publisher, run, nil
}

func startRelays(ctx context.Context, cfg *config.Config, alerts *broker.Broker, wg *sync.WaitGroup) {
	var sinks []relay.Sink

	if cfg.MQTT.Broker != "" {
		sink, err := relay.NewMQTTSink(cfg.MQTT.Broker, cfg.MQTT.ClientID, cfg.MQTT.Topic)
		if err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Str("broker", cfg.MQTT.Broker).Msg("mqtt relay disabled")
		} else {
			sinks = append(sinks, sink)
		}
	}

	if cfg.Kafka.BootstrapServers != "" {
		sink, err := relay.NewKafkaSink(ctx, cfg.Kafka.BootstrapServers, cfg.Kafka.Topic)
		if err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Msg("kafka relay disabled")
		} else {
			sinks = append(sinks, sink)
		}
	}

	for _, sink := range sinks {
		wg.Add(1)
		go func(sink relay.Sink) {
			defer wg.Done()
			defer sink.Close()
			relay.Run(ctx, alerts, sink)
		}(sink)
	}
}

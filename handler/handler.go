package handler

import (
	"context"
	"encoding/json"
	"errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"video-sentinel/dto"
	"video-sentinel/service"
)

type ServiceDependencies struct {
	MonitoringService *service.MonitoringService
}

// SegmentationHandler consumes start-monitoring messages. Malformed bodies are never retried.
func SegmentationHandler(ctx context.Context, msg amqp.Delivery, deps ServiceDependencies) error {
	var segmentation dto.SegmentationMessage
	if err := json.Unmarshal(msg.Body, &segmentation); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to unmarshal segmentation message")
		return errors.Join(service.ErrNonRetryable, err)
	}

	zerolog.Ctx(ctx).Info().
		Str("video_id", segmentation.VideoId.String()).
		Str("use_case", segmentation.UseCase).
		Int("chunk_seconds", segmentation.ChunkDurationSeconds).
		Msg("received segmentation message")

	return deps.MonitoringService.Segment(ctx, segmentation)
}

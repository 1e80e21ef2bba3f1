package service

import (
	"context"
	"errors"
	"fmt"
	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/rs/zerolog"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
	"video-sentinel/config"
	"video-sentinel/constant"
	"video-sentinel/dto"
	"video-sentinel/entities"
	"video-sentinel/repository"
)

const (
	MinChunkDurationSeconds = 2
	MaxChunkDurationSeconds = 60
	sourceURLExpiry         = time.Hour
)

type UploadInput struct {
	OriginalName string
	UseCase      string
	Body         io.Reader
}

// MonitoringService owns the video lifecycle up to the point where segments sit in the task queue.
type MonitoringService struct {
	repo       repository.Repository
	queue      *TaskQueue
	registry   JobRegistry
	dispatcher Dispatcher
	segmenter  Segmenter
	storage    ObjectStorage
	bucket     string
	useCases   config.UseCases
	pipeline   config.Pipeline
}

type MonitoringOptions struct {
	Repo       repository.Repository
	Queue      *TaskQueue
	Registry   JobRegistry
	Dispatcher Dispatcher
	Segmenter  Segmenter
	// Storage is optional; without it uploads stay on local disk.
	Storage  ObjectStorage
	Bucket   string
	UseCases config.UseCases
	Pipeline config.Pipeline
}

func NewMonitoringService(opts MonitoringOptions) *MonitoringService {
	return &MonitoringService{
		repo:       opts.Repo,
		queue:      opts.Queue,
		registry:   opts.Registry,
		dispatcher: opts.Dispatcher,
		segmenter:  opts.Segmenter,
		storage:    opts.Storage,
		bucket:     opts.Bucket,
		useCases:   opts.UseCases,
		pipeline:   opts.Pipeline,
	}
}

func (s *MonitoringService) Upload(ctx context.Context, in UploadInput) (*entities.Video, error) {
	useCase := orDefault(in.UseCase, config.DefaultUseCase)
	if _, ok := s.useCases.Get(useCase); !ok {
		return nil, ErrInvalidUseCase
	}

	originalName := filepath.Base(in.OriginalName)
	filename := strings.ReplaceAll(uuid.New().String(), "-", "") + "_" + originalName
	if err := os.MkdirAll(s.pipeline.UploadDir(), os.ModePerm); err != nil {
		return nil, err
	}
	localPath := filepath.Join(s.pipeline.UploadDir(), filename)
	if err := writeFile(localPath, in.Body); err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}

	duration, err := s.segmenter.Duration(ctx, localPath)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("file", filename).Msg("failed to probe duration")
		duration = 0
	}

	objectName := localPath
	if s.storage != nil {
		objectName = path.Join("uploads", filename)
		if _, err := s.storage.FPutObject(ctx, s.bucket, objectName, localPath, minio.PutObjectOptions{ContentType: "video/mp4"}); err != nil {
			return nil, fmt.Errorf("upload source: %w", err)
		}
		if err := os.Remove(localPath); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("file", localPath).Msg("failed to remove local upload")
		}
	}

	video := &entities.Video{
		Filename:        filename,
		ObjectName:      objectName,
		OriginalName:    originalName,
		UseCase:         useCase,
		Status:          constant.VideoStatusUploaded,
		DurationSeconds: duration,
	}
	if err := s.repo.CreateVideo(ctx, video); err != nil {
		return nil, err
	}
	zerolog.Ctx(ctx).Info().Str("video_id", video.ID.String()).Str("file", filename).Msg("video uploaded")
	return video, nil
}

// Start validates the request, claims the video and dispatches its segmentation job.
func (s *MonitoringService) Start(ctx context.Context, req dto.StartMonitoringRequest) (*dto.SegmentationMessage, error) {
	if req.UseCase != "" {
		if _, ok := s.useCases.Get(req.UseCase); !ok {
			return nil, ErrInvalidUseCase
		}
	}

	chunkSeconds := req.ChunkDurationSeconds
	if chunkSeconds == 0 {
		chunkSeconds = s.pipeline.ChunkDurationSeconds
	}
	if chunkSeconds < MinChunkDurationSeconds || chunkSeconds > MaxChunkDurationSeconds {
		return nil, ErrInvalidChunkDuration
	}

	videoId, err := uuid.Parse(req.VideoId)
	if err != nil {
		return nil, ErrInvalidVideoId
	}
	video, err := s.repo.GetVideo(ctx, videoId)
	if err != nil {
		return nil, err
	}
	if video.Status == constant.VideoStatusComplete {
		return nil, ErrVideoComplete
	}

	useCase := orDefault(req.UseCase, orDefault(video.UseCase, config.DefaultUseCase))
	if _, ok := s.useCases.Get(useCase); !ok {
		return nil, ErrInvalidUseCase
	}

	acquired, err := s.registry.Acquire(ctx, videoId.String())
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, ErrAlreadyMonitoring
	}

	msg := dto.SegmentationMessage{VideoId: videoId, UseCase: useCase, ChunkDurationSeconds: chunkSeconds}
	if err := s.dispatcher.Dispatch(ctx, msg); err != nil {
		if releaseErr := s.registry.Release(ctx, videoId.String()); releaseErr != nil {
			zerolog.Ctx(ctx).Error().Err(releaseErr).Msg("failed to release monitoring job")
		}
		return nil, fmt.Errorf("dispatch segmentation: %w", err)
	}

	zerolog.Ctx(ctx).Info().Str("video_id", videoId.String()).Str("use_case", useCase).Int("chunk_seconds", chunkSeconds).Msg("monitoring started")
	return &msg, nil
}

// Stop drops every queued task and, when a video is given, marks it stopped and frees its job slot.
func (s *MonitoringService) Stop(ctx context.Context, videoId *uuid.UUID) (int, error) {
	cleared := s.queue.Clear()
	zerolog.Ctx(ctx).Info().Int("cleared", cleared).Msg("task queue cleared")

	if videoId == nil {
		return cleared, nil
	}
	if err := s.repo.UpdateVideoStatus(ctx, *videoId, constant.VideoStatusStopped); err != nil {
		return cleared, err
	}
	return cleared, s.registry.Release(ctx, videoId.String())
}

// Release frees the job slot of a video whose segments have all been processed.
func (s *MonitoringService) Release(ctx context.Context, videoId uuid.UUID) {
	if err := s.registry.Release(ctx, videoId.String()); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("video_id", videoId.String()).Msg("failed to release monitoring job")
		return
	}
	zerolog.Ctx(ctx).Info().Str("video_id", videoId.String()).Msg("monitoring job finished")
}

func (s *MonitoringService) ActiveJobs(ctx context.Context) ([]string, error) {
	return s.registry.List(ctx)
}

func (s *MonitoringService) QueueSize() int {
	return s.queue.Len()
}

// Segment splits the source video and enqueues one task per segment in index order.
// Errors are final: the video is marked failed and its job slot released. Cancellation is
// the exception, the status and slot stay as they are so the job can be delivered again.
func (s *MonitoringService) Segment(ctx context.Context, msg dto.SegmentationMessage) (err error) {
	logger := zerolog.Ctx(ctx).With().Str("video_id", msg.VideoId.String()).Logger()
	ctx = logger.WithContext(ctx)

	video, err := s.repo.GetVideo(ctx, msg.VideoId)
	if err != nil {
		logger.Error().Err(err).Msg("failed to find video")
		return errors.Join(ErrNonRetryable, err)
	}
	if video.Status == constant.VideoStatusComplete {
		logger.Info().Msg("video already complete")
		return nil
	}

	if err = s.repo.UpdateVideoStatus(ctx, msg.VideoId, constant.VideoStatusProcessing); err != nil {
		return errors.Join(ErrNonRetryable, err)
	}

	defer func() {
		if err == nil {
			return
		}
		if ctx.Err() != nil {
			logger.Warn().Err(err).Msg("segmentation interrupted")
			return
		}
		err = errors.Join(ErrNonRetryable, err)
		if updateErr := s.repo.UpdateVideoStatus(context.WithoutCancel(ctx), msg.VideoId, constant.VideoStatusFailed); updateErr != nil {
			logger.Error().Err(updateErr).Msg("failed to update video status")
		}
		if releaseErr := s.registry.Release(context.WithoutCancel(ctx), msg.VideoId.String()); releaseErr != nil {
			logger.Error().Err(releaseErr).Msg("failed to release monitoring job")
		}
	}()

	sourcePath, cleanup, err := s.fetchSource(ctx, video)
	if err != nil {
		logger.Error().Err(err).Msg("failed to fetch source video")
		return err
	}
	defer cleanup()

	outputDir := filepath.Join(s.pipeline.ChunksDir(), msg.VideoId.String())
	logger.Info().Int("chunk_seconds", msg.ChunkDurationSeconds).Msg("splitting video")
	paths, err := s.segmenter.Split(ctx, sourcePath, outputDir, msg.ChunkDurationSeconds)
	if err != nil {
		logger.Error().Err(err).Msg("failed to split video")
		return err
	}
	if len(paths) == 0 {
		return errors.New("segmentation produced no chunks")
	}

	if err = s.repo.ResetVideoChunks(ctx, msg.VideoId, len(paths)); err != nil {
		return err
	}

	for idx, chunkPath := range paths {
		active, activeErr := s.registry.Active(ctx, msg.VideoId.String())
		if activeErr != nil {
			logger.Warn().Err(activeErr).Msg("failed to check monitoring job")
		} else if !active {
			logger.Info().Int("enqueued", idx).Msg("monitoring stopped during segmentation")
			return nil
		}

		start := float64(idx * msg.ChunkDurationSeconds)
		task := dto.ChunkTask{
			VideoId:        msg.VideoId,
			ChunkPath:      chunkPath,
			ChunkFilename:  filepath.Base(chunkPath),
			ChunkIndex:     idx,
			TimestampStart: start,
			TimestampEnd:   start + float64(msg.ChunkDurationSeconds),
			UseCase:        msg.UseCase,
			TotalChunks:    len(paths),
		}
		if err = s.queue.Put(ctx, task); err != nil {
			return err
		}
	}

	if err = s.repo.UpdateVideoStatus(ctx, msg.VideoId, constant.VideoStatusProcessingEvents); err != nil {
		return err
	}
	logger.Info().Int("chunks", len(paths)).Msg("segments queued")
	return nil
}

// fetchSource returns a local path for the video. Downloads from object storage are retried.
func (s *MonitoringService) fetchSource(ctx context.Context, video *entities.Video) (string, func(), error) {
	if s.storage == nil {
		if _, err := os.Stat(video.ObjectName); err != nil {
			return "", func() {}, fmt.Errorf("%w: %s", ErrSourceNotFound, video.Filename)
		}
		return video.ObjectName, func() {}, nil
	}

	tempDir := filepath.Join(s.pipeline.DataDir, "temp", video.ID.String())
	if err := os.MkdirAll(tempDir, os.ModePerm); err != nil {
		return "", func() {}, err
	}
	cleanup := func() { _ = os.RemoveAll(tempDir) }

	localPath := filepath.Join(tempDir, video.Filename)
	operation := func() (struct{}, error) {
		return struct{}{}, s.storage.FGetObject(ctx, s.bucket, video.ObjectName, localPath, minio.GetObjectOptions{})
	}
	bo := backoff.NewExponentialBackOff()
	bo.MaxInterval = 10 * time.Second
	if _, err := backoff.Retry(ctx, operation, backoff.WithBackOff(bo), backoff.WithMaxTries(3)); err != nil {
		cleanup()
		return "", func() {}, fmt.Errorf("download source: %w", err)
	}
	return localPath, cleanup, nil
}

// SourceURL returns either a presigned object URL or a local file path for the original upload.
func (s *MonitoringService) SourceURL(ctx context.Context, video *entities.Video) (remote string, local string, err error) {
	if s.storage != nil {
		u, err := s.storage.PresignedGetObject(ctx, s.bucket, video.ObjectName, sourceURLExpiry, nil)
		if err != nil {
			return "", "", err
		}
		return u.String(), "", nil
	}
	if _, err := os.Stat(video.ObjectName); err != nil {
		return "", "", ErrSourceNotFound
	}
	return "", video.ObjectName, nil
}

// ChunkPath resolves a segment file produced for the video.
func (s *MonitoringService) ChunkPath(videoId uuid.UUID, chunkFilename string) (string, error) {
	p := filepath.Join(s.pipeline.ChunksDir(), videoId.String(), filepath.Base(chunkFilename))
	if _, err := os.Stat(p); err != nil {
		return "", repository.ErrNotFound
	}
	return p, nil
}

func (s *MonitoringService) GetVideo(ctx context.Context, id uuid.UUID) (*entities.Video, error) {
	return s.repo.GetVideo(ctx, id)
}

func writeFile(dst string, r io.Reader) error {
	f, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

package service

import (
	"context"
	"errors"
	"github.com/minio/minio-go/v7"
	"net/url"
	"time"
	"video-sentinel/dto"
)

// ErrNonRetryable marks segmentation errors that must not be redelivered.
var ErrNonRetryable = errors.New("non-retryable error")

var (
	ErrInvalidUseCase       = errors.New("invalid use case")
	ErrInvalidChunkDuration = errors.New("chunk duration must be between 2 and 60 seconds")
	ErrInvalidVideoId       = errors.New("invalid video id")
	ErrAlreadyMonitoring    = errors.New("monitoring already started")
	ErrVideoComplete        = errors.New("video already processed")
	ErrSourceNotFound       = errors.New("source file not found")
)

// Segmenter wraps the external video tools.
type Segmenter interface {
	Split(ctx context.Context, videoPath, outputDir string, chunkSeconds int) ([]string, error)
	Duration(ctx context.Context, videoPath string) (float64, error)
}

// ObjectStorage is the subset of *minio.Client used for source videos.
type ObjectStorage interface {
	FPutObject(ctx context.Context, bucketName, objectName, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	FGetObject(ctx context.Context, bucketName, objectName, filePath string, opts minio.GetObjectOptions) error
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expires time.Duration, reqParams url.Values) (*url.URL, error)
}

// JobRegistry tracks which videos currently own a segmentation job.
type JobRegistry interface {
	// Acquire returns false when the video already has a job.
	Acquire(ctx context.Context, videoId string) (bool, error)
	Release(ctx context.Context, videoId string) error
	Active(ctx context.Context, videoId string) (bool, error)
	List(ctx context.Context) ([]string, error)
}

// Dispatcher hands a segmentation job to whatever runs it.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg dto.SegmentationMessage) error
}

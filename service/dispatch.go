package service

import (
	"context"
	"errors"
	"github.com/rs/zerolog"
	"sync"
	"video-sentinel/dto"
)

var ErrDispatchQueueFull = errors.New("segmentation queue is full")

// LocalDispatcher runs segmentation jobs in process when no message broker is configured.
type LocalDispatcher struct {
	messages chan dto.SegmentationMessage
}

func NewLocalDispatcher(size int) *LocalDispatcher {
	if size < 1 {
		size = 16
	}
	return &LocalDispatcher{messages: make(chan dto.SegmentationMessage, size)}
}

func (d *LocalDispatcher) Dispatch(ctx context.Context, msg dto.SegmentationMessage) error {
	select {
	case d.messages <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrDispatchQueueFull
	}
}

// Run consumes jobs with numWorkers goroutines until ctx is cancelled.
func (d *LocalDispatcher) Run(ctx context.Context, numWorkers int, handle func(ctx context.Context, msg dto.SegmentationMessage) error) {
	if numWorkers < 1 {
		numWorkers = 1
	}

	var wg sync.WaitGroup
	for i := 1; i <= numWorkers; i++ {
		wg.Add(1)
		go func(workerId int) {
			defer wg.Done()
			for {
				select {
				case msg := <-d.messages:
					if err := handle(ctx, msg); err != nil {
						zerolog.Ctx(ctx).Error().Err(err).Int("worker_id", workerId).
							Str("video_id", msg.VideoId.String()).Msg("segmentation job failed")
					}
				case <-ctx.Done():
					return
				}
			}
		}(i)
	}
	wg.Wait()
}

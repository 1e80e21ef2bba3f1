package service

import (
	"context"
	"errors"
	"fmt"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"strings"
	"time"
	"video-sentinel/config"
	"video-sentinel/constant"
	"video-sentinel/dto"
	"video-sentinel/entities"
	"video-sentinel/pkg/analyzer"
	"video-sentinel/repository"
)

const (
	defaultPollTimeout  = time.Second
	defaultPanicBackoff = 250 * time.Millisecond
)

// Analyzer is the vision analysis port. Implementations report problems as analyzer.Failure.
type Analyzer interface {
	Analyze(ctx context.Context, segmentPath string, useCase config.UseCase) analyzer.Outcome
}

type Publisher interface {
	Publish(event entities.Event)
}

// TaskResult is what happened to one task. The run loop logs every result.
type TaskResult struct {
	Persisted  int
	Duplicates int
	Summary    bool
	Failure    string
	Panicked   bool
	Completed  bool
	Err        error
}

// Processor drains the task queue one task at a time.
type Processor struct {
	queue     *TaskQueue
	repo      repository.Repository
	analyzer  Analyzer
	dedup     *DedupGate
	publisher Publisher
	useCases  config.UseCases

	onComplete func(ctx context.Context, videoId uuid.UUID)

	pollTimeout  time.Duration
	panicBackoff time.Duration
	now          func() time.Time
}

func NewProcessor(queue *TaskQueue, repo repository.Repository, analyzer Analyzer, publisher Publisher, useCases config.UseCases) *Processor {
	return &Processor{
		queue:        queue,
		repo:         repo,
		analyzer:     analyzer,
		dedup:        NewDedupGate(repo),
		publisher:    publisher,
		useCases:     useCases,
		pollTimeout:  defaultPollTimeout,
		panicBackoff: defaultPanicBackoff,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// OnComplete registers fn to run once per video, right after the task that completes it.
func (p *Processor) OnComplete(fn func(ctx context.Context, videoId uuid.UUID)) {
	p.onComplete = fn
}

// Run blocks until ctx is cancelled. A task already dequeued is finished even after cancellation.
func (p *Processor) Run(ctx context.Context) {
	zerolog.Ctx(ctx).Info().Msg("event processor started")
	defer zerolog.Ctx(ctx).Info().Msg("event processor stopped")

	for ctx.Err() == nil {
		task, ok := p.queue.Get(ctx, p.pollTimeout)
		if !ok {
			continue
		}

		result := p.Process(context.WithoutCancel(ctx), task)
		logResult(ctx, task, result)

		if result.Panicked {
			select {
			case <-time.After(p.panicBackoff):
			case <-ctx.Done():
			}
		}
	}
}

// Process handles a single task. Progress always advances, whatever happens in between.
func (p *Processor) Process(ctx context.Context, task dto.ChunkTask) (result TaskResult) {
	logger := zerolog.Ctx(ctx).With().
		Str("video_id", task.VideoId.String()).
		Int("chunk_index", task.ChunkIndex).
		Logger()
	ctx = logger.WithContext(ctx)

	defer func() {
		if r := recover(); r != nil {
			logger.Error().Str("panic", fmt.Sprint(r)).Msg("chunk processing panicked")
			result.Panicked = true
		}
		completed, err := p.advance(ctx, task)
		result.Completed = completed
		result.Err = errors.Join(result.Err, err)
	}()

	useCase, ok := p.useCases.Get(task.UseCase)
	if !ok {
		logger.Error().Str("use_case", task.UseCase).Msg("unknown use case, skipping analysis")
		return result
	}

	switch outcome := p.analyzer.Analyze(ctx, task.ChunkPath, useCase).(type) {
	case analyzer.Failure:
		result.Failure = outcome.Reason
		if _, err := p.repo.IncrementFailed(ctx, task.VideoId); err != nil {
			result.Err = fmt.Errorf("increment failed chunks: %w", err)
		}
	case analyzer.Success:
		result.Err = p.persist(ctx, task, outcome, &result)
	default:
		logger.Warn().Msg("analyzer returned no outcome")
	}
	return result
}

func (p *Processor) persist(ctx context.Context, task dto.ChunkTask, outcome analyzer.Success, result *TaskResult) error {
	for _, finding := range outcome.Findings {
		duplicate, err := p.dedup.IsDuplicate(ctx, task.VideoId, finding.EventType, task.TimestampStart)
		if err != nil {
			return fmt.Errorf("dedup lookup: %w", err)
		}
		if duplicate {
			result.Duplicates++
			zerolog.Ctx(ctx).Debug().Str("event_type", finding.EventType).Msg("duplicate event skipped")
			continue
		}

		severity := ClassifySeverity(finding.EventType, finding.Description)
		event := entities.Event{
			VideoID:          task.VideoId,
			ChunkFilename:    task.ChunkFilename,
			ChunkIndex:       task.ChunkIndex,
			TimestampStart:   task.TimestampStart,
			TimestampEnd:     task.TimestampEnd,
			EventType:        finding.EventType,
			EventDescription: finding.Description,
			Confidence:       finding.Confidence,
			Explanation:      finding.Explanation,
			Status:           constant.EventStatusPendingReview,
			Severity:         &severity,
			DetectedAt:       p.now(),
		}
		if err := p.repo.InsertEvent(ctx, &event); err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
		result.Persisted++
		p.publisher.Publish(event)
	}

	if summary := strings.TrimSpace(outcome.Summary); summary != "" {
		err := p.repo.InsertSummary(ctx, &entities.ChunkSummary{
			VideoID:        task.VideoId,
			ChunkFilename:  task.ChunkFilename,
			ChunkIndex:     task.ChunkIndex,
			TimestampStart: task.TimestampStart,
			TimestampEnd:   task.TimestampEnd,
			Summary:        summary,
			DetectedAt:     p.now(),
		})
		if err != nil {
			return fmt.Errorf("insert summary: %w", err)
		}
		result.Summary = true
	}
	return nil
}

func (p *Processor) advance(ctx context.Context, task dto.ChunkTask) (bool, error) {
	processed, err := p.repo.IncrementProcessed(ctx, task.VideoId)
	if err != nil {
		return false, fmt.Errorf("increment processed chunks: %w", err)
	}
	completed, err := p.repo.MarkCompleteIfDone(ctx, task.VideoId, processed, task.TotalChunks)
	if err != nil {
		return false, fmt.Errorf("mark complete: %w", err)
	}
	if completed && p.onComplete != nil {
		p.onComplete(ctx, task.VideoId)
	}
	return completed, nil
}

func logResult(ctx context.Context, task dto.ChunkTask, result TaskResult) {
	event := zerolog.Ctx(ctx).Info()
	if result.Err != nil || result.Panicked {
		event = zerolog.Ctx(ctx).Error().Err(result.Err)
	}
	event.
		Str("video_id", task.VideoId.String()).
		Int("chunk_index", task.ChunkIndex).
		Int("persisted", result.Persisted).
		Int("duplicates", result.Duplicates).
		Bool("summary", result.Summary).
		Str("reason", result.Failure).
		Bool("completed", result.Completed).
		Msg("chunk processed")
}

package repository

import (
	"context"
	"github.com/google/uuid"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"
	"video-sentinel/constant"
	"video-sentinel/entities"
)

// memoryRepo keeps everything in process. Used by `store.driver: memory` and by tests.
// Text search requires every query term to appear; keyword filters accept any term.
type memoryRepo struct {
	mu        sync.RWMutex
	videos    map[uuid.UUID]*entities.Video
	events    []*entities.Event
	summaries []*entities.ChunkSummary
}

func NewMemoryRepo() Repository {
	return &memoryRepo{
		videos: make(map[uuid.UUID]*entities.Video),
	}
}

func (m *memoryRepo) Migrate(ctx context.Context) error {
	return nil
}

func (m *memoryRepo) CreateVideo(ctx context.Context, video *entities.Video) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if video.ID == uuid.Nil {
		video.ID = uuid.New()
	}
	if video.UploadTime.IsZero() {
		video.UploadTime = time.Now().UTC()
	}
	if video.Status == "" {
		video.Status = constant.VideoStatusUploaded
	}
	stored := *video
	m.videos[video.ID] = &stored
	return nil
}

func (m *memoryRepo) GetVideo(ctx context.Context, id uuid.UUID) (*entities.Video, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	video, ok := m.videos[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *video
	return &out, nil
}

func (m *memoryRepo) UpdateVideoStatus(ctx context.Context, id uuid.UUID, status constant.VideoStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if video, ok := m.videos[id]; ok && video.Status != constant.VideoStatusComplete {
		video.Status = status
	}
	return nil
}

func (m *memoryRepo) ResetVideoChunks(ctx context.Context, id uuid.UUID, total int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if video, ok := m.videos[id]; ok && video.Status != constant.VideoStatusComplete {
		video.ChunkCount = total
		video.ChunksProcessed = 0
		video.ChunksFailed = 0
		video.Status = constant.VideoStatusQueued
	}
	return nil
}

func (m *memoryRepo) IncrementProcessed(ctx context.Context, id uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	video, ok := m.videos[id]
	if !ok {
		return 0, ErrNotFound
	}
	if video.ChunkCount == 0 || video.ChunksProcessed < video.ChunkCount {
		video.ChunksProcessed++
	}
	return video.ChunksProcessed, nil
}

func (m *memoryRepo) IncrementFailed(ctx context.Context, id uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	video, ok := m.videos[id]
	if !ok {
		return 0, ErrNotFound
	}
	if video.ChunkCount == 0 || video.ChunksFailed < video.ChunkCount {
		video.ChunksFailed++
	}
	return video.ChunksFailed, nil
}

func (m *memoryRepo) MarkCompleteIfDone(ctx context.Context, id uuid.UUID, processed int, total int) (bool, error) {
	if total <= 0 || processed < total {
		return false, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	video, ok := m.videos[id]
	if !ok || video.Status == constant.VideoStatusComplete {
		return false, nil
	}
	video.Status = constant.VideoStatusComplete
	return true, nil
}

func (m *memoryRepo) InsertEvent(ctx context.Context, event *entities.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	stored := *event
	m.events = append(m.events, &stored)
	return nil
}

func (m *memoryRepo) UpdateEventReview(ctx context.Context, id uuid.UUID, review EventReview) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, event := range m.events {
		if event.ID != id {
			continue
		}
		event.Status = review.Status
		if review.Severity != nil {
			severity := *review.Severity
			event.Severity = &severity
		}
		event.ReviewerNotes = review.ReviewerNotes
		reviewedAt := review.ReviewedAt
		event.ReviewedAt = &reviewedAt
		return nil
	}
	return ErrNotFound
}

func (m *memoryRepo) GetEvent(ctx context.Context, id uuid.UUID) (*entities.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, event := range m.events {
		if event.ID == id {
			out := *event
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memoryRepo) ListEvents(ctx context.Context, filter EventFilter, limit int) ([]entities.Event, error) {
	return m.selectEvents(filter, nil, limit), nil
}

func (m *memoryRepo) TextSearchEvents(ctx context.Context, query string, filter EventFilter, limit int) ([]entities.Event, error) {
	terms := tokenize(query)
	if len(terms) == 0 {
		return nil, nil
	}
	return m.selectEvents(filter, terms, limit), nil
}

func (m *memoryRepo) FindRecentEvent(ctx context.Context, videoId uuid.UUID, eventType string, timestampStart float64, window float64) (*entities.Event, error) {
	if videoId == uuid.Nil || eventType == "" {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	low, high := max(0, timestampStart-window), timestampStart+window
	for _, event := range m.events {
		if event.VideoID == videoId && event.EventType == eventType &&
			event.TimestampStart >= low && event.TimestampStart <= high {
			out := *event
			return &out, nil
		}
	}
	return nil, nil
}

func (m *memoryRepo) EventStats(ctx context.Context, filter EventFilter) (*EventStats, error) {
	events := m.selectEvents(filter, nil, 0)

	stats := &EventStats{}
	byType := map[string]*TypeCount{}
	var confidence float64
	for _, event := range events {
		stats.Total++
		confidence += event.Confidence
		row, ok := byType[event.EventType]
		if !ok {
			row = &TypeCount{EventType: event.EventType}
			byType[event.EventType] = row
		}
		row.Count++
		switch event.Status {
		case constant.EventStatusConfirmed:
			stats.Confirmed++
			row.Confirmed++
		case constant.EventStatusDismissed:
			stats.Dismissed++
			row.Dismissed++
		}
	}
	if stats.Total > 0 {
		stats.AvgConfidence = confidence / float64(stats.Total)
	}
	for _, row := range byType {
		stats.ByType = append(stats.ByType, *row)
	}
	sort.Slice(stats.ByType, func(i, j int) bool {
		if stats.ByType[i].Count != stats.ByType[j].Count {
			return stats.ByType[i].Count > stats.ByType[j].Count
		}
		return stats.ByType[i].EventType < stats.ByType[j].EventType
	})
	return stats, nil
}

func (m *memoryRepo) InsertSummary(ctx context.Context, summary *entities.ChunkSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if summary.ID == uuid.Nil {
		summary.ID = uuid.New()
	}
	stored := *summary
	m.summaries = append(m.summaries, &stored)
	return nil
}

func (m *memoryRepo) ListSummaries(ctx context.Context, filter SummaryFilter, limit int) ([]entities.ChunkSummary, error) {
	return m.selectSummaries(filter, nil, limit), nil
}

func (m *memoryRepo) TextSearchSummaries(ctx context.Context, query string, filter SummaryFilter, limit int) ([]entities.ChunkSummary, error) {
	terms := tokenize(query)
	if len(terms) == 0 {
		return nil, nil
	}
	return m.selectSummaries(filter, terms, limit), nil
}

func (m *memoryRepo) selectEvents(f EventFilter, allTerms []string, limit int) []entities.Event {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []entities.Event
	for _, event := range m.events {
		if f.Status != "" && string(event.Status) != f.Status {
			continue
		}
		if f.EventType != "" && event.EventType != f.EventType {
			continue
		}
		if f.VideoId != nil && event.VideoID != *f.VideoId {
			continue
		}
		if !inRange(event.TimestampStart, f.TimestampFrom, f.TimestampTo) {
			continue
		}
		if f.DetectedFrom != nil && event.DetectedAt.Before(*f.DetectedFrom) {
			continue
		}
		if f.DetectedTo != nil && event.DetectedAt.After(*f.DetectedTo) {
			continue
		}
		text := event.EventType + " " + event.EventDescription + " " + event.Explanation
		if len(f.Keywords) > 0 && !containsAny(text, f.Keywords) {
			continue
		}
		if len(allTerms) > 0 && !containsAllTerms(text, allTerms) {
			continue
		}
		out = append(out, *event)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DetectedAt.After(out[j].DetectedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (m *memoryRepo) selectSummaries(f SummaryFilter, allTerms []string, limit int) []entities.ChunkSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []entities.ChunkSummary
	for _, summary := range m.summaries {
		if f.VideoId != nil && summary.VideoID != *f.VideoId {
			continue
		}
		if !inRange(summary.TimestampStart, f.TimestampFrom, f.TimestampTo) {
			continue
		}
		if len(f.Keywords) > 0 && !containsAny(summary.Summary, f.Keywords) {
			continue
		}
		if len(allTerms) > 0 && !containsAllTerms(summary.Summary, allTerms) {
			continue
		}
		out = append(out, *summary)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DetectedAt.After(out[j].DetectedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func inRange(v float64, from, to *float64) bool {
	if from != nil && v < *from {
		return false
	}
	if to != nil && v > *to {
		return false
	}
	return true
}

func containsAny(text string, keywords []string) bool {
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

func containsAllTerms(text string, terms []string) bool {
	words := map[string]struct{}{}
	for _, w := range tokenize(text) {
		words[w] = struct{}{}
	}
	for _, term := range terms {
		if _, ok := words[term]; !ok {
			return false
		}
	}
	return true
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

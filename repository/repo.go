package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
	"strings"
	"time"
	"video-sentinel/constant"
	"video-sentinel/entities"
)

var ErrNotFound = errors.New("record not found")

// EventFilter narrows event queries. Zero fields are ignored.
type EventFilter struct {
	Status        string
	EventType     string
	VideoId       *uuid.UUID
	TimestampFrom *float64
	TimestampTo   *float64
	DetectedFrom  *time.Time
	DetectedTo    *time.Time
	// Keywords match case-insensitively against type, description or explanation; any keyword is enough.
	Keywords []string
}

type SummaryFilter struct {
	VideoId       *uuid.UUID
	TimestampFrom *float64
	TimestampTo   *float64
	Keywords      []string
}

type EventReview struct {
	Status        constant.EventStatus
	Severity      *constant.Severity
	ReviewerNotes *string
	ReviewedAt    time.Time
}

type TypeCount struct {
	EventType string
	Count     int
	Confirmed int
	Dismissed int
}

type EventStats struct {
	Total         int
	Confirmed     int
	Dismissed     int
	AvgConfidence float64
	ByType        []TypeCount
}

type Repository interface {
	Migrate(ctx context.Context) error

	CreateVideo(ctx context.Context, video *entities.Video) error
	GetVideo(ctx context.Context, id uuid.UUID) (*entities.Video, error)
	// UpdateVideoStatus never moves a video out of the complete state.
	UpdateVideoStatus(ctx context.Context, id uuid.UUID, status constant.VideoStatus) error
	ResetVideoChunks(ctx context.Context, id uuid.UUID, total int) error
	// IncrementProcessed counts every accounted segment, failed ones included. It never exceeds the total.
	IncrementProcessed(ctx context.Context, id uuid.UUID) (int, error)
	// IncrementFailed counts segments whose analysis failed. Failed segments are a subset of processed ones,
	// so failed <= processed <= total holds; the two counters are not additive.
	IncrementFailed(ctx context.Context, id uuid.UUID) (int, error)
	// MarkCompleteIfDone reports whether this call performed the transition to complete.
	MarkCompleteIfDone(ctx context.Context, id uuid.UUID, processed int, total int) (bool, error)

	InsertEvent(ctx context.Context, event *entities.Event) error
	UpdateEventReview(ctx context.Context, id uuid.UUID, review EventReview) error
	GetEvent(ctx context.Context, id uuid.UUID) (*entities.Event, error)
	ListEvents(ctx context.Context, filter EventFilter, limit int) ([]entities.Event, error)
	TextSearchEvents(ctx context.Context, query string, filter EventFilter, limit int) ([]entities.Event, error)
	// FindRecentEvent returns nil, nil when nothing lies inside the window.
	FindRecentEvent(ctx context.Context, videoId uuid.UUID, eventType string, timestampStart float64, window float64) (*entities.Event, error)
	EventStats(ctx context.Context, filter EventFilter) (*EventStats, error)

	InsertSummary(ctx context.Context, summary *entities.ChunkSummary) error
	ListSummaries(ctx context.Context, filter SummaryFilter, limit int) ([]entities.ChunkSummary, error)
	TextSearchSummaries(ctx context.Context, query string, filter SummaryFilter, limit int) ([]entities.ChunkSummary, error)
}

const (
	eventDocument   = "event_type || ' ' || coalesce(event_description, '') || ' ' || coalesce(explanation, '')"
	summaryDocument = "summary"
)

type repo struct {
	db *gorm.DB
}

func NewRepo(db *sql.DB, verbose bool) (Repository, error) {
	level := logger.Warn
	if verbose {
		level = logger.Info
	}
	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db}),
		&gorm.Config{
			Logger: logger.Default.LogMode(level),
		},
	)
	if err != nil {
		return nil, err
	}
	return &repo{
		db: gormDB,
	}, nil
}

func (r *repo) GetDB(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx)
}

func (r *repo) Migrate(ctx context.Context) error {
	if err := r.GetDB(ctx).AutoMigrate(&entities.Video{}, &entities.Event{}, &entities.ChunkSummary{}); err != nil {
		return err
	}

	indexes := []string{
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_events_fts ON events USING GIN (to_tsvector('english', %s))", eventDocument),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_chunk_summaries_fts ON chunk_summaries USING GIN (to_tsvector('english', %s))", summaryDocument),
	}
	for _, stmt := range indexes {
		if err := r.GetDB(ctx).Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *repo) CreateVideo(ctx context.Context, video *entities.Video) error {
	if video.ID == uuid.Nil {
		video.ID = uuid.New()
	}
	if video.UploadTime.IsZero() {
		video.UploadTime = time.Now().UTC()
	}
	return r.GetDB(ctx).Create(video).Error
}

func (r *repo) GetVideo(ctx context.Context, id uuid.UUID) (*entities.Video, error) {
	video := &entities.Video{}
	err := r.GetDB(ctx).First(video, "id = ?", id).Error
	if err != nil {
		return nil, mapErr(err)
	}

	return video, nil
}

func (r *repo) UpdateVideoStatus(ctx context.Context, id uuid.UUID, status constant.VideoStatus) error {
	return r.GetDB(ctx).Model(&entities.Video{}).
		Where("id = ? AND status <> ?", id, constant.VideoStatusComplete).
		Update("status", status).Error
}

func (r *repo) ResetVideoChunks(ctx context.Context, id uuid.UUID, total int) error {
	updates := map[string]interface{}{
		"chunk_count":      total,
		"chunks_processed": 0,
		"chunks_failed":    0,
		"status":           constant.VideoStatusQueued,
	}
	return r.GetDB(ctx).Model(&entities.Video{}).
		Where("id = ? AND status <> ?", id, constant.VideoStatusComplete).
		Updates(updates).Error
}

func (r *repo) IncrementProcessed(ctx context.Context, id uuid.UUID) (int, error) {
	return r.increment(ctx, id, "chunks_processed")
}

func (r *repo) IncrementFailed(ctx context.Context, id uuid.UUID) (int, error) {
	return r.increment(ctx, id, "chunks_failed")
}

// increment is a single UPDATE ... RETURNING so concurrent workers never lose a count.
// Counters stop at chunk_count once it is known.
func (r *repo) increment(ctx context.Context, id uuid.UUID, column string) (int, error) {
	var rows []entities.Video
	res := r.GetDB(ctx).Model(&rows).
		Clauses(clause.Returning{Columns: []clause.Column{{Name: column}}}).
		Where(fmt.Sprintf("id = ? AND (chunk_count = 0 OR %s < chunk_count)", column), id).
		UpdateColumn(column, gorm.Expr(column+" + 1"))
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 || len(rows) == 0 {
		video, err := r.GetVideo(ctx, id)
		if err != nil {
			return 0, err
		}
		if column == "chunks_failed" {
			return video.ChunksFailed, nil
		}
		return video.ChunksProcessed, nil
	}

	if column == "chunks_failed" {
		return rows[0].ChunksFailed, nil
	}
	return rows[0].ChunksProcessed, nil
}

func (r *repo) MarkCompleteIfDone(ctx context.Context, id uuid.UUID, processed int, total int) (bool, error) {
	if total <= 0 || processed < total {
		return false, nil
	}
	res := r.GetDB(ctx).Model(&entities.Video{}).
		Where("id = ? AND status <> ?", id, constant.VideoStatusComplete).
		Update("status", constant.VideoStatusComplete)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) InsertEvent(ctx context.Context, event *entities.Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	return r.GetDB(ctx).Create(event).Error
}

func (r *repo) UpdateEventReview(ctx context.Context, id uuid.UUID, review EventReview) error {
	updates := map[string]interface{}{
		"status":         review.Status,
		"reviewer_notes": review.ReviewerNotes,
		"reviewed_at":    review.ReviewedAt,
	}
	if review.Severity != nil {
		updates["severity"] = *review.Severity
	}
	res := r.GetDB(ctx).Model(&entities.Event{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repo) GetEvent(ctx context.Context, id uuid.UUID) (*entities.Event, error) {
	event := &entities.Event{}
	err := r.GetDB(ctx).First(event, "id = ?", id).Error
	if err != nil {
		return nil, mapErr(err)
	}
	return event, nil
}

func (r *repo) ListEvents(ctx context.Context, filter EventFilter, limit int) ([]entities.Event, error) {
	var events []entities.Event
	err := applyEventFilter(r.GetDB(ctx).Model(&entities.Event{}), filter).
		Order("detected_at DESC").Order("id").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (r *repo) TextSearchEvents(ctx context.Context, query string, filter EventFilter, limit int) ([]entities.Event, error) {
	var events []entities.Event
	err := applyEventFilter(r.GetDB(ctx).Model(&entities.Event{}), filter).
		Where(fmt.Sprintf("to_tsvector('english', %s) @@ plainto_tsquery('english', ?)", eventDocument), query).
		Order("detected_at DESC").Order("id").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (r *repo) FindRecentEvent(ctx context.Context, videoId uuid.UUID, eventType string, timestampStart float64, window float64) (*entities.Event, error) {
	if videoId == uuid.Nil || eventType == "" {
		return nil, nil
	}
	var events []entities.Event
	err := r.GetDB(ctx).
		Where("video_id = ? AND event_type = ?", videoId, eventType).
		Where("timestamp_start BETWEEN ? AND ?", max(0, timestampStart-window), timestampStart+window).
		Limit(1).
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}
	return &events[0], nil
}

func (r *repo) EventStats(ctx context.Context, filter EventFilter) (*EventStats, error) {
	var totals struct {
		Total         int
		Confirmed     int
		Dismissed     int
		AvgConfidence float64
	}
	err := applyEventFilter(r.GetDB(ctx).Model(&entities.Event{}), filter).
		Select(
			"count(*) AS total, "+
				"count(*) FILTER (WHERE status = ?) AS confirmed, "+
				"count(*) FILTER (WHERE status = ?) AS dismissed, "+
				"coalesce(avg(confidence), 0) AS avg_confidence",
			constant.EventStatusConfirmed, constant.EventStatusDismissed).
		Scan(&totals).Error
	if err != nil {
		return nil, err
	}

	var rows []TypeCount
	err = applyEventFilter(r.GetDB(ctx).Model(&entities.Event{}), filter).
		Select(
			"event_type, count(*) AS count, "+
				"count(*) FILTER (WHERE status = ?) AS confirmed, "+
				"count(*) FILTER (WHERE status = ?) AS dismissed",
			constant.EventStatusConfirmed, constant.EventStatusDismissed).
		Group("event_type").
		Order("count DESC").Order("event_type").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	return &EventStats{
		Total:         totals.Total,
		Confirmed:     totals.Confirmed,
		Dismissed:     totals.Dismissed,
		AvgConfidence: totals.AvgConfidence,
		ByType:        rows,
	}, nil
}

func (r *repo) InsertSummary(ctx context.Context, summary *entities.ChunkSummary) error {
	if summary.ID == uuid.Nil {
		summary.ID = uuid.New()
	}
	return r.GetDB(ctx).Create(summary).Error
}

func (r *repo) ListSummaries(ctx context.Context, filter SummaryFilter, limit int) ([]entities.ChunkSummary, error) {
	var summaries []entities.ChunkSummary
	err := applySummaryFilter(r.GetDB(ctx).Model(&entities.ChunkSummary{}), filter).
		Order("detected_at DESC").Order("id").
		Limit(limit).
		Find(&summaries).Error
	if err != nil {
		return nil, err
	}
	return summaries, nil
}

func (r *repo) TextSearchSummaries(ctx context.Context, query string, filter SummaryFilter, limit int) ([]entities.ChunkSummary, error) {
	var summaries []entities.ChunkSummary
	err := applySummaryFilter(r.GetDB(ctx).Model(&entities.ChunkSummary{}), filter).
		Where(fmt.Sprintf("to_tsvector('english', %s) @@ plainto_tsquery('english', ?)", summaryDocument), query).
		Order("detected_at DESC").Order("id").
		Limit(limit).
		Find(&summaries).Error
	if err != nil {
		return nil, err
	}
	return summaries, nil
}

func applyEventFilter(q *gorm.DB, f EventFilter) *gorm.DB {
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.EventType != "" {
		q = q.Where("event_type = ?", f.EventType)
	}
	if f.VideoId != nil {
		q = q.Where("video_id = ?", *f.VideoId)
	}
	if f.TimestampFrom != nil {
		q = q.Where("timestamp_start >= ?", *f.TimestampFrom)
	}
	if f.TimestampTo != nil {
		q = q.Where("timestamp_start <= ?", *f.TimestampTo)
	}
	if f.DetectedFrom != nil {
		q = q.Where("detected_at >= ?", *f.DetectedFrom)
	}
	if f.DetectedTo != nil {
		q = q.Where("detected_at <= ?", *f.DetectedTo)
	}
	if len(f.Keywords) > 0 {
		q = q.Where(keywordClause(f.Keywords, "event_type", "event_description", "explanation"))
	}
	return q
}

func applySummaryFilter(q *gorm.DB, f SummaryFilter) *gorm.DB {
	if f.VideoId != nil {
		q = q.Where("video_id = ?", *f.VideoId)
	}
	if f.TimestampFrom != nil {
		q = q.Where("timestamp_start >= ?", *f.TimestampFrom)
	}
	if f.TimestampTo != nil {
		q = q.Where("timestamp_start <= ?", *f.TimestampTo)
	}
	if len(f.Keywords) > 0 {
		q = q.Where(keywordClause(f.Keywords, "summary"))
	}
	return q
}

func keywordClause(keywords []string, columns ...string) clause.Expr {
	var parts []string
	var args []interface{}
	for _, kw := range keywords {
		pattern := "%" + escapeLike(kw) + "%"
		for _, col := range columns {
			parts = append(parts, col+" ILIKE ?")
			args = append(args, pattern)
		}
	}
	return gorm.Expr("("+strings.Join(parts, " OR ")+")", args...)
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func mapErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

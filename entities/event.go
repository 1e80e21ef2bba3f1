package entities

import (
	"github.com/google/uuid"
	"time"
	"video-sentinel/constant"
)

// Event is a deduplicated detection. Only the review operation mutates it after insert.
type Event struct {
	ID               uuid.UUID            `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	VideoID          uuid.UUID            `json:"video_id" gorm:"type:uuid;not null;index:idx_events_video_chunk,priority:1;index:idx_events_dedup,priority:1"`
	ChunkFilename    string               `json:"chunk_filename" gorm:"type:varchar(255)"`
	ChunkIndex       int                  `json:"chunk_index" gorm:"index:idx_events_video_chunk,priority:2"`
	TimestampStart   float64              `json:"timestamp_start" gorm:"index:idx_events_dedup,priority:3"`
	TimestampEnd     float64              `json:"timestamp_end"`
	EventType        string               `json:"event_type" gorm:"type:varchar(100);not null;index:idx_events_dedup,priority:2"`
	EventDescription string               `json:"event_description" gorm:"type:text"`
	Confidence       float64              `json:"confidence"`
	Explanation      string               `json:"explanation" gorm:"type:text"`
	Status           constant.EventStatus `json:"status" gorm:"type:varchar(30);not null;default:'pending_review';index"`
	Severity         *constant.Severity   `json:"severity" gorm:"type:varchar(10)"`
	ReviewerNotes    *string              `json:"reviewer_notes" gorm:"type:text"`
	DetectedAt       time.Time            `json:"detected_at" gorm:"type:timestamptz;not null;index"`
	ReviewedAt       *time.Time           `json:"reviewed_at" gorm:"type:timestamptz"`
}

func (Event) TableName() string {
	return "events"
}

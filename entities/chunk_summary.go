package entities

import (
	"github.com/google/uuid"
	"time"
)

type ChunkSummary struct {
	ID             uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	VideoID        uuid.UUID `json:"video_id" gorm:"type:uuid;not null;index:idx_chunk_summaries_video_chunk,priority:1"`
	ChunkFilename  string    `json:"chunk_filename" gorm:"type:varchar(255)"`
	ChunkIndex     int       `json:"chunk_index" gorm:"index:idx_chunk_summaries_video_chunk,priority:2"`
	TimestampStart float64   `json:"timestamp_start"`
	TimestampEnd   float64   `json:"timestamp_end"`
	Summary        string    `json:"summary" gorm:"type:text;not null"`
	DetectedAt     time.Time `json:"detected_at" gorm:"type:timestamptz;not null;index"`
}

func (ChunkSummary) TableName() string {
	return "chunk_summaries"
}

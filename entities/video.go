package entities

import (
	"github.com/google/uuid"
	"time"
	"video-sentinel/constant"
)

type Video struct {
	ID              uuid.UUID            `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	Filename        string               `json:"filename" gorm:"type:varchar(500);not null"`
	ObjectName      string               `json:"object_name" gorm:"type:varchar(500);not null"`
	OriginalName    string               `json:"original_name" gorm:"type:varchar(500)"`
	UseCase         string               `json:"use_case" gorm:"type:varchar(100);not null"`
	Status          constant.VideoStatus `json:"status" gorm:"type:varchar(30);not null;default:'uploaded'"`
	DurationSeconds float64              `json:"duration_seconds" gorm:"default:0"`
	ChunkCount      int                  `json:"chunk_count" gorm:"not null;default:0"`
	ChunksProcessed int                  `json:"chunks_processed" gorm:"not null;default:0"`
	ChunksFailed    int                  `json:"chunks_failed" gorm:"not null;default:0"`
	UploadTime      time.Time            `json:"upload_time" gorm:"type:timestamptz;not null;default:CURRENT_TIMESTAMP;index:idx_videos_upload_time"`
}

func (Video) TableName() string {
	return "videos"
}

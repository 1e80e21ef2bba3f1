package dto

import (
	"github.com/google/uuid"
	"time"
)

// SegmentationMessage asks a worker to split an uploaded video and enqueue its segments.
type SegmentationMessage struct {
	VideoId              uuid.UUID `json:"videoId"`
	UseCase              string    `json:"useCase"`
	ChunkDurationSeconds int       `json:"chunkDurationSeconds"`
}

// ChunkTask describes one segment waiting for analysis. Values are never mutated after enqueue.
type ChunkTask struct {
	VideoId        uuid.UUID
	ChunkPath      string
	ChunkFilename  string
	ChunkIndex     int
	TimestampStart float64
	TimestampEnd   float64
	UseCase        string
	TotalChunks    int
}

type StartMonitoringRequest struct {
	VideoId              string `json:"video_id" binding:"required"`
	UseCase              string `json:"use_case"`
	ChunkDurationSeconds int    `json:"chunk_duration_seconds"`
}

type ReviewRequest struct {
	Status        string  `json:"status" binding:"required"`
	Severity      *string `json:"severity"`
	ReviewerNotes *string `json:"reviewer_notes"`
}

type SearchRequest struct {
	Query     string `json:"query"`
	Limit     int    `json:"limit"`
	Status    string `json:"status"`
	EventType string `json:"event_type"`
	VideoId   string `json:"video_id"`
	Mode      string `json:"mode"`
}

type UploadResponse struct {
	VideoId  string `json:"video_id"`
	Filename string `json:"filename"`
	UseCase  string `json:"use_case"`
	Status   string `json:"status"`
}

type UseCaseOut struct {
	Key     string   `json:"key"`
	Name    string   `json:"name"`
	Events  []string `json:"events"`
	Context string   `json:"context"`
}

// SearchResult is the event-shaped row returned by search; summaries appear with event_type "Context".
type SearchResult struct {
	Id               string     `json:"id"`
	VideoId          string     `json:"video_id"`
	ChunkFilename    string     `json:"chunk_filename"`
	ChunkIndex       int        `json:"chunk_index"`
	TimestampStart   float64    `json:"timestamp_start"`
	TimestampEnd     float64    `json:"timestamp_end"`
	EventType        string     `json:"event_type"`
	EventDescription string     `json:"event_description"`
	Confidence       float64    `json:"confidence"`
	Explanation      string     `json:"explanation,omitempty"`
	Status           string     `json:"status"`
	Severity         *string    `json:"severity"`
	ReviewerNotes    *string    `json:"reviewer_notes"`
	DetectedAt       *time.Time `json:"detected_at,omitempty"`
	ReviewedAt       *time.Time `json:"reviewed_at,omitempty"`
}

type SearchResponse struct {
	Answer  string         `json:"answer"`
	Results []SearchResult `json:"results"`
}

type VideoResponse struct {
	Id              string  `json:"id"`
	Filename        string  `json:"filename"`
	OriginalName    string  `json:"original_name"`
	UseCase         string  `json:"use_case"`
	Status          string  `json:"status"`
	ChunkCount      int     `json:"chunk_count"`
	ChunksProcessed int     `json:"chunks_processed"`
	DurationSeconds float64 `json:"duration_seconds"`
	SourceUrl       string  `json:"source_url"`
}

type ProcessingResponse struct {
	Progress       int `json:"progress"`
	ChunksAnalyzed int `json:"chunksAnalyzed"`
	TotalChunks    int `json:"totalChunks"`
	FailedChunks   int `json:"failedChunks"`
}

type AnalyticsSummary struct {
	TotalEvents   int `json:"totalEvents"`
	Confirmed     int `json:"confirmed"`
	Dismissed     int `json:"dismissed"`
	AiAccuracy    int `json:"aiAccuracy"`
	AvgConfidence int `json:"avgConfidence"`
}

type EventTypeStat struct {
	EventType string `json:"eventType"`
	Count     int    `json:"count"`
	Confirmed int    `json:"confirmed"`
	Accuracy  int    `json:"accuracy"`
}

type AnalyticsResponse struct {
	Summary    AnalyticsSummary `json:"summary"`
	EventStats []EventTypeStat  `json:"eventStats"`
}

type StatusResponse struct {
	QueueSize  int      `json:"queue_size"`
	ActiveJobs []string `json:"active_jobs"`
	Published  uint64   `json:"alerts_published"`
	Dropped    uint64   `json:"alerts_dropped"`
}

package constant

type VideoStatus string

const (
	VideoStatusUploaded         VideoStatus = "uploaded"
	VideoStatusProcessing       VideoStatus = "processing"
	VideoStatusQueued           VideoStatus = "queued"
	VideoStatusProcessingEvents VideoStatus = "processing_events"
	VideoStatusComplete         VideoStatus = "complete"
	VideoStatusFailed           VideoStatus = "failed"
	VideoStatusStopped          VideoStatus = "stopped"
)

type EventStatus string

const (
	EventStatusPendingReview EventStatus = "pending_review"
	EventStatusConfirmed     EventStatus = "confirmed"
	EventStatusDismissed     EventStatus = "dismissed"
)

func (s EventStatus) Valid() bool {
	switch s {
	case EventStatusPendingReview, EventStatusConfirmed, EventStatusDismissed:
		return true
	}
	return false
}

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return true
	}
	return false
}

type SearchMode string

const (
	SearchModeMonitor SearchMode = "monitor"
	SearchModeAsk     SearchMode = "ask"
)

// Failure reasons reported by the analysis port.
const (
	ReasonDisabled      = "disabled"
	ReasonFFmpegError   = "ffmpeg_error"
	ReasonNoFrames      = "no_frames"
	ReasonInvalidJSON   = "invalid_json"
	ReasonModelNotFound = "model_not_found"
	ReasonRequestFailed = "request_failed"
)

type Environment string

const (
	EnvironmentProduction Environment = "production"
	EnvironmentStaging    Environment = "staging"
	EnvironmentDevelop    Environment = "develop"
)

func (e Environment) String() string {
	return string(e)
}

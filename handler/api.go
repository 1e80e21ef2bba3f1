package handler

import (
	"errors"
	"fmt"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
	"video-sentinel/config"
	"video-sentinel/constant"
	"video-sentinel/dto"
	"video-sentinel/entities"
	"video-sentinel/pkg/broker"
	"video-sentinel/repository"
	"video-sentinel/service"
)

type API struct {
	monitoring *service.MonitoringService
	search     *service.SearchService
	events     *service.EventService
	analytics  *service.AnalyticsService
	broker     *broker.Broker
	useCases   config.UseCases

	closing   chan struct{}
	closeOnce sync.Once
}

func NewAPI(
	monitoring *service.MonitoringService,
	search *service.SearchService,
	events *service.EventService,
	analytics *service.AnalyticsService,
	b *broker.Broker,
	useCases config.UseCases,
) *API {
	return &API{
		monitoring: monitoring,
		search:     search,
		events:     events,
		analytics:  analytics,
		broker:     b,
		useCases:   useCases,
		closing:    make(chan struct{}),
	}
}

// Close ends every open event stream. Shutdown waits for active handlers and streams never return on their own.
func (a *API) Close() {
	a.closeOnce.Do(func() { close(a.closing) })
}

// RegisterRoutes mounts the HTTP surface on r.
func RegisterRoutes(r *gin.Engine, api *API) {
	r.GET("/health", api.handleHealth)

	group := r.Group("/api")
	group.GET("/use-cases", api.handleUseCases)
	group.POST("/upload", api.handleUpload)
	group.POST("/start-monitoring", api.handleStartMonitoring)
	group.POST("/stop-monitoring", api.handleStopMonitoring)
	group.GET("/status", api.handleStatus)
	group.GET("/analytics", api.handleAnalytics)

	group.GET("/videos/:id", api.handleGetVideo)
	group.GET("/videos/:id/processing", api.handleProcessing)
	group.GET("/videos/:id/source", api.handleSource)
	group.GET("/video/:video_id/:chunk_filename", api.handleChunk)

	group.GET("/events", api.handleListEvents)
	group.GET("/events/stream", api.handleEventStream)
	group.POST("/events/:id/review", api.handleReview)

	group.POST("/search", api.handleSearch)
}

func (a *API) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (a *API) handleUseCases(c *gin.Context) {
	items := a.useCases.List()
	out := make([]dto.UseCaseOut, 0, len(items))
	for _, uc := range items {
		out = append(out, dto.UseCaseOut{Key: uc.Key, Name: uc.Name, Events: uc.Events, Context: uc.Context})
	}
	c.JSON(http.StatusOK, out)
}

func (a *API) handleUpload(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		respondMessage(c, http.StatusBadRequest, "file is required")
		return
	}
	file, err := header.Open()
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	defer file.Close()

	video, err := a.monitoring.Upload(c.Request.Context(), service.UploadInput{
		OriginalName: header.Filename,
		UseCase:      c.PostForm("use_case"),
		Body:         file,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.UploadResponse{
		VideoId:  video.ID.String(),
		Filename: video.Filename,
		UseCase:  video.UseCase,
		Status:   string(video.Status),
	})
}

func (a *API) handleStartMonitoring(c *gin.Context) {
	var req dto.StartMonitoringRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	msg, err := a.monitoring.Start(c.Request.Context(), req)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":                 "started",
		"video_id":               msg.VideoId.String(),
		"use_case":               msg.UseCase,
		"chunk_duration_seconds": msg.ChunkDurationSeconds,
	})
}

func (a *API) handleStopMonitoring(c *gin.Context) {
	var videoId *uuid.UUID
	if raw := c.Query("video_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			respondError(c, http.StatusBadRequest, service.ErrInvalidVideoId)
			return
		}
		videoId = &id
	}

	cleared, err := a.monitoring.Stop(c.Request.Context(), videoId)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "stopped", "cleared_tasks": cleared})
}

func (a *API) handleStatus(c *gin.Context) {
	jobs, err := a.monitoring.ActiveJobs(c.Request.Context())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	stats := a.broker.Stats()
	c.JSON(http.StatusOK, dto.StatusResponse{
		QueueSize:  a.monitoring.QueueSize(),
		ActiveJobs: jobs,
		Published:  stats.Published,
		Dropped:    stats.Dropped,
	})
}

func (a *API) handleAnalytics(c *gin.Context) {
	var filter repository.EventFilter
	var err error
	if filter.DetectedFrom, err = parseTimeParam(c.Query("from_date")); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	if filter.DetectedTo, err = parseTimeParam(c.Query("to_date")); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	if filter.VideoId, err = parseOptionalId(c.Query("video_id")); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	out, err := a.analytics.Summary(c.Request.Context(), filter)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (a *API) handleGetVideo(c *gin.Context) {
	video, ok := a.loadVideo(c, c.Param("id"))
	if !ok {
		return
	}
	c.JSON(http.StatusOK, dto.VideoResponse{
		Id:              video.ID.String(),
		Filename:        video.Filename,
		OriginalName:    video.OriginalName,
		UseCase:         video.UseCase,
		Status:          string(video.Status),
		ChunkCount:      video.ChunkCount,
		ChunksProcessed: video.ChunksProcessed,
		DurationSeconds: video.DurationSeconds,
		SourceUrl:       fmt.Sprintf("/api/videos/%s/source", video.ID),
	})
}

func (a *API) handleProcessing(c *gin.Context) {
	video, ok := a.loadVideo(c, c.Param("id"))
	if !ok {
		return
	}
	progress := 0
	if video.ChunkCount > 0 {
		progress = video.ChunksProcessed * 100 / video.ChunkCount
	}
	if video.Status == constant.VideoStatusComplete {
		progress = 100
	}
	c.JSON(http.StatusOK, dto.ProcessingResponse{
		Progress:       progress,
		ChunksAnalyzed: video.ChunksProcessed,
		TotalChunks:    video.ChunkCount,
		FailedChunks:   video.ChunksFailed,
	})
}

func (a *API) handleSource(c *gin.Context) {
	video, ok := a.loadVideo(c, c.Param("id"))
	if !ok {
		return
	}
	remote, local, err := a.monitoring.SourceURL(c.Request.Context(), video)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	if remote != "" {
		c.Redirect(http.StatusFound, remote)
		return
	}
	c.File(local)
}

func (a *API) handleChunk(c *gin.Context) {
	videoId, err := uuid.Parse(c.Param("video_id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, service.ErrInvalidVideoId)
		return
	}
	path, err := a.monitoring.ChunkPath(videoId, c.Param("chunk_filename"))
	if err != nil {
		respondMessage(c, http.StatusNotFound, "chunk not found")
		return
	}
	c.File(path)
}

func (a *API) handleListEvents(c *gin.Context) {
	filter := repository.EventFilter{
		Status:    c.Query("status"),
		EventType: c.Query("event_type"),
	}
	var err error
	if filter.VideoId, err = parseOptionalId(c.Query("video_id")); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	limit := service.DefaultEventLimit
	if raw := c.Query("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > service.MaxEventLimit {
			respondMessage(c, http.StatusBadRequest, fmt.Sprintf("limit must be between 1 and %d", service.MaxEventLimit))
			return
		}
	}

	results, err := a.events.List(c.Request.Context(), filter, limit)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, results)
}

// handleEventStream pushes every newly persisted event as an "alert" server-sent event.
func (a *API) handleEventStream(c *gin.Context) {
	mailbox := a.broker.Subscribe()
	defer a.broker.Unsubscribe(mailbox)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case event, ok := <-mailbox.Events():
			if !ok {
				return false
			}
			c.SSEvent("alert", service.ToSearchResult(event))
			return true
		case <-ctx.Done():
			return false
		case <-a.closing:
			return false
		}
	})
}

func (a *API) handleReview(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondMessage(c, http.StatusBadRequest, "invalid event id")
		return
	}
	var req dto.ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	event, err := a.events.Review(c.Request.Context(), id, req)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, service.ToSearchResult(*event))
}

func (a *API) handleSearch(c *gin.Context) {
	var req dto.SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	if req.Limit < 0 || req.Limit > service.MaxSearchLimit {
		respondMessage(c, http.StatusBadRequest, fmt.Sprintf("limit must be between 1 and %d", service.MaxSearchLimit))
		return
	}
	mode := constant.SearchMode(strings.ToLower(strings.TrimSpace(req.Mode)))
	switch mode {
	case "":
		mode = constant.SearchModeMonitor
	case constant.SearchModeMonitor, constant.SearchModeAsk:
	default:
		respondMessage(c, http.StatusBadRequest, "mode must be monitor or ask")
		return
	}
	videoId, err := parseOptionalId(req.VideoId)
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	resp, err := a.search.Search(c.Request.Context(), service.SearchQuery{
		Query:     req.Query,
		Limit:     req.Limit,
		Status:    req.Status,
		EventType: req.EventType,
		VideoId:   videoId,
		Mode:      mode,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (a *API) loadVideo(c *gin.Context, raw string) (*entities.Video, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		respondError(c, http.StatusBadRequest, service.ErrInvalidVideoId)
		return nil, false
	}
	video, err := a.monitoring.GetVideo(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			respondMessage(c, http.StatusNotFound, "video not found")
			return nil, false
		}
		respondServiceError(c, err)
		return nil, false
	}
	return video, true
}

var timeLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

func parseTimeParam(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, fmt.Errorf("invalid datetime: %s", raw)
}

func parseOptionalId(raw string) (*uuid.UUID, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, service.ErrInvalidVideoId
	}
	return &id, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, service.ErrSourceNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrInvalidUseCase),
		errors.Is(err, service.ErrInvalidChunkDuration),
		errors.Is(err, service.ErrInvalidVideoId),
		errors.Is(err, service.ErrInvalidStatus),
		errors.Is(err, service.ErrInvalidSeverity):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrAlreadyMonitoring), errors.Is(err, service.ErrVideoComplete):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func respondServiceError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		respondMessage(c, status, "internal server error")
		return
	}
	respondError(c, status, err)
}

func respondError(c *gin.Context, status int, err error) {
	respondMessage(c, status, err.Error())
}

func respondMessage(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": message})
}

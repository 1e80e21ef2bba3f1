package handler

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"video-sentinel/config"
	"video-sentinel/constant"
	"video-sentinel/dto"
	"video-sentinel/entities"
	"video-sentinel/pkg/broker"
	"video-sentinel/repository"
	"video-sentinel/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type stubSegmenter struct{}

func (stubSegmenter) Split(ctx context.Context, videoPath, outputDir string, chunkSeconds int) ([]string, error) {
	return []string{filepath.Join(outputDir, "chunk_0000.mp4")}, nil
}

func (stubSegmenter) Duration(ctx context.Context, videoPath string) (float64, error) {
	return 12, nil
}

type nopDispatcher struct {
	count int
}

func (d *nopDispatcher) Dispatch(ctx context.Context, msg dto.SegmentationMessage) error {
	d.count++
	return nil
}

type apiFixture struct {
	engine     *gin.Engine
	api        *API
	repo       repository.Repository
	broker     *broker.Broker
	dispatcher *nopDispatcher
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	useCases, err := config.LoadUseCases("")
	if err != nil {
		t.Fatalf("LoadUseCases: %v", err)
	}
	f := &apiFixture{
		repo:       repository.NewMemoryRepo(),
		broker:     broker.New(10),
		dispatcher: &nopDispatcher{},
	}
	monitoring := service.NewMonitoringService(service.MonitoringOptions{
		Repo:       f.repo,
		Queue:      service.NewTaskQueue(10),
		Registry:   service.NewMemoryRegistry(),
		Dispatcher: f.dispatcher,
		Segmenter:  stubSegmenter{},
		UseCases:   useCases,
		Pipeline:   config.Pipeline{DataDir: t.TempDir(), ChunkDurationSeconds: 6},
	})
	api := NewAPI(
		monitoring,
		service.NewSearchService(f.repo),
		service.NewEventService(f.repo),
		service.NewAnalyticsService(f.repo),
		f.broker,
		useCases,
	)

	f.api = api
	f.engine = gin.New()
	f.engine.Use(gin.Recovery())
	RegisterRoutes(f.engine, api)
	return f
}

func (f *apiFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)
	return rec
}

func (f *apiFixture) upload(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", "lobby.mp4")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	part.Write([]byte("fake video"))
	writer.WriteField("use_case", "traffic")
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("upload status %d: %s", rec.Code, rec.Body.String())
	}

	var resp dto.UploadResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode upload: %v", err)
	}
	if resp.UseCase != "traffic" || resp.Status != string(constant.VideoStatusUploaded) {
		t.Fatalf("unexpected upload response %+v", resp)
	}
	return resp.VideoId
}

func (f *apiFixture) seedEvent(t *testing.T, eventType string, confidence float64) entities.Event {
	t.Helper()
	event := entities.Event{
		ID:               uuid.New(),
		VideoID:          uuid.New(),
		ChunkFilename:    "chunk_0001.mp4",
		ChunkIndex:       1,
		TimestampStart:   6,
		TimestampEnd:     12,
		EventType:        eventType,
		EventDescription: "two people " + eventType,
		Confidence:       confidence,
		Status:           constant.EventStatusPendingReview,
		DetectedAt:       time.Now().UTC(),
	}
	if err := f.repo.InsertEvent(context.Background(), &event); err != nil {
		t.Fatalf("InsertEvent: %v", err)
	}
	return event
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return body["error"]
}

func TestHealthAndUseCases(t *testing.T) {
	f := newAPIFixture(t)

	if rec := f.do(t, http.MethodGet, "/health", nil); rec.Code != http.StatusOK {
		t.Fatalf("health status %d", rec.Code)
	}

	rec := f.do(t, http.MethodGet, "/api/use-cases", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("use-cases status %d", rec.Code)
	}
	var out []dto.UseCaseOut
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 3 || out[0].Key != config.DefaultUseCase {
		t.Errorf("expected default use case first, got %+v", out)
	}
}

func TestStartMonitoringStatusCodes(t *testing.T) {
	f := newAPIFixture(t)
	videoId := f.upload(t)

	tests := []struct {
		name string
		body any
		want int
	}{
		{"missing video id", gin.H{}, http.StatusBadRequest},
		{"bad video id", dto.StartMonitoringRequest{VideoId: "nope"}, http.StatusBadRequest},
		{"unknown use case", dto.StartMonitoringRequest{VideoId: videoId, UseCase: "zoo"}, http.StatusBadRequest},
		{"chunk too long", dto.StartMonitoringRequest{VideoId: videoId, ChunkDurationSeconds: 90}, http.StatusBadRequest},
		{"unknown video", dto.StartMonitoringRequest{VideoId: uuid.NewString()}, http.StatusNotFound},
		{"started", dto.StartMonitoringRequest{VideoId: videoId}, http.StatusOK},
		{"already monitoring", dto.StartMonitoringRequest{VideoId: videoId}, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/api/start-monitoring", tt.body)
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
	if f.dispatcher.count != 1 {
		t.Errorf("expected one dispatch, got %d", f.dispatcher.count)
	}

	rec := f.do(t, http.MethodGet, "/api/status", nil)
	var status dto.StatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if len(status.ActiveJobs) != 1 || status.ActiveJobs[0] != videoId {
		t.Errorf("expected active job %s, got %+v", videoId, status)
	}

	if rec := f.do(t, http.MethodPost, "/api/stop-monitoring?video_id="+videoId, nil); rec.Code != http.StatusOK {
		t.Fatalf("stop status %d: %s", rec.Code, rec.Body.String())
	}
	if rec := f.do(t, http.MethodPost, "/api/start-monitoring", dto.StartMonitoringRequest{VideoId: videoId}); rec.Code != http.StatusOK {
		t.Errorf("restart after stop should succeed, got %d", rec.Code)
	}
}

func TestVideoEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	videoId := f.upload(t)

	rec := f.do(t, http.MethodGet, "/api/videos/"+videoId, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("video status %d", rec.Code)
	}
	var video dto.VideoResponse
	json.Unmarshal(rec.Body.Bytes(), &video)
	if video.DurationSeconds != 12 || video.SourceUrl != fmt.Sprintf("/api/videos/%s/source", videoId) {
		t.Errorf("unexpected video %+v", video)
	}

	id := uuid.MustParse(videoId)
	if err := f.repo.ResetVideoChunks(context.Background(), id, 4); err != nil {
		t.Fatalf("ResetVideoChunks: %v", err)
	}
	f.repo.IncrementProcessed(context.Background(), id)
	f.repo.IncrementFailed(context.Background(), id)

	rec = f.do(t, http.MethodGet, "/api/videos/"+videoId+"/processing", nil)
	var processing dto.ProcessingResponse
	json.Unmarshal(rec.Body.Bytes(), &processing)
	want := dto.ProcessingResponse{Progress: 25, ChunksAnalyzed: 1, TotalChunks: 4, FailedChunks: 1}
	if processing != want {
		t.Errorf("expected %+v, got %+v", want, processing)
	}

	rec = f.do(t, http.MethodGet, "/api/videos/"+videoId+"/source", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "fake video" {
		t.Errorf("expected source bytes, got %d %q", rec.Code, rec.Body.String())
	}

	if rec := f.do(t, http.MethodGet, "/api/videos/"+uuid.NewString(), nil); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown video, got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/api/videos/nope/processing", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad id, got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/api/video/"+videoId+"/chunk_0000.mp4", nil); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for missing chunk, got %d", rec.Code)
	}
}

func TestEventsListAndReview(t *testing.T) {
	f := newAPIFixture(t)
	fight := f.seedEvent(t, "fight", 0.9)
	f.seedEvent(t, "loitering", 0.4)

	rec := f.do(t, http.MethodGet, "/api/events?event_type=fight", nil)
	var listed []dto.SearchResult
	json.Unmarshal(rec.Body.Bytes(), &listed)
	if len(listed) != 1 || listed[0].Id != fight.ID.String() {
		t.Fatalf("expected only the fight event, got %+v", listed)
	}
	if rec := f.do(t, http.MethodGet, "/api/events?limit=0", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for limit 0, got %d", rec.Code)
	}

	rec = f.do(t, http.MethodPost, "/api/events/"+fight.ID.String()+"/review", gin.H{"status": "confirmed", "severity": "high"})
	if rec.Code != http.StatusOK {
		t.Fatalf("review status %d: %s", rec.Code, rec.Body.String())
	}
	var reviewed dto.SearchResult
	json.Unmarshal(rec.Body.Bytes(), &reviewed)
	if reviewed.Status != "confirmed" || reviewed.Severity == nil || *reviewed.Severity != "high" || reviewed.ReviewedAt == nil {
		t.Errorf("unexpected review result %+v", reviewed)
	}

	rec = f.do(t, http.MethodPost, "/api/events/"+fight.ID.String()+"/review", gin.H{"status": "maybe"})
	if rec.Code != http.StatusBadRequest || errorMessage(t, rec) != service.ErrInvalidStatus.Error() {
		t.Errorf("expected invalid status error, got %d %s", rec.Code, rec.Body.String())
	}
	rec = f.do(t, http.MethodPost, "/api/events/"+fight.ID.String()+"/review", gin.H{"status": "confirmed", "severity": "extreme"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad severity, got %d", rec.Code)
	}
	rec = f.do(t, http.MethodPost, "/api/events/"+uuid.NewString()+"/review", gin.H{"status": "dismissed"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown event, got %d", rec.Code)
	}

	rec = f.do(t, http.MethodGet, "/api/analytics", nil)
	var analytics dto.AnalyticsResponse
	json.Unmarshal(rec.Body.Bytes(), &analytics)
	if analytics.Summary.TotalEvents != 2 || analytics.Summary.Confirmed != 1 {
		t.Errorf("unexpected analytics %+v", analytics.Summary)
	}
	if rec := f.do(t, http.MethodGet, "/api/analytics?from_date=yesterday", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad date, got %d", rec.Code)
	}
}

func TestSearch(t *testing.T) {
	f := newAPIFixture(t)
	f.seedEvent(t, "fight", 0.9)

	rec := f.do(t, http.MethodPost, "/api/search", dto.SearchRequest{})
	if rec.Code != http.StatusOK {
		t.Fatalf("search status %d: %s", rec.Code, rec.Body.String())
	}
	var resp dto.SearchResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Answer != "Showing most recent detected events." || len(resp.Results) != 1 {
		t.Errorf("unexpected empty-query response %+v", resp)
	}

	rec = f.do(t, http.MethodPost, "/api/search", dto.SearchRequest{Query: "fight", Mode: "ASK"})
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if rec.Code != http.StatusOK || len(resp.Results) != 1 || resp.Results[0].EventType != "fight" {
		t.Errorf("unexpected keyword response %d %+v", rec.Code, resp)
	}

	for _, body := range []dto.SearchRequest{
		{Query: "x", Limit: -1},
		{Query: "x", Limit: 101},
		{Query: "x", Mode: "browse"},
		{Query: "x", VideoId: "nope"},
	} {
		if rec := f.do(t, http.MethodPost, "/api/search", body); rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400 for %+v, got %d", body, rec.Code)
		}
	}
}

func TestEventStreamDeliversAlerts(t *testing.T) {
	f := newAPIFixture(t)
	srv := httptest.NewServer(f.engine)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/events/stream", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("stream request: %v", err)
	}
	defer resp.Body.Close()

	waitFor(t, func() bool { return f.broker.Stats().Subscribers == 1 })
	event := entities.Event{ID: uuid.New(), VideoID: uuid.New(), EventType: "fire_or_smoke", Status: constant.EventStatusPendingReview}
	f.broker.Publish(event)

	reader := bufio.NewReader(resp.Body)
	var sawEvent bool
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read stream: %v", err)
		}
		line = strings.TrimSpace(line)
		if line == "event:alert" {
			sawEvent = true
			continue
		}
		if data, ok := strings.CutPrefix(line, "data:"); ok {
			var alert dto.SearchResult
			if err := json.Unmarshal([]byte(data), &alert); err != nil {
				t.Fatalf("decode alert %q: %v", data, err)
			}
			if alert.Id != event.ID.String() || alert.EventType != "fire_or_smoke" {
				t.Errorf("unexpected alert %+v", alert)
			}
			break
		}
	}
	if !sawEvent {
		t.Error("expected an alert event name before data")
	}

	cancel()
	waitFor(t, func() bool { return f.broker.Stats().Subscribers == 0 })
}

func TestCloseEndsEventStreams(t *testing.T) {
	f := newAPIFixture(t)
	srv := httptest.NewServer(f.engine)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/events/stream")
	if err != nil {
		t.Fatalf("stream request: %v", err)
	}
	defer resp.Body.Close()
	waitFor(t, func() bool { return f.broker.Stats().Subscribers == 1 })

	f.api.Close()
	f.api.Close()

	done := make(chan error, 1)
	go func() {
		_, err := io.Copy(io.Discard, resp.Body)
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected the stream to end cleanly, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stream still open after Close")
	}
	waitFor(t, func() bool { return f.broker.Stats().Subscribers == 0 })

	// the server shuts down without waiting out the stream
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := srv.Config.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

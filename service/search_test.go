package service

import (
	"context"
	"reflect"
	"testing"
	"time"
	"video-sentinel/constant"
	"video-sentinel/entities"
	"video-sentinel/repository"

	"github.com/google/uuid"
)

var baseTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func addEvent(t *testing.T, repo repository.Repository, videoId uuid.UUID, eventType string, ts float64, desc string, age time.Duration) entities.Event {
	t.Helper()
	event := entities.Event{
		VideoID:          videoId,
		EventType:        eventType,
		TimestampStart:   ts,
		TimestampEnd:     ts + 6,
		EventDescription: desc,
		Confidence:       0.7,
		Status:           constant.EventStatusPendingReview,
		DetectedAt:       baseTime.Add(-age),
	}
	if err := repo.InsertEvent(context.Background(), &event); err != nil {
		t.Fatalf("InsertEvent: %v", err)
	}
	return event
}

func addSummary(t *testing.T, repo repository.Repository, videoId uuid.UUID, ts float64, text string, age time.Duration) entities.ChunkSummary {
	t.Helper()
	summary := entities.ChunkSummary{
		VideoID:        videoId,
		TimestampStart: ts,
		TimestampEnd:   ts + 6,
		Summary:        text,
		DetectedAt:     baseTime.Add(-age),
	}
	if err := repo.InsertSummary(context.Background(), &summary); err != nil {
		t.Fatalf("InsertSummary: %v", err)
	}
	return summary
}

func TestSearchEmptyQueryReturnsRecentEvents(t *testing.T) {
	repo := repository.NewMemoryRepo()
	videoId := uuid.New()
	old := addEvent(t, repo, videoId, "theft", 10, "bag taken", time.Hour)
	recent := addEvent(t, repo, videoId, "fight", 40, "two people", time.Minute)
	addSummary(t, repo, videoId, 10, "a quiet parking lot", time.Minute)

	resp, err := NewSearchService(repo).Search(context.Background(), SearchQuery{Query: "   "})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if resp.Answer != "Showing most recent detected events." {
		t.Errorf("unexpected answer %q", resp.Answer)
	}
	if len(resp.Results) != 2 || resp.Results[0].Id != recent.ID.String() || resp.Results[1].Id != old.ID.String() {
		t.Fatalf("expected newest event first and no summaries, got %+v", resp.Results)
	}
}

func TestSearchTimestampWindowOrdersByDistance(t *testing.T) {
	repo := repository.NewMemoryRepo()
	videoId := uuid.New()
	early := addEvent(t, repo, videoId, "fight", 120, "shoving match", time.Minute)
	exact := addEvent(t, repo, videoId, "theft", 135, "bag taken", time.Hour)
	addEvent(t, repo, videoId, "theft", 200, "bike taken", time.Second)
	addEvent(t, repo, uuid.New(), "theft", 135, "other camera", time.Second)

	resp, err := NewSearchService(repo).Search(context.Background(), SearchQuery{Query: "2:15", VideoId: &videoId})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Results) != 2 || resp.Results[0].Id != exact.ID.String() || resp.Results[1].Id != early.ID.String() {
		t.Fatalf("expected 135 then 120, got %+v", resp.Results)
	}
	want := "Most relevant incidents near 2:15: 2:15 - theft: bag taken | 2:00 - fight: shoving match"
	if resp.Answer != want {
		t.Errorf("answer = %q, want %q", resp.Answer, want)
	}
}

func TestSearchTimestampPrefersSummariesForAnswer(t *testing.T) {
	repo := repository.NewMemoryRepo()
	videoId := uuid.New()
	addEvent(t, repo, videoId, "theft", 60, "bag taken", time.Minute)
	addSummary(t, repo, videoId, 54, "Someone walks by the gate.", time.Minute)
	addSummary(t, repo, videoId, 60, "A person lifts a bag from a bench.", time.Minute)
	addSummary(t, repo, videoId, 120, "Empty hallway.", time.Minute)

	resp, err := NewSearchService(repo).Search(context.Background(), SearchQuery{Query: "1m 0s", VideoId: &videoId, Mode: constant.SearchModeAsk})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	want := "Most relevant moments near 1:00: 1:00 - A person lifts a bag from a bench. | 0:54 - Someone walks by the gate."
	if resp.Answer != want {
		t.Errorf("answer = %q, want %q", resp.Answer, want)
	}
	if len(resp.Results) != 3 || resp.Results[0].EventType != "Context" || resp.Results[2].EventType != "theft" {
		t.Fatalf("ask mode should list summaries first, got %+v", resp.Results)
	}
	if resp.Results[0].Status != "context" {
		t.Errorf("summary rows carry status context, got %s", resp.Results[0].Status)
	}
}

func TestSearchNoFootageNearTimestamp(t *testing.T) {
	repo := repository.NewMemoryRepo()
	videoId := uuid.New()
	addEvent(t, repo, videoId, "theft", 10, "bag taken", time.Minute)

	resp, err := NewSearchService(repo).Search(context.Background(), SearchQuery{Query: "10:00", VideoId: &videoId})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Results) != 0 {
		t.Fatalf("expected no results, got %+v", resp.Results)
	}
	if resp.Answer != "No processed footage found near 10:00. Try another timestamp or wait for processing." {
		t.Errorf("unexpected answer %q", resp.Answer)
	}
}

func TestSearchModeOrderingAndTruncation(t *testing.T) {
	repo := repository.NewMemoryRepo()
	videoId := uuid.New()
	addEvent(t, repo, videoId, "theft", 10, "bag taken near the gate", time.Minute)
	addEvent(t, repo, videoId, "theft", 30, "bag taken from a car", 2*time.Minute)
	addEvent(t, repo, videoId, "theft", 50, "bag taken from the desk", 3*time.Minute)
	addSummary(t, repo, videoId, 10, "A bag is taken near the gate.", time.Minute)

	svc := NewSearchService(repo)

	monitor, err := svc.Search(context.Background(), SearchQuery{Query: "bag", Limit: 2, Mode: constant.SearchModeMonitor})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(monitor.Results) != 2 || monitor.Results[0].EventType != "theft" || monitor.Results[1].EventType != "theft" {
		t.Fatalf("monitor mode should fill the cap with events, got %+v", monitor.Results)
	}

	ask, err := svc.Search(context.Background(), SearchQuery{Query: "bag", Limit: 2, Mode: constant.SearchModeAsk})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(ask.Results) != 2 || ask.Results[0].EventType != "Context" || ask.Results[1].EventType != "theft" {
		t.Fatalf("ask mode should keep the summary ahead of events, got %+v", ask.Results)
	}
	if ask.Answer != "Most relevant moments: 0:10 - A bag is taken near the gate." {
		t.Errorf("unexpected answer %q", ask.Answer)
	}
}

func TestSearchKeywordFallback(t *testing.T) {
	repo := repository.NewMemoryRepo()
	videoId := uuid.New()
	addEvent(t, repo, videoId, "loitering", 70, "man waits by the door", time.Minute)
	addEvent(t, repo, videoId, "fight", 5, "scuffle", time.Minute)

	resp, err := NewSearchService(repo).Search(context.Background(), SearchQuery{Query: "door intruder"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Results) != 1 || resp.Results[0].EventType != "loitering" {
		t.Fatalf("expected keyword match on description, got %+v", resp.Results)
	}
	want := `Found 1 matching events for "door intruder". Top matches: loitering @ 1:10.`
	if resp.Answer != want {
		t.Errorf("answer = %q, want %q", resp.Answer, want)
	}
}

func TestSearchStatusFilterExcludesSummaries(t *testing.T) {
	repo := repository.NewMemoryRepo()
	videoId := uuid.New()
	addEvent(t, repo, videoId, "theft", 10, "bag taken", time.Minute)
	addSummary(t, repo, videoId, 10, "bag on a bench", time.Minute)

	resp, err := NewSearchService(repo).Search(context.Background(), SearchQuery{Query: "bag", Status: string(constant.EventStatusPendingReview)})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for _, r := range resp.Results {
		if r.EventType == "Context" {
			t.Fatalf("summaries must not match a status filter, got %+v", resp.Results)
		}
	}
}

func TestSearchNothingMatches(t *testing.T) {
	resp, err := NewSearchService(repository.NewMemoryRepo()).Search(context.Background(), SearchQuery{Query: "anything"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if resp.Answer != answerNoEvents || len(resp.Results) != 0 {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestSearchIsIdempotent(t *testing.T) {
	repo := repository.NewMemoryRepo()
	videoId := uuid.New()
	for i := 0; i < 5; i++ {
		addEvent(t, repo, videoId, "theft", float64(i*20), "bag taken", time.Minute)
	}
	addSummary(t, repo, videoId, 0, "bag taken at the gate", time.Minute)
	addSummary(t, repo, videoId, 20, "bag taken at the door", time.Minute)

	svc := NewSearchService(repo)
	q := SearchQuery{Query: "bag taken", Limit: 4, VideoId: &videoId, Mode: constant.SearchModeAsk}
	first, err := svc.Search(context.Background(), q)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	second, err := svc.Search(context.Background(), q)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("results differ between identical searches:\n%+v\n%+v", first, second)
	}
}

func TestExtractTimestamp(t *testing.T) {
	tests := []struct {
		query string
		want  int
		ok    bool
	}{
		{"2:15", 135, true},
		{"what happened at 02 : 05?", 125, true},
		{"around 1m 30s", 90, true},
		{"3min 4sec please", 184, true},
		{"at 45s", 45, true},
		{"at 45 sec", 45, true},
		{"5:30 and 10s", 330, true},
		{"show me the fight", 0, false},
		{"camera 12345s", 0, false},
	}
	for _, tt := range tests {
		got, ok := ExtractTimestamp(tt.query)
		if ok != tt.ok || got != tt.want {
			t.Errorf("ExtractTimestamp(%q) = %d, %v; want %d, %v", tt.query, got, ok, tt.want, tt.ok)
		}
	}
}

func TestFormatTimestamp(t *testing.T) {
	for in, want := range map[float64]string{0: "0:00", 5.9: "0:05", 135: "2:15", 3600: "60:00", -3: "0:00"} {
		if got := formatTimestamp(in); got != want {
			t.Errorf("formatTimestamp(%v) = %q, want %q", in, got, want)
		}
	}
	for in, want := range map[string]string{
		"medical_emergency": "Medical Emergency",
		"élan_VITAL":        "Élan Vital",
		"":                  "",
	} {
		if got := titleCase(in); got != want {
			t.Errorf("titleCase(%q) = %q, want %q", in, got, want)
		}
	}
}

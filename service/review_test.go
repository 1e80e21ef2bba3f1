package service

import (
	"context"
	"errors"
	"testing"
	"time"
	"video-sentinel/constant"
	"video-sentinel/dto"
	"video-sentinel/entities"
	"video-sentinel/repository"

	"github.com/google/uuid"
)

func strPtr(s string) *string { return &s }

func TestReviewKeepsSeverityWhenOmitted(t *testing.T) {
	repo := repository.NewMemoryRepo()
	high := constant.SeverityHigh
	event := entities.Event{VideoID: uuid.New(), EventType: "fire", Status: constant.EventStatusPendingReview, Severity: &high, DetectedAt: baseTime}
	if err := repo.InsertEvent(context.Background(), &event); err != nil {
		t.Fatalf("InsertEvent: %v", err)
	}

	svc := NewEventService(repo)
	svc.now = func() time.Time { return baseTime.Add(time.Hour) }

	updated, err := svc.Review(context.Background(), event.ID, dto.ReviewRequest{Status: "confirmed", ReviewerNotes: strPtr("real fire")})
	if err != nil {
		t.Fatalf("Review: %v", err)
	}
	if updated.Status != constant.EventStatusConfirmed || *updated.Severity != constant.SeverityHigh {
		t.Errorf("unexpected review result %s/%s", updated.Status, *updated.Severity)
	}
	if updated.ReviewerNotes == nil || *updated.ReviewerNotes != "real fire" {
		t.Errorf("notes not stored: %v", updated.ReviewerNotes)
	}
	if updated.ReviewedAt == nil || !updated.ReviewedAt.Equal(baseTime.Add(time.Hour)) {
		t.Errorf("unexpected reviewed_at %v", updated.ReviewedAt)
	}

	updated, err = svc.Review(context.Background(), event.ID, dto.ReviewRequest{Status: "dismissed", Severity: strPtr("low")})
	if err != nil {
		t.Fatalf("Review: %v", err)
	}
	if *updated.Severity != constant.SeverityLow {
		t.Errorf("expected severity override, got %s", *updated.Severity)
	}
}

func TestReviewRejectsBadInput(t *testing.T) {
	repo := repository.NewMemoryRepo()
	svc := NewEventService(repo)

	if _, err := svc.Review(context.Background(), uuid.New(), dto.ReviewRequest{Status: "maybe"}); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("expected ErrInvalidStatus, got %v", err)
	}
	if _, err := svc.Review(context.Background(), uuid.New(), dto.ReviewRequest{Status: "confirmed", Severity: strPtr("extreme")}); !errors.Is(err, ErrInvalidSeverity) {
		t.Errorf("expected ErrInvalidSeverity, got %v", err)
	}
	if _, err := svc.Review(context.Background(), uuid.New(), dto.ReviewRequest{Status: "confirmed"}); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestAnalyticsSummary(t *testing.T) {
	repo := repository.NewMemoryRepo()
	videoId := uuid.New()
	insert := func(eventType string, status constant.EventStatus, confidence float64) {
		e := entities.Event{VideoID: videoId, EventType: eventType, Status: status, Confidence: confidence, DetectedAt: baseTime}
		if err := repo.InsertEvent(context.Background(), &e); err != nil {
			t.Fatalf("InsertEvent: %v", err)
		}
	}
	insert("medical_emergency", constant.EventStatusConfirmed, 0.9)
	insert("medical_emergency", constant.EventStatusConfirmed, 0.8)
	insert("medical_emergency", constant.EventStatusDismissed, 0.4)
	insert("theft", constant.EventStatusPendingReview, 0.5)

	resp, err := NewAnalyticsService(repo).Summary(context.Background(), repository.EventFilter{VideoId: &videoId})
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}

	want := dto.AnalyticsSummary{TotalEvents: 4, Confirmed: 2, Dismissed: 1, AiAccuracy: 67, AvgConfidence: 65}
	if resp.Summary != want {
		t.Errorf("summary = %+v, want %+v", resp.Summary, want)
	}
	if len(resp.EventStats) != 2 {
		t.Fatalf("expected two event types, got %+v", resp.EventStats)
	}
	first := resp.EventStats[0]
	if first.EventType != "Medical Emergency" || first.Count != 3 || first.Confirmed != 2 || first.Accuracy != 67 {
		t.Errorf("unexpected first row %+v", first)
	}
	if resp.EventStats[1].Accuracy != 0 {
		t.Errorf("unreviewed type should have zero accuracy, got %+v", resp.EventStats[1])
	}
}

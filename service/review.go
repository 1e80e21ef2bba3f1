package service

import (
	"context"
	"errors"
	"github.com/google/uuid"
	"time"
	"video-sentinel/constant"
	"video-sentinel/dto"
	"video-sentinel/entities"
	"video-sentinel/repository"
)

var (
	ErrInvalidStatus   = errors.New("invalid event status")
	ErrInvalidSeverity = errors.New("invalid severity")
)

const (
	DefaultEventLimit = 50
	MaxEventLimit     = 500
)

type EventService struct {
	repo repository.Repository
	now  func() time.Time
}

func NewEventService(repo repository.Repository) *EventService {
	return &EventService{repo: repo, now: func() time.Time { return time.Now().UTC() }}
}

func (s *EventService) List(ctx context.Context, filter repository.EventFilter, limit int) ([]dto.SearchResult, error) {
	if limit < 1 {
		limit = DefaultEventLimit
	}
	events, err := s.repo.ListEvents(ctx, filter, min(limit, MaxEventLimit))
	if err != nil {
		return nil, err
	}
	return eventResults(events), nil
}

// Review records a human verdict. A nil severity keeps the classified one.
func (s *EventService) Review(ctx context.Context, id uuid.UUID, req dto.ReviewRequest) (*entities.Event, error) {
	status := constant.EventStatus(req.Status)
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}

	review := repository.EventReview{
		Status:        status,
		ReviewerNotes: req.ReviewerNotes,
		ReviewedAt:    s.now(),
	}
	if req.Severity != nil {
		severity := constant.Severity(*req.Severity)
		if !severity.Valid() {
			return nil, ErrInvalidSeverity
		}
		review.Severity = &severity
	}

	if err := s.repo.UpdateEventReview(ctx, id, review); err != nil {
		return nil, err
	}
	return s.repo.GetEvent(ctx, id)
}

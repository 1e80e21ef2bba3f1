package service

import (
	"context"
	"github.com/google/uuid"
	"video-sentinel/repository"
)

const DedupWindowSeconds = 8.0

// DedupGate checks committed events only. Two workers racing on the same incident can both pass.
type DedupGate struct {
	repo   repository.Repository
	window float64
}

func NewDedupGate(repo repository.Repository) *DedupGate {
	return &DedupGate{repo: repo, window: DedupWindowSeconds}
}

func (g *DedupGate) IsDuplicate(ctx context.Context, videoId uuid.UUID, eventType string, timestampStart float64) (bool, error) {
	existing, err := g.repo.FindRecentEvent(ctx, videoId, eventType, timestampStart, g.window)
	if err != nil {
		return false, err
	}
	return existing != nil, nil
}

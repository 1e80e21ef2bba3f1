package service

import (
	"context"
	"math"
	"strings"
	"unicode"
	"unicode/utf8"
	"video-sentinel/dto"
	"video-sentinel/repository"
)

type AnalyticsService struct {
	repo repository.Repository
}

func NewAnalyticsService(repo repository.Repository) *AnalyticsService {
	return &AnalyticsService{repo: repo}
}

// Summary reports review outcomes. Accuracy is confirmed over reviewed events, as a percentage.
func (s *AnalyticsService) Summary(ctx context.Context, filter repository.EventFilter) (*dto.AnalyticsResponse, error) {
	stats, err := s.repo.EventStats(ctx, filter)
	if err != nil {
		return nil, err
	}

	resp := &dto.AnalyticsResponse{
		Summary: dto.AnalyticsSummary{
			TotalEvents:   stats.Total,
			Confirmed:     stats.Confirmed,
			Dismissed:     stats.Dismissed,
			AiAccuracy:    percent(stats.Confirmed, stats.Confirmed+stats.Dismissed),
			AvgConfidence: int(math.Round(stats.AvgConfidence * 100)),
		},
		EventStats: make([]dto.EventTypeStat, 0, len(stats.ByType)),
	}
	for _, row := range stats.ByType {
		resp.EventStats = append(resp.EventStats, dto.EventTypeStat{
			EventType: titleCase(orDefault(row.EventType, "unknown")),
			Count:     row.Count,
			Confirmed: row.Confirmed,
			Accuracy:  percent(row.Confirmed, row.Confirmed+row.Dismissed),
		})
	}
	return resp, nil
}

func percent(part, whole int) int {
	if whole <= 0 {
		return 0
	}
	return int(math.Round(float64(part) / float64(whole) * 100))
}

func titleCase(s string) string {
	words := strings.Fields(strings.ReplaceAll(s, "_", " "))
	for i, w := range words {
		first, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(first)) + strings.ToLower(w[size:])
	}
	return strings.Join(words, " ")
}

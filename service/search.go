package service

import (
	"cmp"
	"context"
	"fmt"
	"github.com/google/uuid"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"unicode"
	"video-sentinel/constant"
	"video-sentinel/dto"
	"video-sentinel/entities"
	"video-sentinel/repository"
)

const (
	DefaultSearchLimit = 10
	MaxSearchLimit     = 100
	timeWindowSeconds  = 15.0
	answerTopN         = 3
)

const (
	answerRecent        = "Showing most recent detected events."
	answerNoEvents      = "No matching events detected yet. Try again after processing finishes or refine your query."
	answerNoSummaryText = "Relevant moments were found, but no summaries are available yet."
)

// Tried in order; the first match wins.
var timestampPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:^|\D)(\d{1,2})\s*:\s*(\d{1,2})(?:\D|$)`),
	regexp.MustCompile(`(?i)(?:^|\D)(\d{1,2})\s*m(?:in)?\s*(\d{1,2})\s*s(?:ec)?(?:\D|$)`),
	regexp.MustCompile(`(?i)(?:^|\D)(\d{1,4})\s*s(?:ec)?(?:\D|$)`),
}

type SearchQuery struct {
	Query     string
	Limit     int
	Status    string
	EventType string
	VideoId   *uuid.UUID
	Mode      constant.SearchMode
}

type SearchService struct {
	repo repository.Repository
}

func NewSearchService(repo repository.Repository) *SearchService {
	return &SearchService{repo: repo}
}

func (s *SearchService) Search(ctx context.Context, q SearchQuery) (*dto.SearchResponse, error) {
	limit := q.Limit
	if limit < 1 {
		limit = DefaultSearchLimit
	}
	limit = min(limit, MaxSearchLimit)

	filter := repository.EventFilter{Status: q.Status, EventType: q.EventType, VideoId: q.VideoId}
	query := strings.TrimSpace(q.Query)

	if query == "" {
		events, err := s.repo.ListEvents(ctx, filter, limit)
		if err != nil {
			return nil, err
		}
		return &dto.SearchResponse{Answer: answerRecent, Results: eventResults(events)}, nil
	}

	// summaries carry neither status nor event type, so those filters exclude them
	summariesApply := q.Status == "" && q.EventType == ""
	summaryFilter := repository.SummaryFilter{VideoId: q.VideoId}
	keywords := queryKeywords(query)

	var (
		summaryHits []entities.ChunkSummary
		eventHits   []entities.Event
		timeHits    []entities.Event
		err         error
	)

	target, hasTarget := ExtractTimestamp(query)
	timeTargeted := hasTarget && q.VideoId != nil

	if timeTargeted {
		from, to := math.Max(0, float64(target)-timeWindowSeconds), float64(target)+timeWindowSeconds

		if summariesApply {
			windowed := summaryFilter
			windowed.TimestampFrom, windowed.TimestampTo = &from, &to
			if summaryHits, err = s.repo.ListSummaries(ctx, windowed, limit); err != nil {
				return nil, err
			}
			slices.SortStableFunc(summaryHits, func(a, b entities.ChunkSummary) int {
				return cmp.Compare(distance(a.TimestampStart, target), distance(b.TimestampStart, target))
			})
		}

		windowed := filter
		windowed.TimestampFrom, windowed.TimestampTo = &from, &to
		if timeHits, err = s.repo.ListEvents(ctx, windowed, limit); err != nil {
			return nil, err
		}
		slices.SortStableFunc(timeHits, func(a, b entities.Event) int {
			return cmp.Compare(distance(a.TimestampStart, target), distance(b.TimestampStart, target))
		})
	} else if summariesApply {
		if summaryHits, err = s.repo.TextSearchSummaries(ctx, query, summaryFilter, limit); err != nil {
			return nil, err
		}
		if len(summaryHits) == 0 && len(keywords) > 0 {
			byKeyword := summaryFilter
			byKeyword.Keywords = keywords
			if summaryHits, err = s.repo.ListSummaries(ctx, byKeyword, limit); err != nil {
				return nil, err
			}
		}
	}

	if eventHits, err = s.repo.TextSearchEvents(ctx, query, filter, limit); err != nil {
		return nil, err
	}
	if len(eventHits) == 0 && len(keywords) > 0 {
		byKeyword := filter
		byKeyword.Keywords = keywords
		if eventHits, err = s.repo.ListEvents(ctx, byKeyword, limit); err != nil {
			return nil, err
		}
	}
	eventHits = mergeByID(eventHits, timeHits)

	var results []dto.SearchResult
	if q.Mode == constant.SearchModeAsk {
		results = append(summaryResults(summaryHits), eventResults(eventHits)...)
	} else {
		results = append(eventResults(eventHits), summaryResults(summaryHits)...)
	}
	if len(results) > limit {
		results = results[:limit]
	}

	var answer string
	switch {
	case len(summaryHits) > 0:
		answer = summaryAnswer(summaryHits, target, timeTargeted)
	case timeTargeted && len(timeHits) > 0:
		answer = timeEventAnswer(timeHits, target)
	case timeTargeted && len(eventHits) == 0:
		answer = fmt.Sprintf("No processed footage found near %s. Try another timestamp or wait for processing.", formatTimestamp(float64(target)))
	default:
		answer = eventAnswer(query, eventHits)
	}

	if results == nil {
		results = []dto.SearchResult{}
	}
	return &dto.SearchResponse{Answer: answer, Results: results}, nil
}

// ExtractTimestamp finds an explicit moment in the query, in seconds.
func ExtractTimestamp(query string) (int, bool) {
	for i, pattern := range timestampPatterns {
		m := pattern.FindStringSubmatch(query)
		if m == nil {
			continue
		}
		if i < 2 {
			minutes, _ := strconv.Atoi(m[1])
			seconds, _ := strconv.Atoi(m[2])
			return minutes*60 + seconds, true
		}
		seconds, _ := strconv.Atoi(m[1])
		return seconds, true
	}
	return 0, false
}

func queryKeywords(query string) []string {
	return strings.FieldsFunc(query, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
}

func distance(ts float64, target int) float64 {
	return math.Abs(ts - float64(target))
}

// mergeByID appends extra events whose id is not already present.
func mergeByID(events, extra []entities.Event) []entities.Event {
	if len(extra) == 0 {
		return events
	}
	seen := make(map[uuid.UUID]struct{}, len(events))
	for _, e := range events {
		seen[e.ID] = struct{}{}
	}
	for _, e := range extra {
		if _, ok := seen[e.ID]; ok {
			continue
		}
		seen[e.ID] = struct{}{}
		events = append(events, e)
	}
	return events
}

func formatTimestamp(seconds float64) string {
	total := int(max(seconds, 0))
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

func eventAnswer(query string, events []entities.Event) string {
	if len(events) == 0 {
		return answerNoEvents
	}
	snippets := make([]string, 0, answerTopN)
	for _, e := range events[:min(answerTopN, len(events))] {
		snippets = append(snippets, fmt.Sprintf("%s @ %s", orDefault(e.EventType, "event"), formatTimestamp(e.TimestampStart)))
	}
	return fmt.Sprintf("Found %d matching events for %q. Top matches: %s.", len(events), query, strings.Join(snippets, ", "))
}

func summaryAnswer(summaries []entities.ChunkSummary, target int, targeted bool) string {
	snippets := make([]string, 0, answerTopN)
	for _, s := range summaries[:min(answerTopN, len(summaries))] {
		if text := strings.TrimSpace(s.Summary); text != "" {
			snippets = append(snippets, formatTimestamp(s.TimestampStart)+" - "+text)
		}
	}
	if len(snippets) == 0 {
		return answerNoSummaryText
	}
	if targeted {
		return fmt.Sprintf("Most relevant moments near %s: ", formatTimestamp(float64(target))) + strings.Join(snippets, " | ")
	}
	return "Most relevant moments: " + strings.Join(snippets, " | ")
}

func timeEventAnswer(events []entities.Event, target int) string {
	snippets := make([]string, 0, answerTopN)
	for _, e := range events[:min(answerTopN, len(events))] {
		snippet := formatTimestamp(e.TimestampStart) + " - " + orDefault(e.EventType, "event")
		if e.EventDescription != "" {
			snippet += ": " + e.EventDescription
		}
		snippets = append(snippets, snippet)
	}
	return fmt.Sprintf("Most relevant incidents near %s: ", formatTimestamp(float64(target))) + strings.Join(snippets, " | ")
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func eventResults(events []entities.Event) []dto.SearchResult {
	out := make([]dto.SearchResult, 0, len(events))
	for _, e := range events {
		out = append(out, ToSearchResult(e))
	}
	return out
}

func summaryResults(summaries []entities.ChunkSummary) []dto.SearchResult {
	out := make([]dto.SearchResult, 0, len(summaries))
	for _, s := range summaries {
		out = append(out, dto.SearchResult{
			Id:               s.ID.String(),
			VideoId:          s.VideoID.String(),
			ChunkFilename:    s.ChunkFilename,
			ChunkIndex:       s.ChunkIndex,
			TimestampStart:   s.TimestampStart,
			TimestampEnd:     s.TimestampEnd,
			EventType:        "Context",
			EventDescription: s.Summary,
			Status:           "context",
		})
	}
	return out
}

// ToSearchResult is the wire form of an event, shared by search, listing and the alert stream.
func ToSearchResult(e entities.Event) dto.SearchResult {
	var severity *string
	if e.Severity != nil {
		s := string(*e.Severity)
		severity = &s
	}
	detectedAt := e.DetectedAt
	return dto.SearchResult{
		Id:               e.ID.String(),
		VideoId:          e.VideoID.String(),
		ChunkFilename:    e.ChunkFilename,
		ChunkIndex:       e.ChunkIndex,
		TimestampStart:   e.TimestampStart,
		TimestampEnd:     e.TimestampEnd,
		EventType:        e.EventType,
		EventDescription: e.EventDescription,
		Confidence:       e.Confidence,
		Explanation:      e.Explanation,
		Status:           string(e.Status),
		Severity:         severity,
		ReviewerNotes:    e.ReviewerNotes,
		DetectedAt:       &detectedAt,
		ReviewedAt:       e.ReviewedAt,
	}
}

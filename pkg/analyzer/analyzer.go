package analyzer

//go:generate mockgen -source=analyzer.go -destination=mocks/mock_analyzer.go -package=mocks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/rs/zerolog"
	"strconv"
	"strings"
	"sync"
	"video-sentinel/config"
	"video-sentinel/constant"
	"video-sentinel/pkg/ffmpeg"
	"video-sentinel/pkg/gemini"
)

// fallbackModels are tried in order after the configured model.
var fallbackModels = []string{
	"gemini-1.5-flash",
	"gemini-1.5-pro",
	"gemini-1.5-flash-001",
	"gemini-1.5-pro-001",
	"gemini-pro-vision",
	"gemini-pro",
}

// Generator calls the vision model. It must wrap gemini.ErrModelNotFound when the model does not exist.
type Generator interface {
	Generate(ctx context.Context, model string, prompt string, frames [][]byte) (string, error)
}

type FrameExtractor interface {
	ExtractFrames(ctx context.Context, videoPath string) ([][]byte, error)
}

type Finding struct {
	EventType   string
	Confidence  float64
	Description string
	Explanation string
}

// Outcome is either Success or Failure.
type Outcome interface {
	outcome()
}

type Success struct {
	Summary  string
	Findings []Finding
	Model    string
}

type Failure struct {
	Reason string
}

func (Success) outcome() {}
func (Failure) outcome() {}

// VisionAnalyzer turns one segment into findings. It never returns an error: every problem
// becomes a Failure with a reason code.
type VisionAnalyzer struct {
	generator Generator
	frames    FrameExtractor
	enabled   bool

	mu         sync.Mutex
	candidates []string
	index      int
}

// KeyConfigured reports whether apiKey looks like a real key rather than a blank or placeholder.
func KeyConfigured(apiKey string) bool {
	key := strings.TrimSpace(apiKey)
	return key != "" && !strings.HasPrefix(key, "YOUR_")
}

// New builds the analyzer. generator may be nil when the key is not configured.
func New(apiKey string, model string, generator Generator, frames FrameExtractor) *VisionAnalyzer {
	return &VisionAnalyzer{
		generator:  generator,
		frames:     frames,
		enabled:    KeyConfigured(apiKey) && generator != nil,
		candidates: buildCandidates(model),
	}
}

func (a *VisionAnalyzer) Enabled() bool {
	return a.enabled
}

// Candidates returns the ordered model identifiers, aliases included.
func (a *VisionAnalyzer) Candidates() []string {
	return append([]string(nil), a.candidates...)
}

// CurrentModel is the identifier the next call starts with.
func (a *VisionAnalyzer) CurrentModel() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.candidates[a.index]
}

func (a *VisionAnalyzer) Analyze(ctx context.Context, segmentPath string, useCase config.UseCase) Outcome {
	if !a.enabled {
		return Failure{Reason: constant.ReasonDisabled}
	}

	frames, err := a.frames.ExtractFrames(ctx, segmentPath)
	if err != nil || len(frames) == 0 {
		reason := constant.ReasonFFmpegError
		if err == nil || errors.Is(err, ffmpeg.ErrNoFrames) {
			reason = constant.ReasonNoFrames
		}
		zerolog.Ctx(ctx).Info().Err(err).Str("segment", segmentPath).Str("reason", reason).Msg("no frames for segment")
		return Failure{Reason: reason}
	}

	text, model, err := a.generateWithFallback(ctx, buildPrompt(useCase), frames)
	if err != nil {
		reason := constant.ReasonRequestFailed
		if errors.Is(err, gemini.ErrModelNotFound) {
			reason = constant.ReasonModelNotFound
		}
		zerolog.Ctx(ctx).Warn().Err(err).Str("segment", segmentPath).Str("reason", reason).Msg("vision request failed")
		return Failure{Reason: reason}
	}

	summary, findings, err := parseResponse(text)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("response", truncate(text, 400)).Msg("vision response is not valid json")
		return Failure{Reason: constant.ReasonInvalidJSON}
	}

	return Success{Summary: summary, Findings: findings, Model: model}
}

// generateWithFallback walks the candidates starting at the remembered index. Only a not-found
// error moves on to the next candidate; anything else aborts the call.
func (a *VisionAnalyzer) generateWithFallback(ctx context.Context, prompt string, frames [][]byte) (string, string, error) {
	a.mu.Lock()
	start := a.index
	a.mu.Unlock()

	var lastErr error
	for offset := 0; offset < len(a.candidates); offset++ {
		idx := (start + offset) % len(a.candidates)
		model := a.candidates[idx]

		text, err := a.generator.Generate(ctx, model, prompt, frames)
		if err == nil {
			a.mu.Lock()
			a.index = idx
			a.mu.Unlock()
			return text, model, nil
		}

		lastErr = err
		if !errors.Is(err, gemini.ErrModelNotFound) {
			return "", model, err
		}
		zerolog.Ctx(ctx).Warn().Str("model", model).Msg("model not found, trying next candidate")
	}

	if lastErr == nil {
		lastErr = gemini.ErrModelNotFound
	}
	return "", "", lastErr
}

func buildCandidates(primary string) []string {
	seen := map[string]struct{}{}
	var out []string
	add := func(name string) {
		if name == "" {
			return
		}
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}

	for _, name := range append([]string{strings.TrimSpace(primary)}, fallbackModels...) {
		if name == "" {
			continue
		}
		add(name)
		if !strings.HasPrefix(name, "models/") {
			add("models/" + name)
		}
	}
	return out
}

func buildPrompt(uc config.UseCase) string {
	var sb strings.Builder
	sb.WriteString(uc.SystemPrompt)
	sb.WriteString("\n\nContext: ")
	sb.WriteString(uc.Context)
	sb.WriteString("\n\nEvents to detect:\n")
	for _, event := range uc.Events {
		sb.WriteString("- " + event + "\n")
	}
	sb.WriteString("\nReturn JSON only in this format:\n" +
		"{\n" +
		"  \"summary\": \"1-2 sentence general description of what is happening in the clip (not limited to the event list).\",\n" +
		"  \"events\": [\n" +
		"    {\"event_type\": \"fight\", \"detected\": true, \"confidence\": 0.82, " +
		"\"description\": \"Brief description\", \"explanation\": \"Why you flagged it\"}\n" +
		"  ]\n" +
		"}\n" +
		"If nothing is detected, return {\"summary\": \"\", \"events\": []}.")
	return sb.String()
}

// number accepts both 0.8 and "0.8".
type number float64

func (n *number) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*n = 0
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*n = number(f)
	return nil
}

type rawResponse struct {
	Summary *string `json:"summary"`
	Events  []struct {
		EventType   *string `json:"event_type"`
		Detected    bool    `json:"detected"`
		Confidence  number  `json:"confidence"`
		Description string  `json:"description"`
		Explanation string  `json:"explanation"`
	} `json:"events"`
}

// parseResponse decodes the span between the first '{' and the last '}' and drops undetected events.
func parseResponse(text string) (string, []Finding, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end <= start {
		return "", nil, errors.New("no json object found in response")
	}

	var raw rawResponse
	if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
		return "", nil, fmt.Errorf("decode response: %w", err)
	}

	var findings []Finding
	for _, event := range raw.Events {
		if !event.Detected {
			continue
		}
		eventType := "unknown"
		if event.EventType != nil && *event.EventType != "" {
			eventType = *event.EventType
		}
		findings = append(findings, Finding{
			EventType:   eventType,
			Confidence:  min(max(float64(event.Confidence), 0), 1),
			Description: event.Description,
			Explanation: event.Explanation,
		})
	}

	summary := ""
	if raw.Summary != nil {
		summary = strings.TrimSpace(*raw.Summary)
	}
	return summary, findings, nil
}

// truncate keeps at most n runes.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

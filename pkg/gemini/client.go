package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"google.golang.org/genai"
)

// ErrModelNotFound marks a model identifier the API does not serve. Callers may try another one.
var ErrModelNotFound = errors.New("model not found")

const requestTimeout = 2 * time.Minute

type Client struct {
	client *genai.Client
}

// NewClient builds a Gemini API client. Empty baseURL and apiVersion keep the SDK defaults.
func NewClient(ctx context.Context, apiKey, baseURL, apiVersion string) (*Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
		HTTPClient: &http.Client{
			Timeout: requestTimeout,
		},
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    baseURL,
			APIVersion: apiVersion,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Client{client: client}, nil
}

// Generate sends the prompt plus JPEG frames to model and returns the text of the first candidate.
func (c *Client) Generate(ctx context.Context, model string, prompt string, frames [][]byte) (string, error) {
	parts := []*genai.Part{genai.NewPartFromText(prompt)}
	for _, frame := range frames {
		parts = append(parts, genai.NewPartFromBytes(frame, "image/jpeg"))
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	resp, err := c.client.Models.GenerateContent(ctx, model, contents, nil)
	if err != nil {
		if isNotFound(err) {
			return "", fmt.Errorf("%w: %s", ErrModelNotFound, model)
		}
		return "", fmt.Errorf("gemini request failed: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return "", errors.New("no candidates returned")
	}
	return resp.Text(), nil
}

func isNotFound(err error) bool {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusNotFound
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return apiErrPtr.Code == http.StatusNotFound
	}
	return false
}

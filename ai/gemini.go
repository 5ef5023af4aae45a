// Package ai holds the quiz generation client.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultEndpoint is the public Generative Language API.
const DefaultEndpoint = "https://generativelanguage.googleapis.com"

// ErrEmptyResponse is returned when the model produced no text.
var ErrEmptyResponse = errors.New("Gemini returned an empty response")

// ErrMissingKey is returned when no API key is configured.
var ErrMissingKey = errors.New("missing Gemini API key (set GEMINI.API_KEY)")

// Gemini represents a client for the Gemini generateContent API
type Gemini struct {
	apiKey   string
	endpoint string
	model    string
	client   *http.Client
	prompt   func(text string) string
}

// NewGemini creates a client. A zero timeout leaves requests bounded only by their context.
func NewGemini(apiKey, endpoint, model string, timeout time.Duration) *Gemini {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if model == "" {
		model = "gemini-1.5-flash"
	}
	return &Gemini{
		apiKey:   apiKey,
		endpoint: strings.TrimRight(endpoint, "/"),
		model:    model,
		client:   &http.Client{Timeout: timeout},
		prompt:   QuizPrompt,
	}
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Parts []part `json:"parts"`
}

// generateRequest is the generateContent request body
type generateRequest struct {
	Contents []content `json:"contents"`
}

// generateResponse is the subset of the generateContent response we read
type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Generate asks the model for a question list built from text. Cancelling ctx
// aborts the request and the returned error wraps context.Canceled.
func (g *Gemini) Generate(ctx context.Context, text string) (string, error) {
	if g.apiKey == "" {
		return "", ErrMissingKey
	}
	body, err := json.Marshal(generateRequest{
		Contents: []content{{Parts: []part{{Text: g.prompt(text)}}}},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", g.endpoint, g.model, g.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	var out generateResponse
	if err := json.Unmarshal(data, &out); err != nil {
		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("Gemini request failed with status %d", resp.StatusCode)
		}
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if out.Error != nil {
		return "", fmt.Errorf("Gemini API error: %s", out.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("Gemini request failed with status %d", resp.StatusCode)
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 || out.Candidates[0].Content.Parts[0].Text == "" {
		return "", ErrEmptyResponse
	}
	return out.Candidates[0].Content.Parts[0].Text, nil
}

// QuizPrompt wraps source text in the generation instructions.
func QuizPrompt(text string) string {
	return `You are a senior university lecturer who writes hard, discriminating exams. I will give you course material (slides or plain text). Please:

Read the material carefully and divide it into its main topics.

Based on the whole material, write EXACTLY 30 multiple-choice questions.

Requirements:

- Questions must cover the main topics without overlapping.
- Favor the difficult parts that students commonly confuse or get wrong.
- Questions must not refer to the layout of the material (slide numbers, sections, pages, titles). If context is needed, describe it instead.
- Ignore content unrelated to the subject such as grading policy or schedules.
- Each question has between 3 and 6 answers. Several answers may be correct, but the number of correct answers must be less than the number of answers.
- Answers of one question should have similar length and vocabulary so that none stands out.
- Every answer needs an explanation that starts with "CORRECT, because..." or "INCORRECT, because..." and states the general concept, independent of the material's layout.

Return the result strictly in this JSON format:

[
  {
    "statement": "Question?",
    "answer": [
      {
        "correct": true,
        "content": "Answer A",
        "explanation": "CORRECT, because ..."
      },
      {
        "correct": false,
        "content": "Answer B",
        "explanation": "INCORRECT, because ..."
      }
    ]
  }
]

Return only the JSON, nothing else.

Here is the content:

` + "```\n" + text + "\n```\n"
}

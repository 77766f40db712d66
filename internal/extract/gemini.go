package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/voxnote-app/voxnote/internal/config"
)

// Rate limiter defaults: 50 requests per minute.
const (
	defaultRateLimit = 50.0 / 60.0
	defaultBurst     = 5
)

// Result is the loosely-typed payload parsed from the provider's JSON
// output. Every field is optional here; the memo validator decides what
// is acceptable. Treat it exactly like user input.
type Result struct {
	Summary     string         `json:"summary"`
	PrimaryType string         `json:"primary_type"`
	ContentBody string         `json:"content_body"`
	Entities    ResultEntities `json:"entities"`
}

// ResultEntities mirrors the entities sub-object of the output schema.
type ResultEntities struct {
	TargetDate *string  `json:"target_date"`
	Location   *string  `json:"location"`
	Tags       []string `json:"tags"`
}

// Extractor turns a transcript into a candidate structured result.
// The now argument is the invocation clock; it is rendered into the
// prompt in the canonical timezone so relative dates resolve the same
// way on every host.
type Extractor interface {
	Extract(ctx context.Context, transcript string, now time.Time) (*Result, error)
}

// GeminiClient implements Extractor against the Gemini generateContent
// API, requesting JSON output via responseMimeType.
type GeminiClient struct {
	baseURL    string
	apiKey     string
	model      string
	location   *time.Location
	httpClient *http.Client
	limiter    *rate.Limiter
}

func NewGeminiClient(cfg config.ExtractConfig, loc *time.Location) *GeminiClient {
	return &GeminiClient{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		location:   loc,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(defaultRateLimit), defaultBurst),
	}
}

const instructionTemplate = `You are a personal secretary. Current Time (%s): %s
Task: Analyze the transcript.
If it's a specific appointment, type is 'SCHEDULE'. Extract date strictly based on the current time and timezone above.
If it's a task/idea, type is 'TODO' or 'IDEA'. Reformat the content into clean Markdown (headers, bullets).
Otherwise, type is 'NOTE'.
Output JSON only matching the defined Schema:
{
  "summary": "string",
  "primary_type": "SCHEDULE" | "TODO" | "IDEA" | "NOTE",
  "content_body": "string (markdown)",
  "entities": {
    "target_date": "string (ISO 8601) or null",
    "location": "string or null",
    "tags": ["string"]
  }
}`

// BuildPrompt renders the fixed instruction with the clock value in the
// canonical timezone, followed by the transcript. Exported so tests can
// pin the determinism contract.
func (c *GeminiClient) BuildPrompt(transcript string, now time.Time) string {
	local := now.In(c.location)
	instruction := fmt.Sprintf(instructionTemplate, c.location.String(), local.Format("2006-01-02 15:04:05 (Monday)"))
	return instruction + "\n\nTranscript:\n" + transcript
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	ResponseMimeType string `json:"responseMimeType"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

type geminiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func (c *GeminiClient) Extract(ctx context.Context, transcript string, now time.Time) (*Result, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	reqBody := geminiRequest{
		Contents: []geminiContent{
			{Parts: []geminiPart{{Text: c.BuildPrompt(transcript, now)}}},
		},
		GenerationConfig: geminiGenerationConfig{ResponseMimeType: "application/json"},
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling extraction request: %w", err)
	}

	u := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building extraction request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("extraction request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading extraction response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp geminiError
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
			return nil, fmt.Errorf("extraction provider error (%d): %s", resp.StatusCode, errResp.Error.Message)
		}
		return nil, fmt.Errorf("extraction provider error: status %d", resp.StatusCode)
	}

	var gemResp geminiResponse
	if err := json.Unmarshal(body, &gemResp); err != nil {
		return nil, fmt.Errorf("parsing extraction response: %w", err)
	}
	if len(gemResp.Candidates) == 0 || len(gemResp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("extraction provider returned no candidates")
	}

	return parseResult(gemResp.Candidates[0].Content.Parts[0].Text)
}

// parseResult decodes the model output into a Result. Models sometimes
// wrap JSON in markdown code fences even in JSON mode, so those are
// stripped first. Output that is not JSON at all is an extraction
// failure; field-level problems are left to the validator.
func parseResult(text string) (*Result, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var res Result
	if err := json.Unmarshal([]byte(text), &res); err != nil {
		return nil, fmt.Errorf("provider output is not valid JSON: %w", err)
	}
	return &res, nil
}

var _ Extractor = (*GeminiClient)(nil)

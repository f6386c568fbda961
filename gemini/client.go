package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/jonwraymond/chatrelay/resilience"
)

const maxResponseBytes = 8 << 20

// Client calls the Gemini generateContent endpoint. Each call is a single
// attempt; retries belong to the caller's resilience.Executor.
type Client struct {
	config     Config
	httpClient *http.Client
}

// New creates a Client. It fails with ErrMissingAPIKey when no key is set.
func New(config Config) (*Client, error) {
	if strings.TrimSpace(config.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	config.applyDefaults()

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}

	return &Client{config: config, httpClient: httpClient}, nil
}

// DefaultOptions returns the client's configured generation settings.
func (c *Client) DefaultOptions() Options {
	return Options{
		Model:           c.config.Model,
		SafetyFilters:   c.config.SafetyFilters,
		Temperature:     c.config.Temperature,
		MaxOutputTokens: c.config.MaxOutputTokens,
	}
}

// Model returns the default model name.
func (c *Client) Model() string { return c.config.Model }

// Generate sends prompt (and an optional attachment) and returns the first
// candidate's text.
//
// Failures are *resilience.OperationError values: HTTP errors carry the
// status code and the API's status string as Reason, a reply without text is
// status 500 with ReasonInvalidResponse, and transport failures are terminal.
func (c *Client) Generate(ctx context.Context, prompt string, opts Options, attachment *Attachment) (*Response, error) {
	if opts.Model == "" {
		opts.Model = c.config.Model
	}
	if opts.MaxOutputTokens <= 0 {
		opts.MaxOutputTokens = c.config.MaxOutputTokens
	}

	body, err := json.Marshal(buildRequest(prompt, opts, attachment))
	if err != nil {
		return nil, resilience.TerminalError(ReasonBadRequest, fmt.Errorf("gemini: encode request: %w", err))
	}

	endpoint := c.config.Endpoint + "/models/" + url.PathEscape(opts.Model) + ":generateContent"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, resilience.TerminalError(ReasonBadRequest, fmt.Errorf("gemini: build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-goog-api-key", c.config.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, resilience.TerminalError(ReasonTransport, fmt.Errorf("gemini: request failed: %w", err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, resilience.TerminalError(ReasonTransport, fmt.Errorf("gemini: read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError(resp.StatusCode, data)
	}

	return parseResponse(opts.Model, data)
}

func buildRequest(prompt string, opts Options, attachment *Attachment) generateRequest {
	parts := []part{{Text: prompt}}
	if attachment != nil && len(attachment.Data) > 0 {
		mimeType := attachment.MIMEType
		if mimeType == "" {
			mimeType = http.DetectContentType(attachment.Data)
		}
		parts = append(parts, part{InlineData: &inlineData{
			MIMEType: mimeType,
			Data:     base64.StdEncoding.EncodeToString(attachment.Data),
		}})
	}

	req := generateRequest{
		Contents: []content{{Role: "user", Parts: parts}},
		GenerationConfig: generationConfig{
			Temperature:     opts.Temperature,
			MaxOutputTokens: opts.MaxOutputTokens,
		},
	}
	if opts.SafetyFilters {
		req.SafetySettings = make([]safetySetting, 0, len(safetyCategories))
		for _, category := range safetyCategories {
			req.SafetySettings = append(req.SafetySettings, safetySetting{Category: category, Threshold: safetyThreshold})
		}
	}
	return req
}

func statusError(status int, body []byte) error {
	opErr := resilience.NewOperationError(status, "", statusMessage(status))

	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err == nil && (env.Error.Status != "" || env.Error.Message != "") {
		opErr.Reason = env.Error.Status
		apiErr := env.Error
		if apiErr.Code == 0 {
			apiErr.Code = status
		}
		opErr.Err = &apiErr
	}
	return opErr
}

func parseResponse(model string, data []byte) (*Response, error) {
	var out generateResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, invalidResponse(err)
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return nil, invalidResponse(nil)
	}

	var text strings.Builder
	for _, p := range out.Candidates[0].Content.Parts {
		text.WriteString(p.Text)
	}
	if text.Len() == 0 {
		return nil, invalidResponse(nil)
	}

	usage := Usage{
		PromptTokens:     out.UsageMetadata.PromptTokenCount,
		CompletionTokens: out.UsageMetadata.CandidatesTokenCount,
		TotalTokens:      out.UsageMetadata.TotalTokenCount,
	}
	if usage.TotalTokens == 0 {
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}

	return &Response{Text: text.String(), Model: model, Usage: usage}, nil
}

func invalidResponse(cause error) error {
	opErr := resilience.NewOperationError(http.StatusInternalServerError, ReasonInvalidResponse,
		"Invalid response structure from Gemini API")
	opErr.Err = cause
	return opErr
}

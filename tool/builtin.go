package tool

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const httpFetchMaxBody = 256 * 1024

// NewEchoTool returns a tool that reflects its input back. Useful for wiring
// checks and mission dry runs.
func NewEchoTool() *FunctionTool {
	return NewFunctionTool(
		"echo",
		"Return the input text unchanged",
		func(_ context.Context, input string) (string, error) {
			return input, nil
		},
	)
}

// NewClockTool returns a tool that reports the current time in RFC 3339.
func NewClockTool() *FunctionTool {
	return NewFunctionTool(
		"current_time",
		"Return the current date and time in RFC 3339 format",
		func(_ context.Context, _ string) (string, error) {
			return time.Now().Format(time.RFC3339), nil
		},
	)
}

// HTTPFetchTool retrieves the body of an HTTP(S) URL. Responses are truncated
// to keep observations inside a model's context budget.
type HTTPFetchTool struct {
	client *http.Client
}

// NewHTTPFetchTool constructs an HTTPFetchTool. A nil client selects a
// default with a 30s timeout.
func NewHTTPFetchTool(client *http.Client) *HTTPFetchTool {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPFetchTool{client: client}
}

// Name implements Tool.
func (t *HTTPFetchTool) Name() string { return "http_fetch" }

// Description implements Tool.
func (t *HTTPFetchTool) Description() string {
	return "Fetch the contents of an HTTP or HTTPS URL. Input is the URL to fetch."
}

// Invoke implements Tool.
func (t *HTTPFetchTool) Invoke(ctx context.Context, input string) (string, error) {
	url := strings.TrimSpace(input)
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return "", NewToolError(t.Name(), fmt.Sprintf("not an http(s) url: %q", url), "VALIDATION_ERROR")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", NewToolError(t.Name(), err.Error(), "VALIDATION_ERROR")
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return "", NewToolError(t.Name(), err.Error(), "EXECUTION_ERROR")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, httpFetchMaxBody))
	if err != nil {
		return "", NewToolError(t.Name(), err.Error(), "EXECUTION_ERROR")
	}

	if resp.StatusCode >= 400 {
		return "", NewToolError(t.Name(), fmt.Sprintf("%s returned status %d", url, resp.StatusCode), "EXECUTION_ERROR")
	}

	return string(body), nil
}

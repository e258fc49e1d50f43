// Package httprequest provides the http.request built-in tool.
package httprequest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ottoflow/otto/pkg/jsontree"
	"github.com/ottoflow/otto/pkg/protocol"
)

const defaultTimeoutSeconds = 30

var (
	// ErrURLMissing is returned when the request URL is absent.
	ErrURLMissing = errors.New("missing or invalid 'url' in params")
	// ErrClientError is returned for 4xx responses.
	ErrClientError = errors.New("client error during HTTP request")
	// ErrServerError is returned for 5xx responses.
	ErrServerError = errors.New("server error during HTTP request")
)

// Factory creates Tool instances for the http.request reference.
type Factory struct {
	logger *slog.Logger
}

func NewFactory(logger *slog.Logger) *Factory {
	return &Factory{logger: logger}
}

func (*Factory) ID() string {
	return "http.request"
}

func (*Factory) Name() string {
	return "HTTP Request"
}

func (*Factory) Description() string {
	return "Performs an HTTP request and returns the status, headers and decoded body."
}

func (f *Factory) Create(_ map[string]any) (protocol.Tool, error) {
	return &Tool{
		logger: f.logger,
		client: &http.Client{Timeout: defaultTimeoutSeconds * time.Second},
	}, nil
}

func (*Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "Absolute URL of the request",
			},
			"method": map[string]any{
				"type":    "string",
				"default": "GET",
				"enum":    []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD"},
			},
			"headers": map[string]any{
				"type":        "object",
				"description": "Request headers, string values only",
			},
			"body": map[string]any{
				"description": "Request body. Objects and arrays are sent as JSON.",
			},
		},
		"required": []string{"url"},
	}
}

// Tool performs one HTTP request per invocation. Retries are the engine's
// concern: a 4xx response comes back non-retryable, 5xx and transport
// failures stay retryable.
type Tool struct {
	logger *slog.Logger
	client *http.Client
}

func (t *Tool) Invoke(ctx context.Context, params jsontree.Value) (jsontree.Value, error) {
	url, ok := params.Field("url")
	if !ok || url.StringValue() == "" {
		return jsontree.Null(), protocol.NonRetryable(ErrURLMissing)
	}

	method := http.MethodGet
	if value, found := params.Field("method"); found && value.StringValue() != "" {
		method = strings.ToUpper(value.StringValue())
	}

	body, err := requestBody(params)
	if err != nil {
		return jsontree.Null(), protocol.NonRetryable(err)
	}

	req, err := http.NewRequestWithContext(ctx, method, url.StringValue(), body)
	if err != nil {
		return jsontree.Null(), protocol.NonRetryable(fmt.Errorf("failed to create http request: %w", err))
	}

	if headers, found := params.Field("headers"); found {
		for name, value := range headers.Fields() {
			req.Header.Set(name, value.Stringify())
		}
	}

	t.logger.DebugContext(ctx, "Sending HTTP request", "method", method, "url", url.StringValue())

	resp, err := t.client.Do(req)
	if err != nil {
		return jsontree.Null(), fmt.Errorf("http request failed: %w", err)
	}

	return t.processResponse(ctx, resp)
}

func requestBody(params jsontree.Value) (io.Reader, error) {
	value, ok := params.Field("body")
	if !ok || value.Kind() == jsontree.KindNull {
		return nil, nil
	}

	if value.Kind() == jsontree.KindString {
		return strings.NewReader(value.StringValue()), nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal body: %w", err)
	}

	return strings.NewReader(string(data)), nil
}

func (t *Tool) processResponse(ctx context.Context, resp *http.Response) (jsontree.Value, error) {
	defer func() {
		_ = resp.Body.Close()
	}()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return jsontree.Null(), fmt.Errorf("failed to read response body: %w", err)
	}

	var body jsontree.Value

	err = json.Unmarshal(bodyBytes, &body)
	if err != nil {
		body = jsontree.String(string(bodyBytes))

		t.logger.DebugContext(ctx, "Response is not JSON, returning as string")
	}

	headers := make(map[string]jsontree.Value, len(resp.Header))
	for name, values := range resp.Header {
		headers[name] = jsontree.String(strings.Join(values, ", "))
	}

	result := jsontree.Object(map[string]jsontree.Value{
		"status_code": jsontree.Number(float64(resp.StatusCode)),
		"body":        body,
		"headers":     jsontree.Object(headers),
	})

	t.logger.InfoContext(ctx, "HTTP request completed",
		"status", resp.StatusCode, "body_length", len(bodyBytes))

	switch {
	case resp.StatusCode >= 500:
		return result, fmt.Errorf("%w: status %d", ErrServerError, resp.StatusCode)
	case resp.StatusCode >= 400:
		return result, protocol.NonRetryable(fmt.Errorf("%w: status %d", ErrClientError, resp.StatusCode))
	default:
		return result, nil
	}
}

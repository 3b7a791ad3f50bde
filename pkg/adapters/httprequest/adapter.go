// Package httprequest provides the HTTP dispatch adapter used to deliver
// payloads to external endpoints.
package httprequest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/flowmesh/flowmesh/pkg/models"
	"github.com/flowmesh/flowmesh/pkg/protocol"
	"github.com/flowmesh/flowmesh/pkg/template"
)

const defaultTimeoutSeconds = 30

var (
	// ErrURLInvalid is returned when the endpoint URL is missing or invalid.
	ErrURLInvalid = errors.New("missing or invalid endpoint url")
	// ErrMethodInvalid is returned when the HTTP method is not supported.
	ErrMethodInvalid = errors.New("invalid HTTP method")
	// ErrEndpointFailure is returned when the endpoint responds with an
	// error status code.
	ErrEndpointFailure = errors.New("endpoint returned error status")
)

// Adapter delivers payloads over HTTP. The request body is the mapped
// payload serialized as JSON unless a body template is configured.
type Adapter struct {
	url     string
	method  string
	headers map[string]string
	body    string
	timeout time.Duration
	client  *http.Client
	logger  *slog.Logger
}

// NewAdapter creates an HTTP adapter from configuration.
func NewAdapter(config map[string]any, logger *slog.Logger) (*Adapter, error) {
	url, ok := config["url"].(string)
	if !ok || url == "" {
		return nil, ErrURLInvalid
	}

	method, _ := config["method"].(string)
	if method == "" {
		method = http.MethodPost
	}

	body, _ := config["body"].(string)

	headers := make(map[string]string)

	if headersConfig, exists := config["headers"]; exists {
		if headersMap, ok := headersConfig.(map[string]any); ok {
			for k, v := range headersMap {
				if strVal, ok := v.(string); ok {
					headers[k] = strVal
				}
			}
		}
	}

	timeout := defaultTimeoutSeconds * time.Second
	if seconds, ok := config["timeout"].(float64); ok && seconds > 0 {
		timeout = time.Duration(seconds) * time.Second
	}

	return &Adapter{
		url:     url,
		method:  strings.ToUpper(method),
		headers: headers,
		body:    body,
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
		logger:  logger.With("adapter_type", "http_request"),
	}, nil
}

// Dispatch sends the payload to the configured endpoint. Non-2xx responses
// produce a failed DispatchResult with ErrEndpointFailure so the executor can
// schedule a retry.
func (a *Adapter) Dispatch(ctx context.Context, target *models.OrchestrationTarget, payload map[string]any, executionCtx models.ExecutionContext) (*protocol.DispatchResult, error) {
	req, err := a.buildRequest(ctx, payload, executionCtx)
	if err != nil {
		return &protocol.DispatchResult{Success: false, ErrorMessage: err.Error()}, err
	}

	a.logger.DebugContext(ctx, "Dispatching HTTP request",
		"target_id", target.ID,
		"method", a.method,
		"url", req.URL.String())

	resp, err := a.client.Do(req)
	if err != nil {
		err = fmt.Errorf("http dispatch failed: %w", err)

		return &protocol.DispatchResult{Success: false, ErrorMessage: err.Error()}, err
	}

	return a.processResponse(ctx, resp)
}

func (a *Adapter) buildRequest(ctx context.Context, payload map[string]any, executionCtx models.ExecutionContext) (*http.Request, error) {
	urlResult, err := template.RenderWithContext(a.url, &executionCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to render url template: %w", err)
	}

	bodyBytes, err := a.buildBody(payload, executionCtx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, a.method, fmt.Sprintf("%v", urlResult), bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create http request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	for key, value := range a.headers {
		headerResult, err := template.RenderWithContext(value, &executionCtx)
		if err != nil {
			return nil, fmt.Errorf("failed to render header '%s' template: %w", key, err)
		}

		req.Header.Set(key, fmt.Sprintf("%v", headerResult))
	}

	return req, nil
}

// buildBody serializes the mapped payload, or renders the body template when
// one is configured.
func (a *Adapter) buildBody(payload map[string]any, executionCtx models.ExecutionContext) ([]byte, error) {
	if a.body == "" {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal payload: %w", err)
		}

		return encoded, nil
	}

	body, err := template.RenderWithContext(a.body, &executionCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to render body template: %w", err)
	}

	if str, ok := body.(string); ok {
		return []byte(str), nil
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal body: %w", err)
	}

	return encoded, nil
}

func (a *Adapter) processResponse(ctx context.Context, resp *http.Response) (*protocol.DispatchResult, error) {
	defer func() {
		_ = resp.Body.Close()
	}()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		err = fmt.Errorf("failed to read response body: %w", err)

		return &protocol.DispatchResult{Success: false, ErrorMessage: err.Error()}, err
	}

	var body any

	if err := json.Unmarshal(bodyBytes, &body); err != nil {
		body = string(bodyBytes)
	}

	responseData := map[string]any{
		"status_code": resp.StatusCode,
		"body":        body,
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		err = fmt.Errorf("%w: %d", ErrEndpointFailure, resp.StatusCode)

		a.logger.WarnContext(ctx, "Endpoint returned error status", "status_code", resp.StatusCode)

		return &protocol.DispatchResult{
			Success:      false,
			ResponseData: responseData,
			ErrorMessage: err.Error(),
		}, err
	}

	a.logger.DebugContext(ctx, "Dispatch completed", "status_code", resp.StatusCode)

	return &protocol.DispatchResult{
		Success:      true,
		ResponseData: responseData,
	}, nil
}

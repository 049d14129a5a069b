package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/tidwall/gjson"

	"lumora/config"
	"lumora/model"
)

// maxErrorBody caps how much of an error response is read.
const maxErrorBody = 64 << 10

var _ model.ChatClient = (*GatewayClient)(nil)

// GatewayClient implements model.ChatClient against the Lumora gateway.
type GatewayClient struct {
	client *retryablehttp.Client
	url    string
	apiKey string
}

// NewGatewayClient validates cfg and builds the HTTP client. Only failures
// that produced no response at all are retried; every HTTP status,
// including 429 and 5xx, is returned to the caller on the first attempt.
func NewGatewayClient(cfg Config) (*GatewayClient, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("invalid gateway url %q", cfg.URL)
	}

	client := retryablehttp.NewClient()
	client.RetryMax = cfg.RetryMax
	client.RetryWaitMin = 200 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.CheckRetry = connectionRetryPolicy
	if config.DebugLog != nil {
		client.Logger = config.DebugLog
	} else {
		client.Logger = nil
	}
	if transport, ok := client.HTTPClient.Transport.(*http.Transport); ok && cfg.ResponseHeaderTimeout > 0 {
		transport.ResponseHeaderTimeout = cfg.ResponseHeaderTimeout
	}

	return &GatewayClient{
		client: client,
		url:    cfg.URL,
		apiKey: cfg.APIKey,
	}, nil
}

func connectionRetryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err == nil {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

// Stream posts the conversation and returns the event-stream body.
func (g *GatewayClient) Stream(ctx context.Context, chatReq model.ChatRequest) (io.ReadCloser, error) {
	payload, err := json.Marshal(chatReq)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, g.url, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("failed to reach gateway: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, decodeErrorResponse(resp)
	}

	if config.DebugLog != nil {
		config.DebugLog.Printf("[Provider] gateway accepted request (%s)", resp.Header.Get("Content-Type"))
	}
	return resp.Body, nil
}

// decodeErrorResponse reads {"error": "..."}; the nested OpenAI form
// {"error": {"message": "..."}} is accepted as well.
func decodeErrorResponse(resp *http.Response) *model.ErrorResponse {
	out := &model.ErrorResponse{StatusCode: resp.StatusCode}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || !gjson.ValidBytes(data) {
		return out
	}

	field := gjson.GetBytes(data, "error")
	switch {
	case field.Type == gjson.String:
		out.Message = field.Str
	case field.IsObject():
		out.Message = field.Get("message").String()
	}
	return out
}

// Ping checks that the gateway answers GET /health.
func (g *GatewayClient) Ping(ctx context.Context) error {
	u, err := url.Parse(g.url)
	if err != nil {
		return err
	}
	u.Path = "/health"
	u.RawQuery = ""

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach gateway: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gateway health check returned %d", resp.StatusCode)
	}
	return nil
}

package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"lumora/model"
)

// ErrNoUpstreamKey is returned when the gateway was started without an
// upstream credential.
var ErrNoUpstreamKey = errors.New("UPSTREAM_API_KEY is not configured")

// Upstream relays chat completions to an OpenAI-compatible API.
type Upstream struct {
	client openai.Client
	apiKey string
}

// NewUpstream builds the client. Retries are disabled so a 429 from the
// provider reaches the user once instead of being absorbed here.
func NewUpstream(baseURL, apiKey string, headerTimeout time.Duration) *Upstream {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = headerTimeout

	client := openai.NewClient(
		option.WithBaseURL(baseURL),
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
		option.WithHTTPClient(&http.Client{Transport: transport}),
	)
	return &Upstream{client: client, apiKey: apiKey}
}

// Stream starts a streamed completion and returns the raw response so its
// event-stream body can be copied to the caller unmodified. Non-2xx answers
// come back as *openai.Error.
func (u *Upstream) Stream(ctx context.Context, modelName string, messages []openai.ChatCompletionMessageParamUnion) (*http.Response, error) {
	if u.apiKey == "" {
		return nil, ErrNoUpstreamKey
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(modelName),
		Messages: messages,
	}

	var resp *http.Response
	err := u.client.Post(ctx, "chat/completions", params, &resp,
		option.WithJSONSet("stream", true),
		option.WithHeader("Accept", "text/event-stream"),
	)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// buildMessages puts the system prompt first and converts client messages.
// A message with images becomes a content array: a text part when there is
// text, then one image part per image.
func buildMessages(systemPrompt string, in []model.WireMessage) ([]openai.ChatCompletionMessageParamUnion, error) {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(in)+1)
	out = append(out, openai.SystemMessage(systemPrompt))

	for i, m := range in {
		switch m.Role {
		case model.RoleUser:
			if len(m.Images) == 0 {
				out = append(out, openai.UserMessage(m.Content))
				continue
			}
			parts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(m.Images)+1)
			if m.Content != "" {
				parts = append(parts, openai.TextContentPart(m.Content))
			}
			for _, img := range m.Images {
				parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: img.URL}))
			}
			out = append(out, openai.UserMessage(parts))
		case model.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			return nil, fmt.Errorf("message %d has unsupported role %q", i, m.Role)
		}
	}
	return out, nil
}

// upstreamStatus maps a failed upstream call to the status and message
// returned to the client.
func upstreamStatus(err error) (int, string) {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusTooManyRequests:
			return http.StatusTooManyRequests, "Rate limit exceeded. Please try again in a moment."
		case http.StatusPaymentRequired:
			return http.StatusPaymentRequired, "Usage limit reached. Please check your account."
		}
	}
	return http.StatusInternalServerError, "Failed to get AI response"
}

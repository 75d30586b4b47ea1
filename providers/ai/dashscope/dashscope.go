package dashscope

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/leofalp/mmchat/internal/utils"
	"github.com/leofalp/mmchat/providers/ai"
	"github.com/leofalp/mmchat/providers/observability"
)

const (
	providerName = "dashscope"

	// DefaultBaseURL is the public DashScope API root.
	DefaultBaseURL = "https://dashscope.aliyuncs.com/api/v1"

	// DefaultModel is used when a request does not name a model.
	DefaultModel = "qwen-vl-plus"

	generationEndpoint = "/services/aigc/multimodal-generation/generation"
)

// ErrMissingAPIKey is returned when neither the provider nor the request
// carries an API key.
var ErrMissingAPIKey = errors.New("dashscope: API key is not set")

// Provider implements ai.StreamProvider for the DashScope multimodal
// generation API.
type Provider struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

var _ ai.StreamProvider = (*Provider)(nil)

// New creates a provider configured from DASHSCOPE_API_KEY and
// DASHSCOPE_BASE_URL, falling back to DefaultBaseURL.
func New() *Provider {
	baseURL := os.Getenv("DASHSCOPE_BASE_URL")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Provider{
		apiKey:  os.Getenv("DASHSCOPE_API_KEY"),
		baseURL: baseURL,
		client:  &http.Client{},
	}
}

// WithAPIKey sets the default API key.
func (p *Provider) WithAPIKey(apiKey string) ai.Provider {
	p.apiKey = apiKey
	return p
}

// WithBaseURL sets the API root, e.g. a regional endpoint.
func (p *Provider) WithBaseURL(baseURL string) ai.Provider {
	p.baseURL = baseURL
	return p
}

// WithHttpClient sets a custom HTTP client.
func (p *Provider) WithHttpClient(httpClient *http.Client) ai.Provider {
	p.client = httpClient
	return p
}

// SendMessage performs a non-streaming generation call.
func (p *Provider) SendMessage(ctx context.Context, request ai.ChatRequest) (*ai.ChatResponse, error) {
	apiKey, model, err := p.prepare(ctx, request, false)
	if err != nil {
		return nil, err
	}

	_, resp, err := utils.DoPostSync[response](ctx, p.client, p.baseURL+generationEndpoint, apiKey,
		requestFromGeneric(request, model, false))
	if err != nil {
		return nil, wrapHTTPError(err)
	}
	if resp.Code != "" {
		return nil, &APIError{Code: resp.Code, Message: resp.Message, RequestID: resp.RequestID}
	}

	out := responseToGeneric(*resp, model)
	observability.AddEvent(ctx, observability.EventHTTPResponse,
		observability.String(observability.AttrLLMRequestID, out.Id),
		observability.String(observability.AttrLLMFinishReason, out.FinishReason),
	)
	return out, nil
}

// prepare resolves the key and model and records the request attributes on
// the span in ctx.
func (p *Provider) prepare(ctx context.Context, request ai.ChatRequest, streaming bool) (string, string, error) {
	apiKey := request.APIKey
	if apiKey == "" {
		apiKey = p.apiKey
	}
	model := request.Model
	if model == "" {
		model = DefaultModel
	}

	if span := observability.SpanFromContext(ctx); span != nil {
		span.SetAttributes(
			observability.String(observability.AttrLLMProvider, providerName),
			observability.String(observability.AttrLLMModel, model),
			observability.Bool(observability.AttrConversationStreaming, streaming),
		)
	}

	if apiKey == "" {
		return "", "", ErrMissingAPIKey
	}
	return apiKey, model, nil
}

func wrapHTTPError(err error) error {
	var statusErr *utils.StatusError
	if errors.As(err, &statusErr) {
		return apiErrorFromBody(statusErr.StatusCode, statusErr.Body)
	}
	return fmt.Errorf("dashscope: %w", err)
}

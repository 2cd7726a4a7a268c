package analyzer

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"

	"github.com/MikeSquared-Agency/rapport/internal/anthropic"
)

// Request is one structured-output call.
type Request struct {
	// Name labels the schema for providers that take one.
	Name         string
	Instructions string
	Input        string
	Schema       map[string]any
	MaxTokens    int
}

// Provider sends a Request to a model and returns its raw text output.
type Provider interface {
	Name() string
	Generate(ctx context.Context, req Request) (string, error)
}

// AnthropicProvider adapts the Anthropic Messages client. The schema travels
// in the instructions.
type AnthropicProvider struct {
	client *anthropic.Client
}

func NewAnthropicProvider(client *anthropic.Client) *AnthropicProvider {
	return &AnthropicProvider{client: client}
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

func (p *AnthropicProvider) Generate(ctx context.Context, req Request) (string, error) {
	msgs := []anthropic.Message{{Role: "user", Content: req.Input}}
	return p.client.Complete(ctx, req.Instructions, msgs, req.MaxTokens)
}

// OpenAIProvider calls the Responses API with a strict JSON schema format.
type OpenAIProvider struct {
	client openai.Client
	model  string
}

// NewOpenAIProvider builds a provider. SDK retries are disabled; the
// analyzer owns the retry policy.
func NewOpenAIProvider(apiKey, model string, opts ...option.RequestOption) *OpenAIProvider {
	all := append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}, opts...)
	return &OpenAIProvider{client: openai.NewClient(all...), model: model}
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) Generate(ctx context.Context, req Request) (string, error) {
	if p.model == "" {
		return "", errors.New("openai provider: model is empty")
	}
	format := responses.ResponseFormatTextConfigUnionParam{
		OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
			Name:   req.Name,
			Schema: req.Schema,
			Strict: openai.Bool(true),
			Type:   "json_schema",
		},
	}
	params := responses.ResponseNewParams{
		Model:           p.model,
		MaxOutputTokens: openai.Int(int64(req.MaxTokens)),
		Instructions:    openai.String(req.Instructions),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: []responses.ResponseInputItemUnionParam{
				responses.ResponseInputItemParamOfMessage(req.Input, responses.EasyInputMessageRoleUser),
			},
		},
		Text: responses.ResponseTextConfigParam{
			Format: format,
		},
	}

	resp, err := p.client.Responses.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("responses call: %w", err)
	}
	return resp.OutputText(), nil
}

// retryable reports whether a failed call is worth repeating. Rate limits,
// server errors, transport failures and unparseable output are; client errors
// and cancellation are not.
func retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var oaErr *openai.Error
	if errors.As(err, &oaErr) {
		return oaErr.StatusCode == http.StatusTooManyRequests || oaErr.StatusCode >= 500
	}
	return anthropic.IsRetryable(err)
}

package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// OpenAI implements Provider on the Chat Completions API.
type OpenAI struct {
	client openai.Client
	model  string
	// compatible is set for non-OpenAI servers speaking the same API, which
	// generally accept max_tokens but not max_completion_tokens.
	compatible bool
}

// NewOpenAI creates an OpenAI provider. The API key defaults to
// OPENAI_API_KEY and the endpoint to OPENAI_BASE_URL when set.
func NewOpenAI(model string, opts Options) (*OpenAI, error) {
	apiKey := opts.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY environment variable is not set")
	}
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = os.Getenv("OPENAI_BASE_URL")
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(baseURL))
	}
	if opts.HTTPClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(opts.HTTPClient))
	}

	return &OpenAI{
		client:     openai.NewClient(reqOpts...),
		model:      model,
		compatible: baseURL != "" && !strings.Contains(baseURL, "api.openai.com"),
	}, nil
}

func (o *OpenAI) Name() string  { return "openai" }
func (o *OpenAI) Model() string { return o.model }

func (o *OpenAI) Complete(ctx context.Context, req Request) (Response, error) {
	var messages []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.User))

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(o.model),
		Messages:    messages,
		Temperature: openai.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		if o.compatible {
			params.MaxTokens = openai.Int(int64(req.MaxTokens))
		} else {
			params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
		}
	}
	if req.JSON {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: openai.Ptr(shared.NewResponseFormatJSONObjectParam()),
		}
	}

	completion, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return Response{}, wrapOpenAIError(err)
	}
	if len(completion.Choices) == 0 {
		return Response{}, fmt.Errorf("no choices in response")
	}
	content := completion.Choices[0].Message.Content
	if content == "" {
		return Response{}, fmt.Errorf("empty text content in API response")
	}

	return Response{
		Content:    content,
		TokensUsed: int(completion.Usage.TotalTokens),
	}, nil
}

func wrapOpenAIError(err error) error {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	msg := strings.TrimSpace(apiErr.RawJSON())
	if msg == "" {
		msg = http.StatusText(apiErr.StatusCode)
	}
	return &APIError{
		Provider:   "openai",
		StatusCode: apiErr.StatusCode,
		Message:    msg,
		RetryAfter: parseRetryAfter(responseHeader(apiErr.Response)),
	}
}

// Package anthropic implements ai.GraphAIClient on the Anthropic Messages
// API. Structured output is requested by embedding the JSON schema in the
// system prompt and parsed tolerantly.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/OFFIS-RIT/newsgraph/pkg/ai"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultMaxTokens = 4096

// messageClient is the part of the SDK the adapter uses.
type messageClient interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

type GraphAnthropicClient struct {
	ai.MetricsRecorder

	extractionModel string
	messages        messageClient
}

type NewGraphAnthropicClientParams struct {
	ExtractionModel string

	BaseURL string
	ApiKey  string

	MaxRetries int
}

func NewGraphAnthropicClient(params NewGraphAnthropicClientParams) (*GraphAnthropicClient, error) {
	if params.ApiKey == "" {
		return nil, errors.New("anthropic: api key is empty")
	}
	opts := []option.RequestOption{
		option.WithAPIKey(params.ApiKey),
		option.WithMaxRetries(params.MaxRetries),
	}
	if params.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(params.BaseURL))
	}
	client := anthropic.NewClient(opts...)

	return &GraphAnthropicClient{
		extractionModel: params.ExtractionModel,
		messages:        &client.Messages,
	}, nil
}

func (c *GraphAnthropicClient) generate(ctx context.Context, prompt string, options ai.GenerateOptions) (string, error) {
	maxTokens := options.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(options.Model),
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(options.Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	for _, sp := range options.SystemPrompts {
		params.System = append(params.System, anthropic.TextBlockParam{Text: sp})
	}

	start := time.Now()
	message, err := c.messages.New(ctx, params)
	if err != nil {
		return "", wrapError(err)
	}

	c.AddMetrics(ai.ModelMetrics{
		InputTokens:  int(message.Usage.InputTokens),
		OutputTokens: int(message.Usage.OutputTokens),
		TotalTokens:  int(message.Usage.InputTokens + message.Usage.OutputTokens),
		DurationMs:   time.Since(start).Milliseconds(),
	})

	var b strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("%w: empty response from model (stop_reason: %s)", ai.ErrMalformedOutput, message.StopReason)
	}
	return b.String(), nil
}

func (c *GraphAnthropicClient) GenerateCompletion(
	ctx context.Context,
	prompt string,
	opts ...ai.GenerateOption,
) (string, error) {
	options := ai.ApplyOptions(ai.GenerateOptions{
		Model:       c.extractionModel,
		Temperature: 0.3,
	}, opts...)
	return c.generate(ctx, prompt, options)
}

func (c *GraphAnthropicClient) GenerateCompletionWithFormat(
	ctx context.Context,
	name string,
	description string,
	prompt string,
	out any,
	opts ...ai.GenerateOption,
) error {
	schema, err := json.Marshal(ai.GenerateSchema(out))
	if err != nil {
		return fmt.Errorf("encode schema %s: %w", name, err)
	}

	options := ai.ApplyOptions(ai.GenerateOptions{
		Model:       c.extractionModel,
		Temperature: 0.1,
	}, opts...)
	options.SystemPrompts = append(options.SystemPrompts, formatInstruction(name, description, schema))

	text, err := c.generate(ctx, prompt, options)
	if err != nil {
		return err
	}
	return ai.UnmarshalFlexible(text, out)
}

func formatInstruction(name, description string, schema []byte) string {
	return fmt.Sprintf(
		"Respond with a single JSON object named %q (%s) that validates against this JSON schema. Output only the JSON.\n%s",
		name, description, schema,
	)
}

// wrapError converts SDK API errors into *ai.StatusError.
func wrapError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return ai.NewStatusError("anthropic", apiErr.StatusCode, apiErr.Response, err)
	}
	return err
}

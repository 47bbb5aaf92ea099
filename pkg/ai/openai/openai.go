package openai

import (
	"errors"

	"github.com/OFFIS-RIT/newsgraph/pkg/ai"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// GraphOpenAIClient implements ai.GraphAIClient on the OpenAI chat
// completions API or any compatible endpoint.
//
// A GraphOpenAIClient should be created using NewGraphOpenAIClient.
type GraphOpenAIClient struct {
	ai.MetricsRecorder

	extractionModel string
	chatURL         string

	ChatClient *openai.Client
}

// NewGraphOpenAIClientParams defines the configuration parameters for
// creating a new GraphOpenAIClient.
//
// ExtractionModel is the default model. ChatURL and ChatKey configure the
// endpoint; an empty ChatURL targets api.openai.com. MaxRetries is the SDK's
// own retry count and defaults to 0 because retries are owned by the caller.
type NewGraphOpenAIClientParams struct {
	ExtractionModel string

	ChatURL string
	ChatKey string

	MaxRetries int
}

// NewGraphOpenAIClient creates and returns a new GraphOpenAIClient.
//
// Example:
//
//	client, err := openai.NewGraphOpenAIClient(openai.NewGraphOpenAIClientParams{
//		ExtractionModel: "gpt-4o-mini",
//		ChatKey:         os.Getenv("OPENAI_API_KEY"),
//	})
func NewGraphOpenAIClient(params NewGraphOpenAIClientParams) (*GraphOpenAIClient, error) {
	chatClient := newOpenaiClient(params.ChatURL, params.ChatKey, params.MaxRetries)
	if chatClient == nil {
		return nil, errors.New("openai: api key is empty")
	}

	return &GraphOpenAIClient{
		extractionModel: params.ExtractionModel,
		chatURL:         params.ChatURL,
		ChatClient:      chatClient,
	}, nil
}

func newOpenaiClient(
	baseURL string,
	apiKey string,
	maxRetries int,
) *openai.Client {
	if apiKey == "" {
		return nil
	}
	options := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(maxRetries),
	}

	if baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}

	client := openai.NewClient(options...)

	return &client
}

// wrapError converts SDK API errors into *ai.StatusError.
func wrapError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return ai.NewStatusError("openai", apiErr.StatusCode, apiErr.Response, err)
	}
	return err
}

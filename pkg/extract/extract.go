// Package extract turns one article into a raw ExtractionResult with a
// single structured-output LLM call. It performs no validation and no
// retries; both belong to the caller.
package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/OFFIS-RIT/newsgraph/pkg/ai"
	"github.com/OFFIS-RIT/newsgraph/pkg/common"
	"github.com/OFFIS-RIT/newsgraph/pkg/retry"

	"github.com/pkoukk/tiktoken-go"
	"golang.org/x/time/rate"
)

// Tokenizer is satisfied by *tiktoken.Tiktoken.
type Tokenizer interface {
	Encode(text string, allowedSpecial []string, disallowedSpecial []string) []int
	Decode(tokens []int) string
}

type Extractor struct {
	client         ai.GraphAIClient
	limiter        *rate.Limiter
	tokenizer      Tokenizer
	maxInputTokens int
	opts           []ai.GenerateOption
}

// NewExtractorParams configures an Extractor.
//
// MaxInputTokens clips the article body to a token budget (0 disables
// clipping). The tokenizer is loaded from TokenEncoder unless Tokenizer is
// set. RequestsPerSecond bounds the call rate (0 means unlimited).
type NewExtractorParams struct {
	Client            ai.GraphAIClient
	Model             string
	TokenEncoder      string
	Tokenizer         Tokenizer
	MaxInputTokens    int
	RequestsPerSecond float64
	Burst             int
}

func NewExtractor(params NewExtractorParams) (*Extractor, error) {
	if params.Client == nil {
		return nil, errors.New("ai client is nil")
	}

	e := &Extractor{
		client:         params.Client,
		tokenizer:      params.Tokenizer,
		maxInputTokens: params.MaxInputTokens,
		limiter:        rate.NewLimiter(rate.Inf, 0),
	}
	if params.RequestsPerSecond > 0 {
		burst := max(params.Burst, 1)
		e.limiter = rate.NewLimiter(rate.Limit(params.RequestsPerSecond), burst)
	}
	if e.maxInputTokens > 0 && e.tokenizer == nil {
		encoder := params.TokenEncoder
		if encoder == "" {
			encoder = "o200k_base"
		}
		enc, err := tiktoken.GetEncoding(encoder)
		if err != nil {
			return nil, fmt.Errorf("load token encoder %s: %w", encoder, err)
		}
		e.tokenizer = enc
	}
	if params.Model != "" {
		e.opts = append(e.opts, ai.WithModel(params.Model))
	}
	return e, nil
}

// Extract runs the extraction call for one article. Transport errors are
// returned as is for the retry classifier; unparsable output is marked
// permanent.
func (e *Extractor) Extract(ctx context.Context, article common.Article) (common.ExtractionResult, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return common.ExtractionResult{}, err
	}

	var out extractionResponse
	err := e.client.GenerateCompletionWithFormat(
		ctx,
		"article_graph",
		"Entities and relationships extracted from a news article",
		e.prompt(article),
		&out,
		e.opts...,
	)
	if errors.Is(err, ai.ErrMalformedOutput) {
		return common.ExtractionResult{}, retry.MarkPermanent(fmt.Errorf("extract article %s: %w", article.ID, err))
	}
	if err != nil {
		return common.ExtractionResult{}, fmt.Errorf("extract article %s: %w", article.ID, err)
	}
	return out.toResult(), nil
}

func (e *Extractor) prompt(article common.Article) string {
	entityTypes := make([]string, 0, len(common.EntityTypes()))
	for _, t := range common.EntityTypes() {
		entityTypes = append(entityTypes, string(t))
	}
	relationTypes := make([]string, 0, len(common.RelationTypes()))
	for _, t := range common.RelationTypes() {
		relationTypes = append(relationTypes, string(t))
	}

	published := ""
	if !article.PublishedAt.IsZero() {
		published = article.PublishedAt.UTC().Format(time.DateOnly)
	}

	return fmt.Sprintf(ai.ExtractArticlePrompt,
		strings.Join(entityTypes, ", "),
		strings.Join(relationTypes, ", "),
		article.Title,
		published,
		e.clip(article.Body),
	)
}

// clip cuts body to maxInputTokens tokens.
func (e *Extractor) clip(body string) string {
	if e.maxInputTokens <= 0 || e.tokenizer == nil {
		return body
	}
	tokens := e.tokenizer.Encode(body, nil, nil)
	if len(tokens) <= e.maxInputTokens {
		return body
	}
	return e.tokenizer.Decode(tokens[:e.maxInputTokens])
}

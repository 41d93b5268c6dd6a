// Package anthropic classifies sentiment with a Claude model.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/couchcryptid/urban-pulse-etl/internal/domain"
	"github.com/couchcryptid/urban-pulse-etl/internal/sentiment"
)

const systemPrompt = `You are a sentiment classifier for short social media posts about city life.
Reply with a single JSON object and nothing else: {"label": "POSITIVE" | "NEGATIVE", "score": <confidence between 0 and 1>}.`

// ErrBadVerdict is returned when the model reply is not a usable verdict.
var ErrBadVerdict = errors.New("unusable classifier verdict")

// Classifier implements sentiment.Scorer by asking a Claude model to label
// each text. Texts are preprocessed the same way as for the lexicon scorer.
type Classifier struct {
	client    sdk.Client
	model     sdk.Model
	maxTokens int64
	logger    *slog.Logger
}

// Options configures NewClassifier. BaseURL is only set in tests.
type Options struct {
	APIKey  string
	Model   string
	BaseURL string
}

// NewClassifier creates a Claude-backed classifier.
func NewClassifier(opts Options, logger *slog.Logger) *Classifier {
	reqOpts := []option.RequestOption{option.WithAPIKey(opts.APIKey)}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL), option.WithMaxRetries(0))
	}
	return &Classifier{
		client:    sdk.NewClient(reqOpts...),
		model:     sdk.Model(opts.Model),
		maxTokens: 64,
		logger:    logger,
	}
}

var _ sentiment.Scorer = (*Classifier)(nil)

// Score classifies each text with one request. Any failure aborts the batch.
func (c *Classifier) Score(ctx context.Context, texts []string) ([]domain.Sentiment, error) {
	out := make([]domain.Sentiment, len(texts))
	for i, text := range texts {
		s, err := c.classify(ctx, sentiment.Preprocess(text))
		if err != nil {
			return nil, fmt.Errorf("classify text %d: %w", i, err)
		}
		out[i] = s
	}
	return out, nil
}

func (c *Classifier) classify(ctx context.Context, text string) (domain.Sentiment, error) {
	start := time.Now()
	msg, err := c.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System: []sdk.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(text)),
		},
	})
	if err != nil {
		return domain.Sentiment{}, fmt.Errorf("anthropic API error: %w", err)
	}
	c.logger.Debug("sentiment classified", "model", c.model, "duration", time.Since(start))

	for _, block := range msg.Content {
		if block.Type == "text" {
			return parseVerdict(block.Text)
		}
	}
	return domain.Sentiment{}, fmt.Errorf("%w: no text content in response", ErrBadVerdict)
}

type verdict struct {
	Label string   `json:"label"`
	Score *float64 `json:"score"`
}

// parseVerdict extracts the JSON object from a reply, tolerating surrounding
// prose or code fences.
func parseVerdict(reply string) (domain.Sentiment, error) {
	start := strings.IndexByte(reply, '{')
	end := strings.LastIndexByte(reply, '}')
	if start < 0 || end < start {
		return domain.Sentiment{}, fmt.Errorf("%w: %q", ErrBadVerdict, reply)
	}

	var v verdict
	if err := json.Unmarshal([]byte(reply[start:end+1]), &v); err != nil {
		return domain.Sentiment{}, fmt.Errorf("%w: %w", ErrBadVerdict, err)
	}

	label := strings.ToUpper(strings.TrimSpace(v.Label))
	if label != domain.LabelPositive && label != domain.LabelNegative {
		return domain.Sentiment{}, fmt.Errorf("%w: label %q", ErrBadVerdict, v.Label)
	}
	if v.Score == nil || *v.Score < 0 || *v.Score > 1 {
		return domain.Sentiment{}, fmt.Errorf("%w: score out of range", ErrBadVerdict)
	}
	return domain.Sentiment{Label: label, Score: *v.Score}, nil
}

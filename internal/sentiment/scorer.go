// Package sentiment classifies short texts as POSITIVE or NEGATIVE.
package sentiment

import (
	"context"

	"github.com/couchcryptid/urban-pulse-etl/internal/domain"
)

// Scorer classifies a batch of texts. The result has one entry per input, in
// the same order.
type Scorer interface {
	Score(ctx context.Context, texts []string) ([]domain.Sentiment, error)
}

// SampleTexts is the built-in corpus used when no texts are configured.
var SampleTexts = []string{
	"Traffic is horrible!",
	"The city environment is amazing today.",
	"Public transport is really unreliable.",
}

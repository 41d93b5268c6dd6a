package sentiment

import (
	"context"
	"math"
	"strings"

	"github.com/couchcryptid/urban-pulse-etl/internal/domain"
)

// negationWindow is how many tokens after a negator have their polarity flipped.
const negationWindow = 3

var positiveWords = wordSet(
	"amazing", "awesome", "beautiful", "calm", "clean", "comfortable", "convenient",
	"delightful", "efficient", "enjoy", "enjoyed", "excellent", "fantastic", "fast",
	"fresh", "friendly", "fun", "good", "great", "green", "happy", "helpful", "love",
	"lovely", "nice", "peaceful", "perfect", "pleasant", "quiet", "reliable", "safe",
	"smooth", "sunny", "vibrant", "welcoming", "wonderful",
)

var negativeWords = wordSet(
	"angry", "annoying", "awful", "bad", "broken", "chaotic", "congested", "crowded",
	"delayed", "dirty", "dangerous", "disgusting", "hate", "horrible", "jammed",
	"late", "loud", "miserable", "noisy", "polluted", "poor", "sad", "slow", "smelly",
	"smog", "stressful", "terrible", "toxic", "ugly", "unreliable", "unsafe", "worst",
)

var negators = wordSet(
	"not", "no", "never", "none", "nobody", "nothing", "hardly", "isn't", "aren't",
	"wasn't", "weren't", "don't", "doesn't", "didn't", "can't", "won't", "cannot",
)

func wordSet(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

// Lexicon is a deterministic, offline word-list classifier.
type Lexicon struct{}

// NewLexicon returns the default scorer.
func NewLexicon() *Lexicon { return &Lexicon{} }

// Score implements Scorer.
func (l *Lexicon) Score(ctx context.Context, texts []string) ([]domain.Sentiment, error) {
	out := make([]domain.Sentiment, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = l.Classify(text)
	}
	return out, nil
}

// Classify scores a single text. With no sentiment words the result is a
// neutral POSITIVE at 0.5.
func (l *Lexicon) Classify(text string) domain.Sentiment {
	var pos, neg int
	flip := 0
	for _, tok := range strings.Fields(Preprocess(text)) {
		if _, ok := negators[tok]; ok {
			flip = negationWindow
			continue
		}
		_, isPos := positiveWords[tok]
		_, isNeg := negativeWords[tok]
		if flip > 0 {
			isPos, isNeg = isNeg, isPos
			flip--
		}
		switch {
		case isPos:
			pos++
		case isNeg:
			neg++
		}
	}

	total := pos + neg
	if total == 0 {
		return domain.Sentiment{Label: domain.LabelPositive, Score: 0.5}
	}

	label := domain.LabelPositive
	if neg > pos {
		label = domain.LabelNegative
	}
	score := 0.5 + 0.5*math.Abs(float64(pos-neg))/float64(total)
	return domain.Sentiment{Label: label, Score: score}
}

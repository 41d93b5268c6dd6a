package sentiment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/urban-pulse-etl/internal/domain"
)

func TestPreprocess(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"punctuation stripped", "Traffic is horrible!", "traffic is horrible"},
		{"whitespace collapsed", "  so   much\tnoise \n", "so much noise"},
		{"fullwidth folded", "ＧＲＥＡＴ day", "great day"},
		{"contraction kept", "It isn't clean.", "it isn't clean"},
		{"curly apostrophe normalized", "It isn’t clean", "it isn't clean"},
		{"quote marks dropped", "'quiet' streets", "quiet streets"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Preprocess(tt.input))
		})
	}
}

func TestLexicon_Classify(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		label string
		score float64
	}{
		{"negative", "Traffic is horrible!", domain.LabelNegative, 1},
		{"positive", "The city environment is amazing today.", domain.LabelPositive, 1},
		{"unreliable", "Public transport is really unreliable.", domain.LabelNegative, 1},
		{"negated positive", "The bus is not reliable", domain.LabelNegative, 1},
		{"negated negative", "Streets are never dirty", domain.LabelPositive, 1},
		{"mixed", "Great park but awful traffic and loud horns", domain.LabelNegative, 0.5 + 0.5*1.0/3.0},
		{"tie", "good and bad", domain.LabelPositive, 0.5},
		{"no hits", "the tram arrived", domain.LabelPositive, 0.5},
	}

	l := NewLexicon()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := l.Classify(tt.text)
			assert.Equal(t, tt.label, s.Label)
			assert.InDelta(t, tt.score, s.Score, 1e-9)
		})
	}
}

func TestLexicon_ScorePreservesOrder(t *testing.T) {
	texts := []string{
		"lovely morning",
		"awful smog",
		"nothing to report",
		"terrible noise",
	}

	got, err := NewLexicon().Score(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, got, len(texts))

	for i, text := range texts {
		assert.Equal(t, NewLexicon().Classify(text), got[i], text)
	}
	assert.Equal(t, domain.LabelPositive, got[0].Label)
	assert.Equal(t, domain.LabelNegative, got[1].Label)
	assert.Equal(t, domain.LabelNegative, got[3].Label)
}

func TestLexicon_ScoreEmpty(t *testing.T) {
	got, err := NewLexicon().Score(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLexicon_ScoreCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewLexicon().Score(ctx, SampleTexts)
	require.ErrorIs(t, err, context.Canceled)
}

func TestLexicon_ScoresInRange(t *testing.T) {
	got, err := NewLexicon().Score(context.Background(), SampleTexts)
	require.NoError(t, err)
	for _, s := range got {
		assert.Contains(t, []string{domain.LabelPositive, domain.LabelNegative}, s.Label)
		assert.GreaterOrEqual(t, s.Score, 0.0)
		assert.LessOrEqual(t, s.Score, 1.0)
	}
}

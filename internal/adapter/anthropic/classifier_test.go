package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/urban-pulse-etl/internal/domain"
)

func messageResponse(text string) map[string]any {
	return map[string]any{
		"id":            "msg_test",
		"type":          "message",
		"role":          "assistant",
		"model":         "claude-haiku-4-5",
		"stop_reason":   "end_turn",
		"stop_sequence": nil,
		"content":       []map[string]any{{"type": "text", "text": text}},
		"usage":         map[string]any{"input_tokens": 12, "output_tokens": 9},
	}
}

func testClassifier(baseURL string) *Classifier {
	return NewClassifier(Options{APIKey: "test-key", Model: "claude-haiku-4-5", BaseURL: baseURL},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestClassifier_Score(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))

		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Content []struct {
					Text string `json:"text"`
				} `json:"content"`
			} `json:"messages"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "claude-haiku-4-5", req.Model)

		text := req.Messages[0].Content[0].Text
		reply := `{"label":"POSITIVE","score":0.91}`
		if text == "traffic is horrible" {
			reply = "```json\n{\"label\": \"negative\", \"score\": 0.97}\n```"
		}
		w.Header().Set("Content-Type", "application/json")
		assert.NoError(t, json.NewEncoder(w).Encode(messageResponse(reply)))
	}))
	defer srv.Close()

	got, err := testClassifier(srv.URL).Score(context.Background(), []string{
		"Traffic is horrible!",
		"The city environment is amazing today.",
	})
	require.NoError(t, err)

	assert.Equal(t, []domain.Sentiment{
		{Label: domain.LabelNegative, Score: 0.97},
		{Label: domain.LabelPositive, Score: 0.91},
	}, got)
	assert.Equal(t, int32(2), calls.Load(), "one request per text")
}

func TestClassifier_APIErrorIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = fmt.Fprint(w, `{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`)
	}))
	defer srv.Close()

	_, err := testClassifier(srv.URL).Score(context.Background(), []string{"Traffic is horrible!"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "classify text 0")
}

func TestClassifier_BadVerdict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(messageResponse("I think it is fine."))
	}))
	defer srv.Close()

	_, err := testClassifier(srv.URL).Score(context.Background(), []string{"meh"})
	require.ErrorIs(t, err, ErrBadVerdict)
}

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		name    string
		reply   string
		want    domain.Sentiment
		wantErr bool
	}{
		{"plain", `{"label":"NEGATIVE","score":0.8}`, domain.Sentiment{Label: domain.LabelNegative, Score: 0.8}, false},
		{"prose around", `Sure: {"label":"positive","score":1} done`, domain.Sentiment{Label: domain.LabelPositive, Score: 1}, false},
		{"neutral label", `{"label":"NEUTRAL","score":0.5}`, domain.Sentiment{}, true},
		{"score too high", `{"label":"POSITIVE","score":1.5}`, domain.Sentiment{}, true},
		{"score missing", `{"label":"POSITIVE"}`, domain.Sentiment{}, true},
		{"no object", `POSITIVE`, domain.Sentiment{}, true},
		{"broken json", `{"label":}`, domain.Sentiment{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseVerdict(tt.reply)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrBadVerdict)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

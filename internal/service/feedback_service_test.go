package service

import (
	"caseprep_backend/internal/config"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var englishSentinel = SentinelFor("en")

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		sentinel   Sentinel
		wantText   string
		wantPassed bool
	}{
		{
			name:       "pass line on its own",
			raw:        "Good structure, well done.\nCRITERIA MET: Yes",
			sentinel:   englishSentinel,
			wantText:   "Good structure, well done.",
			wantPassed: true,
		},
		{
			name:       "fail line on its own",
			raw:        "CRITERIA MET: No\n\nYou missed the cost side.",
			sentinel:   englishSentinel,
			wantText:   "You missed the cost side.",
			wantPassed: false,
		},
		{
			name:       "sentinel inline keeps the rest of the line",
			raw:        "Great answer. CRITERIA MET: Yes\nLet's move on.",
			sentinel:   englishSentinel,
			wantText:   "Great answer. \nLet's move on.",
			wantPassed: true,
		},
		{
			name:       "swedish pass",
			raw:        "Bra jobbat!\nKRITERIER UPPFYLLDA: Ja\n",
			sentinel:   SentinelFor("sv"),
			wantText:   "Bra jobbat!",
			wantPassed: true,
		},
		{
			name:       "neither sentinel is returned unmodified",
			raw:        "  I think you should consider churn.\n",
			sentinel:   englishSentinel,
			wantText:   "  I think you should consider churn.\n",
			wantPassed: false,
		},
		{
			name:       "sentinel of another language does not count",
			raw:        "Bra!\nKRITERIER UPPFYLLDA: Ja",
			sentinel:   englishSentinel,
			wantText:   "Bra!\nKRITERIER UPPFYLLDA: Ja",
			wantPassed: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, passed := ParseVerdict(tt.raw, tt.sentinel)
			assert.Equal(t, tt.wantText, text)
			assert.Equal(t, tt.wantPassed, passed)
			if passed {
				assert.NotContains(t, text, tt.sentinel.PassLine())
			}
		})
	}
}

func TestEvaluatePass(t *testing.T) {
	backend := &fakeBackend{reply: "Clear and structured.\nCRITERIA MET: Yes"}
	svc := NewFeedbackService(backend, time.Second, "fallback")

	eval := svc.Evaluate(context.Background(), &Prompt{Text: "prompt", Sentinel: englishSentinel})

	assert.True(t, eval.Passed)
	assert.False(t, eval.Fallback)
	assert.Equal(t, "Clear and structured.", eval.Feedback)
	assert.Equal(t, backend.reply, eval.Raw)
	assert.Equal(t, "fake", eval.Backend)
	assert.Equal(t, 1, backend.calls())
}

func TestEvaluateFail(t *testing.T) {
	backend := &fakeBackend{reply: "CRITERIA MET: No\nWhat about costs?"}
	svc := NewFeedbackService(backend, time.Second, "fallback")

	eval := svc.Evaluate(context.Background(), &Prompt{Text: "prompt", Sentinel: englishSentinel})

	assert.False(t, eval.Passed)
	assert.False(t, eval.Fallback)
	assert.Equal(t, "What about costs?", eval.Feedback)
}

func TestEvaluateFallsBackOnError(t *testing.T) {
	backend := &fakeBackend{err: errors.New("connection refused")}
	svc := NewFeedbackService(backend, time.Second, "Try again later.")

	eval := svc.Evaluate(context.Background(), &Prompt{Text: "prompt", Sentinel: englishSentinel})

	assert.False(t, eval.Passed)
	assert.True(t, eval.Fallback)
	assert.Equal(t, "Try again later.", eval.Feedback)
	assert.Equal(t, 1, backend.calls(), "no automatic retry")
}

func TestEvaluateFallsBackOnEmptyReply(t *testing.T) {
	svc := NewFeedbackService(&fakeBackend{reply: "  \n"}, time.Second, "Try again later.")

	eval := svc.Evaluate(context.Background(), &Prompt{Text: "prompt", Sentinel: englishSentinel})

	assert.True(t, eval.Fallback)
	assert.False(t, eval.Passed)
}

type slowBackend struct{}

func (slowBackend) Name() string { return "slow" }

func (slowBackend) Complete(ctx context.Context, prompt string) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(5 * time.Second):
		return "CRITERIA MET: Yes", nil
	}
}

func TestEvaluateTimesOut(t *testing.T) {
	svc := NewFeedbackService(slowBackend{}, 50*time.Millisecond, "Try again later.")

	start := time.Now()
	eval := svc.Evaluate(context.Background(), &Prompt{Text: "prompt", Sentinel: englishSentinel})

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.True(t, eval.Fallback)
	assert.False(t, eval.Passed)
	assert.Equal(t, "Try again later.", eval.Feedback)
}

func TestOpenAIBackend(t *testing.T) {
	var got ChatCompletionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Nice.\nCRITERIA MET: Yes"}}]}`))
	}))
	defer server.Close()

	backend := NewCompletionBackend(&config.AIConfig{
		OpenAI: config.OpenAIConfig{
			BaseURL:     server.URL + "/",
			APIKey:      "sk-test",
			Model:       "gpt-4",
			Temperature: 0.7,
			MaxTokens:   1000,
		},
	}, server.Client())
	require.Equal(t, "openai", backend.Name())

	reply, err := backend.Complete(context.Background(), "the prompt")
	require.NoError(t, err)
	assert.Equal(t, "Nice.\nCRITERIA MET: Yes", reply)

	assert.Equal(t, "gpt-4", got.Model)
	assert.Equal(t, 1000, got.MaxTokens)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user", got.Messages[0].Role)
	assert.Equal(t, "the prompt", got.Messages[0].Content)
}

func TestOpenAIBackendErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limited"}}`))
	}))
	defer server.Close()

	backend := NewOpenAIBackend(config.OpenAIConfig{BaseURL: server.URL}, server.Client())
	_, err := backend.Complete(context.Background(), "prompt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")

	svc := NewFeedbackService(backend, time.Second, "fallback")
	eval := svc.Evaluate(context.Background(), &Prompt{Text: "prompt", Sentinel: englishSentinel})
	assert.True(t, eval.Fallback)
	assert.Equal(t, "openai", eval.Backend)
}

func TestOllamaBackend(t *testing.T) {
	var got map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"response":"Bra!\nKRITERIER UPPFYLLDA: Ja","done":true}`))
	}))
	defer server.Close()

	backend := NewCompletionBackend(&config.AIConfig{
		UseLocalModel: true,
		Local: config.LocalAIConfig{
			BaseURL:     server.URL,
			Model:       "phi3:latest",
			Temperature: 0.7,
			NumPredict:  1000,
		},
	}, server.Client())
	require.Equal(t, "ollama", backend.Name())

	svc := NewFeedbackService(backend, time.Second, "fallback")
	eval := svc.Evaluate(context.Background(), &Prompt{Text: "the prompt", Sentinel: SentinelFor("sv")})

	assert.True(t, eval.Passed)
	assert.Equal(t, "Bra!", eval.Feedback)
	assert.Equal(t, "phi3:latest", got["model"])
	assert.Equal(t, "the prompt", got["prompt"])
	assert.Equal(t, false, got["stream"])
	options, ok := got["options"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(1000), options["num_predict"])
}

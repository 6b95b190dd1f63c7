package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDeepSeek(url string) *DeepSeekSynthesizer {
	return &DeepSeekSynthesizer{
		apiKey: "test-key",
		apiURL: url,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

func chatCompletionBody(t *testing.T, content string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"choices": []map[string]interface{}{
			{"message": map[string]string{"content": content}},
		},
	})
	require.NoError(t, err)
	return body
}

func TestDeepSeekSynthesize(t *testing.T) {
	recipeJSON, err := json.Marshal(validCandidate("Miso Ramen", SlotDinner))
	require.NoError(t, err)

	var captured chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_, _ = w.Write(chatCompletionBody(t, string(recipeJSON)))
	}))
	defer srv.Close()

	synth := newTestDeepSeek(srv.URL)
	got, err := synth.Synthesize(context.Background(), &SynthesisRequest{
		MealSlot:    SlotDinner,
		Temperature: 0.85,
		Strictness:  2,
	})
	require.NoError(t, err)
	assert.Equal(t, "Miso Ramen", got.Name)
	assert.Equal(t, SlotDinner, got.MealSlot)

	assert.Equal(t, "deepseek-chat", captured.Model)
	assert.InDelta(t, 0.85, captured.Temperature, 1e-9)
	assert.Equal(t, "json_object", captured.ResponseFormat["type"])
	require.Len(t, captured.Messages, 2)
	assert.Equal(t, "system", captured.Messages[0].Role)
	assert.Contains(t, captured.Messages[1].Content, "dinner recipe")
}

func TestDeepSeekAuthFailureIsFatal(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusPaymentRequired, http.StatusForbidden} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "denied", status)
		}))

		synth := newTestDeepSeek(srv.URL)
		_, err := synth.Synthesize(context.Background(), &SynthesisRequest{MealSlot: SlotLunch})
		assert.True(t, IsFatalSynthesisError(err), "status %d must be fatal", status)

		srv.Close()
	}
}

func TestDeepSeekServerErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	synth := newTestDeepSeek(srv.URL)
	_, err := synth.Synthesize(context.Background(), &SynthesisRequest{MealSlot: SlotLunch})
	require.Error(t, err)
	assert.False(t, IsFatalSynthesisError(err))
}

func TestDeepSeekMalformedContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(chatCompletionBody(t, "this is not JSON"))
	}))
	defer srv.Close()

	synth := newTestDeepSeek(srv.URL)
	_, err := synth.Synthesize(context.Background(), &SynthesisRequest{MealSlot: SlotLunch})
	require.Error(t, err)
	assert.False(t, IsFatalSynthesisError(err), "a garbled reply is retryable")
}

func TestDeepSeekEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices": []}`))
	}))
	defer srv.Close()

	synth := newTestDeepSeek(srv.URL)
	_, err := synth.Synthesize(context.Background(), &SynthesisRequest{MealSlot: SlotLunch})
	assert.Error(t, err)
}

func TestReadKeyFromEnv(t *testing.T) {
	t.Setenv("TEST_SYNTH_KEY", "direct-key")
	key, err := readKeyFromEnv("TEST_SYNTH_KEY")
	require.NoError(t, err)
	assert.Equal(t, "direct-key", key)

	t.Setenv("TEST_SYNTH_KEY", "")
	keyFile := filepath.Join(t.TempDir(), "key")
	require.NoError(t, os.WriteFile(keyFile, []byte("  file-key\n"), 0o600))
	t.Setenv("TEST_SYNTH_KEY_FILE", keyFile)

	key, err = readKeyFromEnv("TEST_SYNTH_KEY")
	require.NoError(t, err)
	assert.Equal(t, "file-key", key, "file keys are trimmed")

	t.Setenv("TEST_SYNTH_KEY_FILE", "")
	_, err = readKeyFromEnv("TEST_SYNTH_KEY")
	assert.Error(t, err)
}

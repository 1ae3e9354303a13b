package tokenizer

import (
	"testing"

	"github.com/sluice-dev/sluice/pkg/api"
)

func TestResolveEncoding(t *testing.T) {
	tests := []struct {
		model string
		want  string
	}{
		{"gpt-4", EncodingCL100kBase},
		{"gpt-4-turbo", EncodingCL100kBase},
		{"gpt-4o", EncodingO200kBase},
		{"gpt-4o-mini", EncodingO200kBase},
		{"gpt-3.5-turbo", EncodingCL100kBase},
		{"o1-preview", EncodingO200kBase},
		{"chatgpt-4o-latest", EncodingO200kBase},
		{"text-embedding-3-small", EncodingCL100kBase},
		{"llama3:8b", EncodingCL100kBase},
		{"", EncodingCL100kBase},
		{"GPT-4O", EncodingO200kBase},
	}

	for _, tc := range tests {
		t.Run(tc.model, func(t *testing.T) {
			if got := resolveEncoding(tc.model); got != tc.want {
				t.Errorf("resolveEncoding(%q) = %q, want %q", tc.model, got, tc.want)
			}
		})
	}
}

func TestCountText(t *testing.T) {
	est := New()

	tests := []struct {
		name     string
		text     string
		model    string
		minCount int // exact counts depend on the vocabulary
		maxCount int
	}{
		{"simple text", "Hello, world!", "gpt-4", 3, 5},
		{"empty text", "", "gpt-4", 0, 0},
		{"longer text", "The quick brown fox jumps over the lazy dog.", "gpt-4", 8, 12},
		{"unknown model defaults to cl100k", "Hello, world!", "llama3:8b", 3, 5},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			count, err := est.CountText(tc.text, tc.model)
			if err != nil {
				t.Fatalf("CountText() error: %v", err)
			}
			if count < tc.minCount || count > tc.maxCount {
				t.Errorf("CountText() = %d, want between %d and %d",
					count, tc.minCount, tc.maxCount)
			}
		})
	}
}

func TestCountMessagesIncludesOverhead(t *testing.T) {
	est := New()

	messages := []api.Message{
		{Role: "user", Content: "Hello"},
	}
	withMsg, err := est.CountMessages(messages, "gpt-4")
	if err != nil {
		t.Fatalf("CountMessages() error: %v", err)
	}

	content, err := est.CountText("Hello", "gpt-4")
	if err != nil {
		t.Fatalf("CountText() error: %v", err)
	}
	role, err := est.CountText("user", "gpt-4")
	if err != nil {
		t.Fatalf("CountText() error: %v", err)
	}

	want := tokensPerReply + tokensPerMessage + role + content
	if withMsg != want {
		t.Errorf("CountMessages() = %d, want %d", withMsg, want)
	}
}

func TestEstimateUsage(t *testing.T) {
	est := New()

	messages := []api.Message{
		{Role: "system", Content: "You are a helpful assistant."},
		{Role: "user", Content: "Say hello."},
	}
	usage, err := est.EstimateUsage(messages, "Hello there!", "gpt-4o")
	if err != nil {
		t.Fatalf("EstimateUsage() error: %v", err)
	}

	if usage.PromptTokens <= 0 {
		t.Errorf("prompt tokens = %d, want > 0", usage.PromptTokens)
	}
	if usage.CompletionTokens <= 0 {
		t.Errorf("completion tokens = %d, want > 0", usage.CompletionTokens)
	}
	if usage.TotalTokens != usage.PromptTokens+usage.CompletionTokens {
		t.Errorf("total = %d, want %d", usage.TotalTokens,
			usage.PromptTokens+usage.CompletionTokens)
	}
}

func TestEncodingCache(t *testing.T) {
	est := New()

	if _, err := est.CountText("hi", "gpt-4"); err != nil {
		t.Fatalf("CountText() error: %v", err)
	}
	if _, err := est.CountText("hi again", "gpt-3.5-turbo"); err != nil {
		t.Fatalf("CountText() error: %v", err)
	}
	if len(est.encodings) != 1 {
		t.Errorf("cached encodings = %d, want 1 (both models share cl100k_base)", len(est.encodings))
	}
}

package engine

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/sluice-dev/sluice/pkg/api"
)

func floatPtr(f float64) *float64 { return &f }
func intPtr(i int) *int           { return &i }

func TestTranslateRequestStandardFields(t *testing.T) {
	req := &api.ChatCompletionRequest{
		Model: "test-model",
		Messages: []api.Message{
			{Role: "system", Content: "be brief"},
			{Role: "user", Content: "hello"},
		},
		Stream:           true,
		Temperature:      floatPtr(0.7),
		TopP:             floatPtr(0.9),
		MaxTokens:        intPtr(128),
		Stop:             []string{"\n\n"},
		FrequencyPenalty: floatPtr(0.1),
		PresencePenalty:  floatPtr(0.2),
		User:             "user-42",
	}

	pr := translateRequest(req)

	if pr.Model != "test-model" {
		t.Errorf("model = %q", pr.Model)
	}
	if !reflect.DeepEqual(pr.Messages, req.Messages) {
		t.Errorf("messages = %+v", pr.Messages)
	}
	if !pr.Stream {
		t.Error("stream flag not forwarded")
	}
	if *pr.Temperature != 0.7 || *pr.TopP != 0.9 || *pr.MaxTokens != 128 {
		t.Errorf("sampling params = %v %v %v", *pr.Temperature, *pr.TopP, *pr.MaxTokens)
	}
	if *pr.FrequencyPenalty != 0.1 || *pr.PresencePenalty != 0.2 {
		t.Errorf("penalties = %v %v", *pr.FrequencyPenalty, *pr.PresencePenalty)
	}
	if pr.User != "user-42" {
		t.Errorf("user = %q", pr.User)
	}
	if pr.IncludeUsage {
		t.Error("IncludeUsage set without stream_options")
	}
}

func TestTranslateRequestIncludeUsage(t *testing.T) {
	req := &api.ChatCompletionRequest{
		Model:         "m",
		Stream:        true,
		StreamOptions: &api.StreamOptions{IncludeUsage: true},
	}
	if pr := translateRequest(req); !pr.IncludeUsage {
		t.Error("IncludeUsage not forwarded from stream_options")
	}
}

func TestTranslateRequestExtraPassthrough(t *testing.T) {
	req := &api.ChatCompletionRequest{
		Model: "m",
		Extra: map[string]json.RawMessage{
			"seed":       json.RawMessage(`42`),
			"logit_bias": json.RawMessage(`{"50256":-100}`),
		},
	}
	pr := translateRequest(req)
	if !reflect.DeepEqual(pr.Extra, req.Extra) {
		t.Errorf("extra = %v, want %v", pr.Extra, req.Extra)
	}
}

package ollama

import (
	"reflect"
	"testing"

	"github.com/sluice-dev/sluice/pkg/api"
	"github.com/sluice-dev/sluice/pkg/stream"
)

func objFrame(payload string) stream.Frame {
	return stream.Frame{Data: payload, HasData: true, Raw: payload}
}

func TestParseFrameDelta(t *testing.T) {
	events := ParseFrame(objFrame(`{"message":{"role":"assistant","content":"Hi"},"done":false}`))

	want := []stream.Event{{Type: stream.EventDelta, Role: "assistant", Content: "Hi"}}
	if !reflect.DeepEqual(events, want) {
		t.Errorf("events = %+v, want %+v", events, want)
	}
}

func TestParseFrameFinal(t *testing.T) {
	events := ParseFrame(objFrame(`{"message":{"role":"assistant","content":""},"done":true,"done_reason":"stop","prompt_eval_count":4,"eval_count":9}`))

	wantTypes := []stream.EventType{stream.EventUsage, stream.EventDone}
	if len(events) != len(wantTypes) {
		t.Fatalf("got %d events, want %d: %+v", len(events), len(wantTypes), events)
	}
	for i, wt := range wantTypes {
		if events[i].Type != wt {
			t.Errorf("event[%d].Type = %v, want %v", i, events[i].Type, wt)
		}
	}
	if got := events[0].Usage; !reflect.DeepEqual(got, &api.Usage{PromptTokens: 4, CompletionTokens: 9, TotalTokens: 13}) {
		t.Errorf("usage = %+v", got)
	}
	if events[1].FinishReason != "stop" {
		t.Errorf("finish reason = %q", events[1].FinishReason)
	}
}

func TestParseFrameFinalWithoutCounts(t *testing.T) {
	events := ParseFrame(objFrame(`{"message":{"content":""},"done":true}`))
	if len(events) != 1 || events[0].Type != stream.EventDone {
		t.Fatalf("events = %+v, want single Done", events)
	}
	if events[0].FinishReason != "stop" {
		t.Errorf("finish reason = %q, want default stop", events[0].FinishReason)
	}
}

func TestParseFrameFinalWithTrailingContent(t *testing.T) {
	events := ParseFrame(objFrame(`{"message":{"role":"assistant","content":"!"},"done":true,"done_reason":"stop"}`))

	if len(events) != 2 {
		t.Fatalf("got %d events, want delta then done: %+v", len(events), events)
	}
	if events[0].Type != stream.EventDelta || events[0].Content != "!" {
		t.Errorf("event[0] = %+v", events[0])
	}
	if events[1].Type != stream.EventDone {
		t.Errorf("event[1] = %+v", events[1])
	}
}

func TestParseFrameProviderError(t *testing.T) {
	events := ParseFrame(objFrame(`{"error":"model \"missing\" not found"}`))
	if len(events) != 1 || events[0].Type != stream.EventError {
		t.Fatalf("events = %+v, want single Error", events)
	}
	if events[0].Err.Kind != stream.KindProviderReported {
		t.Errorf("kind = %s, want %s", events[0].Err.Kind, stream.KindProviderReported)
	}
	if events[0].Err.Retryable {
		t.Error("provider-reported errors must not be retryable")
	}
}

func TestParseFrameMalformedPayload(t *testing.T) {
	events := ParseFrame(objFrame(`{"message":1}`))
	if len(events) != 1 || events[0].Type != stream.EventError {
		t.Fatalf("events = %+v, want single terminal Error", events)
	}
	if events[0].Err.Kind != stream.KindMalformedPayload {
		t.Errorf("kind = %s, want %s", events[0].Err.Kind, stream.KindMalformedPayload)
	}
}

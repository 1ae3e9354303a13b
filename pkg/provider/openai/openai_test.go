package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sluice-dev/sluice/pkg/api"
	"github.com/sluice-dev/sluice/pkg/provider"
	"github.com/sluice-dev/sluice/pkg/stream"
)

func testTimeouts() provider.Timeouts {
	return provider.Timeouts{
		Connect:   2 * time.Second,
		FirstByte: 2 * time.Second,
		Stall:     2 * time.Second,
		Request:   5 * time.Second,
	}
}

func collect(t *testing.T, ch <-chan stream.Event) []stream.Event {
	t.Helper()
	var events []stream.Event
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for stream events")
		}
	}
}

// writeInPieces sends body over the wire in the given fragments, flushing
// after each, so the reader sees arbitrary chunk boundaries.
func writeInPieces(w http.ResponseWriter, pieces ...string) {
	flusher := w.(http.Flusher)
	for _, p := range pieces {
		_, _ = w.Write([]byte(p))
		flusher.Flush()
	}
}

func TestStreamDeltaThenDone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q", got)
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		if !req.Stream {
			t.Error("expected stream:true in backend request")
		}

		w.Header().Set("Content-Type", "text/event-stream")
		writeInPieces(w,
			"data: {\"choices\":[{\"delta\":{\"content\":\"Hi\"}}]}\n\n",
			"data: [DONE]\n\n",
		)
	}))
	defer srv.Close()

	p, err := New("primary", Config{BaseURL: srv.URL, APIKey: "sk-test", Timeouts: testTimeouts()})
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	ch, err := p.Stream(context.Background(), &provider.Request{
		Model:    "gpt-4o",
		Messages: []api.Message{{Role: "user", Content: "hello"}},
	})
	if err != nil {
		t.Fatal(err)
	}

	events := collect(t, ch)
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2: %+v", len(events), events)
	}
	if events[0].Type != stream.EventDelta || events[0].Content != "Hi" {
		t.Errorf("event[0] = %+v, want delta \"Hi\"", events[0])
	}
	if events[1].Type != stream.EventDone {
		t.Errorf("event[1] = %+v, want done", events[1])
	}
}

func TestStreamTrailingUsageChunk(t *testing.T) {
	// stream_options.include_usage wire order: finish chunk, separate
	// usage-only chunk, then the sentinel. Usage must reach the channel
	// before the terminal Done.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		writeInPieces(w,
			"data: {\"choices\":[{\"delta\":{\"content\":\"Hi\"}}]}\n\n",
			"data: {\"choices\":[{\"delta\":{},\"finish_reason\":\"stop\"}]}\n\n",
			"data: {\"choices\":[],\"usage\":{\"prompt_tokens\":5,\"completion_tokens\":7,\"total_tokens\":12}}\n\n",
			"data: [DONE]\n\n",
		)
	}))
	defer srv.Close()

	p, err := New("primary", Config{BaseURL: srv.URL, Timeouts: testTimeouts()})
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	ch, err := p.Stream(context.Background(), &provider.Request{Model: "gpt-4o", IncludeUsage: true})
	if err != nil {
		t.Fatal(err)
	}

	events := collect(t, ch)
	wantTypes := []stream.EventType{stream.EventDelta, stream.EventUsage, stream.EventDone}
	if len(events) != len(wantTypes) {
		t.Fatalf("got %d events, want %d: %+v", len(events), len(wantTypes), events)
	}
	for i, wt := range wantTypes {
		if events[i].Type != wt {
			t.Errorf("event[%d].Type = %v, want %v", i, events[i].Type, wt)
		}
	}
	if events[1].Usage.TotalTokens != 12 {
		t.Errorf("usage = %+v, want total 12", events[1].Usage)
	}
	if events[2].FinishReason != "stop" {
		t.Errorf("finish reason = %q, want stop", events[2].FinishReason)
	}
}

// The backend may split the byte stream anywhere, including inside a
// multi-byte character and inside the [DONE] sentinel.
func TestStreamAdversarialChunking(t *testing.T) {
	frame := "data: {\"choices\":[{\"delta\":{\"content\":\"héllo\"}}]}\n\n"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		// Split mid-rune (é is two bytes) and mid-sentinel.
		cut := len("data: {\"choices\":[{\"delta\":{\"content\":\"h\xc3")
		writeInPieces(w, frame[:cut], frame[cut:], "data: [DO", "NE]\n\n")
	}))
	defer srv.Close()

	p, err := New("primary", Config{BaseURL: srv.URL, Timeouts: testTimeouts()})
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	ch, err := p.Stream(context.Background(), &provider.Request{Model: "gpt-4o"})
	if err != nil {
		t.Fatal(err)
	}

	events := collect(t, ch)
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2: %+v", len(events), events)
	}
	if events[0].Content != "héllo" {
		t.Errorf("content = %q, want %q", events[0].Content, "héllo")
	}
	if events[1].Type != stream.EventDone {
		t.Errorf("event[1] = %+v, want done", events[1])
	}
}

func TestStreamEOFWithoutDoneIsTruncation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		writeInPieces(w, "data: {\"choices\":[{\"delta\":{\"content\":\"partial\"}}]}\n\n")
	}))
	defer srv.Close()

	p, err := New("primary", Config{BaseURL: srv.URL, Timeouts: testTimeouts()})
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	ch, err := p.Stream(context.Background(), &provider.Request{Model: "gpt-4o"})
	if err != nil {
		t.Fatal(err)
	}

	events := collect(t, ch)
	if len(events) == 0 {
		t.Fatal("no events")
	}
	last := events[len(events)-1]
	if last.Type != stream.EventError {
		t.Fatalf("last event = %+v, want error", last)
	}
	if last.Err.Kind != stream.KindBackendNetwork || !last.Err.Retryable {
		t.Errorf("err = %+v, want retryable backend_network_error", last.Err)
	}
}

func TestStreamHTTPErrorBeforeBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"message":"backend down"}}`))
	}))
	defer srv.Close()

	p, err := New("primary", Config{BaseURL: srv.URL, Timeouts: testTimeouts()})
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	_, err = p.Stream(context.Background(), &provider.Request{Model: "gpt-4o"})
	if err == nil {
		t.Fatal("expected error for 503")
	}
	se, ok := stream.AsStreamError(err)
	if !ok {
		t.Fatalf("error %v is not a StreamError", err)
	}
	if se.Kind != stream.KindBackendHTTP {
		t.Errorf("kind = %s, want %s", se.Kind, stream.KindBackendHTTP)
	}
	if !se.Retryable {
		t.Error("503 should be retryable")
	}
}

func TestComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		if req.Stream {
			t.Error("Complete must send stream:false")
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model": "gpt-4o",
			"choices": []map[string]any{{
				"message":       map[string]string{"role": "assistant", "content": "Hello there"},
				"finish_reason": "stop",
			}},
			"usage": map[string]int{"prompt_tokens": 4, "completion_tokens": 3, "total_tokens": 7},
		})
	}))
	defer srv.Close()

	p, err := New("primary", Config{BaseURL: srv.URL, Timeouts: testTimeouts()})
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	resp, err := p.Complete(context.Background(), &provider.Request{
		Model:    "gpt-4o",
		Messages: []api.Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "Hello there" || resp.FinishReason != "stop" {
		t.Errorf("resp = %+v", resp)
	}
	if resp.Usage == nil || resp.Usage.TotalTokens != 7 {
		t.Errorf("usage = %+v", resp.Usage)
	}
}

func TestTranslateRequestExtraFields(t *testing.T) {
	req := &provider.Request{
		Model:  "gpt-4o",
		Stream: true,
		Extra: map[string]json.RawMessage{
			"logit_bias": json.RawMessage(`{"50256":-100}`),
		},
		IncludeUsage: true,
	}

	data, err := json.Marshal(translateRequest(req))
	if err != nil {
		t.Fatal(err)
	}

	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if string(decoded["logit_bias"]) != `{"50256":-100}` {
		t.Errorf("logit_bias = %s", decoded["logit_bias"])
	}
	if string(decoded["stream_options"]) != `{"include_usage":true}` {
		t.Errorf("stream_options = %s", decoded["stream_options"])
	}
}

package provider

import (
	"context"
	"reflect"
	"testing"

	"github.com/sluice-dev/sluice/pkg/api"
	"github.com/sluice-dev/sluice/pkg/stream"
)

// fakeProvider is a minimal Provider for routing tests.
type fakeProvider struct {
	name   string
	closed bool
}

func (f *fakeProvider) Name() string               { return f.name }
func (f *fakeProvider) Capabilities() Capabilities { return Capabilities{Streaming: true} }
func (f *fakeProvider) Complete(ctx context.Context, req *Request) (*Response, error) {
	return &Response{Content: "ok"}, nil
}
func (f *fakeProvider) Stream(ctx context.Context, req *Request) (<-chan stream.Event, error) {
	ch := make(chan stream.Event)
	close(ch)
	return ch, nil
}
func (f *fakeProvider) Embeddings(ctx context.Context, req *api.EmbeddingsRequest) (*api.EmbeddingsResponse, error) {
	return nil, nil
}
func (f *fakeProvider) ListModels(ctx context.Context) ([]api.Model, error) { return nil, nil }
func (f *fakeProvider) Close() error {
	f.closed = true
	return nil
}

func TestRegistryResolve(t *testing.T) {
	primary := &fakeProvider{name: "primary"}
	local := &fakeProvider{name: "local"}

	reg, err := NewRegistry(
		map[string]Provider{"primary": primary, "local": local},
		map[string]string{"gpt-4o": "primary", "llama3": "local"},
		"primary",
	)
	if err != nil {
		t.Fatal(err)
	}

	p, name, err := reg.Resolve("llama3")
	if err != nil {
		t.Fatal(err)
	}
	if p != local || name != "local" {
		t.Errorf("resolved %q, want local", name)
	}

	// Unrouted model falls back to the default backend.
	p, name, err = reg.Resolve("unknown-model")
	if err != nil {
		t.Fatal(err)
	}
	if p != primary || name != "primary" {
		t.Errorf("resolved %q, want primary", name)
	}
}

func TestRegistryNoDefault(t *testing.T) {
	reg, err := NewRegistry(
		map[string]Provider{"local": &fakeProvider{name: "local"}},
		map[string]string{"llama3": "local"},
		"",
	)
	if err != nil {
		t.Fatal(err)
	}

	if _, _, err := reg.Resolve("unknown-model"); err == nil {
		t.Error("expected error resolving unrouted model without a default")
	}
}

func TestRegistryValidation(t *testing.T) {
	backends := map[string]Provider{"local": &fakeProvider{name: "local"}}

	if _, err := NewRegistry(nil, nil, ""); err == nil {
		t.Error("expected error for empty backend set")
	}
	if _, err := NewRegistry(backends, nil, "missing"); err == nil {
		t.Error("expected error for unknown default backend")
	}
	if _, err := NewRegistry(backends, map[string]string{"m": "missing"}, ""); err == nil {
		t.Error("expected error for route to unknown backend")
	}
}

func TestRegistryModelsSorted(t *testing.T) {
	reg, err := NewRegistry(
		map[string]Provider{"local": &fakeProvider{name: "local"}},
		map[string]string{"zeta": "local", "alpha": "local", "mid": "local"},
		"",
	)
	if err != nil {
		t.Fatal(err)
	}

	want := []string{"alpha", "mid", "zeta"}
	if got := reg.Models(); !reflect.DeepEqual(got, want) {
		t.Errorf("Models() = %v, want %v", got, want)
	}
}

func TestRegistryClose(t *testing.T) {
	primary := &fakeProvider{name: "primary"}
	local := &fakeProvider{name: "local"}

	reg, err := NewRegistry(map[string]Provider{"primary": primary, "local": local}, nil, "primary")
	if err != nil {
		t.Fatal(err)
	}
	if err := reg.Close(); err != nil {
		t.Fatal(err)
	}
	if !primary.closed || !local.closed {
		t.Error("Close did not reach every backend")
	}
}

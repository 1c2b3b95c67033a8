package main

import (
	"context"
	"testing"
	"time"

	"github.com/tinytelemetry/cryptomonitor/internal/model"
)

type fakeSource struct {
	name    string
	frames  chan model.FeedEnvelope
	stopped chan struct{}
}

func newFakeSource(name string, buffer int) *fakeSource {
	return &fakeSource{
		name:    name,
		frames:  make(chan model.FeedEnvelope, buffer),
		stopped: make(chan struct{}),
	}
}

func (s *fakeSource) Frames() <-chan model.FeedEnvelope { return s.frames }
func (s *fakeSource) Name() string                      { return s.name }

func (s *fakeSource) Stop() {
	select {
	case <-s.stopped:
		return
	default:
		close(s.stopped)
		close(s.frames)
	}
}

func TestSourceMultiplexer_ForwardsFromAllSources(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := newFakeSource("a", 2)
	b := newFakeSource("b", 2)

	mux := NewSourceMultiplexer(ctx, []NamedFeedSource{a, b}, 16)
	mux.Start()
	defer mux.Stop()

	a.frames <- model.FeedEnvelope{Source: "a", Line: "alpha"}
	b.frames <- model.FeedEnvelope{Source: "b", Line: "beta"}
	a.Stop()
	b.Stop()

	got := map[string]bool{}
	timeout := time.After(2 * time.Second)
	for len(got) < 2 {
		select {
		case env, ok := <-mux.Frames():
			if !ok {
				t.Fatalf("multiplexer closed before receiving expected frames: %+v", got)
			}
			got[env.Line] = true
		case <-timeout:
			t.Fatalf("timed out waiting for multiplexed frames: %+v", got)
		}
	}

	if !got["alpha"] || !got["beta"] {
		t.Fatalf("missing expected frames: %+v", got)
	}
}

func TestSourceMultiplexer_TagsSourceAndSkipsEmpty(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := newFakeSource("binance", 4)
	mux := NewSourceMultiplexer(ctx, []NamedFeedSource{src}, 8)
	mux.Start()
	defer mux.Stop()

	src.frames <- model.FeedEnvelope{Line: ""}
	src.frames <- model.FeedEnvelope{Line: `{"e":"trade"}`}
	src.Stop()

	var got []model.FeedEnvelope
	for env := range mux.Frames() {
		got = append(got, env)
	}
	if len(got) != 1 {
		t.Fatalf("got %d frames, want 1: %+v", len(got), got)
	}
	if got[0].Source != "binance" {
		t.Fatalf("Source = %q, want %q", got[0].Source, "binance")
	}
}

func TestSourceMultiplexer_NoSourcesClosesOutput(t *testing.T) {
	t.Parallel()

	mux := NewSourceMultiplexer(context.Background(), nil, 0)
	mux.Start()

	if mux.HasSources() {
		t.Fatal("HasSources() = true with no sources")
	}
	select {
	case _, ok := <-mux.Frames():
		if ok {
			t.Fatal("expected closed frames channel")
		}
	case <-time.After(time.Second):
		t.Fatal("frames channel was not closed")
	}
	mux.Stop()
}

func TestSourceMultiplexer_StopInvokesSourceStop(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := newFakeSource("x", 1)
	mux := NewSourceMultiplexer(ctx, []NamedFeedSource{src}, 8)
	mux.Start()

	if names := mux.SourceNames(); len(names) != 1 || names[0] != "x" {
		t.Fatalf("SourceNames() = %v", names)
	}

	mux.Stop()

	select {
	case <-src.stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("expected source Stop() to be called")
	}
}

package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/insightlab/reportstream/internal/assembly"
)

func sseServer(t *testing.T, frames ...string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/data" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, f := range frames {
			_, _ = w.Write([]byte("data: " + f + "\n\n"))
		}
	}))
}

func TestStreamAppliesEvents(t *testing.T) {
	srv := sseServer(t,
		`{"type":"intent","intent":"chat"}`,
		`{"type":"content","content":"hello "}`,
		`{"type":"content","content":"world"}`,
		`{"type":"done"}`,
		`[DONE]`,
	)
	defer srv.Close()

	session := assembly.NewSession()
	asm := assembly.NewAssembler(session, assembly.Observers{}, nil)
	c := New(srv.URL, 5*time.Second, nil)

	if err := c.Stream(context.Background(), session.Begin("hi"), asm); err != nil {
		t.Fatalf("stream: %v", err)
	}
	d := asm.Draft()
	if d.Content != "hello world" {
		t.Errorf("content = %q", d.Content)
	}
	if d.State != assembly.StateCompleted {
		t.Errorf("state = %s", d.State)
	}
}

func TestStreamSkipsMalformedFrames(t *testing.T) {
	srv := sseServer(t,
		`{"type":"content","content":"ok"}`,
		`{not json`,
		`{"type":"done"}`,
	)
	defer srv.Close()

	session := assembly.NewSession()
	asm := assembly.NewAssembler(session, assembly.Observers{}, nil)
	c := New(srv.URL, 5*time.Second, nil)

	if err := c.Stream(context.Background(), session.Begin("hi"), asm); err != nil {
		t.Fatalf("stream: %v", err)
	}
	if asm.Draft().Content != "ok" {
		t.Errorf("content = %q", asm.Draft().Content)
	}
	if asm.Draft().State != assembly.StateCompleted {
		t.Errorf("bad frame must not stop the stream, state = %s", asm.Draft().State)
	}
}

func TestStreamUpstreamErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "engine unavailable", http.StatusBadGateway)
	}))
	defer srv.Close()

	session := assembly.NewSession()
	asm := assembly.NewAssembler(session, assembly.Observers{}, nil)
	c := New(srv.URL, 5*time.Second, nil)

	err := c.Stream(context.Background(), session.Begin("hi"), asm)
	if err == nil {
		t.Fatal("expected an error for a non-200 response")
	}
	if !strings.Contains(err.Error(), "502") {
		t.Errorf("error should carry the status: %v", err)
	}
}

func TestStreamContextCancellation(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("data: {\"type\":\"content\",\"content\":\"x\"}\n\n"))
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-release
	}))
	defer srv.Close()
	defer close(release)

	session := assembly.NewSession()
	asm := assembly.NewAssembler(session, assembly.Observers{}, nil)
	c := New(srv.URL, 0, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := c.Stream(ctx, session.Begin("hi"), asm)
	if err == nil {
		t.Fatal("expected a cancellation error")
	}
	if ctx.Err() == nil {
		t.Error("context should have expired")
	}
}

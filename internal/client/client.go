// Package client reads analysis streams from the upstream engine: it posts
// the request, pumps the SSE response through frame reassembly and event
// decoding, and applies each event to the caller's assembler.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/insightlab/reportstream/internal/assembly"
	"github.com/insightlab/reportstream/internal/event"
	"github.com/insightlab/reportstream/internal/metrics"
	"github.com/insightlab/reportstream/internal/sse"
)

const (
	// readBufferSize is the chunk size for upstream body reads. Frames
	// regularly straddle chunk boundaries; the reassembler owns that.
	readBufferSize = 32 * 1024

	// maxErrorBody bounds how much of a non-success response body gets
	// pulled into the error message.
	maxErrorBody = 4 * 1024

	streamPath = "/chat/data"
)

// Client talks to one upstream analysis engine.
type Client struct {
	baseURL string
	http    *http.Client
	log     *slog.Logger
}

// New builds a client. The timeout covers the whole exchange including the
// streamed body, so it should be generous; zero disables it.
func New(baseURL string, timeout time.Duration, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}
}

// Stream posts the request and applies every decoded event to the assembler
// until the stream ends. Malformed frames are logged and skipped; transport
// failures are returned and terminal. Cancel the context to abandon the
// stream; no cleanup beyond discarding the draft is needed.
func (c *Client) Stream(ctx context.Context, req *assembly.Request, asm *assembly.Assembler) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+streamPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		metrics.StreamsTotal.WithLabelValues(metrics.OutcomeErrored).Inc()
		return fmt.Errorf("post %s: %w", streamPath, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.StreamsTotal.WithLabelValues(metrics.OutcomeErrored).Inc()
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("upstream status %d: %s", resp.StatusCode, bytes.TrimSpace(detail))
	}

	metrics.ActiveStreams.Inc()
	defer metrics.ActiveStreams.Dec()

	c.log.Info("upstream stream opened",
		"session_id", req.SessionID, "resume", req.ToolCallID != "")

	err = c.pump(ctx, resp.Body, asm)
	switch {
	case err == nil:
		metrics.StreamsTotal.WithLabelValues(metrics.OutcomeCompleted).Inc()
	case ctx.Err() != nil:
		metrics.StreamsTotal.WithLabelValues(metrics.OutcomeCanceled).Inc()
	default:
		metrics.StreamsTotal.WithLabelValues(metrics.OutcomeErrored).Inc()
	}
	return err
}

// pump is the read loop: raw chunks in, assembled events out.
func (c *Client) pump(ctx context.Context, body io.Reader, asm *assembly.Assembler) error {
	reassembler := sse.NewReassembler()
	buf := make([]byte, readBufferSize)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := body.Read(buf)
		if n > 0 {
			c.applyFrames(asm, reassembler.Push(string(buf[:n])))
		}
		if err == io.EOF {
			c.applyFrames(asm, reassembler.Finish())
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read upstream: %w", err)
		}
		if reassembler.Done() {
			// Sentinel seen; drain nothing further.
			return nil
		}
	}
}

func (c *Client) applyFrames(asm *assembly.Assembler, frames []sse.Frame) {
	for _, frame := range frames {
		metrics.FramesTotal.Inc()
		ev, err := event.Decode(frame)
		if err != nil {
			// One bad frame never kills the stream.
			metrics.DecodeErrorsTotal.Inc()
			c.log.Warn("skipping undecodable frame", "error", err)
			continue
		}
		metrics.EventsTotal.WithLabelValues(ev.Type).Inc()
		asm.Apply(ev)
	}
}

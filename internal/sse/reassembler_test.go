package sse

import (
	"strings"
	"testing"
)

func collect(r *Reassembler, chunks []string) []Frame {
	var frames []Frame
	for _, c := range chunks {
		frames = append(frames, r.Push(c)...)
	}
	frames = append(frames, r.Finish()...)
	return frames
}

func TestPushSingleFrame(t *testing.T) {
	r := NewReassembler()

	frames := r.Push("data: {\"type\":\"status\"}\n\n")
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(frames))
	}
	if frames[0].Payload != `{"type":"status"}` {
		t.Errorf("unexpected payload: %q", frames[0].Payload)
	}
}

func TestPushPartialThenRest(t *testing.T) {
	r := NewReassembler()

	if frames := r.Push("data: {\"type\":\"con"); len(frames) != 0 {
		t.Fatalf("partial chunk must not produce frames, got %d", len(frames))
	}
	frames := r.Push("tent\"}\n\ndata: {\"type\":\"done\"}\n\n")
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
	if frames[0].Payload != `{"type":"content"}` {
		t.Errorf("reassembled payload wrong: %q", frames[0].Payload)
	}
}

func TestDoneSentinelProducesNoFrame(t *testing.T) {
	r := NewReassembler()

	frames := r.Push("data: {\"type\":\"done\"}\n\ndata: [DONE]\n\n")
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(frames))
	}
	if !r.Done() {
		t.Error("Done() should be true after [DONE] sentinel")
	}
}

func TestNonDataLinesIgnored(t *testing.T) {
	r := NewReassembler()

	frames := r.Push("event: keepalive\nretry: 3000\ndata: {\"type\":\"heartbeat\"}\n\n")
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(frames))
	}
	if frames[0].Payload != `{"type":"heartbeat"}` {
		t.Errorf("unexpected payload: %q", frames[0].Payload)
	}
}

func TestFinishFlushesResidue(t *testing.T) {
	r := NewReassembler()

	if frames := r.Push("data: {\"type\":\"error\"}"); len(frames) != 0 {
		t.Fatalf("unterminated frame should stay buffered, got %d frames", len(frames))
	}
	frames := r.Finish()
	if len(frames) != 1 {
		t.Fatalf("expected 1 residual frame, got %d", len(frames))
	}
	if frames[0].Payload != `{"type":"error"}` {
		t.Errorf("unexpected residual payload: %q", frames[0].Payload)
	}
}

// TestChunkBoundaryInvariance feeds the same serialized stream through the
// reassembler at several chunk sizes, down to one byte at a time, and checks
// the frame sequence is identical each way.
func TestChunkBoundaryInvariance(t *testing.T) {
	stream := "data: {\"type\":\"intent\",\"intent\":\"report\"}\n\n" +
		"event: progress\ndata: {\"type\":\"status\",\"message\":\"planning\"}\n\n" +
		"data: {\"type\":\"content\",\"content\":\"hello\\nworld\"}\n\n" +
		"data: [DONE]\n\n"

	whole := collect(NewReassembler(), []string{stream})

	for _, size := range []int{1, 2, 3, 7, 16, 64} {
		var chunks []string
		for i := 0; i < len(stream); i += size {
			end := i + size
			if end > len(stream) {
				end = len(stream)
			}
			chunks = append(chunks, stream[i:end])
		}

		got := collect(NewReassembler(), chunks)
		if len(got) != len(whole) {
			t.Fatalf("chunk size %d: got %d frames, want %d", size, len(got), len(whole))
		}
		for i := range got {
			if got[i].Payload != whole[i].Payload {
				t.Errorf("chunk size %d: frame %d = %q, want %q", size, i, got[i].Payload, whole[i].Payload)
			}
		}
	}
}

func TestLargePayloadAcrossManyChunks(t *testing.T) {
	payload := strings.Repeat("x", 10_000)
	stream := "data: " + payload + "\n\n"

	r := NewReassembler()
	var frames []Frame
	for i := 0; i < len(stream); i += 100 {
		end := i + 100
		if end > len(stream) {
			end = len(stream)
		}
		frames = append(frames, r.Push(stream[i:end])...)
	}

	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(frames))
	}
	if frames[0].Payload != payload {
		t.Error("payload corrupted across chunk boundaries")
	}
}

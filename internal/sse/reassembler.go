// Package sse reassembles a chunked server-sent event stream into discrete
// protocol frames. Network chunks arrive at arbitrary boundaries: a chunk may
// hold half a frame, several frames, or a frame plus the head of the next one.
// The reassembler buffers partial input so that no frame is ever parsed
// prematurely or dropped.
package sse

import (
	"strings"
)

const (
	// frameDelimiter separates complete frames in the wire stream.
	frameDelimiter = "\n\n"

	// dataPrefix marks a payload-carrying line inside a frame. Lines without
	// the prefix (comments, event names, keepalives) are ignored.
	dataPrefix = "data: "

	// doneSentinel is the end-of-stream payload. It produces no frame.
	doneSentinel = "[DONE]"
)

// Frame is one decoded server-sent unit before JSON parsing.
type Frame struct {
	// Payload is the frame text with the "data: " prefix stripped.
	Payload string
}

// Reassembler turns a stream of arbitrarily-sized text chunks into complete
// frames. It is synchronous and never blocks; all state is a single string
// buffer. Not safe for concurrent use, matching the one-reader stream model.
type Reassembler struct {
	buf  strings.Builder
	done bool
}

// NewReassembler creates an empty reassembler.
func NewReassembler() *Reassembler {
	return &Reassembler{}
}

// Push appends a chunk to the internal buffer and returns every frame that is
// now complete. The trailing remainder (possibly empty) stays buffered for the
// next call.
func (r *Reassembler) Push(chunk string) []Frame {
	if chunk == "" {
		return nil
	}

	r.buf.WriteString(chunk)
	data := r.buf.String()

	segments := strings.Split(data, frameDelimiter)
	if len(segments) == 1 {
		// No complete frame yet.
		return nil
	}

	// Every segment before the last is complete; the last becomes the new
	// buffer.
	r.buf.Reset()
	r.buf.WriteString(segments[len(segments)-1])

	var frames []Frame
	for _, seg := range segments[:len(segments)-1] {
		frames = append(frames, r.extractFrames(seg)...)
	}
	return frames
}

// Finish flushes any residue left in the buffer at stream end and returns the
// frames it contained. The reassembler can be reused afterwards.
func (r *Reassembler) Finish() []Frame {
	rest := r.buf.String()
	r.buf.Reset()

	if strings.TrimSpace(rest) == "" {
		return nil
	}
	return r.extractFrames(rest)
}

// Done reports whether the end-of-stream sentinel has been seen.
func (r *Reassembler) Done() bool {
	return r.done
}

// extractFrames pulls payloads out of one delimited segment. A segment may
// span multiple lines; only "data: " lines carry payloads.
func (r *Reassembler) extractFrames(segment string) []Frame {
	var frames []Frame
	for _, line := range strings.Split(segment, "\n") {
		if !strings.HasPrefix(line, dataPrefix) {
			continue
		}
		payload := strings.TrimPrefix(line, dataPrefix)
		if payload == doneSentinel {
			r.done = true
			continue
		}
		frames = append(frames, Frame{Payload: payload})
	}
	return frames
}

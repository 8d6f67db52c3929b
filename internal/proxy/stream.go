package proxy

import (
	"bufio"
	"io"
	"strings"

	"github.com/tidwall/gjson"
)

// maxFrameSize bounds one SSE line; upstream deltas are small but tool-call
// argument chunks can get long.
const maxFrameSize = 1 << 20

// doneFrame is the stream-termination sentinel clients key off.
const doneFrame = "data: [DONE]\n\n"

// Stream relays upstream SSE frames one at a time while accumulating the
// delta text as a side channel for logging and stats. Not safe for
// concurrent use; one goroutine owns a Stream.
type Stream struct {
	body     io.ReadCloser
	scanner  *bufio.Scanner
	captured strings.Builder
	doneSent bool
	finished bool
}

func newStream(body io.ReadCloser) *Stream {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), maxFrameSize)
	return &Stream{body: body, scanner: scanner}
}

// Next returns the next frame to write to the client, already in wire
// format ("data: ...\n\n"). When the upstream ends, for any reason, the
// final frame is always the [DONE] sentinel; after that Next reports false.
func (s *Stream) Next() ([]byte, bool) {
	if s.finished {
		return nil, false
	}

	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if line == "" {
			continue
		}
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			// Comment or event line; not relayed.
			continue
		}
		data = strings.TrimSpace(data)
		if data == "" {
			continue
		}
		if data == "[DONE]" {
			return s.terminate(), true
		}

		if content := gjson.Get(data, "choices.0.delta.content"); content.Exists() {
			s.captured.WriteString(content.String())
		}
		return []byte("data: " + data + "\n\n"), true
	}

	// Upstream exhausted, errored, or was cut off before sending [DONE];
	// the client still gets the sentinel.
	return s.terminate(), true
}

func (s *Stream) terminate() []byte {
	s.finished = true
	_ = s.body.Close()
	if s.doneSent {
		return nil
	}
	s.doneSent = true
	return []byte(doneFrame)
}

// CapturedContent returns the concatenated delta text seen so far.
func (s *Stream) CapturedContent() string {
	return s.captured.String()
}

// Close releases the upstream body. Safe to call more than once.
func (s *Stream) Close() error {
	s.finished = true
	return s.body.Close()
}

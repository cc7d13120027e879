// Package demux implements the Output Demuxer (C7): parsing
// line-delimited structured events from an assistant child's stdout,
// capturing the upstream resume token, and relaying everything else as
// opaque text.
package demux

import (
	"bytes"
	"encoding/json"
)

// startupEvent is the subset of the upstream `claude` startup event this
// package cares about. Per spec.md §9's open question, only these three
// fields are load-bearing; any others are forwarded verbatim and
// otherwise ignored.
type startupEvent struct {
	Type      string `json:"type"`
	Subtype   string `json:"subtype"`
	SessionID string `json:"session_id"`
}

// Callbacks receives the demuxer's decisions about each line of stdout.
type Callbacks struct {
	// OnResumeToken fires once per startup event observed, with the
	// captured upstream session id.
	OnResumeToken func(token string)
	// OnClaudeResponse fires for every line that parses as JSON,
	// carrying the original line verbatim.
	OnClaudeResponse func(line string)
	// OnRawLine fires for every line that does not parse as JSON.
	OnRawLine func(line string)
}

// Demuxer accumulates partial lines across successive Feed calls, per
// spec.md §4.7 step 2 ("retain any incomplete trailing line in the
// buffer").
type Demuxer struct {
	buf bytes.Buffer
	cb  Callbacks
}

// New returns a Demuxer that reports decisions to cb.
func New(cb Callbacks) *Demuxer {
	return &Demuxer{cb: cb}
}

// Feed appends chunk to the internal buffer and processes every
// complete line it now contains.
func (d *Demuxer) Feed(chunk []byte) {
	d.buf.Write(chunk)

	for {
		data := d.buf.Bytes()
		idx := bytes.IndexByte(data, '\n')
		if idx < 0 {
			break
		}

		line := make([]byte, idx)
		copy(line, data[:idx])
		d.buf.Next(idx + 1)

		d.processLine(line)
	}
}

// Flush processes any buffered bytes that never saw a trailing newline.
// Call this once the child's stdout has been fully drained (typically
// on exit), so a final unterminated line is not silently dropped.
func (d *Demuxer) Flush() {
	if d.buf.Len() == 0 {
		return
	}
	line := make([]byte, d.buf.Len())
	copy(line, d.buf.Bytes())
	d.buf.Reset()
	d.processLine(line)
}

func (d *Demuxer) processLine(line []byte) {
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) == 0 {
		return
	}

	if !json.Valid(trimmed) {
		if d.cb.OnRawLine != nil {
			d.cb.OnRawLine(string(line))
		}
		return
	}

	// Best-effort extraction: a valid JSON line that isn't an object
	// (or doesn't carry these fields) simply yields a zero-value evt,
	// which never matches the startup-event check below.
	var evt startupEvent
	_ = json.Unmarshal(trimmed, &evt)

	if evt.Type == "system" && evt.Subtype == "init" && evt.SessionID != "" {
		if d.cb.OnResumeToken != nil {
			d.cb.OnResumeToken(evt.SessionID)
		}
	}

	if d.cb.OnClaudeResponse != nil {
		d.cb.OnClaudeResponse(string(line))
	}
}

// Package inputqueue buffers text typed ahead of time so that upcoming
// blocking read syscalls can be answered without a round trip to the user.
package inputqueue

import (
	"encoding/json"
	"strconv"
)

// previewLength is the number of runes shown by Preview.
const previewLength = 10

// Queue is a FIFO of runes consumed token by token.
//
// Queue is not safe for concurrent use; it is owned by the session loop.
type Queue struct {
	buf       []rune
	index     int
	exhausted bool
}

// New creates an empty, exhausted queue.
func New() *Queue {
	return &Queue{exhausted: true}
}

// Add appends a newline separator followed by text.
func (q *Queue) Add(text string) {
	q.buf = append(q.buf, '\n')
	q.buf = append(q.buf, []rune(text)...)
	q.exhausted = false
}

// Exhausted reports whether the queue has nothing left to offer.
func (q *Queue) Exhausted() bool {
	return q.exhausted
}

// Clear drops all queued content.
func (q *Queue) Clear() {
	q.buf = nil
	q.index = 0
	q.exhausted = true
}

// Preview returns the next few unconsumed runes, JSON quoted.
func (q *Queue) Preview() string {
	end := q.index + previewLength
	if end > len(q.buf) {
		end = len(q.buf)
	}
	start := q.index
	if start > end {
		start = end
	}
	quoted, _ := json.Marshal(string(q.buf[start:end]))
	return string(quoted)
}

// ReadInt consumes the next integer token.
//
// The token is the maximal run of digits and minus signs after any leading
// whitespace. The whole run is consumed even when it does not parse, so
// "12-3" yields a FormatError rather than 12.
func (q *Queue) ReadInt() (int64, error) {
	q.skipWhitespace()
	run := q.consumeWhile(isIntRune, -1)
	if run == "" && q.index >= len(q.buf) {
		q.exhausted = true
		return 0, ErrExhausted
	}

	v, err := strconv.ParseInt(run, 10, 64)
	if err != nil {
		q.exhausted = true
		return 0, &FormatError{Run: run, Err: err}
	}
	return v, nil
}

// ReadChar consumes exactly one rune after any leading whitespace.
func (q *Queue) ReadChar() (rune, error) {
	q.skipWhitespace()
	run := []rune(q.consumeWhile(func(rune) bool { return true }, 1))
	if len(run) == 0 {
		q.exhausted = true
		return 0, ErrExhausted
	}
	return run[0], nil
}

func (q *Queue) skipWhitespace() {
	q.consumeWhile(isSpace, -1)
}

// consumeWhile consumes runes accepted by match, at most limit of them when
// limit is positive.
func (q *Queue) consumeWhile(match func(rune) bool, limit int) string {
	start := q.index
	for q.index < len(q.buf) && match(q.buf[q.index]) {
		q.index++
		if limit > 0 && q.index-start >= limit {
			break
		}
	}
	if q.index >= len(q.buf) {
		q.exhausted = true
	}
	return string(q.buf[start:q.index])
}

func isSpace(r rune) bool {
	switch r {
	case ' ', '\t', '\r', '\n':
		return true
	}
	return false
}

func isIntRune(r rune) bool {
	return r == '-' || (r >= '0' && r <= '9')
}

package stream

import (
	"bytes"
	"encoding/json"
)

var (
	dataPrefix = []byte("data:")

	// Both spellings appear in the wild depending on whether the server
	// writes a space after the field name.
	closeMarkers = [][]byte{
		[]byte("event: close"),
		[]byte("event:close"),
	}
)

// Decoder turns arbitrarily sized chunks of an event stream into parsed
// values on a Queue. Chunks may split a JSON object anywhere, including
// inside string literals and escape sequences; records may be framed as
// `data: {...}` lines or as bare concatenated objects with no separator.
// A literal `event: close` terminates the stream regardless of what else
// is buffered.
//
// Feed, Finish and Fail must be called from a single producer goroutine.
type Decoder[T any] struct {
	queue *Queue[T]
	stop  func()
	buf   []byte
	done  bool
}

// NewDecoder returns a decoder feeding queue. stop is invoked exactly once
// when a close event is seen, so the caller can cancel the underlying
// transport read; it may be nil.
func NewDecoder[T any](queue *Queue[T], stop func()) *Decoder[T] {
	return &Decoder[T]{queue: queue, stop: stop}
}

// Feed appends chunk to the decode buffer and pushes every complete JSON
// object it can extract. Fragments that balance their braces but fail to
// parse are discarded; a malformed record never aborts the stream.
func (d *Decoder[T]) Feed(chunk []byte) {
	if d.done {
		return
	}
	d.buf = append(d.buf, chunk...)

	if containsCloseMarker(d.buf) {
		d.done = true
		d.buf = nil
		if d.stop != nil {
			d.stop()
		}
		d.queue.Close()
		return
	}
	d.extract()
}

// Finish flushes whatever is still extractable and closes the queue. Called
// on transport end-of-stream when no close event was seen.
func (d *Decoder[T]) Finish() {
	if d.done {
		return
	}
	d.extract()
	d.done = true
	d.buf = nil
	d.queue.Close()
}

// Fail terminates the stream with a transport error.
func (d *Decoder[T]) Fail(err error) {
	if d.done {
		return
	}
	d.done = true
	d.buf = nil
	d.queue.Fail(err)
}

// Cancel ends the stream silently, discarding any buffered tail. Used when
// the consumer aborts the request.
func (d *Decoder[T]) Cancel() {
	if d.done {
		return
	}
	d.done = true
	d.buf = nil
	d.queue.Close()
}

func (d *Decoder[T]) extract() {
	for {
		start, end, ok := nextObject(d.buf)
		if !ok {
			// The tail may hold an unterminated object or a split close
			// marker, so nothing before the candidate is dropped either.
			return
		}
		var value T
		if err := json.Unmarshal(d.buf[start:end], &value); err == nil {
			d.queue.Push(value)
		}
		d.buf = d.buf[end:]
	}
}

func containsCloseMarker(buf []byte) bool {
	for _, marker := range closeMarkers {
		if bytes.Contains(buf, marker) {
			return true
		}
	}
	return false
}

// nextObject finds the bounds of the first complete top-level JSON object in
// buf, skipping whitespace, `data:` record prefixes and any other non-object
// text before it. Braces inside string literals or preceded by a backslash
// escape do not affect the depth count. ok is false while the object's end
// is not yet in buf.
func nextObject(buf []byte) (start, end int, ok bool) {
	i := 0
	for i < len(buf) && buf[i] != '{' {
		if bytes.HasPrefix(buf[i:], dataPrefix) {
			i += len(dataPrefix)
			if i < len(buf) && buf[i] == ' ' {
				i++
			}
			continue
		}
		i++
	}
	if i == len(buf) {
		return 0, 0, false
	}
	start = i

	depth := 0
	inString := false
	escaped := false
	for j := start; j < len(buf); j++ {
		c := buf[j]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return start, j + 1, true
			}
		}
	}
	return 0, 0, false
}

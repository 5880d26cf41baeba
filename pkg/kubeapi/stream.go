package kubeapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// EventType is the four-value enum a watch event's "type" field carries.
type EventType string

const (
	Added      EventType = "ADDED"
	Modified   EventType = "MODIFIED"
	Deleted    EventType = "DELETED"
	ErrorEvent EventType = "ERROR"
)

// WatchEvent is the decoded, typed view of one line of a watch stream.
type WatchEvent[T any] struct {
	Type   EventType
	Object T
}

// Transformer decodes one framed line into an E, or reports why it
// couldn't.
type Transformer[E any] func(line []byte) (E, error)

func watchTransformer[T any]() Transformer[WatchEvent[T]] {
	return func(line []byte) (WatchEvent[T], error) {
		var zero WatchEvent[T]
		var we metav1.WatchEvent
		if err := json.Unmarshal(line, &we); err != nil {
			return zero, &DecodingError{Message: "decode WatchEvent", Err: err}
		}
		switch EventType(we.Type) {
		case Added, Modified, Deleted, ErrorEvent:
		default:
			return zero, &DecodingError{Message: "Error parsing EventType", Err: errInvalidEventType(we.Type)}
		}
		var obj T
		if err := json.Unmarshal(we.Object.Raw, &obj); err != nil {
			return zero, &DecodingError{Message: "decode watched object", Err: err}
		}
		return WatchEvent[T]{Type: EventType(we.Type), Object: obj}, nil
	}
}

func logLineTransformer() Transformer[string] {
	return func(line []byte) (string, error) { return string(line), nil }
}

type invalidEventTypeError string

func errInvalidEventType(t string) error { return invalidEventTypeError(t) }
func (e invalidEventTypeError) Error() string { return "invalid EventType: " + string(e) }

// streamResult is one item produced by runStream: either a decoded E, or a
// terminal error.
type streamResult[E any] struct {
	Item E
	Err  error
}

// errStopStream signals that frameLines should stop because a decode
// failure has already been reported on the output channel.
var errStopStream = errors.New("kubeapi: stop stream")

// runStream frames body into lines, decodes each with transform, and sends
// the results on out. It stops and closes out when the body reaches EOF,
// when a line fails to decode, when the body read fails, or when done is
// closed. Closing done produces no output (spec: cancelling mid-stream
// completes the sequence normally, with no error).
func runStream[E any](done <-chan struct{}, body io.ReadCloser, transform Transformer[E], out chan<- streamResult[E]) {
	defer close(out)

	emit := func(line []byte) error {
		item, err := transform(line)
		if err != nil {
			select {
			case out <- streamResult[E]{Err: err}:
			case <-done:
			}
			return errStopStream
		}
		select {
		case out <- streamResult[E]{Item: item}:
			return nil
		case <-done:
			return context.Canceled
		}
	}

	err := frameLines(body, done, emit)
	switch err {
	case nil, errStopStream, context.Canceled:
		return
	default:
		select {
		case out <- streamResult[E]{Err: &ClientError{Err: err}}:
		case <-done:
		}
	}
}

// frameLines buffers incoming bytes and, on each chunk, slices out every
// complete line up to the last '\n' in the buffer, calling emit once per
// non-empty line. It treats a trailing unterminated line at EOF as one more
// line, so the set of emitted lines equals splitting the whole stream on
// '\n' with empty lines dropped, regardless of how the transport chunked
// the bytes.
func frameLines(r io.Reader, done <-chan struct{}, emit func([]byte) error) error {
	var pending []byte
	buf := make([]byte, 4096)
	for {
		select {
		case <-done:
			return context.Canceled
		default:
		}

		n, readErr := r.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			if idx := bytes.LastIndexByte(pending, '\n'); idx >= 0 {
				complete := pending[:idx]
				rest := append([]byte(nil), pending[idx+1:]...)
				pending = rest
				for _, line := range bytes.Split(complete, []byte{'\n'}) {
					if len(line) == 0 {
						continue
					}
					if emitErr := emit(line); emitErr != nil {
						return emitErr
					}
				}
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				if len(pending) > 0 {
					return emit(pending)
				}
				return nil
			}
			return readErr
		}
	}
}

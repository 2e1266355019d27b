package stream

import (
	"errors"
	"fmt"
)

// ErrStreamClosed is returned by Next after Close.
var ErrStreamClosed = errors.New("stream closed")

// UpstreamError wraps an error raised by the chunk source. It terminates the
// stream; frames already returned stay valid.
type UpstreamError struct {
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream stream: %v", e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// TransformError wraps a failure to transform or frame a chunk.
type TransformError struct {
	ChunkID string
	Err     error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("transforming chunk %q: %v", e.ChunkID, e.Err)
}

func (e *TransformError) Unwrap() error {
	return e.Err
}

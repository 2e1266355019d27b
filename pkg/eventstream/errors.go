package eventstream

import "errors"

// ErrNilCompletionEvent indicates a nil completion event payload was provided to a publisher.
var ErrNilCompletionEvent = errors.New("nil completion event")

// ErrUnknownProvider is returned by the publisher factory for unknown provider names.
var ErrUnknownProvider = errors.New("unknown eventstream provider")

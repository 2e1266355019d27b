package sse

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrInvalidField is returned when a frame id or event name would break the
// line-oriented framing.
var ErrInvalidField = errors.New("sse: frame field contains a line break")

// EncodeFrame serializes one protocol frame:
//
//	id: <id>\n
//	event: <event>\n
//	data: <json(data)>\n\n
//
// The data is compact JSON with HTML characters left unescaped, so the same
// value always encodes to the same bytes.
func EncodeFrame(id, event string, data any) ([]byte, error) {
	if strings.ContainsAny(id, "\r\n") || strings.ContainsAny(event, "\r\n") {
		return nil, ErrInvalidField
	}

	payload, err := MarshalData(data)
	if err != nil {
		return nil, fmt.Errorf("encoding %s frame: %w", event, err)
	}

	buf := bytes.NewBuffer(make([]byte, 0, len(id)+len(event)+len(payload)+24))
	buf.WriteString("id: ")
	buf.WriteString(id)
	buf.WriteString("\nevent: ")
	buf.WriteString(event)
	buf.WriteString("\ndata: ")
	buf.Write(payload)
	buf.WriteString("\n\n")
	return buf.Bytes(), nil
}

// WriteFrame encodes a frame and writes it to w.
func WriteFrame(w io.Writer, id, event string, data any) error {
	frame, err := EncodeFrame(id, event, data)
	if err != nil {
		return err
	}
	_, err = w.Write(frame)
	return err
}

// MarshalData encodes v as compact JSON without HTML escaping and without the
// trailing newline json.Encoder appends.
func MarshalData(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

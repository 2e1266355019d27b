package chunk

import (
	"bytes"
	"encoding/json"
)

// DeltaKind is the closed set of delta shapes the transformers branch on.
type DeltaKind int

const (
	// DeltaEmpty is a missing delta or one without any keys.
	DeltaEmpty DeltaKind = iota

	// DeltaToolCalls carries at least one tool call fragment.
	DeltaToolCalls

	// DeltaText carries string content, including "".
	DeltaText

	// DeltaParts carries an array of multimodal content parts.
	DeltaParts

	// DeltaNullContent has content explicitly set to null.
	DeltaNullContent

	// DeltaUnknown has keys, none of which are recognized.
	DeltaUnknown
)

func (k DeltaKind) String() string {
	switch k {
	case DeltaEmpty:
		return "empty"
	case DeltaToolCalls:
		return "tool_calls"
	case DeltaText:
		return "text"
	case DeltaParts:
		return "parts"
	case DeltaNullContent:
		return "null_content"
	default:
		return "unknown"
	}
}

// ContentKind distinguishes an absent content key from an explicit null.
type ContentKind int

const (
	ContentAbsent ContentKind = iota
	ContentNull
	ContentString
	ContentParts
	ContentOther
)

// Content is the decoded "content" key of a delta.
type Content struct {
	Kind  ContentKind
	Text  string
	Parts []ContentPart
}

// ContentPart is one element of a multimodal content array. Qwen style parts
// carry "text" or "image"; OpenAI style parts carry "image_url".
type ContentPart struct {
	Type     string    `json:"type,omitempty"`
	Text     *string   `json:"text,omitempty"`
	Image    string    `json:"image,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL accepts both {"url":"..."} and a bare string.
type ImageURL struct {
	URL string `json:"url"`
}

func (u *ImageURL) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		u.URL = s
		return nil
	}
	type plain ImageURL
	return json.Unmarshal(data, (*plain)(u))
}

// Delta is the incremental payload of a choice. It keeps every key it was
// decoded from in Raw so unrecognized shapes can be passed through untouched.
type Delta struct {
	Role      string
	Content   Content
	ToolCalls []ToolCallFragment

	Raw  json.RawMessage
	keys int
}

// ToolCallFragment is a partial tool call. Pointers distinguish absent keys
// from zero values.
type ToolCallFragment struct {
	Index    *int              `json:"index,omitempty"`
	ID       string            `json:"id,omitempty"`
	Type     string            `json:"type,omitempty"`
	Function *FunctionFragment `json:"function,omitempty"`
}

// FunctionFragment is the function part of a tool call fragment.
type FunctionFragment struct {
	Name      *string `json:"name,omitempty"`
	Arguments *string `json:"arguments,omitempty"`
}

// UnmarshalJSON decodes the recognized keys of a delta. Keys of an
// unexpected type are left undecoded rather than failing the chunk.
func (d *Delta) UnmarshalJSON(data []byte) error {
	d.Raw = append(json.RawMessage(nil), data...)

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		// Not an object: count it as an unrecognized key so it is passed through.
		d.keys = 1
		return nil
	}
	d.keys = len(fields)

	if raw, ok := fields["role"]; ok {
		_ = json.Unmarshal(raw, &d.Role)
	}

	if raw, ok := fields["content"]; ok {
		d.Content = decodeContent(raw)
	}

	if raw, ok := fields["tool_calls"]; ok {
		var fragments []ToolCallFragment
		if err := json.Unmarshal(raw, &fragments); err == nil {
			d.ToolCalls = fragments
		}
	}

	return nil
}

// MarshalJSON returns the original delta.
func (d *Delta) MarshalJSON() ([]byte, error) {
	if len(d.Raw) > 0 {
		return d.Raw, nil
	}
	return []byte("{}"), nil
}

// Kind classifies the delta by priority: tool calls, string content,
// content parts, null content, then empty or unknown.
func (d *Delta) Kind() DeltaKind {
	if d == nil {
		return DeltaEmpty
	}

	switch {
	case len(d.ToolCalls) > 0:
		return DeltaToolCalls
	case d.Content.Kind == ContentString:
		return DeltaText
	case d.Content.Kind == ContentParts:
		return DeltaParts
	case d.Content.Kind == ContentNull:
		return DeltaNullContent
	case d.keys == 0:
		return DeltaEmpty
	default:
		return DeltaUnknown
	}
}

func decodeContent(raw json.RawMessage) Content {
	trimmed := bytes.TrimSpace(raw)
	if bytes.Equal(trimmed, []byte("null")) {
		return Content{Kind: ContentNull}
	}

	var s string
	if err := json.Unmarshal(trimmed, &s); err == nil {
		return Content{Kind: ContentString, Text: s}
	}

	var parts []ContentPart
	if err := json.Unmarshal(trimmed, &parts); err == nil {
		return Content{Kind: ContentParts, Parts: parts}
	}

	return Content{Kind: ContentOther}
}

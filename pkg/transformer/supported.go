package transformer

import (
	"errors"
	"fmt"

	"github.com/papercomputeco/chatwire/pkg/transformer/ollama"
	"github.com/papercomputeco/chatwire/pkg/transformer/openai"
)

// Supported family constants
const (
	OpenAI = "openai"
	Qwen   = "qwen"
	Ollama = "ollama"

	// Auto is not a family: it asks Resolve to detect one from the request.
	Auto = "auto"
)

// ErrUnknownFamily is returned for family names without a transformer.
var ErrUnknownFamily = errors.New("unknown transformer family")

// SupportedFamilies returns the list of all supported family names.
func SupportedFamilies() []string {
	return []string{OpenAI, Qwen, Ollama}
}

// IsValidFamily reports whether name is a supported family or Auto.
func IsValidFamily(name string) bool {
	if name == Auto {
		return true
	}
	for _, f := range SupportedFamilies() {
		if f == name {
			return true
		}
	}
	return false
}

// New creates the Transformer for the given family.
func New(family string) (Transformer, error) {
	switch family {
	case OpenAI:
		return openai.New(), nil
	case Qwen:
		return openai.NewQwen(), nil
	case Ollama:
		return ollama.New(), nil
	default:
		return nil, fmt.Errorf("%w: %q (supported: %v)", ErrUnknownFamily, family, SupportedFamilies())
	}
}

// Resolve returns the Transformer for family, detecting one from the request
// path and body when family is Auto or empty.
func Resolve(family, path string, body []byte) (Transformer, error) {
	if family == "" || family == Auto {
		family = DetectRequest(path, body)
	}
	return New(family)
}

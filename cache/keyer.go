package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// DefaultPrefix namespaces keys produced by DefaultKeyer.
const DefaultPrefix = "chatrelay:reply"

// Keyer generates deterministic cache keys for a generation request.
//
// Contract:
// - Determinism: same inputs must produce same key, regardless of map iteration order.
// - Concurrency: implementations must be safe for concurrent use.
type Keyer interface {
	// Key derives a key from the model and the request input
	// (generation options plus prompt).
	Key(model string, input any) (string, error)
}

// DefaultKeyer generates SHA-256 based cache keys.
type DefaultKeyer struct {
	prefix string
}

// NewDefaultKeyer creates a keyer. An empty prefix uses DefaultPrefix.
func NewDefaultKeyer(prefix string) *DefaultKeyer {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &DefaultKeyer{prefix: prefix}
}

// Key returns <prefix>:<model>:<hash>, where hash is the first 16 bytes of
// SHA-256 over the canonical JSON of input, hex encoded.
func (k *DefaultKeyer) Key(model string, input any) (string, error) {
	canonical, err := canonicalize(input)
	if err != nil {
		return "", fmt.Errorf("cache: failed to canonicalize input: %w", err)
	}

	hash := sha256.Sum256(canonical)
	key := k.prefix + ":" + model + ":" + hex.EncodeToString(hash[:16])
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	return key, nil
}

// canonicalize produces a deterministic JSON encoding; map keys are sorted.
func canonicalize(v any) ([]byte, error) {
	switch val := v.(type) {
	case nil:
		return []byte("null"), nil
	case map[string]any:
		return canonicalizeMap(val)
	case []any:
		return canonicalizeSlice(val)
	default:
		return json.Marshal(v)
	}
}

func canonicalizeMap(m map[string]any) ([]byte, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	result := []byte("{")
	for i, k := range keys {
		if i > 0 {
			result = append(result, ',')
		}
		keyBytes, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		result = append(result, keyBytes...)
		result = append(result, ':')

		valBytes, err := canonicalize(m[k])
		if err != nil {
			return nil, err
		}
		result = append(result, valBytes...)
	}
	return append(result, '}'), nil
}

func canonicalizeSlice(s []any) ([]byte, error) {
	result := []byte("[")
	for i, v := range s {
		if i > 0 {
			result = append(result, ',')
		}
		valBytes, err := canonicalize(v)
		if err != nil {
			return nil, err
		}
		result = append(result, valBytes...)
	}
	return append(result, ']'), nil
}

var _ Keyer = (*DefaultKeyer)(nil)

package query

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Key is a deterministic string derived from a query identity, used as the
// subscription deduplication key. Keys derived from equivalent identities
// are equal; keys derived from distinct identities differ.
type Key string

// Keyer derives query keys from query identities.
//
// Contract:
// - Determinism: same identity must produce the same key, regardless of
//   map iteration order.
// - Injectivity: distinct identities over the supported domain must produce
//   distinct keys (numeric 1 and string "1" must not collide).
// - Totality: Key never panics and never errors; identities outside the
//   supported domain, and skip requests, report ok=false.
// - Concurrency: implementations must be safe for concurrent use.
type Keyer interface {
	// Key derives the key for (functionRef, args). ok is false when no key
	// exists: skip args or out-of-domain values. Callers must treat
	// ok=false as "do not cache or subscribe".
	Key(functionRef string, args Args) (key Key, ok bool)
}

// DefaultKeyer derives keys by embedding the canonical JSON form of the
// arguments in the key. The canonical form sorts mapping keys recursively,
// so insertion order never matters, and JSON string/number encoding keeps
// structurally different values distinct.
type DefaultKeyer struct{}

// NewDefaultKeyer creates a new default keyer.
func NewDefaultKeyer() *DefaultKeyer {
	return &DefaultKeyer{}
}

// Key derives a key of the form query:<functionRef>:<canonical-args-JSON>.
func (k *DefaultKeyer) Key(functionRef string, args Args) (Key, bool) {
	if args.IsSkip() {
		return "", false
	}
	canonical, err := canonicalizeMap(args.Fields())
	if err != nil {
		return "", false
	}
	return Key("query:" + functionRef + ":" + string(canonical)), true
}

// Derive derives a key with the default keyer. Convenience for callers that
// do not inject their own Keyer.
func Derive(functionRef string, args Args) (Key, bool) {
	return defaultKeyer.Key(functionRef, args)
}

var defaultKeyer = NewDefaultKeyer()

// canonicalize produces the deterministic JSON form of a single value.
func canonicalize(v any) ([]byte, error) {
	if v == nil {
		return []byte("null"), nil
	}

	switch val := v.(type) {
	case map[string]any:
		return canonicalizeMap(val)
	case []any:
		return canonicalizeSlice(val)
	case bool, string,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64, json.Number:
		return json.Marshal(val)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
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
	result = append(result, '}')

	return result, nil
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
	result = append(result, ']')

	return result, nil
}

// Ensure DefaultKeyer implements Keyer
var _ Keyer = (*DefaultKeyer)(nil)

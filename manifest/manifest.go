package manifest

import (
	"encoding/json"
	"fmt"
)

// Kind classifies a server function.
type Kind string

const (
	KindQuery    Kind = "query"
	KindMutation Kind = "mutation"
	KindAction   Kind = "action"
)

func (k Kind) valid() bool {
	switch k {
	case KindQuery, KindMutation, KindAction:
		return true
	default:
		return false
	}
}

// Function describes one server function.
type Function struct {
	// Name is the function reference used when deriving query keys,
	// e.g. "messages:list".
	Name string `json:"name"`

	// Kind is the function class. Only queries can be subscribed to.
	Kind Kind `json:"kind"`

	// Visibility is "public" or "internal". Empty means public.
	Visibility string `json:"visibility,omitempty"`

	// Args maps argument names to their declared type names.
	Args map[string]string `json:"args,omitempty"`
}

// Manifest is the set of functions a deployment exposes.
type Manifest struct {
	Deployment string     `json:"deployment,omitempty"`
	Functions  []Function `json:"functions"`
}

// Parse decodes and validates a JSON manifest.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks structural requirements: non-empty unique names and
// known kinds.
func (m *Manifest) Validate() error {
	seen := make(map[string]bool, len(m.Functions))
	for i, fn := range m.Functions {
		if fn.Name == "" {
			return fmt.Errorf("%w: function %d has no name", ErrInvalidManifest, i)
		}
		if seen[fn.Name] {
			return fmt.Errorf("%w: duplicate function %q", ErrInvalidManifest, fn.Name)
		}
		seen[fn.Name] = true
		if !fn.Kind.valid() {
			return fmt.Errorf("%w: function %q has unknown kind %q", ErrInvalidManifest, fn.Name, fn.Kind)
		}
	}
	return nil
}

// Lookup finds a function by name.
func (m *Manifest) Lookup(name string) (Function, bool) {
	for _, fn := range m.Functions {
		if fn.Name == name {
			return fn, true
		}
	}
	return Function{}, false
}

// Queries returns the subscribable functions.
func (m *Manifest) Queries() []Function {
	var queries []Function
	for _, fn := range m.Functions {
		if fn.Kind == KindQuery {
			queries = append(queries, fn)
		}
	}
	return queries
}

// Encode renders the manifest as indented JSON.
func (m *Manifest) Encode() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

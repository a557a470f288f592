package query

// Args is the argument mapping of a query identity.
//
// The supported value domain is JSON-like: nil, booleans, strings, integer
// and floating point numbers, []any sequences, and map[string]any mappings,
// nested to any depth without cycles. Values outside this domain cause key
// derivation to report "no key" rather than fail.
//
// Args has one tagged variant beyond a plain mapping: Skip. A skip request
// tells callers "do not load this query" and never derives a key.
type Args struct {
	fields map[string]any
	skip   bool
}

// NewArgs wraps an argument mapping. A nil map is equivalent to an empty
// mapping. The map is not copied; callers must not mutate it afterward.
func NewArgs(fields map[string]any) Args {
	return Args{fields: fields}
}

// Skip returns the sentinel Args variant meaning "do not load this query".
func Skip() Args {
	return Args{skip: true}
}

// IsSkip reports whether the Args are the skip sentinel.
func (a Args) IsSkip() bool {
	return a.skip
}

// Fields returns the underlying argument mapping. It is nil for skip Args
// and may be nil for an empty mapping. The returned map must be treated as
// read-only.
func (a Args) Fields() map[string]any {
	if a.skip {
		return nil
	}
	return a.fields
}

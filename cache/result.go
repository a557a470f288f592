package cache

// resultKind discriminates the Result variants.
type resultKind int

const (
	kindAbsent resultKind = iota
	kindValue
	kindError
)

// Result is the tagged outcome channel for a query: a successful value, a
// transport-reported error, or absent (no push observed yet, or no entry).
//
// Errors are values here, not faults: they flow through the same cached
// result and notify path as successful values so callers have exactly one
// delivery channel.
//
// The zero Result is absent.
type Result struct {
	kind  resultKind
	value any
	err   error
}

// NewValue wraps a successful query value.
func NewValue(v any) Result {
	return Result{kind: kindValue, value: v}
}

// NewError wraps a transport-reported failure. A nil error yields an
// absent Result.
func NewError(err error) Result {
	if err == nil {
		return Result{}
	}
	return Result{kind: kindError, err: err}
}

// Absent returns the "no result yet" Result.
func Absent() Result {
	return Result{}
}

// IsAbsent reports whether no value or error has been observed.
func (r Result) IsAbsent() bool {
	return r.kind == kindAbsent
}

// Value returns the successful value. ok is false for absent and error
// results.
func (r Result) Value() (v any, ok bool) {
	if r.kind != kindValue {
		return nil, false
	}
	return r.value, true
}

// Err returns the transport-reported error, or nil for value and absent
// results.
func (r Result) Err() error {
	if r.kind != kindError {
		return nil
	}
	return r.err
}

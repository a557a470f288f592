package query

import (
	"fmt"
	"testing"
)

func TestDefaultKeyer_Deterministic(t *testing.T) {
	keyer := NewDefaultKeyer()

	key1, ok1 := keyer.Key("messages:list", NewArgs(map[string]any{"channel": "general", "limit": 50}))
	key2, ok2 := keyer.Key("messages:list", NewArgs(map[string]any{"limit": 50, "channel": "general"}))

	if !ok1 || !ok2 {
		t.Fatalf("expected keys for supported args, ok1=%v ok2=%v", ok1, ok2)
	}
	if key1 != key2 {
		t.Errorf("same identity derived different keys:\n  %s\n  %s", key1, key2)
	}
}

func TestDefaultKeyer_NestedOrderInsensitive(t *testing.T) {
	keyer := NewDefaultKeyer()

	args1 := NewArgs(map[string]any{
		"filter": map[string]any{"author": "ada", "deleted": false},
		"tags":   []any{"a", "b"},
	})
	args2 := NewArgs(map[string]any{
		"tags":   []any{"a", "b"},
		"filter": map[string]any{"deleted": false, "author": "ada"},
	})

	key1, _ := keyer.Key("messages:list", args1)
	key2, _ := keyer.Key("messages:list", args2)
	if key1 != key2 {
		t.Errorf("nested map order changed the key:\n  %s\n  %s", key1, key2)
	}
}

func TestDefaultKeyer_SequenceOrderSignificant(t *testing.T) {
	keyer := NewDefaultKeyer()

	key1, _ := keyer.Key("fn", NewArgs(map[string]any{"ids": []any{1, 2}}))
	key2, _ := keyer.Key("fn", NewArgs(map[string]any{"ids": []any{2, 1}}))
	if key1 == key2 {
		t.Error("sequence element order must be significant")
	}
}

func TestDefaultKeyer_Injective(t *testing.T) {
	keyer := NewDefaultKeyer()

	cases := []struct {
		name string
		a, b Args
	}{
		{"number vs string", NewArgs(map[string]any{"n": 1}), NewArgs(map[string]any{"n": "1"})},
		{"nil vs absent", NewArgs(map[string]any{"n": nil}), NewArgs(nil)},
		{"bool vs string", NewArgs(map[string]any{"b": true}), NewArgs(map[string]any{"b": "true"})},
		{"empty seq vs empty map", NewArgs(map[string]any{"v": []any{}}), NewArgs(map[string]any{"v": map[string]any{}})},
	}

	for _, tc := range cases {
		keyA, okA := keyer.Key("fn", tc.a)
		keyB, okB := keyer.Key("fn", tc.b)
		if !okA || !okB {
			t.Fatalf("%s: expected both identities to derive keys", tc.name)
		}
		if keyA == keyB {
			t.Errorf("%s: distinct identities collided on key %q", tc.name, keyA)
		}
	}
}

func TestDefaultKeyer_FunctionRefSignificant(t *testing.T) {
	keyer := NewDefaultKeyer()

	args := NewArgs(map[string]any{"channel": "general"})
	key1, _ := keyer.Key("messages:list", args)
	key2, _ := keyer.Key("messages:count", args)
	if key1 == key2 {
		t.Error("distinct function references must derive distinct keys")
	}
}

func TestDefaultKeyer_Skip(t *testing.T) {
	keyer := NewDefaultKeyer()

	key, ok := keyer.Key("messages:list", Skip())
	if ok {
		t.Errorf("skip args must not derive a key, got %q", key)
	}
}

func TestDefaultKeyer_UnsupportedValue(t *testing.T) {
	keyer := NewDefaultKeyer()

	cases := []struct {
		name string
		args Args
	}{
		{"func value", NewArgs(map[string]any{"cb": func() {}})},
		{"channel value", NewArgs(map[string]any{"ch": make(chan int)})},
		{"nested unsupported", NewArgs(map[string]any{"outer": map[string]any{"inner": struct{}{}}})},
		{"unsupported in sequence", NewArgs(map[string]any{"seq": []any{1, struct{}{}}})},
	}

	for _, tc := range cases {
		key, ok := keyer.Key("fn", tc.args)
		if ok {
			t.Errorf("%s: expected no key, got %q", tc.name, key)
		}
	}
}

func TestDefaultKeyer_NilAndEmptyArgs(t *testing.T) {
	keyer := NewDefaultKeyer()

	keyNil, okNil := keyer.Key("fn", NewArgs(nil))
	keyEmpty, okEmpty := keyer.Key("fn", NewArgs(map[string]any{}))
	if !okNil || !okEmpty {
		t.Fatal("nil and empty args must both derive keys")
	}
	if keyNil != keyEmpty {
		t.Errorf("nil and empty args must be equivalent: %q vs %q", keyNil, keyEmpty)
	}
}

func TestDerive_MatchesDefaultKeyer(t *testing.T) {
	args := NewArgs(map[string]any{"channel": "general"})

	got, ok := Derive("messages:list", args)
	want, _ := NewDefaultKeyer().Key("messages:list", args)
	if !ok {
		t.Fatal("Derive returned ok=false for supported args")
	}
	if got != want {
		t.Errorf("Derive = %q, want %q", got, want)
	}
}

func TestDefaultKeyer_Concurrent(t *testing.T) {
	keyer := NewDefaultKeyer()
	args := NewArgs(map[string]any{"a": 1, "b": []any{"x", "y"}, "c": map[string]any{"d": 2}})

	want, _ := keyer.Key("fn", args)

	done := make(chan Key, 64)
	for i := 0; i < 64; i++ {
		go func() {
			key, _ := keyer.Key("fn", args)
			done <- key
		}()
	}
	for i := 0; i < 64; i++ {
		if got := <-done; got != want {
			t.Fatalf("concurrent derivation mismatch: %q vs %q", got, want)
		}
	}
}

func ExampleDerive() {
	key1, _ := Derive("messages:list", NewArgs(map[string]any{"channel": "general", "limit": 10}))
	key2, _ := Derive("messages:list", NewArgs(map[string]any{"limit": 10, "channel": "general"}))
	fmt.Println("order insensitive:", key1 == key2)

	_, ok := Derive("messages:list", Skip())
	fmt.Println("skip derives a key:", ok)
	// Output:
	// order insensitive: true
	// skip derives a key: false
}

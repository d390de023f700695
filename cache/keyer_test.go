package cache

import (
	"errors"
	"strings"
	"testing"
)

func TestDefaultKeyer_EmptyTuple(t *testing.T) {
	k := NewDefaultKeyer()
	key, err := k.Key()
	if err != nil {
		t.Fatalf("Key() error = %v", err)
	}
	if key != DefaultKey {
		t.Errorf("Key() = %q, want %q", key, DefaultKey)
	}
}

func TestDefaultKeyer_Deterministic(t *testing.T) {
	type filter struct {
		Status string `json:"status"`
		Limit  int    `json:"limit"`
	}

	tests := []struct {
		name string
		a    []any
		b    []any
	}{
		{
			name: "map field order",
			a:    []any{map[string]any{"a": 1, "b": 2}},
			b:    []any{map[string]any{"b": 2, "a": 1}},
		},
		{
			name: "nested maps",
			a:    []any{map[string]any{"outer": map[string]any{"x": 1, "y": []any{1, 2}}}},
			b:    []any{map[string]any{"outer": map[string]any{"y": []any{1, 2}, "x": 1}}},
		},
		{
			name: "struct matches equivalent map",
			a:    []any{filter{Status: "open", Limit: 10}},
			b:    []any{map[string]any{"limit": 10, "status": "open"}},
		},
		{
			name: "large integers keep precision",
			a:    []any{struct{ ID int64 }{ID: 1<<62 + 1}},
			b:    []any{map[string]any{"ID": int64(1<<62 + 1)}},
		},
		{
			name: "multiple arguments",
			a:    []any{"2026-03", 5},
			b:    []any{"2026-03", 5},
		},
	}

	k := NewDefaultKeyer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ka, err := k.Key(tt.a...)
			if err != nil {
				t.Fatalf("Key(a) error = %v", err)
			}
			kb, err := k.Key(tt.b...)
			if err != nil {
				t.Fatalf("Key(b) error = %v", err)
			}
			if ka != kb {
				t.Errorf("keys differ: %q vs %q", ka, kb)
			}
		})
	}
}

func TestDefaultKeyer_Distinct(t *testing.T) {
	tests := []struct {
		name string
		a    []any
		b    []any
	}{
		{"different values", []any{"a"}, []any{"b"}},
		{"tuple vs joined string", []any{"a", "b"}, []any{"a\x1fb"}},
		{"number vs string", []any{1}, []any{"1"}},
		{"slice order", []any{[]any{1, 2}}, []any{[]any{2, 1}}},
		{"nil vs empty tuple", []any{nil}, nil},
	}

	k := NewDefaultKeyer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ka, _ := k.Key(tt.a...)
			kb, _ := k.Key(tt.b...)
			if ka == kb {
				t.Errorf("keys collide: %q", ka)
			}
		})
	}
}

func TestDefaultKeyer_LongKeyHashed(t *testing.T) {
	k := NewDefaultKeyer()
	long := strings.Repeat("x", MaxKeyLength+10)

	key, err := k.Key(long)
	if err != nil {
		t.Fatalf("Key() error = %v", err)
	}
	if !strings.HasPrefix(key, "sha256:") {
		t.Errorf("Key() = %q, want sha256: prefix", key)
	}
	if len(key) != len("sha256:")+32 {
		t.Errorf("len(Key()) = %d, want %d", len(key), len("sha256:")+32)
	}

	again, _ := k.Key(long)
	if again != key {
		t.Error("hashed key is not stable")
	}
	other, _ := k.Key(long + "y")
	if other == key {
		t.Error("different long arguments hashed to the same key")
	}
}

func TestDefaultKeyer_Unserializable(t *testing.T) {
	k := NewDefaultKeyer()
	tests := []struct {
		name string
		arg  any
	}{
		{"channel", make(chan int)},
		{"func", func() {}},
		{"nested channel", map[string]any{"c": make(chan int)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := k.Key("ok", tt.arg)
			if !errors.Is(err, ErrInvalidKey) {
				t.Errorf("Key() error = %v, want ErrInvalidKey", err)
			}
		})
	}
}

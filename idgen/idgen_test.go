package idgen

import (
	"strings"
	"testing"
)

func TestUUIDv7_SortableAndUnique(t *testing.T) {
	gen := UUIDv7()
	prev := ""
	seen := make(map[string]struct{}, 200)
	for i := 0; i < 200; i++ {
		id := gen()
		if len(id) != 36 {
			t.Fatalf("length = %d for %q", len(id), id)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id at %d: %q", i, id)
		}
		seen[id] = struct{}{}
		if id[14] != '7' {
			t.Fatalf("version nibble = %c, want 7 in %q", id[14], id)
		}
		if prev != "" && id < prev {
			t.Fatalf("ids not time-ordered: %q < %q", id, prev)
		}
		prev = id
	}
}

func TestNew_NeverContainsSeparator(t *testing.T) {
	for i := 0; i < 100; i++ {
		if id := New(); strings.Contains(id, "..") {
			t.Fatalf("id %q contains \"..\"", id)
		}
	}
}

func TestPrefixed(t *testing.T) {
	id := Prefixed("ann_", UUIDv7())()
	if !strings.HasPrefix(id, "ann_") || len(id) != 4+36 {
		t.Fatalf("Prefixed id = %q", id)
	}
}

func TestParse(t *testing.T) {
	id := New()
	got, err := Parse(strings.ToUpper(id))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got != id {
		t.Fatalf("Parse = %q, want %q", got, id)
	}
	if _, err := Parse("v1..v2"); err == nil {
		t.Fatal("Parse accepted a change token")
	}
}

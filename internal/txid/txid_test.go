package txid

import (
	"strings"
	"testing"
)

func TestNew_Prefix(t *testing.T) {
	id := New()
	if !strings.HasPrefix(id, "tx-") {
		t.Fatalf("expected tx- prefix, got %q", id)
	}
}

func TestNew_Unique(t *testing.T) {
	seen := make(map[string]struct{})
	for range 100 {
		id := New()
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = struct{}{}
	}
}

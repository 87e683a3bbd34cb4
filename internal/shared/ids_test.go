package shared

import (
	"strings"
	"testing"
)

func TestNewID(t *testing.T) {
	id := NewID("rly_")
	if !strings.HasPrefix(id, "rly_") {
		t.Errorf("expected prefix 'rly_', got %s", id)
	}
	if len(id) != len("rly_")+36 {
		t.Errorf("unexpected id length %d", len(id))
	}
	if NewID("rly_") == id {
		t.Error("expected unique ids")
	}
}

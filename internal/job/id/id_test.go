package id

import (
	"strings"
	"testing"
)

func TestGenerate(t *testing.T) {
	id := Generate()

	// Check format
	if !strings.HasPrefix(id, "job-") {
		t.Errorf("expected ID to start with 'job-', got %s", id)
	}
	if !Valid(PrefixJob, id) {
		t.Errorf("expected %s to be a valid job ID", id)
	}

	// Check uniqueness
	id2 := Generate()
	if id == id2 {
		t.Error("expected different IDs for consecutive calls")
	}
}

func TestGenerate_Uniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := Generate()
		if seen[id] {
			t.Errorf("duplicate ID generated: %s", id)
		}
		seen[id] = true
	}
}

func TestNew_Prefix(t *testing.T) {
	id := New(PrefixSession)
	if !strings.HasPrefix(id, "ses-") {
		t.Errorf("expected ID to start with 'ses-', got %s", id)
	}
}

func TestValid(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		input  string
		want   bool
	}{
		{"generated", PrefixClip, New(PrefixClip), true},
		{"wrong prefix", PrefixJob, New(PrefixClip), false},
		{"not a uuid", PrefixJob, "job-123", false},
		{"empty", PrefixJob, "", false},
		{"path traversal", PrefixClip, "clip-../../etc/passwd", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Valid(tt.prefix, tt.input); got != tt.want {
				t.Errorf("Valid(%q, %q) = %v, want %v", tt.prefix, tt.input, got, tt.want)
			}
		})
	}
}

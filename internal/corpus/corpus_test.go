package corpus

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		dir  string
		want string
	}{
		{"/home/quant0/projects/xfiles", "projects-xfiles"},
		{"/home/user/docs/research", "docs-research"},
		{"/data/My Notes/Q3 2025!", "my-notes-q3-2025"},
		{"/single", "single"},
	}

	for _, tt := range tests {
		if got := Sanitize(tt.dir); got != tt.want {
			t.Errorf("Sanitize(%q) = %q, want %q", tt.dir, got, tt.want)
		}
	}
}

func TestKey_DistinctForSanitizeCollisions(t *testing.T) {
	a := Key("/alpha/projects/xfiles")
	b := Key("/beta/projects/xfiles")

	if a == b {
		t.Fatalf("Key collision: %q for two distinct paths", a)
	}
	if !strings.HasPrefix(a, "projects-xfiles-") || !strings.HasPrefix(b, "projects-xfiles-") {
		t.Errorf("keys %q / %q missing sanitized prefix", a, b)
	}
}

func TestKey_Deterministic(t *testing.T) {
	if Key("/home/user/docs/research") != Key("/home/user/docs/research") {
		t.Error("Key is not deterministic")
	}
}

func TestCacheDir(t *testing.T) {
	got := CacheDir("/root/.kmcp/knowledge", "/home/user/docs/research")
	want := filepath.Join("/root/.kmcp/knowledge", Key("/home/user/docs/research"))
	if got != want {
		t.Errorf("CacheDir = %q, want %q", got, want)
	}
}

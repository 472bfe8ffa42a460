package registry

import (
	"os"
	"path/filepath"
	"sort"
	"testing"
)

func TestRegistryContains(t *testing.T) {
	r := New([]string{"Vault-2", "  gateway  ", ""})

	if !r.Contains("vault-2") || !r.Contains("VAULT-2") {
		t.Fatal("expected case-insensitive membership")
	}
	if !r.Contains("gateway") {
		t.Fatal("expected trimmed seed to be known")
	}
	if r.Contains("unknown") {
		t.Fatal("unexpected membership for unknown project")
	}
	if !r.Contains("all") {
		t.Fatal("cross-project scope must always be known")
	}
	if r.Len() != 2 {
		t.Fatalf("expected 2 projects, got %d", r.Len())
	}
}

func TestRegistryLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "projects.yaml")
	if err := os.WriteFile(path, []byte("projects:\n  - vault-2\n  - Billing\n"), 0644); err != nil {
		t.Fatalf("failed to write registry file: %v", err)
	}

	r := New([]string{"seeded"})
	if err := r.LoadFile(path); err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	ids := r.List()
	sort.Strings(ids)
	want := []string{"billing", "seeded", "vault-2"}
	if len(ids) != len(want) {
		t.Fatalf("expected %v, got %v", want, ids)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, ids)
		}
	}
}

func TestRegistryLoadFileMissing(t *testing.T) {
	r := New(nil)
	if err := r.LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); err != nil {
		t.Fatalf("missing file should not be an error: %v", err)
	}
	if r.Len() != 0 {
		t.Fatalf("expected empty registry, got %d", r.Len())
	}
}

func TestRegistryWatchRequiresFile(t *testing.T) {
	r := New(nil)
	if err := r.Watch(); err == nil {
		t.Fatal("expected Watch to fail without a loaded file")
	}
}

package device

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileIsZero(t *testing.T) {
	st, err := Load(filepath.Join(t.TempDir(), "device.toml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if st != (State{}) {
		t.Fatalf("expected zero state, got %+v", st)
	}
}

func TestSaveThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "device.toml")
	if err := Save(path, State{Ticket: 12, StaffAuthorized: true}); err != nil {
		t.Fatalf("save: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(raw) == "" {
		t.Fatal("empty state file")
	}

	st, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if st.Ticket != 12 || !st.StaffAuthorized {
		t.Fatalf("unexpected state %+v", st)
	}
}

func TestLoadCorruptFileDegrades(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device.toml")
	if err := os.WriteFile(path, []byte("ticket = [oops"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	st, err := Load(path)
	if err != nil || st != (State{}) {
		t.Fatalf("expected zero state, got %+v, %v", st, err)
	}
}

func TestDefaultPathExpandsHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	resolved, err := resolvePath("")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	want := filepath.Join(home, ".config", "clinic-queue", "device.toml")
	if resolved != want {
		t.Fatalf("resolved = %s, want %s", resolved, want)
	}
}

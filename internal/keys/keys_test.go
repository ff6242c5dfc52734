package keys

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

func TestConfigDir(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvConfigDir, dir)

	got, err := ConfigDir()
	if err != nil {
		t.Fatalf("ConfigDir() error = %v", err)
	}
	if got != dir {
		t.Errorf("ConfigDir() = %s, want %s", got, dir)
	}

	store, err := NewStore()
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	if store.Path() != filepath.Join(dir, "keys.json") {
		t.Errorf("Path() = %s", store.Path())
	}
}

func TestStore_SetGetDelete(t *testing.T) {
	tmpDir := t.TempDir()
	store := NewStoreAt(tmpDir)

	if err := store.Set("openai", "sk-test-key-12345"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	info, err := os.Stat(filepath.Join(tmpDir, "keys.json"))
	if err != nil {
		t.Fatalf("keys.json not created: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("keys.json permissions = %v, want 0600", info.Mode().Perm())
	}

	key, err := store.Get("openai")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if key != "sk-test-key-12345" {
		t.Errorf("Get() = %v, want sk-test-key-12345", key)
	}

	key, err = store.Get("other")
	if err != nil || key != "" {
		t.Errorf("Get(missing) = %q, %v, want empty", key, err)
	}

	if err := store.Delete("openai"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := store.Delete("openai"); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("Delete(missing) error = %v, want %v", err, ErrKeyNotFound)
	}
}

func TestStore_SetRejectsBlank(t *testing.T) {
	store := NewStoreAt(t.TempDir())
	if err := store.Set("openai", "  "); !errors.Is(err, ErrAPIKeyMissing) {
		t.Errorf("Set(blank) error = %v, want %v", err, ErrAPIKeyMissing)
	}
}

func TestStore_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "keys.json"), []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := NewStoreAt(dir).Get("openai"); err == nil || !strings.Contains(err.Error(), "keys.json") {
		t.Errorf("Get() error = %v, want parse error", err)
	}
}

func TestStore_List(t *testing.T) {
	store := NewStoreAt(t.TempDir())

	providers, err := store.List()
	if err != nil || len(providers) != 0 {
		t.Fatalf("List() on empty store = %v, %v", providers, err)
	}

	for _, p := range []string{"openai", "azure", "local"} {
		if err := store.Set(p, p+"-key"); err != nil {
			t.Fatalf("Set(%s) error = %v", p, err)
		}
	}

	providers, _ = store.List()
	if want := []string{"azure", "local", "openai"}; !slices.Equal(providers, want) {
		t.Errorf("List() = %v, want %v", providers, want)
	}
}

func TestMaskKey(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"", ""},
		{"short", "*****"},
		{"12345678", "********"},
		{"sk-abcdefghijkl", "sk-a*******ijkl"},
	}

	for _, tt := range tests {
		if got := MaskKey(tt.key); got != tt.want {
			t.Errorf("MaskKey(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}

func TestStore_Resolve(t *testing.T) {
	stored := NewStoreAt(t.TempDir())
	if err := stored.Set("openai", "stored-key"); err != nil {
		t.Fatal(err)
	}
	empty := NewStoreAt(t.TempDir())

	tests := []struct {
		name     string
		store    *Store
		explicit string
		env      string
		want     string
		source   string
		wantErr  error
	}{
		{"flag wins", stored, "flag-key", "env-key", "flag-key", "command-line flag", nil},
		{"stored beats env", stored, "", "env-key", "stored-key", "stored key", nil},
		{"env fallback", empty, "", "env-key", "env-key", "environment variable", nil},
		{"nothing", empty, "", "", "", "", ErrAPIKeyMissing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("OPENAI_API_KEY", tt.env)

			key, source, err := tt.store.Resolve(tt.explicit, "openai", "OPENAI_API_KEY")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Resolve() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if key != tt.want {
				t.Errorf("Resolve() key = %s, want %s", key, tt.want)
			}
			if !strings.HasPrefix(source, tt.source) {
				t.Errorf("Resolve() source = %s, want prefix %s", source, tt.source)
			}
		})
	}
}

func TestGetAPIKey_UsesConfigDir(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvConfigDir, dir)
	t.Setenv("OPENAI_API_KEY", "")

	if err := NewStoreAt(dir).Set("openai", "from-dir"); err != nil {
		t.Fatal(err)
	}

	key, _, err := GetAPIKey("", "openai", "OPENAI_API_KEY")
	if err != nil {
		t.Fatalf("GetAPIKey() error = %v", err)
	}
	if key != "from-dir" {
		t.Errorf("GetAPIKey() = %s, want from-dir", key)
	}
}

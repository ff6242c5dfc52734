package security

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestValidateSavePath(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		wantErr error
	}{
		{"simple filename", "edited.png", nil},
		{"subdirectory", "output/edited.png", nil},
		{"empty", "  ", ErrEmptyPath},
		{"traversal prefix", "../edited.png", ErrPathTraversal},
		{"traversal in middle", "out/../../../etc/passwd", ErrPathTraversal},
		{"absolute", "/etc/passwd", ErrAbsolutePath},
		{"reserved CON", "CON.txt", ErrReservedName},
		{"reserved upper ext", "PRN.PNG", ErrReservedName},
		{"reserved nul", "nul", ErrReservedName},
		{"reserved lpt1", "out/lpt1.doc", ErrReservedName},
		{"hyphen prefix", "-rf.png", ErrHyphenPrefix},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSavePath(tt.path)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateSavePath(%q) error = %v, want nil", tt.path, err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateSavePath(%q) error = %v, want %v", tt.path, err, tt.wantErr)
			}
		})
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"edited-cat.png", "edited-cat.png"},
		{"foo/bar.png", "foo-bar.png"},
		{"foo\\bar.png", "foo-bar.png"},
		{"..hidden.png", "hidden.png"},
		{"--flag.png", "flag.png"},
		{"file.png...", "file.png"},
		{"file<name>:with*bad?chars.png", "filename-withbadchars.png"},
		{"CON.txt", "CON.txt_"},
		{"...", "file"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := SanitizeFilename(tt.input); got != tt.expected {
				t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestJoinSafe(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name string
		want string
	}{
		{"cat.png", filepath.Join(dir, "cat.png")},
		{"../../escape.png", filepath.Join(dir, "escape.png")},
		{"..", filepath.Join(dir, "file")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := JoinSafe(dir, tt.name)
			if err != nil {
				t.Fatalf("JoinSafe(%q) error = %v", tt.name, err)
			}
			if got != tt.want {
				t.Errorf("JoinSafe(%q) = %q, want %q", tt.name, got, tt.want)
			}
		})
	}
}

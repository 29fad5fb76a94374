package security

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestWithinDirectory(t *testing.T) {
	base := t.TempDir()
	recordings := filepath.Join(base, "recordings")
	if err := os.MkdirAll(recordings, 0o755); err != nil {
		t.Fatal(err)
	}
	outside := filepath.Join(base, "outside")
	if err := os.MkdirAll(outside, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(outside, filepath.Join(recordings, "escape")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"file in dir", filepath.Join(recordings, "serial_recording_1.csv"), false},
		{"nested missing file", filepath.Join(recordings, "a", "b", "c.bin"), false},
		{"dir itself", recordings, false},
		{"parent traversal", filepath.Join(recordings, "..", "outside", "x.csv"), true},
		{"sibling", filepath.Join(outside, "x.csv"), true},
		{"symlink escape", filepath.Join(recordings, "escape", "x.csv"), true},
		{"absolute elsewhere", "/etc/passwd", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := WithinDirectory(tt.path, recordings)
			if (err != nil) != tt.wantErr {
				t.Errorf("WithinDirectory(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrOutsideDirectory) {
				t.Errorf("error %v does not wrap ErrOutsideDirectory", err)
			}
		})
	}
}

func TestWithinDirectoryMissingDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "not", "yet", "created")
	if err := WithinDirectory(filepath.Join(dir, "seg.json"), dir); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := WithinDirectory(filepath.Join(dir, "..", "seg.json"), dir); err == nil {
		t.Error("expected traversal error")
	}
}

func TestWithinAnyDirectory(t *testing.T) {
	a, b := t.TempDir(), t.TempDir()

	if err := WithinAnyDirectory(filepath.Join(b, "x"), "", a, b); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := WithinAnyDirectory(filepath.Join(b, "..", "x"), a, b); !errors.Is(err, ErrOutsideDirectory) {
		t.Errorf("expected ErrOutsideDirectory, got %v", err)
	}
	if err := WithinAnyDirectory("x", "", ""); err == nil {
		t.Error("expected error with no directories")
	}
}

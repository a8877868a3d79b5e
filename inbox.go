package radioedit

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/yirzhou/radioedit/audio"
)

// Inbox is the directory uploaded programmes are stored in before a job
// picks them up.
type Inbox struct {
	dir string
}

// NewInbox serves files from dir.
func NewInbox(dir string) *Inbox {
	return &Inbox{dir: dir}
}

// Dir returns the inbox directory.
func (i *Inbox) Dir() string {
	return i.dir
}

// Save stores r under a sanitized version of name and returns the stored
// name. Only mp3, wav and flac files are accepted.
func (i *Inbox) Save(name string, r io.Reader) (string, error) {
	safe := SanitizeFileName(name)
	if !audio.IsAudioFile(safe) {
		return "", &ValidationError{Field: "file", Reason: fmt.Sprintf("unsupported extension %q", filepath.Ext(safe))}
	}
	if err := os.MkdirAll(i.dir, 0o755); err != nil {
		return "", fmt.Errorf("create inbox: %w", err)
	}

	tmp, err := os.CreateTemp(i.dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("write upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("write upload: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(i.dir, safe)); err != nil {
		return "", fmt.Errorf("store upload: %w", err)
	}
	return safe, nil
}

// List returns the sorted names of the stored programmes.
func (i *Inbox) List() ([]string, error) {
	entries, err := os.ReadDir(i.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && audio.IsAudioFile(e.Name()) {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)
	return names, nil
}

// SanitizeFileName strips directories and replaces anything outside
// [A-Za-z0-9._-] with an underscore.
func SanitizeFileName(name string) string {
	name = filepath.Base(strings.TrimSpace(strings.ReplaceAll(name, "\\", "/")))
	name = strings.ReplaceAll(name, " ", "_")
	name = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '.' || r == '_' || r == '-' {
			return r
		}
		return '_'
	}, name)
	name = strings.TrimLeft(name, ".")
	if name == "" {
		return "upload.bin"
	}
	return name
}

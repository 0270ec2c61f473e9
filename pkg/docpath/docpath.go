// Package docpath finds a document path mentioned in free text.
package docpath

import (
	"os"
	"path/filepath"
	"strings"
)

// Finder resolves file-like words of a request against the working directory
// and an uploads directory.
type Finder struct {
	UploadsDir string
	// Exists reports whether a regular file exists at path. Defaults to an
	// os.Stat based check.
	Exists func(path string) bool
}

func NewFinder(uploadsDir string) *Finder {
	return &Finder{UploadsDir: uploadsDir, Exists: fileExists}
}

// Mentioned reports whether text talks about an uploaded file at all.
func Mentioned(text string) bool {
	lower := strings.ToLower(text)
	return strings.Contains(lower, "uploaded") || strings.Contains(lower, "file")
}

// Find returns the first word of text that names an existing file, either as
// given or relative to UploadsDir.
func (f *Finder) Find(text string) (string, bool) {
	exists := f.Exists
	if exists == nil {
		exists = fileExists
	}
	for _, word := range Candidates(text) {
		if exists(word) {
			return word, true
		}
		if f.UploadsDir == "" {
			continue
		}
		p := filepath.Join(f.UploadsDir, word)
		if exists(p) {
			return p, true
		}
	}
	return "", false
}

// Candidates lists the words of text that look like file names, in order.
func Candidates(text string) []string {
	cleaned := strings.NewReplacer("'", " ", `"`, " ", "`", " ").Replace(text)
	var out []string
	for _, word := range strings.Fields(cleaned) {
		word = strings.TrimRight(word, ".,;:!?)")
		word = strings.TrimLeft(word, "(")
		if !strings.Contains(word, ".") {
			continue
		}
		out = append(out, word)
	}
	return out
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

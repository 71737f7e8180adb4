package vocab

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/samber/lo"
)

// Source is one vocabulary document that was found and read.
type Source struct {
	Path    string
	Content string
}

// Document is the merged custom vocabulary handed to the completion prompt.
type Document struct {
	Sources []Source
}

// Text joins all sources, global first, separated by a blank line.
func (d Document) Text() string {
	parts := lo.FilterMap(d.Sources, func(s Source, _ int) (string, bool) {
		return s.Content, s.Content != ""
	})
	return strings.Join(parts, "\n\n")
}

// Empty reports whether no usable vocabulary was found.
func (d Document) Empty() bool {
	return d.Text() == ""
}

// Paths lists the source files, for the startup header.
func (d Document) Paths() []string {
	return lo.Map(d.Sources, func(s Source, _ int) string { return s.Path })
}

// Load reads the named file from each dir in order. Missing files are skipped;
// a directory listed twice is read once.
func Load(name string, dirs ...string) (Document, error) {
	cleaned := lo.Uniq(lo.FilterMap(dirs, func(dir string, _ int) (string, bool) {
		if strings.TrimSpace(dir) == "" {
			return "", false
		}
		abs, err := filepath.Abs(dir)
		if err != nil {
			return filepath.Clean(dir), true
		}
		return abs, true
	}))

	var doc Document
	for _, dir := range cleaned {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return Document{}, fmt.Errorf("reading vocabulary %q: %w", path, err)
		}
		content := strings.TrimSpace(string(data))
		if content == "" {
			continue
		}
		doc.Sources = append(doc.Sources, Source{Path: path, Content: content})
	}
	return doc, nil
}

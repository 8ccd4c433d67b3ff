// Package examples embeds ready-to-run workflow configs into the binary so
// they are available offline.
package examples

import (
	"embed"
	"os"
	"path/filepath"
	"strings"

	"github.com/ensemble-run/ensemble/pkg/config"
	"github.com/ensemble-run/ensemble/pkg/errors"
)

//go:embed *.yaml
var embeddedFS embed.FS

// Example is metadata about one embedded workflow.
type Example struct {
	Name        string
	Description string
	FilePath    string
}

// List returns all embedded examples, described from their own flow metadata.
func List() ([]Example, error) {
	entries, err := embeddedFS.ReadDir(".")
	if err != nil {
		return nil, errors.Wrap(err, "reading embedded examples")
	}

	var examples []Example
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}

		name := strings.TrimSuffix(entry.Name(), ".yaml")
		examples = append(examples, Example{
			Name:        name,
			Description: describe(entry.Name()),
			FilePath:    entry.Name(),
		})
	}

	return examples, nil
}

// Get returns the content of an example by name.
func Get(name string) ([]byte, error) {
	content, err := embeddedFS.ReadFile(name + ".yaml")
	if err != nil {
		return nil, &errors.NotFoundError{Resource: "example", ID: name}
	}
	return content, nil
}

// Exists reports whether an example with the given name is embedded.
func Exists(name string) bool {
	_, err := embeddedFS.ReadFile(name + ".yaml")
	return err == nil
}

// CopyTo writes an example to the filesystem at the given destination.
func CopyTo(name string, destPath string) error {
	content, err := Get(name)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return errors.Wrap(err, "creating destination directory")
	}
	if err := os.WriteFile(destPath, content, 0o644); err != nil {
		return errors.Wrap(err, "writing example file")
	}
	return nil
}

// describe pulls the flow description out of the embedded config.
func describe(filename string) string {
	data, err := embeddedFS.ReadFile(filename)
	if err != nil {
		return ""
	}
	cfg, err := config.Parse(data)
	if err != nil {
		return ""
	}
	return cfg.Flow.Description
}

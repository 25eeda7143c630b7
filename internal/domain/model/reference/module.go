// Package reference holds the read-only corpus of supporting material
// that stages draw on. The corpus is loaded once at process start and
// never mutated by the core.
package reference

import (
	"fmt"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Module is a named unit of supporting material
type Module struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Keywords    []string `yaml:"keywords"`
	Size        int      `yaml:"size"` // Approximate content size in bytes
}

// Corpus is an ordered set of reference modules. Declaration order is
// significant: it breaks score ties during selection.
type Corpus []Module

// manifest is the on-disk shape of a corpus file
type manifest struct {
	Modules []Module `yaml:"modules"`
}

// LoadCorpus reads a corpus manifest from the given path. A missing file
// is not an error; callers fall back to the built-in corpus.
func LoadCorpus(fs afero.Fs, path string) (Corpus, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("read corpus manifest: %w", err)
	}
	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse corpus manifest: %w", err)
	}
	for i, mod := range m.Modules {
		if mod.Name == "" {
			return nil, fmt.Errorf("corpus manifest: module %d has no name", i)
		}
	}
	return Corpus(m.Modules), nil
}

// DefaultCorpus returns the built-in reference corpus used when no
// manifest is present under etc/.
func DefaultCorpus() Corpus {
	return Corpus{
		{Name: "project-layout", Description: "mapping source trees entry points and package layout", Keywords: []string{"layout", "structure", "directories", "project"}, Size: 4096},
		{Name: "conventions", Description: "naming style and code convention guidance", Keywords: []string{"style", "naming", "conventions", "idiomatic"}, Size: 3072},
		{Name: "planning", Description: "decomposing work into ordered minimal change plans", Keywords: []string{"plan", "scope", "tasks", "strategy"}, Size: 2048},
		{Name: "architecture", Description: "recognizing architecture kinds and module boundaries", Keywords: []string{"architecture", "modules", "dependencies", "boundaries"}, Size: 5120},
		{Name: "codegen", Description: "generating code that fits an existing codebase", Keywords: []string{"generate", "implement", "code", "diff"}, Size: 6144},
		{Name: "debugging", Description: "diagnosing defects from errors stack traces and logs", Keywords: []string{"debug", "error", "crash", "trace", "fix"}, Size: 4096},
		{Name: "testing", Description: "writing and running tests builds and verification checks", Keywords: []string{"test", "verify", "build", "coverage"}, Size: 4096},
		{Name: "review", Description: "reviewing changes for correctness and edge cases", Keywords: []string{"review", "audit", "inspect", "findings"}, Size: 2048},
		{Name: "release", Description: "release steps versioning and publishing artifacts", Keywords: []string{"release", "deploy", "publish", "version"}, Size: 3072},
	}
}

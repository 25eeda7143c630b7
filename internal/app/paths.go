package app

import (
	"os"
	"path/filepath"
)

// Paths holds all resolved paths under the vibecode home directory
type Paths struct {
	Home      string // .vibecode directory
	Etc       string // .vibecode/etc
	Var       string // .vibecode/var
	Artifacts string // .vibecode/var/artifacts
	Approvals string // .vibecode/var/approvals

	// Key files
	Setting  string // .vibecode/etc/setting.yaml
	Corpus   string // .vibecode/etc/corpus.yaml
	StateDB  string // .vibecode/var/state.db
	AuditLog string // .vibecode/var/audit.ndjson
}

// ResolvePaths returns all paths based on the VIBE_HOME environment
// variable, defaulting to .vibecode in the working directory.
func ResolvePaths() Paths {
	home := os.Getenv("VIBE_HOME")
	if home == "" {
		home = ".vibecode"
	}
	return ResolvePathsFrom(home)
}

// ResolvePathsFrom builds the path set rooted at an explicit home
func ResolvePathsFrom(home string) Paths {
	p := Paths{
		Home: home,
		Etc:  filepath.Join(home, "etc"),
		Var:  filepath.Join(home, "var"),
	}

	p.Artifacts = filepath.Join(p.Var, "artifacts")
	p.Approvals = filepath.Join(p.Var, "approvals")

	p.Setting = filepath.Join(p.Etc, "setting.yaml")
	p.Corpus = filepath.Join(p.Etc, "corpus.yaml")
	p.StateDB = filepath.Join(p.Var, "state.db")
	p.AuditLog = filepath.Join(p.Var, "audit.ndjson")

	return p
}

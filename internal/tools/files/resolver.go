// Package files exposes workspace filesystem access to agents. Every tool
// resolves paths through Resolver so nothing can reach outside the
// configured root.
package files

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/hearthd/hearth/internal/fault"
)

// Resolver resolves and validates workspace-relative paths.
type Resolver struct {
	Root string
}

// Resolve returns an absolute, cleaned path within the workspace root.
// Absolute inputs are allowed only when they stay under the root.
func (r Resolver) Resolve(path string) (string, error) {
	clean := strings.TrimSpace(path)
	if clean == "" {
		return "", fault.New(fault.InvalidInput, "path is required")
	}
	root := strings.TrimSpace(r.Root)
	if root == "" {
		root = "."
	}
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", fault.Wrap(fault.Internal, err, "resolve workspace root")
	}
	var target string
	if filepath.IsAbs(clean) {
		target = filepath.Clean(clean)
	} else {
		target = filepath.Join(rootAbs, clean)
	}
	targetAbs, err := filepath.Abs(target)
	if err != nil {
		return "", fault.Wrap(fault.InvalidInput, err, "resolve path")
	}
	rel, err := filepath.Rel(rootAbs, targetAbs)
	if err != nil {
		return "", fault.Wrap(fault.InvalidInput, err, "resolve path")
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", fault.New(fault.InvalidInput, "path escapes workspace")
	}
	return targetAbs, nil
}

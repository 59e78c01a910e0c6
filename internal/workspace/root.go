package workspace

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"github.com/AlexRogalskiy/turborepo/internal/config"
)

// ErrNoRepoRoot is returned when no turbo configuration is found.
var ErrNoRepoRoot = errors.New("turbo.json not found: not a turbo repository (or any parent up to the root)")

// FindRootFrom walks up from startDir until it finds a turbo.json (or
// turbo.yaml). If none exists, the nearest package.json carrying a legacy
// "turbo" key marks the root.
func FindRootFrom(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	legacyRoot := ""
	for {
		if _, ok := config.FindConfigFile(dir); ok {
			return dir, nil
		}
		if legacyRoot == "" && hasLegacyConfig(dir) {
			legacyRoot = dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			if legacyRoot != "" {
				return legacyRoot, nil
			}
			return "", ErrNoRepoRoot
		}
		dir = parent
	}
}

func hasLegacyConfig(dir string) bool {
	data, err := os.ReadFile(filepath.Join(dir, "package.json"))
	if err != nil {
		return false
	}
	var pkg map[string]json.RawMessage
	if err := json.Unmarshal(data, &pkg); err != nil {
		return false
	}
	_, ok := pkg["turbo"]
	return ok
}

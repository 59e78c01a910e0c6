package workspace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// PackageJSON represents the relevant parts of a package.json file.
type PackageJSON struct {
	Name                 string            `json:"name"`
	Scripts              map[string]string `json:"scripts"`
	Dependencies         map[string]string `json:"dependencies"`
	DevDependencies      map[string]string `json:"devDependencies"`
	PeerDependencies     map[string]string `json:"peerDependencies"`
	OptionalDependencies map[string]string `json:"optionalDependencies"`
	Workspaces           Workspaces        `json:"workspaces"`
}

// Workspaces holds the workspace globs of a root package.json. Both the
// array form and the {"packages": [...]} object form are accepted.
type Workspaces []string

// UnmarshalJSON implements json.Unmarshaler.
func (w *Workspaces) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*w = list
		return nil
	}
	var obj struct {
		Packages []string `json:"packages"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("workspaces must be an array or an object with a packages array")
	}
	*w = obj.Packages
	return nil
}

// AllDependencies returns the sorted, de-duplicated names of every declared
// dependency, regardless of kind.
func (p *PackageJSON) AllDependencies() []string {
	seen := make(map[string]bool)
	for _, m := range []map[string]string{p.Dependencies, p.DevDependencies, p.PeerDependencies, p.OptionalDependencies} {
		for name := range m {
			seen[name] = true
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// packageJSONCache provides thread-safe caching of parsed package.json files.
// turbo is a short-lived process, so the cache is unbounded.
var packageJSONCache = struct {
	sync.RWMutex
	data map[string]*PackageJSON
}{
	data: make(map[string]*PackageJSON),
}

// ReadPackageJSON loads and caches the package.json at path.
func ReadPackageJSON(path string) (*PackageJSON, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	packageJSONCache.RLock()
	if pkg, ok := packageJSONCache.data[absPath]; ok {
		packageJSONCache.RUnlock()
		return pkg, nil
	}
	packageJSONCache.RUnlock()

	loaded, err := loadPackageJSONFromDisk(absPath)
	if err != nil {
		return nil, err
	}

	// Another goroutine may have populated the cache while we were loading.
	packageJSONCache.Lock()
	defer packageJSONCache.Unlock()
	if cached, ok := packageJSONCache.data[absPath]; ok {
		return cached, nil
	}
	packageJSONCache.data[absPath] = loaded
	return loaded, nil
}

func loadPackageJSONFromDisk(absPath string) (*PackageJSON, error) {
	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, err
	}

	var pkg PackageJSON
	if err := json.Unmarshal(data, &pkg); err != nil {
		return nil, fmt.Errorf("%s: %w", absPath, err)
	}
	return &pkg, nil
}

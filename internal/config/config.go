package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/AlexRogalskiy/turborepo/internal/schema"
)

// Load reads and parses a turbo.json (or turbo.yaml) document.
func Load(path string) (*TurboJSON, error) {
	data, err := readDocument(path)
	if err != nil {
		return nil, err
	}

	var cfg TurboJSON
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &cfg, nil
}

// LoadAndValidate reads a pipeline document, checks it against the schema,
// applies defaults, validates it, and returns warnings for ignored content.
func LoadAndValidate(path string) (*TurboJSON, []string, error) {
	data, err := readDocument(path)
	if err != nil {
		return nil, nil, err
	}
	return parseAndValidate(data)
}

func parseAndValidate(data []byte) (*TurboJSON, []string, error) {
	if err := schema.ValidateTurbo(data); err != nil {
		return nil, nil, err
	}

	cfg, warnings, err := LoadWithWarnings(data)
	if err != nil {
		return nil, nil, err
	}

	applyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, warnings, err
	}

	return cfg, warnings, nil
}

// FindConfigFile returns the first pipeline document found in rootDir.
func FindConfigFile(rootDir string) (string, bool) {
	for _, name := range ConfigFileNames {
		path := filepath.Join(rootDir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, true
		}
	}
	return "", false
}

// ReadTurboConfig loads the pipeline for the repository at rootDir.
//
// A turbo.json (or turbo.yaml) file wins. Without one, the legacy "turbo"
// key of the root package.json is used and a migration warning is returned.
func ReadTurboConfig(rootDir string) (*TurboJSON, []string, error) {
	legacy, err := readLegacyConfig(filepath.Join(rootDir, "package.json"))
	if err != nil {
		return nil, nil, err
	}

	path, ok := FindConfigFile(rootDir)
	if !ok {
		if legacy == nil {
			return nil, nil, fmt.Errorf("could not find turbo.json in %s", rootDir)
		}
		cfg, warnings, err := parseAndValidate(legacy)
		if err != nil {
			return nil, warnings, fmt.Errorf("package.json#turbo: %w", err)
		}
		warnings = append(warnings, `turbo configuration now lives in "turbo.json"; migrate the "turbo" key of package.json`)
		return cfg, warnings, nil
	}

	cfg, warnings, err := LoadAndValidate(path)
	if err != nil {
		return nil, warnings, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	if legacy != nil {
		warnings = append(warnings, `ignoring legacy "turbo" key in package.json, using `+filepath.Base(path)+` instead`)
	}
	return cfg, warnings, nil
}

// readDocument returns the document at path as JSON bytes, converting YAML
// documents by extension.
func readDocument(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yamlToJSON(data)
	default:
		return data, nil
	}
}

func yamlToJSON(data []byte) ([]byte, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if doc == nil {
		doc = map[string]any{}
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to convert config file: %w", err)
	}
	return out, nil
}

// readLegacyConfig returns the raw "turbo" key of a package.json, or nil.
func readLegacyConfig(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read package.json: %w", err)
	}

	var pkg struct {
		Turbo json.RawMessage `json:"turbo"`
	}
	if err := json.Unmarshal(data, &pkg); err != nil {
		return nil, fmt.Errorf("failed to parse package.json: %w", err)
	}
	if len(pkg.Turbo) == 0 || string(pkg.Turbo) == "null" {
		return nil, nil
	}
	return pkg.Turbo, nil
}

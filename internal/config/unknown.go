package config

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// LoadWithWarnings parses a JSON document and returns any unknown field warnings.
func LoadWithWarnings(data []byte) (*TurboJSON, []string, error) {
	var cfg TurboJSON
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	warnings := detectUnknownFields(data)

	return &cfg, warnings, nil
}

// detectUnknownFields compares raw JSON with known struct fields.
func detectUnknownFields(data []byte) []string {
	var warnings []string

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return []string{"internal: failed to re-parse config for unknown field detection"}
	}

	knownTopLevel := getJSONFields(reflect.TypeOf(TurboJSON{}))
	for _, key := range sortedKeys(raw) {
		if !knownTopLevel[key] {
			warnings = append(warnings, fmt.Sprintf("unknown field %q at root level (ignored)", key))
		}
	}

	if pipelineRaw, ok := raw["pipeline"]; ok {
		warnings = append(warnings, checkPipelineUnknownFields(pipelineRaw)...)
	}

	return warnings
}

func checkPipelineUnknownFields(data json.RawMessage) []string {
	var warnings []string

	var entries map[string]json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return []string{"internal: failed to re-parse pipeline for unknown field detection"}
	}

	knownEntryFields := getJSONFields(reflect.TypeOf(PipelineJSON{}))
	for _, taskName := range sortedKeys(entries) {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(entries[taskName], &fields); err != nil {
			continue
		}
		for _, key := range sortedKeys(fields) {
			if !knownEntryFields[key] {
				warnings = append(warnings, fmt.Sprintf("unknown field %q in pipeline task %q (ignored)", key, taskName))
			}
		}
	}

	return warnings
}

// getJSONFields returns a map of known JSON field names for a struct type.
func getJSONFields(t reflect.Type) map[string]bool {
	fields := make(map[string]bool)
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("json")
		if tag == "" || tag == "-" {
			continue
		}
		name := strings.Split(tag, ",")[0]
		if name != "" {
			fields[name] = true
		}
	}
	return fields
}

func sortedKeys(m map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

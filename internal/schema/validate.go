// Package schema provides JSON schema validation for turbo.json documents.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	schemafs "github.com/AlexRogalskiy/turborepo/schema"
)

const turboSchemaFile = "turbo.schema.json"

var (
	turboSchema *jsonschema.Schema
	compileOnce sync.Once
	compileErr  error
)

// compileSchemas compiles the embedded schema once.
func compileSchemas() error {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()

		data, err := schemafs.FS.ReadFile(turboSchemaFile)
		if err != nil {
			compileErr = fmt.Errorf("read turbo schema: %w", err)
			return
		}

		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
		if err != nil {
			compileErr = fmt.Errorf("unmarshal turbo schema: %w", err)
			return
		}

		if err := compiler.AddResource(turboSchemaFile, doc); err != nil {
			compileErr = fmt.Errorf("add turbo schema resource: %w", err)
			return
		}

		turboSchema, err = compiler.Compile(turboSchemaFile)
		if err != nil {
			compileErr = fmt.Errorf("compile turbo schema: %w", err)
			return
		}
	})

	return compileErr
}

// ValidateTurbo validates JSON data against the turbo.json schema.
func ValidateTurbo(data []byte) error {
	if err := compileSchemas(); err != nil {
		return err
	}

	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	if err := turboSchema.Validate(v); err != nil {
		return fmt.Errorf("turbo.json validation failed: %w", err)
	}

	return nil
}

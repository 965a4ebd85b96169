// Package collection stores per-test coverage collections and merges them
// into the run's coverage document.
package collection

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	schemafs "github.com/felixgeelhaar/dcov/internal/infrastructure/collection/schema"
)

const schemaName = "collection.schema.json"

var (
	collectionSchema *jsonschema.Schema
	compileOnce      sync.Once
	compileErr       error
)

func compileSchema() error {
	compileOnce.Do(func() {
		data, err := schemafs.FS.ReadFile(schemaName)
		if err != nil {
			compileErr = fmt.Errorf("read collection schema: %w", err)
			return
		}
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
		if err != nil {
			compileErr = fmt.Errorf("unmarshal collection schema: %w", err)
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(schemaName, doc); err != nil {
			compileErr = fmt.Errorf("add collection schema resource: %w", err)
			return
		}
		collectionSchema, err = compiler.Compile(schemaName)
		if err != nil {
			compileErr = fmt.Errorf("compile collection schema: %w", err)
		}
	})
	return compileErr
}

// Validate checks data against the collection schema.
func Validate(data []byte) error {
	if err := compileSchema(); err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := collectionSchema.Validate(v); err != nil {
		return fmt.Errorf("collection validation failed: %w", err)
	}
	return nil
}

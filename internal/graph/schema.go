package graph

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/danshapiro/fxd/internal/fxerr"
)

// SchemaRegistry maps a node's type_tag to a JSON Schema its Value must
// satisfy. An unregistered type tag is purely advisory and is not
// validated.
type SchemaRegistry struct {
	mu      sync.RWMutex
	schemas map[string]*jsonschema.Schema
}

// NewSchemaRegistry returns an empty registry.
func NewSchemaRegistry() *SchemaRegistry {
	return &SchemaRegistry{schemas: make(map[string]*jsonschema.Schema)}
}

// Register compiles schemaJSON and binds it to typeTag. A later Set on any
// node carrying that type tag is validated against it.
func (r *SchemaRegistry) Register(typeTag string, schemaJSON []byte) error {
	compiler := jsonschema.NewCompiler()
	res := "fxd://" + typeTag + ".json"
	if err := compiler.AddResource(res, bytes.NewReader(schemaJSON)); err != nil {
		return fmt.Errorf("graph: compile schema for %q: %w", typeTag, err)
	}
	sch, err := compiler.Compile(res)
	if err != nil {
		return fmt.Errorf("graph: compile schema for %q: %w", typeTag, err)
	}
	r.mu.Lock()
	r.schemas[typeTag] = sch
	r.mu.Unlock()
	return nil
}

// Unregister removes any schema bound to typeTag.
func (r *SchemaRegistry) Unregister(typeTag string) {
	r.mu.Lock()
	delete(r.schemas, typeTag)
	r.mu.Unlock()
}

// Validate checks value against typeTag's registered schema, if any. A
// node with no registered schema for its type tag always validates.
func (r *SchemaRegistry) Validate(typeTag string, value Value) error {
	r.mu.RLock()
	sch, ok := r.schemas[typeTag]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	if err := sch.Validate(value.ToAny()); err != nil {
		return fmt.Errorf("graph: value rejected by %q schema: %w: %v", typeTag, fxerr.InvalidType, err)
	}
	return nil
}

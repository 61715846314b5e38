package fxdconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/danshapiro/fxd/internal/graph"
)

// RegisterSchemas reads each file named in cfg.Graph.SchemaPaths and
// registers it under the type tag derived from its basename (everything
// before the first '.'), e.g. "widget.schema.json" registers "widget".
func RegisterSchemas(cfg *Config, reg *graph.SchemaRegistry) error {
	for _, path := range cfg.Graph.SchemaPaths {
		b, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("fxdconfig: read schema %s: %w", path, err)
		}
		tag := typeTagFromSchemaPath(path)
		if err := reg.Register(tag, b); err != nil {
			return fmt.Errorf("fxdconfig: register schema %s: %w", path, err)
		}
	}
	return nil
}

func typeTagFromSchemaPath(path string) string {
	base := filepath.Base(path)
	if i := strings.IndexByte(base, '.'); i >= 0 {
		return base[:i]
	}
	return base
}

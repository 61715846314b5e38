package fxd

import (
	"context"
	"fmt"

	"github.com/danshapiro/fxd/internal/fxerr"
)

// Stats summarizes a `.fxd` file's contents: node, snippet, view, and
// group counts.
type Stats struct {
	Nodes    int
	Snippets int
	Views    int
	Groups   int
}

func (b *Backend) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	queries := []struct {
		table string
		dst   *int
	}{
		{"nodes", &s.Nodes},
		{"snippets", &s.Snippets},
		{"views", &s.Views},
		{"groups", &s.Groups},
	}
	for _, q := range queries {
		row := b.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+q.table)
		if err := row.Scan(q.dst); err != nil {
			return Stats{}, fmt.Errorf("fxd: count %s: %w", q.table, fxerr.IOFailure)
		}
	}
	return s, nil
}

package fxd

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/danshapiro/fxd/internal/fxerr"
)

// ValidateIntegrity runs SQLite's foreign-key checker over every declared
// reference (nodes.parent_id, node_values/node_meta/group_items/markers
// .node_id, views/group_items.group_path) and reports every violation it
// finds: foreign-key checks and orphan detection.
func (b *Backend) ValidateIntegrity(ctx context.Context) error {
	rows, err := b.db.QueryContext(ctx, `PRAGMA foreign_key_check`)
	if err != nil {
		return fmt.Errorf("fxd: foreign_key_check: %w", fxerr.IOFailure)
	}
	defer rows.Close()

	var problems []string
	for rows.Next() {
		var table string
		var rowID sql.NullInt64
		var refTable string
		var fkIndex int
		if err := rows.Scan(&table, &rowID, &refTable, &fkIndex); err != nil {
			return fmt.Errorf("fxd: scan foreign_key_check row: %w", fxerr.IOFailure)
		}
		problems = append(problems, fmt.Sprintf("%s -> %s (fk #%d)", table, refTable, fkIndex))
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("fxd: iterate foreign_key_check: %w", fxerr.IOFailure)
	}
	if len(problems) > 0 {
		return fmt.Errorf("fxd: %w: %s", fxerr.CorruptRecord, strings.Join(problems, "; "))
	}
	return nil
}

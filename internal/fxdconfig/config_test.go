package fxdconfig

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestLoadFileAppliesDefaults(t *testing.T) {
	path := writeTempConfig(t, "fxd.yaml", `
version: 1
persistence:
  fxd_path: /tmp/project.fxd
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Persistence.WalPath != "/tmp/project.fxwal" {
		t.Fatalf("expected derived wal path, got %q", cfg.Persistence.WalPath)
	}
	if cfg.Markers.DefaultLang != "js" {
		t.Fatalf("expected default marker lang js, got %q", cfg.Markers.DefaultLang)
	}
	if cfg.Markers.HoistImports == nil || !*cfg.Markers.HoistImports {
		t.Fatalf("expected hoist_imports to default true")
	}
	if cfg.Persistence.AutoCheckpointRecords == nil || *cfg.Persistence.AutoCheckpointRecords != 500 {
		t.Fatalf("expected default auto_checkpoint_records 500, got %+v", cfg.Persistence.AutoCheckpointRecords)
	}
}

func TestLoadFileJSON(t *testing.T) {
	path := writeTempConfig(t, "fxd.json", `{
  "version": 1,
  "persistence": {"fxd_path": "./graph.fxd", "wal_path": "./graph.fxwal"},
  "markers": {"default_lang": "py"}
}`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Markers.DefaultLang != "py" {
		t.Fatalf("expected explicit default_lang to survive, got %q", cfg.Markers.DefaultLang)
	}
	if cfg.Persistence.WalPath != "./graph.fxwal" {
		t.Fatalf("expected explicit wal_path to survive, got %q", cfg.Persistence.WalPath)
	}
}

func TestLoadFileRejectsUnknownFields(t *testing.T) {
	path := writeTempConfig(t, "fxd.yaml", `
version: 1
persistence:
  fxd_path: ./graph.fxd
bogus_field: true
`)
	if _, err := LoadFile(path); err == nil {
		t.Fatalf("expected strict decode to reject unknown field")
	}
}

func TestLoadFileRejectsMissingFxdPath(t *testing.T) {
	path := writeTempConfig(t, "fxd.yaml", `
version: 1
persistence: {}
`)
	if _, err := LoadFile(path); err == nil {
		t.Fatalf("expected validation error for missing persistence.fxd_path")
	}
}

func TestLoadFileRejectsUnsupportedVersion(t *testing.T) {
	path := writeTempConfig(t, "fxd.yaml", `
version: 2
persistence:
  fxd_path: ./graph.fxd
`)
	if _, err := LoadFile(path); err == nil {
		t.Fatalf("expected validation error for unsupported version")
	}
}

func TestLoadFileRejectsNegativeCheckpointInterval(t *testing.T) {
	path := writeTempConfig(t, "fxd.yaml", `
version: 1
persistence:
  fxd_path: ./graph.fxd
  auto_checkpoint_records: -1
`)
	if _, err := LoadFile(path); err == nil {
		t.Fatalf("expected validation error for negative auto_checkpoint_records")
	}
}

func TestLoadFileRejectsTrailingYAMLDocument(t *testing.T) {
	path := writeTempConfig(t, "fxd.yaml", `
version: 1
persistence:
  fxd_path: ./graph.fxd
---
version: 1
persistence:
  fxd_path: ./other.fxd
`)
	if _, err := LoadFile(path); err == nil {
		t.Fatalf("expected strict decode to reject a trailing YAML document")
	}
}

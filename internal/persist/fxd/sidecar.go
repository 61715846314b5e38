package fxd

import "os"

// removeSidecarFiles best-effort removes the journal/WAL files SQLite may
// leave next to path.
func removeSidecarFiles(path string) {
	for _, suffix := range []string{"-journal", "-wal", "-shm"} {
		_ = os.Remove(path + suffix) // ignore error
	}
}

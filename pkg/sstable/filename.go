package sstable

import (
	"fmt"
	"path/filepath"
)

// TableFileName returns the canonical name for table file number in dir.
func TableFileName(dir string, number uint64) string {
	return filepath.Join(dir, fmt.Sprintf("%06d.ldb", number))
}

// SSTTableFileName returns the legacy name, still readable for tables
// written before the rename.
func SSTTableFileName(dir string, number uint64) string {
	return filepath.Join(dir, fmt.Sprintf("%06d.sst", number))
}

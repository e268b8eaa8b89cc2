// Package sstable implements the immutable sorted table file: the block
// codec with restart-point prefix compression, the filter block, the table
// builder and reader, and the table cache that keeps hot tables open.
package sstable

import (
	"errors"
	"fmt"
)

// Sentinel errors classifying every failure this package surfaces.
var (
	// ErrCorruption covers CRC mismatches, bad varints, inconsistent
	// handles, and a bad footer magic.
	ErrCorruption = errors.New("corruption")

	// ErrInvalidArgument covers builder misuse, such as adding keys out
	// of order.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotFound is returned by point reads that find nothing.
	ErrNotFound = errors.New("not found")

	// ErrBuilderClosed is returned by Add/Flush after Finish or Abandon.
	ErrBuilderClosed = errors.New("builder closed")
)

// TableError carries structured context for a failed table operation.
type TableError struct {
	Op      string // operation that failed, e.g. "Open", "ReadBlock"
	File    string // file name or number, if known
	Context string // extra detail
	Cause   error  // sentinel or underlying I/O error
}

// Error implements the error interface.
func (e *TableError) Error() string {
	switch {
	case e.File != "" && e.Context != "":
		return fmt.Sprintf("sstable %s %s (%s): %v", e.Op, e.File, e.Context, e.Cause)
	case e.File != "":
		return fmt.Sprintf("sstable %s %s: %v", e.Op, e.File, e.Cause)
	case e.Context != "":
		return fmt.Sprintf("sstable %s (%s): %v", e.Op, e.Context, e.Cause)
	}
	return fmt.Sprintf("sstable %s: %v", e.Op, e.Cause)
}

// Unwrap exposes the cause for errors.Is chains.
func (e *TableError) Unwrap() error { return e.Cause }

func corruptionErr(op, context string) error {
	return &TableError{Op: op, Context: context, Cause: ErrCorruption}
}

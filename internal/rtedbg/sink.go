package rtedbg

import (
	"os"

	rsperr "github.com/tturner/rtegdb/internal/errors"
)

// SnapshotWriter stores a complete copy of the logging structure.
type SnapshotWriter interface {
	WriteSnapshot(data []byte) error
}

// FileSink truncates and rewrites Path with every snapshot.
type FileSink struct {
	Path string
}

func (f FileSink) WriteSnapshot(data []byte) error {
	if f.Path == "" {
		return rsperr.New(rsperr.KindStorage, "snapshot file name is empty")
	}
	if err := os.WriteFile(f.Path, data, 0o644); err != nil {
		return rsperr.Wrap(rsperr.KindStorage, err)
	}
	return nil
}

// SnapshotFunc adapts a function to SnapshotWriter.
type SnapshotFunc func(data []byte) error

func (f SnapshotFunc) WriteSnapshot(data []byte) error { return f(data) }

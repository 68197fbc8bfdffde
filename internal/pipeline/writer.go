package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrLocked means another run holds the output lock.
var ErrLocked = errors.New("outputs are locked by another run")

type Output struct {
	Path string
	Data []byte
}

// Writer persists rendered documents. It is the only component that touches
// the output files.
type Writer interface {
	Write(ctx context.Context, outs []Output) (written []string, err error)
}

// FileWriter writes every output to "<path>.tmp" and renames it into place
// once all temporaries are on disk. Byte-identical files are left alone.
type FileWriter struct {
	// LockPath defaults to "<first output>.lock".
	LockPath string
}

func (w FileWriter) Write(ctx context.Context, outs []Output) ([]string, error) {
	if len(outs) == 0 {
		return nil, nil
	}
	lockPath := w.LockPath
	if lockPath == "" {
		lockPath = outs[0].Path + ".lock"
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, err
	}

	lk := flock.New(lockPath)
	ok, err := lk.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", lockPath, err)
	}
	if !ok {
		return nil, ErrLocked
	}
	defer func() { _ = lk.Unlock() }()

	var pending []Output
	for _, o := range outs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		same, err := unchanged(o)
		if err != nil {
			return nil, err
		}
		if same {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(o.Path), 0o755); err != nil {
			return nil, err
		}
		if err := os.WriteFile(o.Path+".tmp", o.Data, 0o644); err != nil {
			cleanup(append(pending, o))
			return nil, err
		}
		pending = append(pending, o)
	}

	var written []string
	for i, o := range pending {
		if err := os.Rename(o.Path+".tmp", o.Path); err != nil {
			cleanup(pending[i:])
			return written, err
		}
		written = append(written, o.Path)
	}
	return written, nil
}

func unchanged(o Output) (bool, error) {
	cur, err := os.ReadFile(o.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return bytes.Equal(cur, o.Data), nil
}

func cleanup(outs []Output) {
	for _, o := range outs {
		_ = os.Remove(o.Path + ".tmp")
	}
}

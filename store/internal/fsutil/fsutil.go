// Package fsutil contains filesystem helpers shared by the file based
// backends.
package fsutil

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/mandelsoft/vfs/pkg/vfs"

	"go.hackfix.me/stash/store"
)

const tempSuffix = ".tmp"

// WriteFile atomically replaces the file at path with the data written by
// fn. The data is written to a temporary file in the same directory, which is
// renamed over path only if fn succeeds, so readers never observe a partially
// written file. A panic in fn is returned as an error, and the temporary file
// is removed.
func WriteFile(fs vfs.FileSystem, path string, perm os.FileMode, fn func(w io.Writer) error) error {
	dir, base := filepath.Split(path)
	tmp := filepath.Join(dir, fmt.Sprintf(".%s.%s%s", base, uuid.NewString(), tempSuffix))

	f, err := fs.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("failed creating temporary file: %w", err)
	}

	err = store.Catch(func() error {
		bw := bufio.NewWriter(f)
		if err := fn(bw); err != nil {
			return err
		}
		if err := bw.Flush(); err != nil {
			return err
		}
		return f.Sync()
	})
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = fs.Remove(tmp)
		return err
	}

	err = fs.Rename(tmp, path)
	if errors.Is(err, os.ErrExist) {
		// Some filesystems refuse to rename over an existing file.
		if err = fs.Remove(path); err == nil {
			err = fs.Rename(tmp, path)
		}
	}
	if err != nil {
		_ = fs.Remove(tmp)
		return fmt.Errorf("failed replacing file: %w", err)
	}

	return nil
}

// IsTemp reports whether name is a temporary file created by WriteFile.
func IsTemp(name string) bool {
	return strings.HasPrefix(name, ".") && strings.HasSuffix(name, tempSuffix)
}

// AsyncWriter runs writes in the background, one at a time. Each write has a
// completion signal that later writes, and Wait, block on.
type AsyncWriter struct {
	mx   sync.Mutex
	last *flight
}

type flight struct {
	done chan struct{}
	err  error
}

// Go waits for the previous write to complete, and runs fn in a new
// goroutine. A panic in fn is returned as its error.
func (w *AsyncWriter) Go(fn func() error) {
	w.mx.Lock()
	defer w.mx.Unlock()

	if w.last != nil {
		<-w.last.done
	}

	f := &flight{done: make(chan struct{})}
	w.last = f
	go func() {
		defer close(f.done)
		f.err = store.Catch(fn)
	}()
}

// Wait blocks until the last started write completes, and returns its error.
func (w *AsyncWriter) Wait() error {
	w.mx.Lock()
	f := w.last
	w.mx.Unlock()

	if f == nil {
		return nil
	}
	<-f.done

	return f.err
}

// Pending reports whether a write is in flight.
func (w *AsyncWriter) Pending() bool {
	w.mx.Lock()
	f := w.last
	w.mx.Unlock()

	if f == nil {
		return false
	}
	select {
	case <-f.done:
		return false
	default:
		return true
	}
}

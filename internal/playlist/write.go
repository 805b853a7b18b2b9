package playlist

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// WriteError reports a failed playlist write. Op is the step that failed.
type WriteError struct {
	Path string
	Op   string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write playlist %s: %s: %v", e.Path, e.Op, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Stdout is the path that makes Write print the playlist instead of saving it.
const Stdout = "-"

// Write replaces path with data using a temp file in the same directory and a
// rename, so a reader never sees a partial playlist and a failed run leaves the
// previous file untouched.
func Write(path string, data []byte) error {
	if path == Stdout {
		return writeTo(os.Stdout, path, data)
	}
	path = filepath.Clean(path)
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".playlist-*.m3u.tmp")
	if err != nil {
		return &WriteError{Path: path, Op: "create temp", Err: err}
	}
	tmpName := tmp.Name()
	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()
	if writeErr != nil || closeErr != nil {
		os.Remove(tmpName)
		if writeErr != nil {
			return &WriteError{Path: path, Op: "write", Err: writeErr}
		}
		return &WriteError{Path: path, Op: "close", Err: closeErr}
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return &WriteError{Path: path, Op: "chmod", Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return &WriteError{Path: path, Op: "rename", Err: err}
	}
	return nil
}

func writeTo(w io.Writer, path string, data []byte) error {
	if _, err := w.Write(data); err != nil {
		return &WriteError{Path: path, Op: "write", Err: err}
	}
	return nil
}

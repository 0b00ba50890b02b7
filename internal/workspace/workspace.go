// Package workspace names and writes the files a run needs: submitted
// sources under the temp directory and compiled binaries under the bin
// directory. Names are sequence numbers and are never reused.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"

	pkgerrors "gdbc/pkg/errors"
)

const (
	DefaultTempDir = "./temp"
	DefaultBinDir  = "./bins"

	binaryExt = ".out"
	dirPerm   = 0755
	filePerm  = 0644
)

// Workspace allocates source and binary paths. It is safe for concurrent use.
type Workspace struct {
	tempDir string
	binDir  string
	sources atomic.Uint64
	bins    atomic.Uint64
}

// New creates both directories and resumes numbering after the highest
// file already present, so a restart does not overwrite earlier runs.
func New(tempDir, binDir string) (*Workspace, error) {
	if strings.TrimSpace(tempDir) == "" {
		tempDir = DefaultTempDir
	}
	if strings.TrimSpace(binDir) == "" {
		binDir = DefaultBinDir
	}
	var err error
	w := &Workspace{}
	if w.tempDir, err = prepareDir(tempDir); err != nil {
		return nil, err
	}
	if w.binDir, err = prepareDir(binDir); err != nil {
		return nil, err
	}
	w.sources.Store(highestSeq(w.tempDir))
	w.bins.Store(highestSeq(w.binDir))
	return w, nil
}

func prepareDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", pkgerrors.Wrapf(err, pkgerrors.WorkspaceInitFailed, "resolve %s failed", dir)
	}
	if err := os.MkdirAll(abs, dirPerm); err != nil {
		return "", pkgerrors.Wrapf(err, pkgerrors.WorkspaceInitFailed, "create %s failed", abs)
	}
	return abs, nil
}

// highestSeq returns the largest numeric file stem in dir, or 0.
func highestSeq(dir string) uint64 {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	var max uint64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		stem := strings.TrimSuffix(name, filepath.Ext(name))
		n, err := strconv.ParseUint(stem, 10, 64)
		if err == nil && n > max {
			max = n
		}
	}
	return max
}

// TempDir returns the absolute source directory.
func (w *Workspace) TempDir() string {
	return w.tempDir
}

// BinDir returns the absolute binary directory.
func (w *Workspace) BinDir() string {
	return w.binDir
}

// WriteSource stores code as <tempDir>/<n>.<ext> and returns its path.
func (w *Workspace) WriteSource(ext, code string) (string, error) {
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		return "", pkgerrors.ValidationError("ext", "required")
	}
	path := filepath.Join(w.tempDir, fmt.Sprintf("%d.%s", w.sources.Add(1), ext))
	if err := os.WriteFile(path, []byte(code), filePerm); err != nil {
		return "", pkgerrors.Wrap(err, pkgerrors.SourceWriteFailed)
	}
	return path, nil
}

// NextBinaryPath reserves <binDir>/<n>.out. The file itself is created by
// the compiler.
func (w *Workspace) NextBinaryPath() (string, error) {
	return filepath.Join(w.binDir, fmt.Sprintf("%d%s", w.bins.Add(1), binaryExt)), nil
}

package blocklist

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/haukened/rr-filter/internal/filter/common/log"
	"github.com/haukened/rr-filter/internal/filter/repos/blocklist/parsers"
)

// LoadFiles reads each path as a plain list. Files that are missing or
// unreadable become a Source with Err set so Build can skip and report them.
// The source name is the file's base name.
func LoadFiles(paths []string, logger log.Logger) []Source {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	out := make([]Source, 0, len(paths))
	for _, p := range paths {
		out = append(out, loadFile(p, logger))
	}
	return out
}

// Paths joins each file name onto dir. Absolute names are kept as-is.
func Paths(dir string, files []string) []string {
	out := make([]string, 0, len(files))
	for _, f := range files {
		if filepath.IsAbs(f) {
			out = append(out, f)
			continue
		}
		out = append(out, filepath.Join(dir, f))
	}
	return out
}

func loadFile(path string, logger log.Logger) Source {
	name := filepath.Base(path)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Warn(map[string]any{"file": path}, "FILE NOT FOUND")
		} else {
			logger.Warn(map[string]any{"file": path, "error": err}, "Failed to open blocklist file")
		}
		return Source{Name: name, Err: err}
	}
	defer func() { _ = f.Close() }()

	lines, err := parsers.ParsePlainList(f, name, logger)
	if err != nil {
		logger.Warn(map[string]any{"file": path, "error": err}, "Failed to read blocklist file")
		return Source{Name: name, Err: fmt.Errorf("read %s: %w", path, err)}
	}
	return Source{Name: name, Lines: lines}
}

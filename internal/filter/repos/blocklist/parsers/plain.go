package parsers

import (
	"bufio"
	"io"
	"strings"

	logpkg "github.com/haukened/rr-filter/internal/filter/common/log"
)

// MaxLineBytes bounds a single list line. Longer lines fail the scan.
const MaxLineBytes = 1 << 20

// ParsePlainList reads a newline-delimited list of block tokens.
//
// Behavior:
// - Strips a UTF-8 BOM from the first line and tolerates CRLF endings
// - Trims surrounding whitespace and skips blank lines
// - Keeps every other line verbatim, including ones starting with '#'
// - Does not lowercase or dedupe; the index does that across sources
func ParsePlainList(r io.Reader, source string, logger logpkg.Logger) ([]string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxLineBytes)

	out := make([]string, 0, 256)
	logger.Debug(map[string]any{"source": source}, "parse_plain_list_start")
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if lineNum == 1 {
			line = strings.TrimPrefix(line, "\uFEFF")
		}
		s := strings.TrimSpace(line)
		if s == "" {
			logger.Debug(map[string]any{"line": lineNum}, "skip_empty")
			continue
		}
		out = append(out, s)
	}

	if err := scanner.Err(); err != nil {
		logger.Debug(map[string]any{"source": source, "error": err.Error()}, "parse_plain_list_scan_error")
		return nil, err
	}
	logger.Debug(map[string]any{"source": source, "count": len(out)}, "parse_plain_list_done")
	return out, nil
}

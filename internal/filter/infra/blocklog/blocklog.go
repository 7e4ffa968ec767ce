// Package blocklog appends blocked URLs to a per-run text file without
// blocking the request path.
package blocklog

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/haukened/rr-filter/internal/filter/common/log"
)

const (
	// DefaultBuffer is the queue length used when Options.Buffer is 0.
	DefaultBuffer = 1024

	lineTimeLayout = "2006-01-02 15:04:05"
	fileTimeLayout = "20060102_150405"
)

// Recorder observes every blocked URL after it is written.
type Recorder interface {
	Record(url string, at time.Time) error
}

// Metrics counts write failures and dropped entries.
type Metrics interface {
	BlockLogWriteFailed()
	BlockLogDropped()
}

type nopMetrics struct{}

func (nopMetrics) BlockLogWriteFailed() {}
func (nopMetrics) BlockLogDropped()     {}

// Options tunes a Writer. The zero value is usable.
type Options struct {
	Buffer    int
	Logger    log.Logger
	Metrics   Metrics
	Recorders []Recorder
}

// WriteError reports a failed write to the block log file.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("block log %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

type entry struct {
	at  time.Time
	url string
}

// Writer owns one log file and a single goroutine draining a bounded queue
// into it.
type Writer struct {
	path      string
	file      *os.File
	sink      io.Writer
	buf       *bufio.Writer
	logger    log.Logger
	metrics   Metrics
	recorders []Recorder

	mu     sync.RWMutex
	closed bool
	queue  chan entry
	done   chan struct{}
	once   sync.Once
	err    error
}

// FileName returns the log file name for a run started at startedAt.
func FileName(startedAt time.Time) string {
	return "blocked_urls_" + startedAt.Format(fileTimeLayout) + ".log"
}

// FormatLine renders one log line, including the trailing newline.
func FormatLine(at time.Time, url string) string {
	return at.Format(lineTimeLayout) + " - Blocked: " + url + "\n"
}

// Open creates dir if needed and opens <dir>/blocked_urls_<startedAt>.log for
// appending.
func Open(dir string, startedAt time.Time, opts Options) (*Writer, error) {
	if opts.Buffer <= 0 {
		opts.Buffer = DefaultBuffer
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = nopMetrics{}
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &WriteError{Path: dir, Err: err}
	}
	path := filepath.Join(dir, FileName(startedAt))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, &WriteError{Path: path, Err: err}
	}

	w := &Writer{
		path:      path,
		file:      f,
		sink:      f,
		buf:       bufio.NewWriter(f),
		logger:    log.Component(opts.Logger, "blocklog"),
		metrics:   opts.Metrics,
		recorders: opts.Recorders,
		queue:     make(chan entry, opts.Buffer),
		done:      make(chan struct{}),
	}
	go w.run()
	return w, nil
}

// Path returns the file being written.
func (w *Writer) Path() string { return w.path }

// Append queues a blocked URL. It never blocks: when the queue is full or
// the writer is closed the entry is dropped and counted.
func (w *Writer) Append(at time.Time, url string) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		w.metrics.BlockLogDropped()
		return
	}
	select {
	case w.queue <- entry{at: at, url: url}:
	default:
		w.metrics.BlockLogDropped()
		w.logger.Warn(map[string]any{"url": url}, "Block log queue full, entry dropped")
	}
}

func (w *Writer) run() {
	defer close(w.done)
	for e := range w.queue {
		w.write(e)
		if len(w.queue) == 0 {
			w.flush()
		}
	}
	w.flush()
}

func (w *Writer) write(e entry) {
	if _, err := w.buf.WriteString(FormatLine(e.at, e.url)); err != nil {
		w.fail(err)
	}
	for _, r := range w.recorders {
		if err := r.Record(e.url, e.at); err != nil {
			w.logger.Warn(map[string]any{"url": e.url, "error": err}, "Block recorder failed")
		}
	}
}

func (w *Writer) flush() {
	if err := w.buf.Flush(); err != nil {
		w.fail(err)
	}
}

// fail reports err and discards the buffer. bufio.Writer keeps its first
// error, so without the reset every later entry would be lost too.
func (w *Writer) fail(err error) {
	w.buf.Reset(w.sink)
	werr := &WriteError{Path: w.path, Err: err}
	w.metrics.BlockLogWriteFailed()
	w.logger.Warn(map[string]any{"error": werr}, "Block log write failed")
}

// Close stops accepting entries, drains the queue, syncs and closes the
// file. It is safe to call more than once.
func (w *Writer) Close() error {
	w.once.Do(func() {
		w.mu.Lock()
		w.closed = true
		close(w.queue)
		w.mu.Unlock()

		<-w.done
		if err := w.file.Sync(); err != nil {
			w.err = &WriteError{Path: w.path, Err: err}
		}
		if err := w.file.Close(); err != nil && w.err == nil {
			w.err = &WriteError{Path: w.path, Err: err}
		}
	})
	return w.err
}

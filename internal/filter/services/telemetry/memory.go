package telemetry

import (
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/haukened/rr-filter/internal/filter/common/log"
)

// MemorySnapshot is a point-in-time view of process memory, in bytes.
type MemorySnapshot struct {
	Label      string
	HeapAlloc  uint64
	HeapInuse  uint64
	Sys        uint64
	RSS        uint64 // 0 when the platform does not expose it
	Goroutines int
	NumGC      uint32
}

// MemoryProfiler logs MemorySnapshots.
type MemoryProfiler struct {
	logger log.Logger
	// readRSS is swapped in tests.
	readRSS func() uint64
}

// NewMemoryProfiler returns a profiler that logs through logger.
func NewMemoryProfiler(logger log.Logger) *MemoryProfiler {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &MemoryProfiler{logger: logger, readRSS: statmRSS}
}

// Snapshot reads runtime memory stats, logs them under label and returns them.
func (p *MemoryProfiler) Snapshot(label string) MemorySnapshot {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	snap := MemorySnapshot{
		Label:      label,
		HeapAlloc:  ms.HeapAlloc,
		HeapInuse:  ms.HeapInuse,
		Sys:        ms.Sys,
		RSS:        p.readRSS(),
		Goroutines: runtime.NumGoroutine(),
		NumGC:      ms.NumGC,
	}
	p.logger.Info(map[string]any{
		"label":      label,
		"heap_alloc": snap.HeapAlloc,
		"heap_inuse": snap.HeapInuse,
		"heap_human": humanBytes(snap.HeapAlloc),
		"sys":        snap.Sys,
		"rss":        snap.RSS,
		"goroutines": snap.Goroutines,
		"num_gc":     snap.NumGC,
	}, "Memory usage")
	return snap
}

// statmRSS reads the resident set size from /proc/self/statm.
func statmRSS() uint64 {
	b, err := os.ReadFile("/proc/self/statm")
	if err != nil {
		return 0
	}
	return parseStatm(string(b), uint64(os.Getpagesize()))
}

// parseStatm returns the second field of a statm line times pageSize.
func parseStatm(s string, pageSize uint64) uint64 {
	fields := strings.Fields(s)
	if len(fields) < 2 {
		return 0
	}
	pages, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return 0
	}
	return pages * pageSize
}

func humanBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return strconv.FormatUint(n, 10) + " B"
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return strconv.FormatFloat(float64(n)/float64(div), 'f', 2, 64) + " " + string("KMGTPE"[exp]) + "B"
}

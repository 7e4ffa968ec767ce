package blocklist_test

import (
	"fmt"
	"testing"

	"github.com/haukened/rr-filter/internal/filter/repos/blocklist"
	"github.com/haukened/rr-filter/internal/filter/repos/blocklist/bloom"
	"github.com/haukened/rr-filter/internal/filter/repos/blocklist/lru"
)

func benchSources(n int) []blocklist.Source {
	lines := make([]string, n)
	for i := range lines {
		lines[i] = fmt.Sprintf("%06d-blocked.example", i)
	}
	return []blocklist.Source{{Name: "bench", Lines: lines}}
}

func BenchmarkIndexMatch_Linear(b *testing.B) {
	idx, _ := blocklist.Build(benchSources(50_000))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = idx.Matches("https://www.allowed-site.org/some/path?q=1")
	}
}

func BenchmarkIndexMatch_GramFilter(b *testing.B) {
	idx, _ := blocklist.Build(benchSources(50_000), blocklist.WithGramFilter(bloom.NewFactory(), 0.01))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = idx.Matches("https://www.allowed-site.org/some/path?q=1")
	}
}

func BenchmarkIndexMatchHost_GramFilterAndCache(b *testing.B) {
	cache, _ := lru.New(4096)
	idx, _ := blocklist.Build(benchSources(50_000),
		blocklist.WithGramFilter(bloom.NewFactory(), 0.01), blocklist.WithCache(cache))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = idx.MatchHost(fmt.Sprintf("www%d.allowed-site.org", i%1024))
	}
}

package blocklist

import (
	"sort"
	"strings"

	"github.com/haukened/rr-filter/internal/filter/common/log"
	"github.com/haukened/rr-filter/internal/filter/domain"
)

// GramSize is the prefix length, in bytes, fed to the gram filter. Entries
// shorter than this cannot be prefiltered and are checked on every lookup.
const GramSize = 4

// MaxCachedSubject is the longest subject MatchHost will cache, the maximum
// length of a DNS name.
const MaxCachedSubject = 253

// Source is one category list handed to Build. A non-nil Err marks a source
// that failed to load; it is skipped and reported.
type Source struct {
	Name  string
	Lines []string
	Err   error
}

// Option configures Build.
type Option func(*buildOptions)

type buildOptions struct {
	factory GramFilterFactory
	fpRate  float64
	cache   DecisionCache
	logger  log.Logger
}

// WithGramFilter enables the prefix prefilter backed by filters from factory.
func WithGramFilter(factory GramFilterFactory, fpRate float64) Option {
	return func(o *buildOptions) {
		o.factory = factory
		o.fpRate = fpRate
	}
}

// WithCache memoizes MatchHost verdicts per hostname.
func WithCache(cache DecisionCache) Option {
	return func(o *buildOptions) { o.cache = cache }
}

// WithLogger sets the logger used while building.
func WithLogger(logger log.Logger) Option {
	return func(o *buildOptions) { o.logger = logger }
}

// Index is an immutable set of lowercased block entries. A subject matches
// when any entry occurs in it as a substring, ignoring case. All methods are
// safe for concurrent use.
type Index struct {
	short   []string // entries shorter than GramSize, sorted
	long    []string // remaining entries, sorted
	grams   GramFilter
	nGrams  int
	cache   DecisionCache
	sources []SourceStats
}

// Build constructs an Index from sources. Blank lines are ignored, entries are
// trimmed and lowercased and duplicates collapse across sources. Sources with
// Err set are skipped and returned as *SourceLoadError values; the index is
// still usable and may be empty.
func Build(sources []Source, opts ...Option) (*Index, []error) {
	o := buildOptions{logger: log.NewNoopLogger()}
	for _, opt := range opts {
		opt(&o)
	}

	var errs []error
	seen := make(map[string]struct{})
	stats := make([]SourceStats, 0, len(sources))
	for _, src := range sources {
		st := SourceStats{Name: src.Name, Lines: len(src.Lines)}
		if src.Err != nil {
			st.Skipped = true
			stats = append(stats, st)
			errs = append(errs, &SourceLoadError{Source: src.Name, Err: src.Err})
			o.logger.Warn(map[string]any{"source": src.Name, "error": src.Err}, "blocklist source skipped")
			continue
		}
		for _, line := range src.Lines {
			entry, err := domain.NewBlockEntry(line)
			if err != nil {
				continue
			}
			if _, dup := seen[entry.String()]; dup {
				continue
			}
			seen[entry.String()] = struct{}{}
			st.Added++
		}
		stats = append(stats, st)
		o.logger.Info(map[string]any{"source": src.Name, "sites": st.Added}, "Loaded sites from file")
	}

	idx := &Index{cache: o.cache, sources: stats}
	for e := range seen {
		if len(e) < GramSize {
			idx.short = append(idx.short, e)
		} else {
			idx.long = append(idx.long, e)
		}
	}
	sort.Strings(idx.short)
	sort.Strings(idx.long)

	if o.factory != nil && len(idx.long) > 0 {
		grams := make(map[string]struct{}, len(idx.long))
		for _, e := range idx.long {
			grams[e[:GramSize]] = struct{}{}
		}
		idx.grams = o.factory.New(uint64(len(grams)), o.fpRate)
		for g := range grams {
			idx.grams.Add([]byte(g))
		}
		idx.nGrams = len(grams)
	}

	o.logger.Info(map[string]any{
		"entries":       idx.Len(),
		"short_entries": len(idx.short),
		"grams":         idx.nGrams,
		"failed":        len(errs),
	}, "Blocklist index built")
	return idx, errs
}

// Matches reports whether any entry is a case-insensitive substring of subject.
func (x *Index) Matches(subject string) bool {
	_, ok := x.Match(subject)
	return ok
}

// Match is Matches that also returns the first matching entry in sorted
// order, short entries first. It only reads the immutable index and takes no
// locks.
func (x *Index) Match(subject string) (string, bool) {
	if x == nil || x.Len() == 0 || subject == "" {
		return "", false
	}
	return x.scan(strings.ToLower(subject))
}

// MatchHost is Match for CONNECT hostnames. Verdicts go through the cache when
// one is configured and host is no longer than MaxCachedSubject.
func (x *Index) MatchHost(host string) (string, bool) {
	if x == nil || x.Len() == 0 || host == "" {
		return "", false
	}
	lower := strings.ToLower(host)
	if x.cache == nil || len(lower) > MaxCachedSubject {
		return x.scan(lower)
	}

	if v, ok := x.cache.Get(lower); ok {
		return v.Entry, v.Matched
	}
	entry, ok := x.scan(lower)
	x.cache.Put(lower, Verdict{Matched: ok, Entry: entry})
	return entry, ok
}

func (x *Index) scan(lower string) (string, bool) {
	for _, e := range x.short {
		if domain.BlockEntry(e).MatchesLower(lower) {
			return e, true
		}
	}
	if len(x.long) == 0 || !x.mightContainLong(lower) {
		return "", false
	}
	for _, e := range x.long {
		if domain.BlockEntry(e).MatchesLower(lower) {
			return e, true
		}
	}
	return "", false
}

// mightContainLong is false only when no GramSize window of lower is the
// prefix of a long entry, in which case no long entry can occur in lower.
func (x *Index) mightContainLong(lower string) bool {
	if x.grams == nil {
		return true
	}
	b := []byte(lower)
	for i := 0; i+GramSize <= len(b); i++ {
		if x.grams.MightContain(b[i : i+GramSize]) {
			return true
		}
	}
	return false
}

// Len returns the number of distinct entries.
func (x *Index) Len() int {
	if x == nil {
		return 0
	}
	return len(x.short) + len(x.long)
}

// Entries returns a sorted copy of all entries.
func (x *Index) Entries() []string {
	if x == nil {
		return nil
	}
	out := make([]string, 0, x.Len())
	out = append(out, x.short...)
	out = append(out, x.long...)
	sort.Strings(out)
	return out
}

// Stats returns entry counts, per-source totals and cache counters.
func (x *Index) Stats() IndexStats {
	if x == nil {
		return IndexStats{}
	}
	st := IndexStats{
		Entries:      x.Len(),
		ShortEntries: len(x.short),
		Grams:        x.nGrams,
		Sources:      append([]SourceStats(nil), x.sources...),
	}
	if x.cache != nil {
		st.Cache.Size = x.cache.Len()
		st.Cache.Hits, st.Cache.Misses, st.Cache.Evictions = x.cache.Stats()
	}
	return st
}

var _ Matcher = (*Index)(nil)

package blocklist

// GramFilter is the minimal interface the index needs from a Bloom filter
// holding entry prefixes.
type GramFilter interface {
	Add(gram []byte)
	MightContain(gram []byte) bool
}

// GramFilterFactory builds a GramFilter sized for capacity grams at the given
// false-positive rate.
type GramFilterFactory interface {
	New(capacity uint64, fpRate float64) GramFilter
}

// Verdict is a cached match result for one subject.
type Verdict struct {
	Matched bool
	Entry   string // first matching entry when Matched
}

// DecisionCache caches verdicts by lowercased hostname with basic metrics.
// The index never changes after Build, so entries never go stale.
type DecisionCache interface {
	Get(subject string) (Verdict, bool)
	Put(subject string, v Verdict)
	Len() int
	Purge()
	Stats() (hits, misses, evictions uint64)
}

// Matcher is the read side of the index consumed by the filter services.
type Matcher interface {
	Matches(subject string) bool
	Match(subject string) (entry string, ok bool)
	MatchHost(host string) (entry string, ok bool)
	Len() int
}

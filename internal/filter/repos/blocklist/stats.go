package blocklist

// CacheStats reports lightweight cache metrics.
// All fields are best-effort snapshots and may be updated concurrently.
type CacheStats struct {
	Size      int    `json:"size"`      // current number of entries
	Hits      uint64 `json:"hits"`      // total cache hits since construction
	Misses    uint64 `json:"misses"`    // total cache misses since construction
	Evictions uint64 `json:"evictions"` // total evictions since construction
}

// SourceStats records how many entries one source contributed.
type SourceStats struct {
	Name    string `json:"name"`
	Lines   int    `json:"lines"`
	Added   int    `json:"added"` // new entries after cross-source dedup
	Skipped bool   `json:"skipped"`
}

// IndexStats summarizes a built index.
type IndexStats struct {
	Entries      int           `json:"entries"`
	ShortEntries int           `json:"short_entries"` // shorter than GramSize, always scanned
	Grams        int           `json:"grams"`         // distinct prefixes in the gram filter
	Sources      []SourceStats `json:"sources"`
	Cache        CacheStats    `json:"cache"`
}

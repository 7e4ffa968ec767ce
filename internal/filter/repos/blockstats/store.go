// Package blockstats keeps persistent per-domain counters of blocked
// requests in a bbolt database.
package blockstats

import (
	"encoding/binary"
	"errors"
	"sort"
	"time"

	bbolt "go.etcd.io/bbolt"

	"github.com/haukened/rr-filter/internal/filter/common/utils"
)

var (
	bucketDomains = []byte("domains")
	bucketMeta    = []byte("meta")
	keyTotal      = []byte("total")
)

// ErrNoDomain is returned by Record when no host can be derived from the URL.
var ErrNoDomain = errors.New("blockstats: url has no host")

// DomainStat is the block count for one registrable domain.
type DomainStat struct {
	Domain   string    `json:"domain"`
	Count    uint64    `json:"count"`
	LastSeen time.Time `json:"last_seen"`
}

// Store records blocked URLs keyed by the apex domain of their host.
type Store struct {
	db *bbolt.DB
}

// Open opens (or creates) a Bolt database at path and ensures buckets exist.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketDomains); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketMeta)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Record increments the counter for the apex domain of url and the overall
// total in one transaction.
func (s *Store) Record(url string, at time.Time) error {
	apex := utils.GetApexDomain(utils.HostFromURL(url))
	if apex == "" {
		return ErrNoDomain
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketDomains)
		count, _ := decodeValue(b.Get([]byte(apex)))
		if err := b.Put([]byte(apex), encodeValue(count+1, at.Unix())); err != nil {
			return err
		}

		m := tx.Bucket(bucketMeta)
		var total uint64
		if v := m.Get(keyTotal); len(v) == 8 {
			total = binary.BigEndian.Uint64(v)
		}
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, total+1)
		return m.Put(keyTotal, buf)
	})
}

// Top returns up to n domains ordered by count descending, then name.
// n <= 0 returns all of them.
func (s *Store) Top(n int) ([]DomainStat, error) {
	var out []DomainStat
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketDomains).ForEach(func(k, v []byte) error {
			count, last := decodeValue(v)
			out = append(out, DomainStat{Domain: string(k), Count: count, LastSeen: time.Unix(last, 0)})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Domain < out[j].Domain
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out, nil
}

// Total returns the number of blocks recorded across all runs.
func (s *Store) Total() uint64 {
	var total uint64
	_ = s.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(bucketMeta).Get(keyTotal); len(v) == 8 {
			total = binary.BigEndian.Uint64(v)
		}
		return nil
	})
	return total
}

// value layout: count (uint64 BE) | last seen unix seconds (int64 BE)
func encodeValue(count uint64, lastSeen int64) []byte {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint64(buf[:8], count)
	binary.BigEndian.PutUint64(buf[8:], uint64(lastSeen))
	return buf
}

func decodeValue(v []byte) (uint64, int64) {
	if len(v) != 16 {
		return 0, 0
	}
	return binary.BigEndian.Uint64(v[:8]), int64(binary.BigEndian.Uint64(v[8:]))
}

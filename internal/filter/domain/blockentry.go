package domain

import (
	"fmt"
	"strings"
)

// BlockEntry is a single blocklist token. It is matched as a case-insensitive
// substring of the subject (host or full URL), with no awareness of hostname
// labels or wildcards: "ads" matches both "myads.example.com" and
// "example.com/ads".
type BlockEntry string

// NewBlockEntry trims and lowercases raw, rejecting blank input.
func NewBlockEntry(raw string) (BlockEntry, error) {
	s := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(raw, "\uFEFF")))
	if s == "" {
		return "", fmt.Errorf("block entry must not be empty")
	}
	return BlockEntry(s), nil
}

// String returns the normalized token.
func (e BlockEntry) String() string { return string(e) }

// MatchesLower reports whether e occurs in an already-lowercased subject.
func (e BlockEntry) MatchesLower(lowerSubject string) bool {
	return strings.Contains(lowerSubject, string(e))
}

package utils

import (
	"crypto/sha256"
	"sort"
)

// StringPtr returns a pointer to a string, or nil if empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// ContainsString checks if a string slice contains a specific string.
func ContainsString(slice []string, item string) bool {
	for _, a := range slice {
		if a == item {
			return true
		}
	}
	return false
}

// SortedSet returns the sorted, deduplicated copy of a string slice.
// A nil or empty input yields an empty, non-nil slice.
func SortedSet(items []string) []string {
	out := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, s := range items {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// EqualSets reports whether a and b hold the same elements, ignoring order and duplicates.
func EqualSets(a, b []string) bool {
	sa, sb := SortedSet(a), SortedSet(b)
	if len(sa) != len(sb) {
		return false
	}
	for i := range sa {
		if sa[i] != sb[i] {
			return false
		}
	}
	return true
}

// SeedFrom hashes a seed string into a deterministic int64 seed.
func SeedFrom(seedStr string) int64 {
	hasher := sha256.New()
	hasher.Write([]byte(seedStr))
	return BytesToInt(hasher.Sum(nil))
}

// BytesToInt converts a byte slice (e.g., from SHA256 sum) to an int64.
// Used for generating a deterministic seed from a hash.
func BytesToInt(b []byte) int64 {
	// Take the first 8 bytes (or less if available) to fit into int64
	var i int64
	for idx, val := range b {
		if idx >= 8 {
			break
		}
		i = (i << 8) | int64(val)
	}
	return i
}

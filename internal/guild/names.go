package guild

import (
	"strings"
	"unicode"
)

const defaultMaxNameLen = 40

// NormalizeName trims and collapses inner whitespace.
func NormalizeName(name string) string {
	return strings.Join(strings.Fields(name), " ")
}

// ValidateName reports whether name is usable as a guild name.
func ValidateName(name string, maxLen int) bool {
	if maxLen <= 0 {
		maxLen = defaultMaxNameLen
	}
	trimmed := NormalizeName(name)
	if trimmed == "" || len([]rune(trimmed)) > maxLen {
		return false
	}
	for _, r := range trimmed {
		if unicode.IsControl(r) {
			return false
		}
	}
	return true
}

// nameKey is the uniqueness key; guild names compare case-insensitively.
func nameKey(name string) string {
	return strings.ToLower(NormalizeName(name))
}

type candidate struct {
	id   string
	rank int
	seq  uint64
}

// selectNextLeader picks the highest ranked member, breaking ties by tenure
// and then id.
func selectNextLeader(members []candidate) string {
	if len(members) == 0 {
		return ""
	}
	best := members[0]
	for _, m := range members[1:] {
		switch {
		case m.rank < best.rank:
			best = m
		case m.rank == best.rank && m.seq < best.seq:
			best = m
		case m.rank == best.rank && m.seq == best.seq && m.id < best.id:
			best = m
		}
	}
	return best.id
}

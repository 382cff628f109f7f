package expr

import "strings"

// IndexFrom returns the index of the first instance of substr in s at or
// after start, or -1 if substr is not present.
func IndexFrom(s, substr string, start int) int {
	if start < 0 || start > len(s) {
		return -1
	}
	idx := strings.Index(s[start:], substr)
	if idx < 0 {
		return -1
	}
	return start + idx
}

// IndexFromCount is like [IndexFrom], but searches only count bytes
// starting at start.
func IndexFromCount(s, substr string, start, count int) int {
	if start < 0 || count < 0 || start+count > len(s) {
		return -1
	}
	idx := strings.Index(s[start:start+count], substr)
	if idx < 0 {
		return -1
	}
	return start + idx
}

// IndexFold is like [strings.Index], but ignores case.
func IndexFold(s, substr string) int {
	return strings.Index(strings.ToLower(s), strings.ToLower(substr))
}

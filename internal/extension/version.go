package extension

import (
	"strconv"
	"strings"
)

// versionAtLeast compares dotted numeric versions. Missing or non-numeric
// parts count as zero.
func versionAtLeast(have, want string) bool {
	h := versionParts(have)
	w := versionParts(want)
	for len(h) < len(w) {
		h = append(h, 0)
	}
	for len(w) < len(h) {
		w = append(w, 0)
	}
	for i := range h {
		if h[i] != w[i] {
			return h[i] > w[i]
		}
	}
	return true
}

func versionParts(v string) []int {
	v = strings.TrimPrefix(strings.TrimSpace(v), "v")
	if v == "" {
		return nil
	}
	fields := strings.Split(v, ".")
	parts := make([]int, len(fields))
	for i, f := range fields {
		n, _ := strconv.Atoi(f)
		parts[i] = n
	}
	return parts
}

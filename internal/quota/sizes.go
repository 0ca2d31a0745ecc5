package quota

import (
	"strconv"
	"strings"
)

const (
	kib = 1024
	mib = 1024 * kib
	gib = 1024 * mib
)

// ParseSize converts a human-readable limit ("100MB", "1GB", or a bare byte
// count) into bytes, using binary units and ignoring case. An unrecognized
// unit falls back to the leading integer; a string with no leading integer
// parses to 0.
func ParseSize(s string) int64 {
	s = strings.TrimSpace(s)

	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 {
		return 0
	}

	n, err := strconv.ParseInt(s[:i], 10, 64)
	if err != nil {
		return 0
	}

	switch strings.ToUpper(strings.TrimSpace(s[i:])) {
	case "", "B":
		return n
	case "KB":
		return n * kib
	case "MB":
		return n * mib
	case "GB":
		return n * gib
	default:
		return n
	}
}

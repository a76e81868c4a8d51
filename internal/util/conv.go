package util

import (
	"strconv"
)

// ParsePositiveInt parses s and falls back to def for missing or non-positive values.
func ParsePositiveInt(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

package quiz

import (
	"errors"
	"path/filepath"
	"strconv"
	"strings"
)

var errUnsupportedMime = errors.New("quiz: unsupported file type")

func fileExt(name string) string { return strings.ToLower(filepath.Ext(name)) }

func itoa(n int) string { return strconv.Itoa(n) }

func atoiOr(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

package httpx

import (
	"io"
	"strings"
)

type stringReadCloser struct{ io.Reader }

func (stringReadCloser) Close() error { return nil }

func newReadCloser(s string) io.ReadCloser {
	return stringReadCloser{strings.NewReader(s)}
}

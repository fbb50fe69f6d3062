package handlers

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	errMalformedRange     = errors.New("malformed range header")
	errUnsatisfiableRange = errors.New("range not satisfiable")
)

// byteRange is an inclusive span of a resource.
type byteRange struct {
	start, end int64
}

func (b byteRange) length() int64 {
	return b.end - b.start + 1
}

func (b byteRange) contentRange(size int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", b.start, b.end, size)
}

// parseRange reads the first range of a "bytes=" Range header and clamps it
// to size. Further ranges in a multi-range request are ignored.
func parseRange(header string, size int64) (byteRange, error) {
	ranges, ok := strings.CutPrefix(strings.TrimSpace(header), "bytes=")
	if !ok {
		return byteRange{}, errMalformedRange
	}
	if i := strings.IndexByte(ranges, ','); i >= 0 {
		ranges = ranges[:i]
	}
	first, last, ok := strings.Cut(strings.TrimSpace(ranges), "-")
	if !ok {
		return byteRange{}, errMalformedRange
	}
	first, last = strings.TrimSpace(first), strings.TrimSpace(last)

	if first == "" {
		// Suffix form: the final n bytes.
		n, err := parseOffset(last)
		if err != nil {
			return byteRange{}, err
		}
		if n == 0 || size == 0 {
			return byteRange{}, errUnsatisfiableRange
		}
		n = min(n, size)
		return byteRange{start: size - n, end: size - 1}, nil
	}

	start, err := parseOffset(first)
	if err != nil {
		return byteRange{}, err
	}
	end := size - 1
	if last != "" {
		if end, err = parseOffset(last); err != nil {
			return byteRange{}, err
		}
		if end < start {
			return byteRange{}, errMalformedRange
		}
		end = min(end, size-1)
	}
	if start >= size {
		return byteRange{}, errUnsatisfiableRange
	}
	return byteRange{start: start, end: end}, nil
}

func parseOffset(s string) (int64, error) {
	n, err := strconv.ParseUint(s, 10, 63)
	if err != nil {
		return 0, errMalformedRange
	}
	return int64(n), nil
}

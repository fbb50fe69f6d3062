package playlist

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
)

const (
	tagHeader     = "#EXTM3U"
	tagVersion    = "#EXT-X-VERSION:3"
	tagStreamInf  = "#EXT-X-STREAM-INF:"
	maxLineLength = 1024 * 1024
)

// Variant is one rendition listed in a master playlist.
type Variant struct {
	Bandwidth int64
	Width     int
	Height    int
	Codecs    string
	URI       string
}

// WriteMaster writes a master playlist listing variants in the given order.
func WriteMaster(w io.Writer, variants []Variant) error {
	if len(variants) == 0 {
		return fmt.Errorf("master playlist needs at least one variant")
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, tagHeader)
	fmt.Fprintln(bw, tagVersion)
	for _, v := range variants {
		fmt.Fprintf(bw, "%sBANDWIDTH=%d,RESOLUTION=%dx%d,CODECS=\"%s\"\n",
			tagStreamInf, v.Bandwidth, v.Width, v.Height, v.Codecs)
		fmt.Fprintln(bw, v.URI)
	}
	return bw.Flush()
}

// Master renders a master playlist to bytes.
func Master(variants []Variant) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteMaster(&buf, variants); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ParseMaster reads the variants of a master playlist. Each stream-info tag
// must be followed by its URI on the next non-blank line.
func ParseMaster(r io.Reader) ([]Variant, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineLength)

	var variants []Variant
	var pending *Variant
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		if pending != nil {
			if strings.HasPrefix(line, "#") {
				return nil, fmt.Errorf("line %d: stream-info not followed by a URI", lineNo)
			}
			pending.URI = line
			variants = append(variants, *pending)
			pending = nil
			continue
		}

		if lineNo == 1 && line != tagHeader {
			return nil, fmt.Errorf("missing %s header", tagHeader)
		}
		if strings.HasPrefix(line, tagStreamInf) {
			v := parseStreamInf(strings.TrimPrefix(line, tagStreamInf))
			pending = &v
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if pending != nil {
		return nil, fmt.Errorf("stream-info at end of playlist has no URI")
	}
	return variants, nil
}

func parseStreamInf(attrs string) Variant {
	var v Variant
	for _, attr := range splitAttributes(attrs) {
		key, val, ok := strings.Cut(attr, "=")
		if !ok {
			continue
		}
		switch key {
		case "BANDWIDTH":
			v.Bandwidth, _ = strconv.ParseInt(val, 10, 64)
		case "RESOLUTION":
			w, h, _ := strings.Cut(val, "x")
			v.Width, _ = strconv.Atoi(w)
			v.Height, _ = strconv.Atoi(h)
		case "CODECS":
			v.Codecs = strings.Trim(val, `"`)
		}
	}
	return v
}

// splitAttributes splits on commas outside of quoted strings.
func splitAttributes(s string) []string {
	var out []string
	inQuote := false
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			inQuote = !inQuote
		case ',':
			if !inQuote {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	return append(out, s[start:])
}

// RewriteWithToken copies a playlist from r to w, appending token as a query
// parameter to every URI line. Tags, comments and blank lines are copied
// unchanged.
func RewriteWithToken(r io.Reader, w io.Writer, token string) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineLength)
	bw := bufio.NewWriter(w)

	param := "token=" + url.QueryEscape(token)
	for sc.Scan() {
		line := sc.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed != "" && !strings.HasPrefix(trimmed, "#") {
			line = appendQuery(trimmed, param)
		}
		if _, err := bw.WriteString(line); err != nil {
			return err
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return bw.Flush()
}

func appendQuery(uri, param string) string {
	frag := ""
	if i := strings.IndexByte(uri, '#'); i >= 0 {
		uri, frag = uri[:i], uri[i:]
	}
	sep := "?"
	if strings.Contains(uri, "?") {
		sep = "&"
	}
	return uri + sep + param + frag
}

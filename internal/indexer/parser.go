package indexer

import (
	"bufio"
	"io"
	"strconv"
	"strings"
)

// record is one decoded lister entry, using the direct key-scan extractor
// described in SPEC_FULL.md §4.3 rather than a general JSON parser.
type record struct {
	Path    string
	Name    string
	Size    int64
	ModTime string
	IsDir   bool
}

// readBufferSize bounds each read from the subprocess pipe; it has no
// bearing on memory use for the overall stream, only on syscall
// granularity.
const readBufferSize = 64 * 1024

// streamRecords reads r byte-by-byte (via a buffered reader for syscall
// efficiency), tracking brace depth, in-string status, and escape state.
// Each time brace depth returns to zero having been above zero, the
// accumulated bytes form one complete JSON object, which is decoded with
// extractRecord and sent to out. Memory use is bounded by the largest
// single record, never by total stream size.
func streamRecords(r io.Reader, out func(record) error) error {
	br := bufio.NewReaderSize(r, readBufferSize)

	var acc []byte
	depth := 0
	inString := false
	escaped := false
	started := false

	for {
		b, err := br.ReadByte()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}

		if !started {
			if b != '{' {
				continue
			}
			started = true
		}

		acc = append(acc, b)

		if inString {
			switch {
			case escaped:
				escaped = false
			case b == '\\':
				escaped = true
			case b == '"':
				inString = false
			}
			continue
		}

		switch b {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				rec, ok := extractRecord(acc)
				acc = acc[:0]
				started = false
				if ok {
					if err := out(rec); err != nil {
						return err
					}
				}
			}
		}
	}
}

// extractRecord scans raw (one complete `{...}` JSON object) for the keys
// Path, Name, Size, ModTime, IsDir using direct substring scanning rather
// than a general decoder. Returns ok=false if Path or Name is missing.
func extractRecord(raw []byte) (record, bool) {
	s := string(raw)
	var rec record
	var ok bool

	if rec.Path, ok = extractString(s, "Path"); !ok {
		return record{}, false
	}
	if rec.Name, ok = extractString(s, "Name"); !ok {
		return record{}, false
	}
	rec.Size, _ = extractInt64(s, "Size")
	if modTime, found := extractString(s, "ModTime"); found {
		rec.ModTime = truncateToSeconds(modTime)
	}
	rec.IsDir, _ = extractBool(s, "IsDir")

	return rec, true
}

// truncateToSeconds trims an ISO-8601 timestamp to 19 characters (seconds
// precision), per SPEC_FULL.md §4.3 step 6.
func truncateToSeconds(ts string) string {
	if len(ts) > 19 {
		return ts[:19]
	}
	return ts
}

// extractString finds `"key"` followed by `:` and a quoted string value,
// returning its unescaped-enough contents: \n, \t and \r are decoded, and
// any other escape (\" and \\ included) yields the escaped byte itself, so
// \uXXXX sequences are not decoded.
func extractString(s, key string) (string, bool) {
	idx := findKey(s, key)
	if idx < 0 {
		return "", false
	}
	i := idx
	for i < len(s) && s[i] != '"' {
		i++
	}
	if i >= len(s) {
		return "", false
	}
	i++ // skip opening quote
	start := i
	var b strings.Builder
	for i < len(s) {
		c := s[i]
		if c == '\\' && i+1 < len(s) {
			b.WriteByte(unescape(s[i+1]))
			i += 2
			continue
		}
		if c == '"' {
			if b.Len() == 0 {
				return s[start:i], true
			}
			return b.String(), true
		}
		b.WriteByte(c)
		i++
	}
	return "", false
}

func unescape(c byte) byte {
	switch c {
	case 'n':
		return '\n'
	case 't':
		return '\t'
	case 'r':
		return '\r'
	default:
		return c
	}
}

// extractInt64 finds `"key":` followed by an (optionally signed) integer
// literal.
func extractInt64(s, key string) (int64, bool) {
	idx := findKey(s, key)
	if idx < 0 {
		return 0, false
	}
	i := idx
	for i < len(s) && s[i] != ':' {
		i++
	}
	i++
	for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
		i++
	}
	start := i
	if i < len(s) && s[i] == '-' {
		i++
	}
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == start {
		return 0, false
	}
	n, err := strconv.ParseInt(s[start:i], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// extractBool finds `"key":` followed by `true` or `false`.
func extractBool(s, key string) (bool, bool) {
	idx := findKey(s, key)
	if idx < 0 {
		return false, false
	}
	rest := s[idx:]
	if strings.Contains(rest[:min(len(rest), 10)], "true") {
		return true, true
	}
	if strings.Contains(rest[:min(len(rest), 10)], "false") {
		return false, true
	}
	return false, false
}

func findKey(s, key string) int {
	needle := `"` + key + `"`
	idx := strings.Index(s, needle)
	if idx < 0 {
		return -1
	}
	return idx + len(needle)
}

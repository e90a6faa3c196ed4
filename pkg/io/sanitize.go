package io

import (
	"bytes"
)

var bom = []byte{0xEF, 0xBB, 0xBF}

func stripBOM(data []byte) []byte {
	return bytes.TrimPrefix(data, bom)
}

// sanitize rewrites the non-standard tokens some writers emit into valid
// JSON. Outside string literals NaN, Infinity and -Infinity become null and
// a comma directly followed (after whitespace) by ']' or '}' is dropped.
// String contents are copied unchanged.
func sanitize(data []byte) []byte {
	var out bytes.Buffer
	out.Grow(len(data))

	inString, escaped := false, false
	for i := 0; i < len(data); i++ {
		c := data[i]
		if inString {
			out.WriteByte(c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch {
		case c == '"':
			inString = true
			out.WriteByte(c)
		case bytes.HasPrefix(data[i:], []byte("-Infinity")):
			out.WriteString("null")
			i += len("-Infinity") - 1
		case bytes.HasPrefix(data[i:], []byte("Infinity")):
			out.WriteString("null")
			i += len("Infinity") - 1
		case bytes.HasPrefix(data[i:], []byte("NaN")):
			out.WriteString("null")
			i += len("NaN") - 1
		case c == ',' && closesNext(data[i+1:]):
			// trailing comma
		default:
			out.WriteByte(c)
		}
	}
	return out.Bytes()
}

func closesNext(rest []byte) bool {
	rest = bytes.TrimLeft(rest, " \t\r\n")
	return len(rest) > 0 && (rest[0] == ']' || rest[0] == '}')
}

// lastObject returns the last complete top-level {...} object in data, or
// nil if there is none.
func lastObject(data []byte) []byte {
	var last []byte
	depth, start := 0, -1
	inString, escaped := false, false
	for i, c := range data {
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 && start >= 0 {
				last = data[start : i+1]
				start = -1
			}
		}
	}
	return last
}

// Package hexdump renders byte payloads for display: contiguous hex,
// space-separated hex, bit groups and an 8-byte-per-row offset/hex/ASCII dump.
//
// All functions are pure and safe for concurrent use.
package hexdump

import (
	"fmt"
	"strings"
)

// RowWidth is the number of bytes rendered per dump row.
const RowWidth = 8

const hexdigits = "0123456789ABCDEF"

// Hex returns b as contiguous upper-case hex ("0A1B2C").
func Hex(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	out := make([]byte, 0, len(b)*2)
	for _, v := range b {
		out = append(out, hexdigits[v>>4], hexdigits[v&0x0f])
	}
	return string(out)
}

// Spaced returns b as upper-case hex pairs separated by single spaces ("0A 1B 2C").
func Spaced(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	out := make([]byte, 0, len(b)*3-1)
	for i, v := range b {
		if i > 0 {
			out = append(out, ' ')
		}
		out = append(out, hexdigits[v>>4], hexdigits[v&0x0f])
	}
	return string(out)
}

// Binary returns b as space-separated 8-bit groups.
func Binary(b []byte) string {
	parts := make([]string, len(b))
	for i, v := range b {
		parts[i] = fmt.Sprintf("%08b", v)
	}
	return strings.Join(parts, " ")
}

// ASCII renders printable bytes (32..126) as themselves and everything else as '.'.
func ASCII(b []byte) string {
	out := make([]byte, len(b))
	for i, v := range b {
		out[i] = printable(v)
	}
	return string(out)
}

// Lines returns the canonical dump, one string per 8-byte row:
//
//	0000: 48 65 6C 6C 6F 00 01 02  |Hello...|
//	0008: 41 42                    |AB      |
//
// Short trailing rows are padded with two-space placeholders in the hex
// column and spaces in the ASCII column so that columns stay aligned.
func Lines(b []byte) []string {
	if len(b) == 0 {
		return nil
	}
	rows := make([]string, 0, (len(b)+RowWidth-1)/RowWidth)
	for off := 0; off < len(b); off += RowWidth {
		end := min(off+RowWidth, len(b))
		rows = append(rows, row(off, b[off:end]))
	}
	return rows
}

// Dump joins Lines with newlines.
func Dump(b []byte) string {
	return strings.Join(Lines(b), "\n")
}

func row(offset int, chunk []byte) string {
	var sb strings.Builder
	sb.Grow(6 + RowWidth*3 + 2 + RowWidth + 2)
	fmt.Fprintf(&sb, "%04X: ", offset)

	for i := 0; i < RowWidth; i++ {
		if i > 0 {
			sb.WriteByte(' ')
		}
		if i < len(chunk) {
			v := chunk[i]
			sb.WriteByte(hexdigits[v>>4])
			sb.WriteByte(hexdigits[v&0x0f])
		} else {
			sb.WriteString("  ")
		}
	}

	sb.WriteString("  |")
	for i := 0; i < RowWidth; i++ {
		if i < len(chunk) {
			sb.WriteByte(printable(chunk[i]))
		} else {
			sb.WriteByte(' ')
		}
	}
	sb.WriteByte('|')
	return sb.String()
}

func printable(v byte) byte {
	if v >= 32 && v <= 126 {
		return v
	}
	return '.'
}

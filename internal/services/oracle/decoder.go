package oracle

import (
	"bytes"
	"unicode/utf8"
)

// textDecoder turns a byte stream into text chunk by chunk. A rune split
// across two chunks is held back until its remaining bytes arrive.
type textDecoder struct {
	pending []byte
}

// Decode returns the complete text available after appending p.
func (d *textDecoder) Decode(p []byte) string {
	buf := append(d.pending, p...)
	cut := len(buf) - incompleteTail(buf)

	d.pending = append([]byte(nil), buf[cut:]...)
	return string(bytes.ToValidUTF8(buf[:cut], []byte(string(utf8.RuneError))))
}

// Flush returns whatever is still held back. An unfinished rune at the end
// of the stream becomes U+FFFD.
func (d *textDecoder) Flush() string {
	if len(d.pending) == 0 {
		return ""
	}
	out := string(bytes.ToValidUTF8(d.pending, []byte(string(utf8.RuneError))))
	d.pending = nil
	return out
}

// incompleteTail returns the length of a trailing prefix of a multi-byte rune.
func incompleteTail(b []byte) int {
	for i := 1; i < utf8.UTFMax && i <= len(b); i++ {
		if utf8.RuneStart(b[len(b)-i]) {
			if utf8.FullRune(b[len(b)-i:]) {
				return 0
			}
			return i
		}
	}
	return 0
}

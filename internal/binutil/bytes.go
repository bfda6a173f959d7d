// Package binutil holds the byte-level helpers shared by the container codecs.
package binutil

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"strings"
)

// ReadUint32BE reads a big-endian uint32 at off. ok is false if fewer than 4 bytes remain.
func ReadUint32BE(b []byte, off int) (v uint32, ok bool) {
	if off < 0 || off+4 > len(b) {
		return 0, false
	}
	return binary.BigEndian.Uint32(b[off:]), true
}

// ReadUint16BE reads a big-endian uint16 at off. ok is false if fewer than 2 bytes remain.
func ReadUint16BE(b []byte, off int) (v uint16, ok bool) {
	if off < 0 || off+2 > len(b) {
		return 0, false
	}
	return binary.BigEndian.Uint16(b[off:]), true
}

// AppendUint32BE appends v in big-endian order.
func AppendUint32BE(b []byte, v uint32) []byte {
	return binary.BigEndian.AppendUint32(b, v)
}

// AppendUint16BE appends v in big-endian order.
func AppendUint16BE(b []byte, v uint16) []byte {
	return binary.BigEndian.AppendUint16(b, v)
}

// IndexOf returns the index of the first needle occurrence at or after from, or -1.
func IndexOf(haystack, needle []byte, from int) int {
	if from < 0 {
		from = 0
	}
	if from > len(haystack) {
		return -1
	}
	i := bytes.Index(haystack[from:], needle)
	if i < 0 {
		return -1
	}
	return from + i
}

// Equal reports whether a and b hold the same bytes.
func Equal(a, b []byte) bool {
	return bytes.Equal(a, b)
}

// Clone returns an independently owned copy of b. A nil input stays nil.
func Clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	return bytes.Clone(b)
}

// EncodeBase64 encodes b with the standard padded alphabet.
func EncodeBase64(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// DecodeBase64 decodes s, accepting padded/unpadded and standard/URL-safe alphabets
// and ignoring embedded whitespace. Producers of card PNGs disagree on all of these.
func DecodeBase64(s string) ([]byte, error) {
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\n', '\r', '\t':
			return -1
		}
		return r
	}, s)

	enc := base64.StdEncoding
	if strings.ContainsAny(s, "-_") {
		enc = base64.URLEncoding
	}
	if !strings.HasSuffix(s, "=") && len(s)%4 != 0 {
		enc = enc.WithPadding(base64.NoPadding)
	}
	return enc.DecodeString(s)
}

package binutil

// PNGSignature is the fixed 8-byte header of every PNG file.
var PNGSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

// ZipLocalHeader is the local-file-header signature "PK\x03\x04".
var ZipLocalHeader = []byte{'P', 'K', 0x03, 0x04}

// IsPNG reports whether buf starts with the PNG signature.
func IsPNG(buf []byte) bool {
	return len(buf) >= len(PNGSignature) && Equal(buf[:len(PNGSignature)], PNGSignature)
}

// HasZipSignature reports whether buf contains a ZIP local-file header anywhere.
func HasZipSignature(buf []byte) bool {
	return IndexOf(buf, ZipLocalHeader, 0) >= 0
}

// FindZipStart returns buf sliced from the first local-file header, skipping a
// self-extracting stub if one is prepended. Without a signature, buf is returned unchanged.
func FindZipStart(buf []byte) []byte {
	i := IndexOf(buf, ZipLocalHeader, 0)
	if i <= 0 {
		return buf
	}
	return buf[i:]
}

// Package png reads and writes character cards embedded in PNG text chunks.
package png

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/hpungsan/cardforge/internal/binutil"
	"github.com/hpungsan/cardforge/internal/errors"
)

// Chunk types the codec cares about.
const (
	TypeText           = "tEXt"
	TypeCompressedText = "zTXt"
	TypeIntlText       = "iTXt"
	TypeEnd            = "IEND"
)

// MaxTextSize bounds the inflated size of a single zTXt/iTXt payload.
const MaxTextSize = 64 << 20

// Chunk is one entry of the chunk stream. Raw spans the whole encoded chunk
// (length, type, data, CRC) inside the source buffer.
type Chunk struct {
	Type string
	Data []byte
	CRC  uint32
	Raw  []byte
}

// IsText reports whether the chunk is one of the three text chunk types.
func (c Chunk) IsText() bool {
	return c.Type == TypeText || c.Type == TypeCompressedText || c.Type == TypeIntlText
}

// ReadChunks verifies the signature and splits buf into chunks, stopping after IEND.
// Text chunks have their CRC checked; a mismatch is fatal.
func ReadChunks(buf []byte) ([]Chunk, error) {
	if !binutil.IsPNG(buf) {
		return nil, errors.NewMalformedContainer("png", "bad signature")
	}

	var chunks []Chunk
	off := len(binutil.PNGSignature)
	for off < len(buf) {
		length, ok := binutil.ReadUint32BE(buf, off)
		if !ok {
			return nil, errors.NewMalformedContainer("png", fmt.Sprintf("truncated chunk header at offset %d", off))
		}
		dataStart := off + 8
		dataEnd := dataStart + int(length)
		if dataEnd+4 > len(buf) {
			return nil, errors.NewMalformedContainer("png", fmt.Sprintf("chunk at offset %d overruns buffer", off))
		}

		c := Chunk{
			Type: string(buf[off+4 : dataStart]),
			Data: buf[dataStart:dataEnd],
			Raw:  buf[off : dataEnd+4],
		}
		c.CRC, _ = binutil.ReadUint32BE(buf, dataEnd)

		if c.IsText() {
			if actual := chunkCRC(c.Type, c.Data); actual != c.CRC {
				return nil, errors.NewChecksumMismatch(c.Type, c.CRC, actual)
			}
		}

		chunks = append(chunks, c)
		off = dataEnd + 4
		if c.Type == TypeEnd {
			break
		}
	}
	return chunks, nil
}

// chunkCRC computes the PNG CRC32 over type and data.
func chunkCRC(typ string, data []byte) uint32 {
	h := crc32.NewIEEE()
	h.Write([]byte(typ))
	h.Write(data)
	return h.Sum32()
}

// encodeChunk serializes a chunk with a freshly computed CRC.
func encodeChunk(typ string, data []byte) []byte {
	out := make([]byte, 0, 12+len(data))
	out = binutil.AppendUint32BE(out, uint32(len(data)))
	out = append(out, typ...)
	out = append(out, data...)
	return binutil.AppendUint32BE(out, chunkCRC(typ, data))
}

// TextChunk is a decoded tEXt, zTXt or iTXt chunk.
type TextChunk struct {
	Type    string
	Keyword string
	Text    string
}

// DecodeText decodes the keyword and text of a text chunk.
func DecodeText(c Chunk) (TextChunk, error) {
	keyword, rest, found := bytes.Cut(c.Data, []byte{0})
	if !found {
		return TextChunk{}, fmt.Errorf("%s chunk has no keyword separator", c.Type)
	}
	tc := TextChunk{Type: c.Type, Keyword: string(keyword)}

	switch c.Type {
	case TypeText:
		tc.Text = string(rest)
	case TypeCompressedText:
		if len(rest) < 1 {
			return TextChunk{}, fmt.Errorf("zTXt chunk %q is truncated", tc.Keyword)
		}
		text, err := inflate(rest[1:])
		if err != nil {
			return TextChunk{}, fmt.Errorf("zTXt chunk %q: %w", tc.Keyword, err)
		}
		tc.Text = string(text)
	case TypeIntlText:
		// compression flag, compression method, language tag\0, translated keyword\0, text
		if len(rest) < 2 {
			return TextChunk{}, fmt.Errorf("iTXt chunk %q is truncated", tc.Keyword)
		}
		compressed := rest[0] == 1
		rest = rest[2:]
		_, rest, found = bytes.Cut(rest, []byte{0})
		if !found {
			return TextChunk{}, fmt.Errorf("iTXt chunk %q has no language tag", tc.Keyword)
		}
		_, rest, found = bytes.Cut(rest, []byte{0})
		if !found {
			return TextChunk{}, fmt.Errorf("iTXt chunk %q has no translated keyword", tc.Keyword)
		}
		if compressed {
			text, err := inflate(rest)
			if err != nil {
				return TextChunk{}, fmt.Errorf("iTXt chunk %q: %w", tc.Keyword, err)
			}
			rest = text
		}
		tc.Text = string(rest)
	default:
		return TextChunk{}, fmt.Errorf("%s is not a text chunk", c.Type)
	}
	return tc, nil
}

// inflate decompresses a zlib stream, refusing output larger than MaxTextSize.
func inflate(b []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	out, err := io.ReadAll(io.LimitReader(zr, MaxTextSize+1))
	if err != nil {
		return nil, err
	}
	if len(out) > MaxTextSize {
		return nil, errors.NewSizeLimitExceeded("json", "", MaxTextSize, int64(len(out)))
	}
	return out, nil
}

// encodeText builds tEXt chunk data: keyword, NUL, text.
func encodeText(keyword, text string) []byte {
	data := make([]byte, 0, len(keyword)+1+len(text))
	data = append(data, keyword...)
	data = append(data, 0)
	return append(data, text...)
}

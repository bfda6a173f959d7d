package card

import (
	"net/http"
	"path"
	"strings"

	"github.com/hpungsan/cardforge/internal/binutil"
)

// Asset types used in CCv3 descriptors.
const (
	AssetTypeIcon       = "icon"
	AssetTypeBackground = "background"
	AssetTypeUserIcon   = "user_icon"
	AssetTypeEmotion    = "emotion"
	AssetTypeOther      = "other"

	MainAssetName = "main"
)

// AssetDescriptor is the card-side declaration of a binary asset.
type AssetDescriptor struct {
	Type string `json:"type"`
	URI  string `json:"uri"`
	Name string `json:"name"`
	Ext  string `json:"ext"`
}

// IsMainIcon reports whether the descriptor is the portrait (type icon, name main).
func (d AssetDescriptor) IsMainIcon() bool {
	return d.Type == AssetTypeIcon && d.Name == MainAssetName
}

// ExtractedAsset pairs a descriptor with the bytes found for it. Buffer is nil when
// the asset was declared but no data was located; that is a warning, not an error.
// Buffer is always a fresh copy, never a view into the container it came from.
type ExtractedAsset struct {
	Path       string          `json:"path,omitempty"`
	Descriptor AssetDescriptor `json:"descriptor"`
	Buffer     []byte          `json:"-"`
}

// Found reports whether bytes were located for the asset.
func (a ExtractedAsset) Found() bool {
	return a.Buffer != nil
}

// Size returns the buffer length.
func (a ExtractedAsset) Size() int {
	return len(a.Buffer)
}

// ExtOf returns the lowercased extension of p without the dot.
func ExtOf(p string) string {
	return strings.ToLower(strings.TrimPrefix(path.Ext(p), "."))
}

// MediaKind groups file extensions for archive layout.
func MediaKind(ext string) string {
	switch strings.ToLower(ext) {
	case "png", "jpg", "jpeg", "webp", "gif", "avif", "bmp":
		return "images"
	case "mp3", "wav", "ogg", "flac", "m4a", "opus":
		return "audio"
	case "mp4", "webm", "mov", "mkv":
		return "video"
	default:
		return "other"
	}
}

// SniffImageExt names the image type of b from its leading bytes, defaulting to png.
func SniffImageExt(b []byte) string {
	if binutil.IsPNG(b) {
		return "png"
	}
	switch http.DetectContentType(b) {
	case "image/jpeg":
		return "jpg"
	case "image/webp":
		return "webp"
	case "image/gif":
		return "gif"
	case "image/bmp":
		return "bmp"
	}
	return "png"
}

// MimeFromExt maps a file extension to a MIME type for data URIs and previews.
func MimeFromExt(ext string) string {
	switch strings.ToLower(ext) {
	case "png":
		return "image/png"
	case "jpg", "jpeg":
		return "image/jpeg"
	case "webp":
		return "image/webp"
	case "gif":
		return "image/gif"
	case "avif":
		return "image/avif"
	case "mp3":
		return "audio/mpeg"
	case "wav":
		return "audio/wav"
	case "ogg", "opus":
		return "audio/ogg"
	case "mp4":
		return "video/mp4"
	case "webm":
		return "video/webm"
	case "json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}

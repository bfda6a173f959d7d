// Package uri classifies the asset reference strings that appear in card JSON.
package uri

import (
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/hpungsan/cardforge/internal/binutil"
)

// Scheme identifies which reference convention a URI string follows.
type Scheme string

const (
	SchemeEmbedded  Scheme = "embeded" // sic: the misspelling is what producers write
	SchemeCCDefault Scheme = "ccdefault"
	SchemeHTTPS     Scheme = "https"
	SchemeHTTP      Scheme = "http"
	SchemeData      Scheme = "data"
	SchemeFile      Scheme = "file"
	SchemeInternal  Scheme = "internal"
	SchemePNGChunk  Scheme = "pngchunk"
	SchemeUnknown   Scheme = "unknown"
)

// Prefixes as they appear in card JSON.
const (
	EmbeddedPrefix  = "embeded://"
	CCDefaultPrefix = "ccdefault:"
	FilePrefix      = "file://"

	// ExtAssetChunkPrefix starts the keyword of PNG text chunks carrying asset payloads.
	ExtAssetChunkPrefix = "chara-ext-asset_"
)

var (
	dataURIRegex   = regexp.MustCompile(`^data:([^;,]+)?(;base64)?,(.*)$`)
	internalIDRegx = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// ParsedURI is the read-only classification of one asset reference.
// Only the fields relevant to Scheme are populated.
type ParsedURI struct {
	Scheme Scheme `json:"scheme"`
	Raw    string `json:"raw"`

	// Path is set for embeded and file.
	Path string `json:"path,omitempty"`

	// URL is set for http and https.
	URL string `json:"url,omitempty"`

	// MimeType, Base64 and Data are set for data.
	MimeType string `json:"mime_type,omitempty"`
	Base64   bool   `json:"base64,omitempty"`
	Data     string `json:"data,omitempty"`

	// ID is set for internal and pngchunk.
	ID string `json:"id,omitempty"`

	// ChunkKeys lists PNG chunk keywords to try, in order, for pngchunk.
	ChunkKeys []string `json:"chunk_keys,omitempty"`
}

// Parse classifies s. It never fails; unrecognised input yields SchemeUnknown.
func Parse(s string) ParsedURI {
	p := ParsedURI{Raw: s}

	switch {
	case strings.HasPrefix(s, "__asset:"):
		p.Scheme = SchemePNGChunk
		p.ID = strings.TrimPrefix(s, "__asset:")
		p.ChunkKeys = ChunkCandidates(p.ID)
	case strings.HasPrefix(s, "asset:"):
		p.Scheme = SchemePNGChunk
		p.ID = strings.TrimPrefix(s, "asset:")
		p.ChunkKeys = ChunkCandidates(p.ID)
	case strings.HasPrefix(s, CCDefaultPrefix):
		p.Scheme = SchemeCCDefault
	case strings.HasPrefix(s, EmbeddedPrefix):
		p.Scheme = SchemeEmbedded
		p.Path = strings.TrimPrefix(s, EmbeddedPrefix)
	case strings.HasPrefix(s, "https://"):
		p.Scheme = SchemeHTTPS
		p.URL = s
	case strings.HasPrefix(s, "http://"):
		p.Scheme = SchemeHTTP
		p.URL = s
	case strings.HasPrefix(s, "data:"):
		m := dataURIRegex.FindStringSubmatch(s)
		if m == nil {
			p.Scheme = SchemeUnknown
			return p
		}
		p.Scheme = SchemeData
		p.MimeType = m[1]
		if p.MimeType == "" {
			p.MimeType = "text/plain"
		}
		p.Base64 = m[2] != ""
		p.Data = m[3]
	case strings.HasPrefix(s, FilePrefix):
		p.Scheme = SchemeFile
		p.Path = strings.TrimPrefix(s, FilePrefix)
	case internalIDRegx.MatchString(s):
		p.Scheme = SchemeInternal
		p.ID = s
	default:
		p.Scheme = SchemeUnknown
	}

	return p
}

// ChunkCandidates returns the PNG chunk keywords a pngchunk reference to id may be
// stored under, most likely first. Producers disagree on the convention, so all are kept.
func ChunkCandidates(id string) []string {
	return []string{
		id,
		"asset:" + id,
		"__asset:" + id,
		"__asset_" + id,
		ExtAssetChunkPrefix + id,
		ExtAssetChunkPrefix + ":" + id,
	}
}

// ResolveChunk finds the chunk keyword p refers to among keys. Candidates are tried in
// order, then any key starting with chara-ext-asset_ whose suffix (minus an optional
// colon) equals the id.
func (p ParsedURI) ResolveChunk(keys map[string]string) (string, bool) {
	if p.Scheme != SchemePNGChunk {
		return "", false
	}
	for _, k := range p.ChunkKeys {
		if _, ok := keys[k]; ok {
			return k, true
		}
	}

	sorted := make([]string, 0, len(keys))
	for k := range keys {
		if strings.HasPrefix(k, ExtAssetChunkPrefix) {
			sorted = append(sorted, k)
		}
	}
	sort.Strings(sorted)
	for _, k := range sorted {
		suffix := strings.TrimPrefix(strings.TrimPrefix(k, ExtAssetChunkPrefix), ":")
		if suffix == p.ID {
			return k, true
		}
	}
	return "", false
}

// DecodeData returns the payload of a data URI.
func (p ParsedURI) DecodeData() ([]byte, error) {
	if p.Base64 {
		return binutil.DecodeBase64(p.Data)
	}
	s, err := url.PathUnescape(p.Data)
	if err != nil {
		return nil, err
	}
	return []byte(s), nil
}

// SafetyOptions opts in to schemes that are unsafe by default.
type SafetyOptions struct {
	AllowHTTP bool
	AllowFile bool
}

// IsSafe reports whether the reference may be followed. unknown is never safe.
func (p ParsedURI) IsSafe(opts SafetyOptions) bool {
	switch p.Scheme {
	case SchemeEmbedded, SchemeCCDefault, SchemeInternal, SchemeData, SchemeHTTPS, SchemePNGChunk:
		return true
	case SchemeHTTP:
		return opts.AllowHTTP
	case SchemeFile:
		return opts.AllowFile
	default:
		return false
	}
}

// IsSafe parses s and applies ParsedURI.IsSafe.
func IsSafe(s string, opts SafetyOptions) bool {
	return Parse(s).IsSafe(opts)
}

// IsRemote reports whether the reference points at the network.
func (p ParsedURI) IsRemote() bool {
	return p.Scheme == SchemeHTTP || p.Scheme == SchemeHTTPS
}

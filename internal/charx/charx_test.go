package charx

import (
	"bytes"
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/cardforge/internal/archive"
	"github.com/hpungsan/cardforge/internal/card"
	"github.com/hpungsan/cardforge/internal/errors"
)

func testCard() *card.V3 {
	return card.NewV3(card.V3Data{
		Data: card.Data{
			Name:        "Aria",
			Description: "A traveling bard.",
			FirstMes:    "Hello, {{user}}.",
			Tags:        []string{"fantasy"},
			Extensions:  map[string]any{"source": "test"},
		},
		Assets: []card.AssetDescriptor{
			{Type: "background", URI: "https://cdn.test/bg.png", Name: "bg", Ext: "png"},
		},
	})
}

// rawArchive writes entries verbatim, for packages Build would never produce.
func rawArchive(t *testing.T, entries ...[2]string) []byte {
	t.Helper()
	w, err := archive.NewWriter(6, time.Time{})
	require.NoError(t, err)
	for _, e := range entries {
		require.NoError(t, w.Add(e[0], []byte(e[1])))
	}
	out, err := w.Bytes()
	require.NoError(t, err)
	return out
}

func TestBuildExtract_RoundTrip(t *testing.T) {
	assets := []WriteAsset{
		{Type: "emotion", Name: "happy", Ext: "PNG", Data: []byte("happy-bytes")},
		{Name: "portrait", Ext: "png", Data: []byte("main-bytes"), IsMain: true},
		{Type: "emotion", Name: "angry", Ext: "webp", Data: []byte("angry-bytes")},
		{Type: "other", Name: "theme", Ext: "mp3", Data: []byte("audio-bytes")},
	}

	built, err := Build(testCard(), assets, DefaultBuildOptions())
	require.NoError(t, err)
	require.Equal(t, 4, built.AssetCount)

	res, err := Extract(context.Background(), built.Archive, DefaultOptions())
	require.NoError(t, err)
	require.Equal(t, built.Card.Data, res.Card.Data)

	byName := map[string][]byte{}
	for _, a := range res.Assets {
		if a.Found() {
			byName[a.Descriptor.Name] = a.Buffer
		}
	}
	require.Equal(t, []byte("main-bytes"), byName["main"])
	require.Equal(t, []byte("happy-bytes"), byName["happy"])
	require.Equal(t, []byte("angry-bytes"), byName["angry"])
	require.Equal(t, []byte("audio-bytes"), byName["theme"])

	// deterministic (type, name) order after the kept remote descriptor
	var order []string
	for _, d := range res.Card.Data.Assets[1:] {
		order = append(order, d.Type+"/"+d.Name)
	}
	require.Equal(t, []string{"emotion/angry", "emotion/happy", "icon/main", "other/theme"}, order)
	require.Equal(t, "embeded://assets/icon/images/main.png", res.Card.Data.Assets[3].URI)
	require.Equal(t, "embeded://assets/other/audio/theme.mp3", res.Card.Data.Assets[4].URI)

	v := Validate(res)
	require.True(t, v.Valid)
	require.Empty(t, v.Warnings)
	require.NoError(t, v.Err())
}

func TestBuild_Deterministic(t *testing.T) {
	assets := []WriteAsset{{Type: "icon", Name: "main", Ext: "png", Data: []byte("x")}}
	a, err := Build(testCard(), assets, DefaultBuildOptions())
	require.NoError(t, err)
	b, err := Build(testCard(), assets, DefaultBuildOptions())
	require.NoError(t, err)
	require.Equal(t, a.Archive, b.Archive)
}

func TestBuild_StoreLevel(t *testing.T) {
	built, err := Build(testCard(), []WriteAsset{{Type: "icon", Name: "main", Ext: "png", Data: []byte("x")}}, BuildOptions{})
	require.NoError(t, err)
	res, err := Extract(context.Background(), built.Archive, DefaultOptions())
	require.NoError(t, err)
	require.Equal(t, "Aria", res.Card.Data.Name)
}

func TestDedupeNames(t *testing.T) {
	in := []WriteAsset{
		{Type: "icon", Name: "main"},
		{Type: "icon", Name: "main"},
		{Type: "emotion", Name: "main"},
		{Type: "icon", Name: "main"},
		{Type: "icon", Name: "main_1"},
	}

	out := DedupeNames(in)
	require.Equal(t, "main", out[0].Name)
	require.Equal(t, "main_1", out[1].Name)
	require.Equal(t, "main", out[2].Name, "other types do not collide")
	require.Equal(t, "main_2", out[3].Name)
	require.Equal(t, "main_1_1", out[4].Name)
	require.Equal(t, "main", in[1].Name, "input untouched")
}

func TestBuild_DuplicateMain(t *testing.T) {
	built, err := Build(testCard(), []WriteAsset{
		{Type: "icon", Name: "main", Ext: "png", Data: []byte("a")},
		{Type: "icon", Name: "main", Ext: "png", Data: []byte("b")},
	}, DefaultBuildOptions())
	require.NoError(t, err)

	res, err := Extract(context.Background(), built.Archive, DefaultOptions())
	require.NoError(t, err)
	var names []string
	for _, a := range res.Assets {
		if a.Descriptor.Type == "icon" {
			names = append(names, a.Descriptor.Name)
		}
	}
	require.Equal(t, []string{"main", "main_1"}, names)
}

func TestExtract_JunkPrefix(t *testing.T) {
	built, err := Build(testCard(), []WriteAsset{{Type: "icon", Name: "main", Ext: "png", Data: []byte("img")}}, DefaultBuildOptions())
	require.NoError(t, err)

	sfx := append(bytes.Repeat([]byte{0x4d, 0x5a, 0x90, 0x00}, 64), built.Archive...)
	res, err := Extract(context.Background(), sfx, DefaultOptions())
	require.NoError(t, err)
	require.Equal(t, "Aria", res.Card.Data.Name)
}

func TestExtract_TotalSizeExceededByOneByte(t *testing.T) {
	assets := []WriteAsset{
		{Type: "emotion", Name: "a", Ext: "png", Data: bytes.Repeat([]byte("a"), 100)},
		{Type: "emotion", Name: "b", Ext: "png", Data: bytes.Repeat([]byte("b"), 100)},
	}
	built, err := Build(testCard(), assets, DefaultBuildOptions())
	require.NoError(t, err)

	cardSize := int64(len(mustJSON(t, built.Card)))
	opts := DefaultOptions()

	opts.Limits.MaxTotalSize = cardSize + 200
	_, err = Extract(context.Background(), built.Archive, opts)
	require.NoError(t, err)

	opts.Limits.MaxTotalSize = cardSize + 199
	res, err := Extract(context.Background(), built.Archive, opts)
	require.Nil(t, res)
	require.True(t, errors.Is(err, errors.ErrSizeLimitExceeded), "got %v", err)
}

func TestExtract_AssetSizeLimit(t *testing.T) {
	built, err := Build(testCard(), []WriteAsset{{Type: "icon", Name: "main", Ext: "png", Data: make([]byte, 1024)}}, DefaultBuildOptions())
	require.NoError(t, err)

	opts := DefaultOptions()
	opts.Limits.MaxAssetSize = 1023
	_, err = Extract(context.Background(), built.Archive, opts)
	require.True(t, errors.Is(err, errors.ErrSizeLimitExceeded))
}

func TestExtract_MissingCard(t *testing.T) {
	buf := rawArchive(t, [2]string{"assets/icon/images/main.png", "x"})
	_, err := Extract(context.Background(), buf, DefaultOptions())
	require.True(t, errors.Is(err, errors.ErrMissingRequired))
}

func TestExtract_CardMustBeV3(t *testing.T) {
	buf := rawArchive(t, [2]string{"card.json", `{"spec":"chara_card_v2","data":{"name":"Old"}}`})
	_, err := Extract(context.Background(), buf, DefaultOptions())
	require.True(t, errors.Is(err, errors.ErrSpecMismatch))

	buf = rawArchive(t, [2]string{"card.json", `{"name":"legacy"}`})
	_, err = Extract(context.Background(), buf, DefaultOptions())
	require.True(t, errors.Is(err, errors.ErrSpecMismatch))
}

func TestExtract_NotZip(t *testing.T) {
	_, err := Extract(context.Background(), []byte("plain text"), DefaultOptions())
	require.True(t, errors.Is(err, errors.ErrMalformedContainer))
}

func TestExtract_MetadataAndModule(t *testing.T) {
	buf := rawArchive(t,
		[2]string{"card.json", `{"spec":"chara_card_v3","data":{"name":"M"}}`},
		[2]string{"x_meta/1.json", `{"type":"png"}`},
		[2]string{"x_meta/2.json", `not json`},
		[2]string{"x_meta/notanumber.json", `{}`},
		[2]string{"module.risum", "\x00\x01risum"},
	)

	res, err := Extract(context.Background(), buf, DefaultOptions())
	require.NoError(t, err)
	require.Len(t, res.Metadata, 1)
	require.Equal(t, "png", res.Metadata[1]["type"])
	require.Equal(t, []byte("\x00\x01risum"), res.ModuleRisum)

	v := Validate(res)
	require.True(t, v.Valid)
	require.Len(t, v.Warnings, 1, "missing main icon warning")
}

func TestExtract_DescriptorMatching(t *testing.T) {
	cardJSON := `{"spec":"chara_card_v3","data":{"name":"D","assets":[
		{"type":"icon","uri":"embeded://assets/icon/images/main.png","name":"main","ext":"png"},
		{"type":"emotion","uri":"embeded://assets/emotion/images/gone.png","name":"gone","ext":"png"},
		{"type":"emotion","uri":"data:image/png;base64,aGk=","name":"inline","ext":"png"},
		{"type":"background","uri":"ccdefault:","name":"bg","ext":"png"},
		{"type":"other","uri":"ftp://nope/x.bin","name":"weird","ext":"bin"}
	]}}`
	buf := rawArchive(t,
		[2]string{"card.json", cardJSON},
		[2]string{"assets/icon/images/main.png", "portrait"},
	)

	res, err := Extract(context.Background(), buf, DefaultOptions())
	require.NoError(t, err)
	require.Len(t, res.Assets, 4)
	require.Equal(t, []byte("portrait"), res.Assets[0].Buffer)
	require.False(t, res.Assets[1].Found())
	require.Equal(t, []byte("hi"), res.Assets[2].Buffer)
	require.False(t, res.Assets[3].Found())
	require.Len(t, res.Rejected, 1)
	require.Equal(t, "weird", res.Rejected[0].Name)

	v := Validate(res)
	require.False(t, v.Valid)
	require.Equal(t, []string{"assets/emotion/images/gone.png"}, v.MissingAssets)
	require.True(t, errors.Is(v.Err(), errors.ErrAssetUnresolved))
}

func TestExtract_Cancelled(t *testing.T) {
	built, err := Build(testCard(), nil, DefaultBuildOptions())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Extract(ctx, built.Archive, DefaultOptions())
	require.True(t, errors.Is(err, errors.ErrCancelled))
}

func TestExtract_RemoteFetch(t *testing.T) {
	var descs []card.AssetDescriptor
	for i := 0; i < 12; i++ {
		descs = append(descs, card.AssetDescriptor{
			Type: "emotion", Name: fmt.Sprintf("e%d", i), Ext: "png",
			URI: fmt.Sprintf("https://cdn.test/%d.png", i),
		})
	}
	descs = append(descs, card.AssetDescriptor{Type: "other", Name: "plain", Ext: "png", URI: "http://cdn.test/plain.png"})
	c := card.NewV3(card.V3Data{Data: card.Data{Name: "Remote"}, Assets: descs})

	built, err := Build(c, nil, DefaultBuildOptions())
	require.NoError(t, err)

	var inFlight, peak atomic.Int32
	fetcher := FetcherFunc(func(ctx context.Context, url string) ([]byte, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		if url == "https://cdn.test/3.png" {
			return nil, fmt.Errorf("404")
		}
		return []byte(url), nil
	})

	opts := DefaultOptions()
	opts.FetchRemote = true
	opts.Fetcher = fetcher

	res, err := Extract(context.Background(), built.Archive, opts)
	require.NoError(t, err)
	require.LessOrEqual(t, peak.Load(), int32(DefaultFetchConcurrency))

	for i, a := range res.Assets[:12] {
		if i == 3 {
			require.False(t, a.Found())
			continue
		}
		require.Equal(t, []byte(a.Descriptor.URI), a.Buffer)
	}
	require.False(t, res.Assets[12].Found(), "http needs an explicit opt-in")

	joined := fmt.Sprint(res.Warnings)
	require.Contains(t, joined, "REMOTE_FETCH_FAILED")
	require.Contains(t, joined, "plain")
}

func mustJSON(t *testing.T, c *card.V3) []byte {
	t.Helper()
	b, err := card.Marshal(c)
	require.NoError(t, err)
	return b
}

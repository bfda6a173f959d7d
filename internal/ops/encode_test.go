package ops

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/cardforge/internal/binutil"
	"github.com/hpungsan/cardforge/internal/card"
	"github.com/hpungsan/cardforge/internal/config"
	"github.com/hpungsan/cardforge/internal/parser"
	"github.com/hpungsan/cardforge/internal/uri"
)

func parsedCharX(t *testing.T) *parser.ParsedCard {
	t.Helper()
	pc, err := parser.Parse(context.Background(), testCardCharX(t, testCardV3("Aria")), "aria.charx", ParserOptions(nil, nil))
	require.NoError(t, err)
	return pc
}

func reparse(t *testing.T, data []byte, f ExportFormat) *parser.ParsedCard {
	t.Helper()
	pc, err := parser.Parse(context.Background(), data, "out"+f.Ext(), ParserOptions(nil, nil))
	require.NoError(t, err)
	return pc
}

func TestFormatForExt(t *testing.T) {
	for ext, want := range map[string]ExportFormat{
		".json": ExportJSON, ".PNG": ExportPNG, ".charx": ExportCharX, ".voxpkg": ExportVoxpkg,
	} {
		got, ok := FormatForExt(ext)
		require.True(t, ok, ext)
		require.Equal(t, want, got)
	}
	_, ok := FormatForExt(".zip")
	require.False(t, ok)
}

func TestParseExportFormat(t *testing.T) {
	f, err := ParseExportFormat(" Voxta ")
	require.NoError(t, err)
	require.Equal(t, ExportVoxpkg, f)

	_, err = ParseExportFormat("gif")
	require.Error(t, err)
}

func TestEncode_JSONDropsAssets(t *testing.T) {
	data, warnings, err := Encode(BundleFromParsed(parsedCharX(t)), ExportJSON, nil)
	require.NoError(t, err)
	require.Len(t, warnings, 2)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	require.Equal(t, card.SpecV3, doc["spec"])
}

func TestEncode_PNGPlaceholder(t *testing.T) {
	b := Bundle{Card: testCardV3("Aria")}
	data, warnings, err := Encode(b, ExportPNG, nil)
	require.NoError(t, err)
	require.True(t, binutil.IsPNG(data))
	require.Len(t, warnings, 1)
	require.Contains(t, warnings[0], "placeholder")

	pc := reparse(t, data, ExportPNG)
	require.Equal(t, parser.FormatPNG, pc.Format)
	require.Equal(t, card.SpecV3, pc.Spec)
	require.Equal(t, "Aria", pc.Card.Common().Name)
}

func TestEncode_PNGKeepsImage(t *testing.T) {
	img := testImage(t)
	data, warnings, err := Encode(Bundle{Card: testCardV2("Bram"), MainImage: img}, ExportPNG, nil)
	require.NoError(t, err)
	require.Empty(t, warnings)

	pc := reparse(t, data, ExportPNG)
	require.Equal(t, card.SpecV2, pc.Spec)
	require.Equal(t, "Bram", pc.Card.Common().Name)
}

func TestEncode_CharXRoundTrip(t *testing.T) {
	src := parsedCharX(t)
	src.ModuleRisum = []byte("risum")
	src.XMeta = map[int]map[string]any{0: {"type": "image/png"}}

	data, warnings, err := Encode(BundleFromParsed(src), ExportCharX, nil)
	require.NoError(t, err)
	require.Empty(t, warnings)

	pc := reparse(t, data, ExportCharX)
	require.Equal(t, parser.FormatCharX, pc.Format)
	require.True(t, pc.Validation.Valid)
	require.Equal(t, src.MainImage, pc.MainImage)
	require.Len(t, pc.Assets, 1)
	require.Equal(t, "happy", pc.Assets[0].Descriptor.Name)
	require.Equal(t, []byte("risum"), pc.ModuleRisum)
	require.Contains(t, pc.XMeta, 0)
}

func TestEncode_CharXFromV2(t *testing.T) {
	data, _, err := Encode(Bundle{Card: testCardV2("Bram"), MainImage: testImage(t)}, ExportCharX, nil)
	require.NoError(t, err)

	pc := reparse(t, data, ExportCharX)
	require.Equal(t, card.SpecV3, pc.Spec)
	require.NotNil(t, pc.MainImage)
}

func TestEncode_CharXDropsDanglingEmbedded(t *testing.T) {
	c := testCardV3("Aria")
	c.Data.Assets = []card.AssetDescriptor{
		{Type: card.AssetTypeBackground, Name: "bg", Ext: "png", URI: uri.EmbeddedPrefix + "assets/background/images/bg.png"},
		{Type: card.AssetTypeIcon, Name: "main", Ext: "png", URI: "ccdefault:"},
	}
	data, warnings, err := Encode(Bundle{Card: c}, ExportCharX, nil)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	require.Contains(t, warnings[0], "bg.png")

	pc := reparse(t, data, ExportCharX)
	require.True(t, pc.Validation.Valid)
	descs := card.Assets(pc.Card)
	require.Len(t, descs, 1)
	require.Equal(t, "ccdefault:", descs[0].URI)
}

func TestEncode_VoxtaRoundTrip(t *testing.T) {
	src := parsedCharX(t)
	data, warnings, err := Encode(BundleFromParsed(src), ExportVoxpkg, config.DefaultConfig())
	require.NoError(t, err)
	require.Empty(t, warnings)

	pc := reparse(t, data, ExportVoxpkg)
	require.Equal(t, parser.FormatVoxta, pc.Format)
	require.Equal(t, "Aria", pc.Card.Common().Name)
	require.NotNil(t, pc.MainImage)
	require.True(t, pc.Metadata.HasLorebook)
}

func TestEncode_PNGSourcePortraitHasNoCardChunks(t *testing.T) {
	src, err := parser.Parse(context.Background(), testCardPNG(t, testCardV3("Aria")), "aria.png", ParserOptions(nil, nil))
	require.NoError(t, err)
	require.True(t, bytes.Contains(src.MainImage, []byte("ccv3")))

	for _, f := range []ExportFormat{ExportCharX, ExportVoxpkg} {
		t.Run(string(f), func(t *testing.T) {
			data, _, err := Encode(BundleFromParsed(src), f, nil)
			require.NoError(t, err)

			pc := reparse(t, data, f)
			require.NotEmpty(t, pc.MainImage)
			require.True(t, binutil.IsPNG(pc.MainImage))
			require.False(t, bytes.Contains(pc.MainImage, []byte("ccv3")))
			require.False(t, bytes.Contains(pc.MainImage, []byte("chara")))
		})
	}
}

func TestEncode_Errors(t *testing.T) {
	_, _, err := Encode(Bundle{}, ExportJSON, nil)
	require.Error(t, err)

	_, _, err = Encode(Bundle{Card: testCardV2("x")}, ExportFormat("gif"), nil)
	require.Error(t, err)
}

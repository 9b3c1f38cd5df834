package filters

import (
	"bytes"
	"compress/flate"
	"compress/lzw"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/pdftools/ir/raw"
)

func predictorParams(columns int) *raw.DictObj {
	params := raw.Dict()
	params.Set("Predictor", raw.NumberInt(12))
	params.Set("Colors", raw.NumberInt(1))
	params.Set("BitsPerComponent", raw.NumberInt(8))
	params.Set("Columns", raw.NumberInt(int64(columns)))
	return params
}

func TestFlateDecodeZlib(t *testing.T) {
	enc, err := FlateEncode([]byte("hello world"), 6)
	require.NoError(t, err)

	out, err := NewFlateDecoder(DefaultLimits).Decode(context.Background(), enc, nil)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(out))
}

func TestFlateDecodeRawDeflate(t *testing.T) {
	var buf bytes.Buffer
	w, _ := flate.NewWriter(&buf, flate.BestSpeed)
	w.Write([]byte("hello world"))
	w.Close()

	out, err := NewFlateDecoder(DefaultLimits).Decode(context.Background(), buf.Bytes(), nil)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(out))
}

func TestFlateDecodeWithPredictor(t *testing.T) {
	// Two PNG rows: Sub then Up.
	enc, err := FlateEncode([]byte{1, 10, 12, 20, 2, 1, 1, 1}, 6)
	require.NoError(t, err)

	out, err := NewFlateDecoder(DefaultLimits).Decode(context.Background(), enc, predictorParams(3))
	require.NoError(t, err)
	assert.Equal(t, []byte{10, 22, 42, 11, 23, 43}, out)
}

func TestFlateDecodeSizeLimit(t *testing.T) {
	enc, err := FlateEncode(make([]byte, 4096), 9)
	require.NoError(t, err)

	_, err = NewFlateDecoder(Limits{MaxDecompressedSize: 1024}).Decode(context.Background(), enc, nil)
	assert.ErrorIs(t, err, ErrSizeLimit)
}

func TestLZWDecode(t *testing.T) {
	var buf bytes.Buffer
	w := lzw.NewWriter(&buf, lzw.MSB, 8)
	input := []byte("hello hello hello")
	_, err := w.Write(input)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	params := raw.Dict()
	params.Set("EarlyChange", raw.NumberInt(0))
	out, err := NewLZWDecoder().Decode(context.Background(), buf.Bytes(), params)
	require.NoError(t, err)
	assert.Equal(t, input, out)
}

func TestLZWDecodeSpecExample(t *testing.T) {
	// 9-bit codes 256 45 258 258 65 259 66 257 encode "-----A---B".
	data := []byte{0x80, 0x0B, 0x60, 0x50, 0x22, 0x0C, 0x0C, 0x85, 0x01}
	out, err := NewLZWDecoder().Decode(context.Background(), data, nil)
	require.NoError(t, err)
	assert.Equal(t, "-----A---B", string(out))
}

func TestRunLengthDecode(t *testing.T) {
	// literal run of 3 bytes (len=2), then repeat 'A' 2 times (len=255 => count=2), then EOD 128
	data := []byte{2, 'h', 'i', '!', 255, 'A', 128}
	out, err := NewRunLengthDecoder().Decode(context.Background(), data, nil)
	require.NoError(t, err)
	assert.Equal(t, "hi!AA", string(out))
}

func TestASCII85Decode(t *testing.T) {
	out, err := NewASCII85Decoder().Decode(context.Background(), []byte("<~87cURD_*#4DfTZ)+T~>"), nil)
	require.NoError(t, err)
	assert.Equal(t, "Hello, World!", string(out))
}

func TestASCIIHexDecode(t *testing.T) {
	out, err := NewASCIIHexDecoder().Decode(context.Background(), []byte("68656c6c 6f20776f726c64>"), nil)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(out))

	out, err = NewASCIIHexDecoder().Decode(context.Background(), []byte("414>"), nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x41, 0x40}, out)
}

func TestPipelineStopsAtImageCodec(t *testing.T) {
	p := Default()
	out, rest, err := p.Decode(context.Background(), []byte("4142>"), []string{"AHx", "DCTDecode"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "AB", string(out))
	assert.Equal(t, []string{"DCTDecode"}, rest)
}

func TestPipelineUnknownFilter(t *testing.T) {
	_, _, err := Default().Decode(context.Background(), []byte{0}, []string{"Bogus"}, nil)
	assert.Error(t, err)
}

func TestExtractFilters(t *testing.T) {
	doc := raw.NewDocument()
	parms := doc.Add(predictorParams(4))
	dict := raw.Dict()
	dict.Set("Filter", raw.NewArray(raw.NameLiteral("ASCIIHexDecode"), raw.NameLiteral("FlateDecode")))
	dict.Set("DecodeParms", raw.NewArray(raw.NullObj{}, parms))

	names, params := ExtractFilters(doc, dict)
	assert.Equal(t, []string{"ASCIIHexDecode", "FlateDecode"}, names)
	require.Len(t, params, 2)
	assert.Nil(t, params[0])
	assert.Equal(t, int64(4), params[1].Get("Columns").(raw.NumberObj).I)
}

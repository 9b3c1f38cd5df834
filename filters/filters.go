package filters

import (
	"bytes"
	"context"
	stdascii85 "encoding/ascii85"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zlib"

	"github.com/wudi/pdftools/ir/raw"
)

type Decoder interface {
	Name() string
	Decode(ctx context.Context, input []byte, params *raw.DictObj) ([]byte, error)
}

// Limits bounds the work a single stream may cause.
type Limits struct {
	MaxDecompressedSize int64
}

// DefaultLimits caps one decoded stream at 256 MiB.
var DefaultLimits = Limits{MaxDecompressedSize: 256 << 20}

var ErrSizeLimit = errors.New("filters: decompressed size exceeds limit")

// imageCodecs are left encoded; callers hand the bytes to an image decoder.
var imageCodecs = map[string]bool{
	"DCTDecode":      true,
	"JPXDecode":      true,
	"JBIG2Decode":    true,
	"CCITTFaxDecode": true,
}

// IsImageCodec reports whether name is a filter that produces image-codec bytes.
func IsImageCodec(name string) bool { return imageCodecs[name] }

type Pipeline struct {
	decoders map[string]Decoder
	limits   Limits
}

// NewPipeline constructs a pipeline with provided decoders and limits.
func NewPipeline(limits Limits, decoders ...Decoder) *Pipeline {
	p := &Pipeline{decoders: make(map[string]Decoder), limits: limits}
	for _, d := range decoders {
		p.decoders[d.Name()] = d
	}
	return p
}

// Default returns a pipeline with every general-purpose decoder registered.
func Default() *Pipeline { return WithLimits(DefaultLimits) }

// WithLimits is Default bounded by limits instead of DefaultLimits.
func WithLimits(limits Limits) *Pipeline {
	return NewPipeline(limits,
		NewFlateDecoder(limits),
		NewLZWDecoder(),
		NewASCII85Decoder(),
		NewASCIIHexDecoder(),
		NewRunLengthDecoder(),
	)
}

// abbreviations used by inline images
var shortNames = map[string]string{
	"Fl":  "FlateDecode",
	"LZW": "LZWDecode",
	"A85": "ASCII85Decode",
	"AHx": "ASCIIHexDecode",
	"RL":  "RunLengthDecode",
	"DCT": "DCTDecode",
	"CCF": "CCITTFaxDecode",
}

// Decode applies filters in order and stops at the first image codec. The
// names of the filters that were not applied are returned.
func (p *Pipeline) Decode(ctx context.Context, input []byte, names []string, params []*raw.DictObj) ([]byte, []string, error) {
	data := input
	for i, name := range names {
		if long, ok := shortNames[name]; ok {
			name = long
		}
		if imageCodecs[name] {
			return data, names[i:], nil
		}
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		dec, ok := p.decoders[name]
		if !ok {
			return nil, nil, fmt.Errorf("filters: unknown filter %s", name)
		}
		var param *raw.DictObj
		if i < len(params) {
			param = params[i]
		}
		out, err := dec.Decode(ctx, data, param)
		if err != nil {
			return nil, nil, fmt.Errorf("filters: %s: %w", name, err)
		}
		if p.limits.MaxDecompressedSize > 0 && int64(len(out)) > p.limits.MaxDecompressedSize {
			return nil, nil, ErrSizeLimit
		}
		data = out
	}
	return data, nil, nil
}

type flateDecoder struct{ limits Limits }

func (flateDecoder) Name() string { return "FlateDecode" }

func NewFlateDecoder(limits Limits) Decoder { return flateDecoder{limits: limits} }

// Decode inflates zlib data and falls back to raw deflate for producers that
// omit the header. Truncated streams yield whatever was recovered.
func (d flateDecoder) Decode(ctx context.Context, in []byte, params *raw.DictObj) ([]byte, error) {
	out, err := d.inflate(in)
	if err != nil {
		return nil, err
	}
	return applyPredictor(out, params)
}

func (d flateDecoder) inflate(in []byte) ([]byte, error) {
	max := d.limits.MaxDecompressedSize
	if max <= 0 {
		max = 1 << 62
	}
	var out bytes.Buffer
	zr, err := zlib.NewReader(bytes.NewReader(in))
	if err == nil {
		_, err = io.Copy(&out, io.LimitReader(zr, max+1))
		zr.Close()
		if int64(out.Len()) > max {
			return nil, ErrSizeLimit
		}
		if err == nil || out.Len() > 0 {
			return out.Bytes(), nil
		}
	}
	out.Reset()
	fr := flate.NewReader(bytes.NewReader(in))
	defer fr.Close()
	_, rerr := io.Copy(&out, io.LimitReader(fr, max+1))
	if int64(out.Len()) > max {
		return nil, ErrSizeLimit
	}
	if rerr != nil && out.Len() == 0 {
		return nil, rerr
	}
	return out.Bytes(), nil
}

// FlateEncode compresses data with zlib framing at the given level.
func FlateEncode(data []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type ascii85Decoder struct{}

func (ascii85Decoder) Name() string { return "ASCII85Decode" }

func (ascii85Decoder) Decode(ctx context.Context, in []byte, params *raw.DictObj) ([]byte, error) {
	trimmed := bytes.TrimSpace(in)
	trimmed = bytes.TrimPrefix(trimmed, []byte("<~"))
	if i := bytes.Index(trimmed, []byte("~>")); i >= 0 {
		trimmed = trimmed[:i]
	}
	out := make([]byte, len(trimmed)*4/5+8+4*bytes.Count(trimmed, []byte("z")))
	n, _, err := stdascii85.Decode(out, trimmed, true)
	if err != nil {
		return nil, err
	}
	return out[:n], nil
}

func NewASCII85Decoder() Decoder { return ascii85Decoder{} }

type asciiHexDecoder struct{}

func (asciiHexDecoder) Name() string { return "ASCIIHexDecode" }

func (asciiHexDecoder) Decode(ctx context.Context, in []byte, params *raw.DictObj) ([]byte, error) {
	out := make([]byte, 0, len(in)/2)
	var hi byte
	half := false
	for _, c := range in {
		if c == '>' {
			break
		}
		v, ok := hexValue(c)
		if !ok {
			continue
		}
		if half {
			out = append(out, hi<<4|v)
		} else {
			hi = v
		}
		half = !half
	}
	// odd length pads with 0
	if half {
		out = append(out, hi<<4)
	}
	return out, nil
}

func NewASCIIHexDecoder() Decoder { return asciiHexDecoder{} }

func hexValue(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

type runLengthDecoder struct{}

func (runLengthDecoder) Name() string { return "RunLengthDecode" }

func (runLengthDecoder) Decode(ctx context.Context, in []byte, params *raw.DictObj) ([]byte, error) {
	var out []byte
	for i := 0; i < len(in); {
		l := int(in[i])
		i++
		switch {
		case l == 128:
			return out, nil
		case l < 128:
			end := i + l + 1
			if end > len(in) {
				end = len(in)
			}
			out = append(out, in[i:end]...)
			i = end
		default:
			if i >= len(in) {
				return out, nil
			}
			for n := 0; n < 257-l; n++ {
				out = append(out, in[i])
			}
			i++
		}
	}
	return out, nil
}

func NewRunLengthDecoder() Decoder { return runLengthDecoder{} }

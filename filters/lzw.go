package filters

import (
	"context"

	"github.com/wudi/pdftools/ir/raw"
)

// compress/lzw cannot honour /EarlyChange, so the PDF variant is decoded here.
type lzwDecoder struct{}

func (lzwDecoder) Name() string { return "LZWDecode" }

func NewLZWDecoder() Decoder { return lzwDecoder{} }

const (
	lzwClear = 256
	lzwEOD   = 257
)

func (lzwDecoder) Decode(ctx context.Context, in []byte, params *raw.DictObj) ([]byte, error) {
	early := 1
	if params != nil {
		if n, ok := params.Get("EarlyChange").(raw.NumberObj); ok {
			early = int(n.Int())
		}
	}
	out := lzwDecode(in, early)
	return applyPredictor(out, params)
}

func lzwDecode(in []byte, early int) []byte {
	var (
		out    []byte
		table  [][]byte
		prev   []byte
		width  = 9
		bitBuf uint32
		bitCnt int
		pos    int
	)
	reset := func() {
		table = table[:0]
		for i := 0; i < 256; i++ {
			table = append(table, []byte{byte(i)})
		}
		table = append(table, nil, nil)
		width = 9
		prev = nil
	}
	reset()
	for {
		for bitCnt < width && pos < len(in) {
			bitBuf = bitBuf<<8 | uint32(in[pos])
			bitCnt += 8
			pos++
		}
		if bitCnt < width {
			return out
		}
		code := int(bitBuf>>(bitCnt-width)) & (1<<width - 1)
		bitCnt -= width
		switch {
		case code == lzwClear:
			reset()
			continue
		case code == lzwEOD:
			return out
		}
		var entry []byte
		switch {
		case code < len(table) && table[code] != nil:
			entry = table[code]
		case code == len(table) && prev != nil:
			entry = append(append([]byte(nil), prev...), prev[0])
		default:
			return out
		}
		out = append(out, entry...)
		if prev != nil && len(table) < 4096 {
			next := make([]byte, len(prev)+1)
			copy(next, prev)
			next[len(prev)] = entry[0]
			table = append(table, next)
		}
		prev = entry
		if len(table)+early >= 1<<width && width < 12 {
			width++
		}
	}
}

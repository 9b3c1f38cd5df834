package optimize

import (
	"context"

	"github.com/wudi/pdftools/document"
	"github.com/wudi/pdftools/filters"
	"github.com/wudi/pdftools/ir/raw"
	"github.com/wudi/pdftools/observability"
)

// compressStreams re-encodes every general-purpose stream with Flate at
// the configured level and keeps the result only when it is smaller.
// Streams ending in an image codec are left to the image pass.
func (o *Optimizer) compressStreams(ctx context.Context, rd *raw.Document) (int, error) {
	level := o.config.CompressionLevel
	if level <= 0 {
		level = 9
	}
	count := 0
	for _, ref := range rd.Refs() {
		if err := ctx.Err(); err != nil {
			return count, err
		}
		stm, ok := rd.Objects[ref].(*raw.StreamObj)
		if !ok || structural[rd.NameOf(stm.Dict.Get("Type"))] {
			continue
		}
		names, _ := filters.ExtractFilters(rd, stm.Dict)
		if hasImageCodec(names) {
			continue
		}
		data, err := document.DecodeStream(ctx, rd, stm)
		if err != nil {
			o.logger.Debug("stream left as is", observability.Int("object", ref.Num), observability.Error("error", err))
			continue
		}
		packed, err := filters.FlateEncode(data, level)
		if err != nil || len(packed) >= len(stm.Data) {
			continue
		}
		stm.Data = packed
		stm.Dict.Set("Filter", raw.NameLiteral("FlateDecode"))
		stm.Dict.Delete("DecodeParms")
		stm.Dict.Delete("Length")
		count++
	}
	return count, nil
}

func hasImageCodec(names []string) bool {
	for _, n := range names {
		switch n {
		case "DCT", "CCF":
			return true
		}
		if filters.IsImageCodec(n) {
			return true
		}
	}
	return false
}

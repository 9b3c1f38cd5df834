package tools

import (
	"context"
	"math"
	"os"

	"github.com/wudi/pdftools/observability"
	"github.com/wudi/pdftools/optimize"
)

// Compress recompresses images and streams at the chosen quality preset.
// When the result is not smaller than the input, the input is copied
// unchanged and the reduction is reported as zero.
func (t *Toolkit) Compress(ctx context.Context, in Input) (Output, error) {
	path, err := firstInput(in)
	if err != nil {
		return Output{}, err
	}
	doc, err := openPDF(ctx, path, "")
	if err != nil {
		return Output{}, err
	}
	quality := in.Params.String("quality")
	cfg, ok := optimize.Preset(quality)
	if !ok {
		quality = "medium"
		cfg, _ = optimize.Preset(quality)
	}
	stats, err := optimize.New(cfg, optimize.WithLogger(t.logger)).Optimize(ctx, doc)
	if err != nil {
		return Output{}, err
	}
	if err := savePDF(ctx, doc, in.Target); err != nil {
		return Output{}, err
	}

	before, err := os.Stat(path)
	if err != nil {
		return Output{}, err
	}
	after, err := os.Stat(in.Target)
	if err != nil {
		return Output{}, err
	}
	origSize, newSize := before.Size(), after.Size()
	if newSize >= origSize {
		if err := copyFile(path, in.Target); err != nil {
			return Output{}, err
		}
		newSize = origSize
	}
	reduction := 0.0
	if origSize > 0 {
		reduction = math.Round(float64(origSize-newSize)/float64(origSize)*1000) / 10
	}
	t.logger.Debug("compressed",
		observability.String("quality", quality),
		observability.Int("images_recompressed", stats.ImagesRecompressed),
		observability.Int("images_downsampled", stats.ImagesDownsampled),
		observability.Int("streams_compressed", stats.StreamsCompressed),
		observability.Int("objects_removed", stats.ObjectsRemoved),
		observability.Float64("reduction", reduction),
	)

	out := single(in)
	out.Extra = map[string]any{
		"original_size": origSize,
		"new_size":      newSize,
		"reduction":     reduction,
	}
	return out, nil
}

package ocr

import (
	"context"
	"fmt"
	"image"
)

// PageRenderer draws a page at a resolution. raster.Renderer satisfies it.
type PageRenderer interface {
	Render(ctx context.Context, i int, dpi float64) (*image.RGBA, error)
}

// RecognizePages renders pages 0..n-1 at dpi and runs engine over them,
// returning one result per page in page order. Batch engines receive every
// page in one call.
func RecognizePages(ctx context.Context, engine Engine, r PageRenderer, n, dpi int, opts ...InputOption) ([]Result, error) {
	inputs := make([]Input, 0, n)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := r.Render(ctx, i, float64(dpi))
		if err != nil {
			return nil, fmt.Errorf("render page %d: %w", i+1, err)
		}
		in, err := InputFromImage(img, i, append([]InputOption{WithDPI(dpi)}, opts...)...)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, in)
	}
	if b, ok := engine.(BatchEngine); ok {
		return b.RecognizeBatch(ctx, inputs)
	}
	results := make([]Result, 0, len(inputs))
	for _, in := range inputs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := engine.Recognize(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("recognize %s: %w", in.ID, err)
		}
		res.PageIndex = in.PageIndex
		results = append(results, res)
	}
	return results, nil
}

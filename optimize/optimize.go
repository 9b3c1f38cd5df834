package optimize

import (
	"context"
	"fmt"

	"github.com/wudi/pdftools/document"
	"github.com/wudi/pdftools/observability"
)

type Config struct {
	CombineIdenticalObjects bool
	RemoveUnreachable       bool
	CompressStreams         bool
	CompressionLevel        int     // zlib level; 0 means best compression
	ImageQuality            int     // JPEG quality 1-100, 0 leaves images alone
	ImageUpperPPI           float64 // 0 disables downsampling
}

// Preset returns the configuration for a named quality level: low, medium
// or high. Lower quality trades image fidelity for size.
func Preset(name string) (Config, bool) {
	base := Config{
		CombineIdenticalObjects: true,
		RemoveUnreachable:       true,
		CompressStreams:         true,
	}
	switch name {
	case "low":
		base.ImageUpperPPI, base.ImageQuality = 72, 30
	case "medium":
		base.ImageUpperPPI, base.ImageQuality = 110, 50
	case "high":
		base.ImageUpperPPI, base.ImageQuality = 150, 75
	default:
		return Config{}, false
	}
	return base, true
}

// Stats counts what a pass changed.
type Stats struct {
	ObjectsCombined    int
	ObjectsRemoved     int
	StreamsCompressed  int
	ImagesRecompressed int
	ImagesDownsampled  int
}

type Optimizer struct {
	config Config
	logger observability.Logger
}

// Option configures an Optimizer.
type Option func(*Optimizer)

// WithLogger sets the logger used for per-object diagnostics.
func WithLogger(l observability.Logger) Option {
	return func(o *Optimizer) { o.logger = l }
}

func New(config Config, opts ...Option) *Optimizer {
	o := &Optimizer{config: config, logger: observability.NopLogger{}}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Optimize rewrites doc in place. Images go first so that stream
// compression and deduplication see their final bytes.
func (o *Optimizer) Optimize(ctx context.Context, doc *document.Document) (Stats, error) {
	var stats Stats
	rd := doc.Raw

	if o.config.ImageQuality > 0 || o.config.ImageUpperPPI > 0 {
		if err := o.optimizeImages(ctx, doc, &stats); err != nil {
			return stats, fmt.Errorf("failed to optimize images: %w", err)
		}
	}

	if o.config.CompressStreams {
		n, err := o.compressStreams(ctx, rd)
		if err != nil {
			return stats, fmt.Errorf("failed to compress streams: %w", err)
		}
		stats.StreamsCompressed = n
	}

	if o.config.CombineIdenticalObjects {
		n, err := o.combineIdenticalObjects(ctx, rd)
		if err != nil {
			return stats, fmt.Errorf("failed to combine identical objects: %w", err)
		}
		stats.ObjectsCombined = n
	}

	if o.config.RemoveUnreachable {
		stats.ObjectsRemoved = removeUnreachable(doc)
	}

	o.logger.Debug("optimized",
		observability.Int("combined", stats.ObjectsCombined),
		observability.Int("removed", stats.ObjectsRemoved),
		observability.Int("streams", stats.StreamsCompressed),
		observability.Int("images", stats.ImagesRecompressed),
	)
	return stats, nil
}

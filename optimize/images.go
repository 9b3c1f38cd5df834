package optimize

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"math"

	"golang.org/x/image/draw"

	"github.com/wudi/pdftools/contentstream"
	"github.com/wudi/pdftools/document"
	"github.com/wudi/pdftools/extractor"
	"github.com/wudi/pdftools/ir/raw"
	"github.com/wudi/pdftools/observability"
)

type imageUsage struct {
	maxWidth  float64 // in points
	maxHeight float64 // in points
}

func (o *Optimizer) optimizeImages(ctx context.Context, doc *document.Document, stats *Stats) error {
	rd := doc.Raw
	usage := o.collectImageUsage(ctx, doc)
	for _, ref := range rd.Refs() {
		if err := ctx.Err(); err != nil {
			return err
		}
		stm, ok := rd.Objects[ref].(*raw.StreamObj)
		if !ok || rd.NameOf(stm.Dict.Get("Subtype")) != "Image" {
			continue
		}
		changed, resized := o.processImage(ctx, rd, stm, usage[ref])
		if changed {
			stats.ImagesRecompressed++
		}
		if resized {
			stats.ImagesDownsampled++
		}
	}
	return nil
}

// collectImageUsage records the largest size, in points, each image is
// drawn at. Images inside forms are measured through the form matrix.
func (o *Optimizer) collectImageUsage(ctx context.Context, doc *document.Document) map[raw.ObjectRef]imageUsage {
	rd := doc.Raw
	usage := make(map[raw.ObjectRef]imageUsage)
	var run func(ops []contentstream.Operation, ec *contentstream.ExecutionContext, depth int)
	run = func(ops []contentstream.Operation, ec *contentstream.ExecutionContext, depth int) {
		p := contentstream.NewProcessor()
		p.RegisterHandler("Do", contentstream.HandlerFunc(func(ec *contentstream.ExecutionContext, op contentstream.Operation) error {
			if len(op.Operands) == 0 || ec.Resources == nil {
				return nil
			}
			name, ok := op.Operands[0].(raw.NameObj)
			if !ok {
				return nil
			}
			xd := rd.DictOf(ec.Resources.Get("XObject"))
			if xd == nil {
				return nil
			}
			obj := xd.Get(name.Val)
			stm := rd.StreamOf(obj)
			if stm == nil {
				return nil
			}
			ctm := ec.GraphicsState.CTM
			switch rd.NameOf(stm.Dict.Get("Subtype")) {
			case "Image":
				ref, ok := obj.(raw.RefObj)
				if !ok {
					return nil
				}
				u := usage[ref.R]
				u.maxWidth = math.Max(u.maxWidth, math.Hypot(ctm[0], ctm[1]))
				u.maxHeight = math.Max(u.maxHeight, math.Hypot(ctm[2], ctm[3]))
				usage[ref.R] = u
			case "Form":
				if depth >= 8 {
					return nil
				}
				data, err := document.DecodeStream(ctx, rd, stm)
				if err != nil {
					return nil
				}
				sub, _ := contentstream.Parse(data)
				res := rd.DictOf(stm.Dict.Get("Resources"))
				if res == nil {
					res = ec.Resources
				}
				m := extractor.FormMatrix(rd, stm.Dict).Multiply(ctm)
				run(sub, contentstream.NewExecutionContext(m, res), depth+1)
			}
			return nil
		}))
		_ = p.Process(ctx, ops, ec)
	}
	for _, page := range doc.Pages() {
		ops, _ := contentstream.Parse(page.ContentData(ctx))
		run(ops, contentstream.NewExecutionContext(page.DisplayMatrix(), page.Resources()), 0)
	}
	return usage
}

// processImage recompresses one image as JPEG, downsampling it first when
// it holds more pixels than ImageUpperPPI needs at its largest drawn size.
// The stream is replaced only when the result is smaller.
func (o *Optimizer) processImage(ctx context.Context, rd *raw.Document, stm *raw.StreamObj, usage imageUsage) (changed, resized bool) {
	d := stm.Dict
	if b, ok := rd.Resolve(d.Get("ImageMask")).(raw.BoolObj); ok && b.V {
		return false, false
	}
	// Colour-key masks match exact sample values, which lossy coding breaks.
	if rd.ArrayOf(d.Get("Mask")) != nil {
		return false, false
	}
	asset, err := extractor.LoadImage(ctx, rd, stm)
	if err != nil || asset.BitsPerComponent == 1 {
		return false, false
	}
	img, err := asset.ToImage()
	if err != nil {
		o.logger.Debug("image left as is", observability.String("reason", err.Error()))
		return false, false
	}

	targetW, targetH := asset.Width, asset.Height
	if o.config.ImageUpperPPI > 0 && usage.maxWidth > 0 && usage.maxHeight > 0 {
		maxW := o.config.ImageUpperPPI * usage.maxWidth / 72.0
		maxH := o.config.ImageUpperPPI * usage.maxHeight / 72.0
		if float64(asset.Width) > maxW*1.2 || float64(asset.Height) > maxH*1.2 { // 20% buffer
			scale := math.Min(maxW/float64(asset.Width), maxH/float64(asset.Height))
			targetW = max(1, int(float64(asset.Width)*scale))
			targetH = max(1, int(float64(asset.Height)*scale))
			resized = true
		}
	}
	if resized {
		img = scaleImage(img, targetW, targetH)
	}

	quality := o.config.ImageQuality
	if quality <= 0 {
		quality = jpeg.DefaultQuality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return false, false
	}
	if buf.Len() >= len(stm.Data) {
		return false, false
	}

	stm.Data = buf.Bytes()
	d.Set("Filter", raw.NameLiteral("DCTDecode"))
	d.Delete("DecodeParms")
	d.Delete("Decode")
	d.Delete("Length")
	d.Set("BitsPerComponent", raw.NumberInt(8))
	d.Set("Width", raw.NumberInt(int64(img.Bounds().Dx())))
	d.Set("Height", raw.NumberInt(int64(img.Bounds().Dy())))
	if isGray(img) {
		d.Set("ColorSpace", raw.NameLiteral("DeviceGray"))
	} else {
		d.Set("ColorSpace", raw.NameLiteral("DeviceRGB"))
	}
	return true, resized
}

func scaleImage(img image.Image, w, h int) image.Image {
	rect := image.Rect(0, 0, w, h)
	if isGray(img) {
		dst := image.NewGray(rect)
		draw.CatmullRom.Scale(dst, rect, img, img.Bounds(), draw.Src, nil)
		return dst
	}
	dst := image.NewNRGBA(rect)
	draw.CatmullRom.Scale(dst, rect, img, img.Bounds(), draw.Src, nil)
	return dst
}

func isGray(img image.Image) bool {
	switch img.(type) {
	case *image.Gray, *image.Gray16:
		return true
	}
	return false
}

package extractor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"

	"github.com/wudi/pdftools/document"
	"github.com/wudi/pdftools/filters"
	"github.com/wudi/pdftools/ir/raw"
)

// ErrUnsupportedImage is returned for image codecs that cannot be decoded
// to pixels (JBIG2, CCITT fax, JPEG 2000).
var ErrUnsupportedImage = errors.New("extractor: unsupported image encoding")

// ImageAsset is an image XObject with its non-image filters removed.
type ImageAsset struct {
	Page             int // 1-based; zero when loaded outside a page walk
	Name             string
	Ref              raw.ObjectRef
	Width, Height    int
	BitsPerComponent int
	ColorSpace       string // DeviceGray, DeviceRGB, DeviceCMYK, Indexed or Separation
	Codec            string // remaining image filter, empty for raw samples
	Data             []byte
	Mask             bool // stencil mask: 1-bit samples painting the fill colour

	components int
	invert     bool
	palette    []color.NRGBA
}

// ExtractImages returns the image XObjects reachable from each page's
// resources, forms included. An image used twice on a page is listed once.
func (e *Extractor) ExtractImages(ctx context.Context) ([]ImageAsset, error) {
	rd := e.doc.Raw
	var out []ImageAsset
	for i, p := range e.doc.Pages() {
		seen := make(map[raw.ObjectRef]bool)
		var walk func(res *raw.DictObj, depth int) error
		walk = func(res *raw.DictObj, depth int) error {
			if res == nil || depth > maxFormDepth {
				return nil
			}
			xd := rd.DictOf(res.Get("XObject"))
			if xd == nil {
				return nil
			}
			for _, name := range xd.Keys() {
				if err := ctx.Err(); err != nil {
					return err
				}
				obj := xd.Get(name)
				ref, isRef := obj.(raw.RefObj)
				if isRef {
					if seen[ref.R] {
						continue
					}
					seen[ref.R] = true
				}
				stm := rd.StreamOf(obj)
				if stm == nil {
					continue
				}
				switch rd.NameOf(stm.Dict.Get("Subtype")) {
				case "Image":
					asset, err := LoadImage(ctx, rd, stm)
					if err != nil {
						continue
					}
					asset.Page, asset.Name, asset.Ref = i+1, name, ref.R
					out = append(out, *asset)
				case "Form":
					if err := walk(rd.DictOf(stm.Dict.Get("Resources")), depth+1); err != nil {
						return err
					}
				}
			}
			return nil
		}
		if err := walk(p.Resources(), 0); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// LoadImage reads an image XObject: its geometry, colour space and the
// sample data with every general-purpose filter applied.
func LoadImage(ctx context.Context, rd *raw.Document, stm *raw.StreamObj) (*ImageAsset, error) {
	d := stm.Dict
	a := &ImageAsset{
		Width:            rd.IntOf(d.Get("Width"), 0),
		Height:           rd.IntOf(d.Get("Height"), 0),
		BitsPerComponent: rd.IntOf(d.Get("BitsPerComponent"), 8),
	}
	if a.Width <= 0 || a.Height <= 0 {
		return nil, fmt.Errorf("extractor: image has no size")
	}
	if b, ok := rd.Resolve(d.Get("ImageMask")).(raw.BoolObj); ok && b.V {
		a.Mask = true
		a.BitsPerComponent = 1
		a.ColorSpace = "DeviceGray"
		a.components = 1
	} else {
		a.resolveColorSpace(ctx, rd, d.Get("ColorSpace"))
	}
	if dec := rd.ArrayOf(d.Get("Decode")); dec != nil && dec.Len() >= 2 {
		lo, _ := rd.NumberOf(dec.Get(0))
		hi, _ := rd.NumberOf(dec.Get(1))
		a.invert = lo > hi
	}

	names, params := filters.ExtractFilters(rd, d)
	data, remaining, err := filters.Default().Decode(ctx, stm.Data, names, params)
	if err != nil {
		return nil, err
	}
	a.Data = data
	if len(remaining) > 0 {
		a.Codec = canonicalCodec(remaining[0])
	}
	return a, nil
}

func canonicalCodec(name string) string {
	switch name {
	case "DCT":
		return "DCTDecode"
	case "CCF":
		return "CCITTFaxDecode"
	}
	return name
}

func (a *ImageAsset) resolveColorSpace(ctx context.Context, rd *raw.Document, cs raw.Object) {
	a.ColorSpace, a.components = "DeviceRGB", 3
	switch v := rd.Resolve(cs).(type) {
	case raw.NameObj:
		a.setFamily(v.Val, 0)
	case *raw.ArrayObj:
		if v.Len() == 0 {
			return
		}
		family := rd.NameOf(v.Get(0))
		switch family {
		case "ICCBased":
			n := 3
			if s := rd.StreamOf(v.Get(1)); s != nil {
				n = rd.IntOf(s.Dict.Get("N"), 3)
			}
			a.setFamily("", n)
		case "Indexed", "I":
			a.ColorSpace, a.components = "Indexed", 1
			if v.Len() >= 4 {
				a.palette = indexedPalette(ctx, rd, v)
			}
		case "Separation", "DeviceN":
			a.ColorSpace, a.components = "Separation", 1
			if family == "DeviceN" {
				if names := rd.ArrayOf(v.Get(1)); names != nil {
					a.components = max(1, names.Len())
				}
			}
		default:
			a.setFamily(family, 0)
		}
	}
}

func (a *ImageAsset) setFamily(name string, n int) {
	switch {
	case name == "DeviceGray" || name == "G" || name == "CalGray" || n == 1:
		a.ColorSpace, a.components = "DeviceGray", 1
	case name == "DeviceCMYK" || name == "CMYK" || n == 4:
		a.ColorSpace, a.components = "DeviceCMYK", 4
	default:
		a.ColorSpace, a.components = "DeviceRGB", 3
	}
}

// indexedPalette expands [/Indexed base hival lookup] into colours.
func indexedPalette(ctx context.Context, rd *raw.Document, arr *raw.ArrayObj) []color.NRGBA {
	var base ImageAsset
	base.resolveColorSpace(ctx, rd, arr.Get(1))
	hival := rd.IntOf(arr.Get(2), 255)
	var lookup []byte
	switch v := rd.Resolve(arr.Get(3)).(type) {
	case raw.StringObj:
		lookup = v.Bytes
	case *raw.StreamObj:
		lookup, _ = document.DecodeStream(ctx, rd, v)
	}
	n := base.components
	pal := make([]color.NRGBA, 0, hival+1)
	for i := 0; i <= hival && (i+1)*n <= len(lookup); i++ {
		pal = append(pal, toNRGBA(lookup[i*n:(i+1)*n], base.ColorSpace))
	}
	return pal
}

func toNRGBA(c []byte, space string) color.NRGBA {
	switch {
	case len(c) >= 4 && space == "DeviceCMYK":
		r, g, b := color.CMYKToRGB(c[0], c[1], c[2], c[3])
		return color.NRGBA{R: r, G: g, B: b, A: 255}
	case len(c) >= 3:
		return color.NRGBA{R: c[0], G: c[1], B: c[2], A: 255}
	case len(c) >= 1:
		return color.NRGBA{R: c[0], G: c[0], B: c[0], A: 255}
	}
	return color.NRGBA{A: 255}
}

// Ext is the file extension the asset is written with: the native one for
// JPEG and JPEG 2000 data, png otherwise.
func (a *ImageAsset) Ext() string {
	switch a.Codec {
	case "DCTDecode":
		return "jpg"
	case "JPXDecode":
		return "jpx"
	}
	return "png"
}

// Encoded returns the bytes to write for Ext: JPEG and JPEG 2000 data pass
// through untouched, everything else is converted to PNG.
func (a *ImageAsset) Encoded() ([]byte, error) {
	if a.Codec == "DCTDecode" || a.Codec == "JPXDecode" {
		return a.Data, nil
	}
	return a.ToPNG()
}

// ToPNG encodes the image asset to PNG format.
func (a *ImageAsset) ToPNG() ([]byte, error) {
	img, err := a.ToImage()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ToImage converts the asset into an image.Image.
func (a *ImageAsset) ToImage() (image.Image, error) {
	switch a.Codec {
	case "":
	case "DCTDecode":
		return jpeg.Decode(bytes.NewReader(a.Data))
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedImage, a.Codec)
	}
	bpc := a.BitsPerComponent
	switch bpc {
	case 1, 2, 4, 8, 16:
	default:
		return nil, fmt.Errorf("%w: %d bits per component", ErrUnsupportedImage, bpc)
	}
	comps := max(a.components, 1)
	rowBytes := (a.Width*comps*bpc + 7) / 8
	if len(a.Data) < rowBytes*a.Height {
		return nil, fmt.Errorf("extractor: image data truncated: %d bytes for %dx%d", len(a.Data), a.Width, a.Height)
	}
	rect := image.Rect(0, 0, a.Width, a.Height)
	maxVal := (1 << bpc) - 1
	sample := func(row []byte, i int) int {
		switch bpc {
		case 8:
			return int(row[i])
		case 16:
			return int(row[2*i])<<8 | int(row[2*i+1])
		}
		bit := i * bpc
		return int(row[bit/8]>>(8-bpc-bit%8)) & maxVal
	}
	scale := func(v int) uint8 {
		s := uint8(v * 255 / maxVal)
		if a.invert {
			s = 255 - s
		}
		return s
	}

	switch {
	case a.ColorSpace == "Indexed":
		img := image.NewNRGBA(rect)
		for y := 0; y < a.Height; y++ {
			row := a.Data[y*rowBytes:]
			for x := 0; x < a.Width; x++ {
				if idx := sample(row, x); idx < len(a.palette) {
					img.SetNRGBA(x, y, a.palette[idx])
				} else {
					img.SetNRGBA(x, y, color.NRGBA{A: 255})
				}
			}
		}
		return img, nil
	case comps == 3:
		img := image.NewNRGBA(rect)
		for y := 0; y < a.Height; y++ {
			row := a.Data[y*rowBytes:]
			for x := 0; x < a.Width; x++ {
				img.SetNRGBA(x, y, color.NRGBA{R: scale(sample(row, 3*x)), G: scale(sample(row, 3*x+1)), B: scale(sample(row, 3*x+2)), A: 255})
			}
		}
		return img, nil
	case comps == 4 && a.ColorSpace == "DeviceCMYK":
		img := image.NewCMYK(rect)
		for y := 0; y < a.Height; y++ {
			row := a.Data[y*rowBytes:]
			for x := 0; x < a.Width; x++ {
				img.SetCMYK(x, y, color.CMYK{C: scale(sample(row, 4*x)), M: scale(sample(row, 4*x+1)), Y: scale(sample(row, 4*x+2)), K: scale(sample(row, 4*x+3))})
			}
		}
		return img, nil
	}
	// Gray, and tints where full colourant is dark. Multi-channel tints
	// use the first channel.
	img := image.NewGray(rect)
	tint := a.ColorSpace == "Separation"
	for y := 0; y < a.Height; y++ {
		row := a.Data[y*rowBytes:]
		for x := 0; x < a.Width; x++ {
			g := scale(sample(row, x*comps))
			if tint {
				g = 255 - g
			}
			img.SetGray(x, y, color.Gray{Y: g})
		}
	}
	return img, nil
}

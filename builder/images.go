package builder

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif" // Register decoders
	"image/jpeg"
	_ "image/png"
	"os"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/wudi/pdftools/filters"
	"github.com/wudi/pdftools/ir/raw"
)

// Image is a raster ready to become an image XObject. Data is encoded per
// Filter.
type Image struct {
	Width            int
	Height           int
	ColorSpace       string
	BitsPerComponent int
	Filter           string
	Data             []byte
	SMask            *Image
}

// AddTo stores the image (and its soft mask) in doc.
func (img *Image) AddTo(doc *raw.Document) raw.RefObj {
	d := raw.Dict()
	d.Set("Type", raw.NameLiteral("XObject"))
	d.Set("Subtype", raw.NameLiteral("Image"))
	d.Set("Width", raw.NumberInt(int64(img.Width)))
	d.Set("Height", raw.NumberInt(int64(img.Height)))
	d.Set("ColorSpace", raw.NameLiteral(img.ColorSpace))
	d.Set("BitsPerComponent", raw.NumberInt(int64(img.BitsPerComponent)))
	if img.Filter != "" {
		d.Set("Filter", raw.NameLiteral(img.Filter))
	}
	if img.ColorSpace == "DeviceCMYK" && img.Filter == "DCTDecode" {
		// Adobe CMYK JPEGs store inverted samples.
		d.Set("Decode", raw.NewArray(
			raw.NumberInt(1), raw.NumberInt(0), raw.NumberInt(1), raw.NumberInt(0),
			raw.NumberInt(1), raw.NumberInt(0), raw.NumberInt(1), raw.NumberInt(0)))
	}
	if img.SMask != nil {
		d.Set("SMask", img.SMask.AddTo(doc))
	}
	return doc.Add(raw.NewStream(d, img.Data))
}

// ImageFromFile loads an image from a file path.
func ImageFromFile(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return DecodeImage(data)
}

// DecodeImage converts encoded image bytes. JPEGs are embedded as-is; every
// other format is decoded and re-encoded losslessly.
func DecodeImage(data []byte) (*Image, error) {
	if isJPEG(data) {
		return FromJPEG(data)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return FromImage(img)
}

func isJPEG(data []byte) bool {
	return len(data) > 3 && data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF
}

// FromJPEG wraps JPEG bytes in a DCTDecode image without recompressing.
func FromJPEG(data []byte) (*Image, error) {
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode jpeg: %w", err)
	}
	cs := "DeviceRGB"
	switch cfg.ColorModel {
	case color.GrayModel:
		cs = "DeviceGray"
	case color.CMYKModel:
		cs = "DeviceCMYK"
	}
	return &Image{
		Width:            cfg.Width,
		Height:           cfg.Height,
		ColorSpace:       cs,
		BitsPerComponent: 8,
		Filter:           "DCTDecode",
		Data:             data,
	}, nil
}

// FromImage converts a decoded image to a Flate-compressed RGB or grey
// raster. Transparency becomes a soft mask.
func FromImage(src image.Image) (*Image, error) {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("image has no pixels")
	}

	if g, ok := src.(*image.Gray); ok {
		pixels := make([]byte, 0, w*h)
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			off := g.PixOffset(bounds.Min.X, y)
			pixels = append(pixels, g.Pix[off:off+w]...)
		}
		return flateImage(w, h, "DeviceGray", pixels)
	}

	nrgba := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(nrgba, nrgba.Bounds(), src, bounds.Min, draw.Src)

	pixels := make([]byte, 0, w*h*3)
	alpha := make([]byte, 0, w*h)
	hasAlpha := false
	for i := 0; i < w*h; i++ {
		offset := i * 4
		pixels = append(pixels, nrgba.Pix[offset], nrgba.Pix[offset+1], nrgba.Pix[offset+2])
		a := nrgba.Pix[offset+3]
		alpha = append(alpha, a)
		if a < 255 {
			hasAlpha = true
		}
	}

	img, err := flateImage(w, h, "DeviceRGB", pixels)
	if err != nil {
		return nil, err
	}
	if hasAlpha {
		if img.SMask, err = flateImage(w, h, "DeviceGray", alpha); err != nil {
			return nil, err
		}
	}
	return img, nil
}

func flateImage(w, h int, cs string, pixels []byte) (*Image, error) {
	data, err := filters.FlateEncode(pixels, 6)
	if err != nil {
		return nil, err
	}
	return &Image{
		Width:            w,
		Height:           h,
		ColorSpace:       cs,
		BitsPerComponent: 8,
		Filter:           "FlateDecode",
		Data:             data,
	}, nil
}

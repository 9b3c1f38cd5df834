package ocr

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"strconv"
)

// psmKey is the Tesseract variable holding the page segmentation mode.
const psmKey = "tessedit_pageseg_mode"

type InputOption func(*Input)

// WithLanguages replaces the trained-data names of an input.
func WithLanguages(langs ...string) InputOption {
	return func(in *Input) { in.Languages = append([]string(nil), langs...) }
}

func WithDPI(dpi int) InputOption {
	return func(in *Input) { in.DPI = dpi }
}

// WithRegion limits recognition to r; an empty r means the whole image.
func WithRegion(r Region) InputOption {
	return func(in *Input) {
		in.Region = nil
		if !r.IsEmpty() {
			in.Region = &r
		}
	}
}

// WithTesseractPSM selects a Tesseract page segmentation mode. Other
// engines ignore it.
func WithTesseractPSM(mode int) InputOption {
	return func(in *Input) {
		if in.Metadata == nil {
			in.Metadata = make(map[string]string, 1)
		}
		in.Metadata[psmKey] = strconv.Itoa(mode)
	}
}

// InputFromImage PNG-encodes a rendered page. page is zero-based; the ID
// names the page from 1.
func InputFromImage(img image.Image, page int, opts ...InputOption) (Input, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return Input{}, fmt.Errorf("ocr: encode page %d: %w", page+1, err)
	}
	in := Input{
		ID:        "page-" + strconv.Itoa(page+1),
		Image:     buf.Bytes(),
		Format:    ImageFormatPNG,
		PageIndex: page,
	}
	for _, opt := range opts {
		opt(&in)
	}
	return in, nil
}

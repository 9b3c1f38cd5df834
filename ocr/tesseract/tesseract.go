// Package tesseract adapts libtesseract, through gosseract, to ocr.Engine.
package tesseract

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"math"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/wudi/pdftools/ocr"
)

// Engine implements ocr.Engine and ocr.BatchEngine with gosseract.
type Engine struct {
	clientFactory   func() *gosseract.Client
	defaultLanguage string
	tessdataPrefix  string
}

// Option configures an Engine.
type Option func(*Engine)

// WithDefaultLanguage sets the language used when an input carries none.
func WithDefaultLanguage(lang string) Option {
	return func(e *Engine) { e.defaultLanguage = lang }
}

// WithTessdataPrefix points Tesseract at a trained-data directory.
func WithTessdataPrefix(dir string) Option {
	return func(e *Engine) { e.tessdataPrefix = dir }
}

func New(opts ...Option) *Engine {
	e := &Engine{clientFactory: gosseract.NewClient, defaultLanguage: "eng"}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Name() string { return "tesseract" }

// Version reports the linked libtesseract version.
func Version() string { return gosseract.Version() }

// Recognize performs OCR on a single image input.
func (e *Engine) Recognize(ctx context.Context, in ocr.Input) (ocr.Result, error) {
	c := e.clientFactory()
	defer c.Close()
	return e.recognizeWithClient(ctx, c, in)
}

// RecognizeBatch processes inputs sequentially on one client.
func (e *Engine) RecognizeBatch(ctx context.Context, inputs []ocr.Input) ([]ocr.Result, error) {
	c := e.clientFactory()
	defer c.Close()
	results := make([]ocr.Result, 0, len(inputs))
	for _, in := range inputs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := e.recognizeWithClient(ctx, c, in)
		if err != nil {
			return nil, fmt.Errorf("recognize %s: %w", in.ID, err)
		}
		results = append(results, res)
	}
	return results, nil
}

func (e *Engine) recognizeWithClient(_ context.Context, c *gosseract.Client, in ocr.Input) (ocr.Result, error) {
	imgData, err := cropImage(in.Image, in.Region)
	if err != nil {
		return ocr.Result{}, err
	}
	if e.tessdataPrefix != "" {
		if err := c.SetTessdataPrefix(e.tessdataPrefix); err != nil {
			return ocr.Result{}, fmt.Errorf("set tessdata prefix: %w", err)
		}
	}
	if err := c.SetImageFromBytes(imgData); err != nil {
		return ocr.Result{}, fmt.Errorf("set image: %w", err)
	}
	langs := in.Languages
	if len(langs) == 0 && e.defaultLanguage != "" {
		langs = []string{e.defaultLanguage}
	}
	if len(langs) > 0 {
		if err := c.SetLanguage(langs...); err != nil {
			return ocr.Result{}, fmt.Errorf("set languages: %w", err)
		}
	}
	if in.DPI > 0 {
		if err := c.SetVariable(gosseract.SettableVariable("user_defined_dpi"), fmt.Sprint(in.DPI)); err != nil {
			return ocr.Result{}, fmt.Errorf("set dpi: %w", err)
		}
	}
	for k, v := range in.Metadata {
		if err := c.SetVariable(gosseract.SettableVariable(k), v); err != nil {
			return ocr.Result{}, fmt.Errorf("set variable %s: %w", k, err)
		}
	}
	text, err := c.Text()
	if err != nil {
		return ocr.Result{}, fmt.Errorf("recognize text: %w", err)
	}
	plain := strings.TrimSpace(text)

	words := boxes(c, gosseract.RIL_WORD)
	lines := groupLines(boxes(c, gosseract.RIL_TEXTLINE), words)
	bounds := mergeBounds(words)
	block := ocr.TextBlock{
		Text:       plain,
		Bounds:     bounds,
		Lines:      lines,
		Confidence: average(words),
	}
	return ocr.Result{
		InputID:   in.ID,
		PageIndex: in.PageIndex,
		PlainText: plain,
		Blocks:    []ocr.TextBlock{block},
		Language:  langs0(langs),
	}, nil
}

func boxes(c *gosseract.Client, level gosseract.PageIteratorLevel) []ocr.TextWord {
	bb, err := c.GetBoundingBoxes(level)
	if err != nil {
		return nil
	}
	out := make([]ocr.TextWord, 0, len(bb))
	for _, b := range bb {
		out = append(out, ocr.TextWord{
			Text:       strings.TrimSpace(b.Word),
			Bounds:     ocr.Region{X: float64(b.Box.Min.X), Y: float64(b.Box.Min.Y), Width: float64(b.Box.Dx()), Height: float64(b.Box.Dy())},
			Confidence: b.Confidence / 100.0,
		})
	}
	return out
}

// groupLines attaches each word to the line box containing its centre.
func groupLines(lineBoxes, words []ocr.TextWord) []ocr.TextLine {
	lines := make([]ocr.TextLine, 0, len(lineBoxes))
	for _, lb := range lineBoxes {
		lines = append(lines, ocr.TextLine{Text: lb.Text, Bounds: lb.Bounds, Confidence: lb.Confidence})
	}
	for _, w := range words {
		cx, cy := w.Bounds.X+w.Bounds.Width/2, w.Bounds.Y+w.Bounds.Height/2
		for i := range lines {
			b := lines[i].Bounds
			if cx >= b.X && cx <= b.X+b.Width && cy >= b.Y && cy <= b.Y+b.Height {
				lines[i].Words = append(lines[i].Words, w)
				break
			}
		}
	}
	return lines
}

func average(words []ocr.TextWord) float64 {
	if len(words) == 0 {
		return 0
	}
	var sum float64
	for _, w := range words {
		sum += w.Confidence
	}
	return sum / float64(len(words))
}

func mergeBounds(words []ocr.TextWord) ocr.Region {
	if len(words) == 0 {
		return ocr.Region{}
	}
	minX, minY := math.MaxFloat64, math.MaxFloat64
	var maxX, maxY float64
	for _, w := range words {
		minX = math.Min(minX, w.Bounds.X)
		minY = math.Min(minY, w.Bounds.Y)
		maxX = math.Max(maxX, w.Bounds.X+w.Bounds.Width)
		maxY = math.Max(maxY, w.Bounds.Y+w.Bounds.Height)
	}
	return ocr.Region{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}

func langs0(langs []string) string {
	if len(langs) == 0 {
		return ""
	}
	return langs[0]
}

func cropImage(data []byte, region *ocr.Region) ([]byte, error) {
	if region == nil || region.IsEmpty() {
		return data, nil
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode for region: %w", err)
	}
	rect := image.Rect(
		int(math.Round(region.X)),
		int(math.Round(region.Y)),
		int(math.Round(region.X+region.Width)),
		int(math.Round(region.Y+region.Height)),
	).Intersect(img.Bounds())
	if rect.Empty() {
		return nil, fmt.Errorf("region outside image bounds")
	}
	subImg, ok := img.(interface {
		SubImage(r image.Rectangle) image.Image
	})
	if !ok {
		return nil, fmt.Errorf("image does not support sub-image")
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, subImg.SubImage(rect)); err != nil {
		return nil, fmt.Errorf("encode cropped image: %w", err)
	}
	return buf.Bytes(), nil
}

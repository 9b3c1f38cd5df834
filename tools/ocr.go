package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/wudi/pdftools/builder"
	"github.com/wudi/pdftools/layout"
	"github.com/wudi/pdftools/ocr"
	"github.com/wudi/pdftools/raster"
)

// ocrDPI renders pages at twice their size in points.
const ocrDPI = 144

// OCR renders every page, recognizes its text and sets the text on letter
// pages, one "Page N" section per page.
func (t *Toolkit) OCR(ctx context.Context, in Input) (Output, error) {
	if t.ocr == nil {
		return Output{}, Failure("OCR is not available")
	}
	doc, err := openFirst(ctx, in)
	if err != nil {
		return Output{}, err
	}
	r, err := raster.New(doc, raster.WithLogger(t.logger))
	if err != nil {
		return Output{}, err
	}
	lang := in.Params.String("language")
	if lang == "" {
		lang = t.ocrLanguage
	}
	results, err := ocr.RecognizePages(ctx, t.ocr, r, doc.NumPages(), ocrDPI, ocr.WithLanguages(lang))
	if err != nil {
		return Output{}, err
	}

	b := builder.NewBuilder()
	e := layout.NewEngine(b,
		layout.WithPaperSize(layout.Letter),
		layout.WithMargins(layout.Uniform(72)),
		layout.WithDefaultFontSize(11),
		layout.WithLineHeight(14.0/11),
	)
	found := false
	for _, res := range results {
		if strings.TrimSpace(res.PlainText) != "" {
			found = true
			break
		}
	}
	if !found {
		e.Paragraph("No text found via OCR")
	} else {
		for i, res := range results {
			if i > 0 {
				e.PageBreak()
			}
			e.Heading(fmt.Sprintf("Page %d", res.PageIndex+1), 3)
			e.Spacer(12)
			for _, line := range strings.Split(res.PlainText, "\n") {
				if line = strings.TrimSpace(line); line != "" {
					e.Paragraph(line)
				}
			}
		}
	}
	if err := buildPDF(ctx, b, in.Target); err != nil {
		return Output{}, err
	}
	return single(in), nil
}

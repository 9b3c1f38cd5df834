package tools

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/image/draw"

	"github.com/wudi/pdftools/builder"
	"github.com/wudi/pdftools/document"
	"github.com/wudi/pdftools/extractor"
	"github.com/wudi/pdftools/fonts"
	"github.com/wudi/pdftools/layout"
	"github.com/wudi/pdftools/office"
	"github.com/wudi/pdftools/raster"
)

const jpegQuality = 90

// PDFToJPG renders every page to page_N.jpg at the requested resolution.
func (t *Toolkit) PDFToJPG(ctx context.Context, in Input) (Output, error) {
	doc, err := openFirst(ctx, in)
	if err != nil {
		return Output{}, err
	}
	r, err := raster.New(doc, raster.WithLogger(t.logger))
	if err != nil {
		return Output{}, err
	}
	dpi := float64(in.Params.Int("dpi"))
	var files []string
	for i := 0; i < doc.NumPages(); i++ {
		img, err := r.Render(ctx, i, dpi)
		if err != nil {
			return Output{}, fmt.Errorf("render page %d: %w", i+1, err)
		}
		name := fmt.Sprintf("page_%d.jpg", i+1)
		err = writeFile(filepath.Join(in.Target, name), func(w io.Writer) error {
			return jpeg.Encode(w, img, &jpeg.Options{Quality: jpegQuality})
		})
		if err != nil {
			return Output{}, err
		}
		files = append(files, name)
	}
	return Output{Files: files}, nil
}

// JPGToPDF places each image on its own page, sized to the image with one
// point per pixel.
func JPGToPDF(ctx context.Context, in Input) (Output, error) {
	if len(in.Paths) == 0 {
		return Output{}, Failure("No input file")
	}
	b := builder.NewBuilder()
	for _, path := range in.Paths {
		if err := ctx.Err(); err != nil {
			return Output{}, err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return Output{}, err
		}
		img, err := opaqueImage(data)
		if err != nil {
			return Output{}, failuref("Unsupported image: %s", filepath.Base(path))
		}
		w, h := float64(img.Width), float64(img.Height)
		b.NewPage(w, h).DrawImage(img, 0, 0, w, h)
	}
	if err := buildPDF(ctx, b, in.Target); err != nil {
		return Output{}, err
	}
	return single(in), nil
}

// opaqueImage prepares encoded image bytes for embedding. JPEGs pass
// through; other formats are composited over white so transparent areas
// print as paper.
func opaqueImage(data []byte) (*builder.Image, error) {
	if img, err := builder.FromJPEG(data); err == nil {
		return img, nil
	}
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	bounds := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), src, bounds.Min, draw.Over)
	return builder.FromImage(dst)
}

// buildPDF loads what b built and saves it to target.
func buildPDF(ctx context.Context, b builder.PDFBuilder, target string) error {
	rd, err := b.Build()
	if err != nil {
		return err
	}
	doc, err := document.Load(rd)
	if err != nil {
		return err
	}
	return savePDF(ctx, doc, target)
}

// PDFToWord writes one paragraph per text line with a page break between
// pages.
func PDFToWord(ctx context.Context, in Input) (Output, error) {
	pages, err := extractText(ctx, in)
	if err != nil {
		return Output{}, err
	}
	w := office.NewDocxWriter()
	for i, p := range pages {
		for _, l := range p.Lines {
			if text := l.Text(); text != "" {
				w.Paragraph(text)
			}
		}
		if i < len(pages)-1 {
			w.PageBreak()
		}
	}
	err = writeFile(in.Target, func(out io.Writer) error {
		_, err := w.WriteTo(out)
		return err
	})
	if err != nil {
		return Output{}, err
	}
	return single(in), nil
}

// PDFToPowerPoint puts each page on its own slide, sized like the first
// page. Every text line becomes a text box and every painted image a
// picture, both at the position they occupy on the page.
func PDFToPowerPoint(ctx context.Context, in Input) (Output, error) {
	doc, err := openFirst(ctx, in)
	if err != nil {
		return Output{}, err
	}
	ex, err := extractor.New(doc)
	if err != nil {
		return Output{}, err
	}
	helv := fonts.Standard14(fonts.Helvetica)
	w := office.NewPptxWriter()
	for i, p := range doc.Pages() {
		pw, ph := p.Size()
		slide := w.AddSlide(pw, ph)

		images, err := ex.PageImages(ctx, i)
		if err != nil {
			return Output{}, err
		}
		for _, pl := range images {
			data, err := pl.Image.Encoded()
			if err != nil {
				continue
			}
			// Presentations cannot show JPEG 2000; Picture refuses it.
			_ = slide.Picture(pl.Box.LLX, ph-pl.Box.URY, pl.Box.Width(), pl.Box.Height(), data, pl.Image.Ext())
		}

		text, err := ex.PageText(ctx, i)
		if err != nil {
			return Output{}, err
		}
		for _, l := range text.Lines {
			line := l.Text()
			if line == "" {
				continue
			}
			top := ph - l.Y - l.Size
			slide.TextBox(l.X, top, helv.MeasureText(line, l.Size), l.Size*1.2, l.Size, line)
		}
	}
	err = writeFile(in.Target, func(out io.Writer) error {
		_, err := w.WriteTo(out)
		return err
	})
	if err != nil {
		return Output{}, err
	}
	return single(in), nil
}

// PDFToExcel writes one sheet per page. Each text line is a row and the
// line's cells fill its columns.
func PDFToExcel(ctx context.Context, in Input) (Output, error) {
	pages, err := extractText(ctx, in)
	if err != nil {
		return Output{}, err
	}
	sheets := make([]office.Sheet, 0, len(pages))
	for _, p := range pages {
		s := office.Sheet{Name: fmt.Sprintf("Page %d", p.Page)}
		for _, l := range p.Lines {
			s.Rows = append(s.Rows, l.Cells)
		}
		sheets = append(sheets, s)
	}
	err = writeFile(in.Target, func(w io.Writer) error {
		return office.WriteWorkbook(w, sheets)
	})
	if err != nil {
		return Output{}, err
	}
	return single(in), nil
}

func extractText(ctx context.Context, in Input) ([]extractor.PageText, error) {
	doc, err := openFirst(ctx, in)
	if err != nil {
		return nil, err
	}
	ex, err := extractor.New(doc)
	if err != nil {
		return nil, err
	}
	return ex.ExtractText(ctx)
}

// WordToPDF sets the document's headings, lists, paragraphs and tables on
// letter pages.
func WordToPDF(ctx context.Context, in Input) (Output, error) {
	path, err := firstInput(in)
	if err != nil {
		return Output{}, err
	}
	doc, err := office.OpenDocx(path)
	if err != nil {
		return Output{}, failuref("Invalid Word document: %s", filepath.Base(path))
	}
	return markdownToPDF(ctx, in, doc, "Empty document",
		layout.WithPaperSize(layout.Letter),
		layout.WithMargins(layout.Uniform(72)),
		layout.WithDefaultFontSize(11),
	)
}

// PPTXToPDF sets each slide on its own landscape page under a "Slide N"
// heading.
func PPTXToPDF(ctx context.Context, in Input) (Output, error) {
	path, err := firstInput(in)
	if err != nil {
		return Output{}, err
	}
	slides, err := office.OpenPptx(path)
	if err != nil {
		return Output{}, failuref("Invalid PowerPoint file: %s", filepath.Base(path))
	}
	return markdownToPDF(ctx, in, office.SlidesDocument(slides), "Empty presentation",
		layout.WithPaperSize(layout.Letter.Landscape()),
		layout.WithMargins(layout.Uniform(72)),
		layout.WithDefaultFontSize(14),
	)
}

func markdownToPDF(ctx context.Context, in Input, doc *office.Document, empty string, opts ...layout.Option) (Output, error) {
	b := builder.NewBuilder()
	e := layout.NewEngine(b, opts...)
	if doc.Empty() {
		e.Paragraph(empty)
	} else if err := e.RenderMarkdown(doc.Markdown()); err != nil {
		return Output{}, err
	}
	if e.Pages() == 0 {
		e.Paragraph(empty)
	}
	if err := buildPDF(ctx, b, in.Target); err != nil {
		return Output{}, err
	}
	return single(in), nil
}

// ExcelToPDF sets every worksheet as a grid table under a "Sheet: name"
// heading on landscape letter pages.
func ExcelToPDF(ctx context.Context, in Input) (Output, error) {
	path, err := firstInput(in)
	if err != nil {
		return Output{}, err
	}
	sheets, err := office.OpenWorkbook(path)
	if err != nil {
		return Output{}, failuref("Invalid Excel file: %s", filepath.Base(path))
	}
	b := builder.NewBuilder()
	e := layout.NewEngine(b,
		layout.WithPaperSize(layout.Letter.Landscape()),
		layout.WithMargins(layout.Uniform(36)),
	)
	for _, s := range sheets {
		e.Heading("Sheet: "+s.Name, 2)
		e.Spacer(12)
		e.Table(s.Rows, layout.GridTable())
		e.Spacer(24)
	}
	if e.Pages() == 0 {
		e.Paragraph("Empty workbook")
	}
	if err := buildPDF(ctx, b, in.Target); err != nil {
		return Output{}, err
	}
	return single(in), nil
}

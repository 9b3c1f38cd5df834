package tools

import (
	"github.com/wudi/pdftools/observability"
	"github.com/wudi/pdftools/ocr"
	"github.com/wudi/pdftools/registry"
)

// Toolkit carries what the stateful operations need: a logger for engine
// diagnostics and the OCR engine.
type Toolkit struct {
	logger      observability.Logger
	ocr         ocr.Engine
	ocrLanguage string
}

// Option configures a Toolkit.
type Option func(*Toolkit)

func WithLogger(l observability.Logger) Option {
	return func(t *Toolkit) { t.logger = l }
}

// WithOCR sets the engine behind the ocr operation and the language used
// when a request names none.
func WithOCR(engine ocr.Engine, defaultLanguage string) Option {
	return func(t *Toolkit) {
		t.ocr = engine
		if defaultLanguage != "" {
			t.ocrLanguage = defaultLanguage
		}
	}
}

func New(opts ...Option) *Toolkit {
	t := &Toolkit{logger: observability.NopLogger{}, ocrLanguage: "eng"}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func pagesParam(def string) registry.ParamSpec {
	return registry.ParamSpec{Name: "pages", Kind: registry.String, Default: def, Label: "Pages (e.g. 1,3-5)"}
}

func positionParams() []registry.ParamSpec {
	return []registry.ParamSpec{
		{Name: "x", Kind: registry.Float, Default: 100.0, Label: "X from left (pt)"},
		{Name: "y", Kind: registry.Float, Default: 100.0, Label: "Y from top (pt)"},
		{Name: "page", Kind: registry.Int, Default: 1, Label: "Page"},
	}
}

func marginParam(name string) registry.ParamSpec {
	return registry.ParamSpec{
		Name: name, Kind: registry.Float, Default: 0.0, OnInvalid: registry.Reject,
		Min: registry.Bound(0), Label: "Margin " + name + " (pt)",
	}
}

// Catalog returns every operation in the order the index lists them.
func (t *Toolkit) Catalog() []registry.OperationSpec {
	return []registry.OperationSpec{
		{
			ID: "merge", Name: "Merge PDF", Title: "Merge PDF",
			Summary:     "Combine multiple PDFs into one",
			Description: "Combine multiple PDF files into a single document",
			Accept:      ".pdf", Multiple: true, Icon: "merge", Color: "#e74c3c",
			OutputName: "merged.pdf", Run: Merge,
		},
		{
			ID: "split", Name: "Split PDF", Title: "Split PDF",
			Summary:     "Separate PDF pages",
			Description: "Separate a PDF into individual pages or custom ranges",
			Accept:      ".pdf", Icon: "split", Color: "#3498db",
			Arity: registry.Multi,
			Params: []registry.ParamSpec{
				{Name: "split_type", Kind: registry.String, Default: "all", Enum: []string{"all", "range"}, Label: "Split"},
				pagesParam(""),
			},
			Run: Split,
		},
		{
			ID: "compress", Name: "Compress PDF", Title: "Compress PDF",
			Summary:     "Reduce PDF file size",
			Description: "Reduce the file size of your PDF",
			Accept:      ".pdf", Icon: "compress", Color: "#2ecc71",
			Params: []registry.ParamSpec{{
				Name: "quality", Kind: registry.String, Default: "medium",
				Enum:    []string{"low", "medium", "high"},
				Aliases: map[string]string{"extreme": "low", "recommended": "medium", "less": "high"},
				Label:   "Quality",
			}},
			OutputName: "compressed.pdf", Run: t.Compress,
		},
		{
			ID: "rotate", Name: "Rotate PDF", Title: "Rotate PDF",
			Summary:     "Rotate PDF pages",
			Description: "Rotate PDF pages to any angle",
			Accept:      ".pdf", Icon: "rotate", Color: "#9b59b6",
			Params: []registry.ParamSpec{
				{Name: "angle", Kind: registry.Int, Default: 90, OnInvalid: registry.Reject, MultipleOf: 90, Label: "Angle"},
				pagesParam("all"),
			},
			OutputName: "rotated.pdf", Run: Rotate,
		},
		{
			ID: "crop", Name: "Crop PDF", Title: "Crop PDF",
			Summary:     "Crop PDF page margins",
			Description: "Remove margins from PDF pages",
			Accept:      ".pdf", Icon: "crop", Color: "#f39c12",
			Params: []registry.ParamSpec{
				marginParam("top"), marginParam("bottom"), marginParam("left"), marginParam("right"),
			},
			OutputName: "cropped.pdf", Run: Crop,
		},
		{
			ID: "remove-pages", Name: "Remove Pages", Title: "Remove Pages",
			Summary:     "Delete pages from PDF",
			Description: "Delete specific pages from your PDF",
			Accept:      ".pdf", Icon: "remove", Color: "#e67e22",
			Params:      []registry.ParamSpec{pagesParam("")},
			OutputName:  "pages_removed.pdf", Run: RemovePages,
		},
		{
			ID: "organize", Name: "Organize PDF", Title: "Organize PDF",
			Summary:     "Reorder PDF pages",
			Description: "Reorder pages in your PDF document",
			Accept:      ".pdf", Icon: "organize", Color: "#1abc9c",
			Params: []registry.ParamSpec{
				{Name: "order", Kind: registry.String, Default: "", Label: "Page order (e.g. 3,1,2,blank)"},
			},
			OutputName: "organized.pdf", Run: Organize,
		},
		{
			ID: "pdf-to-jpg", Name: "PDF to JPG", Title: "PDF to JPG",
			Summary:     "Convert PDF to images",
			Description: "Convert PDF pages to JPG images",
			Accept:      ".pdf", Icon: "image", Color: "#e91e63",
			Arity: registry.Multi,
			Params: []registry.ParamSpec{{
				Name: "dpi", Kind: registry.Int, Default: 150,
				Min: registry.Bound(36), Max: registry.Bound(600), Label: "Resolution (DPI)",
			}},
			Run: t.PDFToJPG,
		},
		{
			ID: "jpg-to-pdf", Name: "JPG to PDF", Title: "JPG to PDF",
			Summary:     "Convert images to PDF",
			Description: "Convert JPG images to a PDF document",
			Accept:      ".jpg,.jpeg,.png", Multiple: true, Icon: "pdf", Color: "#673ab7",
			OutputName: "images.pdf", Run: JPGToPDF,
		},
		{
			ID: "pdf-to-word", Name: "PDF to Word", Title: "PDF to Word",
			Summary:     "Convert PDF to DOCX",
			Description: "Convert PDF to editable Word document",
			Accept:      ".pdf", Icon: "word", Color: "#2196f3",
			OutputName: "document.docx", Run: PDFToWord,
		},
		{
			ID: "pdf-to-excel", Name: "PDF to Excel", Title: "PDF to Excel",
			Summary:     "Convert PDF to XLSX",
			Description: "Extract PDF text into an Excel spreadsheet, one sheet per page",
			Accept:      ".pdf", Icon: "excel", Color: "#217346",
			OutputName: "spreadsheet.xlsx", Run: PDFToExcel,
		},
		{
			ID: "pdf-to-powerpoint", Name: "PDF to PowerPoint", Title: "PDF to PowerPoint",
			Summary:     "Convert PDF to PPTX",
			Description: "Convert each PDF page to a slide with its text and images in place",
			Accept:      ".pdf", Icon: "powerpoint", Color: "#d24726",
			OutputName: "presentation.pptx", Run: PDFToPowerPoint,
		},
		{
			ID: "word-to-pdf", Name: "Word to PDF", Title: "Word to PDF",
			Summary:     "Convert DOCX to PDF",
			Description: "Convert Word document to PDF",
			Accept:      ".docx", Icon: "word-pdf", Color: "#00bcd4",
			OutputName: "document.pdf", Run: WordToPDF,
		},
		{
			ID: "excel-to-pdf", Name: "Excel to PDF", Title: "Excel to PDF",
			Summary:     "Convert XLSX to PDF",
			Description: "Convert Excel spreadsheet to PDF",
			Accept:      ".xlsx", Icon: "excel", Color: "#4caf50",
			OutputName: "spreadsheet.pdf", Run: ExcelToPDF,
		},
		{
			ID: "pptx-to-pdf", Name: "PowerPoint to PDF", Title: "PowerPoint to PDF",
			Summary:     "Convert PPTX to PDF",
			Description: "Convert PowerPoint to PDF",
			Accept:      ".pptx", Icon: "pptx", Color: "#ff5722",
			OutputName: "presentation.pdf", Run: PPTXToPDF,
		},
		{
			ID: "extract", Name: "Extract Content", Title: "Extract Content",
			Summary:     "Extract text & images",
			Description: "Extract text and images from PDF",
			Accept:      ".pdf", Icon: "extract", Color: "#795548",
			Arity: registry.Multi,
			Params: []registry.ParamSpec{
				{Name: "extract_type", Kind: registry.String, Default: "text", Enum: []string{"text", "images"}, Label: "Extract"},
			},
			Run: t.Extract,
		},
		{
			ID: "ocr", Name: "OCR PDF", Title: "OCR PDF",
			Summary:     "Extract text from scans",
			Description: "Extract text from scanned PDF using OCR",
			Accept:      ".pdf", Icon: "ocr", Color: "#607d8b",
			Params: []registry.ParamSpec{
				{Name: "language", Kind: registry.String, Default: t.ocrLanguage, Label: "Language"},
			},
			OutputName: "ocr_result.pdf", Run: t.OCR,
		},
		{
			ID: "unlock", Name: "Unlock PDF", Title: "Unlock PDF",
			Summary:     "Remove PDF password",
			Description: "Remove password protection from PDF",
			Accept:      ".pdf", Icon: "unlock", Color: "#ff9800",
			Params: []registry.ParamSpec{
				{Name: "password", Kind: registry.Text, Default: "", Label: "Password"},
			},
			OutputName: "unlocked.pdf", Run: Unlock,
		},
		{
			ID: "protect", Name: "Protect PDF", Title: "Protect PDF",
			Summary:     "Add password to PDF",
			Description: "Add password protection to PDF",
			Accept:      ".pdf", Icon: "lock", Color: "#f44336",
			Params: []registry.ParamSpec{
				{Name: "password", Kind: registry.Text, Default: "", Label: "Password"},
			},
			OutputName: "protected.pdf", Run: Protect,
		},
		{
			ID: "sign", Name: "Sign PDF", Title: "Sign PDF",
			Summary:     "Add signature to PDF",
			Description: "Add your signature to PDF",
			Accept:      ".pdf", Icon: "sign", Color: "#3f51b5",
			Params: append([]registry.ParamSpec{
				{Name: "signature", Kind: registry.Text, Default: "", Label: "Signature (text or image data URL)"},
			}, positionParams()...),
			OutputName: "signed.pdf", Run: Sign,
		},
		{
			ID: "watermark", Name: "Watermark PDF", Title: "Watermark PDF",
			Summary:     "Add watermark to PDF",
			Description: "Add text or image watermark to PDF",
			Accept:      ".pdf", Icon: "watermark", Color: "#009688",
			Params: []registry.ParamSpec{
				{Name: "text", Kind: registry.Text, Default: "WATERMARK", Label: "Watermark text"},
				{Name: "opacity", Kind: registry.Float, Default: 0.3, Min: registry.Bound(0), Max: registry.Bound(1), Label: "Opacity"},
			},
			OutputName: "watermarked.pdf", Run: Watermark,
		},
		{
			ID: "edit", Name: "Edit PDF", Title: "Edit PDF",
			Summary:     "Add text & images",
			Description: "Add text and images to your PDF",
			Accept:      ".pdf", Icon: "edit", Color: "#8bc34a",
			Params: append([]registry.ParamSpec{
				{Name: "text", Kind: registry.Text, Default: "", Label: "Text"},
			}, positionParams()...),
			OutputName: "edited.pdf", Run: Edit,
		},
	}
}

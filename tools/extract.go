package tools

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/wudi/pdftools/extractor"
	"github.com/wudi/pdftools/observability"
)

const extractedText = "extracted_text.txt"

// Extract writes the document's text to extracted_text.txt, or with
// extract_type "images" every embedded image to image_N.ext.
func (t *Toolkit) Extract(ctx context.Context, in Input) (Output, error) {
	doc, err := openFirst(ctx, in)
	if err != nil {
		return Output{}, err
	}
	ex, err := extractor.New(doc)
	if err != nil {
		return Output{}, err
	}
	if in.Params.String("extract_type") == "images" {
		return t.extractImages(ctx, ex, in.Target)
	}

	pages, err := ex.ExtractText(ctx)
	if err != nil {
		return Output{}, err
	}
	sections := make([]string, 0, len(pages))
	for _, p := range pages {
		sections = append(sections, fmt.Sprintf("--- Page %d ---\n%s\n", p.Page, p.Content))
	}
	err = writeFile(filepath.Join(in.Target, extractedText), func(w io.Writer) error {
		_, err := io.WriteString(w, strings.Join(sections, "\n"))
		return err
	})
	if err != nil {
		return Output{}, err
	}
	return Output{Files: []string{extractedText}}, nil
}

func (t *Toolkit) extractImages(ctx context.Context, ex *extractor.Extractor, dir string) (Output, error) {
	assets, err := ex.ExtractImages(ctx)
	if err != nil {
		return Output{}, err
	}
	var files []string
	for i := range assets {
		a := &assets[i]
		data, err := a.Encoded()
		if err != nil {
			t.logger.Warn("skipping image",
				observability.Int("page", a.Page),
				observability.String("name", a.Name),
				observability.Error("error", err),
			)
			continue
		}
		name := fmt.Sprintf("image_%d.%s", len(files)+1, a.Ext())
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			return Output{}, err
		}
		files = append(files, name)
	}
	if len(files) == 0 {
		return Output{}, Failure("No images found in PDF")
	}
	return Output{Files: files}, nil
}

// Package tools holds the document operations the service exposes. Every
// operation has the registry.Capability signature: it reads the persisted
// uploads named in Input.Paths, writes its result to Input.Target and
// reports what it produced.
package tools

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/wudi/pdftools/apperr"
	"github.com/wudi/pdftools/document"
	"github.com/wudi/pdftools/parser"
	"github.com/wudi/pdftools/registry"
)

type (
	Input  = registry.Input
	Output = registry.Output
)

// compression is the zlib level used for every PDF the tools write.
const compression = 6

// Failure is an anticipated failure; msg is shown to the user verbatim.
func Failure(msg string) error {
	return apperr.New(apperr.OperationFailure, msg)
}

func failuref(format string, args ...any) error {
	return apperr.Newf(apperr.OperationFailure, format, args...)
}

// openPDF opens path with password. Encrypted files that need a password
// the caller does not have are reported as protected.
func openPDF(ctx context.Context, path, password string) (*document.Document, error) {
	doc, err := document.Open(ctx, path, password)
	switch {
	case err == nil:
		return doc, nil
	case errors.Is(err, parser.ErrPasswordRequired):
		return nil, apperr.Wrap(apperr.OperationFailure, "PDF is password protected", err)
	case errors.Is(err, parser.ErrNotPDF):
		return nil, apperr.Wrap(apperr.OperationFailure, "Not a valid PDF file", err)
	}
	return nil, fmt.Errorf("open %s: %w", filepath.Base(path), err)
}

func firstInput(in Input) (string, error) {
	if len(in.Paths) == 0 {
		return "", Failure("No input file")
	}
	return in.Paths[0], nil
}

// openFirst opens the first input with the empty password.
func openFirst(ctx context.Context, in Input) (*document.Document, error) {
	path, err := firstInput(in)
	if err != nil {
		return nil, err
	}
	return openPDF(ctx, path, "")
}

func savePDF(ctx context.Context, doc *document.Document, target string) error {
	return doc.SaveFile(ctx, target, document.SaveOptions{Compression: compression, Deterministic: true})
}

// single reports a file written to the target.
func single(in Input) Output {
	return Output{Filename: filepath.Base(in.Target)}
}

// writeFile writes into the target atomically through fill.
func writeFile(path string, fill func(io.Writer) error) error {
	return document.WriteFileAtomic(path, fill)
}

func copyFile(src, dst string) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()
	return writeFile(dst, func(w io.Writer) error {
		_, err := io.Copy(w, f)
		return err
	})
}

// PageRange is an inclusive span of 1-based page numbers. From may exceed
// To, in which case the span runs backwards.
type PageRange struct {
	From, To int
}

// ParseRanges parses comma separated page numbers and a-b ranges.
// Whitespace is ignored and empty entries are skipped.
func ParseRanges(s string) ([]PageRange, error) {
	var out []PageRange
	for _, entry := range strings.Split(s, ",") {
		entry = strings.Join(strings.Fields(entry), "")
		if entry == "" {
			continue
		}
		from, to, isRange := strings.Cut(entry, "-")
		a, err := strconv.Atoi(from)
		if err != nil {
			return nil, failuref("Invalid page range: %s", entry)
		}
		b := a
		if isRange {
			if b, err = strconv.Atoi(to); err != nil {
				return nil, failuref("Invalid page range: %s", entry)
			}
		}
		out = append(out, PageRange{From: a, To: b})
	}
	return out, nil
}

// Pages lists the ascending pages of r that exist in a document of n pages,
// as zero-based indices. A backwards range selects nothing.
func (r PageRange) Pages(n int) []int {
	var out []int
	for p := max(r.From, 1); p <= min(r.To, n); p++ {
		out = append(out, p-1)
	}
	return out
}

// Clamp pins both ends of r to [1, n].
func (r PageRange) Clamp(n int) PageRange {
	return PageRange{From: min(max(r.From, 1), n), To: min(max(r.To, 1), n)}
}

// Indices lists the zero-based pages r covers from From to To, in either
// direction. r should already be clamped.
func (r PageRange) Indices() []int {
	step := 1
	if r.To < r.From {
		step = -1
	}
	var out []int
	for p := r.From; ; p += step {
		out = append(out, p-1)
		if p == r.To {
			return out
		}
	}
}

// SelectPages resolves a page-range expression against n pages. The
// result is a set of zero-based indices; entries
// outside the document are dropped. "all" selects every page.
func SelectPages(expr string, n int) (map[int]bool, error) {
	sel := make(map[int]bool)
	if strings.EqualFold(strings.TrimSpace(expr), "all") {
		for i := 0; i < n; i++ {
			sel[i] = true
		}
		return sel, nil
	}
	ranges, err := ParseRanges(expr)
	if err != nil {
		return nil, err
	}
	for _, r := range ranges {
		for _, i := range r.Pages(n) {
			sel[i] = true
		}
	}
	return sel, nil
}

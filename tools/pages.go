package tools

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/wudi/pdftools/coords"
	"github.com/wudi/pdftools/document"
)

// Merge concatenates every input in upload order.
func Merge(ctx context.Context, in Input) (Output, error) {
	if len(in.Paths) == 0 {
		return Output{}, Failure("No input file")
	}
	out := document.New()
	for _, path := range in.Paths {
		if err := ctx.Err(); err != nil {
			return Output{}, err
		}
		src, err := openPDF(ctx, path, "")
		if err != nil {
			return Output{}, err
		}
		if err := out.ImportAll(src); err != nil {
			return Output{}, fmt.Errorf("merge %s: %w", filepath.Base(path), err)
		}
	}
	if err := savePDF(ctx, out, in.Target); err != nil {
		return Output{}, err
	}
	return single(in), nil
}

// Split writes one file per page, or with split_type "range" one file per
// range entry. Range ends are clamped to the document.
func Split(ctx context.Context, in Input) (Output, error) {
	src, err := openFirst(ctx, in)
	if err != nil {
		return Output{}, err
	}
	n := src.NumPages()
	if n == 0 {
		return Output{}, Failure("PDF has no pages")
	}
	type part struct {
		name    string
		indices []int
	}
	var parts []part
	if in.Params.String("split_type") == "range" {
		ranges, err := ParseRanges(in.Params.String("pages"))
		if err != nil {
			return Output{}, err
		}
		if len(ranges) == 0 {
			return Output{}, Failure("No page ranges specified")
		}
		for _, r := range ranges {
			r = r.Clamp(n)
			parts = append(parts, part{fmt.Sprintf("pages_%d-%d.pdf", r.From, r.To), r.Indices()})
		}
	} else {
		for i := 0; i < n; i++ {
			parts = append(parts, part{fmt.Sprintf("page_%d.pdf", i+1), []int{i}})
		}
	}

	var files []string
	seen := make(map[string]bool)
	for _, p := range parts {
		if err := ctx.Err(); err != nil {
			return Output{}, err
		}
		if seen[p.name] {
			continue
		}
		seen[p.name] = true
		doc := document.New()
		if err := doc.ImportPages(src, p.indices); err != nil {
			return Output{}, err
		}
		if err := savePDF(ctx, doc, filepath.Join(in.Target, p.name)); err != nil {
			return Output{}, err
		}
		files = append(files, p.name)
	}
	return Output{Files: files}, nil
}

// Rotate adds angle to the rotation of the selected pages.
func Rotate(ctx context.Context, in Input) (Output, error) {
	doc, err := openFirst(ctx, in)
	if err != nil {
		return Output{}, err
	}
	sel, err := SelectPages(in.Params.String("pages"), doc.NumPages())
	if err != nil {
		return Output{}, err
	}
	angle := in.Params.Int("angle")
	for i, p := range doc.Pages() {
		if sel[i] {
			p.SetRotation(p.Rotation() + angle)
		}
	}
	if err := savePDF(ctx, doc, in.Target); err != nil {
		return Output{}, err
	}
	return single(in), nil
}

// Crop insets the visible box of every page. Margins are given for the
// page as displayed, so rotated pages are inset on the matching sides.
func Crop(ctx context.Context, in Input) (Output, error) {
	doc, err := openFirst(ctx, in)
	if err != nil {
		return Output{}, err
	}
	m := margins{
		top:    in.Params.Float("top"),
		right:  in.Params.Float("right"),
		bottom: in.Params.Float("bottom"),
		left:   in.Params.Float("left"),
	}
	if m != (margins{}) {
		for _, p := range doc.Pages() {
			r := m.rotate(p.Rotation()).apply(p.CropBox())
			if r.Empty() {
				continue
			}
			p.SetCropBox(r)
		}
	}
	if err := savePDF(ctx, doc, in.Target); err != nil {
		return Output{}, err
	}
	return single(in), nil
}

type margins struct {
	top, right, bottom, left float64
}

// rotate maps margins on the displayed page to user space sides.
func (m margins) rotate(deg int) margins {
	switch deg {
	case 90:
		return margins{top: m.right, right: m.bottom, bottom: m.left, left: m.top}
	case 180:
		return margins{top: m.bottom, right: m.left, bottom: m.top, left: m.right}
	case 270:
		return margins{top: m.left, right: m.top, bottom: m.right, left: m.bottom}
	}
	return m
}

func (m margins) apply(r coords.Rect) coords.Rect {
	return r.Inset(m.left, m.bottom, m.right, m.top)
}

// RemovePages deletes the listed pages.
func RemovePages(ctx context.Context, in Input) (Output, error) {
	expr := in.Params.String("pages")
	if expr == "" {
		return Output{}, Failure("No pages specified")
	}
	doc, err := openFirst(ctx, in)
	if err != nil {
		return Output{}, err
	}
	sel, err := SelectPages(expr, doc.NumPages())
	if err != nil {
		return Output{}, err
	}
	var keep []int
	for i := 0; i < doc.NumPages(); i++ {
		if !sel[i] {
			keep = append(keep, i)
		}
	}
	if len(keep) == 0 {
		return Output{}, Failure("Cannot remove all pages from PDF")
	}
	if err := doc.Select(keep); err != nil {
		return Output{}, err
	}
	if err := savePDF(ctx, doc, in.Target); err != nil {
		return Output{}, err
	}
	return single(in), nil
}

// blankEntry in an order inserts an empty page sized like the first page.
const blankEntry = "blank"

// Organize rebuilds the document in the given order. Pages may repeat and
// out-of-range numbers are dropped.
func Organize(ctx context.Context, in Input) (Output, error) {
	order := in.Params.String("order")
	if order == "" {
		return Output{}, Failure("No page order specified")
	}
	doc, err := openFirst(ctx, in)
	if err != nil {
		return Output{}, err
	}
	n := doc.NumPages()
	var indices []int
	blank := -1
	for _, entry := range strings.Split(order, ",") {
		entry = strings.ToLower(strings.TrimSpace(entry))
		switch {
		case entry == "":
			continue
		case entry == blankEntry:
			if blank < 0 {
				w, h := 612.0, 792.0
				if n > 0 {
					p, _ := doc.Page(0)
					w, h = p.Size()
				}
				doc.AddBlankPage(w, h)
				blank = n
			}
			indices = append(indices, blank)
		default:
			num, err := strconv.Atoi(entry)
			if err != nil {
				return Output{}, Failure("Invalid page order")
			}
			if num >= 1 && num <= n {
				indices = append(indices, num-1)
			}
		}
	}
	if len(indices) == 0 {
		return Output{}, Failure("Invalid page order")
	}
	if err := doc.Select(indices); err != nil {
		return Output{}, err
	}
	if err := savePDF(ctx, doc, in.Target); err != nil {
		return Output{}, err
	}
	return single(in), nil
}

// Package document edits the page tree of a parsed PDF: it flattens inherited
// page attributes, reorders, duplicates and imports pages, overlays new
// content and saves the result through the writer.
package document

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/wudi/pdftools/filters"
	"github.com/wudi/pdftools/ir/raw"
	"github.com/wudi/pdftools/parser"
	"github.com/wudi/pdftools/security"
	"github.com/wudi/pdftools/writer"
)

var (
	ErrNoCatalog     = errors.New("document: missing catalog")
	ErrNoPageTree    = errors.New("document: missing page tree")
	ErrPageRange     = errors.New("document: page index out of range")
	ErrEmptyDocument = errors.New("document: no pages")
)

// Document is a parsed file plus its flattened page list.
type Document struct {
	Raw   *raw.Document
	pages []*Page
}

// Open parses the file at path with password and flattens its page tree.
func Open(ctx context.Context, path, password string) (*Document, error) {
	rd, err := parser.Open(ctx, path, password)
	if err != nil {
		return nil, err
	}
	return Load(rd)
}

// Parse is Open for in-memory data.
func Parse(ctx context.Context, data []byte, password string) (*Document, error) {
	rd, err := parser.NewDocumentParser(parser.Config{Password: password}).Parse(ctx, data)
	if err != nil {
		return nil, err
	}
	return Load(rd)
}

// New returns an empty document with a catalog and an empty page tree.
func New() *Document {
	rd := raw.NewDocument()
	pages := raw.Dict()
	pages.Set("Type", raw.NameLiteral("Pages"))
	pages.Set("Kids", raw.NewArray())
	pages.Set("Count", raw.NumberInt(0))
	cat := raw.Dict()
	cat.Set("Type", raw.NameLiteral("Catalog"))
	cat.Set("Pages", rd.Add(pages))
	rd.Trailer.Set("Root", rd.Add(cat))
	return &Document{Raw: rd}
}

// Load flattens the page tree of rd. Inherited MediaBox, CropBox, Rotate and
// Resources are copied onto every page so pages can be moved freely.
func Load(rd *raw.Document) (*Document, error) {
	root := rd.Root()
	if root == nil {
		return nil, ErrNoCatalog
	}
	tree, ok := root.Get("Pages").(raw.RefObj)
	if !ok {
		if rd.DictOf(root.Get("Pages")) == nil {
			return nil, ErrNoPageTree
		}
		// A direct page tree node is promoted so pages can point at it.
		tree = rd.Add(root.Get("Pages"))
		root.Set("Pages", tree)
	}
	d := &Document{Raw: rd}
	seen := make(map[raw.ObjectRef]bool)
	d.walk(tree, inherited{}, seen, 0)
	return d, nil
}

type inherited struct {
	mediaBox  raw.Object
	cropBox   raw.Object
	rotate    raw.Object
	resources raw.Object
}

const maxTreeDepth = 64

func (d *Document) walk(ref raw.RefObj, inh inherited, seen map[raw.ObjectRef]bool, depth int) {
	if depth > maxTreeDepth || seen[ref.R] {
		return
	}
	seen[ref.R] = true
	dict := d.Raw.DictOf(ref)
	if dict == nil {
		return
	}
	if v := dict.Get("MediaBox"); v != nil {
		inh.mediaBox = v
	}
	if v := dict.Get("CropBox"); v != nil {
		inh.cropBox = v
	}
	if v := dict.Get("Rotate"); v != nil {
		inh.rotate = v
	}
	if v := dict.Get("Resources"); v != nil {
		inh.resources = v
	}

	isPage := d.Raw.NameOf(dict.Get("Type")) == "Page"
	if !isPage && dict.Get("Type") == nil && !dict.Has("Kids") {
		isPage = true
	}
	if isPage {
		materialize(dict, "MediaBox", inh.mediaBox)
		materialize(dict, "CropBox", inh.cropBox)
		materialize(dict, "Rotate", inh.rotate)
		materialize(dict, "Resources", inh.resources)
		if !dict.Has("MediaBox") {
			dict.Set("MediaBox", raw.Rect(0, 0, 612, 792))
		}
		d.pages = append(d.pages, &Page{Ref: ref.R, Dict: dict, doc: d.Raw})
		return
	}
	kids := d.Raw.ArrayOf(dict.Get("Kids"))
	if kids == nil {
		return
	}
	for _, kid := range kids.Items {
		if kr, ok := kid.(raw.RefObj); ok {
			d.walk(kr, inh, seen, depth+1)
		}
	}
}

func materialize(dict *raw.DictObj, key string, v raw.Object) {
	if v != nil && !dict.Has(key) {
		dict.Set(key, v)
	}
}

// NumPages returns the page count.
func (d *Document) NumPages() int { return len(d.pages) }

// Page returns the page at zero-based index i.
func (d *Document) Page(i int) (*Page, error) {
	if i < 0 || i >= len(d.pages) {
		return nil, fmt.Errorf("%w: %d", ErrPageRange, i+1)
	}
	return d.pages[i], nil
}

// Pages returns the flattened page list.
func (d *Document) Pages() []*Page { return d.pages }

// Encrypted reports whether the source file was encrypted.
func (d *Document) Encrypted() bool { return d.Raw.Encrypted }

// Info returns the information dictionary, creating one when absent.
func (d *Document) Info() *raw.DictObj {
	if info := d.Raw.DictOf(d.Raw.Trailer.Get("Info")); info != nil {
		return info
	}
	info := raw.Dict()
	d.Raw.Trailer.Set("Info", d.Raw.Add(info))
	return info
}

// Select rebuilds the page list from zero-based indices. Indices may repeat;
// repeated pages are cloned so every page object appears once in the tree.
func (d *Document) Select(indices []int) error {
	if len(indices) == 0 {
		return ErrEmptyDocument
	}
	used := make(map[raw.ObjectRef]bool, len(indices))
	pages := make([]*Page, 0, len(indices))
	for _, i := range indices {
		p, err := d.Page(i)
		if err != nil {
			return err
		}
		if used[p.Ref] {
			p = d.clonePage(p)
		}
		used[p.Ref] = true
		pages = append(pages, p)
	}
	d.SetPages(pages)
	return nil
}

func (d *Document) clonePage(p *Page) *Page {
	dict := p.Dict.Clone()
	dict.Delete("Annots")
	ref := d.Raw.Add(dict)
	return &Page{Ref: ref.R, Dict: dict, doc: d.Raw}
}

// SetPages replaces the page tree with a flat node holding pages in order.
// When pages are dropped, catalog structures that may point at them are
// removed.
func (d *Document) SetPages(pages []*Page) {
	keep := make(map[raw.ObjectRef]bool, len(pages))
	for _, p := range pages {
		keep[p.Ref] = true
	}
	for _, old := range d.pages {
		if !keep[old.Ref] {
			old.Dict.Delete("Parent")
			d.pruneCatalog()
		}
	}
	d.pages = pages
	d.rebuildTree()
}

func (d *Document) pruneCatalog() {
	root := d.Raw.Root()
	if root == nil {
		return
	}
	for _, k := range []string{"Outlines", "PageLabels", "StructTreeRoot", "OpenAction", "Dests"} {
		root.Delete(k)
	}
	if names := d.Raw.DictOf(root.Get("Names")); names != nil {
		names.Delete("Dests")
	}
}

func (d *Document) rebuildTree() {
	root := d.Raw.Root()
	treeRef, _ := root.Get("Pages").(raw.RefObj)
	tree := d.Raw.DictOf(treeRef)
	if tree == nil {
		tree = raw.Dict()
		treeRef = d.Raw.Add(tree)
		root.Set("Pages", treeRef)
	}
	for _, k := range []string{"MediaBox", "CropBox", "Rotate", "Resources", "Parent"} {
		tree.Delete(k)
	}
	tree.Set("Type", raw.NameLiteral("Pages"))
	kids := raw.NewArray()
	for _, p := range d.pages {
		p.Dict.Set("Parent", treeRef)
		p.Dict.Set("Type", raw.NameLiteral("Page"))
		kids.Append(raw.RefObj{R: p.Ref})
	}
	tree.Set("Kids", kids)
	tree.Set("Count", raw.NumberInt(int64(len(d.pages))))
}

// AddBlankPage appends an empty page of the given size.
func (d *Document) AddBlankPage(width, height float64) *Page {
	p := d.NewBlankPage(width, height)
	d.pages = append(d.pages, p)
	d.rebuildTree()
	return p
}

// NewBlankPage creates an empty page that is not yet part of the tree.
func (d *Document) NewBlankPage(width, height float64) *Page {
	dict := raw.Dict()
	dict.Set("Type", raw.NameLiteral("Page"))
	dict.Set("MediaBox", raw.Rect(0, 0, width, height))
	dict.Set("Resources", raw.Dict())
	ref := d.Raw.Add(dict)
	return &Page{Ref: ref.R, Dict: dict, doc: d.Raw}
}

// SaveOptions controls serialization.
type SaveOptions struct {
	Compression int
	Encryption  *security.Encryption
	// Deterministic derives the trailer /ID from the content, so equal
	// documents serialize to equal bytes.
	Deterministic bool
}

// Save writes the document to w.
func (d *Document) Save(ctx context.Context, w io.Writer, opts SaveOptions) error {
	if len(d.pages) == 0 {
		return ErrEmptyDocument
	}
	d.rebuildTree()
	cfg := writer.Config{Compression: opts.Compression, Encryption: opts.Encryption, Deterministic: opts.Deterministic}
	return (&writer.WriterBuilder{}).Build().Write(ctx, d.Raw, w, cfg)
}

// SaveFile writes the document to path through a temporary file in the
// same directory and renames it into place.
func (d *Document) SaveFile(ctx context.Context, path string, opts SaveOptions) error {
	return WriteFileAtomic(path, func(w io.Writer) error {
		return d.Save(ctx, w, opts)
	})
}

// WriteFileAtomic runs fill against a temporary file beside path and renames
// it to path when fill succeeds.
func WriteFileAtomic(path string, fill func(io.Writer) error) error {
	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(dir, "."+base+".*.tmp")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if err := fill(tmp); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return err
	}
	return nil
}

// DecodeStream returns the stream data with every non-image filter applied.
func (d *Document) DecodeStream(ctx context.Context, stm *raw.StreamObj) ([]byte, error) {
	return DecodeStream(ctx, d.Raw, stm)
}

// DecodeStream applies the stream's filters up to the first image codec.
func DecodeStream(ctx context.Context, rd *raw.Document, stm *raw.StreamObj) ([]byte, error) {
	names, params := filters.ExtractFilters(rd, stm.Dict)
	if len(names) == 0 {
		return stm.Data, nil
	}
	out, _, err := filters.Default().Decode(ctx, stm.Data, names, params)
	return out, err
}

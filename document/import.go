package document

import "github.com/wudi/pdftools/ir/raw"

// importer copies objects from one document into another, renumbering them.
type importer struct {
	src, dst *raw.Document
	memo     map[raw.ObjectRef]raw.RefObj
}

// ImportPages appends copies of src's pages at zero-based indices, together
// with everything they reference. Links back to src's page tree are cut.
func (d *Document) ImportPages(src *Document, indices []int) error {
	imp := &importer{src: src.Raw, dst: d.Raw, memo: make(map[raw.ObjectRef]raw.RefObj)}
	pages := make([]*Page, 0, len(indices))
	for _, i := range indices {
		p, err := src.Page(i)
		if err != nil {
			return err
		}
		pages = append(pages, p)
	}
	// Reserve page numbers first so annotations pointing at a sibling page
	// resolve to the copy.
	for _, p := range pages {
		imp.reserve(p.Ref)
	}
	for _, p := range pages {
		ref := imp.memo[p.Ref]
		dict := raw.Dict()
		for _, k := range p.Dict.Keys() {
			if k == "Parent" {
				continue
			}
			dict.Set(k, imp.copy(p.Dict.Get(k)))
		}
		d.Raw.Objects[ref.R] = dict
		d.pages = append(d.pages, &Page{Ref: ref.R, Dict: dict, doc: d.Raw})
	}
	d.rebuildTree()
	return nil
}

// ImportAll appends every page of src.
func (d *Document) ImportAll(src *Document) error {
	indices := make([]int, src.NumPages())
	for i := range indices {
		indices[i] = i
	}
	return d.ImportPages(src, indices)
}

func (imp *importer) reserve(ref raw.ObjectRef) raw.RefObj {
	if r, ok := imp.memo[ref]; ok {
		return r
	}
	r := imp.dst.Add(raw.NullObj{})
	imp.memo[ref] = r
	return r
}

func (imp *importer) copy(o raw.Object) raw.Object {
	switch v := o.(type) {
	case raw.RefObj:
		if r, ok := imp.memo[v.R]; ok {
			return r
		}
		target, ok := imp.src.Objects[v.R]
		if !ok {
			return raw.NullObj{}
		}
		if d, ok := target.(*raw.DictObj); ok && imp.src.NameOf(d.Get("Type")) == "Pages" {
			// Page tree nodes are never copied.
			return raw.NullObj{}
		}
		r := imp.reserve(v.R)
		imp.dst.Objects[r.R] = imp.copy(target)
		return r
	case *raw.ArrayObj:
		out := raw.NewArray()
		for _, item := range v.Items {
			out.Append(imp.copy(item))
		}
		return out
	case *raw.DictObj:
		out := raw.Dict()
		for _, k := range v.Keys() {
			out.Set(k, imp.copy(v.Get(k)))
		}
		return out
	case *raw.StreamObj:
		return raw.NewStream(imp.copy(v.Dict).(*raw.DictObj), v.Data)
	}
	return o
}

package optimize

import (
	"context"

	"github.com/wudi/pdftools/ir/raw"
)

// structural types are never merged: two identical page dictionaries are
// still two pages.
var structural = map[string]bool{
	"Catalog": true,
	"Pages":   true,
	"Page":    true,
	"XRef":    true,
	"ObjStm":  true,
}

// combineIdenticalObjects points every reference to a duplicated object at
// its lowest-numbered twin and drops the rest. Merging can expose new
// duplicates (two dictionaries that referenced merged twins), so it runs
// to a fixed point.
func (o *Optimizer) combineIdenticalObjects(ctx context.Context, rd *raw.Document) (int, error) {
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		seen := make(map[string]raw.ObjectRef)
		replacements := make(map[raw.ObjectRef]raw.ObjectRef)

		for _, ref := range rd.Refs() {
			obj := rd.Objects[ref]
			if d := rd.DictOf(obj); d != nil && structural[rd.NameOf(d.Get("Type"))] {
				continue
			}
			h := hashObject(obj)
			if original, ok := seen[h]; ok {
				replacements[ref] = original
			} else {
				seen[h] = ref
			}
		}
		if len(replacements) == 0 {
			return total, nil
		}
		applyReplacements(rd, replacements)
		for dup := range replacements {
			delete(rd.Objects, dup)
		}
		total += len(replacements)
	}
}

func applyReplacements(rd *raw.Document, replacements map[raw.ObjectRef]raw.ObjectRef) {
	for _, obj := range rd.Objects {
		replaceRefs(obj, replacements)
	}
	if rd.Trailer != nil {
		replaceRefs(rd.Trailer, replacements)
	}
}

func replaceRefs(obj raw.Object, replacements map[raw.ObjectRef]raw.ObjectRef) {
	switch t := obj.(type) {
	case *raw.ArrayObj:
		for i, val := range t.Items {
			if ref, ok := val.(raw.RefObj); ok {
				if newRef, found := replacements[ref.R]; found {
					t.Items[i] = raw.RefObj{R: newRef}
				}
				continue
			}
			replaceRefs(val, replacements)
		}
	case *raw.DictObj:
		for _, key := range t.Keys() {
			val := t.Get(key)
			if ref, ok := val.(raw.RefObj); ok {
				if newRef, found := replacements[ref.R]; found {
					t.Set(key, raw.RefObj{R: newRef})
				}
				continue
			}
			replaceRefs(val, replacements)
		}
	case *raw.StreamObj:
		replaceRefs(t.Dict, replacements)
	}
}

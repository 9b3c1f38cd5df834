package optimize

import (
	"github.com/wudi/pdftools/document"
	"github.com/wudi/pdftools/ir/raw"
)

// removeUnreachable deletes every object that neither the trailer nor a
// page of doc can reach. Pages count as roots because the page tree is
// only rebuilt when the document is saved.
func removeUnreachable(doc *document.Document) int {
	rd := doc.Raw
	reachable := make(map[raw.ObjectRef]bool)
	if rd.Trailer != nil {
		markReachable(rd, rd.Trailer, reachable)
	}
	for _, p := range doc.Pages() {
		markReachable(rd, raw.RefObj{R: p.Ref}, reachable)
	}
	removed := 0
	for _, ref := range rd.Refs() {
		if !reachable[ref] {
			delete(rd.Objects, ref)
			removed++
		}
	}
	return removed
}

func markReachable(rd *raw.Document, obj raw.Object, reachable map[raw.ObjectRef]bool) {
	switch t := obj.(type) {
	case raw.RefObj:
		if reachable[t.R] {
			return
		}
		reachable[t.R] = true
		if target, ok := rd.Objects[t.R]; ok {
			markReachable(rd, target, reachable)
		}
	case *raw.ArrayObj:
		for _, v := range t.Items {
			markReachable(rd, v, reachable)
		}
	case *raw.DictObj:
		for _, k := range t.Keys() {
			markReachable(rd, t.Get(k), reachable)
		}
	case *raw.StreamObj:
		markReachable(rd, t.Dict, reachable)
	}
}

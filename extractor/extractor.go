package extractor

import (
	"errors"

	"github.com/wudi/pdftools/document"
	"github.com/wudi/pdftools/ir/raw"
)

// maxFormDepth bounds Form XObject nesting; self-referencing forms stop here.
const maxFormDepth = 8

// Extractor pulls text and images out of a loaded document. It caches
// decoded fonts and is not safe for concurrent use.
type Extractor struct {
	doc   *document.Document
	fonts map[raw.ObjectRef]*Font
}

// New creates an extractor backed by doc.
func New(doc *document.Document) (*Extractor, error) {
	if doc == nil || doc.Raw == nil {
		return nil, errors.New("extractor: document is required")
	}
	return &Extractor{doc: doc, fonts: make(map[raw.ObjectRef]*Font)}, nil
}

// xobject looks name up in the XObject category of resources.
func xobject(rd *raw.Document, resources *raw.DictObj, name string) (raw.Object, *raw.StreamObj) {
	if resources == nil {
		return nil, nil
	}
	xd := rd.DictOf(resources.Get("XObject"))
	if xd == nil {
		return nil, nil
	}
	obj := xd.Get(name)
	return obj, rd.StreamOf(obj)
}

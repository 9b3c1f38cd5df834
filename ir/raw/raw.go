package raw

import (
	"fmt"
	"sort"
)

// ObjectRef uniquely identifies an indirect PDF object.
type ObjectRef struct {
	Num int
	Gen int
}

func (r ObjectRef) String() string { return fmt.Sprintf("%d %d R", r.Num, r.Gen) }

// Object is the base interface for all raw PDF objects.
type Object interface {
	Type() string
}

// Document is the object graph of a parsed or freshly built file.
type Document struct {
	Version string
	Objects map[ObjectRef]Object
	Trailer *DictObj
	// Encrypted records that the source file carried an /Encrypt entry.
	// Objects are always held decrypted.
	Encrypted bool
}

// NewDocument returns an empty 1.7 document with an empty trailer.
func NewDocument() *Document {
	return &Document{
		Version: "1.7",
		Objects: make(map[ObjectRef]Object),
		Trailer: Dict(),
	}
}

// maxResolveDepth bounds reference chains so cyclic refs cannot hang a caller.
const maxResolveDepth = 32

// Resolve follows indirect references. A dangling reference resolves to nil.
func (d *Document) Resolve(o Object) Object {
	for i := 0; i < maxResolveDepth; i++ {
		ref, ok := o.(RefObj)
		if !ok {
			return o
		}
		next, found := d.Objects[ref.R]
		if !found {
			return nil
		}
		o = next
	}
	return nil
}

// MaxNum returns the highest object number in use.
func (d *Document) MaxNum() int {
	max := 0
	for ref := range d.Objects {
		if ref.Num > max {
			max = ref.Num
		}
	}
	return max
}

// Add stores o under the next free object number.
func (d *Document) Add(o Object) RefObj {
	ref := ObjectRef{Num: d.MaxNum() + 1}
	d.Objects[ref] = o
	return RefObj{R: ref}
}

// Refs returns the object references sorted by number.
func (d *Document) Refs() []ObjectRef {
	refs := make([]ObjectRef, 0, len(d.Objects))
	for ref := range d.Objects {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Num == refs[j].Num {
			return refs[i].Gen < refs[j].Gen
		}
		return refs[i].Num < refs[j].Num
	})
	return refs
}

// Root returns the document catalog, or nil when the trailer has none.
func (d *Document) Root() *DictObj {
	if d.Trailer == nil {
		return nil
	}
	return d.DictOf(d.Trailer.Get("Root"))
}

// DictOf resolves o and returns it as a dictionary. Streams yield their dictionary.
func (d *Document) DictOf(o Object) *DictObj {
	switch v := d.Resolve(o).(type) {
	case *DictObj:
		return v
	case *StreamObj:
		return v.Dict
	}
	return nil
}

// ArrayOf resolves o and returns it as an array.
func (d *Document) ArrayOf(o Object) *ArrayObj {
	a, _ := d.Resolve(o).(*ArrayObj)
	return a
}

// StreamOf resolves o and returns it as a stream.
func (d *Document) StreamOf(o Object) *StreamObj {
	s, _ := d.Resolve(o).(*StreamObj)
	return s
}

// NameOf resolves o and returns its name value, or "" when o is not a name.
func (d *Document) NameOf(o Object) string {
	n, _ := d.Resolve(o).(NameObj)
	return n.Val
}

// NumberOf resolves o and returns its numeric value.
func (d *Document) NumberOf(o Object) (float64, bool) {
	n, ok := d.Resolve(o).(NumberObj)
	if !ok {
		return 0, false
	}
	return n.Float(), true
}

// IntOf resolves o and returns its integer value, or def when o is not numeric.
func (d *Document) IntOf(o Object, def int) int {
	n, ok := d.Resolve(o).(NumberObj)
	if !ok {
		return def
	}
	return int(n.Int())
}

// StringOf resolves o and returns its bytes.
func (d *Document) StringOf(o Object) ([]byte, bool) {
	s, ok := d.Resolve(o).(StringObj)
	if !ok {
		return nil, false
	}
	return s.Bytes, true
}

// Clone deep-copies direct objects. References are copied as-is.
func Clone(o Object) Object {
	switch v := o.(type) {
	case *ArrayObj:
		items := make([]Object, len(v.Items))
		for i, it := range v.Items {
			items[i] = Clone(it)
		}
		return &ArrayObj{Items: items}
	case *DictObj:
		return v.Clone()
	case *StreamObj:
		data := make([]byte, len(v.Data))
		copy(data, v.Data)
		return &StreamObj{Dict: v.Dict.Clone(), Data: data}
	case StringObj:
		b := make([]byte, len(v.Bytes))
		copy(b, v.Bytes)
		return StringObj{Bytes: b, Hex: v.Hex}
	}
	return o
}

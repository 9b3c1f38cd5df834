package raw

import (
	"math"
	"sort"
)

// Name object
type NameObj struct{ Val string }

func (n NameObj) Type() string { return "name" }

// Number object
type NumberObj struct {
	I     int64
	F     float64
	IsInt bool
}

func (n NumberObj) Type() string { return "number" }

func (n NumberObj) Int() int64 {
	if n.IsInt {
		return n.I
	}
	return int64(math.Round(n.F))
}

func (n NumberObj) Float() float64 {
	if n.IsInt {
		return float64(n.I)
	}
	return n.F
}

// Boolean object
type BoolObj struct{ V bool }

func (b BoolObj) Type() string { return "boolean" }

// Null object
type NullObj struct{}

func (n NullObj) Type() string { return "null" }

// String object. Hex records the source syntax so it survives a rewrite.
type StringObj struct {
	Bytes []byte
	Hex   bool
}

func (s StringObj) Type() string { return "string" }

// Array object
type ArrayObj struct{ Items []Object }

func (a *ArrayObj) Type() string { return "array" }
func (a *ArrayObj) Len() int     { return len(a.Items) }

func (a *ArrayObj) Get(i int) Object {
	if i < 0 || i >= len(a.Items) {
		return nil
	}
	return a.Items[i]
}

func (a *ArrayObj) Append(o ...Object) { a.Items = append(a.Items, o...) }

// Dictionary object
type DictObj struct{ KV map[string]Object }

func (d *DictObj) Type() string { return "dict" }

// Get returns the value stored under key, or nil.
func (d *DictObj) Get(key string) Object {
	if d == nil {
		return nil
	}
	return d.KV[key]
}

func (d *DictObj) Set(key string, value Object) {
	if d.KV == nil {
		d.KV = make(map[string]Object)
	}
	d.KV[key] = value
}

func (d *DictObj) Delete(key string) { delete(d.KV, key) }

func (d *DictObj) Has(key string) bool {
	if d == nil {
		return false
	}
	_, ok := d.KV[key]
	return ok
}

// Keys returns the keys in sorted order so serialization is deterministic.
func (d *DictObj) Keys() []string {
	keys := make([]string, 0, len(d.KV))
	for k := range d.KV {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (d *DictObj) Len() int { return len(d.KV) }

// Clone deep-copies the dictionary's direct values.
func (d *DictObj) Clone() *DictObj {
	if d == nil {
		return nil
	}
	out := &DictObj{KV: make(map[string]Object, len(d.KV))}
	for k, v := range d.KV {
		out.KV[k] = Clone(v)
	}
	return out
}

// Stream object. Data holds the encoded bytes as stored in the file.
type StreamObj struct {
	Dict *DictObj
	Data []byte
}

func (s *StreamObj) Type() string { return "stream" }

// Reference object
type RefObj struct{ R ObjectRef }

func (r RefObj) Type() string { return "ref" }

// Helpers
func NameLiteral(v string) NameObj                    { return NameObj{Val: v} }
func NumberInt(i int64) NumberObj                     { return NumberObj{I: i, IsInt: true} }
func NumberFloat(f float64) NumberObj                 { return NumberObj{F: f} }
func Bool(v bool) BoolObj                             { return BoolObj{V: v} }
func Str(b []byte) StringObj                          { return StringObj{Bytes: b} }
func HexStr(b []byte) StringObj                       { return StringObj{Bytes: b, Hex: true} }
func NewArray(items ...Object) *ArrayObj              { return &ArrayObj{Items: items} }
func Dict() *DictObj                                  { return &DictObj{KV: make(map[string]Object)} }
func NewStream(dict *DictObj, data []byte) *StreamObj { return &StreamObj{Dict: dict, Data: data} }
func Ref(num, gen int) RefObj                         { return RefObj{R: ObjectRef{Num: num, Gen: gen}} }

// Rect builds a four-number array.
func Rect(llx, lly, urx, ury float64) *ArrayObj {
	return NewArray(Number(llx), Number(lly), Number(urx), Number(ury))
}

// Number picks an integer representation when f has no fractional part.
func Number(f float64) NumberObj {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return NumberInt(int64(f))
	}
	return NumberFloat(f)
}

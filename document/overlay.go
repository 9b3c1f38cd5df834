package document

import (
	"fmt"
	"strings"

	"github.com/wudi/pdftools/builder"
	"github.com/wudi/pdftools/contentstream"
	"github.com/wudi/pdftools/ir/raw"
)

// resourceOperators maps resource categories to the operators naming them.
var resourceOperators = map[string]string{
	"Font":      "Tf",
	"XObject":   "Do",
	"ExtGState": "gs",
}

// Overlay draws c on top of the page. The existing content is wrapped in
// q/Q so its graphics state cannot leak into the overlay, and canvas
// resource names that collide with the page's are renamed.
func (d *Document) Overlay(p *Page, c *builder.Canvas) error {
	if c.Empty() {
		return nil
	}
	res := p.Resources()
	if res == nil {
		res = raw.Dict()
	} else {
		// Resource dictionaries are often shared between pages.
		res = res.Clone()
	}
	add := c.Resources(d.Raw)
	renames := make(map[string]string)
	for _, category := range add.Keys() {
		src, ok := add.Get(category).(*raw.DictObj)
		if !ok {
			continue
		}
		dst := d.Raw.DictOf(res.Get(category))
		if dst == nil {
			dst = raw.Dict()
		} else {
			dst = dst.Clone()
		}
		for _, name := range src.Keys() {
			target := name
			for i := 1; dst.Has(target); i++ {
				target = fmt.Sprintf("%s_%d", name, i)
			}
			if target != name {
				renames[category+"/"+name] = target
			}
			dst.Set(target, src.Get(name))
		}
		res.Set(category, dst)
	}

	ops := renameOperands(c.Operations(), renames)
	overlay := d.Raw.Add(raw.NewStream(raw.Dict(), contentstream.Serialize(ops)))

	contents := raw.NewArray()
	if existing := p.Contents(); len(existing) > 0 {
		contents.Append(d.Raw.Add(raw.NewStream(raw.Dict(), []byte("q\n"))))
		switch v := p.Dict.Get("Contents").(type) {
		case raw.RefObj:
			if arr := d.Raw.ArrayOf(v); arr != nil {
				contents.Append(arr.Items...)
			} else {
				contents.Append(v)
			}
		case *raw.ArrayObj:
			contents.Append(v.Items...)
		}
		contents.Append(d.Raw.Add(raw.NewStream(raw.Dict(), []byte("Q\n"))))
	}
	contents.Append(overlay)
	p.Dict.Set("Contents", contents)
	p.Dict.Set("Resources", res)
	return nil
}

func renameOperands(ops []contentstream.Operation, renames map[string]string) []contentstream.Operation {
	if len(renames) == 0 {
		return ops
	}
	byOperator := make(map[string]map[string]string)
	for key, target := range renames {
		for category, operator := range resourceOperators {
			if name, ok := strings.CutPrefix(key, category+"/"); ok {
				if byOperator[operator] == nil {
					byOperator[operator] = make(map[string]string)
				}
				byOperator[operator][name] = target
			}
		}
	}
	out := make([]contentstream.Operation, len(ops))
	for i, op := range ops {
		out[i] = op
		m := byOperator[op.Operator]
		if m == nil || len(op.Operands) == 0 {
			continue
		}
		if n, ok := op.Operands[0].(raw.NameObj); ok {
			if target, ok := m[n.Val]; ok {
				operands := append([]raw.Object(nil), op.Operands...)
				operands[0] = raw.NameLiteral(target)
				out[i].Operands = operands
			}
		}
	}
	return out
}

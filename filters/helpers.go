package filters

import "github.com/wudi/pdftools/ir/raw"

// ExtractFilters reads Filter and DecodeParms entries from a stream dictionary.
// doc resolves indirect entries and may be nil.
func ExtractFilters(doc *raw.Document, dict *raw.DictObj) ([]string, []*raw.DictObj) {
	var names []string
	var params []*raw.DictObj

	resolve := func(o raw.Object) raw.Object {
		if doc == nil {
			return o
		}
		return doc.Resolve(o)
	}

	filterObj := resolve(dict.Get("Filter"))
	if filterObj == nil {
		filterObj = resolve(dict.Get("F"))
	}
	switch f := filterObj.(type) {
	case raw.NameObj:
		names = append(names, f.Val)
	case *raw.ArrayObj:
		for _, item := range f.Items {
			if n, ok := resolve(item).(raw.NameObj); ok {
				names = append(names, n.Val)
			}
		}
	}
	if len(names) == 0 {
		return nil, nil
	}

	parmObj := resolve(dict.Get("DecodeParms"))
	if parmObj == nil {
		parmObj = resolve(dict.Get("DP"))
	}
	switch p := parmObj.(type) {
	case *raw.DictObj:
		params = append(params, p)
	case *raw.ArrayObj:
		for _, item := range p.Items {
			d, _ := resolve(item).(*raw.DictObj)
			params = append(params, d)
		}
	}
	return names, params
}

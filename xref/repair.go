package xref

import (
	"bytes"
	"context"
	"errors"
	"regexp"
	"strconv"

	"github.com/wudi/pdftools/filters"
	"github.com/wudi/pdftools/ir/raw"
	"github.com/wudi/pdftools/scanner"
)

var objHeader = regexp.MustCompile(`(\d{1,10})[ \t\r\n\f\x00]+(\d{1,5})[ \t\r\n\f\x00]+obj\b`)

// Repair rebuilds a table by scanning for object headers. Later definitions
// of the same object win, matching incremental-update semantics.
func Repair(ctx context.Context, data []byte) (*Table, error) {
	t := &Table{Entries: make(map[int]Entry), Repaired: true}
	s := scanner.New(data)
	for _, m := range objHeader.FindAllSubmatchIndex(data, -1) {
		start := m[0]
		if start > 0 && !scanner.IsWhitespace(data[start-1]) && !scanner.IsDelimiter(data[start-1]) {
			continue
		}
		num, err1 := strconv.Atoi(string(data[m[2]:m[3]]))
		gen, err2 := strconv.Atoi(string(data[m[4]:m[5]]))
		if err1 != nil || err2 != nil {
			continue
		}
		t.Entries[num] = Entry{Type: EntryInUse, Offset: int64(start), Gen: gen}
	}
	if len(t.Entries) == 0 {
		return nil, errors.New("xref: no objects found")
	}

	// Objects that only exist inside object streams.
	for num, e := range t.Entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		_, obj, err := raw.ParseIndirect(s, e.Offset, nil)
		if err != nil {
			continue
		}
		stm, ok := obj.(*raw.StreamObj)
		if !ok {
			continue
		}
		switch nameOf(stm.Dict.Get("Type")) {
		case "ObjStm":
			addCompressed(ctx, t, num, stm)
		case "XRef":
			if t.Trailer == nil {
				t.Trailer = stm.Dict.Clone()
			}
		}
	}

	if tr := lastTrailer(data); tr != nil {
		t.Trailer = tr
	}
	if t.Trailer == nil {
		t.Trailer = raw.Dict()
	}
	if t.Trailer.Get("Root") == nil {
		if root, ok := findCatalog(s, t); ok {
			t.Trailer.Set("Root", root)
		} else {
			return nil, errors.New("xref: no document catalog found")
		}
	}
	for _, k := range []string{"Prev", "XRefStm", "Length", "Filter", "DecodeParms", "W", "Index", "Type"} {
		t.Trailer.Delete(k)
	}
	return t, nil
}

func addCompressed(ctx context.Context, t *Table, streamNum int, stm *raw.StreamObj) {
	names, params := filters.ExtractFilters(nil, stm.Dict)
	body, _, err := filters.Default().Decode(ctx, stm.Data, names, params)
	if err != nil {
		return
	}
	n, _ := stm.Dict.Get("N").(raw.NumberObj)
	hs := scanner.New(body)
	for i := 0; i < int(n.Int()); i++ {
		numTok, err1 := hs.Next()
		offTok, err2 := hs.Next()
		if err1 != nil || err2 != nil || numTok.Type != scanner.TokenNumber || offTok.Type != scanner.TokenNumber {
			return
		}
		num := int(numTok.Int)
		if _, direct := t.Entries[num]; direct {
			continue
		}
		t.Entries[num] = Entry{Type: EntryCompressed, Stream: streamNum, Index: i}
	}
}

// lastTrailer merges every classic trailer dictionary; later keys win.
func lastTrailer(data []byte) *raw.DictObj {
	var merged *raw.DictObj
	s := scanner.New(data)
	idx := 0
	for {
		i := bytes.Index(data[idx:], []byte("trailer"))
		if i < 0 {
			break
		}
		pos := idx + i + len("trailer")
		idx = pos
		s.Seek(int64(pos))
		obj, err := raw.ParseObject(s)
		if err != nil {
			continue
		}
		dict, ok := obj.(*raw.DictObj)
		if !ok {
			continue
		}
		if merged == nil {
			merged = raw.Dict()
		}
		for _, k := range dict.Keys() {
			merged.Set(k, dict.Get(k))
		}
	}
	return merged
}

func findCatalog(s *scanner.Scanner, t *Table) (raw.RefObj, bool) {
	best := -1
	var bestRef raw.RefObj
	for num, e := range t.Entries {
		if e.Type != EntryInUse {
			continue
		}
		_, obj, err := raw.ParseIndirect(s, e.Offset, nil)
		if err != nil {
			continue
		}
		dict, ok := obj.(*raw.DictObj)
		if !ok || nameOf(dict.Get("Type")) != "Catalog" {
			continue
		}
		if num > best {
			best = num
			bestRef = raw.Ref(num, e.Gen)
		}
	}
	return bestRef, best >= 0
}

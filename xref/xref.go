package xref

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/wudi/pdftools/filters"
	"github.com/wudi/pdftools/ir/raw"
	"github.com/wudi/pdftools/scanner"
)

// EntryType distinguishes the three kinds of cross-reference entries.
type EntryType int

const (
	EntryFree EntryType = iota
	EntryInUse
	EntryCompressed
)

// Entry locates one object. Compressed entries live inside object stream
// Stream at position Index.
type Entry struct {
	Type   EntryType
	Offset int64
	Gen    int
	Stream int
	Index  int
}

// Table is the merged view over every cross-reference section of a file.
type Table struct {
	Entries  map[int]Entry
	Trailer  *raw.DictObj
	Repaired bool
}

// Lookup returns the entry for objNum when it is in use.
func (t *Table) Lookup(objNum int) (Entry, bool) {
	e, ok := t.Entries[objNum]
	if !ok || e.Type == EntryFree {
		return Entry{}, false
	}
	return e, true
}

var ErrNoStartXRef = errors.New("xref: startxref not found")

// maxSections bounds /Prev chains so a looping chain cannot hang the parser.
const maxSections = 512

// Resolve reads the cross-reference chain of data. When the chain is
// damaged it falls back to Repair.
func Resolve(ctx context.Context, data []byte) (*Table, error) {
	t, err := resolveChain(ctx, data)
	if err == nil {
		return t, nil
	}
	repaired, rerr := Repair(ctx, data)
	if rerr != nil {
		return nil, fmt.Errorf("xref: %v; repair: %w", err, rerr)
	}
	return repaired, nil
}

func resolveChain(ctx context.Context, data []byte) (*Table, error) {
	start, err := findStartXRef(data)
	if err != nil {
		return nil, err
	}
	t := &Table{Entries: make(map[int]Entry)}
	s := scanner.New(data)
	seen := make(map[int64]bool)
	offset := start
	for i := 0; i < maxSections; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if seen[offset] {
			break
		}
		seen[offset] = true
		trailer, err := readSection(ctx, s, data, offset, t)
		if err != nil {
			return nil, err
		}
		if t.Trailer == nil {
			t.Trailer = trailer
		}
		if stm, ok := trailer.Get("XRefStm").(raw.NumberObj); ok {
			// Hybrid file: the stream fills entries the table left out.
			if _, err := readSection(ctx, s, data, stm.Int(), t); err != nil {
				return nil, err
			}
		}
		prev, ok := trailer.Get("Prev").(raw.NumberObj)
		if !ok {
			break
		}
		offset = prev.Int()
	}
	if t.Trailer == nil || t.Trailer.Get("Root") == nil {
		return nil, errors.New("xref: trailer has no /Root")
	}
	return t, nil
}

func findStartXRef(data []byte) (int64, error) {
	idx := bytes.LastIndex(data, []byte("startxref"))
	if idx < 0 {
		return 0, ErrNoStartXRef
	}
	s := scanner.New(data)
	s.Seek(int64(idx + len("startxref")))
	tok, err := s.Next()
	if err != nil || tok.Type != scanner.TokenNumber || !tok.IsInt {
		return 0, ErrNoStartXRef
	}
	if tok.Int < 0 || tok.Int >= int64(len(data)) {
		return 0, fmt.Errorf("xref: startxref %d out of range", tok.Int)
	}
	return tok.Int, nil
}

// readSection parses the table or stream at offset and adds entries not
// already present (newer sections are read first and win).
func readSection(ctx context.Context, s *scanner.Scanner, data []byte, offset int64, t *Table) (*raw.DictObj, error) {
	if offset < 0 || offset >= int64(len(data)) {
		return nil, fmt.Errorf("xref: section offset %d out of range", offset)
	}
	if err := s.Seek(offset); err != nil {
		return nil, err
	}
	tok, err := s.Peek()
	if err != nil {
		return nil, err
	}
	if tok.Type == scanner.TokenKeyword && tok.Str == "xref" {
		s.Next()
		return readTable(s, t)
	}
	return readStream(ctx, s, offset, t)
}

func readTable(s *scanner.Scanner, t *Table) (*raw.DictObj, error) {
	for {
		tok, err := s.Next()
		if err != nil {
			return nil, fmt.Errorf("xref: truncated table: %w", err)
		}
		if tok.Type == scanner.TokenKeyword && tok.Str == "trailer" {
			obj, err := raw.ParseObject(s)
			if err != nil {
				return nil, fmt.Errorf("xref: trailer: %w", err)
			}
			dict, ok := obj.(*raw.DictObj)
			if !ok {
				return nil, errors.New("xref: trailer is not a dictionary")
			}
			return dict, nil
		}
		if tok.Type != scanner.TokenNumber || !tok.IsInt {
			return nil, fmt.Errorf("xref: unexpected token in table at %d", tok.Pos)
		}
		countTok, err := s.Next()
		if err != nil || countTok.Type != scanner.TokenNumber {
			return nil, errors.New("xref: bad subsection header")
		}
		first, count := int(tok.Int), int(countTok.Int)
		for i := 0; i < count; i++ {
			offTok, err1 := s.Next()
			genTok, err2 := s.Next()
			kind, err3 := s.Next()
			if err1 != nil || err2 != nil || err3 != nil || kind.Type != scanner.TokenKeyword {
				return nil, errors.New("xref: bad table entry")
			}
			num := first + i
			if _, exists := t.Entries[num]; exists {
				continue
			}
			switch kind.Str {
			case "n":
				t.Entries[num] = Entry{Type: EntryInUse, Offset: offTok.Int, Gen: int(genTok.Int)}
			case "f":
				t.Entries[num] = Entry{Type: EntryFree, Gen: int(genTok.Int)}
			default:
				return nil, fmt.Errorf("xref: bad entry type %q", kind.Str)
			}
		}
	}
}

func readStream(ctx context.Context, s *scanner.Scanner, offset int64, t *Table) (*raw.DictObj, error) {
	_, obj, err := raw.ParseIndirect(s, offset, nil)
	if err != nil {
		return nil, err
	}
	stm, ok := obj.(*raw.StreamObj)
	if !ok || nameOf(stm.Dict.Get("Type")) != "XRef" {
		return nil, fmt.Errorf("xref: no cross-reference section at %d", offset)
	}
	names, params := filters.ExtractFilters(nil, stm.Dict)
	body, _, err := filters.Default().Decode(ctx, stm.Data, names, params)
	if err != nil {
		return nil, fmt.Errorf("xref: stream: %w", err)
	}
	w := intArray(stm.Dict.Get("W"))
	if len(w) != 3 {
		return nil, errors.New("xref: stream /W must have three entries")
	}
	size := 0
	if n, ok := stm.Dict.Get("Size").(raw.NumberObj); ok {
		size = int(n.Int())
	}
	index := intArray(stm.Dict.Get("Index"))
	if len(index) == 0 {
		index = []int{0, size}
	}
	rowLen := w[0] + w[1] + w[2]
	if rowLen <= 0 {
		return nil, errors.New("xref: empty stream rows")
	}
	pos := 0
	for i := 0; i+1 < len(index); i += 2 {
		first, count := index[i], index[i+1]
		for j := 0; j < count; j++ {
			if pos+rowLen > len(body) {
				break
			}
			row := body[pos : pos+rowLen]
			pos += rowLen
			typ := int64(1)
			if w[0] > 0 {
				typ = field(row[:w[0]])
			}
			f2 := field(row[w[0] : w[0]+w[1]])
			f3 := field(row[w[0]+w[1]:])
			num := first + j
			if _, exists := t.Entries[num]; exists {
				continue
			}
			switch typ {
			case 0:
				t.Entries[num] = Entry{Type: EntryFree, Gen: int(f3)}
			case 1:
				t.Entries[num] = Entry{Type: EntryInUse, Offset: f2, Gen: int(f3)}
			case 2:
				t.Entries[num] = Entry{Type: EntryCompressed, Stream: int(f2), Index: int(f3)}
			}
		}
	}
	trailer := stm.Dict.Clone()
	for _, k := range []string{"Length", "Filter", "DecodeParms", "W", "Index", "Type"} {
		trailer.Delete(k)
	}
	return trailer, nil
}

func field(b []byte) int64 {
	var v int64
	for _, c := range b {
		v = v<<8 | int64(c)
	}
	return v
}

func intArray(o raw.Object) []int {
	arr, ok := o.(*raw.ArrayObj)
	if !ok {
		return nil
	}
	out := make([]int, 0, len(arr.Items))
	for _, it := range arr.Items {
		n, ok := it.(raw.NumberObj)
		if !ok {
			return nil
		}
		out = append(out, int(n.Int()))
	}
	return out
}

func nameOf(o raw.Object) string {
	n, _ := o.(raw.NameObj)
	return n.Val
}

// HeaderVersion returns the version from the %PDF-x.y header, or "".
func HeaderVersion(data []byte) string {
	limit := len(data)
	if limit > 1024 {
		limit = 1024
	}
	idx := bytes.Index(data[:limit], []byte("%PDF-"))
	if idx < 0 || idx+8 > len(data) {
		return ""
	}
	v := string(data[idx+5 : idx+8])
	if _, err := strconv.ParseFloat(v, 64); err != nil {
		return ""
	}
	return v
}

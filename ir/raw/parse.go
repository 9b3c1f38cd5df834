package raw

import (
	"errors"
	"fmt"
	"io"

	"github.com/wudi/pdftools/scanner"
)

var ErrNotObject = errors.New("raw: no indirect object at offset")

// maxNesting bounds array/dictionary depth.
const maxNesting = 256

// ParseObject reads one direct object from s.
func ParseObject(s *scanner.Scanner) (Object, error) {
	tok, err := s.Next()
	if err != nil {
		return nil, err
	}
	return parseFromToken(s, tok, 0)
}

func parseFromToken(s *scanner.Scanner, tok scanner.Token, depth int) (Object, error) {
	if depth > maxNesting {
		return nil, errors.New("raw: nesting too deep")
	}
	switch tok.Type {
	case scanner.TokenName:
		return NameObj{Val: tok.Str}, nil
	case scanner.TokenNumber:
		if tok.IsInt {
			return NumberInt(tok.Int), nil
		}
		return NumberFloat(tok.Float), nil
	case scanner.TokenString:
		return StringObj{Bytes: tok.Bytes, Hex: tok.Hex}, nil
	case scanner.TokenBoolean:
		return BoolObj{V: tok.Bool}, nil
	case scanner.TokenNull:
		return NullObj{}, nil
	case scanner.TokenRef:
		return Ref(int(tok.Int), tok.Gen), nil
	case scanner.TokenArray:
		arr := &ArrayObj{}
		for {
			next, err := s.Next()
			if err != nil {
				return nil, fmt.Errorf("raw: unterminated array: %w", err)
			}
			if next.Type == scanner.TokenArrayEnd {
				return arr, nil
			}
			if next.Type == scanner.TokenKeyword && isObjectTerminator(next.Str) {
				// Truncated array; hand back what we have.
				s.Seek(next.Pos)
				return arr, nil
			}
			item, err := parseFromToken(s, next, depth+1)
			if err != nil {
				return nil, err
			}
			arr.Items = append(arr.Items, item)
		}
	case scanner.TokenDict:
		dict := Dict()
		for {
			next, err := s.Next()
			if err != nil {
				return nil, fmt.Errorf("raw: unterminated dictionary: %w", err)
			}
			if next.Type == scanner.TokenDictEnd {
				return dict, nil
			}
			if next.Type == scanner.TokenKeyword && isObjectTerminator(next.Str) {
				s.Seek(next.Pos)
				return dict, nil
			}
			if next.Type != scanner.TokenName {
				// Skip junk keys.
				continue
			}
			valTok, err := s.Next()
			if err != nil {
				return nil, fmt.Errorf("raw: unterminated dictionary: %w", err)
			}
			if valTok.Type == scanner.TokenDictEnd {
				dict.Set(next.Str, NullObj{})
				return dict, nil
			}
			val, err := parseFromToken(s, valTok, depth+1)
			if err != nil {
				return nil, err
			}
			if _, isNull := val.(NullObj); !isNull {
				dict.Set(next.Str, val)
			}
		}
	case scanner.TokenKeyword:
		return nil, fmt.Errorf("raw: unexpected keyword %q at %d", tok.Str, tok.Pos)
	}
	return nil, fmt.Errorf("raw: unexpected token at %d", tok.Pos)
}

func isObjectTerminator(kw string) bool {
	return kw == "endobj" || kw == "stream" || kw == "obj"
}

// LengthFunc resolves a stream's /Length entry; -1 means unknown.
type LengthFunc func(Object) int64

// ParseIndirect parses "num gen obj ... endobj" starting at offset.
func ParseIndirect(s *scanner.Scanner, offset int64, length LengthFunc) (ObjectRef, Object, error) {
	if err := s.Seek(offset); err != nil {
		return ObjectRef{}, nil, err
	}
	numTok, err := s.Next()
	if err != nil || numTok.Type != scanner.TokenNumber || !numTok.IsInt {
		return ObjectRef{}, nil, ErrNotObject
	}
	genTok, err := s.Next()
	if err != nil || genTok.Type != scanner.TokenNumber || !genTok.IsInt {
		return ObjectRef{}, nil, ErrNotObject
	}
	kw, err := s.Next()
	if err != nil || kw.Type != scanner.TokenKeyword || kw.Str != "obj" {
		return ObjectRef{}, nil, ErrNotObject
	}
	ref := ObjectRef{Num: int(numTok.Int), Gen: int(genTok.Int)}

	tok, err := s.Next()
	if err != nil {
		return ref, nil, fmt.Errorf("raw: object %v: %w", ref, err)
	}
	if tok.Type == scanner.TokenKeyword && tok.Str == "endobj" {
		return ref, NullObj{}, nil
	}
	obj, err := parseFromToken(s, tok, 0)
	if err != nil {
		return ref, nil, fmt.Errorf("raw: object %v: %w", ref, err)
	}
	dict, isDict := obj.(*DictObj)
	if !isDict {
		return ref, obj, nil
	}
	after, err := s.Peek()
	if err != nil || after.Type != scanner.TokenKeyword || after.Str != "stream" {
		return ref, obj, nil
	}
	s.Next()
	n := int64(-1)
	if length != nil {
		n = length(dict.Get("Length"))
	} else if num, ok := dict.Get("Length").(NumberObj); ok {
		n = num.Int()
	}
	data, err := s.StreamData(n)
	if err != nil {
		return ref, nil, fmt.Errorf("raw: object %v: %w", ref, err)
	}
	return ref, NewStream(dict, data), nil
}

// ParseAll reads consecutive objects until EOF. Used for object stream bodies
// and content-like sequences.
func ParseAll(s *scanner.Scanner) ([]Object, error) {
	var out []Object
	for {
		obj, err := ParseObject(s)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, obj)
	}
}

package contentstream

import (
	"bytes"
	"errors"
	"io"

	"github.com/wudi/pdftools/ir/raw"
	"github.com/wudi/pdftools/scanner"
	"github.com/wudi/pdftools/writer"
)

// Operation is one operator with its operands. Inline images carry their
// parameter dictionary in Operands[0] and their data in InlineData.
type Operation struct {
	Operator   string
	Operands   []raw.Object
	InlineData []byte
}

// maxOperands guards against streams that never reach an operator.
const maxOperands = 4096

// Parse splits a content stream into operations. Malformed trailing operands
// are dropped rather than failing the whole stream.
func Parse(data []byte) ([]Operation, error) {
	s := scanner.New(data)
	var ops []Operation
	var operands []raw.Object
	for {
		tok, err := s.Peek()
		if err == io.EOF {
			return ops, nil
		}
		if err != nil {
			return ops, err
		}
		if tok.Type == scanner.TokenKeyword {
			s.Next()
			if tok.Str == "BI" {
				op, err := parseInlineImage(s)
				if err != nil {
					return ops, err
				}
				ops = append(ops, op)
				operands = nil
				continue
			}
			ops = append(ops, Operation{Operator: tok.Str, Operands: operands})
			operands = nil
			continue
		}
		if tok.Type == scanner.TokenProcStart || tok.Type == scanner.TokenProcEnd || tok.Type == scanner.TokenArrayEnd || tok.Type == scanner.TokenDictEnd {
			s.Next()
			continue
		}
		obj, err := raw.ParseObject(s)
		if err != nil {
			return ops, err
		}
		if len(operands) >= maxOperands {
			return ops, errors.New("contentstream: too many operands")
		}
		operands = append(operands, obj)
	}
}

func parseInlineImage(s *scanner.Scanner) (Operation, error) {
	params := raw.Dict()
	for {
		tok, err := s.Next()
		if err != nil {
			return Operation{}, errors.New("contentstream: unterminated inline image")
		}
		if tok.Type == scanner.TokenKeyword && tok.Str == "ID" {
			break
		}
		if tok.Type != scanner.TokenName {
			continue
		}
		val, err := raw.ParseObject(s)
		if err != nil {
			return Operation{}, err
		}
		params.Set(tok.Str, val)
	}
	data := s.InlineImageData()
	return Operation{Operator: "BI", Operands: []raw.Object{params}, InlineData: data}, nil
}

// Serialize renders ops back to content stream syntax.
func Serialize(ops []Operation) []byte {
	var b bytes.Buffer
	for _, op := range ops {
		if op.Operator == "BI" {
			b.WriteString("BI")
			if len(op.Operands) > 0 {
				if d, ok := op.Operands[0].(*raw.DictObj); ok {
					for _, k := range d.Keys() {
						b.WriteString(" ")
						b.Write(writer.SerializePrimitive(raw.NameLiteral(k)))
						b.WriteString(" ")
						b.Write(writer.SerializePrimitive(d.Get(k)))
					}
				}
			}
			b.WriteString(" ID ")
			b.Write(op.InlineData)
			b.WriteString("\nEI\n")
			continue
		}
		for _, o := range op.Operands {
			b.Write(writer.SerializePrimitive(o))
			b.WriteByte(' ')
		}
		b.WriteString(op.Operator)
		b.WriteByte('\n')
	}
	return b.Bytes()
}

// Op is shorthand for building operations with numeric operands.
func Op(operator string, nums ...float64) Operation {
	operands := make([]raw.Object, len(nums))
	for i, n := range nums {
		operands[i] = raw.Number(n)
	}
	return Operation{Operator: operator, Operands: operands}
}

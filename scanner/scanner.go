package scanner

import (
	"bytes"
	"errors"
	"io"
	"strconv"
)

type TokenType int

const (
	TokenDict     TokenType = iota // '<<'
	TokenDictEnd                   // '>>'
	TokenArray                     // '['
	TokenArrayEnd                  // ']'
	TokenName                      // '/Name'
	TokenString                    // literal or hex string
	TokenNumber                    // numeric value
	TokenBoolean                   // true/false
	TokenNull                      // null
	TokenRef                       // indirect ref '5 0 R'
	TokenKeyword                   // obj, endobj, stream, content operators, ...
	TokenProcStart                 // '{' (PostScript calculator functions)
	TokenProcEnd                   // '}'
)

// Token is a lexical unit. Only the fields relevant to Type are set.
type Token struct {
	Type  TokenType
	Pos   int64
	Str   string // name value or keyword text
	Bytes []byte // string payload
	Hex   bool
	Int   int64 // integer value, or object number for refs
	Float float64
	IsInt bool
	Bool  bool
	Gen   int // generation for refs
}

// Number returns the numeric value of a number token.
func (t Token) Number() float64 {
	if t.IsInt {
		return float64(t.Int)
	}
	return t.Float
}

var (
	ErrUnterminatedString = errors.New("scanner: unterminated string")
	ErrUnterminatedStream = errors.New("scanner: stream without endstream")
)

// Scanner tokenizes an in-memory PDF byte slice.
type Scanner struct {
	data []byte
	pos  int64
}

func New(data []byte) *Scanner { return &Scanner{data: data} }

func (s *Scanner) Position() int64 { return s.pos }
func (s *Scanner) Len() int64      { return int64(len(s.data)) }

func (s *Scanner) Seek(offset int64) error {
	if offset < 0 || offset > int64(len(s.data)) {
		return errors.New("scanner: seek out of range")
	}
	s.pos = offset
	return nil
}

// Next returns the next token or io.EOF.
func (s *Scanner) Next() (Token, error) {
	s.skipWSAndComments()
	if s.pos >= int64(len(s.data)) {
		return Token{}, io.EOF
	}
	start := s.pos
	c := s.data[s.pos]
	switch {
	case c == '<':
		if s.peek(1) == '<' {
			s.pos += 2
			return Token{Type: TokenDict, Pos: start}, nil
		}
		return s.scanHexString()
	case c == '>':
		if s.peek(1) == '>' {
			s.pos += 2
			return Token{Type: TokenDictEnd, Pos: start}, nil
		}
		s.pos++
		return s.Next()
	case c == '[':
		s.pos++
		return Token{Type: TokenArray, Pos: start}, nil
	case c == ']':
		s.pos++
		return Token{Type: TokenArrayEnd, Pos: start}, nil
	case c == '{':
		s.pos++
		return Token{Type: TokenProcStart, Pos: start}, nil
	case c == '}':
		s.pos++
		return Token{Type: TokenProcEnd, Pos: start}, nil
	case c == '(':
		return s.scanLiteralString()
	case c == '/':
		return s.scanName()
	case isDigitStart(c):
		return s.scanNumberOrRef()
	case c == ')':
		// Stray delimiter; skip it rather than failing the whole parse.
		s.pos++
		return s.Next()
	}
	return s.scanKeyword()
}

// Peek returns the next token without consuming it.
func (s *Scanner) Peek() (Token, error) {
	save := s.pos
	tok, err := s.Next()
	s.pos = save
	return tok, err
}

func (s *Scanner) peek(n int64) byte {
	if s.pos+n >= int64(len(s.data)) {
		return 0
	}
	return s.data[s.pos+n]
}

func (s *Scanner) skipWSAndComments() {
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		if isWhitespace(c) {
			s.pos++
			continue
		}
		if c == '%' {
			for s.pos < int64(len(s.data)) && !isEOL(s.data[s.pos]) {
				s.pos++
			}
			continue
		}
		return
	}
}

func (s *Scanner) scanName() (Token, error) {
	start := s.pos
	s.pos++ // '/'
	var buf bytes.Buffer
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		if isWhitespace(c) || isDelimiter(c) {
			break
		}
		if c == '#' && s.pos+2 < int64(len(s.data)) && isHex(s.data[s.pos+1]) && isHex(s.data[s.pos+2]) {
			buf.WriteByte(fromHex(s.data[s.pos+1])<<4 | fromHex(s.data[s.pos+2]))
			s.pos += 3
			continue
		}
		buf.WriteByte(c)
		s.pos++
	}
	return Token{Type: TokenName, Pos: start, Str: buf.String()}, nil
}

func (s *Scanner) scanLiteralString() (Token, error) {
	start := s.pos
	s.pos++ // '('
	depth := 1
	var buf bytes.Buffer
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		s.pos++
		switch c {
		case '\\':
			if s.pos >= int64(len(s.data)) {
				return Token{}, ErrUnterminatedString
			}
			e := s.data[s.pos]
			s.pos++
			switch {
			case e >= '0' && e <= '7':
				v := int(e - '0')
				for i := 0; i < 2 && s.pos < int64(len(s.data)); i++ {
					d := s.data[s.pos]
					if d < '0' || d > '7' {
						break
					}
					v = v*8 + int(d-'0')
					s.pos++
				}
				buf.WriteByte(byte(v))
			case e == '\r':
				if s.pos < int64(len(s.data)) && s.data[s.pos] == '\n' {
					s.pos++
				}
			case e == '\n':
			default:
				buf.WriteByte(translateEscape(e))
			}
		case '(':
			depth++
			buf.WriteByte(c)
		case ')':
			depth--
			if depth == 0 {
				return Token{Type: TokenString, Pos: start, Bytes: buf.Bytes()}, nil
			}
			buf.WriteByte(c)
		case '\r':
			if s.pos < int64(len(s.data)) && s.data[s.pos] == '\n' {
				s.pos++
			}
			buf.WriteByte('\n')
		default:
			buf.WriteByte(c)
		}
	}
	return Token{}, ErrUnterminatedString
}

func (s *Scanner) scanHexString() (Token, error) {
	start := s.pos
	s.pos++ // '<'
	var buf bytes.Buffer
	var hi byte
	half := false
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		s.pos++
		if c == '>' {
			if half {
				buf.WriteByte(hi << 4)
			}
			return Token{Type: TokenString, Pos: start, Bytes: buf.Bytes(), Hex: true}, nil
		}
		if !isHex(c) {
			continue
		}
		if half {
			buf.WriteByte(hi<<4 | fromHex(c))
			half = false
		} else {
			hi = fromHex(c)
			half = true
		}
	}
	return Token{}, ErrUnterminatedString
}

func (s *Scanner) scanKeyword() (Token, error) {
	start := s.pos
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		if isWhitespace(c) || isDelimiter(c) {
			break
		}
		s.pos++
	}
	if s.pos == start {
		// Lone delimiter byte that no other rule consumed.
		s.pos++
	}
	word := string(s.data[start:s.pos])
	switch word {
	case "true":
		return Token{Type: TokenBoolean, Pos: start, Bool: true}, nil
	case "false":
		return Token{Type: TokenBoolean, Pos: start}, nil
	case "null":
		return Token{Type: TokenNull, Pos: start}, nil
	}
	return Token{Type: TokenKeyword, Pos: start, Str: word}, nil
}

func (s *Scanner) scanNumberOrRef() (Token, error) {
	start := s.pos
	tok := s.scanNumber()
	if !tok.IsInt || tok.Int < 0 {
		return tok, nil
	}
	// Look ahead for "gen R" without committing.
	save := s.pos
	s.skipWSAndComments()
	if s.pos < int64(len(s.data)) && s.data[s.pos] >= '0' && s.data[s.pos] <= '9' {
		gen := s.scanNumber()
		if gen.IsInt {
			s.skipWSAndComments()
			if s.pos < int64(len(s.data)) && s.data[s.pos] == 'R' &&
				(s.pos+1 >= int64(len(s.data)) || isWhitespace(s.data[s.pos+1]) || isDelimiter(s.data[s.pos+1])) {
				s.pos++
				return Token{Type: TokenRef, Pos: start, Int: tok.Int, Gen: int(gen.Int)}, nil
			}
		}
	}
	s.pos = save
	return tok, nil
}

func (s *Scanner) scanNumber() Token {
	start := s.pos
	for s.pos < int64(len(s.data)) && isDigitStart(s.data[s.pos]) {
		s.pos++
	}
	text := string(s.data[start:s.pos])
	// Tolerate producer quirks such as "--5" or "1.2.3".
	for len(text) > 1 && (text[0] == '+' || text[0] == '-') && (text[1] == '+' || text[1] == '-') {
		text = text[1:]
	}
	if i, err := strconv.ParseInt(text, 10, 64); err == nil {
		return Token{Type: TokenNumber, Pos: start, Int: i, IsInt: true}
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		if idx := bytes.IndexByte([]byte(text[1:]), '.'); idx >= 0 {
			f, _ = strconv.ParseFloat(text[:idx+1], 64)
		}
	}
	return Token{Type: TokenNumber, Pos: start, Float: f}
}

// StreamData reads stream bytes after the "stream" keyword has been consumed.
// length is the /Length hint; a negative or wrong hint falls back to
// searching for "endstream".
func (s *Scanner) StreamData(length int64) ([]byte, error) {
	// Keyword is followed by CRLF or LF (tolerate a bare CR).
	if s.pos < int64(len(s.data)) && s.data[s.pos] == '\r' {
		s.pos++
	}
	if s.pos < int64(len(s.data)) && s.data[s.pos] == '\n' {
		s.pos++
	}
	begin := s.pos
	if length >= 0 && begin+length <= int64(len(s.data)) {
		end := begin + length
		p := end
		for p < int64(len(s.data)) && isWhitespace(s.data[p]) {
			p++
		}
		if bytes.HasPrefix(s.data[p:], []byte("endstream")) {
			s.pos = p + int64(len("endstream"))
			return s.data[begin:end], nil
		}
	}
	idx := bytes.Index(s.data[begin:], []byte("endstream"))
	if idx < 0 {
		return nil, ErrUnterminatedStream
	}
	end := begin + int64(idx)
	s.pos = end + int64(len("endstream"))
	// Drop the EOL that precedes endstream.
	if end > begin && s.data[end-1] == '\n' {
		end--
	}
	if end > begin && s.data[end-1] == '\r' {
		end--
	}
	return s.data[begin:end], nil
}

// InlineImageData reads the payload following an ID operator up to EI.
func (s *Scanner) InlineImageData() []byte {
	if s.pos < int64(len(s.data)) && isWhitespace(s.data[s.pos]) {
		s.pos++
	}
	begin := s.pos
	for p := begin; p+1 < int64(len(s.data)); p++ {
		if s.data[p] == 'E' && s.data[p+1] == 'I' &&
			(p == begin || isWhitespace(s.data[p-1])) &&
			(p+2 >= int64(len(s.data)) || isWhitespace(s.data[p+2]) || isDelimiter(s.data[p+2])) {
			end := p
			if end > begin && isWhitespace(s.data[end-1]) {
				end--
			}
			s.pos = p + 2
			return s.data[begin:end]
		}
	}
	s.pos = int64(len(s.data))
	return s.data[begin:]
}

func isDigitStart(c byte) bool { return c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9') }

func isWhitespace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n' || c == '\f' || c == 0
}

func isEOL(c byte) bool { return c == '\r' || c == '\n' }

func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func fromHex(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	}
	return 0
}

func translateEscape(c byte) byte {
	switch c {
	case 'n':
		return '\n'
	case 'r':
		return '\r'
	case 't':
		return '\t'
	case 'b':
		return '\b'
	case 'f':
		return '\f'
	}
	return c
}

// IsWhitespace reports whether c is PDF whitespace.
func IsWhitespace(c byte) bool { return isWhitespace(c) }

// IsDelimiter reports whether c is a PDF delimiter.
func IsDelimiter(c byte) bool { return isDelimiter(c) }

package scanner

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, data string) []Token {
	t.Helper()
	s := New([]byte(data))
	var out []Token
	for {
		tok, err := s.Next()
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		out = append(out, tok)
	}
}

func TestScanner_BasicTokens(t *testing.T) {
	toks := collect(t, "%PDF-1.7\n1 0 obj\n<< /Name /Value /Nums [1 2 3] /Flag true /Null null >>\nendobj")

	types := make([]TokenType, len(toks))
	for i, tok := range toks {
		types[i] = tok.Type
	}
	assert.Equal(t, []TokenType{
		TokenNumber, TokenNumber, TokenKeyword,
		TokenDict,
		TokenName, TokenName,
		TokenName, TokenArray, TokenNumber, TokenNumber, TokenNumber, TokenArrayEnd,
		TokenName, TokenBoolean,
		TokenName, TokenNull,
		TokenDictEnd,
		TokenKeyword,
	}, types)
	assert.Equal(t, "obj", toks[2].Str)
	assert.Equal(t, "Value", toks[5].Str)
	assert.True(t, toks[13].Bool)
	assert.Equal(t, "endobj", toks[17].Str)
}

func TestScanner_References(t *testing.T) {
	toks := collect(t, "[12 0 R 3 4] 5 0 obj")
	require.Len(t, toks, 8)
	assert.Equal(t, TokenRef, toks[1].Type)
	assert.Equal(t, int64(12), toks[1].Int)
	assert.Equal(t, 0, toks[1].Gen)
	assert.Equal(t, TokenNumber, toks[2].Type)
	assert.Equal(t, TokenNumber, toks[3].Type)
	assert.Equal(t, TokenNumber, toks[5].Type)
	assert.Equal(t, TokenNumber, toks[6].Type)
	assert.Equal(t, "obj", toks[7].Str)
}

func TestScanner_Numbers(t *testing.T) {
	toks := collect(t, "-3 +7 .5 -.25 4. --2")
	require.Len(t, toks, 6)
	assert.Equal(t, int64(-3), toks[0].Int)
	assert.Equal(t, int64(7), toks[1].Int)
	assert.InDelta(t, 0.5, toks[2].Number(), 1e-9)
	assert.InDelta(t, -0.25, toks[3].Number(), 1e-9)
	assert.InDelta(t, 4.0, toks[4].Number(), 1e-9)
	assert.Equal(t, int64(-2), toks[5].Int)
}

func TestScanner_LiteralStringEscapes(t *testing.T) {
	toks := collect(t, `(a\(b\)c \\ \101\n (nested) line\
join)`)
	require.Len(t, toks, 1)
	assert.Equal(t, "a(b)c \\ A\n (nested) linejoin", string(toks[0].Bytes))
	assert.False(t, toks[0].Hex)
}

func TestScanner_HexStringOddLength(t *testing.T) {
	toks := collect(t, "<48 65 6C6C 6F7>")
	require.Len(t, toks, 1)
	assert.Equal(t, []byte("Hellop"), toks[0].Bytes)
	assert.True(t, toks[0].Hex)
}

func TestScanner_NameEscapes(t *testing.T) {
	toks := collect(t, "/A#20B /C#2F")
	require.Len(t, toks, 2)
	assert.Equal(t, "A B", toks[0].Str)
	assert.Equal(t, "C/", toks[1].Str)
}

func TestScanner_StreamData(t *testing.T) {
	s := New([]byte("stream\r\nabcdef\nendstream endobj"))
	tok, err := s.Next()
	require.NoError(t, err)
	require.Equal(t, "stream", tok.Str)
	data, err := s.StreamData(6)
	require.NoError(t, err)
	assert.Equal(t, "abcdef", string(data))
	tok, err = s.Next()
	require.NoError(t, err)
	assert.Equal(t, "endobj", tok.Str)
}

func TestScanner_StreamDataWrongLength(t *testing.T) {
	s := New([]byte("stream\nabcdef\nendstream"))
	_, err := s.Next()
	require.NoError(t, err)
	data, err := s.StreamData(100)
	require.NoError(t, err)
	assert.Equal(t, "abcdef", string(data))
}

func TestScanner_InlineImage(t *testing.T) {
	s := New([]byte("ID \x00\x01EIx\x02 EI Q"))
	tok, err := s.Next()
	require.NoError(t, err)
	require.Equal(t, "ID", tok.Str)
	assert.Equal(t, []byte("\x00\x01EIx\x02"), s.InlineImageData())
	tok, err = s.Next()
	require.NoError(t, err)
	assert.Equal(t, "Q", tok.Str)
}

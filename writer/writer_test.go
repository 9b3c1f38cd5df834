package writer

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/pdftools/ir/raw"
	"github.com/wudi/pdftools/parser"
	"github.com/wudi/pdftools/security"
)

func sampleDoc() *raw.Document {
	doc := raw.NewDocument()
	content := doc.Add(raw.NewStream(raw.Dict(), bytes.Repeat([]byte("0 0 m 10 10 l S\n"), 50)))
	page := raw.Dict()
	page.Set("Type", raw.NameLiteral("Page"))
	page.Set("MediaBox", raw.Rect(0, 0, 612, 792))
	page.Set("Contents", content)
	pageRef := doc.Add(page)
	pages := raw.Dict()
	pages.Set("Type", raw.NameLiteral("Pages"))
	pages.Set("Kids", raw.NewArray(pageRef))
	pages.Set("Count", raw.NumberInt(1))
	pagesRef := doc.Add(pages)
	page.Set("Parent", pagesRef)
	cat := raw.Dict()
	cat.Set("Type", raw.NameLiteral("Catalog"))
	cat.Set("Pages", pagesRef)
	doc.Trailer.Set("Root", doc.Add(cat))
	info := raw.Dict()
	info.Set("Title", raw.Str([]byte("Quarterly (draft)")))
	doc.Trailer.Set("Info", doc.Add(info))
	// Unreachable.
	doc.Add(raw.Str([]byte("orphan")))
	return doc
}

type countingInterceptor struct{ n int }

func (c *countingInterceptor) AfterWrite(_ context.Context, _ raw.ObjectRef, _ int64) error {
	c.n++
	return nil
}

func TestWriteRoundTrip(t *testing.T) {
	ic := &countingInterceptor{}
	w := (&WriterBuilder{}).WithInterceptor(ic).Build()
	var buf bytes.Buffer
	require.NoError(t, w.Write(context.Background(), sampleDoc(), &buf, Config{Compression: 6}))
	assert.Equal(t, 5, ic.n, "orphan object must be dropped")

	doc, err := parser.NewDocumentParser(parser.Config{}).Parse(context.Background(), buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "1.7", doc.Version)
	root := doc.Root()
	require.NotNil(t, root)
	pages := doc.DictOf(root.Get("Pages"))
	require.NotNil(t, pages)
	page := doc.DictOf(doc.ArrayOf(pages.Get("Kids")).Get(0))
	stm := doc.StreamOf(page.Get("Contents"))
	require.NotNil(t, stm)
	assert.Equal(t, "FlateDecode", doc.NameOf(stm.Dict.Get("Filter")))
	title, ok := doc.StringOf(doc.DictOf(doc.Trailer.Get("Info")).Get("Title"))
	require.True(t, ok)
	assert.Equal(t, "Quarterly (draft)", string(title))
}

func TestWriteEncryptedRoundTrip(t *testing.T) {
	enc, err := security.NewAES256Encryption("s3cret", "", security.Permissions{ExtractAccessible: true})
	require.NoError(t, err)
	var buf bytes.Buffer
	w := (&WriterBuilder{}).Build()
	require.NoError(t, w.Write(context.Background(), sampleDoc(), &buf, Config{Encryption: enc}))
	assert.NotContains(t, buf.String(), "Quarterly")

	_, err = parser.NewDocumentParser(parser.Config{}).Parse(context.Background(), buf.Bytes())
	assert.ErrorIs(t, err, parser.ErrPasswordRequired)

	_, err = parser.NewDocumentParser(parser.Config{Password: "nope"}).Parse(context.Background(), buf.Bytes())
	assert.ErrorIs(t, err, security.ErrInvalidPassword)

	doc, err := parser.NewDocumentParser(parser.Config{Password: "s3cret"}).Parse(context.Background(), buf.Bytes())
	require.NoError(t, err)
	assert.True(t, doc.Encrypted)
	title, _ := doc.StringOf(doc.DictOf(doc.Trailer.Get("Info")).Get("Title"))
	assert.Equal(t, "Quarterly (draft)", string(title))
	assert.Nil(t, doc.Trailer.Get("Encrypt"))
}

func TestWriteRejectsMissingCatalog(t *testing.T) {
	w := (&WriterBuilder{}).Build()
	err := w.Write(context.Background(), raw.NewDocument(), &bytes.Buffer{}, Config{})
	assert.Error(t, err)
}

func TestSerializePrimitive(t *testing.T) {
	cases := []struct {
		in   raw.Object
		want string
	}{
		{raw.NameLiteral("A B#"), "/A#20B#23"},
		{raw.NumberFloat(0.50000), "0.5"},
		{raw.NumberFloat(-0.00001), "0"},
		{raw.NumberInt(-12), "-12"},
		{raw.Str([]byte("a(b)\\")), `(a\(b\)\\)`},
		{raw.HexStr([]byte{0xAB, 0x01}), "<AB01>"},
		{raw.NewArray(raw.Bool(true), raw.NullObj{}, raw.Ref(3, 0)), "[true null 3 0 R]"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, string(SerializePrimitive(c.in)))
	}
}

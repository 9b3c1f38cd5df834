package xref

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/pdftools/filters"
	"github.com/wudi/pdftools/ir/raw"
)

var simpleObjects = []string{
	"<< /Type /Catalog /Pages 2 0 R >>",
	"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
	"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 200 200] >>",
}

// buildSimplePDF writes a classic-table file and returns it with object offsets.
func buildSimplePDF(xrefShift int) ([]byte, map[int]int64) {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make(map[int]int64)
	for i, body := range simpleObjects {
		offsets[i+1] = int64(buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}
	xrefPos := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(simpleObjects)+1)
	for i := range simpleObjects {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[i+1])
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(simpleObjects)+1, xrefPos+xrefShift)
	return buf.Bytes(), offsets
}

func TestResolveParsesXRefTable(t *testing.T) {
	data, offsets := buildSimplePDF(0)
	table, err := Resolve(context.Background(), data)
	require.NoError(t, err)

	assert.False(t, table.Repaired)
	for num, off := range offsets {
		e, ok := table.Lookup(num)
		require.True(t, ok, "object %d", num)
		assert.Equal(t, off, e.Offset)
	}
	_, ok := table.Lookup(0)
	assert.False(t, ok)
	assert.Equal(t, raw.Ref(1, 0), table.Trailer.Get("Root"))
}

func TestResolveRepairsBrokenStartXRef(t *testing.T) {
	data, offsets := buildSimplePDF(7)
	table, err := Resolve(context.Background(), data)
	require.NoError(t, err)

	assert.True(t, table.Repaired)
	for num, off := range offsets {
		e, ok := table.Lookup(num)
		require.True(t, ok)
		assert.Equal(t, off, e.Offset)
	}
	assert.Equal(t, raw.Ref(1, 0), table.Trailer.Get("Root"))
}

func TestRepairFindsCatalogWithoutTrailer(t *testing.T) {
	data, _ := buildSimplePDF(0)
	cut := bytes.Index(data, []byte("xref"))
	table, err := Repair(context.Background(), data[:cut])
	require.NoError(t, err)
	assert.Equal(t, raw.Ref(1, 0), table.Trailer.Get("Root"))
}

func TestResolveFollowsPrevChain(t *testing.T) {
	data, _ := buildSimplePDF(0)
	firstXRef := bytes.Index(data, []byte("xref\n"))

	var buf bytes.Buffer
	buf.Write(data)
	updated := int64(buf.Len())
	buf.WriteString("3 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 300 300] >>\nendobj\n")
	xrefPos := buf.Len()
	fmt.Fprintf(&buf, "xref\n3 1\n%010d 00000 n \ntrailer\n<< /Size 4 /Root 1 0 R /Prev %d >>\nstartxref\n%d\n%%%%EOF\n", updated, firstXRef, xrefPos)

	table, err := Resolve(context.Background(), buf.Bytes())
	require.NoError(t, err)
	e, ok := table.Lookup(3)
	require.True(t, ok)
	assert.Equal(t, updated, e.Offset)
	_, ok = table.Lookup(1)
	assert.True(t, ok)
}

func TestResolveParsesXRefStream(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.5\n")
	offsets := make([]int64, 4)
	for i, body := range simpleObjects {
		offsets[i+1] = int64(buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}
	xrefPos := int64(buf.Len())

	var rows []byte
	rows = append(rows, 0, 0, 0, 0xff)
	for i := 1; i <= 3; i++ {
		rows = append(rows, 1, byte(offsets[i]>>8), byte(offsets[i]), 0)
	}
	rows = append(rows, 1, byte(xrefPos>>8), byte(xrefPos), 0)
	body, err := filters.FlateEncode(rows, 6)
	require.NoError(t, err)

	fmt.Fprintf(&buf, "4 0 obj\n<< /Type /XRef /Size 5 /W [1 2 1] /Root 1 0 R /Filter /FlateDecode /Length %d >>\nstream\n", len(body))
	buf.Write(body)
	fmt.Fprintf(&buf, "\nendstream\nendobj\nstartxref\n%d\n%%%%EOF\n", xrefPos)

	table, err := Resolve(context.Background(), buf.Bytes())
	require.NoError(t, err)
	assert.False(t, table.Repaired)
	for i := 1; i <= 3; i++ {
		e, ok := table.Lookup(i)
		require.True(t, ok)
		assert.Equal(t, offsets[i], e.Offset)
	}
	assert.Equal(t, raw.Ref(1, 0), table.Trailer.Get("Root"))
	assert.Nil(t, table.Trailer.Get("W"))
}

func TestHeaderVersion(t *testing.T) {
	assert.Equal(t, "1.4", HeaderVersion([]byte("%PDF-1.4\n")))
	assert.Equal(t, "1.7", HeaderVersion([]byte("junk%PDF-1.7\n")))
	assert.Equal(t, "", HeaderVersion([]byte("nope")))
}

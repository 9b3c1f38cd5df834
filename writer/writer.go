package writer

import (
	"context"
	"io"

	"github.com/wudi/pdftools/ir/raw"
	"github.com/wudi/pdftools/security"
)

type PDFVersion string

const (
	PDF14 PDFVersion = "1.4"
	PDF17 PDFVersion = "1.7"
)

// Config controls serialization.
type Config struct {
	// Version overrides the document's header version when set.
	Version PDFVersion
	// Compression is the zlib level for unfiltered streams; 0 leaves them raw.
	Compression int
	// Deterministic derives the file ID from the content instead of randomness.
	Deterministic bool
	// Encryption encrypts every string and stream with the given handler.
	Encryption *security.Encryption
}

type Writer interface {
	Write(ctx context.Context, doc *raw.Document, out io.Writer, cfg Config) error
	SerializeObject(ref raw.ObjectRef, obj raw.Object) ([]byte, error)
}

// Interceptor observes each object as it is written.
type Interceptor interface {
	AfterWrite(ctx context.Context, ref raw.ObjectRef, bytesWritten int64) error
}

type WriterBuilder struct{ interceptors []Interceptor }

func (b *WriterBuilder) WithInterceptor(i Interceptor) *WriterBuilder {
	b.interceptors = append(b.interceptors, i)
	return b
}

func (b *WriterBuilder) Build() Writer { return &impl{interceptors: b.interceptors} }

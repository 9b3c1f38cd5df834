package parser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/wudi/pdftools/filters"
	"github.com/wudi/pdftools/ir/raw"
	"github.com/wudi/pdftools/security"
	"github.com/wudi/pdftools/xref"
)

var (
	// ErrPasswordRequired is returned for encrypted files that do not open
	// with the empty password.
	ErrPasswordRequired = errors.New("parser: document requires a password")
	ErrNotPDF           = errors.New("parser: not a PDF file")
)

// Config controls high-level PDF parsing (xref resolution + object loading).
type Config struct {
	Password string
	Limits   filters.Limits
	Cache    Cache
}

// DocumentParser builds a raw.Document using xref tables/streams and the object loader.
type DocumentParser struct {
	cfg Config
}

func NewDocumentParser(cfg Config) *DocumentParser {
	if cfg.Limits.MaxDecompressedSize == 0 {
		cfg.Limits = filters.DefaultLimits
	}
	return &DocumentParser{cfg: cfg}
}

// SetPassword updates the password for decryption when parsing encrypted PDFs.
func (p *DocumentParser) SetPassword(pwd string) {
	p.cfg.Password = pwd
}

// Open reads and parses the file at path.
func Open(ctx context.Context, path, password string) (*raw.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return NewDocumentParser(Config{Password: password}).Parse(ctx, data)
}

func (p *DocumentParser) Parse(ctx context.Context, data []byte) (*raw.Document, error) {
	version := xref.HeaderVersion(data)
	if version == "" {
		return nil, ErrNotPDF
	}
	table, err := xref.Resolve(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("resolve xref: %w", err)
	}
	doc, err := p.load(ctx, data, table, version)
	if err == nil && doc.Root() == nil && !table.Repaired {
		// The table looked fine but pointed at garbage.
		repaired, rerr := xref.Repair(ctx, data)
		if rerr == nil {
			doc, err = p.load(ctx, data, repaired, version)
		}
	}
	if err != nil {
		return nil, err
	}
	if doc.Root() == nil {
		return nil, errors.New("parser: document catalog missing")
	}
	return doc, nil
}

func (p *DocumentParser) load(ctx context.Context, data []byte, table *xref.Table, version string) (*raw.Document, error) {
	sec, encNum, err := p.selectSecurity(ctx, data, table)
	if err != nil {
		return nil, err
	}
	b := (&ObjectLoaderBuilder{}).
		WithData(data).
		WithXRef(table).
		WithSecurity(sec).
		WithLimits(p.cfg.Limits).
		WithCache(p.cfg.Cache)
	if encNum > 0 {
		b.WithoutDecryption(encNum)
	}
	loader, err := b.Build()
	if err != nil {
		return nil, err
	}

	doc := raw.NewDocument()
	doc.Version = version
	doc.Trailer = table.Trailer.Clone()
	doc.Encrypted = sec.IsEncrypted()

	nums := make([]int, 0, len(table.Entries))
	for num := range table.Entries {
		nums = append(nums, num)
	}
	sort.Ints(nums)
	for _, num := range nums {
		if num == 0 || num == encNum {
			continue
		}
		e, ok := table.Lookup(num)
		if !ok {
			continue
		}
		obj, err := loader.Load(ctx, raw.ObjectRef{Num: num, Gen: e.Gen})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// Damaged objects are dropped; references to them resolve to null.
			continue
		}
		if stm, ok := obj.(*raw.StreamObj); ok {
			switch nameOf(stm.Dict.Get("Type")) {
			case "XRef", "ObjStm":
				continue
			}
		}
		doc.Objects[raw.ObjectRef{Num: num, Gen: e.Gen}] = obj
	}
	doc.Trailer.Delete("Encrypt")
	return doc, nil
}

// selectSecurity loads /Encrypt without decryption and authenticates.
func (p *DocumentParser) selectSecurity(ctx context.Context, data []byte, table *xref.Table) (security.Handler, int, error) {
	encObj := table.Trailer.Get("Encrypt")
	if encObj == nil {
		h, err := (&security.HandlerBuilder{}).Build()
		return h, 0, err
	}
	var encDict *raw.DictObj
	encNum := 0
	switch v := encObj.(type) {
	case *raw.DictObj:
		encDict = v
	case raw.RefObj:
		encNum = v.R.Num
		plain, err := (&ObjectLoaderBuilder{}).WithData(data).WithXRef(table).Build()
		if err != nil {
			return nil, 0, err
		}
		obj, err := plain.Load(ctx, v.R)
		if err != nil {
			return nil, 0, fmt.Errorf("load encrypt dictionary: %w", err)
		}
		encDict, _ = obj.(*raw.DictObj)
	}
	if encDict == nil {
		return nil, 0, errors.New("parser: /Encrypt is not a dictionary")
	}
	handler, err := (&security.HandlerBuilder{}).
		WithEncryptDict(encDict).
		WithFileID(fileIDFromTrailer(table.Trailer)).
		Build()
	if err != nil {
		return nil, 0, err
	}
	if err := handler.Authenticate(p.cfg.Password); err != nil {
		if p.cfg.Password == "" && errors.Is(err, security.ErrInvalidPassword) {
			return nil, 0, ErrPasswordRequired
		}
		return nil, 0, err
	}
	return handler, encNum, nil
}

func fileIDFromTrailer(trailer *raw.DictObj) []byte {
	arr, ok := trailer.Get("ID").(*raw.ArrayObj)
	if !ok || arr.Len() == 0 {
		return nil
	}
	s, _ := arr.Get(0).(raw.StringObj)
	return s.Bytes
}

func nameOf(o raw.Object) string {
	n, _ := o.(raw.NameObj)
	return n.Val
}

package parser

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/wudi/pdftools/filters"
	"github.com/wudi/pdftools/ir/raw"
	"github.com/wudi/pdftools/scanner"
	"github.com/wudi/pdftools/security"
	"github.com/wudi/pdftools/xref"
)

// Cache memoizes loaded objects.
type Cache interface {
	Get(ref raw.ObjectRef) (raw.Object, bool)
	Put(ref raw.ObjectRef, obj raw.Object)
}

// ObjectLoader materializes single objects from the cross-reference table.
type ObjectLoader interface {
	Load(ctx context.Context, ref raw.ObjectRef) (raw.Object, error)
}

type ObjectLoaderBuilder struct {
	data     []byte
	table    *xref.Table
	security security.Handler
	limits   filters.Limits
	cache    Cache
	skip     map[int]bool
}

func (b *ObjectLoaderBuilder) WithData(data []byte) *ObjectLoaderBuilder {
	b.data = data
	return b
}

func (b *ObjectLoaderBuilder) WithXRef(t *xref.Table) *ObjectLoaderBuilder {
	b.table = t
	return b
}

func (b *ObjectLoaderBuilder) WithSecurity(h security.Handler) *ObjectLoaderBuilder {
	b.security = h
	return b
}

func (b *ObjectLoaderBuilder) WithLimits(l filters.Limits) *ObjectLoaderBuilder {
	b.limits = l
	return b
}

func (b *ObjectLoaderBuilder) WithCache(c Cache) *ObjectLoaderBuilder {
	b.cache = c
	return b
}

// WithoutDecryption lists object numbers stored in the clear (the /Encrypt
// dictionary itself).
func (b *ObjectLoaderBuilder) WithoutDecryption(nums ...int) *ObjectLoaderBuilder {
	if b.skip == nil {
		b.skip = make(map[int]bool)
	}
	for _, n := range nums {
		b.skip[n] = true
	}
	return b
}

func (b *ObjectLoaderBuilder) Build() (ObjectLoader, error) {
	if b.data == nil || b.table == nil {
		return nil, errors.New("parser: data and xref table required")
	}
	sec := b.security
	if sec == nil {
		sec, _ = (&security.HandlerBuilder{}).Build()
	}
	limits := b.limits
	if limits.MaxDecompressedSize == 0 {
		limits = filters.DefaultLimits
	}
	return &objectLoader{
		data:     b.data,
		table:    b.table,
		security: sec,
		pipeline: filters.WithLimits(limits),
		cache:    b.cache,
		skip:     b.skip,
		objstm:   make(map[int][]raw.Object),
		loading:  make(map[int]bool),
	}, nil
}

type objectLoader struct {
	data     []byte
	table    *xref.Table
	security security.Handler
	pipeline *filters.Pipeline
	cache    Cache
	skip     map[int]bool

	mu      sync.Mutex
	objstm  map[int][]raw.Object
	loading map[int]bool
}

func (o *objectLoader) Load(ctx context.Context, ref raw.ObjectRef) (raw.Object, error) {
	if o.cache != nil {
		if obj, ok := o.cache.Get(ref); ok {
			return obj, nil
		}
	}
	o.mu.Lock()
	obj, err := o.loadLocked(ctx, ref.Num)
	o.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if o.cache != nil {
		o.cache.Put(ref, obj)
	}
	return obj, nil
}

func (o *objectLoader) loadLocked(ctx context.Context, num int) (raw.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e, ok := o.table.Lookup(num)
	if !ok {
		return nil, fmt.Errorf("parser: object %d not in xref", num)
	}
	if o.loading[num] {
		return nil, fmt.Errorf("parser: object %d refers to itself", num)
	}
	o.loading[num] = true
	defer delete(o.loading, num)

	if e.Type == xref.EntryCompressed {
		return o.loadFromObjectStream(ctx, e.Stream, e.Index)
	}
	s := scanner.New(o.data)
	ref, obj, err := raw.ParseIndirect(s, e.Offset, o.streamLength(ctx))
	if err != nil {
		return nil, err
	}
	if ref.Num != num {
		return nil, fmt.Errorf("parser: xref points object %d at object %d", num, ref.Num)
	}
	if o.security.IsEncrypted() && !o.skip[num] {
		return o.decryptObject(ref, obj)
	}
	return obj, nil
}

// streamLength resolves indirect /Length values through the table.
func (o *objectLoader) streamLength(ctx context.Context) raw.LengthFunc {
	return func(v raw.Object) int64 {
		switch l := v.(type) {
		case raw.NumberObj:
			return l.Int()
		case raw.RefObj:
			obj, err := o.loadLocked(ctx, l.R.Num)
			if err != nil {
				return -1
			}
			if n, ok := obj.(raw.NumberObj); ok {
				return n.Int()
			}
		}
		return -1
	}
}

func (o *objectLoader) loadFromObjectStream(ctx context.Context, streamNum, idx int) (raw.Object, error) {
	objs, ok := o.objstm[streamNum]
	if !ok {
		container, err := o.loadLocked(ctx, streamNum)
		if err != nil {
			return nil, fmt.Errorf("parser: object stream %d: %w", streamNum, err)
		}
		stm, ok := container.(*raw.StreamObj)
		if !ok {
			return nil, fmt.Errorf("parser: object %d is not an object stream", streamNum)
		}
		objs, err = o.parseObjectStream(ctx, stm)
		if err != nil {
			return nil, fmt.Errorf("parser: object stream %d: %w", streamNum, err)
		}
		o.objstm[streamNum] = objs
	}
	if idx < 0 || idx >= len(objs) {
		return nil, fmt.Errorf("parser: index %d outside object stream %d", idx, streamNum)
	}
	return objs[idx], nil
}

func (o *objectLoader) parseObjectStream(ctx context.Context, stm *raw.StreamObj) ([]raw.Object, error) {
	names, params := filters.ExtractFilters(nil, stm.Dict)
	body, _, err := o.pipeline.Decode(ctx, stm.Data, names, params)
	if err != nil {
		return nil, err
	}
	n, _ := stm.Dict.Get("N").(raw.NumberObj)
	first, _ := stm.Dict.Get("First").(raw.NumberObj)
	s := scanner.New(body)
	offsets := make([]int64, 0, n.Int())
	for i := int64(0); i < n.Int(); i++ {
		if _, err := s.Next(); err != nil {
			return nil, err
		}
		off, err := s.Next()
		if err != nil {
			return nil, err
		}
		offsets = append(offsets, first.Int()+off.Int)
	}
	objs := make([]raw.Object, len(offsets))
	for i, off := range offsets {
		if err := s.Seek(off); err != nil {
			objs[i] = raw.NullObj{}
			continue
		}
		obj, err := raw.ParseObject(s)
		if err != nil {
			obj = raw.NullObj{}
		}
		objs[i] = obj
	}
	return objs, nil
}

func (o *objectLoader) decryptObject(ref raw.ObjectRef, obj raw.Object) (raw.Object, error) {
	switch v := obj.(type) {
	case raw.StringObj:
		out, err := o.security.Decrypt(ref.Num, ref.Gen, v.Bytes, security.DataClassString)
		if err != nil {
			return nil, err
		}
		return raw.StringObj{Bytes: out, Hex: v.Hex}, nil
	case *raw.ArrayObj:
		for i, it := range v.Items {
			dec, err := o.decryptObject(ref, it)
			if err != nil {
				return nil, err
			}
			v.Items[i] = dec
		}
		return v, nil
	case *raw.DictObj:
		for _, k := range v.Keys() {
			dec, err := o.decryptObject(ref, v.Get(k))
			if err != nil {
				return nil, err
			}
			v.Set(k, dec)
		}
		return v, nil
	case *raw.StreamObj:
		if _, err := o.decryptObject(ref, v.Dict); err != nil {
			return nil, err
		}
		if t, _ := v.Dict.Get("Type").(raw.NameObj); t.Val == "XRef" {
			return v, nil
		}
		data, err := o.security.Decrypt(ref.Num, ref.Gen, v.Data, security.DataClassStream)
		if err != nil {
			return nil, err
		}
		v.Data = data
		return v, nil
	}
	return obj, nil
}

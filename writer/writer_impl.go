package writer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/wudi/pdftools/filters"
	"github.com/wudi/pdftools/ir/raw"
	"github.com/wudi/pdftools/security"
)

type impl struct{ interceptors []Interceptor }

func (w *impl) SerializeObject(ref raw.ObjectRef, obj raw.Object) ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%d %d obj\n", ref.Num, ref.Gen)
	buf.Write(SerializePrimitive(obj))
	buf.WriteString("\nendobj\n")
	return buf.Bytes(), nil
}

// Write serializes the objects reachable from the trailer's /Root and /Info,
// renumbered from 1, followed by a classic xref table.
func (w *impl) Write(ctx context.Context, doc *raw.Document, out io.Writer, cfg Config) error {
	root, ok := doc.Trailer.Get("Root").(raw.RefObj)
	if !ok || doc.Root() == nil {
		return errors.New("writer: document has no catalog")
	}
	objects, renum := collect(doc)
	rootRef := renum[root.R]

	var infoRef *raw.ObjectRef
	if r, ok := doc.Trailer.Get("Info").(raw.RefObj); ok {
		if n, ok := renum[r.R]; ok {
			infoRef = &n
		}
	}

	if cfg.Compression > 0 {
		for _, obj := range objects {
			if stm, ok := obj.(*raw.StreamObj); ok {
				compressStream(stm, cfg.Compression)
			}
		}
	}

	version := doc.Version
	if cfg.Version != "" {
		version = string(cfg.Version)
	}
	if version == "" {
		version = string(PDF17)
	}

	var encRef *raw.ObjectRef
	if cfg.Encryption != nil {
		if version < string(PDF17) {
			version = string(PDF17)
		}
		markExtensionLevel(objects[rootRef].(*raw.DictObj))
		for ref, obj := range objects {
			enc, err := encryptObject(obj, ref, cfg.Encryption.Handler)
			if err != nil {
				return fmt.Errorf("writer: encrypt %v: %w", ref, err)
			}
			objects[ref] = enc
		}
		r := raw.ObjectRef{Num: len(objects) + 1}
		objects[r] = cfg.Encryption.Dict
		encRef = &r
	}

	for _, obj := range objects {
		if stm, ok := obj.(*raw.StreamObj); ok {
			stm.Dict.Set("Length", raw.NumberInt(int64(len(stm.Data))))
		}
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-" + version + "\n%\xE2\xE3\xCF\xD3\n")
	size := len(objects) + 1
	offsets := make([]int64, size)
	for num := 1; num < size; num++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		ref := raw.ObjectRef{Num: num}
		offsets[num] = int64(buf.Len())
		serialized, err := w.SerializeObject(ref, objects[ref])
		if err != nil {
			return err
		}
		buf.Write(serialized)
		for _, ic := range w.interceptors {
			if err := ic.AfterWrite(ctx, ref, int64(len(serialized))); err != nil {
				return err
			}
		}
	}

	xrefOffset := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", size)
	buf.WriteString("0000000000 65535 f \n")
	for num := 1; num < size; num++ {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[num])
	}

	ids := fileID(buf.Bytes(), cfg)
	trailer := raw.Dict()
	trailer.Set("Size", raw.NumberInt(int64(size)))
	trailer.Set("Root", raw.Ref(rootRef.Num, 0))
	if infoRef != nil {
		trailer.Set("Info", raw.Ref(infoRef.Num, 0))
	}
	if encRef != nil {
		trailer.Set("Encrypt", raw.Ref(encRef.Num, 0))
	}
	trailer.Set("ID", raw.NewArray(raw.HexStr(ids[0]), raw.HexStr(ids[1])))
	buf.WriteString("trailer\n")
	buf.Write(SerializePrimitive(trailer))
	fmt.Fprintf(&buf, "\nstartxref\n%d\n%%%%EOF\n", xrefOffset)

	_, err := out.Write(buf.Bytes())
	return err
}

// collect walks the graph from the trailer and returns deep copies of every
// reachable object, renumbered densely in discovery order.
func collect(doc *raw.Document) (map[raw.ObjectRef]raw.Object, map[raw.ObjectRef]raw.ObjectRef) {
	renum := make(map[raw.ObjectRef]raw.ObjectRef)
	var queue []raw.ObjectRef
	visit := func(o raw.Object) {
		r, ok := o.(raw.RefObj)
		if !ok {
			return
		}
		if _, seen := renum[r.R]; seen {
			return
		}
		if _, exists := doc.Objects[r.R]; !exists {
			return
		}
		renum[r.R] = raw.ObjectRef{Num: len(renum) + 1}
		queue = append(queue, r.R)
	}
	visit(doc.Trailer.Get("Root"))
	visit(doc.Trailer.Get("Info"))
	for i := 0; i < len(queue); i++ {
		walkRefs(doc.Objects[queue[i]], visit)
	}

	objects := make(map[raw.ObjectRef]raw.Object, len(renum))
	for old, nu := range renum {
		objects[nu] = remap(doc.Objects[old], renum)
	}
	return objects, renum
}

func walkRefs(o raw.Object, visit func(raw.Object)) {
	switch v := o.(type) {
	case raw.RefObj:
		visit(v)
	case *raw.ArrayObj:
		for _, it := range v.Items {
			walkRefs(it, visit)
		}
	case *raw.DictObj:
		for _, k := range v.Keys() {
			walkRefs(v.KV[k], visit)
		}
	case *raw.StreamObj:
		walkRefs(v.Dict, visit)
	}
}

// remap deep-copies o, rewriting references. Dangling references become null.
func remap(o raw.Object, renum map[raw.ObjectRef]raw.ObjectRef) raw.Object {
	switch v := o.(type) {
	case raw.RefObj:
		if n, ok := renum[v.R]; ok {
			return raw.Ref(n.Num, n.Gen)
		}
		return raw.NullObj{}
	case *raw.ArrayObj:
		out := raw.NewArray()
		for _, it := range v.Items {
			out.Append(remap(it, renum))
		}
		return out
	case *raw.DictObj:
		out := raw.Dict()
		for k, it := range v.KV {
			m := remap(it, renum)
			if _, null := m.(raw.NullObj); null {
				continue
			}
			out.Set(k, m)
		}
		return out
	case *raw.StreamObj:
		data := make([]byte, len(v.Data))
		copy(data, v.Data)
		return raw.NewStream(remap(v.Dict, renum).(*raw.DictObj), data)
	}
	return raw.Clone(o)
}

func compressStream(stm *raw.StreamObj, level int) {
	if stm.Dict.Has("Filter") || len(stm.Data) == 0 {
		return
	}
	if t, _ := stm.Dict.Get("Type").(raw.NameObj); t.Val == "Metadata" {
		return
	}
	enc, err := filters.FlateEncode(stm.Data, level)
	if err != nil || len(enc) >= len(stm.Data) {
		return
	}
	stm.Data = enc
	stm.Dict.Set("Filter", raw.NameLiteral("FlateDecode"))
	stm.Dict.Delete("DecodeParms")
}

func encryptObject(obj raw.Object, ref raw.ObjectRef, h security.Handler) (raw.Object, error) {
	switch v := obj.(type) {
	case raw.StringObj:
		out, err := h.Encrypt(ref.Num, ref.Gen, v.Bytes, security.DataClassString)
		if err != nil {
			return nil, err
		}
		return raw.StringObj{Bytes: out, Hex: true}, nil
	case *raw.ArrayObj:
		for i, it := range v.Items {
			enc, err := encryptObject(it, ref, h)
			if err != nil {
				return nil, err
			}
			v.Items[i] = enc
		}
	case *raw.DictObj:
		for k, it := range v.KV {
			enc, err := encryptObject(it, ref, h)
			if err != nil {
				return nil, err
			}
			v.KV[k] = enc
		}
	case *raw.StreamObj:
		if _, err := encryptObject(v.Dict, ref, h); err != nil {
			return nil, err
		}
		data, err := h.Encrypt(ref.Num, ref.Gen, v.Data, security.DataClassStream)
		if err != nil {
			return nil, err
		}
		v.Data = data
	}
	return obj, nil
}

// markExtensionLevel declares the Adobe extension that introduced AES-256.
func markExtensionLevel(catalog *raw.DictObj) {
	adbe := raw.Dict()
	adbe.Set("BaseVersion", raw.NameLiteral("1.7"))
	adbe.Set("ExtensionLevel", raw.NumberInt(8))
	ext := raw.Dict()
	ext.Set("ADBE", adbe)
	catalog.Set("Extensions", ext)
}

package classfile

import "fmt"

const attrStackMapTable = "StackMapTable"

// Verification type tags used inside stack map frames.
const (
	vtTop               = 0
	vtInteger           = 1
	vtFloat             = 2
	vtDouble            = 3
	vtLong              = 4
	vtNull              = 5
	vtUninitializedThis = 6
	vtObject            = 7
	vtUninitialized     = 8
)

// verificationType is one verification_type_info record. Index is the
// constant pool index for Object entries and the new-instruction offset for
// Uninitialized entries.
type verificationType struct {
	tag   byte
	index uint16
}

// frameEntry is one decoded stack_map_frame, kept close to its wire form so
// re-encoding preserves the original frame kinds.
type frameEntry struct {
	kind   byte // raw frame_type byte
	delta  uint16
	offset uint16 // absolute bytecode offset, derived while decoding
	locals []verificationType
	stack  []verificationType
}

// synthesizeFrames rebuilds a method's StackMapTable from the static type
// model: every object type referenced by a frame or an exception handler
// must resolve, and handlers protected under several catch types get their
// entry frame re-merged through the common-supertype callback. Anything the
// model cannot answer fails the method, which sends the class down the
// frameless fallback path.
func synthesizeFrames(c *Class, m *Member, opts EncodeOptions) error {
	if m.Code == nil {
		return nil
	}
	if opts.CommonSuper == nil || opts.ResolveClass == nil {
		return fmt.Errorf("frame computation requires supertype callbacks")
	}
	pool := c.Pool

	// Merge the catch types of handlers sharing an entry point. The merged
	// type is what the verifier considers on the stack at that offset.
	merged := make(map[uint16]string)
	for _, h := range m.Code.Handlers {
		if h.CatchType == 0 {
			// catch-all: entry type is java/lang/Throwable, which dominates
			// every other catch type. Nothing narrower can survive a merge.
			merged[h.HandlerPC] = "java/lang/Throwable"
			continue
		}
		name, err := pool.ClassName(h.CatchType)
		if err != nil {
			return err
		}
		if err := opts.ResolveClass(name); err != nil {
			return err
		}
		if prev, ok := merged[h.HandlerPC]; ok {
			if name, err = opts.CommonSuper(prev, name); err != nil {
				return err
			}
		}
		merged[h.HandlerPC] = name
	}

	attrIdx := -1
	for i := range m.Code.Attributes {
		if m.Code.Attributes[i].Name == attrStackMapTable {
			attrIdx = i
			break
		}
	}
	if attrIdx == -1 {
		return nil
	}

	entries, err := decodeStackMapTable(m.Code.Attributes[attrIdx].Data)
	if err != nil {
		return err
	}

	for i := range entries {
		e := &entries[i]
		for _, vt := range append(append([]verificationType{}, e.locals...), e.stack...) {
			if vt.tag != vtObject {
				continue
			}
			name, err := pool.ClassName(vt.index)
			if err != nil {
				return err
			}
			// Array types carry descriptor syntax; the hierarchy only knows
			// plain classes, and arrays are always assignable to Object.
			if name != "" && name[0] == '[' {
				continue
			}
			if err := opts.ResolveClass(name); err != nil {
				return err
			}
		}

		// Handler entry frames have a single throwable on the stack; rewrite
		// it to the merged catch type when several handlers share the offset.
		want, ok := merged[e.offset]
		if !ok || len(e.stack) != 1 || e.stack[0].tag != vtObject {
			continue
		}
		idx, err := pool.AddClass(want)
		if err != nil {
			return err
		}
		e.stack[0].index = idx
	}

	m.Code.Attributes[attrIdx].Data = encodeStackMapTable(entries)
	return nil
}

func decodeStackMapTable(data []byte) ([]frameEntry, error) {
	r := newReader(data)
	count := int(r.u2())
	entries := make([]frameEntry, 0, count)

	offset := -1 // running absolute offset; first delta is absolute
	for i := 0; i < count; i++ {
		kind := r.u1()
		if r.err != nil {
			return nil, r.err
		}
		e := frameEntry{kind: kind}
		switch {
		case kind <= 63: // same_frame
			e.delta = uint16(kind)
		case kind <= 127: // same_locals_1_stack_item
			e.delta = uint16(kind - 64)
			e.stack = readVerificationTypes(r, 1)
		case kind == 247: // same_locals_1_stack_item_extended
			e.delta = r.u2()
			e.stack = readVerificationTypes(r, 1)
		case kind >= 248 && kind <= 250: // chop
			e.delta = r.u2()
		case kind == 251: // same_frame_extended
			e.delta = r.u2()
		case kind >= 252 && kind <= 254: // append
			e.delta = r.u2()
			e.locals = readVerificationTypes(r, int(kind-251))
		case kind == 255: // full_frame
			e.delta = r.u2()
			e.locals = readVerificationTypes(r, int(r.u2()))
			e.stack = readVerificationTypes(r, int(r.u2()))
		default:
			return nil, fmt.Errorf("reserved stack map frame type %d", kind)
		}
		if r.err != nil {
			return nil, r.err
		}
		offset += int(e.delta) + 1
		e.offset = uint16(offset)
		entries = append(entries, e)
	}
	if r.remaining() != 0 {
		return nil, fmt.Errorf("%d trailing bytes in StackMapTable", r.remaining())
	}
	return entries, nil
}

func readVerificationTypes(r *reader, n int) []verificationType {
	types := make([]verificationType, 0, n)
	for i := 0; i < n; i++ {
		vt := verificationType{tag: r.u1()}
		if vt.tag == vtObject || vt.tag == vtUninitialized {
			vt.index = r.u2()
		} else if vt.tag > vtUninitialized {
			r.fail("invalid verification type tag %d", vt.tag)
		}
		types = append(types, vt)
	}
	return types
}

func encodeStackMapTable(entries []frameEntry) []byte {
	w := &writer{}
	w.u2(uint16(len(entries)))
	for _, e := range entries {
		w.u1(e.kind)
		switch {
		case e.kind <= 63:
		case e.kind <= 127:
			writeVerificationTypes(w, e.stack)
		case e.kind == 247:
			w.u2(e.delta)
			writeVerificationTypes(w, e.stack)
		case e.kind >= 248 && e.kind <= 251:
			w.u2(e.delta)
		case e.kind >= 252 && e.kind <= 254:
			w.u2(e.delta)
			writeVerificationTypes(w, e.locals)
		case e.kind == 255:
			w.u2(e.delta)
			w.u2(uint16(len(e.locals)))
			writeVerificationTypes(w, e.locals)
			w.u2(uint16(len(e.stack)))
			writeVerificationTypes(w, e.stack)
		}
	}
	return w.bytes()
}

func writeVerificationTypes(w *writer, types []verificationType) {
	for _, vt := range types {
		w.u1(vt.tag)
		if vt.tag == vtObject || vt.tag == vtUninitialized {
			w.u2(vt.index)
		}
	}
}

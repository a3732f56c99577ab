package classfile

import "fmt"

// EncodeOptions control re-serialization of a class.
type EncodeOptions struct {
	// ComputeFrames enables stack map frame synthesis. When false, existing
	// StackMapTable attributes are stripped and the runtime verifier is left
	// to infer frames at load time.
	ComputeFrames bool

	// CommonSuper supplies the least common supertype of two internal class
	// names during frame synthesis. Required when ComputeFrames is set.
	CommonSuper func(a, b string) (string, error)

	// ResolveClass reports whether an internal class name is known to the
	// classpath. Frame synthesis fails on the first unknown type, which is
	// what pushes the caller into the frameless fallback.
	ResolveClass func(name string) error

	// Watermark UTF-8 constants are interned into the pool before anything
	// else, alongside the class's own StrConsts.
	Watermark []string
}

// Encode serializes a class back to bytes. Frame-related failures come back
// as *EncodeError so the caller can distinguish them from programming errors
// and retry frameless.
func Encode(c *Class, opts EncodeOptions) ([]byte, error) {
	if c.LibraryOnly {
		return nil, fmt.Errorf("class %s was loaded structure-only and cannot be encoded", c.Name)
	}
	pool := c.Pool
	if pool == nil {
		return nil, fmt.Errorf("class %s has no constant pool", c.Name)
	}

	for _, s := range opts.Watermark {
		if _, err := pool.AddUTF8(s); err != nil {
			return nil, err
		}
	}
	for _, s := range c.StrConsts {
		if _, err := pool.AddUTF8(s); err != nil {
			return nil, err
		}
	}

	if opts.ComputeFrames {
		for _, m := range c.Methods {
			if err := synthesizeFrames(c, m, opts); err != nil {
				return nil, &EncodeError{ClassName: c.Name, Method: m.Name, Err: err}
			}
		}
	} else {
		for _, m := range c.Methods {
			stripFrames(m)
		}
	}

	// Intern header entries up front; the pool must be complete before its
	// serialized form is emitted.
	thisIdx, err := pool.AddClass(c.Name)
	if err != nil {
		return nil, err
	}
	var superIdx uint16
	if c.SuperName != "" {
		if superIdx, err = pool.AddClass(c.SuperName); err != nil {
			return nil, err
		}
	}
	ifaceIdx := make([]uint16, len(c.Interfaces))
	for i, name := range c.Interfaces {
		if ifaceIdx[i], err = pool.AddClass(name); err != nil {
			return nil, err
		}
	}
	fields, err := encodeMembers(pool, c.Fields)
	if err != nil {
		return nil, err
	}
	methods, err := encodeMembers(pool, c.Methods)
	if err != nil {
		return nil, err
	}
	classAttrs, err := encodeAttributes(pool, c.Attributes)
	if err != nil {
		return nil, err
	}

	w := &writer{}
	w.u4(MagicNumber)
	w.u2(c.Minor)
	w.u2(c.Major)
	pool.encode(w)
	w.u2(c.AccessFlags)
	w.u2(thisIdx)
	w.u2(superIdx)
	w.u2(uint16(len(ifaceIdx)))
	for _, idx := range ifaceIdx {
		w.u2(idx)
	}
	w.raw(fields)
	w.raw(methods)
	w.raw(classAttrs)
	return w.bytes(), nil
}

func encodeMembers(pool *ConstPool, members []*Member) ([]byte, error) {
	w := &writer{}
	w.u2(uint16(len(members)))
	for _, m := range members {
		nameIdx, err := pool.AddUTF8(m.Name)
		if err != nil {
			return nil, err
		}
		descIdx, err := pool.AddUTF8(m.Desc)
		if err != nil {
			return nil, err
		}

		attrs := m.Attributes
		if m.Code != nil {
			codeData, err := encodeCode(pool, m.Code)
			if err != nil {
				return nil, fmt.Errorf("member %s: %w", m.Name, err)
			}
			attrs = append(append([]Attribute{}, attrs...), Attribute{Name: attrCode, Data: codeData})
		}
		attrBytes, err := encodeAttributes(pool, attrs)
		if err != nil {
			return nil, fmt.Errorf("member %s: %w", m.Name, err)
		}

		w.u2(m.AccessFlags)
		w.u2(nameIdx)
		w.u2(descIdx)
		w.raw(attrBytes)
	}
	return w.bytes(), nil
}

func encodeAttributes(pool *ConstPool, attrs []Attribute) ([]byte, error) {
	w := &writer{}
	w.u2(uint16(len(attrs)))
	for _, attr := range attrs {
		nameIdx, err := pool.AddUTF8(attr.Name)
		if err != nil {
			return nil, err
		}
		w.u2(nameIdx)
		w.u4(uint32(len(attr.Data)))
		w.raw(attr.Data)
	}
	return w.bytes(), nil
}

func encodeCode(pool *ConstPool, code *Code) ([]byte, error) {
	w := &writer{}
	w.u2(code.MaxStack)
	w.u2(code.MaxLocals)
	w.u4(uint32(len(code.Bytes)))
	w.raw(code.Bytes)
	w.u2(uint16(len(code.Handlers)))
	for _, h := range code.Handlers {
		w.u2(h.StartPC)
		w.u2(h.EndPC)
		w.u2(h.HandlerPC)
		w.u2(h.CatchType)
	}
	attrs, err := encodeAttributes(pool, code.Attributes)
	if err != nil {
		return nil, err
	}
	w.raw(attrs)
	return w.bytes(), nil
}

// stripFrames drops the StackMapTable of a method, the frameless fallback
// encoding mode.
func stripFrames(m *Member) {
	if m.Code == nil {
		return
	}
	kept := m.Code.Attributes[:0]
	for _, attr := range m.Code.Attributes {
		if attr.Name != attrStackMapTable {
			kept = append(kept, attr)
		}
	}
	m.Code.Attributes = kept
}

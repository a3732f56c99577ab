package classfile

import "fmt"

// attrCode is the only attribute the decoder parses structurally.
const attrCode = "Code"

// Decode parses a class file image. ModeStructure stops after the interface
// list; ModeFull parses fields, methods and attributes as well. All failures
// come back as *DecodeError.
func Decode(b []byte, mode Mode) (*Class, error) {
	c, err := decode(b, mode)
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	return c, nil
}

func decode(b []byte, mode Mode) (*Class, error) {
	r := newReader(b)

	if magic := r.u4(); r.err == nil && magic != MagicNumber {
		return nil, fmt.Errorf("bad magic number 0x%08X", magic)
	}

	c := &Class{
		Minor:       r.u2(),
		Major:       r.u2(),
		LibraryOnly: mode == ModeStructure,
	}

	pool, err := readConstPool(r)
	if err != nil {
		return nil, err
	}
	c.Pool = pool

	c.AccessFlags = r.u2()
	thisIdx := r.u2()
	superIdx := r.u2()
	ifaceCount := int(r.u2())
	if r.err != nil {
		return nil, r.err
	}

	if c.Name, err = pool.ClassName(thisIdx); err != nil {
		return nil, fmt.Errorf("this_class: %w", err)
	}
	if superIdx != 0 {
		if c.SuperName, err = pool.ClassName(superIdx); err != nil {
			return nil, fmt.Errorf("super_class: %w", err)
		}
	}
	for i := 0; i < ifaceCount; i++ {
		name, err := pool.ClassName(r.u2())
		if err != nil {
			return nil, fmt.Errorf("interface %d: %w", i, err)
		}
		c.Interfaces = append(c.Interfaces, name)
	}
	if r.err != nil {
		return nil, r.err
	}

	if mode == ModeStructure {
		return c, nil
	}

	if c.Fields, err = readMembers(r, pool, false); err != nil {
		return nil, fmt.Errorf("fields: %w", err)
	}
	if c.Methods, err = readMembers(r, pool, true); err != nil {
		return nil, fmt.Errorf("methods: %w", err)
	}
	if c.Attributes, err = readAttributes(r, pool); err != nil {
		return nil, fmt.Errorf("class attributes: %w", err)
	}
	if r.remaining() != 0 {
		return nil, fmt.Errorf("%d trailing bytes after class attributes", r.remaining())
	}
	return c, nil
}

func readMembers(r *reader, pool *ConstPool, methods bool) ([]*Member, error) {
	count := int(r.u2())
	if r.err != nil {
		return nil, r.err
	}
	members := make([]*Member, 0, count)
	for i := 0; i < count; i++ {
		m := &Member{AccessFlags: r.u2()}
		nameIdx, descIdx := r.u2(), r.u2()
		if r.err != nil {
			return nil, r.err
		}
		var err error
		if m.Name, err = pool.UTF8(nameIdx); err != nil {
			return nil, err
		}
		if m.Desc, err = pool.UTF8(descIdx); err != nil {
			return nil, err
		}
		if m.Attributes, err = readAttributes(r, pool); err != nil {
			return nil, fmt.Errorf("member %s: %w", m.Name, err)
		}
		if methods {
			if err := liftCode(m, pool); err != nil {
				return nil, fmt.Errorf("method %s: %w", m.Name, err)
			}
		}
		members = append(members, m)
	}
	return members, nil
}

func readAttributes(r *reader, pool *ConstPool) ([]Attribute, error) {
	count := int(r.u2())
	if r.err != nil {
		return nil, r.err
	}
	attrs := make([]Attribute, 0, count)
	for i := 0; i < count; i++ {
		nameIdx := r.u2()
		data := r.take(int(r.u4()))
		if r.err != nil {
			return nil, r.err
		}
		name, err := pool.UTF8(nameIdx)
		if err != nil {
			return nil, err
		}
		// Copy: attribute data outlives the decode buffer.
		attrs = append(attrs, Attribute{Name: name, Data: append([]byte(nil), data...)})
	}
	return attrs, nil
}

// liftCode moves a method's Code attribute out of the opaque attribute list
// into the structured Code form.
func liftCode(m *Member, pool *ConstPool) error {
	for i, attr := range m.Attributes {
		if attr.Name != attrCode {
			continue
		}
		code, err := parseCode(attr.Data, pool)
		if err != nil {
			return err
		}
		m.Code = code
		m.Attributes = append(m.Attributes[:i], m.Attributes[i+1:]...)
		return nil
	}
	return nil
}

func parseCode(data []byte, pool *ConstPool) (*Code, error) {
	r := newReader(data)
	code := &Code{
		MaxStack:  r.u2(),
		MaxLocals: r.u2(),
	}
	code.Bytes = append([]byte(nil), r.take(int(r.u4()))...)

	handlerCount := int(r.u2())
	if r.err != nil {
		return nil, r.err
	}
	for i := 0; i < handlerCount; i++ {
		code.Handlers = append(code.Handlers, ExceptionHandler{
			StartPC:   r.u2(),
			EndPC:     r.u2(),
			HandlerPC: r.u2(),
			CatchType: r.u2(),
		})
	}

	attrs, err := readAttributes(r, pool)
	if err != nil {
		return nil, fmt.Errorf("code attributes: %w", err)
	}
	code.Attributes = attrs
	if r.remaining() != 0 {
		return nil, fmt.Errorf("%d trailing bytes after code attributes", r.remaining())
	}
	return code, nil
}

package classfile

import "fmt"

// Constant pool tags from the class file specification.
const (
	tagUTF8               = 1
	tagInteger            = 3
	tagFloat              = 4
	tagLong               = 5
	tagDouble             = 6
	tagClass              = 7
	tagString             = 8
	tagFieldref           = 9
	tagMethodref          = 10
	tagInterfaceMethodref = 11
	tagNameAndType        = 12
	tagMethodHandle       = 15
	tagMethodType         = 16
	tagDynamic            = 17
	tagInvokeDynamic      = 18
	tagModule             = 19
	tagPackage            = 20
)

// maxPoolSize is the u2 ceiling on constant pool slots.
const maxPoolSize = 0xFFFF

// cpEntry is one constant pool record: its tag plus the raw payload bytes
// that follow it. UTF-8 payloads exclude the length prefix.
type cpEntry struct {
	tag  byte
	data []byte
}

// ConstPool models the constant pool of one class. Slot 0 is unused and
// long/double entries are followed by a phantom nil slot, exactly as the
// on-disk numbering works. Additions always append, so indices already
// referenced by code bytes stay valid.
type ConstPool struct {
	entries []*cpEntry
}

// NewConstPool returns an empty pool (slot 0 reserved).
func NewConstPool() *ConstPool {
	return &ConstPool{entries: make([]*cpEntry, 1, 16)}
}

// payloadSize returns the fixed payload size for a tag, or -1 for UTF-8.
func payloadSize(tag byte) int {
	switch tag {
	case tagUTF8:
		return -1
	case tagInteger, tagFloat:
		return 4
	case tagLong, tagDouble:
		return 8
	case tagClass, tagString, tagMethodType, tagModule, tagPackage:
		return 2
	case tagFieldref, tagMethodref, tagInterfaceMethodref, tagNameAndType, tagDynamic, tagInvokeDynamic:
		return 4
	case tagMethodHandle:
		return 3
	default:
		return 0
	}
}

// readConstPool parses the constant pool section, cursor positioned on the
// constant_pool_count field.
func readConstPool(r *reader) (*ConstPool, error) {
	count := int(r.u2())
	if r.err != nil {
		return nil, r.err
	}
	if count == 0 {
		return nil, fmt.Errorf("constant pool count must be at least 1")
	}

	pool := &ConstPool{entries: make([]*cpEntry, 1, count)}
	for i := 1; i < count; i++ {
		tag := r.u1()
		size := payloadSize(tag)
		var data []byte
		if size == -1 {
			data = r.take(int(r.u2()))
		} else if size > 0 {
			data = r.take(size)
		} else {
			return nil, fmt.Errorf("unknown constant pool tag %d at slot %d", tag, i)
		}
		if r.err != nil {
			return nil, r.err
		}
		pool.entries = append(pool.entries, &cpEntry{tag: tag, data: data})
		if tag == tagLong || tag == tagDouble {
			// Double-width entries burn the next slot.
			pool.entries = append(pool.entries, nil)
			i++
		}
	}
	return pool, nil
}

// encode serializes the pool including its count field.
func (p *ConstPool) encode(w *writer) {
	w.u2(uint16(len(p.entries)))
	for _, e := range p.entries {
		if e == nil {
			continue
		}
		w.u1(e.tag)
		if e.tag == tagUTF8 {
			w.u2(uint16(len(e.data)))
		}
		w.raw(e.data)
	}
}

// Size returns the number of pool slots, including slot 0 and phantom slots.
func (p *ConstPool) Size() int {
	return len(p.entries)
}

func (p *ConstPool) entry(i uint16) (*cpEntry, error) {
	if int(i) >= len(p.entries) || p.entries[i] == nil {
		return nil, fmt.Errorf("constant pool index %d out of range", i)
	}
	return p.entries[i], nil
}

// UTF8 returns the string payload of a CONSTANT_Utf8 entry.
func (p *ConstPool) UTF8(i uint16) (string, error) {
	e, err := p.entry(i)
	if err != nil {
		return "", err
	}
	if e.tag != tagUTF8 {
		return "", fmt.Errorf("constant pool index %d is tag %d, not UTF-8", i, e.tag)
	}
	return string(e.data), nil
}

// ClassName resolves a CONSTANT_Class entry to its internal class name.
func (p *ConstPool) ClassName(i uint16) (string, error) {
	e, err := p.entry(i)
	if err != nil {
		return "", err
	}
	if e.tag != tagClass {
		return "", fmt.Errorf("constant pool index %d is tag %d, not Class", i, e.tag)
	}
	return p.UTF8(u16(e.data))
}

// AddUTF8 interns a CONSTANT_Utf8 entry and returns its index. Existing
// entries are reused so repeated additions are idempotent.
func (p *ConstPool) AddUTF8(s string) (uint16, error) {
	for i, e := range p.entries {
		if e != nil && e.tag == tagUTF8 && string(e.data) == s {
			return uint16(i), nil
		}
	}
	return p.append(&cpEntry{tag: tagUTF8, data: []byte(s)})
}

// AddClass interns a CONSTANT_Class entry for the given internal name.
func (p *ConstPool) AddClass(name string) (uint16, error) {
	for i, e := range p.entries {
		if e == nil || e.tag != tagClass {
			continue
		}
		if n, err := p.UTF8(u16(e.data)); err == nil && n == name {
			return uint16(i), nil
		}
	}
	utf, err := p.AddUTF8(name)
	if err != nil {
		return 0, err
	}
	return p.append(&cpEntry{tag: tagClass, data: []byte{byte(utf >> 8), byte(utf)}})
}

func (p *ConstPool) append(e *cpEntry) (uint16, error) {
	if len(p.entries) >= maxPoolSize {
		return 0, fmt.Errorf("constant pool overflow (%d slots)", len(p.entries))
	}
	p.entries = append(p.entries, e)
	return uint16(len(p.entries) - 1), nil
}

func u16(b []byte) uint16 {
	return uint16(b[0])<<8 | uint16(b[1])
}

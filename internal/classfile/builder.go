package classfile

// Builder assembles a minimal valid class from scratch. The decoy
// transformer and the test fixtures use it; it covers plain classes and
// interfaces with bodiless or trivially-bodied members.
type Builder struct {
	class *Class
}

// NewBuilder starts a class with the given internal name and superclass.
// Pass an empty super only when building java/lang/Object itself.
func NewBuilder(name, super string, flags uint16) *Builder {
	return &Builder{class: &Class{
		Name:        name,
		SuperName:   super,
		AccessFlags: flags,
		Minor:       0,
		Major:       52, // Java 8: old enough to load anywhere current
		Pool:        NewConstPool(),
	}}
}

// Version overrides the class file version.
func (b *Builder) Version(major, minor uint16) *Builder {
	b.class.Major = major
	b.class.Minor = minor
	return b
}

// Implements adds an interface to the class.
func (b *Builder) Implements(name string) *Builder {
	b.class.Interfaces = append(b.class.Interfaces, name)
	return b
}

// Field adds a bodiless field.
func (b *Builder) Field(flags uint16, name, desc string) *Builder {
	b.class.Fields = append(b.class.Fields, &Member{AccessFlags: flags, Name: name, Desc: desc})
	return b
}

// Method adds a method with the given code bytes. Abstract methods pass nil
// code.
func (b *Builder) Method(flags uint16, name, desc string, maxStack, maxLocals uint16, code []byte) *Builder {
	m := &Member{AccessFlags: flags, Name: name, Desc: desc}
	if code != nil {
		m.Code = &Code{MaxStack: maxStack, MaxLocals: maxLocals, Bytes: code}
	}
	b.class.Methods = append(b.class.Methods, m)
	return b
}

// Build returns the assembled class model.
func (b *Builder) Build() *Class {
	return b.class
}

// Bytes encodes the assembled class without frame computation; builder
// output never carries branches that would need frames.
func (b *Builder) Bytes() ([]byte, error) {
	return Encode(b.class, EncodeOptions{})
}

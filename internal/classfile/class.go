// Package classfile decodes, models and re-encodes JVM class files. It is
// deliberately shallow: class structure (names, flags, supertypes, members,
// attributes) is fully modeled, while bytecode stays as raw code bytes except
// where a rewrite demands instruction-level work (subroutine inlining, frame
// synthesis).
package classfile

import "fmt"

// MagicNumber opens every class file.
const MagicNumber = 0xCAFEBABE

// MajorJava5 is the last major version whose bytecode may contain jsr/ret
// subroutines and which predates stack map frames.
const MajorJava5 = 49

// Access flag bits used by the core; transformers interpret the rest.
const (
	AccPublic    = 0x0001
	AccStatic    = 0x0008
	AccFinal     = 0x0010
	AccSuper     = 0x0020
	AccInterface = 0x0200
	AccAbstract  = 0x0400
	AccSynthetic = 0x1000
)

// Mode selects how much of a class file Decode parses.
type Mode int

const (
	// ModeStructure stops after the interface list: enough for hierarchy
	// resolution, nothing executable. Used for library classpath entries.
	ModeStructure Mode = iota
	// ModeFull parses members and attributes. Used for the primary input.
	ModeFull
)

// Class is the in-memory model of one class. For library classes only the
// header fields are populated and LibraryOnly is set.
type Class struct {
	Name        string
	SuperName   string // empty only for java/lang/Object
	Interfaces  []string
	AccessFlags uint16
	LibraryOnly bool

	// StrConsts are extra UTF-8 constants transformers want emitted into the
	// pool at encode time (string pools, markers). Order is preserved.
	StrConsts []string

	Minor uint16
	Major uint16

	Pool       *ConstPool
	Fields     []*Member
	Methods    []*Member
	Attributes []Attribute
}

// IsInterface reports whether the class declares ACC_INTERFACE.
func (c *Class) IsInterface() bool {
	return c.AccessFlags&AccInterface != 0
}

// Member is one field or method. Name and Desc are authoritative; encode
// re-interns them, so renames by transformers propagate to the output.
type Member struct {
	AccessFlags uint16
	Name        string
	Desc        string
	Attributes  []Attribute

	// Code is the parsed Code attribute for methods that have one. When set,
	// the Code attribute is excluded from Attributes and re-serialized from
	// this structure.
	Code *Code
}

// Attribute is a named, otherwise opaque attribute blob.
type Attribute struct {
	Name string
	Data []byte
}

// Code is the parsed Code attribute of a method.
type Code struct {
	MaxStack   uint16
	MaxLocals  uint16
	Bytes      []byte
	Handlers   []ExceptionHandler
	Attributes []Attribute
}

// ExceptionHandler is one exception_table record. CatchType 0 catches
// everything (finally).
type ExceptionHandler struct {
	StartPC   uint16
	EndPC     uint16
	HandlerPC uint16
	CatchType uint16
}

// DecodeError reports that a byte blob could not be parsed as a class file.
// The archive loader demotes such primary entries to resources and skips
// such library entries.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("class decode failed: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// EncodeError reports that one class failed frame-aware re-encoding. The
// archive writer retries the class in frameless mode.
type EncodeError struct {
	ClassName string
	Method    string
	Err       error
}

func (e *EncodeError) Error() string {
	if e.Method != "" {
		return fmt.Sprintf("encoding %s.%s: %v", e.ClassName, e.Method, e.Err)
	}
	return fmt.Sprintf("encoding %s: %v", e.ClassName, e.Err)
}

func (e *EncodeError) Unwrap() error {
	return e.Err
}

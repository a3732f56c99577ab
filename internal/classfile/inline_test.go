package classfile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func classWithCode(code []byte, handlers ...ExceptionHandler) *Class {
	c := NewBuilder("t/Legacy", "java/lang/Object", AccPublic|AccSuper).
		Method(AccPublic, "m", "()V", 2, 2, code).
		Build()
	c.Methods[0].Code.Handlers = handlers
	return c
}

func TestInlineLeavesJsrFreeCodeAlone(t *testing.T) {
	code := []byte{0x03, 0x3c, 0xb1} // iconst_0, istore_1, return
	c := classWithCode(code)

	n, err := InlineSubroutines(c)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, code, c.Methods[0].Code.Bytes)
}

func TestInlineSingleSubroutine(t *testing.T) {
	// 0: jsr 4
	// 3: return
	// 4: astore_1
	// 5: ret 1
	c := classWithCode([]byte{0xa8, 0x00, 0x04, 0xb1, 0x4c, 0xa9, 0x01})

	n, err := InlineSubroutines(c)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// 0: aconst_null        (return address stand-in)
	// 1: goto 5             (into the instantiation)
	// 4: return
	// 5: astore_1
	// 6: goto 4              (back past the call site)
	assert.Equal(t,
		[]byte{0x01, 0xa7, 0x00, 0x04, 0xb1, 0x4c, 0xa7, 0xff, 0xfe},
		c.Methods[0].Code.Bytes)
}

func TestInlineDuplicatesSharedSubroutine(t *testing.T) {
	// Two call sites into the same body produce two instantiations.
	// 0: jsr 8
	// 3: jsr 8
	// 6: nop
	// 7: return
	// 8: astore_1
	// 9: ret 1
	c := classWithCode([]byte{0xa8, 0x00, 0x08, 0xa8, 0x00, 0x05, 0x00, 0xb1, 0x4c, 0xa9, 0x01})

	n, err := InlineSubroutines(c)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	out := c.Methods[0].Code.Bytes
	// Each jsr expands to 4 bytes inline plus a 4-byte instantiation; the
	// astore_1 body appears once per call site.
	assert.Equal(t, 2, countByte(out, 0x4c))
	assert.Equal(t, 2, countByte(out, 0x01))
}

func countByte(b []byte, want byte) int {
	n := 0
	for _, v := range b {
		if v == want {
			n++
		}
	}
	return n
}

func TestInlineRejectsSubroutineWithoutRet(t *testing.T) {
	// 0: jsr 4
	// 3: return
	// 4: return   (body falls off without ret)
	c := classWithCode([]byte{0xa8, 0x00, 0x04, 0xb1, 0xb1})

	_, err := InlineSubroutines(c)
	require.Error(t, err)
	var unsupported *UnsupportedSubroutineError
	require.ErrorAs(t, err, &unsupported)
	assert.Contains(t, unsupported.Reason, "no ret")
}

func TestInlineRejectsNestedJsr(t *testing.T) {
	// 0: jsr 4
	// 3: return
	// 4: astore_1
	// 5: jsr 4    (subroutine calls into a subroutine)
	// 8: ret 1
	c := classWithCode([]byte{0xa8, 0x00, 0x04, 0xb1, 0x4c, 0xa8, 0xff, 0xff, 0xa9, 0x01})

	_, err := InlineSubroutines(c)
	require.Error(t, err)
	var unsupported *UnsupportedSubroutineError
	require.ErrorAs(t, err, &unsupported)
}

func TestInlineRejectsHandlerOverSubroutineBody(t *testing.T) {
	c := classWithCode(
		[]byte{0xa8, 0x00, 0x04, 0xb1, 0x4c, 0xa9, 0x01},
		ExceptionHandler{StartPC: 0, EndPC: 7, HandlerPC: 3, CatchType: 0},
	)

	_, err := InlineSubroutines(c)
	require.Error(t, err)
	var unsupported *UnsupportedSubroutineError
	require.ErrorAs(t, err, &unsupported)
	assert.Contains(t, unsupported.Reason, "handler")
}

func TestInlineRemapsExceptionTable(t *testing.T) {
	// The handler protects only the mainline, clear of the body.
	c := classWithCode(
		[]byte{0xa8, 0x00, 0x04, 0xb1, 0x4c, 0xa9, 0x01},
		ExceptionHandler{StartPC: 0, EndPC: 3, HandlerPC: 3, CatchType: 0},
	)

	n, err := InlineSubroutines(c)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	handlers := c.Methods[0].Code.Handlers
	require.Len(t, handlers, 1)
	// jsr at 0 became aconst_null at 0; return moved from 3 to 4.
	assert.Equal(t, uint16(0), handlers[0].StartPC)
	assert.Equal(t, uint16(4), handlers[0].EndPC)
	assert.Equal(t, uint16(4), handlers[0].HandlerPC)
}

func TestInlineDropsPositionalAttributes(t *testing.T) {
	c := classWithCode([]byte{0xa8, 0x00, 0x04, 0xb1, 0x4c, 0xa9, 0x01})
	c.Methods[0].Code.Attributes = []Attribute{{Name: "LineNumberTable", Data: []byte{0, 0}}}

	n, err := InlineSubroutines(c)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Empty(t, c.Methods[0].Code.Attributes)
}

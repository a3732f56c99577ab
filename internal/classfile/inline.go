package classfile

import "fmt"

// UnsupportedSubroutineError marks a jsr/ret shape the inliner does not
// rewrite. The archive loader logs these and keeps the method as-is; such
// classes predate stack map frames, so the write path is unaffected.
type UnsupportedSubroutineError struct {
	Reason string
}

func (e *UnsupportedSubroutineError) Error() string {
	return "unsupported subroutine shape: " + e.Reason
}

func errUnsupported(reason string) error {
	return &UnsupportedSubroutineError{Reason: reason}
}

// inlineNode is one instruction of the rewritten program. insn points at the
// original instruction when there is one; synthetic nodes (the aconst_null +
// goto pair replacing each jsr, and the goto replacing each cloned ret) have
// none.
type inlineNode struct {
	insn    *instruction
	op      byte
	origOff int // original offset this node stands for, -1 if none
	targets []*inlineNode
	newOff  int
}

// InlineSubroutines rewrites every jsr/ret subroutine call in the class into
// straight-line control flow: each jsr becomes aconst_null (standing in for
// the return address) plus a goto to a per-site instantiation of the
// subroutine body appended at the end of the method, whose ret becomes a
// goto back past the call site. Returns the number of methods rewritten.
func InlineSubroutines(c *Class) (int, error) {
	rewritten := 0
	for _, m := range c.Methods {
		if m.Code == nil || len(m.Code.Bytes) == 0 {
			continue
		}
		changed, err := inlineMethod(m.Code)
		if err != nil {
			return rewritten, fmt.Errorf("method %s%s: %w", m.Name, m.Desc, err)
		}
		if changed {
			// Offsets moved; positional attributes (line numbers, local
			// variable tables) no longer apply.
			m.Code.Attributes = nil
			rewritten++
		}
	}
	return rewritten, nil
}

func inlineMethod(code *Code) (bool, error) {
	insns, err := scanInstructions(code.Bytes)
	if err != nil {
		return false, err
	}

	byOff := make(map[int]int, len(insns))
	for i := range insns {
		byOff[insns[i].off] = i
	}

	subStart := make(map[int]bool)
	hasJsr := false
	for i := range insns {
		if insns[i].op != opJsr && insns[i].op != opJsrW {
			continue
		}
		hasJsr = true
		if i+1 >= len(insns) {
			return false, errUnsupported("jsr is the last instruction")
		}
		target := branchTargets(insns[i])[0]
		ti, ok := byOff[target]
		if !ok {
			return false, fmt.Errorf("jsr at offset %d targets mid-instruction offset %d", insns[i].off, target)
		}
		subStart[ti] = true
	}
	if !hasJsr {
		return false, nil
	}

	extent, err := subroutineExtents(insns, subStart)
	if err != nil {
		return false, err
	}
	if err := checkHandlerOverlap(code.Handlers, insns, extent); err != nil {
		return false, err
	}

	// One node per original instruction, branch targets resolved to nodes.
	nodes := make([]*inlineNode, len(insns))
	for i := range insns {
		nodes[i] = &inlineNode{insn: &insns[i], op: insns[i].op, origOff: insns[i].off}
	}
	for i := range insns {
		for _, t := range branchTargets(insns[i]) {
			ti, ok := byOff[t]
			if !ok {
				return false, fmt.Errorf("branch at offset %d targets mid-instruction offset %d", insns[i].off, t)
			}
			nodes[i].targets = append(nodes[i].targets, nodes[ti])
		}
	}

	// Assemble: jsr sites become aconst_null + goto, instantiations go to
	// the end of the method.
	replaced := make(map[*inlineNode]*inlineNode)
	var prog, appendices []*inlineNode
	for i, nd := range nodes {
		if nd.op != opJsr && nd.op != opJsrW {
			prog = append(prog, nd)
			continue
		}
		startIdx := byOff[branchTargets(insns[i])[0]]
		clone := cloneSubroutine(nodes, startIdx, extent[startIdx], nodes[i+1])
		null := &inlineNode{op: opAconstNull, origOff: nd.origOff}
		jump := &inlineNode{op: opGoto, origOff: -1, targets: []*inlineNode{clone[0]}}
		replaced[nd] = null
		prog = append(prog, null, jump)
		appendices = append(appendices, clone...)
	}
	mainLen := len(prog)
	prog = append(prog, appendices...)

	// Branches that targeted a jsr site now target its replacement.
	for _, nd := range prog {
		for k, t := range nd.targets {
			if repl, ok := replaced[t]; ok {
				nd.targets[k] = repl
			}
		}
	}

	// Layout. Switch padding depends only on the instruction's own offset,
	// so a single forward pass settles everything.
	off := 0
	for _, nd := range prog {
		nd.newOff = off
		off += nodeSize(nd, off)
	}
	if off > 0xFFFF {
		return false, fmt.Errorf("method exceeds 65535 code bytes after subroutine inlining")
	}

	w := &writer{}
	for _, nd := range prog {
		if err := emitNode(w, nd); err != nil {
			return false, err
		}
	}

	handlers, err := remapHandlers(code, prog, mainLen, off)
	if err != nil {
		return false, err
	}
	code.Bytes = w.bytes()
	code.Handlers = handlers
	return true, nil
}

// subroutineExtents locates the body of each subroutine: its entry up to its
// single ret, with no nested jsr, no overlap with another subroutine and no
// branch escaping the body.
func subroutineExtents(insns []instruction, subStart map[int]bool) (map[int]int, error) {
	extent := make(map[int]int, len(subStart))
	for start := range subStart {
		end := -1
		for j := start; j < len(insns); j++ {
			op := insns[j].op
			if j > start && subStart[j] {
				return nil, errUnsupported("overlapping subroutine bodies")
			}
			if op == opJsr || op == opJsrW {
				return nil, errUnsupported("nested jsr")
			}
			if op == opWide && insns[j].raw[1] == opRet {
				return nil, errUnsupported("wide ret")
			}
			if op == opRet {
				end = j
				break
			}
		}
		if end == -1 {
			return nil, errUnsupported("subroutine body has no ret")
		}
		lo, hi := insns[start].off, insns[end].off+insns[end].size()
		for j := start; j <= end; j++ {
			for _, t := range branchTargets(insns[j]) {
				if t < lo || t >= hi {
					return nil, errUnsupported("branch escapes subroutine body")
				}
			}
		}
		extent[start] = end
	}
	return extent, nil
}

func checkHandlerOverlap(handlers []ExceptionHandler, insns []instruction, extent map[int]int) error {
	for _, h := range handlers {
		for start, end := range extent {
			lo, hi := insns[start].off, insns[end].off+insns[end].size()
			if int(h.StartPC) < hi && int(h.EndPC) > lo {
				return errUnsupported("exception handler covers subroutine body")
			}
			if int(h.HandlerPC) >= lo && int(h.HandlerPC) < hi {
				return errUnsupported("exception handler enters subroutine body")
			}
		}
	}
	return nil
}

// cloneSubroutine copies the body nodes, turning the ret into a goto back to
// the instruction after the jsr. Intra-body branches are redirected to the
// copies; escapes were rejected earlier.
func cloneSubroutine(nodes []*inlineNode, startIdx, endIdx int, retTarget *inlineNode) []*inlineNode {
	mapping := make(map[*inlineNode]*inlineNode, endIdx-startIdx+1)
	out := make([]*inlineNode, 0, endIdx-startIdx+1)
	for j := startIdx; j <= endIdx; j++ {
		orig := nodes[j]
		var cl *inlineNode
		if orig.op == opRet {
			cl = &inlineNode{op: opGoto, origOff: -1, targets: []*inlineNode{retTarget}}
		} else {
			cl = &inlineNode{
				insn:    orig.insn,
				op:      orig.op,
				origOff: -1,
				targets: append([]*inlineNode(nil), orig.targets...),
			}
		}
		mapping[orig] = cl
		out = append(out, cl)
	}
	for _, cl := range out {
		for k, t := range cl.targets {
			if repl, ok := mapping[t]; ok {
				cl.targets[k] = repl
			}
		}
	}
	return out
}

func nodeSize(nd *inlineNode, off int) int {
	if nd.insn == nil {
		if nd.op == opAconstNull {
			return 1
		}
		return 3 // synthetic goto
	}
	if nd.op == opTableswitch || nd.op == opLookupswitch {
		// Recompute with the padding the new offset demands.
		return nd.insn.size() - switchPadding(nd.insn.off) + switchPadding(off)
	}
	return nd.insn.size()
}

func emitNode(w *writer, nd *inlineNode) error {
	rel16 := func(target *inlineNode) (uint16, error) {
		rel := target.newOff - nd.newOff
		if rel < -0x8000 || rel > 0x7FFF {
			return 0, fmt.Errorf("branch offset %d overflows 16 bits after subroutine inlining", rel)
		}
		return uint16(int16(rel)), nil
	}

	switch {
	case nd.insn == nil && nd.op == opAconstNull:
		w.u1(opAconstNull)
	case nd.insn == nil: // synthetic goto
		rel, err := rel16(nd.targets[0])
		if err != nil {
			return err
		}
		w.u1(opGoto)
		w.u2(rel)
	case isBranch16(nd.op):
		rel, err := rel16(nd.targets[0])
		if err != nil {
			return err
		}
		w.u1(nd.op)
		w.u2(rel)
	case isBranch32(nd.op):
		w.u1(nd.op)
		w.u4(uint32(int32(nd.targets[0].newOff - nd.newOff)))
	case nd.op == opTableswitch, nd.op == opLookupswitch:
		emitSwitch(w, nd)
	default:
		w.raw(nd.insn.raw)
	}
	return nil
}

// emitSwitch re-serializes a switch with padding recomputed for its new
// offset and all targets rewritten. Keys are copied from the original bytes.
func emitSwitch(w *writer, nd *inlineNode) {
	w.u1(nd.op)
	for i := 0; i < switchPadding(nd.newOff); i++ {
		w.u1(0)
	}
	rel := func(t *inlineNode) uint32 {
		return uint32(int32(t.newOff - nd.newOff))
	}
	raw := nd.insn.raw
	base := 1 + switchPadding(nd.insn.off)
	w.u4(rel(nd.targets[0])) // default
	if nd.op == opTableswitch {
		w.u4(u32(raw[base+4:])) // low
		w.u4(u32(raw[base+8:])) // high
		for _, t := range nd.targets[1:] {
			w.u4(rel(t))
		}
		return
	}
	w.u4(uint32(len(nd.targets) - 1)) // npairs
	for i, t := range nd.targets[1:] {
		w.u4(u32(raw[base+8+8*i:])) // match key
		w.u4(rel(t))
	}
}

// remapHandlers rewrites exception table offsets through the new layout. The
// original code region ends where the first instantiation begins.
func remapHandlers(code *Code, prog []*inlineNode, mainLen, totalSize int) ([]ExceptionHandler, error) {
	newOff := make(map[int]int)
	for _, nd := range prog[:mainLen] {
		if nd.origOff >= 0 {
			newOff[nd.origOff] = nd.newOff
		}
	}
	endOff := totalSize
	if mainLen < len(prog) {
		endOff = prog[mainLen].newOff
	}
	mapOff := func(off uint16, exclusiveEnd bool) (uint16, error) {
		if exclusiveEnd && int(off) == len(code.Bytes) {
			return uint16(endOff), nil
		}
		n, ok := newOff[int(off)]
		if !ok {
			return 0, fmt.Errorf("exception table offset %d is not an instruction boundary", off)
		}
		return uint16(n), nil
	}

	handlers := make([]ExceptionHandler, 0, len(code.Handlers))
	for _, h := range code.Handlers {
		start, err := mapOff(h.StartPC, false)
		if err != nil {
			return nil, err
		}
		end, err := mapOff(h.EndPC, true)
		if err != nil {
			return nil, err
		}
		hp, err := mapOff(h.HandlerPC, false)
		if err != nil {
			return nil, err
		}
		handlers = append(handlers, ExceptionHandler{StartPC: start, EndPC: end, HandlerPC: hp, CatchType: h.CatchType})
	}
	return handlers, nil
}

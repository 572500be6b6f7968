package asm

import (
	"fmt"

	"github.com/lauf-vm/lauf/internal/errors"
)

// Builder state machine (spec.md §4.1): Idle -> Building(function) ->
// BuildingBlock(block) -> Building(function) -> Finished. A Builder is
// single-use: once Finish succeeds or fails, starting a new function
// requires a fresh Builder (matching the original's reused-builder error,
// errors.EBuilderReused).
type builderState int

const (
	stateIdle builderState = iota
	stateBuildingFunction
	stateBuildingBlock
	stateFinished
)

// Builder assembles one Function's instruction stream out of named blocks,
// in the teacher's verifier.go/stack_checker.go spirit of a two-pass
// checker, adapted here to run its checks at Finish time instead of on an
// already-complete byte stream.
type Builder struct {
	mod   *Module
	fn    *Function
	state builderState

	order  []string
	blocks map[string]*blockBuilder
	cur    *blockBuilder

	labelRefs map[string][]labelRef
	funcRefs  []funcRef

	reporter *errors.Reporter
}

type blockBuilder struct {
	label     string
	sig       Signature
	insts     []Inst
	locations []DebugLocation // parallel to insts; zero value if unset
	terminated bool
}

// NewBuilder starts building fn within mod. fn must have been declared via
// Module.DeclareFunction (or freshly created) and not already defined.
func NewBuilder(mod *Module, fn *Function) *Builder {
	return &Builder{
		mod:      mod,
		fn:       fn,
		state:    stateBuildingFunction,
		blocks:   make(map[string]*blockBuilder),
		reporter: errors.NewReporter(),
	}
}

// Block declares a new basic block named label with the given entry/exit
// stack signature and enters BuildingBlock state. Declaring the same label
// twice is a build error (errors.EDuplicateBlock).
func (b *Builder) Block(label string, sig Signature) {
	if b.state != stateBuildingFunction {
		b.reporter.Report(&errors.BuildError{
			Code: errors.EBuilderReused, Function: b.fn.Name,
			Message: "Block called outside building(function) state",
		})
		return
	}
	if _, exists := b.blocks[label]; exists {
		b.reporter.Report(&errors.BuildError{
			Code: errors.EDuplicateBlock, Function: b.fn.Name, Block: label,
			Offset: -1, Message: fmt.Sprintf("block %q declared more than once", label),
		})
	}
	bb := &blockBuilder{label: label, sig: sig}
	b.blocks[label] = bb
	b.order = append(b.order, label)
	b.cur = bb
	b.state = stateBuildingBlock
}

// EndBlock closes the current block and returns to BuildingFunction state.
// The block must have been terminated by Return, Jump, Panic, or Exit.
func (b *Builder) EndBlock() {
	if b.state != stateBuildingBlock {
		return
	}
	if !b.cur.terminated {
		b.reporter.Report(&errors.BuildError{
			Code: errors.EUnbalancedBlock, Function: b.fn.Name, Block: b.cur.label,
			Offset: len(b.cur.insts), Message: "block ends without a terminating instruction",
		})
	}
	b.cur = nil
	b.state = stateBuildingFunction
}

func (b *Builder) emit(inst Inst) {
	if b.state != stateBuildingBlock {
		b.reporter.Report(&errors.BuildError{
			Code: errors.EUnbalancedBlock, Function: b.fn.Name,
			Message: "instruction emitted outside building_block(block) state",
		})
		return
	}
	if b.cur.terminated {
		b.reporter.Report(&errors.BuildError{
			Code: errors.EUnbalancedBlock, Function: b.fn.Name, Block: b.cur.label,
			Offset: len(b.cur.insts), Message: "instruction emitted after a terminator",
		})
		return
	}
	b.cur.insts = append(b.cur.insts, inst)
	b.cur.locations = append(b.cur.locations, DebugLocation{})
	if inst.Op.IsTerminator() {
		b.cur.terminated = true
	}
}

// SetLocation attaches loc to the most recently emitted instruction in the
// current block, for frontends to call right after Emit* (spec.md §6's
// debug_location).
func (b *Builder) SetLocation(loc DebugLocation) {
	if b.cur == nil || len(b.cur.locations) == 0 {
		return
	}
	b.cur.locations[len(b.cur.locations)-1] = loc
}

// Emit* convenience wrappers. Jump/Branch/Call take the target block's
// label or function and resolve it to a relative offset at Finish time.

func (b *Builder) EmitNop()        { b.emit(InstNone(OpNop)) }
func (b *Builder) EmitReturn()     { b.emit(InstNone(OpReturn)) }
func (b *Builder) EmitPanic()      { b.emit(InstNone(OpPanic)) }
func (b *Builder) EmitExit()       { b.emit(InstNone(OpExit)) }
func (b *Builder) EmitDup()        { b.emit(InstNone(OpDup)) }
func (b *Builder) EmitSwap()       { b.emit(InstNone(OpSwap)) }
func (b *Builder) EmitPopTop()     { b.emit(InstNone(OpPopTop)) }

func (b *Builder) EmitPush(value uint32)  { b.emit(InstValue(OpPush, value)) }
func (b *Builder) EmitPushN(value uint32) { b.emit(InstValue(OpPushN, value)) }
func (b *Builder) EmitPush2(value uint32) { b.emit(InstValue(OpPush2, value)) }
func (b *Builder) EmitPush3(value uint32) { b.emit(InstValue(OpPush3, value)) }
func (b *Builder) EmitGlobalAddr(idx uint32) { b.emit(InstValue(OpGlobalAddr, idx)) }
func (b *Builder) EmitLocalFree(count uint32) { b.emit(InstValue(OpLocalFree, count)) }

func (b *Builder) EmitPop(idx uint16)  { b.emit(InstStackIdx(OpPop, idx)) }
func (b *Builder) EmitPick(idx uint16) { b.emit(InstStackIdx(OpPick, idx)) }
func (b *Builder) EmitRoll(idx uint16) { b.emit(InstStackIdx(OpRoll, idx)) }

func (b *Builder) EmitLocalAddr(slot uint8, offset uint16) {
	b.emit(InstLocalAddr(OpLocalAddr, slot, offset))
}

func (b *Builder) EmitLocalAlloc(alignLog2 uint8, size uint16) {
	b.emit(InstLayout(OpLocalAlloc, alignLog2, size))
}
func (b *Builder) EmitLocalAllocAligned(alignLog2 uint8, size uint16) {
	b.emit(InstLayout(OpLocalAllocAligned, alignLog2, size))
}
func (b *Builder) EmitDerefConst(alignLog2 uint8, size uint16) {
	b.emit(InstLayout(OpDerefConst, alignLog2, size))
}
func (b *Builder) EmitDerefMut(alignLog2 uint8, size uint16) {
	b.emit(InstLayout(OpDerefMut, alignLog2, size))
}

func (b *Builder) EmitCallIndirect(sig Signature, flags uint8) {
	b.emit(InstSignature(OpCallIndirect, sig.In, sig.Out, flags))
}

// label references resolved at Finish time carry the target label and the
// instruction index holding the placeholder offset.
type labelRef struct {
	block string
	instI int
	target string
}

// funcRef records a call whose target is a sibling function, resolved
// to a function-index-relative offset at Finish time.
type funcRef struct {
	block  string
	instI  int
	target *Function
}

// EmitJump emits an unconditional jump to the block named target.
func (b *Builder) EmitJump(target string) {
	b.addLabelRef(OpJump, target)
}

func (b *Builder) EmitBranchFalse(target string) { b.addLabelRef(OpBranchFalse, target) }
func (b *Builder) EmitBranchEq(target string)    { b.addLabelRef(OpBranchEq, target) }
func (b *Builder) EmitBranchNe(target string)    { b.addLabelRef(OpBranchNe, target) }
func (b *Builder) EmitBranchLt(target string)    { b.addLabelRef(OpBranchLt, target) }
func (b *Builder) EmitBranchLe(target string)    { b.addLabelRef(OpBranchLe, target) }
func (b *Builder) EmitBranchGe(target string)    { b.addLabelRef(OpBranchGe, target) }
func (b *Builder) EmitBranchGt(target string)    { b.addLabelRef(OpBranchGt, target) }

func (b *Builder) addLabelRef(op OpCode, target string) {
	if b.state != stateBuildingBlock || b.cur.terminated {
		b.emit(InstOffset(op, 0)) // triggers the standard state-error reporting
		return
	}
	instI := len(b.cur.insts)
	b.emit(InstOffset(op, 0))
	if b.labelRefs == nil {
		b.labelRefs = make(map[string][]labelRef)
	}
	b.labelRefs[b.cur.label] = append(b.labelRefs[b.cur.label], labelRef{block: b.cur.label, instI: instI, target: target})
}

// EmitCall emits a call to target, a function in the same module.
func (b *Builder) EmitCall(target *Function) {
	if b.state != stateBuildingBlock || b.cur.terminated {
		b.emit(InstOffset(OpCall, 0))
		return
	}
	instI := len(b.cur.insts)
	b.emit(InstOffset(OpCall, 0))
	b.funcRefs = append(b.funcRefs, funcRef{block: b.cur.label, instI: instI, target: target})
}

// EmitFunctionAddr pushes the function address of target.
func (b *Builder) EmitFunctionAddr(target *Function) {
	if b.state != stateBuildingBlock {
		b.emit(InstOffset(OpFunctionAddr, 0))
		return
	}
	instI := len(b.cur.insts)
	b.emit(InstOffset(OpFunctionAddr, 0))
	b.funcRefs = append(b.funcRefs, funcRef{block: b.cur.label, instI: instI, target: target})
}

// EmitCallBuiltin emits a call_builtin to a builtin at the given registry
// offset, followed by its call_builtin_sig trailer (spec.md §6).
func (b *Builder) EmitCallBuiltin(offset int32, sig Signature, flags uint8, noProcess bool) {
	op := OpCallBuiltin
	if noProcess {
		op = OpCallBuiltinNoProcess
	}
	b.emit(InstOffset(op, offset))
	b.emit(InstSignature(OpCallBuiltinSig, sig.In, sig.Out, flags))
}

// Finish resolves every label and function reference to a concrete offset,
// lays out blocks in declaration order, runs the stack-balance verifier,
// and returns the completed Function. On any error it returns the
// multierr-joined set of every problem found (spec.md §4.1's three finish
// passes: resolve refs, verify stack balance, compute max stack sizes).
func (b *Builder) Finish() (*Function, error) {
	if b.state == stateBuildingBlock {
		b.EndBlock()
	}
	if b.state == stateFinished {
		b.reporter.Report(&errors.BuildError{
			Code: errors.EBuilderReused, Function: b.fn.Name,
			Message: "Finish called twice on the same builder",
		})
		return nil, b.reporter.Err()
	}
	b.state = stateFinished

	if len(b.order) == 0 {
		b.reporter.Report(&errors.BuildError{
			Code: errors.EUnbalancedBlock, Function: b.fn.Name,
			Message: "function has no blocks",
		})
		return nil, b.reporter.Err()
	}

	// Lay out blocks in declaration order and record each one's starting
	// instruction index, with debug locations flattened alongside.
	start := make(map[string]int, len(b.order))
	var code []Inst
	var locs []DebugLocation
	for _, label := range b.order {
		bb := b.blocks[label]
		start[label] = len(code)
		code = append(code, bb.insts...)
		locs = append(locs, bb.locations...)
	}

	// Resolve label refs (jump/branch) to instruction-stride relative
	// offsets.
	for _, refs := range b.labelRefs {
		for _, ref := range refs {
			targetStart, ok := start[ref.target]
			if !ok {
				b.reporter.Report(&errors.BuildError{
					Code: errors.EUndeclaredBlock, Function: b.fn.Name, Block: ref.block,
					Offset: ref.instI, Message: fmt.Sprintf("branch to undeclared block %q", ref.target),
				})
				continue
			}
			absIP := start[ref.block] + ref.instI
			code[absIP] = InstOffset(code[absIP].Op, int32(targetStart-(absIP+1)))
		}
	}

	// Resolve call/function_addr refs to function-index-relative offsets.
	for _, ref := range b.funcRefs {
		if ref.target == nil {
			b.reporter.Report(&errors.BuildError{
				Code: errors.EUnresolvedGlobal, Function: b.fn.Name, Block: ref.block,
				Offset: ref.instI, Message: "call to a nil function reference",
			})
			continue
		}
		absIP := start[ref.block] + ref.instI
		code[absIP] = InstOffset(code[absIP].Op, int32(ref.target.Index-b.fn.Index))
	}

	if b.reporter.HasErrors() {
		return nil, b.reporter.Err()
	}

	var blockSigs []blockSig
	for _, label := range b.order {
		blockSigs = append(blockSigs, blockSig{label: label, entry: start[label], sig: b.blocks[label].sig})
	}

	maxVstack, err := verifyStack(code, blockSigs, b.mod.Functions(), b.fn.Index)
	if err != nil {
		b.reporter.Report(&errors.BuildError{Code: errors.EStackUnderflow, Function: b.fn.Name, Offset: -1, Message: err.Error()})
		return nil, b.reporter.Err()
	}

	b.fn.Code = code
	b.fn.Declared = false
	b.fn.MaxVstack = maxVstack
	b.fn.MaxCstack = maxCstackSize(code)
	b.fn.blockOrder = append([]string(nil), b.order...)
	for i, loc := range locs {
		if loc != (DebugLocation{}) {
			b.fn.debug.Set(i, loc)
		}
	}

	return b.fn, nil
}

// maxCstackSize walks the final code linearly, tracking the running total
// of bytes reserved by local_alloc/local_alloc_aligned and released
// most-recent-first by local_free, and returns the high-water mark. This
// is a layout-order approximation of the true call-stack high water mark
// across all paths through the function's blocks (see DESIGN.md).
func maxCstackSize(code []Inst) int {
	var sizes []int
	var running, max int
	for _, inst := range code {
		switch inst.Op {
		case OpLocalAlloc, OpLocalAllocAligned:
			_, size := inst.Layout()
			sizes = append(sizes, int(size))
			running += int(size)
			if running > max {
				max = running
			}
		case OpLocalFree:
			n := int(inst.ImmValue())
			for i := 0; i < n && len(sizes) > 0; i++ {
				running -= sizes[len(sizes)-1]
				sizes = sizes[:len(sizes)-1]
			}
		}
	}
	return max
}

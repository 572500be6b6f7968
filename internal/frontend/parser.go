package frontend

import (
	"fmt"
	"strconv"

	"github.com/lauf-vm/lauf/internal/abi"
	"github.com/lauf-vm/lauf/internal/asm"
)

// Parser turns a token stream into an *asm.Module, driving an
// asm.Builder per function exactly the way a hand-written Go caller
// would: Block/EmitXxx/EndBlock/Finish. It is deliberately small — a
// convenience surface for sample programs and tests, not a competing
// source of truth for the instruction set the Builder already owns.
type Parser struct {
	tokens      []Token
	pos         int
	mod         *asm.Module
	builtins    *abi.Table
	errors      []Error
	globalNames map[string]int
}

// NewParser creates a Parser that will build into a fresh module named
// name. builtins may be nil if the source never uses call_builtin.
func NewParser(source, name string, builtins *abi.Table) *Parser {
	lx := New(source)
	tokens := lx.ScanTokens()
	p := &Parser{tokens: tokens, mod: asm.NewModule(name), builtins: builtins, globalNames: make(map[string]int)}
	for _, e := range lx.Errors() {
		p.errors = append(p.errors, e)
	}
	return p
}

func (p *Parser) Errors() []Error { return p.errors }
func (p *Parser) HasErrors() bool { return len(p.errors) > 0 }

func (p *Parser) cur() Token  { return p.tokens[p.pos] }
func (p *Parser) atEnd() bool { return p.cur().Type == EOF }

func (p *Parser) advance() Token {
	t := p.tokens[p.pos]
	if !p.atEnd() {
		p.pos++
	}
	return t
}

func (p *Parser) check(tt TokenType) bool { return p.cur().Type == tt }

func (p *Parser) errorf(format string, args ...interface{}) {
	p.errors = append(p.errors, Error{Pos: p.cur().Pos, Message: fmt.Sprintf(format, args...)})
}

func (p *Parser) expect(tt TokenType, what string) (Token, bool) {
	if !p.check(tt) {
		p.errorf("expected %s, got %s %q", what, p.cur().Type, p.cur().Literal)
		return Token{}, false
	}
	return p.advance(), true
}

func (p *Parser) expectIdent(lit string) bool {
	if p.check(IDENT) && p.cur().Literal == lit {
		p.advance()
		return true
	}
	p.errorf("expected %q, got %q", lit, p.cur().Literal)
	return false
}

func (p *Parser) isIdent(lit string) bool { return p.check(IDENT) && p.cur().Literal == lit }

// Parse consumes the whole token stream and returns the built module.
// Caller inspects Errors()/HasErrors() before trusting the result.
func (p *Parser) Parse() *asm.Module {
	if p.isIdent("module") {
		p.advance()
		if _, ok := p.expect(STRING, "module name string"); !ok {
			p.recoverToTopLevel()
		}
	}

	// First pass: declare every function so forward references (a call
	// to a function defined later in the file) resolve by name.
	declStart := p.pos
	for !p.atEnd() {
		switch {
		case p.isIdent("global"):
			p.skipGlobal()
		case p.isIdent("fn"):
			name, sig, _ := p.peekFnHeader()
			p.mod.DeclareFunction(name, sig)
			p.skipFnBody()
		default:
			p.errorf("expected 'global' or 'fn' at top level, got %q", p.cur().Literal)
			p.advance()
		}
	}

	// Second pass: actually build globals and function bodies.
	p.pos = declStart
	for !p.atEnd() {
		switch {
		case p.isIdent("global"):
			p.parseGlobal()
		case p.isIdent("fn"):
			p.parseFn()
		default:
			p.advance()
		}
	}

	return p.mod
}

func (p *Parser) recoverToTopLevel() {
	for !p.atEnd() && !p.isIdent("global") && !p.isIdent("fn") {
		p.advance()
	}
}

func (p *Parser) skipGlobal() {
	if p.isIdent("global") {
		p.advance()
	}
	for !p.atEnd() && !p.isIdent("global") && !p.isIdent("fn") {
		p.advance()
	}
}

// peekFnHeader reads "fn @name ( IN => OUT )" without consuming the body,
// restoring the cursor afterward; used by the declaration pre-pass.
func (p *Parser) peekFnHeader() (name string, sig asm.Signature, export bool) {
	save := p.pos
	p.advance() // 'fn'
	if p.check(GLOBAL) {
		name = p.advance().Literal
	}
	sig = p.parseSignature()
	if p.isIdent("export") {
		export = true
	}
	p.pos = save
	return name, sig, export
}

func (p *Parser) parseSignature() asm.Signature {
	p.expect(LPAREN, "(")
	in := p.parseNumberOrZero()
	p.expect(ARROW, "=>")
	out := p.parseNumberOrZero()
	p.expect(RPAREN, ")")
	return asm.Signature{In: uint8(in), Out: uint8(out)}
}

func (p *Parser) parseNumberOrZero() int64 {
	if !p.check(NUMBER) {
		return 0
	}
	return p.parseNumber()
}

func (p *Parser) parseNumber() int64 {
	tok, ok := p.expect(NUMBER, "number")
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(tok.Literal, 0, 64)
	if err != nil {
		p.errorf("invalid number %q: %v", tok.Literal, err)
		return 0
	}
	return n
}

// skipFnBody advances past a whole "fn ... { ... }" declaration, counting
// brace depth so nested braces (none currently, but kept for robustness)
// don't end the skip early.
func (p *Parser) skipFnBody() {
	depth := 0
	started := false
	for !p.atEnd() {
		switch p.cur().Type {
		case LBRACE:
			depth++
			started = true
		case RBRACE:
			depth--
		}
		p.advance()
		if started && depth == 0 {
			return
		}
	}
}

func (p *Parser) parseGlobal() {
	p.advance() // 'global'
	nameTok, ok := p.expect(GLOBAL, "@global name")
	if !ok {
		p.skipGlobal()
		return
	}
	mutability := "const"
	if p.isIdent("const") || p.isIdent("mut") {
		mutability = p.advance().Literal
	}

	var g *asm.Global
	switch {
	case p.isIdent("zero"):
		p.advance()
		size := p.parseNumber()
		if mutability == "mut" {
			g = p.mod.AddGlobalZeroData(uint64(size))
		} else {
			g = p.mod.AddGlobalConstData(make([]byte, size))
		}
	case p.isIdent("data"):
		p.advance()
		data := p.parseByteList()
		if mutability == "mut" {
			g = p.mod.AddGlobalMutData(data)
		} else {
			g = p.mod.AddGlobalConstData(data)
		}
	case p.check(STRING):
		str := p.advance().Literal
		data := append([]byte(str), 0)
		if mutability == "mut" {
			g = p.mod.AddGlobalMutData(data)
		} else {
			g = p.mod.AddGlobalConstData(data)
		}
	default:
		p.errorf("expected 'zero', 'data', or a string literal for global %q", nameTok.Literal)
		return
	}
	p.globalNames[nameTok.Literal] = g.Index
}

func (p *Parser) parseByteList() []byte {
	p.expect(LPAREN, "(")
	var data []byte
	for !p.check(RPAREN) && !p.atEnd() {
		data = append(data, byte(p.parseNumber()))
		if p.check(COMMA) {
			p.advance()
		}
	}
	p.expect(RPAREN, ")")
	return data
}

func (p *Parser) parseFn() {
	p.advance() // 'fn'
	nameTok, ok := p.expect(GLOBAL, "@function name")
	if !ok {
		p.skipFnBody()
		return
	}
	sig := p.parseSignature()
	export := false
	if p.isIdent("export") {
		p.advance()
		export = true
	}

	fn := p.mod.Function(nameTok.Literal)
	if fn == nil {
		fn = p.mod.DeclareFunction(nameTok.Literal, sig)
	}
	if export {
		fn.MarkExported()
	}

	b := asm.NewBuilder(p.mod, fn)
	p.expect(LBRACE, "{")
	for p.isIdent("block") {
		p.parseBlock(b)
	}
	p.expect(RBRACE, "}")

	if _, err := b.Finish(); err != nil {
		p.errorf("function %q: %v", nameTok.Literal, err)
	}
}

func (p *Parser) parseBlock(b *asm.Builder) {
	p.advance() // 'block'
	labelTok, ok := p.expect(LOCAL, "%block label")
	if !ok {
		return
	}
	sig := p.parseSignature()
	p.expect(COLON, ":")
	b.Block(labelTok.Literal, sig)

	for p.isMnemonic() {
		p.parseInstruction(b)
	}
	b.EndBlock()
}

// isMnemonic reports whether the cursor is at an instruction mnemonic
// rather than the next 'block' header or the function's closing brace.
func (p *Parser) isMnemonic() bool {
	return p.check(IDENT) && p.cur().Literal != "block"
}

func (p *Parser) parseInstruction(b *asm.Builder) {
	tok := p.advance()
	loc := DebugLocationFromPos(tok.Pos)
	b.SetLocation(loc)

	switch tok.Literal {
	case "nop":
		b.EmitNop()
	case "return":
		b.EmitReturn()
	case "panic":
		b.EmitPanic()
	case "exit":
		b.EmitExit()
	case "dup":
		b.EmitDup()
	case "swap":
		b.EmitSwap()
	case "pop_top":
		b.EmitPopTop()

	case "push":
		b.EmitPush(uint32(p.parseNumber()))
	case "pushn":
		b.EmitPushN(uint32(p.parseNumber()))
	case "push2":
		b.EmitPush2(uint32(p.parseNumber()))
	case "push3":
		b.EmitPush3(uint32(p.parseNumber()))

	case "global_addr":
		nameTok, ok := p.expect(GLOBAL, "@global")
		if !ok {
			return
		}
		idx, ok := p.globalNames[nameTok.Literal]
		if !ok {
			p.errorf("undeclared global %q", nameTok.Literal)
			return
		}
		b.EmitGlobalAddr(uint32(idx))

	case "local_free":
		b.EmitLocalFree(uint32(p.parseNumber()))

	case "pop":
		b.EmitPop(uint16(p.parseNumber()))
	case "pick":
		b.EmitPick(uint16(p.parseNumber()))
	case "roll":
		b.EmitRoll(uint16(p.parseNumber()))

	case "local_addr":
		slot := p.parseNumber()
		p.expect(COMMA, ",")
		offset := p.parseNumber()
		b.EmitLocalAddr(uint8(slot), uint16(offset))
	case "local_alloc":
		align := p.parseNumber()
		p.expect(COMMA, ",")
		size := p.parseNumber()
		b.EmitLocalAlloc(uint8(align), uint16(size))
	case "local_alloc_aligned":
		align := p.parseNumber()
		p.expect(COMMA, ",")
		size := p.parseNumber()
		b.EmitLocalAllocAligned(uint8(align), uint16(size))
	case "deref_const":
		align := p.parseNumber()
		p.expect(COMMA, ",")
		size := p.parseNumber()
		b.EmitDerefConst(uint8(align), uint16(size))
	case "deref_mut":
		align := p.parseNumber()
		p.expect(COMMA, ",")
		size := p.parseNumber()
		b.EmitDerefMut(uint8(align), uint16(size))

	case "jump":
		b.EmitJump(p.parseBlockRef())
	case "branch_false":
		b.EmitBranchFalse(p.parseBlockRef())
	case "branch_eq":
		b.EmitBranchEq(p.parseBlockRef())
	case "branch_ne":
		b.EmitBranchNe(p.parseBlockRef())
	case "branch_lt":
		b.EmitBranchLt(p.parseBlockRef())
	case "branch_le":
		b.EmitBranchLe(p.parseBlockRef())
	case "branch_ge":
		b.EmitBranchGe(p.parseBlockRef())
	case "branch_gt":
		b.EmitBranchGt(p.parseBlockRef())

	case "call":
		nameTok, ok := p.expect(GLOBAL, "@function")
		if !ok {
			return
		}
		target := p.mod.Function(nameTok.Literal)
		if target == nil {
			p.errorf("undeclared function %q", nameTok.Literal)
			return
		}
		b.EmitCall(target)
	case "function_addr":
		nameTok, ok := p.expect(GLOBAL, "@function")
		if !ok {
			return
		}
		target := p.mod.Function(nameTok.Literal)
		if target == nil {
			p.errorf("undeclared function %q", nameTok.Literal)
			return
		}
		b.EmitFunctionAddr(target)
	case "call_indirect":
		sig := p.parseSignature()
		b.EmitCallIndirect(sig, 0)

	case "call_builtin", "call_builtin_no_process":
		nameTok, ok := p.expect(IDENT, "builtin.name")
		if !ok {
			return
		}
		if p.builtins == nil {
			p.errorf("call_builtin %q used without a builtin table", nameTok.Literal)
			return
		}
		idx, ok := p.builtins.Index(nameTok.Literal)
		if !ok {
			p.errorf("unknown builtin %q", nameTok.Literal)
			return
		}
		bi := p.builtins.At(idx)
		b.EmitCallBuiltin(idx, bi.Sig, uint8(bi.Flags), tok.Literal == "call_builtin_no_process")

	default:
		p.errorf("unknown instruction mnemonic %q", tok.Literal)
	}
}

// DebugLocationFromPos converts a source Position into the debug
// location format Builder.SetLocation records.
func DebugLocationFromPos(pos Position) asm.DebugLocation {
	return asm.DebugLocation{Line: pos.Line, Column: pos.Column}
}

func (p *Parser) parseBlockRef() string {
	tok, ok := p.expect(LOCAL, "%block label")
	if !ok {
		return ""
	}
	return tok.Literal
}

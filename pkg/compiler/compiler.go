// Package compiler implements the single-pass Pratt compiler: it parses
// source text and emits bytecode directly into a chunk owned by a
// function object, with no intermediate AST. Lexical scope, upvalue
// capture, classes and control flow are all resolved during this one
// forward pass.
//
// The structure — a stack of nested compiler states (one per function
// currently being compiled) plus a stack of class contexts plus a
// Pratt precedence table driving expression parsing — follows spec §4.3,
// cross-checked where the spec is silent on an exact detail (escape
// sequences, numeric literal forms) against original_source/compiler.c
// and original_source/scanner.c. The panic-mode error recovery follows
// the teacher's pkg/vm/errors.go register: terse, structured, no
// editorializing.
package compiler

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/kristofer/tlox/pkg/chunk"
	"github.com/kristofer/tlox/pkg/gc"
	"github.com/kristofer/tlox/pkg/scanner"
	"github.com/kristofer/tlox/pkg/token"
	"github.com/kristofer/tlox/pkg/value"
)

// functionAllocSize is the nominal byte charge against the collector's
// allocation counter for a freshly created function, enough to pace
// collections sensibly without pretending to account for Go's actual
// object layout.
const functionAllocSize = 64

// FuncType distinguishes the kinds of function body a funcState compiles,
// since each allows slightly different statements (top-level code cannot
// return a value; an initializer cannot return one at all).
type FuncType int

const (
	TypeScript FuncType = iota
	TypeFunction
	TypeMethod
	TypeInitializer
)

const maxLocals = 256
const maxUpvalues = 256
const maxParameters = 255

// local is one entry in a funcState's local-variable array. Depth is -1
// until the local's initializer has finished running, so that `var x = x;`
// can be diagnosed as reading an uninitialized variable.
type local struct {
	name     string
	depth    int
	captured bool
}

type upvalueRef struct {
	index   int
	isLocal bool
}

// loopBlock tracks one enclosing loop's patch sites: break jumps patched
// to the loop's exit once the loop finishes compiling, and the bytecode
// offset continue loops back to. This is the spec's preferred alternative
// (§9 "memmem" note) to scanning emitted bytes for 0xFFFF placeholders.
type loopBlock struct {
	start      int
	scopeDepth int
	breakJumps []int
	enclosing  *loopBlock
}

// funcState is one nested compiler context: the function currently being
// emitted into, its locals, its captured upvalues, and its innermost loop.
type funcState struct {
	enclosing  *funcState
	function   *chunk.Function
	funcType   FuncType
	locals     []local
	scopeDepth int
	upvalues   []upvalueRef
	loop       *loopBlock
}

// classState tracks whether the class currently being compiled has a
// superclass, which `super` resolution needs to validate.
type classState struct {
	enclosing     *classState
	hasSuperclass bool
}

// Compiler is a single compilation of one source text. Create one per
// compile; it is not reused across inputs (the VM owns REPL-session
// persistence at the global/table layer, not here).
type Compiler struct {
	sc        *scanner.Scanner
	current   token.Token
	previous  token.Token
	hadError  bool
	panicMode bool

	fs *funcState
	cs *classState

	intern    func(string) *value.ObjString
	collector *gc.Collector

	removeRoot func()
}

// New creates a Compiler over source. intern must return the canonical,
// interned ObjString for its argument (see pkg/vm's string table), so
// that string constants participate in identity equality like any other
// runtime string. collector (may be nil, e.g. in isolated tests) receives
// this compiler's in-flight functions as GC roots for the duration of
// Compile.
func New(source string, collector *gc.Collector, intern func(string) *value.ObjString) *Compiler {
	c := &Compiler{sc: scanner.New(source), intern: intern, collector: collector}
	if collector != nil {
		c.removeRoot = collector.AddRootSource(c.markRoots)
	}
	return c
}

// newFunction allocates a function and, when a collector is attached,
// charges and enrolls it immediately: a function compiling right now is
// already reachable (the enclosing funcState chain is a GC root), so
// there is no deferred-enrollment window to exploit here the way there
// is for runtime allocations.
func (c *Compiler) newFunction() *chunk.Function {
	fn := chunk.NewFunction()
	if c.collector != nil {
		c.collector.Register(fn, functionAllocSize)
	}
	return fn
}

func (c *Compiler) markRoots(mark func(value.Obj)) {
	for fs := c.fs; fs != nil; fs = fs.enclosing {
		if fs.function != nil {
			mark(fs.function)
		}
	}
}

// Compile parses the whole token stream as top-level code and returns the
// resulting function. ok is false if any compile error occurred, in which
// case the function should be discarded.
func (c *Compiler) Compile() (fn *chunk.Function, ok bool) {
	if c.removeRoot != nil {
		defer c.removeRoot()
	}

	c.fs = &funcState{funcType: TypeScript, function: c.newFunction()}
	c.fs.locals = append(c.fs.locals, local{name: "", depth: 0})

	c.advance()
	for !c.match(token.EOF) {
		c.declaration()
	}

	fn, _ = c.endCompiler()
	return fn, !c.hadError
}

// --- token stream plumbing ---

func (c *Compiler) advance() {
	c.previous = c.current
	for {
		c.current = c.sc.Next()
		if c.current.Kind != token.ERROR {
			break
		}
		c.errorAtCurrent(c.current.Lexeme)
	}
}

func (c *Compiler) check(k token.Kind) bool { return c.current.Kind == k }

func (c *Compiler) match(k token.Kind) bool {
	if !c.check(k) {
		return false
	}
	c.advance()
	return true
}

func (c *Compiler) consume(k token.Kind, msg string) {
	if c.current.Kind == k {
		c.advance()
		return
	}
	c.errorAtCurrent(msg)
}

func (c *Compiler) errorAtCurrent(msg string) { c.errorAt(c.current, msg) }
func (c *Compiler) error(msg string)          { c.errorAt(c.previous, msg) }

func (c *Compiler) errorAt(tok token.Token, msg string) {
	if c.panicMode {
		return
	}
	c.panicMode = true
	c.hadError = true
	lexeme := tok.Lexeme
	if tok.Kind == token.EOF {
		lexeme = "end"
	}
	fmt.Fprintf(os.Stderr, "[line %d] error at '%s': %s\n", tok.Line, lexeme, msg)
}

func (c *Compiler) synchronize() {
	c.panicMode = false
	for c.current.Kind != token.EOF {
		if c.previous.Kind == token.SEMI {
			return
		}
		switch c.current.Kind {
		case token.CLASS, token.FUN, token.VAR, token.FOR, token.IF, token.WHILE, token.PRINT, token.RETURN:
			return
		}
		c.advance()
	}
}

// --- bytecode emission ---

func (c *Compiler) curChunk() *chunk.Chunk { return c.fs.function.Chunk }

func (c *Compiler) emitByte(b byte) {
	c.curChunk().Write(b, c.previous.Line)
}

func (c *Compiler) emitOp(op chunk.OpCode) { c.emitByte(byte(op)) }

func (c *Compiler) emitOpByte(op chunk.OpCode, operand int) {
	c.emitByte(byte(op))
	c.emitByte(byte(operand))
}

func (c *Compiler) emitConstant(v value.Value) {
	idx := c.makeConstant(v)
	c.emitOpByte(chunk.OpConstant, idx)
}

func (c *Compiler) makeConstant(v value.Value) int {
	idx := c.curChunk().AddConstant(v)
	if idx < 0 {
		c.error("Too many constants in one chunk.")
		return 0
	}
	return idx
}

// emitJump emits op followed by a two-byte placeholder and returns the
// offset of the placeholder's first byte, to be fixed up by patchJump.
func (c *Compiler) emitJump(op chunk.OpCode) int {
	c.emitOp(op)
	c.emitByte(0xFF)
	c.emitByte(0xFF)
	return len(c.curChunk().Code) - 2
}

func (c *Compiler) patchJump(offset int) {
	jump := len(c.curChunk().Code) - offset - 2
	if jump > chunk.MaxJump {
		c.error("Too much code to jump over.")
		return
	}
	c.curChunk().Code[offset] = byte((jump >> 8) & 0xFF)
	c.curChunk().Code[offset+1] = byte(jump & 0xFF)
}

func (c *Compiler) emitLoop(loopStart int) {
	c.emitOp(chunk.OpLoop)
	offset := len(c.curChunk().Code) - loopStart + 2
	if offset > chunk.MaxJump {
		c.error("Loop body too large.")
		return
	}
	c.emitByte(byte((offset >> 8) & 0xFF))
	c.emitByte(byte(offset & 0xFF))
}

func (c *Compiler) emitReturn() {
	if c.fs.funcType == TypeInitializer {
		c.emitOpByte(chunk.OpGetLocal, 0)
	} else {
		c.emitOp(chunk.OpNil)
	}
	c.emitOp(chunk.OpReturn)
}

// endCompiler finishes the current funcState, returning its function and
// the upvalue descriptors its enclosing compiler must emit alongside
// OP_CLOSURE.
func (c *Compiler) endCompiler() (*chunk.Function, []upvalueRef) {
	c.emitReturn()
	fn := c.fs.function
	upvalues := c.fs.upvalues
	c.fs = c.fs.enclosing
	return fn, upvalues
}

// --- scopes and locals ---

func (c *Compiler) beginScope() { c.fs.scopeDepth++ }

func (c *Compiler) endScope() {
	c.fs.scopeDepth--
	for len(c.fs.locals) > 0 && c.fs.locals[len(c.fs.locals)-1].depth > c.fs.scopeDepth {
		if c.fs.locals[len(c.fs.locals)-1].captured {
			c.emitOp(chunk.OpCloseUpvalue)
		} else {
			c.emitOp(chunk.OpPop)
		}
		c.fs.locals = c.fs.locals[:len(c.fs.locals)-1]
	}
}

// popLocalsTo emits the close/pop sequence endScope would emit for every
// local declared deeper than depth, without removing them from the
// funcState — used by break/continue, which jump out of a scope that code
// after them still needs intact.
func (c *Compiler) popLocalsTo(depth int) {
	for i := len(c.fs.locals) - 1; i >= 0 && c.fs.locals[i].depth > depth; i-- {
		if c.fs.locals[i].captured {
			c.emitOp(chunk.OpCloseUpvalue)
		} else {
			c.emitOp(chunk.OpPop)
		}
	}
}

func (c *Compiler) addLocal(name string) {
	if len(c.fs.locals) >= maxLocals {
		c.error("Too many local variables in function.")
		return
	}
	c.fs.locals = append(c.fs.locals, local{name: name, depth: -1})
}

func (c *Compiler) declareVariable() {
	if c.fs.scopeDepth == 0 {
		return
	}
	name := c.previous.Lexeme
	for i := len(c.fs.locals) - 1; i >= 0; i-- {
		l := c.fs.locals[i]
		if l.depth != -1 && l.depth < c.fs.scopeDepth {
			break
		}
		if l.name == name {
			c.error("Already a variable with this name in this scope.")
		}
	}
	c.addLocal(name)
}

func (c *Compiler) markInitialized() {
	if c.fs.scopeDepth == 0 {
		return
	}
	c.fs.locals[len(c.fs.locals)-1].depth = c.fs.scopeDepth
}

func (c *Compiler) parseVariable(msg string) int {
	c.consume(token.IDENTIFIER, msg)
	c.declareVariable()
	if c.fs.scopeDepth > 0 {
		return 0
	}
	return c.identifierConstant(c.previous.Lexeme)
}

func (c *Compiler) defineVariable(global int) {
	if c.fs.scopeDepth > 0 {
		c.markInitialized()
		return
	}
	c.emitOpByte(chunk.OpDefineGlobal, global)
}

func (c *Compiler) identifierConstant(name string) int {
	return c.makeConstant(value.ObjValue(c.intern(name)))
}

func resolveLocal(fs *funcState, name string) (int, bool) {
	for i := len(fs.locals) - 1; i >= 0; i-- {
		if fs.locals[i].name == name {
			return i, true
		}
	}
	return -1, false
}

func (c *Compiler) resolveLocalErr(fs *funcState, name string) (int, bool) {
	idx, ok := resolveLocal(fs, name)
	if ok && fs.locals[idx].depth == -1 {
		c.error("Can't read local variable in its own initializer.")
	}
	return idx, ok
}

func (c *Compiler) addUpvalue(fs *funcState, index int, isLocal bool) int {
	for i, u := range fs.upvalues {
		if u.index == index && u.isLocal == isLocal {
			return i
		}
	}
	if len(fs.upvalues) >= maxUpvalues {
		c.error("Too many closure variables in function.")
		return 0
	}
	fs.upvalues = append(fs.upvalues, upvalueRef{index: index, isLocal: isLocal})
	fs.function.UpvalueCount = len(fs.upvalues)
	return len(fs.upvalues) - 1
}

func (c *Compiler) resolveUpvalue(fs *funcState, name string) (int, bool) {
	if fs.enclosing == nil {
		return -1, false
	}
	if idx, ok := c.resolveLocalErr(fs.enclosing, name); ok {
		fs.enclosing.locals[idx].captured = true
		return c.addUpvalue(fs, idx, true), true
	}
	if idx, ok := c.resolveUpvalue(fs.enclosing, name); ok {
		return c.addUpvalue(fs, idx, false), true
	}
	return -1, false
}

func (c *Compiler) namedVariable(name string, canAssign bool) {
	var getOp, setOp chunk.OpCode
	arg, ok := c.resolveLocalErr(c.fs, name)
	if ok {
		getOp, setOp = chunk.OpGetLocal, chunk.OpSetLocal
	} else if arg, ok = c.resolveUpvalue(c.fs, name); ok {
		getOp, setOp = chunk.OpGetUpvalue, chunk.OpSetUpvalue
	} else {
		arg = c.identifierConstant(name)
		getOp, setOp = chunk.OpGetGlobal, chunk.OpSetGlobal
	}

	if canAssign && c.match(token.EQUAL) {
		c.expression()
		c.emitOpByte(setOp, arg)
	} else {
		c.emitOpByte(getOp, arg)
	}
}

// --- declarations and statements ---

func (c *Compiler) declaration() {
	switch {
	case c.match(token.CLASS):
		c.classDeclaration()
	case c.match(token.FUN):
		c.funDeclaration()
	case c.match(token.VAR):
		c.varDeclaration()
	default:
		c.statement()
	}
	if c.panicMode {
		c.synchronize()
	}
}

func (c *Compiler) classDeclaration() {
	c.consume(token.IDENTIFIER, "Expect class name.")
	className := c.previous.Lexeme
	nameConstant := c.identifierConstant(className)
	c.declareVariable()

	c.emitOpByte(chunk.OpClass, nameConstant)
	c.defineVariable(nameConstant)

	cs := &classState{enclosing: c.cs}
	c.cs = cs

	if c.match(token.LESS) {
		c.consume(token.IDENTIFIER, "Expect superclass name.")
		c.variable(false)
		if c.previous.Lexeme == className {
			c.error("A class cannot inherit from itself.")
		}

		c.beginScope()
		c.addLocal("super")
		c.markInitialized()

		c.namedVariable(className, false)
		c.emitOp(chunk.OpInherit)
		cs.hasSuperclass = true
	}

	c.namedVariable(className, false)
	c.consume(token.LBRACE, "Expect '{' before class body.")
	for !c.check(token.RBRACE) && !c.check(token.EOF) {
		c.method()
	}
	c.consume(token.RBRACE, "Expect '}' after class body.")
	c.emitOp(chunk.OpPop)

	if cs.hasSuperclass {
		c.endScope()
	}
	c.cs = cs.enclosing
}

func (c *Compiler) method() {
	c.consume(token.IDENTIFIER, "Expect method name.")
	name := c.previous.Lexeme
	constant := c.identifierConstant(name)

	ftype := TypeMethod
	if name == "init" {
		ftype = TypeInitializer
	}
	c.function(ftype)
	c.emitOpByte(chunk.OpMethod, constant)
}

func (c *Compiler) funDeclaration() {
	global := c.parseVariable("Expect function name.")
	c.markInitialized()
	c.function(TypeFunction)
	c.defineVariable(global)
}

func (c *Compiler) function(ftype FuncType) {
	fs := &funcState{enclosing: c.fs, funcType: ftype, function: c.newFunction()}
	c.fs = fs
	if ftype != TypeScript {
		fs.function.Name = c.intern(c.previous.Lexeme)
	}

	if ftype == TypeMethod || ftype == TypeInitializer {
		c.fs.locals = append(c.fs.locals, local{name: "this", depth: 0})
	} else {
		c.fs.locals = append(c.fs.locals, local{name: "", depth: 0})
	}

	c.beginScope()
	c.consume(token.LPAREN, "Expect '(' after function name.")
	if !c.check(token.RPAREN) {
		for {
			c.fs.function.Arity++
			if c.fs.function.Arity > maxParameters {
				c.errorAtCurrent("Can't have more than 255 parameters.")
			}
			constant := c.parseVariable("Expect parameter name.")
			c.defineVariable(constant)
			if !c.match(token.COMMA) {
				break
			}
		}
	}
	c.consume(token.RPAREN, "Expect ')' after parameters.")
	c.consume(token.LBRACE, "Expect '{' before function body.")
	c.block()

	fn, upvalues := c.endCompiler()
	idx := c.makeConstant(value.ObjValue(fn))
	c.emitOpByte(chunk.OpClosure, idx)
	for _, uv := range upvalues {
		if uv.isLocal {
			c.emitByte(1)
		} else {
			c.emitByte(0)
		}
		c.emitByte(byte(uv.index))
	}
}

func (c *Compiler) varDeclaration() {
	global := c.parseVariable("Expect variable name.")
	if c.match(token.EQUAL) {
		c.expression()
	} else {
		c.emitOp(chunk.OpNil)
	}
	c.consume(token.SEMI, "Expect ';' after variable declaration.")
	c.defineVariable(global)
}

func (c *Compiler) statement() {
	switch {
	case c.match(token.PRINT):
		c.printStatement()
	case c.match(token.IF):
		c.ifStatement()
	case c.match(token.RETURN):
		c.returnStatement()
	case c.match(token.WHILE):
		c.whileStatement()
	case c.match(token.FOR):
		c.forStatement()
	case c.match(token.BREAK):
		c.breakStatement()
	case c.match(token.CONTINUE):
		c.continueStatement()
	case c.match(token.LBRACE):
		c.beginScope()
		c.block()
		c.endScope()
	default:
		c.expressionStatement()
	}
}

func (c *Compiler) block() {
	for !c.check(token.RBRACE) && !c.check(token.EOF) {
		c.declaration()
	}
	c.consume(token.RBRACE, "Expect '}' after block.")
}

func (c *Compiler) printStatement() {
	c.expression()
	c.consume(token.SEMI, "Expect ';' after value.")
	c.emitOp(chunk.OpPrint)
}

func (c *Compiler) expressionStatement() {
	c.expression()
	c.consume(token.SEMI, "Expect ';' after expression.")
	c.emitOp(chunk.OpPop)
}

func (c *Compiler) returnStatement() {
	if c.fs.funcType == TypeScript {
		c.error("Can't return from top-level code.")
	}
	if c.match(token.SEMI) {
		c.emitReturn()
		return
	}
	if c.fs.funcType == TypeInitializer {
		c.error("Can't return a value from an initializer.")
	}
	c.expression()
	c.consume(token.SEMI, "Expect ';' after return value.")
	c.emitOp(chunk.OpReturn)
}

func (c *Compiler) ifStatement() {
	c.consume(token.LPAREN, "Expect '(' after 'if'.")
	c.expression()
	c.consume(token.RPAREN, "Expect ')' after condition.")

	thenJump := c.emitJump(chunk.OpJumpIfFalse)
	c.emitOp(chunk.OpPop)
	c.statement()

	elseJump := c.emitJump(chunk.OpJump)
	c.patchJump(thenJump)
	c.emitOp(chunk.OpPop)

	if c.match(token.ELSE) {
		c.statement()
	}
	c.patchJump(elseJump)
}

func (c *Compiler) whileStatement() {
	lb := &loopBlock{start: len(c.curChunk().Code), scopeDepth: c.fs.scopeDepth, enclosing: c.fs.loop}
	c.fs.loop = lb

	c.consume(token.LPAREN, "Expect '(' after 'while'.")
	c.expression()
	c.consume(token.RPAREN, "Expect ')' after condition.")

	exitJump := c.emitJump(chunk.OpJumpIfFalse)
	c.emitOp(chunk.OpPop)
	c.statement()
	c.emitLoop(lb.start)

	c.patchJump(exitJump)
	c.emitOp(chunk.OpPop)

	for _, j := range lb.breakJumps {
		c.patchJump(j)
	}
	c.fs.loop = lb.enclosing
}

func (c *Compiler) forStatement() {
	c.beginScope()
	c.consume(token.LPAREN, "Expect '(' after 'for'.")

	switch {
	case c.match(token.SEMI):
		// no initializer
	case c.match(token.VAR):
		c.varDeclaration()
	default:
		c.expressionStatement()
	}

	lb := &loopBlock{start: len(c.curChunk().Code), scopeDepth: c.fs.scopeDepth, enclosing: c.fs.loop}
	c.fs.loop = lb

	exitJump := -1
	if !c.match(token.SEMI) {
		c.expression()
		c.consume(token.SEMI, "Expect ';' after loop condition.")
		exitJump = c.emitJump(chunk.OpJumpIfFalse)
		c.emitOp(chunk.OpPop)
	}

	if !c.check(token.RPAREN) {
		bodyJump := c.emitJump(chunk.OpJump)
		incrementStart := len(c.curChunk().Code)
		c.expression()
		c.emitOp(chunk.OpPop)
		c.consume(token.RPAREN, "Expect ')' after for clauses.")

		c.emitLoop(lb.start)
		lb.start = incrementStart
		c.patchJump(bodyJump)
	} else {
		c.consume(token.RPAREN, "Expect ')' after for clauses.")
	}

	c.statement()
	c.emitLoop(lb.start)

	if exitJump != -1 {
		c.patchJump(exitJump)
		c.emitOp(chunk.OpPop)
	}
	for _, j := range lb.breakJumps {
		c.patchJump(j)
	}
	c.fs.loop = lb.enclosing
	c.endScope()
}

func (c *Compiler) breakStatement() {
	if c.fs.loop == nil {
		c.error("Can't use 'break' outside of a loop.")
		c.consume(token.SEMI, "Expect ';' after 'break'.")
		return
	}
	c.consume(token.SEMI, "Expect ';' after 'break'.")
	c.popLocalsTo(c.fs.loop.scopeDepth)
	j := c.emitJump(chunk.OpJump)
	c.fs.loop.breakJumps = append(c.fs.loop.breakJumps, j)
}

func (c *Compiler) continueStatement() {
	if c.fs.loop == nil {
		c.error("Can't use 'continue' outside of a loop.")
		c.consume(token.SEMI, "Expect ';' after 'continue'.")
		return
	}
	c.consume(token.SEMI, "Expect ';' after 'continue'.")
	c.popLocalsTo(c.fs.loop.scopeDepth)
	c.emitLoop(c.fs.loop.start)
}

// --- Pratt expression parsing ---

type precedence int

const (
	precNone precedence = iota
	precAssignment
	precOr
	precAnd
	precEquality
	precComparison
	precTerm
	precFactor
	precUnary
	precCall
	precPrimary
)

type parseFn func(canAssign bool)

type parseRule struct {
	prefix     parseFn
	infix      parseFn
	precedence precedence
}

func (c *Compiler) rule(k token.Kind) parseRule {
	switch k {
	case token.LPAREN:
		return parseRule{c.grouping, c.call, precCall}
	case token.DOT:
		return parseRule{nil, c.dot, precCall}
	case token.LBRACKET:
		return parseRule{nil, c.index, precCall}
	case token.MINUS:
		return parseRule{c.unary, c.binary, precTerm}
	case token.PLUS:
		return parseRule{nil, c.binary, precTerm}
	case token.SLASH:
		return parseRule{nil, c.binary, precFactor}
	case token.STAR:
		return parseRule{nil, c.binary, precFactor}
	case token.PERCENT:
		return parseRule{nil, c.binary, precFactor}
	case token.SHL:
		return parseRule{nil, c.binary, precTerm}
	case token.SHR:
		return parseRule{nil, c.binary, precTerm}
	case token.BANG:
		return parseRule{c.unary, nil, precNone}
	case token.BANG_EQUAL:
		return parseRule{nil, c.binary, precEquality}
	case token.EQUAL_EQUAL:
		return parseRule{nil, c.binary, precEquality}
	case token.GREATER:
		return parseRule{nil, c.binary, precComparison}
	case token.GREATER_EQUAL:
		return parseRule{nil, c.binary, precComparison}
	case token.LESS:
		return parseRule{nil, c.binary, precComparison}
	case token.LESS_EQUAL:
		return parseRule{nil, c.binary, precComparison}
	case token.IDENTIFIER:
		return parseRule{c.variable, nil, precNone}
	case token.STRING:
		return parseRule{c.stringLiteral, nil, precNone}
	case token.NUMBER:
		return parseRule{c.number, nil, precNone}
	case token.AND:
		return parseRule{nil, c.and, precAnd}
	case token.OR:
		return parseRule{nil, c.or, precOr}
	case token.FALSE:
		return parseRule{c.literal, nil, precNone}
	case token.TRUE:
		return parseRule{c.literal, nil, precNone}
	case token.NIL:
		return parseRule{c.literal, nil, precNone}
	case token.THIS:
		return parseRule{c.this_, nil, precNone}
	case token.SUPER:
		return parseRule{c.super_, nil, precNone}
	default:
		return parseRule{nil, nil, precNone}
	}
}

func (c *Compiler) expression() {
	c.parsePrecedence(precAssignment)
}

func (c *Compiler) parsePrecedence(prec precedence) {
	c.advance()
	prefix := c.rule(c.previous.Kind).prefix
	if prefix == nil {
		c.error("Expect expression.")
		return
	}

	canAssign := prec <= precAssignment
	prefix(canAssign)

	for prec <= c.rule(c.current.Kind).precedence {
		c.advance()
		infix := c.rule(c.previous.Kind).infix
		infix(canAssign)
	}

	if canAssign && c.match(token.EQUAL) {
		c.error("Invalid assignment target.")
	}
}

func (c *Compiler) grouping(bool) {
	c.expression()
	c.consume(token.RPAREN, "Expect ')' after expression.")
}

func (c *Compiler) number(bool) {
	c.emitConstant(value.NumberValue(parseNumber(c.previous.Lexeme)))
}

func parseNumber(lexeme string) float64 {
	if strings.HasPrefix(lexeme, "0x") || strings.HasPrefix(lexeme, "0X") {
		n, _ := strconv.ParseInt(lexeme[2:], 16, 64)
		return float64(n)
	}
	if strings.HasPrefix(lexeme, "0b") || strings.HasPrefix(lexeme, "0B") {
		n, _ := strconv.ParseUint(lexeme[2:], 2, 32)
		return float64(n)
	}
	n, _ := strconv.ParseFloat(lexeme, 64)
	return n
}

func (c *Compiler) stringLiteral(bool) {
	s := scanner.Unescape(c.previous.Lexeme)
	c.emitConstant(value.ObjValue(c.intern(s)))
}

func (c *Compiler) literal(bool) {
	switch c.previous.Kind {
	case token.FALSE:
		c.emitOp(chunk.OpFalse)
	case token.TRUE:
		c.emitOp(chunk.OpTrue)
	case token.NIL:
		c.emitOp(chunk.OpNil)
	}
}

func (c *Compiler) variable(canAssign bool) {
	c.namedVariable(c.previous.Lexeme, canAssign)
}

func (c *Compiler) this_(bool) {
	if c.cs == nil {
		c.error("Can't use 'this' outside of a class.")
		return
	}
	c.namedVariable("this", false)
}

func (c *Compiler) super_(bool) {
	if c.cs == nil {
		c.error("Can't use 'super' outside of a class.")
	} else if !c.cs.hasSuperclass {
		c.error("Can't use 'super' in a class with no superclass.")
	}

	c.consume(token.DOT, "Expect '.' after 'super'.")
	c.consume(token.IDENTIFIER, "Expect superclass method name.")
	name := c.identifierConstant(c.previous.Lexeme)

	c.namedVariable("this", false)
	if c.match(token.LPAREN) {
		argc := c.argumentList()
		c.namedVariable("super", false)
		c.emitOpByte(chunk.OpSuperInvoke, name)
		c.emitByte(byte(argc))
	} else {
		c.namedVariable("super", false)
		c.emitOpByte(chunk.OpGetSuper, name)
	}
}

func (c *Compiler) unary(bool) {
	opKind := c.previous.Kind
	c.parsePrecedence(precUnary)
	switch opKind {
	case token.MINUS:
		c.emitOp(chunk.OpNegate)
	case token.BANG:
		c.emitOp(chunk.OpNot)
	}
}

func (c *Compiler) binary(bool) {
	opKind := c.previous.Kind
	r := c.rule(opKind)
	c.parsePrecedence(r.precedence + 1)

	switch opKind {
	case token.PLUS:
		c.emitOp(chunk.OpAdd)
	case token.MINUS:
		c.emitOp(chunk.OpSubtract)
	case token.STAR:
		c.emitOp(chunk.OpMultiply)
	case token.SLASH:
		c.emitOp(chunk.OpDivide)
	case token.PERCENT:
		c.emitOp(chunk.OpMod)
	case token.SHL:
		c.emitOp(chunk.OpShl)
	case token.SHR:
		c.emitOp(chunk.OpShr)
	case token.EQUAL_EQUAL:
		c.emitOp(chunk.OpEqual)
	case token.BANG_EQUAL:
		c.emitOp(chunk.OpEqual)
		c.emitOp(chunk.OpNot)
	case token.LESS:
		c.emitOp(chunk.OpLess)
	case token.GREATER:
		c.emitOp(chunk.OpGreater)
	case token.LESS_EQUAL:
		c.emitOp(chunk.OpGreater)
		c.emitOp(chunk.OpNot)
	case token.GREATER_EQUAL:
		c.emitOp(chunk.OpLess)
		c.emitOp(chunk.OpNot)
	}
}

func (c *Compiler) and(bool) {
	endJump := c.emitJump(chunk.OpJumpIfFalse)
	c.emitOp(chunk.OpPop)
	c.parsePrecedence(precAnd)
	c.patchJump(endJump)
}

func (c *Compiler) or(bool) {
	endJump := c.emitJump(chunk.OpJumpIfTrue)
	c.emitOp(chunk.OpPop)
	c.parsePrecedence(precOr)
	c.patchJump(endJump)
}

func (c *Compiler) call(bool) {
	argc := c.argumentList()
	c.emitOpByte(chunk.OpCall, argc)
}

func (c *Compiler) argumentList() int {
	argc := 0
	if !c.check(token.RPAREN) {
		for {
			c.expression()
			if argc == 255 {
				c.error("Can't have more than 255 arguments.")
			}
			argc++
			if !c.match(token.COMMA) {
				break
			}
		}
	}
	c.consume(token.RPAREN, "Expect ')' after arguments.")
	return argc
}

func (c *Compiler) dot(canAssign bool) {
	c.consume(token.IDENTIFIER, "Expect property name after '.'.")
	name := c.identifierConstant(c.previous.Lexeme)

	switch {
	case canAssign && c.match(token.EQUAL):
		c.expression()
		c.emitOpByte(chunk.OpSetProperty, name)
	case c.match(token.LPAREN):
		argc := c.argumentList()
		c.emitOpByte(chunk.OpInvoke, name)
		c.emitByte(byte(argc))
	default:
		c.emitOpByte(chunk.OpGetProperty, name)
	}
}

func (c *Compiler) index(canAssign bool) {
	c.expression()
	c.consume(token.RBRACKET, "Expect ']' after index.")
	if canAssign && c.match(token.EQUAL) {
		c.expression()
		c.emitOp(chunk.OpTableSet)
	} else {
		c.emitOp(chunk.OpTableGet)
	}
}

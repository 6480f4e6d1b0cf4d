package wasmbin

const (
	opUnreach  = 0x00
	opBlock    = 0x02
	opLoop     = 0x03
	opIf       = 0x04
	opEnd      = 0x0B
	opBr       = 0x0C
	opBrIf     = 0x0D
	opCall     = 0x10
	opLocalGet = 0x20
	opLocalSet = 0x21
	opLocalTee = 0x22
	opGlobGet  = 0x23
	opGlobSet  = 0x24
	opLoad8U   = 0x2D
	opStore8   = 0x3A
	opI32Const = 0x41
	opI32Eqz   = 0x45
	opI32GeU   = 0x4F
	opI32LeU   = 0x4D
	opI32Add   = 0x6A
	opI32Sub   = 0x6B
	opI32And   = 0x71

	blockEmpty = 0x40
)

// Expr is a function body under construction. Methods return the receiver
// so bodies read as instruction sequences.
type Expr struct {
	buf Buffer
}

// Code starts an empty function body.
func Code() *Expr {
	return &Expr{}
}

func (e *Expr) op(b byte) *Expr {
	e.buf.AppendByte(b)
	return e
}

func (e *Expr) idx(b byte, i uint32) *Expr {
	e.buf.AppendByte(b)
	e.buf.WriteU32(i)
	return e
}

func (e *Expr) LocalGet(i uint32) *Expr  { return e.idx(opLocalGet, i) }
func (e *Expr) LocalSet(i uint32) *Expr  { return e.idx(opLocalSet, i) }
func (e *Expr) LocalTee(i uint32) *Expr  { return e.idx(opLocalTee, i) }
func (e *Expr) GlobalGet(i uint32) *Expr { return e.idx(opGlobGet, i) }
func (e *Expr) GlobalSet(i uint32) *Expr { return e.idx(opGlobSet, i) }
func (e *Expr) Call(i uint32) *Expr      { return e.idx(opCall, i) }
func (e *Expr) Br(depth uint32) *Expr    { return e.idx(opBr, depth) }
func (e *Expr) BrIf(depth uint32) *Expr  { return e.idx(opBrIf, depth) }

func (e *Expr) I32Const(v int32) *Expr {
	e.buf.AppendByte(opI32Const)
	e.buf.WriteI32(v)
	return e
}

// Load8U is i32.load8_u with alignment 0 and offset 0.
func (e *Expr) Load8U() *Expr {
	return e.op(opLoad8U).op(0).op(0)
}

// Store8 is i32.store8 with alignment 0 and offset 0.
func (e *Expr) Store8() *Expr {
	return e.op(opStore8).op(0).op(0)
}

func (e *Expr) Block() *Expr { return e.op(opBlock).op(blockEmpty) }
func (e *Expr) Loop() *Expr  { return e.op(opLoop).op(blockEmpty) }
func (e *Expr) If() *Expr    { return e.op(opIf).op(blockEmpty) }
func (e *Expr) End() *Expr   { return e.op(opEnd) }

// Unreachable traps.
func (e *Expr) Unreachable() *Expr { return e.op(opUnreach) }

func (e *Expr) I32Eqz() *Expr { return e.op(opI32Eqz) }
func (e *Expr) I32GeU() *Expr { return e.op(opI32GeU) }
func (e *Expr) I32LeU() *Expr { return e.op(opI32LeU) }
func (e *Expr) I32Add() *Expr { return e.op(opI32Add) }
func (e *Expr) I32Sub() *Expr { return e.op(opI32Sub) }
func (e *Expr) I32And() *Expr { return e.op(opI32And) }

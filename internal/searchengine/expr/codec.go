package expr

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrMalformedPredicate is returned by Decode when the byte slice does
// not describe a well-formed expression tree.
var ErrMalformedPredicate = errors.New("expr: malformed predicate bytes")

// Encoder serializes expression trees to the self-describing depth-first
// binary form: every node starts with a one-byte tag, multi-byte
// integers are little-endian, and strings are length-prefixed (u32 LE)
// UTF-8. There is no framing header — callers pass the slice and its
// length together.
type Encoder struct {
	buf *bytes.Buffer
}

func NewEncoder() *Encoder {
	return &Encoder{buf: new(bytes.Buffer)}
}

// Encode serializes n to bytes.
func (e *Encoder) Encode(n Node) ([]byte, error) {
	e.buf.Reset()
	if err := e.encodeNode(n); err != nil {
		return nil, err
	}
	return e.buf.Bytes(), nil
}

// Encode is a convenience wrapper around a fresh Encoder.
func Encode(n Node) ([]byte, error) {
	return NewEncoder().Encode(n)
}

func (e *Encoder) encodeNode(n Node) error {
	switch v := n.(type) {
	case *Const:
		return e.encodeConst(v)
	case *Field:
		return e.encodeField(v)
	case *BinaryOp:
		return e.encodeBinaryOp(v)
	case *UnaryOp:
		return e.encodeUnaryOp(v)
	case *Ternary:
		return e.encodeTernary(v)
	case *Function:
		return e.encodeFunction(v)
	default:
		return fmt.Errorf("expr: unknown node type %T", n)
	}
}

func (e *Encoder) encodeConst(n *Const) error {
	e.writeByte(byte(NodeConst))
	e.writeDataType(n.DataTyp)
	switch n.DataTyp {
	case DataTypeBool:
		val, ok := n.Value.(bool)
		if !ok {
			return errors.New("expr: expected bool value")
		}
		e.writeBool(val)
	case DataTypeInt64:
		val, ok := n.Value.(int64)
		if !ok {
			return errors.New("expr: expected int64 value")
		}
		e.writeInt64(val)
	case DataTypeFloat64:
		val, ok := n.Value.(float64)
		if !ok {
			return errors.New("expr: expected float64 value")
		}
		e.writeFloat64(val)
	case DataTypeString:
		val, ok := n.Value.(string)
		if !ok {
			return errors.New("expr: expected string value")
		}
		e.writeString(val)
	default:
		return fmt.Errorf("expr: unknown data type %v", n.DataTyp)
	}
	return nil
}

func (e *Encoder) encodeField(n *Field) error {
	e.writeByte(byte(NodeField))
	e.writeDataType(n.DataTyp)
	e.writeString(n.Path)
	return nil
}

func (e *Encoder) encodeBinaryOp(n *BinaryOp) error {
	e.writeByte(byte(NodeBinaryOp))
	e.writeByte(byte(n.Operator))
	e.writeDataType(n.DataTyp)
	if err := e.encodeNode(n.Left); err != nil {
		return fmt.Errorf("expr: left operand: %w", err)
	}
	if err := e.encodeNode(n.Right); err != nil {
		return fmt.Errorf("expr: right operand: %w", err)
	}
	return nil
}

func (e *Encoder) encodeUnaryOp(n *UnaryOp) error {
	e.writeByte(byte(NodeUnaryOp))
	e.writeByte(byte(n.Operator))
	e.writeDataType(n.DataTyp)
	if err := e.encodeNode(n.Operand); err != nil {
		return fmt.Errorf("expr: operand: %w", err)
	}
	return nil
}

func (e *Encoder) encodeTernary(n *Ternary) error {
	e.writeByte(byte(NodeTernary))
	e.writeDataType(n.DataTyp)
	if err := e.encodeNode(n.Condition); err != nil {
		return fmt.Errorf("expr: condition: %w", err)
	}
	if err := e.encodeNode(n.TrueValue); err != nil {
		return fmt.Errorf("expr: true branch: %w", err)
	}
	if err := e.encodeNode(n.FalseValue); err != nil {
		return fmt.Errorf("expr: false branch: %w", err)
	}
	return nil
}

func (e *Encoder) encodeFunction(n *Function) error {
	e.writeByte(byte(NodeFunction))
	e.writeByte(byte(n.Fn))
	e.writeDataType(n.DataTyp)
	e.writeUint32(uint32(len(n.Args)))
	for i, arg := range n.Args {
		if err := e.encodeNode(arg); err != nil {
			return fmt.Errorf("expr: argument %d: %w", i, err)
		}
	}
	return nil
}

func (e *Encoder) writeByte(b byte)          { e.buf.WriteByte(b) }
func (e *Encoder) writeDataType(dt DataType) { e.buf.WriteByte(byte(dt)) }
func (e *Encoder) writeBool(v bool) {
	if v {
		e.buf.WriteByte(1)
	} else {
		e.buf.WriteByte(0)
	}
}
func (e *Encoder) writeInt64(v int64)     { binary.Write(e.buf, binary.LittleEndian, v) }
func (e *Encoder) writeUint32(v uint32)   { binary.Write(e.buf, binary.LittleEndian, v) }
func (e *Encoder) writeFloat64(v float64) { binary.Write(e.buf, binary.LittleEndian, v) }
func (e *Encoder) writeString(s string) {
	e.writeUint32(uint32(len(s)))
	e.buf.WriteString(s)
}

// decoder mirrors Encoder, reading the same depth-first binary form.
type decoder struct {
	data []byte
	pos  int
}

// Decode deserializes bytes produced by Encode back into a tree. It
// returns ErrMalformedPredicate (wrapped with context) on any truncation
// or unrecognized tag/operator/function byte — malformed predicate bytes
// never panic.
func Decode(data []byte) (n Node, err error) {
	d := &decoder{data: data}
	defer func() {
		if r := recover(); r != nil {
			n = nil
			err = fmt.Errorf("%w: %v", ErrMalformedPredicate, r)
		}
	}()
	node := d.decodeNode()
	if d.pos != len(d.data) {
		return nil, fmt.Errorf("%w: trailing bytes", ErrMalformedPredicate)
	}
	return node, nil
}

func (d *decoder) need(n int) {
	if d.pos+n > len(d.data) {
		panic("truncated predicate")
	}
}

func (d *decoder) readByte() byte {
	d.need(1)
	b := d.data[d.pos]
	d.pos++
	return b
}

func (d *decoder) readUint32() uint32 {
	d.need(4)
	v := binary.LittleEndian.Uint32(d.data[d.pos : d.pos+4])
	d.pos += 4
	return v
}

func (d *decoder) readInt64() int64 {
	d.need(8)
	v := int64(binary.LittleEndian.Uint64(d.data[d.pos : d.pos+8]))
	d.pos += 8
	return v
}

func (d *decoder) readFloat64() float64 {
	d.need(8)
	bits := binary.LittleEndian.Uint64(d.data[d.pos : d.pos+8])
	d.pos += 8
	return math.Float64frombits(bits)
}

func (d *decoder) readBool() bool {
	return d.readByte() != 0
}

func (d *decoder) readString() string {
	n := d.readUint32()
	d.need(int(n))
	s := string(d.data[d.pos : d.pos+int(n)])
	d.pos += int(n)
	return s
}

func (d *decoder) readDataType() DataType {
	dt := DataType(d.readByte())
	if dt < DataTypeBool || dt > DataTypeString {
		panic("unknown data type")
	}
	return dt
}

func (d *decoder) decodeNode() Node {
	tag := NodeType(d.readByte())
	switch tag {
	case NodeConst:
		return d.decodeConst()
	case NodeField:
		return d.decodeField()
	case NodeBinaryOp:
		return d.decodeBinaryOp()
	case NodeUnaryOp:
		return d.decodeUnaryOp()
	case NodeTernary:
		return d.decodeTernary()
	case NodeFunction:
		return d.decodeFunction()
	default:
		panic("unknown node tag")
	}
}

func (d *decoder) decodeConst() Node {
	dt := d.readDataType()
	var val any
	switch dt {
	case DataTypeBool:
		val = d.readBool()
	case DataTypeInt64:
		val = d.readInt64()
	case DataTypeFloat64:
		val = d.readFloat64()
	case DataTypeString:
		val = d.readString()
	}
	return &Const{Value: val, DataTyp: dt}
}

func (d *decoder) decodeField() Node {
	dt := d.readDataType()
	path := d.readString()
	return &Field{Path: path, DataTyp: dt}
}

func (d *decoder) decodeBinaryOp() Node {
	op := BinaryOperator(d.readByte())
	if op < OpAdd || op > OpOr {
		panic("unknown binary operator")
	}
	dt := d.readDataType()
	left := d.decodeNode()
	right := d.decodeNode()
	return &BinaryOp{Operator: op, Left: left, Right: right, DataTyp: dt}
}

func (d *decoder) decodeUnaryOp() Node {
	op := UnaryOperator(d.readByte())
	if op != OpNegate && op != OpNot {
		panic("unknown unary operator")
	}
	dt := d.readDataType()
	operand := d.decodeNode()
	return &UnaryOp{Operator: op, Operand: operand, DataTyp: dt}
}

func (d *decoder) decodeTernary() Node {
	dt := d.readDataType()
	cond := d.decodeNode()
	trueVal := d.decodeNode()
	falseVal := d.decodeNode()
	return &Ternary{Condition: cond, TrueValue: trueVal, FalseValue: falseVal, DataTyp: dt}
}

func (d *decoder) decodeFunction() Node {
	fn := FunctionName(d.readByte())
	if fn < FuncAbs || fn > FuncTan {
		panic("unknown function")
	}
	dt := d.readDataType()
	argc := d.readUint32()
	arity := fixedArity(fn)
	if arity >= 0 && int(argc) != arity {
		panic("function arity mismatch")
	}
	if arity < 0 && argc < 1 {
		panic("n-ary function needs at least one argument")
	}
	args := make([]Node, argc)
	for i := range args {
		args[i] = d.decodeNode()
	}
	return &Function{Fn: fn, Args: args, DataTyp: dt}
}

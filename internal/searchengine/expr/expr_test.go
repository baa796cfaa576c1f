package expr

import (
	"reflect"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tree := NewBinaryOp(OpAnd,
		NewBinaryOp(OpGreaterEqual, NewField("price", DataTypeFloat64), NewConstFloat(20), DataTypeBool),
		NewBinaryOp(OpLessEqual, NewField("price", DataTypeFloat64), NewConstFloat(40), DataTypeBool),
		DataTypeBool,
	)

	data, err := Encode(tree)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !reflect.DeepEqual(tree, decoded) {
		t.Fatalf("round trip mismatch:\n got  %#v\n want %#v", decoded, tree)
	}
}

func TestDecodeMalformedBytesDoesNotPanic(t *testing.T) {
	cases := [][]byte{
		nil,
		{byte(NodeConst)},
		{0xFF},
		{byte(NodeBinaryOp), 0xFF, byte(DataTypeBool)},
	}
	for _, c := range cases {
		if _, err := Decode(c); err == nil {
			t.Fatalf("Decode(%v) expected error, got nil", c)
		}
	}
}

func docWithPrice(price float64) any {
	return map[string]any{"price": price}
}

func TestEvalComparison(t *testing.T) {
	tree := NewBinaryOp(OpGreaterEqual, NewField("price", DataTypeFloat64), NewConstFloat(20), DataTypeBool)

	got, err := Eval(tree, docWithPrice(25))
	if err != nil || got != true {
		t.Fatalf("Eval(price=25) = %v, %v; want true, nil", got, err)
	}
	got, err = Eval(tree, docWithPrice(5))
	if err != nil || got != false {
		t.Fatalf("Eval(price=5) = %v, %v; want false, nil", got, err)
	}
}

func TestEvalMissingFieldUsesZeroValue(t *testing.T) {
	tree := NewBinaryOp(OpGreaterThan, NewField("price", DataTypeFloat64), NewConstFloat(10), DataTypeBool)
	got, err := Eval(tree, map[string]any{})
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if got != false {
		t.Fatalf("missing price > 10 should evaluate false via zero value, got %v", got)
	}
}

func TestEvalDivideByZeroFails(t *testing.T) {
	tree := NewBinaryOp(OpDivide, NewConstFloat(10), NewConstFloat(0), DataTypeFloat64)
	if _, err := Eval(tree, map[string]any{}); err == nil {
		t.Fatalf("expected division by zero error")
	}
}

func TestEvalTernaryEvaluatesOneBranch(t *testing.T) {
	tree := NewTernary(
		NewConstBool(true),
		NewConstInt(1),
		NewBinaryOp(OpDivide, NewConstInt(1), NewConstInt(0), DataTypeInt64),
		DataTypeInt64,
	)
	got, err := Eval(tree, map[string]any{})
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if got != int64(1) {
		t.Fatalf("got %v, want 1", got)
	}
}

func TestEvalFunctions(t *testing.T) {
	abs := NewFunction(FuncAbs, []Node{NewConstInt(-7)}, DataTypeInt64)
	got, err := Eval(abs, nil)
	if err != nil || got != int64(7) {
		t.Fatalf("abs(-7) = %v, %v", got, err)
	}

	maxFn := NewFunction(FuncMax, []Node{NewConstFloat(3), NewConstFloat(9), NewConstFloat(1)}, DataTypeFloat64)
	got, err = Eval(maxFn, nil)
	if err != nil || got != float64(9) {
		t.Fatalf("max(3,9,1) = %v, %v", got, err)
	}

	floorFn := NewFunction(FuncFloor, []Node{NewConstFloat(4.7)}, DataTypeInt64)
	got, err = Eval(floorFn, nil)
	if err != nil || got != int64(4) {
		t.Fatalf("floor(4.7) = %v, %v", got, err)
	}
}

func TestEvalBatchMatchesPerDocument(t *testing.T) {
	tree := NewBinaryOp(OpGreaterEqual, NewField("price", DataTypeFloat64), NewConstFloat(20), DataTypeBool)
	docs := []any{docWithPrice(10), docWithPrice(30), docWithPrice(20)}

	batch, errs := EvalBatch(tree, docs)
	for i, doc := range docs {
		single, err := Eval(tree, doc)
		if err != errs[i] || single != batch[i] {
			t.Fatalf("doc %d: batch=(%v,%v) single=(%v,%v)", i, batch[i], errs[i], single, err)
		}
	}
}

func TestEqualityStringVsBool(t *testing.T) {
	strEq := NewBinaryOp(OpEqual, NewField("tag", DataTypeString), NewConstString("sale"), DataTypeBool)
	got, err := Eval(strEq, map[string]any{"tag": "sale"})
	if err != nil || got != true {
		t.Fatalf("string equality failed: %v %v", got, err)
	}

	boolEq := NewBinaryOp(OpEqual, NewField("active", DataTypeBool), NewConstBool(true), DataTypeBool)
	got, err = Eval(boolEq, map[string]any{"active": true})
	if err != nil || got != true {
		t.Fatalf("bool equality failed: %v %v", got, err)
	}
}

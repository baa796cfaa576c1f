package expr

import (
	"fmt"
	"math"

	"github.com/briarshard/shardsearch/internal/searchengine/docfield"
)

// ErrDivideByZero is returned by Eval when a division or modulo
// operator's right operand evaluates to zero. Filter stages treat any
// evaluation error as a non-match rather than propagating it.
var ErrDivideByZero = fmt.Errorf("expr: division or modulo by zero")

func zeroValue(dt DataType) any {
	switch dt {
	case DataTypeBool:
		return false
	case DataTypeInt64:
		return int64(0)
	case DataTypeFloat64:
		return float64(0)
	case DataTypeString:
		return ""
	default:
		return nil
	}
}

func toFloat64(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case int64:
		return float64(x)
	case bool:
		if x {
			return 1
		}
		return 0
	case string:
		return 0
	default:
		return 0
	}
}

func toInt64(v any) int64 {
	switch x := v.(type) {
	case int64:
		return x
	case float64:
		return int64(x)
	case bool:
		if x {
			return 1
		}
		return 0
	default:
		return 0
	}
}

func truthy(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case int64:
		return x != 0
	case float64:
		return x != 0
	case string:
		return x != ""
	default:
		return false
	}
}

func coerce(v float64, dt DataType) any {
	switch dt {
	case DataTypeInt64:
		return int64(v)
	default:
		return v
	}
}

// Eval evaluates n against doc (a parsed JSON tree, as produced by
// encoding/json.Unmarshal into `any`) and returns a bool, int64,
// float64, or string matching n.ResultType(). A missing field always
// yields its declared data type's zero value; the only evaluation
// failures are division/modulo by zero, which the caller — typically a
// shard's filter stage — treats as "this document does not match".
func Eval(n Node, doc any) (any, error) {
	switch v := n.(type) {
	case *Const:
		return v.Value, nil
	case *Field:
		val, ok := docfield.GetField(doc, v.Path)
		if !ok {
			return zeroValue(v.DataTyp), nil
		}
		return coerceField(val, v.DataTyp), nil
	case *BinaryOp:
		return evalBinaryOp(v, doc)
	case *UnaryOp:
		return evalUnaryOp(v, doc)
	case *Ternary:
		return evalTernary(v, doc)
	case *Function:
		return evalFunction(v, doc)
	default:
		return nil, fmt.Errorf("expr: unknown node type %T", n)
	}
}

// coerceField adapts a scalar resolved from the document to the field
// expression's declared type, so a numeric JSON value read through a
// STRING-typed field expression still behaves predictably.
func coerceField(val any, dt DataType) any {
	switch dt {
	case DataTypeBool:
		if b, ok := val.(bool); ok {
			return b
		}
		return truthy(val)
	case DataTypeInt64:
		return toInt64(val)
	case DataTypeFloat64:
		return toFloat64(val)
	case DataTypeString:
		if s, ok := val.(string); ok {
			return s
		}
		return fmt.Sprintf("%v", val)
	default:
		return val
	}
}

func evalBinaryOp(n *BinaryOp, doc any) (any, error) {
	left, err := Eval(n.Left, doc)
	if err != nil {
		return nil, err
	}
	right, err := Eval(n.Right, doc)
	if err != nil {
		return nil, err
	}

	switch {
	case n.Operator.IsLogical():
		switch n.Operator {
		case OpAnd:
			return truthy(left) && truthy(right), nil
		case OpOr:
			return truthy(left) || truthy(right), nil
		}
	case n.Operator.IsComparison():
		return evalComparison(n.Operator, n.Left.ResultType(), left, right)
	case n.Operator.IsArithmetic():
		return evalArithmetic(n.Operator, n.DataTyp, left, right)
	}
	return nil, fmt.Errorf("expr: unknown binary operator %v", n.Operator)
}

func evalComparison(op BinaryOperator, leftType DataType, left, right any) (any, error) {
	if op == OpEqual || op == OpNotEqual {
		var eq bool
		switch leftType {
		case DataTypeBool:
			eq = truthy(left) == truthy(right)
		case DataTypeString:
			ls, _ := left.(string)
			rs, _ := right.(string)
			eq = ls == rs
		default:
			eq = toFloat64(left) == toFloat64(right)
		}
		if op == OpEqual {
			return eq, nil
		}
		return !eq, nil
	}

	lf, rf := toFloat64(left), toFloat64(right)
	switch op {
	case OpLessThan:
		return lf < rf, nil
	case OpLessEqual:
		return lf <= rf, nil
	case OpGreaterThan:
		return lf > rf, nil
	case OpGreaterEqual:
		return lf >= rf, nil
	default:
		return nil, fmt.Errorf("expr: unknown comparison operator %v", op)
	}
}

func evalArithmetic(op BinaryOperator, resultType DataType, left, right any) (any, error) {
	if resultType == DataTypeInt64 {
		li, ri := toInt64(left), toInt64(right)
		switch op {
		case OpAdd:
			return li + ri, nil
		case OpSubtract:
			return li - ri, nil
		case OpMultiply:
			return li * ri, nil
		case OpDivide:
			if ri == 0 {
				return nil, ErrDivideByZero
			}
			return li / ri, nil
		case OpModulo:
			if ri == 0 {
				return nil, ErrDivideByZero
			}
			return li % ri, nil
		case OpPower:
			return int64(math.Pow(float64(li), float64(ri))), nil
		}
	}

	lf, rf := toFloat64(left), toFloat64(right)
	switch op {
	case OpAdd:
		return lf + rf, nil
	case OpSubtract:
		return lf - rf, nil
	case OpMultiply:
		return lf * rf, nil
	case OpDivide:
		if rf == 0 {
			return nil, ErrDivideByZero
		}
		return lf / rf, nil
	case OpModulo:
		if rf == 0 {
			return nil, ErrDivideByZero
		}
		return math.Mod(lf, rf), nil
	case OpPower:
		return math.Pow(lf, rf), nil
	}
	return nil, fmt.Errorf("expr: unknown arithmetic operator %v", op)
}

func evalUnaryOp(n *UnaryOp, doc any) (any, error) {
	operand, err := Eval(n.Operand, doc)
	if err != nil {
		return nil, err
	}
	switch n.Operator {
	case OpNegate:
		if n.DataTyp == DataTypeInt64 {
			return -toInt64(operand), nil
		}
		return -toFloat64(operand), nil
	case OpNot:
		return !truthy(operand), nil
	default:
		return nil, fmt.Errorf("expr: unknown unary operator %v", n.Operator)
	}
}

func evalTernary(n *Ternary, doc any) (any, error) {
	cond, err := Eval(n.Condition, doc)
	if err != nil {
		return nil, err
	}
	if truthy(cond) {
		return Eval(n.TrueValue, doc)
	}
	return Eval(n.FalseValue, doc)
}

func evalFunction(n *Function, doc any) (any, error) {
	args := make([]any, len(n.Args))
	for i, a := range n.Args {
		v, err := Eval(a, doc)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}

	switch n.Fn {
	case FuncAbs:
		if n.DataTyp == DataTypeInt64 {
			v := toInt64(args[0])
			if v < 0 {
				v = -v
			}
			return v, nil
		}
		return math.Abs(toFloat64(args[0])), nil
	case FuncSqrt:
		return math.Sqrt(toFloat64(args[0])), nil
	case FuncFloor:
		return int64(math.Floor(toFloat64(args[0]))), nil
	case FuncCeil:
		return int64(math.Ceil(toFloat64(args[0]))), nil
	case FuncRound:
		return int64(math.Round(toFloat64(args[0]))), nil
	case FuncLog:
		return math.Log(toFloat64(args[0])), nil
	case FuncLog10:
		return math.Log10(toFloat64(args[0])), nil
	case FuncExp:
		return math.Exp(toFloat64(args[0])), nil
	case FuncSin:
		return math.Sin(toFloat64(args[0])), nil
	case FuncCos:
		return math.Cos(toFloat64(args[0])), nil
	case FuncTan:
		return math.Tan(toFloat64(args[0])), nil
	case FuncPow:
		return coerce(math.Pow(toFloat64(args[0]), toFloat64(args[1])), n.DataTyp), nil
	case FuncMin:
		m := toFloat64(args[0])
		for _, a := range args[1:] {
			if f := toFloat64(a); f < m {
				m = f
			}
		}
		return coerce(m, n.DataTyp), nil
	case FuncMax:
		m := toFloat64(args[0])
		for _, a := range args[1:] {
			if f := toFloat64(a); f > m {
				m = f
			}
		}
		return coerce(m, n.DataTyp), nil
	default:
		return nil, fmt.Errorf("expr: unknown function %v", n.Fn)
	}
}

// EvalBatch applies n to each document in docs, in order. It is
// equivalent to calling Eval once per document — the core contract the
// evaluator's batch form must uphold — but avoids repeated dispatch
// overhead in callers that already hold a candidate slice.
func EvalBatch(n Node, docs []any) ([]any, []error) {
	results := make([]any, len(docs))
	errs := make([]error, len(docs))
	for i, doc := range docs {
		results[i], errs[i] = Eval(n, doc)
	}
	return results, errs
}

package expr

import "fmt"

// UnaryOp defines unary operation.
type UnaryOp int

const (
	OpNot UnaryOp = iota + 1
	OpNegate
	// OpConvert is a type conversion to the node type.
	OpConvert
	// OpLen is a builtin len().
	OpLen
)

// String implements fmt.Stringer.
func (op UnaryOp) String() string {
	switch op {
	case OpNot:
		return "!"
	case OpNegate:
		return "-"
	case OpConvert:
		return "convert"
	case OpLen:
		return "len"
	default:
		return fmt.Sprintf("<unknown unary op %d>", op)
	}
}

// BinaryOp defines binary operation.
type BinaryOp int

const (
	// Math ops.
	OpAdd BinaryOp = iota + 1
	OpSub
	OpMul
	OpDiv
	OpMod
	// Bitwise ops.
	OpBitAnd
	OpBitOr
	OpBitXor
	// Logical ops.
	OpAndAlso
	OpOrElse
	// Comparison ops.
	OpEq
	OpNotEq
	OpLt
	OpLte
	OpGt
	OpGte
	// OpCoalesce returns left if it is not nil, right otherwise.
	OpCoalesce
	// OpIndex is an index expression.
	OpIndex
)

// String implements fmt.Stringer.
func (op BinaryOp) String() string {
	switch op {
	case OpAdd:
		return "+"
	case OpSub:
		return "-"
	case OpMul:
		return "*"
	case OpDiv:
		return "/"
	case OpMod:
		return "%"
	case OpBitAnd:
		return "&"
	case OpBitOr:
		return "|"
	case OpBitXor:
		return "^"
	case OpAndAlso:
		return "&&"
	case OpOrElse:
		return "||"
	case OpEq:
		return "=="
	case OpNotEq:
		return "!="
	case OpLt:
		return "<"
	case OpLte:
		return "<="
	case OpGt:
		return ">"
	case OpGte:
		return ">="
	case OpCoalesce:
		return "??"
	case OpIndex:
		return "[]"
	default:
		return fmt.Sprintf("<unknown binary op %d>", op)
	}
}

// IsComparison whether op is a comparison.
func (op BinaryOp) IsComparison() bool {
	switch op {
	case OpEq, OpNotEq, OpLt, OpLte, OpGt, OpGte:
		return true
	default:
		return false
	}
}

// IsLogic whether op is a logical operation.
func (op BinaryOp) IsLogic() bool {
	switch op {
	case OpAndAlso, OpOrElse:
		return true
	default:
		return false
	}
}

// Flip returns comparison with swapped operands.
//
// Flip is an identity for non-ordering operations.
func (op BinaryOp) Flip() BinaryOp {
	switch op {
	case OpLt:
		return OpGt
	case OpLte:
		return OpGte
	case OpGt:
		return OpLt
	case OpGte:
		return OpLte
	default:
		return op
	}
}

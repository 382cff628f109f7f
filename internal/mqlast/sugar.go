package mqlast

// Path returns field path expression.
func Path(path string) Expr {
	return &FieldPath{Path: path}
}

// Value returns constant expression.
func Value(v any) Expr {
	return &Constant{Value: v}
}

// Op returns operator expression with positional arguments.
func Op(op string, args ...Expr) Expr {
	return &Operator{Op: op, Args: args}
}

// Cond returns $cond expression.
func Cond(test, then, els Expr) Expr {
	return &NamedOperator{Op: "$cond", Args: []Field{
		{Name: "if", Value: test},
		{Name: "then", Value: then},
		{Name: "else", Value: els},
	}}
}

// Root returns "$$ROOT" variable.
func Root() Expr {
	return &Var{Name: "ROOT"}
}

// Eq returns {path: {$eq: v}} filter.
func Eq(path string, v any) Filter {
	return Compare(path, CmpEq, v)
}

// Compare returns field comparison filter.
func Compare(path string, op CmpOp, v any) Filter {
	return &FieldFilter{Path: path, Op: &Comparison{Op: op, Value: v}}
}

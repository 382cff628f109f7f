package mqlast

import (
	"go.mongodb.org/mongo-driver/bson"
)

// FieldOp is an operation applied to a field.
type FieldOp interface {
	// Render returns operator document.
	Render() bson.D
	fieldOp()
}

func (*Comparison) fieldOp() {}
func (*In) fieldOp()         {}
func (*Size) fieldOp()       {}
func (*Exists) fieldOp()     {}
func (*Mod) fieldOp()        {}
func (*Bits) fieldOp()       {}
func (*Regex) fieldOp()      {}
func (*ElemMatch) fieldOp()  {}
func (*Not) fieldOp()        {}
func (*Type) fieldOp()       {}

// CmpOp is a comparison operator.
type CmpOp string

const (
	CmpEq  CmpOp = "$eq"
	CmpNe  CmpOp = "$ne"
	CmpLt  CmpOp = "$lt"
	CmpLte CmpOp = "$lte"
	CmpGt  CmpOp = "$gt"
	CmpGte CmpOp = "$gte"
)

// Comparison compares field with a value.
type Comparison struct {
	Op    CmpOp
	Value any
}

// Render implements [FieldOp].
func (o *Comparison) Render() bson.D {
	return bson.D{{Key: string(o.Op), Value: o.Value}}
}

// In is a $in or $nin operation.
type In struct {
	Values  bson.A
	Negated bool
}

// Render implements [FieldOp].
func (o *In) Render() bson.D {
	key := "$in"
	if o.Negated {
		key = "$nin"
	}
	values := o.Values
	if values == nil {
		values = bson.A{}
	}
	return bson.D{{Key: key, Value: values}}
}

// Size is a $size operation.
type Size struct {
	N int64
}

// Render implements [FieldOp].
func (o *Size) Render() bson.D {
	return bson.D{{Key: "$size", Value: o.N}}
}

// Exists is a $exists operation.
type Exists struct {
	Exists bool
}

// Render implements [FieldOp].
func (o *Exists) Render() bson.D {
	return bson.D{{Key: "$exists", Value: o.Exists}}
}

// Mod is a $mod operation.
type Mod struct {
	Divisor   any
	Remainder any
}

// Render implements [FieldOp].
func (o *Mod) Render() bson.D {
	return bson.D{{Key: "$mod", Value: bson.A{o.Divisor, o.Remainder}}}
}

// BitsOp is a bitwise query operator.
type BitsOp string

const (
	BitsAllClear BitsOp = "$bitsAllClear"
	BitsAllSet   BitsOp = "$bitsAllSet"
	BitsAnyClear BitsOp = "$bitsAnyClear"
	BitsAnySet   BitsOp = "$bitsAnySet"
)

// Bits is a bitwise test.
type Bits struct {
	Op   BitsOp
	Mask any
}

// Render implements [FieldOp].
func (o *Bits) Render() bson.D {
	return bson.D{{Key: string(o.Op), Value: o.Mask}}
}

// Regex is a $regex operation.
type Regex struct {
	Pattern string
	Options string
}

// Render implements [FieldOp].
func (o *Regex) Render() bson.D {
	d := bson.D{{Key: "$regex", Value: o.Pattern}}
	if o.Options != "" {
		d = append(d, bson.E{Key: "$options", Value: o.Options})
	}
	return d
}

// ElemMatch is a $elemMatch operation.
type ElemMatch struct {
	Filter Filter
}

// Render implements [FieldOp].
func (o *ElemMatch) Render() bson.D {
	return bson.D{{Key: "$elemMatch", Value: o.Filter.Render()}}
}

// Not is a $not operation.
type Not struct {
	Op FieldOp
}

// Render implements [FieldOp].
func (o *Not) Render() bson.D {
	return bson.D{{Key: "$not", Value: o.Op.Render()}}
}

// Type is a $type operation.
type Type struct {
	Type any
}

// Render implements [FieldOp].
func (o *Type) Render() bson.D {
	return bson.D{{Key: "$type", Value: o.Type}}
}

// NegateOp returns negation of the field operation.
func NegateOp(op FieldOp) FieldOp {
	switch op := op.(type) {
	case *Comparison:
		switch op.Op {
		case CmpEq:
			return &Comparison{Op: CmpNe, Value: op.Value}
		case CmpNe:
			return &Comparison{Op: CmpEq, Value: op.Value}
		}
	case *In:
		return &In{Values: op.Values, Negated: !op.Negated}
	case *Exists:
		return &Exists{Exists: !op.Exists}
	case *Not:
		return op.Op
	}
	return &Not{Op: op}
}

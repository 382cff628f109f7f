package expr

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// String returns textual form of n.
func String(n Node) string {
	if n == nil {
		return "<nil>"
	}
	var sb strings.Builder
	writeNode(&sb, n)
	return sb.String()
}

func (n *Constant) String() string    { return String(n) }
func (n *Parameter) String() string   { return String(n) }
func (n *Member) String() string      { return String(n) }
func (n *Unary) String() string       { return String(n) }
func (n *Binary) String() string      { return String(n) }
func (n *Call) String() string        { return String(n) }
func (n *Lambda) String() string      { return String(n) }
func (n *Conditional) String() string { return String(n) }
func (n *New) String() string         { return String(n) }
func (n *List) String() string        { return String(n) }
func (n *Invoke) String() string      { return String(n) }

func typeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	return t.String()
}

func writeList(sb *strings.Builder, nodes []Node) {
	for i, n := range nodes {
		if i != 0 {
			sb.WriteString(", ")
		}
		writeNode(sb, n)
	}
}

func writeNode(sb *strings.Builder, n Node) {
	switch n := n.(type) {
	case *Constant:
		switch v := n.Value.(type) {
		case nil:
			sb.WriteString("nil")
		case string:
			sb.WriteString(strconv.Quote(v))
		case CollectionRef:
			fmt.Fprintf(sb, "collection(%q)", v.Name)
		case fmt.Stringer:
			sb.WriteString(v.String())
		default:
			fmt.Fprintf(sb, "%v", v)
		}
	case *Parameter:
		sb.WriteString(n.Name)
	case *Member:
		writeNode(sb, n.Inner)
		sb.WriteByte('.')
		sb.WriteString(n.Name)
	case *Unary:
		switch n.Op {
		case OpConvert:
			sb.WriteString(typeName(n.Typ))
			sb.WriteByte('(')
			writeNode(sb, n.Operand)
			sb.WriteByte(')')
		case OpLen:
			sb.WriteString("len(")
			writeNode(sb, n.Operand)
			sb.WriteByte(')')
		default:
			sb.WriteString(n.Op.String())
			writeNode(sb, n.Operand)
		}
	case *Binary:
		if n.Op == OpIndex {
			writeNode(sb, n.Left)
			sb.WriteByte('[')
			writeNode(sb, n.Right)
			sb.WriteByte(']')
			return
		}
		sb.WriteByte('(')
		writeNode(sb, n.Left)
		sb.WriteByte(' ')
		sb.WriteString(n.Op.String())
		sb.WriteByte(' ')
		writeNode(sb, n.Right)
		sb.WriteByte(')')
	case *Call:
		if n.Object != nil {
			writeNode(sb, n.Object)
			sb.WriteByte('.')
		}
		if n.Method != nil {
			sb.WriteString(n.Method.Name)
		} else {
			sb.WriteString("<unknown>")
		}
		sb.WriteByte('(')
		writeList(sb, n.Args)
		sb.WriteByte(')')
	case *Lambda:
		sb.WriteString("func(")
		for i, p := range n.Params {
			if i != 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(p.Name)
		}
		sb.WriteString(") { return ")
		writeNode(sb, n.Body)
		sb.WriteString(" }")
	case *Conditional:
		sb.WriteString("cond(")
		writeList(sb, []Node{n.Test, n.Then, n.Else})
		sb.WriteByte(')')
	case *New:
		sb.WriteString(typeName(n.Typ))
		if len(n.Args) > 0 {
			sb.WriteByte('(')
			writeList(sb, n.Args)
			sb.WriteByte(')')
		}
		sb.WriteByte('{')
		for i, f := range n.Fields {
			if i != 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(f.Name)
			sb.WriteString(": ")
			writeNode(sb, f.Value)
		}
		sb.WriteByte('}')
	case *List:
		sb.WriteString(typeName(n.Typ))
		sb.WriteByte('{')
		writeList(sb, n.Elems)
		sb.WriteByte('}')
	case *Invoke:
		writeNode(sb, n.Fn)
		sb.WriteByte('(')
		writeList(sb, n.Args)
		sb.WriteByte(')')
	case nil:
		sb.WriteString("<nil>")
	default:
		fmt.Fprintf(sb, "<unexpected node %T>", n)
	}
}

package translate

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/go-faster/mongoql/expr"
	"github.com/go-faster/mongoql/internal/mqlast"
	"github.com/go-faster/mongoql/mqlerrors"
	"github.com/go-faster/mongoql/serializer"
)

// stringModifiers are case and trim calls applied to a string field.
//
// They are compiled into the regular expression instead of the field.
type stringModifiers struct {
	ignoreCase bool
	forceLower bool
	forceUpper bool
	// leading and trailing are classes of trimmed characters, innermost first.
	leading  []string
	trailing []string
	// trimLeft and trimRight are applied trims, innermost first.
	trimLeft  []func(string) string
	trimRight []func(string) string
	// casedTrim is set when a trim cutset has cased letters.
	casedTrim bool
}

func (m stringModifiers) cased() bool {
	return m.forceLower || m.forceUpper
}

// hasCase whether s has letters changed by case conversion.
func hasCase(s string) bool {
	return strings.ToLower(s) != s || strings.ToUpper(s) != s
}

func (m stringModifiers) trimmed() bool {
	return len(m.trimLeft) > 0 || len(m.trimRight) > 0
}

// caseConflict whether literal can never be produced by case modifiers.
func (m stringModifiers) caseConflict(lit string) bool {
	switch {
	case m.forceLower:
		return strings.ToLower(lit) != lit
	case m.forceUpper:
		return strings.ToUpper(lit) != lit
	default:
		return false
	}
}

// trimConflict whether literal can never be a prefix or suffix of
// trimmed string.
func (m stringModifiers) trimConflict(lit string, prefix, suffix bool) bool {
	if lit == "" {
		return false
	}
	// Only the outermost trim bounds the ends of the result.
	if prefix && len(m.trimLeft) > 0 {
		if trim := m.trimLeft[len(m.trimLeft)-1]; trim(lit) != lit {
			return true
		}
	}
	if suffix && len(m.trimRight) > 0 {
		if trim := m.trimRight[len(m.trimRight)-1]; trim(lit) != lit {
			return true
		}
	}
	return false
}

// filter returns regex filter for the pattern of the value.
func (m stringModifiers) filter(path, pattern string) mqlast.Filter {
	return m.literalFilter(path, pattern, "", false, false)
}

// literalFilter returns regex filter for the pattern of the trimmed value
// built around lit.
//
// Trimmed runs are guarded by lookarounds to be maximal. The outermost run
// of a side lit is anchored to is left unguarded, lit never starts or ends
// with its characters. Runs around an empty literal are never guarded.
func (m stringModifiers) literalFilter(path, pattern, lit string, prefix, suffix bool) mqlast.Filter {
	guard := lit != ""
	var sb strings.Builder
	sb.WriteString("^")
	for i, class := range m.leading {
		sb.WriteString(class + "*")
		if guard && !(prefix && i == len(m.leading)-1) {
			sb.WriteString("(?!" + class + ")")
		}
	}
	sb.WriteString(pattern)
	for i := len(m.trailing) - 1; i >= 0; i-- {
		class := m.trailing[i]
		if guard && !(suffix && i == len(m.trailing)-1) {
			sb.WriteString("(?<!" + class + ")")
		}
		sb.WriteString(class + "*")
	}
	sb.WriteString("$")

	combined := sb.String()
	if strings.HasPrefix(combined, "^.*") {
		combined = combined[1:]
	}
	if strings.HasSuffix(combined, ".*$") && !strings.HasSuffix(combined, `\.*$`) {
		combined = combined[:len(combined)-1]
	}
	options := "s"
	if m.ignoreCase {
		options = "is"
	}
	return &mqlast.FieldFilter{
		Path: path,
		Op:   &mqlast.Regex{Pattern: combined, Options: options},
	}
}

func isStringModifier(tag expr.MethodTag) bool {
	switch tag {
	case expr.StringsToLower, expr.StringsToUpper,
		expr.StringsTrimSpace, expr.StringsTrim, expr.StringsTrimLeft, expr.StringsTrimRight:
		return true
	default:
		return false
	}
}

// stringSubject resolves string field under modifier calls.
func (c *Context) stringSubject(n expr.Node) (ResolvedField, stringModifiers, error) {
	call, ok := n.(*expr.Call)
	if !ok || !isStringModifier(call.Tag()) {
		field, err := c.filterField(n)
		if err != nil {
			return field, stringModifiers{}, err
		}
		if t := serializer.Underlying(field.Serializer).ValueType(); t == nil || t.Kind() != reflect.String {
			return field, stringModifiers{}, mqlerrors.Unsupported(n, "not a string field")
		}
		return field, stringModifiers{}, nil
	}

	field, mods, err := c.stringSubject(call.Args[0])
	if err != nil {
		return field, mods, err
	}
	cutset := func() (string, error) {
		cc, ok := constantOf(call.Args[1])
		if !ok {
			return "", mqlerrors.Unsupported(call, "cutset must be a constant")
		}
		s, _ := cc.Value.(string)
		return s, nil
	}
	switch call.Tag() {
	case expr.StringsToLower, expr.StringsToUpper:
		if mods.casedTrim {
			return field, mods, mqlerrors.Unsupported(call, "case conversion of a string trimmed by letters")
		}
	}
	switch call.Tag() {
	case expr.StringsToLower:
		mods.ignoreCase, mods.forceLower, mods.forceUpper = true, true, false
	case expr.StringsToUpper:
		mods.ignoreCase, mods.forceLower, mods.forceUpper = true, false, true
	case expr.StringsTrimSpace:
		mods.leading = append(mods.leading, `\s`)
		mods.trailing = append(mods.trailing, `\s`)
		mods.trimLeft = append(mods.trimLeft, func(s string) string { return strings.TrimLeftFunc(s, isSpace) })
		mods.trimRight = append(mods.trimRight, func(s string) string { return strings.TrimRightFunc(s, isSpace) })
	case expr.StringsTrim, expr.StringsTrimLeft, expr.StringsTrimRight:
		set, err := cutset()
		if err != nil {
			return field, mods, err
		}
		if set == "" {
			break
		}
		if hasCase(set) {
			if mods.cased() {
				return field, mods, mqlerrors.Unsupported(call, "trim of letters in a case-converted string")
			}
			mods.casedTrim = true
		}
		class := "[" + classEscape(set) + "]"
		if call.Tag() != expr.StringsTrimRight {
			mods.leading = append(mods.leading, class)
			mods.trimLeft = append(mods.trimLeft, func(s string) string { return strings.TrimLeft(s, set) })
		}
		if call.Tag() != expr.StringsTrimLeft {
			mods.trailing = append(mods.trailing, class)
			mods.trimRight = append(mods.trimRight, func(s string) string { return strings.TrimRight(s, set) })
		}
	}
	return field, mods, nil
}

func isSpace(r rune) bool {
	// Same set as regular expression \s.
	switch r {
	case ' ', '\t', '\n', '\f', '\r', '\v':
		return true
	default:
		return false
	}
}

// classEscape escapes characters for use in a character class.
func classEscape(set string) string {
	var sb strings.Builder
	for _, r := range set {
		switch r {
		case '\\', ']', '[', '^', '-':
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func stringConstant(n expr.Node) (string, bool) {
	c, ok := constantOf(n)
	if !ok {
		return "", false
	}
	s, ok := c.Value.(string)
	if !ok && c.Typ != nil && c.Typ.Kind() == reflect.String {
		s, ok = reflect.ValueOf(c.Value).String(), true
	}
	return s, ok
}

// stringPredicate translates Contains, HasPrefix, HasSuffix and EqualFold.
func (c *Context) stringPredicate(n *expr.Call) (mqlast.Filter, error) {
	subject, litNode := n.Args[0], n.Args[1]
	if n.Tag() == expr.StringsEqualFold {
		if _, ok := constantOf(subject); ok {
			subject, litNode = litNode, subject
		}
	}
	lit, ok := stringConstant(litNode)
	if !ok {
		return nil, mqlerrors.Unsupported(n, "argument must be a string constant")
	}
	field, mods, err := c.stringSubject(subject)
	if err != nil {
		return nil, err
	}

	q := regexp.QuoteMeta(lit)
	var (
		pattern        string
		prefix, suffix bool
	)
	checkCase := true
	switch n.Tag() {
	case expr.StringsContains:
		pattern = ".*" + q + ".*"
	case expr.StringsHasPrefix:
		pattern, prefix = q+".*", true
	case expr.StringsHasSuffix:
		pattern, suffix = ".*"+q, true
	case expr.StringsEqualFold:
		if mods.casedTrim {
			return nil, mqlerrors.Unsupported(n, "case-insensitive match of a string trimmed by letters")
		}
		pattern, prefix, suffix = q, true, true
		mods.ignoreCase = true
		checkCase = false
	}
	if (checkCase && mods.caseConflict(lit)) || mods.trimConflict(lit, prefix, suffix) {
		return &mqlast.MatchesNothing{}, nil
	}
	return mods.literalFilter(field.Path, pattern, lit, prefix, suffix), nil
}

// stringFilter translates comparisons of string-shaped expressions.
func (c *Context) stringFilter(n expr.Node, op expr.BinaryOp, left expr.Node, right *expr.Constant) (mqlast.Filter, error) {
	switch left := left.(type) {
	case *expr.Unary:
		switch {
		case left.Op == expr.OpLen && isString(left.Operand.Type()):
			return c.stringLengthFilter(n, op, left.Operand, right)
		case left.Op == expr.OpConvert && isCharIndex(left.Operand):
			return c.charIndexFilter(n, op, left.Operand.(*expr.Binary), right)
		}
	case *expr.Binary:
		if isCharIndex(left) {
			return c.charIndexFilter(n, op, left, right)
		}
	case *expr.Call:
		switch left.Tag() {
		case expr.StringsIndex, expr.StringsIndexByte, expr.StringsIndexRune, expr.StringsIndexAny,
			expr.StringsIndexFrom, expr.StringsIndexFromCount, expr.StringsIndexFold:
			return c.indexOfFilter(n, op, left, right)
		}
		if isStringModifier(left.Tag()) {
			return c.stringEqualityFilter(n, op, left, right)
		}
	}
	return nil, nil
}

func isString(t reflect.Type) bool {
	return t != nil && t.Kind() == reflect.String
}

func isCharIndex(n expr.Node) bool {
	b, ok := n.(*expr.Binary)
	return ok && b.Op == expr.OpIndex && isString(b.Left.Type())
}

func equalityOnly(n expr.Node, op expr.BinaryOp) error {
	if op != expr.OpEq && op != expr.OpNotEq {
		return mqlerrors.Unsupportedf(n, "operator %s is not supported", op)
	}
	return nil
}

// constFilter returns filter for predicate with known result.
func constFilter(v bool) mqlast.Filter {
	if v {
		return &mqlast.MatchesEverything{}
	}
	return &mqlast.MatchesNothing{}
}

func negateIf(f mqlast.Filter, negate bool) mqlast.Filter {
	if negate {
		return mqlast.Negate(f)
	}
	return f
}

func (c *Context) stringEqualityFilter(n expr.Node, op expr.BinaryOp, left expr.Node, right *expr.Constant) (mqlast.Filter, error) {
	if err := equalityOnly(n, op); err != nil {
		return nil, err
	}
	lit, ok := stringConstant(right)
	if !ok {
		return nil, mqlerrors.Unsupported(n, "string must be compared with a string constant")
	}
	field, mods, err := c.stringSubject(left)
	if err != nil {
		return nil, err
	}
	negate := op == expr.OpNotEq
	if mods.caseConflict(lit) || mods.trimConflict(lit, true, true) {
		return negateIf(constFilter(false), negate), nil
	}
	return negateIf(mods.literalFilter(field.Path, regexp.QuoteMeta(lit), lit, true, true), negate), nil
}

func repeatAny(n int64) string {
	if n <= 0 {
		return ""
	}
	return fmt.Sprintf(".{%d}", n)
}

func (c *Context) stringLengthFilter(n expr.Node, op expr.BinaryOp, subject expr.Node, right *expr.Constant) (mqlast.Filter, error) {
	if !isIntegral(right.Typ) {
		return nil, mqlerrors.Unsupported(n, "length must be compared with an integer")
	}
	field, mods, err := c.stringSubject(subject)
	if err != nil {
		return nil, err
	}
	if mods.trimmed() {
		return nil, mqlerrors.Unsupported(n, "length of trimmed string")
	}
	size := toInt64(right.Value)

	var pattern string
	switch op {
	case expr.OpEq, expr.OpNotEq:
		if size < 0 {
			return negateIf(constFilter(false), op == expr.OpNotEq), nil
		}
		pattern = fmt.Sprintf(".{%d}", size)
		return negateIf(mods.filter(field.Path, pattern), op == expr.OpNotEq), nil
	case expr.OpLt:
		if size <= 0 {
			return constFilter(false), nil
		}
		pattern = fmt.Sprintf(".{0,%d}", size-1)
	case expr.OpLte:
		if size < 0 {
			return constFilter(false), nil
		}
		pattern = fmt.Sprintf(".{0,%d}", size)
	case expr.OpGt:
		if size < 0 {
			return constFilter(true), nil
		}
		pattern = fmt.Sprintf(".{%d,}", size+1)
	case expr.OpGte:
		if size <= 0 {
			return constFilter(true), nil
		}
		pattern = fmt.Sprintf(".{%d,}", size)
	default:
		return nil, mqlerrors.Unsupported(n, "unexpected operator")
	}
	return mods.filter(field.Path, pattern), nil
}

func (c *Context) charIndexFilter(n expr.Node, op expr.BinaryOp, index *expr.Binary, right *expr.Constant) (mqlast.Filter, error) {
	if err := equalityOnly(n, op); err != nil {
		return nil, err
	}
	ic, ok := constantOf(index.Right)
	if !ok || !isIntegral(ic.Typ) {
		return nil, mqlerrors.Unsupported(n, "index must be an integer constant")
	}
	if !isIntegral(right.Typ) {
		return nil, mqlerrors.Unsupported(n, "character must be an integer constant")
	}
	i := toInt64(ic.Value)
	if i < 0 {
		return nil, mqlerrors.Unsupported(n, "negative index")
	}
	field, mods, err := c.stringSubject(index.Left)
	if err != nil {
		return nil, err
	}
	if mods.trimmed() {
		return nil, mqlerrors.Unsupported(n, "index of trimmed string")
	}
	char := string(rune(toInt64(right.Value)))
	negate := op == expr.OpNotEq
	if mods.caseConflict(char) {
		return negateIf(constFilter(false), negate), nil
	}
	pattern := repeatAny(i) + regexp.QuoteMeta(char) + ".*"
	return negateIf(mods.filter(field.Path, pattern), negate), nil
}

// indexOf describes string search call.
type indexOf struct {
	needle   string
	isSet    bool
	start    int64
	count    int64
	hasCount bool
}

func (c *Context) parseIndexOf(call *expr.Call) (indexOf, error) {
	var r indexOf
	needle, ok := constantOf(call.Args[1])
	if !ok {
		return r, mqlerrors.Unsupported(call, "search value must be a constant")
	}
	switch call.Tag() {
	case expr.StringsIndexByte, expr.StringsIndexRune:
		r.needle = string(rune(toInt64(needle.Value)))
		r.isSet = true
	case expr.StringsIndexAny:
		r.needle, _ = needle.Value.(string)
		r.isSet = true
	default:
		r.needle, _ = needle.Value.(string)
	}
	intArg := func(i int) (int64, error) {
		ac, ok := constantOf(call.Args[i])
		if !ok || !isIntegral(ac.Typ) {
			return 0, mqlerrors.Unsupported(call, "start and count must be integer constants")
		}
		v := toInt64(ac.Value)
		if v < 0 {
			return 0, mqlerrors.Unsupported(call, "negative start or count")
		}
		return v, nil
	}
	var err error
	if len(call.Args) > 2 {
		if r.start, err = intArg(2); err != nil {
			return r, err
		}
	}
	if len(call.Args) > 3 {
		if r.count, err = intArg(3); err != nil {
			return r, err
		}
		r.hasCount = true
	}
	return r, nil
}

func (c *Context) indexOfFilter(n expr.Node, op expr.BinaryOp, call *expr.Call, right *expr.Constant) (mqlast.Filter, error) {
	if err := equalityOnly(n, op); err != nil {
		return nil, err
	}
	if !isIntegral(right.Typ) {
		return nil, mqlerrors.Unsupported(n, "index must be compared with an integer")
	}
	idx, err := c.parseIndexOf(call)
	if err != nil {
		return nil, err
	}
	field, mods, err := c.stringSubject(call.Args[0])
	if err != nil {
		return nil, err
	}
	if mods.trimmed() {
		return nil, mqlerrors.Unsupported(n, "index of trimmed string")
	}
	if call.Tag() == expr.StringsIndexFold {
		mods.ignoreCase = true
	}
	negate := op == expr.OpNotEq
	result := toInt64(right.Value)

	neverFound := idx.isSet && idx.needle == ""
	if !neverFound && call.Tag() != expr.StringsIndexFold && mods.caseConflict(idx.needle) {
		neverFound = true
	}
	if neverFound {
		// Search never succeeds, result is always -1.
		return negateIf(constFilter(result == -1), negate), nil
	}

	pattern, ok := idx.pattern(result)
	if !ok {
		return negateIf(constFilter(false), negate), nil
	}
	return negateIf(mods.filter(field.Path, pattern), negate), nil
}

// pattern returns regular expression matching strings where search
// returns result.
//
// Returns false if result is impossible.
func (idx indexOf) pattern(result int64) (string, bool) {
	var (
		q      = regexp.QuoteMeta(idx.needle)
		class  = classEscape(idx.needle)
		length = int64(utf8.RuneCountInString(idx.needle))
		start  = repeatAny(idx.start)
	)
	var window string
	if idx.hasCount {
		window = fmt.Sprintf("(?=.{%d})", idx.count)
	}

	switch {
	case result == -1:
		// Either string is too short to search, or needle is not found.
		var notFound string
		switch {
		case idx.isSet && idx.hasCount:
			notFound = start + fmt.Sprintf("[^%s]{%d}.*", class, idx.count)
		case idx.isSet:
			notFound = start + fmt.Sprintf("[^%s]*", class)
		case idx.hasCount && idx.count < length:
			notFound = start + window + ".*"
		case idx.hasCount:
			notFound = start + fmt.Sprintf("(?!.{0,%d}%s).*", idx.count-length, q)
		default:
			if length == 0 {
				// Empty needle is always found.
				notFound = ""
			} else {
				notFound = start + fmt.Sprintf("(?!.*%s).*", q)
			}
		}
		tooShort := idx.start
		if idx.hasCount {
			tooShort += idx.count
		}
		switch {
		case tooShort == 0 && notFound == "":
			return "", false
		case tooShort == 0:
			return notFound, true
		case notFound == "":
			return fmt.Sprintf("(?!.{%d}).*", tooShort), true
		default:
			return fmt.Sprintf("(?:(?!.{%d}).*|%s)", tooShort, notFound), true
		}
	case result >= idx.start:
		distance := result - idx.start
		if idx.isSet {
			if idx.hasCount && distance >= idx.count {
				return "", false
			}
			p := start + window
			if distance > 0 {
				p += fmt.Sprintf("[^%s]{%d}", class, distance)
			}
			return p + "[" + class + "].*", true
		}
		if idx.hasCount && distance+length > idx.count {
			return "", false
		}
		p := start + window
		if distance > 0 {
			p += fmt.Sprintf("(?!.{0,%d}%s)", distance-1, q)
		}
		return p + repeatAny(distance) + q + ".*", true
	default:
		return "", false
	}
}

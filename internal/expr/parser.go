// internal/expr/parser.go
package expr

import (
	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/stratamed/policymatch/internal/types"
)

/*
 * Grammar and raw parse tree.
 *
 * Precedence, loosest to tightest: or, and, not, comparison/membership.
 * Comparisons do not chain (a < b < c is a parse error) and membership has
 * exactly two forms: scalar in set_field, and string_field in ['a', 'b'].
 * A bare identifier parses as a comparison with no right-hand side and is
 * only accepted by the validator when the field is boolean.
 *
 * Keywords (and, or, not, in) are matched as literal identifier values, so
 * the lexer stays four token classes plus punctuation. Numbers carry an
 * optional leading sign; there is no unary minus operator.
 *
 * Why raw/resolved split: participle wants struct tags shaped like the
 * grammar, the validator and interpreter want a small closed node set.
 * Converting immediately after parse keeps grammar churn out of the
 * evaluation path.
 */

var exprLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Whitespace", Pattern: `\s+`},
	{Name: "Number", Pattern: `-?[0-9]+(?:\.[0-9]+)?`},
	{Name: "String", Pattern: `'[^']*'|"[^"]*"`},
	{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_]*`},
	{Name: "Operator", Pattern: `==|!=|<=|>=|<|>`},
	{Name: "LBracket", Pattern: `\[`},
	{Name: "RBracket", Pattern: `\]`},
	{Name: "LParen", Pattern: `\(`},
	{Name: "RParen", Pattern: `\)`},
	{Name: "Comma", Pattern: `,`},
})

type rawOrExpr struct {
	Terms []*rawAndExpr `parser:"@@ ( 'or' @@ )*"`
}

type rawAndExpr struct {
	Terms []*rawUnaryExpr `parser:"@@ ( 'and' @@ )*"`
}

type rawUnaryExpr struct {
	Not     *rawUnaryExpr `parser:"  'not' @@"`
	Primary *rawPrimary   `parser:"| @@"`
}

type rawPrimary struct {
	Group      *rawOrExpr     `parser:"  '(' @@ ')'"`
	Comparison *rawComparison `parser:"| @@"`
}

type rawComparison struct {
	Left *rawOperand `parser:"@@"`
	Rhs  *rawRhs     `parser:"@@?"`
}

type rawRhs struct {
	Compare    *rawCompareRhs    `parser:"  @@"`
	Membership *rawMembershipRhs `parser:"| @@"`
}

type rawCompareRhs struct {
	Op    string      `parser:"@Operator"`
	Right *rawOperand `parser:"@@"`
}

type rawMembershipRhs struct {
	Target *rawSetTarget `parser:"'in' @@"`
}

type rawSetTarget struct {
	Field *string  `parser:"  @Ident"`
	List  []string `parser:"| '[' ( @String ( ',' @String )* ','? )? ']'"`
}

type rawOperand struct {
	Number *float64 `parser:"  @Number"`
	Str    *string  `parser:"| @String"`
	Field  *string  `parser:"| @Ident"`
}

var exprParser = participle.MustBuild[rawOrExpr](
	participle.Lexer(exprLexer),
	participle.Elide("Whitespace"),
	participle.UseLookahead(2),
)

// Parse tokenizes and parses an expression into the resolved AST. Syntax
// errors and over-deep nesting surface as ValidationError; Parse performs no
// schema checks.
func Parse(source string) (Node, error) {
	raw, err := exprParser.ParseString("", source)
	if err != nil {
		return nil, &types.ValidationError{Expression: source, Reason: err.Error()}
	}
	return convertOr(source, raw, 0)
}

func convertOr(source string, r *rawOrExpr, depth int) (Node, error) {
	if depth > types.MaxExpressionDepth {
		return nil, &types.ValidationError{Expression: source, Reason: "expression nests too deeply"}
	}
	node, err := convertAnd(source, r.Terms[0], depth)
	if err != nil {
		return nil, err
	}
	for _, term := range r.Terms[1:] {
		right, err := convertAnd(source, term, depth)
		if err != nil {
			return nil, err
		}
		node = &OrNode{Left: node, Right: right}
	}
	return node, nil
}

func convertAnd(source string, r *rawAndExpr, depth int) (Node, error) {
	node, err := convertUnary(source, r.Terms[0], depth)
	if err != nil {
		return nil, err
	}
	for _, term := range r.Terms[1:] {
		right, err := convertUnary(source, term, depth)
		if err != nil {
			return nil, err
		}
		node = &AndNode{Left: node, Right: right}
	}
	return node, nil
}

func convertUnary(source string, r *rawUnaryExpr, depth int) (Node, error) {
	if depth > types.MaxExpressionDepth {
		return nil, &types.ValidationError{Expression: source, Reason: "expression nests too deeply"}
	}
	if r.Not != nil {
		inner, err := convertUnary(source, r.Not, depth+1)
		if err != nil {
			return nil, err
		}
		return &NotNode{Operand: inner}, nil
	}
	return convertPrimary(source, r.Primary, depth)
}

func convertPrimary(source string, r *rawPrimary, depth int) (Node, error) {
	if r.Group != nil {
		return convertOr(source, r.Group, depth+1)
	}
	return convertComparison(source, r.Comparison)
}

func convertComparison(source string, r *rawComparison) (Node, error) {
	left := convertOperand(r.Left)

	if r.Rhs == nil {
		ref, ok := left.(*FieldRef)
		if !ok {
			return nil, &types.ValidationError{Expression: source, Reason: "a literal is not a condition; compare it to a field"}
		}
		return &FieldAtom{Field: ref.Name}, nil
	}

	if cmp := r.Rhs.Compare; cmp != nil {
		op, ok := opNames[cmp.Op]
		if !ok {
			return nil, &types.ValidationError{Expression: source, Reason: "unknown operator " + cmp.Op}
		}
		return &Compare{Op: op, Left: left, Right: convertOperand(cmp.Right)}, nil
	}

	target := r.Rhs.Membership.Target
	if target.Field != nil {
		return &InSet{Needle: left, Field: *target.Field}, nil
	}
	values := make([]string, len(target.List))
	for i, v := range target.List {
		values[i] = unquote(v)
	}
	return &InList{Needle: left, Values: values}, nil
}

func convertOperand(r *rawOperand) Operand {
	switch {
	case r.Number != nil:
		return &NumberLit{Value: *r.Number}
	case r.Str != nil:
		return &StringLit{Value: unquote(*r.Str)}
	default:
		return &FieldRef{Name: *r.Field}
	}
}

// unquote strips the surrounding quotes from a String token. The lexer
// patterns admit no escape sequences, so the token body is literal.
func unquote(s string) string {
	if len(s) >= 2 {
		return s[1 : len(s)-1]
	}
	return s
}

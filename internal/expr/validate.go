// internal/expr/validate.go
package expr

import (
	"fmt"
	"sort"
	"strings"

	"github.com/stratamed/policymatch/internal/patient"
	"github.com/stratamed/policymatch/internal/types"
)

/*
 * Compilation: parse, validate, canonicalize.
 *
 * Validation enforces the schema contract on the resolved AST:
 *   1. Every referenced field exists (UnknownFieldError otherwise)
 *   2. Operator/operand kinds agree: ordering needs numbers, equality needs
 *      matching scalar kinds, membership needs a set target and string
 *      needle, bare atoms need boolean fields
 *   3. Resource limits hold (expression length, list size)
 *
 * Canonicalization rewrites string literals in place to the canonical form
 * of the field they are tested against: uppercase for string fields, code
 * form for code sets, term form for term sets. The normalizer applies the
 * same forms to payload values, so 'M17.11' matches a stored M1711 without
 * any fuzziness at evaluation time.
 *
 * Why compile-time validation: drafts with unknown fields or illegal
 * operands are rejected at Add/Edit, long before a case depends on them.
 * Evaluation never sees an expression it could refuse.
 */

// Program is a compiled expression ready for repeated evaluation. Programs
// are immutable after Compile and safe for concurrent use.
type Program struct {
	source string
	root   Node
	fields []string
}

// Source returns the original expression text.
func (p *Program) Source() string { return p.source }

// Fields returns the schema fields the expression can consult, sorted.
func (p *Program) Fields() []string {
	return append([]string(nil), p.fields...)
}

// Compile parses and validates an expression against the patient schema.
func Compile(source string) (*Program, error) {
	if strings.TrimSpace(source) == "" {
		return nil, &types.ValidationError{Expression: source, Reason: "empty expression"}
	}
	if len(source) > types.MaxExpressionLength {
		return nil, &types.ValidationError{
			Expression: source[:64] + "...",
			Reason:     fmt.Sprintf("expression length %d exceeds limit of %d", len(source), types.MaxExpressionLength),
		}
	}

	root, err := Parse(source)
	if err != nil {
		return nil, err
	}

	v := &validator{source: source, fields: make(map[string]struct{})}
	if err := v.check(root); err != nil {
		return nil, err
	}

	fields := make([]string, 0, len(v.fields))
	for f := range v.fields {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	return &Program{source: source, root: root, fields: fields}, nil
}

// MustCompile is Compile for expressions known valid at build time, such as
// compiled-in defaults. Panics on error.
func MustCompile(source string) *Program {
	p, err := Compile(source)
	if err != nil {
		panic(err)
	}
	return p
}

type validator struct {
	source string
	fields map[string]struct{}
}

func (v *validator) check(n Node) error {
	switch node := n.(type) {
	case *OrNode:
		if err := v.check(node.Left); err != nil {
			return err
		}
		return v.check(node.Right)
	case *AndNode:
		if err := v.check(node.Left); err != nil {
			return err
		}
		return v.check(node.Right)
	case *NotNode:
		return v.check(node.Operand)
	case *FieldAtom:
		kind, err := v.fieldKind(node.Field)
		if err != nil {
			return err
		}
		if kind != patient.KindBool {
			return v.errf("field %q is a %s; a bare reference requires a boolean field", node.Field, kind)
		}
		return nil
	case *Compare:
		return v.checkCompare(node)
	case *InSet:
		return v.checkInSet(node)
	case *InList:
		return v.checkInList(node)
	}
	return v.errf("unsupported construct")
}

func (v *validator) checkCompare(node *Compare) error {
	lKind, lField, err := v.operandKind(node.Left)
	if err != nil {
		return err
	}
	rKind, rField, err := v.operandKind(node.Right)
	if err != nil {
		return err
	}
	if !lField && !rField {
		return v.errf("comparison of two literals never consults the patient")
	}
	if patient.IsSetKind(lKind) || patient.IsSetKind(rKind) {
		return v.errf("set fields cannot be compared with %s; use membership", node.Op)
	}
	if lKind == patient.KindBool || rKind == patient.KindBool {
		return v.errf("boolean fields cannot be compared with %s; reference them directly", node.Op)
	}

	if node.Op.IsOrdering() {
		if lKind != patient.KindNumber || rKind != patient.KindNumber {
			return v.errf("operator %s requires numeric operands", node.Op)
		}
		return nil
	}
	if lKind != rKind {
		return v.errf("operator %s requires operands of the same kind, got %s and %s", node.Op, lKind, rKind)
	}

	// Equality against a string field compares canonical forms; rewrite the
	// literal side once here instead of on every evaluation.
	if lKind == patient.KindString {
		if lit, ok := node.Left.(*StringLit); ok {
			lit.Value = strings.ToUpper(strings.TrimSpace(lit.Value))
		}
		if lit, ok := node.Right.(*StringLit); ok {
			lit.Value = strings.ToUpper(strings.TrimSpace(lit.Value))
		}
	}
	return nil
}

func (v *validator) checkInSet(node *InSet) error {
	kind, err := v.fieldKind(node.Field)
	if err != nil {
		return err
	}
	if !patient.IsSetKind(kind) {
		return v.errf("membership requires a set field; %q is a %s", node.Field, kind)
	}

	switch needle := node.Needle.(type) {
	case *StringLit:
		switch kind {
		case patient.KindCodeSet:
			needle.Value = patient.NormalizeCode(needle.Value)
		case patient.KindTermSet:
			needle.Value = patient.NormalizeTerm(needle.Value)
		}
		if needle.Value == "" {
			return v.errf("membership needle is empty after canonicalization")
		}
	case *FieldRef:
		nKind, err := v.fieldKind(needle.Name)
		if err != nil {
			return err
		}
		if nKind != patient.KindString {
			return v.errf("membership needle %q must be a string field, got %s", needle.Name, nKind)
		}
	default:
		return v.errf("membership needle must be a string")
	}
	return nil
}

func (v *validator) checkInList(node *InList) error {
	if len(node.Values) == 0 {
		return v.errf("membership list is empty")
	}
	if len(node.Values) > types.MaxListValues {
		return v.errf("membership list has %d values, limit is %d", len(node.Values), types.MaxListValues)
	}

	ref, ok := node.Needle.(*FieldRef)
	if !ok {
		return v.errf("list membership requires a field on the left of in")
	}
	kind, err := v.fieldKind(ref.Name)
	if err != nil {
		return err
	}
	if kind != patient.KindString {
		return v.errf("list membership requires a string field; %q is a %s", ref.Name, kind)
	}
	for i, val := range node.Values {
		node.Values[i] = strings.ToUpper(strings.TrimSpace(val))
	}
	return nil
}

// operandKind resolves an operand to a schema kind. The second return
// reports whether the operand is a field reference.
func (v *validator) operandKind(o Operand) (patient.FieldKind, bool, error) {
	switch op := o.(type) {
	case *NumberLit:
		return patient.KindNumber, false, nil
	case *StringLit:
		return patient.KindString, false, nil
	case *FieldRef:
		kind, err := v.fieldKind(op.Name)
		return kind, true, err
	}
	return 0, false, v.errf("unsupported operand")
}

func (v *validator) fieldKind(name string) (patient.FieldKind, error) {
	kind, ok := patient.KindOf(name)
	if !ok {
		return 0, &types.UnknownFieldError{Expression: v.source, Field: name}
	}
	v.fields[name] = struct{}{}
	return kind, nil
}

func (v *validator) errf(format string, args ...any) error {
	return &types.ValidationError{Expression: v.source, Reason: fmt.Sprintf(format, args...)}
}

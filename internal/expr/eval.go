// internal/expr/eval.go
package expr

import (
	"sort"

	"github.com/stratamed/policymatch/internal/patient"
	"github.com/stratamed/policymatch/internal/types"
)

/*
 * Three-valued interpretation.
 *
 * Every predicate over an absent field yields INDETERMINATE rather than an
 * error or a default: the payload not carrying a value is a fact about the
 * case, not a fault. Connectives follow Kleene logic with left-to-right
 * short-circuit, so a FALSE left conjunct settles the result without
 * consulting fields on the right.
 *
 * Evidence collection rides along with resolution: each field the
 * interpreter actually consults lands in the evidence map with the
 * normalized value it saw (nil when absent), and absent consulted fields
 * accumulate into the sorted Missing list. Short-circuited branches leave
 * no trace, which keeps evidence an exact record of what the outcome
 * depended on.
 *
 * Evaluation is pure: no I/O, no clock, no randomness. The same program
 * and context always produce the same Result.
 */

// Result is the outcome of one evaluation.
type Result struct {
	Value    types.Tristate
	Evidence map[string]any
	Missing  []string
}

// Evaluate interprets the program against a normalized patient context.
func (p *Program) Evaluate(pc *types.PatientContext) Result {
	e := &evaluation{
		pc:       pc,
		evidence: make(map[string]any),
		missing:  make(map[string]struct{}),
	}
	value := e.eval(p.root)

	missing := make([]string, 0, len(e.missing))
	for f := range e.missing {
		missing = append(missing, f)
	}
	sort.Strings(missing)

	return Result{Value: value, Evidence: e.evidence, Missing: missing}
}

type evaluation struct {
	pc       *types.PatientContext
	evidence map[string]any
	missing  map[string]struct{}
}

func (e *evaluation) eval(n Node) types.Tristate {
	switch node := n.(type) {
	case *AndNode:
		left := e.eval(node.Left)
		if left == types.TriFalse {
			return types.TriFalse
		}
		return left.And(e.eval(node.Right))
	case *OrNode:
		left := e.eval(node.Left)
		if left == types.TriTrue {
			return types.TriTrue
		}
		return left.Or(e.eval(node.Right))
	case *NotNode:
		return e.eval(node.Operand).Not()
	case *FieldAtom:
		value, present := e.resolve(node.Field)
		if !present {
			return types.TriIndeterminate
		}
		b, ok := value.(bool)
		if !ok {
			return types.TriIndeterminate
		}
		return types.TriFromBool(b)
	case *Compare:
		return e.compare(node)
	case *InSet:
		return e.inSet(node)
	case *InList:
		return e.inList(node)
	}
	return types.TriIndeterminate
}

func (e *evaluation) compare(node *Compare) types.Tristate {
	left, lok := e.operand(node.Left)
	right, rok := e.operand(node.Right)
	if !lok || !rok {
		return types.TriIndeterminate
	}

	if ln, ok := left.(float64); ok {
		rn, ok := right.(float64)
		if !ok {
			return types.TriIndeterminate
		}
		return types.TriFromBool(compareNumbers(node.Op, ln, rn))
	}

	ls, ok := left.(string)
	if !ok {
		return types.TriIndeterminate
	}
	rs, ok := right.(string)
	if !ok {
		return types.TriIndeterminate
	}
	switch node.Op {
	case OpEq:
		return types.TriFromBool(ls == rs)
	case OpNeq:
		return types.TriFromBool(ls != rs)
	}
	return types.TriIndeterminate
}

func compareNumbers(op Op, a, b float64) bool {
	switch op {
	case OpEq:
		return a == b
	case OpNeq:
		return a != b
	case OpLt:
		return a < b
	case OpLte:
		return a <= b
	case OpGt:
		return a > b
	case OpGte:
		return a >= b
	}
	return false
}

func (e *evaluation) inSet(node *InSet) types.Tristate {
	needle, nok := e.operand(node.Needle)
	setValue, sok := e.resolve(node.Field)
	if !nok || !sok {
		return types.TriIndeterminate
	}
	needleStr, ok := needle.(string)
	if !ok {
		return types.TriIndeterminate
	}

	switch set := setValue.(type) {
	case types.CodeSet:
		return types.TriFromBool(set.Contains(patient.NormalizeCode(needleStr)))
	case types.TermSet:
		return types.TriFromBool(set.Contains(patient.NormalizeTerm(needleStr)))
	}
	return types.TriIndeterminate
}

func (e *evaluation) inList(node *InList) types.Tristate {
	needle, ok := e.operand(node.Needle)
	if !ok {
		return types.TriIndeterminate
	}
	needleStr, isStr := needle.(string)
	if !isStr {
		return types.TriIndeterminate
	}
	for _, v := range node.Values {
		if v == needleStr {
			return types.TriTrue
		}
	}
	return types.TriFalse
}

// operand resolves an operand to its runtime value. Literals are always
// present; field references report absence through the second return.
func (e *evaluation) operand(o Operand) (any, bool) {
	switch op := o.(type) {
	case *NumberLit:
		return op.Value, true
	case *StringLit:
		return op.Value, true
	case *FieldRef:
		return e.resolve(op.Name)
	}
	return nil, false
}

// resolve looks a field up in the context and records evidence. Absent
// fields leave a nil evidence entry and join the missing set.
func (e *evaluation) resolve(field string) (any, bool) {
	value, present := patient.Lookup(e.pc, field)
	if present {
		e.evidence[field] = value
	} else {
		e.evidence[field] = nil
		e.missing[field] = struct{}{}
	}
	return value, present
}

// internal/expr/ast.go

// Package expr implements the whitelisted rule expression language:
// parsing, validation against the patient schema, and three-valued
// interpretation. Expressions are compiled once into a Program and
// interpreted per evaluation; nothing in this package executes user input
// as code.
package expr

/*
 * Resolved AST node types.
 *
 * Two-layer design: the raw parse tree in parser.go mirrors the grammar for
 * the parser generator, then converts into these resolved nodes. Consumers
 * (validator, interpreter) only ever see the resolved form.
 *
 * The whitelist is the closed set of node types below. There is no call
 * node, no attribute access, no assignment, no index expression; anything
 * the grammar cannot parse into these nodes does not exist in the language.
 *
 * Why marker methods: node() and operand() pin the node sets closed at
 * compile time. A new node type must be added here, to the validator and to
 * the interpreter before it can appear in a rule.
 */

// Node is a boolean-valued expression node.
type Node interface {
	node()
}

// OrNode is Kleene disjunction of two subexpressions.
type OrNode struct {
	Left  Node
	Right Node
}

// AndNode is Kleene conjunction of two subexpressions.
type AndNode struct {
	Left  Node
	Right Node
}

// NotNode is Kleene negation.
type NotNode struct {
	Operand Node
}

// Compare tests two scalar operands with a comparison operator.
type Compare struct {
	Op    Op
	Left  Operand
	Right Operand
}

// InSet tests membership of a scalar needle in a set-kind patient field.
type InSet struct {
	Needle Operand
	Field  string
}

// InList tests membership of a string-kind patient field in a literal list.
type InList struct {
	Needle Operand
	Values []string
}

// FieldAtom is a bare reference to a boolean patient field.
type FieldAtom struct {
	Field string
}

func (*OrNode) node()    {}
func (*AndNode) node()   {}
func (*NotNode) node()   {}
func (*Compare) node()   {}
func (*InSet) node()     {}
func (*InList) node()    {}
func (*FieldAtom) node() {}

// Operand is a scalar expression operand.
type Operand interface {
	operand()
}

// FieldRef references a patient schema field by name.
type FieldRef struct {
	Name string
}

// NumberLit is a numeric literal.
type NumberLit struct {
	Value float64
}

// StringLit is a quoted string literal. The validator canonicalizes the
// value in place when the literal's comparison target fixes a canonical
// form (string fields, code sets, term sets).
type StringLit struct {
	Value string
}

func (*FieldRef) operand()  {}
func (*NumberLit) operand() {}
func (*StringLit) operand() {}

// Op enumerates the comparison operators.
type Op int

const (
	OpEq Op = iota
	OpNeq
	OpLt
	OpLte
	OpGt
	OpGte
)

// opNames maps source spellings to operators; the zero spelling set is the
// grammar's complete operator vocabulary.
var opNames = map[string]Op{
	"==": OpEq,
	"!=": OpNeq,
	"<":  OpLt,
	"<=": OpLte,
	">":  OpGt,
	">=": OpGte,
}

// String returns the source spelling of the operator.
func (o Op) String() string {
	for s, op := range opNames {
		if op == o {
			return s
		}
	}
	return "?"
}

// IsOrdering reports whether the operator requires numeric operands.
func (o Op) IsOrdering() bool {
	switch o {
	case OpLt, OpLte, OpGt, OpGte:
		return true
	}
	return false
}

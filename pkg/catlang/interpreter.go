package catlang

import (
	"github.com/antibyte/catterm/pkg/logger"
)

// Statement keywords.
const (
	keywordConfig = "config"
	keywordPrint  = "print"
	tokenAssign   = "="
)

// StatementKind tells which statement form a line was.
type StatementKind int

const (
	StatementAssign StatementKind = iota
	StatementConfig
	StatementPrint
)

// String returns a short name for the statement form.
func (k StatementKind) String() string {
	switch k {
	case StatementConfig:
		return "config"
	case StatementPrint:
		return "print"
	default:
		return "assign"
	}
}

// Result describes what a successful statement did.
type Result struct {
	Kind      StatementKind
	Output    string // formatted value, print statements only
	HasOutput bool
	Variable  string // assigned name, assignments only
	Value     int32  // printed or assigned value
	Base      Base   // current base after the statement
}

// Interpreter is one C@ session: variable store, current base and the cursor
// of the line being evaluated. It is not safe for concurrent Evaluate calls.
type Interpreter struct {
	cursor *Cursor
	vars   *Variables
	base   Base
}

// New returns an interpreter with an empty store printing in decimal.
func New() *Interpreter {
	return NewWithBase(BaseDecimal)
}

// NewWithBase returns an interpreter whose initial base is base.
func NewWithBase(base Base) *Interpreter {
	return &Interpreter{
		cursor: NewCursor(nil),
		vars:   NewVariables(),
		base:   base,
	}
}

// Base returns the current output base.
func (in *Interpreter) Base() Base {
	return in.base
}

// Variables returns a copy of the variable store.
func (in *Interpreter) Variables() map[string]int32 {
	return in.vars.Snapshot()
}

// Names returns the defined variable names in sorted order.
func (in *Interpreter) Names() []string {
	return in.vars.Names()
}

// Lookup returns the value of a single variable.
func (in *Interpreter) Lookup(name string) (int32, bool) {
	return in.vars.Get(name)
}

// ExecuteLine tokenizes line and evaluates it.
func (in *Interpreter) ExecuteLine(line string) (Result, error) {
	return in.Evaluate(Tokenize(line))
}

// Evaluate runs exactly one statement. On error the store and the base are
// left as they were before the call.
func (in *Interpreter) Evaluate(tokens []string) (Result, error) {
	in.cursor.Reset(tokens)

	var (
		res Result
		err error
	)
	switch in.cursor.Peek() {
	case keywordConfig:
		res, err = in.configStatement()
	case keywordPrint:
		res, err = in.printStatement()
	default:
		res, err = in.assignStatement()
	}
	if err != nil {
		logger.Debug(logger.AreaInterpreter, "statement %q failed: %v", tokens, err)
		return Result{}, err
	}
	res.Base = in.base
	return res, nil
}

// EvaluateExpression evaluates tokens as a bare MathExp without a statement
// keyword. It never mutates the interpreter state.
func (in *Interpreter) EvaluateExpression(tokens []string) (int32, error) {
	in.cursor.Reset(tokens)
	return in.parseMathExp()
}

func (in *Interpreter) configStatement() (Result, error) {
	if err := in.cursor.Consume(keywordConfig); err != nil {
		return Result{}, err
	}
	if in.cursor.Len() != 2 {
		return Result{}, newError(KindArity, "", in.cursor.Position())
	}

	value := in.cursor.Peek()
	base, ok := ParseBase(value)
	if !ok {
		return Result{}, newError(KindInvalidBaseValue, value, in.cursor.Position())
	}
	if err := in.cursor.Consume(value); err != nil {
		return Result{}, err
	}

	in.base = base
	logger.Debug(logger.AreaInterpreter, "output base set to %s", base)
	return Result{Kind: StatementConfig}, nil
}

// printStatement evaluates one expression. Tokens left after it are ignored.
func (in *Interpreter) printStatement() (Result, error) {
	if err := in.cursor.Consume(keywordPrint); err != nil {
		return Result{}, err
	}
	value, err := in.parseMathExp()
	if err != nil {
		return Result{}, err
	}
	return Result{
		Kind:      StatementPrint,
		Output:    Format(value, in.base),
		HasOutput: true,
		Value:     value,
	}, nil
}

func (in *Interpreter) assignStatement() (Result, error) {
	name := in.cursor.Peek()
	if !IsIdentifier(name) {
		return Result{}, newError(KindInvalidVariableName, displayToken(name), in.cursor.Position())
	}
	if err := in.cursor.Consume(name); err != nil {
		return Result{}, err
	}
	if in.cursor.Peek() != tokenAssign {
		return Result{}, newError(KindMissingAssignmentOperator, displayToken(in.cursor.Peek()), in.cursor.Position())
	}
	if err := in.cursor.Consume(tokenAssign); err != nil {
		return Result{}, err
	}

	value, err := in.parseMathExp()
	if err != nil {
		return Result{}, err
	}
	in.vars.Set(name, value)
	return Result{Kind: StatementAssign, Variable: name, Value: value}, nil
}

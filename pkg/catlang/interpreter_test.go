package catlang

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

// run executes every line and collects printed output.
func run(t *testing.T, in *Interpreter, lines ...string) []string {
	t.Helper()
	var out []string
	for _, line := range lines {
		res, err := in.ExecuteLine(line)
		if err != nil {
			t.Fatalf("line %q: unexpected error %v", line, err)
		}
		if res.HasOutput {
			out = append(out, res.Output)
		}
	}
	return out
}

func TestPrintStatements(t *testing.T) {
	tests := []struct {
		name  string
		lines []string
		want  []string
	}{
		{"decimal default", []string{"print 5"}, []string{"5"}},
		{"negative decimal", []string{"print 0 - 12"}, []string{"-12"}},
		{"parenthesised precedence", []string{"print ( 2 + 3 ) * 4"}, []string{"20"}},
		{"binary", []string{"config bin", "print 5"}, []string{"00000000000000000000000000000101"}},
		{"binary negative", []string{"config bin", "print -1"}, []string{"11111111111111111111111111111111"}},
		{"hex negative", []string{"config hex", "print -1"}, []string{"0xffffffff"}},
		{"hex positive", []string{"config hex", "print 255"}, []string{"0xff"}},
		{"back to decimal", []string{"config hex", "config dec", "print 255"}, []string{"255"}},
		{"print variable", []string{"x = 3 + 4", "print x"}, []string{"7"}},
		{"trailing garbage tolerated", []string{"print 1 2 3"}, []string{"1"}},
		{"trailing paren tolerated", []string{"print 4 )"}, []string{"4"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := run(t, New(), tt.lines...)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("output = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAssignmentOverwrites(t *testing.T) {
	in := New()
	run(t, in, "x = 3 + 4")
	if v, _ := in.EvaluateExpression([]string{"x"}); v != 7 {
		t.Fatalf("x = %d, want 7", v)
	}
	run(t, in, "x = 1")
	if v, _ := in.EvaluateExpression([]string{"x"}); v != 1 {
		t.Fatalf("x = %d after overwrite, want 1", v)
	}
	run(t, in, "x = x + x")
	if v, _ := in.Lookup("x"); v != 2 {
		t.Fatalf("x = %d after self reference, want 2", v)
	}
}

func TestNamesAreSorted(t *testing.T) {
	in := New()
	if names := in.Names(); len(names) != 0 {
		t.Fatalf("fresh interpreter names = %q", names)
	}
	run(t, in, "zeta = 1", "alpha = 2", "mid = 3", "alpha = 4")
	if got, want := in.Names(), []string{"alpha", "mid", "zeta"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Names = %q, want %q", got, want)
	}
}

func TestAssignmentResult(t *testing.T) {
	in := New()
	res, err := in.ExecuteLine("total = 6 * 7")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Kind != StatementAssign || res.Variable != "total" || res.Value != 42 || res.HasOutput {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestKeywordsAsVariableNames(t *testing.T) {
	in := New()
	run(t, in, "dec = 10", "hex = dec * 2")
	if got := run(t, in, "print hex"); got[0] != "20" {
		t.Errorf("print hex = %s, want 20", got[0])
	}
	// print can be assigned but never read back as a leading token.
	if _, err := in.ExecuteLine("print = 1"); !errors.Is(err, ErrInvalidPrimaryExpression) {
		t.Errorf("print = 1: got %v", err)
	}
}

func TestStatementErrors(t *testing.T) {
	tests := []struct {
		name string
		line string
		want *Error
	}{
		{"config without value", "config", ErrArity},
		{"config with extra token", "config hex bin", ErrArity},
		{"config trailing double space", "config hex  ", ErrArity},
		{"config uppercase", "config HEX", ErrInvalidBaseValue},
		{"config unknown base", "config oct", ErrInvalidBaseValue},
		{"config empty value", "config  ", ErrInvalidBaseValue},
		{"print without expression", "print", ErrInvalidPrimaryExpression},
		{"digit-leading name", "1x = 3", ErrInvalidVariableName},
		{"leading equals", "= 3", ErrInvalidVariableName},
		{"empty line", "", ErrInvalidVariableName},
		{"leading space", " x = 1", ErrInvalidVariableName},
		{"missing equals", "x 3", ErrMissingAssignmentOperator},
		{"name only", "x", ErrMissingAssignmentOperator},
		{"double equals", "x == 3", ErrMissingAssignmentOperator},
		{"missing expression", "x =", ErrInvalidPrimaryExpression},
		{"undefined on right side", "x = y", ErrUndefinedVariable},
		{"division by zero", "x = 4 / 0", ErrDivisionByZero},
		{"unbalanced", "print ( 1", ErrUnbalancedParentheses},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New().ExecuteLine(tt.line)
			if !errors.Is(err, tt.want) {
				t.Fatalf("ExecuteLine(%q) error = %v, want kind %v", tt.line, err, tt.want.Kind)
			}
		})
	}
}

func TestFailedStatementLeavesStateUntouched(t *testing.T) {
	in := New()
	run(t, in, "x = 1", "config hex")

	failing := []string{
		"x = 1 / 0",
		"x = undefinedName",
		"x = ( 2",
		"y = 5 / ( 1 - 1 )",
		"config oct",
		"config bin extra",
	}
	for _, line := range failing {
		if _, err := in.ExecuteLine(line); err == nil {
			t.Fatalf("%q: expected error", line)
		}
	}

	want := map[string]int32{"x": 1}
	if got := in.Variables(); !reflect.DeepEqual(got, want) {
		t.Errorf("variables = %v, want %v", got, want)
	}
	if in.Base() != BaseHexadecimal {
		t.Errorf("base = %v, want hex", in.Base())
	}
}

func TestReplayIsDeterministic(t *testing.T) {
	script := []string{
		"a = 5",
		"b = a * ( a - 2 )",
		"print b",
		"config bin",
		"print b - 16",
		"a = b / 4",
		"config hex",
		"print a * -1",
		"c = a + b",
		"print c",
	}

	first, second := New(), New()
	out1 := run(t, first, script...)
	out2 := run(t, second, script...)

	if !reflect.DeepEqual(out1, out2) {
		t.Errorf("outputs differ: %v vs %v", out1, out2)
	}
	if !reflect.DeepEqual(first.Variables(), second.Variables()) {
		t.Errorf("stores differ: %v vs %v", first.Variables(), second.Variables())
	}
	if out1[0] != "15" || out1[2] != "0xfffffffd" || out1[3] != "0x12" {
		t.Errorf("unexpected outputs %v", out1)
	}
}

func TestNewWithBase(t *testing.T) {
	in := NewWithBase(BaseHexadecimal)
	if got := run(t, in, "print 16"); got[0] != "0x10" {
		t.Errorf("print 16 = %s", got[0])
	}
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		line     string
		contains string
	}{
		{"x = 1 / 0", "Attempted division by zero."},
		{"config oct", "oct is not a permitted value"},
		{"print ( 1", "Parentheses must be closed."},
		{"x = nope", "Variable not set. (nope)"},
		{"1x = 2", "SYNTAX ERROR: Variable must begin with a letter"},
		{"x = y", "EVALUATION ERROR"},
	}
	for _, tt := range tests {
		_, err := New().ExecuteLine(tt.line)
		if err == nil {
			t.Fatalf("%q: expected error", tt.line)
		}
		if !strings.Contains(err.Error(), tt.contains) {
			t.Errorf("%q: message %q does not contain %q", tt.line, err.Error(), tt.contains)
		}
	}
}

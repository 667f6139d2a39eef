package catlang

import (
	"errors"
	"math"
	"math/rand"
	"strconv"
	"testing"
)

// TestEvalExpression tests the expression evaluation engine
func TestEvalExpression(t *testing.T) {
	in := New()
	in.vars.Set("x", 7)
	in.vars.Set("y2", -3)

	tests := []struct {
		name     string
		expr     string
		expected int32
	}{
		{"single literal", "42", 42},
		{"negative literal", "-5", -5},
		{"zero", "0", 0},
		{"simple addition", "2 + 3", 5},
		{"precedence", "2 + 3 * 4", 14},
		{"parentheses override", "( 2 + 3 ) * 4", 20},
		{"nested parentheses", "( ( 1 + 2 ) * ( 3 + 4 ) )", 21},
		{"left associative subtraction", "10 - 4 - 3", 3},
		{"left associative division", "100 / 10 / 5", 2},
		{"truncating division", "7 / 2", 3},
		{"truncating negative dividend", "-7 / 2", -3},
		{"truncating negative divisor", "7 / -2", -3},
		{"variables", "x * y2", -21},
		{"variable in parentheses", "( x + 1 ) / 2", 4},
		{"subtract negative literal", "1 - -1", 2},
		{"overflow wraps on add", "2147483647 + 1", math.MinInt32},
		{"overflow wraps on multiply", "65536 * 65536", 0},
		{"min divided by minus one", "-2147483648 / -1", math.MinInt32},
		{"literal above int32 wraps", "2147483648", math.MinInt32},
		{"large literal wraps", "4294967297", 1},
		{"trailing tokens ignored", "1 2", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := in.EvaluateExpression(Tokenize(tt.expr))
			if err != nil {
				t.Fatalf("EvaluateExpression(%q) returned error: %v", tt.expr, err)
			}
			if got != tt.expected {
				t.Errorf("EvaluateExpression(%q) = %d, want %d", tt.expr, got, tt.expected)
			}
		})
	}
}

func TestEvalExpressionErrors(t *testing.T) {
	in := New()
	in.vars.Set("zero", 0)

	tests := []struct {
		name string
		expr string
		want *Error
	}{
		{"division by literal zero", "1 / 0", ErrDivisionByZero},
		{"division by zero expression", "1 / ( 2 - 2 )", ErrDivisionByZero},
		{"division by zero variable", "5 / zero", ErrDivisionByZero},
		{"nested division by zero", "( 1 + ( 5 / ( 3 - 3 ) ) ) * 2", ErrDivisionByZero},
		{"missing close paren", "( 1 + 2", ErrUnbalancedParentheses},
		{"wrong close token", "( 1 + 2 ]", ErrUnbalancedParentheses},
		{"undefined variable", "a + 1", ErrUndefinedVariable},
		{"undefined in parentheses", "( 1 * b )", ErrUndefinedVariable},
		{"operator as primary", "+ 1", ErrInvalidPrimaryExpression},
		{"bare minus", "-", ErrInvalidPrimaryExpression},
		{"dangling operator", "1 +", ErrInvalidPrimaryExpression},
		{"no tokens", "", ErrInvalidPrimaryExpression},
		{"underscore name", "a_b", ErrInvalidPrimaryExpression},
		{"double space makes empty token", "1 +  2", ErrInvalidPrimaryExpression},
		{"close paren first", ")", ErrInvalidPrimaryExpression},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := in.EvaluateExpression(Tokenize(tt.expr))
			if err == nil {
				t.Fatalf("EvaluateExpression(%q) expected error %v", tt.expr, tt.want.Kind)
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("EvaluateExpression(%q) error = %v, want kind %v", tt.expr, err, tt.want.Kind)
			}
		})
	}
}

func TestLiteralIdentity(t *testing.T) {
	in := New()
	values := []int32{0, 1, -1, 9, -10, 12345, math.MaxInt32, math.MinInt32}
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		values = append(values, int32(rng.Uint32()))
	}

	for _, n := range values {
		tok := strconv.FormatInt(int64(n), 10)
		got, err := in.EvaluateExpression([]string{tok})
		if err != nil {
			t.Fatalf("literal %s: unexpected error %v", tok, err)
		}
		if got != n {
			t.Errorf("literal %s evaluated to %d", tok, got)
		}
	}
}

func TestBinaryOperatorsMatchNativeArithmetic(t *testing.T) {
	in := New()
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 500; i++ {
		a, b, c := int32(rng.Uint32()), int32(rng.Uint32()), int32(rng.Uint32())
		sa := strconv.FormatInt(int64(a), 10)
		sb := strconv.FormatInt(int64(b), 10)
		sc := strconv.FormatInt(int64(c), 10)

		cases := []struct {
			tokens []string
			want   int32
		}{
			{[]string{sa, "+", sb}, a + b},
			{[]string{sa, "-", sb}, a - b},
			{[]string{sa, "*", sb}, a * b},
			{[]string{sa, "-", sb, "-", sc}, a - b - c},
			{[]string{sa, "+", sb, "*", sc}, a + b*c},
		}
		for _, tc := range cases {
			got, err := in.EvaluateExpression(tc.tokens)
			if err != nil {
				t.Fatalf("%v: unexpected error %v", tc.tokens, err)
			}
			if got != tc.want {
				t.Fatalf("%v = %d, want %d", tc.tokens, got, tc.want)
			}
		}
	}
}

func TestExpressionDoesNotMutateStore(t *testing.T) {
	in := New()
	in.vars.Set("a", 3)

	if _, err := in.EvaluateExpression(Tokenize("a * a + a")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got, _ := in.Lookup("a"); got != 3 {
		t.Errorf("a changed to %d", got)
	}
	if in.vars.Len() != 1 {
		t.Errorf("store has %d entries, want 1", in.vars.Len())
	}
}

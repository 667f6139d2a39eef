package catlang

// Operator tokens understood by the evaluator.
const (
	tokenPlus       = "+"
	tokenMinus      = "-"
	tokenMultiply   = "*"
	tokenDivide     = "/"
	tokenLeftParen  = "("
	tokenRightParen = ")"
)

// parseMathExp handles MathExp := SumExp.
func (in *Interpreter) parseMathExp() (int32, error) {
	return in.parseSumExp()
}

// parseSumExp handles + and - (lowest precedence), folding left to right.
func (in *Interpreter) parseSumExp() (int32, error) {
	result, err := in.parseProductExp()
	if err != nil {
		return 0, err
	}

	for {
		switch next := in.cursor.Peek(); next {
		case tokenPlus, tokenMinus:
			if err := in.cursor.Consume(next); err != nil {
				return 0, err
			}
			value, err := in.parseProductExp()
			if err != nil {
				return 0, err
			}
			if next == tokenPlus {
				result += value
			} else {
				result -= value
			}
		default:
			return result, nil
		}
	}
}

// parseProductExp handles * and /. A zero divisor fails immediately.
func (in *Interpreter) parseProductExp() (int32, error) {
	result, err := in.parsePrimaryExp()
	if err != nil {
		return 0, err
	}

	for {
		switch next := in.cursor.Peek(); next {
		case tokenMultiply:
			if err := in.cursor.Consume(next); err != nil {
				return 0, err
			}
			value, err := in.parsePrimaryExp()
			if err != nil {
				return 0, err
			}
			result *= value
		case tokenDivide:
			if err := in.cursor.Consume(next); err != nil {
				return 0, err
			}
			divisorPos := in.cursor.Position()
			value, err := in.parsePrimaryExp()
			if err != nil {
				return 0, err
			}
			if value == 0 {
				return 0, newError(KindDivisionByZero, "", divisorPos)
			}
			// Go defines MinInt32 / -1 as MinInt32, no panic.
			result /= value
		default:
			return result, nil
		}
	}
}

// parsePrimaryExp handles parenthesised expressions, integer literals and
// variable references.
func (in *Interpreter) parsePrimaryExp() (int32, error) {
	next := in.cursor.Peek()
	pos := in.cursor.Position()

	switch {
	case next == tokenLeftParen:
		if err := in.cursor.Consume(next); err != nil {
			return 0, err
		}
		value, err := in.parseMathExp()
		if err != nil {
			return 0, err
		}
		if closing := in.cursor.Peek(); closing != tokenRightParen {
			return 0, newError(KindUnbalancedParentheses, displayToken(closing), in.cursor.Position())
		}
		if err := in.cursor.Consume(tokenRightParen); err != nil {
			return 0, err
		}
		return value, nil

	case IsInteger(next):
		if err := in.cursor.Consume(next); err != nil {
			return 0, err
		}
		return parseInteger(next), nil

	case IsIdentifier(next):
		value, ok := in.vars.Get(next)
		if !ok {
			return 0, newError(KindUndefinedVariable, next, pos)
		}
		if err := in.cursor.Consume(next); err != nil {
			return 0, err
		}
		return value, nil
	}

	return 0, newError(KindInvalidPrimaryExpression, displayToken(next), pos)
}

// displayToken hides the end-marker from error messages.
func displayToken(tok string) string {
	if tok == EndMarker {
		return ""
	}
	return tok
}

package catlang

// EndMarker is returned by Peek once every token has been consumed. It can
// never be produced by Tokenize since input lines are split on spaces only and
// ETX is not a valid C@ token.
const EndMarker = "\u0003"

// Cursor walks the tokens of a single line.
type Cursor struct {
	tokens   []string
	position int
}

// NewCursor creates a cursor at position 0.
func NewCursor(tokens []string) *Cursor {
	return &Cursor{tokens: tokens}
}

// Reset replaces the token sequence and rewinds to position 0.
func (c *Cursor) Reset(tokens []string) {
	c.tokens = tokens
	c.position = 0
}

// Peek returns the current token or EndMarker. It never fails.
func (c *Cursor) Peek() string {
	if c.position >= len(c.tokens) {
		return EndMarker
	}
	return c.tokens[c.position]
}

// Consume advances past the current token if it equals expected.
func (c *Cursor) Consume(expected string) error {
	next := c.Peek()
	if next == EndMarker {
		return &Error{Kind: KindUnexpectedEndOfInput, Expected: expected, Position: c.position}
	}
	if next != expected {
		return &Error{Kind: KindUnexpectedToken, Token: next, Expected: expected, Position: c.position}
	}
	c.position++
	return nil
}

// Position returns the index of the current token.
func (c *Cursor) Position() int {
	return c.position
}

// Len returns the number of tokens on the line.
func (c *Cursor) Len() int {
	return len(c.tokens)
}

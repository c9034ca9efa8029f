// internal/expr/expr.go
package expr

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"math/big"
	"regexp"
	"strconv"
	"strings"
)

// Expressions are restricted to integer literals, unary +/-, binary
// + - * /, and parentheses. Anything else is rejected by the grammar walk
// itself, so no identifier, call or index expression is ever evaluated.

// allowedChars is the full input alphabet. Everything else is stripped
// before parsing, which neutralizes injection of arbitrary syntax.
const allowedChars = "0123456789+-*/() "

var numberPattern = regexp.MustCompile(`\d+`)

// Result is the outcome of validating and evaluating a player expression.
// Invalid input is a normal game event, so failures are reported through
// Valid/Error rather than an error return.
type Result struct {
	Valid bool

	// Value is the exact evaluated value, nil unless Valid. Rationals are
	// kept exact so 12/2 is integral and 3/2 stays fractional.
	Value *big.Rat

	Error       string
	NumbersUsed []int
}

// Integral reports whether the evaluated value is a whole number.
func (r *Result) Integral() bool {
	return r.Value != nil && r.Value.IsInt()
}

// Int returns the evaluated value truncated toward zero, or 0 when invalid.
func (r *Result) Int() int {
	if r.Value == nil {
		return 0
	}
	q := new(big.Int).Quo(r.Value.Num(), r.Value.Denom())
	return int(q.Int64())
}

// DistanceTo returns the absolute distance from target, computed on the
// exact value and rounded up, so a fractional result never passes for an
// exact hit. Zero when the result is invalid.
func (r *Result) DistanceTo(target int) int {
	if r.Value == nil {
		return 0
	}
	diff := new(big.Rat).SetInt64(int64(target))
	diff.Sub(diff, r.Value)
	diff.Abs(diff)
	d := int(new(big.Int).Quo(diff.Num(), diff.Denom()).Int64())
	if !diff.IsInt() {
		d++
	}
	return d
}

// Sanitize strips every character outside the allowed alphabet.
func Sanitize(expression string) string {
	var b strings.Builder
	b.Grow(len(expression))
	for _, c := range expression {
		if strings.ContainsRune(allowedChars, c) {
			b.WriteRune(c)
		}
	}
	return b.String()
}

// ExtractNumbers returns every integer literal in the expression, in order
// of appearance. Literals are contiguous digit runs, so "12+3" yields
// [12, 3]. Runs too large for int are dropped; validation reports them
// separately.
func ExtractNumbers(expression string) []int {
	runs := numberPattern.FindAllString(Sanitize(expression), -1)
	nums := make([]int, 0, len(runs))
	for _, run := range runs {
		n, err := strconv.Atoi(run)
		if err != nil {
			continue
		}
		nums = append(nums, n)
	}
	return nums
}

// validateNumbers checks, as a multiset-subset test, that the expression
// uses only numbers from available and no number more often than it is
// available. Returns the user-facing error message, or "" when valid.
func validateNumbers(expression string, available []int) string {
	avail := make(map[int]int, len(available))
	for _, n := range available {
		avail[n]++
	}

	used := make(map[int]int)
	for _, run := range numberPattern.FindAllString(expression, -1) {
		n, err := strconv.Atoi(run)
		if err != nil {
			// Overflows int, so it cannot possibly be available.
			return fmt.Sprintf("Number %s is not available", strings.TrimLeft(run, "0"))
		}
		used[n]++
		if avail[n] == 0 {
			return fmt.Sprintf("Number %d is not available", n)
		}
		if used[n] > avail[n] {
			return fmt.Sprintf("Number %d used more times than available", n)
		}
	}
	return ""
}

// Evaluate parses the expression and computes its exact value. The input is
// sanitized first; errors carry user-facing messages.
func Evaluate(expression string) (*big.Rat, error) {
	clean := Sanitize(expression)
	if strings.TrimSpace(clean) == "" {
		return nil, fmt.Errorf("Empty expression")
	}
	// go/parser treats "//" as a line comment, which would silently truncate
	// the rest of the expression instead of failing.
	if strings.Contains(clean, "//") {
		return nil, fmt.Errorf("Invalid syntax: unexpected //")
	}

	node, err := parser.ParseExpr(clean)
	if err != nil {
		return nil, fmt.Errorf("Invalid syntax: %v", err)
	}
	return eval(node)
}

func eval(node ast.Expr) (*big.Rat, error) {
	switch n := node.(type) {
	case *ast.BasicLit:
		if n.Kind != token.INT {
			return nil, fmt.Errorf("Invalid expression structure")
		}
		// Literals are read as decimal digit runs, matching extraction.
		v, ok := new(big.Rat).SetString(n.Value)
		if !ok {
			return nil, fmt.Errorf("Invalid expression structure")
		}
		return v, nil

	case *ast.ParenExpr:
		return eval(n.X)

	case *ast.UnaryExpr:
		operand, err := eval(n.X)
		if err != nil {
			return nil, err
		}
		switch n.Op {
		case token.SUB:
			return new(big.Rat).Neg(operand), nil
		case token.ADD:
			return operand, nil
		}
		return nil, fmt.Errorf("Invalid expression structure")

	case *ast.BinaryExpr:
		left, err := eval(n.X)
		if err != nil {
			return nil, err
		}
		right, err := eval(n.Y)
		if err != nil {
			return nil, err
		}
		switch n.Op {
		case token.ADD:
			return new(big.Rat).Add(left, right), nil
		case token.SUB:
			return new(big.Rat).Sub(left, right), nil
		case token.MUL:
			return new(big.Rat).Mul(left, right), nil
		case token.QUO:
			if right.Sign() == 0 {
				return nil, fmt.Errorf("Division by zero")
			}
			return new(big.Rat).Quo(left, right), nil
		}
		return nil, fmt.Errorf("Invalid expression structure")
	}
	return nil, fmt.Errorf("Invalid expression structure")
}

// ParseAndValidate is the full submission pipeline: sanitize, check number
// usage against the available multiset, then evaluate. Number usage is
// checked before syntax so "25+25" with one 25 reports the number error
// even if the rest of the expression is malformed.
func ParseAndValidate(expression string, available []int) *Result {
	res := &Result{NumbersUsed: []int{}}

	clean := Sanitize(expression)
	if strings.TrimSpace(clean) == "" {
		res.Error = "Empty expression"
		return res
	}

	res.NumbersUsed = ExtractNumbers(clean)

	if msg := validateNumbers(clean, available); msg != "" {
		res.Error = msg
		return res
	}

	value, err := Evaluate(clean)
	if err != nil {
		res.Error = err.Error()
		return res
	}

	res.Valid = true
	res.Value = value
	return res
}

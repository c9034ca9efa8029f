// internal/expr/expr_test.go
package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAndValidateArithmetic(t *testing.T) {
	available := []int{1, 2, 3, 4, 6, 25, 50, 75, 100}

	cases := []struct {
		expr string
		want int
	}{
		{"25+50", 75},
		{"100 * 6", 600},
		{"(100+75)*3", 525},
		{"100*(6+3)+50", 950},
		{"75*3-25", 200},
		{"100/25", 4},
		{"2+3*4", 14},
		{"(50-25)*(6+3)", 225},
		{"-(3-75)", 72},
		{"6/3*50", 100},
	}
	for _, c := range cases {
		res := ParseAndValidate(c.expr, available)
		require.True(t, res.Valid, "expr %q: %s", c.expr, res.Error)
		assert.True(t, res.Integral(), "expr %q", c.expr)
		assert.Equal(t, c.want, res.Int(), "expr %q", c.expr)
	}
}

func TestParseAndValidateNumberUsage(t *testing.T) {
	available := []int{25, 50, 75, 3, 6}

	res := ParseAndValidate("25+7", available)
	assert.False(t, res.Valid)
	assert.Equal(t, "Number 7 is not available", res.Error)

	res = ParseAndValidate("25+25", available)
	assert.False(t, res.Valid)
	assert.Equal(t, "Number 25 used more times than available", res.Error)

	// Two of the same small number is fine when drawn twice.
	res = ParseAndValidate("4+4", []int{4, 4, 9})
	require.True(t, res.Valid, res.Error)
	assert.Equal(t, 8, res.Int())

	// Usage is checked before syntax, so the number error wins.
	res = ParseAndValidate("25+*7", available)
	assert.False(t, res.Valid)
	assert.Equal(t, "Number 7 is not available", res.Error)
}

func TestParseAndValidateErrors(t *testing.T) {
	available := []int{1, 2, 3}

	res := ParseAndValidate("", available)
	assert.False(t, res.Valid)
	assert.Equal(t, "Empty expression", res.Error)

	res = ParseAndValidate("   ", available)
	assert.Equal(t, "Empty expression", res.Error)

	// Nothing survives sanitization.
	res = ParseAndValidate("abc def", available)
	assert.Equal(t, "Empty expression", res.Error)

	res = ParseAndValidate("1/(2-2)", available)
	assert.False(t, res.Valid)
	assert.Equal(t, "Division by zero", res.Error)

	res = ParseAndValidate("1+*2", available)
	assert.False(t, res.Valid)
	assert.Contains(t, res.Error, "Invalid syntax")

	res = ParseAndValidate("3//2", available)
	assert.False(t, res.Valid)
	assert.Contains(t, res.Error, "Invalid syntax")
}

func TestSanitizeStripsInjection(t *testing.T) {
	assert.Equal(t, "(1)", Sanitize("foo(1)"))
	assert.Equal(t, "100+(1)", Sanitize("100+eval(1)"))
	assert.Equal(t, "2   +3", Sanitize("2 ; import os\n+3"))

	// Stripped letters leave a plain arithmetic expression behind.
	res := ParseAndValidate("100+eval(1)", []int{100, 1})
	require.True(t, res.Valid, res.Error)
	assert.Equal(t, 101, res.Int())
}

func TestFractionalResults(t *testing.T) {
	res := ParseAndValidate("3/2", []int{3, 2})
	require.True(t, res.Valid, res.Error)
	assert.False(t, res.Integral())
	assert.Equal(t, 1, res.Int()) // truncated toward zero

	res = ParseAndValidate("(3-10)/2", []int{3, 10, 2})
	require.True(t, res.Valid, res.Error)
	assert.Equal(t, -3, res.Int())

	// Exact rational arithmetic keeps 12/2 integral.
	res = ParseAndValidate("(4+8)/2", []int{4, 8, 2})
	require.True(t, res.Valid, res.Error)
	assert.True(t, res.Integral())
	assert.Equal(t, 6, res.Int())
}

func TestDistanceTo(t *testing.T) {
	res := ParseAndValidate("25+75", []int{25, 75})
	require.True(t, res.Valid, res.Error)
	assert.Equal(t, 0, res.DistanceTo(100))
	assert.Equal(t, 3, res.DistanceTo(97))
	assert.Equal(t, 3, res.DistanceTo(103))

	// 100.5 truncates to 100 for display but is still half off target,
	// so the distance must not collapse to zero.
	res = ParseAndValidate("(25*8+1)/2", []int{25, 50, 8, 1, 2})
	require.True(t, res.Valid, res.Error)
	assert.False(t, res.Integral())
	assert.Equal(t, 100, res.Int())
	assert.Equal(t, 1, res.DistanceTo(100))

	res = ParseAndValidate("3/2", []int{3, 2})
	require.True(t, res.Valid, res.Error)
	assert.Equal(t, 1, res.DistanceTo(2))
	assert.Equal(t, 99, res.DistanceTo(100))
}

func TestExtractNumbers(t *testing.T) {
	assert.Equal(t, []int{12, 3, 100}, ExtractNumbers("12+3*100"))
	assert.Equal(t, []int{}, ExtractNumbers("+-*/"))

	// Sanitization strips the letter first, so the digit runs merge.
	assert.Equal(t, []int{12}, ExtractNumbers("1x2"))
}

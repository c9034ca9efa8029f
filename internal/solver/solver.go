// internal/solver/solver.go
package solver

import (
	"fmt"
	"strconv"
)

// candidate is one reachable value and the expression producing it.
type candidate struct {
	value int
	expr  string
}

// search carries the best answer found so far through the recursion, so no
// state is shared outside a single Solve call.
type search struct {
	target   int
	bestExpr string
	bestVal  int
	bestDiff int
}

// Solve finds a combination of the given numbers, each used at most once,
// that equals target exactly, or failing that the combination whose value is
// closest to target. Classical rules apply: intermediate results stay
// positive and division must be exact. Returns the fully parenthesized
// expression and the achieved value. The expression is "" only when every
// reachable value is at least as far from target as zero is; any input
// below twice the target rules that out.
func Solve(target int, numbers []int) (string, int) {
	s := &search{target: target, bestDiff: target}
	pool := make([]candidate, len(numbers))
	for i, n := range numbers {
		pool[i] = candidate{value: n, expr: strconv.Itoa(n)}
	}
	s.run(pool)
	return s.bestExpr, s.bestVal
}

// run reduces the pool by combining pairs until an exact match is found or
// every fold has been tried. Returns true to short-circuit on an exact match.
func (s *search) run(pool []candidate) bool {
	for _, c := range pool {
		diff := s.target - c.value
		if diff < 0 {
			diff = -diff
		}
		if diff < s.bestDiff {
			s.bestDiff = diff
			s.bestVal = c.value
			s.bestExpr = c.expr
			if diff == 0 {
				return true
			}
		}
	}
	if len(pool) <= 1 {
		return false
	}

	for i := range pool {
		for j := range pool {
			if i == j {
				continue
			}
			a, b := pool[i], pool[j]

			rest := make([]candidate, 0, len(pool)-2)
			for k := range pool {
				if k != i && k != j {
					rest = append(rest, pool[k])
				}
			}

			// Commutative ops only need one ordering of each pair.
			if i < j {
				if s.run(extend(rest, combine(a, b, "+", a.value+b.value))) {
					return true
				}
				// Multiplying by 1 never helps.
				if a.value != 1 && b.value != 1 {
					if s.run(extend(rest, combine(a, b, "*", a.value*b.value))) {
						return true
					}
				}
			}

			// Intermediate results must stay positive.
			if a.value > b.value {
				if s.run(extend(rest, combine(a, b, "-", a.value-b.value))) {
					return true
				}
			}

			// Division must be exact; dividing by 1 never helps.
			if b.value > 1 && a.value%b.value == 0 {
				if s.run(extend(rest, combine(a, b, "/", a.value/b.value))) {
					return true
				}
			}
		}
	}
	return false
}

func combine(a, b candidate, op string, value int) candidate {
	return candidate{value: value, expr: fmt.Sprintf("(%s %s %s)", a.expr, op, b.expr)}
}

func extend(rest []candidate, c candidate) []candidate {
	next := make([]candidate, len(rest)+1)
	copy(next, rest)
	next[len(rest)] = c
	return next
}

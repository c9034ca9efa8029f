// internal/handlers/solve.go
package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/binkiewka/countdown-service/internal/solver"
)

type solveResponse struct {
	Target     int    `json:"target"`
	Numbers    []int  `json:"numbers"`
	Expression string `json:"expression"`
	Value      int    `json:"value"`
	Distance   int    `json:"distance"`
}

// SolveHandler answers "what was the best possible" queries:
// GET /solve?target=952&numbers=25,50,75,3,6.
func SolveHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		target, err := strconv.Atoi(r.URL.Query().Get("target"))
		if err != nil || target <= 0 {
			http.Error(w, "target must be a positive integer", http.StatusBadRequest)
			return
		}

		parts := strings.Split(r.URL.Query().Get("numbers"), ",")
		if len(parts) == 0 || parts[0] == "" {
			http.Error(w, "numbers is required (comma-separated)", http.StatusBadRequest)
			return
		}
		// The search is exponential in the number count; 6 is the classical
		// maximum and stays fast.
		if len(parts) > 6 {
			http.Error(w, "at most 6 numbers", http.StatusBadRequest)
			return
		}
		numbers := make([]int, 0, len(parts))
		for _, p := range parts {
			n, err := strconv.Atoi(strings.TrimSpace(p))
			if err != nil || n <= 0 {
				http.Error(w, "numbers must be positive integers", http.StatusBadRequest)
				return
			}
			numbers = append(numbers, n)
		}

		start := time.Now()
		expr, value := solver.Solve(target, numbers)
		s.Metrics.SolverDuration.Observe(time.Since(start).Seconds())

		distance := target - value
		if distance < 0 {
			distance = -distance
		}
		writeJSON(w, solveResponse{
			Target:     target,
			Numbers:    numbers,
			Expression: expr,
			Value:      value,
			Distance:   distance,
		})
	}
}

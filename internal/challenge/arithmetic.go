package challenge

import (
	"fmt"
	"math/rand/v2"
	"strconv"
)

// Operand ranges. Multiplication uses a smaller range to keep the mental
// arithmetic bounded.
const (
	addSubMax = 20
	mulMax    = 10

	distractorCount = 3
	// collisionOffset replaces a distractor that collides with zero or with
	// another displayed value, guaranteeing four distinct options.
	collisionOffset = 11
)

// newArithmetic generates an "a op b = ?" puzzle with four displayed options:
// the correct answer plus three distractors perturbed by small random
// offsets.
func (e *Engine) newArithmetic() *Challenge {
	a := 1 + rand.IntN(addSubMax)
	b := 1 + rand.IntN(addSubMax)
	op := []rune{'+', '-', '*'}[rand.IntN(3)]
	return e.buildArithmetic(a, b, op)
}

// buildArithmetic is the deterministic part of generation, split out so tests
// can pin the operands.
func (e *Engine) buildArithmetic(a, b int, op rune) *Challenge {
	var answer int
	switch op {
	case '-':
		// Keep the result non-negative.
		if a < b {
			a, b = b, a
		}
		answer = a - b
	case '*':
		if a > mulMax {
			a = 1 + rand.IntN(mulMax)
		}
		if b > mulMax {
			b = 1 + rand.IntN(mulMax)
		}
		answer = a * b
	default:
		op = '+'
		answer = a + b
	}

	labels := e.optionLabels(answer)
	opts := make([]Option, len(labels))
	for i, l := range labels {
		opts[i] = Option{Label: l, Token: newToken()}
	}

	return &Challenge{
		Kind:    KindArithmetic,
		Prompt:  fmt.Sprintf("%d %c %d = ?", a, op, b),
		Answer:  strconv.Itoa(answer),
		Options: opts,
	}
}

// optionLabels produces the four shuffled display values: the answer and
// three distractors, pairwise distinct and none equal to zero (unless zero is
// the answer itself).
func (e *Engine) optionLabels(answer int) []string {
	values := []int{
		answer + 1 + rand.IntN(5),
		answer - (1 + rand.IntN(5)),
		answer + 6 + rand.IntN(5),
	}

	// Deterministic collision repair: a distractor that lands on zero, on the
	// answer, or on another distractor is replaced by answer+11 (then +22, …)
	// which is guaranteed clear of the perturbation range.
	seen := map[int]bool{answer: true}
	next := answer + collisionOffset
	for i, v := range values {
		for v == 0 || seen[v] {
			v = next
			next += collisionOffset
		}
		values[i] = v
		seen[v] = true
	}

	values = append(values, answer)
	rand.Shuffle(len(values), func(i, j int) {
		values[i], values[j] = values[j], values[i]
	})

	labels := make([]string, len(values))
	for i, v := range values {
		labels[i] = strconv.Itoa(v)
	}
	return labels
}

package demoflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluatorArithmetic(t *testing.T) {
	cases := []struct {
		expr string
		want float64
	}{
		{"1 + 2", 3},
		{"2 * (3 + 4)", 14},
		{"10 / 4", 2.5},
		{"-5 + 3", -2},
		{"2 + 3 * 4", 14},
		{"(2 + 3) * 4", 20},
	}
	for _, c := range cases {
		v, err := newEvaluator(c.expr, nil).evaluate()
		require.NoError(t, err, c.expr)
		assert.InDelta(t, c.want, v, 1e-9, c.expr)
	}
}

func TestEvaluatorVariables(t *testing.T) {
	vars := map[string]float64{"x": 4, "y": 2}
	v, err := newEvaluator("x * y + 1", vars).evaluate()
	require.NoError(t, err)
	assert.Equal(t, 9.0, v)
}

func TestEvaluatorUndefinedVariable(t *testing.T) {
	_, err := newEvaluator("z + 1", map[string]float64{}).evaluate()
	require.Error(t, err)
}

func TestEvaluatorDivisionByZero(t *testing.T) {
	_, err := newEvaluator("1 / 0", nil).evaluate()
	require.Error(t, err)
}

func TestEvaluatorTrailingTokenIsError(t *testing.T) {
	_, err := newEvaluator("1 + 2 3", nil).evaluate()
	require.Error(t, err)
}

func TestEvaluatorMissingParen(t *testing.T) {
	_, err := newEvaluator("(1 + 2", nil).evaluate()
	require.Error(t, err)
}

package textutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeName(t *testing.T) {
	cases := []struct {
		in       string
		expected string
	}{
		{in: "PÉREZ, Juan  Carlos", expected: "perez juan carlos"},
		{in: "  Muñoz-Ibáñez S.A. ", expected: "munoz ibanez s a"},
		{in: "", expected: ""},
	}
	for _, test := range cases {
		require.Equal(t, test.expected, NormalizeName(test.in), test.in)
	}
}

func TestSortedTokens(t *testing.T) {
	require.Equal(t, SortedTokens("PEREZ, Juan"), SortedTokens("juan pérez"))
	require.NotEqual(t, SortedTokens("PEREZ, Juan"), SortedTokens("juana perez"))
}

func TestContainsWord(t *testing.T) {
	require.True(t, ContainsWord("Transportes del Norte S.R.L.", []string{"s r l"}))
	require.True(t, ContainsWord("Banco Nación", []string{"banco"}))
	require.False(t, ContainsWord("Sanchez, Ana", []string{"sa"}))
}

func TestOnlyDigits(t *testing.T) {
	require.Equal(t, "20123456789", OnlyDigits("20-12345678-9"))
	require.Equal(t, "12345678", OnlyDigits("D.N.I. 12.345.678"))
}

package casekey

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	require.Equal(t, Normalize("FRE 007767/2025"), Normalize("FRE-7767/2025"))
	require.Equal(t, "FRE-7767/2025", Normalize("  fre   007767 / 2025 "))
	require.Equal(t, "FRE-7767/2025/CA1", Normalize("FRE 7767/2025/CA1"))
	require.Equal(t, "CAF-0/2024", Normalize("CAF 000/2024"))
	require.Equal(t, "SIN NUMERO", Normalize(" sin   numero "))

	for _, raw := range []string{"FRE 007767/2025", "FRE 7767/2025/CA 1", "garbage  key"} {
		once := Normalize(raw)
		require.Equal(t, once, Normalize(once), raw)
	}
}

func TestParse(t *testing.T) {
	k, err := Parse("FRE 007767/2025/1/CA1")
	require.NoError(t, err)
	require.Equal(t, Key{Jurisdiction: "FRE", Number: "7767", Year: "2025", Suffix: "1-CA1"}, k)
	require.Equal(t, "FRE-7767/2025", k.Loose())
	require.Equal(t, "fre-7767-2025-1-ca1", k.Slug())

	_, err = Parse("7767/2025")
	require.Error(t, err)
}

func TestSelect(t *testing.T) {
	cases := []struct {
		name       string
		target     string
		candidates []string
		expected   Selection
	}{
		{
			name:       "single exact",
			target:     "FRE 7767/2025",
			candidates: []string{"FRE 007766/2025", "FRE 007767/2025", "FRE 007767/2025/CA1"},
			expected:   Selection{Index: 1, ExactCount: 1},
		},
		{
			name:       "ambiguous exact",
			target:     "FRE-7767/2025",
			candidates: []string{"FRE 007767/2025", "FRE 7767/2025"},
			expected:   Selection{Index: -1, ExactCount: 2},
		},
		{
			name:       "loose fallback",
			target:     "FRE-7767/2025",
			candidates: []string{"FRE 007767/2025/CA1", "FRE 007768/2025"},
			expected:   Selection{Index: 0, Loose: true},
		},
		{
			name:       "ambiguous loose",
			target:     "FRE-7767/2025",
			candidates: []string{"FRE 007767/2025/CA1", "FRE 007767/2025/CA2"},
			expected:   Selection{Index: -1},
		},
		{
			name:       "no candidates",
			target:     "FRE-7767/2025",
			candidates: nil,
			expected:   Selection{Index: -1},
		},
	}

	for _, test := range cases {
		t.Run(test.name, func(t *testing.T) {
			sel := Select(test.target, test.candidates)
			require.Equal(t, test.expected, sel)
			require.Equal(t, test.expected.Index >= 0, sel.Selected())
		})
	}
}

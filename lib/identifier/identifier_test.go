package identifier

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	cases := []struct {
		raw      string
		expected Parsed
	}{
		{
			raw: "D.N.I. 12.345.678",
			expected: Parsed{
				Kind:      KindDNI,
				Number:    "12345678",
				Formatted: "12.345.678",
				Valid:     true,
			},
		},
		{
			raw: "1234567",
			expected: Parsed{
				Kind:      KindDNI,
				Number:    "1234567",
				Formatted: "1.234.567",
				Valid:     true,
			},
		},
		{
			raw: "CUIT: 20-12345678-6",
			expected: Parsed{
				Kind:      KindCUIT,
				Number:    "20123456786",
				Formatted: "20-12345678-6",
				Valid:     true,
			},
		},
		{
			raw: "20123456789",
			expected: Parsed{
				Kind:      KindCUIL,
				Number:    "20123456789",
				Formatted: "20-12345678-9",
				Valid:     false,
			},
		},
		{
			raw: "30712345671",
			expected: Parsed{
				Kind:      KindCUIT,
				Number:    "30712345671",
				Formatted: "30-71234567-1",
				Valid:     true,
			},
		},
		{
			raw: "Pasaporte N° AB123456",
			expected: Parsed{
				Kind:      KindPassport,
				Number:    "AB123456",
				Formatted: "AB123456",
				Valid:     true,
			},
		},
		{
			raw:      "sin datos",
			expected: Parsed{Kind: KindUnknown},
		},
		{
			raw: "123",
			expected: Parsed{
				Kind:      KindOther,
				Number:    "123",
				Formatted: "123",
			},
		},
	}

	for _, test := range cases {
		test.expected.Raw = test.raw
		diff := cmp.Diff(test.expected, Parse(test.raw))
		if diff != "" {
			t.Fatal(test.raw, diff)
		}
	}
}

func TestFormatRoundTrip(t *testing.T) {
	for _, raw := range []string{"12345678", "7.654.321", "20-12345678-6", "30712345671"} {
		p := Parse(raw)
		require.True(t, p.Valid, raw)
		require.Equal(t, p.Formatted, Format(p.Kind, p.Number), raw)
	}
}

func TestCheckDigit(t *testing.T) {
	require.True(t, ValidTaxID("20123456786"))
	require.False(t, ValidTaxID("20123456785"))
	// remainder 0 maps to a check digit of 0
	require.True(t, ValidTaxID("20123456700"))
	require.False(t, ValidTaxID("20123456701"))
	// a remainder of 1 accepts whatever digit the input carries
	require.True(t, ValidTaxID("20123456763"))
	require.True(t, ValidTaxID("20123456768"))

	require.False(t, ValidTaxID("2012345678"))
	require.False(t, ValidTaxID("2012345678a"))
}

func TestEmbeddedDNI(t *testing.T) {
	dni, ok := Parse("20-12345678-6").EmbeddedDNI()
	require.True(t, ok)
	require.Equal(t, "12345678", dni)

	dni, ok = Parse("27-01234567-0").EmbeddedDNI()
	require.True(t, ok)
	require.Equal(t, "1234567", dni)

	_, ok = Parse("12345678").EmbeddedDNI()
	require.False(t, ok)
}

func TestFromText(t *testing.T) {
	cases := []struct {
		text   string
		kind   Kind
		number string
	}{
		{text: "PEREZ, JUAN (DNI 12.345.678)", kind: KindDNI, number: "12345678"},
		{text: "ACME S.A. - CUIT 30-71234567-1 - Domicilio: Av. Siempreviva 742", kind: KindCUIT, number: "30712345671"},
		{text: "GOMEZ ANA, Pasaporte: XY9876543", kind: KindPassport, number: "XY9876543"},
		{text: "LOPEZ, MARIA", kind: KindUnknown, number: ""},
	}
	for _, test := range cases {
		p := FromText(test.text)
		require.Equal(t, test.kind, p.Kind, test.text)
		require.Equal(t, test.number, p.Number, test.text)
		require.Equal(t, test.text, p.Raw)
	}
}

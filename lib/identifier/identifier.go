// Package identifier parses Argentine personal and tax identifiers (DNI,
// CUIT, CUIL, passports) out of the free text the portal renders next to a
// participant's name.
package identifier

import (
	"regexp"
	"strings"

	"casesync-backend/lib/textutil"
)

type Kind string

const (
	KindDNI      Kind = "DNI"
	KindCUIT     Kind = "CUIT"
	KindCUIL     Kind = "CUIL"
	KindPassport Kind = "PASSPORT"
	KindOther    Kind = "OTHER"
	KindUnknown  Kind = "UNKNOWN"
)

type Parsed struct {
	Kind Kind
	// Number is the normalized form, digits only except for passports.
	Number    string
	Formatted string
	Raw       string
	// Valid is the modulo-11 result for 11-digit numbers, a length check
	// for everything else.
	Valid bool
}

// IsTaxID reports whether the identifier is an 11-digit CUIT or CUIL.
func (p Parsed) IsTaxID() bool {
	return (p.Kind == KindCUIT || p.Kind == KindCUIL) && len(p.Number) == 11
}

// EmbeddedDNI returns the 8-digit DNI contained in positions 3 to 10 of an
// 11-digit CUIT/CUIL, with leading zeros removed.
func (p Parsed) EmbeddedDNI() (string, bool) {
	if !p.IsTaxID() {
		return "", false
	}
	dni := strings.TrimLeft(p.Number[2:10], "0")
	if dni == "" {
		return "", false
	}
	return dni, true
}

var cuitWeights = [10]int{5, 4, 3, 2, 7, 6, 5, 4, 3, 2}

// CheckDigit computes the modulo-11 verification digit of an 11-digit
// CUIT/CUIL. A result of 11 maps to 0. A result of 10 has no valid digit; in
// that case the number's own last digit is returned, so such numbers always
// pass validation.
func CheckDigit(number string) int {
	sum := 0
	for i, w := range cuitWeights {
		sum += int(number[i]-'0') * w
	}
	digit := 11 - sum%11
	switch digit {
	case 11:
		return 0
	case 10:
		return int(number[10] - '0')
	}
	return digit
}

// ValidTaxID reports whether an 11-digit string carries a correct check digit.
func ValidTaxID(number string) bool {
	if len(number) != 11 || textutil.OnlyDigits(number) != number {
		return false
	}
	return CheckDigit(number) == int(number[10]-'0')
}

// Format renders a normalized number the way it is usually displayed:
// "12.345.678" for DNIs and "20-12345678-9" for CUIT/CUIL.
func Format(kind Kind, number string) string {
	switch kind {
	case KindDNI:
		return groupThousands(number)
	case KindCUIT, KindCUIL:
		if len(number) != 11 {
			return number
		}
		return number[:2] + "-" + number[2:10] + "-" + number[10:]
	}
	return number
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

func detectLabel(raw string) Kind {
	compact := strings.ToUpper(textutil.Fold(raw))
	compact = strings.NewReplacer(".", "", " ", "", ":", "").Replace(compact)
	switch {
	case strings.Contains(compact, "CUIT"):
		return KindCUIT
	case strings.Contains(compact, "CUIL"):
		return KindCUIL
	case strings.Contains(compact, "PASAPORTE"), strings.Contains(compact, "PASSPORT"):
		return KindPassport
	case strings.Contains(compact, "DNI"):
		return KindDNI
	}
	return ""
}

var alnumToken = regexp.MustCompile(`[A-Za-z0-9]+`)

func taxKindFromPrefix(number string) Kind {
	switch number[:2] {
	case "30", "33", "34":
		return KindCUIT
	case "20", "23", "24", "27":
		return KindCUIL
	}
	return KindCUIT
}

// Parse classifies a single identifier, optionally prefixed by a label such
// as "CUIT:" or "D.N.I.".
func Parse(raw string) Parsed {
	out := Parsed{Raw: raw, Kind: KindUnknown}
	label := detectLabel(raw)

	if label == KindPassport {
		tokens := alnumToken.FindAllString(raw, -1)
		for i := len(tokens) - 1; i >= 0; i-- {
			if strings.ContainsAny(tokens[i], "0123456789") {
				out.Kind = KindPassport
				out.Number = strings.ToUpper(tokens[i])
				out.Formatted = out.Number
				out.Valid = len(out.Number) >= 6
				return out
			}
		}
		return out
	}

	digits := textutil.OnlyDigits(raw)
	switch {
	case digits == "":
		return out
	case len(digits) == 11:
		out.Kind = label
		if out.Kind != KindCUIT && out.Kind != KindCUIL {
			out.Kind = taxKindFromPrefix(digits)
		}
		out.Number = digits
		out.Valid = ValidTaxID(digits)
	case len(digits) >= 6 && len(digits) <= 8:
		out.Kind = KindDNI
		out.Number = strings.TrimLeft(digits, "0")
		out.Valid = len(out.Number) >= 6
	default:
		out.Kind = KindOther
		out.Number = digits
	}
	out.Formatted = Format(out.Kind, out.Number)
	return out
}

var (
	passportPattern = regexp.MustCompile(`(?i)(pasaporte|passport)\s*(?:n[°º.]?\s*)?:?\s*([A-Za-z0-9]{6,12})`)
	taxIDPattern    = regexp.MustCompile(`\b\d{2}[-\s.]?\d{8}[-\s.]?\d\b`)
	dniPattern      = regexp.MustCompile(`\b\d{1,2}\.?\d{3}\.?\d{3}\b`)
)

func labelBefore(text string, index int) string {
	start := index - 16
	if start < 0 {
		start = 0
	}
	return text[start:index]
}

// FromText finds the most specific identifier embedded in free text. A
// labelled passport wins, then anything shaped like a CUIT/CUIL, then a DNI.
func FromText(text string) Parsed {
	if m := passportPattern.FindStringSubmatch(text); m != nil {
		p := Parse(m[0])
		p.Raw = text
		return p
	}
	if loc := taxIDPattern.FindStringIndex(text); loc != nil {
		p := Parse(text[loc[0]:loc[1]])
		if label := detectLabel(labelBefore(text, loc[0])); label == KindCUIT || label == KindCUIL {
			p.Kind = label
		}
		p.Raw = text
		return p
	}
	if loc := dniPattern.FindStringIndex(text); loc != nil {
		p := Parse(text[loc[0]:loc[1]])
		p.Raw = text
		return p
	}
	return Parsed{Raw: text, Kind: KindUnknown}
}

// Package casekey normalizes the case identifiers the portal displays
// ("FRE 007767/2025", "FRE-7767/2025/CA1") and picks a single search result
// for a requested case.
package casekey

import (
	"fmt"
	"regexp"
	"strings"

	"casesync-backend/lib/textutil"
)

type Key struct {
	Jurisdiction string
	Number       string
	Year         string
	// Suffix holds anything after the year, e.g. an appended court-instance
	// code. It is empty for most cases.
	Suffix string
}

var keyPattern = regexp.MustCompile(`^([A-Z]{2,6})[\s\-]*0*(\d+)\s*/\s*(\d{2,4})(?:\s*/\s*(.+))?$`)

func clean(raw string) string {
	return strings.ToUpper(textutil.CollapseSpace(raw))
}

// Parse splits a displayed case identifier into its components, dropping
// leading zeros from the numeric segment.
func Parse(raw string) (Key, error) {
	groups := keyPattern.FindStringSubmatch(clean(raw))
	if groups == nil {
		return Key{}, fmt.Errorf("unrecognized case key %q", raw)
	}
	suffix := strings.NewReplacer(" ", "", "/", "-").Replace(groups[4])
	return Key{
		Jurisdiction: groups[1],
		Number:       groups[2],
		Year:         groups[3],
		Suffix:       suffix,
	}, nil
}

func MustParse(raw string) Key {
	k, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return k
}

// Loose is the canonical key without its suffix.
func (k Key) Loose() string {
	return fmt.Sprintf("%s-%s/%s", k.Jurisdiction, k.Number, k.Year)
}

// String is the canonical key, "FRE-7767/2025" or "FRE-7767/2025/CA1".
func (k Key) String() string {
	if k.Suffix == "" {
		return k.Loose()
	}
	return k.Loose() + "/" + k.Suffix
}

func (k Key) IsZero() bool {
	return k.Jurisdiction == "" && k.Number == ""
}

// Slug is a filesystem and object-storage friendly form of the key.
func (k Key) Slug() string {
	slug := strings.ToLower(k.String())
	return strings.NewReplacer("/", "-", " ", "").Replace(slug)
}

// Normalize returns the canonical form of raw. Strings that do not look
// like a case key are only uppercased and whitespace-collapsed, so the
// function is idempotent for every input.
func Normalize(raw string) string {
	k, err := Parse(raw)
	if err != nil {
		return clean(raw)
	}
	return k.String()
}

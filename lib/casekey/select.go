package casekey

type Selection struct {
	// Index of the selected candidate, -1 when nothing was selected.
	Index int
	// ExactCount is the number of candidates whose full normalized key
	// equals the target's.
	ExactCount int
	// Loose is set when the selection came from the suffix-insensitive
	// fallback.
	Loose bool
}

func (s Selection) Selected() bool {
	return s.Index >= 0
}

// Select picks the candidate matching target. An exact normalized match
// wins when it is unique, more than one exact match is ambiguous and selects
// nothing. Without exact matches the (jurisdiction, number, year) triple is
// compared ignoring suffixes, again requiring a unique hit.
func Select(target string, candidates []string) Selection {
	normalizedTarget := Normalize(target)

	exact := -1
	exactCount := 0
	for i, c := range candidates {
		if Normalize(c) == normalizedTarget {
			exactCount++
			if exact < 0 {
				exact = i
			}
		}
	}
	if exactCount == 1 {
		return Selection{Index: exact, ExactCount: 1}
	}
	if exactCount > 1 {
		return Selection{Index: -1, ExactCount: exactCount}
	}

	targetKey, err := Parse(target)
	if err != nil {
		return Selection{Index: -1}
	}
	loose := -1
	looseCount := 0
	for i, c := range candidates {
		k, err := Parse(c)
		if err != nil {
			continue
		}
		if k.Loose() == targetKey.Loose() {
			looseCount++
			loose = i
		}
	}
	if looseCount == 1 {
		return Selection{Index: loose, Loose: true}
	}
	return Selection{Index: -1}
}

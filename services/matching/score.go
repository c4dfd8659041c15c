package matching

import (
	"sort"
	"strings"

	"casesync-backend/lib/casedb"
	"casesync-backend/lib/identifier"
	"casesync-backend/lib/textutil"

	"github.com/antzucaro/matchr"
)

const (
	HighThreshold   = 0.95
	MediumThreshold = 0.85
)

const (
	confidenceDocument    = 1.0
	confidenceEmbeddedDNI = 0.98
	confidenceName        = 0.95
)

type Candidate struct {
	Client     casedb.Client
	Confidence float64
	Reason     string
}

// subject is the participant side of a comparison, computed once.
type subject struct {
	name       string
	normalized string
	sorted     string
	ident      identifier.Parsed
}

func newSubject(name string, ident identifier.Parsed) subject {
	return subject{
		name:       name,
		normalized: textutil.NormalizeName(name),
		sorted:     textutil.SortedTokens(name),
		ident:      ident,
	}
}

// score takes the best of every signal, a weaker signal never lowers a
// stronger one.
func (s subject) score(client casedb.Client) (float64, string) {
	best := 0.0
	reason := ""
	consider := func(confidence float64, why string) {
		if confidence > best {
			best = confidence
			reason = why
		}
	}

	number := s.ident.Number
	if number != "" && client.Dni != "" && number == client.Dni {
		consider(confidenceDocument, "document number matches DNI")
	}
	if dni, ok := s.ident.EmbeddedDNI(); ok && dni == client.Dni {
		consider(confidenceEmbeddedDNI, "DNI embedded in "+string(s.ident.Kind)+" matches")
	}
	if s.ident.IsTaxID() && client.Cuit != "" && number == client.Cuit {
		consider(confidenceDocument, string(s.ident.Kind)+" matches")
	}
	if best >= confidenceName {
		return best, reason
	}

	clientSorted := client.NormalizedName
	if clientSorted == "" {
		clientSorted = textutil.SortedTokens(client.DisplayName)
	}
	if s.sorted != "" && s.sorted == clientSorted {
		consider(confidenceName, "normalized name matches")
		return best, reason
	}

	similarity := matchr.JaroWinkler(s.normalized, textutil.NormalizeName(client.DisplayName), false)
	sortedSimilarity := matchr.JaroWinkler(s.sorted, clientSorted, false)
	if sortedSimilarity > similarity {
		similarity = sortedSimilarity
	}
	if similarity >= MediumThreshold {
		consider(similarity, "similar name")
	}
	return best, reason
}

// rank scores clients and keeps those at or above the medium threshold,
// best first. Each client appears once.
func rank(s subject, clients []casedb.Client) []Candidate {
	seen := map[string]struct{}{}
	var result []Candidate
	for _, client := range clients {
		if _, ok := seen[client.ID]; ok {
			continue
		}
		seen[client.ID] = struct{}{}

		confidence, reason := s.score(client)
		if confidence < MediumThreshold {
			continue
		}
		result = append(result, Candidate{
			Client:     client,
			Confidence: confidence,
			Reason:     reason,
		})
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Confidence > result[j].Confidence
	})
	return result
}

var organizationWords = []string{
	"sa", "s a", "saic", "sacif", "srl", "s r l", "sas", "s a s", "sca", "sociedad", "ltda",
	"asociacion", "cooperativa", "coop", "fundacion", "mutual", "sindicato", "federacion",
	"banco", "compania", "cia", "empresa", "aseguradora", "seguros", "consorcio", "fideicomiso",
	"municipalidad", "provincia", "estado nacional", "ministerio", "universidad", "instituto", "club",
}

// isOrganization infers whether a party is a legal entity from its name or
// its CUIT prefix.
func isOrganization(name string, ident identifier.Parsed) bool {
	if ident.IsTaxID() {
		switch ident.Number[:2] {
		case "30", "33", "34":
			return true
		}
	}
	return textutil.ContainsWord(name, organizationWords)
}

// splitName splits "PEREZ, JUAN" on the comma and "Juan Perez" on its last
// whitespace, returning the surname first.
func splitName(name string) (string, string) {
	name = textutil.CollapseSpace(name)
	if i := strings.Index(name, ","); i >= 0 {
		return strings.TrimSpace(name[:i]), strings.TrimSpace(name[i+1:])
	}
	i := strings.LastIndex(name, " ")
	if i < 0 {
		return name, ""
	}
	return name[i+1:], name[:i]
}

// Package roles maps the free-form role labels the portal shows next to each
// participant ("ACTOR", "DEMANDADO", "LETRADO APODERADO", ...) to a fixed
// taxonomy of roles and litigation sides.
package roles

import (
	"strings"

	"casesync-backend/lib/textutil"
)

type Role string

const (
	RolePlaintiff      Role = "PLAINTIFF"
	RoleDefendant      Role = "DEFENDANT"
	RoleThirdParty     Role = "THIRD_PARTY"
	RoleGuarantor      Role = "GUARANTOR"
	RoleComplainant    Role = "COMPLAINANT"
	RoleAccused        Role = "ACCUSED"
	RoleLawyer         Role = "LAWYER"
	RoleAttorney       Role = "ATTORNEY"
	RoleExpert         Role = "EXPERT"
	RoleJudge          Role = "JUDGE"
	RoleClerk          Role = "CLERK"
	RoleProsecutor     Role = "PROSECUTOR"
	RolePublicDefender Role = "PUBLIC_DEFENDER"
	RoleOther          Role = "OTHER"
)

type Side string

const (
	SideActor     Side = "ACTOR"
	SideDefendant Side = "DEFENDANT"
	SideNeutral   Side = "NEUTRAL"
	SideJudicial  Side = "JUDICIAL"
)

type Mapping struct {
	Role     Role
	Side     Side
	Singular string
	Plural   string
	Raw      string
}

// IsJudicial reports whether the participant is an officer of the court
// rather than a party. Judicial participants never become clients.
func (m Mapping) IsJudicial() bool {
	return m.Side == SideJudicial
}

type rule struct {
	// prefixes are matched against the normalized label
	prefixes []string
	role     Role
	side     Side
	singular string
	plural   string
}

// order matters, more specific labels come first
var rules = []rule{
	{[]string{"defensor oficial", "defensoria", "defensor publico"}, RolePublicDefender, SideJudicial, "Defensor Oficial", "Defensores Oficiales"},
	{[]string{"ministerio publico", "fiscal", "fiscalia"}, RoleProsecutor, SideJudicial, "Fiscal", "Fiscales"},
	{[]string{"juez", "jueza", "juzgado", "camara", "tribunal", "magistrad"}, RoleJudge, SideJudicial, "Juez", "Jueces"},
	{[]string{"secretari", "prosecretari", "oficial de justicia"}, RoleClerk, SideJudicial, "Secretario", "Secretarios"},
	{[]string{"citado en garantia", "citada en garantia", "aseguradora"}, RoleGuarantor, SideDefendant, "Citado en Garantía", "Citados en Garantía"},
	{[]string{"letrado apoderado", "apoderad", "representante"}, RoleAttorney, SideNeutral, "Apoderado", "Apoderados"},
	{[]string{"letrad", "abogad", "patrocinante", "defensor particular", "defensor"}, RoleLawyer, SideNeutral, "Letrado", "Letrados"},
	{[]string{"perito", "consultor tecnico", "martiller", "sindic"}, RoleExpert, SideNeutral, "Perito", "Peritos"},
	{[]string{"tercer"}, RoleThirdParty, SideNeutral, "Tercero", "Terceros"},
	{[]string{"querellante", "denunciante", "damnificad", "victima"}, RoleComplainant, SideActor, "Querellante", "Querellantes"},
	{[]string{"imputad", "procesad", "acusad", "denunciad"}, RoleAccused, SideDefendant, "Imputado", "Imputados"},
	{[]string{"demandad", "ejecutad", "accionad", "requerid"}, RoleDefendant, SideDefendant, "Demandado", "Demandados"},
	{[]string{"actor", "actora", "actores", "demandante", "ejecutante", "accionante", "requirente", "peticionante", "recurrente"}, RolePlaintiff, SideActor, "Actor", "Actores"},
}

// Map resolves a raw label. Unknown labels map to RoleOther on the neutral
// side; the raw input is always preserved.
func Map(raw string) Mapping {
	label := textutil.NormalizeName(raw)
	for _, r := range rules {
		for _, p := range r.prefixes {
			if strings.HasPrefix(label, p) {
				return Mapping{
					Role:     r.role,
					Side:     r.side,
					Singular: r.singular,
					Plural:   r.plural,
					Raw:      raw,
				}
			}
		}
	}
	return Mapping{
		Role:     RoleOther,
		Side:     SideNeutral,
		Singular: "Otro",
		Plural:   "Otros",
		Raw:      raw,
	}
}

// IsJudicial is shorthand for Map(raw).IsJudicial().
func IsJudicial(raw string) bool {
	return Map(raw).IsJudicial()
}

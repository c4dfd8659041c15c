package roles

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMap(t *testing.T) {
	cases := []struct {
		raw  string
		role Role
		side Side
	}{
		{raw: "ACTOR", role: RolePlaintiff, side: SideActor},
		{raw: "Actora", role: RolePlaintiff, side: SideActor},
		{raw: "DEMANDADO", role: RoleDefendant, side: SideDefendant},
		{raw: "demandada:", role: RoleDefendant, side: SideDefendant},
		{raw: "CITADO EN GARANTÍA", role: RoleGuarantor, side: SideDefendant},
		{raw: "LETRADO APODERADO", role: RoleAttorney, side: SideNeutral},
		{raw: "LETRADO PATROCINANTE", role: RoleLawyer, side: SideNeutral},
		{raw: "DEFENSOR OFICIAL", role: RolePublicDefender, side: SideJudicial},
		{raw: "Juez Federal", role: RoleJudge, side: SideJudicial},
		{raw: "FISCAL", role: RoleProsecutor, side: SideJudicial},
		{raw: "Secretaría", role: RoleClerk, side: SideJudicial},
		{raw: "PERITO CONTADOR", role: RoleExpert, side: SideNeutral},
		{raw: "IMPUTADO", role: RoleAccused, side: SideDefendant},
		{raw: "  querellante  ", role: RoleComplainant, side: SideActor},
		{raw: "GESTOR", role: RoleOther, side: SideNeutral},
		{raw: "", role: RoleOther, side: SideNeutral},
	}

	for _, test := range cases {
		m := Map(test.raw)
		require.Equal(t, test.role, m.Role, test.raw)
		require.Equal(t, test.side, m.Side, test.raw)
		require.Equal(t, test.raw, m.Raw)
		require.NotEmpty(t, m.Singular)
		require.NotEmpty(t, m.Plural)
	}
}

func TestIsJudicial(t *testing.T) {
	require.True(t, IsJudicial("JUEZ"))
	require.True(t, IsJudicial("Ministerio Público Fiscal"))
	require.False(t, IsJudicial("ACTOR"))
	require.False(t, IsJudicial("TERCERO"))
}

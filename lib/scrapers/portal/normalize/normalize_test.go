package normalize

import (
	"os"
	"path/filepath"
	"testing"

	"casesync-backend/lib/casekey"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"
)

var hint = casekey.MustParse("FRE 007767/2025")

func fixture(t testing.TB, name string) *goquery.Selection {
	t.Helper()
	f, err := os.Open(filepath.Join("testdata", name))
	require.NoError(t, err)
	defer f.Close()
	doc, err := goquery.NewDocumentFromReader(f)
	require.NoError(t, err)
	return doc.Selection
}

func TestCandidates(t *testing.T) {
	root := fixture(t, "search_results.html")

	res := Candidates(root, casekey.Key{})
	require.True(t, res.Found)
	require.Len(t, res.Records, 2)

	second := res.Records[1]
	require.Equal(t, "FRE-7767/2025", second.NormalizedKey)
	require.Equal(t, "FRE 007767/2025", second.RawKey)
	require.Equal(t, "PEREZ, JUAN c/ ACME S.A. s/ DAÑOS Y PERJUICIOS", second.Title)
	require.Equal(t, "JUZGADO FEDERAL DE RESISTENCIA 2", second.Court)
	require.Equal(t, "2025-03-05", second.LastActivity)
	require.Equal(t, 1, second.Row)
	require.Equal(t, "tablaConsultaForm", second.Action.FormID)
	require.Equal(t, map[string]string{
		"tablaConsultaForm:j_idt118:dataTable:1:j_idt230": "tablaConsultaForm:j_idt118:dataTable:1:j_idt230",
	}, second.Action.Params)

	next, ok := NextPageControl(root)
	require.True(t, ok)
	require.Equal(t, "Siguiente", next.Label)
	require.Contains(t, next.Params, "tablaConsultaForm:j_idt118:j_idt179:siguiente")

	empty := Candidates(fixture(t, "no_results.html"), casekey.Key{})
	require.False(t, empty.Found)
	require.Empty(t, empty.Records)
}

func TestMovements(t *testing.T) {
	root := fixture(t, "case_view.html")
	require.True(t, IsCaseView(root))

	res := Movements(root, hint)
	require.True(t, res.Found)

	expected := []Entry{
		{
			StableID:    "A-100",
			Source:      SourceMovement,
			Date:        "2025-03-05",
			Kind:        "FIRMA DESPACHO",
			Office:      "JF2",
			Description: "TRASLADO DE LA DEMANDA",
			HasDocument: true,
			DocumentRef: "javascript:window.open('/scw/viewer.seam?id=DOC-1&tipoDoc=despacho','_blank')",
			DocumentID:  "DOC-1",
		},
		{
			StableID:    StableID("FRE-7767/2025", "2025-03-01", "ESCRITO AGREGADO"),
			Source:      SourceMovement,
			Date:        "2025-03-01",
			Kind:        "CARGO",
			Office:      "JF2",
			Description: "ESCRITO AGREGADO",
		},
	}
	diff := cmp.Diff(expected, res.Records, cmpopts.IgnoreFields(Entry{}, "RawHTML"))
	require.Empty(t, diff)
	require.Contains(t, res.Records[0].RawHTML, "TRASLADO DE LA DEMANDA")

	// parsing the same markup twice yields the same identifiers
	again := Movements(fixture(t, "case_view.html"), hint)
	require.Equal(t, res.Records[1].StableID, again.Records[1].StableID)

	next, ok := NextPageControl(root)
	require.True(t, ok)
	require.Equal(t, "expediente", next.FormID)

	tab, ok := TabControl(root, TabParticipants)
	require.True(t, ok)
	require.Equal(t, "Intervinientes", tab.Label)
	require.Contains(t, tab.Params, "expediente:j_idt201")
}

func TestDocuments(t *testing.T) {
	res := Documents(fixture(t, "documents.html"), hint)
	require.True(t, res.Found)
	require.Len(t, res.Records, 2)

	require.Equal(t, SourceDigitalDocument, res.Records[0].Source)
	require.Equal(t, "DOC-1", res.Records[0].DocumentID)
	require.True(t, res.Records[1].HasDocument)
	require.Equal(t, "/scw/download/escrito.pdf", res.Records[1].DocumentRef)
	require.Equal(t, res.Records[1].StableID, res.Records[1].DocumentID)

	require.False(t, IsCaseView(fixture(t, "documents.html")))
}

func TestParticipants(t *testing.T) {
	res := Participants(fixture(t, "participants.html"), hint)
	require.True(t, res.Found)

	expected := []Participant{
		{PortalID: "P-1", Name: "PEREZ, JUAN", RawRole: "ACTOR", IdentifierText: "DNI 12.345.678"},
		{PortalID: "P-2", Name: "ACME S.A.", RawRole: "DEMANDADO", IdentifierText: "CUIT 30-71234567-1"},
		{
			PortalID: StableID("FRE-7767/2025", "LETRADO APODERADO", "GARCIA, MARIA LAURA"),
			Name:     "GARCIA, MARIA LAURA",
			RawRole:  "LETRADO APODERADO",
		},
	}
	require.Empty(t, cmp.Diff(expected, res.Records, cmpopts.IgnoreFields(Participant{}, "RawHTML")))
}

func TestAppealsAndRelated(t *testing.T) {
	appeals := Appeals(fixture(t, "appeals.html"), hint)
	require.True(t, appeals.Found)
	require.Len(t, appeals.Records, 1)
	require.Equal(t, "APELACION", appeals.Records[0].Kind)
	require.Equal(t, "2025-03-10", appeals.Records[0].Date)
	require.Equal(t, "CONCEDIDO", appeals.Records[0].Status)

	root := fixture(t, "related.html")
	related := RelatedCases(root, hint)
	require.True(t, related.Found)
	require.Len(t, related.Records, 2)
	require.Equal(t, "FRE-7767/2025/1", related.Records[0].Key)
	require.Equal(t, "FRE-7767/2025/1", related.Records[0].PortalID)
	require.Equal(t, "CONEXO", related.Records[1].Relation)

	_, ok := NextPageControl(root)
	require.False(t, ok)
}

func TestEvents(t *testing.T) {
	res := Events(fixture(t, "events.html"), casekey.Key{})
	require.True(t, res.Found)
	require.Len(t, res.Records, 2)
	require.Equal(t, "N-3", res.Records[0].ID)
	require.Equal(t, "FRE-7767/2025", res.Records[0].CaseKey)
	require.Equal(t, "FRE-7767/2025", res.Records[1].CaseKey)
	require.True(t, res.Records[0].Date.After(res.Records[1].Date))
}

func TestParseMissingStructure(t *testing.T) {
	res, err := Parse(Participants, "<div>sin intervinientes</div>", hint)
	require.NoError(t, err)
	require.False(t, res.Found)
}

func TestResolveRef(t *testing.T) {
	id := DocumentIDFromRef("window.open('/scw/viewer.seam?id=77&tipoDoc=cedula')")
	require.Equal(t, "77", id)
	require.Equal(t, "", DocumentIDFromRef("javascript:void(0)"))
}

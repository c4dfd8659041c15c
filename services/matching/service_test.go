package matching

import (
	"context"
	"database/sql"
	"testing"

	"casesync-backend/lib/casedb"
	"casesync-backend/lib/tasks"
	"casesync-backend/lib/testutil"
	"casesync-backend/lib/textutil"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (Service, *casedb.Queries, *tasks.Memory, func()) {
	res, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "services/matching",
		DbSchema: casedb.Schema,
	})
	queue := tasks.NewMemory(16)
	qry := casedb.New(res.DB)

	err := qry.CreateCase(context.Background(), casedb.CreateCaseParams{
		ID:        "case-1",
		UserID:    "user-1",
		CaseKey:   "FRE-7767/2025",
		RawKey:    "FRE 007767/2025",
		Title:     "PEREZ c/ ACME s/ DAÑOS",
		CreatedAt: 100,
	})
	require.NoError(t, err)

	return NewService(res.DB, queue), qry, queue, func() {
		queue.Close()
		cleanup()
	}
}

func createClient(t *testing.T, qry *casedb.Queries, id, name, dni, cuit string) {
	err := qry.CreateClient(context.Background(), casedb.CreateClientParams{
		ID:             id,
		Kind:           "PERSON",
		DisplayName:    name,
		NormalizedName: textutil.SortedTokens(name),
		Dni:            dni,
		Cuit:           cuit,
		CreatedAt:      100,
	})
	require.NoError(t, err)
}

func createParticipant(t *testing.T, qry *casedb.Queries, params casedb.CreateParticipantParams) {
	params.CaseID = "case-1"
	if params.PortalID == "" {
		params.PortalID = params.ID
	}
	params.CreatedAt = 100
	require.NoError(t, qry.CreateParticipant(context.Background(), params))
}

func TestMatchPrefersDocumentOverName(t *testing.T) {
	svc, qry, _, cleanup := setup(t)
	defer cleanup()
	ctx := context.Background()

	createClient(t, qry, "c-name", "Perez Juan", "", "")
	createClient(t, qry, "c-cuit", "Juan Carlos Perez", "", "20123456786")
	createParticipant(t, qry, casedb.CreateParticipantParams{
		ID:             "p-1",
		Name:           "PEREZ, JUAN",
		RawRole:        "ACTOR",
		Role:           "PLAINTIFF",
		Side:           "ACTOR",
		DocumentKind:   "CUIT",
		DocumentNumber: "20123456786",
		DocumentRaw:    "CUIT 20-12345678-6",
	})

	result, err := svc.MatchParticipant(ctx, "p-1")
	require.NoError(t, err)
	require.Equal(t, StatusLinked, result.Status)
	require.Equal(t, "c-cuit", result.ClientID)
	require.Equal(t, LinkAutoHigh, result.LinkType)
	require.Equal(t, 1.0, result.Confidence)
	require.Len(t, result.Candidates, 2)
	require.Equal(t, "c-name", result.Candidates[1].Client.ID)
	require.Equal(t, confidenceName, result.Candidates[1].Confidence)

	cases, err := qry.ListClientCases(ctx, "c-cuit")
	require.NoError(t, err)
	require.Len(t, cases, 1)
	require.Equal(t, "case-1", cases[0].CaseID)

	// nothing better exists, so a second run leaves the link alone
	result, err = svc.MatchParticipant(ctx, "p-1")
	require.NoError(t, err)
	require.Equal(t, StatusUnchanged, result.Status)
	require.Equal(t, "c-cuit", result.ClientID)

	audit, err := svc.Audit(ctx, "p-1")
	require.NoError(t, err)
	require.Len(t, audit, 1)
	require.Equal(t, ActionAutoMatched, audit[0].Action)
	require.Equal(t, ActorSystem, audit[0].Actor)
}

func TestMatchSuggestsSimilarName(t *testing.T) {
	svc, qry, _, cleanup := setup(t)
	defer cleanup()
	ctx := context.Background()

	createClient(t, qry, "c-1", "GONZALES MORTA", "", "")
	createParticipant(t, qry, casedb.CreateParticipantParams{
		ID:      "p-1",
		Name:    "GONZALEZ, MARIA",
		RawRole: "DEMANDADO",
		Role:    "DEFENDANT",
		Side:    "DEFENDANT",
	})

	result, err := svc.MatchParticipant(ctx, "p-1")
	require.NoError(t, err)
	require.Equal(t, StatusSuggested, result.Status)
	require.Equal(t, LinkAutoLow, result.LinkType)
	require.GreaterOrEqual(t, result.Confidence, MediumThreshold)
	require.Less(t, result.Confidence, HighThreshold)

	// suggestions do not relate the client to the case
	cases, err := qry.ListClientCases(ctx, "c-1")
	require.NoError(t, err)
	require.Empty(t, cases)
}

func TestEnsureClientCase(t *testing.T) {
	svc, qry, _, cleanup := setup(t)
	defer cleanup()
	ctx := context.Background()

	createClient(t, qry, "c-1", "PEREZ JUAN", "12345678", "")
	for range 2 {
		require.NoError(t, svc.EnsureClientCase(ctx, "c-1", "case-1", "ACTOR"))
	}
	cases, err := qry.ListClientCases(ctx, "c-1")
	require.NoError(t, err)
	require.Len(t, cases, 1)
	require.Equal(t, "case-1", cases[0].CaseID)

	err = svc.EnsureClientCase(ctx, "missing", "case-1", "ACTOR")
	require.ErrorIs(t, err, ErrClientNotFound)
}

func TestCreateParticipantEntryAutoCreatesClient(t *testing.T) {
	svc, qry, queue, cleanup := setup(t)
	defer cleanup()
	ctx := context.Background()

	in := ParticipantInput{
		CaseID:         "case-1",
		PortalID:       "row-3",
		Name:           "PEREZ,  JUAN",
		RawRole:        "ACTOR",
		IdentifierText: "PEREZ, JUAN (DNI 12.345.678)",
	}
	p, created, err := svc.CreateParticipantEntry(ctx, in)
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, "PEREZ, JUAN", p.Name)
	require.Equal(t, "DNI", p.DocumentKind)
	require.Equal(t, "12345678", p.DocumentNumber)

	again, created, err := svc.CreateParticipantEntry(ctx, in)
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, p.ID, again.ID)

	// only the first call scheduled a match
	var received []tasks.Task
	consumeCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		queue.Consume(consumeCtx, func(_ context.Context, task tasks.Task) error {
			received = append(received, task)
			err := svc.HandleTask(ctx, task)
			cancel()
			return err
		})
	}()
	<-done

	require.Len(t, received, 1)
	var payload MatchTask
	require.NoError(t, received[0].Decode(&payload))
	require.Equal(t, p.ID, payload.ParticipantID)

	link, err := qry.GetLink(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, string(LinkAutoHigh), link.LinkType)
	require.Equal(t, 1.0, link.Confidence)

	client, err := qry.GetClient(ctx, link.ClientID.String)
	require.NoError(t, err)
	diff := cmp.Diff(casedb.Client{
		ID:             link.ClientID.String,
		Kind:           "PERSON",
		DisplayName:    "PEREZ, JUAN",
		LastName:       "PEREZ",
		FirstName:      "JUAN",
		NormalizedName: "juan perez",
		Dni:            "12345678",
		AutoCreated:    true,
	}, client, cmpIgnoreTimes)
	require.Empty(t, diff)

	audit, err := svc.Audit(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, audit, 1)
	require.Equal(t, ActionAutoLinked, audit[0].Action)
}

var cmpIgnoreTimes = cmp.FilterPath(func(p cmp.Path) bool {
	name := p.Last().String()
	return name == ".CreatedAt" || name == ".UpdatedAt"
}, cmp.Ignore())

func TestJudicialParticipantsAreNotCreated(t *testing.T) {
	svc, qry, _, cleanup := setup(t)
	defer cleanup()
	ctx := context.Background()

	createParticipant(t, qry, casedb.CreateParticipantParams{
		ID:      "p-judge",
		Name:    "RODRIGUEZ, ANA",
		RawRole: "Juez Federal",
		Role:    "JUDGE",
		Side:    "JUDICIAL",
	})

	result, err := svc.MatchParticipant(ctx, "p-judge")
	require.NoError(t, err)
	require.Equal(t, StatusNoMatch, result.Status)

	clients, err := svc.Clients(ctx)
	require.NoError(t, err)
	require.Empty(t, clients)
}

func TestHumanDecisionsAreKept(t *testing.T) {
	svc, qry, _, cleanup := setup(t)
	defer cleanup()
	ctx := context.Background()

	createClient(t, qry, "c-dni", "Someone Else", "12345678", "")
	createClient(t, qry, "c-chosen", "Perez Juan", "", "")
	createParticipant(t, qry, casedb.CreateParticipantParams{
		ID:             "p-1",
		Name:           "PEREZ, JUAN",
		RawRole:        "ACTOR",
		Role:           "PLAINTIFF",
		Side:           "ACTOR",
		DocumentKind:   "DNI",
		DocumentNumber: "12345678",
	})
	createParticipant(t, qry, casedb.CreateParticipantParams{
		ID:      "p-2",
		Name:    "ACME S.A.",
		RawRole: "DEMANDADO",
		Role:    "DEFENDANT",
		Side:    "DEFENDANT",
	})

	err := svc.Confirm(ctx, "p-1", "ana")
	require.ErrorIs(t, err, ErrNoLink)

	err = svc.ManualLink(ctx, "p-1", "missing", "ana")
	require.ErrorIs(t, err, ErrClientNotFound)

	require.NoError(t, svc.ManualLink(ctx, "p-1", "c-chosen", "ana"))
	require.NoError(t, svc.Ignore(ctx, "p-2", "ana"))

	stats, err := svc.RematchCase(ctx, "case-1")
	require.NoError(t, err)
	require.Equal(t, RematchStats{Processed: 2, Skipped: 2}, stats)

	link, err := qry.GetLink(ctx, "p-1")
	require.NoError(t, err)
	require.Equal(t, "c-chosen", link.ClientID.String)
	require.Equal(t, string(LinkManual), link.LinkType)

	link, err = qry.GetLink(ctx, "p-2")
	require.NoError(t, err)
	require.False(t, link.ClientID.Valid)
	require.Equal(t, string(LinkIgnored), link.LinkType)

	require.NoError(t, svc.Confirm(ctx, "p-1", "ana"))
	require.NoError(t, svc.Unlink(ctx, "p-1", "ana"))
	_, err = qry.GetLink(ctx, "p-1")
	require.Error(t, err)

	audit, err := svc.Audit(ctx, "p-1")
	require.NoError(t, err)
	actions := []string{}
	for _, entry := range audit {
		actions = append(actions, entry.Action)
	}
	require.Equal(t, []string{ActionManualLinked, ActionConfirmed, ActionUnlinked}, actions)
	require.Equal(t, "c-chosen", audit[2].ClientID.String)
	require.Equal(t, string(LinkConfirmed), audit[2].PreviousType)

	// unlinked participants are matched again, never to the unlinked client
	result, err := svc.MatchParticipant(ctx, "p-1")
	require.NoError(t, err)
	require.Equal(t, StatusLinked, result.Status)
	require.Equal(t, "c-dni", result.ClientID)
	for _, c := range result.Candidates {
		require.NotEqual(t, "c-chosen", c.Client.ID)
	}

	require.NoError(t, svc.Unlink(ctx, "p-1", "ana"))
	result, err = svc.MatchParticipant(ctx, "p-1")
	require.NoError(t, err)
	require.Equal(t, StatusNoMatch, result.Status)
	_, err = qry.GetLink(ctx, "p-1")
	require.ErrorIs(t, err, sql.ErrNoRows)

	stats, err = svc.RematchCase(ctx, "case-1")
	require.NoError(t, err)
	require.Equal(t, RematchStats{Processed: 2, Skipped: 1}, stats)
	_, err = qry.GetLink(ctx, "p-1")
	require.ErrorIs(t, err, sql.ErrNoRows)

	// a person may still link an unlinked client by hand
	require.NoError(t, svc.ManualLink(ctx, "p-1", "c-dni", "ana"))
	stats, err = svc.RematchCase(ctx, "case-1")
	require.NoError(t, err)
	require.Equal(t, RematchStats{Processed: 2, Skipped: 2}, stats)
}

func TestCreateClientFromParticipant(t *testing.T) {
	svc, qry, _, cleanup := setup(t)
	defer cleanup()
	ctx := context.Background()

	createParticipant(t, qry, casedb.CreateParticipantParams{
		ID:             "p-org",
		Name:           "ACME S.A.",
		RawRole:        "DEMANDADO",
		Role:           "DEFENDANT",
		Side:           "DEFENDANT",
		DocumentKind:   "CUIT",
		DocumentNumber: "30712345671",
	})

	client, err := svc.CreateClientFromParticipant(ctx, "p-org", "ana")
	require.NoError(t, err)
	require.Equal(t, "ORGANIZATION", client.Kind)
	require.Equal(t, "30712345671", client.Cuit)
	require.Empty(t, client.Dni)
	require.False(t, client.AutoCreated)

	links, err := svc.CaseLinks(ctx, "case-1")
	require.NoError(t, err)
	require.Len(t, links, 1)
	require.Equal(t, client.ID, links[0].ClientID.String)
	require.Equal(t, string(LinkManual), links[0].LinkType.String)
}

func TestSplitName(t *testing.T) {
	last, first := splitName("PEREZ, JUAN CARLOS")
	require.Equal(t, "PEREZ", last)
	require.Equal(t, "JUAN CARLOS", first)

	last, first = splitName("Juan Carlos Perez")
	require.Equal(t, "Perez", last)
	require.Equal(t, "Juan Carlos", first)

	last, first = splitName("MADONNA")
	require.Equal(t, "MADONNA", last)
	require.Empty(t, first)
}

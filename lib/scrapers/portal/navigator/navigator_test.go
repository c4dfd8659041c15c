package navigator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"casesync-backend/lib/scrapers/portal/core"
	"casesync-backend/lib/telemetry"

	"github.com/stretchr/testify/require"
)

const searchForm = `<html><body>
<form id="formPublica" name="formPublica" method="post" action="/scw/home.seam">
  <select name="formPublica:camaraNumAni">
    <option value="0">CSJ - Corte Suprema de Justicia de la Nación</option>
    <option value="11">FRE - Cámara Federal de Resistencia</option>
  </select>
  <input type="text" name="formPublica:numero" value="">
  <input type="text" name="formPublica:anio" value="">
  <input type="submit" name="formPublica:buscarPorNumeroButton" value="Consultar">
  <input type="hidden" name="javax.faces.ViewState" value="vs-search">
</form>
</body></html>`

func resultsPage(viewState string, rows string, hasNext bool) string {
	next := `<a class="ui-paginator-next ui-state-disabled" href="#">Siguiente</a>`
	if hasNext {
		next = `<a class="ui-paginator-next" href="#" onclick="mojarra.jsfcljs(document.getElementById('tablaConsultaForm'),{'tablaConsultaForm:next':'tablaConsultaForm:next'},'');return false">Siguiente</a>`
	}
	return fmt.Sprintf(`<html><body>
<form id="tablaConsultaForm" method="post" action="/scw/resultados.seam">
<table id="tablaConsultaForm:dataTable">
  <thead><tr><th>Expediente</th><th>Dependencia</th><th>Carátula</th><th>Situación</th><th>Últ. Act.</th><th></th></tr></thead>
  <tbody>%s</tbody>
</table>
%s
<input type="hidden" name="javax.faces.ViewState" value="%s">
</form>
</body></html>`, rows, next, viewState)
}

func resultRow(key, title, action string) string {
	return fmt.Sprintf(`<tr><td>%s</td><td>JUZGADO FEDERAL 2</td><td>%s</td><td>EN LETRA</td><td>05/03/2025</td>
<td><a href="#" onclick="mojarra.jsfcljs(document.getElementById('tablaConsultaForm'),{'%s':'%s'},'');return false">Ver</a></td></tr>`,
		key, title, action, action)
}

func tab(param, label string) string {
	return fmt.Sprintf(`<li><a href="#" onclick="mojarra.jsfcljs(document.getElementById('expediente'),{'%s':'%s'},'');return false">%s</a></li>`,
		param, param, label)
}

func caseView(content string) string {
	return `<html><body>
<form id="expediente" name="expediente" method="post" action="/scw/expediente.seam?cid=42">
<div id="expediente:j_idt90:detailCamera">FRE 007767/2025</div>
<div id="expediente:j_idt90:detailCover">PEREZ, JUAN c/ ACME S.A. s/ DAÑOS Y PERJUICIOS</div>
<ul class="nav nav-tabs">` +
		tab("expediente:tabActuaciones", "Actuaciones") +
		tab("expediente:tabIntervinientes", "Intervinientes") +
		tab("expediente:tabVinculados", "Vinculados") +
		tab("expediente:tabDocumentos", "Documentos") +
		`</ul>` + content + `
<input type="hidden" name="javax.faces.ViewState" value="vs-case">
</form>
</body></html>`
}

func movementsTable(rows string, hasNext bool) string {
	next := ""
	if hasNext {
		next = `<span class="ds-paginator"><a class="ds-next" href="#" onclick="mojarra.jsfcljs(document.getElementById('expediente'),{'expediente:action-table:next':'expediente:action-table:next'},'');return false">»</a></span>`
	}
	return `<table id="expediente:action-table">
<thead><tr><th>Oficina</th><th>Fecha</th><th>Tipo</th><th>Descripción / Detalle</th><th></th></tr></thead>
<tbody>` + rows + `</tbody></table>` + next
}

func movementRow(id, date, description, doc string) string {
	link := ""
	if doc != "" {
		link = fmt.Sprintf(`<a href="javascript:window.open('/scw/viewer.seam?id=%s','_blank')" title="Ver documento">PDF</a>`, doc)
	}
	return fmt.Sprintf(`<tr data-rk="%s"><td>JF2</td><td>%s</td><td>DESPACHO</td><td>%s</td><td>%s</td></tr>`,
		id, date, description, link)
}

const participantsTable = `<table id="expediente:participantsTable">
<thead><tr><th>Tipo</th><th>Nombre</th><th>Documento</th></tr></thead>
<tbody>
<tr data-rk="P-1"><td>ACTOR</td><td>PEREZ, JUAN</td><td>DNI 12.345.678</td></tr>
<tr data-rk="P-2"><td>DEMANDADO</td><td>ACME S.A.</td><td>CUIT 30-71234567-1</td></tr>
</tbody></table>`

const relatedTable = `<table id="expediente:vinculados">
<thead><tr><th>Expediente</th><th>Dependencia</th><th>Relación</th><th>Carátula</th></tr></thead>
<tbody><tr><td>FRE 007767/2025/1</td><td>JF2</td><td>INCIDENTE</td><td>INCIDENTE DE MEDIDA CAUTELAR</td></tr></tbody>
</table>
<a class="ui-paginator-next ui-state-disabled" href="#">Siguiente</a>`

const documentsTable = `<table id="expediente:documentos">
<thead><tr><th>Fecha</th><th>Tipo</th><th>Descripción</th><th></th></tr></thead>
<tbody><tr data-rk="D-1"><td>05/03/2025</td><td>ESCRITO</td><td>CONTESTA DEMANDA</td>
<td><a href="/scw/viewer.seam?id=DOC-9" title="Ver documento">PDF</a></td></tr></tbody>
</table>`

const eventsPage = `<html><body>
<table id="notificaciones:dataTable">
<thead><tr><th>Fecha</th><th>Expediente</th><th>Descripción</th></tr></thead>
<tbody>
<tr data-rk="N-3"><td>06/03/2025 10:15</td><td>FRE 007767/2025</td><td>NOTIFICACION ELECTRONICA</td></tr>
<tr data-rk="N-2b"><td>05/03/2025 09:00</td><td>FRE 007767/2025</td><td>ESCRITO PRESENTADO</td></tr>
<tr data-rk="N-2"><td>05/03/2025 09:00</td><td>FRE 007767/2025</td><td>CEDULA</td></tr>
<tr data-rk="N-1"><td>01/02/2025 09:00</td><td>FRE 000010/2024</td><td>CEDULA</td></tr>
</tbody>
</table>
</body></html>`

type fakePortal struct {
	expired      atomic.Bool
	direct       atomic.Bool
	relatedCalls atomic.Int32
	reopened     atomic.Int32
}

func (f *fakePortal) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<form id="kc-form-login"><input type="password" name="password"></form>`)
	})
	mux.HandleFunc("/scw/home.seam", func(w http.ResponseWriter, r *http.Request) {
		if f.expired.Load() {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		if r.Method == http.MethodGet {
			fmt.Fprint(w, searchForm)
			return
		}
		if r.ParseForm() != nil ||
			r.PostForm.Get("javax.faces.ViewState") != "vs-search" ||
			r.PostForm.Get("formPublica:camaraNumAni") != "11" ||
			r.PostForm.Get("formPublica:anio") != "2025" ||
			r.PostForm.Get("formPublica:buscarPorNumeroButton") != "Consultar" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		switch r.PostForm.Get("formPublica:numero") {
		case "7767":
			if f.direct.Load() {
				http.Redirect(w, r, "/scw/expediente.seam?cid=42", http.StatusFound)
				return
			}
			fmt.Fprint(w, resultsPage("vs-results-1",
				resultRow("FRE 007766/2025", "GOMEZ c/ ACME", "tablaConsultaForm:row0")+
					resultRow("FRE 007767/2025/CA1", "PEREZ c/ ACME s/ RECURSO", "tablaConsultaForm:row1"),
				true,
			))
		default:
			fmt.Fprint(w, resultsPage("vs-results-1", "", false))
		}
	})
	mux.HandleFunc("/scw/resultados.seam", func(w http.ResponseWriter, r *http.Request) {
		if r.ParseForm() != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		viewState := r.PostForm.Get("javax.faces.ViewState")
		switch {
		case r.PostForm.Get("tablaConsultaForm:next") != "":
			fmt.Fprint(w, resultsPage("vs-results-2",
				resultRow("FRE 007767/2025", "PEREZ, JUAN c/ ACME S.A.", "tablaConsultaForm:row2"),
				false,
			))
		case r.PostForm.Get("tablaConsultaForm:row2") != "" && viewState == "vs-results-2":
			http.Redirect(w, r, "/scw/expediente.seam?cid=42", http.StatusFound)
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	})
	mux.HandleFunc("/scw/expediente.seam", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("cid") != "42" || r.ParseForm() != nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		page1 := movementsTable(
			movementRow("A-1", "05/03/2025", "TRASLADO DE LA DEMANDA", "DOC-1")+
				movementRow("A-2", "01/03/2025", "ESCRITO AGREGADO", ""),
			true,
		)
		if r.Method == http.MethodGet {
			if f.relatedCalls.Load() > 0 {
				f.reopened.Add(1)
			}
			fmt.Fprint(w, caseView(page1))
			return
		}
		form := r.PostForm
		switch {
		case form.Get("expediente:tabActuaciones") != "":
			fmt.Fprint(w, caseView(page1))
		case form.Get("expediente:action-table:next") != "":
			fmt.Fprint(w, caseView(movementsTable(
				movementRow("A-2", "01/03/2025", "ESCRITO AGREGADO", "")+
					movementRow("A-3", "28/02/2025", "INGRESO", ""),
				false,
			)))
		case form.Get("expediente:tabIntervinientes") != "":
			fmt.Fprint(w, caseView(participantsTable))
		case form.Get("expediente:tabDocumentos") != "":
			fmt.Fprint(w, caseView(documentsTable))
		case form.Get("expediente:tabVinculados") != "":
			// the first activation loses the conversation, as the portal
			// does after a long idle period
			if f.relatedCalls.Add(1) == 1 {
				fmt.Fprint(w, `<html><body><p>La conversación ha finalizado.</p></body></html>`)
				return
			}
			fmt.Fprint(w, caseView(relatedTable))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	})
	mux.HandleFunc("/scw/consultaNotificaciones.seam", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, eventsPage)
	})
	return mux
}

func setup(t *testing.T) (*Navigator, *fakePortal, func()) {
	cleanup := telemetry.SetupForTesting("test:lib/scrapers/portal/navigator")

	fake := &fakePortal{}
	server := httptest.NewServer(fake.handler())

	client, err := core.NewClient(core.Options{
		BaseUrl:           server.URL,
		RequestsPerSecond: 1000,
	}, nil)
	require.NoError(t, err)

	return New(client, Config{}), fake, func() {
		server.Close()
		cleanup()
	}
}

func TestQueryFromKey(t *testing.T) {
	q, err := QueryFromKey("fre 007767/2025/CA1")
	require.NoError(t, err)
	require.Equal(t, Query{Jurisdiction: "FRE", Number: "7767", Year: "2025", Suffix: "CA1"}, q)
	require.Equal(t, "FRE 7767/2025/CA1", q.Key())

	_, err = QueryFromKey("7767")
	require.Error(t, err)
}

func TestSearchAcrossPages(t *testing.T) {
	nav, _, cleanup := setup(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result, err := nav.Search(ctx, Query{Jurisdiction: "FRE", Number: "7767", Year: "2025"})
	require.NoError(t, err)
	require.Len(t, result.Candidates, 3)
	require.Equal(t, 2, result.Selection.Index)
	require.Equal(t, 1, result.Selection.ExactCount)

	selected, ok := result.Selected()
	require.True(t, ok)
	require.Equal(t, "FRE-7767/2025", selected.NormalizedKey)
	require.Equal(t, 1, selected.Page)
}

func TestOpenNotFound(t *testing.T) {
	nav, _, cleanup := setup(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := nav.Open(ctx, Query{Jurisdiction: "FRE", Number: "1", Year: "2025"})
	require.ErrorIs(t, err, ErrNotFound)

	_, err = nav.Open(ctx, Query{Jurisdiction: "XYZ", Number: "7767", Year: "2025"})
	var scrapeErr *ScrapeError
	require.ErrorAs(t, err, &scrapeErr)
	require.Equal(t, "search", scrapeErr.Step)
}

func TestOpenDirectCaseView(t *testing.T) {
	nav, fake, cleanup := setup(t)
	defer cleanup()
	fake.direct.Store(true)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	view, err := nav.Open(ctx, Query{Jurisdiction: "FRE", Number: "7767", Year: "2025"})
	require.NoError(t, err)
	require.Equal(t, "42", view.CaseID)
	require.Equal(t, "FRE-7767/2025", view.Key.String())
	require.Equal(t, "FRE 007767/2025", view.Candidate.RawKey)
}

func TestScrapeCase(t *testing.T) {
	nav, fake, cleanup := setup(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	details, err := nav.ScrapeCase(ctx, Query{Jurisdiction: "FRE", Number: "7767", Year: "2025"})
	require.NoError(t, err)

	require.Equal(t, "42", details.CaseID)
	require.Equal(t, "FRE-7767/2025", details.Key.String())
	require.Equal(t, "PEREZ, JUAN c/ ACME S.A. s/ DAÑOS Y PERJUICIOS", details.Title)

	var movementIDs []string
	for _, m := range details.Movements {
		movementIDs = append(movementIDs, m.StableID)
	}
	require.Equal(t, []string{"A-1", "A-2", "A-3"}, movementIDs)
	require.True(t, details.Movements[0].HasDocument)
	require.Equal(t, "DOC-1", details.Movements[0].DocumentID)

	require.Len(t, details.Documents, 1)
	require.Equal(t, "DOC-9", details.Documents[0].DocumentID)

	require.Len(t, details.Participants, 2)
	require.Equal(t, "PEREZ, JUAN", details.Participants[0].Name)

	// the case has no appeals tab
	require.Empty(t, details.Appeals)

	require.Len(t, details.Related, 1)
	require.Equal(t, "FRE-7767/2025/1", details.Related[0].Key)
	require.EqualValues(t, 2, fake.relatedCalls.Load())
	require.EqualValues(t, 1, fake.reopened.Load())
}

func TestAuthRequiredPassesThrough(t *testing.T) {
	nav, fake, cleanup := setup(t)
	defer cleanup()
	fake.expired.Store(true)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := nav.ScrapeCase(ctx, Query{Jurisdiction: "FRE", Number: "7767", Year: "2025"})
	require.ErrorIs(t, err, core.ErrAuthRequired)
	var scrapeErr *ScrapeError
	require.False(t, errors.As(err, &scrapeErr))
}

func TestEvents(t *testing.T) {
	nav, _, cleanup := setup(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	events, watermark, err := nav.Events(ctx, time.Time{})
	require.NoError(t, err)
	require.Len(t, events, 4)

	// entries on the watermark's timestamp come back unless already known
	since := events[2].Date
	events, next, err := nav.Events(ctx, since)
	require.NoError(t, err)
	require.Len(t, events, 3)
	require.True(t, next.Equal(watermark))

	events, next, err = nav.Events(ctx, since, "N-2")
	require.NoError(t, err)
	ids := []string{}
	for _, e := range events {
		ids = append(ids, e.ID)
	}
	require.Equal(t, []string{"N-3", "N-2b"}, ids)
	require.True(t, next.Equal(watermark))
	require.True(t, strings.HasPrefix(events[0].CaseKey, "FRE-7767"))

	events, _, err = nav.Events(ctx, watermark, "N-3")
	require.NoError(t, err)
	require.Empty(t, events)
}

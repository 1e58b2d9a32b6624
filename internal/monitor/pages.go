package monitor

import (
	"fmt"
	"net/http"
	"time"

	gomponents "maragu.dev/gomponents"
	html "maragu.dev/gomponents/html"

	"github.com/mallard-db/mallard/internal/metastore"
)

const pageStyle = `
body { font-family: system-ui, sans-serif; margin: 2rem; color: #1a1a1a; }
nav a { margin-right: 1rem; }
table { border-collapse: collapse; margin-top: 1rem; }
th, td { border: 1px solid #ccc; padding: 0.4rem 0.8rem; text-align: left; }
th { background: #f4f4f4; }
.err { color: #a00; }
code { background: #f4f4f4; padding: 0.1rem 0.3rem; }
`

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	datasets, _ := s.cfg.Datasets.List(r.Context())
	models, _ := s.cfg.Models.List(r.Context())
	queries, _ := s.cfg.History.CountBySession(r.Context(), s.cfg.SessionID)

	rows := [][2]string{
		{"Session", s.cfg.SessionID},
		{"Mode", s.cfg.Mode},
		{"Uptime", time.Since(s.cfg.StartedAt).Truncate(time.Second).String()},
		{"Datasets", fmt.Sprintf("%d", len(datasets))},
		{"Models", fmt.Sprintf("%d", len(models))},
		{"Queries executed", fmt.Sprintf("%d", queries)},
	}
	nodes := make([]gomponents.Node, 0, len(rows))
	for _, row := range rows {
		nodes = append(nodes, html.Tr(html.Th(gomponents.Text(row[0])), html.Td(gomponents.Text(row[1]))))
	}
	s.render(w, page("Overview", html.Table(gomponents.Group(nodes))))
}

func (s *Server) handleQueries(w http.ResponseWriter, r *http.Request) {
	recs, err := s.cfg.History.Recent(r.Context(), s.cfg.SessionID, 100)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	rows := make([]gomponents.Node, 0, len(recs))
	for _, rec := range recs {
		status := gomponents.Text(rec.Status)
		if rec.Status == metastore.QueryStatusError {
			status = html.Span(html.Class("err"), gomponents.Text(rec.Status))
		}
		rows = append(rows, html.Tr(
			html.Td(gomponents.Text(rec.ExecutedAt.Format("15:04:05"))),
			html.Td(status),
			html.Td(gomponents.Text(fmt.Sprintf("%d ms", rec.DurationMS))),
			html.Td(gomponents.Text(fmt.Sprintf("%d", rec.RowsReturned))),
			html.Td(html.Code(gomponents.Text(truncate(rec.SQL, 120)))),
		))
	}
	s.render(w, page("Queries", html.Table(
		html.Tr(html.Th(gomponents.Text("At")), html.Th(gomponents.Text("Status")),
			html.Th(gomponents.Text("Duration")), html.Th(gomponents.Text("Rows")),
			html.Th(gomponents.Text("SQL"))),
		gomponents.Group(rows),
	)))
}

func (s *Server) handleDatasets(w http.ResponseWriter, r *http.Request) {
	datasets, err := s.cfg.Datasets.List(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	rows := make([]gomponents.Node, 0, len(datasets))
	for _, d := range datasets {
		rows = append(rows, html.Tr(
			html.Td(gomponents.Text(d.Name)),
			html.Td(gomponents.Text(d.Source)),
			html.Td(gomponents.Text(d.Format)),
			html.Td(gomponents.Text(fmt.Sprintf("%d", d.RowCount))),
			html.Td(gomponents.Text(d.UpdatedAt.Format("15:04:05"))),
		))
	}
	s.render(w, page("Datasets", html.Table(
		html.Tr(html.Th(gomponents.Text("Name")), html.Th(gomponents.Text("Source")),
			html.Th(gomponents.Text("Format")), html.Th(gomponents.Text("Rows")),
			html.Th(gomponents.Text("Updated"))),
		gomponents.Group(rows),
	)))
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	models, err := s.cfg.Models.List(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	rows := make([]gomponents.Node, 0, len(models))
	for _, m := range models {
		rows = append(rows, html.Tr(
			html.Td(gomponents.Text(m.Name)),
			html.Td(gomponents.Text(m.Kind)),
			html.Td(html.Code(gomponents.Text(m.Formula))),
			html.Td(gomponents.Text(m.CreatedAt.Format("15:04:05"))),
		))
	}
	s.render(w, page("Models", html.Table(
		html.Tr(html.Th(gomponents.Text("Name")), html.Th(gomponents.Text("Kind")),
			html.Th(gomponents.Text("Formula")), html.Th(gomponents.Text("Created"))),
		gomponents.Group(rows),
	)))
}

func page(title string, body ...gomponents.Node) gomponents.Node {
	return html.Doctype(html.HTML(
		html.Head(
			html.TitleEl(gomponents.Text(title+" · mallard monitor")),
			html.StyleEl(gomponents.Raw(pageStyle)),
		),
		html.Body(
			html.Nav(
				html.A(html.Href("/"), gomponents.Text("Overview")),
				html.A(html.Href("/queries"), gomponents.Text("Queries")),
				html.A(html.Href("/datasets"), gomponents.Text("Datasets")),
				html.A(html.Href("/models"), gomponents.Text("Models")),
			),
			html.H1(gomponents.Text(title)),
			gomponents.Group(body),
		),
	))
}

func (s *Server) render(w http.ResponseWriter, node gomponents.Node) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := node.Render(w); err != nil {
		s.logger.Warn("page render failed", "error", err)
	}
}

func truncate(sql string, n int) string {
	if len(sql) <= n {
		return sql
	}
	return sql[:n] + "…"
}

package webmon

import (
	"context"
	"html/template"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/changeview/changeurl"
	"github.com/hazyhaar/changeview/navigate"
	"github.com/hazyhaar/changeview/page"
	"github.com/hazyhaar/changeview/shield"
)

// requestView collects the outcome of one controller run. It is both the
// renderer and the navigator of a per-request navigate.Controller.
type requestView struct {
	mu       sync.Mutex
	redirect string
	view     *navigate.View
	empty    *page.Page
	pageID   string
	err      error
}

func (v *requestView) Loading(string) {}

func (v *requestView) Display(view navigate.View) {
	v.mu.Lock()
	v.view = &view
	v.mu.Unlock()
}

func (v *requestView) NoVersions(p *page.Page) {
	v.mu.Lock()
	v.empty = p
	v.mu.Unlock()
}

func (v *requestView) Failed(pageID string, err error) {
	v.mu.Lock()
	v.pageID, v.err = pageID, err
	v.mu.Unlock()
}

func (v *requestView) Push(path string)    { v.navigate(path) }
func (v *requestView) Replace(path string) { v.navigate(path) }

func (v *requestView) navigate(path string) {
	v.mu.Lock()
	v.redirect = path
	v.mu.Unlock()
}

// handleView drives a navigate.Controller for the requested page and change
// token: corrections become a 302, resolved changes are rendered.
func (s *Service) handleView(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := shield.Logger(ctx)
	pageID := chi.URLParam(r, "pageID")
	token := chi.URLParam(r, "changeToken")

	rv := &requestView{}
	c := navigate.New(s, rv, rv,
		navigate.WithLogger(logger),
		navigate.WithKnownPages(s.KnownPages()),
	)
	c.SetTarget(ctx, pageID, token)

	waitCtx, cancel := context.WithTimeout(ctx, s.cfg.Capture.Timeout)
	defer cancel()
	if err := c.Wait(waitCtx); err != nil {
		logger.Warn("webmon: view timed out", "page_id", pageID, "error", err)
		http.Error(w, "timed out loading page", http.StatusGatewayTimeout)
		return
	}

	rv.mu.Lock()
	defer rv.mu.Unlock()
	switch {
	case rv.redirect != "":
		http.Redirect(w, r, rv.redirect, http.StatusFound)
	case rv.err != nil:
		code := statusOf(rv.err, http.StatusBadGateway)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(code)
		errorTmpl.Execute(w, struct {
			PageID string
			Status int
			Error  string
		}{rv.pageID, code, rv.err.Error()})
	case rv.empty != nil:
		s.renderChange(w, r, changeData{Page: rv.empty, Pager: navigate.NewPager(s.KnownPages(), rv.empty.UUID)})
	case rv.view != nil:
		data, err := s.changeData(ctx, rv.view)
		if err != nil {
			logger.Error("webmon: view content", "page_id", pageID, "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		s.renderChange(w, r, data)
	default:
		http.Error(w, "no outcome", http.StatusInternalServerError)
	}
}

// versionLink is one entry of the history list.
type versionLink struct {
	UUID       string
	CapturedAt string
	Title      string
	Path       string
	Current    bool
}

type changeData struct {
	Page        *page.Page
	From        *page.Version
	To          *page.Version
	FromText    string
	ToText      string
	Added       []string
	Removed     []string
	Versions    []versionLink
	Pager       navigate.Pager
	Annotations []page.AnnotationResult
}

func (s *Service) changeData(ctx context.Context, view *navigate.View) (changeData, error) {
	p := view.Page
	to := view.To
	data := changeData{Page: p, From: view.From, To: &to, Pager: view.Pager}

	toContent, err := s.store.GetContent(ctx, to.UUID)
	if err != nil {
		return data, err
	}
	if toContent != nil {
		data.ToText = toContent.Markdown
	}
	if view.From != nil {
		fromContent, err := s.store.GetContent(ctx, view.From.UUID)
		if err != nil {
			return data, err
		}
		if fromContent != nil {
			data.FromText = fromContent.Markdown
		}
		data.Added, data.Removed = lineChanges(data.FromText, data.ToText)

		data.Annotations, err = s.store.ListAnnotations(ctx, p.UUID, view.From.UUID, to.UUID)
		if err != nil {
			return data, err
		}
	}

	for i, v := range p.Versions {
		token := v.UUID
		if i+1 < len(p.Versions) {
			token = changeurl.Encode(&p.Versions[i+1], &p.Versions[i])
		}
		data.Versions = append(data.Versions, versionLink{
			UUID:       v.UUID,
			CapturedAt: v.CapturedAt.Format(time.DateTime),
			Title:      v.Title,
			Path:       changeurl.PagePath(p.UUID, token),
			Current:    v.UUID == to.UUID,
		})
	}
	return data, nil
}

// lineChanges lists the non-blank lines only present in to (added) and
// only present in from (removed), in document order.
func lineChanges(from, to string) (added, removed []string) {
	fromSet := lineSet(from)
	toSet := lineSet(to)
	for _, l := range strings.Split(to, "\n") {
		if l = strings.TrimSpace(l); l != "" && !fromSet[l] {
			added = append(added, l)
		}
	}
	for _, l := range strings.Split(from, "\n") {
		if l = strings.TrimSpace(l); l != "" && !toSet[l] {
			removed = append(removed, l)
		}
	}
	return added, removed
}

func lineSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, l := range strings.Split(s, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			set[l] = true
		}
	}
	return set
}

func (s *Service) renderChange(w http.ResponseWriter, r *http.Request, data changeData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := changeTmpl.Execute(w, data); err != nil {
		shield.Logger(r.Context()).Error("webmon: render change", "error", err)
	}
}

func (s *Service) handleIndex(w http.ResponseWriter, r *http.Request) {
	pages, err := s.ListPages(r.Context())
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	type row struct {
		Title string
		URL   string
		Path  string
	}
	rows := make([]row, len(pages))
	for i, p := range pages {
		rows[i] = row{Title: p.Title, URL: p.URL, Path: changeurl.PagePath(p.UUID, "")}
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	indexTmpl.Execute(w, struct {
		Count int
		Pages []row
	}{len(rows), rows})
}

const pageHead = `<!DOCTYPE html>
<html lang="en"><head><meta charset="UTF-8"><meta name="viewport" content="width=device-width,initial-scale=1">
<style>
body{font-family:system-ui,sans-serif;max-width:960px;margin:2rem auto;padding:0 1rem;color:#222;background:#fafafa}
h1{font-size:1.4rem;border-bottom:2px solid #e0e0e0;padding-bottom:.5rem}
.box{background:#fff;border:1px solid #e0e0e0;border-radius:6px;padding:1rem;margin-bottom:1rem}
.cols{display:grid;grid-template-columns:1fr 1fr;gap:1rem}
pre{white-space:pre-wrap;font-size:.85rem}
.add{color:#1a7f37}.del{color:#cf222e}
.meta{font-size:.8rem;color:#666}
.empty{color:#999;font-style:italic}
.pager{display:flex;justify-content:space-between}
</style>`

var indexTmpl = template.Must(template.New("index").Parse(pageHead + `
<title>changeview</title></head><body>
<h1>Monitored pages ({{.Count}})</h1>
{{- if eq .Count 0}}
<p class="empty">No pages yet.</p>
{{- end}}
{{- range .Pages}}
<div class="box"><a href="{{.Path}}">{{.Title}}</a><div class="meta">{{.URL}}</div></div>
{{- end}}
</body></html>`))

var changeTmpl = template.Must(template.New("change").Parse(pageHead + `
<title>{{.Page.Title}}</title><script src="/static/keys.js" defer></script></head><body>
<h1>{{.Page.Title}}</h1>
<p class="meta">{{.Page.URL}} &middot; press Escape to go back</p>
<nav class="pager box">
{{- with .Pager.Previous}}{{if .Placeholder}}<span></span>{{else}}<a href="{{.Path}}">&larr; {{.Title}}</a>{{end}}{{end}}
{{- with .Pager.Next}}{{if .Placeholder}}<span></span>{{else}}<a href="{{.Path}}">{{.Title}} &rarr;</a>{{end}}{{end}}
</nav>
{{- if not .To}}
<p class="empty box">This page has no saved versions.</p>
{{- else}}
<div class="box">
{{- if .From}}
<p>Change from {{.From.CapturedAt.Format "2006-01-02 15:04:05"}} to {{.To.CapturedAt.Format "2006-01-02 15:04:05"}}</p>
{{- range .Removed}}<div class="del">- {{.}}</div>{{end}}
{{- range .Added}}<div class="add">+ {{.}}</div>{{end}}
{{- if and (not .Added) (not .Removed)}}<p class="empty">No textual difference.</p>{{end}}
{{- else}}
<p>Initial capture, {{.To.CapturedAt.Format "2006-01-02 15:04:05"}}</p>
{{- end}}
</div>
<div class="cols">
{{- if .From}}<div class="box"><div class="meta">before</div><pre>{{.FromText}}</pre></div>{{end}}
<div class="box"><div class="meta">after</div><pre>{{.ToText}}</pre></div>
</div>
{{- if .Annotations}}
<div class="box"><h2>Annotations</h2>
{{- range .Annotations}}
<div><p>{{.Annotation.Notes}}</p><div class="meta">{{.Annotation.Author}} &middot; significance {{.Annotation.Significance}}{{range .Annotation.Labels}} &middot; {{.}}{{end}}</div></div>
{{- end}}
</div>
{{- end}}
<div class="box"><h2>History</h2><ul>
{{- range .Versions}}
<li>{{if .Current}}<strong>{{.CapturedAt}}</strong>{{else}}<a href="{{.Path}}">{{.CapturedAt}}</a>{{end}} {{.Title}}</li>
{{- end}}
</ul></div>
{{- end}}
</body></html>`))

var errorTmpl = template.Must(template.New("error").Parse(pageHead + `
<title>changeview</title><script src="/static/keys.js" defer></script></head><body>
<h1>Page {{.PageID}} unavailable ({{.Status}})</h1>
<p class="box">{{.Error}}</p>
<p><a href="/">Back to the index</a></p>
</body></html>`))

// ABOUTME: Template loading and rendering for pages and live partials
// ABOUTME: Pages share base.html; partials are rendered alone for the SSE stream

package web

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/2389/cosint-web/internal/api"
	"github.com/2389/cosint-web/internal/assets"
	"github.com/2389/cosint-web/internal/auth"
	"github.com/2389/cosint-web/internal/chat"
	"github.com/2389/cosint-web/internal/notebook"
	"github.com/2389/cosint-web/internal/registry"
)

//go:embed templates/*.html templates/partials/*.html
var templateFS embed.FS

// md renders GitHub-flavoured markdown; replies often carry tables.
var md = goldmark.New(goldmark.WithExtensions(extension.GFM))

// renderMarkdown converts chat and note text to HTML. Raw HTML in the
// source is dropped by goldmark's default renderer.
func renderMarkdown(src string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(src), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(src))
	}
	return template.HTML(buf.String())
}

var funcs = template.FuncMap{
	"asset":    assets.URL,
	"markdown": renderMarkdown,
	"upper":    strings.ToUpper,
	"isHuman":  func(m api.Message) bool { return m.Role == api.RoleHuman },
}

// pageSet holds the parsed templates, one per page plus the partials.
type pageSet struct {
	pages    map[string]*template.Template
	partials *template.Template
}

var pageNames = []string{"home", "member", "bill", "login", "auth_error", "error"}

func mustParsePages() *pageSet {
	ps := &pageSet{pages: make(map[string]*template.Template)}
	for _, name := range pageNames {
		ps.pages[name] = template.Must(template.New("base.html").Funcs(funcs).ParseFS(templateFS,
			"templates/base.html",
			"templates/partials/*.html",
			"templates/"+name+".html",
		))
	}
	ps.partials = template.Must(template.New("partials").Funcs(funcs).ParseFS(templateFS, "templates/partials/*.html"))
	return ps
}

// Template data types
type pageData struct {
	Title     string
	User      *auth.User
	CSRFToken string
}

type loginData struct {
	pageData
	Next string
}

type errorData struct {
	pageData
	Heading string
	Message string
}

// chatData renders one chat panel.
type chatData struct {
	Scope       string
	Placeholder string
	CSRFToken   string
	Transcript  transcriptData
}

type transcriptData struct {
	Messages []api.Message
	InFlight bool
}

type registryData struct {
	Items     []registry.Item
	Loading   bool
	Empty     bool
	CSRFToken string
}

type notebookData struct {
	BioguideID string
	Notes      []notebook.Note
}

type homeData struct {
	pageData
	Registry registryData
	Chat     chatData
}

type memberData struct {
	pageData
	Bundle   *api.MemberBundle
	Chat     chatData
	Notebook notebookData
}

type billData struct {
	pageData
	Congress int
	Type     string
	Number   string
	Bundle   *api.BillBundle
}

func newTranscriptData(snap chat.Snapshot) transcriptData {
	return transcriptData{Messages: snap.Messages, InFlight: snap.InFlight()}
}

func newRegistryData(snap registry.Snapshot, csrfToken string) registryData {
	return registryData{
		Items:     snap.Items(),
		Loading:   snap.Loading(),
		Empty:     snap.Empty(),
		CSRFToken: csrfToken,
	}
}

func newChatData(v *chatView, placeholder, csrfToken string) chatData {
	return chatData{
		Scope:       v.scope,
		Placeholder: placeholder,
		CSRFToken:   csrfToken,
		Transcript:  newTranscriptData(v.session.Snapshot()),
	}
}

func newNotebookData(v *chatView) notebookData {
	data := notebookData{BioguideID: v.bioguideID}
	if v.notebook != nil {
		data.Notes = v.notebook.Notes()
	}
	return data
}

// renderPage renders a full page
func (a *App) renderPage(w http.ResponseWriter, status int, name string, data any) {
	tmpl, ok := a.pages.pages[name]
	if !ok {
		a.logger.Error("unknown page template", "page", name)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		a.logger.Error("failed to render page", "page", name, "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// renderPartial renders a named partial to a string for the SSE stream
func (a *App) renderPartial(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := a.pages.partials.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// writePartial renders a named partial as an HTML response
func (a *App) writePartial(w http.ResponseWriter, name string, data any) {
	html, err := a.renderPartial(name, data)
	if err != nil {
		a.logger.Error("failed to render partial", "partial", name, "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(html))
}

// renderError renders the terminal error view
func (a *App) renderError(w http.ResponseWriter, r *http.Request, status int, heading, message string) {
	a.renderPage(w, status, "error", errorData{
		pageData: pageData{Title: heading, User: auth.FromContext(r.Context()), CSRFToken: getCSRFToken(r)},
		Heading:  heading,
		Message:  message,
	})
}

package server

import (
	"bytes"
	"context"
	"html/template"
	"net/http"

	slogctx "github.com/veqryn/slog-context"
)

const layout = `{{define "layout"}}<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body>
<h1>{{.Title}}</h1>
{{template "content" .}}
<p><a href="/">Back to connectors</a></p>
</body>
</html>{{end}}`

var pages = map[string]*template.Template{
	"index": page(`{{define "content"}}
{{if .User}}<p>Signed in as {{if .User.Name}}{{.User.Name}}{{else}}{{.User.UserID}}{{end}}{{if .User.Email}} ({{.User.Email}}){{end}}. <a href="/logout">Sign out</a></p>
{{else}}<p>Not signed in.</p>
{{end}}<ul>
{{range .Providers}}<li><a href="/{{.}}/authorize">Connect {{.}}</a></li>
{{end}}</ul>{{end}}`),
	"success": page(`{{define "content"}}
<p>The {{.Provider}} account is connected.</p>
<dl>
<dt>Subject</dt><dd>{{.Subject}}</dd>
<dt>Secret</dt><dd>{{.SecretKey}}</dd>
<dt>Version</dt><dd>{{.Version}}</dd>
</dl>{{end}}`),
	"error": page(`{{define "content"}}
<p>{{.Description}}</p>
<p><code>{{.Code}}</code></p>{{end}}`),
}

func page(content string) *template.Template {
	return template.Must(template.Must(template.New("layout").Parse(layout)).Parse(content))
}

type indexPage struct {
	Title     string
	Providers []string
	User      *userView
}

type userView struct {
	UserID string
	Email  string
	Name   string
}

type successPage struct {
	Title     string
	Provider  string
	Subject   string
	SecretKey string
	Version   string
}

type errorPage struct {
	Title       string
	Code        string
	Description string
}

// render buffers the page before anything is written to w.
func render(ctx context.Context, w http.ResponseWriter, status int, name string, data any) {
	var buf bytes.Buffer
	if err := pages[name].ExecuteTemplate(&buf, "layout", data); err != nil {
		slogctx.Error(ctx, "Failed to render page", "page", name, "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// Package templates renders the HTML fragments served by the web layer.
// Components are built with templ's programmatic API so the status page and
// error partials stay in plain Go.
package templates

import (
	"context"
	"fmt"
	"html"
	"io"

	"github.com/a-h/templ"
	"github.com/eurolife/lifexp/internal/core"
)

// StatusParams carries the data shown on the landing page.
type StatusParams struct {
	Regions    []string
	Countries  int
	Aggregates int
	Extensions []string
	Limiter    core.LimiterStatus
}

// StatusPage renders the service landing page: catalog summary, supported
// file types, and current ingest capacity.
func StatusPage(p StatusParams) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Life Expectancy Cleaning Service</title>
<style>
body { font-family: sans-serif; max-width: 48rem; margin: 2rem auto; padding: 0 1rem; color: #1f2937; }
h1 { font-size: 1.5rem; }
table { border-collapse: collapse; margin: 1rem 0; }
td, th { border: 1px solid #d1d5db; padding: 0.35rem 0.75rem; text-align: left; }
code { background: #f3f4f6; padding: 0.1rem 0.3rem; border-radius: 3px; }
.regions { line-height: 1.8; }
</style>
</head>
<body>
<h1>Life Expectancy Cleaning Service</h1>
`); err != nil {
			return err
		}

		fmt.Fprintf(w, `<table>
<tr><th>Catalog regions</th><td>%d (%d countries, %d aggregates)</td></tr>
<tr><th>Supported files</th><td>`, len(p.Regions), p.Countries, p.Aggregates)
		for i, ext := range p.Extensions {
			if i > 0 {
				io.WriteString(w, " ")
			}
			fmt.Fprintf(w, "<code>%s</code>", html.EscapeString(ext))
		}
		fmt.Fprintf(w, `</td></tr>
<tr><th>Active ingests</th><td>%d of %d</td></tr>
</table>
`, p.Limiter.Active, p.Limiter.MaxConcurrent)

		io.WriteString(w, `<p>POST a file to <code>/api/clean/{region}</code> for a synchronous clean, or to <code>/api/ingest/{region}</code> to persist and export.</p>
<p class="regions">`)
		for i, code := range p.Regions {
			if i > 0 {
				io.WriteString(w, " ")
			}
			fmt.Fprintf(w, "<code>%s</code>", html.EscapeString(code))
		}
		_, err := io.WriteString(w, `</p>
</body>
</html>
`)
		return err
	})
}

// ErrorAlert renders an inline error fragment with the support code.
func ErrorAlert(message, action, code string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(w,
			`<div class="alert alert-error" role="alert"><strong>%s</strong> (Code: %s)<br>%s</div>`,
			html.EscapeString(message), html.EscapeString(code), html.EscapeString(action))
		return err
	})
}

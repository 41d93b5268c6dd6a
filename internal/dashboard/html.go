package dashboard

import (
	_ "embed"
	"html/template"
	"io"
	"time"
)

//go:embed dashboard.html.tmpl
var pageSource string

var page = template.Must(template.New("dashboard").Funcs(template.FuncMap{
	"datetime": func(t time.Time) string { return t.Format(time.DateTime) },
	"f2":       fmtFloat,
	"width":    barPercent,
}).Parse(pageSource))

// RenderHTML writes the dashboard as a self-contained HTML page.
func RenderHTML(w io.Writer, d *Dashboard) error {
	return page.Execute(w, d)
}

// barPercent scales a bin count against the tallest bin.
func barPercent(count int, bins []Bin) int {
	peak := 0
	for _, b := range bins {
		peak = max(peak, b.Count)
	}
	if peak == 0 {
		return 0
	}
	return count * 100 / peak
}

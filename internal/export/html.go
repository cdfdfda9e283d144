package export

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"time"

	"pharmacy-report-service/internal/aging"
	"pharmacy-report-service/internal/ledger"
	"pharmacy-report-service/internal/movement"
)

//go:embed templates/*.html
var templateFS embed.FS

// Page fields shared by every printable report.
type Page struct {
	Title       string
	Subtitle    string
	GeneratedAt time.Time
	Columns     []string
}

type LedgerPage struct {
	Page
	Rows           []ledger.Transaction
	Totals         ledger.Totals
	CurrentBalance int64
	ClosingBalance *int64
}

type AgingPage struct {
	Page
	Buckets []aging.BucketName
	Report  aging.Report
}

type SalesPage struct {
	Page
	Rows   []movement.Row
	Totals movement.Row
}

// Renderer renders the printable HTML pages. It is safe for concurrent use.
type Renderer struct {
	ledger *template.Template
	aging  *template.Template
	sales  *template.Template
}

func NewRenderer() (*Renderer, error) {
	funcMap := template.FuncMap{
		"formatDate":     func(t time.Time) string { return t.Format(dateLayout) },
		"formatDateTime": func(t time.Time) string { return t.Format("2006-01-02 15:04") },
		"money":          Money,
		"typeLabel":      TypeLabel,
		"deref":          func(p *int64) int64 { return *p },
	}

	parse := func(body string) (*template.Template, error) {
		t, err := template.New("layout").Funcs(funcMap).ParseFS(templateFS, "templates/layout.html", "templates/"+body)
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", body, err)
		}
		return t, nil
	}

	r := &Renderer{}
	var err error
	if r.ledger, err = parse("ledger.html"); err != nil {
		return nil, err
	}
	if r.aging, err = parse("aging.html"); err != nil {
		return nil, err
	}
	if r.sales, err = parse("sales.html"); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Renderer) Ledger(w io.Writer, page LedgerPage) error {
	page.Columns = LedgerColumns
	return render(w, r.ledger, page)
}

func (r *Renderer) Aging(w io.Writer, page AgingPage) error {
	page.Columns = AgingColumns
	page.Buckets = aging.Buckets
	return render(w, r.aging, page)
}

// Sales renders the movement table; rows with a discrepancy are highlighted.
func (r *Renderer) Sales(w io.Writer, page SalesPage) error {
	page.Columns = SalesColumns
	page.Totals = movement.Sum(page.Rows)
	return render(w, r.sales, page)
}

// render executes into a buffer so a template error never leaves a partial
// page on w.
func render(w io.Writer, t *template.Template, data interface{}) error {
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		return fmt.Errorf("failed to render template: %w", err)
	}
	_, err := buf.WriteTo(w)
	return err
}

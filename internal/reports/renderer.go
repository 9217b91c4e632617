package reports

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"time"

	"github.com/gonzalo-wi/reporteDiferencias/internal/deposits"
	"github.com/gonzalo-wi/reporteDiferencias/web"
)

// PDFClient exposes the subset of the Gotenberg client used by the renderer.
type PDFClient interface {
	RenderHTML(ctx context.Context, html string) ([]byte, error)
}

// Renderer turns an aggregation into the three PDF artifacts via
// html/template plus PDF conversion.
type Renderer struct {
	tpl    *template.Template
	client PDFClient
	outDir string
	now    func() time.Time
}

// NewRenderer parses the report templates and wires the PDF client.
func NewRenderer(client PDFClient, outDir string) (*Renderer, error) {
	if client == nil {
		return nil, fmt.Errorf("renderer: pdf client required")
	}
	funcMap := template.FuncMap{
		"money": FormatARS,
		"formatDate": func(t time.Time) string {
			return t.Format("02/01/2006")
		},
		"diff": func(r deposits.Record) int64 {
			return r.Expected - r.Deposited
		},
	}
	tpl, err := template.New("reports").Funcs(funcMap).ParseFS(web.Templates, "templates/reports/*.html")
	if err != nil {
		return nil, err
	}
	return &Renderer{tpl: tpl, client: client, outDir: outDir, now: time.Now}, nil
}

// WithNow overrides the renderer clock for testing.
func (r *Renderer) WithNow(fn func() time.Time) {
	if fn != nil {
		r.now = fn
	}
}

// documentData is the view model shared by the three templates.
type documentData struct {
	Date           string
	Agg            Aggregation
	Threshold      int64
	ShortfallTotal int64
}

// Render produces the totales, detallado and diferencias artifacts for the
// aggregation. Filenames are keyed by the generation date so re-runs
// overwrite in place.
func (r *Renderer) Render(ctx context.Context, agg Aggregation, threshold int64) ([]Artifact, error) {
	if agg.Empty() {
		return nil, &RenderError{Err: ErrRenderEmpty}
	}
	if err := os.MkdirAll(r.outDir, 0o755); err != nil {
		return nil, &RenderError{Err: err}
	}

	generatedAt := r.now()
	artifacts := make([]Artifact, 0, 3)
	for _, kind := range []Kind{KindTotales, KindDetallado, KindDiferencias} {
		path := filepath.Join(r.outDir, ArtifactName(kind, generatedAt))
		if err := r.renderOne(ctx, kind, agg, threshold, generatedAt, path); err != nil {
			return nil, err
		}
		artifacts = append(artifacts, Artifact{Kind: kind, Path: path, GeneratedAt: generatedAt})
	}
	return artifacts, nil
}

// RenderSample renders only the diferencias document under a test filename,
// without dispatching anything.
func (r *Renderer) RenderSample(ctx context.Context, agg Aggregation, threshold int64) (Artifact, error) {
	if agg.Empty() {
		return Artifact{}, &RenderError{Kind: KindDiferencias, Err: ErrRenderEmpty}
	}
	if err := os.MkdirAll(r.outDir, 0o755); err != nil {
		return Artifact{}, &RenderError{Kind: KindDiferencias, Err: err}
	}
	generatedAt := r.now()
	path := filepath.Join(r.outDir, "test_"+ArtifactName(KindDiferencias, generatedAt))
	if err := r.renderOne(ctx, KindDiferencias, agg, threshold, generatedAt, path); err != nil {
		return Artifact{}, err
	}
	return Artifact{Kind: KindDiferencias, Path: path, GeneratedAt: generatedAt}, nil
}

// HTML executes the template for one kind and returns the document markup.
// Exposed so tests can assert table contents without a PDF service.
func (r *Renderer) HTML(kind Kind, agg Aggregation, threshold int64, generatedAt time.Time) (string, error) {
	data := documentData{
		Date:      generatedAt.Format("2006-01-02"),
		Agg:       agg,
		Threshold: threshold,
	}
	for _, e := range agg.Shortfalls {
		data.ShortfallTotal += e.Difference
	}
	buf := &bytes.Buffer{}
	if err := r.tpl.ExecuteTemplate(buf, string(kind)+".html", data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (r *Renderer) renderOne(ctx context.Context, kind Kind, agg Aggregation, threshold int64, generatedAt time.Time, path string) error {
	html, err := r.HTML(kind, agg, threshold, generatedAt)
	if err != nil {
		return &RenderError{Kind: kind, Err: err}
	}
	pdf, err := r.client.RenderHTML(ctx, html)
	if err != nil {
		return &RenderError{Kind: kind, Err: err}
	}
	if err := os.WriteFile(path, pdf, 0o644); err != nil {
		return &RenderError{Kind: kind, Err: err}
	}
	return nil
}

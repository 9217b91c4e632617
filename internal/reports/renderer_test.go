package reports

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gonzalo-wi/reporteDiferencias/internal/deposits"
)

type fakePDFClient struct {
	rendered []string
	err      error
}

func (f *fakePDFClient) RenderHTML(_ context.Context, html string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.rendered = append(f.rendered, html)
	return []byte("%PDF-1.4\n" + html), nil
}

func sampleAggregation() Aggregation {
	entities := []EntityTotal{
		{
			EntityID:   "119",
			EntityName: "119, RTO 119",
			Expected:   50000,
			Deposited:  35000,
			Difference: 15000,
			Records: []deposits.Record{
				{DateISO: "2025-08-21", Reparto: "119", Expected: 50000, Deposited: 35000, POSName: "POS 1"},
			},
		},
		{
			EntityID:   "72",
			EntityName: "RTO 072",
			Expected:   20000,
			Deposited:  19000,
			Difference: 1000,
			Records: []deposits.Record{
				{DateISO: "2025-08-21", Reparto: "72", Expected: 20000, Deposited: 19000},
			},
		},
	}
	return Aggregation{
		Range: DateRange{
			Desde: time.Date(2025, 8, 21, 0, 0, 0, 0, time.UTC),
			Hasta: time.Date(2025, 8, 21, 0, 0, 0, 0, time.UTC),
		},
		TotalExpected:   70000,
		TotalDeposited:  54000,
		TotalDifference: 16000,
		Entities:        entities,
		Shortfalls:      entities[:1],
	}
}

func fixedNow() time.Time {
	return time.Date(2025, 8, 22, 6, 0, 0, 0, time.UTC)
}

func TestRenderProducesThreeArtifacts(t *testing.T) {
	dir := t.TempDir()
	client := &fakePDFClient{}
	renderer, err := NewRenderer(client, dir)
	if err != nil {
		t.Fatalf("new renderer: %v", err)
	}
	renderer.WithNow(fixedNow)

	artifacts, err := renderer.Render(context.Background(), sampleAggregation(), 10000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(artifacts) != 3 {
		t.Fatalf("expected 3 artifacts, got %d", len(artifacts))
	}
	wantNames := map[Kind]string{
		KindTotales:     "totales_2025-08-22.pdf",
		KindDetallado:   "detallado_2025-08-22.pdf",
		KindDiferencias: "diferencias_2025-08-22.pdf",
	}
	for _, a := range artifacts {
		if filepath.Base(a.Path) != wantNames[a.Kind] {
			t.Fatalf("kind %s: expected name %s, got %s", a.Kind, wantNames[a.Kind], filepath.Base(a.Path))
		}
		if _, err := os.Stat(a.Path); err != nil {
			t.Fatalf("artifact %s not written: %v", a.Path, err)
		}
	}
}

func TestRenderIdempotentTableContents(t *testing.T) {
	dir := t.TempDir()
	client := &fakePDFClient{}
	renderer, err := NewRenderer(client, dir)
	if err != nil {
		t.Fatalf("new renderer: %v", err)
	}
	renderer.WithNow(fixedNow)

	agg := sampleAggregation()
	if _, err := renderer.Render(context.Background(), agg, 10000); err != nil {
		t.Fatalf("first render: %v", err)
	}
	if _, err := renderer.Render(context.Background(), agg, 10000); err != nil {
		t.Fatalf("second render: %v", err)
	}
	if len(client.rendered) != 6 {
		t.Fatalf("expected 6 rendered documents, got %d", len(client.rendered))
	}
	for i := 0; i < 3; i++ {
		if client.rendered[i] != client.rendered[i+3] {
			t.Fatalf("document %d differs between identical renders", i)
		}
	}
}

func TestRenderTableValues(t *testing.T) {
	renderer, err := NewRenderer(&fakePDFClient{}, t.TempDir())
	if err != nil {
		t.Fatalf("new renderer: %v", err)
	}

	html, err := renderer.HTML(KindTotales, sampleAggregation(), 10000, fixedNow())
	if err != nil {
		t.Fatalf("totales html: %v", err)
	}
	for _, want := range []string{"$ 50.000", "$ 35.000", "$ 15.000", "$ 16.000", "TOTAL"} {
		if !strings.Contains(html, want) {
			t.Fatalf("totales document missing %q", want)
		}
	}

	detailed, err := renderer.HTML(KindDetallado, sampleAggregation(), 10000, fixedNow())
	if err != nil {
		t.Fatalf("detallado html: %v", err)
	}
	if !strings.Contains(detailed, "POS 1") {
		t.Fatalf("detallado document missing per-record rows")
	}
}

func TestRenderDiferenciasOmitsBelowThreshold(t *testing.T) {
	renderer, err := NewRenderer(&fakePDFClient{}, t.TempDir())
	if err != nil {
		t.Fatalf("new renderer: %v", err)
	}

	html, err := renderer.HTML(KindDiferencias, sampleAggregation(), 10000, fixedNow())
	if err != nil {
		t.Fatalf("diferencias html: %v", err)
	}
	if !strings.Contains(html, "119") {
		t.Fatalf("shortfall entity missing from diferencias document")
	}
	if strings.Contains(html, "$ 19.000") {
		t.Fatalf("below-threshold entity leaked into diferencias document")
	}
}

func TestRenderEmptyAggregationFails(t *testing.T) {
	renderer, err := NewRenderer(&fakePDFClient{}, t.TempDir())
	if err != nil {
		t.Fatalf("new renderer: %v", err)
	}

	_, err = renderer.Render(context.Background(), Aggregation{}, 10000)
	var renderErr *RenderError
	if !errors.As(err, &renderErr) {
		t.Fatalf("expected RenderError, got %v", err)
	}
	if !errors.Is(err, ErrRenderEmpty) {
		t.Fatalf("expected ErrRenderEmpty, got %v", err)
	}
}

func TestRenderConversionFailure(t *testing.T) {
	renderer, err := NewRenderer(&fakePDFClient{err: errors.New("gotenberg down")}, t.TempDir())
	if err != nil {
		t.Fatalf("new renderer: %v", err)
	}

	_, err = renderer.Render(context.Background(), sampleAggregation(), 10000)
	var renderErr *RenderError
	if !errors.As(err, &renderErr) {
		t.Fatalf("expected RenderError, got %v", err)
	}
}

func TestRenderSampleUsesTestPrefix(t *testing.T) {
	dir := t.TempDir()
	renderer, err := NewRenderer(&fakePDFClient{}, dir)
	if err != nil {
		t.Fatalf("new renderer: %v", err)
	}
	renderer.WithNow(fixedNow)

	artifact, err := renderer.RenderSample(context.Background(), sampleAggregation(), 10000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if filepath.Base(artifact.Path) != "test_diferencias_2025-08-22.pdf" {
		t.Fatalf("unexpected sample name %s", filepath.Base(artifact.Path))
	}
}

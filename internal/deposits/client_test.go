package deposits

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

const samplePayload = `{
	"plants": {
		"jumillano": {
			"name": "El Jumillano",
			"deposits": [
				{"deposit_id": 91, "identifier": "D-91", "user_name": "119, RTO 119", "total_amount": 35000, "deposit_esperado": 50000, "estado": "LISTO", "currency_code": "ARS", "pos_name": "POS 1"},
				{"deposit_id": 92, "identifier": "D-92", "user_name": "RTO 072", "total_amount": 19000, "deposit_esperado": 20000, "estado": "LISTO"}
			]
		}
	}
}`

func TestParseReparto(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"119, RTO 119", "119"},
		{"RTO 072", "72"},
		{"RTO 5", "5"},
		{"sin numero", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := ParseReparto(tc.in); got != tc.want {
			t.Fatalf("ParseReparto(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFetchDayFlattensPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/deposits/db/by-plant" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("date"); got != "2025-08-21" {
			t.Fatalf("unexpected date param %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(samplePayload))
	}))
	defer srv.Close()

	client := NewClient(ClientConfig{BaseURL: srv.URL, Retries: 1})
	day := time.Date(2025, 8, 21, 0, 0, 0, 0, time.UTC)
	records, err := client.FetchDay(context.Background(), day)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	first := records[0]
	if first.Reparto != "119" {
		t.Fatalf("expected reparto 119, got %q", first.Reparto)
	}
	if first.Expected != 50000 || first.Deposited != 35000 {
		t.Fatalf("unexpected amounts: expected=%d deposited=%d", first.Expected, first.Deposited)
	}
	if first.PlantName != "El Jumillano" {
		t.Fatalf("unexpected plant name %q", first.PlantName)
	}
	if first.Currency != "ARS" {
		t.Fatalf("unexpected currency %q", first.Currency)
	}
	if records[1].Reparto != "72" {
		t.Fatalf("expected reparto 72, got %q", records[1].Reparto)
	}
	if records[1].DateISO != "2025-08-21" {
		t.Fatalf("unexpected date iso %q", records[1].DateISO)
	}
}

func TestFetchDayRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(samplePayload))
	}))
	defer srv.Close()

	client := NewClient(ClientConfig{BaseURL: srv.URL, Retries: 3, Backoff: time.Millisecond})
	records, err := client.FetchDay(context.Background(), time.Date(2025, 8, 21, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestFetchDayExhaustedRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(ClientConfig{BaseURL: srv.URL, Retries: 2, Backoff: time.Millisecond})
	_, err := client.FetchDay(context.Background(), time.Date(2025, 8, 21, 0, 0, 0, 0, time.UTC))
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestFetchDayMalformedPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"plants": [`))
	}))
	defer srv.Close()

	client := NewClient(ClientConfig{BaseURL: srv.URL, Retries: 1})
	_, err := client.FetchDay(context.Background(), time.Date(2025, 8, 21, 0, 0, 0, 0, time.UTC))
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable for malformed payload, got %v", err)
	}
}

func TestFetchDayEmptyPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"plants": {}}`))
	}))
	defer srv.Close()

	client := NewClient(ClientConfig{BaseURL: srv.URL, Retries: 1})
	records, err := client.FetchDay(context.Background(), time.Date(2025, 8, 21, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected no records, got %d", len(records))
	}
}

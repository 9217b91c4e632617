package reporthttp

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/gonzalo-wi/reporteDiferencias/internal/deposits"
	"github.com/gonzalo-wi/reporteDiferencias/internal/platform/httpx"
	"github.com/gonzalo-wi/reporteDiferencias/internal/reports"
)

// Handler exposes the report pipeline over HTTP.
type Handler struct {
	logger     *slog.Logger
	aggregator *reports.Aggregator
	runner     *reports.Runner
	reportsDir string
	timezone   string
	location   *time.Location
	validate   *validator.Validate
}

// NewHandler constructs the reports HTTP handler.
func NewHandler(logger *slog.Logger, aggregator *reports.Aggregator, runner *reports.Runner, reportsDir, timezone string, location *time.Location) *Handler {
	if location == nil {
		location = time.UTC
	}
	return &Handler{
		logger:     logger,
		aggregator: aggregator,
		runner:     runner,
		reportsDir: reportsDir,
		timezone:   timezone,
		location:   location,
		validate:   validator.New(),
	}
}

// MountRoutes registers the report endpoints. The mutating endpoints share a
// rate limit so repeated manual triggers cannot pile up.
func (h *Handler) MountRoutes(r chi.Router) {
	limiter := httprate.Limit(10, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		}),
	)

	r.Get("/health", h.health)
	r.Get("/api/differences", h.differences)
	r.Get("/api/differences/summary", h.summary)
	r.Group(func(gr chi.Router) {
		gr.Use(limiter)
		gr.Post("/run-now", h.runNow)
		gr.Post("/api/test-pdf", h.testPDF)
		gr.Post("/api/clean-reports", h.cleanReports)
	})
}

type rangeQuery struct {
	Desde string `validate:"required,datetime=2006-01-02"`
	Hasta string `validate:"required,datetime=2006-01-02"`
}

func (h *Handler) parseRange(r *http.Request) (time.Time, time.Time, error) {
	q := rangeQuery{
		Desde: r.URL.Query().Get("desde"),
		Hasta: r.URL.Query().Get("hasta"),
	}
	if err := h.validate.Struct(q); err != nil {
		return time.Time{}, time.Time{}, err
	}
	desde, _ := time.ParseInLocation("2006-01-02", q.Desde, h.location)
	hasta, _ := time.ParseInLocation("2006-01-02", q.Hasta, h.location)
	return desde, hasta, nil
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"tz":     h.timezone,
	})
}

type differencesResponse struct {
	Status       string                `json:"status"`
	Desde        string                `json:"desde"`
	Hasta        string                `json:"hasta"`
	Estadisticas differencesStats      `json:"estadisticas"`
	Items        []reports.EntityTotal `json:"items"`
}

type differencesStats struct {
	Entidades       int   `json:"total_entidades"`
	Faltantes       int   `json:"total_faltantes"`
	TotalEsperado   int64 `json:"total_esperado"`
	TotalDepositado int64 `json:"total_depositado"`
	TotalDiferencia int64 `json:"total_diferencia"`
}

// differences returns the full per-entity breakdown for the range.
func (h *Handler) differences(w http.ResponseWriter, r *http.Request) {
	desde, hasta, err := h.parseRange(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Range", err.Error())
		return
	}
	agg, err := h.aggregator.Aggregate(r.Context(), desde, hasta)
	if err != nil {
		h.respondAggregateError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, differencesResponse{
		Status: "ok",
		Desde:  desde.Format("2006-01-02"),
		Hasta:  hasta.Format("2006-01-02"),
		Estadisticas: differencesStats{
			Entidades:       len(agg.Entities),
			Faltantes:       len(agg.Shortfalls),
			TotalEsperado:   agg.TotalExpected,
			TotalDepositado: agg.TotalDeposited,
			TotalDiferencia: agg.TotalDifference,
		},
		Items: agg.Entities,
	})
}

type summaryResponse struct {
	Status          string `json:"status"`
	Desde           string `json:"desde"`
	Hasta           string `json:"hasta"`
	TotalEsperado   int64  `json:"total_esperado"`
	TotalDepositado int64  `json:"total_depositado"`
	TotalDiferencia int64  `json:"total_diferencia"`
	TotalFaltantes  int    `json:"total_faltantes"`
}

// summary returns range totals without the per-entity breakdown.
func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	desde, hasta, err := h.parseRange(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Range", err.Error())
		return
	}
	agg, err := h.aggregator.Aggregate(r.Context(), desde, hasta)
	if err != nil {
		h.respondAggregateError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summaryResponse{
		Status:          "ok",
		Desde:           desde.Format("2006-01-02"),
		Hasta:           hasta.Format("2006-01-02"),
		TotalEsperado:   agg.TotalExpected,
		TotalDepositado: agg.TotalDeposited,
		TotalDiferencia: agg.TotalDifference,
		TotalFaltantes:  len(agg.Shortfalls),
	})
}

// runNow triggers one synchronous pipeline run.
func (h *Handler) runNow(w http.ResponseWriter, r *http.Request) {
	report, err := h.runner.Run(r.Context())
	switch {
	case err == nil:
		httpx.JSON(w, http.StatusOK, report)
	case reports.IsBusy(err):
		httpx.JSON(w, http.StatusConflict, report)
	default:
		h.logger.Error("manual run failed", slog.Any("error", err))
		httpx.JSON(w, http.StatusInternalServerError, report)
	}
}

type testPDFResponse struct {
	Status      string `json:"status"`
	Fecha       string `json:"fecha"`
	Faltantes   int    `json:"total_diferencias"`
	PDFPath     string `json:"pdf_path"`
	GeneratedAt string `json:"generated_at"`
}

// testPDF renders a sample diferencias report without dispatching email.
func (h *Handler) testPDF(w http.ResponseWriter, r *http.Request) {
	artifact, shortfalls, err := h.runner.RunSample(r.Context())
	if err != nil {
		h.respondAggregateError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, testPDFResponse{
		Status:      "ok",
		Fecha:       artifact.GeneratedAt.Format("2006-01-02"),
		Faltantes:   shortfalls,
		PDFPath:     artifact.Path,
		GeneratedAt: artifact.GeneratedAt.Format(time.RFC3339),
	})
}

// cleanReports deletes artifacts older than days_to_keep (default 7, max 30).
func (h *Handler) cleanReports(w http.ResponseWriter, r *http.Request) {
	days := reports.DefaultDaysToKeep
	if raw := r.URL.Query().Get("days_to_keep"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > reports.MaxDaysToKeep {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Parameter",
				"days_to_keep must be an integer between 1 and 30")
			return
		}
		days = parsed
	}
	result := reports.Clean(h.reportsDir, days, h.logger)
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) respondAggregateError(w http.ResponseWriter, err error) {
	var renderErr *reports.RenderError
	switch {
	case errors.Is(err, reports.ErrInvalidRange):
		httpx.Problem(w, http.StatusBadRequest, "Invalid Range", err.Error())
	case errors.Is(err, deposits.ErrUnavailable):
		httpx.Problem(w, http.StatusBadGateway, "Upstream Unavailable", err.Error())
	case errors.As(err, &renderErr):
		h.logger.Error("render failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Render Failed", err.Error())
	default:
		h.logger.Error("report request failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

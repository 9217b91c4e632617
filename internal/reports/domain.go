package reports

import (
	"errors"
	"fmt"
	"time"

	"github.com/gonzalo-wi/reporteDiferencias/internal/deposits"
)

// Sentinel errors surfaced by the pipeline and its HTTP callers.
var (
	// ErrInvalidRange indicates hasta precedes desde.
	ErrInvalidRange = errors.New("invalid date range")
	// ErrRenderEmpty indicates rendering was requested for an empty aggregation.
	ErrRenderEmpty = errors.New("nothing to render")
	// ErrJobBusy indicates a pipeline run is already in progress.
	ErrJobBusy = errors.New("report run already in progress")
)

// RenderError wraps a local rendering failure (file or conversion problem).
type RenderError struct {
	Kind Kind
	Err  error
}

func (e *RenderError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("render %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("render: %v", e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// Kind identifies one of the three report document variants.
type Kind string

const (
	KindTotales     Kind = "totales"
	KindDetallado   Kind = "detallado"
	KindDiferencias Kind = "diferencias"
)

// DateRange is an inclusive day range.
type DateRange struct {
	Desde time.Time `json:"desde"`
	Hasta time.Time `json:"hasta"`
}

// Validate rejects ranges where hasta precedes desde.
func (r DateRange) Validate() error {
	if r.Hasta.Before(r.Desde) {
		return fmt.Errorf("%w: hasta %s before desde %s", ErrInvalidRange,
			r.Hasta.Format("2006-01-02"), r.Desde.Format("2006-01-02"))
	}
	return nil
}

// Days yields each day of the inclusive range.
func (r DateRange) Days() []time.Time {
	var days []time.Time
	for d := r.Desde; !d.After(r.Hasta); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// EntityTotal is the range-summed position of one entity (reparto).
// Difference is expected minus deposited: positive means a shortfall.
type EntityTotal struct {
	EntityID   string            `json:"reparto"`
	EntityName string            `json:"user_name"`
	Expected   int64             `json:"esperado"`
	Deposited  int64             `json:"depositado"`
	Difference int64             `json:"diferencia"`
	Records    []deposits.Record `json:"records,omitempty"`
}

// Aggregation is the transient view computed over the external source.
// It is never persisted.
type Aggregation struct {
	Range           DateRange     `json:"rango"`
	TotalExpected   int64         `json:"total_esperado"`
	TotalDeposited  int64         `json:"total_depositado"`
	TotalDifference int64         `json:"total_diferencia"`
	Entities        []EntityTotal `json:"entidades"`
	Shortfalls      []EntityTotal `json:"faltantes"`
}

// Empty reports whether the aggregation carries no entities.
func (a Aggregation) Empty() bool {
	return len(a.Entities) == 0
}

// Artifact is a generated PDF document on the local filesystem.
type Artifact struct {
	Kind        Kind      `json:"kind"`
	Path        string    `json:"path"`
	GeneratedAt time.Time `json:"generated_at"`
}

// ArtifactName builds the deterministic filename for a report kind and
// generation date.
func ArtifactName(kind Kind, date time.Time) string {
	return fmt.Sprintf("%s_%s.pdf", kind, date.Format("2006-01-02"))
}

// Delivery records the outcome of one recipient's email submission.
type Delivery struct {
	Recipient   string   `json:"recipient"`
	Attachments []string `json:"attachments"`
	Attempts    int      `json:"attempts"`
	Error       string   `json:"error,omitempty"`
}

// OK reports whether the delivery reached the recipient.
func (d Delivery) OK() bool { return d.Error == "" }

// DispatchReport collects per-recipient outcomes. Individual failures are
// reported here, never raised.
type DispatchReport struct {
	Deliveries []Delivery `json:"deliveries"`
}

// Failed counts deliveries that did not reach their recipient.
func (r DispatchReport) Failed() int {
	n := 0
	for _, d := range r.Deliveries {
		if !d.OK() {
			n++
		}
	}
	return n
}

// RunStatus describes the terminal state of one pipeline run.
type RunStatus string

const (
	RunStatusOK     RunStatus = "ok"
	RunStatusFailed RunStatus = "failed"
)

// Stage names the pipeline step a run is in, or failed at.
type Stage string

const (
	StageIdle        Stage = "idle"
	StageFetching    Stage = "fetching"
	StageAggregating Stage = "aggregating"
	StageRendering   Stage = "rendering"
	StageDispatching Stage = "dispatching"
)

// RunReport summarises one end-to-end pipeline run.
type RunReport struct {
	ID           string         `json:"id"`
	Date         string         `json:"date"`
	Status       RunStatus      `json:"status"`
	Stage        Stage          `json:"stage"`
	Differences  int            `json:"differences_count"`
	Artifacts    []Artifact     `json:"artifacts,omitempty"`
	Dispatch     DispatchReport `json:"dispatch"`
	CleanedFiles int            `json:"files_cleaned"`
	Error        string         `json:"error,omitempty"`
}

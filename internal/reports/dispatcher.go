package reports

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"
)

// Mailer delivers one message with attachments to a single recipient.
type Mailer interface {
	Send(ctx context.Context, to, subject, bodyHTML string, attachments []string) error
}

// RetryPolicy bounds per-recipient delivery retries.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
}

// DispatcherConfig wires the dispatcher's recipients and retry policy.
type DispatcherConfig struct {
	Mailer       Mailer
	RHEmail      string
	AdminEmail   string
	FromName     string
	MinShortfall int64
	Retry        RetryPolicy
	Logger       *slog.Logger
}

// Dispatcher assembles recipient-specific attachment sets and sends the
// notification emails. Routing is fixed: RH receives the diferencias
// document, administration receives totales and detallado.
type Dispatcher struct {
	mailer       Mailer
	rhEmail      string
	adminEmail   string
	fromName     string
	minShortfall int64
	retry        RetryPolicy
	logger       *slog.Logger
	sleep        func(context.Context, time.Duration) error
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	retry := cfg.Retry
	if retry.Attempts < 1 {
		retry.Attempts = 2
	}
	if retry.Backoff <= 0 {
		retry.Backoff = 2 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		mailer:       cfg.Mailer,
		rhEmail:      cfg.RHEmail,
		adminEmail:   cfg.AdminEmail,
		fromName:     cfg.FromName,
		minShortfall: cfg.MinShortfall,
		retry:        retry,
		logger:       logger,
		sleep: func(ctx context.Context, d time.Duration) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d):
				return nil
			}
		},
	}
}

// Dispatch sends the report emails. Individual recipient failures are
// collected into the returned report, never propagated.
func (d *Dispatcher) Dispatch(ctx context.Context, date string, agg Aggregation, artifacts []Artifact) DispatchReport {
	byKind := make(map[Kind]Artifact, len(artifacts))
	for _, a := range artifacts {
		byKind[a.Kind] = a
	}

	var report DispatchReport
	if diff, ok := byKind[KindDiferencias]; ok && d.rhEmail != "" {
		report.Deliveries = append(report.Deliveries, d.sendWithRetry(ctx,
			d.rhEmail,
			fmt.Sprintf("[RTO] Diferencias (>= %s) - %s", FormatARS(d.minShortfall), date),
			d.rhBody(date, agg),
			[]string{diff.Path},
		))
	}
	if d.adminEmail != "" {
		var paths []string
		for _, kind := range []Kind{KindTotales, KindDetallado} {
			if a, ok := byKind[kind]; ok {
				paths = append(paths, a.Path)
			}
		}
		if len(paths) > 0 {
			report.Deliveries = append(report.Deliveries, d.sendWithRetry(ctx,
				d.adminEmail,
				fmt.Sprintf("[RTO] Depósitos Totales y Detallado - %s", date),
				d.adminBody(date, paths),
				paths,
			))
		}
	}
	return report
}

func (d *Dispatcher) sendWithRetry(ctx context.Context, to, subject, body string, attachments []string) Delivery {
	delivery := Delivery{Recipient: to}
	for _, path := range attachments {
		delivery.Attachments = append(delivery.Attachments, filepath.Base(path))
	}

	var lastErr error
	for attempt := 1; attempt <= d.retry.Attempts; attempt++ {
		delivery.Attempts = attempt
		lastErr = d.mailer.Send(ctx, to, subject, body, attachments)
		if lastErr == nil {
			d.logger.Info("report email sent",
				slog.String("to", to),
				slog.Int("attempt", attempt))
			return delivery
		}
		d.logger.Warn("report email failed",
			slog.String("to", to),
			slog.Int("attempt", attempt),
			slog.Any("error", lastErr))
		if attempt < d.retry.Attempts {
			if err := d.sleep(ctx, d.retry.Backoff); err != nil {
				break
			}
		}
	}
	delivery.Error = lastErr.Error()
	return delivery
}

func (d *Dispatcher) rhBody(date string, agg Aggregation) string {
	var b strings.Builder
	b.WriteString("<p>Buen día,</p>")
	fmt.Fprintf(&b, "<p>Adjunto reporte de <b>faltantes</b> del %s (>= %s).</p>", date, FormatARS(d.minShortfall))
	fmt.Fprintf(&b, "<p>Total de faltantes: <b>%d</b></p>", len(agg.Shortfalls))
	fmt.Fprintf(&b, "<p>Saludos,<br>%s</p>", d.fromName)
	return b.String()
}

func (d *Dispatcher) adminBody(date string, paths []string) string {
	var b strings.Builder
	b.WriteString("<p>Buen día,</p>")
	fmt.Fprintf(&b, "<p>Adjunto reportes de depósitos del %s:</p><ul>", date)
	for _, path := range paths {
		fmt.Fprintf(&b, "<li><b>%s</b></li>", filepath.Base(path))
	}
	b.WriteString("</ul>")
	fmt.Fprintf(&b, "<p>Saludos,<br>%s</p>", d.fromName)
	return b.String()
}

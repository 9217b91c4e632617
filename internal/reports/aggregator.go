package reports

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/gonzalo-wi/reporteDiferencias/internal/deposits"
)

// DepositSource exposes the subset of the deposits client used by the
// aggregator.
type DepositSource interface {
	FetchDay(ctx context.Context, day time.Time) ([]deposits.Record, error)
}

// Aggregator normalises raw deposit records and computes per-entity totals.
type Aggregator struct {
	source       DepositSource
	minShortfall int64
	logger       *slog.Logger
}

// NewAggregator constructs an Aggregator. minShortfall is the MIN_FALTANTE
// threshold applied to each entity's range-summed difference.
func NewAggregator(source DepositSource, minShortfall int64, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{source: source, minShortfall: minShortfall, logger: logger}
}

// MinShortfall returns the configured threshold.
func (a *Aggregator) MinShortfall() int64 { return a.minShortfall }

// Aggregate fetches the inclusive date range and computes the aggregation.
func (a *Aggregator) Aggregate(ctx context.Context, desde, hasta time.Time) (Aggregation, error) {
	r := DateRange{Desde: desde, Hasta: hasta}
	records, err := a.FetchRange(ctx, r)
	if err != nil {
		return Aggregation{}, err
	}
	return a.Build(r, records), nil
}

// FetchRange retrieves raw records for every day of the range. Any day
// failing after the client's retries fails the whole fetch.
func (a *Aggregator) FetchRange(ctx context.Context, r DateRange) ([]deposits.Record, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	var all []deposits.Record
	for _, day := range r.Days() {
		records, err := a.source.FetchDay(ctx, day)
		if err != nil {
			return nil, err
		}
		all = append(all, records...)
	}
	return all, nil
}

// Build groups records by entity, sums expected and deposited amounts across
// the range and classifies shortfalls. The result is deterministic for
// identical input: entities are ordered by descending difference, ties broken
// by entity id.
func (a *Aggregator) Build(r DateRange, records []deposits.Record) Aggregation {
	byEntity := make(map[string]*EntityTotal)
	order := make([]string, 0)

	for _, rec := range records {
		id := rec.Reparto
		if id == "" {
			id = rec.UserName
		}
		entity, ok := byEntity[id]
		if !ok {
			entity = &EntityTotal{EntityID: id, EntityName: rec.UserName}
			byEntity[id] = entity
			order = append(order, id)
		}
		entity.Expected += rec.Expected
		entity.Deposited += rec.Deposited
		entity.Records = append(entity.Records, rec)
	}

	agg := Aggregation{Range: r, Entities: make([]EntityTotal, 0, len(order))}
	for _, id := range order {
		entity := byEntity[id]
		entity.Difference = entity.Expected - entity.Deposited
		agg.TotalExpected += entity.Expected
		agg.TotalDeposited += entity.Deposited
		agg.TotalDifference += entity.Difference
		agg.Entities = append(agg.Entities, *entity)
	}

	sort.SliceStable(agg.Entities, func(i, j int) bool {
		if agg.Entities[i].Difference != agg.Entities[j].Difference {
			return agg.Entities[i].Difference > agg.Entities[j].Difference
		}
		return agg.Entities[i].EntityID < agg.Entities[j].EntityID
	})

	for _, entity := range agg.Entities {
		if entity.Difference >= a.minShortfall {
			agg.Shortfalls = append(agg.Shortfalls, entity)
		}
	}

	a.logger.Debug("aggregation built",
		slog.Int("entities", len(agg.Entities)),
		slog.Int("shortfalls", len(agg.Shortfalls)),
		slog.Int64("total_difference", agg.TotalDifference))
	return agg
}

// Package intake is the single entry point for clinical records: it
// pseudonymizes the identity, minimizes the payload, and appends the result
// to the warehouse. Raw identity never travels past this package.
package intake

import (
	"context"
	"fmt"

	"github.com/diagnoml/platform/pkg/common/models"
	"github.com/diagnoml/platform/pkg/common/retry"
	"github.com/diagnoml/platform/pkg/dataset"
	"github.com/diagnoml/platform/pkg/monitoring"
	"github.com/diagnoml/platform/pkg/observability/metrics"
	"github.com/diagnoml/platform/pkg/pseudonym"
	"github.com/diagnoml/platform/pkg/warehouse"
)

type Cache interface {
	Materialize(ctx context.Context, rec models.MinimalRecord)
}

type Service struct {
	pseudonyms  *pseudonym.Service
	transformer *dataset.Transformer
	store       warehouse.Store
	cache       Cache
	emitter     monitoring.Emitter
	storeRetry  retry.Policy
}

func NewService(p *pseudonym.Service, t *dataset.Transformer, store warehouse.Store, cache Cache, emitter monitoring.Emitter, storeRetry retry.Policy) *Service {
	return &Service{
		pseudonyms:  p,
		transformer: t,
		store:       store,
		cache:       cache,
		emitter:     emitter,
		storeRetry:  storeRetry,
	}
}

// Accept runs the full intake path for one raw record. Validation and
// collision errors reject the record at this boundary; nothing partial is
// persisted.
func (s *Service) Accept(ctx context.Context, raw models.RawRecord) (models.MinimalRecord, error) {
	pid, err := s.pseudonyms.Pseudonymize(ctx, raw.Identity)
	if err != nil {
		if pseudonym.IsCollisionError(err) {
			metrics.RecordsRejected.WithLabelValues("collision").Inc()
		}
		return models.MinimalRecord{}, err
	}

	rec, err := s.transformer.Minimize(raw)
	if err != nil {
		metrics.RecordsRejected.WithLabelValues("validation").Inc()
		return models.MinimalRecord{}, err
	}
	rec.PID = pid

	if err := s.storeRetry.Do(ctx, func() error { return s.store.Append(ctx, rec) }); err != nil {
		return models.MinimalRecord{}, fmt.Errorf("persisting minimal record: %w", err)
	}

	if s.cache != nil {
		s.cache.Materialize(ctx, rec)
	}
	metrics.RecordsIngested.Inc()
	s.emitter.Emit(ctx, monitoring.EventRecordIngested, map[string]interface{}{
		"pid":          rec.PID,
		"data_version": rec.DataVersion,
	})

	return rec, nil
}

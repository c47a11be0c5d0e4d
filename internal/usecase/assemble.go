package usecase

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/jobpilot/orchestrator/internal/adapter/observability"
	"github.com/jobpilot/orchestrator/internal/domain"
)

// Kicker requests an out-of-band refill cycle.
type Kicker interface {
	Kick()
}

// ResponseService consumes CareerDocs outcomes: on success it assembles and
// persists applications and retires the batch; on failure it restores the
// batch for retry or marks it permanently failed.
type ResponseService struct {
	batches  domain.BatchRepository
	apps     domain.ApplicationRepository
	registry *CorrelationRegistry
	refill   Kicker
	validate *validator.Validate

	now func() time.Time
}

// NewResponseService constructs the outcome consumer service.
func NewResponseService(
	batches domain.BatchRepository,
	apps domain.ApplicationRepository,
	registry *CorrelationRegistry,
	refill Kicker,
) *ResponseService {
	return &ResponseService{
		batches:  batches,
		apps:     apps,
		registry: registry,
		refill:   refill,
		validate: validator.New(),
		now:      time.Now,
	}
}

// HandleOutcome processes one outcome message body. Malformed payloads
// return ErrSchemaInvalid so the consumer drops them; transient persistence
// failures return plain errors so the message is redelivered. A settled
// outcome frees queue headroom, so a refill kick is sent on every path that
// consumed the message.
func (s *ResponseService) HandleOutcome(ctx domain.Context, body []byte) error {
	var outcome domain.BatchOutcome
	if err := json.Unmarshal(body, &outcome); err != nil {
		return fmt.Errorf("op=response.decode: %w: %w", domain.ErrSchemaInvalid, err)
	}
	if err := s.validate.Struct(outcome); err != nil {
		return fmt.Errorf("op=response.validate: %w: %w", domain.ErrSchemaInvalid, err)
	}
	defer s.refill.Kick()

	if !outcome.Success {
		observability.OutcomesTotal.WithLabelValues("failure").Inc()
		return s.handleFailure(ctx, outcome.MongoID)
	}
	observability.OutcomesTotal.WithLabelValues("success").Inc()
	return s.handleSuccess(ctx, outcome)
}

func (s *ResponseService) handleFailure(ctx domain.Context, batchID string) error {
	restored, err := s.batches.Restore(ctx, batchID)
	if err != nil {
		return fmt.Errorf("op=response.failure batch=%s: %w", batchID, err)
	}
	if restored {
		observability.BatchesRestoredTotal.Inc()
		slog.Info("batch restored for retry", slog.String("batch_id", batchID))
		return nil
	}
	if err := s.batches.MarkFailed(ctx, batchID); err != nil {
		return fmt.Errorf("op=response.failure batch=%s: %w", batchID, err)
	}
	observability.BatchesFailedTotal.Inc()
	slog.Error("batch retries exhausted", slog.String("batch_id", batchID))
	return nil
}

func (s *ResponseService) handleSuccess(ctx domain.Context, outcome domain.BatchOutcome) error {
	entries := make(map[string]domain.AssembledApplication, len(outcome.Applications))
	for id, docs := range outcome.Applications {
		job, err := s.registry.Lookup(ctx, id)
		if err != nil {
			// Per-application skip: the rest of the batch still lands.
			observability.CorrelationMissingTotal.Inc()
			slog.Error("correlation lookup failed, skipping application",
				slog.String("correlation_id", id),
				slog.String("batch_id", outcome.MongoID),
				slog.Any("error", err))
			continue
		}
		entries[id] = domain.Assemble(job, docs, s.now().UTC())
	}

	if len(entries) > 0 {
		if err := s.apps.UpsertContent(ctx, outcome.UserID, entries); err != nil {
			return fmt.Errorf("op=response.success batch=%s: %w", outcome.MongoID, err)
		}
		observability.ApplicationsAssembledTotal.Add(float64(len(entries)))
	}

	if err := s.batches.Retire(ctx, outcome.MongoID); err != nil {
		return fmt.Errorf("op=response.success batch=%s: %w", outcome.MongoID, err)
	}
	observability.BatchesRetiredTotal.Inc()

	// Release only after the upsert is durable; a crash before this point
	// redelivers the outcome and the entries are still resolvable.
	for id := range entries {
		if err := s.registry.Release(ctx, id); err != nil {
			slog.Warn("correlation release failed",
				slog.String("correlation_id", id), slog.Any("error", err))
		}
	}
	slog.Info("batch assembled",
		slog.String("batch_id", outcome.MongoID),
		slog.Int64("user_id", outcome.UserID),
		slog.Int("applications", len(entries)))
	return nil
}

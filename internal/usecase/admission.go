package usecase

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jobpilot/orchestrator/internal/adapter/observability"
	"github.com/jobpilot/orchestrator/internal/domain"
)

// AdmissionService feeds pending batches into the CareerDocs request queue
// while keeping its depth at or below the inflight cap.
type AdmissionService struct {
	batches  domain.BatchRepository
	resumes  domain.ResumeRepository
	registry *CorrelationRegistry
	bus      domain.MessageBus

	queue       string
	maxInflight int
}

// NewAdmissionService constructs the admission controller.
func NewAdmissionService(
	batches domain.BatchRepository,
	resumes domain.ResumeRepository,
	registry *CorrelationRegistry,
	bus domain.MessageBus,
	queue string,
	maxInflight int,
) *AdmissionService {
	return &AdmissionService{
		batches:     batches,
		resumes:     resumes,
		registry:    registry,
		bus:         bus,
		queue:       queue,
		maxInflight: maxInflight,
	}
}

// Refill tops the request queue up to the inflight cap, claiming one batch
// at a time. It returns the number of batches published. The depth is probed
// once per cycle; each publish counts against the remaining headroom, so a
// cycle never overshoots the cap even when the probe is stale.
func (s *AdmissionService) Refill(ctx domain.Context) (int, error) {
	depth, err := s.bus.Depth(ctx, s.queue)
	if err != nil {
		return 0, fmt.Errorf("op=admission.refill: %w", err)
	}
	observability.CareerDocsQueueDepth.Set(float64(depth))

	published := 0
	for depth+published < s.maxInflight {
		batch, err := s.batches.ClaimOne(ctx)
		if err != nil {
			if errors.Is(err, domain.ErrNoPendingBatch) {
				break
			}
			return published, fmt.Errorf("op=admission.refill: %w", err)
		}
		observability.BatchesClaimedTotal.Inc()

		if err := s.publishBatch(ctx, batch); err != nil {
			s.failClaim(ctx, batch.ID)
			return published, fmt.Errorf("op=admission.refill batch=%s: %w", batch.ID, err)
		}
		published++
		observability.RefillPublishesTotal.Inc()
	}
	slog.Debug("refill cycle complete",
		slog.Int("depth", depth),
		slog.Int("published", published),
		slog.Int("max_inflight", s.maxInflight))
	return published, nil
}

// publishBatch annotates every job with a correlation entry and publishes
// the batch message. Jobs keep an id they already carry, so a restored batch
// republishes under the same correlation ids.
func (s *AdmissionService) publishBatch(ctx domain.Context, batch domain.PendingBatch) error {
	jobs := make([]domain.Job, len(batch.Jobs))
	mintedIDs := make([]string, 0, len(batch.Jobs))
	anyMinted := false
	for i, job := range batch.Jobs {
		if job.Style == "" {
			job.Style = batch.Style
		}
		annotated, minted, err := s.registry.Ensure(ctx, job)
		if err != nil {
			return fmt.Errorf("annotate job %d: %w", i, err)
		}
		jobs[i] = annotated
		if minted {
			anyMinted = true
			mintedIDs = append(mintedIDs, annotated.CorrelationID)
		}
	}

	if anyMinted {
		if err := s.batches.AnnotateJobs(ctx, batch.ID, jobs); err != nil {
			return fmt.Errorf("persist annotations: %w", err)
		}
		if batch.CVID != "" {
			// Best-effort cross-reference; the resume document may be gone.
			if err := s.resumes.AppendAppIDs(ctx, batch.CVID, mintedIDs); err != nil {
				slog.Warn("resume app_ids append failed",
					slog.String("cv_id", batch.CVID), slog.Any("error", err))
			}
		}
	}

	msg := domain.BatchMessage{UserID: batch.UserID, MongoID: batch.ID, Jobs: jobs}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode batch message: %w", err)
	}
	if err := s.bus.Publish(ctx, s.queue, body, true); err != nil {
		return fmt.Errorf("publish batch message: %w", err)
	}
	return nil
}

// failClaim undoes a claim whose publish failed: restore when retries
// remain, otherwise mark the batch permanently failed.
func (s *AdmissionService) failClaim(ctx domain.Context, id string) {
	restored, err := s.batches.Restore(ctx, id)
	if err != nil {
		slog.Error("restore after publish failure",
			slog.String("batch_id", id), slog.Any("error", err))
		return
	}
	if restored {
		observability.BatchesRestoredTotal.Inc()
		return
	}
	if err := s.batches.MarkFailed(ctx, id); err != nil {
		slog.Error("mark failed after publish failure",
			slog.String("batch_id", id), slog.Any("error", err))
		return
	}
	observability.BatchesFailedTotal.Inc()
	slog.Error("batch retries exhausted", slog.String("batch_id", id))
}

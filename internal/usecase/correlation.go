// Package usecase contains the orchestration services: admission of pending
// batches into CareerDocs, assembly of its outcomes, the refill loop, and
// dispatch of approved applications to applier queues.
package usecase

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/jobpilot/orchestrator/internal/domain"
)

// mintAttempts bounds the id-collision retry loop. UUIDv4 collisions are
// theoretical; the bound keeps a misbehaving store from spinning forever.
const mintAttempts = 5

// CorrelationRegistry manages the correlation-id → job-snapshot entries that
// let an asynchronous CareerDocs outcome be matched back to its originating
// job. Entries have no TTL and are released only on terminal outcomes.
type CorrelationRegistry struct {
	store domain.CorrelationStore
}

// NewCorrelationRegistry constructs a registry over the given store.
func NewCorrelationRegistry(store domain.CorrelationStore) *CorrelationRegistry {
	return &CorrelationRegistry{store: store}
}

// Mint assigns a fresh correlation id to the job and stores its snapshot.
// The returned job carries the id, so it round-trips through CareerDocs.
func (r *CorrelationRegistry) Mint(ctx domain.Context, job domain.Job) (domain.Job, error) {
	var id string
	for attempt := 0; ; attempt++ {
		if attempt == mintAttempts {
			return domain.Job{}, fmt.Errorf("op=correlation.mint: id space exhausted after %d attempts: %w", mintAttempts, domain.ErrInternal)
		}
		id = uuid.NewString()
		exists, err := r.store.Exists(ctx, id)
		if err != nil {
			return domain.Job{}, fmt.Errorf("op=correlation.mint: %w", err)
		}
		if !exists {
			break
		}
	}
	job.CorrelationID = id
	if err := r.snapshot(ctx, job); err != nil {
		return domain.Job{}, err
	}
	return job, nil
}

// Ensure makes the job's correlation entry present: jobs without an id get
// one minted, jobs that already carry an id (a restored batch) get their
// snapshot re-written if the store lost it. The reported bool is true when a
// new id was minted.
func (r *CorrelationRegistry) Ensure(ctx domain.Context, job domain.Job) (domain.Job, bool, error) {
	if job.CorrelationID == "" {
		minted, err := r.Mint(ctx, job)
		if err != nil {
			return domain.Job{}, false, err
		}
		return minted, true, nil
	}
	exists, err := r.store.Exists(ctx, job.CorrelationID)
	if err != nil {
		return domain.Job{}, false, fmt.Errorf("op=correlation.ensure: %w", err)
	}
	if !exists {
		slog.Warn("correlation snapshot missing, rewriting",
			slog.String("correlation_id", job.CorrelationID))
		if err := r.snapshot(ctx, job); err != nil {
			return domain.Job{}, false, err
		}
	}
	return job, false, nil
}

// Lookup resolves a correlation id back to its job snapshot. A missing or
// unreadable entry maps to ErrCorrelationMissing.
func (r *CorrelationRegistry) Lookup(ctx domain.Context, id string) (domain.Job, error) {
	raw, err := r.store.Get(ctx, id)
	if err != nil {
		return domain.Job{}, fmt.Errorf("op=correlation.lookup id=%s: %w: %w", id, domain.ErrCorrelationMissing, err)
	}
	var job domain.Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return domain.Job{}, fmt.Errorf("op=correlation.lookup id=%s decode: %w: %w", id, domain.ErrCorrelationMissing, err)
	}
	return job, nil
}

// Release removes the entry after its application is durably assembled.
// Releasing an already-released id is a no-op.
func (r *CorrelationRegistry) Release(ctx domain.Context, id string) error {
	if err := r.store.Del(ctx, id); err != nil {
		return fmt.Errorf("op=correlation.release id=%s: %w", id, err)
	}
	return nil
}

func (r *CorrelationRegistry) snapshot(ctx domain.Context, job domain.Job) error {
	b, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("op=correlation.snapshot: %w", err)
	}
	if err := r.store.Set(ctx, job.CorrelationID, string(b)); err != nil {
		return fmt.Errorf("op=correlation.snapshot: %w", err)
	}
	return nil
}

package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"

	"github.com/jobpilot/orchestrator/internal/domain"
)

// PgxPool is a minimal subset of pgxpool used by the repos for easy testing.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// BatchRepo persists the pending_batches work queue.
type BatchRepo struct{ Pool PgxPool }

// NewBatchRepo constructs a BatchRepo with the given pool.
func NewBatchRepo(p PgxPool) *BatchRepo { return &BatchRepo{Pool: p} }

// ClaimOne atomically claims the next unsent batch. SKIP LOCKED guarantees
// that two concurrent claimers never observe the same row as claimable; the
// GREATEST floor keeps retries_left non-negative when the final attempt is
// claimed.
func (r *BatchRepo) ClaimOne(ctx domain.Context) (domain.PendingBatch, error) {
	tracer := otel.Tracer("repo.batches")
	ctx, span := tracer.Start(ctx, "batches.ClaimOne")
	defer span.End()
	q := `UPDATE pending_batches
	SET sent = TRUE, retries_left = GREATEST(retries_left - 1, 0)
	WHERE id = (
		SELECT id FROM pending_batches
		WHERE sent = FALSE AND status IS NULL
		ORDER BY created_at
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	)
	RETURNING id, user_id, jobs, cv_id, style, sent, retries_left, created_at`
	row := r.Pool.QueryRow(ctx, q)
	b, err := scanBatch(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.PendingBatch{}, fmt.Errorf("op=batch.claim_one: %w", domain.ErrNoPendingBatch)
		}
		return domain.PendingBatch{}, fmt.Errorf("op=batch.claim_one: %w", err)
	}
	return b, nil
}

// AnnotateJobs writes back the correlation-id-annotated job list so a later
// restore republishes with the same ids.
func (r *BatchRepo) AnnotateJobs(ctx domain.Context, id string, jobs []domain.Job) error {
	tracer := otel.Tracer("repo.batches")
	ctx, span := tracer.Start(ctx, "batches.AnnotateJobs")
	defer span.End()
	b, err := json.Marshal(jobs)
	if err != nil {
		return fmt.Errorf("op=batch.annotate_jobs: %w", err)
	}
	q := `UPDATE pending_batches SET jobs = $2 WHERE id = $1`
	if _, err := r.Pool.Exec(ctx, q, id, b); err != nil {
		return fmt.Errorf("op=batch.annotate_jobs: %w", err)
	}
	return nil
}

// Restore flips sent=false when retries remain. Reports whether a row
// transitioned; no match means the retry budget is spent (or the batch is
// already terminal).
func (r *BatchRepo) Restore(ctx domain.Context, id string) (bool, error) {
	tracer := otel.Tracer("repo.batches")
	ctx, span := tracer.Start(ctx, "batches.Restore")
	defer span.End()
	q := `UPDATE pending_batches SET sent = FALSE
	WHERE id = $1 AND retries_left > 0 AND status IS NULL`
	tag, err := r.Pool.Exec(ctx, q, id)
	if err != nil {
		return false, fmt.Errorf("op=batch.restore: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkFailed records the terminal failure state. Correlation entries of the
// batch are deliberately not touched here; they stay in the correlation
// store for manual recovery.
func (r *BatchRepo) MarkFailed(ctx domain.Context, id string) error {
	tracer := otel.Tracer("repo.batches")
	ctx, span := tracer.Start(ctx, "batches.MarkFailed")
	defer span.End()
	q := `UPDATE pending_batches SET status = $2, failed_at = $3 WHERE id = $1`
	if _, err := r.Pool.Exec(ctx, q, id, domain.BatchStatusFailed, time.Now().UTC()); err != nil {
		return fmt.Errorf("op=batch.mark_failed: %w", err)
	}
	return nil
}

// Retire deletes a completed batch. Deleting an already-retired batch is a
// no-op, which makes duplicate outcome deliveries harmless.
func (r *BatchRepo) Retire(ctx domain.Context, id string) error {
	tracer := otel.Tracer("repo.batches")
	ctx, span := tracer.Start(ctx, "batches.Retire")
	defer span.End()
	q := `DELETE FROM pending_batches WHERE id = $1`
	if _, err := r.Pool.Exec(ctx, q, id); err != nil {
		return fmt.Errorf("op=batch.retire: %w", err)
	}
	return nil
}

// Insert stores a new pending batch. This is the intake/seed path; the
// orchestrator itself never creates batches.
func (r *BatchRepo) Insert(ctx domain.Context, b domain.PendingBatch) error {
	tracer := otel.Tracer("repo.batches")
	ctx, span := tracer.Start(ctx, "batches.Insert")
	defer span.End()
	jobs, err := json.Marshal(b.Jobs)
	if err != nil {
		return fmt.Errorf("op=batch.insert: %w", err)
	}
	createdAt := b.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	q := `INSERT INTO pending_batches (id, user_id, jobs, cv_id, style, sent, retries_left, created_at)
	VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7, $8)`
	if _, err := r.Pool.Exec(ctx, q, b.ID, b.UserID, jobs, b.CVID, b.Style, b.Sent, b.RetriesLeft, createdAt); err != nil {
		return fmt.Errorf("op=batch.insert: %w", err)
	}
	return nil
}

func scanBatch(row pgx.Row) (domain.PendingBatch, error) {
	var (
		b        domain.PendingBatch
		jobsJSON []byte
		cvID     *string
		style    *string
	)
	if err := row.Scan(&b.ID, &b.UserID, &jobsJSON, &cvID, &style, &b.Sent, &b.RetriesLeft, &b.CreatedAt); err != nil {
		return domain.PendingBatch{}, err
	}
	if err := json.Unmarshal(jobsJSON, &b.Jobs); err != nil {
		return domain.PendingBatch{}, fmt.Errorf("jobs decode: %w", err)
	}
	if cvID != nil {
		b.CVID = *cvID
	}
	if style != nil {
		b.Style = *style
	}
	return b, nil
}

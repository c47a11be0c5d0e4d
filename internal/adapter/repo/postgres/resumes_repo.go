package postgres

import (
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel"

	"github.com/jobpilot/orchestrator/internal/domain"
)

// ResumeRepo maintains the pdf_resumes cross-reference. The app_ids list is
// an auxiliary index, not source of truth; callers treat failures as
// best-effort.
type ResumeRepo struct{ Pool PgxPool }

// NewResumeRepo constructs a ResumeRepo with the given pool.
func NewResumeRepo(p PgxPool) *ResumeRepo { return &ResumeRepo{Pool: p} }

// AppendAppIDs appends correlation ids to the resume's app_ids list.
// Returns ErrNotFound when no resume document matches.
func (r *ResumeRepo) AppendAppIDs(ctx domain.Context, cvID string, ids []string) error {
	tracer := otel.Tracer("repo.resumes")
	ctx, span := tracer.Start(ctx, "resumes.AppendAppIDs")
	defer span.End()
	if len(ids) == 0 {
		return nil
	}
	b, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("op=resume.append_app_ids: %w", err)
	}
	q := `UPDATE pdf_resumes SET app_ids = app_ids || $2::jsonb WHERE id = $1`
	tag, err := r.Pool.Exec(ctx, q, cvID, b)
	if err != nil {
		return fmt.Errorf("op=resume.append_app_ids: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=resume.append_app_ids cv_id=%s: %w", cvID, domain.ErrNotFound)
	}
	return nil
}

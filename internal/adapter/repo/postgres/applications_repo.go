package postgres

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/jobpilot/orchestrator/internal/domain"
)

// ApplicationRepo persists the per-user assembled_applications documents.
// Content mutations merge or set individual keys; the document is never
// replaced wholesale, so concurrent writers to distinct ids commute.
type ApplicationRepo struct{ Pool PgxPool }

// NewApplicationRepo constructs an ApplicationRepo with the given pool.
func NewApplicationRepo(p PgxPool) *ApplicationRepo { return &ApplicationRepo{Pool: p} }

// UpsertContent merges the given entries into the user's content map,
// creating the document on first write. The top-level `||` merge updates
// exactly the supplied keys.
func (r *ApplicationRepo) UpsertContent(ctx domain.Context, userID int64, entries map[string]domain.AssembledApplication) error {
	tracer := otel.Tracer("repo.applications")
	ctx, span := tracer.Start(ctx, "applications.UpsertContent")
	defer span.End()
	if len(entries) == 0 {
		return nil
	}
	content, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("op=application.upsert: %w", err)
	}
	q := `INSERT INTO assembled_applications (user_id, content) VALUES ($1, $2)
	ON CONFLICT (user_id) DO UPDATE SET content = assembled_applications.content || EXCLUDED.content`
	if _, err := r.Pool.Exec(ctx, q, userID, content); err != nil {
		return fmt.Errorf("op=application.upsert: %w", err)
	}
	return nil
}

// Get loads the user's full document.
func (r *ApplicationRepo) Get(ctx domain.Context, userID int64) (domain.UserApplications, error) {
	tracer := otel.Tracer("repo.applications")
	ctx, span := tracer.Start(ctx, "applications.Get")
	defer span.End()
	q := `SELECT user_id, content FROM assembled_applications WHERE user_id = $1`
	row := r.Pool.QueryRow(ctx, q, userID)
	var (
		doc         domain.UserApplications
		contentJSON []byte
	)
	if err := row.Scan(&doc.UserID, &contentJSON); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.UserApplications{}, fmt.Errorf("op=application.get: %w", domain.ErrNotFound)
		}
		return domain.UserApplications{}, fmt.Errorf("op=application.get: %w", err)
	}
	if err := json.Unmarshal(contentJSON, &doc.Content); err != nil {
		return domain.UserApplications{}, fmt.Errorf("op=application.get decode: %w", err)
	}
	return doc, nil
}

// MarkSent flips content[id].sent and stamps the dispatch time. The guard on
// the key's existence keeps the update a per-key operation.
func (r *ApplicationRepo) MarkSent(ctx domain.Context, userID int64, id string, at time.Time) error {
	tracer := otel.Tracer("repo.applications")
	ctx, span := tracer.Start(ctx, "applications.MarkSent")
	defer span.End()
	ts, err := json.Marshal(at.UTC())
	if err != nil {
		return fmt.Errorf("op=application.mark_sent: %w", err)
	}
	q := `UPDATE assembled_applications
	SET content = jsonb_set(jsonb_set(content, ARRAY[$2, 'sent'], 'true'::jsonb), ARRAY[$2, 'timestamp'], $3::jsonb)
	WHERE user_id = $1 AND content ? $2`
	tag, err := r.Pool.Exec(ctx, q, userID, id, ts)
	if err != nil {
		return fmt.Errorf("op=application.mark_sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=application.mark_sent id=%s: %w", id, domain.ErrNotFound)
	}
	return nil
}

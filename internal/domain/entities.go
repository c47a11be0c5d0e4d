// Package domain holds the core entities, ports, and error taxonomy of the
// application pipeline orchestrator.
package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrNotFound           = errors.New("not found")
	ErrNoPendingBatch     = errors.New("no pending batch")
	ErrCorrelationMissing = errors.New("correlation missing")
	ErrSchemaInvalid      = errors.New("schema invalid")
	ErrRoutingDisabled    = errors.New("routing disabled")
	ErrInternal           = errors.New("internal error")
)

// BatchStatusFailed marks a batch whose retry budget is exhausted. Failed
// batches are never claimable again; their correlation entries are kept for
// manual recovery.
const BatchStatusFailed = "failed"

// Job is one position a user wants to apply to. Known fields are typed;
// anything else the intake attached travels in Extra so it survives the
// round trip through the correlation store and back into the assembled
// application.
type Job struct {
	Portal        string
	Title         string
	Description   string
	ApplyLink     string
	CompanyName   string
	Location      string
	CorrelationID string
	Style         string
	Extra         map[string]json.RawMessage
}

// jobFields are the JSON keys lifted into typed Job fields.
var jobFields = [...]string{
	"portal", "title", "description", "apply_link",
	"company_name", "location", "correlation_id", "style",
}

func (j Job) jsonMap() (map[string]json.RawMessage, error) {
	m := make(map[string]json.RawMessage, len(j.Extra)+len(jobFields))
	for k, v := range j.Extra {
		m[k] = v
	}
	put := func(key, val string) error {
		if val == "" {
			return nil
		}
		b, err := json.Marshal(val)
		if err != nil {
			return err
		}
		m[key] = b
		return nil
	}
	for key, val := range map[string]string{
		"portal":         j.Portal,
		"title":          j.Title,
		"description":    j.Description,
		"apply_link":     j.ApplyLink,
		"company_name":   j.CompanyName,
		"location":       j.Location,
		"correlation_id": j.CorrelationID,
		"style":          j.Style,
	} {
		if err := put(key, val); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// MarshalJSON flattens typed fields and Extra into a single object. Empty
// typed fields are omitted, matching the intake's sparse documents.
func (j Job) MarshalJSON() ([]byte, error) {
	m, err := j.jsonMap()
	if err != nil {
		return nil, fmt.Errorf("op=job.marshal: %w", err)
	}
	return json.Marshal(m)
}

// UnmarshalJSON lifts known keys into typed fields and keeps the rest in
// Extra untouched.
func (j *Job) UnmarshalJSON(data []byte) error {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("op=job.unmarshal: %w", err)
	}
	lift := func(key string, dst *string) error {
		raw, ok := m[key]
		if !ok {
			return nil
		}
		delete(m, key)
		// Tolerate null for optional fields.
		if string(raw) == "null" {
			return nil
		}
		return json.Unmarshal(raw, dst)
	}
	for _, key := range jobFields {
		var dst *string
		switch key {
		case "portal":
			dst = &j.Portal
		case "title":
			dst = &j.Title
		case "description":
			dst = &j.Description
		case "apply_link":
			dst = &j.ApplyLink
		case "company_name":
			dst = &j.CompanyName
		case "location":
			dst = &j.Location
		case "correlation_id":
			dst = &j.CorrelationID
		case "style":
			dst = &j.Style
		}
		if err := lift(key, dst); err != nil {
			return fmt.Errorf("op=job.unmarshal key=%s: %w", key, err)
		}
	}
	if len(m) > 0 {
		j.Extra = m
	} else {
		j.Extra = nil
	}
	return nil
}

// PendingBatch is one unit of CareerDocs work for one user. It is created by
// the upstream intake, claimed by the admission controller, and retired or
// restored by the response consumer.
type PendingBatch struct {
	ID          string
	UserID      int64
	Jobs        []Job
	CVID        string
	Style       string
	Sent        bool
	RetriesLeft int
	Status      string
	FailedAt    *time.Time
	CreatedAt   time.Time
}

// GeneratedDocs is the per-application artifact pair CareerDocs produces.
type GeneratedDocs struct {
	ResumeOptimized json.RawMessage `json:"resume_optimized"`
	CoverLetter     json.RawMessage `json:"cover_letter"`
}

// AssembledApplication merges the original job snapshot with the generated
// artifacts. It is the unit a user reviews and approves for dispatch.
type AssembledApplication struct {
	Job             Job
	ResumeOptimized json.RawMessage
	CoverLetter     json.RawMessage
	Sent            bool
	GenCV           bool
	Timestamp       time.Time
}

// MarshalJSON inlines the job snapshot fields with the artifact fields, the
// document shape user-facing reads and the applier queues expect.
func (a AssembledApplication) MarshalJSON() ([]byte, error) {
	m, err := a.Job.jsonMap()
	if err != nil {
		return nil, fmt.Errorf("op=application.marshal: %w", err)
	}
	if len(a.ResumeOptimized) > 0 {
		m["resume_optimized"] = a.ResumeOptimized
	}
	if len(a.CoverLetter) > 0 {
		m["cover_letter"] = a.CoverLetter
	}
	sent, _ := json.Marshal(a.Sent)
	m["sent"] = sent
	genCV, _ := json.Marshal(a.GenCV)
	m["gen_cv"] = genCV
	if !a.Timestamp.IsZero() {
		ts, err := json.Marshal(a.Timestamp.UTC())
		if err != nil {
			return nil, fmt.Errorf("op=application.marshal: %w", err)
		}
		m["timestamp"] = ts
	}
	return json.Marshal(m)
}

// UnmarshalJSON splits artifact fields off and delegates the remainder to
// the job snapshot.
func (a *AssembledApplication) UnmarshalJSON(data []byte) error {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("op=application.unmarshal: %w", err)
	}
	take := func(key string, dst any) error {
		raw, ok := m[key]
		if !ok {
			return nil
		}
		delete(m, key)
		if string(raw) == "null" {
			return nil
		}
		return json.Unmarshal(raw, dst)
	}
	if raw, ok := m["resume_optimized"]; ok {
		a.ResumeOptimized = raw
		delete(m, "resume_optimized")
	}
	if raw, ok := m["cover_letter"]; ok {
		a.CoverLetter = raw
		delete(m, "cover_letter")
	}
	if err := take("sent", &a.Sent); err != nil {
		return fmt.Errorf("op=application.unmarshal key=sent: %w", err)
	}
	if err := take("gen_cv", &a.GenCV); err != nil {
		return fmt.Errorf("op=application.unmarshal key=gen_cv: %w", err)
	}
	if err := take("timestamp", &a.Timestamp); err != nil {
		return fmt.Errorf("op=application.unmarshal key=timestamp: %w", err)
	}
	rest, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("op=application.unmarshal: %w", err)
	}
	return a.Job.UnmarshalJSON(rest)
}

// Assemble composes an application from its correlation snapshot and the
// generated artifacts. A gen_cv flag carried in the snapshot's extra fields
// is lifted into the typed field.
func Assemble(job Job, docs GeneratedDocs, at time.Time) AssembledApplication {
	app := AssembledApplication{
		Job:             job,
		ResumeOptimized: docs.ResumeOptimized,
		CoverLetter:     docs.CoverLetter,
		Sent:            false,
		Timestamp:       at,
	}
	if raw, ok := job.Extra["gen_cv"]; ok {
		var genCV bool
		if err := json.Unmarshal(raw, &genCV); err == nil {
			app.GenCV = genCV
			extra := make(map[string]json.RawMessage, len(job.Extra)-1)
			for k, v := range job.Extra {
				if k != "gen_cv" {
					extra[k] = v
				}
			}
			if len(extra) == 0 {
				extra = nil
			}
			app.Job.Extra = extra
		}
	}
	return app
}

// UserApplications is the per-user document of assembled applications,
// keyed by correlation id.
type UserApplications struct {
	UserID  int64
	Content map[string]AssembledApplication
}

// Wire messages.

// BatchMessage is published to the CareerDocs request queue. MongoID carries
// the batch id; the legacy field name is kept for CareerDocs compatibility.
type BatchMessage struct {
	UserID  int64  `json:"user_id"`
	MongoID string `json:"mongo_id"`
	Jobs    []Job  `json:"jobs"`
}

// BatchOutcome is the CareerDocs response for one batch. On Success the
// Applications map carries the generated artifacts keyed by correlation id.
type BatchOutcome struct {
	Success      bool                     `json:"success"`
	UserID       int64                    `json:"user_id" validate:"required"`
	MongoID      string                   `json:"mongo_id" validate:"required"`
	Applications map[string]GeneratedDocs `json:"applications,omitempty"`
}

// DispatchMessage carries exactly one approved application to an applier
// queue. One application per message so a slow applier never blocks others.
type DispatchMessage struct {
	UserID  int64                           `json:"user_id"`
	Content map[string]AssembledApplication `json:"content"`
}

// Ports.

// BatchRepository owns the pending_batches work queue. All mutations are
// conditional updates keyed by id and the state being transitioned from.
type BatchRepository interface {
	// ClaimOne atomically claims the next unsent batch: sets sent=true and
	// decrements retries_left (floored at zero). Returns ErrNoPendingBatch
	// when nothing is claimable. Concurrent callers never observe the same
	// batch as claimable.
	ClaimOne(ctx Context) (PendingBatch, error)
	// AnnotateJobs persists correlation-id annotations so a restored batch
	// republishes with the same ids.
	AnnotateJobs(ctx Context, id string, jobs []Job) error
	// Restore flips sent=false where retries remain; reports whether a row
	// transitioned.
	Restore(ctx Context, id string) (bool, error)
	// MarkFailed records the terminal failure state.
	MarkFailed(ctx Context, id string) error
	// Retire deletes a completed batch; deleting an absent batch is a no-op.
	Retire(ctx Context, id string) error
	// Insert stores a new pending batch. Used by the intake/seed path only.
	Insert(ctx Context, b PendingBatch) error
}

// ApplicationRepository owns the per-user assembled_applications documents.
// Implementations must update individual content keys, never replace the
// whole document.
type ApplicationRepository interface {
	UpsertContent(ctx Context, userID int64, entries map[string]AssembledApplication) error
	Get(ctx Context, userID int64) (UserApplications, error)
	// MarkSent flips content[id].sent to true and stamps the dispatch time.
	MarkSent(ctx Context, userID int64, id string, at time.Time) error
}

// ResumeRepository maintains the best-effort pdf_resumes cross-reference.
type ResumeRepository interface {
	AppendAppIDs(ctx Context, cvID string, ids []string) error
}

// CorrelationStore is the ephemeral correlation-id → job-snapshot store.
// Entries have no TTL; they are released explicitly on terminal outcomes.
type CorrelationStore interface {
	Get(ctx Context, key string) (string, error)
	Set(ctx Context, key, value string) error
	Del(ctx Context, key string) error
	Exists(ctx Context, key string) (bool, error)
}

// MessageBus is the durable queue transport: at-least-once, per-queue
// ordering, observable depth.
type MessageBus interface {
	Publish(ctx Context, queue string, body []byte, persistent bool) error
	Depth(ctx Context, queue string) (int, error)
}

// Context aliases context.Context so ports read uniformly; adapters and
// usecases pass the standard context through.
type Context = context.Context

package usecase_test

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jobpilot/orchestrator/internal/domain"
)

// fakeBatchRepo is an in-memory BatchRepository with the same transition
// semantics as the SQL implementation.
type fakeBatchRepo struct {
	mu      sync.Mutex
	batches map[string]*domain.PendingBatch
}

func newFakeBatchRepo(batches ...domain.PendingBatch) *fakeBatchRepo {
	r := &fakeBatchRepo{batches: make(map[string]*domain.PendingBatch)}
	for i := range batches {
		b := batches[i]
		r.batches[b.ID] = &b
	}
	return r
}

func (r *fakeBatchRepo) ClaimOne(_ domain.Context) (domain.PendingBatch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for id, b := range r.batches {
		if !b.Sent && b.Status == "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return domain.PendingBatch{}, domain.ErrNoPendingBatch
	}
	sort.Slice(ids, func(i, j int) bool {
		bi, bj := r.batches[ids[i]], r.batches[ids[j]]
		if bi.CreatedAt.Equal(bj.CreatedAt) {
			return bi.ID < bj.ID
		}
		return bi.CreatedAt.Before(bj.CreatedAt)
	})
	b := r.batches[ids[0]]
	b.Sent = true
	if b.RetriesLeft > 0 {
		b.RetriesLeft--
	}
	return *b, nil
}

func (r *fakeBatchRepo) AnnotateJobs(_ domain.Context, id string, jobs []domain.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.batches[id]
	if !ok {
		return domain.ErrNotFound
	}
	b.Jobs = jobs
	return nil
}

func (r *fakeBatchRepo) Restore(_ domain.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.batches[id]
	if !ok || b.RetriesLeft <= 0 || b.Status != "" {
		return false, nil
	}
	b.Sent = false
	return true, nil
}

func (r *fakeBatchRepo) MarkFailed(_ domain.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.batches[id]
	if !ok {
		return domain.ErrNotFound
	}
	now := time.Now().UTC()
	b.Status = domain.BatchStatusFailed
	b.FailedAt = &now
	return nil
}

func (r *fakeBatchRepo) Retire(_ domain.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.batches, id)
	return nil
}

func (r *fakeBatchRepo) Insert(_ domain.Context, b domain.PendingBatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches[b.ID] = &b
	return nil
}

func (r *fakeBatchRepo) get(id string) (domain.PendingBatch, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.batches[id]
	if !ok {
		return domain.PendingBatch{}, false
	}
	return *b, true
}

// memStore is an in-memory CorrelationStore.
type memStore struct {
	mu   sync.Mutex
	data map[string]string

	getErr error
}

func newMemStore() *memStore { return &memStore{data: make(map[string]string)} }

func (s *memStore) Get(_ domain.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return "", s.getErr
	}
	v, ok := s.data[key]
	if !ok {
		return "", fmt.Errorf("key %s: %w", key, domain.ErrNotFound)
	}
	return v, nil
}

func (s *memStore) Set(_ domain.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

func (s *memStore) Del(_ domain.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *memStore) Exists(_ domain.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.data[key]
	return ok, nil
}

func (s *memStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

// fakeBus records publishes and tracks per-queue depth.
type publication struct {
	queue      string
	body       []byte
	persistent bool
}

type fakeBus struct {
	mu        sync.Mutex
	published []publication
	depths    map[string]int

	publishErr error
}

func newFakeBus() *fakeBus { return &fakeBus{depths: make(map[string]int)} }

func (b *fakeBus) Publish(_ domain.Context, queue string, body []byte, persistent bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.publishErr != nil {
		return b.publishErr
	}
	b.published = append(b.published, publication{queue: queue, body: body, persistent: persistent})
	b.depths[queue]++
	return nil
}

func (b *fakeBus) Depth(_ domain.Context, queue string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.depths[queue], nil
}

func (b *fakeBus) toQueue(queue string) []publication {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []publication
	for _, p := range b.published {
		if p.queue == queue {
			out = append(out, p)
		}
	}
	return out
}

// fakeAppRepo is an in-memory ApplicationRepository with per-key merge
// semantics.
type fakeAppRepo struct {
	mu   sync.Mutex
	docs map[int64]map[string]domain.AssembledApplication

	upsertErr error
}

func newFakeAppRepo() *fakeAppRepo {
	return &fakeAppRepo{docs: make(map[int64]map[string]domain.AssembledApplication)}
}

func (r *fakeAppRepo) UpsertContent(_ domain.Context, userID int64, entries map[string]domain.AssembledApplication) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.upsertErr != nil {
		return r.upsertErr
	}
	if len(entries) == 0 {
		return nil
	}
	doc, ok := r.docs[userID]
	if !ok {
		doc = make(map[string]domain.AssembledApplication)
		r.docs[userID] = doc
	}
	for id, app := range entries {
		doc[id] = app
	}
	return nil
}

func (r *fakeAppRepo) Get(_ domain.Context, userID int64) (domain.UserApplications, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[userID]
	if !ok {
		return domain.UserApplications{}, fmt.Errorf("user %d: %w", userID, domain.ErrNotFound)
	}
	content := make(map[string]domain.AssembledApplication, len(doc))
	for id, app := range doc {
		content[id] = app
	}
	return domain.UserApplications{UserID: userID, Content: content}, nil
}

func (r *fakeAppRepo) MarkSent(_ domain.Context, userID int64, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[userID]
	if !ok {
		return domain.ErrNotFound
	}
	app, ok := doc[id]
	if !ok {
		return domain.ErrNotFound
	}
	app.Sent = true
	app.Timestamp = at
	doc[id] = app
	return nil
}

// fakeResumeRepo records app-id appends.
type fakeResumeRepo struct {
	mu      sync.Mutex
	appends map[string][]string

	err error
}

func newFakeResumeRepo() *fakeResumeRepo {
	return &fakeResumeRepo{appends: make(map[string][]string)}
}

func (r *fakeResumeRepo) AppendAppIDs(_ domain.Context, cvID string, ids []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.appends[cvID] = append(r.appends[cvID], ids...)
	return nil
}

// fakeKicker counts refill kicks.
type fakeKicker struct {
	mu    sync.Mutex
	kicks int
}

func (k *fakeKicker) Kick() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.kicks++
}

func (k *fakeKicker) count() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.kicks
}

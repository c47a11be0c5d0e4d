package usecase

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/jobpilot/orchestrator/internal/adapter/observability"
	"github.com/jobpilot/orchestrator/internal/domain"
)

// PortalRouter maps a job portal to its applier queue. Portals in the
// provider set go to the API-driven applier; everything else falls through
// to the browser-automation applier.
type PortalRouter struct {
	ProviderPortals map[string]struct{}
	ProvidersQueue  string
	SkyvernQueue    string

	ProvidersEnabled bool
	SkyvernEnabled   bool
}

// Route returns the target queue for the portal. When the target applier is
// disabled the queue name is still returned alongside ErrRoutingDisabled so
// callers can attribute the drop.
func (r PortalRouter) Route(portal string) (string, error) {
	key := strings.ToLower(strings.TrimSpace(portal))
	if _, ok := r.ProviderPortals[key]; ok {
		if !r.ProvidersEnabled {
			return r.ProvidersQueue, fmt.Errorf("op=router.route portal=%s: %w", key, domain.ErrRoutingDisabled)
		}
		return r.ProvidersQueue, nil
	}
	if !r.SkyvernEnabled {
		return r.SkyvernQueue, fmt.Errorf("op=router.route portal=%s: %w", key, domain.ErrRoutingDisabled)
	}
	return r.SkyvernQueue, nil
}

// DispatchResult summarizes one dispatch run.
type DispatchResult struct {
	Submitted    int
	Dropped      int
	SubmittedIDs []string
}

// DispatchService publishes approved applications to their applier queues,
// one message per application, and marks each sent as it goes out.
type DispatchService struct {
	apps   domain.ApplicationRepository
	bus    domain.MessageBus
	router PortalRouter

	now func() time.Time
}

// NewDispatchService constructs the dispatcher.
func NewDispatchService(apps domain.ApplicationRepository, bus domain.MessageBus, router PortalRouter) *DispatchService {
	return &DispatchService{apps: apps, bus: bus, router: router, now: time.Now}
}

// SubmitAll dispatches every unsent application of the user. Returns
// ErrNotFound when the user has no document or nothing is pending.
func (s *DispatchService) SubmitAll(ctx domain.Context, userID int64) (DispatchResult, error) {
	doc, err := s.apps.Get(ctx, userID)
	if err != nil {
		return DispatchResult{}, fmt.Errorf("op=dispatch.submit_all: %w", err)
	}
	pending := make(map[string]domain.AssembledApplication)
	for id, app := range doc.Content {
		if !app.Sent {
			pending[id] = app
		}
	}
	if len(pending) == 0 {
		return DispatchResult{}, fmt.Errorf("op=dispatch.submit_all user=%d: nothing pending: %w", userID, domain.ErrNotFound)
	}
	return s.dispatch(ctx, userID, pending)
}

// SubmitSelected dispatches the named applications. Ids that are unknown or
// already sent are skipped; if nothing remains the call reports ErrNotFound.
func (s *DispatchService) SubmitSelected(ctx domain.Context, userID int64, ids []string) (DispatchResult, error) {
	if len(ids) == 0 {
		return DispatchResult{}, fmt.Errorf("op=dispatch.submit_selected: empty selection: %w", domain.ErrInvalidArgument)
	}
	doc, err := s.apps.Get(ctx, userID)
	if err != nil {
		return DispatchResult{}, fmt.Errorf("op=dispatch.submit_selected: %w", err)
	}
	pending := make(map[string]domain.AssembledApplication)
	for _, id := range ids {
		app, ok := doc.Content[id]
		if !ok {
			slog.Warn("selected application not found",
				slog.Int64("user_id", userID), slog.String("id", id))
			continue
		}
		if app.Sent {
			continue
		}
		pending[id] = app
	}
	if len(pending) == 0 {
		return DispatchResult{}, fmt.Errorf("op=dispatch.submit_selected user=%d: nothing pending: %w", userID, domain.ErrNotFound)
	}
	return s.dispatch(ctx, userID, pending)
}

func (s *DispatchService) dispatch(ctx domain.Context, userID int64, pending map[string]domain.AssembledApplication) (DispatchResult, error) {
	ids := make([]string, 0, len(pending))
	for id := range pending {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var res DispatchResult
	for _, id := range ids {
		app := pending[id]
		queue, err := s.router.Route(app.Job.Portal)
		if err != nil {
			if errors.Is(err, domain.ErrRoutingDisabled) {
				observability.DispatchesDroppedTotal.WithLabelValues(queue).Inc()
				slog.Warn("applier disabled, dropping application",
					slog.Int64("user_id", userID),
					slog.String("id", id),
					slog.String("portal", app.Job.Portal),
					slog.String("queue", queue))
				res.Dropped++
				continue
			}
			return res, fmt.Errorf("op=dispatch id=%s: %w", id, err)
		}

		msg := domain.DispatchMessage{
			UserID:  userID,
			Content: map[string]domain.AssembledApplication{id: app},
		}
		body, err := json.Marshal(msg)
		if err != nil {
			return res, fmt.Errorf("op=dispatch id=%s: %w", id, err)
		}
		// Transient delivery: a lost dispatch stays visible as unsent and can
		// be resubmitted.
		if err := s.bus.Publish(ctx, queue, body, false); err != nil {
			return res, fmt.Errorf("op=dispatch id=%s: %w", id, err)
		}
		if err := s.apps.MarkSent(ctx, userID, id, s.now().UTC()); err != nil {
			return res, fmt.Errorf("op=dispatch id=%s: %w", id, err)
		}
		observability.DispatchesTotal.WithLabelValues(queue).Inc()
		res.Submitted++
		res.SubmittedIDs = append(res.SubmittedIDs, id)
	}
	return res, nil
}

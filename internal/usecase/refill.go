package usecase

import (
	"log/slog"
	"time"

	"github.com/jobpilot/orchestrator/internal/domain"
)

// Refiller runs one refill cycle.
type Refiller interface {
	Refill(ctx domain.Context) (int, error)
}

// RefillLoop drives refill cycles from three sources: a periodic timer,
// outcome settlements, and application-manager notifications. Kicks coalesce
// in a one-slot buffer, so a burst of triggers costs one extra cycle at most.
type RefillLoop struct {
	refiller Refiller
	period   time.Duration
	kick     chan struct{}
}

// NewRefillLoop constructs the loop.
func NewRefillLoop(refiller Refiller, period time.Duration) *RefillLoop {
	return &RefillLoop{
		refiller: refiller,
		period:   period,
		kick:     make(chan struct{}, 1),
	}
}

// Kick requests an out-of-band refill cycle. Never blocks.
func (l *RefillLoop) Kick() {
	select {
	case l.kick <- struct{}{}:
	default:
	}
}

// HandleNotification is the application-manager queue handler: any message
// on that queue means new pending batches may exist.
func (l *RefillLoop) HandleNotification(_ domain.Context, _ []byte) error {
	l.Kick()
	return nil
}

// Run executes refill cycles until ctx is cancelled. Cycle errors are logged
// and swallowed; the next trigger retries.
func (l *RefillLoop) Run(ctx domain.Context) {
	l.cycle(ctx)

	ticker := time.NewTicker(l.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.cycle(ctx)
		case <-l.kick:
			l.cycle(ctx)
		}
	}
}

func (l *RefillLoop) cycle(ctx domain.Context) {
	n, err := l.refiller.Refill(ctx)
	if err != nil {
		slog.Error("refill cycle failed", slog.Any("error", err))
		return
	}
	if n > 0 {
		slog.Info("refill published batches", slog.Int("count", n))
	}
}

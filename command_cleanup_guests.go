package members

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// CleanupGuestsMessage triggers one sweep of expired guest accounts.
type CleanupGuestsMessage struct {
	Requester string `json:"requester"`
}

func (e CleanupGuestsMessage) Type() string { return "guests.cleanup" }

type CleanupGuestsHandler struct {
	sweeper *Sweeper
	logger  Logger

	// LastReport holds the outcome of the most recent execution.
	LastReport SweepReport
}

func NewCleanupGuestsHandler(sweeper *Sweeper, logger Logger) *CleanupGuestsHandler {
	if logger == nil {
		logger = defLogger{}
	}
	return &CleanupGuestsHandler{
		sweeper: sweeper,
		logger:  logger,
	}
}

func (h *CleanupGuestsHandler) Execute(ctx context.Context, event CleanupGuestsMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during guest cleanup",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *CleanupGuestsHandler) execute(ctx context.Context, event CleanupGuestsMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Minute*5)
	defer cancel()

	report, err := h.sweeper.RunOnce(ctx)
	h.LastReport = report
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "guest cleanup failed")
	}

	h.logger.Info("guest cleanup done",
		"requester", event.Requester,
		"scanned", report.Scanned,
		"reclaimed", report.Reclaimed,
		"failed", report.Failed,
	)

	return nil
}

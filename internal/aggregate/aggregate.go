// Package aggregate advances target status as their mapped sources settle.
package aggregate

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/sells-group/recon-pipeline/internal/model"
	"github.com/sells-group/recon-pipeline/internal/notify"
	"github.com/sells-group/recon-pipeline/internal/store"
)

// Aggregator watches source settlements and promotes targets to enriched once
// every mapped source has left pending.
type Aggregator struct {
	store    store.Store
	notifier notify.Notifier
}

// New creates an Aggregator.
func New(s store.Store, n notify.Notifier) *Aggregator {
	return &Aggregator{store: s, notifier: n}
}

// OnSourceSettled fans out to every target mapped to the source. Settlement
// means the source reached mined or failed; a failed scrape still unblocks
// its targets. One target failing to advance does not stop the fan-out to
// the rest.
func (a *Aggregator) OnSourceSettled(ctx context.Context, sourceID int64) error {
	emails, err := a.store.TargetEmailsForSource(ctx, sourceID)
	if err != nil {
		return eris.Wrapf(err, "aggregate: targets for source %d", sourceID)
	}

	var errs error
	for _, email := range emails {
		if err := a.TryAdvanceTarget(ctx, email); err != nil {
			zap.L().Warn("target advance failed",
				zap.String("email", email), zap.Error(err))
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

// TryAdvanceTarget promotes the target to enriched iff it is still pending
// and no mapped source is pending. Replayed settlements on an already
// enriched target are no-ops. The check is read-then-write without a
// transaction: two settlements racing on the same target can both observe
// pending and both write. The write is idempotent and consumers tolerate the
// duplicate notification, so the race is harmless.
func (a *Aggregator) TryAdvanceTarget(ctx context.Context, email string) error {
	target, err := a.store.GetTarget(ctx, email)
	if err != nil {
		return eris.Wrapf(err, "aggregate: get target %s", email)
	}
	if target == nil {
		return eris.Errorf("aggregate: target not found: %s", email)
	}
	if target.Status != model.TargetStatusPending {
		return nil
	}

	pending, err := a.store.CountPendingSources(ctx, email)
	if err != nil {
		return eris.Wrapf(err, "aggregate: count pending %s", email)
	}
	if pending > 0 {
		return nil
	}

	if err := a.store.UpdateTargetStatus(ctx, email, model.TargetStatusEnriched); err != nil {
		return eris.Wrapf(err, "aggregate: advance target %s", email)
	}

	zap.L().Info("target enriched",
		zap.String("email", email),
		zap.String("domain", target.DomainName))
	a.notifier.Emit(notify.EventTargetStatusUpdated, map[string]any{
		"email":   email,
		"status":  string(model.TargetStatusEnriched),
		"message": "All sources settled",
		"domain":  target.DomainName,
	})
	return nil
}

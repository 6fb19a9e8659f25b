package reducer

import (
	"context"

	"github.com/dtnitsch/pixbatch/models"
	"github.com/dtnitsch/pixbatch/pkg/apierr"
	"github.com/dtnitsch/pixbatch/pkg/spcode"
	"github.com/dtnitsch/pixbatch/pkg/transport"
)

type pollState int

const (
	pollCollecting pollState = iota
	pollResolved
	pollTimedOut
	pollFailed
)

// poll re-queries the pending items by identity until they all resolve, one
// of them fails, or the attempt budget runs out. Request-level failures are
// returned as errors; item failures end the loop in pollFailed.
func (b *Batch) poll(ctx context.Context, opts models.Options) (pollState, error) {
	cfg := b.client.cfg
	if !cfg.Poll.Enabled || len(b.pending()) == 0 {
		return pollResolved, nil
	}

	for attempt := 0; attempt < cfg.Poll.MaxAttempts; attempt++ {
		pending := b.pending()
		if len(pending) == 0 {
			return pollResolved, nil
		}

		identities := make([]string, len(pending))
		for i, it := range pending {
			identities[i] = it.Identity
		}
		b.logger.Debug("poll round", "attempt", attempt+1, "pending", len(pending))

		body, err := b.jsonPayload(opts, identities, waitFor(opts, cfg.Wait))
		if err != nil {
			return pollFailed, err
		}
		raw, err := b.client.rt.Do(ctx, jsonRequest(cfg.ReducerURL, body))
		if err != nil {
			return pollFailed, err
		}
		metas, err := decodeMetas(raw)
		if err != nil {
			return pollFailed, err
		}

		if b.merge(metas) {
			b.abortPending()
			return pollFailed, nil
		}
		if len(b.pending()) == 0 {
			return pollResolved, nil
		}

		if attempt+1 < cfg.Poll.MaxAttempts {
			if err := transport.Sleep(ctx, cfg.Poll.Interval); err != nil {
				return pollFailed, err
			}
		}
	}

	return pollTimedOut, nil
}

// merge applies poll entries by identity and reports whether any item
// failed. Unknown identities are ignored.
func (b *Batch) merge(metas []models.ResponseMeta) bool {
	failed := false
	for i := range metas {
		meta := &metas[i]
		it := b.firstPending(meta.OriginalURL)
		if it == nil {
			b.logger.Debug("ignoring poll entry", "identity", meta.OriginalURL, "code", meta.Code())
			continue
		}

		c := spcode.Classify(meta.Code())
		switch {
		case c.Status == spcode.Pending:
			it.observe(meta)
		case c.Status.IsError():
			it.Outcome.Meta = meta
			it.fail(apierr.FromStatus(meta.Code(), meta.Message(), meta))
			b.logger.Warn("item failed while polling", "index", it.Index, "code", meta.Code(), "error", it.Outcome.Err)
			failed = true
		default:
			it.resolve(meta)
		}
	}
	return failed
}

// abortPending fails the remaining items after an item-level poll failure.
func (b *Batch) abortPending() {
	for _, it := range b.pending() {
		it.fail(apierr.New(apierr.KindTemporary, "polling aborted after another item failed",
			apierr.WithCode(spcode.CodePending), apierr.WithPayload(it.Outcome.Meta)))
	}
}

// timeoutError describes items left pending once the poll budget is spent.
func (b *Batch) timeoutError() *apierr.Error {
	var metas []*models.ResponseMeta
	for _, it := range b.pending() {
		metas = append(metas, it.Outcome.Meta)
	}
	b.logger.Warn("items still pending after polling", "pending", len(metas))
	return apierr.New(apierr.KindTemporary, "items still pending after polling",
		apierr.WithCode(spcode.CodePending), apierr.WithPayload(metas))
}

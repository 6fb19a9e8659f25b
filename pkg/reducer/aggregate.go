package reducer

import (
	"github.com/dtnitsch/pixbatch/pkg/apierr"
)

// aggregate turns the resolved items into a Result, or into one error when
// any item failed. Single-item batches surface the item's error directly.
func (b *Batch) aggregate() (*Result, error) {
	var failed []*Item
	for _, it := range b.items {
		if it.Outcome.State == Failed {
			failed = append(failed, it)
		}
	}

	if len(failed) > 0 {
		if len(b.items) == 1 {
			return nil, failed[0].Outcome.Err
		}
		return nil, b.batchError()
	}

	res := b.snapshot()
	b.last = res
	b.logger.Info("batch complete", "items", len(res.Items))
	return res, nil
}

func (b *Batch) batchError() *apierr.BatchError {
	snap := b.snapshot()
	reports := make([]apierr.ItemReport, len(snap.Items))
	for i, it := range snap.Items {
		reports[i] = apierr.ItemReport{
			Index: it.Index,
			Input: it.Input,
			Ready: it.Outcome.State == Ready,
			Meta:  it.Outcome.Meta,
			Err:   it.Outcome.Err,
		}
	}
	return &apierr.BatchError{Items: reports}
}

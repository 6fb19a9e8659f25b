package optimize

import (
	"encoding/json"
	"errors"

	"github.com/dtnitsch/pixbatch/models"
	"github.com/dtnitsch/pixbatch/pkg/apierr"
	"github.com/dtnitsch/pixbatch/pkg/db"
	"github.com/dtnitsch/pixbatch/pkg/output"
	"github.com/dtnitsch/pixbatch/pkg/reducer"
	"github.com/dtnitsch/pixbatch/pkg/spcode"
)

// optionsJSON encodes opts for the history record, "{}" when they do not
// encode.
func optionsJSON(opts models.Options) string {
	data, err := json.Marshal(opts)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// inputLabel is how an input is shown and recorded.
func inputLabel(in reducer.Input) string {
	switch {
	case in.URL != "":
		return in.URL
	case in.Path != "":
		return in.Path
	default:
		return in.Name
	}
}

// itemsOf returns the batch items of the latest run. When the run failed
// before anything was sent, the inputs are reported as pending items.
func itemsOf(b *reducer.Batch) []reducer.Item {
	if items := b.Items(); len(items) > 0 {
		return items
	}
	inputs := b.Inputs()
	items := make([]reducer.Item, len(inputs))
	for i, in := range inputs {
		items[i] = reducer.Item{Index: i, Input: in}
	}
	return items
}

// counts tallies ready, failed and pending items.
func counts(items []reducer.Item) (ready, failed, pending int) {
	for _, it := range items {
		switch it.Outcome.State {
		case reducer.Ready:
			ready++
		case reducer.Failed:
			failed++
		default:
			pending++
		}
	}
	return ready, failed, pending
}

// batchStatus summarizes a run as one of the db status values.
func batchStatus(items []reducer.Item, runErr error) string {
	if runErr == nil {
		return db.StatusReady
	}
	ready, failed, _ := counts(items)
	var be *apierr.BatchError
	if errors.As(runErr, &be) {
		if ready > 0 {
			return db.StatusPartial
		}
		if timedOut(items) {
			return db.StatusTimeout
		}
		return db.StatusFailed
	}
	if failed == 0 {
		return db.StatusError
	}
	if timedOut(items) {
		return db.StatusTimeout
	}
	return db.StatusFailed
}

// timedOut reports whether every failed item ran out of poll attempts.
func timedOut(items []reducer.Item) bool {
	seen := false
	for _, it := range items {
		if it.Outcome.State != reducer.Failed {
			continue
		}
		e := it.Outcome.Err
		if e == nil || e.Kind != apierr.KindTemporary || e.Code != spcode.CodePending {
			return false
		}
		seen = true
	}
	return seen
}

// errorFields returns the kind and text recorded for err.
func errorFields(err error) (string, string) {
	if err == nil {
		return "", ""
	}
	return apierr.KindOf(err).String(), err.Error()
}

// BuildRecord turns a finished batch into history rows.
func BuildRecord(b *reducer.Batch, runErr error) (db.Batch, []db.BatchItem) {
	items := itemsOf(b)
	ready, failed, pending := counts(items)
	kind, msg := errorFields(runErr)

	optsJSON := optionsJSON(b.Options())

	rec := db.Batch{
		BatchID:      b.ID,
		Mode:         b.Mode.String(),
		CreatedAt:    b.CreatedAt,
		ItemCount:    len(items),
		ReadyCount:   ready,
		FailedCount:  failed,
		PendingCount: pending,
		Status:       batchStatus(items, runErr),
		ErrorKind:    kind,
		ErrorMessage: msg,
		Options:      optsJSON,
	}

	rows := make([]db.BatchItem, len(items))
	for i, it := range items {
		row := db.BatchItem{
			Index:       it.Index,
			Input:       inputLabel(it.Input),
			DisplayName: it.Input.DisplayName(it.Index),
			Identity:    it.Identity,
			State:       it.Outcome.State.String(),
		}
		if m := it.Outcome.Meta; m != nil {
			row.Code = m.Code()
			row.Message = m.Message()
			row.Meta = string(m.Raw)
		}
		if e := it.Outcome.Err; e != nil {
			row.Code = e.Code
			row.ErrorKind = e.Kind.String()
			row.ErrorMessage = e.Error()
		}
		rows[i] = row
	}
	return rec, rows
}

// optimizedSize is the size of the variant the options ask for.
func optimizedSize(m *models.ResponseMeta, opts models.Options) int {
	lossy := 1
	if v, ok, err := opts.Int(models.OptLossy); ok && err == nil {
		lossy = v
	}
	if lossy > 0 && m.LossySize > 0 {
		return int(m.LossySize)
	}
	return int(m.LoselessSize)
}

// BuildOutput renders a finished batch for stdout.
func BuildOutput(b *reducer.Batch, runErr error) *FinalOutput {
	items := itemsOf(b)
	opts := b.Options()
	ready, failed, pending := counts(items)
	kind, msg := errorFields(runErr)

	out := &FinalOutput{
		Status:    batchStatus(items, runErr),
		BatchID:   b.ID,
		Mode:      b.Mode.String(),
		Error:     msg,
		ErrorKind: kind,
		Results:   make([]ItemOutput, len(items)),
		Stats: Stats{
			TotalItems: len(items),
			Ready:      ready,
			Failed:     failed,
			Pending:    pending,
		},
	}

	for i, it := range items {
		o := ItemOutput{
			Index: it.Index,
			Input: inputLabel(it.Input),
			Name:  it.Input.DisplayName(it.Index),
			State: it.Outcome.State.String(),
		}
		if m := it.Outcome.Meta; m != nil {
			o.Code = m.Code()
			o.Message = m.Message()
			if it.Outcome.State == reducer.Ready {
				o.BestURL = output.PickBestURL(m, opts)
				o.OriginalSize = int(m.OriginalSize)
				o.OptimizedSize = optimizedSize(m, opts)
				if saved := o.OriginalSize - o.OptimizedSize; o.OptimizedSize > 0 && saved > 0 {
					out.Stats.BytesSaved += saved
				}
			}
		}
		if e := it.Outcome.Err; e != nil {
			o.Code = e.Code
			o.Error = e.Error()
			o.ErrorKind = e.Kind.String()
		}
		out.Results[i] = o
	}
	return out
}

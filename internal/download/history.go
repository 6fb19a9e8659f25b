package download

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dtnitsch/pixbatch/models"
	"github.com/dtnitsch/pixbatch/pkg/apierr"
	"github.com/dtnitsch/pixbatch/pkg/db"
	"github.com/dtnitsch/pixbatch/pkg/reducer"
)

// Recorded is a ResultSource rebuilt from batch history.
type Recorded struct {
	result *reducer.Result
}

func (r *Recorded) LastResult() (*reducer.Result, error) {
	if r.result == nil || len(r.result.Items) == 0 {
		return nil, apierr.New(apierr.KindUsage, "no optimization results recorded for batch")
	}
	return r.result, nil
}

// FromHistory rebuilds the result of a recorded batch. Items recorded
// without a response keep their state but carry no meta.
func FromHistory(b *db.Batch, items []db.BatchItem) (*Recorded, error) {
	mode := reducer.ModeURL
	if b.Mode == reducer.ModeUpload.String() {
		mode = reducer.ModeUpload
	}

	opts := models.Options{}
	if strings.TrimSpace(b.Options) != "" {
		if err := json.Unmarshal([]byte(b.Options), &opts); err != nil {
			return nil, fmt.Errorf("failed to decode options of batch %s: %w", b.BatchID, err)
		}
	}

	res := &reducer.Result{
		BatchID: b.BatchID,
		Mode:    mode,
		Options: opts,
		Items:   make([]reducer.Item, 0, len(items)),
	}
	for _, row := range items {
		it := reducer.Item{
			Index:    row.Index,
			Identity: row.Identity,
			Input:    recordedInput(mode, row),
			Outcome:  reducer.Outcome{State: recordedState(row.State)},
		}
		if row.Meta != "" {
			var meta models.ResponseMeta
			if err := json.Unmarshal([]byte(row.Meta), &meta); err != nil {
				return nil, fmt.Errorf("failed to decode meta of item %d: %w", row.Index, err)
			}
			it.Outcome.Meta = &meta
		}
		res.Items = append(res.Items, it)
	}
	return &Recorded{result: res}, nil
}

func recordedInput(mode reducer.Mode, row db.BatchItem) reducer.Input {
	if mode == reducer.ModeURL {
		return reducer.Input{URL: row.Input}
	}
	return reducer.Input{Path: row.Input, Name: row.DisplayName}
}

func recordedState(s string) reducer.State {
	switch s {
	case reducer.Ready.String():
		return reducer.Ready
	case reducer.Failed.String():
		return reducer.Failed
	default:
		return reducer.Pending
	}
}

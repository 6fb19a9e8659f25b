package reducer

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dtnitsch/pixbatch/models"
	"github.com/dtnitsch/pixbatch/pkg/apierr"
)

// Mode is the submission shape of a batch.
type Mode int

const (
	ModeURL Mode = iota
	ModeUpload
)

func (m Mode) String() string {
	if m == ModeUpload {
		return "upload"
	}
	return "url"
}

// State is the lifecycle position of one item.
type State int

const (
	Pending State = iota
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return "pending"
	}
}

// Input describes one image: a remote URL, a local path or a buffer.
type Input struct {
	URL  string
	Path string
	Data []byte
	// Name overrides the display name of an upload.
	Name string
}

// DisplayName returns the name the item is reported and saved under.
func (in Input) DisplayName(index int) string {
	if n := strings.TrimSpace(in.Name); n != "" {
		return n
	}
	if p := strings.TrimSpace(in.Path); p != "" {
		return p
	}
	if in.URL != "" {
		if u, err := url.Parse(strings.TrimSpace(in.URL)); err == nil {
			if base := path.Base(u.Path); base != "." && base != "/" {
				return base
			}
		}
		return ""
	}
	return fmt.Sprintf("upload_%d.bin", index+1)
}

// BaseName is the file-name part of DisplayName.
func (in Input) BaseName(index int) string {
	n := in.DisplayName(index)
	if n == "" {
		return ""
	}
	return filepath.Base(n)
}

// Outcome is the result of one item. Ready and Failed are terminal.
type Outcome struct {
	State State
	// Meta is the last response received for the item.
	Meta *models.ResponseMeta
	Err  *apierr.Error
}

// Item is one entry of a batch. Index never changes; Identity is the
// service-assigned token used to address the item in poll rounds.
type Item struct {
	Index    int
	Identity string
	Input    Input
	Outcome  Outcome

	normalized string
	data       []byte
}

func (it *Item) terminal() bool {
	return it.Outcome.State != Pending
}

// observe records a still-pending response.
func (it *Item) observe(meta *models.ResponseMeta) {
	if it.terminal() {
		return
	}
	it.Outcome.Meta = meta
}

func (it *Item) resolve(meta *models.ResponseMeta) {
	if it.terminal() {
		return
	}
	it.Outcome = Outcome{State: Ready, Meta: meta}
}

func (it *Item) fail(err *apierr.Error) {
	if it.terminal() {
		return
	}
	err.Index = it.Index
	it.Outcome = Outcome{State: Failed, Meta: it.Outcome.Meta, Err: err}
}

// Result is the frozen outcome of a completed run.
type Result struct {
	BatchID string
	Mode    Mode
	// Options are the effective options the run was sent with.
	Options models.Options
	// Items are sorted by Index.
	Items []Item
}

// Metas returns each item's last response, in index order.
func (r *Result) Metas() []*models.ResponseMeta {
	out := make([]*models.ResponseMeta, len(r.Items))
	for i := range r.Items {
		out[i] = r.Items[i].Outcome.Meta
	}
	return out
}

// Batch is an ordered group of items submitted and tracked together.
// A Batch is not safe for concurrent use; run it from one goroutine.
type Batch struct {
	ID        string
	Mode      Mode
	CreatedAt time.Time

	client  *Client
	inputs  []Input
	options models.Options
	logger  *slog.Logger

	items      []*Item
	byIdentity map[string][]int
	last       *Result
}

func (c *Client) newBatch(mode Mode, inputs []Input, opts models.Options) *Batch {
	id := uuid.NewString()
	return &Batch{
		ID:        id,
		Mode:      mode,
		CreatedAt: c.now(),
		client:    c,
		inputs:    inputs,
		options:   models.Options{}.Merge(opts),
		logger:    c.logger.With("batch_id", id, "mode", mode.String()),
	}
}

// Options returns the effective options the batch is sent with.
func (b *Batch) Options() models.Options {
	return b.client.effectiveOptions(b.options)
}

// Inputs returns the batch inputs in submission order.
func (b *Batch) Inputs() []Input {
	return append([]Input(nil), b.inputs...)
}

// Items returns a copy of the items of the latest run, including failed
// and still-pending ones.
func (b *Batch) Items() []Item {
	out := make([]Item, len(b.items))
	for i, it := range b.items {
		out[i] = *it
	}
	return out
}

// LastResult returns the result of the last successful run. It fails with
// apierr.ErrNoResults before any run succeeded.
func (b *Batch) LastResult() (*Result, error) {
	if b.last == nil {
		return nil, apierr.New(apierr.KindUsage, "no optimization results; run the batch first")
	}
	return b.last, nil
}

// Run submits the batch, polls pending items and aggregates outcomes. Each
// call starts a fresh cycle; a successful run replaces LastResult.
func (b *Batch) Run(ctx context.Context) (*Result, error) {
	opts := b.Options()
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	b.items = nil
	b.byIdentity = map[string][]int{}

	if err := b.prepare(); err != nil {
		return nil, err
	}
	if err := b.submit(ctx, opts); err != nil {
		return nil, err
	}

	state, err := b.poll(ctx, opts)
	if err != nil {
		return nil, err
	}
	if state == pollTimedOut {
		timeout := b.timeoutError()
		onlyTimeout := !b.hasFailures()
		b.failPending(timeout)
		if onlyTimeout {
			return nil, timeout
		}
	}

	return b.aggregate()
}

// track registers it under its identity token.
func (b *Batch) track(it *Item, identity string) {
	if identity == "" {
		return
	}
	it.Identity = identity
	b.byIdentity[identity] = append(b.byIdentity[identity], it.Index)
}

// firstPending returns the first still-pending item carrying identity.
func (b *Batch) firstPending(identity string) *Item {
	for _, idx := range b.byIdentity[identity] {
		if it := b.items[idx]; !it.terminal() {
			return it
		}
	}
	return nil
}

func (b *Batch) pending() []*Item {
	var out []*Item
	for _, it := range b.items {
		if !it.terminal() {
			out = append(out, it)
		}
	}
	return out
}

func (b *Batch) hasFailures() bool {
	for _, it := range b.items {
		if it.Outcome.State == Failed {
			return true
		}
	}
	return false
}

// failPending fails every still-pending item with a copy of err.
func (b *Batch) failPending(err *apierr.Error) {
	for _, it := range b.pending() {
		e := *err
		it.fail(&e)
	}
}

func (b *Batch) snapshot() *Result {
	items := b.Items()
	sort.SliceStable(items, func(i, j int) bool { return items[i].Index < items[j].Index })
	return &Result{BatchID: b.ID, Mode: b.Mode, Options: b.Options(), Items: items}
}

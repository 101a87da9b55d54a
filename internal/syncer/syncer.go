// Package syncer owns the canonical items and categories of the active list.
//
// Every mutation is applied to memory first, then sent through the gateway;
// success swaps in the server payload and failure restores the prior value.
// Snapshots are per entity and tagged with a revision, so a failing operation
// only restores an entity it is still the latest writer of. An operation that
// was overtaken (a later edit, a delete, a refresh) leaves the newer state alone.
// Overlapping writes to one item unwind in order: a failed newer write hands
// the item back to the older one still in flight.
package syncer

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"grocer-cli/internal/gateway"
	"grocer-cli/internal/metrics"
	"grocer-cli/internal/model"
)

// Gateway is the subset of the remote gateway the synchronizer calls.
type Gateway interface {
	GetList(ctx context.Context, listID int64) (model.List, error)
	Categories(ctx context.Context, listID int64) ([]model.Category, error)
	Items(ctx context.Context, listID int64) ([]model.Item, error)
	CreateCategory(ctx context.Context, listID int64, name string) (model.Category, error)
	DeleteCategory(ctx context.Context, listID, categoryID int64) (gateway.Deleted, error)
	CreateItem(ctx context.Context, in gateway.ItemCreate) (model.Item, error)
	UpdateItem(ctx context.Context, itemID int64, p gateway.ItemPatch) (model.Item, error)
	DeleteItem(ctx context.Context, itemID int64) (gateway.Deleted, error)
}

type kind uint8

const (
	kindItem kind = iota + 1
	kindCategory
)

type key struct {
	kind kind
	id   int64
}

type Synchronizer struct {
	gw         Gateway
	log        *slog.Logger
	metrics    *metrics.Metrics
	onAuthFail func()
	changes    chan struct{}

	mu         sync.Mutex
	done       chan struct{}
	listID     int64
	epoch      uint64
	closed     bool
	list       *model.List
	categories []model.Category
	items      []model.Item
	grouping   model.Grouping
	// rev is the revision of the last local write per entity (absent entities
	// keep their entry so a late result can tell it was deleted). synced is
	// the revision at which a refresh last replaced the entity.
	rev    map[key]uint64
	synced map[key]uint64
	// inflight holds the unresolved writes per item, oldest first.
	inflight map[int64][]*write
	clock    uint64
	tempID   int64
	loading  bool
	err      string
	editing  int64
}

type Option func(*Synchronizer)

// WithAuthFailure is called (outside the lock, after rollback) whenever a
// call fails because the session is expired or invalid.
func WithAuthFailure(fn func()) Option {
	return func(s *Synchronizer) { s.onAuthFail = fn }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Synchronizer) {
		if l != nil {
			s.log = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Synchronizer) { s.metrics = m }
}

func New(gw Gateway, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		gw:       gw,
		log:      slog.Default(),
		changes:  make(chan struct{}, 1),
		done:     make(chan struct{}),
		rev:      map[key]uint64{},
		synced:   map[key]uint64{},
		inflight: map[int64][]*write{},
		grouping: model.GroupItems(nil, nil),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Changes signals (coalesced) after any change to collections, loading, error
// or editing state.
func (s *Synchronizer) Changes() <-chan struct{} { return s.changes }

// Done is closed by Close. Waiters on Changes should select on it too.
func (s *Synchronizer) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

func (s *Synchronizer) signal() {
	select {
	case s.changes <- struct{}{}:
	default:
	}
}

// --- read side ---

func (s *Synchronizer) ListID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listID
}

// List returns the details of the active list once loaded.
func (s *Synchronizer) List() (model.List, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.list == nil {
		return model.List{}, false
	}
	l := *s.list
	l.Members = append([]model.Member(nil), s.list.Members...)
	return l, true
}

func (s *Synchronizer) Items() []model.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Item, len(s.items))
	for i, it := range s.items {
		out[i] = it.Clone()
	}
	return out
}

func (s *Synchronizer) Categories() []model.Category {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Category(nil), s.categories...)
}

func (s *Synchronizer) Item(id int64) (model.Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.itemIndexLocked(id); i >= 0 {
		return s.items[i].Clone(), true
	}
	return model.Item{}, false
}

// Grouping returns the derived view. It is rebuilt from the canonical
// collections after every change and must be treated as read-only.
func (s *Synchronizer) Grouping() model.Grouping {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.grouping
}

// Loading reports a non-silent refresh in flight.
func (s *Synchronizer) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Err is the list-level error banner text ("" when none).
func (s *Synchronizer) Err() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Synchronizer) ClearErr() {
	s.mu.Lock()
	changed := s.err != ""
	s.err = ""
	s.mu.Unlock()
	if changed {
		s.signal()
	}
}

// --- editing context ---

func (s *Synchronizer) BeginEdit(itemID int64) {
	s.mu.Lock()
	s.editing = itemID
	s.mu.Unlock()
	s.signal()
}

func (s *Synchronizer) CancelEdit() {
	s.mu.Lock()
	s.editing = 0
	s.mu.Unlock()
	s.signal()
}

func (s *Synchronizer) Editing() (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.editing, s.editing != 0
}

func (s *Synchronizer) closeEditLocked(itemID int64) {
	if s.editing == itemID {
		s.editing = 0
	}
}

// --- lifecycle ---

// Close detaches the synchronizer from its view. Results that arrive later
// are dropped.
func (s *Synchronizer) Close() {
	s.mu.Lock()
	if !s.closed {
		close(s.done)
	}
	s.closed = true
	s.epoch++
	s.mu.Unlock()
}

// Load switches to listID, discarding the previous list's state, and runs a
// non-silent refresh.
func (s *Synchronizer) Load(ctx context.Context, listID int64) error {
	s.mu.Lock()
	s.epoch++
	if s.closed {
		s.done = make(chan struct{})
	}
	s.closed = false
	s.listID = listID
	s.list = nil
	s.categories = nil
	s.items = nil
	s.rev = map[key]uint64{}
	s.synced = map[key]uint64{}
	s.inflight = map[int64][]*write{}
	s.editing = 0
	s.err = ""
	s.regroupLocked()
	s.mu.Unlock()
	s.signal()
	return s.Refresh(ctx, false)
}

// --- internals shared by operations ---

func (s *Synchronizer) itemIndexLocked(id int64) int {
	for i := range s.items {
		if s.items[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Synchronizer) categoryIndexLocked(id int64) int {
	for i := range s.categories {
		if s.categories[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Synchronizer) bumpLocked(k key) uint64 {
	s.clock++
	s.rev[k] = s.clock
	return s.clock
}

func (s *Synchronizer) nextTempIDLocked() int64 {
	s.tempID--
	return s.tempID
}

// ticket identifies one optimistic write for later reconcile/rollback.
type ticket struct {
	k     key
	rev   uint64
	epoch uint64
}

// ownsLocked reports whether t is still the latest write to its entity in the
// current view.
func (s *Synchronizer) ownsLocked(t ticket) bool {
	return !s.closed && s.epoch == t.epoch && s.rev[t.k] == t.rev
}

// canRollbackLocked additionally requires that no refresh replaced the
// entity after t was written; the refreshed value is newer than the snapshot.
func (s *Synchronizer) canRollbackLocked(t ticket) bool {
	return s.ownsLocked(t) && s.synced[t.k] < t.rev
}

// write is an unresolved optimistic write to an item. base is the value to
// restore if it fails while it owns the item.
type write struct {
	rev  uint64
	base model.Item
}

func (s *Synchronizer) beginWriteLocked(id int64, rev uint64, base model.Item) *write {
	w := &write{rev: rev, base: base}
	s.inflight[id] = append(s.inflight[id], w)
	return w
}

// endWriteLocked drops w from the item's unresolved writes. The next newer
// write inherits w's base when w failed, or the server value when it was
// confirmed, so no later rollback restores a change the server rejected.
// It returns the newest older write still unresolved, or nil.
func (s *Synchronizer) endWriteLocked(id int64, w *write, confirmed *model.Item) *write {
	ws := s.inflight[id]
	i := slices.Index(ws, w)
	if i < 0 {
		return nil
	}
	if i+1 < len(ws) {
		if confirmed != nil {
			ws[i+1].base = confirmed.Clone()
		} else {
			ws[i+1].base = w.base
		}
	}
	var older *write
	if i > 0 {
		older = ws[i-1]
	}
	ws = slices.Delete(ws, i, i+1)
	if len(ws) == 0 {
		delete(s.inflight, id)
	} else {
		s.inflight[id] = ws
	}
	return older
}

// handBackLocked returns ownership of an item to the older write whose
// optimistic value was just restored.
func (s *Synchronizer) handBackLocked(k key, older *write) {
	if older != nil {
		s.rev[k] = older.rev
	}
}

func (s *Synchronizer) liveLocked(t ticket) bool {
	return !s.closed && s.epoch == t.epoch
}

func (s *Synchronizer) regroupLocked() {
	s.grouping = model.GroupItems(s.categories, s.items)
	for _, it := range s.grouping.Orphans {
		if it.ID < 0 {
			continue
		}
		s.log.Debug("item has unknown category; excluded from grouping", "item_id", it.ID, "item", it.Name, "category_id", it.Category.ID)
	}
}

// fail records the banner text, counts a rollback when one happened, and
// runs the auth hook. It must be called without the lock held.
func (s *Synchronizer) fail(t ticket, op, prefix string, err error, rolledBack bool) error {
	if rolledBack {
		s.metrics.Rollback(op)
		s.log.Warn("optimistic change rolled back", "op", op, "err", err)
	} else {
		s.log.Info("mutation failed after being superseded", "op", op, "err", err)
	}
	s.mu.Lock()
	if s.liveLocked(t) {
		s.err = prefix + ": " + gateway.Message(err)
	}
	s.mu.Unlock()
	s.signal()
	if gateway.IsAuth(err) && s.onAuthFail != nil {
		s.onAuthFail()
	}
	return err
}

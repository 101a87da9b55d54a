// Package lists manages the user's shopping lists and their membership.
package lists

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"grocer-cli/internal/gateway"
	"grocer-cli/internal/model"
)

type Gateway interface {
	Lists(ctx context.Context) ([]model.List, error)
	GetList(ctx context.Context, listID int64) (model.List, error)
	CreateList(ctx context.Context, in gateway.ListCreate) (model.List, error)
	UpdateList(ctx context.Context, listID int64, p gateway.ListPatch) (model.List, error)
	DeleteList(ctx context.Context, listID int64) (gateway.Deleted, error)
	AddMember(ctx context.Context, listID int64, username string) (model.Member, error)
	RemoveMember(ctx context.Context, listID, userID int64) (gateway.Deleted, error)
}

// Controller caches the lists visible to the current user. Every mutation
// is followed by a refetch; nothing is applied optimistically here.
type Controller struct {
	gw          Gateway
	log         *slog.Logger
	onAuthFail  func()
	currentUser func() *model.User

	mu      sync.Mutex
	lists   []model.List
	loading bool
	err     string
}

type Option func(*Controller)

func WithAuthFailure(fn func()) Option {
	return func(c *Controller) { c.onAuthFail = fn }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.log = l
		}
	}
}

// WithCurrentUser supplies the signed-in user, used to refuse removing
// yourself from a list.
func WithCurrentUser(fn func() *model.User) Option {
	return func(c *Controller) { c.currentUser = fn }
}

func New(gw Gateway, opts ...Option) *Controller {
	c := &Controller{gw: gw, log: slog.Default()}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Controller) Lists() []model.List {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.List(nil), c.lists...)
}

func (c *Controller) Find(listID int64) (model.List, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, l := range c.lists {
		if l.ID == listID {
			return l, true
		}
	}
	return model.List{}, false
}

func (c *Controller) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading
}

func (c *Controller) Err() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Controller) ClearErr() {
	c.mu.Lock()
	c.err = ""
	c.mu.Unlock()
}

// SortLists orders lists by name, case-insensitively, then by id.
func SortLists(ls []model.List) {
	sort.SliceStable(ls, func(i, j int) bool {
		a, b := strings.ToLower(ls[i].Name), strings.ToLower(ls[j].Name)
		if a != b {
			return a < b
		}
		if ls[i].Name != ls[j].Name {
			return ls[i].Name < ls[j].Name
		}
		return ls[i].ID < ls[j].ID
	})
}

// Fetch reloads the lists, sorted by name.
func (c *Controller) Fetch(ctx context.Context) ([]model.List, error) {
	c.mu.Lock()
	c.loading = true
	c.err = ""
	c.mu.Unlock()

	ls, err := c.gw.Lists(ctx)

	c.mu.Lock()
	c.loading = false
	if err != nil {
		c.err = gateway.Message(err)
		c.mu.Unlock()
		return nil, c.handle(err)
	}
	SortLists(ls)
	c.lists = ls
	c.mu.Unlock()
	return append([]model.List(nil), ls...), nil
}

// Create adds a list and refetches. An empty type means private.
func (c *Controller) Create(ctx context.Context, name string, typ model.ListType) (model.List, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.List{}, gateway.Precondition("List name is required.", nil)
	}
	if typ == "" {
		typ = model.ListTypePrivate
	}
	if !typ.Valid() {
		return model.List{}, gateway.Precondition("List type must be private or shared.", nil)
	}
	l, err := c.gw.CreateList(ctx, gateway.ListCreate{Name: name, ListType: typ})
	if err != nil {
		return model.List{}, c.fail("Failed to create list", err)
	}
	c.refetch(ctx)
	return l, nil
}

// Diff returns a patch with only the fields that differ from cur. A blank
// name leaves the name alone.
func Diff(cur model.List, name string, typ model.ListType) gateway.ListPatch {
	var p gateway.ListPatch
	if n := strings.TrimSpace(name); n != "" && n != cur.Name {
		p.Name = &n
	}
	if typ != "" && typ != cur.ListType {
		t := typ
		p.ListType = &t
	}
	return p
}

// Update renames a list or changes its type. Unchanged values return the
// current list without a request; changed reports whether one was sent.
func (c *Controller) Update(ctx context.Context, listID int64, name string, typ model.ListType) (l model.List, changed bool, err error) {
	if typ != "" && !typ.Valid() {
		return model.List{}, false, gateway.Precondition("List type must be private or shared.", nil)
	}
	cur, ok := c.Find(listID)
	if !ok {
		if cur, err = c.gw.GetList(ctx, listID); err != nil {
			return model.List{}, false, c.fail("Update failed", err)
		}
	}
	p := Diff(cur, name, typ)
	if p.Empty() {
		return cur, false, nil
	}
	l, err = c.gw.UpdateList(ctx, listID, p)
	if err != nil {
		return model.List{}, false, c.fail("Update failed", err)
	}
	c.refetch(ctx)
	return l, true, nil
}

// Delete removes a list. Only the owner may; the server enforces it.
func (c *Controller) Delete(ctx context.Context, listID int64) error {
	if _, err := c.gw.DeleteList(ctx, listID); err != nil {
		return c.fail("Failed to delete list", err)
	}
	c.mu.Lock()
	for i, l := range c.lists {
		if l.ID == listID {
			c.lists = append(c.lists[:i], c.lists[i+1:]...)
			break
		}
	}
	c.mu.Unlock()
	c.refetch(ctx)
	return nil
}

func (c *Controller) AddMember(ctx context.Context, listID int64, username string) (model.Member, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return model.Member{}, gateway.Precondition("Username is required.", nil)
	}
	m, err := c.gw.AddMember(ctx, listID, username)
	if err != nil {
		return model.Member{}, c.fail("Failed to add member", err)
	}
	c.refetch(ctx)
	return m, nil
}

// RemoveMember removes userID from the list. Removing the owner or yourself
// is refused without a request.
func (c *Controller) RemoveMember(ctx context.Context, listID, userID int64) error {
	if l, ok := c.Find(listID); ok && l.IsOwner(userID) {
		return gateway.Precondition("The list owner cannot be removed.", nil)
	}
	if c.currentUser != nil {
		if u := c.currentUser(); u != nil && u.ID == userID {
			return gateway.Precondition("You cannot remove yourself from a list.", nil)
		}
	}
	if _, err := c.gw.RemoveMember(ctx, listID, userID); err != nil {
		return c.fail("Failed to remove member", err)
	}
	c.refetch(ctx)
	return nil
}

func (c *Controller) refetch(ctx context.Context) {
	if _, err := c.Fetch(ctx); err != nil {
		c.log.Warn("refetch lists failed", "err", err)
	}
}

func (c *Controller) fail(prefix string, err error) error {
	c.mu.Lock()
	c.err = prefix + ": " + gateway.Message(err)
	c.mu.Unlock()
	return c.handle(err)
}

func (c *Controller) handle(err error) error {
	if gateway.IsAuth(err) && c.onAuthFail != nil {
		c.onAuthFail()
	}
	return err
}

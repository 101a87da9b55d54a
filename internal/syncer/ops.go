package syncer

import (
	"context"
	"net/http"
	"strings"

	"grocer-cli/internal/gateway"
	"grocer-cli/internal/model"
)

// NewItem is the add-item form. When NewCategoryName is set the category is
// created first and CategoryID is ignored.
type NewItem struct {
	Name            string
	Note            string
	CategoryID      int64
	NewCategoryName string
	PriceMatch      bool
}

// ItemEdit holds every editable field as the edit form shows it.
type ItemEdit struct {
	Name       string
	Note       string
	CategoryID int64
	PriceMatch bool
}

// Diff returns a patch holding only the fields of e that differ from cur.
// A blank note and no note are the same value; clearing sends null.
func Diff(cur model.Item, e ItemEdit) gateway.ItemPatch {
	var p gateway.ItemPatch
	if name := strings.TrimSpace(e.Name); name != "" && name != cur.Name {
		p.Name = &name
	}
	note := strings.TrimSpace(e.Note)
	if note != noteOf(cur) {
		p.Note = &note
	}
	if e.CategoryID != 0 && e.CategoryID != cur.Category.ID {
		id := e.CategoryID
		p.CategoryID = &id
	}
	if e.PriceMatch != cur.PriceMatch {
		pm := e.PriceMatch
		p.PriceMatch = &pm
	}
	return p
}

func noteOf(it model.Item) string {
	if it.Note == nil {
		return ""
	}
	return *it.Note
}

// minimize drops fields of p already equal to cur.
func minimize(cur model.Item, p gateway.ItemPatch) gateway.ItemPatch {
	if p.Name != nil && *p.Name == cur.Name {
		p.Name = nil
	}
	if p.Note != nil && *p.Note == noteOf(cur) {
		p.Note = nil
	}
	if p.CategoryID != nil && *p.CategoryID == cur.Category.ID {
		p.CategoryID = nil
	}
	if p.PriceMatch != nil && *p.PriceMatch == cur.PriceMatch {
		p.PriceMatch = nil
	}
	if p.IsTicked != nil && *p.IsTicked == cur.IsTicked {
		p.IsTicked = nil
	}
	return p
}

func precondition(err error) error {
	return gateway.Precondition(err.Error(), err)
}

// AddCategory creates a category in the active list.
func (s *Synchronizer) AddCategory(ctx context.Context, name string) (model.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Category{}, gateway.Precondition("Category name is required.", nil)
	}
	s.mu.Lock()
	if s.listID == 0 {
		s.mu.Unlock()
		return model.Category{}, precondition(NoListError{})
	}
	listID := s.listID
	tmp := model.Category{ID: s.nextTempIDLocked(), Name: name, ListID: listID}
	s.categories = append(s.categories, tmp)
	t := ticket{k: key{kindCategory, tmp.ID}, epoch: s.epoch}
	t.rev = s.bumpLocked(t.k)
	s.regroupLocked()
	s.mu.Unlock()
	s.signal()

	created, err := s.gw.CreateCategory(ctx, listID, name)

	s.mu.Lock()
	live := s.liveLocked(t)
	if live {
		if i := s.categoryIndexLocked(tmp.ID); i >= 0 {
			s.categories = append(s.categories[:i], s.categories[i+1:]...)
		}
		delete(s.rev, t.k)
		if err == nil {
			if created.ListID == 0 {
				created.ListID = listID
			}
			if i := s.categoryIndexLocked(created.ID); i >= 0 {
				s.categories[i] = created
			} else {
				s.categories = append(s.categories, created)
			}
			s.bumpLocked(key{kindCategory, created.ID})
		}
		s.regroupLocked()
	}
	s.mu.Unlock()
	s.signal()
	if err != nil {
		return model.Category{}, s.fail(t, "add_category", "Failed to add category", err, live)
	}
	return created, nil
}

// AddItem creates an item, creating its category first when the form names
// a new one.
func (s *Synchronizer) AddItem(ctx context.Context, in NewItem) (model.Item, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return model.Item{}, gateway.Precondition("Item name is required.", nil)
	}
	if catName := strings.TrimSpace(in.NewCategoryName); catName != "" {
		cat, err := s.AddCategory(ctx, catName)
		if err != nil {
			return model.Item{}, err
		}
		in.CategoryID = cat.ID
	}
	if in.CategoryID <= 0 {
		return model.Item{}, precondition(MissingCategoryError{})
	}

	s.mu.Lock()
	if s.listID == 0 {
		s.mu.Unlock()
		return model.Item{}, precondition(NoListError{})
	}
	listID := s.listID
	req := gateway.ItemCreate{Name: name, CategoryID: in.CategoryID, PriceMatch: in.PriceMatch, ListID: listID}
	if note := strings.TrimSpace(in.Note); note != "" {
		req.Note = &note
	}
	tmp := model.Item{ID: s.nextTempIDLocked(), Name: name, Note: req.Note, Category: model.CategoryRef{ID: in.CategoryID}, PriceMatch: in.PriceMatch, ListID: listID}
	if i := s.categoryIndexLocked(in.CategoryID); i >= 0 {
		tmp.Category.Name = s.categories[i].Name
	}
	s.items = append(s.items, tmp)
	t := ticket{k: key{kindItem, tmp.ID}, epoch: s.epoch}
	t.rev = s.bumpLocked(t.k)
	s.regroupLocked()
	s.mu.Unlock()
	s.signal()

	created, err := s.gw.CreateItem(ctx, req)

	s.mu.Lock()
	live := s.liveLocked(t)
	if live {
		if i := s.itemIndexLocked(tmp.ID); i >= 0 {
			s.items = append(s.items[:i], s.items[i+1:]...)
		}
		delete(s.rev, t.k)
		if err == nil {
			if i := s.itemIndexLocked(created.ID); i >= 0 {
				s.items[i] = created.Clone()
			} else {
				s.items = append(s.items, created.Clone())
			}
			s.bumpLocked(key{kindItem, created.ID})
		}
		s.regroupLocked()
	}
	s.mu.Unlock()
	s.signal()
	if err != nil {
		return model.Item{}, s.fail(t, "add_item", "Failed to add item", err, live)
	}
	return created, nil
}

// EditItem applies the edit form to an item, sending only changed fields.
func (s *Synchronizer) EditItem(ctx context.Context, itemID int64, e ItemEdit) (model.Item, error) {
	if strings.TrimSpace(e.Name) == "" {
		return model.Item{}, gateway.Precondition("Item name is required.", nil)
	}
	cur, ok := s.Item(itemID)
	if !ok {
		return model.Item{}, precondition(NotFoundError{Kind: "item", ID: itemID})
	}
	return s.UpdateItem(ctx, itemID, Diff(cur, e))
}

// ToggleTick flips the ticked flag of an item.
func (s *Synchronizer) ToggleTick(ctx context.Context, itemID int64) (model.Item, error) {
	cur, ok := s.Item(itemID)
	if !ok {
		return model.Item{}, precondition(NotFoundError{Kind: "item", ID: itemID})
	}
	ticked := !cur.IsTicked
	return s.UpdateItem(ctx, itemID, gateway.ItemPatch{IsTicked: &ticked})
}

// UpdateItem merges p into the item. Fields equal to the current value are
// dropped; an empty patch closes the edit context without a request.
func (s *Synchronizer) UpdateItem(ctx context.Context, itemID int64, p gateway.ItemPatch) (model.Item, error) {
	if itemID < 0 {
		return model.Item{}, precondition(PendingError{Kind: "Item"})
	}
	s.mu.Lock()
	i := s.itemIndexLocked(itemID)
	if i < 0 {
		s.mu.Unlock()
		return model.Item{}, precondition(NotFoundError{Kind: "item", ID: itemID})
	}
	cur := s.items[i]
	p = minimize(cur, p)
	if p.Empty() {
		s.closeEditLocked(itemID)
		out := cur.Clone()
		s.mu.Unlock()
		s.signal()
		return out, nil
	}
	base := cur.Clone()
	s.items[i] = p.Apply(cur, s.categories)
	t := ticket{k: key{kindItem, itemID}, epoch: s.epoch}
	t.rev = s.bumpLocked(t.k)
	w := s.beginWriteLocked(itemID, t.rev, base)
	s.regroupLocked()
	s.mu.Unlock()
	s.signal()

	updated, err := s.gw.UpdateItem(ctx, itemID, p)

	s.mu.Lock()
	if err != nil {
		restore := s.canRollbackLocked(t)
		older := s.endWriteLocked(itemID, w, nil)
		if restore {
			if j := s.itemIndexLocked(itemID); j >= 0 {
				s.items[j] = w.base
			} else {
				s.items = append(s.items, w.base)
			}
			s.handBackLocked(t.k, older)
			s.regroupLocked()
		}
		s.mu.Unlock()
		return model.Item{}, s.fail(t, "update_item", "Failed to update item", err, restore)
	}
	s.endWriteLocked(itemID, w, &updated)
	if s.ownsLocked(t) {
		if j := s.itemIndexLocked(itemID); j >= 0 {
			s.items[j] = updated.Clone()
		}
		s.regroupLocked()
	}
	if s.liveLocked(t) {
		s.closeEditLocked(itemID)
	}
	s.mu.Unlock()
	s.signal()
	return updated, nil
}

// DeleteItem removes an item. A second call for the same item finds it gone
// and fails locally without a request.
func (s *Synchronizer) DeleteItem(ctx context.Context, itemID int64) error {
	if itemID < 0 {
		return precondition(PendingError{Kind: "Item"})
	}
	s.mu.Lock()
	i := s.itemIndexLocked(itemID)
	if i < 0 {
		s.mu.Unlock()
		return precondition(NotFoundError{Kind: "item", ID: itemID})
	}
	base := s.items[i].Clone()
	s.items = append(s.items[:i], s.items[i+1:]...)
	t := ticket{k: key{kindItem, itemID}, epoch: s.epoch}
	t.rev = s.bumpLocked(t.k)
	w := s.beginWriteLocked(itemID, t.rev, base)
	s.closeEditLocked(itemID)
	s.regroupLocked()
	s.mu.Unlock()
	s.signal()

	_, err := s.gw.DeleteItem(ctx, itemID)
	if gateway.StatusOf(err) == http.StatusNotFound {
		// already gone on the server
		err = nil
	}

	s.mu.Lock()
	older := s.endWriteLocked(itemID, w, nil)
	if err != nil {
		restore := s.canRollbackLocked(t)
		if restore {
			s.items = insertAt(s.items, i, w.base)
			s.handBackLocked(t.k, older)
			s.regroupLocked()
		}
		s.mu.Unlock()
		return s.fail(t, "delete_item", "Failed to delete item", err, restore)
	}
	if s.liveLocked(t) {
		if j := s.itemIndexLocked(itemID); j >= 0 {
			s.items = append(s.items[:j], s.items[j+1:]...)
			s.bumpLocked(t.k)
			s.regroupLocked()
		}
	}
	s.mu.Unlock()
	s.signal()
	return nil
}

// DeleteCategory removes an empty category. A category that still holds
// items is refused locally.
func (s *Synchronizer) DeleteCategory(ctx context.Context, categoryID int64) error {
	if categoryID < 0 {
		return precondition(PendingError{Kind: "Category"})
	}
	s.mu.Lock()
	n := 0
	for _, it := range s.items {
		if it.Category.ID == categoryID {
			n++
		}
	}
	if n > 0 {
		err := precondition(CategoryNotEmptyError{CategoryID: categoryID, Items: n})
		s.err = err.Error()
		s.mu.Unlock()
		s.signal()
		return err
	}
	i := s.categoryIndexLocked(categoryID)
	if i < 0 {
		s.mu.Unlock()
		return precondition(NotFoundError{Kind: "category", ID: categoryID})
	}
	listID := s.listID
	prev := s.categories[i]
	s.categories = append(s.categories[:i], s.categories[i+1:]...)
	t := ticket{k: key{kindCategory, categoryID}, epoch: s.epoch}
	t.rev = s.bumpLocked(t.k)
	s.regroupLocked()
	s.mu.Unlock()
	s.signal()

	_, err := s.gw.DeleteCategory(ctx, listID, categoryID)

	s.mu.Lock()
	if err != nil {
		restore := s.canRollbackLocked(t)
		if restore {
			s.categories = insertAt(s.categories, i, prev)
			s.regroupLocked()
		}
		s.mu.Unlock()
		return s.fail(t, "delete_category", "Failed to delete category", err, restore)
	}
	if s.liveLocked(t) {
		if j := s.categoryIndexLocked(categoryID); j >= 0 {
			s.categories = append(s.categories[:j], s.categories[j+1:]...)
			s.bumpLocked(t.k)
			s.regroupLocked()
		}
	}
	s.mu.Unlock()
	s.signal()
	return nil
}

func insertAt[T any](xs []T, i int, v T) []T {
	if i > len(xs) {
		i = len(xs)
	}
	xs = append(xs, v)
	copy(xs[i+1:], xs[i:])
	xs[i] = v
	return xs
}

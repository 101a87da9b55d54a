package syncer

import (
	"context"
	"net/http"

	"golang.org/x/sync/errgroup"

	"grocer-cli/internal/gateway"
	"grocer-cli/internal/model"
)

// Refresh fetches the list details, categories and items in parallel and
// replaces the canonical state. Entities written locally after the refresh
// began keep their local value, so a refresh never undoes an in-flight edit
// or resurrects a delete. A silent refresh leaves Loading untouched.
func (s *Synchronizer) Refresh(ctx context.Context, silent bool) error {
	s.mu.Lock()
	if s.listID == 0 {
		s.mu.Unlock()
		return gateway.Precondition(NoListError{}.Error(), NoListError{})
	}
	listID, epoch, start := s.listID, s.epoch, s.clock
	if !silent {
		s.loading = true
	}
	s.mu.Unlock()
	if !silent {
		s.signal()
	}

	var (
		list  model.List
		cats  []model.Category
		items []model.Item
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		list, err = s.gw.GetList(gctx, listID)
		return err
	})
	g.Go(func() error {
		var err error
		cats, err = s.gw.Categories(gctx, listID)
		return err
	})
	g.Go(func() error {
		var err error
		items, err = s.gw.Items(gctx, listID)
		return err
	})
	err := g.Wait()
	s.metrics.Refresh(silent, err)

	s.mu.Lock()
	if s.closed || s.epoch != epoch {
		s.mu.Unlock()
		s.log.Debug("dropping stale refresh result", "list_id", listID)
		return nil
	}
	if !silent {
		s.loading = false
	}
	if err != nil {
		if ctx.Err() == nil {
			s.err = refreshMessage(err)
		}
		s.mu.Unlock()
		s.signal()
		s.log.Warn("refresh failed", "list_id", listID, "silent", silent, "err", err)
		if gateway.IsAuth(err) && s.onAuthFail != nil {
			s.onAuthFail()
		}
		return err
	}
	s.applyLocked(start, list, cats, items)
	if !silent {
		s.err = ""
	}
	s.mu.Unlock()
	s.signal()
	return nil
}

func refreshMessage(err error) string {
	if gateway.IsAuth(err) {
		return "Your session may have expired. Please log in again."
	}
	switch gateway.StatusOf(err) {
	case http.StatusForbidden:
		return "You do not have permission to access this list."
	case http.StatusNotFound:
		return "List not found."
	}
	return "Failed to load list: " + gateway.Message(err)
}

func (s *Synchronizer) applyLocked(start uint64, list model.List, cats []model.Category, items []model.Item) {
	s.list = &list
	s.clock++
	fresh := s.clock
	s.categories = merge(kindCategory, cats, s.categories, func(c model.Category) int64 { return c.ID }, s.rev, s.synced, start, fresh)
	s.items = merge(kindItem, items, s.items, func(it model.Item) int64 { return it.ID }, s.rev, s.synced, start, fresh)
	if s.editing != 0 && s.itemIndexLocked(s.editing) < 0 {
		s.editing = 0
	}
	s.regroupLocked()
}

// merge replaces local with fetched except where rev shows a local write
// after start. Pending creates (negative ids) are always kept. Replaced
// entities are stamped in synced; dropped ones lose their rev entry so older
// in-flight operations no longer own them.
func merge[T any](k kind, fetched, local []T, idOf func(T) int64, rev, synced map[key]uint64, start, fresh uint64) []T {
	localByID := make(map[int64]T, len(local))
	for _, e := range local {
		localByID[idOf(e)] = e
	}
	out := make([]T, 0, len(fetched))
	seen := make(map[int64]bool, len(fetched))
	for _, e := range fetched {
		id := idOf(e)
		if seen[id] {
			continue
		}
		seen[id] = true
		kk := key{k, id}
		if rev[kk] > start {
			if le, ok := localByID[id]; ok {
				out = append(out, le)
			}
			continue
		}
		synced[kk] = fresh
		out = append(out, e)
	}
	for _, e := range local {
		id := idOf(e)
		if seen[id] {
			continue
		}
		kk := key{k, id}
		if id < 0 || rev[kk] > start {
			out = append(out, e)
			continue
		}
		delete(rev, kk)
		delete(synced, kk)
	}
	for kk, r := range rev {
		if kk.kind == k && r <= start && !seen[kk.id] {
			if _, ok := localByID[kk.id]; !ok {
				delete(rev, kk)
				delete(synced, kk)
			}
		}
	}
	return out
}

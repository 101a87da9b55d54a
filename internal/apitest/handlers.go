package apitest

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strings"

	"grocer-cli/internal/model"
)

type userKey struct{}

func withUser(ctx context.Context, uid int64) context.Context {
	return context.WithValue(ctx, userKey{}, uid)
}

func userFrom(r *http.Request) int64 {
	uid, _ := r.Context().Value(userKey{}).(int64)
	return uid
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "Invalid request body")
		return false
	}
	return true
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid form")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.users[r.PostForm.Get("username")]
	if !ok || rec.password != r.PostForm.Get("password") {
		writeDetail(w, http.StatusUnauthorized, "Incorrect username or password")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"access_token": s.issueLocked(rec.user), "token_type": "bearer"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.userByIDLocked(userFrom(r))
	if !ok {
		writeDetail(w, http.StatusUnauthorized, "Could not validate credentials")
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// --- lists ---

func (s *Server) handleLists(w http.ResponseWriter, r *http.Request) {
	uid := userFrom(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.List{}
	for _, l := range s.lists {
		if l.HasMember(uid) {
			out = append(out, copyList(l))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateList(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Name     string         `json:"name"`
		ListType model.ListType `json:"list_type"`
	}
	if !decode(w, r, &in) {
		return
	}
	if strings.TrimSpace(in.Name) == "" {
		writeDetail(w, http.StatusUnprocessableEntity, "List name is required")
		return
	}
	if in.ListType == "" {
		in.ListType = model.ListTypePrivate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	owner, _ := s.userByIDLocked(userFrom(r))
	l := &model.List{ID: s.id(), Name: strings.TrimSpace(in.Name), ListType: in.ListType, Owner: owner, Members: []model.Member{{User: owner}}}
	s.lists[l.ID] = l
	writeJSON(w, http.StatusCreated, copyList(l))
}

func (s *Server) handleGetList(w http.ResponseWriter, r *http.Request) {
	listID, _ := pathID(r, "id")
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.listForUserLocked(w, listID, userFrom(r))
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, copyList(l))
}

func (s *Server) handleUpdateList(w http.ResponseWriter, r *http.Request) {
	listID, _ := pathID(r, "id")
	var in struct {
		Name     *string         `json:"name"`
		ListType *model.ListType `json:"list_type"`
	}
	if !decode(w, r, &in) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.listForUserLocked(w, listID, userFrom(r))
	if !ok {
		return
	}
	if !l.IsOwner(userFrom(r)) {
		writeDetail(w, http.StatusForbidden, "Only the list owner can update the list")
		return
	}
	if in.Name != nil {
		l.Name = strings.TrimSpace(*in.Name)
	}
	if in.ListType != nil {
		l.ListType = *in.ListType
	}
	writeJSON(w, http.StatusOK, copyList(l))
}

func (s *Server) handleDeleteList(w http.ResponseWriter, r *http.Request) {
	listID, _ := pathID(r, "id")
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.listForUserLocked(w, listID, userFrom(r))
	if !ok {
		return
	}
	if !l.IsOwner(userFrom(r)) {
		writeDetail(w, http.StatusForbidden, "Only the list owner can delete the list")
		return
	}
	delete(s.lists, listID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAddMember(w http.ResponseWriter, r *http.Request) {
	listID, _ := pathID(r, "id")
	var in struct {
		Username string `json:"username"`
	}
	if !decode(w, r, &in) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.listForUserLocked(w, listID, userFrom(r))
	if !ok {
		return
	}
	if !l.IsOwner(userFrom(r)) {
		writeDetail(w, http.StatusForbidden, "Only the list owner can add members")
		return
	}
	rec, ok := s.users[in.Username]
	if !ok {
		writeDetail(w, http.StatusNotFound, errorf("User '%s' not found", in.Username))
		return
	}
	if l.HasMember(rec.user.ID) {
		writeDetail(w, http.StatusBadRequest, errorf("User '%s' is already a member of this list", in.Username))
		return
	}
	m := model.Member{User: rec.user}
	l.Members = append(l.Members, m)
	writeJSON(w, http.StatusCreated, m)
}

func (s *Server) handleRemoveMember(w http.ResponseWriter, r *http.Request) {
	listID, _ := pathID(r, "id")
	target, _ := pathID(r, "userId")
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.listForUserLocked(w, listID, userFrom(r))
	if !ok {
		return
	}
	if !l.IsOwner(userFrom(r)) {
		writeDetail(w, http.StatusForbidden, "Only the list owner can remove members")
		return
	}
	if l.IsOwner(target) {
		writeDetail(w, http.StatusBadRequest, "Cannot remove the list owner")
		return
	}
	for i, m := range l.Members {
		if m.User.ID == target {
			l.Members = append(l.Members[:i], l.Members[i+1:]...)
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	writeDetail(w, http.StatusNotFound, "Member not found in this list")
}

// --- categories ---

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	listID, _ := pathID(r, "id")
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.listForUserLocked(w, listID, userFrom(r)); !ok {
		return
	}
	out := []model.Category{}
	for _, c := range s.cats {
		if c.ListID == listID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	writeJSON(w, http.StatusOK, map[string]any{"categories": out})
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	listID, _ := pathID(r, "id")
	var in struct {
		Name string `json:"name"`
	}
	if !decode(w, r, &in) {
		return
	}
	if strings.TrimSpace(in.Name) == "" {
		writeDetail(w, http.StatusUnprocessableEntity, "Category name is required")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.listForUserLocked(w, listID, userFrom(r)); !ok {
		return
	}
	c := &model.Category{ID: s.id(), Name: strings.TrimSpace(in.Name), ListID: listID}
	s.cats[c.ID] = c
	writeJSON(w, http.StatusCreated, *c)
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	listID, _ := pathID(r, "id")
	catID, _ := pathID(r, "catId")
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.listForUserLocked(w, listID, userFrom(r)); !ok {
		return
	}
	c, ok := s.cats[catID]
	if !ok || c.ListID != listID {
		writeDetail(w, http.StatusNotFound, "Category not found")
		return
	}
	for _, it := range s.items {
		if it.Category.ID == catID {
			writeDetail(w, http.StatusBadRequest, "Cannot delete a category that still has items")
			return
		}
	}
	delete(s.cats, catID)
	w.WriteHeader(http.StatusNoContent)
}

// --- items ---

func (s *Server) handleItems(w http.ResponseWriter, r *http.Request) {
	listID, err := parseInt(r.URL.Query().Get("list_id"))
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "list_id is required")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.listForUserLocked(w, listID, userFrom(r)); !ok {
		return
	}
	out := []model.Item{}
	for _, it := range s.items {
		if it.ListID == listID {
			out = append(out, it.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	writeJSON(w, http.StatusOK, map[string]any{"items": out})
}

func (s *Server) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Name       string  `json:"name"`
		Note       *string `json:"note"`
		CategoryID int64   `json:"category_id"`
		PriceMatch bool    `json:"price_match"`
		ListID     int64   `json:"list_id"`
	}
	if !decode(w, r, &in) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cats[in.CategoryID]
	if !ok {
		writeDetail(w, http.StatusNotFound, errorf("Category with id %d not found", in.CategoryID))
		return
	}
	if _, ok := s.listForUserLocked(w, c.ListID, userFrom(r)); !ok {
		return
	}
	it := &model.Item{
		ID:         s.id(),
		Name:       strings.TrimSpace(in.Name),
		Note:       in.Note,
		Category:   model.CategoryRef{ID: c.ID, Name: c.Name},
		PriceMatch: in.PriceMatch,
		ListID:     c.ListID,
	}
	s.items[it.ID] = it
	writeJSON(w, http.StatusCreated, it.Clone())
}

func (s *Server) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	itemID, _ := pathID(r, "id")
	var in struct {
		Name       *string         `json:"name"`
		Note       json.RawMessage `json:"note"`
		CategoryID *int64          `json:"category_id"`
		PriceMatch *bool           `json:"price_match"`
		IsTicked   *bool           `json:"is_ticked"`
	}
	if !decode(w, r, &in) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[itemID]
	if !ok {
		writeDetail(w, http.StatusNotFound, "Item not found")
		return
	}
	if _, ok := s.listForUserLocked(w, it.ListID, userFrom(r)); !ok {
		return
	}
	if in.Name != nil {
		it.Name = strings.TrimSpace(*in.Name)
	}
	if len(in.Note) > 0 {
		var note *string
		_ = json.Unmarshal(in.Note, &note)
		it.Note = note
	}
	if in.CategoryID != nil {
		if _, ok := s.cats[*in.CategoryID]; !ok {
			writeDetail(w, http.StatusNotFound, "Category not found")
			return
		}
		it.Category = s.catRefLocked(*in.CategoryID)
	}
	if in.PriceMatch != nil {
		it.PriceMatch = *in.PriceMatch
	}
	if in.IsTicked != nil {
		it.IsTicked = *in.IsTicked
	}
	writeJSON(w, http.StatusOK, it.Clone())
}

func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	itemID, _ := pathID(r, "id")
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[itemID]
	if !ok {
		writeDetail(w, http.StatusNotFound, "Item not found")
		return
	}
	if _, ok := s.listForUserLocked(w, it.ListID, userFrom(r)); !ok {
		return
	}
	delete(s.items, itemID)
	w.WriteHeader(http.StatusNoContent)
}

// --- chat ---

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Messages []model.ChatMessage `json:"messages"`
		ListID   int64               `json:"list_id"`
	}
	if !decode(w, r, &in) {
		return
	}
	s.mu.Lock()
	fn := s.chatReply
	s.mu.Unlock()

	var content string
	var mutated *bool
	if fn != nil {
		content, mutated = fn(in.Messages, in.ListID)
	} else {
		content = s.defaultChat(in.Messages, in.ListID)
	}
	resp := map[string]any{"message": model.ChatMessage{Role: model.RoleAssistant, Content: content}}
	if mutated != nil {
		resp["mutated"] = *mutated
	}
	writeJSON(w, http.StatusOK, resp)
}

// defaultChat understands "add <name>" and echoes anything else.
func (s *Server) defaultChat(msgs []model.ChatMessage, listID int64) string {
	last := ""
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == model.RoleUser {
			last = strings.TrimSpace(msgs[i].Content)
			break
		}
	}
	if name, ok := strings.CutPrefix(strings.ToLower(last), "add "); ok && strings.TrimSpace(name) != "" {
		s.mu.Lock()
		defer s.mu.Unlock()
		var cat *model.Category
		for _, c := range s.cats {
			if c.ListID == listID && (cat == nil || c.ID < cat.ID) {
				cat = c
			}
		}
		if cat == nil {
			cat = &model.Category{ID: s.id(), Name: "Misc", ListID: listID}
			s.cats[cat.ID] = cat
		}
		it := &model.Item{ID: s.id(), Name: strings.TrimSpace(name), ListID: listID, Category: model.CategoryRef{ID: cat.ID, Name: cat.Name}}
		s.items[it.ID] = it
		return errorf("Added %s to %s.", it.Name, cat.Name)
	}
	return errorf("Acknowledged: '%s'.", last)
}

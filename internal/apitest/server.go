// Package apitest runs an in-memory grocery backend for tests. Routes match
// the REST contract the gateway speaks, with hooks to fail or stall a route.
package apitest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"grocer-cli/internal/model"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
)

const signingKey = "apitest-secret"

type failure struct {
	status int
	detail string
	times  int // <= 0 means until cleared
}

type Server struct {
	*httptest.Server

	mu        sync.Mutex
	nextID    int64
	users     map[string]userRec // by username
	tokens    map[string]int64   // token -> user id
	lists     map[int64]*model.List
	cats      map[int64]*model.Category
	items     map[int64]*model.Item
	failures  map[string]*failure
	holds     map[string]chan struct{}
	holdSeen  chan struct{}
	calls     map[string]int
	chatReply func(msgs []model.ChatMessage, listID int64) (string, *bool)
	tokenTTL  time.Duration
}

type userRec struct {
	user     model.User
	password string
}

func New() *Server {
	s := &Server{
		nextID:   100,
		users:    map[string]userRec{},
		tokens:   map[string]int64{},
		lists:    map[int64]*model.List{},
		cats:     map[int64]*model.Category{},
		items:    map[int64]*model.Item{},
		failures: map[string]*failure{},
		holds:    map[string]chan struct{}{},
		calls:    map[string]int{},
		tokenTTL: time.Hour,
	}

	r := mux.NewRouter()
	r.Use(s.instrument)
	r.HandleFunc("/login/token", s.handleLogin).Methods(http.MethodPost)

	api := r.NewRoute().Subrouter()
	api.Use(s.requireAuth)
	api.HandleFunc("/users/me", s.handleMe).Methods(http.MethodGet)
	api.HandleFunc("/lists/", s.handleLists).Methods(http.MethodGet)
	api.HandleFunc("/lists/", s.handleCreateList).Methods(http.MethodPost)
	api.HandleFunc("/lists/{id}", s.handleGetList).Methods(http.MethodGet)
	api.HandleFunc("/lists/{id}", s.handleUpdateList).Methods(http.MethodPut)
	api.HandleFunc("/lists/{id}", s.handleDeleteList).Methods(http.MethodDelete)
	api.HandleFunc("/lists/{id}/members", s.handleAddMember).Methods(http.MethodPost)
	api.HandleFunc("/lists/{id}/members/{userId}", s.handleRemoveMember).Methods(http.MethodDelete)
	api.HandleFunc("/lists/{id}/categories/", s.handleCategories).Methods(http.MethodGet)
	api.HandleFunc("/lists/{id}/categories/", s.handleCreateCategory).Methods(http.MethodPost)
	api.HandleFunc("/lists/{id}/categories/{catId}", s.handleDeleteCategory).Methods(http.MethodDelete)
	api.HandleFunc("/items/", s.handleItems).Methods(http.MethodGet)
	api.HandleFunc("/items/", s.handleCreateItem).Methods(http.MethodPost)
	api.HandleFunc("/items/{id}", s.handleUpdateItem).Methods(http.MethodPut)
	api.HandleFunc("/items/{id}", s.handleDeleteItem).Methods(http.MethodDelete)
	api.HandleFunc("/chat/", s.handleChat).Methods(http.MethodPost)

	s.Server = httptest.NewServer(r)
	return s
}

// --- seeding + hooks ---

func (s *Server) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *Server) AddUser(username, password string) model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := model.User{ID: s.id(), Username: username}
	s.users[username] = userRec{user: u, password: password}
	return u
}

// Token issues a valid bearer token for username without a login round trip.
func (s *Server) Token(username string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issueLocked(s.users[username].user)
}

// SignToken signs a token for userID with an explicit expiry. The token is not
// registered, so the server rejects it.
func SignToken(userID int64, exp time.Time) string {
	return signToken(userID, exp, "")
}

func signToken(userID int64, exp time.Time, jti string) string {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ID:        jti,
		Subject:   strconv.FormatInt(userID, 10),
		ExpiresAt: jwt.NewNumericDate(exp),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	})
	out, _ := tok.SignedString([]byte(signingKey))
	return out
}

func (s *Server) issueLocked(u model.User) string {
	// jti keeps tokens distinct within the same second.
	tok := signToken(u.ID, time.Now().Add(s.tokenTTL), strconv.FormatInt(s.id(), 10))
	s.tokens[tok] = u.ID
	return tok
}

// RevokeAll invalidates every issued token (next call gets 401).
func (s *Server) RevokeAll() {
	s.mu.Lock()
	s.tokens = map[string]int64{}
	s.mu.Unlock()
}

func (s *Server) AddList(owner model.User, name string, typ model.ListType) model.List {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := &model.List{ID: s.id(), Name: name, ListType: typ, Owner: owner, Members: []model.Member{{User: owner}}}
	s.lists[l.ID] = l
	return *l
}

func (s *Server) AddCategory(listID int64, name string) model.Category {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := &model.Category{ID: s.id(), Name: name, ListID: listID}
	s.cats[c.ID] = c
	return *c
}

func (s *Server) AddItem(listID, categoryID int64, name string) model.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	it := &model.Item{ID: s.id(), Name: name, ListID: listID, Category: s.catRefLocked(categoryID)}
	s.items[it.ID] = it
	return it.Clone()
}

// RemoveItem deletes an item behind the client's back.
func (s *Server) RemoveItem(id int64) {
	s.mu.Lock()
	delete(s.items, id)
	s.mu.Unlock()
}

// Fail makes the route ("METHOD /template", e.g. "PUT /items/{id}") answer
// status with detail. times <= 0 fails until ClearFailures.
func (s *Server) Fail(route string, status int, detail string, times int) {
	s.mu.Lock()
	s.failures[route] = &failure{status: status, detail: detail, times: times}
	s.mu.Unlock()
}

func (s *Server) ClearFailures() {
	s.mu.Lock()
	s.failures = map[string]*failure{}
	s.mu.Unlock()
}

// Hold stalls every request to route until the returned release func is called.
// Arrived reports (once per request) when a held request reaches the server.
func (s *Server) Hold(route string) (arrived <-chan struct{}, release func()) {
	gate := make(chan struct{})
	seen := make(chan struct{}, 16)
	s.mu.Lock()
	s.holds[route] = gate
	s.holdSeen = seen
	s.mu.Unlock()
	var once sync.Once
	return seen, func() {
		once.Do(func() {
			s.mu.Lock()
			if s.holds[route] == gate {
				delete(s.holds, route)
			}
			s.mu.Unlock()
			close(gate)
		})
	}
}

// Calls returns how many requests reached route.
func (s *Server) Calls(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[route]
}

// TotalCalls counts every request the server has seen.
func (s *Server) TotalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}

// SetChatReply overrides the assistant. The returned flag, when non-nil, is
// sent as the structured "mutated" field.
func (s *Server) SetChatReply(fn func(msgs []model.ChatMessage, listID int64) (string, *bool)) {
	s.mu.Lock()
	s.chatReply = fn
	s.mu.Unlock()
}

// Items returns the server-side items of listID sorted by id.
func (s *Server) Items(listID int64) []model.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Item
	for _, it := range s.items {
		if it.ListID == listID {
			out = append(out, it.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// --- middleware ---

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tmpl := r.URL.Path
		if cr := mux.CurrentRoute(r); cr != nil {
			if t, err := cr.GetPathTemplate(); err == nil {
				tmpl = t
			}
		}
		key := r.Method + " " + tmpl

		s.mu.Lock()
		s.calls[key]++
		gate := s.holds[key]
		seen := s.holdSeen
		var fail *failure
		if f := s.failures[key]; f != nil {
			fail = f
			if f.times > 0 {
				f.times--
				if f.times == 0 {
					delete(s.failures, key)
				}
			}
		}
		s.mu.Unlock()

		if gate != nil {
			if seen != nil {
				select {
				case seen <- struct{}{}:
				default:
				}
			}
			<-gate
		}
		if fail != nil {
			writeDetail(w, fail.status, fail.detail)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := r.Header.Get("Authorization")
		tok := strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
		s.mu.Lock()
		uid, ok := s.tokens[tok]
		s.mu.Unlock()
		if !strings.HasPrefix(h, "Bearer ") || !ok {
			writeDetail(w, http.StatusUnauthorized, "Could not validate credentials")
			return
		}
		next.ServeHTTP(w, r.WithContext(withUser(r.Context(), uid)))
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func pathID(r *http.Request, key string) (int64, bool) {
	n, err := strconv.ParseInt(mux.Vars(r)[key], 10, 64)
	return n, err == nil
}

func (s *Server) catRefLocked(id int64) model.CategoryRef {
	if c, ok := s.cats[id]; ok {
		return model.CategoryRef{ID: c.ID, Name: c.Name}
	}
	return model.CategoryRef{ID: id}
}

func (s *Server) userByIDLocked(id int64) (model.User, bool) {
	for _, u := range s.users {
		if u.user.ID == id {
			return u.user, true
		}
	}
	return model.User{}, false
}

func (s *Server) listForUserLocked(w http.ResponseWriter, listID, uid int64) (*model.List, bool) {
	l, ok := s.lists[listID]
	if !ok {
		writeDetail(w, http.StatusNotFound, "List not found")
		return nil, false
	}
	if !l.HasMember(uid) {
		writeDetail(w, http.StatusForbidden, "Not authorized to access this list")
		return nil, false
	}
	return l, true
}

func copyList(l *model.List) model.List {
	out := *l
	out.Members = append([]model.Member(nil), l.Members...)
	return out
}

func errorf(format string, args ...any) string { return fmt.Sprintf(format, args...) }

func parseInt(s string) (int64, error) { return strconv.ParseInt(strings.TrimSpace(s), 10, 64) }

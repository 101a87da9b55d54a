package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"grocer-cli/internal/model"
)

// Deleted is the success marker returned by delete calls, including 204 responses.
type Deleted struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func deleted(kind string) Deleted {
	return Deleted{Success: true, Message: kind + " deleted successfully."}
}

func id(n int64) string { return strconv.FormatInt(n, 10) }

// --- auth ---

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Login exchanges credentials for a bearer token. It does not attach the token.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)
	var out tokenResponse
	if _, err := c.do(ctx, request{method: http.MethodPost, route: "/login/token", path: "/login/token", form: form}, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.AccessToken) == "" {
		return "", &Error{Kind: KindNetwork, Status: http.StatusOK, Message: msgMalformed, Err: errors.New("missing access_token")}
	}
	return out.AccessToken, nil
}

// Me resolves the identity behind the attached token.
func (c *Client) Me(ctx context.Context) (model.User, error) {
	var u model.User
	if _, err := c.do(ctx, request{method: http.MethodGet, route: "/users/me", path: "/users/me"}, &u); err != nil {
		return model.User{}, err
	}
	if u.ID == 0 || strings.TrimSpace(u.Username) == "" {
		return model.User{}, &Error{Kind: KindNetwork, Status: http.StatusOK, Message: msgMalformed, Err: errors.New("user without id/username")}
	}
	return u, nil
}

// --- lists ---

type ListCreate struct {
	Name     string         `json:"name"`
	ListType model.ListType `json:"list_type"`
}

// ListPatch carries only the list fields that changed.
type ListPatch struct {
	Name     *string         `json:"name,omitempty"`
	ListType *model.ListType `json:"list_type,omitempty"`
}

func (p ListPatch) Empty() bool { return p.Name == nil && p.ListType == nil }

func (c *Client) Lists(ctx context.Context) ([]model.List, error) {
	var out []model.List
	if _, err := c.do(ctx, request{method: http.MethodGet, route: "/lists/", path: "/lists/"}, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []model.List{}
	}
	return out, nil
}

func (c *Client) GetList(ctx context.Context, listID int64) (model.List, error) {
	var out model.List
	_, err := c.do(ctx, request{method: http.MethodGet, route: "/lists/{id}", path: "/lists/" + id(listID)}, &out)
	return out, err
}

func (c *Client) CreateList(ctx context.Context, in ListCreate) (model.List, error) {
	var out model.List
	_, err := c.do(ctx, request{method: http.MethodPost, route: "/lists/", path: "/lists/", json: in}, &out)
	return out, err
}

func (c *Client) UpdateList(ctx context.Context, listID int64, p ListPatch) (model.List, error) {
	var out model.List
	_, err := c.do(ctx, request{method: http.MethodPut, route: "/lists/{id}", path: "/lists/" + id(listID), json: p}, &out)
	return out, err
}

func (c *Client) DeleteList(ctx context.Context, listID int64) (Deleted, error) {
	if _, err := c.do(ctx, request{method: http.MethodDelete, route: "/lists/{id}", path: "/lists/" + id(listID)}, nil); err != nil {
		return Deleted{}, err
	}
	return deleted("List"), nil
}

func (c *Client) AddMember(ctx context.Context, listID int64, username string) (model.Member, error) {
	var out model.Member
	body := map[string]string{"username": username}
	_, err := c.do(ctx, request{method: http.MethodPost, route: "/lists/{id}/members", path: "/lists/" + id(listID) + "/members", json: body}, &out)
	return out, err
}

func (c *Client) RemoveMember(ctx context.Context, listID, userID int64) (Deleted, error) {
	path := "/lists/" + id(listID) + "/members/" + id(userID)
	if _, err := c.do(ctx, request{method: http.MethodDelete, route: "/lists/{id}/members/{userId}", path: path}, nil); err != nil {
		return Deleted{}, err
	}
	return deleted("Member"), nil
}

// --- categories ---

func (c *Client) Categories(ctx context.Context, listID int64) ([]model.Category, error) {
	var out struct {
		Categories []model.Category `json:"categories"`
	}
	path := "/lists/" + id(listID) + "/categories/"
	if _, err := c.do(ctx, request{method: http.MethodGet, route: "/lists/{id}/categories/", path: path}, &out); err != nil {
		return nil, err
	}
	cats := out.Categories
	if cats == nil {
		cats = []model.Category{}
	}
	for i := range cats {
		if cats[i].ListID == 0 {
			cats[i].ListID = listID
		}
	}
	return cats, nil
}

func (c *Client) CreateCategory(ctx context.Context, listID int64, name string) (model.Category, error) {
	var out model.Category
	path := "/lists/" + id(listID) + "/categories/"
	body := map[string]string{"name": name}
	if _, err := c.do(ctx, request{method: http.MethodPost, route: "/lists/{id}/categories/", path: path, json: body}, &out); err != nil {
		return model.Category{}, err
	}
	if out.ListID == 0 {
		out.ListID = listID
	}
	return out, nil
}

func (c *Client) DeleteCategory(ctx context.Context, listID, categoryID int64) (Deleted, error) {
	path := "/lists/" + id(listID) + "/categories/" + id(categoryID)
	if _, err := c.do(ctx, request{method: http.MethodDelete, route: "/lists/{id}/categories/{catId}", path: path}, nil); err != nil {
		return Deleted{}, err
	}
	return deleted("Category"), nil
}

// --- items ---

type ItemCreate struct {
	Name       string  `json:"name"`
	Note       *string `json:"note"`
	CategoryID int64   `json:"category_id"`
	PriceMatch bool    `json:"price_match"`
	ListID     int64   `json:"list_id,omitempty"`
}

// ItemPatch carries only changed item fields. A non-nil Note pointing at ""
// clears the note (sent as null).
type ItemPatch struct {
	Name       *string
	Note       *string
	CategoryID *int64
	PriceMatch *bool
	IsTicked   *bool
}

func (p ItemPatch) Empty() bool {
	return p.Name == nil && p.Note == nil && p.CategoryID == nil && p.PriceMatch == nil && p.IsTicked == nil
}

func (p ItemPatch) MarshalJSON() ([]byte, error) {
	m := map[string]any{}
	if p.Name != nil {
		m["name"] = *p.Name
	}
	if p.Note != nil {
		if *p.Note == "" {
			m["note"] = nil
		} else {
			m["note"] = *p.Note
		}
	}
	if p.CategoryID != nil {
		m["category_id"] = *p.CategoryID
	}
	if p.PriceMatch != nil {
		m["price_match"] = *p.PriceMatch
	}
	if p.IsTicked != nil {
		m["is_ticked"] = *p.IsTicked
	}
	return json.Marshal(m)
}

// Apply merges p into it. cats resolves a changed category id to its name;
// an unknown id keeps the id with an empty name.
func (p ItemPatch) Apply(it model.Item, cats []model.Category) model.Item {
	out := it.Clone()
	if p.Name != nil {
		out.Name = *p.Name
	}
	if p.Note != nil {
		if *p.Note == "" {
			out.Note = nil
		} else {
			n := *p.Note
			out.Note = &n
		}
	}
	if p.CategoryID != nil {
		out.Category = model.CategoryRef{ID: *p.CategoryID}
		for _, c := range cats {
			if c.ID == *p.CategoryID {
				out.Category.Name = c.Name
				break
			}
		}
	}
	if p.PriceMatch != nil {
		out.PriceMatch = *p.PriceMatch
	}
	if p.IsTicked != nil {
		out.IsTicked = *p.IsTicked
	}
	return out
}

func (c *Client) Items(ctx context.Context, listID int64) ([]model.Item, error) {
	var out struct {
		Items []model.Item `json:"items"`
	}
	q := url.Values{}
	q.Set("list_id", id(listID))
	if _, err := c.do(ctx, request{method: http.MethodGet, route: "/items/", path: "/items/", query: q}, &out); err != nil {
		return nil, err
	}
	items := out.Items
	if items == nil {
		items = []model.Item{}
	}
	for i := range items {
		normalizeItem(&items[i])
	}
	return items, nil
}

// normalizeItem folds an empty note into no note. The edit form and
// ItemPatch treat the two as one value.
func normalizeItem(it *model.Item) {
	if it.Note != nil && *it.Note == "" {
		it.Note = nil
	}
}

func (c *Client) CreateItem(ctx context.Context, in ItemCreate) (model.Item, error) {
	var out model.Item
	_, err := c.do(ctx, request{method: http.MethodPost, route: "/items/", path: "/items/", json: in}, &out)
	normalizeItem(&out)
	return out, err
}

func (c *Client) UpdateItem(ctx context.Context, itemID int64, p ItemPatch) (model.Item, error) {
	var out model.Item
	_, err := c.do(ctx, request{method: http.MethodPut, route: "/items/{id}", path: "/items/" + id(itemID), json: p}, &out)
	normalizeItem(&out)
	return out, err
}

func (c *Client) DeleteItem(ctx context.Context, itemID int64) (Deleted, error) {
	if _, err := c.do(ctx, request{method: http.MethodDelete, route: "/items/{id}", path: "/items/" + id(itemID)}, nil); err != nil {
		return Deleted{}, err
	}
	return deleted("Item"), nil
}

// --- chat ---

type ChatRequest struct {
	Messages []model.ChatMessage `json:"messages"`
	ListID   int64               `json:"list_id"`
}

// ChatReply is the assistant turn. Mutated is set only by backends that
// report state changes explicitly.
type ChatReply struct {
	Message model.ChatMessage `json:"message"`
	Mutated *bool             `json:"mutated,omitempty"`
}

func (c *Client) Chat(ctx context.Context, in ChatRequest) (ChatReply, error) {
	var out ChatReply
	if _, err := c.do(ctx, request{method: http.MethodPost, route: "/chat/", path: "/chat/", json: in}, &out); err != nil {
		return ChatReply{}, err
	}
	if out.Message.Role == "" {
		out.Message.Role = model.RoleAssistant
	}
	return out, nil
}

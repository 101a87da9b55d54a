package gateway_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"grocer-cli/internal/apitest"
	"grocer-cli/internal/gateway"
	"grocer-cli/internal/model"
)

func newBackend(t *testing.T) (*apitest.Server, model.User) {
	t.Helper()
	srv := apitest.New()
	t.Cleanup(srv.Close)
	u := srv.AddUser("ada", "pw")
	return srv, u
}

func TestLoginAndMe(t *testing.T) {
	srv, u := newBackend(t)
	c := gateway.New(srv.URL)
	ctx := context.Background()

	tok, err := c.Login(ctx, "ada", "pw")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	c.SetToken(tok)
	me, err := c.Me(ctx)
	if err != nil {
		t.Fatalf("me: %v", err)
	}
	if me != u {
		t.Fatalf("me: got %+v want %+v", me, u)
	}
}

func TestLoginFailureCarriesDetail(t *testing.T) {
	srv, _ := newBackend(t)
	c := gateway.New(srv.URL)

	_, err := c.Login(context.Background(), "ada", "nope")
	var ge *gateway.Error
	if !errors.As(err, &ge) {
		t.Fatalf("expected *gateway.Error, got %T %v", err, err)
	}
	if ge.Status != http.StatusUnauthorized || ge.Message != "Incorrect username or password" {
		t.Fatalf("unexpected error: %+v", ge)
	}
}

func TestUnauthenticatedCallIsAuthKind(t *testing.T) {
	srv, _ := newBackend(t)
	c := gateway.New(srv.URL)

	_, err := c.Lists(context.Background())
	if !gateway.IsAuth(err) {
		t.Fatalf("expected auth error, got %v", err)
	}
}

func TestCategoryAndItemRoundTrip(t *testing.T) {
	srv, u := newBackend(t)
	l := srv.AddList(u, "Weekly", model.ListTypePrivate)
	c := gateway.New(srv.URL)
	c.SetToken(srv.Token("ada"))
	ctx := context.Background()

	cat, err := c.CreateCategory(ctx, l.ID, "Dairy")
	if err != nil {
		t.Fatalf("create category: %v", err)
	}
	if cat.ListID != l.ID {
		t.Fatalf("category list id: got %d want %d", cat.ListID, l.ID)
	}
	it, err := c.CreateItem(ctx, gateway.ItemCreate{Name: "Milk", CategoryID: cat.ID, ListID: l.ID})
	if err != nil {
		t.Fatalf("create item: %v", err)
	}
	if it.Category.Name != "Dairy" {
		t.Fatalf("server payload should carry category name, got %+v", it.Category)
	}

	tick := true
	upd, err := c.UpdateItem(ctx, it.ID, gateway.ItemPatch{IsTicked: &tick})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !upd.IsTicked {
		t.Fatalf("expected ticked item")
	}

	items, err := c.Items(ctx, l.ID)
	if err != nil || len(items) != 1 {
		t.Fatalf("items: %v %+v", err, items)
	}

	del, err := c.DeleteItem(ctx, it.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !del.Success || del.Message == "" {
		t.Fatalf("204 should normalize to a success marker, got %+v", del)
	}
	if _, err := c.DeleteCategory(ctx, l.ID, cat.ID); err != nil {
		t.Fatalf("delete category: %v", err)
	}
}

func TestNetworkFailureIsNormalized(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := gateway.New(url).Lists(context.Background())
	if gateway.KindOf(err) != gateway.KindNetwork {
		t.Fatalf("expected network kind, got %v", err)
	}
	if gateway.Message(err) == "" {
		t.Fatalf("expected a generic message")
	}
}

func TestMalformedBodyIsNetworkKind(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("{not json"))
	}))
	defer srv.Close()

	_, err := gateway.New(srv.URL).Lists(context.Background())
	if gateway.KindOf(err) != gateway.KindNetwork {
		t.Fatalf("expected network kind for malformed body, got %v", err)
	}
}

func TestHeadersAttached(t *testing.T) {
	var gotAuth, gotReqID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotReqID = r.Header.Get("X-Request-ID")
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := gateway.New(srv.URL)
	c.SetToken("tok-1")
	if _, err := c.Lists(context.Background()); err != nil {
		t.Fatalf("lists: %v", err)
	}
	if gotAuth != "Bearer tok-1" {
		t.Fatalf("authorization: got %q", gotAuth)
	}
	if gotReqID == "" {
		t.Fatalf("expected X-Request-ID")
	}

	c.SetToken("")
	if _, err := c.Lists(context.Background()); err != nil {
		t.Fatalf("lists: %v", err)
	}
	if gotAuth != "" {
		t.Fatalf("expected detached auth header, got %q", gotAuth)
	}
}

func TestEmptyNoteDecodesAsNoNote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		item := `{"id":7,"name":"Milk","note":"","category":{"id":1,"name":"Dairy"},"list_id":3}`
		if r.Method == http.MethodGet {
			_, _ = w.Write([]byte(`{"items":[` + item + `]}`))
			return
		}
		_, _ = w.Write([]byte(item))
	}))
	defer srv.Close()
	c := gateway.New(srv.URL)
	ctx := context.Background()

	items, err := c.Items(ctx, 3)
	if err != nil {
		t.Fatalf("items: %v", err)
	}
	if len(items) != 1 || items[0].Note != nil {
		t.Fatalf("items: %+v", items)
	}
	tick := true
	upd, err := c.UpdateItem(ctx, 7, gateway.ItemPatch{IsTicked: &tick})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if upd.Note != nil {
		t.Fatalf("note: %q", *upd.Note)
	}
}

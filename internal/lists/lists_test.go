package lists_test

import (
	"context"
	"sync/atomic"
	"testing"

	"grocer-cli/internal/apitest"
	"grocer-cli/internal/gateway"
	"grocer-cli/internal/lists"
	"grocer-cli/internal/model"
)

type fixture struct {
	srv       *apitest.Server
	ada, bob  model.User
	authFails atomic.Int32
	c         *lists.Controller
}

func setup(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{srv: apitest.New()}
	t.Cleanup(f.srv.Close)
	f.ada = f.srv.AddUser("ada", "pw")
	f.bob = f.srv.AddUser("bob", "pw")
	gw := gateway.New(f.srv.URL)
	gw.SetToken(f.srv.Token("ada"))
	f.c = lists.New(gw,
		lists.WithAuthFailure(func() { f.authFails.Add(1) }),
		lists.WithCurrentUser(func() *model.User { u := f.ada; return &u }),
	)
	return f
}

func TestFetch_SortedByName(t *testing.T) {
	f := setup(t)
	f.srv.AddList(f.ada, "weekly", model.ListTypePrivate)
	f.srv.AddList(f.ada, "BBQ", model.ListTypeShared)
	f.srv.AddList(f.ada, "Party", model.ListTypeShared)

	ls, err := f.c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	var got []string
	for _, l := range ls {
		got = append(got, l.Name)
	}
	want := []string{"BBQ", "Party", "weekly"}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
}

func TestCreate_DefaultsToPrivate(t *testing.T) {
	f := setup(t)
	l, err := f.c.Create(context.Background(), "  Groceries ", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if l.Name != "Groceries" || l.ListType != model.ListTypePrivate || l.Owner.ID != f.ada.ID {
		t.Fatalf("created: %+v", l)
	}
	if len(f.c.Lists()) != 1 {
		t.Fatalf("cache not refreshed")
	}
	if _, err := f.c.Create(context.Background(), "x", "public"); gateway.KindOf(err) != gateway.KindPrecondition {
		t.Fatalf("invalid type: %v", err)
	}
}

func TestUpdate_UnchangedIssuesNoRequest(t *testing.T) {
	f := setup(t)
	l := f.srv.AddList(f.ada, "Weekly", model.ListTypePrivate)
	if _, err := f.c.Fetch(context.Background()); err != nil {
		t.Fatal(err)
	}

	_, changed, err := f.c.Update(context.Background(), l.ID, "Weekly", model.ListTypePrivate)
	if err != nil || changed {
		t.Fatalf("changed=%v err=%v", changed, err)
	}
	if n := f.srv.Calls("PUT /lists/{id}"); n != 0 {
		t.Fatalf("unexpected update calls: %d", n)
	}

	got, changed, err := f.c.Update(context.Background(), l.ID, "Weekly", model.ListTypeShared)
	if err != nil || !changed || got.ListType != model.ListTypeShared || got.Name != "Weekly" {
		t.Fatalf("update: %+v changed=%v err=%v", got, changed, err)
	}
}

func TestDiff(t *testing.T) {
	cur := model.List{Name: "Weekly", ListType: model.ListTypePrivate}
	p := lists.Diff(cur, " Monthly ", model.ListTypePrivate)
	if p.Name == nil || *p.Name != "Monthly" || p.ListType != nil {
		t.Fatalf("patch: %+v", p)
	}
	if !lists.Diff(cur, "", "").Empty() {
		t.Fatalf("blank edit should be empty")
	}
}

func TestMembers(t *testing.T) {
	f := setup(t)
	l := f.srv.AddList(f.ada, "Shared", model.ListTypeShared)
	ctx := context.Background()
	if _, err := f.c.Fetch(ctx); err != nil {
		t.Fatal(err)
	}

	if _, err := f.c.AddMember(ctx, l.ID, "bob"); err != nil {
		t.Fatalf("add member: %v", err)
	}
	got, _ := f.c.Find(l.ID)
	if !got.HasMember(f.bob.ID) {
		t.Fatalf("bob not a member: %+v", got.Members)
	}

	if err := f.c.RemoveMember(ctx, l.ID, f.ada.ID); gateway.KindOf(err) != gateway.KindPrecondition {
		t.Fatalf("removing owner: %v", err)
	}
	if n := f.srv.Calls("DELETE /lists/{id}/members/{userId}"); n != 0 {
		t.Fatalf("owner removal reached server")
	}

	if err := f.c.RemoveMember(ctx, l.ID, f.bob.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	got, _ = f.c.Find(l.ID)
	if got.HasMember(f.bob.ID) {
		t.Fatalf("bob still a member")
	}

	if _, err := f.c.AddMember(ctx, l.ID, "nobody"); err == nil {
		t.Fatalf("expected unknown user error")
	} else if f.c.Err() != "Failed to add member: User 'nobody' not found" {
		t.Fatalf("banner: %q", f.c.Err())
	}
}

func TestRemoveMember_SelfRefused(t *testing.T) {
	f := setup(t)
	l := f.srv.AddList(f.bob, "Bob's", model.ListTypeShared)
	err := f.c.RemoveMember(context.Background(), l.ID, f.ada.ID)
	if gateway.KindOf(err) != gateway.KindPrecondition {
		t.Fatalf("expected precondition, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	f := setup(t)
	l := f.srv.AddList(f.ada, "Old", model.ListTypePrivate)
	ctx := context.Background()
	if _, err := f.c.Fetch(ctx); err != nil {
		t.Fatal(err)
	}
	if err := f.c.Delete(ctx, l.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := f.c.Find(l.ID); ok {
		t.Fatalf("list still cached")
	}
}

func TestFetch_UnauthorizedTriggersLogout(t *testing.T) {
	f := setup(t)
	f.srv.RevokeAll()
	if _, err := f.c.Fetch(context.Background()); !gateway.IsAuth(err) {
		t.Fatalf("expected auth error, got %v", err)
	}
	if f.authFails.Load() != 1 {
		t.Fatalf("auth hook not called")
	}
}

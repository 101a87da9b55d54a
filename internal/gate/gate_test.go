package gate_test

import (
	"context"
	"sync"
	"testing"

	"grocer-cli/internal/apitest"
	"grocer-cli/internal/gate"
	"grocer-cli/internal/gateway"
	"grocer-cli/internal/model"
	"grocer-cli/internal/session"
	"grocer-cli/internal/store"
	"grocer-cli/internal/syncer"
)

func TestDecideFor(t *testing.T) {
	cases := []struct {
		st   session.State
		want gate.Decision
	}{
		{session.StateUnknown, gate.Decision{Render: gate.RenderLoading}},
		{session.StateResolving, gate.Decision{Render: gate.RenderLoading}},
		{session.StateAuthenticated, gate.Decision{Render: gate.RenderProtected}},
		{session.StateUnauthenticated, gate.Decision{Render: gate.RenderLogin, Redirect: true}},
	}
	for _, tc := range cases {
		t.Run(tc.st.String(), func(t *testing.T) {
			if got := gate.DecideFor(tc.st); got != tc.want {
				t.Fatalf("got %+v want %+v", got, tc.want)
			}
		})
	}
}

func setup(t *testing.T) (*apitest.Server, *gateway.Client, *session.Session, *gate.Gate) {
	t.Helper()
	srv := apitest.New()
	t.Cleanup(srv.Close)
	srv.AddUser("ada", "pw")
	gw := gateway.New(srv.URL)
	sess := session.New(store.NewMemoryKV(), gw)
	g := gate.New(sess)
	t.Cleanup(g.Close)
	return srv, gw, sess, g
}

func TestGate_LoginThenRepeatedLogoutRedirectsOnce(t *testing.T) {
	_, _, sess, g := setup(t)
	if d := g.Decide(); d.Render != gate.RenderLoading {
		t.Fatalf("initial: %+v", d)
	}
	if !sess.Login(context.Background(), "ada", "pw") {
		t.Fatalf("login: %s", sess.LastError())
	}
	if d := g.Decide(); d.Render != gate.RenderProtected {
		t.Fatalf("after login: %+v", d)
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sess.Logout()
		}()
	}
	wg.Wait()
	sess.Logout()

	if d := g.Decide(); d.Render != gate.RenderLogin || !d.Redirect {
		t.Fatalf("after logout: %+v", d)
	}
	if n := g.RedirectCount(); n != 1 {
		t.Fatalf("redirects: %d", n)
	}
	select {
	case <-g.Redirects():
	default:
		t.Fatalf("redirect not signalled")
	}
}

// A silent refresh that hits a 401 logs the session out and the gate tears
// the protected view down, though the user never asked for that refresh.
func TestGate_UnauthorizedBackgroundRefresh(t *testing.T) {
	srv, gw, sess, g := setup(t)
	ctx := context.Background()
	if !sess.Login(ctx, "ada", "pw") {
		t.Fatalf("login: %s", sess.LastError())
	}
	l := srv.AddList(*sess.User(), "Weekly", model.ListTypePrivate)
	s := syncer.New(gw, syncer.WithAuthFailure(sess.Logout))
	defer s.Close()
	if err := s.Load(ctx, l.ID); err != nil {
		t.Fatalf("load: %v", err)
	}

	srv.RevokeAll()
	if err := s.Refresh(ctx, true); !gateway.IsAuth(err) {
		t.Fatalf("expected auth error, got %v", err)
	}
	if sess.State() != session.StateUnauthenticated {
		t.Fatalf("session: %v", sess.State())
	}
	select {
	case <-g.Redirects():
	default:
		t.Fatalf("redirect not signalled")
	}
	if d := g.Decide(); d.Render != gate.RenderLogin {
		t.Fatalf("decision: %+v", d)
	}
}

package assistant_test

import (
	"context"
	"sync/atomic"
	"testing"

	"grocer-cli/internal/apitest"
	"grocer-cli/internal/assistant"
	"grocer-cli/internal/gateway"
	"grocer-cli/internal/model"
	"grocer-cli/internal/syncer"
)

func setup(t *testing.T) (*apitest.Server, *gateway.Client, model.List) {
	t.Helper()
	srv := apitest.New()
	t.Cleanup(srv.Close)
	u := srv.AddUser("ada", "pw")
	gw := gateway.New(srv.URL)
	gw.SetToken(srv.Token("ada"))
	return srv, gw, srv.AddList(u, "Weekly", model.ListTypePrivate)
}

func TestSend_MutatingReplyRefreshesList(t *testing.T) {
	srv, gw, l := setup(t)
	srv.AddCategory(l.ID, "Dairy")
	s := syncer.New(gw)
	defer s.Close()
	ctx := context.Background()
	if err := s.Load(ctx, l.ID); err != nil {
		t.Fatalf("load: %v", err)
	}

	b := assistant.New(gw, l.ID, func() { _ = s.Refresh(ctx, true) })
	reply, err := b.Send(ctx, "add eggs")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if reply.Role != model.RoleAssistant || reply.Content != "Added eggs to Dairy." {
		t.Fatalf("reply: %+v", reply)
	}
	items := s.Items()
	if len(items) != 1 || items[0].Name != "eggs" {
		t.Fatalf("items after refresh: %+v", items)
	}
	tr := b.Transcript()
	if len(tr) != 2 || tr[0].Role != model.RoleUser || tr[0].Content != "add eggs" {
		t.Fatalf("transcript: %+v", tr)
	}
}

func TestSend_NonMutatingReplySkipsRefresh(t *testing.T) {
	_, gw, l := setup(t)
	var calls atomic.Int32
	b := assistant.New(gw, l.ID, func() { calls.Add(1) })
	if _, err := b.Send(context.Background(), "what is on my list?"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if calls.Load() != 0 {
		t.Fatalf("unexpected refresh")
	}
}

func TestSend_FailureAppendsErrorTurn(t *testing.T) {
	srv, gw, l := setup(t)
	srv.Fail("POST /chat/", 503, "Assistant unavailable", 1)
	b := assistant.New(gw, l.ID, nil)

	msg, err := b.Send(context.Background(), "hello")
	if err == nil {
		t.Fatalf("expected error")
	}
	if msg.Content != "Error: Assistant unavailable" || !assistant.IsError(msg) {
		t.Fatalf("error turn: %+v", msg)
	}
	tr := b.Transcript()
	if len(tr) != 2 || tr[1] != msg {
		t.Fatalf("transcript: %+v", tr)
	}
	if b.Pending() {
		t.Fatalf("still pending")
	}
}

func TestSend_AuthFailureLogsOut(t *testing.T) {
	srv, gw, l := setup(t)
	srv.RevokeAll()
	var logouts atomic.Int32
	b := assistant.New(gw, l.ID, nil, assistant.WithAuthFailure(func() { logouts.Add(1) }))
	if _, err := b.Send(context.Background(), "hi"); !gateway.IsAuth(err) {
		t.Fatalf("expected auth error, got %v", err)
	}
	if logouts.Load() != 1 {
		t.Fatalf("logout hook not called")
	}
}

func TestSend_TranscriptAndListIDSent(t *testing.T) {
	srv, gw, l := setup(t)
	var gotLen atomic.Int32
	var gotList atomic.Int64
	srv.SetChatReply(func(msgs []model.ChatMessage, listID int64) (string, *bool) {
		gotLen.Store(int32(len(msgs)))
		gotList.Store(listID)
		return "ok", nil
	})
	b := assistant.New(gw, l.ID, nil)
	ctx := context.Background()
	for _, text := range []string{"one", "two"} {
		if _, err := b.Send(ctx, text); err != nil {
			t.Fatalf("send: %v", err)
		}
	}
	if gotLen.Load() != 3 || gotList.Load() != l.ID {
		t.Fatalf("sent %d messages for list %d", gotLen.Load(), gotList.Load())
	}
	b.Reset()
	if len(b.Transcript()) != 0 {
		t.Fatalf("reset did not clear")
	}
}

func TestStructuredDetector(t *testing.T) {
	yes, no := true, false
	d := assistant.StructuredDetector{}
	cases := []struct {
		name  string
		reply gateway.ChatReply
		want  bool
	}{
		{"flag true", gateway.ChatReply{Message: model.ChatMessage{Content: "done"}, Mutated: &yes}, true},
		{"flag false beats keyword", gateway.ChatReply{Message: model.ChatMessage{Content: "Added milk"}, Mutated: &no}, false},
		{"no flag falls back", gateway.ChatReply{Message: model.ChatMessage{Content: "List Updated."}}, true},
		{"no flag no keyword", gateway.ChatReply{Message: model.ChatMessage{Content: "Hello"}}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := d.Mutated(tc.reply); got != tc.want {
				t.Fatalf("got %v want %v", got, tc.want)
			}
		})
	}
}

func TestKeywordDetector_CustomVocabulary(t *testing.T) {
	d := assistant.KeywordDetector{Keywords: []string{"Binned"}}
	if !d.Mutated(gateway.ChatReply{Message: model.ChatMessage{Content: "I binned the eggs"}}) {
		t.Fatalf("custom keyword missed")
	}
	if d.Mutated(gateway.ChatReply{Message: model.ChatMessage{Content: "Added milk"}}) {
		t.Fatalf("default vocabulary should be replaced")
	}
}

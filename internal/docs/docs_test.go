package docs

import (
	"reflect"
	"strings"
	"testing"
)

func TestTopics(t *testing.T) {
	want := []string{"assistant", "auth", "items", "lists", "tui"}
	if got := Topics(); !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestGet(t *testing.T) {
	body, ok := Get(" Items ")
	if !ok || !strings.HasPrefix(body, "# Items") {
		t.Fatalf("got ok=%v body=%q", ok, body)
	}
	for _, bad := range []string{"", "nope", "../docs"} {
		if _, ok := Get(bad); ok {
			t.Fatalf("expected %q to be unknown", bad)
		}
	}
}

package format

import (
	"bytes"
	"strings"
	"testing"
)

type sample struct {
	ID       int64   `json:"id"`
	ListType string  `json:"list_type"`
	Note     *string `json:"note"`
	Ticked   bool    `json:"isTicked"`
}

func TestWriteEDN(t *testing.T) {
	var buf bytes.Buffer
	v := Envelope{Data: []sample{{ID: 9007199254740993, ListType: "shared", Ticked: true}}}
	if err := WriteEDN(&buf, v, false); err != nil {
		t.Fatal(err)
	}
	want := `{:data [{:id 9007199254740993 :is-ticked true :list-type "shared" :note nil}]}` + "\n"
	if got := buf.String(); got != want {
		t.Fatalf("got  %s\nwant %s", got, want)
	}
}

func TestWriteEDN_Pretty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteEDN(&buf, map[string]any{"a": []int{1}, "b": map[string]any{}}, true); err != nil {
		t.Fatal(err)
	}
	want := "{\n  :a [\n    1\n  ]\n  :b {}\n}\n"
	if got := buf.String(); got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestKeyword(t *testing.T) {
	cases := map[string]string{
		"list_type":     ":list-type",
		"currentListId": ":current-list-id",
		"_hint":         ":_hint",
		"name":          ":name",
	}
	for in, want := range cases {
		if got := Keyword(in); got != want {
			t.Errorf("Keyword(%q) = %q want %q", in, got, want)
		}
	}
}

func TestWrite_UnknownFormat(t *testing.T) {
	var buf bytes.Buffer
	err := Write(&buf, 1, "yaml", false)
	if err == nil || !strings.Contains(err.Error(), "unknown format") {
		t.Fatalf("err: %v", err)
	}
	if err := Write(&buf, map[string]int{"n": 1}, "", false); err != nil || buf.String() != "{\"n\":1}\n" {
		t.Fatalf("json default: %q %v", buf.String(), err)
	}
}

package main

import (
	"reflect"
	"testing"
)

func TestRewriteDirectListArgs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{
			name: "no args",
			in:   []string{"grocer"},
			want: []string{"grocer"},
		},
		{
			name: "direct list id first token",
			in:   []string{"grocer", "list-12"},
			want: []string{"grocer", "items", "list", "--list", "12"},
		},
		{
			name: "direct list id after value flag",
			in:   []string{"grocer", "--api", "http://x/api/v1", "list-12"},
			want: []string{"grocer", "--api", "http://x/api/v1", "items", "list", "--list", "12"},
		},
		{
			name: "direct list id after equals flag",
			in:   []string{"grocer", "--format=edn", "list-12"},
			want: []string{"grocer", "--format=edn", "items", "list", "--list", "12"},
		},
		{
			name: "direct list id after bool flag",
			in:   []string{"grocer", "--pretty", "list-12", "--flat"},
			want: []string{"grocer", "--pretty", "items", "list", "--list", "12", "--flat"},
		},
		{
			name: "direct list id after double dash",
			in:   []string{"grocer", "--pretty", "--", "list-12"},
			want: []string{"grocer", "--pretty", "items", "list", "--list", "12"},
		},
		{
			name: "non-numeric id not rewritten",
			in:   []string{"grocer", "list-abc"},
			want: []string{"grocer", "list-abc"},
		},
		{
			name: "normal subcommand not rewritten",
			in:   []string{"grocer", "lists", "show", "list-12"},
			want: []string{"grocer", "lists", "show", "list-12"},
		},
		{
			name: "unknown command not rewritten",
			in:   []string{"grocer", "wat"},
			want: []string{"grocer", "wat"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := rewriteDirectListArgs(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("got %v want %v", got, tt.want)
			}
		})
	}
}

package cli

import "fmt"

type errNotLoggedIn struct{}

func (errNotLoggedIn) Error() string {
	return "not logged in; run `grocer login --username <name>`"
}

type errNoList struct{}

func (errNoList) Error() string {
	return "no list selected; pass --list <id> or run `grocer lists use <id>`"
}

type badIDError struct {
	kind string
	raw  string
}

func (e badIDError) Error() string {
	return fmt.Sprintf("invalid %s id: %q", e.kind, e.raw)
}

type notFoundError struct {
	kind string
	id   int64
}

func (e notFoundError) Error() string {
	return fmt.Sprintf("%s not found: %d", e.kind, e.id)
}

// Package gate decides which view may render for the current session state.
package gate

import (
	"sync"

	"grocer-cli/internal/session"
)

type Render int

const (
	// RenderLoading is a neutral placeholder: neither the login view nor
	// protected content.
	RenderLoading Render = iota
	RenderLogin
	RenderProtected
)

func (r Render) String() string {
	switch r {
	case RenderLogin:
		return "login"
	case RenderProtected:
		return "protected"
	default:
		return "loading"
	}
}

type Decision struct {
	Render Render
	// Redirect means any requested deep link is dropped in favour of the
	// login view.
	Redirect bool
}

// Source is the part of session.Session the gate watches.
type Source interface {
	State() session.State
	Subscribe(fn func(session.State)) (cancel func())
}

type Gate struct {
	src       Source
	redirects chan struct{}
	cancel    func()

	mu        sync.Mutex
	last      session.State
	redirectN int
}

// New starts watching src. Every transition into UNAUTHENTICATED, from any
// state, signals Redirects once.
func New(src Source) *Gate {
	g := &Gate{src: src, redirects: make(chan struct{}, 1), last: src.State()}
	g.cancel = src.Subscribe(g.observe)
	return g
}

func (g *Gate) observe(st session.State) {
	g.mu.Lock()
	prev := g.last
	g.last = st
	fire := st == session.StateUnauthenticated && prev != session.StateUnauthenticated
	if fire {
		g.redirectN++
	}
	g.mu.Unlock()
	if fire {
		select {
		case g.redirects <- struct{}{}:
		default:
		}
	}
}

// Redirects signals (coalesced) when the protected view must be torn down.
func (g *Gate) Redirects() <-chan struct{} { return g.redirects }

// RedirectCount is the number of redirect-triggering transitions seen.
func (g *Gate) RedirectCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.redirectN
}

func (g *Gate) Decide() Decision {
	return DecideFor(g.src.State())
}

// DecideFor maps a session state to a render decision.
func DecideFor(st session.State) Decision {
	switch st {
	case session.StateAuthenticated:
		return Decision{Render: RenderProtected}
	case session.StateUnauthenticated:
		return Decision{Render: RenderLogin, Redirect: true}
	default:
		return Decision{Render: RenderLoading}
	}
}

func (g *Gate) Close() {
	if g.cancel != nil {
		g.cancel()
	}
}

package tui

import (
	"context"
	"log/slog"
	"strings"

	"grocer-cli/internal/assistant"
	"grocer-cli/internal/gate"
	"grocer-cli/internal/gateway"
	"grocer-cli/internal/lists"
	"grocer-cli/internal/metrics"
	"grocer-cli/internal/model"
	"grocer-cli/internal/session"
	"grocer-cli/internal/store"
	"grocer-cli/internal/syncer"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
)

type view int

const (
	viewLists view = iota
	viewList
)

// Deps is everything the TUI needs from the command layer.
type Deps struct {
	Session  *session.Session
	Gateway  *gateway.Client
	KV       store.KV
	Config   *store.Config
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Detector assistant.Detector
	// ListID opens this list as soon as the session is authenticated.
	ListID int64
}

type confirmation struct {
	prompt string
	run    func() tea.Cmd
}

type appModel struct {
	ctx  context.Context
	deps Deps
	log  *slog.Logger
	gate *gate.Gate

	// live enables the long-running subscriptions (session redirects, list
	// change signals, spinner ticks). Update-driven tests leave it off.
	live bool

	width  int
	height int
	view   view

	login     *form
	loggingIn bool
	form      *form
	confirm   *confirmation
	status    string
	statusErr bool

	lists     *lists.Controller
	listsList list.Model
	// deepLink is a list to open once the session is authenticated. A
	// redirect to the login view drops it.
	deepLink int64

	sync   *syncer.Synchronizer
	cursor int

	chat      *assistant.Bridge
	showChat  bool
	chatFocus bool
	chatInput textinput.Model
	chatView  viewport.Model
	spinner   spinner.Model

	state *store.TUIState
}

type (
	protectedMsg   struct{}
	redirectMsg    struct{}
	resolvedMsg    struct{ err error }
	loginMsg       struct{ ok bool }
	listsMsg       struct{ err error }
	listLoadedMsg  struct{ err error }
	listChangedMsg struct{ sync *syncer.Synchronizer }
	mutationMsg    struct{ err error }
	chatMsg        struct {
		bridge *assistant.Bridge
		err    error
	}
)

func newAppModel(ctx context.Context, deps Deps) appModel {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	if deps.KV == nil {
		deps.KV = store.NewMemoryKV()
	}
	st, err := store.LoadTUIState(ctx, deps.KV)
	if err != nil {
		log.Debug("tui state unavailable", "err", err)
		st = &store.TUIState{Version: 1}
	}

	m := appModel{
		ctx:       ctx,
		deps:      deps,
		log:       log,
		gate:      gate.New(deps.Session),
		view:      viewLists,
		login:     newLoginForm(),
		listsList: newListsList(),
		chatInput: newInput("Ask the assistant…", ""),
		chatView:  viewport.New(0, 0),
		spinner:   spinner.New(spinner.WithSpinner(spinner.Dot)),
		showChat:  st.ShowChat,
		state:     st,
		width:     80,
		height:    24,
	}
	m.lists = lists.New(deps.Gateway,
		lists.WithAuthFailure(deps.Session.Logout),
		lists.WithLogger(log),
		lists.WithCurrentUser(deps.Session.User),
	)
	m.deepLink = deps.ListID
	if m.deepLink == 0 && st.View == "list" {
		m.deepLink = st.ListID
	}
	m.resize()
	return m
}

func newLoginForm() *form {
	f := newForm(formLogin, "Sign in",
		field("Username", "username", ""),
		field("Password", "password", ""),
	)
	f.fields[1].input.EchoMode = textinput.EchoPassword
	return f
}

func (m appModel) Init() tea.Cmd {
	var cmds []tea.Cmd
	if m.live {
		cmds = append(cmds, waitRedirect(m.gate))
	}
	switch m.deps.Session.State() {
	case session.StateResolving:
		cmds = append(cmds, m.resolveCmd())
	case session.StateAuthenticated:
		cmds = append(cmds, func() tea.Msg { return protectedMsg{} })
	}
	return tea.Batch(cmds...)
}

func waitRedirect(g *gate.Gate) tea.Cmd {
	return func() tea.Msg {
		<-g.Redirects()
		return redirectMsg{}
	}
}

// waitChanges ends without a message once s is closed.
func waitChanges(s *syncer.Synchronizer) tea.Cmd {
	changes, done := s.Changes(), s.Done()
	return func() tea.Msg {
		select {
		case <-changes:
			return listChangedMsg{sync: s}
		case <-done:
			return nil
		}
	}
}

func (m appModel) resolveCmd() tea.Cmd {
	ctx, sess := m.ctx, m.deps.Session
	return func() tea.Msg { return resolvedMsg{err: sess.FetchAndSetUser(ctx)} }
}

func (m appModel) fetchListsCmd() tea.Cmd {
	ctx, ctl := m.ctx, m.lists
	return func() tea.Msg {
		_, err := ctl.Fetch(ctx)
		return listsMsg{err: err}
	}
}

func (m appModel) tick() tea.Cmd {
	if !m.live {
		return nil
	}
	return m.spinner.Tick
}

func (m appModel) busy() bool {
	if m.loggingIn || m.lists.Loading() {
		return true
	}
	if m.sync != nil && m.sync.Loading() {
		return true
	}
	return m.chat != nil && m.chat.Pending()
}

func (m *appModel) setStatus(msg string, isErr bool) {
	m.status = msg
	m.statusErr = isErr
}

func (m *appModel) saveState() {
	if err := store.SaveTUIState(m.ctx, m.deps.KV, m.state); err != nil {
		m.log.Warn("save tui state", "err", err)
	}
}

func (m *appModel) resize() {
	bodyH := max(m.height-3, 1)
	m.listsList.SetSize(m.width, bodyH)
	chatW := m.chatWidth()
	m.chatInput.Width = max(chatW-4, 10)
	m.chatView.Width = chatW
	m.chatView.Height = max(bodyH-2, 1)
	m.refreshChat()
}

func (m appModel) chatWidth() int {
	return max(m.width*2/5, 24)
}

func (m appModel) me() int64 {
	if u := m.deps.Session.User(); u != nil {
		return u.ID
	}
	return 0
}

func (m appModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.resize()
		return m, nil

	case spinner.TickMsg:
		if !m.busy() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case protectedMsg:
		return m, m.enterProtected()

	case resolvedMsg:
		if msg.err != nil {
			m.log.Debug("session not resumed", "err", msg.err)
			return m, nil
		}
		return m, m.enterProtected()

	case loginMsg:
		m.loggingIn = false
		if !msg.ok {
			m.setStatus(m.deps.Session.LastError(), true)
			return m, nil
		}
		m.login = newLoginForm()
		m.setStatus("", false)
		return m, m.enterProtected()

	case redirectMsg:
		var next tea.Cmd
		if m.live {
			next = waitRedirect(m.gate)
		}
		// A later login may already have won; only tear down while the
		// gate still wants the login view.
		if m.gate.Decide().Render != gate.RenderLogin {
			return m, next
		}
		m.signOut()
		return m, next

	case listsMsg:
		m.listsList.SetItems(listItemsOf(m.lists.Lists(), m.me()))
		if msg.err != nil {
			text := m.lists.Err()
			if text == "" {
				text = gateway.Message(msg.err)
			}
			m.setStatus(text, true)
		}
		return m, nil

	case listLoadedMsg:
		if msg.err != nil {
			m.log.Debug("load list failed", "err", msg.err)
		}
		return m, nil

	case listChangedMsg:
		if msg.sync != m.sync || m.sync == nil {
			return m, nil
		}
		return m, waitChanges(m.sync)

	case mutationMsg:
		if msg.err != nil && (m.sync == nil || m.sync.Err() == "") {
			m.setStatus(gateway.Message(msg.err), true)
		}
		return m, nil

	case chatMsg:
		if msg.bridge != m.chat {
			return m, nil
		}
		m.refreshChat()
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, m.quit()
		}
		switch m.gate.Decide().Render {
		case gate.RenderLogin:
			return m.updateLogin(msg)
		case gate.RenderProtected:
			return m.updateProtected(msg)
		default:
			return m, nil
		}
	}
	return m, nil
}

func (m *appModel) quit() tea.Cmd {
	if m.sync != nil {
		m.state.View = "list"
		m.state.ListID = m.sync.ListID()
	} else {
		m.state.View = "lists"
	}
	m.state.ShowChat = m.showChat
	m.saveState()
	return tea.Quit
}

// enterProtected loads the lists view and follows a pending deep link.
func (m *appModel) enterProtected() tea.Cmd {
	cmds := []tea.Cmd{m.fetchListsCmd(), m.tick()}
	if id := m.deepLink; id > 0 {
		m.deepLink = 0
		cmds = append(cmds, m.openList(id))
	}
	return tea.Batch(cmds...)
}

// signOut tears down every protected view after a logout or session expiry.
func (m *appModel) signOut() {
	m.teardownList()
	m.view = viewLists
	m.deepLink = 0
	m.form = nil
	m.confirm = nil
	m.login = newLoginForm()
	m.listsList.SetItems(nil)
	if msg := m.deps.Session.LastError(); msg != "" {
		m.setStatus(msg, true)
	} else {
		m.setStatus("Signed out.", false)
	}
	m.state.View = "lists"
	m.state.ListID = 0
	m.saveState()
}

func (m *appModel) teardownList() {
	if m.sync != nil {
		m.sync.Close()
		m.sync = nil
	}
	if m.chat != nil {
		m.chat.Reset()
		m.chat = nil
	}
	m.chatFocus = false
	m.chatInput.Blur()
	m.cursor = 0
	m.refreshChat()
}

func (m *appModel) openList(id int64) tea.Cmd {
	m.teardownList()
	m.log.Debug("open list", "list_id", id)

	ctx, log := m.ctx, m.log
	s := syncer.New(m.deps.Gateway,
		syncer.WithLogger(m.log),
		syncer.WithMetrics(m.deps.Metrics),
		syncer.WithAuthFailure(m.deps.Session.Logout),
	)
	m.sync = s
	m.view = viewList
	m.chat = assistant.New(m.deps.Gateway, id,
		func() {
			if err := s.Refresh(ctx, true); err != nil {
				log.Debug("refresh after assistant reply", "err", err)
			}
		},
		assistant.WithDetector(m.deps.Detector),
		assistant.WithAuthFailure(m.deps.Session.Logout),
		assistant.WithLogger(m.log),
	)
	m.state.View = "list"
	m.state.ListID = id
	m.state.Touch(id)
	m.saveState()

	cmds := []tea.Cmd{
		func() tea.Msg { return listLoadedMsg{err: s.Load(ctx, id)} },
		m.tick(),
	}
	if m.live {
		cmds = append(cmds, waitChanges(s))
	}
	return tea.Batch(cmds...)
}

func (m appModel) updateLogin(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.loggingIn {
		return m, nil
	}
	switch msg.String() {
	case "esc":
		return m, m.quit()
	case "enter":
		user, pass := m.login.value(0), m.login.fields[1].input.Value()
		if user == "" || pass == "" {
			m.setStatus("Username and password are required.", true)
			return m, nil
		}
		m.loggingIn = true
		m.setStatus("", false)
		ctx, sess := m.ctx, m.deps.Session
		return m, tea.Batch(func() tea.Msg { return loginMsg{ok: sess.Login(ctx, user, pass)} }, m.tick())
	}
	return m, m.login.update(msg)
}

func (m appModel) updateProtected(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.confirm != nil {
		c := m.confirm
		m.confirm = nil
		switch msg.String() {
		case "y", "Y", "enter":
			return m, c.run()
		}
		m.setStatus("Cancelled.", false)
		return m, nil
	}
	if m.form != nil {
		return m.updateForm(msg)
	}
	if m.view == viewList {
		return m.updateList(msg)
	}
	return m.updateLists(msg)
}

func (m appModel) updateForm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		if m.form.kind == formEditItem && m.sync != nil {
			m.sync.CancelEdit()
		}
		m.form = nil
		return m, nil
	case "enter":
		f := m.form
		m.form = nil
		return m.submit(f)
	}
	return m, m.form.update(msg)
}

func (m appModel) updateLists(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.setStatus("", false)
	if m.listsList.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.listsList, cmd = m.listsList.Update(msg)
		return m, cmd
	}
	sel, hasSel := m.listsList.SelectedItem().(listItem)
	switch msg.String() {
	case "q":
		return m, m.quit()
	case "enter":
		if hasSel {
			return m, m.openList(sel.list.ID)
		}
		return m, nil
	case "n":
		m.form = newForm(formNewList, "New list",
			field("Name", "Weekly shop", ""),
			toggleField("Shared", false),
		)
		return m, nil
	case "m":
		if hasSel {
			m.form = newForm(formAddMember, "Add member to "+sel.list.Name, field("Username", "username", ""))
			m.form.itemID = sel.list.ID
		}
		return m, nil
	case "d":
		if !hasSel {
			return m, nil
		}
		ctx, ctl, id := m.ctx, m.lists, sel.list.ID
		m.confirm = &confirmation{
			prompt: "Delete list " + sel.list.Name + "? (y/N)",
			run: func() tea.Cmd {
				return func() tea.Msg { return listsMsg{err: ctl.Delete(ctx, id)} }
			},
		}
		return m, nil
	case "r":
		return m, tea.Batch(m.fetchListsCmd(), m.tick())
	case "L":
		m.deps.Session.Logout()
		return m, nil
	}
	var cmd tea.Cmd
	m.listsList, cmd = m.listsList.Update(msg)
	return m, cmd
}

func (m appModel) selectedRow() (row, bool) {
	if m.sync == nil {
		return row{}, false
	}
	rows := rowsOf(m.sync.Grouping())
	if len(rows) == 0 {
		return row{}, false
	}
	return rows[clamp(m.cursor, 0, len(rows)-1)], true
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

func (m appModel) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.chatFocus {
		return m.updateChat(msg)
	}
	m.setStatus("", false)
	s := m.sync
	rows := rowsOf(s.Grouping())
	m.cursor = clamp(m.cursor, 0, max(len(rows)-1, 0))
	r, hasRow := m.selectedRow()

	switch msg.String() {
	case "q":
		return m, m.quit()
	case "esc", "backspace":
		m.teardownList()
		m.view = viewLists
		m.state.View = "lists"
		m.saveState()
		return m, m.fetchListsCmd()
	case "j", "down":
		m.cursor = clamp(m.cursor+1, 0, max(len(rows)-1, 0))
	case "k", "up":
		m.cursor = clamp(m.cursor-1, 0, max(len(rows)-1, 0))
	case "r":
		s.ClearErr()
		ctx := m.ctx
		return m, tea.Batch(func() tea.Msg { return mutationMsg{err: s.Refresh(ctx, false)} }, m.tick())
	case " ", "x":
		if hasRow && !r.header {
			return m, m.mutate(func(ctx context.Context) error {
				_, err := s.ToggleTick(ctx, r.item.ID)
				return err
			})
		}
	case "a":
		cat := ""
		if hasRow {
			cat = r.category.Name
		}
		m.form = newForm(formAddItem, "Add item",
			field("Name", "Milk", ""),
			field("Category", "existing or new", cat),
			field("Note", "optional", ""),
			toggleField("Price match", false),
		)
	case "e", "enter":
		if !hasRow || r.header {
			return m, nil
		}
		it := r.item
		note := ""
		if it.Note != nil {
			note = *it.Note
		}
		m.form = newForm(formEditItem, "Edit item",
			field("Name", "", it.Name),
			field("Category", "", r.category.Name),
			field("Note", "optional", note),
			toggleField("Price match", it.PriceMatch),
		)
		m.form.itemID = it.ID
		s.BeginEdit(it.ID)
	case "d":
		if !hasRow {
			return m, nil
		}
		if r.header {
			id := r.category.ID
			m.confirm = &confirmation{
				prompt: "Delete category " + r.category.Name + "? (y/N)",
				run: func() tea.Cmd {
					return m.mutate(func(ctx context.Context) error { return s.DeleteCategory(ctx, id) })
				},
			}
			return m, nil
		}
		id := r.item.ID
		m.confirm = &confirmation{
			prompt: "Delete " + r.item.Name + "? (y/N)",
			run: func() tea.Cmd {
				return m.mutate(func(ctx context.Context) error { return s.DeleteItem(ctx, id) })
			},
		}
	case "C":
		m.form = newForm(formAddCategory, "New category", field("Name", "Dairy", ""))
	case "c":
		m.showChat = !m.showChat
		m.state.ShowChat = m.showChat
		if m.showChat {
			m.chatFocus = true
			m.chatInput.Focus()
		}
		m.refreshChat()
	case "tab":
		if m.showChat {
			m.chatFocus = true
			m.chatInput.Focus()
		}
	case "L":
		m.deps.Session.Logout()
	}
	return m, nil
}

func (m appModel) updateChat(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "tab":
		m.chatFocus = false
		m.chatInput.Blur()
		return m, nil
	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.chatView, cmd = m.chatView.Update(msg)
		return m, cmd
	case "enter":
		text := strings.TrimSpace(m.chatInput.Value())
		if text == "" || m.chat == nil {
			return m, nil
		}
		m.chatInput.SetValue("")
		b, ctx := m.chat, m.ctx
		cmd := func() tea.Msg {
			_, err := b.Send(ctx, text)
			return chatMsg{bridge: b, err: err}
		}
		return m, tea.Batch(cmd, m.tick())
	}
	var cmd tea.Cmd
	m.chatInput, cmd = m.chatInput.Update(msg)
	return m, cmd
}

func (m appModel) mutate(fn func(ctx context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg { return mutationMsg{err: fn(ctx)} }
}

func (m appModel) submit(f *form) (tea.Model, tea.Cmd) {
	ctx := m.ctx
	switch f.kind {
	case formNewList:
		name := f.value(0)
		typ := model.ListTypePrivate
		if f.on(1) {
			typ = model.ListTypeShared
		}
		ctl := m.lists
		return m, func() tea.Msg {
			_, err := ctl.Create(ctx, name, typ)
			return listsMsg{err: err}
		}

	case formAddMember:
		ctl, listID, username := m.lists, f.itemID, f.value(0)
		return m, func() tea.Msg {
			_, err := ctl.AddMember(ctx, listID, username)
			return listsMsg{err: err}
		}

	case formAddCategory:
		s, name := m.sync, f.value(0)
		if s == nil {
			return m, nil
		}
		return m, m.mutate(func(ctx context.Context) error {
			_, err := s.AddCategory(ctx, name)
			return err
		})

	case formAddItem:
		s := m.sync
		if s == nil {
			return m, nil
		}
		in := syncer.NewItem{Name: f.value(0), Note: f.value(2), PriceMatch: f.on(3)}
		if cat := f.value(1); cat != "" {
			if c, ok := model.CategoryNamed(s.Categories(), cat); ok {
				in.CategoryID = c.ID
			} else {
				in.NewCategoryName = cat
			}
		}
		return m, m.mutate(func(ctx context.Context) error {
			_, err := s.AddItem(ctx, in)
			return err
		})

	case formEditItem:
		s := m.sync
		if s == nil {
			return m, nil
		}
		e := syncer.ItemEdit{Name: f.value(0), Note: f.value(2), PriceMatch: f.on(3)}
		if cat := f.value(1); cat != "" {
			c, ok := model.CategoryNamed(s.Categories(), cat)
			if !ok {
				s.CancelEdit()
				m.setStatus("Unknown category: "+cat, true)
				return m, nil
			}
			e.CategoryID = c.ID
		}
		id := f.itemID
		return m, m.mutate(func(ctx context.Context) error {
			_, err := s.EditItem(ctx, id, e)
			return err
		})
	}
	return m, nil
}

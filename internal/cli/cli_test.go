package cli

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"testing"

	"grocer-cli/internal/apitest"
	"grocer-cli/internal/model"
)

func runCLI(t *testing.T, args []string) (stdout []byte, stderr []byte, err error) {
	t.Helper()

	cmd := NewRootCmd()

	var outBuf bytes.Buffer
	var errBuf bytes.Buffer
	cmd.SetOut(&outBuf)
	cmd.SetErr(&errBuf)
	cmd.SetArgs(args)

	e := cmd.Execute()
	return outBuf.Bytes(), errBuf.Bytes(), e
}

type cliFixture struct {
	srv  *apitest.Server
	list model.List
	cat  model.Category
}

func newCLIFixture(t *testing.T) *cliFixture {
	t.Helper()
	t.Setenv("GROCER_CONFIG_DIR", t.TempDir())
	t.Setenv("GROCER_LIST", "")
	t.Setenv("GROCER_LOG_LEVEL", "error")
	srv := apitest.New()
	t.Cleanup(srv.Close)
	u := srv.AddUser("ada", "pw")
	l := srv.AddList(u, "Weekly", model.ListTypePrivate)
	c := srv.AddCategory(l.ID, "Dairy")
	t.Setenv("GROCER_API_URL", srv.URL)
	return &cliFixture{srv: srv, list: l, cat: c}
}

// mustEnv runs args and checks the output envelope contract.
func mustEnv(t *testing.T, args ...string) map[string]any {
	t.Helper()
	stdout, stderr, err := runCLI(t, args)
	if err != nil {
		t.Fatalf("command failed: grocer %v\nerr: %v\nstderr:\n%s\nstdout:\n%s", args, err, string(stderr), string(stdout))
	}
	var env map[string]any
	if err := json.Unmarshal(stdout, &env); err != nil {
		t.Fatalf("unmarshal stdout as json envelope: %v\nstdout:\n%s\nargs: %v", err, string(stdout), args)
	}
	if _, ok := env["data"]; !ok {
		t.Fatalf("expected JSON envelope to contain data key; got: %v", env)
	}
	if meta, ok := env["meta"]; ok && meta != nil {
		if _, ok := meta.(map[string]any); !ok {
			t.Fatalf("expected meta to be object; got %T", meta)
		}
	}
	if hints, ok := env["_hints"]; ok && hints != nil {
		if _, ok := hints.([]any); !ok {
			t.Fatalf("expected _hints to be list; got %T", hints)
		}
	}
	return env
}

func login(t *testing.T) {
	t.Helper()
	env := mustEnv(t, "login", "--username", "ada", "--password", "pw")
	user, _ := env["data"].(map[string]any)["user"].(map[string]any)
	if user["username"] != "ada" {
		t.Fatalf("login data: %#v", env["data"])
	}
}

func TestOutputContract_JSONEnvelope_DefaultSuite(t *testing.T) {
	f := newCLIFixture(t)
	listID := strconv.FormatInt(f.list.ID, 10)

	login(t)
	mustEnv(t, "whoami")
	lists := mustEnv(t, "lists", "list")
	if arr, _ := lists["data"].([]any); len(arr) != 1 {
		t.Fatalf("lists: %#v", lists["data"])
	}
	mustEnv(t, "lists", "show", "list-"+listID)
	mustEnv(t, "lists", "use", listID)

	item := mustEnv(t, "items", "add", "--name", "Milk", "--category", "dairy", "--price-match")
	data := item["data"].(map[string]any)
	itemID := strconv.FormatInt(int64(data["id"].(float64)), 10)
	if data["price_match"] != true {
		t.Fatalf("item: %#v", data)
	}
	meta := item["meta"].(map[string]any)
	if int64(meta["listId"].(float64)) != f.list.ID {
		t.Fatalf("meta: %#v", meta)
	}

	grouped := mustEnv(t, "items", "list")
	groups := grouped["data"].(map[string]any)["groups"].([]any)
	if len(groups) != 1 {
		t.Fatalf("groups: %#v", groups)
	}
	mustEnv(t, "items", "list", "--flat")
	mustEnv(t, "items", "tick", itemID)
	mustEnv(t, "items", "edit", itemID, "--note", "2%")
	mustEnv(t, "categories", "list")
	mustEnv(t, "chat", "what", "is", "on", "my", "list")
	mustEnv(t, "config", "show")
	mustEnv(t, "items", "rm", itemID)
	mustEnv(t, "logout")
}

func TestItems_RequireLogin(t *testing.T) {
	newCLIFixture(t)
	_, stderr, err := runCLI(t, []string{"items", "list", "--list", "1"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(string(stderr), "not logged in") {
		t.Fatalf("stderr: %s", stderr)
	}
}

func TestItems_NoListSelected(t *testing.T) {
	newCLIFixture(t)
	login(t)
	_, stderr, err := runCLI(t, []string{"items", "list"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(string(stderr), "no list selected") {
		t.Fatalf("stderr: %s", stderr)
	}
}

func TestItems_AddCreatesNewCategory(t *testing.T) {
	f := newCLIFixture(t)
	login(t)
	listID := strconv.FormatInt(f.list.ID, 10)
	mustEnv(t, "--list", listID, "items", "add", "--name", "Apples", "--category", "Produce")
	if n := f.srv.Calls("POST /lists/{id}/categories/"); n != 1 {
		t.Fatalf("category creates=%d", n)
	}
	items := f.srv.Items(f.list.ID)
	if len(items) != 1 || items[0].Category.Name != "Produce" {
		t.Fatalf("server items: %+v", items)
	}
}

func TestItems_EditWithoutChangesSendsNoRequest(t *testing.T) {
	f := newCLIFixture(t)
	it := f.srv.AddItem(f.list.ID, f.cat.ID, "Milk")
	login(t)
	mustEnv(t, "--list", strconv.FormatInt(f.list.ID, 10), "items", "edit", strconv.FormatInt(it.ID, 10), "--name", "Milk")
	if n := f.srv.Calls("PUT /items/{id}"); n != 0 {
		t.Fatalf("PUT calls=%d", n)
	}
}

func TestCategories_RemoveNonEmptyIsRefused(t *testing.T) {
	f := newCLIFixture(t)
	f.srv.AddItem(f.list.ID, f.cat.ID, "Milk")
	login(t)
	_, stderr, err := runCLI(t, []string{"--list", strconv.FormatInt(f.list.ID, 10), "categories", "rm", strconv.FormatInt(f.cat.ID, 10)})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(string(stderr), "Cannot delete category: it still has 1 item(s).") {
		t.Fatalf("stderr: %s", stderr)
	}
	if n := f.srv.Calls("DELETE /lists/{id}/categories/{catId}"); n != 0 {
		t.Fatalf("DELETE calls=%d", n)
	}
}

func TestLists_UpdateWithoutChangesHints(t *testing.T) {
	f := newCLIFixture(t)
	login(t)
	env := mustEnv(t, "lists", "update", strconv.FormatInt(f.list.ID, 10), "--name", "Weekly")
	hints, _ := env["_hints"].([]any)
	if len(hints) != 1 || hints[0] != "nothing changed; no request sent" {
		t.Fatalf("hints: %#v", env["_hints"])
	}
	if n := f.srv.Calls("PUT /lists/{id}"); n != 0 {
		t.Fatalf("PUT calls=%d", n)
	}
}

func TestLists_CannotRemoveOwner(t *testing.T) {
	f := newCLIFixture(t)
	login(t)
	_, stderr, err := runCLI(t, []string{"lists", "members", "rm",
		strconv.FormatInt(f.list.ID, 10), strconv.FormatInt(f.list.Owner.ID, 10)})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(string(stderr), "The list owner cannot be removed.") {
		t.Fatalf("stderr: %s", stderr)
	}
}

func TestLogin_BadCredentials(t *testing.T) {
	newCLIFixture(t)
	_, stderr, err := runCLI(t, []string{"login", "-u", "ada", "-p", "wrong"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(string(stderr), "Login failed. Please check credentials.") {
		t.Fatalf("stderr: %s", stderr)
	}
}

func TestWhoami_RevokedTokenLogsOut(t *testing.T) {
	f := newCLIFixture(t)
	login(t)
	f.srv.RevokeAll()
	if _, _, err := runCLI(t, []string{"whoami"}); err == nil {
		t.Fatalf("expected error")
	}
	// The stored token was cleared, so no request is attempted now.
	before := f.srv.TotalCalls()
	_, stderr, err := runCLI(t, []string{"whoami"})
	if err == nil || !strings.Contains(string(stderr), "not logged in") {
		t.Fatalf("err=%v stderr=%s", err, stderr)
	}
	if f.srv.TotalCalls() != before {
		t.Fatalf("expected no request after logout")
	}
}

func TestFormat_EDN(t *testing.T) {
	newCLIFixture(t)
	login(t)
	stdout, stderr, err := runCLI(t, []string{"--format", "edn", "whoami"})
	if err != nil {
		t.Fatalf("whoami: %v\n%s", err, stderr)
	}
	out := strings.TrimSpace(string(stdout))
	if !strings.HasPrefix(out, "{:data {") || !strings.Contains(out, `:username "ada"`) {
		t.Fatalf("edn: %s", out)
	}
}

func TestFormat_UnknownIsRejected(t *testing.T) {
	newCLIFixture(t)
	if _, _, err := runCLI(t, []string{"--format", "yaml", "whoami"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestDocs_TopicsAndRaw(t *testing.T) {
	newCLIFixture(t)
	env := mustEnv(t, "docs")
	topics, _ := env["data"].(map[string]any)["topics"].([]any)
	if len(topics) == 0 {
		t.Fatalf("topics: %#v", env["data"])
	}
	stdout, _, err := runCLI(t, []string{"docs", "items", "--raw"})
	if err != nil || !strings.HasPrefix(string(stdout), "# Items") {
		t.Fatalf("raw docs: err=%v out=%q", err, stdout)
	}
	if _, _, err := runCLI(t, []string{"docs", "nope"}); err == nil {
		t.Fatalf("expected unknown topic error")
	}
}

package main

import (
	"bytes"
	"net/http/httptest"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amultiwary/TaskApp/internal/dashboard"
	"github.com/amultiwary/TaskApp/testutil"
)

type cli struct {
	t       *testing.T
	server  *httptest.Server
	session string
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	_, r := testutil.SetupTestDB(t)
	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	return &cli{t: t, server: server, session: filepath.Join(t.TempDir(), "session.json")}
}

// run はコマンドを1回実行し、標準出力を返します。
func (c *cli) run(stdin string, interactive bool, args ...string) (string, error) {
	c.t.Helper()
	var out bytes.Buffer
	root := newRootCmd(env{
		stdin:       strings.NewReader(stdin),
		stdout:      &out,
		stderr:      &bytes.Buffer{},
		interactive: interactive,
		httpClient:  c.server.Client(),
	})
	root.SetArgs(append([]string{"--server", c.server.URL, "--session-file", c.session}, args...))
	err := root.Execute()
	return out.String(), err
}

func (c *cli) mustRun(args ...string) string {
	c.t.Helper()
	out, err := c.run("", false, args...)
	require.NoError(c.t, err, out)
	return out
}

var createdID = regexp.MustCompile(`Created ([0-9a-f]{8}) `)

func (c *cli) add(args ...string) string {
	c.t.Helper()
	out := c.mustRun(append([]string{"add"}, args...)...)
	m := createdID.FindStringSubmatch(out)
	require.Len(c.t, m, 2, out)
	return m[1]
}

func TestCLI_SessionLifecycle(t *testing.T) {
	c := newCLI(t)

	_, err := c.run("", false, "list")
	assert.ErrorContains(t, err, "not logged in")

	out := c.mustRun("register", "--name", "Ada", "--email", "ada@x.com", "--password", "secret1")
	assert.Contains(t, out, "Registered and logged in as Ada <ada@x.com>")

	// セッションはファイルに保存され、次の実行で読み込まれる
	_, err = dashboard.NewFileSessionStore(c.session).Load()
	require.NoError(t, err)
	assert.Equal(t, "Ada <ada@x.com>\n", c.mustRun("whoami"))

	assert.Contains(t, c.mustRun("logout"), "Logged out")
	_, err = c.run("", false, "whoami")
	assert.ErrorContains(t, err, "not logged in")

	// プロンプトから読み込む
	out, err = c.run("ada@x.com\nsecret1\n", true, "login")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged in as Ada")
}

func TestCLI_TaskWorkflow(t *testing.T) {
	c := newCLI(t)
	c.mustRun("register", "-n", "Ada", "-e", "ada@x.com", "-p", "secret1")

	first := c.add("Write report", "--priority", "high", "--due", "2026-04-02")
	c.add("Review PR", "-d", "the big one")

	out := c.mustRun("list")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3, out)
	assert.Contains(t, lines[0], "TITLE")
	assert.Contains(t, lines[1], "Review PR", "newest first")
	assert.Contains(t, lines[2], first)
	assert.Contains(t, lines[2], "2026-04-02")
	assert.Contains(t, lines[2], "high")

	out = c.mustRun("toggle", first)
	assert.Contains(t, out, "is now completed")

	out = c.mustRun("list", "--status", "completed")
	assert.Contains(t, out, "Write report")
	assert.NotContains(t, out, "Review PR")

	out = c.mustRun("stats")
	assert.Regexp(t, `Total\s+2`, out)
	assert.Regexp(t, `Completed\s+1`, out)
	assert.Regexp(t, `Pending\s+1`, out)

	out = c.mustRun("edit", first, "--title", "Write the report", "--due", "none")
	assert.Contains(t, out, "Updated "+first+" Write the report")
	out = c.mustRun("list", "-s", "completed")
	assert.Contains(t, out, "Write the report")
	assert.NotContains(t, out, "2026-04-02")

	_, err := c.run("", false, "list", "--status", "archived")
	assert.Error(t, err)
}

func TestCLI_EditRequiresAField(t *testing.T) {
	c := newCLI(t)
	c.mustRun("register", "-n", "Ada", "-e", "ada@x.com", "-p", "secret1")
	id := c.add("task")

	_, err := c.run("", false, "edit", id)
	assert.ErrorContains(t, err, "nothing to change")
}

func TestCLI_DeleteConfirmation(t *testing.T) {
	c := newCLI(t)
	c.mustRun("register", "-n", "Ada", "-e", "ada@x.com", "-p", "secret1")
	id := c.add("Disposable")

	// 端末でなければ --yes が必要
	_, err := c.run("", false, "delete", id)
	assert.ErrorContains(t, err, "pass --yes")

	out, err := c.run("n\n", true, "delete", id)
	require.NoError(t, err)
	assert.Contains(t, out, "Cancelled")
	assert.Contains(t, c.mustRun("list"), "Disposable")

	out, err = c.run("y\n", true, "delete", id)
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted "+id)

	id = c.add("Another")
	assert.Contains(t, c.mustRun("delete", "--yes", id), "Deleted")
	assert.Contains(t, c.mustRun("list"), "No tasks")

	_, err = c.run("", false, "delete", "--yes", "zzzz")
	assert.ErrorContains(t, err, "no task matches")
}

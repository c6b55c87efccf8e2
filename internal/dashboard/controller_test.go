package dashboard_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amultiwary/TaskApp/internal/dashboard"
	"github.com/amultiwary/TaskApp/internal/models"
	"github.com/amultiwary/TaskApp/testutil"
)

// faultInjector は条件に合うリクエストを失敗させます。
// before が設定されていれば、失敗させる前に呼び出します。
type faultInjector struct {
	next http.Handler

	mu     sync.Mutex
	method string
	suffix string
	status int
	before func()
	hits   int
}

func (f *faultInjector) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	match := f.status != 0 && r.Method == f.method && strings.HasSuffix(r.URL.Path, f.suffix)
	before := f.before
	if match {
		f.hits++
	}
	f.mu.Unlock()

	if match {
		if before != nil {
			before()
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(f.status)
		_, _ = io.WriteString(w, `{"error":"injected failure"}`)
		return
	}
	f.next.ServeHTTP(w, r)
}

func (f *faultInjector) failOn(method, suffix string, status int, before func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.method, f.suffix, f.status, f.before = method, suffix, status, before
}

func (f *faultInjector) hitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits
}

type harness struct {
	server *httptest.Server
	faults *faultInjector
	store  *dashboard.MemorySessionStore
	ctrl   *dashboard.Controller
}

func newHarness(t *testing.T, confirm dashboard.Confirmer) *harness {
	t.Helper()
	_, r := testutil.SetupTestDB(t)
	faults := &faultInjector{next: r}
	server := httptest.NewServer(faults)
	t.Cleanup(server.Close)

	store := dashboard.NewMemorySessionStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctrl := dashboard.NewController(dashboard.NewClient(server.URL, server.Client()), store, confirm, logger)
	return &harness{server: server, faults: faults, store: store, ctrl: ctrl}
}

func (h *harness) login(t *testing.T) {
	t.Helper()
	_, err := h.ctrl.Register(context.Background(), "Ada", "ada@x.com", "secret1")
	require.NoError(t, err)
}

func (h *harness) create(t *testing.T, title string) *models.Task {
	t.Helper()
	task, err := h.ctrl.Create(context.Background(), models.CreateTaskRequest{Title: title})
	require.NoError(t, err)
	return task
}

func lastMutation(t *testing.T, s dashboard.State) dashboard.Mutation {
	t.Helper()
	require.NotEmpty(t, s.Mutations)
	return s.Mutations[len(s.Mutations)-1]
}

func TestController_RequiresSession(t *testing.T) {
	h := newHarness(t, nil)

	assert.ErrorIs(t, h.ctrl.LoadAll(context.Background()), dashboard.ErrNotLoggedIn)
	_, err := h.ctrl.Toggle(context.Background(), "x")
	assert.ErrorIs(t, err, dashboard.ErrNotLoggedIn)
}

func TestController_RegisterLoginLogout(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	s, err := h.ctrl.Register(ctx, "Ada", "ada@x.com", "secret1")
	require.NoError(t, err)
	assert.NotEmpty(t, s.AccessToken)
	assert.Equal(t, "ada@x.com", s.User.Email)

	stored, err := h.store.Load()
	require.NoError(t, err)
	assert.Equal(t, s.AccessToken, stored.AccessToken)

	me, err := h.ctrl.Whoami(ctx)
	require.NoError(t, err)
	assert.Equal(t, s.User.ID, me.ID)

	h.create(t, "before logout")
	require.NoError(t, h.ctrl.Logout())
	_, err = h.store.Load()
	assert.ErrorIs(t, err, dashboard.ErrNoSession)
	state := h.ctrl.Snapshot()
	assert.Nil(t, state.Session)
	assert.Empty(t, state.Tasks)
	assert.Equal(t, models.TaskStats{}, state.Stats)
	assert.Equal(t, dashboard.FilterAll, state.Filter)

	_, err = h.ctrl.Login(ctx, "ada@x.com", "secret1")
	require.NoError(t, err)
	require.NoError(t, h.ctrl.LoadAll(ctx))
	assert.Len(t, h.ctrl.Snapshot().Tasks, 1)
}

func TestController_Resume(t *testing.T) {
	h := newHarness(t, nil)
	h.login(t)
	h.create(t, "persisted")

	// 同じストアを使う新しいコントローラー
	other := dashboard.NewController(dashboard.NewClient(h.server.URL, h.server.Client()), h.store, nil, nil)
	_, err := other.Resume()
	require.NoError(t, err)
	require.NoError(t, other.LoadAll(context.Background()))
	assert.Len(t, other.Snapshot().Tasks, 1)
}

func TestController_LoginFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.login(t)
	require.NoError(t, h.ctrl.Logout())

	_, err := h.ctrl.Login(context.Background(), "ada@x.com", "wrong-password")
	require.Error(t, err)
	assert.True(t, dashboard.IsStatus(err, http.StatusUnauthorized))
	assert.Contains(t, err.Error(), "Invalid email or password")
	assert.Nil(t, h.ctrl.Snapshot().Session)
}

func TestController_LoadAllAndCreate(t *testing.T) {
	h := newHarness(t, nil)
	h.login(t)
	ctx := context.Background()

	require.NoError(t, h.ctrl.LoadAll(ctx))
	state := h.ctrl.Snapshot()
	assert.Empty(t, state.Tasks)
	assert.False(t, state.Loading)

	first := h.create(t, "first")
	second := h.create(t, "second")

	state = h.ctrl.Snapshot()
	require.Len(t, state.Tasks, 2)
	assert.Equal(t, second.ID, state.Tasks[0].ID, "created task is prepended")
	assert.Equal(t, first.ID, state.Tasks[1].ID)
	assert.Equal(t, models.TaskStats{Total: 2, Completed: 0, Pending: 2}, state.Stats)

	m := lastMutation(t, state)
	assert.Equal(t, dashboard.MutationCreate, m.Kind)
	assert.Equal(t, dashboard.MutationConfirmed, m.State)
	assert.Equal(t, second.ID, m.TaskID)
}

func TestController_CreateFailureLeavesStateUntouched(t *testing.T) {
	h := newHarness(t, nil)
	h.login(t)
	require.NoError(t, h.ctrl.LoadAll(context.Background()))

	_, err := h.ctrl.Create(context.Background(), models.CreateTaskRequest{Title: "   "})
	require.Error(t, err)
	assert.True(t, dashboard.IsStatus(err, http.StatusBadRequest))

	state := h.ctrl.Snapshot()
	assert.Empty(t, state.Tasks)
	assert.Equal(t, models.TaskStats{}, state.Stats)
	assert.Equal(t, dashboard.MutationRolledBack, lastMutation(t, state).State)
}

func TestController_SetFilterDoesNotRefetchStats(t *testing.T) {
	h := newHarness(t, nil)
	h.login(t)
	ctx := context.Background()

	done := h.create(t, "done")
	h.create(t, "todo")
	_, err := h.ctrl.Toggle(ctx, done.ID)
	require.NoError(t, err)
	require.NoError(t, h.ctrl.LoadAll(ctx))

	// サーバー側だけでタスクを増やす
	client := dashboard.NewClient(h.server.URL, h.server.Client())
	client.SetToken(h.ctrl.Snapshot().Session.AccessToken)
	_, err = client.CreateTask(ctx, models.CreateTaskRequest{Title: "server only"})
	require.NoError(t, err)

	require.NoError(t, h.ctrl.SetFilter(ctx, dashboard.FilterPending))
	state := h.ctrl.Snapshot()
	assert.Equal(t, dashboard.FilterPending, state.Filter)
	require.Len(t, state.Tasks, 2)
	for _, task := range state.Tasks {
		assert.Equal(t, models.StatusPending, task.Status)
	}
	assert.Equal(t, models.TaskStats{Total: 2, Completed: 1, Pending: 1}, state.Stats, "stats are not refetched on filter change")

	require.NoError(t, h.ctrl.SetFilter(ctx, dashboard.FilterCompleted))
	state = h.ctrl.Snapshot()
	require.Len(t, state.Tasks, 1)
	assert.Equal(t, done.ID, state.Tasks[0].ID)
}

func TestController_Update(t *testing.T) {
	h := newHarness(t, nil)
	h.login(t)
	task := h.create(t, "old title")
	statsBefore := h.ctrl.Snapshot().Stats

	title := "new title"
	updated, err := h.ctrl.Update(context.Background(), task.ID, models.UpdateTaskRequest{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "new title", updated.Title)

	state := h.ctrl.Snapshot()
	assert.Equal(t, "new title", state.Tasks[0].Title)
	assert.Equal(t, statsBefore, state.Stats)
	assert.Equal(t, dashboard.MutationUpdate, lastMutation(t, state).Kind)
}

func TestController_ToggleConfirmed(t *testing.T) {
	h := newHarness(t, nil)
	h.login(t)
	task := h.create(t, "Write report")

	toggled, err := h.ctrl.Toggle(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, toggled.Status)

	state := h.ctrl.Snapshot()
	assert.Equal(t, models.StatusCompleted, state.Tasks[0].Status)
	assert.NotNil(t, state.Tasks[0].CompletedAt)
	assert.Equal(t, models.TaskStats{Total: 1, Completed: 1, Pending: 0}, state.Stats)
	assert.Equal(t, dashboard.MutationConfirmed, lastMutation(t, state).State)

	_, err = h.ctrl.Toggle(context.Background(), task.ID)
	require.NoError(t, err)
	state = h.ctrl.Snapshot()
	assert.Nil(t, state.Tasks[0].CompletedAt)
	assert.Equal(t, models.TaskStats{Total: 1, Completed: 0, Pending: 1}, state.Stats)
}

func TestController_ToggleRollsBackOnFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.login(t)
	task := h.create(t, "Write report")

	var during dashboard.State
	h.faults.failOn(http.MethodPatch, "/toggle", http.StatusInternalServerError, func() {
		during = h.ctrl.Snapshot()
	})

	_, err := h.ctrl.Toggle(context.Background(), task.ID)
	require.Error(t, err)
	assert.True(t, dashboard.IsStatus(err, http.StatusInternalServerError))
	assert.Equal(t, 1, h.faults.hitCount())

	// 通信中は楽観的に反転している
	require.Len(t, during.Tasks, 1)
	assert.Equal(t, models.StatusCompleted, during.Tasks[0].Status)
	assert.NotNil(t, during.Tasks[0].CompletedAt)
	assert.Equal(t, int64(1), during.Stats.Completed)
	assert.Equal(t, dashboard.MutationPending, lastMutation(t, during).State)

	// 失敗後は元に戻り、集計はサーバーから取り直される
	state := h.ctrl.Snapshot()
	assert.Equal(t, models.StatusPending, state.Tasks[0].Status)
	assert.Nil(t, state.Tasks[0].CompletedAt)
	assert.Equal(t, models.TaskStats{Total: 1, Completed: 0, Pending: 1}, state.Stats)

	m := lastMutation(t, state)
	assert.Equal(t, dashboard.MutationToggle, m.Kind)
	assert.Equal(t, dashboard.MutationRolledBack, m.State)
	assert.Contains(t, m.Err, "injected failure")
}

func TestController_DeleteRequiresConfirmation(t *testing.T) {
	var asked []string
	answer := false
	confirm := dashboard.ConfirmFunc(func(_ context.Context, task models.Task) (bool, error) {
		asked = append(asked, task.Title)
		return answer, nil
	})
	h := newHarness(t, confirm)
	h.login(t)
	task := h.create(t, "keep me")

	deleted, err := h.ctrl.Delete(context.Background(), task.ID)
	require.NoError(t, err)
	assert.False(t, deleted)
	assert.Equal(t, []string{"keep me"}, asked)
	assert.Len(t, h.ctrl.Snapshot().Tasks, 1)

	answer = true
	deleted, err = h.ctrl.Delete(context.Background(), task.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	state := h.ctrl.Snapshot()
	assert.Empty(t, state.Tasks)
	assert.Equal(t, models.TaskStats{}, state.Stats)
	assert.Equal(t, dashboard.MutationConfirmed, lastMutation(t, state).State)

	_, err = h.ctrl.Delete(context.Background(), task.ID)
	assert.ErrorIs(t, err, dashboard.ErrUnknownTask)
}

func TestController_DeleteCompletedDecrementsCompleted(t *testing.T) {
	h := newHarness(t, nil)
	h.login(t)
	task := h.create(t, "done")
	h.create(t, "todo")
	_, err := h.ctrl.Toggle(context.Background(), task.ID)
	require.NoError(t, err)

	_, err = h.ctrl.Delete(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStats{Total: 1, Completed: 0, Pending: 1}, h.ctrl.Snapshot().Stats)
}

func TestController_DeleteFailureResyncs(t *testing.T) {
	h := newHarness(t, nil)
	h.login(t)
	task := h.create(t, "survivor")

	var during dashboard.State
	h.faults.failOn(http.MethodDelete, "/"+task.ID, http.StatusServiceUnavailable, func() {
		during = h.ctrl.Snapshot()
	})

	deleted, err := h.ctrl.Delete(context.Background(), task.ID)
	require.Error(t, err)
	assert.False(t, deleted)

	assert.Empty(t, during.Tasks, "task is removed optimistically")
	assert.Equal(t, int64(0), during.Stats.Total)

	state := h.ctrl.Snapshot()
	require.Len(t, state.Tasks, 1)
	assert.Equal(t, task.ID, state.Tasks[0].ID)
	assert.Equal(t, models.TaskStats{Total: 1, Completed: 0, Pending: 1}, state.Stats)
	assert.Equal(t, dashboard.MutationRolledBack, lastMutation(t, state).State)
}

func TestController_LoadAllFailureSetsError(t *testing.T) {
	h := newHarness(t, nil)
	h.login(t)
	h.faults.failOn(http.MethodGet, "/stats", http.StatusInternalServerError, nil)

	require.Error(t, h.ctrl.LoadAll(context.Background()))
	state := h.ctrl.Snapshot()
	assert.False(t, state.Loading)
	assert.Equal(t, "Failed to load tasks. Please refresh.", state.Error)
}

func TestController_SnapshotIsDeepCopy(t *testing.T) {
	h := newHarness(t, nil)
	h.login(t)
	task := h.create(t, "t")
	_, err := h.ctrl.Toggle(context.Background(), task.ID)
	require.NoError(t, err)

	snap := h.ctrl.Snapshot()
	snap.Tasks[0].Title = "mutated"
	*snap.Tasks[0].CompletedAt = snap.Tasks[0].CompletedAt.AddDate(-1, 0, 0)
	snap.Session.User.Name = "mutated"

	fresh := h.ctrl.Snapshot()
	assert.Equal(t, "t", fresh.Tasks[0].Title)
	assert.NotEqual(t, *snap.Tasks[0].CompletedAt, *fresh.Tasks[0].CompletedAt)
	assert.Equal(t, "Ada", fresh.Session.User.Name)
}

func TestParseFilter(t *testing.T) {
	for raw, want := range map[string]dashboard.Filter{
		"":          dashboard.FilterAll,
		"all":       dashboard.FilterAll,
		"pending":   dashboard.FilterPending,
		"completed": dashboard.FilterCompleted,
	} {
		got, err := dashboard.ParseFilter(raw)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := dashboard.ParseFilter("archived")
	assert.Error(t, err)
}

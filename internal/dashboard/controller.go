package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/amultiwary/TaskApp/internal/models"
)

// Filter は一覧の絞り込みです。
type Filter string

const (
	FilterAll       Filter = "all"
	FilterPending   Filter = "pending"
	FilterCompleted Filter = "completed"
)

// ParseFilter は all / pending / completed を解釈します。
func ParseFilter(raw string) (Filter, error) {
	switch f := Filter(raw); f {
	case FilterAll, FilterPending, FilterCompleted:
		return f, nil
	case "":
		return FilterAll, nil
	default:
		return "", fmt.Errorf("unknown filter %q (want all, pending or completed)", raw)
	}
}

// MutationKind は変更操作の種類です。
type MutationKind string

const (
	MutationCreate MutationKind = "create"
	MutationUpdate MutationKind = "update"
	MutationToggle MutationKind = "toggle"
	MutationDelete MutationKind = "delete"
)

// MutationState は変更操作の状態です。pending から confirmed か rolled_back へ一度だけ遷移します。
type MutationState string

const (
	MutationPending    MutationState = "pending"
	MutationConfirmed  MutationState = "confirmed"
	MutationRolledBack MutationState = "rolled_back"
)

// Mutation はサーバーへ送った1回の変更操作の記録です。
type Mutation struct {
	ID     int64
	Kind   MutationKind
	TaskID string
	State  MutationState
	Err    string
}

const maxMutationLog = 100

const loadFailedMessage = "Failed to load tasks. Please refresh."

var (
	// ErrNotLoggedIn はセッションがない状態でタスク操作をした場合のエラーです。
	ErrNotLoggedIn = errors.New("not logged in")
	// ErrUnknownTask はローカルの一覧にないタスクを削除しようとした場合のエラーです。
	ErrUnknownTask = errors.New("task is not in the current list")
)

// Confirmer は削除の前に利用者へ確認します。
type Confirmer interface {
	Confirm(ctx context.Context, task models.Task) (bool, error)
}

// ConfirmFunc は関数を Confirmer として使うためのアダプタです。
type ConfirmFunc func(ctx context.Context, task models.Task) (bool, error)

func (f ConfirmFunc) Confirm(ctx context.Context, task models.Task) (bool, error) {
	return f(ctx, task)
}

// State はコントローラーが保持する画面の状態です。
type State struct {
	Session   *Session
	Tasks     []models.Task
	Filter    Filter
	Stats     models.TaskStats
	Loading   bool
	Error     string
	Mutations []Mutation
}

// Controller はタスク一覧・集計・セッションを保持し、楽観的更新とロールバックを行います。
// 状態はミューテックスで保護しますが、通信中はロックを保持しません。
type Controller struct {
	api     API
	store   SessionStore
	confirm Confirmer
	logger  *slog.Logger
	now     func() time.Time

	mu     sync.Mutex
	state  State
	nextID int64
}

// NewController は新しいControllerを作成します。confirm が nil の場合、削除は常に確認済みとして扱います。
func NewController(api API, store SessionStore, confirm Confirmer, logger *slog.Logger) *Controller {
	if confirm == nil {
		confirm = ConfirmFunc(func(context.Context, models.Task) (bool, error) { return true, nil })
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		api:     api,
		store:   store,
		confirm: confirm,
		logger:  logger,
		now:     time.Now,
		state:   State{Filter: FilterAll},
	}
}

// Snapshot は現在の状態のディープコピーを返します。
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := c.state
	out.Session = c.state.Session.clone()
	out.Tasks = cloneTasks(c.state.Tasks)
	out.Mutations = append([]Mutation(nil), c.state.Mutations...)
	return out
}

// Resume は保存済みのセッションを読み込みます。セッションがなければ ErrNoSession を返します。
func (c *Controller) Resume() (*Session, error) {
	s, err := c.store.Load()
	if err != nil {
		return nil, err
	}
	c.api.SetToken(s.AccessToken)

	c.mu.Lock()
	c.state.Session = s.clone()
	c.mu.Unlock()
	return s, nil
}

// Register はユーザーを登録し、セッションを保存します。
func (c *Controller) Register(ctx context.Context, name, email, password string) (*Session, error) {
	resp, err := c.api.Register(ctx, name, email, password)
	if err != nil {
		return nil, err
	}
	return c.persist(resp)
}

// Login はログインし、セッションを保存します。
func (c *Controller) Login(ctx context.Context, email, password string) (*Session, error) {
	resp, err := c.api.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return c.persist(resp)
}

func (c *Controller) persist(resp *models.AuthResponse) (*Session, error) {
	s := &Session{AccessToken: resp.AccessToken, User: resp.User}
	if err := c.store.Save(s); err != nil {
		return nil, err
	}
	c.api.SetToken(s.AccessToken)

	c.mu.Lock()
	c.state.Session = s.clone()
	c.mu.Unlock()
	return s, nil
}

// Logout は保存済みのセッションと画面の状態をすべて消去します。
func (c *Controller) Logout() error {
	err := c.store.Clear()
	c.api.SetToken("")

	c.mu.Lock()
	c.state = State{Filter: FilterAll}
	c.mu.Unlock()
	return err
}

// Whoami はサーバーに現在のユーザーを問い合わせます。
func (c *Controller) Whoami(ctx context.Context) (*models.User, error) {
	if err := c.requireSession(); err != nil {
		return nil, err
	}
	return c.api.Me(ctx)
}

// LoadAll は現在のフィルタの一覧と集計を同時に取得します。
func (c *Controller) LoadAll(ctx context.Context) error {
	if err := c.requireSession(); err != nil {
		return err
	}

	c.mu.Lock()
	filter := c.state.Filter
	c.state.Loading = true
	c.state.Error = ""
	c.mu.Unlock()

	var (
		tasks []models.Task
		stats models.TaskStats
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		tasks, err = c.api.ListTasks(gctx, filter)
		return err
	})
	g.Go(func() (err error) {
		stats, err = c.api.Stats(gctx)
		return err
	})
	err := g.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Loading = false
	if err != nil {
		c.state.Error = loadFailedMessage
		return err
	}
	c.state.Tasks = tasks
	c.state.Stats = stats
	return nil
}

// SetFilter はフィルタを変更し、一覧だけを取得し直します (集計は取得しません)。
func (c *Controller) SetFilter(ctx context.Context, filter Filter) error {
	if err := c.requireSession(); err != nil {
		return err
	}

	c.mu.Lock()
	c.state.Filter = filter
	c.mu.Unlock()

	tasks, err := c.api.ListTasks(ctx, filter)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.state.Error = loadFailedMessage
		return err
	}
	// 通信中に別のフィルタへ切り替わっていたら捨てる
	if c.state.Filter == filter {
		c.state.Tasks = tasks
		c.state.Error = ""
	}
	return nil
}

// Create はタスクを作成し、サーバーの応答を一覧の先頭に追加して total と pending を増やします。
func (c *Controller) Create(ctx context.Context, req models.CreateTaskRequest) (*models.Task, error) {
	if err := c.requireSession(); err != nil {
		return nil, err
	}
	id := c.begin(MutationCreate, "")

	task, err := c.api.CreateTask(ctx, req)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.settle(id, MutationRolledBack, err)
		return nil, err
	}
	c.state.Tasks = append([]models.Task{*task}, c.state.Tasks...)
	c.state.Stats.Total++
	c.state.Stats.Pending++
	c.settleTask(id, task.ID, MutationConfirmed, nil)
	return task, nil
}

// Update はタスクを更新し、一覧の該当タスクをサーバーの応答で置き換えます。集計は変更しません。
func (c *Controller) Update(ctx context.Context, taskID string, req models.UpdateTaskRequest) (*models.Task, error) {
	if err := c.requireSession(); err != nil {
		return nil, err
	}
	id := c.begin(MutationUpdate, taskID)

	task, err := c.api.UpdateTask(ctx, taskID, req)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.settle(id, MutationRolledBack, err)
		return nil, err
	}
	c.replaceLocked(*task)
	c.settle(id, MutationConfirmed, nil)
	return task, nil
}

// Toggle は状態をローカルで先に反転してからサーバーに送ります。
// 失敗した場合は反転前の一覧に戻し、集計をサーバーから取得し直します。
func (c *Controller) Toggle(ctx context.Context, taskID string) (*models.Task, error) {
	if err := c.requireSession(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	snapshot := cloneTasks(c.state.Tasks)
	if i := c.indexLocked(taskID); i >= 0 {
		t := &c.state.Tasks[i]
		if t.Status == models.StatusPending {
			now := c.now().UTC()
			t.Status = models.StatusCompleted
			t.CompletedAt = &now
			c.state.Stats.Completed++
			c.state.Stats.Pending--
		} else {
			t.Status = models.StatusPending
			t.CompletedAt = nil
			c.state.Stats.Completed--
			c.state.Stats.Pending++
		}
	}
	id := c.beginLocked(MutationToggle, taskID)
	c.mu.Unlock()

	task, err := c.api.ToggleTask(ctx, taskID)
	if err == nil {
		c.mu.Lock()
		c.replaceLocked(*task)
		c.settle(id, MutationConfirmed, nil)
		c.mu.Unlock()
		return task, nil
	}

	c.mu.Lock()
	c.state.Tasks = snapshot
	c.settle(id, MutationRolledBack, err)
	c.mu.Unlock()

	c.logger.Warn("toggle failed, rolled back", "task_id", taskID, "error", err)
	c.refreshStats(ctx)
	return nil, err
}

// Delete は確認の後、ローカルから先に取り除いてからサーバーに送ります。
// 利用者が取り消した場合は (false, nil) を返します。
// 失敗した場合は一覧と集計をすべて取得し直します。
func (c *Controller) Delete(ctx context.Context, taskID string) (bool, error) {
	if err := c.requireSession(); err != nil {
		return false, err
	}

	c.mu.Lock()
	i := c.indexLocked(taskID)
	var target models.Task
	if i >= 0 {
		target = cloneTasks(c.state.Tasks[i : i+1])[0]
	}
	c.mu.Unlock()
	if i < 0 {
		return false, ErrUnknownTask
	}

	ok, err := c.confirm.Confirm(ctx, target)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	c.mu.Lock()
	if j := c.indexLocked(taskID); j >= 0 {
		removed := c.state.Tasks[j]
		c.state.Tasks = append(c.state.Tasks[:j:j], c.state.Tasks[j+1:]...)
		c.state.Stats.Total--
		if removed.Status == models.StatusCompleted {
			c.state.Stats.Completed--
		} else {
			c.state.Stats.Pending--
		}
	}
	id := c.beginLocked(MutationDelete, taskID)
	c.mu.Unlock()

	err = c.api.DeleteTask(ctx, taskID)

	c.mu.Lock()
	if err == nil {
		c.settle(id, MutationConfirmed, nil)
		c.mu.Unlock()
		return true, nil
	}
	c.settle(id, MutationRolledBack, err)
	c.mu.Unlock()

	c.logger.Warn("delete failed, reloading", "task_id", taskID, "error", err)
	if reloadErr := c.LoadAll(ctx); reloadErr != nil {
		c.logger.Warn("reload after failed delete also failed", "error", reloadErr)
	}
	return false, err
}

func (c *Controller) refreshStats(ctx context.Context) {
	stats, err := c.api.Stats(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.logger.Warn("stats refresh failed", "error", err)
		c.state.Error = loadFailedMessage
		return
	}
	c.state.Stats = stats
}

func (c *Controller) requireSession() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Session == nil {
		return ErrNotLoggedIn
	}
	return nil
}

func (c *Controller) begin(kind MutationKind, taskID string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.beginLocked(kind, taskID)
}

func (c *Controller) beginLocked(kind MutationKind, taskID string) int64 {
	c.nextID++
	c.state.Mutations = append(c.state.Mutations, Mutation{
		ID:     c.nextID,
		Kind:   kind,
		TaskID: taskID,
		State:  MutationPending,
	})
	if n := len(c.state.Mutations); n > maxMutationLog {
		c.state.Mutations = append([]Mutation(nil), c.state.Mutations[n-maxMutationLog:]...)
	}
	return c.nextID
}

func (c *Controller) settle(id int64, to MutationState, err error) {
	c.settleTask(id, "", to, err)
}

// settleTask は pending の記録だけを遷移させます。呼び出し側でロックを保持していること。
func (c *Controller) settleTask(id int64, taskID string, to MutationState, err error) {
	for i := range c.state.Mutations {
		m := &c.state.Mutations[i]
		if m.ID != id {
			continue
		}
		if m.State != MutationPending {
			return
		}
		m.State = to
		if taskID != "" {
			m.TaskID = taskID
		}
		if err != nil {
			m.Err = err.Error()
		}
		return
	}
}

func (c *Controller) indexLocked(taskID string) int {
	for i := range c.state.Tasks {
		if c.state.Tasks[i].ID == taskID {
			return i
		}
	}
	return -1
}

func (c *Controller) replaceLocked(task models.Task) {
	if i := c.indexLocked(task.ID); i >= 0 {
		c.state.Tasks[i] = task
	}
}

func cloneTasks(tasks []models.Task) []models.Task {
	if tasks == nil {
		return nil
	}
	out := make([]models.Task, len(tasks))
	for i, t := range tasks {
		if t.DueDate != nil {
			d := *t.DueDate
			t.DueDate = &d
		}
		if t.CompletedAt != nil {
			ts := *t.CompletedAt
			t.CompletedAt = &ts
		}
		out[i] = t
	}
	return out
}

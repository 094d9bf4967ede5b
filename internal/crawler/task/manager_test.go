// Copyright (c) 2026 Novira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package task_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/novira/internal/crawler/engine"
	"github.com/taibuivan/novira/internal/crawler/siteconfig"
	"github.com/taibuivan/novira/internal/crawler/task"
	"github.com/taibuivan/novira/internal/platform/apperr"
)

// # Fakes

// fakeStore is an in-memory TaskRepository.
type fakeStore struct {
	mu      sync.Mutex
	rows    map[string]task.Task
	updates int
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: make(map[string]task.Task)}
}

func (store *fakeStore) seed(row task.Task) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.rows[row.ID] = row
}

func (store *fakeStore) row(id string) (task.Task, bool) {
	store.mu.Lock()
	defer store.mu.Unlock()
	row, ok := store.rows[id]
	return row, ok
}

func (store *fakeStore) updateCount() int {
	store.mu.Lock()
	defer store.mu.Unlock()
	return store.updates
}

func (store *fakeStore) Insert(_ context.Context, row *task.Task) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.rows[row.ID] = *row
	return nil
}

func (store *fakeStore) Update(_ context.Context, row *task.Task) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	if _, ok := store.rows[row.ID]; !ok {
		return apperr.NotFound("Task")
	}
	store.rows[row.ID] = *row
	store.updates++
	return nil
}

func (store *fakeStore) FindByID(_ context.Context, id string) (*task.Task, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	row, ok := store.rows[id]
	if !ok {
		return nil, apperr.NotFound("Task")
	}
	return &row, nil
}

func (store *fakeStore) List(_ context.Context) ([]*task.Task, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	rows := make([]*task.Task, 0, len(store.rows))
	for _, row := range store.rows {
		copied := row
		rows = append(rows, &copied)
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].CreatedAt.After(rows[j].CreatedAt)
	})
	return rows, nil
}

func (store *fakeStore) DeleteByID(_ context.Context, id string) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	delete(store.rows, id)
	return nil
}

func (store *fakeStore) DeleteTerminal(_ context.Context) (int64, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	var removed int64
	for id, row := range store.rows {
		if task.Terminal(row.Status) {
			delete(store.rows, id)
			removed++
		}
	}
	return removed, nil
}

func (store *fakeStore) ReclaimRunning(_ context.Context, detail string) (int64, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	var reclaimed int64
	for id, row := range store.rows {
		if row.Status != task.StatusRunning {
			continue
		}
		row.Status = task.StatusStopped
		row.Detail = detail
		store.rows[id] = row
		reclaimed++
	}
	return reclaimed, nil
}

// fakeLoader resolves config filenames from a fixed map.
type fakeLoader struct {
	configs map[string]*siteconfig.Config
}

func newFakeLoader(filenames ...string) *fakeLoader {
	loader := &fakeLoader{configs: make(map[string]*siteconfig.Config)}
	for _, filename := range filenames {
		loader.configs[filename] = &siteconfig.Config{Site: siteconfig.Site{Name: "testsite"}}
	}
	return loader
}

func (loader *fakeLoader) LoadConfig(_ context.Context, filename string) (*siteconfig.Config, error) {
	config, ok := loader.configs[filename]
	if !ok {
		return nil, apperr.NotFound("Config")
	}
	return config, nil
}

// fakeJanitor records document cleanup calls.
type fakeJanitor struct {
	mu    sync.Mutex
	calls []string
}

func (janitor *fakeJanitor) DeleteBySiteBook(_ context.Context, siteName, bookID string) (int64, error) {
	janitor.mu.Lock()
	defer janitor.mu.Unlock()
	janitor.calls = append(janitor.calls, siteName+"/"+bookID)
	return 1, nil
}

func (janitor *fakeJanitor) callCount() int {
	janitor.mu.Lock()
	defer janitor.mu.Unlock()
	return len(janitor.calls)
}

// fakeBroadcaster counts events per type.
type fakeBroadcaster struct {
	mu     sync.Mutex
	counts map[string]int
}

func newFakeBroadcaster() *fakeBroadcaster {
	return &fakeBroadcaster{counts: make(map[string]int)}
}

func (broadcaster *fakeBroadcaster) Broadcast(event string, _ string, _ any) {
	broadcaster.mu.Lock()
	defer broadcaster.mu.Unlock()
	broadcaster.counts[event]++
}

func (broadcaster *fakeBroadcaster) count(event string) int {
	broadcaster.mu.Lock()
	defer broadcaster.mu.Unlock()
	return broadcaster.counts[event]
}

// runnerFunc adapts a closure to the CrawlRunner interface.
type runnerFunc func(ctx context.Context) error

func (run runnerFunc) Run(ctx context.Context) error { return run(ctx) }

// factoryFor wraps a run closure that also receives the reporter.
func factoryFor(run func(ctx context.Context, reporter engine.Reporter) error) task.CrawlerFactory {
	return func(_ context.Context, _ task.Task, reporter engine.Reporter) (task.CrawlRunner, error) {
		return runnerFunc(func(ctx context.Context) error {
			return run(ctx, reporter)
		}), nil
	}
}

// # Harness

type managerFixture struct {
	manager     *task.Manager
	store       *fakeStore
	janitor     *fakeJanitor
	broadcaster *fakeBroadcaster
}

func newFixture(factory task.CrawlerFactory) *managerFixture {
	store := newFakeStore()
	janitor := &fakeJanitor{}
	broadcaster := newFakeBroadcaster()
	manager := task.NewManager(store, newFakeLoader("config_testsite.json"),
		janitor, factory, broadcaster, slog.Default())
	return &managerFixture{
		manager:     manager,
		store:       store,
		janitor:     janitor,
		broadcaster: broadcaster,
	}
}

// create queues a standard pending task.
func (fixture *managerFixture) create(t *testing.T) *task.Task {
	t.Helper()
	created, err := fixture.manager.Create(context.Background(), task.CreateParams{
		ConfigName: "config_testsite.json",
		BookID:     "7",
	})
	require.NoError(t, err)
	return created
}

// waitStatus blocks until the task reaches the wanted status.
func (fixture *managerFixture) waitStatus(t *testing.T, taskID, status string) *task.Task {
	t.Helper()
	var snapshot *task.Task
	require.Eventually(t, func() bool {
		found, err := fixture.manager.Get(context.Background(), taskID)
		if err != nil {
			return false
		}
		snapshot = found
		return found.Status == status
	}, 2*time.Second, 5*time.Millisecond)
	return snapshot
}

// # Create

/*
TestManager_Create verifies a queued task starts pending with the
default worker count and that the pending row is durable immediately.
*/
func TestManager_Create(t *testing.T) {
	fixture := newFixture(nil)

	// 1. Queue a task with an explicit book id and default workers
	created, err := fixture.manager.Create(context.Background(), task.CreateParams{
		ConfigName: "config_testsite.json",
		BookID:     "7",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, created.ID)
	assert.Equal(t, task.StatusPending, created.Status)
	assert.Equal(t, engine.StagePending, created.Stage)
	assert.Equal(t, 5, created.MaxWorkers)
	assert.Equal(t, "7", created.BookID)
	assert.Nil(t, created.StartedAt)

	// 2. The pending row is durable immediately
	row, ok := fixture.store.row(created.ID)
	require.True(t, ok)
	assert.Equal(t, task.StatusPending, row.Status)
}

/*
TestManager_Create_ExtractsBookID verifies a create without an explicit
book id derives one from the digits of the start URL.
*/
func TestManager_Create_ExtractsBookID(t *testing.T) {
	fixture := newFixture(nil)

	created, err := fixture.manager.Create(context.Background(), task.CreateParams{
		ConfigName: "config_testsite.json",
		StartURL:   "https://example.com/book/12345.html",
	})
	require.NoError(t, err)
	assert.Equal(t, "12345", created.BookID)
}

/*
TestManager_Create_Validation verifies malformed create parameters map
to 400 and an unknown config filename maps to 404.
*/
func TestManager_Create_Validation(t *testing.T) {
	fixture := newFixture(nil)

	cases := []struct {
		name   string
		params task.CreateParams
		status int
	}{
		{
			name:   "missing config filename",
			params: task.CreateParams{BookID: "7"},
			status: http.StatusBadRequest,
		},
		{
			name:   "neither book id nor start url",
			params: task.CreateParams{ConfigName: "config_testsite.json"},
			status: http.StatusBadRequest,
		},
		{
			name: "start url without digits",
			params: task.CreateParams{
				ConfigName: "config_testsite.json",
				StartURL:   "https://example.com/book/latest.html",
			},
			status: http.StatusBadRequest,
		},
		{
			name:   "unknown config",
			params: task.CreateParams{ConfigName: "config_missing.json", BookID: "7"},
			status: http.StatusNotFound,
		},
	}

	for _, testcase := range cases {
		t.Run(testcase.name, func(t *testing.T) {
			_, err := fixture.manager.Create(context.Background(), testcase.params)
			require.Error(t, err)

			appErr := apperr.As(err)
			require.NotNil(t, appErr)
			assert.Equal(t, testcase.status, appErr.HTTPStatus)
		})
	}
}

// # Lifecycle

/*
TestManager_StartLifecycle verifies a started task drains to completed,
carrying progress and document metadata into the durable row and
broadcasting its lifecycle events to the hub.
*/
func TestManager_StartLifecycle(t *testing.T) {
	factory := factoryFor(func(_ context.Context, reporter engine.Reporter) error {
		reporter.OnProgress(engine.Progress{
			Stage:          engine.StageDownloading,
			Total:          4,
			DocumentTitle:  "仙逆",
			DocumentAuthor: "耳根",
		})
		reporter.OnLog(engine.LevelInfo, "downloading")
		reporter.OnProgress(engine.Progress{
			Stage:     engine.StageDownloading,
			Total:     4,
			Completed: 4,
		})
		return nil
	})
	fixture := newFixture(factory)
	created := fixture.create(t)

	// 1. Start spawns the worker and the task drains to completed
	require.NoError(t, fixture.manager.Start(context.Background(), created.ID))
	finished := fixture.waitStatus(t, created.ID, task.StatusCompleted)

	assert.Equal(t, 4, finished.TotalChapters)
	assert.Equal(t, 4, finished.CompletedChapters)
	assert.InDelta(t, 100.0, finished.ProgressPercent, 0.01)
	assert.Equal(t, "仙逆", finished.DocumentTitle)
	assert.Equal(t, "耳根", finished.DocumentAuthor)
	assert.NotNil(t, finished.StartedAt)
	assert.NotNil(t, finished.EndedAt)

	// 2. Started line, runner line, completion line
	assert.Equal(t, 3, finished.LogCount)

	// 3. The terminal state synced durably
	row, ok := fixture.store.row(created.ID)
	require.True(t, ok)
	assert.Equal(t, task.StatusCompleted, row.Status)
	assert.NotNil(t, row.EndedAt)

	// 4. Lifecycle events reached the hub
	assert.Equal(t, 1, fixture.broadcaster.count(task.EventTaskStarted))
	assert.GreaterOrEqual(t, fixture.broadcaster.count(task.EventTaskProgress), 2)
	assert.GreaterOrEqual(t, fixture.broadcaster.count(task.EventTaskLog), 3)
}

/*
TestManager_Start_Conflict verifies starting a task that already holds
a worker answers 409 and leaves the running worker undisturbed.
*/
func TestManager_Start_Conflict(t *testing.T) {
	release := make(chan struct{})
	factory := factoryFor(func(context.Context, engine.Reporter) error {
		<-release
		return nil
	})
	fixture := newFixture(factory)
	created := fixture.create(t)

	require.NoError(t, fixture.manager.Start(context.Background(), created.ID))

	// A second start while the worker holds the task conflicts
	err := fixture.manager.Start(context.Background(), created.ID)
	require.Error(t, err)
	appErr := apperr.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, http.StatusConflict, appErr.HTTPStatus)

	close(release)
	fixture.waitStatus(t, created.ID, task.StatusCompleted)
}

/*
TestManager_Start_NotFound verifies an unknown id answers 404 on start,
as does a history-only row whose crawl parameters are gone.
*/
func TestManager_Start_NotFound(t *testing.T) {
	fixture := newFixture(nil)

	// 1. Unknown id
	err := fixture.manager.Start(context.Background(), "missing")
	require.Error(t, err)
	appErr := apperr.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, http.StatusNotFound, appErr.HTTPStatus)

	// 2. A history-only row has no crawl parameters left to run with
	fixture.store.seed(task.Task{ID: "history", Status: task.StatusStopped})
	err = fixture.manager.Start(context.Background(), "history")
	require.Error(t, err)
	appErr = apperr.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, http.StatusNotFound, appErr.HTTPStatus)
}

/*
TestManager_Stop verifies a stop latches the worker's stop flag and the
task lands stopped with an empty error message. A second stop on the
terminal task is a no-op.
*/
func TestManager_Stop(t *testing.T) {
	factory := factoryFor(func(_ context.Context, reporter engine.Reporter) error {
		for !reporter.ShouldStop() {
			time.Sleep(time.Millisecond)
		}
		return engine.ErrStopped
	})
	fixture := newFixture(factory)
	created := fixture.create(t)

	require.NoError(t, fixture.manager.Start(context.Background(), created.ID))
	require.NoError(t, fixture.manager.Stop(context.Background(), created.ID))

	stopped := fixture.waitStatus(t, created.ID, task.StatusStopped)
	assert.Empty(t, stopped.ErrorMessage)

	logs, err := fixture.manager.Logs(context.Background(), created.ID, 0)
	require.NoError(t, err)
	messages := make([]string, 0, len(logs))
	for _, entry := range logs {
		messages = append(messages, entry.Message)
	}
	assert.Contains(t, messages, "stop requested")
	assert.Contains(t, messages, "task stopped")

	assert.GreaterOrEqual(t, fixture.broadcaster.count(task.EventTaskStopped), 1)

	// Stopping an already stopped task is a no-op
	require.NoError(t, fixture.manager.Stop(context.Background(), created.ID))
}

/*
TestManager_Stop_Zombie verifies stopping a durable running row with no
live worker folds the row to stopped in place.
*/
func TestManager_Stop_Zombie(t *testing.T) {
	fixture := newFixture(nil)

	// A durable running row with no live worker behind it
	fixture.store.seed(task.Task{ID: "zombie", Status: task.StatusRunning})

	require.NoError(t, fixture.manager.Stop(context.Background(), "zombie"))

	row, ok := fixture.store.row("zombie")
	require.True(t, ok)
	assert.Equal(t, task.StatusStopped, row.Status)
	assert.Equal(t, "forced stop; no live worker", row.Detail)
	assert.NotNil(t, row.EndedAt)

	// Idempotent now that the row is terminal
	require.NoError(t, fixture.manager.Stop(context.Background(), "zombie"))

	// Unknown in both layers
	err := fixture.manager.Stop(context.Background(), "missing")
	require.Error(t, err)
	appErr := apperr.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, http.StatusNotFound, appErr.HTTPStatus)
}

/*
TestManager_RunnerError verifies a runner failure lands the task failed
with the error message in both the live snapshot and the durable row.
*/
func TestManager_RunnerError(t *testing.T) {
	factory := factoryFor(func(context.Context, engine.Reporter) error {
		return errors.New("fetch exhausted retries")
	})
	fixture := newFixture(factory)
	created := fixture.create(t)

	require.NoError(t, fixture.manager.Start(context.Background(), created.ID))
	failed := fixture.waitStatus(t, created.ID, task.StatusFailed)

	assert.Equal(t, "fetch exhausted retries", failed.ErrorMessage)

	row, ok := fixture.store.row(created.ID)
	require.True(t, ok)
	assert.Equal(t, task.StatusFailed, row.Status)
	assert.Equal(t, "fetch exhausted retries", row.ErrorMessage)
}

/*
TestManager_FactoryError verifies a factory failure surfaces as a
failed task after Start has already returned.
*/
func TestManager_FactoryError(t *testing.T) {
	factory := func(context.Context, task.Task, engine.Reporter) (task.CrawlRunner, error) {
		return nil, errors.New("config unreadable")
	}
	fixture := newFixture(factory)
	created := fixture.create(t)

	// The factory runs inside the worker, so Start itself succeeds
	require.NoError(t, fixture.manager.Start(context.Background(), created.ID))
	failed := fixture.waitStatus(t, created.ID, task.StatusFailed)

	assert.Contains(t, failed.ErrorMessage, "config unreadable")
}

/*
TestManager_Restart verifies a terminal task starts again with a clean
error slate and a fresh started event.
*/
func TestManager_Restart(t *testing.T) {
	factory := factoryFor(func(context.Context, engine.Reporter) error {
		return nil
	})
	fixture := newFixture(factory)
	created := fixture.create(t)

	require.NoError(t, fixture.manager.Start(context.Background(), created.ID))
	fixture.waitStatus(t, created.ID, task.StatusCompleted)

	// A terminal task starts again with a clean error slate
	require.NoError(t, fixture.manager.Start(context.Background(), created.ID))
	again := fixture.waitStatus(t, created.ID, task.StatusCompleted)
	assert.Empty(t, again.ErrorMessage)
	assert.Equal(t, 2, fixture.broadcaster.count(task.EventTaskStarted))
}

// # Progress and Logs

/*
TestManager_ProgressSyncPolicy verifies progress reaches the durable
store only on stage transitions and every tenth completed chapter, not
on every report.
*/
func TestManager_ProgressSyncPolicy(t *testing.T) {
	factory := factoryFor(func(_ context.Context, reporter engine.Reporter) error {
		for completed := 0; completed <= 20; completed++ {
			reporter.OnProgress(engine.Progress{
				Stage:     engine.StageDownloading,
				Total:     20,
				Completed: completed,
			})
		}
		// A repeat of the same multiple must not sync again
		reporter.OnProgress(engine.Progress{
			Stage:     engine.StageDownloading,
			Total:     20,
			Completed: 20,
		})
		return nil
	})
	fixture := newFixture(factory)
	created := fixture.create(t)

	require.NoError(t, fixture.manager.Start(context.Background(), created.ID))
	fixture.waitStatus(t, created.ID, task.StatusCompleted)

	// Start transition, stage transition, completed 10 and 20, terminal
	assert.Equal(t, 5, fixture.store.updateCount())
}

/*
TestManager_Logs verifies the ring keeps the newest thousand lines and
the default page is the most recent hundred. History-only tasks answer
with no lines, unknown tasks with an error.
*/
func TestManager_Logs(t *testing.T) {
	lines := 1050
	factory := factoryFor(func(_ context.Context, reporter engine.Reporter) error {
		for index := 0; index < lines; index++ {
			reporter.OnLog(engine.LevelInfo, fmt.Sprintf("line %d", index))
		}
		return nil
	})
	fixture := newFixture(factory)
	created := fixture.create(t)

	require.NoError(t, fixture.manager.Start(context.Background(), created.ID))
	fixture.waitStatus(t, created.ID, task.StatusCompleted)

	// 1. The ring holds the newest thousand lines
	all, err := fixture.manager.Logs(context.Background(), created.ID, 2000)
	require.NoError(t, err)
	require.Len(t, all, 1000)
	assert.Equal(t, "task completed", all[len(all)-1].Message)
	assert.Equal(t, fmt.Sprintf("line %d", lines-999), all[0].Message)

	// 2. The default page is the most recent hundred
	page, err := fixture.manager.Logs(context.Background(), created.ID, 0)
	require.NoError(t, err)
	require.Len(t, page, 100)
	assert.Equal(t, all[len(all)-100].Message, page[0].Message)

	// 3. History-only tasks answer with no lines
	fixture.store.seed(task.Task{ID: "history", Status: task.StatusStopped})
	empty, err := fixture.manager.Logs(context.Background(), "history", 0)
	require.NoError(t, err)
	assert.Empty(t, empty)

	// 4. Unknown tasks are an error
	_, err = fixture.manager.Logs(context.Background(), "missing", 0)
	require.Error(t, err)
}

// # Delete and Cleanup

/*
TestManager_Delete_PendingKeepsDocuments verifies deleting a task that
never started removes it from both layers without touching documents.
*/
func TestManager_Delete_PendingKeepsDocuments(t *testing.T) {
	fixture := newFixture(nil)
	created := fixture.create(t)

	require.NoError(t, fixture.manager.Delete(context.Background(), created.ID))

	_, err := fixture.manager.Get(context.Background(), created.ID)
	require.Error(t, err)
	_, ok := fixture.store.row(created.ID)
	assert.False(t, ok)

	// Never started, so there is no partial output to clean
	assert.Zero(t, fixture.janitor.callCount())
}

/*
TestManager_Delete_CompletedKeepsDocuments verifies deleting a finished
task keeps the document it produced.
*/
func TestManager_Delete_CompletedKeepsDocuments(t *testing.T) {
	factory := factoryFor(func(context.Context, engine.Reporter) error {
		return nil
	})
	fixture := newFixture(factory)
	created := fixture.create(t)

	require.NoError(t, fixture.manager.Start(context.Background(), created.ID))
	fixture.waitStatus(t, created.ID, task.StatusCompleted)

	require.NoError(t, fixture.manager.Delete(context.Background(), created.ID))

	// A finished crawl keeps its document
	assert.Zero(t, fixture.janitor.callCount())
}

/*
TestManager_Delete_RunningRemovesDocument verifies deleting a running
task stops and joins the worker and removes the partial document.
*/
func TestManager_Delete_RunningRemovesDocument(t *testing.T) {
	factory := factoryFor(func(_ context.Context, reporter engine.Reporter) error {
		for !reporter.ShouldStop() {
			time.Sleep(time.Millisecond)
		}
		return engine.ErrStopped
	})
	fixture := newFixture(factory)
	created := fixture.create(t)

	require.NoError(t, fixture.manager.Start(context.Background(), created.ID))

	// 1. Delete latches the stop, joins the worker, removes both layers
	require.NoError(t, fixture.manager.Delete(context.Background(), created.ID))

	_, err := fixture.manager.Get(context.Background(), created.ID)
	require.Error(t, err)

	// 2. The interrupted crawl's partial document went with it
	require.Equal(t, 1, fixture.janitor.callCount())
	assert.Equal(t, []string{"testsite/7"}, fixture.janitor.calls)
}

/*
TestManager_Delete_HistoryRow verifies deleting an interrupted history
row also removes its partial document, and an unknown id answers 404.
*/
func TestManager_Delete_HistoryRow(t *testing.T) {
	fixture := newFixture(nil)
	started := time.Now().Add(-time.Hour)
	fixture.store.seed(task.Task{
		ID:         "history",
		ConfigName: "config_testsite.json",
		BookID:     "9",
		Status:     task.StatusFailed,
		StartedAt:  &started,
	})

	require.NoError(t, fixture.manager.Delete(context.Background(), "history"))

	_, ok := fixture.store.row("history")
	assert.False(t, ok)
	assert.Equal(t, []string{"testsite/9"}, fixture.janitor.calls)

	// Unknown in both layers
	err := fixture.manager.Delete(context.Background(), "missing")
	require.Error(t, err)
	appErr := apperr.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, http.StatusNotFound, appErr.HTTPStatus)
}

/*
TestManager_ClearCompleted verifies the sweep removes only terminal
history rows and leaves running and pending tasks in place.
*/
func TestManager_ClearCompleted(t *testing.T) {
	release := make(chan struct{})
	factory := factoryFor(func(context.Context, engine.Reporter) error {
		<-release
		return nil
	})
	fixture := newFixture(factory)

	// One live running task, one live pending, one terminal history row
	running := fixture.create(t)
	require.NoError(t, fixture.manager.Start(context.Background(), running.ID))
	pending := fixture.create(t)
	fixture.store.seed(task.Task{ID: "old", Status: task.StatusCompleted})

	removed, err := fixture.manager.ClearCompleted(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	// The running and pending tasks survive the sweep
	_, err = fixture.manager.Get(context.Background(), running.ID)
	require.NoError(t, err)
	_, err = fixture.manager.Get(context.Background(), pending.ID)
	require.NoError(t, err)
	_, err = fixture.manager.Get(context.Background(), "old")
	require.Error(t, err)

	close(release)
	fixture.waitStatus(t, running.ID, task.StatusCompleted)
}

/*
TestManager_ReclaimZombies verifies startup reclaim folds lingering
running rows to stopped without touching finished ones.
*/
func TestManager_ReclaimZombies(t *testing.T) {
	fixture := newFixture(nil)
	fixture.store.seed(task.Task{ID: "zombie-1", Status: task.StatusRunning})
	fixture.store.seed(task.Task{ID: "zombie-2", Status: task.StatusRunning})
	fixture.store.seed(task.Task{ID: "finished", Status: task.StatusCompleted})

	reclaimed, err := fixture.manager.ReclaimZombies(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), reclaimed)

	for _, id := range []string{"zombie-1", "zombie-2"} {
		row, ok := fixture.store.row(id)
		require.True(t, ok)
		assert.Equal(t, task.StatusStopped, row.Status)
		assert.Equal(t, "reclaimed at startup", row.Detail)
	}

	row, _ := fixture.store.row("finished")
	assert.Equal(t, task.StatusCompleted, row.Status)
}

// # List

/*
TestManager_List verifies listing merges live snapshots over stale
durable rows, newest first, and keeps a live task whose durable row
vanished.
*/
func TestManager_List(t *testing.T) {
	fixture := newFixture(nil)

	// 1. An old history row and a fresh live task
	fixture.store.seed(task.Task{
		ID:        "old",
		Status:    task.StatusCompleted,
		CreatedAt: time.Now().Add(-2 * time.Hour),
	})
	created := fixture.create(t)

	// 2. Make the durable copy stale; the live snapshot must win
	fixture.store.seed(task.Task{
		ID:        created.ID,
		Status:    task.StatusFailed,
		CreatedAt: created.CreatedAt,
	})

	tasks, err := fixture.manager.List(context.Background())
	require.NoError(t, err)
	require.Len(t, tasks, 2)

	assert.Equal(t, created.ID, tasks[0].ID)
	assert.Equal(t, task.StatusPending, tasks[0].Status)
	assert.Equal(t, "old", tasks[1].ID)

	// 3. A live task whose row vanished still lists
	require.NoError(t, fixture.store.DeleteByID(context.Background(), created.ID))
	tasks, err = fixture.manager.List(context.Background())
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, created.ID, tasks[0].ID)
}

// Copyright (c) 2026 Novira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/taibuivan/novira/internal/crawler/engine"
	"github.com/taibuivan/novira/internal/crawler/siteconfig"
	"github.com/taibuivan/novira/internal/platform/apperr"
	"github.com/taibuivan/novira/internal/platform/constants"
	"github.com/taibuivan/novira/internal/platform/validate"
	"github.com/taibuivan/novira/pkg/uuidv7"
)

const (
	// syncEvery is the completed-chapter stride between durable progress
	// writes while a task runs.
	syncEvery = 10

	// deleteJoinTimeout bounds how long Delete waits for a stopping
	// worker before removing the task anyway.
	deleteJoinTimeout = 2 * time.Second

	// persistTimeout bounds each durable sync; syncs run detached from
	// request contexts.
	persistTimeout = 5 * time.Second

	// defaultLogLimit is the log page size when a request names none.
	defaultLogLimit = 100

	// maxWorkerCap rejects absurd per-task worker counts at create time.
	maxWorkerCap = 64
)

// # Supervisor Dependencies

// ConfigLoader resolves a config filename into a parsed site config.
// Implemented by the siteconfig service.
type ConfigLoader interface {
	LoadConfig(context context.Context, filename string) (*siteconfig.Config, error)
}

// DocumentJanitor removes the document a crawl produced. Forceful task
// deletion uses it to clean up partial output.
type DocumentJanitor interface {
	DeleteBySiteBook(context context.Context, siteName, bookID string) (int64, error)
}

// CrawlRunner is the running side of a built crawler.
type CrawlRunner interface {
	Run(context context.Context) error
}

// CrawlerFactory builds the crawler for one start attempt. The factory
// runs inside the worker goroutine; its error fails the task rather than
// the start request.
type CrawlerFactory func(context context.Context, task Task, reporter engine.Reporter) (CrawlRunner, error)

// # Push Events

// Event names emitted to the push hub, one per lifecycle edge.
const (
	EventTaskStarted  = "task_started"
	EventTaskProgress = "task_progress"
	EventTaskLog      = "task_log"
	EventTaskStopped  = "task_stopped"
)

// Broadcaster fans an event out to interested push clients. The task id
// rides outside the payload so the hub can filter subscriptions without
// decoding it.
type Broadcaster interface {
	Broadcast(event string, taskID string, payload any)
}

// NopBroadcaster drops events; tests and push-less deployments use it.
type NopBroadcaster struct{}

// Broadcast implements [Broadcaster].
func (NopBroadcaster) Broadcast(string, string, any) {}

// Wire shapes of the pushed payloads.
type taskEvent struct {
	TaskID string `json:"task_id"`
}

type progressEvent struct {
	TaskID   string `json:"task_id"`
	Progress *Task  `json:"progress"`
}

type logEvent struct {
	TaskID string   `json:"task_id"`
	Log    LogEntry `json:"log"`
}

// # Live State

// liveTask pairs a task snapshot with its runtime controls. The mutex
// guards task, logs and lastSynced; the stop latch is read lock-free from
// worker loops.
type liveTask struct {
	mu   sync.Mutex
	task Task
	logs []LogEntry

	stop atomic.Bool
	done chan struct{}

	lastSynced int
}

// snapshotLocked copies the task with derived fields filled. Callers hold
// live.mu.
func (live *liveTask) snapshotLocked() *Task {
	snapshot := live.task
	snapshot.fillDerived(len(live.logs))
	return &snapshot
}

// taskReporter is the engine-facing side of one worker: progress lands on
// the task, log lines feed the ring, the latch answers stop polls.
type taskReporter struct {
	manager *Manager
	live    *liveTask
}

// OnProgress implements [engine.Reporter].
func (reporter *taskReporter) OnProgress(progress engine.Progress) {
	reporter.manager.applyProgress(reporter.live, progress)
}

// OnLog implements [engine.Reporter].
func (reporter *taskReporter) OnLog(level, message string) {
	reporter.manager.addLog(reporter.live, level, message)
}

// ShouldStop implements [engine.Reporter].
func (reporter *taskReporter) ShouldStop() bool {
	return reporter.live.stop.Load()
}

// # Manager

// Manager supervises crawl tasks across the in-memory registry and the
// durable history table.
type Manager struct {
	store       TaskRepository
	configs     ConfigLoader
	documents   DocumentJanitor
	factory     CrawlerFactory
	broadcaster Broadcaster
	logger      *slog.Logger

	mu    sync.RWMutex
	tasks map[string]*liveTask
}

// NewManager wires a task supervisor. A nil broadcaster falls back to
// [NopBroadcaster].
func NewManager(store TaskRepository, configs ConfigLoader, documents DocumentJanitor,
	factory CrawlerFactory, broadcaster Broadcaster, logger *slog.Logger) *Manager {
	if broadcaster == nil {
		broadcaster = NopBroadcaster{}
	}
	return &Manager{
		store:       store,
		configs:     configs,
		documents:   documents,
		factory:     factory,
		broadcaster: broadcaster,
		logger:      logger,
		tasks:       make(map[string]*liveTask),
	}
}

// live returns the in-memory task, or nil.
func (manager *Manager) live(taskID string) *liveTask {
	manager.mu.RLock()
	defer manager.mu.RUnlock()
	return manager.tasks[taskID]
}

// # Lifecycle

// CreateParams carries the operator's crawl request.
type CreateParams struct {
	ConfigName  string
	BookID      string
	StartURL    string
	MaxWorkers  int
	UseProxy    bool
	RetryFailed bool
}

/*
Create queues a new pending task.

Description: The named config must exist and parse. When book_id is
absent it is extracted from start_url as the first digit run of the URL
path. The task lands in both layers: a pending durable row and a live
registry entry.

Parameters:
  - context: context.Context
  - params: CreateParams

Returns:
  - *Task: The pending task snapshot
  - error: Validation failures, apperr.NotFound for an unknown config
*/
func (manager *Manager) Create(context context.Context, params CreateParams) (*Task, error) {

	// 1. Shape validation before any I/O
	validator := &validate.Validator{}
	validator.Required(FieldConfigFilename, params.ConfigName)
	validator.Custom(FieldBookID, params.BookID == "" && params.StartURL == "",
		"Provide book_id or start_url")
	if params.StartURL != "" {
		validator.URL(FieldStartURL, params.StartURL)
	}
	validator.Range(FieldMaxWorkers, params.MaxWorkers, 0, maxWorkerCap)
	if err := validator.Err(); err != nil {
		return nil, err
	}

	// 2. The config must exist and parse before a task is queued on it
	if _, err := manager.configs.LoadConfig(context, params.ConfigName); err != nil {
		return nil, err
	}

	// 3. Book id, explicit or extracted from the start URL
	bookID := params.BookID
	if bookID == "" {
		extracted, ok := engine.ExtractBookID(params.StartURL)
		if !ok {
			return nil, apperr.ValidationError("No book id found in start_url")
		}
		bookID = extracted
	}

	maxWorkers := params.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = constants.DefaultTaskWorkers
	}

	// 4. Pending row in both layers
	now := time.Now()
	created := Task{
		ID:          uuidv7.New(),
		ConfigName:  params.ConfigName,
		BookID:      bookID,
		MaxWorkers:  maxWorkers,
		UseProxy:    params.UseProxy,
		StartURL:    params.StartURL,
		RetryFailed: params.RetryFailed,
		Status:      StatusPending,
		Stage:       engine.StagePending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := manager.store.Insert(context, &created); err != nil {
		return nil, err
	}

	live := &liveTask{task: created}
	manager.mu.Lock()
	manager.tasks[created.ID] = live
	manager.mu.Unlock()

	manager.logger.Info("task_created",
		slog.String("task_id", created.ID),
		slog.String("config", created.ConfigName),
		slog.String("book_id", bookID))

	live.mu.Lock()
	defer live.mu.Unlock()
	return live.snapshotLocked(), nil
}

/*
Start spawns the worker for a task.

Description: Rejected with a conflict while the task is already running.
The stop latch is cleared, the status transition syncs durably, and the
worker goroutine takes over: it builds the crawler through the factory and
runs it to a terminal status. Factory errors fail the task, not this call.

Parameters:
  - context: context.Context
  - taskID: string (UUID)

Returns:
  - error: apperr.NotFound for unknown or history-only tasks,
    apperr.Conflict when already running
*/
func (manager *Manager) Start(context context.Context, taskID string) error {
	live := manager.live(taskID)
	if live == nil {
		return apperr.NotFound("Task")
	}

	live.mu.Lock()
	configName := live.task.ConfigName
	running := live.task.Status == StatusRunning
	live.mu.Unlock()
	if running {
		return apperr.Conflict("Task is already running")
	}

	// The config can vanish between create and start
	if _, err := manager.configs.LoadConfig(context, configName); err != nil {
		return err
	}

	now := time.Now()
	live.mu.Lock()
	if live.task.Status == StatusRunning {
		live.mu.Unlock()
		return apperr.Conflict("Task is already running")
	}
	live.stop.Store(false)
	live.task.Status = StatusRunning
	live.task.StartedAt = &now
	live.task.EndedAt = nil
	live.task.ErrorMessage = ""
	live.task.UpdatedAt = now
	live.done = make(chan struct{})
	done := live.done
	snapshot := live.snapshotLocked()
	live.mu.Unlock()

	manager.persist(snapshot)
	manager.addLog(live, engine.LevelInfo, "task started: "+snapshot.ConfigName)
	manager.broadcaster.Broadcast(EventTaskStarted, snapshot.ID, taskEvent{TaskID: snapshot.ID})
	manager.logger.Info("task_started",
		slog.String("task_id", snapshot.ID),
		slog.String("book_id", snapshot.BookID))

	go manager.run(live, done)
	return nil
}

// run owns one crawl attempt to its terminal status.
func (manager *Manager) run(live *liveTask, done chan struct{}) {
	defer close(done)

	// Workers outlive request contexts; stopping goes through the latch
	ctx := context.Background()

	live.mu.Lock()
	params := live.task
	live.mu.Unlock()

	reporter := &taskReporter{manager: manager, live: live}
	runErr := func() error {
		crawler, err := manager.factory(ctx, params, reporter)
		if err != nil {
			return fmt.Errorf("build crawler: %w", err)
		}
		return crawler.Run(ctx)
	}()

	// 1. Decide the terminal status on a local copy
	now := time.Now()
	live.mu.Lock()
	final := live.task
	live.mu.Unlock()

	switch {
	case runErr == nil && !live.stop.Load():
		final.Status = StatusCompleted
	case runErr == nil || errors.Is(runErr, engine.ErrStopped):
		final.Status = StatusStopped
	default:
		final.Status = StatusFailed
		final.ErrorMessage = runErr.Error()
	}
	final.EndedAt = &now
	final.UpdatedAt = now

	// 2. Sync, log and push against the copy
	switch final.Status {
	case StatusCompleted:
		manager.addLog(live, engine.LevelSuccess, "task completed")
	case StatusStopped:
		manager.addLog(live, engine.LevelWarning, "task stopped")
	default:
		manager.addLog(live, engine.LevelError, "task failed: "+final.ErrorMessage)
	}

	live.mu.Lock()
	final.fillDerived(len(live.logs))
	live.mu.Unlock()

	manager.persist(&final)

	if final.Status == StatusStopped {
		manager.broadcaster.Broadcast(EventTaskStopped, final.ID, taskEvent{TaskID: final.ID})
	}
	manager.broadcaster.Broadcast(EventTaskProgress, final.ID,
		progressEvent{TaskID: final.ID, Progress: &final})

	// 3. Commit last, so an observer seeing a terminal status also sees
	// its durable row and push events already landed
	live.mu.Lock()
	live.task.Status = final.Status
	live.task.ErrorMessage = final.ErrorMessage
	live.task.EndedAt = final.EndedAt
	live.task.UpdatedAt = final.UpdatedAt
	live.mu.Unlock()

	manager.logger.Info("task_finished",
		slog.String("task_id", final.ID),
		slog.String("status", final.Status))
}

/*
Stop requests cancellation of a task.

Description: For a live task the stop latch is set; workers honor it at
their next checkpoint, so the terminal status arrives when the worker
drains. Stopping a task that is not running is a no-op. A durable running
row with no live counterpart is a zombie from a dead process and is folded
to stopped directly.

Parameters:
  - context: context.Context
  - taskID: string (UUID)

Returns:
  - error: apperr.NotFound when the task exists in neither layer
*/
func (manager *Manager) Stop(context context.Context, taskID string) error {
	if live := manager.live(taskID); live != nil {
		live.stop.Store(true)

		live.mu.Lock()
		running := live.task.Status == StatusRunning
		live.mu.Unlock()

		if running {
			manager.addLog(live, engine.LevelWarning, "stop requested")
			manager.broadcaster.Broadcast(EventTaskStopped, taskID, taskEvent{TaskID: taskID})
			manager.logger.Info("task_stop_requested", slog.String("task_id", taskID))
		}
		return nil
	}

	// Not in memory: a running row here has no worker behind it
	row, err := manager.store.FindByID(context, taskID)
	if err != nil {
		return err
	}
	if row.Status != StatusRunning {
		return nil
	}

	now := time.Now()
	row.Status = StatusStopped
	row.Detail = "forced stop; no live worker"
	row.EndedAt = &now
	row.UpdatedAt = now
	if err := manager.store.Update(context, row); err != nil {
		return err
	}

	manager.broadcaster.Broadcast(EventTaskStopped, taskID, taskEvent{TaskID: taskID})
	manager.logger.Warn("task_force_stopped", slog.String("task_id", taskID))
	return nil
}

/*
Delete removes a task from both layers, forcefully.

Description: A running worker gets the stop latch and a brief join; the
task is removed whether or not it drained in time. When the task ran but
never completed, the partial crawl output is removed too: the document for
the task's site and book is deleted and its chapters go with it through
the cascade. A completed task keeps its document.

Parameters:
  - context: context.Context
  - taskID: string (UUID)

Returns:
  - error: apperr.NotFound when the task exists in neither layer
*/
func (manager *Manager) Delete(context context.Context, taskID string) error {
	live := manager.live(taskID)

	var final Task
	if live != nil {
		live.stop.Store(true)

		live.mu.Lock()
		running := live.task.Status == StatusRunning
		done := live.done
		live.mu.Unlock()

		// Brief join so the worker sees the latch before the task vanishes
		if running && done != nil {
			select {
			case <-done:
			case <-time.After(deleteJoinTimeout):
			}
		}

		live.mu.Lock()
		final = live.task
		live.mu.Unlock()

		manager.mu.Lock()
		delete(manager.tasks, taskID)
		manager.mu.Unlock()
	} else {
		row, err := manager.store.FindByID(context, taskID)
		if err != nil {
			return err
		}
		final = *row
	}

	if err := manager.store.DeleteByID(context, taskID); err != nil {
		return err
	}

	// Partial output cleanup; a never-started task produced nothing
	if final.StartedAt != nil && final.Status != StatusCompleted {
		manager.cleanupDocument(context, final.ConfigName, final.BookID)
	}

	manager.logger.Info("task_deleted",
		slog.String("task_id", taskID),
		slog.String("status", final.Status))
	return nil
}

// cleanupDocument removes the document a deleted task left behind. Best
// effort; an unresolvable config only logs.
func (manager *Manager) cleanupDocument(context context.Context, configName, bookID string) {
	config, err := manager.configs.LoadConfig(context, configName)
	if err != nil {
		manager.logger.Warn("task_cleanup_skipped",
			slog.String("config", configName),
			slog.Any("error", err))
		return
	}

	removed, err := manager.documents.DeleteBySiteBook(context, config.Site.Name, bookID)
	if err != nil {
		manager.logger.Warn("task_cleanup_failed",
			slog.String("site", config.Site.Name),
			slog.String("book_id", bookID),
			slog.Any("error", err))
		return
	}
	if removed > 0 {
		manager.logger.Info("task_cleanup_removed_document",
			slog.String("site", config.Site.Name),
			slog.String("book_id", bookID))
	}
}

// # Queries

/*
Get returns one task snapshot, live when a worker holds it, otherwise the
durable history row.

Parameters:
  - context: context.Context
  - taskID: string (UUID)

Returns:
  - *Task: Snapshot with derived fields filled
  - error: apperr.NotFound when the task exists in neither layer
*/
func (manager *Manager) Get(context context.Context, taskID string) (*Task, error) {
	if live := manager.live(taskID); live != nil {
		live.mu.Lock()
		defer live.mu.Unlock()
		return live.snapshotLocked(), nil
	}

	row, err := manager.store.FindByID(context, taskID)
	if err != nil {
		return nil, err
	}
	row.fillDerived(0)
	return row, nil
}

/*
List returns every task, newest first. Live snapshots win over their
durable rows; history-only rows fill in the rest.

Parameters:
  - context: context.Context

Returns:
  - []*Task: Merged snapshots ordered by creation time descending
  - error: Storage failures
*/
func (manager *Manager) List(context context.Context) ([]*Task, error) {
	rows, err := manager.store.List(context)
	if err != nil {
		return nil, err
	}

	manager.mu.RLock()
	registry := make(map[string]*liveTask, len(manager.tasks))
	for id, live := range manager.tasks {
		registry[id] = live
	}
	manager.mu.RUnlock()

	tasks := make([]*Task, 0, len(rows))
	seen := make(map[string]bool, len(rows))
	for _, row := range rows {
		if live, ok := registry[row.ID]; ok {
			live.mu.Lock()
			tasks = append(tasks, live.snapshotLocked())
			live.mu.Unlock()
		} else {
			row.fillDerived(0)
			tasks = append(tasks, row)
		}
		seen[row.ID] = true
	}

	// Live tasks whose row is already gone still list
	for id, live := range registry {
		if seen[id] {
			continue
		}
		live.mu.Lock()
		tasks = append(tasks, live.snapshotLocked())
		live.mu.Unlock()
	}

	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
	})
	return tasks, nil
}

/*
Logs returns the most recent log lines of a task, oldest first.

Description: The ring lives only in memory; a history-only task answers
with an empty slice. A non-positive limit uses the default page of 100.

Parameters:
  - context: context.Context
  - taskID: string (UUID)
  - limit: int

Returns:
  - []LogEntry: Up to limit entries
  - error: apperr.NotFound when the task exists in neither layer
*/
func (manager *Manager) Logs(context context.Context, taskID string, limit int) ([]LogEntry, error) {
	if limit <= 0 {
		limit = defaultLogLimit
	}

	if live := manager.live(taskID); live != nil {
		live.mu.Lock()
		defer live.mu.Unlock()

		start := len(live.logs) - limit
		if start < 0 {
			start = 0
		}
		return append([]LogEntry(nil), live.logs[start:]...), nil
	}

	if _, err := manager.store.FindByID(context, taskID); err != nil {
		return nil, err
	}
	return []LogEntry{}, nil
}

// # Maintenance

/*
ClearCompleted removes every terminal task from both layers.

Parameters:
  - context: context.Context

Returns:
  - int64: Durable rows removed
  - error: Storage failures
*/
func (manager *Manager) ClearCompleted(context context.Context) (int64, error) {
	manager.mu.Lock()
	for id, live := range manager.tasks {
		live.mu.Lock()
		terminal := Terminal(live.task.Status)
		live.mu.Unlock()
		if terminal {
			delete(manager.tasks, id)
		}
	}
	manager.mu.Unlock()

	removed, err := manager.store.DeleteTerminal(context)
	if err != nil {
		return 0, err
	}

	manager.logger.Info("tasks_cleared", slog.Int64("count", removed))
	return removed, nil
}

/*
ReclaimZombies folds durable running rows to stopped. Called once at
startup, before any task can start: a running row at that point belongs
to a dead process.

Parameters:
  - context: context.Context

Returns:
  - int64: Rows reclaimed
  - error: Storage failures
*/
func (manager *Manager) ReclaimZombies(context context.Context) (int64, error) {
	reclaimed, err := manager.store.ReclaimRunning(context, "reclaimed at startup")
	if err != nil {
		return 0, err
	}
	if reclaimed > 0 {
		manager.logger.Warn("tasks_reclaimed", slog.Int64("count", reclaimed))
	}
	return reclaimed, nil
}

// # Worker Callbacks

// applyProgress copies an engine snapshot onto the task, syncing durably
// on stage transitions and every tenth completed chapter.
func (manager *Manager) applyProgress(live *liveTask, progress engine.Progress) {
	live.mu.Lock()
	stageChanged := progress.Stage != live.task.Stage

	live.task.Stage = progress.Stage
	live.task.Detail = progress.Detail
	live.task.TotalChapters = progress.Total
	live.task.CompletedChapters = progress.Completed
	live.task.FailedChapters = progress.Failed
	live.task.CurrentChapter = progress.CurrentChapter
	if progress.DocumentTitle != "" {
		live.task.DocumentTitle = progress.DocumentTitle
		live.task.DocumentAuthor = progress.DocumentAuthor
	}
	live.task.UpdatedAt = time.Now()

	syncDue := stageChanged || (progress.Completed > 0 &&
		progress.Completed%syncEvery == 0 && progress.Completed != live.lastSynced)
	if syncDue {
		live.lastSynced = progress.Completed
	}
	snapshot := live.snapshotLocked()
	live.mu.Unlock()

	if syncDue {
		manager.persist(snapshot)
	}
	manager.broadcaster.Broadcast(EventTaskProgress, snapshot.ID,
		progressEvent{TaskID: snapshot.ID, Progress: snapshot})
}

// addLog appends to the bounded ring and forwards the line to the hub.
func (manager *Manager) addLog(live *liveTask, level, message string) {
	entry := LogEntry{Time: time.Now(), Level: level, Message: message}

	live.mu.Lock()
	if len(live.logs) >= maxLogLines {
		copy(live.logs, live.logs[1:])
		live.logs[len(live.logs)-1] = entry
	} else {
		live.logs = append(live.logs, entry)
	}
	taskID := live.task.ID
	live.mu.Unlock()

	manager.broadcaster.Broadcast(EventTaskLog, taskID, logEvent{TaskID: taskID, Log: entry})
}

// persist writes a snapshot through to the history table under its own
// timeout; the requesting context may already be gone.
func (manager *Manager) persist(snapshot *Task) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := manager.store.Update(ctx, snapshot); err != nil {
		manager.logger.Warn("task_sync_failed",
			slog.String("task_id", snapshot.ID),
			slog.Any("error", err))
	}
}

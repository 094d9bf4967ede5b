// Copyright (c) 2026 Novira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package task

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	requestutil "github.com/taibuivan/novira/internal/platform/request"
	"github.com/taibuivan/novira/internal/platform/respond"
	"github.com/taibuivan/novira/pkg/convert"
)

const (
	FieldTask    = "task"
	FieldTasks   = "tasks"
	FieldTotal   = "total"
	FieldLogs    = "logs"
	FieldMessage = "message"
	FieldRemoved = "removed"

	FieldConfigFilename = "config_filename"
	FieldBookID         = "book_id"
	FieldStartURL       = "start_url"
	FieldMaxWorkers     = "max_workers"
)

// # Handler Implementation

// Handler implements the HTTP layer for the task supervisor.
type Handler struct {
	manager *Manager
}

// NewHandler constructs a new task [Handler].
func NewHandler(manager *Manager) *Handler {
	return &Handler{manager: manager}
}

// RegisterRoutes attaches task endpoints to the root API router.
func (handler *Handler) RegisterRoutes(api chi.Router) {
	api.Route("/tasks", func(tasks chi.Router) {
		tasks.Get("/", handler.listTasks)
		tasks.Post("/", handler.createTask)
		tasks.Post("/cleanup-completed", handler.cleanupCompleted)

		tasks.Route("/{taskID}", func(task chi.Router) {
			task.Get("/", handler.getTask)
			task.Delete("/", handler.deleteTask)
			task.Post("/start", handler.startTask)
			task.Post("/stop", handler.stopTask)
			task.Get("/logs", handler.taskLogs)
		})
	})
}

/*
GET /api/v1/tasks.

Description: Returns every task, newest first. Running tasks reflect live
worker state.

Response:
  - 200: tasks: []Task, total: int
*/
func (handler *Handler) listTasks(writer http.ResponseWriter, request *http.Request) {
	tasks, err := handler.manager.List(request.Context())
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{
		FieldTasks: tasks,
		FieldTotal: len(tasks),
	})
}

// createTaskRequest defines the inbound JSON schema for queueing a crawl.
// book_id may be omitted when start_url carries one in its path.
type createTaskRequest struct {
	ConfigFilename string `json:"config_filename"`
	BookID         string `json:"book_id"`
	StartURL       string `json:"start_url"`
	MaxWorkers     int    `json:"max_workers"`
	UseProxy       bool   `json:"use_proxy"`
	RetryFailed    bool   `json:"retry_failed"`
}

/*
POST /api/v1/tasks.

Description: Queues a new pending crawl task. The task does not run until
started.

Request:
  - config_filename: string
  - book_id: string (Optional when start_url is set)
  - start_url: string (Optional; overrides the detail-page template)
  - max_workers: int (Optional; defaults to 5)
  - use_proxy: bool
  - retry_failed: bool

Response:
  - 201: task: Task
  - 400: Missing config_filename, or no book id resolvable
  - 404: Config not found
*/
func (handler *Handler) createTask(writer http.ResponseWriter, request *http.Request) {
	var payload createTaskRequest
	if err := requestutil.DecodeJSON(request, &payload); err != nil {
		respond.Error(writer, request, err)
		return
	}

	created, err := handler.manager.Create(request.Context(), CreateParams{
		ConfigName:  payload.ConfigFilename,
		BookID:      payload.BookID,
		StartURL:    payload.StartURL,
		MaxWorkers:  payload.MaxWorkers,
		UseProxy:    payload.UseProxy,
		RetryFailed: payload.RetryFailed,
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Created(writer, map[string]any{
		FieldTask: created,
	})
}

/*
GET /api/v1/tasks/{taskID}.

Description: Returns one task snapshot.

Response:
  - 200: task: Task
  - 404: Task not found
*/
func (handler *Handler) getTask(writer http.ResponseWriter, request *http.Request) {
	taskID := requestutil.ID(request, "taskID")

	found, err := handler.manager.Get(request.Context(), taskID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{
		FieldTask: found,
	})
}

/*
POST /api/v1/tasks/{taskID}/start.

Description: Spawns the crawl worker for a pending or terminal task.

Response:
  - 200: message: string
  - 404: Task not found, or its config vanished
  - 409: Task is already running
*/
func (handler *Handler) startTask(writer http.ResponseWriter, request *http.Request) {
	taskID := requestutil.ID(request, "taskID")

	if err := handler.manager.Start(request.Context(), taskID); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{
		FieldMessage: "Task started",
	})
}

/*
POST /api/v1/tasks/{taskID}/stop.

Description: Requests cancellation. The task reaches stopped once its
worker drains; stopping a non-running task is a no-op.

Response:
  - 200: message: string
  - 404: Task not found
*/
func (handler *Handler) stopTask(writer http.ResponseWriter, request *http.Request) {
	taskID := requestutil.ID(request, "taskID")

	if err := handler.manager.Stop(request.Context(), taskID); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{
		FieldMessage: "Stop requested",
	})
}

/*
DELETE /api/v1/tasks/{taskID}.

Description: Removes the task from memory and history. A task that ran
without completing takes its partial document along.

Response:
  - 204: Deleted
  - 404: Task not found
*/
func (handler *Handler) deleteTask(writer http.ResponseWriter, request *http.Request) {
	taskID := requestutil.ID(request, "taskID")

	if err := handler.manager.Delete(request.Context(), taskID); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

/*
GET /api/v1/tasks/{taskID}/logs.

Description: Returns the most recent log lines, oldest first.

Query:
  - limit: int (Optional; defaults to 100)

Response:
  - 200: logs: []LogEntry, total: int
  - 404: Task not found
*/
func (handler *Handler) taskLogs(writer http.ResponseWriter, request *http.Request) {
	taskID := requestutil.ID(request, "taskID")
	limit := convert.ToIntD(request.URL.Query().Get("limit"), 0)

	logs, err := handler.manager.Logs(request.Context(), taskID, limit)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{
		FieldLogs:  logs,
		FieldTotal: len(logs),
	})
}

/*
POST /api/v1/tasks/cleanup-completed.

Description: Removes every terminal task from memory and history in one
sweep. Documents are untouched.

Response:
  - 200: removed: int, message: string
*/
func (handler *Handler) cleanupCompleted(writer http.ResponseWriter, request *http.Request) {
	removed, err := handler.manager.ClearCompleted(request.Context())
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{
		FieldRemoved: removed,
		FieldMessage: "Terminal tasks removed",
	})
}

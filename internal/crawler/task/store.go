// Copyright (c) 2026 Novira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package task

import "context"

// # Task Data Access

// TaskRepository defines the durable side of task state. The in-memory
// registry stays authoritative for running tasks; these rows are the
// history that survives restarts.
type TaskRepository interface {

	/*
		Insert writes a freshly created task row.

		Parameters:
		  - context: context.Context
		  - task: *Task

		Returns:
		  - error: Storage failures
	*/
	Insert(context context.Context, task *Task) error

	/*
		Update syncs the mutable columns of an existing row: status, stage,
		progress counters, document metadata, error message and the
		lifecycle timestamps. Identity columns never change.

		Parameters:
		  - context: context.Context
		  - task: *Task

		Returns:
		  - error: apperr.NotFound when the row is gone (deleted mid-run)
	*/
	Update(context context.Context, task *Task) error

	/*
		FindByID returns one task row.

		Parameters:
		  - context: context.Context
		  - id: string (UUID)

		Returns:
		  - *Task: Hydrated row
		  - error: apperr.NotFound if missing
	*/
	FindByID(context context.Context, id string) (*Task, error)

	/*
		List returns every task row, newest first.

		Parameters:
		  - context: context.Context

		Returns:
		  - []*Task: Rows ordered by creation time descending
		  - error: Storage failures
	*/
	List(context context.Context) ([]*Task, error)

	/*
		DeleteByID removes one row. A missing row is not an error; the
		caller has already decided the task exists.

		Parameters:
		  - context: context.Context
		  - id: string (UUID)

		Returns:
		  - error: Storage failures
	*/
	DeleteByID(context context.Context, id string) error

	/*
		DeleteTerminal removes every row in a terminal status.

		Parameters:
		  - context: context.Context

		Returns:
		  - int64: Rows removed
		  - error: Storage failures
	*/
	DeleteTerminal(context context.Context) (int64, error)

	/*
		ReclaimRunning folds every running row to stopped, stamping the
		given detail and an end time. Called at startup, when any durable
		running row is a leftover from a dead process.

		Parameters:
		  - context: context.Context
		  - detail: string

		Returns:
		  - int64: Rows reclaimed
		  - error: Storage failures
	*/
	ReclaimRunning(context context.Context, detail string) (int64, error)
}

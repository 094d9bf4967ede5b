// Copyright (c) 2026 Novira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package task

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taibuivan/novira/internal/platform/apperr"
	"github.com/taibuivan/novira/internal/platform/database/schema"
	"github.com/taibuivan/novira/internal/platform/dberr"
)

// # PostgreSQL Repository

// taskRepository implements the [TaskRepository] interface using pgx.
type taskRepository struct {
	pool *pgxpool.Pool
}

// NewTaskRepository constructs a PostgreSQL backed task store.
func NewTaskRepository(pool *pgxpool.Pool) TaskRepository {
	return &taskRepository{pool: pool}
}

/*
Insert writes a freshly created task row.

Parameters:
  - context: context.Context
  - task: *Task

Returns:
  - error: Storage failures
*/
func (repository *taskRepository) Insert(context context.Context, task *Task) error {

	// Full row; startedat and endedat stay NULL until the first start
	query := fmt.Sprintf(`
		INSERT INTO %s (%s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`,
		schema.CrawlerTask.Table,
		strings.Join(schema.CrawlerTask.Columns(), ", "),
	)

	_, err := repository.pool.Exec(context, query,
		task.ID, task.ConfigName, task.BookID, task.MaxWorkers, task.UseProxy,
		task.Status, task.Stage, task.Detail,
		task.TotalChapters, task.CompletedChapters, task.FailedChapters, task.CurrentChapter,
		task.DocumentTitle, task.DocumentAuthor, task.ErrorMessage,
		task.CreatedAt, task.StartedAt, task.EndedAt, task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to insert task: %w", err)
	}

	return nil
}

/*
Update syncs the mutable columns of an existing row.

Parameters:
  - context: context.Context
  - task: *Task

Returns:
  - error: apperr.NotFound when the row is gone
*/
func (repository *taskRepository) Update(context context.Context, task *Task) error {

	// Identity columns (config, book, worker options) never change
	query := fmt.Sprintf(`
		UPDATE %s SET
			%s = $2, %s = $3, %s = $4,
			%s = $5, %s = $6, %s = $7, %s = $8,
			%s = $9, %s = $10, %s = $11,
			%s = $12, %s = $13, %s = NOW()
		WHERE %s = $1
	`,
		schema.CrawlerTask.Table,
		schema.CrawlerTask.Status, schema.CrawlerTask.Stage, schema.CrawlerTask.Detail,
		schema.CrawlerTask.TotalChapters, schema.CrawlerTask.CompletedChapters,
		schema.CrawlerTask.FailedChapters, schema.CrawlerTask.CurrentChapter,
		schema.CrawlerTask.DocumentTitle, schema.CrawlerTask.DocumentAuthor,
		schema.CrawlerTask.ErrorMessage,
		schema.CrawlerTask.StartedAt, schema.CrawlerTask.EndedAt, schema.CrawlerTask.UpdatedAt,
		schema.CrawlerTask.ID,
	)

	result, err := repository.pool.Exec(context, query,
		task.ID,
		task.Status, task.Stage, task.Detail,
		task.TotalChapters, task.CompletedChapters, task.FailedChapters, task.CurrentChapter,
		task.DocumentTitle, task.DocumentAuthor, task.ErrorMessage,
		task.StartedAt, task.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to update task: %w", err)
	}

	// Affected row verification
	if result.RowsAffected() == 0 {
		return apperr.NotFound("Task")
	}

	return nil
}

/*
FindByID returns one task row.

Parameters:
  - context: context.Context
  - id: string

Returns:
  - *Task: Hydrated row
  - error: apperr.NotFound on absent rows
*/
func (repository *taskRepository) FindByID(context context.Context, id string) (*Task, error) {

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1`,
		strings.Join(schema.CrawlerTask.Columns(), ", "),
		schema.CrawlerTask.Table,
		schema.CrawlerTask.ID,
	)

	var task Task
	err := repository.pool.QueryRow(context, query, id).Scan(
		&task.ID, &task.ConfigName, &task.BookID, &task.MaxWorkers, &task.UseProxy,
		&task.Status, &task.Stage, &task.Detail,
		&task.TotalChapters, &task.CompletedChapters, &task.FailedChapters, &task.CurrentChapter,
		&task.DocumentTitle, &task.DocumentAuthor, &task.ErrorMessage,
		&task.CreatedAt, &task.StartedAt, &task.EndedAt, &task.UpdatedAt,
	)
	if err != nil {
		return nil, dberr.Wrap(fmt.Errorf("postgres: failed to find task: %w", err), "Task")
	}

	return &task, nil
}

/*
List returns every task row, newest first.

Parameters:
  - context: context.Context

Returns:
  - []*Task: Rows ordered by creation time descending
  - error: Storage failures
*/
func (repository *taskRepository) List(context context.Context) ([]*Task, error) {

	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY %s DESC`,
		strings.Join(schema.CrawlerTask.Columns(), ", "),
		schema.CrawlerTask.Table,
		schema.CrawlerTask.CreatedAt,
	)

	rows, err := repository.pool.Query(context, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list tasks: %w", err)
	}
	defer rows.Close()

	// Row iteration and entity hydration
	var tasks []*Task
	for rows.Next() {
		var task Task
		err := rows.Scan(
			&task.ID, &task.ConfigName, &task.BookID, &task.MaxWorkers, &task.UseProxy,
			&task.Status, &task.Stage, &task.Detail,
			&task.TotalChapters, &task.CompletedChapters, &task.FailedChapters, &task.CurrentChapter,
			&task.DocumentTitle, &task.DocumentAuthor, &task.ErrorMessage,
			&task.CreatedAt, &task.StartedAt, &task.EndedAt, &task.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan task: %w", err)
		}
		tasks = append(tasks, &task)
	}

	return tasks, nil
}

/*
DeleteByID removes one row. Zero rows affected is a valid outcome.

Parameters:
  - context: context.Context
  - id: string

Returns:
  - error: Storage failures
*/
func (repository *taskRepository) DeleteByID(context context.Context, id string) error {

	query := fmt.Sprintf(`DELETE FROM %s WHERE %s = $1`,
		schema.CrawlerTask.Table, schema.CrawlerTask.ID)

	if _, err := repository.pool.Exec(context, query, id); err != nil {
		return fmt.Errorf("postgres: failed to delete task: %w", err)
	}

	return nil
}

/*
DeleteTerminal removes every row in a terminal status.

Parameters:
  - context: context.Context

Returns:
  - int64: Rows removed
  - error: Storage failures
*/
func (repository *taskRepository) DeleteTerminal(context context.Context) (int64, error) {

	query := fmt.Sprintf(`DELETE FROM %s WHERE %s = ANY($1)`,
		schema.CrawlerTask.Table, schema.CrawlerTask.Status)

	terminal := []string{StatusCompleted, StatusFailed, StatusStopped}
	result, err := repository.pool.Exec(context, query, terminal)
	if err != nil {
		return 0, fmt.Errorf("postgres: failed to delete terminal tasks: %w", err)
	}

	return result.RowsAffected(), nil
}

/*
ReclaimRunning folds every running row to stopped with the given detail.

Parameters:
  - context: context.Context
  - detail: string

Returns:
  - int64: Rows reclaimed
  - error: Storage failures
*/
func (repository *taskRepository) ReclaimRunning(context context.Context, detail string) (int64, error) {

	// endedat keeps an earlier value if one somehow exists
	query := fmt.Sprintf(`
		UPDATE %s SET
			%s = $1, %s = $2,
			%s = COALESCE(%s, NOW()), %s = NOW()
		WHERE %s = $3
	`,
		schema.CrawlerTask.Table,
		schema.CrawlerTask.Status, schema.CrawlerTask.Detail,
		schema.CrawlerTask.EndedAt, schema.CrawlerTask.EndedAt, schema.CrawlerTask.UpdatedAt,
		schema.CrawlerTask.Status,
	)

	result, err := repository.pool.Exec(context, query, StatusStopped, detail, StatusRunning)
	if err != nil {
		return 0, fmt.Errorf("postgres: failed to reclaim running tasks: %w", err)
	}

	return result.RowsAffected(), nil
}

// Copyright (c) 2026 Novira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package task supervises crawl tasks.

A task is the unit of operator control: create it against a site config and
a book, start it, watch its progress, stop or delete it. The [Manager] owns
two layers of state. The in-memory registry is authoritative while a worker
runs: it holds the live counters, the stop latch, and a bounded ring of log
lines. The crawler.task table keeps the durable history, synced on status
and stage transitions and every tenth completed chapter so restarts can see
what ran without the table absorbing one write per chapter.

# Workers

Each started task owns one goroutine that builds a crawler through the
injected [CrawlerFactory] and runs it to a terminal status. The goroutine
side of the engine's reporter contract lives here: progress snapshots land
on the task and fan out to the push hub, log lines feed the ring, and the
stop latch answers ShouldStop polls. Stopping is cooperative; a process
crash leaves durable rows in running, which [Manager.ReclaimZombies] folds
to stopped at the next startup.
*/
package task

import (
	"math"
	"time"
)

// # Status Vocabulary

// Task statuses. Terminal statuses mean the worker has exited; running is
// only trustworthy for in-memory tasks, a durable running row with no live
// worker is a zombie.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusStopped   = "stopped"
)

// Terminal reports whether a status means the task's worker has exited.
func Terminal(status string) bool {
	return status == StatusCompleted || status == StatusFailed || status == StatusStopped
}

// # Task Model

// Task is one crawl assignment as snapshotted for clients and for the
// crawler.task row. The manager hands out copies; mutable runtime state
// (latch, ring, worker handle) never leaves the package.
type Task struct {
	ID         string `json:"task_id"`
	ConfigName string `json:"config_name"`
	BookID     string `json:"book_id"`
	MaxWorkers int    `json:"max_workers"`
	UseProxy   bool   `json:"use_proxy"`

	// Create-time crawl parameters, kept in memory only; the durable row
	// does not carry them.
	StartURL    string `json:"-"`
	RetryFailed bool   `json:"-"`

	Status string `json:"status"`
	Stage  string `json:"stage"`
	Detail string `json:"detail"`

	TotalChapters     int     `json:"total_chapters"`
	CompletedChapters int     `json:"completed_chapters"`
	FailedChapters    int     `json:"failed_chapters"`
	CurrentChapter    string  `json:"current_chapter"`
	ProgressPercent   float64 `json:"progress_percent"`

	DocumentTitle  string `json:"document_title"`
	DocumentAuthor string `json:"document_author"`
	ErrorMessage   string `json:"error_message"`
	LogCount       int    `json:"log_count"`

	CreatedAt time.Time  `json:"create_time"`
	StartedAt *time.Time `json:"start_time"`
	EndedAt   *time.Time `json:"end_time"`
	UpdatedAt time.Time  `json:"-"`
}

// fillDerived computes the snapshot-only fields.
func (task *Task) fillDerived(logCount int) {
	task.LogCount = logCount
	if task.TotalChapters > 0 {
		ratio := float64(task.CompletedChapters) / float64(task.TotalChapters)
		task.ProgressPercent = math.Round(ratio*10000) / 100
	} else {
		task.ProgressPercent = 0
	}
}

// # Log Ring

// maxLogLines bounds the per-task in-memory log ring; the oldest line
// falls off first.
const maxLogLines = 1000

// LogEntry is one line of a task's narrative log.
type LogEntry struct {
	Time    time.Time `json:"timestamp"`
	Level   string    `json:"level"`
	Message string    `json:"message"`
}

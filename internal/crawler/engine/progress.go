// Copyright (c) 2026 Novira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package engine

// # Progress Accounting

// setStage records a stage transition and publishes a snapshot.
func (crawler *Crawler) setStage(stage, detail string) {
	crawler.mu.Lock()
	defer crawler.mu.Unlock()

	crawler.progress.Stage = stage
	crawler.progress.Detail = detail
	crawler.reporter.OnProgress(crawler.progress)
}

// setTotal pins the chapter count once discovery completes.
func (crawler *Crawler) setTotal(total int) {
	crawler.mu.Lock()
	defer crawler.mu.Unlock()

	crawler.progress.Total = total
	crawler.reporter.OnProgress(crawler.progress)
}

// setInfo records the extracted document metadata and publishes a snapshot.
func (crawler *Crawler) setInfo(title, author string) {
	crawler.mu.Lock()
	defer crawler.mu.Unlock()

	crawler.progress.DocumentTitle = title
	crawler.progress.DocumentAuthor = author
	crawler.reporter.OnProgress(crawler.progress)
}

// chapterDone counts one finished chapter and publishes a snapshot, then
// reports how many chapters have been processed. The reporter runs under
// the progress mutex so callback order matches mutation order.
func (crawler *Crawler) chapterDone(success bool, title string) (processed, total int) {
	crawler.mu.Lock()
	defer crawler.mu.Unlock()

	if success {
		crawler.progress.Completed++
	} else {
		crawler.progress.Failed++
	}
	crawler.progress.CurrentChapter = title
	crawler.reporter.OnProgress(crawler.progress)
	return crawler.progress.Completed + crawler.progress.Failed, crawler.progress.Total
}

// snapshot returns a copy of the current progress.
func (crawler *Crawler) snapshot() Progress {
	crawler.mu.Lock()
	defer crawler.mu.Unlock()
	return crawler.progress
}

// log forwards one narrative line to the supervisor.
func (crawler *Crawler) log(level, message string) {
	crawler.reporter.OnLog(level, message)
}

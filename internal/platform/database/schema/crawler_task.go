package schema

// CrawlerTaskTable represents the 'crawler.task' table
type CrawlerTaskTable struct {
	Table             string
	ID                string
	ConfigName        string
	BookID            string
	MaxWorkers        string
	UseProxy          string
	Status            string
	Stage             string
	Detail            string
	TotalChapters     string
	CompletedChapters string
	FailedChapters    string
	CurrentChapter    string
	DocumentTitle     string
	DocumentAuthor    string
	ErrorMessage      string
	CreatedAt         string
	StartedAt         string
	EndedAt           string
	UpdatedAt         string
}

// CrawlerTask is the schema definition for crawler.task
var CrawlerTask = CrawlerTaskTable{
	Table:             "crawler.task",
	ID:                "id",
	ConfigName:        "configname",
	BookID:            "bookid",
	MaxWorkers:        "maxworkers",
	UseProxy:          "useproxy",
	Status:            "status",
	Stage:             "stage",
	Detail:            "detail",
	TotalChapters:     "totalchapters",
	CompletedChapters: "completedchapters",
	FailedChapters:    "failedchapters",
	CurrentChapter:    "currentchapter",
	DocumentTitle:     "documenttitle",
	DocumentAuthor:    "documentauthor",
	ErrorMessage:      "errormessage",
	CreatedAt:         "createdat",
	StartedAt:         "startedat",
	EndedAt:           "endedat",
	UpdatedAt:         "updatedat",
}

func (t CrawlerTaskTable) Columns() []string {
	return []string{
		t.ID, t.ConfigName, t.BookID, t.MaxWorkers, t.UseProxy, t.Status,
		t.Stage, t.Detail, t.TotalChapters, t.CompletedChapters,
		t.FailedChapters, t.CurrentChapter, t.DocumentTitle, t.DocumentAuthor,
		t.ErrorMessage, t.CreatedAt, t.StartedAt, t.EndedAt, t.UpdatedAt,
	}
}

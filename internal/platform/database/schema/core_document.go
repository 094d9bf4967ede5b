package schema

// CoreDocumentTable represents the 'core.document' table
type CoreDocumentTable struct {
	Table         string
	ID            string
	SiteName      string
	BookID        string
	Title         string
	Author        string
	CoverURL      string
	Intro         string
	SourceURL     string
	TotalChapters string
	TotalWords    string
	CreatedAt     string
	UpdatedAt     string
}

// CoreDocument is the schema definition for core.document
var CoreDocument = CoreDocumentTable{
	Table:         "core.document",
	ID:            "id",
	SiteName:      "sitename",
	BookID:        "bookid",
	Title:         "title",
	Author:        "author",
	CoverURL:      "coverurl",
	Intro:         "intro",
	SourceURL:     "sourceurl",
	TotalChapters: "totalchapters",
	TotalWords:    "totalwords",
	CreatedAt:     "createdat",
	UpdatedAt:     "updatedat",
}

func (t CoreDocumentTable) Columns() []string {
	return []string{
		t.ID, t.SiteName, t.BookID, t.Title, t.Author, t.CoverURL, t.Intro,
		t.SourceURL, t.TotalChapters, t.TotalWords, t.CreatedAt, t.UpdatedAt,
	}
}

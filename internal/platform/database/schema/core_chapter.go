package schema

// CoreChapterTable represents the 'core.chapter' table
type CoreChapterTable struct {
	Table         string
	ID            string
	DocumentID    string
	ChapterNumber string
	Title         string
	Content       string
	SourceURL     string
	WordCount     string
	CreatedAt     string
	UpdatedAt     string
}

// CoreChapter is the schema definition for core.chapter
var CoreChapter = CoreChapterTable{
	Table:         "core.chapter",
	ID:            "id",
	DocumentID:    "documentid",
	ChapterNumber: "chapternumber",
	Title:         "title",
	Content:       "content",
	SourceURL:     "sourceurl",
	WordCount:     "wordcount",
	CreatedAt:     "createdat",
	UpdatedAt:     "updatedat",
}

func (t CoreChapterTable) Columns() []string {
	return []string{
		t.ID, t.DocumentID, t.ChapterNumber, t.Title, t.Content,
		t.SourceURL, t.WordCount, t.CreatedAt, t.UpdatedAt,
	}
}

package main

import "time"

// ArticleDraft is the unit of work handed to the WordPress client. It is
// built either from a generated article or from a local markdown file.
type ArticleDraft struct {
	Title           string   `json:"title"`
	Content         string   `json:"content"`
	Slug            string   `json:"slug"`
	MetaDescription string   `json:"meta_description"`
	Categories      []string `json:"categories"`
	Tags            []string `json:"tags"`
	FocusKeyword    string   `json:"focus_keyword,omitempty"`
	Schema          string   `json:"schema,omitempty"`
	Status          string   `json:"status"` // "draft" or "publish"
}

// PublishResult records a completed publish call. It is returned to the
// caller and written to a local JSON record file for audit.
type PublishResult struct {
	WordPressID int       `json:"wordpress_id"`
	DraftURL    string    `json:"draft_url"`
	Title       string    `json:"title"`
	SavedAt     time.Time `json:"saved_at"`
}

// Heading is one entry in a brief's outline. Level is 2 or 3.
type Heading struct {
	Level int    `json:"level"`
	Text  string `json:"text"`
}

// ResearchBrief holds everything extracted from a manual research file.
type ResearchBrief struct {
	FileName        string    `json:"file_name"`
	Title           string    `json:"title"`
	MainKeyword     string    `json:"main_keyword"`
	TargetWordCount int       `json:"target_word_count"`
	Headings        []Heading `json:"headings"`
	RawContent      string    `json:"raw_content"`
}

// GeneratedArticle is the output of the generation phase, ready to be turned
// into an ArticleDraft.
type GeneratedArticle struct {
	Title           string  `json:"title"`
	MainKeyword     string  `json:"main_keyword"`
	Content         string  `json:"content"`
	Charts          []Chart `json:"charts"`
	Schema          string  `json:"schema"`
	Slug            string  `json:"slug"`
	MetaDescription string  `json:"meta_description"`
	SEOScore        int     `json:"seo_score"`
	WordCount       int     `json:"word_count"`
	UnderLength     bool    `json:"under_length"`
}

// Chart is one generated wp:html visualization block.
type Chart struct {
	ID   string `json:"id"`
	HTML string `json:"html"`
}

// ProcessingStatus represents the outcome status of processing one brief.
type ProcessingStatus string

const (
	StatusSuccess ProcessingStatus = "success"
	StatusSkipped ProcessingStatus = "skipped"
	StatusError   ProcessingStatus = "error"
)

// ProcessingResult tracks the outcome of processing each brief file.
type ProcessingResult struct {
	BriefFile string
	Status    ProcessingStatus
	PostID    int
	Error     error
}

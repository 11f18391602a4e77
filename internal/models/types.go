package models

import "time"

type User struct {
	ID           int       `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Project statuses
const (
	StatusOpen    = "open"
	StatusPending = "pending"
	StatusClosed  = "closed"
)

// Project is a legal case. It groups notes, saved search results, key dates
// and comments.
type Project struct {
	ID           int           `json:"id"`
	UserID       int           `json:"user_id"`
	Name         string        `json:"name"`
	Description  string        `json:"description"`
	ClientName   string        `json:"client_name"`
	CaseNumber   string        `json:"case_number"`
	Court        string        `json:"court"`
	Jurisdiction string        `json:"jurisdiction"`
	Status       string        `json:"status"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
	Dates        []ProjectDate `json:"dates,omitempty"`
	Comments     []Comment     `json:"comments,omitempty"`
}

type ProjectDate struct {
	ID          int       `json:"id"`
	ProjectID   int       `json:"project_id"`
	Title       string    `json:"title"`
	Date        time.Time `json:"date"`
	Description string    `json:"description"`
}

type Comment struct {
	ID        int       `json:"id"`
	ProjectID int       `json:"project_id"`
	UserID    int       `json:"user_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type Category struct {
	ID        int       `json:"id"`
	UserID    int       `json:"user_id"`
	Name      string    `json:"name"`
	Color     string    `json:"color"`
	CreatedAt time.Time `json:"created_at"`
}

// Note content is HTML produced by the editor.
type Note struct {
	ID        int         `json:"id"`
	UserID    int         `json:"user_id"`
	ProjectID *int        `json:"project_id"`
	Title     string      `json:"title"`
	Content   string      `json:"content"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
	Images    []NoteImage `json:"images,omitempty"`
}

type NoteImage struct {
	ID        int       `json:"id"`
	NoteID    int       `json:"note_id"`
	Filename  string    `json:"filename"`
	CreatedAt time.Time `json:"created_at"`
}

type Chat struct {
	ID        int       `json:"id"`
	UserID    int       `json:"user_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	ID            int            `json:"id"`
	ChatID        int            `json:"chat_id"`
	Role          string         `json:"role"`
	Content       string         `json:"content"`
	SearchQuery   string         `json:"search_query,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	SearchResults []SearchResult `json:"search_results,omitempty"`
}

// SearchResult is a document summary produced by the retrieval pipeline.
// Saved results show up on the dashboard.
type SearchResult struct {
	ID           int       `json:"id"`
	UserID       int       `json:"user_id"`
	MessageID    *int      `json:"message_id"`
	ProjectID    *int      `json:"project_id"`
	CategoryID   *int      `json:"category_id"`
	DocumentID   string    `json:"document_id"`
	Title        string    `json:"title"`
	Citation     string    `json:"citation"`
	Jurisdiction string    `json:"jurisdiction"`
	DocType      string    `json:"doc_type"`
	Year         int       `json:"year"`
	URL          string    `json:"url"`
	Excerpt      string    `json:"excerpt"`
	Summary      string    `json:"summary"`
	Relevance    int       `json:"relevance"`
	Detail       string    `json:"detail,omitempty"`
	Saved        bool      `json:"saved"`
	CreatedAt    time.Time `json:"created_at"`
}

// ResultFilter narrows ListSearchResults. Nil fields are not applied.
type ResultFilter struct {
	ProjectID  *int
	CategoryID *int
	Saved      *bool
	Query      string
}

// ResultUpdate carries a partial update of a search result.
type ResultUpdate struct {
	Saved         *bool
	ProjectID     *int
	CategoryID    *int
	ClearProject  bool
	ClearCategory bool
}

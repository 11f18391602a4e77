package store

import (
	"errors"
	"time"

	"casebeam/internal/models"
)

// ErrEmailTaken is returned by CreateUser when the email is already registered.
var ErrEmailTaken = errors.New("email already registered")

// ErrNameTaken is returned when a category name is already used by the same
// user, ignoring case.
var ErrNameTaken = errors.New("category already exists")

// Store defines the interface for all database operations.
// Lookups of rows the caller does not own return sql.ErrNoRows.
type Store interface {
	// Users
	CreateUser(email, name, passwordHash string) (int, error)
	GetUserByEmail(email string) (models.User, error)
	GetUser(userID int) (models.User, error)
	DeleteUser(userID int) error

	// Projects
	CreateProject(p *models.Project) error
	GetProjects(userID int) ([]models.Project, error)
	GetProject(projectID, userID int) (models.Project, error)
	UpdateProject(p *models.Project) error
	DeleteProject(projectID, userID int) error

	// Project dates and comments
	CreateProjectDate(userID int, d *models.ProjectDate) error
	GetProjectDates(projectID, userID int) ([]models.ProjectDate, error)
	DeleteProjectDate(dateID, projectID, userID int) error
	CreateComment(c *models.Comment) error
	GetComments(projectID, userID int) ([]models.Comment, error)
	DeleteComment(commentID, projectID, userID int) error

	// Categories
	CreateCategory(c *models.Category) error
	GetCategories(userID int) ([]models.Category, error)
	GetCategory(categoryID, userID int) (models.Category, error)
	UpdateCategory(c *models.Category) error
	DeleteCategory(categoryID, userID int) error

	// Notes
	CreateNote(n *models.Note) error
	GetNotes(userID int, projectID *int) ([]models.Note, error)
	GetNote(noteID, userID int) (models.Note, error)
	GetNotesByTimeRange(userID int, projectID *int, start, end time.Time) ([]models.Note, error)
	UpdateNote(n *models.Note) error
	DeleteNote(noteID, userID int) error

	// Note Images
	CreateNoteImage(noteID int, filename string) (int64, error)
	GetNoteImages(noteID int) ([]models.NoteImage, error)
	GetNoteImagesByNoteIDs(noteIDs []int) (map[int][]models.NoteImage, error)
	GetNoteImageWithOwner(imageID, userID int) (string, error) // Returns filename if user owns image
	NoteImageOwnedBy(filename string, userID int) (bool, error)
	DeleteNoteImage(imageID, userID int) (string, error)

	// Chats and messages
	CreateChat(userID int, title string) (models.Chat, error)
	GetChats(userID int) ([]models.Chat, error)
	GetChat(chatID, userID int) (models.Chat, error)
	RenameChat(chatID, userID int, title string) error
	TouchChat(chatID int) error
	DeleteChat(chatID, userID int) error
	CreateMessage(m *models.Message) error
	UpdateMessageContent(messageID int, content string) error
	GetMessages(chatID int) ([]models.Message, error)
	GetLastAssistantMessage(chatID int) (models.Message, error)

	// Search results
	CreateSearchResults(results []models.SearchResult) ([]models.SearchResult, error)
	GetSearchResult(resultID, userID int) (models.SearchResult, error)
	GetSearchResultsByMessageIDs(messageIDs []int) (map[int][]models.SearchResult, error)
	GetChatDocumentIDs(chatID int) ([]string, error)
	UpdateSearchResult(resultID, userID int, u models.ResultUpdate) (models.SearchResult, error)
	SetSearchResultDetail(resultID, userID int, detail string) error
	DeleteSearchResult(resultID, userID int) error
	ListSearchResults(userID int, f models.ResultFilter) ([]models.SearchResult, error)
	CountSavedResults(userID int) (byProject map[int]int, byCategory map[int]int, err error)

	Close() error
}

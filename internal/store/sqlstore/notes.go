package sqlstore

import (
	"time"

	"casebeam/internal/models"
)

const noteColumns = "id, user_id, project_id, title, content, created_at, updated_at"

func (s *SQLStore) queryNotes(query string, args ...any) ([]models.Note, error) {
	rows, err := s.db.Query(s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	notes := []models.Note{}
	for rows.Next() {
		var n models.Note
		if err := rows.Scan(&n.ID, &n.UserID, &n.ProjectID, &n.Title, &n.Content, &n.CreatedAt, &n.UpdatedAt); err != nil {
			continue
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

// CreateNote inserts n. A non-zero CreatedAt is kept, which lets imports
// backdate notes.
func (s *SQLStore) CreateNote(n *models.Note) error {
	if n.ProjectID != nil {
		if err := s.ownsProject(*n.ProjectID, n.UserID); err != nil {
			return err
		}
	}
	now := time.Now().UTC()
	if !n.CreatedAt.IsZero() {
		now = n.CreatedAt.UTC()
	}
	id, err := s.insert(s.db, "INSERT INTO notes (user_id, project_id, title, content, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
		n.UserID, n.ProjectID, n.Title, n.Content, now, now)
	if err != nil {
		return err
	}
	n.ID = id
	n.CreatedAt = now
	n.UpdatedAt = now
	return nil
}

// GetNotes lists the user's notes, newest first. A non-nil projectID
// restricts the list to that project.
func (s *SQLStore) GetNotes(userID int, projectID *int) ([]models.Note, error) {
	if projectID != nil {
		return s.queryNotes("SELECT "+noteColumns+" FROM notes WHERE user_id = ? AND project_id = ? ORDER BY updated_at DESC, id DESC", userID, *projectID)
	}
	return s.queryNotes("SELECT "+noteColumns+" FROM notes WHERE user_id = ? ORDER BY updated_at DESC, id DESC", userID)
}

func (s *SQLStore) GetNote(noteID, userID int) (models.Note, error) {
	var n models.Note
	err := s.db.QueryRow(s.rebind("SELECT "+noteColumns+" FROM notes WHERE id = ? AND user_id = ?"), noteID, userID).
		Scan(&n.ID, &n.UserID, &n.ProjectID, &n.Title, &n.Content, &n.CreatedAt, &n.UpdatedAt)
	return n, err
}

func (s *SQLStore) GetNotesByTimeRange(userID int, projectID *int, start, end time.Time) ([]models.Note, error) {
	if projectID != nil {
		return s.queryNotes("SELECT "+noteColumns+" FROM notes WHERE user_id = ? AND project_id = ? AND created_at >= ? AND created_at <= ? ORDER BY created_at DESC",
			userID, *projectID, start.UTC(), end.UTC())
	}
	return s.queryNotes("SELECT "+noteColumns+" FROM notes WHERE user_id = ? AND created_at >= ? AND created_at <= ? ORDER BY created_at DESC",
		userID, start.UTC(), end.UTC())
}

func (s *SQLStore) UpdateNote(n *models.Note) error {
	if n.ProjectID != nil {
		if err := s.ownsProject(*n.ProjectID, n.UserID); err != nil {
			return err
		}
	}
	n.UpdatedAt = time.Now().UTC()
	return s.execOwned("UPDATE notes SET title = ?, content = ?, project_id = ?, updated_at = ? WHERE id = ? AND user_id = ?",
		n.Title, n.Content, n.ProjectID, n.UpdatedAt, n.ID, n.UserID)
}

func (s *SQLStore) DeleteNote(noteID, userID int) error {
	return s.execOwned("DELETE FROM notes WHERE id = ? AND user_id = ?", noteID, userID)
}

// Note Image functions
func (s *SQLStore) CreateNoteImage(noteID int, filename string) (int64, error) {
	id, err := s.insert(s.db, "INSERT INTO note_images (note_id, filename, created_at) VALUES (?, ?, ?)", noteID, filename, time.Now().UTC())
	return int64(id), err
}

func (s *SQLStore) GetNoteImages(noteID int) ([]models.NoteImage, error) {
	rows, err := s.db.Query(s.rebind("SELECT id, filename, created_at FROM note_images WHERE note_id = ? ORDER BY created_at ASC"), noteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var images []models.NoteImage
	for rows.Next() {
		var img models.NoteImage
		img.NoteID = noteID
		if err := rows.Scan(&img.ID, &img.Filename, &img.CreatedAt); err != nil {
			continue
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

func (s *SQLStore) GetNoteImageWithOwner(imageID, userID int) (string, error) {
	var filename string
	query := `SELECT ni.filename FROM note_images ni
	          JOIN notes n ON ni.note_id = n.id
	          WHERE ni.id = ? AND n.user_id = ?`
	err := s.db.QueryRow(s.rebind(query), imageID, userID).Scan(&filename)
	return filename, err
}

func (s *SQLStore) NoteImageOwnedBy(filename string, userID int) (bool, error) {
	var count int
	query := `SELECT COUNT(*) FROM note_images ni
	          JOIN notes n ON ni.note_id = n.id
	          WHERE ni.filename = ? AND n.user_id = ?`
	err := s.db.QueryRow(s.rebind(query), filename, userID).Scan(&count)
	return count > 0, err
}

func (s *SQLStore) DeleteNoteImage(imageID, userID int) (string, error) {
	filename, err := s.GetNoteImageWithOwner(imageID, userID)
	if err != nil {
		return "", err
	}
	if _, err := s.db.Exec(s.rebind("DELETE FROM note_images WHERE id = ?"), imageID); err != nil {
		return "", err
	}
	return filename, nil
}

func (s *SQLStore) GetNoteImagesByNoteIDs(noteIDs []int) (map[int][]models.NoteImage, error) {
	result := make(map[int][]models.NoteImage)
	if len(noteIDs) == 0 {
		return result, nil
	}

	args := make([]any, len(noteIDs))
	for i, id := range noteIDs {
		args[i] = id
	}

	rows, err := s.db.Query(s.rebind("SELECT id, note_id, filename, created_at FROM note_images WHERE note_id IN ("+placeholders(len(noteIDs))+") ORDER BY created_at ASC"), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var img models.NoteImage
		if err := rows.Scan(&img.ID, &img.NoteID, &img.Filename, &img.CreatedAt); err != nil {
			continue
		}
		result[img.NoteID] = append(result[img.NoteID], img)
	}
	return result, rows.Err()
}

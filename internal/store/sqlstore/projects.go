package sqlstore

import (
	"log"
	"time"

	"casebeam/internal/models"
)

const projectColumns = "id, user_id, name, description, client_name, case_number, court, jurisdiction, status, created_at, updated_at"

func scanProject(row interface{ Scan(...any) error }, p *models.Project) error {
	return row.Scan(&p.ID, &p.UserID, &p.Name, &p.Description, &p.ClientName, &p.CaseNumber,
		&p.Court, &p.Jurisdiction, &p.Status, &p.CreatedAt, &p.UpdatedAt)
}

// ownsProject returns sql.ErrNoRows unless the project belongs to the user.
func (s *SQLStore) ownsProject(projectID, userID int) error {
	var id int
	return s.db.QueryRow(s.rebind("SELECT id FROM projects WHERE id = ? AND user_id = ?"), projectID, userID).Scan(&id)
}

func (s *SQLStore) CreateProject(p *models.Project) error {
	if p.Status == "" {
		p.Status = models.StatusOpen
	}
	now := time.Now().UTC()
	id, err := s.insert(s.db, `INSERT INTO projects (user_id, name, description, client_name, case_number, court, jurisdiction, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.UserID, p.Name, p.Description, p.ClientName, p.CaseNumber, p.Court, p.Jurisdiction, p.Status, now, now)
	if err != nil {
		return err
	}
	p.ID = id
	p.CreatedAt = now
	p.UpdatedAt = now
	return nil
}

func (s *SQLStore) GetProjects(userID int) ([]models.Project, error) {
	rows, err := s.db.Query(s.rebind("SELECT "+projectColumns+" FROM projects WHERE user_id = ? ORDER BY updated_at DESC, id DESC"), userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	projects := []models.Project{}
	for rows.Next() {
		var p models.Project
		if err := scanProject(rows, &p); err != nil {
			log.Printf("[db] scan project: %v", err)
			continue
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

func (s *SQLStore) GetProject(projectID, userID int) (models.Project, error) {
	var p models.Project
	row := s.db.QueryRow(s.rebind("SELECT "+projectColumns+" FROM projects WHERE id = ? AND user_id = ?"), projectID, userID)
	err := scanProject(row, &p)
	return p, err
}

func (s *SQLStore) UpdateProject(p *models.Project) error {
	if p.Status == "" {
		p.Status = models.StatusOpen
	}
	p.UpdatedAt = time.Now().UTC()
	return s.execOwned(`UPDATE projects SET name = ?, description = ?, client_name = ?, case_number = ?, court = ?, jurisdiction = ?, status = ?, updated_at = ?
		WHERE id = ? AND user_id = ?`,
		p.Name, p.Description, p.ClientName, p.CaseNumber, p.Court, p.Jurisdiction, p.Status, p.UpdatedAt, p.ID, p.UserID)
}

// DeleteProject cascades to dates and comments. Notes and search results
// are unlinked, not deleted.
func (s *SQLStore) DeleteProject(projectID, userID int) error {
	return s.execOwned("DELETE FROM projects WHERE id = ? AND user_id = ?", projectID, userID)
}

func (s *SQLStore) CreateProjectDate(userID int, d *models.ProjectDate) error {
	if err := s.ownsProject(d.ProjectID, userID); err != nil {
		return err
	}
	id, err := s.insert(s.db, "INSERT INTO project_dates (project_id, title, date, description) VALUES (?, ?, ?, ?)",
		d.ProjectID, d.Title, d.Date.UTC(), d.Description)
	if err != nil {
		return err
	}
	d.ID = id
	return nil
}

func (s *SQLStore) GetProjectDates(projectID, userID int) ([]models.ProjectDate, error) {
	if err := s.ownsProject(projectID, userID); err != nil {
		return nil, err
	}
	rows, err := s.db.Query(s.rebind("SELECT id, project_id, title, date, description FROM project_dates WHERE project_id = ? ORDER BY date ASC, id ASC"), projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	dates := []models.ProjectDate{}
	for rows.Next() {
		var d models.ProjectDate
		if err := rows.Scan(&d.ID, &d.ProjectID, &d.Title, &d.Date, &d.Description); err != nil {
			continue
		}
		dates = append(dates, d)
	}
	return dates, rows.Err()
}

func (s *SQLStore) DeleteProjectDate(dateID, projectID, userID int) error {
	if err := s.ownsProject(projectID, userID); err != nil {
		return err
	}
	return s.execOwned("DELETE FROM project_dates WHERE id = ? AND project_id = ?", dateID, projectID)
}

func (s *SQLStore) CreateComment(c *models.Comment) error {
	if err := s.ownsProject(c.ProjectID, c.UserID); err != nil {
		return err
	}
	now := time.Now().UTC()
	id, err := s.insert(s.db, "INSERT INTO comments (project_id, user_id, content, created_at) VALUES (?, ?, ?, ?)",
		c.ProjectID, c.UserID, c.Content, now)
	if err != nil {
		return err
	}
	c.ID = id
	c.CreatedAt = now
	return nil
}

func (s *SQLStore) GetComments(projectID, userID int) ([]models.Comment, error) {
	if err := s.ownsProject(projectID, userID); err != nil {
		return nil, err
	}
	rows, err := s.db.Query(s.rebind("SELECT id, project_id, user_id, content, created_at FROM comments WHERE project_id = ? ORDER BY created_at ASC, id ASC"), projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	comments := []models.Comment{}
	for rows.Next() {
		var c models.Comment
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.UserID, &c.Content, &c.CreatedAt); err != nil {
			continue
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

func (s *SQLStore) DeleteComment(commentID, projectID, userID int) error {
	if err := s.ownsProject(projectID, userID); err != nil {
		return err
	}
	return s.execOwned("DELETE FROM comments WHERE id = ? AND project_id = ?", commentID, projectID)
}

// Category functions
func (s *SQLStore) CreateCategory(c *models.Category) error {
	now := time.Now().UTC()
	id, err := s.insert(s.db, "INSERT INTO categories (user_id, name, color, created_at) VALUES (?, ?, ?, ?)",
		c.UserID, c.Name, c.Color, now)
	if err != nil {
		return nameTaken(err)
	}
	c.ID = id
	c.CreatedAt = now
	return nil
}

func (s *SQLStore) GetCategories(userID int) ([]models.Category, error) {
	rows, err := s.db.Query(s.rebind("SELECT id, user_id, name, color, created_at FROM categories WHERE user_id = ? ORDER BY created_at ASC, id ASC"), userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := []models.Category{}
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &c.Color, &c.CreatedAt); err != nil {
			continue
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (s *SQLStore) GetCategory(categoryID, userID int) (models.Category, error) {
	var c models.Category
	err := s.db.QueryRow(s.rebind("SELECT id, user_id, name, color, created_at FROM categories WHERE id = ? AND user_id = ?"),
		categoryID, userID).Scan(&c.ID, &c.UserID, &c.Name, &c.Color, &c.CreatedAt)
	return c, err
}

func (s *SQLStore) UpdateCategory(c *models.Category) error {
	return nameTaken(s.execOwned("UPDATE categories SET name = ?, color = ? WHERE id = ? AND user_id = ?", c.Name, c.Color, c.ID, c.UserID))
}

func (s *SQLStore) DeleteCategory(categoryID, userID int) error {
	return s.execOwned("DELETE FROM categories WHERE id = ? AND user_id = ?", categoryID, userID)
}

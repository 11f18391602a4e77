package sqlstore

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"casebeam/internal/models"
	"casebeam/internal/store"
)

func (s *SQLStore) CreateUser(email, name, passwordHash string) (int, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	var existing int
	err := s.db.QueryRow(s.rebind("SELECT id FROM users WHERE email = ?"), email).Scan(&existing)
	if err == nil {
		return 0, store.ErrEmailTaken
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}

	return s.insert(s.db, "INSERT INTO users (email, name, password_hash, created_at) VALUES (?, ?, ?, ?)",
		email, name, passwordHash, time.Now().UTC())
}

func (s *SQLStore) GetUserByEmail(email string) (models.User, error) {
	var u models.User
	err := s.db.QueryRow(s.rebind("SELECT id, email, name, password_hash, created_at FROM users WHERE email = ?"),
		strings.ToLower(strings.TrimSpace(email))).Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.CreatedAt)
	return u, err
}

func (s *SQLStore) GetUser(userID int) (models.User, error) {
	var u models.User
	err := s.db.QueryRow(s.rebind("SELECT id, email, name, password_hash, created_at FROM users WHERE id = ?"),
		userID).Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.CreatedAt)
	return u, err
}

// DeleteUser removes the account; foreign keys cascade to every owned row.
func (s *SQLStore) DeleteUser(userID int) error {
	return s.execOwned("DELETE FROM users WHERE id = ?", userID)
}

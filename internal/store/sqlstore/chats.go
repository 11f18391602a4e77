package sqlstore

import (
	"time"

	"casebeam/internal/models"
)

func (s *SQLStore) CreateChat(userID int, title string) (models.Chat, error) {
	now := time.Now().UTC()
	c := models.Chat{UserID: userID, Title: title, CreatedAt: now, UpdatedAt: now}
	id, err := s.insert(s.db, "INSERT INTO chats (user_id, title, created_at, updated_at) VALUES (?, ?, ?, ?)",
		userID, title, now, now)
	if err != nil {
		return models.Chat{}, err
	}
	c.ID = id
	return c, nil
}

func (s *SQLStore) GetChats(userID int) ([]models.Chat, error) {
	rows, err := s.db.Query(s.rebind("SELECT id, user_id, title, created_at, updated_at FROM chats WHERE user_id = ? ORDER BY updated_at DESC, id DESC"), userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	chats := []models.Chat{}
	for rows.Next() {
		var c models.Chat
		if err := rows.Scan(&c.ID, &c.UserID, &c.Title, &c.CreatedAt, &c.UpdatedAt); err != nil {
			continue
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

func (s *SQLStore) GetChat(chatID, userID int) (models.Chat, error) {
	var c models.Chat
	err := s.db.QueryRow(s.rebind("SELECT id, user_id, title, created_at, updated_at FROM chats WHERE id = ? AND user_id = ?"),
		chatID, userID).Scan(&c.ID, &c.UserID, &c.Title, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (s *SQLStore) RenameChat(chatID, userID int, title string) error {
	return s.execOwned("UPDATE chats SET title = ?, updated_at = ? WHERE id = ? AND user_id = ?",
		title, time.Now().UTC(), chatID, userID)
}

func (s *SQLStore) TouchChat(chatID int) error {
	return s.execOwned("UPDATE chats SET updated_at = ? WHERE id = ?", time.Now().UTC(), chatID)
}

// DeleteChat removes the chat and its messages. Unsaved search results of
// those messages go with it; saved ones stay on the dashboard, unlinked.
func (s *SQLStore) DeleteChat(chatID, userID int) error {
	if _, err := s.GetChat(chatID, userID); err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(s.rebind(`DELETE FROM search_results
		WHERE saved = ? AND user_id = ? AND message_id IN (SELECT id FROM messages WHERE chat_id = ?)`),
		false, userID, chatID)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(s.rebind("DELETE FROM chats WHERE id = ? AND user_id = ?"), chatID, userID); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLStore) CreateMessage(m *models.Message) error {
	now := time.Now().UTC()
	id, err := s.insert(s.db, "INSERT INTO messages (chat_id, role, content, search_query, created_at) VALUES (?, ?, ?, ?, ?)",
		m.ChatID, m.Role, m.Content, m.SearchQuery, now)
	if err != nil {
		return err
	}
	m.ID = id
	m.CreatedAt = now
	return nil
}

func (s *SQLStore) UpdateMessageContent(messageID int, content string) error {
	return s.execOwned("UPDATE messages SET content = ? WHERE id = ?", content, messageID)
}

// GetMessages returns the chat's messages oldest first, without results.
func (s *SQLStore) GetMessages(chatID int) ([]models.Message, error) {
	rows, err := s.db.Query(s.rebind("SELECT id, chat_id, role, content, search_query, created_at FROM messages WHERE chat_id = ? ORDER BY created_at ASC, id ASC"), chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.ChatID, &m.Role, &m.Content, &m.SearchQuery, &m.CreatedAt); err != nil {
			continue
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func (s *SQLStore) GetLastAssistantMessage(chatID int) (models.Message, error) {
	var m models.Message
	err := s.db.QueryRow(s.rebind(`SELECT id, chat_id, role, content, search_query, created_at FROM messages
		WHERE chat_id = ? AND role = ? ORDER BY created_at DESC, id DESC LIMIT 1`), chatID, models.RoleAssistant).
		Scan(&m.ID, &m.ChatID, &m.Role, &m.Content, &m.SearchQuery, &m.CreatedAt)
	return m, err
}

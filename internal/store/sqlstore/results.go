package sqlstore

import (
	"strings"
	"time"

	"casebeam/internal/models"
)

const resultColumns = `id, user_id, message_id, project_id, category_id, document_id, title, citation, jurisdiction,
	doc_type, year, url, excerpt, summary, relevance, detail, saved, created_at`

func scanResult(row interface{ Scan(...any) error }, r *models.SearchResult) error {
	return row.Scan(&r.ID, &r.UserID, &r.MessageID, &r.ProjectID, &r.CategoryID, &r.DocumentID, &r.Title,
		&r.Citation, &r.Jurisdiction, &r.DocType, &r.Year, &r.URL, &r.Excerpt, &r.Summary, &r.Relevance,
		&r.Detail, &r.Saved, &r.CreatedAt)
}

func (s *SQLStore) queryResults(query string, args ...any) ([]models.SearchResult, error) {
	rows, err := s.db.Query(s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []models.SearchResult{}
	for rows.Next() {
		var r models.SearchResult
		if err := scanResult(rows, &r); err != nil {
			continue
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// CreateSearchResults inserts the batch in one transaction and returns the
// rows with ids and timestamps set.
func (s *SQLStore) CreateSearchResults(results []models.SearchResult) ([]models.SearchResult, error) {
	if len(results) == 0 {
		return []models.SearchResult{}, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	out := make([]models.SearchResult, len(results))
	for i, r := range results {
		id, err := s.insert(tx, `INSERT INTO search_results (user_id, message_id, project_id, category_id, document_id, title,
			citation, jurisdiction, doc_type, year, url, excerpt, summary, relevance, detail, saved, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.UserID, r.MessageID, r.ProjectID, r.CategoryID, r.DocumentID, r.Title, r.Citation, r.Jurisdiction,
			r.DocType, r.Year, r.URL, r.Excerpt, r.Summary, r.Relevance, r.Detail, r.Saved, now)
		if err != nil {
			return nil, err
		}
		r.ID = id
		r.CreatedAt = now
		out[i] = r
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *SQLStore) GetSearchResult(resultID, userID int) (models.SearchResult, error) {
	var r models.SearchResult
	row := s.db.QueryRow(s.rebind("SELECT "+resultColumns+" FROM search_results WHERE id = ? AND user_id = ?"), resultID, userID)
	err := scanResult(row, &r)
	return r, err
}

func (s *SQLStore) GetSearchResultsByMessageIDs(messageIDs []int) (map[int][]models.SearchResult, error) {
	result := make(map[int][]models.SearchResult)
	if len(messageIDs) == 0 {
		return result, nil
	}

	args := make([]any, len(messageIDs))
	for i, id := range messageIDs {
		args[i] = id
	}

	rows, err := s.queryResults("SELECT "+resultColumns+" FROM search_results WHERE message_id IN ("+
		placeholders(len(messageIDs))+") ORDER BY relevance DESC, id ASC", args...)
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		result[*r.MessageID] = append(result[*r.MessageID], r)
	}
	return result, nil
}

// GetChatDocumentIDs lists the documents already shown in a chat.
func (s *SQLStore) GetChatDocumentIDs(chatID int) ([]string, error) {
	rows, err := s.db.Query(s.rebind(`SELECT DISTINCT sr.document_id FROM search_results sr
		JOIN messages m ON sr.message_id = m.id
		WHERE m.chat_id = ?`), chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpdateSearchResult applies a partial update. Linking to a project or
// category the user does not own returns sql.ErrNoRows.
func (s *SQLStore) UpdateSearchResult(resultID, userID int, u models.ResultUpdate) (models.SearchResult, error) {
	r, err := s.GetSearchResult(resultID, userID)
	if err != nil {
		return models.SearchResult{}, err
	}

	if u.Saved != nil {
		r.Saved = *u.Saved
	}
	if u.ClearProject {
		r.ProjectID = nil
	} else if u.ProjectID != nil {
		if err := s.ownsProject(*u.ProjectID, userID); err != nil {
			return models.SearchResult{}, err
		}
		r.ProjectID = u.ProjectID
	}
	if u.ClearCategory {
		r.CategoryID = nil
	} else if u.CategoryID != nil {
		if _, err := s.GetCategory(*u.CategoryID, userID); err != nil {
			return models.SearchResult{}, err
		}
		r.CategoryID = u.CategoryID
	}

	err = s.execOwned("UPDATE search_results SET saved = ?, project_id = ?, category_id = ? WHERE id = ? AND user_id = ?",
		r.Saved, r.ProjectID, r.CategoryID, resultID, userID)
	return r, err
}

func (s *SQLStore) SetSearchResultDetail(resultID, userID int, detail string) error {
	return s.execOwned("UPDATE search_results SET detail = ? WHERE id = ? AND user_id = ?", detail, resultID, userID)
}

func (s *SQLStore) DeleteSearchResult(resultID, userID int) error {
	return s.execOwned("DELETE FROM search_results WHERE id = ? AND user_id = ?", resultID, userID)
}

// ListSearchResults backs the dashboard. Query matches title, summary or
// citation case-insensitively.
func (s *SQLStore) ListSearchResults(userID int, f models.ResultFilter) ([]models.SearchResult, error) {
	var where strings.Builder
	where.WriteString("user_id = ?")
	args := []any{userID}

	if f.ProjectID != nil {
		where.WriteString(" AND project_id = ?")
		args = append(args, *f.ProjectID)
	}
	if f.CategoryID != nil {
		where.WriteString(" AND category_id = ?")
		args = append(args, *f.CategoryID)
	}
	if f.Saved != nil {
		where.WriteString(" AND saved = ?")
		args = append(args, *f.Saved)
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		like := "%" + strings.ToLower(q) + "%"
		where.WriteString(" AND (LOWER(title) LIKE ? OR LOWER(summary) LIKE ? OR LOWER(citation) LIKE ?)")
		args = append(args, like, like, like)
	}

	return s.queryResults("SELECT "+resultColumns+" FROM search_results WHERE "+where.String()+
		" ORDER BY created_at DESC, id DESC", args...)
}

// CountSavedResults returns saved result counts keyed by project id and by
// category id. Unlinked results are not counted.
func (s *SQLStore) CountSavedResults(userID int) (map[int]int, map[int]int, error) {
	byProject, err := s.countSavedBy("project_id", userID)
	if err != nil {
		return nil, nil, err
	}
	byCategory, err := s.countSavedBy("category_id", userID)
	if err != nil {
		return nil, nil, err
	}
	return byProject, byCategory, nil
}

func (s *SQLStore) countSavedBy(column string, userID int) (map[int]int, error) {
	rows, err := s.db.Query(s.rebind("SELECT "+column+", COUNT(*) FROM search_results WHERE user_id = ? AND saved = ? AND "+
		column+" IS NOT NULL GROUP BY "+column), userID, true)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[int]int)
	for rows.Next() {
		var id, n int
		if err := rows.Scan(&id, &n); err != nil {
			continue
		}
		counts[id] = n
	}
	return counts, rows.Err()
}

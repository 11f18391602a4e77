package api

import (
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	"casebeam/internal/hub"
	"casebeam/internal/mailer"
	"casebeam/internal/models"
)

type projectReq struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	ClientName   string `json:"client_name"`
	CaseNumber   string `json:"case_number"`
	Court        string `json:"court"`
	Jurisdiction string `json:"jurisdiction"`
	Status       string `json:"status"`
}

func (in projectReq) validate() string {
	if strings.TrimSpace(in.Name) == "" {
		return "name is required"
	}
	switch in.Status {
	case "", models.StatusOpen, models.StatusPending, models.StatusClosed:
		return ""
	}
	return "status must be open, pending or closed"
}

func (in projectReq) apply(p *models.Project) {
	p.Name = strings.TrimSpace(in.Name)
	p.Description = in.Description
	p.ClientName = in.ClientName
	p.CaseNumber = in.CaseNumber
	p.Court = in.Court
	p.Jurisdiction = in.Jurisdiction
	p.Status = in.Status
}

func (h *Handlers) ListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.store.GetProjects(userID(r))
	if err != nil {
		storeError(w, err, "projects")
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

func (h *Handlers) CreateProject(w http.ResponseWriter, r *http.Request) {
	var in projectReq
	if err := decodeJSON(r, &in); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid json")
		return
	}
	if msg := in.validate(); msg != "" {
		errorJSON(w, http.StatusBadRequest, msg)
		return
	}
	p := models.Project{UserID: userID(r)}
	in.apply(&p)
	if err := h.store.CreateProject(&p); err != nil {
		storeError(w, err, "project")
		return
	}
	h.hub.Broadcast(p.UserID, hub.ResourceProjects)
	writeJSON(w, http.StatusCreated, p)
}

func (h *Handlers) GetProject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	uid := userID(r)
	p, err := h.store.GetProject(id, uid)
	if err != nil {
		storeError(w, err, "project")
		return
	}
	if p.Dates, err = h.store.GetProjectDates(id, uid); err != nil {
		storeError(w, err, "project dates")
		return
	}
	if p.Comments, err = h.store.GetComments(id, uid); err != nil {
		storeError(w, err, "comments")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handlers) UpdateProject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var in projectReq
	if err := decodeJSON(r, &in); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid json")
		return
	}
	if msg := in.validate(); msg != "" {
		errorJSON(w, http.StatusBadRequest, msg)
		return
	}

	uid := userID(r)
	p, err := h.store.GetProject(id, uid)
	if err != nil {
		storeError(w, err, "project")
		return
	}
	in.apply(&p)
	if err := h.store.UpdateProject(&p); err != nil {
		storeError(w, err, "project")
		return
	}
	h.hub.Broadcast(uid, hub.ResourceProjects)
	writeJSON(w, http.StatusOK, p)
}

func (h *Handlers) DeleteProject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	uid := userID(r)
	if err := h.store.DeleteProject(id, uid); err != nil {
		storeError(w, err, "project")
		return
	}
	h.hub.Broadcast(uid, hub.ResourceProjects)
	w.WriteHeader(http.StatusNoContent)
}

type dateReq struct {
	Title       string `json:"title"`
	Date        string `json:"date"`
	Description string `json:"description"`
}

// parseDate accepts RFC 3339 timestamps or plain calendar dates.
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, s)
}

func (h *Handlers) ListProjectDates(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	dates, err := h.store.GetProjectDates(id, userID(r))
	if err != nil {
		storeError(w, err, "project")
		return
	}
	writeJSON(w, http.StatusOK, dates)
}

func (h *Handlers) CreateProjectDate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var in dateReq
	if err := decodeJSON(r, &in); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid json")
		return
	}
	if strings.TrimSpace(in.Title) == "" {
		errorJSON(w, http.StatusBadRequest, "title is required")
		return
	}
	date, err := parseDate(in.Date)
	if err != nil {
		errorJSON(w, http.StatusBadRequest, "date must be YYYY-MM-DD or RFC 3339")
		return
	}

	uid := userID(r)
	d := models.ProjectDate{ProjectID: id, Title: strings.TrimSpace(in.Title), Date: date, Description: in.Description}
	if err := h.store.CreateProjectDate(uid, &d); err != nil {
		storeError(w, err, "project")
		return
	}
	h.hub.Broadcast(uid, hub.ResourceProjects)
	writeJSON(w, http.StatusCreated, d)
}

func (h *Handlers) DeleteProjectDate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	dateID, ok := pathID(w, r, "dateID")
	if !ok {
		return
	}
	uid := userID(r)
	if err := h.store.DeleteProjectDate(dateID, id, uid); err != nil {
		storeError(w, err, "date")
		return
	}
	h.hub.Broadcast(uid, hub.ResourceProjects)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) ListComments(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	comments, err := h.store.GetComments(id, userID(r))
	if err != nil {
		storeError(w, err, "project")
		return
	}
	writeJSON(w, http.StatusOK, comments)
}

func (h *Handlers) CreateComment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var in struct {
		Content string `json:"content"`
	}
	if err := decodeJSON(r, &in); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid json")
		return
	}
	if strings.TrimSpace(in.Content) == "" {
		errorJSON(w, http.StatusBadRequest, "content is required")
		return
	}
	c := models.Comment{ProjectID: id, UserID: userID(r), Content: strings.TrimSpace(in.Content)}
	if err := h.store.CreateComment(&c); err != nil {
		storeError(w, err, "project")
		return
	}
	h.hub.Broadcast(c.UserID, hub.ResourceProjects)
	writeJSON(w, http.StatusCreated, c)
}

func (h *Handlers) DeleteComment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	commentID, ok := pathID(w, r, "commentID")
	if !ok {
		return
	}
	uid := userID(r)
	if err := h.store.DeleteComment(commentID, id, uid); err != nil {
		storeError(w, err, "comment")
		return
	}
	h.hub.Broadcast(uid, hub.ResourceProjects)
	w.WriteHeader(http.StatusNoContent)
}

// ShareProject emails a summary of the project's key dates and saved
// research.
func (h *Handlers) ShareProject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var in struct {
		To string `json:"to"`
	}
	if err := decodeJSON(r, &in); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid json")
		return
	}
	to := strings.TrimSpace(in.To)
	if !strings.Contains(to, "@") {
		errorJSON(w, http.StatusBadRequest, "a valid recipient is required")
		return
	}

	uid := userID(r)
	p, err := h.store.GetProject(id, uid)
	if err != nil {
		storeError(w, err, "project")
		return
	}
	dates, err := h.store.GetProjectDates(id, uid)
	if err != nil {
		storeError(w, err, "project dates")
		return
	}
	saved := true
	results, err := h.store.ListSearchResults(uid, models.ResultFilter{ProjectID: &id, Saved: &saved})
	if err != nil {
		storeError(w, err, "results")
		return
	}

	msg := projectSummary(p, dates, results, h.baseURL)
	msg.To = []string{to}
	if err := h.mailer.Send(r.Context(), msg); err != nil {
		upstreamError(w, fmt.Errorf("send share email: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sent": true, "to": to})
}

func projectSummary(p models.Project, dates []models.ProjectDate, results []models.SearchResult, baseURL string) mailer.Message {
	var text, body strings.Builder
	esc := html.EscapeString

	fmt.Fprintf(&text, "%s\n", p.Name)
	fmt.Fprintf(&body, "<h2>%s</h2>", esc(p.Name))
	if p.CaseNumber != "" || p.Court != "" {
		fmt.Fprintf(&text, "%s %s\n", p.CaseNumber, p.Court)
		fmt.Fprintf(&body, "<p>%s %s</p>", esc(p.CaseNumber), esc(p.Court))
	}
	if p.Description != "" {
		fmt.Fprintf(&text, "\n%s\n", p.Description)
		fmt.Fprintf(&body, "<p>%s</p>", esc(p.Description))
	}

	if len(dates) > 0 {
		text.WriteString("\nKey dates:\n")
		body.WriteString("<h3>Key dates</h3><ul>")
		for _, d := range dates {
			day := d.Date.Format(time.DateOnly)
			fmt.Fprintf(&text, "- %s: %s\n", day, d.Title)
			fmt.Fprintf(&body, "<li>%s: %s</li>", day, esc(d.Title))
		}
		body.WriteString("</ul>")
	}

	if len(results) > 0 {
		text.WriteString("\nSaved research:\n")
		body.WriteString("<h3>Saved research</h3><ul>")
		for _, r := range results {
			fmt.Fprintf(&text, "- %s (%s): %s\n", r.Title, r.Citation, r.Summary)
			title := esc(r.Title)
			if r.URL != "" {
				title = fmt.Sprintf(`<a href="%s">%s</a>`, esc(r.URL), title)
			}
			fmt.Fprintf(&body, "<li><strong>%s</strong> %s<br>%s</li>", title, esc(r.Citation), esc(r.Summary))
		}
		body.WriteString("</ul>")
	}

	if baseURL != "" {
		link := fmt.Sprintf("%s/projects/%d", strings.TrimRight(baseURL, "/"), p.ID)
		fmt.Fprintf(&text, "\n%s\n", link)
		fmt.Fprintf(&body, `<p><a href="%s">Open in CaseBeam</a></p>`, esc(link))
	}

	return mailer.Message{
		Subject: "Case summary: " + p.Name,
		HTML:    body.String(),
		Text:    text.String(),
	}
}

package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"unicode/utf8"

	"casebeam/internal/hub"
	"casebeam/internal/llm"
	"casebeam/internal/models"
	"casebeam/internal/rag"
	"casebeam/internal/vectordb"
)

const maxTitleRunes = 60

type messageReq struct {
	Message string          `json:"message"`
	Title   string          `json:"title"`
	Filter  vectordb.Filter `json:"filter"`
}

type chatResp struct {
	models.Chat
	Messages []models.Message `json:"messages"`
}

// chatTitle is the first line of the message cut to maxTitleRunes.
func chatTitle(message string) string {
	title := strings.TrimSpace(message)
	if i := strings.IndexByte(title, '\n'); i >= 0 {
		title = strings.TrimSpace(title[:i])
	}
	if utf8.RuneCountInString(title) > maxTitleRunes {
		title = strings.TrimSpace(string([]rune(title)[:maxTitleRunes]))
	}
	if title == "" {
		return "New research"
	}
	return title
}

func (h *Handlers) ListChats(w http.ResponseWriter, r *http.Request) {
	chats, err := h.store.GetChats(userID(r))
	if err != nil {
		storeError(w, err, "chats")
		return
	}
	writeJSON(w, http.StatusOK, chats)
}

// CreateChat starts a chat. With a message in the body the reply is streamed
// exactly like PostMessage; otherwise the empty chat is returned as JSON.
func (h *Handlers) CreateChat(w http.ResponseWriter, r *http.Request) {
	var in messageReq
	if err := decodeJSON(r, &in); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid json")
		return
	}
	uid := userID(r)
	message := strings.TrimSpace(in.Message)

	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = chatTitle(message)
	}
	chat, err := h.store.CreateChat(uid, title)
	if err != nil {
		storeError(w, err, "chat")
		return
	}
	h.hub.Broadcast(uid, hub.ResourceChats)

	if message == "" {
		writeJSON(w, http.StatusCreated, chat)
		return
	}
	h.generate(w, r, chat, message, in.Filter)
}

func (h *Handlers) GetChat(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	chat, err := h.store.GetChat(id, userID(r))
	if err != nil {
		storeError(w, err, "chat")
		return
	}
	messages, err := h.store.GetMessages(chat.ID)
	if err != nil {
		storeError(w, err, "messages")
		return
	}

	ids := make([]int, len(messages))
	for i, m := range messages {
		ids[i] = m.ID
	}
	results, err := h.store.GetSearchResultsByMessageIDs(ids)
	if err != nil {
		storeError(w, err, "results")
		return
	}
	for i := range messages {
		messages[i].SearchResults = results[messages[i].ID]
	}
	writeJSON(w, http.StatusOK, chatResp{Chat: chat, Messages: messages})
}

func (h *Handlers) RenameChat(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var in struct {
		Title string `json:"title"`
	}
	if err := decodeJSON(r, &in); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid json")
		return
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		errorJSON(w, http.StatusBadRequest, "title is required")
		return
	}
	uid := userID(r)
	if err := h.store.RenameChat(id, uid, title); err != nil {
		storeError(w, err, "chat")
		return
	}
	chat, err := h.store.GetChat(id, uid)
	if err != nil {
		storeError(w, err, "chat")
		return
	}
	h.hub.Broadcast(uid, hub.ResourceChats)
	writeJSON(w, http.StatusOK, chat)
}

func (h *Handlers) DeleteChat(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	uid := userID(r)
	if err := h.store.DeleteChat(id, uid); err != nil {
		storeError(w, err, "chat")
		return
	}
	h.hub.Broadcast(uid, hub.ResourceChats)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) PostMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var in messageReq
	if err := decodeJSON(r, &in); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid json")
		return
	}
	message := strings.TrimSpace(in.Message)
	if message == "" {
		errorJSON(w, http.StatusBadRequest, "message is required")
		return
	}
	chat, err := h.store.GetChat(id, userID(r))
	if err != nil {
		storeError(w, err, "chat")
		return
	}
	h.generate(w, r, chat, message, in.Filter)
}

// sseWriter writes server-sent events and flushes after each one.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newSSEWriter(w http.ResponseWriter) *sseWriter {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	f, _ := w.(http.Flusher)
	return &sseWriter{w: w, flusher: f}
}

func (s *sseWriter) event(name string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", name, payload); err != nil {
		return err
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}

func historyTurns(messages []models.Message) []llm.Turn {
	turns := make([]llm.Turn, 0, len(messages))
	for _, m := range messages {
		if m.Content == "" {
			continue
		}
		role := llm.RoleUser
		if m.Role == models.RoleAssistant {
			role = llm.RoleModel
		}
		turns = append(turns, llm.Turn{Role: role, Text: m.Content})
	}
	return turns
}

// generate answers one user message in a chat and streams the progress as
// server-sent events: chat, results, token..., then done or error. The
// assistant message is persisted with whatever text was produced, even
// when the client goes away mid-stream.
func (h *Handlers) generate(w http.ResponseWriter, r *http.Request, chat models.Chat, message string, filter vectordb.Filter) {
	ctx := r.Context()
	uid := chat.UserID

	prior, err := h.store.GetMessages(chat.ID)
	if err != nil {
		storeError(w, err, "messages")
		return
	}
	history := historyTurns(prior)

	if err := h.store.CreateMessage(&models.Message{ChatID: chat.ID, Role: models.RoleUser, Content: message}); err != nil {
		storeError(w, err, "message")
		return
	}

	sse := newSSEWriter(w)
	if err := sse.event("chat", map[string]any{"chat_id": chat.ID, "title": chat.Title}); err != nil {
		log.Printf("[rag] chat %d: client gone before search: %v", chat.ID, err)
		return
	}

	fail := func(err error) {
		log.Printf("[rag] chat %d: %v", chat.ID, err)
		sse.event("error", map[string]string{"error": err.Error()})
	}

	query := h.pipeline.Condense(ctx, history, message)
	found, err := h.pipeline.Results(ctx, message, rag.Query{Text: query, Filter: filter})
	if err != nil {
		fail(fmt.Errorf("search: %w", err))
		return
	}

	assistant := models.Message{ChatID: chat.ID, Role: models.RoleAssistant, SearchQuery: query}
	if err := h.store.CreateMessage(&assistant); err != nil {
		fail(fmt.Errorf("save message: %w", err))
		return
	}
	for i := range found {
		found[i].UserID = uid
		found[i].MessageID = &assistant.ID
	}
	results, err := h.store.CreateSearchResults(found)
	if err != nil {
		fail(fmt.Errorf("save results: %w", err))
		return
	}
	if err := sse.event("results", results); err != nil {
		log.Printf("[rag] chat %d: client gone before answer: %v", chat.ID, err)
		h.persistAnswer(chat.ID, assistant.ID, "")
		return
	}

	answer, err := h.pipeline.Answer(ctx, history, message, results, func(text string) error {
		return sse.event("token", map[string]string{"text": text})
	})
	h.persistAnswer(chat.ID, assistant.ID, answer)
	h.hub.Broadcast(uid, hub.ResourceChats)

	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			log.Printf("[rag] chat %d: client disconnected, kept %d bytes", chat.ID, len(answer))
			return
		}
		fail(fmt.Errorf("answer: %w", err))
		return
	}
	sse.event("done", map[string]int{"message_id": assistant.ID})
}

func (h *Handlers) persistAnswer(chatID, messageID int, answer string) {
	if err := h.store.UpdateMessageContent(messageID, answer); err != nil {
		log.Printf("[db] save answer for message %d: %v", messageID, err)
	}
	if err := h.store.TouchChat(chatID); err != nil {
		log.Printf("[db] touch chat %d: %v", chatID, err)
	}
}

// MoreResults runs the last search of the chat again, excluding every
// document already shown in it.
func (h *Handlers) MoreResults(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var in messageReq
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &in); err != nil {
			errorJSON(w, http.StatusBadRequest, "invalid json")
			return
		}
	}

	uid := userID(r)
	chat, err := h.store.GetChat(id, uid)
	if err != nil {
		storeError(w, err, "chat")
		return
	}
	last, err := h.store.GetLastAssistantMessage(chat.ID)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && last.SearchQuery == "") {
		errorJSON(w, http.StatusNotFound, "no search in this chat yet")
		return
	} else if err != nil {
		storeError(w, err, "message")
		return
	}
	seen, err := h.store.GetChatDocumentIDs(chat.ID)
	if err != nil {
		storeError(w, err, "results")
		return
	}

	found, err := h.pipeline.More(r.Context(), last.SearchQuery, rag.Query{Text: last.SearchQuery, Filter: in.Filter}, seen)
	if err != nil {
		upstreamError(w, fmt.Errorf("search: %w", err))
		return
	}
	for i := range found {
		found[i].UserID = uid
		found[i].MessageID = &last.ID
	}
	results, err := h.store.CreateSearchResults(found)
	if err != nil {
		storeError(w, err, "results")
		return
	}
	writeJSON(w, http.StatusOK, results)
}

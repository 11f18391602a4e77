package api

import (
	"bufio"
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"casebeam/internal/auth"
	"casebeam/internal/embedding"
	"casebeam/internal/llm"
	"casebeam/internal/mailer"
	"casebeam/internal/mcp"
	"casebeam/internal/models"
	"casebeam/internal/rag"
	"casebeam/internal/store/sqlstore"
	"casebeam/internal/vectordb"
)

// fakeModel tells the pipeline steps apart by their request shape.
type fakeModel struct {
	mu           sync.Mutex
	detailCalls  int
	summaryCalls int
	streamCalls  int
	// interrupt, when set, is called after the first streamed delta and the
	// stream then stops with the context error.
	interrupt func()
}

func (m *fakeModel) Generate(ctx context.Context, req llm.Request) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case req.JSON:
		m.summaryCalls++
		return `{"results":[
			{"document_id":"palsgraf","summary":"Duty is limited to foreseeable plaintiffs.","relevance":88},
			{"document_id":"donoghue","summary":"Manufacturers owe consumers a duty of care.","relevance":75}]}`, nil
	case req.Temperature != nil:
		return "manufacturer duty of care negligence", nil
	default:
		m.detailCalls++
		return "## Facts\nA package exploded.", nil
	}
}

func (m *fakeModel) Stream(ctx context.Context, req llm.Request, onText func(string) error) (string, error) {
	m.mu.Lock()
	m.streamCalls++
	interrupt := m.interrupt
	m.mu.Unlock()

	var full strings.Builder
	for _, d := range []string{"Palsgraf limits duty ", "to foreseeable plaintiffs [1]."} {
		full.WriteString(d)
		if err := onText(d); err != nil {
			return full.String(), err
		}
		if interrupt != nil {
			interrupt()
			return full.String(), ctx.Err()
		}
	}
	return full.String(), nil
}

type captureMailer struct {
	mu   sync.Mutex
	sent []mailer.Message
}

func (c *captureMailer) Send(ctx context.Context, msg mailer.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg)
	return nil
}

var corpus = []vectordb.Payload{
	{DocumentID: "palsgraf", ChunkIndex: 0, Title: "Palsgraf v. Long Island R.R.", Citation: "248 N.Y. 339", Jurisdiction: "NY", DocType: "case", Year: 1928,
		Text: "The risk reasonably to be perceived defines the duty of care to be obeyed in negligence."},
	{DocumentID: "palsgraf", ChunkIndex: 1, Title: "Palsgraf v. Long Island R.R.", Citation: "248 N.Y. 339", Jurisdiction: "NY", DocType: "case", Year: 1928,
		Text: "Proximate cause and the foreseeable plaintiff define negligence duty."},
	{DocumentID: "donoghue", ChunkIndex: 0, Title: "Donoghue v Stevenson", Citation: "[1932] AC 562", Jurisdiction: "UK", DocType: "case", Year: 1932,
		Text: "A manufacturer owes a duty of care in negligence to the ultimate consumer."},
	{DocumentID: "ucc", ChunkIndex: 0, Title: "UCC 2-207", Jurisdiction: "US", DocType: "statute", Year: 1952,
		Text: "Additional terms in acceptance or confirmation of a contract offer."},
}

type testEnv struct {
	router    http.Handler
	store     *sqlstore.SQLStore
	model     *fakeModel
	mail      *captureMailer
	uploadDir string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	st, err := sqlstore.New("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	emb := embedding.NewMockEmbedder(128)
	vectors := vectordb.NewMemory()
	texts := make([]string, len(corpus))
	for i, p := range corpus {
		texts[i] = p.Text
	}
	vecs, _ := emb.Embed(ctx, texts, embedding.TaskDocument)
	points := make([]vectordb.Point, len(corpus))
	for i, p := range corpus {
		points[i] = vectordb.Point{ID: fmt.Sprintf("%s:%d", p.DocumentID, p.ChunkIndex), Vector: vecs[i], Payload: p}
	}
	if err := vectors.Upsert(ctx, points); err != nil {
		t.Fatal(err)
	}

	model := &fakeModel{}
	mail := &captureMailer{}
	uploadDir := t.TempDir()
	h := NewHandlers(Deps{
		Store:     st,
		Pipeline:  rag.NewPipeline(rag.NewRetriever(emb, vectors, nil, 4, 0), model, 2),
		Mailer:    mail,
		Issuer:    auth.NewIssuer("test-secret", time.Hour, false),
		UploadDir: uploadDir,
	})
	router := NewRouter(h, RouterOptions{MCP: mcp.NewMCPServer(st).NewServer()})
	return &testEnv{router: router, store: st, model: model, mail: mail, uploadDir: uploadDir}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("Failed to decode response %q: %v", w.Body.String(), err)
	}
	return v
}

func (e *testEnv) signup(t *testing.T, email string) string {
	t.Helper()
	w := e.do(t, "POST", "/api/auth/signup", "", map[string]string{"email": email, "password": "password123", "name": "Test"})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status Created, got %v: %s", w.Code, w.Body.String())
	}
	return decode[authResp](t, w).Token
}

func TestSignupAndLogin(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "POST", "/api/auth/signup", "", `{"email": "Lawyer@Example.com", "password": "password123", "name": "Ann"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status Created, got %v", w.Code)
	}
	if len(w.Result().Cookies()) == 0 || w.Result().Cookies()[0].Name != auth.CookieName {
		t.Error("Expected auth cookie")
	}
	if len(env.mail.sent) != 1 || env.mail.sent[0].To[0] != "lawyer@example.com" {
		t.Errorf("Expected welcome email, got %+v", env.mail.sent)
	}

	w = env.do(t, "POST", "/api/auth/signup", "", `{"email": "lawyer@example.com", "password": "password123"}`)
	if w.Code != http.StatusConflict {
		t.Errorf("Expected status Conflict for duplicate email, got %v", w.Code)
	}
	w = env.do(t, "POST", "/api/auth/signup", "", `{"email": "short@example.com", "password": "pw"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status BadRequest for short password, got %v", w.Code)
	}

	w = env.do(t, "POST", "/api/auth/login", "", `{"email": "lawyer@example.com", "password": "wrong-password"}`)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status Unauthorized, got %v", w.Code)
	}
	w = env.do(t, "POST", "/api/auth/login", "", `{"email": "LAWYER@example.com", "password": "password123"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status OK, got %v", w.Code)
	}
	token := decode[authResp](t, w).Token

	w = env.do(t, "GET", "/api/auth/me", token, nil)
	if w.Code != http.StatusOK || decode[models.User](t, w).Name != "Ann" {
		t.Errorf("Expected me to return the user, got %v", w.Code)
	}

	// Signup creates the default category
	w = env.do(t, "GET", "/api/categories", token, nil)
	cats := decode[[]models.Category](t, w)
	if len(cats) != 1 || cats[0].Name != defaultCategory {
		t.Errorf("Expected default category, got %+v", cats)
	}

	w = env.do(t, "POST", "/api/auth/logout", token, nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("Expected status NoContent, got %v", w.Code)
	}
	w = env.do(t, "GET", "/api/auth/me", token, nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected revoked token to be rejected, got %v", w.Code)
	}
}

func TestHealthIsPublic(t *testing.T) {
	env := newTestEnv(t)
	if w := env.do(t, "GET", "/healthz", "", nil); w.Code != http.StatusOK {
		t.Errorf("Expected status OK, got %v", w.Code)
	}
	if w := env.do(t, "GET", "/api/projects", "", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status Unauthorized, got %v", w.Code)
	}
}

func TestProjectsFlow(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup(t, "owner@example.com")
	other := env.signup(t, "other@example.com")

	w := env.do(t, "POST", "/api/projects", token, map[string]string{"name": "Smith v. Jones", "status": "archived"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected invalid status to be rejected, got %v", w.Code)
	}
	w = env.do(t, "POST", "/api/projects", token, map[string]string{"name": "Smith v. Jones", "court": "S.D.N.Y."})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status Created, got %v: %s", w.Code, w.Body.String())
	}
	p := decode[models.Project](t, w)
	if p.Status != models.StatusOpen {
		t.Errorf("Expected default status open, got %q", p.Status)
	}
	base := fmt.Sprintf("/api/projects/%d", p.ID)

	w = env.do(t, "POST", base+"/dates", token, map[string]string{"title": "Filing deadline", "date": "2026-11-02"})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status Created, got %v: %s", w.Code, w.Body.String())
	}
	w = env.do(t, "POST", base+"/dates", token, map[string]string{"title": "Bad", "date": "next week"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected bad date to be rejected, got %v", w.Code)
	}
	w = env.do(t, "POST", base+"/comments", token, map[string]string{"content": "Call opposing counsel"})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status Created, got %v", w.Code)
	}

	w = env.do(t, "GET", base, token, nil)
	got := decode[models.Project](t, w)
	if len(got.Dates) != 1 || len(got.Comments) != 1 {
		t.Errorf("Expected dates and comments, got %+v", got)
	}

	if w := env.do(t, "GET", base, other, nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected other user to get NotFound, got %v", w.Code)
	}
	if w := env.do(t, "DELETE", base, other, nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected other user delete to be NotFound, got %v", w.Code)
	}

	w = env.do(t, "PUT", base, token, map[string]string{"name": "Smith v. Jones", "status": "pending"})
	if w.Code != http.StatusOK || decode[models.Project](t, w).Status != models.StatusPending {
		t.Errorf("Expected update to succeed, got %v", w.Code)
	}

	w = env.do(t, "POST", base+"/share", token, map[string]string{"to": "partner@firm.test"})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected share to succeed, got %v: %s", w.Code, w.Body.String())
	}
	last := env.mail.sent[len(env.mail.sent)-1]
	if last.To[0] != "partner@firm.test" || !strings.Contains(last.Text, "Filing deadline") {
		t.Errorf("Unexpected share email: %+v", last)
	}

	if w := env.do(t, "DELETE", base, token, nil); w.Code != http.StatusNoContent {
		t.Errorf("Expected status NoContent, got %v", w.Code)
	}
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func (e *testEnv) upload(t *testing.T, path, token, filename string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, _ := mw.CreateFormFile("image", filename)
	fw.Write(data)
	mw.Close()

	req := httptest.NewRequest("POST", path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestNotesFlow(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup(t, "notes@example.com")
	other := env.signup(t, "nosy@example.com")

	w := env.do(t, "POST", "/api/notes", token, map[string]string{"title": "Deposition", "content": "<p>This is a test note</p>"})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status Created, got %v", w.Code)
	}
	note := decode[models.Note](t, w)

	// Linking to someone else's project is a not found
	w = env.do(t, "POST", "/api/projects", other, map[string]string{"name": "Theirs"})
	theirs := decode[models.Project](t, w)
	w = env.do(t, "POST", "/api/notes", token, map[string]any{"content": "x", "project_id": theirs.ID})
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected NotFound for foreign project, got %v", w.Code)
	}

	imgPath := fmt.Sprintf("/api/notes/%d/images", note.ID)
	w = env.upload(t, imgPath, token, "fake.png", []byte("not an image"))
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected undecodable image to be rejected, got %v", w.Code)
	}
	w = env.upload(t, imgPath, token, "scan.bin", pngBytes(t))
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status Created, got %v: %s", w.Code, w.Body.String())
	}
	uploaded := decode[map[string]any](t, w)
	url := uploaded["url"].(string)
	if !strings.HasSuffix(url, ".png") {
		t.Errorf("Expected png extension from decoded format, got %s", url)
	}
	if w := env.upload(t, imgPath, other, "x.png", pngBytes(t)); w.Code != http.StatusNotFound {
		t.Errorf("Expected upload to foreign note to be NotFound, got %v", w.Code)
	}

	w = env.do(t, "GET", "/api/notes", token, nil)
	notes := decode[[]models.Note](t, w)
	if len(notes) != 1 || len(notes[0].Images) != 1 {
		t.Fatalf("Expected 1 note with 1 image, got %+v", notes)
	}

	if w := env.do(t, "GET", url, token, nil); w.Code != http.StatusOK {
		t.Errorf("Expected owner to fetch image, got %v", w.Code)
	}
	if w := env.do(t, "GET", url, other, nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected other user to get NotFound, got %v", w.Code)
	}

	w = env.do(t, "DELETE", fmt.Sprintf("/api/images/%d", notes[0].Images[0].ID), token, nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("Expected status NoContent, got %v", w.Code)
	}
	if w := env.do(t, "GET", url, token, nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected deleted image to be gone, got %v", w.Code)
	}

	w = env.do(t, "PUT", fmt.Sprintf("/api/notes/%d", note.ID), token, map[string]string{"title": "Deposition", "content": "updated"})
	if w.Code != http.StatusOK || decode[models.Note](t, w).Content != "updated" {
		t.Errorf("Expected update, got %v", w.Code)
	}
	if w := env.do(t, "DELETE", fmt.Sprintf("/api/notes/%d", note.ID), other, nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected NotFound, got %v", w.Code)
	}
}

type sseEvent struct {
	name string
	data string
}

func parseSSE(t *testing.T, body string) []sseEvent {
	t.Helper()
	var events []sseEvent
	var cur sseEvent
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			cur.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			cur.data = strings.TrimPrefix(line, "data: ")
		case line == "" && cur.name != "":
			events = append(events, cur)
			cur = sseEvent{}
		}
	}
	return events
}

func TestChatGenerateAndResults(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup(t, "research@example.com")

	w := env.do(t, "POST", "/api/chats", token, map[string]string{"message": "negligence duty of care owed to a plaintiff"})
	if w.Code != http.StatusOK || !strings.HasPrefix(w.Header().Get("Content-Type"), "text/event-stream") {
		t.Fatalf("Expected event stream, got %v %s", w.Code, w.Header().Get("Content-Type"))
	}
	events := parseSSE(t, w.Body.String())

	var names []string
	for _, e := range events {
		names = append(names, e.name)
	}
	if got := strings.Join(names, ","); got != "chat,results,token,token,done" {
		t.Fatalf("Unexpected event sequence %s", got)
	}

	var chatEv struct {
		ChatID int    `json:"chat_id"`
		Title  string `json:"title"`
	}
	json.Unmarshal([]byte(events[0].data), &chatEv)
	if chatEv.Title != "negligence duty of care owed to a plaintiff" {
		t.Errorf("Unexpected chat title %q", chatEv.Title)
	}

	var results []models.SearchResult
	json.Unmarshal([]byte(events[1].data), &results)
	if len(results) != 2 || results[0].DocumentID != "palsgraf" || results[0].Relevance != 88 || results[0].ID == 0 {
		t.Fatalf("Unexpected results %+v", results)
	}

	w = env.do(t, "GET", fmt.Sprintf("/api/chats/%d", chatEv.ChatID), token, nil)
	chat := decode[chatResp](t, w)
	if len(chat.Messages) != 2 {
		t.Fatalf("Expected user and assistant messages, got %+v", chat.Messages)
	}
	assistant := chat.Messages[1]
	if assistant.Content != "Palsgraf limits duty to foreseeable plaintiffs [1]." || len(assistant.SearchResults) != 2 {
		t.Errorf("Unexpected assistant message %+v", assistant)
	}

	// Load more excludes documents already shown
	w = env.do(t, "POST", fmt.Sprintf("/api/chats/%d/more", chatEv.ChatID), token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status OK, got %v: %s", w.Code, w.Body.String())
	}
	for _, r := range decode[[]models.SearchResult](t, w) {
		if r.DocumentID == "palsgraf" || r.DocumentID == "donoghue" {
			t.Errorf("More returned an already shown document %s", r.DocumentID)
		}
	}

	// Save and file the top result under a project
	w = env.do(t, "POST", "/api/projects", token, map[string]string{"name": "Tort matter"})
	project := decode[models.Project](t, w)
	resultPath := fmt.Sprintf("/api/results/%d", results[0].ID)
	w = env.do(t, "PATCH", resultPath, token, map[string]any{"saved": true, "project_id": project.ID})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status OK, got %v: %s", w.Code, w.Body.String())
	}
	w = env.do(t, "PATCH", resultPath, token, map[string]any{"category_id": 9999})
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected NotFound for unknown category, got %v", w.Code)
	}

	w = env.do(t, "GET", "/api/dashboard?q=FORESEEABLE", token, nil)
	dash := decode[dashboardResp](t, w)
	if len(dash.Results) != 1 || dash.Counts.ByProject[project.ID] != 1 {
		t.Errorf("Unexpected dashboard %+v", dash)
	}
	w = env.do(t, "GET", "/api/dashboard?saved=maybe", token, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected BadRequest, got %v", w.Code)
	}

	// Detail is generated once and then served from the row
	for i := 0; i < 2; i++ {
		w = env.do(t, "POST", resultPath+"/detail", token, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("Expected status OK, got %v: %s", w.Code, w.Body.String())
		}
		if !strings.Contains(decode[models.SearchResult](t, w).Detail, "## Facts") {
			t.Error("Expected detail in response")
		}
	}
	if env.model.detailCalls != 1 {
		t.Errorf("Expected one detail generation, got %d", env.model.detailCalls)
	}

	// Deleting the chat keeps the saved result
	if w := env.do(t, "DELETE", fmt.Sprintf("/api/chats/%d", chatEv.ChatID), token, nil); w.Code != http.StatusNoContent {
		t.Errorf("Expected status NoContent, got %v", w.Code)
	}
	if w := env.do(t, "GET", resultPath, token, nil); w.Code != http.StatusOK {
		t.Errorf("Expected saved result to survive chat deletion, got %v", w.Code)
	}
	if w := env.do(t, "GET", fmt.Sprintf("/api/results/%d", results[1].ID), token, nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected unsaved result to be deleted with the chat, got %v", w.Code)
	}
}

func TestFollowUpUsesCondensedQuery(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup(t, "followup@example.com")

	w := env.do(t, "POST", "/api/chats", token, map[string]string{"title": "Product liability"})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected empty chat to be created, got %v", w.Code)
	}
	chat := decode[models.Chat](t, w)
	path := fmt.Sprintf("/api/chats/%d/messages", chat.ID)

	env.do(t, "POST", path, token, map[string]string{"message": "negligence duty of care"})
	env.do(t, "POST", path, token, map[string]string{"message": "what about manufacturers?"})

	w = env.do(t, "GET", fmt.Sprintf("/api/chats/%d", chat.ID), token, nil)
	msgs := decode[chatResp](t, w).Messages
	if len(msgs) != 4 {
		t.Fatalf("Expected 4 messages, got %d", len(msgs))
	}
	if msgs[3].SearchQuery != "manufacturer duty of care negligence" {
		t.Errorf("Expected condensed query on follow-up, got %q", msgs[3].SearchQuery)
	}

	if w := env.do(t, "POST", path, token, map[string]string{"message": "  "}); w.Code != http.StatusBadRequest {
		t.Errorf("Expected BadRequest for empty message, got %v", w.Code)
	}
	if w := env.do(t, "PATCH", fmt.Sprintf("/api/chats/%d", chat.ID), token, map[string]string{"title": "Renamed"}); w.Code != http.StatusOK {
		t.Errorf("Expected rename to succeed, got %v", w.Code)
	}
}

func TestChatTitle(t *testing.T) {
	long := strings.Repeat("é", 70)
	if got := chatTitle(long); len([]rune(got)) != maxTitleRunes {
		t.Errorf("Expected %d runes, got %d", maxTitleRunes, len([]rune(got)))
	}
	if got := chatTitle("first line\nsecond"); got != "first line" {
		t.Errorf("Expected first line, got %q", got)
	}
	if got := chatTitle(""); got != "New research" {
		t.Errorf("Unexpected fallback %q", got)
	}
}

func TestClientDisconnectKeepsPartialAnswer(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup(t, "hangup@example.com")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	env.model.interrupt = cancel

	req := httptest.NewRequest("POST", "/api/chats", strings.NewReader(`{"message": "negligence duty of care"}`)).WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	for _, e := range parseSSE(t, w.Body.String()) {
		if e.name == "done" || e.name == "error" {
			t.Errorf("Expected no %s event after disconnect", e.name)
		}
	}

	chats := decode[[]models.Chat](t, env.do(t, "GET", "/api/chats", token, nil))
	if len(chats) != 1 {
		t.Fatalf("Expected 1 chat, got %d", len(chats))
	}
	msgs := decode[chatResp](t, env.do(t, "GET", fmt.Sprintf("/api/chats/%d", chats[0].ID), token, nil)).Messages
	if len(msgs) != 2 {
		t.Fatalf("Expected user and assistant messages, got %+v", msgs)
	}
	if msgs[1].Content != "Palsgraf limits duty " {
		t.Errorf("Expected partial answer to be saved, got %q", msgs[1].Content)
	}
}

// brokenStream accepts okWrites body writes and fails the rest.
type brokenStream struct {
	header   http.Header
	okWrites int
	writes   int
}

func (b *brokenStream) Header() http.Header { return b.header }
func (b *brokenStream) WriteHeader(int)     {}
func (b *brokenStream) Write(p []byte) (int, error) {
	if b.writes >= b.okWrites {
		return 0, errors.New("broken pipe")
	}
	b.writes++
	return len(p), nil
}

func TestFailedEventWriteStopsGeneration(t *testing.T) {
	tests := []struct {
		name         string
		okWrites     int
		summaryCalls int
	}{
		{"chat event", 0, 0},
		{"results event", 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			token := env.signup(t, "broken@example.com")

			req := httptest.NewRequest("POST", "/api/chats", strings.NewReader(`{"message": "negligence duty of care"}`))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Authorization", "Bearer "+token)
			env.router.ServeHTTP(&brokenStream{header: http.Header{}, okWrites: tt.okWrites}, req)

			if env.model.summaryCalls != tt.summaryCalls {
				t.Errorf("Expected %d summary calls, got %d", tt.summaryCalls, env.model.summaryCalls)
			}
			if env.model.streamCalls != 0 {
				t.Errorf("Expected no answer stream, got %d", env.model.streamCalls)
			}
		})
	}
}

func TestDuplicateCategoryConflict(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup(t, "cats@example.com")

	if w := env.do(t, "POST", "/api/categories", token, map[string]string{"name": "general"}); w.Code != http.StatusConflict {
		t.Errorf("Expected Conflict for default category in another case, got %v", w.Code)
	}
	w := env.do(t, "POST", "/api/categories", token, map[string]string{"name": "Torts", "color": "#f00"})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status Created, got %v: %s", w.Code, w.Body.String())
	}
	torts := decode[models.Category](t, w)
	path := fmt.Sprintf("/api/categories/%d", torts.ID)

	if w := env.do(t, "PUT", path, token, map[string]string{"name": "GENERAL"}); w.Code != http.StatusConflict {
		t.Errorf("Expected Conflict when renaming onto an existing name, got %v", w.Code)
	}
	if w := env.do(t, "PUT", path, token, map[string]string{"name": "TORTS"}); w.Code != http.StatusOK {
		t.Errorf("Expected rename of its own name to succeed, got %v: %s", w.Code, w.Body.String())
	}

	other := env.signup(t, "other-cats@example.com")
	if w := env.do(t, "POST", "/api/categories", other, map[string]string{"name": "Torts"}); w.Code != http.StatusCreated {
		t.Errorf("Expected another user to reuse the name, got %v", w.Code)
	}
}

func TestDeleteAccount(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup(t, "leaving@example.com")
	uid := decode[models.User](t, env.do(t, "GET", "/api/auth/me", token, nil)).ID

	note := decode[models.Note](t, env.do(t, "POST", "/api/notes", token, map[string]string{"title": "Memo", "content": "<p>x</p>"}))
	w := env.upload(t, fmt.Sprintf("/api/notes/%d/images", note.ID), token, "scan.png", pngBytes(t))
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status Created, got %v: %s", w.Code, w.Body.String())
	}
	file := filepath.Join(env.uploadDir, decode[map[string]any](t, w)["filename"].(string))
	if _, err := os.Stat(file); err != nil {
		t.Fatalf("Expected uploaded file on disk: %v", err)
	}
	env.do(t, "POST", "/api/projects", token, map[string]string{"name": "Closing matter"})

	if w := env.do(t, "DELETE", "/api/auth/me", token, nil); w.Code != http.StatusNoContent {
		t.Fatalf("Expected status NoContent, got %v: %s", w.Code, w.Body.String())
	}

	if _, err := os.Stat(file); !os.IsNotExist(err) {
		t.Errorf("Expected uploaded file to be removed, got %v", err)
	}
	if _, err := env.store.GetUser(uid); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("Expected user to be gone, got %v", err)
	}
	if notes, _ := env.store.GetNotes(uid, nil); len(notes) != 0 {
		t.Errorf("Expected notes to cascade, got %d", len(notes))
	}
	if projects, _ := env.store.GetProjects(uid); len(projects) != 0 {
		t.Errorf("Expected projects to cascade, got %d", len(projects))
	}
	if w := env.do(t, "GET", "/api/auth/me", token, nil); w.Code != http.StatusUnauthorized {
		t.Errorf("Expected token to be revoked, got %v", w.Code)
	}
	w = env.do(t, "POST", "/api/auth/login", "", map[string]string{"email": "leaving@example.com", "password": "password123"})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected login to fail after deletion, got %v", w.Code)
	}
}

func (e *testEnv) callTool(t *testing.T, token, name string) *httptest.ResponseRecorder {
	t.Helper()
	body := fmt.Sprintf(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":%q,"arguments":{}}}`, name)
	req := httptest.NewRequest("POST", "/mcp", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestMCPBehindAuth(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup(t, "agent@example.com")
	other := env.signup(t, "bystander@example.com")
	env.do(t, "POST", "/api/projects", token, map[string]string{"name": "Acme Lease"})

	if w := env.callTool(t, "", "list_projects"); w.Code != http.StatusUnauthorized {
		t.Errorf("Expected Unauthorized without a token, got %v", w.Code)
	}

	w := env.callTool(t, token, "list_projects")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status OK, got %v: %s", w.Code, w.Body.String())
	}
	if body := w.Body.String(); !strings.Contains(body, "Found 1 projects") || !strings.Contains(body, "Acme Lease") {
		t.Errorf("Expected the caller's project, got %s", body)
	}

	w = env.callTool(t, other, "list_projects")
	if body := w.Body.String(); strings.Contains(body, "Acme Lease") || !strings.Contains(body, "No projects.") {
		t.Errorf("Expected tools to be scoped to the caller, got %s", body)
	}
}

package cli

import (
	"context"
	"math/rand"
	"strings"
	"testing"
	"time"

	"casebeam/internal/config"
	"casebeam/internal/mailer"
	"casebeam/internal/rag"
	"casebeam/internal/store/sqlstore"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{500 * time.Millisecond, "<1s"},
		{42 * time.Second, "42s"},
		{3*time.Minute + 5*time.Second, "3m5s"},
		{2*time.Hour + 30*time.Minute, "2h30m"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestBuildersFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Embedding.Provider = "mock"
	cfg.Embedding.Dimension = 32
	cfg.VectorDB.Provider = "memory"

	e, err := newEmbedder(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("newEmbedder: %v", err)
	}
	if e.Dimension() != 32 {
		t.Errorf("dimension = %d, want 32", e.Dimension())
	}

	vs, err := newVectorStore(cfg)
	if err != nil {
		t.Fatalf("newVectorStore: %v", err)
	}
	defer vs.Close()
	if err := vs.EnsureCollection(context.Background(), e.Dimension()); err != nil {
		t.Fatalf("EnsureCollection: %v", err)
	}

	m, err := newMailer(cfg)
	if err != nil {
		t.Fatalf("newMailer: %v", err)
	}
	if _, ok := m.(mailer.Log); !ok {
		t.Errorf("mailer = %T, want mailer.Log", m)
	}

	cfg.Mail.Provider = "resend"
	cfg.Mail.APIKeyEnv = ""
	if _, err := newMailer(cfg); err == nil {
		t.Error("resend without a key should fail")
	}

	cfg.VectorDB.Provider = "pinecone"
	if _, err := newVectorStore(cfg); err == nil {
		t.Error("unknown vector provider should fail")
	}
	cfg.Embedding.Provider = "cohere"
	if _, err := newEmbedder(context.Background(), cfg, nil); err == nil {
		t.Error("unknown embedding provider should fail")
	}
}

func TestLocalVectorStoreCloses(t *testing.T) {
	cfg := config.Default()
	cfg.VectorDB.Provider = "local"
	cfg.VectorDB.Path = t.TempDir() + "/vectors.db"

	vs, err := newVectorStore(cfg)
	if err != nil {
		t.Fatalf("newVectorStore: %v", err)
	}
	if err := vs.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestSeedDemo(t *testing.T) {
	st, err := sqlstore.New("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("sqlstore.New: %v", err)
	}
	defer st.Close()

	rng := rand.New(rand.NewSource(1))
	userID, inserted, err := seedDemo(st, "demo@casebeam.local", "casebeam-demo", 30, rng)
	if err != nil {
		t.Fatalf("seedDemo: %v", err)
	}

	notes, err := st.GetNotes(userID, nil)
	if err != nil {
		t.Fatalf("GetNotes: %v", err)
	}
	if len(notes) != inserted {
		t.Errorf("notes = %d, want %d", len(notes), inserted)
	}
	cutoff := time.Now().AddDate(0, 0, -31)
	for _, n := range notes {
		if n.CreatedAt.Before(cutoff) || n.CreatedAt.After(time.Now()) {
			t.Errorf("note %d created at %v, outside the seeded range", n.ID, n.CreatedAt)
		}
	}

	projects, err := st.GetProjects(userID)
	if err != nil || len(projects) != 1 {
		t.Fatalf("projects = %d, %v; want 1", len(projects), err)
	}
	dates, err := st.GetProjectDates(projects[0].ID, userID)
	if err != nil || len(dates) != 3 {
		t.Errorf("dates = %d, %v; want 3", len(dates), err)
	}

	// Running again reuses the account and does not duplicate categories.
	again, _, err := seedDemo(st, "demo@casebeam.local", "casebeam-demo", 1, rng)
	if err != nil {
		t.Fatalf("second seedDemo: %v", err)
	}
	if again != userID {
		t.Errorf("second run user = %d, want %d", again, userID)
	}
	categories, err := st.GetCategories(userID)
	if err != nil {
		t.Fatalf("GetCategories: %v", err)
	}
	if len(categories) != 2 {
		t.Errorf("categories = %d, want 2", len(categories))
	}
}

func TestRenderDocuments(t *testing.T) {
	out := renderDocuments("duty", []rag.Document{{
		Title:        "Palsgraf",
		Citation:     "248 N.Y. 339",
		Jurisdiction: "New York",
		Year:         1928,
		Excerpt:      "The risk reasonably to be perceived defines the duty.",
		Score:        0.91,
	}})
	for _, want := range []string{"Palsgraf", "248 N.Y. 339", "New York", "1928", "0.910"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	empty := renderDocuments("nothing", nil)
	if !strings.Contains(empty, "No matching documents") {
		t.Errorf("empty output = %q", empty)
	}
}

package mcp

import (
	"context"
	"strings"
	"testing"
	"time"

	"casebeam/internal/auth"
	"casebeam/internal/models"
	"casebeam/internal/store/sqlstore"

	"github.com/mark3labs/mcp-go/mcp"
)

func textOf(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	textContent, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("Expected TextContent")
	}
	return textContent.Text
}

func setup(t *testing.T) (*MCPServer, *sqlstore.SQLStore, int) {
	t.Helper()
	store, err := sqlstore.New("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	userID, err := store.CreateUser("mcp@example.com", "MCP User", "hash")
	if err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}
	return NewMCPServer(store), store, userID
}

func TestGetNotesTool(t *testing.T) {
	mcpServer, store, userID := setup(t)

	project := &models.Project{UserID: userID, Name: "Smith v. Jones"}
	if err := store.CreateProject(project); err != nil {
		t.Fatalf("Failed to create project: %v", err)
	}
	for i, title := range []string{"Note 1", "Note 2", "Note 3"} {
		n := &models.Note{UserID: userID, Title: title, Content: "<p>body</p>"}
		if i == 0 {
			n.ProjectID = &project.ID
		}
		if err := store.CreateNote(n); err != nil {
			t.Fatalf("Failed to create note: %v", err)
		}
	}

	now := time.Now()
	args := map[string]any{
		"start_date": now.Add(-24 * time.Hour).Format(time.RFC3339),
		"end_date":   now.Add(24 * time.Hour).Format(time.RFC3339),
	}
	ctx := auth.WithUserID(context.Background(), userID)

	result, err := mcpServer.getNotesHandler(ctx, mcp.CallToolRequest{Params: mcp.CallToolParams{Arguments: args}})
	if err != nil {
		t.Fatalf("Handler returned error: %v", err)
	}
	if result.IsError {
		t.Fatalf("Result is error: %v", result)
	}
	content := textOf(t, result)
	if !strings.Contains(content, "Note 1") || !strings.Contains(content, "Note 2") || !strings.Contains(content, "Note 3") {
		t.Errorf("Expected all notes, got: %s", content)
	}

	// Filter by project name
	args["project"] = "smith v. jones"
	result, _ = mcpServer.getNotesHandler(ctx, mcp.CallToolRequest{Params: mcp.CallToolParams{Arguments: args}})
	content = textOf(t, result)
	if !strings.Contains(content, "Found 1 notes") || strings.Contains(content, "Note 2") {
		t.Errorf("Expected only the project note, got: %s", content)
	}

	args["project"] = "Unknown"
	result, _ = mcpServer.getNotesHandler(ctx, mcp.CallToolRequest{Params: mcp.CallToolParams{Arguments: args}})
	if !result.IsError {
		t.Error("Expected error for unknown project")
	}

	// Unauthenticated context
	result, err = mcpServer.getNotesHandler(context.Background(), mcp.CallToolRequest{Params: mcp.CallToolParams{Arguments: args}})
	if err != nil {
		t.Fatalf("Handler returned error: %v", err)
	}
	if !result.IsError {
		t.Error("Expected error without a user")
	}

	// Bad date
	result, _ = mcpServer.getNotesHandler(ctx, mcp.CallToolRequest{Params: mcp.CallToolParams{Arguments: map[string]any{
		"start_date": "yesterday",
		"end_date":   now.Format(time.RFC3339),
	}}})
	if !result.IsError {
		t.Error("Expected error for invalid start_date")
	}
}

func TestListProjectsTool(t *testing.T) {
	mcpServer, store, userID := setup(t)
	ctx := auth.WithUserID(context.Background(), userID)

	result, _ := mcpServer.listProjectsHandler(ctx, mcp.CallToolRequest{})
	if textOf(t, result) != "No projects." {
		t.Errorf("Expected empty listing, got %q", textOf(t, result))
	}

	store.CreateProject(&models.Project{UserID: userID, Name: "Acme Lease", CaseNumber: "24-CV-118", Court: "S.D.N.Y."})
	result, _ = mcpServer.listProjectsHandler(ctx, mcp.CallToolRequest{})
	content := textOf(t, result)
	if !strings.Contains(content, "Acme Lease [open] case 24-CV-118, S.D.N.Y.") {
		t.Errorf("Unexpected listing: %s", content)
	}
}

func TestGetSavedResultsTool(t *testing.T) {
	mcpServer, store, userID := setup(t)
	ctx := auth.WithUserID(context.Background(), userID)

	created, err := store.CreateSearchResults([]models.SearchResult{
		{UserID: userID, DocumentID: "d1", Title: "Palsgraf", Citation: "248 N.Y. 339", Summary: "duty", Relevance: 90},
		{UserID: userID, DocumentID: "d2", Title: "Donoghue", Summary: "snail", Relevance: 70},
	})
	if err != nil {
		t.Fatal(err)
	}
	saved := true
	if _, err := store.UpdateSearchResult(created[0].ID, userID, models.ResultUpdate{Saved: &saved}); err != nil {
		t.Fatal(err)
	}

	result, _ := mcpServer.getSavedResultsHandler(ctx, mcp.CallToolRequest{})
	content := textOf(t, result)
	if !strings.Contains(content, "Palsgraf (248 N.Y. 339) relevance 90") || strings.Contains(content, "Donoghue") {
		t.Errorf("Unexpected saved results: %s", content)
	}
}

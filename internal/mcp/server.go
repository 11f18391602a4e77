package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"casebeam/internal/auth"
	"casebeam/internal/models"
	"casebeam/internal/store"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// MCPServer exposes the signed-in user's notes, projects and saved
// research to agents. The user comes from the request context set by the
// auth middleware.
type MCPServer struct {
	store store.Store
}

func NewMCPServer(s store.Store) *MCPServer {
	return &MCPServer{store: s}
}

func userFromContext(ctx context.Context) (int, *mcp.CallToolResult) {
	userID, ok := auth.GetUserIDFromContext(ctx)
	if !ok {
		return 0, mcp.NewToolResultError("not authenticated")
	}
	return userID, nil
}

// projectByName resolves an optional project name to its id.
func (s *MCPServer) projectByName(userID int, name string) (*int, *mcp.CallToolResult) {
	if name == "" {
		return nil, nil
	}
	projects, err := s.store.GetProjects(userID)
	if err != nil {
		return nil, mcp.NewToolResultError(fmt.Sprintf("database error: %v", err))
	}
	for _, p := range projects {
		if strings.EqualFold(p.Name, name) {
			id := p.ID
			return &id, nil
		}
	}
	return nil, mcp.NewToolResultError(fmt.Sprintf("project %q not found", name))
}

func (s *MCPServer) getNotesHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, errResult := userFromContext(ctx)
	if errResult != nil {
		return errResult, nil
	}
	startDateStr, err := request.RequireString("start_date")
	if err != nil {
		return mcp.NewToolResultError("start_date is required"), nil
	}
	endDateStr, err := request.RequireString("end_date")
	if err != nil {
		return mcp.NewToolResultError("end_date is required"), nil
	}

	start, err := time.Parse(time.RFC3339, startDateStr)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid start_date: %v", err)), nil
	}
	end, err := time.Parse(time.RFC3339, endDateStr)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid end_date: %v", err)), nil
	}

	projectID, errResult := s.projectByName(userID, request.GetString("project", ""))
	if errResult != nil {
		return errResult, nil
	}

	notes, err := s.store.GetNotesByTimeRange(userID, projectID, start.UTC(), end.UTC())
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("database error: %v", err)), nil
	}

	if len(notes) == 0 {
		return mcp.NewToolResultText("No notes found for this time range."), nil
	}

	var noteStrings []string
	for _, n := range notes {
		noteStrings = append(noteStrings, fmt.Sprintf("[%s] %s: %s", n.CreatedAt.Format(time.RFC3339), n.Title, n.Content))
	}

	return mcp.NewToolResultText(fmt.Sprintf("Found %d notes:\n%s", len(notes), strings.Join(noteStrings, "\n"))), nil
}

func (s *MCPServer) listProjectsHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, errResult := userFromContext(ctx)
	if errResult != nil {
		return errResult, nil
	}
	projects, err := s.store.GetProjects(userID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("database error: %v", err)), nil
	}
	if len(projects) == 0 {
		return mcp.NewToolResultText("No projects."), nil
	}

	var lines []string
	for _, p := range projects {
		line := fmt.Sprintf("- %s [%s]", p.Name, p.Status)
		if p.CaseNumber != "" {
			line += " case " + p.CaseNumber
		}
		if p.Court != "" {
			line += ", " + p.Court
		}
		if p.ClientName != "" {
			line += ", client " + p.ClientName
		}
		lines = append(lines, line)
	}
	return mcp.NewToolResultText(fmt.Sprintf("Found %d projects:\n%s", len(projects), strings.Join(lines, "\n"))), nil
}

func (s *MCPServer) getSavedResultsHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, errResult := userFromContext(ctx)
	if errResult != nil {
		return errResult, nil
	}
	projectID, errResult := s.projectByName(userID, request.GetString("project", ""))
	if errResult != nil {
		return errResult, nil
	}

	saved := true
	results, err := s.store.ListSearchResults(userID, models.ResultFilter{ProjectID: projectID, Saved: &saved})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("database error: %v", err)), nil
	}
	if len(results) == 0 {
		return mcp.NewToolResultText("No saved results."), nil
	}

	var lines []string
	for _, r := range results {
		lines = append(lines, fmt.Sprintf("- %s (%s) relevance %d: %s", r.Title, r.Citation, r.Relevance, r.Summary))
	}
	return mcp.NewToolResultText(fmt.Sprintf("Found %d saved results:\n%s", len(results), strings.Join(lines, "\n"))), nil
}

func readOnly() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	}
}

func (s *MCPServer) NewServer() *server.StreamableHTTPServer {
	mcpServer := server.NewMCPServer("CaseBeam", "1.0.0")

	getNotes := mcp.NewTool("get_notes", append([]mcp.ToolOption{
		mcp.WithDescription("Retrieve your case notes within a specific time range."),
		mcp.WithString("start_date", mcp.Required(), mcp.Description("Start of the time range (RFC3339), e.g. 2023-01-01T00:00:00Z")),
		mcp.WithString("end_date", mcp.Required(), mcp.Description("End of the time range (RFC3339), e.g. 2023-12-31T23:59:59Z")),
		mcp.WithString("project", mcp.Description("Only notes of the project with this name")),
	}, readOnly()...)...)

	listProjects := mcp.NewTool("list_projects", append([]mcp.ToolOption{
		mcp.WithDescription("List your legal projects (cases) with status, court and case number."),
	}, readOnly()...)...)

	getSaved := mcp.NewTool("get_saved_results", append([]mcp.ToolOption{
		mcp.WithDescription("List saved legal research results, optionally for one project."),
		mcp.WithString("project", mcp.Description("Project name to filter by")),
	}, readOnly()...)...)

	mcpServer.AddTool(getNotes, s.getNotesHandler)
	mcpServer.AddTool(listProjects, s.listProjectsHandler)
	mcpServer.AddTool(getSaved, s.getSavedResultsHandler)

	return server.NewStreamableHTTPServer(mcpServer, server.WithStateLess(true))
}

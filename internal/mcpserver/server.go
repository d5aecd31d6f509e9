// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the GlyphNote workspace to LLM clients via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/glyphnote/internal/doctree"
	"github.com/starford/glyphnote/internal/models"
	"github.com/starford/glyphnote/internal/workspace"
)

const contractURI = "glyphnote://note-format"

// Server wraps the MCP server with workspace tools.
type Server struct {
	mcp *server.MCPServer
	ws  *workspace.Workspace
}

// New creates a new MCP server with all workspace tools registered.
func New(ws *workspace.Workspace, version string) *Server {
	s := &Server{ws: ws}

	s.mcp = server.NewMCPServer(
		"GlyphNote",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("workspace_status",
		mcp.WithDescription("Current workspace state: vault, status line, open tabs, active tab and preview."),
	), s.workspaceStatus)

	s.mcp.AddTool(mcp.NewTool("open_vault",
		mcp.WithDescription("Open (creating if needed) a vault directory and make it active. "+
			"Open tabs are discarded without saving."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Absolute vault directory")),
	), s.openVault)

	s.mcp.AddTool(mcp.NewTool("list_notes",
		mcp.WithDescription("List the documents of the active vault, newest first."),
	), s.listNotes)

	s.mcp.AddTool(mcp.NewTool("get_tree",
		mcp.WithDescription("Folder tree of the active vault's documents, sorted by name."),
	), s.getTree)

	s.mcp.AddTool(mcp.NewTool("open_note",
		mcp.WithDescription("Open a document in a tab (or focus its tab) and make it active."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Absolute document path as returned by list_notes")),
	), s.openNote)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read the current content of a document. Unsaved tab edits are returned when the document is open."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Absolute document path")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("create_note",
		mcp.WithDescription("Create a new LaTeX or Typst note in the active vault and open it. "+
			"Read the format contract first via get_note_contract or the "+contractURI+" resource."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Human-readable title; the file name is derived from it")),
		mcp.WithString("engine", mcp.Description("latex (default) or typst")),
	), s.createNote)

	s.mcp.AddTool(mcp.NewTool("save_note",
		mcp.WithDescription("Replace a document's content and save it. The document is opened and activated first."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Absolute document path")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Full source following the note format contract")),
	), s.saveNote)

	s.mcp.AddTool(mcp.NewTool("render_preview",
		mcp.WithDescription("Render a PDF for a document (default: the active tab) and return the PDF path. "+
			"Only a render of the active tab updates the workspace preview."),
		mcp.WithString("path", mcp.Description("Optional absolute document path")),
	), s.renderPreview)

	s.mcp.AddTool(mcp.NewTool("get_note_contract",
		mcp.WithDescription("Returns the GlyphNote note format contract for LaTeX and Typst documents."),
	), s.getNoteContract)

	s.mcp.AddResource(
		mcp.NewResource(contractURI, "Note Format Contract",
			mcp.WithResourceDescription("How GlyphNote LaTeX and Typst notes are laid out and rendered."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readNoteFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) workspaceStatus(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.ws.Snapshot())
}

func (s *Server) openVault(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	v, err := s.ws.SubmitVaultPath(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("opened: %s (%d notes)", v.RootPath, v.NoteCount)), nil
}

func (s *Server) listNotes(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if _, ok := s.ws.Vault(); !ok {
		return mcp.NewToolResultError("no vault open"), nil
	}
	docs := s.ws.Documents()
	if len(docs) == 0 {
		return mcp.NewToolResultText("no notes"), nil
	}
	lines := make([]string, 0, len(docs))
	for _, d := range docs {
		lines = append(lines, fmt.Sprintf("%s\t%s", d.Engine, d.Path))
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) getTree(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	nodes := s.ws.Tree()
	if nodes == nil {
		nodes = []*doctree.Node{}
	}
	return jsonResult(nodes)
}

func (s *Server) openNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	tab, err := s.ws.OpenNote(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("opened: %s", tab.Path)), nil
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if tab, ok := s.ws.Tab(path); ok {
		return mcp.NewToolResultText(tab.Content), nil
	}
	tab, err := s.ws.OpenNote(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(tab.Content), nil
}

func (s *Server) createNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	engine := models.EngineLatex
	if raw := optionalString(req, "engine"); raw != "" {
		engine, err = models.ParseEngine(raw)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}
	summary, err := s.ws.CreateNote(ctx, title, engine)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s", summary.Path)), nil
}

func (s *Server) saveNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if _, err := s.ws.OpenNote(ctx, path); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !s.ws.Edit(path, content) {
		return mcp.NewToolResultError(fmt.Sprintf("not the active tab: %s", path)), nil
	}
	if err := s.ws.Save(ctx, path); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("saved: %s", path)), nil
}

func (s *Server) renderPreview(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	artifact, err := s.ws.Render(ctx, optionalString(req, "path"))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(artifact), nil
}

func (s *Server) getNoteContract(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(NoteFormatContract), nil
}

func (s *Server) readNoteFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      contractURI,
			MIMEType: "text/markdown",
			Text:     NoteFormatContract,
		},
	}, nil
}

// optionalString returns the named string argument, or "" when absent.
func optionalString(req mcp.CallToolRequest, name string) string {
	if v, err := req.RequireString(name); err == nil {
		return v
	}
	return ""
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/scenaria"
	"github.com/aretw0/scenaria/internal/logging"
	"github.com/aretw0/scenaria/internal/validator"
	"github.com/aretw0/scenaria/pkg/command"
	"github.com/aretw0/scenaria/pkg/domain"
	"github.com/aretw0/scenaria/pkg/session"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// ScenariosURI is the resource listing the stored scenarios.
const ScenariosURI = "scenaria://scenarios"

// EditResponse is returned by every tool that changes or queries editor state.
type EditResponse struct {
	ScenarioID string             `json:"scenario_id" jsonschema_description:"The edited scenario"`
	Applied    bool               `json:"applied" jsonschema_description:"Whether the call changed the editor"`
	Version    int                `json:"version" jsonschema_description:"Last saved version"`
	Pending    []domain.Operation `json:"pending" jsonschema_description:"Operations not yet saved"`
	CanUndo    bool               `json:"can_undo"`
	CanRedo    bool               `json:"can_redo"`
}

// ConnectionResponse is returned by check_connection.
type ConnectionResponse struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// Server exposes a session manager as an MCP Server.
type Server struct {
	sessions  *session.Manager
	mcpServer *server.MCPServer
	logger    *slog.Logger
}

// NewServer creates a new MCP Server instance.
func NewServer(sessions *session.Manager, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Server{
		sessions:  sessions,
		mcpServer: server.NewMCPServer("scenaria-mcp", strings.TrimSpace(scenaria.Version)),
		logger:    logger,
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying protocol server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE starts the server on the given port using SSE and stops it when ctx ends.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.logger.Info("Shutdown signal received, shutting down MCP server")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	scenarioArg := mcp.WithString("scenario_id", mcp.Required(), mcp.Description("The ID of the scenario"))

	s.mcpServer.AddTool(mcp.NewTool("execute_command",
		mcp.WithDescription("Execute one editing command (e.g. STEP_CREATE, RELATION_CREATE, BATCH) on a scenario. Creates the scenario when missing."),
		scenarioArg,
		mcp.WithString("command", mcp.Required(), mcp.Description(`JSON command, e.g. {"type":"STEP_CREATE","payload":{"id":"wait","type":"delay"}}`)),
		mcp.WithString("name", mcp.Description("Name used when the scenario has to be created")),
		mcp.WithOutputSchema[EditResponse](),
	), mcp.NewStructuredToolHandler(s.handleExecute))

	s.mcpServer.AddTool(mcp.NewTool("undo",
		mcp.WithDescription("Revert the last command of a scenario."),
		scenarioArg,
		mcp.WithOutputSchema[EditResponse](),
	), mcp.NewStructuredToolHandler(s.handleUndo))

	s.mcpServer.AddTool(mcp.NewTool("redo",
		mcp.WithDescription("Re-apply the last undone command of a scenario."),
		scenarioArg,
		mcp.WithOutputSchema[EditResponse](),
	), mcp.NewStructuredToolHandler(s.handleRedo))

	s.mcpServer.AddTool(mcp.NewTool("save",
		mcp.WithDescription("Persist the pending operations of a scenario."),
		scenarioArg,
		mcp.WithOutputSchema[EditResponse](),
	), mcp.NewStructuredToolHandler(s.handleSave))

	s.mcpServer.AddTool(mcp.NewTool("pending_operations",
		mcp.WithDescription("List the operations that the next save would send."),
		scenarioArg,
		mcp.WithOutputSchema[EditResponse](),
	), mcp.NewStructuredToolHandler(s.handlePending))

	s.mcpServer.AddTool(mcp.NewTool("check_connection",
		mcp.WithDescription("Check whether a relation from source to target step would be accepted."),
		scenarioArg,
		mcp.WithString("source_id", mcp.Required(), mcp.Description("Parent step ID")),
		mcp.WithString("target_id", mcp.Required(), mcp.Description("Child step ID")),
		mcp.WithOutputSchema[ConnectionResponse](),
	), mcp.NewStructuredToolHandler(s.handleCheckConnection))

	s.mcpServer.AddTool(mcp.NewTool("validate",
		mcp.WithDescription("Report structural problems of a scenario."),
		scenarioArg,
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, _ := request.GetArguments()["scenario_id"].(string)
		ed, err := s.sessions.Open(ctx, id)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("open failed: %v", err)), nil
		}
		issues, err := validator.CheckEditor(ed)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("validate failed: %v", err)), nil
		}
		if len(issues) == 0 {
			return mcp.NewToolResultText("scenario is valid"), nil
		}
		lines := make([]string, len(issues))
		for i, issue := range issues {
			lines[i] = issue.String()
		}
		return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
	})
}

func stringArg(args map[string]interface{}, key string) (string, error) {
	v, _ := args[key].(string)
	if v == "" {
		return "", fmt.Errorf("argument %q is required", key)
	}
	return v, nil
}

func (s *Server) open(ctx context.Context, args map[string]interface{}) (*scenaria.Editor, error) {
	id, err := stringArg(args, "scenario_id")
	if err != nil {
		return nil, err
	}
	return s.sessions.Open(ctx, id)
}

func snapshotOf(ed *scenaria.Editor, applied bool) EditResponse {
	pending := ed.PendingOperations()
	if pending == nil {
		pending = []domain.Operation{}
	}
	return EditResponse{
		ScenarioID: ed.ScenarioID(),
		Applied:    applied,
		Version:    ed.Version(),
		Pending:    pending,
		CanUndo:    ed.CanUndo(),
		CanRedo:    ed.CanRedo(),
	}
}

func (s *Server) handleExecute(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (EditResponse, error) {
	id, err := stringArg(args, "scenario_id")
	if err != nil {
		return EditResponse{}, err
	}
	raw, err := stringArg(args, "command")
	if err != nil {
		return EditResponse{}, err
	}
	var cmd command.Command
	if err := json.Unmarshal([]byte(raw), &cmd); err != nil {
		return EditResponse{}, fmt.Errorf("invalid command JSON: %w", err)
	}

	name, _ := args["name"].(string)
	if name == "" {
		name = id
	}
	ed, err := s.sessions.OpenOrCreate(ctx, id, name)
	if err != nil {
		return EditResponse{}, err
	}
	if err := ed.Execute(cmd); err != nil {
		s.logger.Warn("MCP execute_command rejected", "scenario_id", id, "command", cmd.Type, "err", err)
		return EditResponse{}, fmt.Errorf("command rejected: %w", err)
	}
	return snapshotOf(ed, true), nil
}

func (s *Server) handleUndo(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (EditResponse, error) {
	ed, err := s.open(ctx, args)
	if err != nil {
		return EditResponse{}, err
	}
	applied, err := ed.Undo()
	if err != nil {
		return EditResponse{}, fmt.Errorf("undo failed: %w", err)
	}
	return snapshotOf(ed, applied), nil
}

func (s *Server) handleRedo(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (EditResponse, error) {
	ed, err := s.open(ctx, args)
	if err != nil {
		return EditResponse{}, err
	}
	applied, err := ed.Redo()
	if err != nil {
		return EditResponse{}, fmt.Errorf("redo failed: %w", err)
	}
	return snapshotOf(ed, applied), nil
}

func (s *Server) handleSave(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (EditResponse, error) {
	ed, err := s.open(ctx, args)
	if err != nil {
		return EditResponse{}, err
	}
	before := len(ed.PendingOperations())
	if _, err := s.sessions.Save(ctx, ed.ScenarioID()); err != nil {
		return EditResponse{}, fmt.Errorf("save failed: %w", err)
	}
	return snapshotOf(ed, before > 0), nil
}

func (s *Server) handlePending(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (EditResponse, error) {
	ed, err := s.open(ctx, args)
	if err != nil {
		return EditResponse{}, err
	}
	return snapshotOf(ed, false), nil
}

func (s *Server) handleCheckConnection(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (ConnectionResponse, error) {
	ed, err := s.open(ctx, args)
	if err != nil {
		return ConnectionResponse{}, err
	}
	source, _ := args["source_id"].(string)
	target, _ := args["target_id"].(string)
	if err := ed.CheckConnection(source, target); err != nil {
		return ConnectionResponse{Valid: false, Reason: err.Error()}, nil
	}
	return ConnectionResponse{Valid: true}, nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(ScenariosURI, "Stored Scenarios",
		mcp.WithMIMEType("application/json"),
	), s.readScenarios)
}

func (s *Server) readScenarios(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	ids, err := s.sessions.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list scenarios: %w", err)
	}
	jsonBytes, _ := json.Marshal(map[string]any{"scenarios": ids, "open": s.sessions.OpenIDs()})
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      ScenariosURI,
			MIMEType: "application/json",
			Text:     string(jsonBytes),
		},
	}, nil
}

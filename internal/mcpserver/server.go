// Package mcpserver exposes the companion's tool registry over the Model
// Context Protocol, bound to a single user.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"amble/internal/session"
	"amble/internal/store"
	"amble/internal/tools"
)

// Version is set at build time via ldflags.
var Version = "dev"

const instructions = `These tools read and write one person's companion records:
expenses, moods, activities, appointments, remembered facts and family alerts.
Every call acts on the user this server was started for.`

// Server adapts registry tools to MCP tool handlers for one user key.
type Server struct {
	registry *tools.Registry
	profiles store.ProfileStore
	userKey  string
	state    *session.State
	now      func() time.Time
}

// New builds the MCP server. Profile fields are loaded into the session once
// so timezone-aware tools see the user's location.
func New(ctx context.Context, registry *tools.Registry, profiles store.ProfileStore, userKey string) (*server.MCPServer, *Server) {
	sessions := session.NewStore(24 * time.Hour)
	state, _ := sessions.Resolve("", userKey)
	if p, err := profiles.GetProfile(ctx, userKey); err == nil {
		state.LoadProfile(p)
	}

	a := &Server{registry: registry, profiles: profiles, userKey: userKey, state: state, now: time.Now}

	s := server.NewMCPServer(
		"amble",
		Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)
	for _, t := range registry.List() {
		def, err := a.definition(t)
		if err != nil {
			log.Printf("⚠️  [MCP] Skipping tool %s: %v", t.Name, err)
			continue
		}
		s.AddTool(def, a.handle(t.Name))
	}
	log.Printf("✅ [MCP] %d tools exposed for user %s", registry.Count(), userKey)
	return s, a
}

func (a *Server) definition(t *tools.Tool) (mcp.Tool, error) {
	schema, err := json.Marshal(t.Parameters)
	if err != nil {
		return mcp.Tool{}, fmt.Errorf("failed to encode schema: %w", err)
	}
	return mcp.NewToolWithRawSchema(t.Name, t.Description, schema), nil
}

func (a *Server) handle(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, err := json.Marshal(req.GetArguments())
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}

		now := a.now()
		a.state.StampTime(now)
		res := a.registry.Dispatch(ctx, tools.Invocation{UserKey: a.userKey, State: a.state, Now: now},
			tools.Call{ID: name, Name: name, Arguments: args})
		if res.Status == tools.StatusError {
			return mcp.NewToolResultError(res.Message), nil
		}
		return mcp.NewToolResultText(res.JSON()), nil
	}
}

// Serve runs the server on stdio until the client disconnects.
func Serve(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

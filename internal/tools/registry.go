// Package tools holds the typed tool registry the model calls into and the
// companion's domain tools.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"amble/internal/llm"
	"amble/internal/session"
)

// Domain is the record area a tool reads or writes.
type Domain string

const (
	DomainProfile      Domain = "profile"
	DomainExpenses     Domain = "expenses"
	DomainMoods        Domain = "moods"
	DomainActivities   Domain = "activities"
	DomainAppointments Domain = "appointments"
	DomainWellness     Domain = "wellness"
	DomainAlerts       Domain = "alerts"
	DomainFacts        Domain = "facts"
	DomainSummary      Domain = "summary"
)

// Status is the outcome class of a dispatch.
type Status string

const (
	StatusSuccess  Status = "success"
	StatusNotFound Status = "not_found"
	StatusError    Status = "error"
)

// Result is what a tool hands back to the model.
type Result struct {
	Status  Status                 `json:"status"`
	Message string                 `json:"message"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

// JSON renders the result for a tool message.
func (r Result) JSON() string {
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Sprintf(`{"status":"error","message":%q}`, err.Error())
	}
	return string(b)
}

// Changed reports whether a successful result changed stored records. A
// handler marks an idempotent no-op with Data["changed"] = false.
func (r Result) Changed() bool {
	if r.Status != StatusSuccess {
		return false
	}
	if c, ok := r.Data["changed"].(bool); ok {
		return c
	}
	return true
}

func Success(message string, data map[string]interface{}) Result {
	return Result{Status: StatusSuccess, Message: message, Data: data}
}

func NotFound(message string) Result {
	return Result{Status: StatusNotFound, Message: message}
}

func Errorf(format string, args ...interface{}) Result {
	return Result{Status: StatusError, Message: fmt.Sprintf(format, args...)}
}

// Invocation is the per-call environment: whose records, which session, and the clock.
type Invocation struct {
	UserKey string
	State   *session.State
	Now     time.Time
}

// HandlerFunc executes a tool with raw JSON arguments.
type HandlerFunc func(ctx context.Context, inv Invocation, args json.RawMessage) Result

// Typed adapts a handler taking decoded arguments. Undecodable arguments
// become an error result without calling fn.
func Typed[T any](fn func(ctx context.Context, inv Invocation, args T) Result) HandlerFunc {
	return func(ctx context.Context, inv Invocation, raw json.RawMessage) Result {
		var args T
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &args); err != nil {
				return Errorf("invalid arguments: %v", err)
			}
		}
		return fn(ctx, inv, args)
	}
}

// Tool is a callable tool with its metadata.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
	Domain      Domain
	Mutates     bool
	Handler     HandlerFunc
}

// Call is one model-requested invocation.
type Call struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// Registry manages the available tools. Registration order is preserved so
// the schema sent to the model is stable.
type Registry struct {
	tools map[string]*Tool
	order []string
	mutex sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// Register adds a new tool to the registry
func (r *Registry) Register(tool *Tool) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if tool.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if tool.Handler == nil {
		return fmt.Errorf("tool %s must have a handler", tool.Name)
	}
	if _, exists := r.tools[tool.Name]; exists {
		return fmt.Errorf("tool %s is already registered", tool.Name)
	}

	r.tools[tool.Name] = tool
	r.order = append(r.order, tool.Name)
	return nil
}

// Get retrieves a tool by name
func (r *Registry) Get(name string) (*Tool, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	tool, exists := r.tools[name]
	return tool, exists
}

// List returns the tools in registration order.
func (r *Registry) List() []*Tool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	out := make([]*Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// Definitions returns the model-facing tool schema.
func (r *Registry) Definitions() []llm.ToolDefinition {
	tools := r.List()
	defs := make([]llm.ToolDefinition, len(tools))
	for i, t := range tools {
		defs[i] = llm.ToolDefinition{Name: t.Name, Description: t.Description, Parameters: t.Parameters}
	}
	return defs
}

// Count returns the number of registered tools
func (r *Registry) Count() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.tools)
}

// Dispatch runs one call synchronously. Unknown tools and panics become error results.
func (r *Registry) Dispatch(ctx context.Context, inv Invocation, call Call) (res Result) {
	tool, ok := r.Get(call.Name)
	if !ok {
		return Errorf("unknown tool %q", call.Name)
	}
	if inv.Now.IsZero() {
		inv.Now = time.Now()
	}

	defer func() {
		if p := recover(); p != nil {
			log.Printf("❌ [TOOLS] %s panicked for user %s: %v", call.Name, inv.UserKey, p)
			res = Errorf("tool %s failed unexpectedly", call.Name)
		}
	}()

	args := call.Arguments
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	return tool.Handler(ctx, inv, args)
}

// ToolInfo is a JSON-serializable representation of a Tool (without the handler)
type ToolInfo struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Domain      Domain                 `json:"domain"`
	Mutates     bool                   `json:"mutates"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// ListDetailed returns all tools with metadata.
func (r *Registry) ListDetailed() []ToolInfo {
	tools := r.List()
	out := make([]ToolInfo, len(tools))
	for i, t := range tools {
		out[i] = ToolInfo{Name: t.Name, Description: t.Description, Domain: t.Domain, Mutates: t.Mutates, Parameters: t.Parameters}
	}
	return out
}

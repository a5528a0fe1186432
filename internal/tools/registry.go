// Package tools holds the capabilities the research agent can call. Each
// capability is a langchaingo tool with a declared Gemini parameter schema.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/generative-ai-go/genai"
	lctools "github.com/tmc/langchaingo/tools"
)

// Capability is a named tool with a declared input schema. Call receives the
// arguments as a JSON object.
type Capability interface {
	lctools.Tool
	Parameters() *genai.Schema
}

// Registry maps tool names to capabilities. It is built once at startup and
// read concurrently afterwards.
type Registry struct {
	byName map[string]Capability
	order  []string
	log    *slog.Logger
}

func NewRegistry(logger *slog.Logger, caps ...Capability) *Registry {
	r := &Registry{byName: make(map[string]Capability, len(caps)), log: logger}
	for _, c := range caps {
		r.Register(c)
	}
	return r
}

// Register adds c, replacing any capability of the same name.
func (r *Registry) Register(c Capability) {
	if _, exists := r.byName[c.Name()]; !exists {
		r.order = append(r.order, c.Name())
	}
	r.byName[c.Name()] = c
}

// Names returns tool names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// GenaiTools returns every capability as a single Gemini tool of function
// declarations.
func (r *Registry) GenaiTools() []*genai.Tool {
	if len(r.order) == 0 {
		return nil
	}
	decls := make([]*genai.FunctionDeclaration, 0, len(r.order))
	for _, name := range r.order {
		c := r.byName[name]
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        c.Name(),
			Description: c.Description(),
			Parameters:  c.Parameters(),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

// Call runs the named tool. It never fails: unknown tools and tool errors come
// back as text for the model to read.
func (r *Registry) Call(ctx context.Context, name string, args map[string]any) string {
	c, ok := r.byName[name]
	if !ok {
		r.log.Warn("unknown tool requested", "tool", name)
		return "Unknown tool: " + name
	}

	if args == nil {
		args = map[string]any{}
	}
	input, err := json.Marshal(args)
	if err != nil {
		return "Error: " + err.Error()
	}

	result, err := c.Call(ctx, string(input))
	if err != nil {
		r.log.Error("tool failed", "tool", name, "err", err)
		return "Error: " + err.Error()
	}
	r.log.Debug("tool result", "tool", name, "bytes", len(result))
	return result
}

type funcTool struct {
	name        string
	description string
	params      *genai.Schema
	fn          func(ctx context.Context, args map[string]any) (string, error)
}

func (t *funcTool) Name() string              { return t.name }
func (t *funcTool) Description() string       { return t.description }
func (t *funcTool) Parameters() *genai.Schema { return t.params }

func (t *funcTool) Call(ctx context.Context, input string) (string, error) {
	args := map[string]any{}
	if strings.TrimSpace(input) != "" {
		if err := json.Unmarshal([]byte(input), &args); err != nil {
			return "", fmt.Errorf("invalid arguments for %s: %w", t.name, err)
		}
	}
	return t.fn(ctx, args)
}

func stringArg(args map[string]any, key, def string) string {
	v, ok := args[key]
	if !ok || v == nil {
		return def
	}
	s, ok := v.(string)
	if !ok {
		return fmt.Sprint(v)
	}
	if s == "" {
		return def
	}
	return s
}

// intArg accepts JSON numbers and numeric strings.
func intArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}
